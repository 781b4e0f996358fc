package app

import (
	"context"
	"time"

	"playcount_snapshot/internal/batch"
	"playcount_snapshot/internal/datekey"
	"playcount_snapshot/internal/header"

	"github.com/rs/zerolog/log"
)

// Snapshot is one daily run against a single tab.
type Snapshot struct {
	Headers      header.Store
	Rows         batch.Store
	Fetcher      batch.Fetcher
	RowCount     int
	SourceColumn int
	ChunkSize    int
	Now          func() time.Time
}

type Result struct {
	Keys     datekey.Keys
	Decision header.Decision
	Summary  batch.Summary
}

// Run resolves today's column and then fills it. Header resolution failures
// happen before any row is touched.
func (s Snapshot) Run(ctx context.Context) (Result, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	res := Result{Keys: datekey.For(now())}

	log.Info().
		Str("date", res.Keys.ISO).
		Int("row_count", s.RowCount).
		Msg("Starting play count snapshot")

	decision, err := header.NewResolver(s.Headers).Resolve(ctx, res.Keys)
	if err != nil {
		return res, err
	}
	res.Decision = decision

	summary, err := batch.NewWriter(s.Rows, s.Fetcher, s.ChunkSize).Run(ctx, batch.Job{
		RowCount:     s.RowCount,
		SourceColumn: s.SourceColumn,
		OutputColumn: decision.Column,
	})
	res.Summary = summary
	if err != nil {
		return res, err
	}

	log.Info().
		Int("chunks", summary.Chunks).
		Int("rows", summary.Rows).
		Int("fetched", summary.Fetched).
		Int("skipped", summary.Skipped).
		Int("zeroed", summary.Zeroed).
		Int("overwritten", summary.Overwritten).
		Int64("total_plays", summary.Total).
		Dur("elapsed", summary.Elapsed).
		Msg("Snapshot complete")
	return res, nil
}
