package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultChunkSize = 100
	FirstDataRow     = 4 // row 5 in the sheet
)

// Store loads and saves one chunk of the source and output columns.
type Store interface {
	LoadChunk(ctx context.Context, span Span, sourceColumn, outputColumn int) (ChunkData, error)
	SaveChunk(ctx context.Context, span Span, outputColumn int, values []int64) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) int64
}

// Job describes one pass over the sheet.
type Job struct {
	RowCount     int
	SourceColumn int
	OutputColumn int
}

type Summary struct {
	Chunks      int
	Rows        int
	Fetched     int
	Skipped     int
	Zeroed      int
	Overwritten int
	Total       int64
	Elapsed     time.Duration
}

func (s *Summary) add(c *Chunk) {
	s.Chunks++
	s.Rows += c.Span.Len()
	s.Fetched += c.fetched
	s.Skipped += c.skipped
	s.Zeroed += c.zeroed
	s.Overwritten += c.overwritten
	for _, v := range c.Values {
		s.Total += v
	}
}

type Writer struct {
	store     Store
	fetcher   Fetcher
	chunkSize int
}

func NewWriter(store Store, fetcher Fetcher, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{store: store, fetcher: fetcher, chunkSize: chunkSize}
}

// Run processes every data row chunk by chunk. A store error stops the run
// and is returned as a *ChunkError; chunks persisted before it stay written
// and are reflected in the returned Summary.
func (w *Writer) Run(ctx context.Context, job Job) (Summary, error) {
	start := time.Now()
	spans := Plan(FirstDataRow, job.RowCount, w.chunkSize)
	summary := Summary{}

	log.Info().
		Int("row_count", job.RowCount).
		Int("chunks", len(spans)).
		Int("source_column", job.SourceColumn).
		Int("output_column", job.OutputColumn).
		Msg("Starting batch")

	for i, span := range spans {
		chunk := NewChunk(span)
		log.Debug().Int("chunk", i+1).Str("span", span.String()).Msg("Processing chunk")

		if err := chunk.Load(ctx, w.store, job.SourceColumn, job.OutputColumn); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
		if err := chunk.Compute(ctx, w.fetcher); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
		if err := chunk.Persist(ctx, w.store, job.OutputColumn); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}

		summary.add(chunk)
		log.Info().
			Int("chunk", i+1).
			Int("of", len(spans)).
			Str("span", span.String()).
			Int("fetched", chunk.fetched).
			Int("skipped", chunk.skipped).
			Msg("Chunk saved")
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}
