package batch

import (
	"context"
	"fmt"
	"strings"

	"playcount_snapshot/internal/metric"

	"github.com/rs/zerolog/log"
)

// Span is a half-open range of zero-based sheet row indexes.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

// String renders the span with 1-based row numbers as shown in the sheet.
func (s Span) String() string {
	return fmt.Sprintf("rows %d-%d", s.Start+1, s.End)
}

// Plan splits [first, total) into contiguous spans of at most size rows.
func Plan(first, total, size int) []Span {
	if size <= 0 || total <= first {
		return nil
	}
	spans := make([]Span, 0, (total-first+size-1)/size)
	for start := first; start < total; start += size {
		spans = append(spans, Span{Start: start, End: min(start+size, total)})
	}
	return spans
}

type State int

const (
	StatePending State = iota
	StateLoaded
	StateComputed
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateComputed:
		return "computed"
	case StatePersisted:
		return "persisted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ChunkData is what a chunk reads from the store. Both slices are indexed by
// offset within the span and padded to its length.
type ChunkData struct {
	Sources  []string
	Previous []string
}

// ChunkError reports a store failure together with the last state the chunk
// reached. Nothing in a chunk below StatePersisted has been written.
type ChunkError struct {
	Span  Span
	State State
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s failed in state %s: %v", e.Span, e.State, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Chunk walks one span through Loaded, Computed and Persisted.
type Chunk struct {
	Span   Span
	State  State
	Values []int64

	data        ChunkData
	fetched     int
	skipped     int
	zeroed      int
	overwritten int
}

func NewChunk(span Span) *Chunk {
	return &Chunk{Span: span}
}

func (c *Chunk) Load(ctx context.Context, store Store, sourceColumn, outputColumn int) error {
	if c.State != StatePending {
		return fmt.Errorf("load called in state %s", c.State)
	}
	data, err := store.LoadChunk(ctx, c.Span, sourceColumn, outputColumn)
	if err != nil {
		return &ChunkError{Span: c.Span, State: c.State, Err: fmt.Errorf("failed to load: %w", err)}
	}
	c.data = ChunkData{
		Sources:  pad(data.Sources, c.Span.Len()),
		Previous: pad(data.Previous, c.Span.Len()),
	}
	for _, prev := range c.data.Previous {
		if strings.TrimSpace(prev) != "" {
			c.overwritten++
		}
	}
	c.State = StateLoaded
	return nil
}

func (c *Chunk) Compute(ctx context.Context, fetcher Fetcher) error {
	if c.State != StateLoaded {
		return fmt.Errorf("compute called in state %s", c.State)
	}
	c.Values = make([]int64, c.Span.Len())
	for i, raw := range c.data.Sources {
		row := c.Span.Start + i + 1
		url := strings.TrimSpace(raw)

		if !metric.Eligible(url) {
			c.skipped++
			log.Debug().Int("row", row).Str("url", url).Msg("Skipping row without a TikTok URL")
			continue
		}

		count := fetcher.Fetch(ctx, url)
		c.fetched++
		if count == 0 {
			c.zeroed++
		}
		c.Values[i] = count
		log.Info().Int("row", row).Str("url", url).Int64("play_count", count).Msg("Row processed")
	}
	c.State = StateComputed
	return nil
}

func (c *Chunk) Persist(ctx context.Context, store Store, outputColumn int) error {
	if c.State != StateComputed {
		return fmt.Errorf("persist called in state %s", c.State)
	}
	if err := store.SaveChunk(ctx, c.Span, outputColumn, c.Values); err != nil {
		return &ChunkError{Span: c.Span, State: c.State, Err: fmt.Errorf("failed to save: %w", err)}
	}
	c.State = StatePersisted
	return nil
}

func pad(values []string, n int) []string {
	out := make([]string, n)
	copy(out, values)
	return out
}
