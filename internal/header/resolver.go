package header

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"playcount_snapshot/internal/datekey"

	"github.com/rs/zerolog/log"
)

// FirstDateColumn is the zero-based index of column E. Columns before it are
// never read or written by the resolver.
const FirstDateColumn = 4

var ErrNoFreeColumn = errors.New("no empty header cell from column E onward")

// Cell is one header cell as seen by the resolver.
type Cell struct {
	Raw     string
	Display string
	Set     bool // false for a cell with no value or an empty string
}

// Decision is the outcome of scanning a header row.
type Decision struct {
	Column   int
	Allocate bool   // true when Value has to be written into Column
	Value    string // header text to write when Allocate is set
}

// Store is the remote side of the header row.
type Store interface {
	LoadHeader(ctx context.Context) ([]Cell, error)
	WriteHeader(ctx context.Context, column int, value string) error
}

// Decide picks today's output column from an in-memory header row indexed by
// absolute column. It never looks left of FirstDateColumn.
func Decide(row []Cell, keys datekey.Keys) (Decision, error) {
	for col := FirstDateColumn; col < len(row); col++ {
		c := row[col]
		if keys.Matches(strings.TrimSpace(c.Raw)) || keys.Matches(strings.TrimSpace(c.Display)) {
			return Decision{Column: col}, nil
		}
	}

	for col := FirstDateColumn; col < len(row); col++ {
		if !row[col].Set {
			return Decision{Column: col, Allocate: true, Value: keys.Short}, nil
		}
	}

	return Decision{}, ErrNoFreeColumn
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the column for keys, claiming a new one when needed. The
// header cell is written only when a column is allocated.
func (r *Resolver) Resolve(ctx context.Context, keys datekey.Keys) (Decision, error) {
	log.Debug().Strs("keys", keys.All()).Msg("Resolving date column")

	row, err := r.store.LoadHeader(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load header row: %w", err)
	}

	decision, err := Decide(row, keys)
	if err != nil {
		log.Error().
			Int("columns", len(row)).
			Msg("No free header column; add columns after E")
		return Decision{}, err
	}

	if !decision.Allocate {
		log.Info().
			Int("column", decision.Column).
			Msg("Reusing existing date column")
		return decision, nil
	}

	if err := r.store.WriteHeader(ctx, decision.Column, decision.Value); err != nil {
		return Decision{}, fmt.Errorf("failed to write header cell: %w", err)
	}

	log.Info().
		Int("column", decision.Column).
		Str("header", decision.Value).
		Msg("Allocated new date column")
	return decision, nil
}
