// Package scan walks a position range in bounded chunks from a persisted cursor.
package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Source returns the records in an inclusive position range.
type Source interface {
	QueryRange(ctx context.Context, from, to uint64) ([]domain.RawEvent, error)
}

// Range is an inclusive position range.
type Range struct {
	From uint64
	To   uint64
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// ChunkError reports the chunk whose query failed.
type ChunkError struct {
	Range Range
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("Fail to getLogs %s: %v", e.Range, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Split returns the chunks covering (last, safeHead], at most budget of them.
// Each chunk spans at most width positions.
func Split(last, safeHead, width uint64, budget int) []Range {
	if width == 0 || budget <= 0 || last >= safeHead {
		return nil
	}

	var out []Range
	for last < safeHead && len(out) < budget {
		to := min(last+width, safeHead)
		out = append(out, Range{From: last + 1, To: to})
		last = to
	}
	return out
}

// Result is the outcome of one scan.
type Result struct {
	Events []domain.RawEvent

	// Cursor is the end of the last successfully scanned chunk
	Cursor uint64

	// Chunks counts successfully scanned chunks
	Chunks int
}

type Scanner struct {
	source Source
	width  uint64
	budget int
	log    *slog.Logger
}

func NewScanner(source Source, width uint64, budget int, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{source: source, width: width, budget: budget, log: log}
}

// Scan queries chunks after last up to safeHead. On a chunk failure it stops
// and returns what the earlier chunks produced together with a *ChunkError.
func (s *Scanner) Scan(ctx context.Context, last, safeHead uint64) (Result, error) {
	res := Result{Cursor: last}

	for _, r := range Split(last, safeHead, s.width, s.budget) {
		events, err := s.source.QueryRange(ctx, r.From, r.To)
		if err != nil {
			return res, &ChunkError{Range: r, Err: err}
		}

		s.log.Debug("Scanned range", "from", r.From, "to", r.To, "found", len(events))

		res.Events = append(res.Events, events...)
		res.Cursor = r.To
		res.Chunks++
	}

	return res, nil
}
