package engine

import (
	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/metrics"
)

// Report is the outcome of one invocation.
type Report struct {
	Job          string
	InvocationID string
	Result       domain.Result

	// Err is the cause of a non-executable result, nil when there was simply nothing to do
	Err error

	Cursor    uint64
	QueueSize int
	Scanned   int
	Pruned    int
}

func (r *Report) finish(res domain.Result, err error) *Report {
	r.Result = res
	r.Err = err
	metrics.InvocationsTotal.WithLabelValues(r.Job, string(res.Outcome)).Inc()
	return r
}
