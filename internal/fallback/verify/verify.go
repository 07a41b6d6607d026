// Package verify filters the head of the queue against on-chain state with
// one aggregated call per pass.
package verify

import (
	"context"
	"fmt"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Aggregator executes read calls in one round trip, preserving order.
type Aggregator interface {
	Aggregate(ctx context.Context, calls []domain.Call) ([][]byte, error)
}

// Check is one verification pass.
type Check struct {
	// Name labels the pass in errors, logs and metrics ("liveness", "integrity")
	Name string

	// Call builds the read call for a request
	Call func(req domain.PendingRequest) (domain.Call, error)

	// Keep interprets the answer; false removes the request
	Keep func(req domain.PendingRequest, answer []byte) (bool, error)
}

// PassError reports a failed pass. No removal of the pass is applied.
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s check failed: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// Outcome is the queue after verification.
type Outcome struct {
	// Queue is the surviving prefix followed by the unverified remainder
	Queue domain.Queue

	// Verified is the surviving prefix: requests that passed every check
	Verified domain.Queue

	// Removed lists the requests each pass removed, by pass name
	Removed map[string][]domain.PendingRequest
}

type Verifier struct {
	agg       Aggregator
	batchSize int
}

func NewVerifier(agg Aggregator, batchSize int) *Verifier {
	return &Verifier{agg: agg, batchSize: batchSize}
}

// Verify runs the checks in order over queue[:batchSize]. Each pass sees the
// survivors of the previous one; later entries are kept unverified. If any
// pass fails, the input queue is returned unchanged and nothing is verified.
func (v *Verifier) Verify(ctx context.Context, q domain.Queue, checks ...Check) (Outcome, error) {
	prefix := q.Prefix(v.batchSize)
	rest := q[len(prefix):]

	survivors := prefix
	removed := make(map[string][]domain.PendingRequest)
	for _, check := range checks {
		kept, dropped, err := v.pass(ctx, survivors, check)
		if err != nil {
			return Outcome{Queue: q, Removed: map[string][]domain.PendingRequest{}}, err
		}
		survivors = kept
		if len(dropped) > 0 {
			removed[check.Name] = dropped
		}
	}

	out := make(domain.Queue, 0, len(survivors)+len(rest))
	out = append(out, survivors...)
	out = append(out, rest...)

	return Outcome{Queue: out, Verified: survivors, Removed: removed}, nil
}

func (v *Verifier) pass(ctx context.Context, batch domain.Queue, check Check) (domain.Queue, []domain.PendingRequest, error) {
	if len(batch) == 0 {
		return batch, nil, nil
	}

	calls := make([]domain.Call, len(batch))
	for i, req := range batch {
		call, err := check.Call(req)
		if err != nil {
			return nil, nil, &PassError{Pass: check.Name, Err: fmt.Errorf("request %s: %w", req.Key, err)}
		}
		calls[i] = call
	}

	answers, err := v.agg.Aggregate(ctx, calls)
	if err != nil {
		return nil, nil, &PassError{Pass: check.Name, Err: err}
	}
	if len(answers) != len(calls) {
		return nil, nil, &PassError{
			Pass: check.Name,
			Err:  fmt.Errorf("got %d answers for %d calls", len(answers), len(calls)),
		}
	}

	kept := make(domain.Queue, 0, len(batch))
	var dropped []domain.PendingRequest
	for i, req := range batch {
		keep, err := check.Keep(req, answers[i])
		if err != nil {
			return nil, nil, &PassError{Pass: check.Name, Err: fmt.Errorf("request %s: %w", req.Key, err)}
		}
		if keep {
			kept = append(kept, req)
		} else {
			dropped = append(dropped, req)
		}
	}

	return kept, dropped, nil
}
