package engine

import (
	"context"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/fallback/scan"
	"github.com/vietddude/keeper/internal/fallback/verify"
)

// Job adapts one kind of outstanding request to the engine.
type Job interface {
	// Name keys the persisted state and labels logs and metrics
	Name() string

	// Head returns the latest position of the scanned source
	Head(ctx context.Context) (uint64, error)

	// InitialPosition is the cursor used when nothing is persisted yet
	InitialPosition(ctx context.Context, safeHead uint64) (uint64, error)

	// Source returns the records of a position range
	Source() scan.Source

	// Decode turns a record into a request
	Decode(ev domain.RawEvent) (domain.PendingRequest, error)

	// Liveness checks whether a request is still outstanding
	Liveness() verify.Check

	// Integrity checks the stored fingerprint. Nil skips the pass.
	Integrity() *verify.Check

	// Locate re-fetches the originating record and reports whether it still
	// matches the stored request
	Locate(ctx context.Context, req domain.PendingRequest) (bool, error)

	// Build resolves derived values and returns the payload. Errors wrapping
	// ErrNotReady keep the request queued for a later attempt.
	Build(ctx context.Context, req domain.PendingRequest) (domain.Call, error)

	// PruneOnRevert reports whether a simulation failure means the request
	// can never succeed
	PruneOnRevert(err error) bool

	// Action names the payload in messages (e.g. "fulfillRandomness")
	Action() string

	// NothingToDo is the message when no request is eligible
	NothingToDo(cursor uint64) string

	// NoneExecutable is the message when candidates existed but none passed
	NoneExecutable(candidates int) string
}

// StatusGate is implemented by jobs whose requests can become due before
// they age past the threshold.
type StatusGate interface {
	// Status reports through Keep that a request is due now. Nil disables it.
	Status() *verify.Check
}
