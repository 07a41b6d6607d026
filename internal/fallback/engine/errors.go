package engine

import (
	"errors"
	"fmt"

	"github.com/vietddude/keeper/internal/core/domain"
)

// ErrNotReady marks a Build failure that may succeed in a later invocation,
// such as a randomness round that is not published yet. Jobs wrap it.
var ErrNotReady = errors.New("not ready")

// ScanFailure is a failed range query. The cursor stops before the failed chunk.
type ScanFailure struct {
	Err error
}

func (e *ScanFailure) Error() string { return e.Err.Error() }
func (e *ScanFailure) Unwrap() error { return e.Err }

// DecodeFailure is a record that could not be decoded. It is skipped.
type DecodeFailure struct {
	Locator domain.LogLocator
	Err     error
}

func (e *DecodeFailure) Error() string {
	return fmt.Sprintf("decode record at block %d index %d: %v", e.Locator.BlockNumber, e.Locator.LogIndex, e.Err)
}

func (e *DecodeFailure) Unwrap() error { return e.Err }

// VerificationFailure is a failed aggregated check. No removal is applied.
type VerificationFailure struct {
	Err error
}

func (e *VerificationFailure) Error() string { return e.Err.Error() }
func (e *VerificationFailure) Unwrap() error { return e.Err }

// ResolutionPending is a candidate whose derived value is not available yet.
type ResolutionPending struct {
	Request domain.PendingRequest
	Err     error
}

func (e *ResolutionPending) Error() string {
	return fmt.Sprintf("request %s not ready: %v", e.Request.Key, e.Err)
}

func (e *ResolutionPending) Unwrap() error { return e.Err }

// SimulationFailure is a payload whose dry run failed.
type SimulationFailure struct {
	Request domain.PendingRequest
	Pruned  bool
	Err     error
}

func (e *SimulationFailure) Error() string { return e.Err.Error() }
func (e *SimulationFailure) Unwrap() error { return e.Err }

// StaleReference is a candidate whose originating record no longer exists.
type StaleReference struct {
	Request domain.PendingRequest
}

func (e *StaleReference) Error() string {
	return fmt.Sprintf("request %s no longer exists at block %s", e.Request.Key, e.Request.Locator.BlockHash.Hex())
}

// StoreFailure is a failed read or write of persisted state.
type StoreFailure struct {
	Err error
}

func (e *StoreFailure) Error() string { return e.Err.Error() }
func (e *StoreFailure) Unwrap() error { return e.Err }
