// Package engine runs one fallback invocation of a job.
//
// # Invocation
//
// Each Run does bounded work and leaves consistent state for the next one:
//   - load the cursor and the queue
//   - scan at most MaxChunksPerInvocation chunks up to head - ConfirmationDelay
//   - decode and merge new requests, deduplicated by key
//   - verify liveness then integrity of queue[:MaxBatchSize]
//   - persist the queue, then the cursor
//   - gate by age or job status, select, re-locate, build, simulate
//
// Run never broadcasts. An executable Report carries only payloads whose dry
// run succeeded during the same invocation.
//
// # Concurrency
//
// The engine holds no locks. At most one Run per job may execute at a time;
// the scheduler guarantees it.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/keeper/internal/core/cursor"
	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/fallback/scan"
	"github.com/vietddude/keeper/internal/fallback/selection"
	"github.com/vietddude/keeper/internal/fallback/verify"
	"github.com/vietddude/keeper/internal/metrics"
)

// Config holds the per-job work bounds.
type Config struct {
	MaxRangeChunkWidth     uint64
	MaxChunksPerInvocation int
	MaxBatchSize           int
	AgeThreshold           time.Duration
	ConfirmationDelay      uint64

	// FromPosition seeds the cursor when nothing is persisted
	FromPosition *uint64
}

func (c Config) Validate() error {
	if c.MaxRangeChunkWidth == 0 {
		return errors.New("max_range_chunk_width must be positive")
	}
	if c.MaxChunksPerInvocation <= 0 {
		return errors.New("max_chunks_per_invocation must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return errors.New("max_batch_size must be positive")
	}
	if c.AgeThreshold < 0 {
		return errors.New("age_threshold must not be negative")
	}
	return nil
}

type Engine struct {
	cfg      Config
	job      Job
	state    *cursor.Manager
	scanner  *scan.Scanner
	verifier *verify.Verifier
	selector *selection.Selector
	sim      Simulator
	now      func() time.Time
	log      *slog.Logger
}

func New(
	cfg Config,
	job Job,
	state *cursor.Manager,
	agg verify.Aggregator,
	selector *selection.Selector,
	sim Simulator,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name(), err)
	}

	log := slog.Default().With("component", "engine", "job", job.Name())
	return &Engine{
		cfg:      cfg,
		job:      job,
		state:    state,
		scanner:  scan.NewScanner(job.Source(), cfg.MaxRangeChunkWidth, cfg.MaxChunksPerInvocation, log),
		verifier: verify.NewVerifier(agg, cfg.MaxBatchSize),
		selector: selector,
		sim:      sim,
		now:      time.Now,
		log:      log,
	}, nil
}

// Name returns the job name.
func (e *Engine) Name() string {
	return e.job.Name()
}

// Run executes one invocation.
func (e *Engine) Run(ctx context.Context) *Report {
	rep := &Report{Job: e.job.Name(), InvocationID: uuid.NewString()}
	log := e.log.With("invocation", rep.InvocationID)

	st, err := e.state.Load(ctx, e.job.Name())
	if err != nil {
		log.Error("Failed to load state", "error", err)
		return rep.finish(domain.Failed("Failed to load state: %v", err), &StoreFailure{Err: err})
	}

	head, err := e.job.Head(ctx)
	if err != nil {
		log.Error("Failed to get head", "error", err)
		return rep.finish(domain.Failed("Failed to get head: %v", err), err)
	}
	var safeHead uint64
	if head > e.cfg.ConfirmationDelay {
		safeHead = head - e.cfg.ConfirmationDelay
	}

	if !st.Cursor.Initialized {
		start, err := e.initialPosition(ctx, safeHead)
		if err != nil {
			log.Error("Failed to get initial position", "error", err)
			return rep.finish(domain.Failed("Failed to get initial position: %v", err), err)
		}
		if start > safeHead {
			log.Warn("Initial position beyond safe head, clamping", "position", start, "safe_head", safeHead)
			start = safeHead
		}
		if err := st.Advance(start); err != nil {
			log.Error("Failed to start cursor", "error", err)
			return rep.finish(domain.Failed("%v", err), &StoreFailure{Err: err})
		}
		log.Info("Starting new cursor", "position", start)
	}

	// Scan
	scanned, scanErr := e.scanner.Scan(ctx, st.Cursor.LastScanned, safeHead)
	metrics.ScanChunksTotal.WithLabelValues(e.job.Name()).Add(float64(scanned.Chunks))
	metrics.ScannedRecordsTotal.WithLabelValues(e.job.Name()).Add(float64(len(scanned.Events)))

	decoded := e.decode(log, scanned.Events)
	st.Queue = st.Queue.Merge(decoded)
	if err := st.Advance(scanned.Cursor); err != nil {
		log.Error("Scanner moved cursor backwards", "error", err)
		return rep.finish(domain.Failed("%v", err), &StoreFailure{Err: err})
	}
	rep.Scanned = len(decoded)
	rep.Cursor = st.Cursor.LastScanned

	if scanErr != nil {
		log.Warn("Scan stopped early", "error", scanErr, "cursor", st.Cursor.LastScanned)
		if res := e.commit(ctx, log, st, rep); res != nil {
			return res
		}
		return rep.finish(domain.Failed("%v.", scanErr), &ScanFailure{Err: scanErr})
	}

	// Verify
	checks := []verify.Check{e.job.Liveness()}
	if integrity := e.job.Integrity(); integrity != nil {
		checks = append(checks, *integrity)
	}
	verified, verifyErr := e.verifier.Verify(ctx, st.Queue, checks...)
	if verifyErr != nil {
		log.Warn("Verification failed", "error", verifyErr)
		if res := e.commit(ctx, log, st, rep); res != nil {
			return res
		}
		return rep.finish(
			domain.Failed("Failed to verify requests: %v", verifyErr),
			&VerificationFailure{Err: verifyErr},
		)
	}
	for pass, removed := range verified.Removed {
		metrics.PrunedTotal.WithLabelValues(e.job.Name(), pass).Add(float64(len(removed)))
		rep.Pruned += len(removed)
		log.Debug("Removed requests", "pass", pass, "count", len(removed))
	}
	st.Queue = verified.Queue

	if res := e.commit(ctx, log, st, rep); res != nil {
		return res
	}
	log.Info("Pending requests", "count", len(st.Queue), "cursor", st.Cursor.LastScanned)

	// Gate
	eligible, err := e.gate(ctx, verified.Verified)
	if err != nil {
		log.Warn("Status check failed", "error", err)
		return rep.finish(
			domain.Failed("Failed to check request status: %v", err),
			&VerificationFailure{Err: err},
		)
	}
	log.Info("Overdue pending requests", "count", len(eligible))
	if len(eligible) == 0 {
		return rep.finish(domain.NothingToDo("%s", e.job.NothingToDo(st.Cursor.LastScanned)), nil)
	}

	candidates := e.selector.Candidates(eligible)
	if e.selector.Mode() == selection.ModeExhaustive {
		return e.runExhaustive(ctx, log, st, rep, candidates)
	}
	return e.runSingle(ctx, log, st, rep, candidates)
}

// gate returns the verified requests past the age threshold, plus the younger
// ones the job's status check reports as due.
func (e *Engine) gate(ctx context.Context, verified domain.Queue) (domain.Queue, error) {
	aged, young := selection.Split(verified, e.now(), e.cfg.AgeThreshold)
	sg, ok := e.job.(StatusGate)
	if !ok || len(young) == 0 {
		return aged, nil
	}
	status := sg.Status()
	if status == nil {
		return aged, nil
	}

	due, err := e.verifier.Verify(ctx, young, *status)
	if err != nil {
		return nil, err
	}
	return selection.Union(verified, aged, due.Verified), nil
}

func (e *Engine) initialPosition(ctx context.Context, safeHead uint64) (uint64, error) {
	if e.cfg.FromPosition != nil {
		return *e.cfg.FromPosition, nil
	}
	return e.job.InitialPosition(ctx, safeHead)
}

func (e *Engine) decode(log *slog.Logger, events []domain.RawEvent) []domain.PendingRequest {
	out := make([]domain.PendingRequest, 0, len(events))
	for _, ev := range events {
		req, err := e.job.Decode(ev)
		if err != nil {
			derr := &DecodeFailure{Locator: ev.Locator(), Err: err}
			log.Warn("Skipping malformed record", "error", derr, "tx", ev.TxHash.Hex())
			metrics.DecodeFailuresTotal.WithLabelValues(e.job.Name()).Inc()
			continue
		}
		out = append(out, req)
	}
	return out
}

// commit persists queue then cursor. A non-nil return ends the invocation.
func (e *Engine) commit(ctx context.Context, log *slog.Logger, st *cursor.State, rep *Report) *Report {
	rep.QueueSize = len(st.Queue)
	if err := e.state.Commit(ctx, st); err != nil {
		log.Error("Failed to persist state", "error", err)
		return rep.finish(domain.Failed("Failed to persist state: %v", err), &StoreFailure{Err: err})
	}
	return nil
}

// prune removes a request and persists the queue. The cursor is already committed.
func (e *Engine) prune(ctx context.Context, log *slog.Logger, st *cursor.State, rep *Report, req domain.PendingRequest, reason string) error {
	st.Queue = st.Queue.Without(req.Key)
	rep.QueueSize = len(st.Queue)
	rep.Pruned++
	metrics.PrunedTotal.WithLabelValues(e.job.Name(), reason).Inc()
	log.Info("Pruned request", "key", req.Key, "reason", reason)

	if err := e.state.SaveQueue(ctx, e.job.Name(), st.Queue); err != nil {
		log.Error("Failed to persist queue", "error", err)
		return err
	}
	return nil
}

func (e *Engine) runSingle(
	ctx context.Context,
	log *slog.Logger,
	st *cursor.State,
	rep *Report,
	candidates []domain.PendingRequest,
) *Report {
	var last error

	for _, req := range candidates {
		log := log.With("key", req.Key, "round", req.Round)

		found, err := e.job.Locate(ctx, req)
		if err != nil {
			log.Error("Failed to re-check request", "error", err)
			return rep.finish(domain.Failed("Failed to re-check request %s: %v", req.Key, err), err)
		}
		if !found {
			if err := e.prune(ctx, log, st, rep, req, "stale"); err != nil {
				return rep.finish(domain.Failed("Failed to persist queue: %v", err), &StoreFailure{Err: err})
			}
			raw, _ := json.Marshal(req)
			return rep.finish(domain.NothingToDo("Request no longer valid %s.", raw), &StaleReference{Request: req})
		}

		call, err := e.job.Build(ctx, req)
		if errors.Is(err, ErrNotReady) {
			log.Info("Request not ready", "error", err)
			last = &ResolutionPending{Request: req, Err: err}
			continue
		}
		if err != nil {
			log.Error("Failed to build payload", "error", err)
			return rep.finish(domain.Failed("Failed to build %s: %v", e.job.Action(), err), err)
		}

		if simErr := e.simulate(ctx, req, call); simErr != nil {
			log.Warn("Simulation failed", "error", simErr.Err, "pruned", simErr.Pruned)
			if simErr.Pruned {
				if err := e.prune(ctx, log, st, rep, req, "revert"); err != nil {
					return rep.finish(domain.Failed("Failed to persist queue: %v", err), &StoreFailure{Err: err})
				}
			}
			last = simErr
			continue
		}

		log.Info("Request executable")
		return rep.finish(domain.Executable([]domain.Call{call}), nil)
	}

	return rep.finish(e.failureResult(last), last)
}

func (e *Engine) failureResult(err error) domain.Result {
	var pending *ResolutionPending
	var sim *SimulationFailure
	switch {
	case errors.As(err, &sim):
		return domain.NothingToDo("Failed to simulate %s: %v", e.job.Action(), sim.Err)
	case errors.As(err, &pending):
		return domain.NothingToDo("Request %s is not ready: %v", pending.Request.Key, pending.Err)
	default:
		return domain.NothingToDo("%s", e.job.NoneExecutable(0))
	}
}

func (e *Engine) runExhaustive(
	ctx context.Context,
	log *slog.Logger,
	st *cursor.State,
	rep *Report,
	candidates []domain.PendingRequest,
) *Report {
	var calls []domain.Call

	for _, req := range candidates {
		log := log.With("key", req.Key, "round", req.Round)

		found, err := e.job.Locate(ctx, req)
		if err != nil {
			log.Warn("Failed to re-check request", "error", err)
			continue
		}
		if !found {
			if err := e.prune(ctx, log, st, rep, req, "stale"); err != nil {
				return rep.finish(domain.Failed("Failed to persist queue: %v", err), &StoreFailure{Err: err})
			}
			continue
		}

		call, err := e.job.Build(ctx, req)
		if err != nil {
			log.Warn("Failed to build payload", "error", err)
			continue
		}

		if simErr := e.simulate(ctx, req, call); simErr != nil {
			log.Info("Simulation failed", "error", simErr.Err)
			if simErr.Pruned {
				if err := e.prune(ctx, log, st, rep, req, "revert"); err != nil {
					return rep.finish(domain.Failed("Failed to persist queue: %v", err), &StoreFailure{Err: err})
				}
			}
			continue
		}

		log.Info("Simulation passed")
		calls = append(calls, call)
	}

	if len(calls) == 0 {
		return rep.finish(domain.NothingToDo("%s", e.job.NoneExecutable(len(candidates))), nil)
	}
	return rep.finish(domain.Executable(calls), nil)
}
