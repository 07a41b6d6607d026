package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/keeper/internal/core/cursor"
	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/fallback/scan"
	"github.com/vietddude/keeper/internal/fallback/selection"
	"github.com/vietddude/keeper/internal/fallback/verify"
	"github.com/vietddude/keeper/internal/infra/storage/memory"
)

// =============================================================================
// Fakes
// =============================================================================

var target = common.HexToAddress("0x00000000000000000000000000000000000000f1")

type fakeSource struct {
	events []domain.RawEvent
	failOn uint64 // chunk containing this position fails
}

func (s *fakeSource) QueryRange(ctx context.Context, from, to uint64) ([]domain.RawEvent, error) {
	if s.failOn != 0 && s.failOn >= from && s.failOn <= to {
		return nil, errors.New("rpc unavailable")
	}
	var out []domain.RawEvent
	for _, ev := range s.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

// fakeJob encodes the request key in the event data and every call's data.
type fakeJob struct {
	head      uint64
	initial   uint64
	source    *fakeSource
	dead      map[string]bool
	onchain   map[string]common.Hash
	integrity bool
	missing   map[string]bool
	notReady  map[string]bool
	pruneAll  bool
	locateErr error

	statusGate bool
	due        map[string]bool
}

func newFakeJob(head uint64) *fakeJob {
	return &fakeJob{
		head:     head,
		source:   &fakeSource{},
		dead:     map[string]bool{},
		onchain:  map[string]common.Hash{},
		missing:  map[string]bool{},
		notReady: map[string]bool{},
		due:      map[string]bool{},
	}
}

func (j *fakeJob) Name() string                            { return "fake" }
func (j *fakeJob) Head(ctx context.Context) (uint64, error) { return j.head, nil }
func (j *fakeJob) Source() scan.Source                     { return j.source }
func (j *fakeJob) Action() string                          { return "fulfill" }

func (j *fakeJob) InitialPosition(ctx context.Context, safeHead uint64) (uint64, error) {
	return j.initial, nil
}

func (j *fakeJob) Decode(ev domain.RawEvent) (domain.PendingRequest, error) {
	if len(ev.Data) == 0 {
		return domain.PendingRequest{}, errors.New("empty data")
	}
	return domain.PendingRequest{
		Locator:     ev.Locator(),
		CreatedAt:   ev.ObservedAt,
		Key:         string(ev.Data),
		Round:       ev.BlockNumber,
		Fingerprint: fingerprint(string(ev.Data)),
	}, nil
}

func fingerprint(key string) common.Hash {
	return common.BytesToHash([]byte("fp-" + key))
}

func keyCall(req domain.PendingRequest) (domain.Call, error) {
	return domain.Call{To: target, Data: []byte(req.Key)}, nil
}

func (j *fakeJob) Liveness() verify.Check {
	return verify.Check{
		Name: "liveness",
		Call: keyCall,
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			return !j.dead[string(answer)], nil
		},
	}
}

func (j *fakeJob) Integrity() *verify.Check {
	if !j.integrity {
		return nil
	}
	return &verify.Check{
		Name: "integrity",
		Call: keyCall,
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			want, ok := j.onchain[string(answer)]
			if !ok {
				want = fingerprint(string(answer))
			}
			return want == req.Fingerprint, nil
		},
	}
}

func (j *fakeJob) Locate(ctx context.Context, req domain.PendingRequest) (bool, error) {
	if j.locateErr != nil {
		return false, j.locateErr
	}
	return !j.missing[req.Key], nil
}

func (j *fakeJob) Build(ctx context.Context, req domain.PendingRequest) (domain.Call, error) {
	if j.notReady[req.Key] {
		return domain.Call{}, errors.Join(ErrNotReady, errors.New("round not published"))
	}
	return keyCall(req)
}

// Status marks keys in j.due as due when j.statusGate is set.
func (j *fakeJob) Status() *verify.Check {
	if !j.statusGate {
		return nil
	}
	return &verify.Check{
		Name: "status",
		Call: keyCall,
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			return j.due[string(answer)], nil
		},
	}
}

func (j *fakeJob) PruneOnRevert(err error) bool { return j.pruneAll }
func (j *fakeJob) NothingToDo(cursor uint64) string {
	return "nothing before " + strconv.FormatUint(cursor, 10)
}

func (j *fakeJob) NoneExecutable(candidates int) string {
	return strconv.Itoa(candidates) + " candidates, none passed"
}

// echoAggregator answers every call with its own data, so checks see the key.
type echoAggregator struct {
	err   error
	calls int
}

func (a *echoAggregator) Aggregate(ctx context.Context, calls []domain.Call) ([][]byte, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	out := make([][]byte, len(calls))
	for i, c := range calls {
		out[i] = c.Data
	}
	return out, nil
}

type fakeSimulator struct {
	revert    map[string]bool
	simulated []string
}

func (s *fakeSimulator) Simulate(ctx context.Context, call domain.Call) error {
	key := string(call.Data)
	s.simulated = append(s.simulated, key)
	if s.revert[key] {
		return errors.New("execution reverted: nope")
	}
	return nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	job   *fakeJob
	agg   *echoAggregator
	sim   *fakeSimulator
	store *memory.Store
	state *cursor.Manager
	now   time.Time
}

func newHarness(head uint64) *harness {
	store := memory.NewStore()
	return &harness{
		job:   newFakeJob(head),
		agg:   &echoAggregator{},
		sim:   &fakeSimulator{revert: map[string]bool{}},
		store: store,
		state: cursor.NewManager(store),
		now:   time.Unix(1_700_000_000, 0),
	}
}

func defaultConfig() Config {
	return Config{
		MaxRangeChunkWidth:     100,
		MaxChunksPerInvocation: 2,
		MaxBatchSize:           10,
		AgeThreshold:           60 * time.Second,
	}
}

func (h *harness) engine(t *testing.T, cfg Config, sel *selection.Selector) *Engine {
	t.Helper()
	if sel == nil {
		sel = selection.NewRandom(rand.New(rand.NewPCG(1, 2)), cfg.MaxBatchSize, 1)
	}
	e, err := New(cfg, h.job, h.state, h.agg, sel, h.sim)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	e.now = func() time.Time { return h.now }
	return e
}

// seed persists a cursor and queue as if an earlier invocation had run.
func (h *harness) seed(t *testing.T, position uint64, q domain.Queue) {
	t.Helper()
	st, _ := h.state.Load(context.Background(), "fake")
	_ = st.Advance(position)
	st.Queue = q
	if err := h.state.Commit(context.Background(), st); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func (h *harness) load(t *testing.T) *cursor.State {
	t.Helper()
	st, err := h.state.Load(context.Background(), "fake")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return st
}

func (h *harness) request(key string, age time.Duration) domain.PendingRequest {
	return domain.PendingRequest{
		Key:         key,
		CreatedAt:   h.now.Add(-age).Unix(),
		Fingerprint: fingerprint(key),
	}
}

func (h *harness) event(block uint64, key string) domain.RawEvent {
	return domain.RawEvent{
		BlockNumber: block,
		Data:        []byte(key),
		ObservedAt:  h.now.Add(-time.Hour).Unix(),
	}
}

func queueKeys(q domain.Queue) []string {
	out := make([]string, len(q))
	for i, r := range q {
		out[i] = r.Key
	}
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_ScanStopsAtChunkBudget(t *testing.T) {
	h := newHarness(1250)
	h.seed(t, 1000, nil)
	h.job.source.events = []domain.RawEvent{h.event(1050, "a"), h.event(1220, "b")}

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	st := h.load(t)
	if st.Cursor.LastScanned != 1200 {
		t.Errorf("expected cursor 1200, got %d", st.Cursor.LastScanned)
	}
	if keys := queueKeys(st.Queue); len(keys) != 1 || keys[0] != "a" {
		t.Errorf("expected queue [a], got %v", keys)
	}
	if !rep.Result.Executable {
		t.Errorf("expected a executable, got %+v", rep.Result)
	}
}

func TestRun_ConfirmationDelayBoundsScan(t *testing.T) {
	h := newHarness(1250)
	h.seed(t, 1000, nil)
	cfg := defaultConfig()
	cfg.ConfirmationDelay = 200
	cfg.MaxChunksPerInvocation = 10

	h.engine(t, cfg, nil).Run(context.Background())

	if got := h.load(t).Cursor.LastScanned; got != 1050 {
		t.Errorf("expected cursor at safe head 1050, got %d", got)
	}
}

func TestRun_InitialPosition(t *testing.T) {
	h := newHarness(1250)
	h.job.initial = 1240

	h.engine(t, defaultConfig(), nil).Run(context.Background())
	if got := h.load(t).Cursor.LastScanned; got != 1250 {
		t.Errorf("expected cursor 1250, got %d", got)
	}

	h2 := newHarness(1250)
	from := uint64(900)
	cfg := defaultConfig()
	cfg.FromPosition = &from
	h2.engine(t, cfg, nil).Run(context.Background())
	if got := h2.load(t).Cursor.LastScanned; got != 1100 {
		t.Errorf("expected cursor 1100 from configured start, got %d", got)
	}
}

func TestRun_InitialPositionClampedToSafeHead(t *testing.T) {
	h := newHarness(1250)
	from := uint64(5000)
	cfg := defaultConfig()
	cfg.ConfirmationDelay = 20
	cfg.FromPosition = &from

	rep := h.engine(t, cfg, nil).Run(context.Background())

	if got := h.load(t).Cursor.LastScanned; got != 1230 {
		t.Errorf("expected cursor clamped to safe head 1230, got %d", got)
	}
	if rep.Result.Message != "nothing before 1230" {
		t.Errorf("unexpected result %+v", rep.Result)
	}

	// The same bound applies to a job's own initial position.
	h2 := newHarness(1250)
	h2.job.initial = 9000
	cfg.FromPosition = nil
	h2.engine(t, cfg, nil).Run(context.Background())
	if got := h2.load(t).Cursor.LastScanned; got != 1230 {
		t.Errorf("expected cursor 1230, got %d", got)
	}
}

func TestRun_ScanFailureCommitsPartialProgress(t *testing.T) {
	h := newHarness(1500)
	h.seed(t, 1000, nil)
	h.job.source.events = []domain.RawEvent{h.event(1050, "a"), h.event(1150, "b")}
	h.job.source.failOn = 1150

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	var scanErr *ScanFailure
	if !errors.As(rep.Err, &scanErr) {
		t.Fatalf("expected ScanFailure, got %v", rep.Err)
	}
	if rep.Result.Executable || rep.Result.Outcome != domain.OutcomeFailed {
		t.Errorf("expected failed result, got %+v", rep.Result)
	}
	if rep.Result.Message != "Fail to getLogs 1101-1200: rpc unavailable." {
		t.Errorf("unexpected message %q", rep.Result.Message)
	}

	st := h.load(t)
	if st.Cursor.LastScanned != 1100 {
		t.Errorf("expected cursor 1100, got %d", st.Cursor.LastScanned)
	}
	if keys := queueKeys(st.Queue); len(keys) != 1 || keys[0] != "a" {
		t.Errorf("expected first chunk records committed, got %v", keys)
	}
	if h.agg.calls != 0 {
		t.Error("verification must not run after a scan failure")
	}
}

func TestRun_DecodeFailureIsSkipped(t *testing.T) {
	h := newHarness(1100)
	h.seed(t, 1000, nil)
	h.job.source.events = []domain.RawEvent{h.event(1010, ""), h.event(1020, "ok")}

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	if rep.Err != nil || !rep.Result.Executable {
		t.Fatalf("expected executable result, got %+v / %v", rep.Result, rep.Err)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 1 || keys[0] != "ok" {
		t.Errorf("expected [ok], got %v", keys)
	}
}

func TestRun_VerificationFailureKeepsQueue(t *testing.T) {
	h := newHarness(1100)
	h.seed(t, 1000, domain.Queue{h.request("old", time.Hour)})
	h.job.source.events = []domain.RawEvent{h.event(1050, "new")}
	h.job.dead["old"] = true
	h.agg.err = errors.New("multicall reverted")

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	var verr *VerificationFailure
	if !errors.As(rep.Err, &verr) {
		t.Fatalf("expected VerificationFailure, got %v", rep.Err)
	}
	st := h.load(t)
	if keys := queueKeys(st.Queue); len(keys) != 2 {
		t.Errorf("expected old and new retained, got %v", keys)
	}
	if st.Cursor.LastScanned != 1100 {
		t.Errorf("expected scan progress committed (1100), got %d", st.Cursor.LastScanned)
	}
	if len(h.sim.simulated) != 0 {
		t.Error("nothing may be simulated after a verification failure")
	}
}

func TestRun_VerificationRemovesDeadAndMismatched(t *testing.T) {
	h := newHarness(1000)
	h.job.integrity = true
	h.seed(t, 1000, domain.Queue{
		h.request("dead", time.Hour),
		h.request("forged", time.Hour),
		h.request("fresh", time.Second),
	})
	h.job.dead["dead"] = true
	h.job.onchain["forged"] = common.HexToHash("0xbad")

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	if keys := queueKeys(h.load(t).Queue); len(keys) != 1 || keys[0] != "fresh" {
		t.Errorf("expected [fresh], got %v", keys)
	}
	if rep.Pruned != 2 {
		t.Errorf("expected 2 pruned, got %d", rep.Pruned)
	}
	if rep.Result.Outcome != domain.OutcomeNothingToDo || rep.Result.Message != "nothing before 1000" {
		t.Errorf("expected nothing to do, got %+v", rep.Result)
	}
}

func TestRun_BatchBoundsVerificationAndSelection(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{
		h.request("a", time.Hour),
		h.request("b", time.Hour),
		h.request("c", time.Hour),
	})
	h.job.dead["a"] = true
	h.job.dead["c"] = true
	cfg := defaultConfig()
	cfg.MaxBatchSize = 2
	sel := selection.NewExhaustive(2)

	rep := h.engine(t, cfg, sel).Run(context.Background())

	// c is beyond the verified prefix [a b]: it stays queued but is not
	// attempted even though removing a shifts it into the first two slots.
	st := h.load(t)
	if keys := queueKeys(st.Queue); len(keys) != 2 || keys[0] != "b" || keys[1] != "c" {
		t.Errorf("expected [b c], got %v", keys)
	}
	if len(rep.Result.Payloads) != 1 || string(rep.Result.Payloads[0].Data) != "b" {
		t.Errorf("expected only b attempted, got %+v", rep.Result)
	}
}

func TestRun_AgeGate(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{
		h.request("30s", 30*time.Second),
		h.request("90s", 90*time.Second),
		h.request("10s", 10*time.Second),
	})

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	if !rep.Result.Executable {
		t.Fatalf("expected executable, got %+v", rep.Result)
	}
	if got := string(rep.Result.Payloads[0].Data); got != "90s" {
		t.Errorf("expected only the 90s request to be eligible, got %s", got)
	}
	if len(h.sim.simulated) != 1 || h.sim.simulated[0] != "90s" {
		t.Errorf("expected exactly one simulation of 90s, got %v", h.sim.simulated)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 3 {
		t.Errorf("verified queue must be persisted whole, got %v", keys)
	}
}

func TestRun_StatusGate(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{
		h.request("young", 10*time.Second),
		h.request("funded", 5*time.Second),
		h.request("old", 90*time.Second),
	})
	h.job.statusGate = true
	h.job.due["funded"] = true

	rep := h.engine(t, defaultConfig(), selection.NewExhaustive(10)).Run(context.Background())

	if !rep.Result.Executable || len(rep.Result.Payloads) != 2 {
		t.Fatalf("expected funded and old executable, got %+v", rep.Result)
	}
	if got := string(rep.Result.Payloads[0].Data); got != "funded" {
		t.Errorf("expected queue order kept, got %s first", got)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 3 {
		t.Errorf("status gate must not remove requests, got %v", keys)
	}

	// Without the gate only the aged request is due.
	h.job.statusGate = false
	rep = h.engine(t, defaultConfig(), selection.NewExhaustive(10)).Run(context.Background())
	if len(rep.Result.Payloads) != 1 || string(rep.Result.Payloads[0].Data) != "old" {
		t.Errorf("expected only old, got %+v", rep.Result)
	}
}

func TestRun_StatusGateFailure(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("young", 10*time.Second)})
	h.job.statusGate = true

	e := h.engine(t, defaultConfig(), nil)
	e.verifier = verify.NewVerifier(&failSecondAggregator{}, 10)
	rep := e.Run(context.Background())

	var verr *VerificationFailure
	if !errors.As(rep.Err, &verr) {
		t.Fatalf("expected VerificationFailure, got %v", rep.Err)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 1 {
		t.Errorf("expected request retained, got %v", keys)
	}
	if len(h.sim.simulated) != 0 {
		t.Error("nothing may be simulated after a failed status check")
	}
}

// failSecondAggregator echoes the first batch and fails every later one.
type failSecondAggregator struct{ calls int }

func (a *failSecondAggregator) Aggregate(ctx context.Context, calls []domain.Call) ([][]byte, error) {
	a.calls++
	if a.calls > 1 {
		return nil, errors.New("multicall reverted")
	}
	out := make([][]byte, len(calls))
	for i, c := range calls {
		out[i] = c.Data
	}
	return out, nil
}

func TestRun_StaleReferenceIsPruned(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("gone", time.Hour), h.request("young", time.Second)})
	h.job.missing["gone"] = true

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	var stale *StaleReference
	if !errors.As(rep.Err, &stale) || stale.Request.Key != "gone" {
		t.Fatalf("expected StaleReference for gone, got %v", rep.Err)
	}
	if rep.Result.Executable || !strings.HasPrefix(rep.Result.Message, "Request no longer valid ") {
		t.Errorf("unexpected result %+v", rep.Result)
	}
	if !strings.Contains(rep.Result.Message, `"r":"gone"`) {
		t.Errorf("expected the request json in message, got %q", rep.Result.Message)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 1 || keys[0] != "young" {
		t.Errorf("expected [young], got %v", keys)
	}
	if len(h.sim.simulated) != 0 {
		t.Error("a stale request must not be simulated")
	}
}

func TestRun_SimulationFailureRetainsRequest(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("a", time.Hour)})
	h.sim.revert["a"] = true

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	var simErr *SimulationFailure
	if !errors.As(rep.Err, &simErr) || simErr.Pruned {
		t.Fatalf("expected retained SimulationFailure, got %v", rep.Err)
	}
	if rep.Result.Executable {
		t.Error("a failed simulation must never be executable")
	}
	if rep.Result.Message != "Failed to simulate fulfill: execution reverted: nope" {
		t.Errorf("unexpected message %q", rep.Result.Message)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 1 {
		t.Errorf("expected request retained, got %v", keys)
	}
}

func TestRun_SimulationFailurePrunedByJob(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("a", time.Hour)})
	h.sim.revert["a"] = true
	h.job.pruneAll = true

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	var simErr *SimulationFailure
	if !errors.As(rep.Err, &simErr) || !simErr.Pruned {
		t.Fatalf("expected pruned SimulationFailure, got %v", rep.Err)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 0 {
		t.Errorf("expected queue emptied, got %v", keys)
	}
}

func TestRun_ResolutionPendingFallsBack(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("a", time.Hour), h.request("b", time.Hour)})
	h.job.notReady["a"] = true
	h.job.notReady["b"] = true

	sel := selection.NewRandom(rand.New(rand.NewPCG(5, 6)), 10, 2)
	rep := h.engine(t, defaultConfig(), sel).Run(context.Background())

	var pending *ResolutionPending
	if !errors.As(rep.Err, &pending) {
		t.Fatalf("expected ResolutionPending, got %v", rep.Err)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 2 {
		t.Errorf("expected both retained, got %v", keys)
	}

	// With one ready, the fallback attempt reaches it.
	delete(h.job.notReady, "b")
	rep = h.engine(t, defaultConfig(), selection.NewRandom(rand.New(rand.NewPCG(5, 6)), 10, 2)).Run(context.Background())
	if !rep.Result.Executable || string(rep.Result.Payloads[0].Data) != "b" {
		t.Errorf("expected b executable, got %+v", rep.Result)
	}
}

func TestRun_ExhaustiveCollectsPassing(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{
		h.request("1", time.Hour),
		h.request("2", time.Hour),
		h.request("3", time.Hour),
	})
	h.sim.revert["2"] = true
	h.job.missing["3"] = true

	rep := h.engine(t, defaultConfig(), selection.NewExhaustive(10)).Run(context.Background())

	if !rep.Result.Executable || len(rep.Result.Payloads) != 1 || string(rep.Result.Payloads[0].Data) != "1" {
		t.Fatalf("expected only 1 executable, got %+v", rep.Result)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 2 {
		t.Errorf("expected 3 pruned and 2 retained, got %v", keys)
	}
}

func TestRun_ExhaustiveNonePass(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("1", time.Hour), h.request("2", time.Hour)})
	h.sim.revert["1"] = true
	h.sim.revert["2"] = true

	rep := h.engine(t, defaultConfig(), selection.NewExhaustive(10)).Run(context.Background())

	if rep.Result.Executable || rep.Result.Message != "2 candidates, none passed" {
		t.Errorf("unexpected result %+v", rep.Result)
	}
}

func TestRun_LocateErrorDoesNotPrune(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1000, domain.Queue{h.request("a", time.Hour)})
	h.job.locateErr = errors.New("timeout")

	rep := h.engine(t, defaultConfig(), nil).Run(context.Background())

	if rep.Result.Outcome != domain.OutcomeFailed {
		t.Errorf("expected failed outcome, got %+v", rep.Result)
	}
	if keys := queueKeys(h.load(t).Queue); len(keys) != 1 {
		t.Errorf("expected request retained, got %v", keys)
	}
}

func TestRun_RescanDoesNotDuplicate(t *testing.T) {
	h := newHarness(1100)
	h.seed(t, 1000, nil)
	h.job.source.events = []domain.RawEvent{h.event(1050, "a"), h.event(1060, "b")}
	h.sim.revert["a"] = true
	h.sim.revert["b"] = true

	e := h.engine(t, defaultConfig(), nil)
	e.Run(context.Background())

	if err := h.state.Reset(context.Background(), "fake", 1000); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	e.Run(context.Background())

	if keys := queueKeys(h.load(t).Queue); len(keys) != 2 {
		t.Errorf("expected 2 unique requests after rescan, got %v", keys)
	}
}

func TestRun_CursorNeverRegresses(t *testing.T) {
	h := newHarness(1000)
	h.seed(t, 1200, nil)

	h.engine(t, defaultConfig(), nil).Run(context.Background())

	if got := h.load(t).Cursor.LastScanned; got != 1200 {
		t.Errorf("expected cursor to stay at 1200 while head lags, got %d", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxBatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero batch size")
	}
}
