package spin

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/chain/evm"
)

var (
	table    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	roulette = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

// fakeTable answers getCurrentRound and interval calls.
type fakeTable struct {
	current  int64
	interval int64
	calls    int
}

func (f *fakeTable) GetLatestBlock(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeTable) GetChainID() domain.ChainID                         { return domain.ChainIDEthereum }

func (f *fakeTable) CallContract(ctx context.Context, msg evm.CallMsg, block string) ([]byte, error) {
	f.calls++
	if msg.To != table {
		return nil, errors.New("unexpected target")
	}
	switch {
	case bytes.HasPrefix(msg.Data, tableABI.Methods["getCurrentRound"].ID):
		return tableABI.Methods["getCurrentRound"].Outputs.Pack(big.NewInt(f.current))
	case bytes.HasPrefix(msg.Data, tableABI.Methods["interval"].ID):
		return tableABI.Methods["interval"].Outputs.Pack(big.NewInt(f.interval))
	}
	return nil, errors.New("unexpected method")
}

func newTestJob(current, interval int64) (*Job, *fakeTable) {
	ft := &fakeTable{current: current, interval: interval}
	src := NewRoundSource(ft, table)
	src.now = func() time.Time { return time.Unix(1_000_000, 0) }
	return New("spin", Config{Table: table, Roulette: roulette}, src), ft
}

func TestHead(t *testing.T) {
	j, _ := newTestJob(100, 3600)
	head, err := j.Head(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if head != 99 {
		t.Errorf("expected last closed round 99, got %d", head)
	}

	j, _ = newTestJob(0, 3600)
	if head, _ := j.Head(context.Background()); head != 0 {
		t.Errorf("expected 0 before the first round, got %d", head)
	}
}

func TestInitialPosition(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		interval int64
		want     uint64
	}{
		{"hourly rounds", 100, 3600, 75},
		{"interval not dividing a day", 1000, 7000, 986},
		{"young table", 10, 3600, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, _ := newTestJob(tt.current, tt.interval)
			got, err := j.InitialPosition(context.Background(), uint64(tt.current-1))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}

	j, _ := newTestJob(100, 0)
	if _, err := j.InitialPosition(context.Background(), 99); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestRoundSource_QueryRange(t *testing.T) {
	j, ft := newTestJob(100, 3600)
	events, err := j.Source().QueryRange(context.Background(), 90, 94)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 records, got %d", len(events))
	}
	if events[0].BlockNumber != 90 || events[4].BlockNumber != 94 {
		t.Errorf("unexpected rounds %d..%d", events[0].BlockNumber, events[4].BlockNumber)
	}
	if ft.calls != 2 {
		t.Errorf("expected one read per table value, got %d calls", ft.calls)
	}
}

func TestDecode(t *testing.T) {
	j, _ := newTestJob(100, 3600)
	events, _ := j.Source().QueryRange(context.Background(), 97, 99)

	req, err := j.Decode(events[0])
	if err != nil {
		t.Fatal(err)
	}
	if req.Key != "97" || req.Round != 97 {
		t.Errorf("unexpected key %s round %d", req.Key, req.Round)
	}
	if req.CreatedAt != 1_000_000-3*3600 {
		t.Errorf("expected round close time, got %d", req.CreatedAt)
	}

	other := events[0]
	other.Address = roulette
	if _, err := j.Decode(other); err == nil {
		t.Error("expected error for foreign table")
	}

	open, _ := j.Source().QueryRange(context.Background(), 100, 100)
	if _, err := j.Decode(open[0]); err == nil {
		t.Error("expected error for open round")
	}
}

func TestLiveness(t *testing.T) {
	j, _ := newTestJob(100, 3600)
	events, _ := j.Source().QueryRange(context.Background(), 97, 97)
	req, _ := j.Decode(events[0])
	check := j.Liveness()

	call, err := check.Call(req)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := tableABI.Pack("roundStatus", big.NewInt(97))
	if call.To != table || !bytes.Equal(call.Data, want) {
		t.Errorf("unexpected call %s %x", call.To, call.Data)
	}

	for status, keep := range map[int64]bool{0: false, 1: true, 2: false} {
		answer, _ := tableABI.Methods["roundStatus"].Outputs.Pack(big.NewInt(status))
		got, err := check.Keep(req, answer)
		if err != nil {
			t.Fatal(err)
		}
		if got != keep {
			t.Errorf("status %d: expected keep=%v", status, keep)
		}
	}

	if j.Integrity() != nil {
		t.Error("rounds have no integrity pass")
	}
}

func TestStatus(t *testing.T) {
	j, _ := newTestJob(100, 3600)
	if j.Status() != nil {
		t.Fatal("status gate must be off by default")
	}

	j.cfg.DueWhenFunded = true
	check := j.Status()
	if check == nil {
		t.Fatal("expected a status check")
	}
	req := domain.PendingRequest{Round: 99}

	call, err := check.Call(req)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := tableABI.Pack("getRoundBank", big.NewInt(99))
	if call.To != table || !bytes.Equal(call.Data, want) {
		t.Errorf("unexpected call %s %x", call.To, call.Data)
	}

	for bank, due := range map[int64]bool{0: false, 1: true, 5_000: true} {
		answer, _ := tableABI.Methods["getRoundBank"].Outputs.Pack(big.NewInt(bank))
		got, err := check.Keep(req, answer)
		if err != nil {
			t.Fatal(err)
		}
		if got != due {
			t.Errorf("bank %d: expected due=%v", bank, due)
		}
	}

	if due, err := check.Keep(req, nil); err != nil || due {
		t.Errorf("empty answer should not be due, got %v %v", due, err)
	}
}

func TestLocate(t *testing.T) {
	j, ft := newTestJob(100, 3600)
	events, _ := j.Source().QueryRange(context.Background(), 97, 97)
	req, _ := j.Decode(events[0])

	if ok, err := j.Locate(context.Background(), req); err != nil || !ok {
		t.Fatalf("expected located, got %v %v", ok, err)
	}

	forged := req
	forged.Fingerprint = common.HexToHash("0x01")
	if ok, _ := j.Locate(context.Background(), forged); ok {
		t.Error("fingerprint of another table should not match")
	}

	ft.current = 90
	if ok, _ := j.Locate(context.Background(), req); ok {
		t.Error("round ahead of the table should not match")
	}
}

func TestBuild(t *testing.T) {
	j, _ := newTestJob(100, 3600)
	call, err := j.Build(context.Background(), domain.PendingRequest{Round: 97})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := rouletteABI.Pack("spin", table, big.NewInt(97))
	if call.To != roulette || !bytes.Equal(call.Data, want) {
		t.Errorf("unexpected call %s %x", call.To, call.Data)
	}
	if j.PruneOnRevert(&evm.RevertError{Reason: "already spun"}) {
		t.Error("reverts should not prune rounds")
	}
}

func TestMessages(t *testing.T) {
	j, _ := newTestJob(100, 3600)
	if got := j.NothingToDo(99); got != "No rounds need spinning" {
		t.Errorf("unexpected message %q", got)
	}
	if got := j.NoneExecutable(3); got != "Found 3 potentially spinnable rounds but none passed simulation" {
		t.Errorf("unexpected message %q", got)
	}
}
