// Package spin is the fallback for table rounds that closed without being spun.
//
// A table opens a new round every interval() seconds. A closed round with
// roundStatus 1 is waiting for spin(table, round) on the roulette contract.
// Rounds of the past day are tracked; every one that passes simulation is
// returned. With DueWhenFunded, a round holding bets is due as soon as it
// closes.
package spin

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/fallback/engine"
	"github.com/vietddude/keeper/internal/fallback/scan"
	"github.com/vietddude/keeper/internal/fallback/verify"
)

// Lookback is how far back a new cursor starts.
const Lookback uint64 = 86400

// statusAwaitingSpin is the roundStatus of a closed, unspun round.
const statusAwaitingSpin = 1

type Config struct {
	Table    common.Address
	Roulette common.Address

	DueWhenFunded bool
}

type Job struct {
	name   string
	cfg    Config
	rounds *RoundSource
}

var (
	_ engine.Job        = (*Job)(nil)
	_ engine.StatusGate = (*Job)(nil)
)

func New(name string, cfg Config, rounds *RoundSource) *Job {
	return &Job{name: name, cfg: cfg, rounds: rounds}
}

func (j *Job) Name() string {
	return j.name
}

// Head is the last closed round.
func (j *Job) Head(ctx context.Context) (uint64, error) {
	current, err := j.rounds.currentRound(ctx)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, nil
	}
	return current - 1, nil
}

// InitialPosition places a new cursor so the first scan covers one day of rounds.
func (j *Job) InitialPosition(ctx context.Context, safeHead uint64) (uint64, error) {
	interval, err := j.rounds.readUint(ctx, "interval")
	if err != nil {
		return 0, err
	}
	if interval.Sign() <= 0 || !interval.IsUint64() {
		return 0, fmt.Errorf("invalid round interval %s", interval)
	}
	perDay := (Lookback + interval.Uint64() - 1) / interval.Uint64()

	current := safeHead + 1
	if perDay+1 >= current {
		return 0, nil
	}
	return current - perDay - 1, nil
}

func (j *Job) Source() scan.Source {
	return j.rounds
}

func (j *Job) Action() string {
	return "spin"
}

func (j *Job) NothingToDo(cursor uint64) string {
	return "No rounds need spinning"
}

func (j *Job) NoneExecutable(candidates int) string {
	return fmt.Sprintf("Found %d potentially spinnable rounds but none passed simulation", candidates)
}

func (j *Job) fingerprint(round uint64) (common.Hash, error) {
	enc, err := roundKeyArgs.Pack(j.cfg.Table, new(big.Int).SetUint64(round))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Decode turns a round record into a request. The round closed at
// ObservedAt - (current - round) * interval.
func (j *Job) Decode(ev domain.RawEvent) (domain.PendingRequest, error) {
	if ev.Address != j.cfg.Table {
		return domain.PendingRequest{}, errors.New("record of another table")
	}
	vals, err := roundRecordArgs.Unpack(ev.Data)
	if err != nil {
		return domain.PendingRequest{}, fmt.Errorf("unpack round record: %w", err)
	}
	current := vals[0].(*big.Int)
	interval := vals[1].(*big.Int)

	round := new(big.Int).SetUint64(ev.BlockNumber)
	if round.Cmp(current) >= 0 {
		return domain.PendingRequest{}, fmt.Errorf("round %d is still open", ev.BlockNumber)
	}
	ago := new(big.Int).Mul(new(big.Int).Sub(current, round), interval)
	if !ago.IsInt64() {
		return domain.PendingRequest{}, fmt.Errorf("round %d age out of range", ev.BlockNumber)
	}

	fp, err := j.fingerprint(ev.BlockNumber)
	if err != nil {
		return domain.PendingRequest{}, err
	}

	return domain.PendingRequest{
		Locator:     ev.Locator(),
		CreatedAt:   ev.ObservedAt - ago.Int64(),
		Key:         strconv.FormatUint(ev.BlockNumber, 10),
		Round:       ev.BlockNumber,
		Fingerprint: fp,
	}, nil
}

// Liveness keeps rounds still awaiting a spin.
func (j *Job) Liveness() verify.Check {
	return verify.Check{
		Name: "liveness",
		Call: func(req domain.PendingRequest) (domain.Call, error) {
			data, err := tableABI.Pack("roundStatus", new(big.Int).SetUint64(req.Round))
			if err != nil {
				return domain.Call{}, err
			}
			return domain.Call{To: j.cfg.Table, Data: data}, nil
		},
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			out, err := tableABI.Unpack("roundStatus", answer)
			if err != nil {
				return false, fmt.Errorf("unpack roundStatus: %w", err)
			}
			return out[0].(*big.Int).Cmp(big.NewInt(statusAwaitingSpin)) == 0, nil
		},
	}
}

// Status marks rounds with a positive getRoundBank as due.
func (j *Job) Status() *verify.Check {
	if !j.cfg.DueWhenFunded {
		return nil
	}
	return &verify.Check{
		Name: "funded",
		Call: func(req domain.PendingRequest) (domain.Call, error) {
			data, err := tableABI.Pack("getRoundBank", new(big.Int).SetUint64(req.Round))
			if err != nil {
				return domain.Call{}, err
			}
			return domain.Call{To: j.cfg.Table, Data: data}, nil
		},
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			if len(answer) == 0 {
				return false, nil
			}
			out, err := tableABI.Unpack("getRoundBank", answer)
			if err != nil {
				return false, fmt.Errorf("unpack getRoundBank: %w", err)
			}
			return out[0].(*big.Int).Sign() > 0, nil
		},
	}
}

// Integrity is not checked: rounds carry no submitted payload.
func (j *Job) Integrity() *verify.Check {
	return nil
}

// Locate confirms the round is closed and belongs to the configured table.
func (j *Job) Locate(ctx context.Context, req domain.PendingRequest) (bool, error) {
	current, err := j.rounds.currentRound(ctx)
	if err != nil {
		return false, err
	}
	if req.Round >= current {
		return false, nil
	}
	fp, err := j.fingerprint(req.Round)
	if err != nil {
		return false, err
	}
	return fp == req.Fingerprint, nil
}

func (j *Job) Build(ctx context.Context, req domain.PendingRequest) (domain.Call, error) {
	data, err := rouletteABI.Pack("spin", j.cfg.Table, new(big.Int).SetUint64(req.Round))
	if err != nil {
		return domain.Call{}, fmt.Errorf("pack spin: %w", err)
	}
	return domain.Call{To: j.cfg.Roulette, Data: data}, nil
}

// PruneOnRevert keeps reverted rounds: liveness removes them once spun.
func (j *Job) PruneOnRevert(err error) bool {
	return false
}
