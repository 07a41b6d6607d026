// Package vrf is the fallback for drand randomness requests that the primary
// fulfiller missed.
//
// Requests are RequestedRandomness(round, data) events of a consumer contract,
// where data = abi.encode(requestId, extra). A request is live while
// requestPending(requestId) is true and valid while requestedHash(requestId)
// equals keccak256(abi.encode(round, data)). The fallback answers with
// fulfillRandomness(randomness, abi.encode(round, data)) once drand has
// published the round.
package vrf

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/fallback/engine"
	"github.com/vietddude/keeper/internal/fallback/scan"
	"github.com/vietddude/keeper/internal/fallback/verify"
	"github.com/vietddude/keeper/internal/infra/chain"
	"github.com/vietddude/keeper/internal/infra/chain/evm"
	"github.com/vietddude/keeper/internal/infra/drand"
)

// Config holds the vrf job settings.
type Config struct {
	Consumer common.Address

	// PruneReverts lists revert reason substrings meaning the request can never be fulfilled
	PruneReverts []string
}

// EventSource scans the consumer's events and re-fetches them by block hash.
type EventSource interface {
	scan.Source
	ByBlockHash(ctx context.Context, hash common.Hash) ([]domain.RawEvent, error)
}

// Beacons resolves drand rounds.
type Beacons interface {
	Resolve(ctx context.Context, round uint64) (drand.Beacon, error)
	RoundTime(round uint64) int64
}

type Job struct {
	name    string
	cfg     Config
	chain   chain.Adapter
	events  EventSource
	beacons Beacons
}

var _ engine.Job = (*Job)(nil)

func New(name string, cfg Config, adapter chain.Adapter, events EventSource, beacons Beacons) *Job {
	return &Job{name: name, cfg: cfg, chain: adapter, events: events, beacons: beacons}
}

func (j *Job) Name() string {
	return j.name
}

func (j *Job) Head(ctx context.Context) (uint64, error) {
	return j.chain.GetLatestBlock(ctx)
}

// InitialPosition starts a new cursor at the safe head: only new requests are tracked.
func (j *Job) InitialPosition(ctx context.Context, safeHead uint64) (uint64, error) {
	return safeHead, nil
}

func (j *Job) Source() scan.Source {
	return j.events
}

func (j *Job) Action() string {
	return "fulfillRandomness"
}

func (j *Job) NothingToDo(cursor uint64) string {
	return fmt.Sprintf("All VRF requests before block %d were fulfilled.", cursor)
}

func (j *Job) NoneExecutable(candidates int) string {
	return fmt.Sprintf("None of %d overdue VRF requests could be fulfilled.", candidates)
}

// Decode parses a RequestedRandomness event.
func (j *Job) Decode(ev domain.RawEvent) (domain.PendingRequest, error) {
	if len(ev.Topics) == 0 || ev.Topics[0] != RequestedRandomnessTopic {
		return domain.PendingRequest{}, errors.New("not a RequestedRandomness event")
	}

	vals, err := consumerABI.Unpack("RequestedRandomness", ev.Data)
	if err != nil {
		return domain.PendingRequest{}, fmt.Errorf("unpack event: %w", err)
	}
	round := vals[0].(*big.Int)
	data := vals[1].([]byte)
	if !round.IsUint64() {
		return domain.PendingRequest{}, fmt.Errorf("round %s out of range", round)
	}

	inner, err := uintBytesArgs.Unpack(data)
	if err != nil {
		return domain.PendingRequest{}, fmt.Errorf("unpack consumer data: %w", err)
	}
	requestID := inner[0].(*big.Int)

	fp, err := Fingerprint(round, data)
	if err != nil {
		return domain.PendingRequest{}, fmt.Errorf("fingerprint: %w", err)
	}

	return domain.PendingRequest{
		Locator:     ev.Locator(),
		CreatedAt:   j.beacons.RoundTime(round.Uint64()),
		Key:         requestID.String(),
		Round:       round.Uint64(),
		Fingerprint: fp,
		Data:        data,
	}, nil
}

func requestID(req domain.PendingRequest) (*big.Int, error) {
	id, ok := new(big.Int).SetString(req.Key, 10)
	if !ok {
		return nil, fmt.Errorf("invalid request id %q", req.Key)
	}
	return id, nil
}

func (j *Job) consumerCall(method string) func(domain.PendingRequest) (domain.Call, error) {
	return func(req domain.PendingRequest) (domain.Call, error) {
		id, err := requestID(req)
		if err != nil {
			return domain.Call{}, err
		}
		data, err := consumerABI.Pack(method, id)
		if err != nil {
			return domain.Call{}, err
		}
		return domain.Call{To: j.cfg.Consumer, Data: data}, nil
	}
}

// Liveness keeps requests the consumer still reports as pending.
func (j *Job) Liveness() verify.Check {
	return verify.Check{
		Name: "liveness",
		Call: j.consumerCall("requestPending"),
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			// A consumer without requestPending answers nothing: not pending.
			if len(answer) == 0 {
				return false, nil
			}
			out, err := consumerABI.Unpack("requestPending", answer)
			if err != nil {
				return false, fmt.Errorf("unpack requestPending: %w", err)
			}
			return out[0].(bool), nil
		},
	}
}

// Integrity keeps requests whose on-chain hash matches the decoded payload.
func (j *Job) Integrity() *verify.Check {
	return &verify.Check{
		Name: "integrity",
		Call: j.consumerCall("requestedHash"),
		Keep: func(req domain.PendingRequest, answer []byte) (bool, error) {
			out, err := consumerABI.Unpack("requestedHash", answer)
			if err != nil {
				return false, fmt.Errorf("unpack requestedHash: %w", err)
			}
			return common.Hash(out[0].([32]byte)) == req.Fingerprint, nil
		},
	}
}

// Locate re-fetches the block's events and looks for the exact record.
func (j *Job) Locate(ctx context.Context, req domain.PendingRequest) (bool, error) {
	events, err := j.events.ByBlockHash(ctx, req.Locator.BlockHash)
	if err != nil {
		return false, err
	}

	for _, ev := range events {
		if ev.Index != req.Locator.LogIndex {
			continue
		}
		if ev.TxHash != req.Locator.TxHash {
			return false, nil
		}
		got, err := j.Decode(ev)
		if err != nil {
			return false, nil
		}
		return got.Key == req.Key && got.Fingerprint == req.Fingerprint, nil
	}
	return false, nil
}

// Build resolves the drand round and encodes fulfillRandomness.
func (j *Job) Build(ctx context.Context, req domain.PendingRequest) (domain.Call, error) {
	beacon, err := j.beacons.Resolve(ctx, req.Round)
	if errors.Is(err, drand.ErrNotAvailable) {
		return domain.Call{}, fmt.Errorf("%w: %w", engine.ErrNotReady, err)
	}
	if err != nil {
		return domain.Call{}, err
	}

	round := new(big.Int).SetUint64(req.Round)
	withRound, err := encodeWithRound(round, req.Data)
	if err != nil {
		return domain.Call{}, fmt.Errorf("encode data: %w", err)
	}
	if fp, _ := Fingerprint(round, req.Data); fp != req.Fingerprint {
		return domain.Call{}, fmt.Errorf("payload of request %s does not match its fingerprint", req.Key)
	}

	data, err := consumerABI.Pack("fulfillRandomness", beacon.Value(), withRound)
	if err != nil {
		return domain.Call{}, fmt.Errorf("pack fulfillRandomness: %w", err)
	}
	return domain.Call{To: j.cfg.Consumer, Data: data}, nil
}

// PruneOnRevert matches the revert reason against the configured reasons.
func (j *Job) PruneOnRevert(err error) bool {
	var revert *evm.RevertError
	if !errors.As(err, &revert) {
		return false
	}
	for _, reason := range j.cfg.PruneReverts {
		if reason != "" && strings.Contains(revert.Reason, reason) {
			return true
		}
	}
	return false
}
