package spin

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/chain"
	"github.com/vietddude/keeper/internal/infra/chain/evm"
)

// RoundSource produces one record per round of a table. Positions are round
// numbers: BlockNumber holds the round and Data holds
// abi.encode(currentRound, interval) as read when the range was queried.
type RoundSource struct {
	chain chain.Adapter
	table common.Address
	now   func() time.Time
}

func NewRoundSource(adapter chain.Adapter, table common.Address) *RoundSource {
	return &RoundSource{chain: adapter, table: table, now: time.Now}
}

// QueryRange returns a record for every round in [from, to].
func (s *RoundSource) QueryRange(ctx context.Context, from, to uint64) ([]domain.RawEvent, error) {
	if from > to {
		return nil, nil
	}
	current, err := s.readUint(ctx, "getCurrentRound")
	if err != nil {
		return nil, err
	}
	interval, err := s.readUint(ctx, "interval")
	if err != nil {
		return nil, err
	}
	data, err := roundRecordArgs.Pack(current, interval)
	if err != nil {
		return nil, err
	}

	observed := s.now().Unix()
	events := make([]domain.RawEvent, 0, to-from+1)
	for r := from; r <= to; r++ {
		events = append(events, domain.RawEvent{
			Address:     s.table,
			Data:        data,
			BlockNumber: r,
			ObservedAt:  observed,
		})
	}
	return events, nil
}

func (s *RoundSource) readUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	input, err := tableABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := s.chain.CallContract(ctx, evm.CallMsg{To: s.table, Data: input}, "latest")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	vals, err := tableABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals[0].(*big.Int), nil
}

// currentRound reads the table's open round.
func (s *RoundSource) currentRound(ctx context.Context) (uint64, error) {
	v, err := s.readUint(ctx, "getCurrentRound")
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("current round %s out of range", v)
	}
	return v.Uint64(), nil
}
