package evm

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/keeper/internal/core/domain"
)

// LogSource scans one event of one contract.
type LogSource struct {
	adapter *EVMAdapter
	address common.Address
	topic   common.Hash
	now     func() time.Time
}

func NewLogSource(adapter *EVMAdapter, address common.Address, topic common.Hash) *LogSource {
	return &LogSource{adapter: adapter, address: address, topic: topic, now: time.Now}
}

// QueryRange returns matching events in [from, to], both inclusive.
func (s *LogSource) QueryRange(ctx context.Context, from, to uint64) ([]domain.RawEvent, error) {
	logs, err := s.adapter.FilterLogs(ctx, FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{s.topic}},
	})
	if err != nil {
		return nil, err
	}
	return s.toEvents(logs), nil
}

// ByBlockHash returns every event of the contract in the given block.
// An empty result means the block is no longer canonical or holds no events.
func (s *LogSource) ByBlockHash(ctx context.Context, hash common.Hash) ([]domain.RawEvent, error) {
	logs, err := s.adapter.FilterLogs(ctx, FilterQuery{
		BlockHash: &hash,
		Addresses: []common.Address{s.address},
	})
	if err != nil {
		return nil, err
	}
	return s.toEvents(logs), nil
}

func (s *LogSource) toEvents(logs []types.Log) []domain.RawEvent {
	observed := s.now().Unix()
	events := make([]domain.RawEvent, 0, len(logs))
	for _, l := range logs {
		events = append(events, domain.RawEvent{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: l.BlockNumber,
			BlockHash:   l.BlockHash,
			TxHash:      l.TxHash,
			Index:       l.Index,
			Removed:     l.Removed,
			ObservedAt:  observed,
		})
	}
	return events
}
