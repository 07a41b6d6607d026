package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Simulator dry-runs payloads with eth_call from a fixed account.
type Simulator struct {
	adapter *EVMAdapter
	from    *common.Address
}

// NewSimulator creates a simulator. A zero from address simulates without a sender.
func NewSimulator(adapter *EVMAdapter, from common.Address) *Simulator {
	s := &Simulator{adapter: adapter}
	if from != (common.Address{}) {
		s.from = &from
	}
	return s
}

// Simulate returns nil when the call would succeed at the latest block.
func (s *Simulator) Simulate(ctx context.Context, call domain.Call) error {
	_, err := s.adapter.CallContract(ctx, CallMsg{From: s.from, To: call.To, Data: call.Data}, "latest")
	return err
}
