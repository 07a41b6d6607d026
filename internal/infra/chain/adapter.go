package chain

import (
	"context"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/chain/evm"
)

// Adapter defines the chain reads the fallback jobs depend on.
// *evm.EVMAdapter implements it.
type Adapter interface {
	// GetLatestBlock returns the latest block number on the chain
	GetLatestBlock(ctx context.Context) (uint64, error)

	// CallContract executes a read-only call at the given block tag
	CallContract(ctx context.Context, msg evm.CallMsg, block string) ([]byte, error)

	// GetChainID returns the chain identifier
	GetChainID() domain.ChainID
}

var _ Adapter = (*evm.EVMAdapter)(nil)
