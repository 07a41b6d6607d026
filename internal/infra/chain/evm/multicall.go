package evm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/keeper/internal/core/domain"
)

const multicall3ABI = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call[]","name":"calls","type":"tuple[]"}],"name":"aggregate","outputs":[{"internalType":"uint256","name":"blockNumber","type":"uint256"},{"internalType":"bytes[]","name":"returnData","type":"bytes[]"}],"stateMutability":"payable","type":"function"}]`

var parsedMulticall3 = mustParseABI(multicall3ABI)

var (
	multicall3Default = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	multicall3ZkSync  = common.HexToAddress("0xF9cda624FBC7e059355ce98a31693d299FACd963")
)

// DefaultMulticallAddress returns the canonical Multicall3 deployment for a chain.
func DefaultMulticallAddress(chainID domain.ChainID) common.Address {
	if chainID == domain.ChainIDZkSync {
		return multicall3ZkSync
	}
	return multicall3Default
}

type multicallCall struct {
	Target   common.Address
	CallData []byte
}

// Multicall batches read-only calls through Multicall3.aggregate.
type Multicall struct {
	adapter *EVMAdapter
	address common.Address
}

func NewMulticall(adapter *EVMAdapter, address common.Address) *Multicall {
	return &Multicall{adapter: adapter, address: address}
}

// Aggregate executes all calls in one eth_call. The returned slice is in call order.
// Any failing sub-call reverts the whole aggregate.
func (m *Multicall) Aggregate(ctx context.Context, calls []domain.Call) ([][]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	args := make([]multicallCall, len(calls))
	for i, c := range calls {
		args[i] = multicallCall{Target: c.To, CallData: c.Data}
	}

	input, err := parsedMulticall3.Pack("aggregate", args)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate: %w", err)
	}

	raw, err := m.adapter.CallContract(ctx, CallMsg{To: m.address, Data: input}, "latest")
	if err != nil {
		return nil, fmt.Errorf("multicall aggregate: %w", err)
	}

	out, err := parsedMulticall3.Unpack("aggregate", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("unexpected aggregate output length %d", len(out))
	}
	returnData, ok := out[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected aggregate return type %T", out[1])
	}
	if len(returnData) != len(calls) {
		return nil, fmt.Errorf("aggregate returned %d results for %d calls", len(returnData), len(calls))
	}
	return returnData, nil
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
