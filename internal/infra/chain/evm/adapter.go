package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/rpc/provider"
)

// RPCClient is the JSON-RPC surface the adapter needs.
type RPCClient interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

type EVMAdapter struct {
	chainID domain.ChainID
	client  RPCClient
	log     *slog.Logger
}

func NewEVMAdapter(chainID domain.ChainID, client RPCClient) *EVMAdapter {
	return &EVMAdapter{
		chainID: chainID,
		client:  client,
		log:     slog.Default().With("component", "evm", "chain", uint64(chainID)),
	}
}

func (a *EVMAdapter) GetChainID() domain.ChainID {
	return a.chainID
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	raw, err := a.client.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	var height hexutil.Uint64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, fmt.Errorf("invalid block number response: %w", err)
	}
	return uint64(height), nil
}

// FilterQuery selects logs by block range or by block hash.
type FilterQuery struct {
	BlockHash *common.Hash
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
	Topics    [][]common.Hash
}

func (q FilterQuery) toArg() map[string]any {
	arg := map[string]any{}
	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		arg["fromBlock"] = hexutil.EncodeUint64(q.FromBlock)
		arg["toBlock"] = hexutil.EncodeUint64(q.ToBlock)
	}
	if len(q.Addresses) == 1 {
		arg["address"] = q.Addresses[0]
	} else if len(q.Addresses) > 1 {
		arg["address"] = q.Addresses
	}
	if len(q.Topics) > 0 {
		arg["topics"] = q.Topics
	}
	return arg
}

// FilterLogs runs eth_getLogs. Removed (reorged) logs are dropped.
func (a *EVMAdapter) FilterLogs(ctx context.Context, q FilterQuery) ([]types.Log, error) {
	raw, err := a.client.Call(ctx, "eth_getLogs", []any{q.toArg()})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}

	var logs []types.Log
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("invalid logs response: %w", err)
	}

	out := logs[:0]
	for _, l := range logs {
		if l.Removed {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// CallMsg is the argument of eth_call.
type CallMsg struct {
	From *common.Address
	To   common.Address
	Data []byte
}

func (m CallMsg) toArg() map[string]any {
	arg := map[string]any{
		"to":   m.To,
		"data": hexutil.Bytes(m.Data),
	}
	if m.From != nil {
		arg["from"] = *m.From
	}
	return arg
}

// CallContract executes eth_call at the given block tag.
// A reverted call returns a *RevertError.
func (a *EVMAdapter) CallContract(ctx context.Context, msg CallMsg, block string) ([]byte, error) {
	if block == "" {
		block = "latest"
	}
	raw, err := a.client.Call(ctx, "eth_call", []any{msg.toArg(), block})
	if err != nil {
		var rpcErr *provider.RPCError
		if errors.As(err, &rpcErr) && isRevert(rpcErr) {
			return nil, newRevertError(rpcErr)
		}
		return nil, fmt.Errorf("eth_call failed: %w", err)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid eth_call response: %w", err)
	}
	return out, nil
}
