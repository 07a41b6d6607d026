package evm

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/keeper/internal/infra/rpc/provider"
)

// RevertError is returned when eth_call executes and reverts.
type RevertError struct {
	// Reason is the decoded Error(string)/Panic(uint256) payload, or the node message
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if strings.HasPrefix(e.Reason, "execution reverted") {
		return e.Reason
	}
	return "execution reverted: " + e.Reason
}

// isRevert reports whether the node error describes an EVM revert rather
// than a transport or request problem.
func isRevert(err *provider.RPCError) bool {
	return err.Code == 3 || strings.Contains(strings.ToLower(err.Message), "revert")
}

func newRevertError(err *provider.RPCError) *RevertError {
	re := &RevertError{Reason: err.Message}

	var data hexutil.Bytes
	if len(err.Data) > 0 && json.Unmarshal(err.Data, &data) == nil {
		re.Data = data
		if reason, uerr := abi.UnpackRevert(data); uerr == nil {
			re.Reason = reason
		}
	}
	return re
}
