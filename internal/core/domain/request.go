package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LogLocator identifies the event a request was decoded from.
type LogLocator struct {
	BlockHash   common.Hash `json:"h"`
	BlockNumber uint64      `json:"b"`
	TxHash      common.Hash `json:"tx"`
	LogIndex    uint        `json:"i"`
}

// PendingRequest is an outstanding request tracked in the fallback queue.
type PendingRequest struct {
	Locator     LogLocator    `json:"locator"`
	CreatedAt   int64         `json:"t"`
	Key         string        `json:"r"`
	Round       uint64        `json:"round"`
	Fingerprint common.Hash   `json:"requestedHash"`
	Data        hexutil.Bytes `json:"data,omitempty"`
}

// RawEvent is a record returned by a log source before decoding.
type RawEvent struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	Index       uint
	Removed     bool

	// ObservedAt is the unix time the scanner fetched the record.
	ObservedAt int64
}

// Locator returns the locator of the event.
func (e RawEvent) Locator() LogLocator {
	return LogLocator{
		BlockHash:   e.BlockHash,
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash,
		LogIndex:    e.Index,
	}
}
