package vrf

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

const consumerABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"round","type":"uint256"},{"indexed":false,"internalType":"bytes","name":"data","type":"bytes"}],"name":"RequestedRandomness","type":"event"},
	{"inputs":[{"internalType":"uint256","name":"randomness","type":"uint256"},{"internalType":"bytes","name":"data","type":"bytes"}],"name":"fulfillRandomness","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"requestPending","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"requestedHash","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

var (
	consumerABI = mustParse(consumerABIJSON)

	// RequestedRandomnessTopic is topic0 of RequestedRandomness(uint256,bytes).
	RequestedRandomnessTopic = consumerABI.Events["RequestedRandomness"].ID

	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	// (uint256, bytes): both the consumer payload (requestId, extra) and the
	// round-prefixed payload passed back to fulfillRandomness.
	uintBytesArgs = abi.Arguments{{Type: uint256Type}, {Type: bytesType}}
)

// encodeWithRound returns abi.encode(round, data), the bytes the consumer hashed
// into requestedHash and expects back in fulfillRandomness.
func encodeWithRound(round *big.Int, data []byte) ([]byte, error) {
	return uintBytesArgs.Pack(round, data)
}

// Fingerprint is keccak256(abi.encode(round, data)).
func Fingerprint(round *big.Int, data []byte) ([32]byte, error) {
	enc, err := encodeWithRound(round, data)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
