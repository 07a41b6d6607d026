package spin

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const tableABIJSON = `[
	{"inputs":[],"name":"getCurrentRound","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"interval","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"round","type":"uint256"}],"name":"getRoundBank","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"round","type":"uint256"}],"name":"roundStatus","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const rouletteABIJSON = `[
	{"inputs":[{"internalType":"address","name":"table","type":"address"},{"internalType":"uint256","name":"round","type":"uint256"}],"name":"spin","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	tableABI    = mustParse(tableABIJSON)
	rouletteABI = mustParse(rouletteABIJSON)

	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)

	// (uint256 current, uint256 interval) carried by synthetic round records.
	roundRecordArgs = abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}

	// (address table, uint256 round) hashed into the round fingerprint.
	roundKeyArgs = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
