package domain

type ChainID uint64

const (
	ChainIDEthereum    ChainID = 1
	ChainIDPolygon     ChainID = 137
	ChainIDZkSync      ChainID = 324
	ChainIDPolygonAmoy ChainID = 80002
)

// DefaultConfirmationDelay is roughly one minute of blocks.
func DefaultConfirmationDelay(id ChainID) uint64 {
	if id == ChainIDEthereum {
		return 5
	}
	return 20
}
