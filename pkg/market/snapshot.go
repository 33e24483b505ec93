package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the market data an order set is annotated against
type Snapshot struct {
	Tokens        Tokens
	Positions     Positions
	WrappedNative common.Address
	BlockNumber   uint64
	TakenAt       time.Time
}

// EmptySnapshot has no tokens and no positions
func EmptySnapshot(wrappedNative common.Address) Snapshot {
	return Snapshot{
		Tokens:        Tokens{},
		Positions:     Positions{},
		WrappedNative: wrappedNative,
	}
}
