package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionKey identifies a position in the Vault
type PositionKey struct {
	CollateralToken common.Address
	IndexToken      common.Address
	IsLong          bool
}

// String formats the key as "{collateral}:{index}:{isLong}"
func (k PositionKey) String() string {
	return fmt.Sprintf("%s:%s:%t", k.CollateralToken.Hex(), k.IndexToken.Hex(), k.IsLong)
}

// Position is an open leveraged exposure.
// Size and Collateral are USD with 30 decimals.
type Position struct {
	Key          PositionKey
	Size         *big.Int
	Collateral   *big.Int
	AveragePrice *big.Int
}

// IsOpen returns true if the position has a positive size
func (p Position) IsOpen() bool {
	return p.Size != nil && p.Size.Sign() > 0
}

// Positions maps key to position. It may be empty or partial.
// A nil Positions means the positions are unknown, not that there are none.
type Positions map[PositionKey]Position

// Open returns the position at key only if it is open
func (ps Positions) Open(key PositionKey) (Position, bool) {
	p, ok := ps[key]
	if !ok || !p.IsOpen() {
		return Position{}, false
	}
	return p, true
}

// Add stores p under its own key
func (ps Positions) Add(p Position) {
	ps[p.Key] = p
}
