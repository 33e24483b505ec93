package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderwatch/pkg/orders"
)

// Key prefixes. Account address leads so one account's orders form a contiguous range.
const (
	prefixOrder    = "ord:" // ord:{address}:{kind}:{index}, kind as its numeric value
	prefixRefresh  = "rfr:" // rfr:{address}
	prefixPosition = "pos:" // pos:{address}, JSON list of positions
)

// orderKey returns the key for an order
// Format: "ord:{address}:{kind}:{index}"
// Example: "ord:0x742d35cc...:3:00000000000000000007" (decrease order 7)
// Note: Index is zero-padded (20 digits) for lexicographic sorting
func orderKey(addr common.Address, id orders.ID) []byte {
	return []byte(fmt.Sprintf("%s%s:%d:%020d", prefixOrder, addr.Hex(), uint8(id.Kind), id.Index))
}

// orderPrefix returns the prefix for all orders of an account
// Format: "ord:{address}:"
func orderPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, addr.Hex()))
}

func refreshKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixRefresh, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:0x123:" -> upper bound "ord:0x123;" (next byte after ':')
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func positionsKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixPosition, addr.Hex()))
}
