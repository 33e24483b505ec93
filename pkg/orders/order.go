package orders

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies which OrderBook queue an order lives in
type Kind uint8

const (
	KindSwap Kind = iota + 1
	KindIncrease
	KindDecrease
)

func (k Kind) String() string {
	switch k {
	case KindSwap:
		return "swap"
	case KindIncrease:
		return "increase"
	case KindDecrease:
		return "decrease"
	default:
		return "unknown"
	}
}

// ParseKind accepts the lowercase names produced by Kind.String
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "swap":
		return KindSwap, nil
	case "increase":
		return KindIncrease, nil
	case "decrease":
		return KindDecrease, nil
	default:
		return 0, fmt.Errorf("unknown order kind %q", s)
	}
}

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrDuplicateOrder = errors.New("duplicate order")
)

// ID is the identity of an order: the OrderBook assigns indices per account and per kind,
// so the index alone is not unique.
type ID struct {
	Kind  Kind
	Index uint64
}

// String formats the ID as "{kind}-{index}", e.g. "decrease-7"
func (id ID) String() string {
	return fmt.Sprintf("%s-%d", id.Kind, id.Index)
}

// ParseID is the inverse of ID.String
func ParseID(s string) (ID, error) {
	i := strings.LastIndexByte(s, '-')
	if i <= 0 {
		return ID{}, fmt.Errorf("malformed order id %q", s)
	}
	kind, err := ParseKind(s[:i])
	if err != nil {
		return ID{}, err
	}
	index, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("malformed order index in %q: %w", s, err)
	}
	return ID{Kind: kind, Index: index}, nil
}

// Order is a standing instruction waiting for its trigger condition.
// The concrete types are SwapOrder, IncreaseOrder and DecreaseOrder.
type Order interface {
	OrderID() ID
	Validate() error
	isOrder()
}

// SwapOrder swaps AmountIn of Path[0] into at least MinOut of Path[len-1]
// once the exchange rate crosses TriggerRatio.
type SwapOrder struct {
	Index                 uint64           `json:"index"`
	Path                  []common.Address `json:"path"`
	AmountIn              *big.Int         `json:"amountIn"`
	MinOut                *big.Int         `json:"minOut"`
	TriggerRatio          *big.Int         `json:"triggerRatio"` // 30 decimals
	TriggerAboveThreshold bool             `json:"triggerAboveThreshold"`
	ShouldUnwrap          bool             `json:"shouldUnwrap"`
	ExecutionFee          *big.Int         `json:"executionFee"`
}

// Trigger holds the fields shared by increase and decrease orders.
// All USD values use 30 decimals.
type Trigger struct {
	CollateralToken       common.Address `json:"collateralToken"`
	IndexToken            common.Address `json:"indexToken"`
	IsLong                bool           `json:"isLong"`
	SizeDelta             *big.Int       `json:"sizeDelta"`
	TriggerPrice          *big.Int       `json:"triggerPrice"`
	TriggerAboveThreshold bool           `json:"triggerAboveThreshold"`
	ExecutionFee          *big.Int       `json:"executionFee"`
}

// IncreaseOrder opens or grows a position when the index price crosses TriggerPrice
type IncreaseOrder struct {
	Index               uint64         `json:"index"`
	PurchaseToken       common.Address `json:"purchaseToken"`
	PurchaseTokenAmount *big.Int       `json:"purchaseTokenAmount"`
	Trigger
}

// DecreaseOrder shrinks or closes a position when the index price crosses TriggerPrice
type DecreaseOrder struct {
	Index           uint64   `json:"index"`
	CollateralDelta *big.Int `json:"collateralDelta"`
	Trigger
}

func (o *SwapOrder) OrderID() ID     { return ID{Kind: KindSwap, Index: o.Index} }
func (o *IncreaseOrder) OrderID() ID { return ID{Kind: KindIncrease, Index: o.Index} }
func (o *DecreaseOrder) OrderID() ID { return ID{Kind: KindDecrease, Index: o.Index} }

func (*SwapOrder) isOrder()     {}
func (*IncreaseOrder) isOrder() {}
func (*DecreaseOrder) isOrder() {}

// FromToken is the token paid into the swap
func (o *SwapOrder) FromToken() common.Address { return o.Path[0] }

// ToToken is the token received from the swap
func (o *SwapOrder) ToToken() common.Address { return o.Path[len(o.Path)-1] }

func (o *SwapOrder) Validate() error {
	if len(o.Path) < 2 {
		return fmt.Errorf("%w: swap %d path has %d tokens", ErrInvalidOrder, o.Index, len(o.Path))
	}
	if o.AmountIn == nil || o.MinOut == nil || o.TriggerRatio == nil {
		return fmt.Errorf("%w: swap %d missing amounts", ErrInvalidOrder, o.Index)
	}
	return nil
}

func (t *Trigger) validate(id ID) error {
	if t.IndexToken == (common.Address{}) {
		return fmt.Errorf("%w: %s has no index token", ErrInvalidOrder, id)
	}
	if t.SizeDelta == nil || t.TriggerPrice == nil {
		return fmt.Errorf("%w: %s missing size or trigger price", ErrInvalidOrder, id)
	}
	return nil
}

func (o *IncreaseOrder) Validate() error { return o.Trigger.validate(o.OrderID()) }
func (o *DecreaseOrder) Validate() error { return o.Trigger.validate(o.OrderID()) }

// KindOf returns the kind of any order, 0 for nil
func KindOf(o Order) Kind {
	if o == nil {
		return 0
	}
	return o.OrderID().Kind
}
