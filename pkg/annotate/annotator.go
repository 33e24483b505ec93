// Package annotate derives display-only fields for open orders from live market data.
// Everything here is pure: no I/O, no mutation of orders or snapshots.
package annotate

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderwatch/pkg/format"
	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

// ErrMissingTokenInfo is returned when an order references a token absent from the snapshot
var ErrMissingTokenInfo = errors.New("missing token info")

// Warning is a non-fatal validity note shown next to an order
type Warning string

const (
	NoWarning               Warning = ""
	WarnNoOpenPosition      Warning = "No open position, order cannot be executed"
	WarnSizeExceedsPosition Warning = "Order size exceeds position size, order cannot be executed"
)

const (
	DirectionLong  = "Long"
	DirectionShort = "Short"
	DirectionSwap  = "Swap"
)

// Annotation is the derived, non-persisted view of one order
type Annotation struct {
	ID        orders.ID
	Direction string

	// swap orders
	FromToken        market.TokenInfo
	ToToken          market.TokenInfo
	MarkExchangeRate *big.Int // nil when the from token has no bid price

	// increase / decrease orders
	IndexToken    market.TokenInfo
	MarkPrice     *big.Int
	TriggerPrefix string
	Position      *market.Position // matched open position, decrease orders only

	Warning Warning
}

// HasWarning reports whether the order cannot be executed as it stands
func (a Annotation) HasWarning() bool { return a.Warning != NoWarning }

// Annotator resolves swap paths against the wrapped native token of one chain
type Annotator struct {
	WrappedNative common.Address
}

// New creates an annotator for a chain whose wrapped native token is wrappedNative
func New(wrappedNative common.Address) *Annotator {
	return &Annotator{WrappedNative: wrappedNative}
}

// Annotate computes the annotation for a single order.
// Returns ErrMissingTokenInfo (wrapped) if a referenced token is not in tokens.
func (a *Annotator) Annotate(o orders.Order, tokens market.Tokens, positions market.Positions) (Annotation, error) {
	if o == nil {
		return Annotation{}, fmt.Errorf("%w: nil order", orders.ErrInvalidOrder)
	}
	if err := o.Validate(); err != nil {
		return Annotation{}, err
	}

	switch v := o.(type) {
	case *orders.SwapOrder:
		return a.annotateSwap(v, tokens)
	case *orders.IncreaseOrder:
		return annotateTrigger(v.OrderID(), &v.Trigger, tokens, nil)
	case *orders.DecreaseOrder:
		return annotateTrigger(v.OrderID(), &v.Trigger, tokens, positions)
	default:
		return Annotation{}, fmt.Errorf("unsupported order type %T", o)
	}
}

func (a *Annotator) annotateSwap(o *orders.SwapOrder, tokens market.Tokens) (Annotation, error) {
	from, ok := tokens.Resolve(o.FromToken(), true, a.WrappedNative)
	if !ok {
		return Annotation{}, missing(o.OrderID(), o.FromToken())
	}
	for _, hop := range o.Path[1 : len(o.Path)-1] {
		if _, ok := tokens.Lookup(hop); !ok {
			return Annotation{}, missing(o.OrderID(), hop)
		}
	}
	to, ok := tokens.Resolve(o.ToToken(), o.ShouldUnwrap, a.WrappedNative)
	if !ok {
		return Annotation{}, missing(o.OrderID(), o.ToToken())
	}

	return Annotation{
		ID:               o.OrderID(),
		Direction:        DirectionSwap,
		FromToken:        from,
		ToToken:          to,
		MarkExchangeRate: ExchangeRate(from, to),
	}, nil
}

// annotateTrigger handles increase and decrease orders. A nil positions map means
// positions were not read, so a decrease order gets neither a match nor a warning.
func annotateTrigger(id orders.ID, t *orders.Trigger, tokens market.Tokens, positions market.Positions) (Annotation, error) {
	index, ok := tokens.Lookup(t.IndexToken)
	if !ok {
		return Annotation{}, missing(id, t.IndexToken)
	}

	ann := Annotation{
		ID:            id,
		Direction:     direction(t.IsLong),
		IndexToken:    index,
		MarkPrice:     MarkPrice(index, MaximisePrice(id.Kind, t.IsLong)),
		TriggerPrefix: format.TriggerPrefix(t.TriggerAboveThreshold),
	}

	if id.Kind == orders.KindDecrease && positions != nil {
		key := market.PositionKey{
			CollateralToken: t.CollateralToken,
			IndexToken:      t.IndexToken,
			IsLong:          t.IsLong,
		}
		pos, open := positions.Open(key)
		switch {
		case !open:
			ann.Warning = WarnNoOpenPosition
		case pos.Size.Cmp(t.SizeDelta) < 0:
			ann.Position = &pos
			ann.Warning = WarnSizeExceedsPosition
		default:
			ann.Position = &pos
		}
	}
	return ann, nil
}

// MaximisePrice reports which price bound is the worst case for executing the order now.
// Opening a long or closing a short buys the index token, so it pays the ask.
func MaximisePrice(kind orders.Kind, isLong bool) bool {
	switch kind {
	case orders.KindIncrease:
		return isLong
	case orders.KindDecrease:
		return !isLong
	default:
		return false
	}
}

// MarkPrice selects the ask when maximise is set, otherwise the bid
func MarkPrice(t market.TokenInfo, maximise bool) *big.Int {
	if maximise {
		return t.MaxPrice
	}
	return t.MinPrice
}

// ExchangeRate is the mark rate of a from→to swap: to.maxPrice × 10^30 ÷ from.minPrice.
// This is the same selection the order book applies to trigger ratios.
func ExchangeRate(from, to market.TokenInfo) *big.Int {
	if from.MinPrice == nil || from.MinPrice.Sign() == 0 || to.MaxPrice == nil {
		return nil
	}
	r := new(big.Int).Mul(to.MaxPrice, format.Precision)
	return r.Div(r, from.MinPrice)
}

func direction(isLong bool) string {
	if isLong {
		return DirectionLong
	}
	return DirectionShort
}

func missing(id orders.ID, token common.Address) error {
	return fmt.Errorf("%w: %s references %s", ErrMissingTokenInfo, id, token.Hex())
}
