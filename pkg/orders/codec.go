package orders

import (
	"encoding/json"
	"fmt"
)

// Envelope is the tagged JSON form of an Order.
// Exactly one of Swap, Increase, Decrease is set, matching Kind.
type Envelope struct {
	Kind     string         `json:"kind"`
	Swap     *SwapOrder     `json:"swap,omitempty"`
	Increase *IncreaseOrder `json:"increase,omitempty"`
	Decrease *DecreaseOrder `json:"decrease,omitempty"`
}

// Wrap puts an order into its envelope
func Wrap(o Order) Envelope {
	switch v := o.(type) {
	case *SwapOrder:
		return Envelope{Kind: KindSwap.String(), Swap: v}
	case *IncreaseOrder:
		return Envelope{Kind: KindIncrease.String(), Increase: v}
	case *DecreaseOrder:
		return Envelope{Kind: KindDecrease.String(), Decrease: v}
	default:
		return Envelope{}
	}
}

// Unwrap returns the order carried by the envelope
func (e Envelope) Unwrap() (Order, error) {
	kind, err := ParseKind(e.Kind)
	if err != nil {
		return nil, err
	}
	var o Order
	switch kind {
	case KindSwap:
		if e.Swap != nil {
			o = e.Swap
		}
	case KindIncrease:
		if e.Increase != nil {
			o = e.Increase
		}
	case KindDecrease:
		if e.Decrease != nil {
			o = e.Decrease
		}
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s envelope has no payload", ErrInvalidOrder, e.Kind)
	}
	return o, nil
}

// Marshal encodes an order as an envelope
func Marshal(o Order) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	return json.Marshal(Wrap(o))
}

// Unmarshal decodes an envelope produced by Marshal
func Unmarshal(data []byte) (Order, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return e.Unwrap()
}
