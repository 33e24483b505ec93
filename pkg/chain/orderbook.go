package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/orders"
)

// OrderBook reads one account's open orders from the GMX OrderBook contract.
//
// The contract keeps a per-kind counter of the next order index and deletes
// executed or cancelled slots. Only the last window indices of each kind are
// scanned.
type OrderBook struct {
	client  *Client
	address common.Address
	window  uint64
	logger  *zap.SugaredLogger
}

func NewOrderBook(client *Client, address common.Address, window uint64, logger *zap.SugaredLogger) *OrderBook {
	return &OrderBook{client: client, address: address, window: window, logger: logger}
}

func (b *OrderBook) Address() common.Address { return b.address }

var kindMethods = map[orders.Kind]struct{ index, get string }{
	orders.KindSwap:     {"swapOrdersIndex", "getSwapOrder"},
	orders.KindIncrease: {"increaseOrdersIndex", "getIncreaseOrder"},
	orders.KindDecrease: {"decreaseOrdersIndex", "getDecreaseOrder"},
}

// FetchOrders returns every live order of account within the scan window, in kind then index order
func (b *OrderBook) FetchOrders(ctx context.Context, account common.Address) ([]orders.Order, error) {
	var out []orders.Order
	for _, kind := range []orders.Kind{orders.KindSwap, orders.KindIncrease, orders.KindDecrease} {
		list, err := b.fetchKind(ctx, account, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (b *OrderBook) fetchKind(ctx context.Context, account common.Address, kind orders.Kind) ([]orders.Order, error) {
	methods := kindMethods[kind]

	next, err := b.client.callUint(ctx, OrderBookABI, b.address, methods.index, account)
	if err != nil {
		return nil, fmt.Errorf("read %s order index: %w", kind, err)
	}
	if !next.IsUint64() {
		return nil, fmt.Errorf("%s order index out of range: %s", kind, next)
	}

	end := next.Uint64()
	start := uint64(0)
	if end > b.window {
		start = end - b.window
	}

	var list []orders.Order
	for index := start; index < end; index++ {
		values, err := b.client.Call(ctx, OrderBookABI, b.address, methods.get, account, new(big.Int).SetUint64(index))
		if err != nil {
			return nil, fmt.Errorf("read %s order %d: %w", kind, index, err)
		}
		o, live, err := decodeOrder(kind, index, values)
		if err != nil {
			return nil, fmt.Errorf("decode %s order %d: %w", kind, index, err)
		}
		if live {
			list = append(list, o)
		}
	}

	b.logger.Debugw("orders_scanned", "kind", kind.String(), "from", start, "to", end, "live", len(list))
	return list, nil
}

// decodeOrder maps getter outputs onto an order. live is false for deleted slots.
func decodeOrder(kind orders.Kind, index uint64, values []interface{}) (orders.Order, bool, error) {
	d := decoder{values: values}
	switch kind {
	case orders.KindSwap:
		path0, path1, path2 := d.address(), d.address(), d.address()
		o := &orders.SwapOrder{
			Index:                 index,
			AmountIn:              d.u256(),
			MinOut:                d.u256(),
			TriggerRatio:          d.u256(),
			TriggerAboveThreshold: d.flag(),
			ShouldUnwrap:          d.flag(),
			ExecutionFee:          d.u256(),
		}
		if d.err != nil {
			return nil, false, d.err
		}
		if path0 == (common.Address{}) {
			return nil, false, nil
		}
		o.Path = []common.Address{path0}
		for _, p := range []common.Address{path1, path2} {
			if p != (common.Address{}) {
				o.Path = append(o.Path, p)
			}
		}
		return o, true, nil

	case orders.KindIncrease:
		o := &orders.IncreaseOrder{
			Index:               index,
			PurchaseToken:       d.address(),
			PurchaseTokenAmount: d.u256(),
		}
		o.CollateralToken = d.address()
		o.IndexToken = d.address()
		o.SizeDelta = d.u256()
		o.IsLong = d.flag()
		o.TriggerPrice = d.u256()
		o.TriggerAboveThreshold = d.flag()
		o.ExecutionFee = d.u256()
		if d.err != nil {
			return nil, false, d.err
		}
		return o, o.IndexToken != (common.Address{}), nil

	case orders.KindDecrease:
		o := &orders.DecreaseOrder{Index: index}
		o.CollateralToken = d.address()
		o.CollateralDelta = d.u256()
		o.IndexToken = d.address()
		o.SizeDelta = d.u256()
		o.IsLong = d.flag()
		o.TriggerPrice = d.u256()
		o.TriggerAboveThreshold = d.flag()
		o.ExecutionFee = d.u256()
		if d.err != nil {
			return nil, false, d.err
		}
		return o, o.IndexToken != (common.Address{}), nil
	}
	return nil, false, fmt.Errorf("unknown order kind %d", kind)
}

// decoder walks unpacked ABI outputs in order, recording the first type mismatch
type decoder struct {
	values []interface{}
	pos    int
	err    error
}

func (d *decoder) next() interface{} {
	if d.pos >= len(d.values) {
		if d.err == nil {
			d.err = fmt.Errorf("missing output %d", d.pos)
		}
		d.pos++
		return nil
	}
	v := d.values[d.pos]
	d.pos++
	return v
}

func (d *decoder) address() common.Address {
	v := d.next()
	a, ok := v.(common.Address)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("output %d: want address, got %T", d.pos-1, v)
	}
	return a
}

func (d *decoder) u256() *big.Int {
	v := d.next()
	n, ok := v.(*big.Int)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("output %d: want uint256, got %T", d.pos-1, v)
	}
	return n
}

func (d *decoder) flag() bool {
	v := d.next()
	b, ok := v.(bool)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("output %d: want bool, got %T", d.pos-1, v)
	}
	return b
}
