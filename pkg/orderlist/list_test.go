package orderlist

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/annotate"
	"github.com/uhyunpark/orderwatch/pkg/format"
	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

var (
	weth = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	usdc = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	link = common.HexToAddress("0xf97f4df75117a78c1A5a0DBb814Af92458539FB4")
)

func usd(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), format.Precision)
}

func testSnapshot() market.Snapshot {
	return market.Snapshot{
		WrappedNative: weth,
		Tokens: market.Tokens{
			weth: {Address: weth, Symbol: "WETH", BaseSymbol: "ETH", Decimals: 18, IsWrapped: true,
				MinPrice: usd(1990), MaxPrice: usd(2010)},
			market.NativeToken: {Address: market.NativeToken, Symbol: "ETH", Decimals: 18, IsNative: true,
				MinPrice: usd(2000), MaxPrice: usd(2000)},
			usdc: {Address: usdc, Symbol: "USDC", Decimals: 6, IsStable: true,
				MinPrice: usd(1), MaxPrice: usd(1)},
		},
		Positions: market.Positions{},
	}
}

func swapOrder(index uint64) *orders.SwapOrder {
	return &orders.SwapOrder{
		Index:        index,
		Path:         []common.Address{weth, usdc},
		AmountIn:     big.NewInt(1e18),
		MinOut:       big.NewInt(1500e6),
		TriggerRatio: new(big.Int).Div(format.Precision, big.NewInt(1500)),
	}
}

func increaseOrder(index uint64, indexToken common.Address) *orders.IncreaseOrder {
	return &orders.IncreaseOrder{
		Index:               index,
		PurchaseToken:       usdc,
		PurchaseTokenAmount: big.NewInt(100e6),
		Trigger: orders.Trigger{
			CollateralToken: usdc,
			IndexToken:      indexToken,
			IsLong:          true,
			SizeDelta:       usd(1000),
			TriggerPrice:    usd(1950),
		},
	}
}

func decreaseOrder(index uint64) *orders.DecreaseOrder {
	return &orders.DecreaseOrder{
		Index:           index,
		CollateralDelta: big.NewInt(0),
		Trigger: orders.Trigger{
			CollateralToken:       usdc,
			IndexToken:            weth,
			IsLong:                false,
			SizeDelta:             usd(500),
			TriggerPrice:          usd(2100),
			TriggerAboveThreshold: true,
		},
	}
}

func newTestList(t *testing.T, cfg Config, c Canceller, list ...orders.Order) *List {
	t.Helper()
	cfg.WrappedNative = weth
	l := New(cfg, c, zap.NewNop().Sugar())
	set, err := orders.NewSet(list)
	require.NoError(t, err)
	l.Replace(set, testSnapshot())
	return l
}

func TestRows_Empty(t *testing.T) {
	l := New(Config{WrappedNative: weth}, nil, zap.NewNop().Sugar())
	assert.Empty(t, l.Rows())
	assert.Equal(t, 0, l.Len())
}

func TestRows_Swap(t *testing.T) {
	l := newTestList(t, Config{}, nil, swapOrder(1))

	rows := l.Rows()
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, "swap-1", row.ID)
	assert.Equal(t, TypeLimit, row.Type)
	assert.Equal(t, "Swap 1.0000 ETH for 1,500.00 USDC", row.Title)
	assert.Equal(t, "1,500.00 USDC / ETH", row.Price)
	assert.Equal(t, "2,000.00 USDC / ETH", row.MarkPrice)
	assert.Contains(t, row.Tooltip, "You will receive at least 1,500.00 USDC")
	assert.Empty(t, row.Warning)
	assert.Equal(t, []string{ActionEdit, ActionCancel}, row.Actions)
}

func TestRows_TriggerOrders(t *testing.T) {
	l := newTestList(t, Config{}, nil, increaseOrder(2, weth), decreaseOrder(3))

	rows := l.Rows()
	require.Len(t, rows, 2)

	inc := rows[0]
	assert.Equal(t, TypeLimit, inc.Type)
	assert.Equal(t, "Increase ETH Long by $1,000.00", inc.Title)
	assert.Equal(t, "below 1,950.00", inc.Price)
	assert.Equal(t, "2,010.00", inc.MarkPrice, "long increase marks at the max price")

	dec := rows[1]
	assert.Equal(t, TypeTrigger, dec.Type)
	assert.Equal(t, "Decrease ETH Short by $500.00", dec.Title)
	assert.Equal(t, "above 2,100.00", dec.Price)
	assert.Equal(t, "2,010.00", dec.MarkPrice, "short decrease marks at the max price")
	assert.Equal(t, string(annotate.WarnNoOpenPosition), dec.Warning)
}

func TestRows_AnnotationFailureIsolated(t *testing.T) {
	l := New(Config{WrappedNative: weth}, nil, zap.NewNop().Sugar())

	var failed []orders.ID
	l.OnAnnotationError = func(id orders.ID, err error) {
		assert.ErrorIs(t, err, annotate.ErrMissingTokenInfo)
		failed = append(failed, id)
	}

	set, err := orders.NewSet([]orders.Order{swapOrder(1), increaseOrder(2, link), decreaseOrder(3)})
	require.NoError(t, err)
	l.Replace(set, testSnapshot())

	rows := l.Rows()
	require.Len(t, rows, 3)
	assert.Empty(t, rows[0].Error)
	assert.NotEmpty(t, rows[1].Error)
	assert.Empty(t, rows[1].Actions)
	assert.Equal(t, format.Placeholder, rows[1].MarkPrice)
	assert.Empty(t, rows[2].Error)
	assert.Equal(t, []orders.ID{{Kind: orders.KindIncrease, Index: 2}}, failed)

	// rendering again does not report the failure again
	l.Rows()
	_, _, ok := l.Row(orders.ID{Kind: orders.KindIncrease, Index: 2})
	require.True(t, ok)
	assert.Len(t, l.Annotations(), 2)
	assert.Len(t, failed, 1)

	// a new snapshot is a new report
	l.Replace(set, testSnapshot())
	assert.Len(t, failed, 2)
}

func TestRow(t *testing.T) {
	l := newTestList(t, Config{}, nil, swapOrder(1), decreaseOrder(3))

	id := orders.ID{Kind: orders.KindDecrease, Index: 3}
	row, o, ok := l.Row(id)
	require.True(t, ok)
	assert.Equal(t, "decrease-3", row.ID)
	assert.Equal(t, id, o.OrderID())
	assert.Equal(t, []string{ActionEdit, ActionCancel}, row.Actions)
	assert.Equal(t, l.Rows()[1], row)

	_, o, ok = l.Row(orders.ID{Kind: orders.KindDecrease, Index: 4})
	assert.False(t, ok)
	assert.Nil(t, o)
}

func TestReadOnly(t *testing.T) {
	c := &fakeCanceller{}
	l := newTestList(t, Config{ReadOnly: true}, c, swapOrder(1))

	rows := l.Rows()
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Actions)

	_, err := l.Cancel(context.Background(), orders.ID{Kind: orders.KindSwap, Index: 1})
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = l.RequestEdit(orders.ID{Kind: orders.KindSwap, Index: 1})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Zero(t, c.sent)
}

func TestCountByKind(t *testing.T) {
	l := newTestList(t, Config{}, nil, swapOrder(1), swapOrder(2), decreaseOrder(3))
	assert.Equal(t, map[string]int{"swap": 2, "decrease": 1}, l.CountByKind())
}

type fakeCanceller struct {
	mu         sync.Mutex
	sent       int
	sendErr    error
	confirmErr error
}

func (c *fakeCanceller) CancelOrder(_ context.Context, kind orders.Kind, index uint64) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	c.sent++
	return common.BigToHash(big.NewInt(int64(kind)*1000 + int64(index))), nil
}

func (c *fakeCanceller) Confirm(ctx context.Context, _ common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.confirmErr
}

type statusLog struct {
	mu       sync.Mutex
	statuses []TxStatus
}

func (s *statusLog) add(st TxStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *statusLog) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.statuses))
	for i, st := range s.statuses {
		out[i] = st.Message
	}
	return out
}

func TestCancel_Confirmed(t *testing.T) {
	c := &fakeCanceller{}
	l := newTestList(t, Config{}, c, decreaseOrder(3))

	var log statusLog
	l.OnTxStatus = log.add
	var cancelled []orders.ID
	l.OnCancelled = func(id orders.ID) { cancelled = append(cancelled, id) }

	id := orders.ID{Kind: orders.KindDecrease, Index: 3}
	ctx, cancel := context.WithCancel(context.Background())
	hash, err := l.Cancel(ctx, id)
	require.NoError(t, err)
	// confirmation outlives the request
	cancel()
	l.Wait()

	assert.Equal(t, common.BigToHash(big.NewInt(3003)), hash)
	assert.Equal(t, []string{MsgCancelSubmitted, MsgCancelled}, log.messages())
	assert.Equal(t, []orders.ID{id}, cancelled)
}

func TestCancel_Reverted(t *testing.T) {
	c := &fakeCanceller{confirmErr: errors.New("transaction reverted")}
	l := newTestList(t, Config{}, c, swapOrder(1))

	var log statusLog
	l.OnTxStatus = log.add
	l.OnCancelled = func(orders.ID) { t.Error("reverted cancel must not trigger a refresh") }

	_, err := l.Cancel(context.Background(), orders.ID{Kind: orders.KindSwap, Index: 1})
	require.NoError(t, err)
	l.Wait()

	assert.Equal(t, []string{MsgCancelSubmitted, MsgCancelFailed}, log.messages())
}

func TestCancel_SubmitFails(t *testing.T) {
	c := &fakeCanceller{sendErr: errors.New("insufficient funds")}
	l := newTestList(t, Config{}, c, swapOrder(1))

	var log statusLog
	l.OnTxStatus = log.add

	_, err := l.Cancel(context.Background(), orders.ID{Kind: orders.KindSwap, Index: 1})
	require.Error(t, err)
	l.Wait()

	assert.Equal(t, []string{MsgCancelFailed}, log.messages())
}

func TestCancel_Errors(t *testing.T) {
	l := newTestList(t, Config{}, &fakeCanceller{}, swapOrder(1))
	_, err := l.Cancel(context.Background(), orders.ID{Kind: orders.KindSwap, Index: 2})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	noKey := newTestList(t, Config{}, nil, swapOrder(1))
	_, err = noKey.Cancel(context.Background(), orders.ID{Kind: orders.KindSwap, Index: 1})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestRequestEdit(t *testing.T) {
	l := newTestList(t, Config{}, nil, swapOrder(1), decreaseOrder(3))

	var edited orders.Order
	l.OnEdit = func(o orders.Order) { edited = o }

	o, err := l.RequestEdit(orders.ID{Kind: orders.KindDecrease, Index: 3})
	require.NoError(t, err)
	assert.Equal(t, o, edited)
	assert.Equal(t, orders.ID{Kind: orders.KindDecrease, Index: 3}, edited.OrderID())

	_, err = l.RequestEdit(orders.ID{Kind: orders.KindIncrease, Index: 3})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestReplace_Atomic(t *testing.T) {
	l := newTestList(t, Config{}, nil, swapOrder(1))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n := len(l.Rows())
				assert.True(t, n == 1 || n == 2)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		set, err := orders.NewSet([]orders.Order{swapOrder(1), decreaseOrder(uint64(j + 10))})
		require.NoError(t, err)
		l.Replace(set, testSnapshot())
	}
	wg.Wait()
}
