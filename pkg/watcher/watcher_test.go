package watcher

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/annotate"
	"github.com/uhyunpark/orderwatch/pkg/format"
	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orderlist"
	"github.com/uhyunpark/orderwatch/pkg/orders"
	"github.com/uhyunpark/orderwatch/pkg/storage"
)

var (
	account = common.HexToAddress("0xAA00000000000000000000000000000000000001")
	weth    = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	usdc    = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	link    = common.HexToAddress("0xf97f4df75117a78c1A5a0DBb814Af92458539FB4")
	wbtc    = common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f")
)

func usd(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), format.Precision)
}

type fakeOrders struct {
	list []orders.Order
	err  error
}

func (f *fakeOrders) FetchOrders(context.Context, common.Address) ([]orders.Order, error) {
	return f.list, f.err
}

type fakeMarket struct {
	priced    []common.Address
	keys      []market.PositionKey
	positions market.Positions
}

func (f *fakeMarket) TokenPrices(_ context.Context, tokens []common.Address) (map[common.Address][2]*big.Int, error) {
	f.priced = tokens
	out := make(map[common.Address][2]*big.Int)
	for _, t := range tokens {
		switch t {
		case weth:
			out[t] = [2]*big.Int{usd(1990), usd(2010)}
		case usdc:
			out[t] = [2]*big.Int{usd(1), usd(1)}
		}
	}
	return out, nil
}

func (f *fakeMarket) Positions(_ context.Context, _ common.Address, keys []market.PositionKey) (market.Positions, error) {
	f.keys = keys
	return f.positions, nil
}

type fixedBlock uint64

func (b fixedBlock) BlockNumber(context.Context) (uint64, error) { return uint64(b), nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (c fixedClock) Now() time.Time                         { return c.now }

func testRegistry(t *testing.T) *market.TokenRegistry {
	t.Helper()
	r := market.NewTokenRegistry(weth)
	require.NoError(t, r.RegisterToken(market.TokenInfo{Address: market.NativeToken, Symbol: "ETH", Decimals: 18, IsNative: true}))
	require.NoError(t, r.RegisterToken(market.TokenInfo{Address: weth, Symbol: "WETH", BaseSymbol: "ETH", Decimals: 18, IsWrapped: true}))
	require.NoError(t, r.RegisterToken(market.TokenInfo{Address: usdc, Symbol: "USDC", Decimals: 6, IsStable: true}))
	return r
}

func sampleOrders() []orders.Order {
	trigger := orders.Trigger{
		CollateralToken: usdc,
		IndexToken:      weth,
		IsLong:          true,
		SizeDelta:       usd(1000),
		TriggerPrice:    usd(2100),
	}
	return []orders.Order{
		&orders.SwapOrder{Index: 1, Path: []common.Address{weth, usdc}, AmountIn: big.NewInt(1e18),
			MinOut: big.NewInt(1500e6), TriggerRatio: big.NewInt(1)},
		&orders.IncreaseOrder{Index: 1, PurchaseToken: usdc, PurchaseTokenAmount: big.NewInt(1), Trigger: trigger},
		&orders.DecreaseOrder{Index: 1, CollateralDelta: big.NewInt(0), Trigger: trigger},
		&orders.DecreaseOrder{Index: 2, CollateralDelta: big.NewInt(0), Trigger: trigger},
	}
}

type harness struct {
	watcher *Watcher
	list    *orderlist.List
	orders  *fakeOrders
	market  *fakeMarket
	store   *storage.OrderStore
}

func newHarness(t *testing.T, store *storage.OrderStore) *harness {
	t.Helper()
	h := &harness{
		list:   orderlist.New(orderlist.Config{WrappedNative: weth}, nil, zap.NewNop().Sugar()),
		orders: &fakeOrders{list: sampleOrders()},
		market: &fakeMarket{positions: market.Positions{}},
		store:  store,
	}
	var s Store
	if store != nil {
		s = store
	}
	clock := fixedClock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	h.watcher = New(account, h.orders, h.market, fixedBlock(777), testRegistry(t), s, h.list, clock, zap.NewNop().Sugar())
	return h
}

func openStore(t *testing.T, dir string) *storage.OrderStore {
	t.Helper()
	s, err := storage.NewOrderStore(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestRefreshOrders(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "db"))
	defer store.Close()
	h := newHarness(t, store)

	key := market.PositionKey{CollateralToken: usdc, IndexToken: weth, IsLong: true}
	h.market.positions.Add(market.Position{Key: key, Size: usd(400)})

	var refreshed int
	h.watcher.OnRefreshed = func() { refreshed++ }

	require.NoError(t, h.watcher.RefreshOrders(context.Background()))
	assert.Equal(t, 1, refreshed)

	// native and wrapped share one price read; usdc is the only other token
	assert.ElementsMatch(t, []common.Address{weth, usdc}, h.market.priced)
	assert.Equal(t, []market.PositionKey{key}, h.market.keys, "position keys are deduplicated")

	snap := h.list.Snapshot()
	assert.Equal(t, uint64(777), snap.BlockNumber)
	assert.Equal(t, 0, usd(2010).Cmp(snap.Tokens[market.NativeToken].MaxPrice))

	rows := h.list.Rows()
	require.Len(t, rows, 4)
	// both decreases target a 400 position; 1000 exceeds it
	assert.Equal(t, string(annotate.WarnSizeExceedsPosition), rows[2].Warning)
	assert.Equal(t, string(annotate.WarnSizeExceedsPosition), rows[3].Warning)

	stored, err := store.LoadOrders(account)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	info, ok, err := store.LoadRefreshInfo(account)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(777), info.BlockNumber)
	assert.Equal(t, 4, info.OrderCount)
}

func TestRefreshOrders_FailureKeepsPreviousSet(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.watcher.RefreshOrders(context.Background()))
	require.Equal(t, 4, h.list.Len())

	h.orders.err = errors.New("rpc timeout")
	err := h.watcher.RefreshOrders(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, h.list.Len())
}

func TestRefreshOrders_DuplicateOrdersRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.orders.list = append(sampleOrders(), sampleOrders()[0])

	err := h.watcher.RefreshOrders(context.Background())
	assert.ErrorIs(t, err, orders.ErrDuplicateOrder)
	assert.Equal(t, 0, h.list.Len())
}

func TestRefreshOrders_UnknownTokenNotPriced(t *testing.T) {
	h := newHarness(t, nil)
	h.orders.list = []orders.Order{
		&orders.SwapOrder{Index: 4, Path: []common.Address{link, usdc}, AmountIn: big.NewInt(1),
			MinOut: big.NewInt(1), TriggerRatio: big.NewInt(1)},
	}

	require.NoError(t, h.watcher.RefreshOrders(context.Background()))
	assert.Equal(t, []common.Address{usdc}, h.market.priced)

	rows := h.list.Rows()
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].Error)
}

func TestRefreshOrders_PricesEveryPathToken(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.watcher.registry.RegisterToken(market.TokenInfo{Address: wbtc, Symbol: "WBTC", Decimals: 8}))
	h.orders.list = []orders.Order{
		&orders.SwapOrder{Index: 5, Path: []common.Address{usdc, wbtc, weth}, AmountIn: big.NewInt(1),
			MinOut: big.NewInt(1), TriggerRatio: big.NewInt(1)},
	}

	require.NoError(t, h.watcher.RefreshOrders(context.Background()))
	assert.ElementsMatch(t, []common.Address{usdc, wbtc, weth}, h.market.priced)
}

func TestRestore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	store := openStore(t, dir)
	h := newHarness(t, store)
	require.NoError(t, h.watcher.RefreshOrders(context.Background()))
	require.NoError(t, store.Close())

	store = openStore(t, dir)
	defer store.Close()
	restarted := newHarness(t, store)
	require.NoError(t, restarted.watcher.Restore())

	assert.Equal(t, 4, restarted.list.Len())
	assert.Equal(t, uint64(777), restarted.list.Snapshot().BlockNumber)

	// no prices yet: rows render with placeholders instead of failing
	rows := restarted.list.Rows()
	require.Len(t, rows, 4)
	assert.Empty(t, rows[1].Error)
	assert.Equal(t, format.Placeholder, rows[1].MarkPrice)
}

func TestRestore_KeepsStoredPositions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	store := openStore(t, dir)
	h := newHarness(t, store)
	key := market.PositionKey{CollateralToken: usdc, IndexToken: weth, IsLong: true}
	h.market.positions = market.Positions{}
	h.market.positions.Add(market.Position{Key: key, Size: usd(5000), Collateral: usd(500), AveragePrice: usd(2000)})
	require.NoError(t, h.watcher.RefreshOrders(context.Background()))
	require.NoError(t, store.Close())

	store = openStore(t, dir)
	defer store.Close()
	restarted := newHarness(t, store)
	require.NoError(t, restarted.watcher.Restore())

	for _, row := range restarted.list.Rows() {
		if row.Kind == orders.KindDecrease.String() {
			assert.Empty(t, row.Warning, "row %s", row.ID)
		}
	}
}

func TestRestore_UnknownPositionsDoNotWarn(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	store := openStore(t, dir)
	defer store.Close()
	require.NoError(t, store.ReplaceOrders(account, sampleOrders()))

	h := newHarness(t, store)
	require.NoError(t, h.watcher.Restore())
	assert.Nil(t, h.list.Snapshot().Positions)

	rows := h.list.Rows()
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Empty(t, row.Warning, "row %s", row.ID)
	}
}
