// Package watcher implements the order refresh: read the account's open
// orders and the market data they reference, then swap them into the list.
package watcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orderlist"
	"github.com/uhyunpark/orderwatch/pkg/orders"
	"github.com/uhyunpark/orderwatch/pkg/storage"
	"github.com/uhyunpark/orderwatch/pkg/util"
)

// OrderSource is implemented by *chain.OrderBook
type OrderSource interface {
	FetchOrders(ctx context.Context, account common.Address) ([]orders.Order, error)
}

// MarketSource is implemented by *chain.Vault
type MarketSource interface {
	TokenPrices(ctx context.Context, tokens []common.Address) (map[common.Address][2]*big.Int, error)
	Positions(ctx context.Context, account common.Address, keys []market.PositionKey) (market.Positions, error)
}

// BlockSource is implemented by *ethclient.Client
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Store is implemented by *storage.OrderStore
type Store interface {
	ReplaceOrders(addr common.Address, list []orders.Order) error
	LoadOrders(addr common.Address) ([]orders.Order, error)
	SaveRefreshInfo(addr common.Address, info storage.RefreshInfo) error
	LoadRefreshInfo(addr common.Address) (storage.RefreshInfo, bool, error)
	SavePositions(addr common.Address, positions market.Positions) error
	LoadPositions(addr common.Address) (market.Positions, bool, error)
}

type Watcher struct {
	account  common.Address
	orders   OrderSource
	market   MarketSource
	blocks   BlockSource // optional
	registry *market.TokenRegistry
	store    Store // optional
	list     *orderlist.List
	clock    util.Clock
	logger   *zap.SugaredLogger

	// OnRefreshed is called after every successful refresh. Optional.
	OnRefreshed func()
}

func New(account common.Address, orderSrc OrderSource, marketSrc MarketSource, blocks BlockSource,
	registry *market.TokenRegistry, store Store, list *orderlist.List, clock util.Clock, logger *zap.SugaredLogger) *Watcher {
	return &Watcher{
		account:  account,
		orders:   orderSrc,
		market:   marketSrc,
		blocks:   blocks,
		registry: registry,
		store:    store,
		list:     list,
		clock:    clock,
		logger:   logger,
	}
}

// RefreshOrders replaces the list with the account's current orders.
// On failure the previous set stays in place.
func (w *Watcher) RefreshOrders(ctx context.Context) error {
	fetched, err := w.orders.FetchOrders(ctx, w.account)
	if err != nil {
		return fmt.Errorf("fetch orders: %w", err)
	}
	set, err := orders.NewSet(fetched)
	if err != nil {
		return fmt.Errorf("build order set: %w", err)
	}

	snapshot, err := w.readMarket(ctx, set)
	if err != nil {
		return err
	}

	if w.store != nil {
		w.persist(set, snapshot)
	}

	w.list.Replace(set, snapshot)
	w.logger.Infow("orders_refreshed",
		"account", w.account.Hex(),
		"orders", set.Len(),
		"tokens", len(snapshot.Tokens),
		"positions", len(snapshot.Positions),
		"block", snapshot.BlockNumber,
	)
	if w.OnRefreshed != nil {
		w.OnRefreshed()
	}
	return nil
}

func (w *Watcher) readMarket(ctx context.Context, set *orders.Set) (market.Snapshot, error) {
	tokens, keys := w.referenced(set)

	prices, err := w.market.TokenPrices(ctx, tokens)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("read prices: %w", err)
	}
	positions := market.Positions{}
	if len(keys) > 0 {
		positions, err = w.market.Positions(ctx, w.account, keys)
		if err != nil {
			return market.Snapshot{}, fmt.Errorf("read positions: %w", err)
		}
		if positions == nil {
			positions = market.Positions{}
		}
	}

	var block uint64
	if w.blocks != nil {
		block, err = w.blocks.BlockNumber(ctx)
		if err != nil {
			return market.Snapshot{}, fmt.Errorf("read block number: %w", err)
		}
	}

	return market.Snapshot{
		Tokens:        w.registry.Snapshot(prices),
		Positions:     positions,
		WrappedNative: w.registry.WrappedNative(),
		BlockNumber:   block,
		TakenAt:       w.clock.Now(),
	}, nil
}

// referenced lists the price addresses and position keys the orders in set need.
// Tokens missing from the registry are left out; annotation reports them per order.
func (w *Watcher) referenced(set *orders.Set) ([]common.Address, []market.PositionKey) {
	seenToken := make(map[common.Address]bool)
	var tokens []common.Address
	addToken := func(addr common.Address) {
		if _, err := w.registry.GetToken(addr); err != nil {
			return
		}
		p := w.registry.PriceAddress(addr)
		if !seenToken[p] {
			seenToken[p] = true
			tokens = append(tokens, p)
		}
	}

	seenKey := make(map[market.PositionKey]bool)
	var keys []market.PositionKey

	for _, o := range set.Orders() {
		switch v := o.(type) {
		case *orders.SwapOrder:
			for _, addr := range v.Path {
				addToken(addr)
			}
		case *orders.IncreaseOrder:
			addToken(v.IndexToken)
		case *orders.DecreaseOrder:
			addToken(v.IndexToken)
			key := market.PositionKey{CollateralToken: v.CollateralToken, IndexToken: v.IndexToken, IsLong: v.IsLong}
			if !seenKey[key] {
				seenKey[key] = true
				keys = append(keys, key)
			}
		}
	}
	return tokens, keys
}

func (w *Watcher) persist(set *orders.Set, snapshot market.Snapshot) {
	if err := w.store.ReplaceOrders(w.account, set.Orders()); err != nil {
		w.logger.Warnw("persist_orders_failed", "err", err)
		return
	}
	info := storage.RefreshInfo{BlockNumber: snapshot.BlockNumber, RefreshedAt: snapshot.TakenAt, OrderCount: set.Len()}
	if err := w.store.SaveRefreshInfo(w.account, info); err != nil {
		w.logger.Warnw("persist_refresh_info_failed", "err", err)
	}
	if err := w.store.SavePositions(w.account, snapshot.Positions); err != nil {
		w.logger.Warnw("persist_positions_failed", "err", err)
	}
}

// Restore loads the last persisted order set into the list without prices,
// so the API can list orders before the first refresh. Positions come from the
// same refresh as the orders; if none were stored they stay unknown.
func (w *Watcher) Restore() error {
	if w.store == nil {
		return nil
	}
	stored, err := w.store.LoadOrders(w.account)
	if err != nil {
		return fmt.Errorf("load stored orders: %w", err)
	}
	set, err := orders.NewSet(stored)
	if err != nil {
		return fmt.Errorf("build stored order set: %w", err)
	}

	snapshot := market.EmptySnapshot(w.registry.WrappedNative())
	snapshot.Tokens = w.registry.Snapshot(nil)
	if info, ok, err := w.store.LoadRefreshInfo(w.account); err == nil && ok {
		snapshot.BlockNumber = info.BlockNumber
		snapshot.TakenAt = info.RefreshedAt
	}
	snapshot.Positions = nil
	positions, ok, err := w.store.LoadPositions(w.account)
	if err != nil {
		w.logger.Warnw("load_stored_positions_failed", "err", err)
	} else if ok {
		snapshot.Positions = positions
	}

	w.list.Replace(set, snapshot)
	w.logger.Infow("orders_restored", "account", w.account.Hex(), "orders", set.Len(), "block", snapshot.BlockNumber)
	return nil
}
