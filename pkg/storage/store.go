// Package storage persists the last fetched order set per account in pebble,
// so a restarted node can serve orders before its first refresh completes.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

// RefreshInfo records when an account's orders were last replaced
type RefreshInfo struct {
	BlockNumber uint64    `json:"blockNumber"`
	RefreshedAt time.Time `json:"refreshedAt"`
	OrderCount  int       `json:"orderCount"`
}

// OrderStore provides Pebble-based persistence for order snapshots
type OrderStore struct {
	db *pebble.DB
}

// NewOrderStore opens a Pebble database at the given path.
// Pebble's own log lines go to logger.
func NewOrderStore(dbPath string, logger *zap.SugaredLogger) (*OrderStore, error) {
	cache := pebble.NewCache(16 << 20) // 16MB cache
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:        cache,
		MemTableSize: 8 << 20,
		MaxOpenFiles: 256,
		Logger:       logger.Named("pebble"),
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &OrderStore{db: db}, nil
}

// Close closes the database
func (s *OrderStore) Close() error {
	return s.db.Close()
}

// ReplaceOrders atomically swaps the stored order set of addr for list
func (s *OrderStore) ReplaceOrders(addr common.Address, list []orders.Order) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	prefix := orderPrefix(addr)
	if err := batch.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return fmt.Errorf("failed to clear orders: %w", err)
	}
	for _, o := range list {
		data, err := orders.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %s: %w", o.OrderID(), err)
		}
		if err := batch.Set(orderKey(addr, o.OrderID()), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %s: %w", o.OrderID(), err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit orders: %w", err)
	}
	return nil
}

// LoadOrders returns the stored orders of addr in key order (kind, then index)
func (s *OrderStore) LoadOrders(addr common.Address) ([]orders.Order, error) {
	prefix := orderPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var list []orders.Order
	for iter.First(); iter.Valid(); iter.Next() {
		o, err := orders.Unmarshal(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Key(), err)
		}
		list = append(list, o)
	}
	return list, iter.Error()
}

// SaveRefreshInfo records the last successful refresh of addr
func (s *OrderStore) SaveRefreshInfo(addr common.Address, info RefreshInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh info: %w", err)
	}
	if err := s.db.Set(refreshKey(addr), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save refresh info: %w", err)
	}
	return nil
}

// LoadRefreshInfo returns false if addr has never been refreshed
func (s *OrderStore) LoadRefreshInfo(addr common.Address) (RefreshInfo, bool, error) {
	data, closer, err := s.db.Get(refreshKey(addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return RefreshInfo{}, false, nil
	}
	if err != nil {
		return RefreshInfo{}, false, fmt.Errorf("failed to get refresh info: %w", err)
	}
	defer closer.Close()

	var info RefreshInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return RefreshInfo{}, false, fmt.Errorf("failed to unmarshal refresh info: %w", err)
	}
	return info, true, nil
}

// SavePositions replaces the stored positions of addr
func (s *OrderStore) SavePositions(addr common.Address, positions market.Positions) error {
	list := make([]market.Position, 0, len(positions))
	for _, p := range positions {
		list = append(list, p)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}
	if err := s.db.Set(positionsKey(addr), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save positions: %w", err)
	}
	return nil
}

// LoadPositions returns false if no positions were ever saved for addr
func (s *OrderStore) LoadPositions(addr common.Address) (market.Positions, bool, error) {
	data, closer, err := s.db.Get(positionsKey(addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get positions: %w", err)
	}
	defer closer.Close()

	var list []market.Position
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal positions: %w", err)
	}
	positions := make(market.Positions, len(list))
	for _, p := range list {
		positions.Add(p)
	}
	return positions, true, nil
}
