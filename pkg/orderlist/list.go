// Package orderlist holds the trader's current open orders with the market
// snapshot they were fetched with, renders them for display and routes
// cancel and edit requests.
package orderlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/annotate"
	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrReadOnly      = errors.New("order actions are disabled")
)

// Canceller submits cancel transactions. *chain.Canceller implements it.
type Canceller interface {
	CancelOrder(ctx context.Context, kind orders.Kind, index uint64) (common.Hash, error)
	Confirm(ctx context.Context, hash common.Hash) error
}

type Config struct {
	WrappedNative  common.Address
	ReadOnly       bool          // rows carry no actions; cancel and edit are rejected
	ConfirmTimeout time.Duration // how long to follow a cancel transaction
}

type List struct {
	mu       sync.RWMutex
	set      *orders.Set
	snapshot market.Snapshot

	cfg       Config
	annotator *annotate.Annotator
	canceller Canceller
	logger    *zap.SugaredLogger
	pending   sync.WaitGroup

	// OnTxStatus receives cancel lifecycle updates. Optional.
	OnTxStatus func(TxStatus)
	// OnEdit receives the order selected for editing. Optional.
	OnEdit func(orders.Order)
	// OnCancelled is called once a cancel transaction is confirmed. Optional.
	OnCancelled func(id orders.ID)
	// OnAnnotationError is called once per Replace for every order that could not
	// be annotated against the new snapshot. Optional.
	OnAnnotationError func(id orders.ID, err error)
}

// New creates an empty list. canceller may be nil, in which case cancel is unavailable.
func New(cfg Config, canceller Canceller, logger *zap.SugaredLogger) *List {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 10 * time.Minute
	}
	return &List{
		set:       orders.EmptySet(),
		snapshot:  market.EmptySnapshot(cfg.WrappedNative),
		cfg:       cfg,
		annotator: annotate.New(cfg.WrappedNative),
		canceller: canceller,
		logger:    logger,
	}
}

// Replace swaps in a new order set and the market snapshot it should be read against
func (l *List) Replace(set *orders.Set, snapshot market.Snapshot) {
	if set == nil {
		set = orders.EmptySet()
	}
	l.mu.Lock()
	l.set = set
	l.snapshot = snapshot
	l.mu.Unlock()

	results := l.annotator.AnnotateAll(set.Orders(), snapshot.Tokens, snapshot.Positions)
	for _, r := range annotate.Failed(results) {
		id := r.Order.OrderID()
		l.logger.Warnw("annotate_failed", "order", id.String(), "err", r.Err)
		if l.OnAnnotationError != nil {
			l.OnAnnotationError(id, r.Err)
		}
	}
}

func (l *List) current() (*orders.Set, market.Snapshot) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.set, l.snapshot
}

func (l *List) Len() int {
	set, _ := l.current()
	return set.Len()
}

func (l *List) ReadOnly() bool { return l.cfg.ReadOnly }

// Snapshot returns the market data the current set is rendered against
func (l *List) Snapshot() market.Snapshot {
	_, snap := l.current()
	return snap
}

// Order looks up an order in the current set
func (l *List) Order(id orders.ID) (orders.Order, bool) {
	set, _ := l.current()
	return set.Get(id)
}

// CountByKind counts current orders per kind name
func (l *List) CountByKind() map[string]int {
	set, _ := l.current()
	out := make(map[string]int)
	for kind, n := range set.CountByKind() {
		out[kind.String()] = n
	}
	return out
}

// Annotations annotates every current order. Failures are skipped; Replace reports them.
func (l *List) Annotations() []annotate.Annotation {
	results := l.annotate()
	out := make([]annotate.Annotation, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Annotation)
		}
	}
	return out
}

func (l *List) annotate() []annotate.Result {
	set, snap := l.current()
	return l.annotator.AnnotateAll(set.Orders(), snap.Tokens, snap.Positions)
}

// Cancel submits a cancel for order id and follows the transaction in the background.
// Status updates go to OnTxStatus. Nothing is retried.
func (l *List) Cancel(ctx context.Context, id orders.ID) (common.Hash, error) {
	if l.cfg.ReadOnly {
		return common.Hash{}, ErrReadOnly
	}
	if l.canceller == nil {
		return common.Hash{}, fmt.Errorf("%w: no signing key configured", ErrReadOnly)
	}
	if _, ok := l.Order(id); !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	hash, err := l.canceller.CancelOrder(ctx, id.Kind, id.Index)
	if err != nil {
		l.logger.Errorw("cancel_failed", "order", id.String(), "err", err)
		l.publish(TxStatus{OrderID: id.String(), Status: TxFailed, Message: MsgCancelFailed, Error: err.Error()})
		return common.Hash{}, err
	}
	l.publish(TxStatus{OrderID: id.String(), TxHash: hash.Hex(), Status: TxSubmitted, Message: MsgCancelSubmitted})

	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.ConfirmTimeout)
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		defer cancel()
		l.confirm(confirmCtx, id, hash)
	}()
	return hash, nil
}

func (l *List) confirm(ctx context.Context, id orders.ID, hash common.Hash) {
	if err := l.canceller.Confirm(ctx, hash); err != nil {
		l.logger.Errorw("cancel_not_confirmed", "order", id.String(), "tx", hash.Hex(), "err", err)
		l.publish(TxStatus{OrderID: id.String(), TxHash: hash.Hex(), Status: TxFailed, Message: MsgCancelFailed, Error: err.Error()})
		return
	}
	l.publish(TxStatus{OrderID: id.String(), TxHash: hash.Hex(), Status: TxConfirmed, Message: MsgCancelled})
	if l.OnCancelled != nil {
		l.OnCancelled(id)
	}
}

// Wait blocks until every background cancel confirmation has finished
func (l *List) Wait() { l.pending.Wait() }

// RequestEdit emits the edit signal for order id and returns the order
func (l *List) RequestEdit(id orders.ID) (orders.Order, error) {
	if l.cfg.ReadOnly {
		return nil, ErrReadOnly
	}
	o, ok := l.Order(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if l.OnEdit != nil {
		l.OnEdit(o)
	}
	return o, nil
}

func (l *List) publish(s TxStatus) {
	if l.OnTxStatus != nil {
		l.OnTxStatus(s)
	}
}
