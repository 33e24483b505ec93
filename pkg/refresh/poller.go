// Package refresh keeps the order list current by refreshing on new blocks,
// no more often than a fixed interval.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/util"
)

// HeadSource is satisfied by *ethclient.Client
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Refresher reloads the order set. Errors are logged by the poller; it does not retry.
type Refresher interface {
	RefreshOrders(ctx context.Context) error
}

type Config struct {
	Interval   time.Duration // minimum spacing between refreshes
	RetryDelay time.Duration // wait before resubscribing
}

type Poller struct {
	source    HeadSource
	refresher Refresher
	throttle  *Throttle
	cfg       Config
	clock     util.Clock
	logger    *zap.SugaredLogger

	// OnHead is called for every new head, before the throttle. Optional.
	OnHead func(number uint64)
	// OnRefresh is called after every refresh attempt with its duration and result. Optional.
	OnRefresh func(elapsed time.Duration, err error)
}

func NewPoller(source HeadSource, refresher Refresher, cfg Config, clock util.Clock, logger *zap.SugaredLogger) *Poller {
	p := &Poller{
		source:    source,
		refresher: refresher,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
	}
	p.throttle = NewThrottle(cfg.Interval, p.refresh)
	return p
}

// Trigger requests an out-of-band refresh, subject to the same throttle as new heads
func (p *Poller) Trigger() { p.throttle.Trigger() }

// Run subscribes to new heads and refreshes until ctx is cancelled.
// A dropped subscription cancels any pending refresh, then the poller resubscribes after RetryDelay.
func (p *Poller) Run(ctx context.Context) {
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			p.logger.Infow("poller_stopped")
			return
		}
		p.logger.Warnw("head_subscription_lost", "err", err, "retry_in", p.cfg.RetryDelay)
		if util.Sleep(ctx, p.clock, p.cfg.RetryDelay) != nil {
			p.logger.Infow("poller_stopped")
			return
		}
	}
}

// session runs one subscription. It returns when the subscription fails or ctx ends.
func (p *Poller) session(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := p.source.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sessionCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.throttle.Run(sessionCtx)
	}()
	defer wg.Wait()
	defer cancel()

	p.logger.Infow("head_subscription_started")
	p.throttle.Trigger()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case h := <-heads:
			if h == nil {
				continue
			}
			if p.OnHead != nil && h.Number != nil {
				p.OnHead(h.Number.Uint64())
			}
			p.throttle.Trigger()
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	start := p.clock.Now()
	err := p.refresher.RefreshOrders(ctx)
	elapsed := p.clock.Now().Sub(start)

	if p.OnRefresh != nil {
		p.OnRefresh(elapsed, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Errorw("refresh_failed", "err", err, "elapsed", elapsed)
		return
	}
	p.logger.Debugw("refresh_done", "elapsed", elapsed)
}
