package refresh

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/util"
)

const testInterval = 200 * time.Millisecond

func TestThrottle_CoalescesBursts(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(testInterval, func(context.Context) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	th.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond,
		"first call is immediate")

	for i := 0; i < 5; i++ {
		th.Trigger()
	}
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(3 * testInterval)
	assert.Equal(t, int32(2), calls.Load(), "burst of triggers must collapse into one call")
}

func TestThrottle_SpacesCalls(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	th := NewThrottle(testInterval, func(context.Context) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	th.Trigger()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stamps) == 1
	}, time.Second, 5*time.Millisecond)

	th.Trigger()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stamps) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	gap := stamps[1].Sub(stamps[0])
	mu.Unlock()
	assert.GreaterOrEqual(t, gap, testInterval-20*time.Millisecond)
}

func TestThrottle_CancelDropsPending(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(time.Hour, func(context.Context) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		th.Run(ctx)
		close(done)
	}()

	th.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// second call would wait an hour
	th.Trigger()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(1), calls.Load())
}

type fakeSub struct {
	errCh chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errCh }

type fakeHeads struct {
	mu   sync.Mutex
	subs []*fakeSub
	chs  []chan<- *types.Header
	fail error
}

func (f *fakeHeads) SubscribeNewHead(_ context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		err := f.fail
		f.fail = nil
		return nil, err
	}
	sub := &fakeSub{errCh: make(chan error, 1)}
	f.subs = append(f.subs, sub)
	f.chs = append(f.chs, ch)
	return sub, nil
}

func (f *fakeHeads) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeHeads) latest() (*fakeSub, chan<- *types.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.subs) - 1
	return f.subs[n], f.chs[n]
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshOrders(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func newTestPoller(src HeadSource, ref Refresher) *Poller {
	cfg := Config{Interval: testInterval, RetryDelay: 10 * time.Millisecond}
	return NewPoller(src, ref, cfg, util.RealClock{}, zap.NewNop().Sugar())
}

func TestPoller_RefreshesOnConnectAndCoalescesHeads(t *testing.T) {
	src := &fakeHeads{}
	ref := &countingRefresher{}
	p := newTestPoller(src, ref)

	var heads atomic.Int32
	p.OnHead = func(uint64) { heads.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, ch := src.latest()
	for i := 1; i <= 10; i++ {
		ch <- &types.Header{Number: big.NewInt(int64(i))}
	}
	require.Eventually(t, func() bool { return heads.Load() == 10 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return ref.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(3 * testInterval)
	assert.Equal(t, int32(2), ref.calls.Load())
}

func TestPoller_ResubscribesAfterError(t *testing.T) {
	src := &fakeHeads{fail: errors.New("dial refused")}
	ref := &countingRefresher{err: errors.New("rpc down")}
	p := newTestPoller(src, ref)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// first subscribe fails, second succeeds
	require.Eventually(t, func() bool { return src.count() == 1 }, time.Second, 5*time.Millisecond)

	sub, _ := src.latest()
	sub.errCh <- errors.New("connection reset")
	require.Eventually(t, func() bool { return src.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.GreaterOrEqual(t, ref.calls.Load(), int32(1), "refresh errors do not stop the poller")
}

func TestPoller_TriggerAndOnRefresh(t *testing.T) {
	src := &fakeHeads{}
	ref := &countingRefresher{}
	p := newTestPoller(src, ref)

	var results atomic.Int32
	p.OnRefresh = func(time.Duration, error) { results.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return results.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.Trigger()
	require.Eventually(t, func() bool { return results.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}
