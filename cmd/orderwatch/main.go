package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/params"
	"github.com/uhyunpark/orderwatch/pkg/api"
	"github.com/uhyunpark/orderwatch/pkg/chain"
	"github.com/uhyunpark/orderwatch/pkg/crypto"
	"github.com/uhyunpark/orderwatch/pkg/metrics"
	"github.com/uhyunpark/orderwatch/pkg/orderlist"
	"github.com/uhyunpark/orderwatch/pkg/orders"
	"github.com/uhyunpark/orderwatch/pkg/refresh"
	"github.com/uhyunpark/orderwatch/pkg/storage"
	"github.com/uhyunpark/orderwatch/pkg/util"
	"github.com/uhyunpark/orderwatch/pkg/watcher"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Tokens ----
	registry, err := params.LoadTokens(cfg.Node.TokensFile, cfg.Chain.WrappedNative)
	if err != nil {
		return err
	}
	sugar.Infow("tokens_loaded", "file", cfg.Node.TokensFile, "count", registry.Count())

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ---- Chain ----
	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	eth, err := chain.Dial(dialCtx, cfg.Chain.RPCURL)
	cancelDial()
	if err != nil {
		return err
	}
	defer eth.Close()

	client := chain.NewClient(eth, cfg.Breaker, sugar)
	client.OnCall = m.ObserveRPC
	client.OnBreakerChange = func(open bool) {
		if open {
			m.BreakerOpen.Set(1)
		} else {
			m.BreakerOpen.Set(0)
		}
	}
	book := chain.NewOrderBook(client, cfg.Chain.OrderBook, cfg.Refresh.ScanWindow, sugar)
	vault := chain.NewVault(client, cfg.Chain.Vault)

	// ---- Storage ----
	store, err := storage.NewOrderStore(filepath.Join(cfg.Node.DataDir, "orders"), sugar)
	if err != nil {
		return err
	}
	defer store.Close()

	// ---- Order list ----
	var canceller orderlist.Canceller
	if cfg.Account.PrivateKeyHex != "" && !cfg.Node.ReadOnly {
		signer, err := crypto.FromPrivateKeyHex(cfg.Account.PrivateKeyHex)
		if err != nil {
			return fmt.Errorf("PRIVATE_KEY: %w", err)
		}
		if signer.Address() != cfg.Account.Address {
			return fmt.Errorf("PRIVATE_KEY belongs to %s, not ACCOUNT %s", signer.Address().Hex(), cfg.Account.Address.Hex())
		}
		canceller = chain.NewCanceller(eth, signer, cfg.Chain.OrderBook, cfg.Chain.ChainID, util.RealClock{}, sugar)
	} else {
		sugar.Infow("cancel_disabled", "read_only", cfg.Node.ReadOnly)
	}

	list := orderlist.New(orderlist.Config{
		WrappedNative: cfg.Chain.WrappedNative,
		ReadOnly:      cfg.Node.ReadOnly,
	}, canceller, sugar)

	w := watcher.New(cfg.Account.Address, book, vault, eth, registry, store, list, util.RealClock{}, sugar)
	if err := w.Restore(); err != nil {
		sugar.Warnw("restore_failed", "err", err)
	}

	poller := refresh.NewPoller(eth, w, refresh.Config{
		Interval:   cfg.Refresh.Interval,
		RetryDelay: cfg.Refresh.RetryDelay,
	}, util.RealClock{}, sugar)

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		Account:        cfg.Account.Address,
		AllowedOrigins: cfg.Node.CORSOrigins,
		TxLogPath:      cfg.Node.TxLogFile,
	}, list, poller, reg, sugar)

	// ---- Hooks ----
	apiServer.Hub().OnClientCount = func(n int) { m.WSClients.Set(float64(n)) }
	list.OnTxStatus = func(s orderlist.TxStatus) {
		m.Cancels.WithLabelValues(s.Status).Inc()
		apiServer.BroadcastTx(s)
	}
	list.OnEdit = apiServer.BroadcastEdit
	// a confirmed cancel removes the order on chain; show it without waiting for the next head
	list.OnCancelled = func(orders.ID) { poller.Trigger() }
	// counted once per refresh
	list.OnAnnotationError = func(orders.ID, error) { m.AnnotationErrors.Inc() }
	w.OnRefreshed = func() {
		m.SetOrderCounts(list.CountByKind())
		m.OrderWarnings.Set(float64(countWarnings(list)))
		apiServer.BroadcastOrders()
	}
	poller.OnHead = func(n uint64) { m.HeadNumber.Set(float64(n)) }
	poller.OnRefresh = func(elapsed time.Duration, err error) { m.ObserveRefresh(elapsed.Seconds(), err) }

	sugar.Infow("node_starting",
		"account", cfg.Account.Address.Hex(),
		"chain_id", cfg.Chain.ChainID.String(),
		"order_book", cfg.Chain.OrderBook.Hex(),
		"vault", cfg.Chain.Vault.Hex(),
		"refresh_interval_ms", cfg.Refresh.Interval.Milliseconds(),
		"read_only", cfg.Node.ReadOnly,
		"cancel_enabled", canceller != nil,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(runCtx)
	}()

	err = apiServer.Start(runCtx, cfg.Node.APIAddr)
	cancel()
	wg.Wait()

	// unconfirmed cancels are abandoned; their outcome shows up on the next start
	if ctx.Err() != nil {
		sugar.Infow("node_stopped")
		return nil
	}
	return fmt.Errorf("api server: %w", err)
}

func countWarnings(list *orderlist.List) int {
	n := 0
	for _, a := range list.Annotations() {
		if a.HasWarning() {
			n++
		}
	}
	return n
}
