package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/awardtally/internal/adapters/http/api"
	"github.com/okian/awardtally/internal/adapters/ledger"
	"github.com/okian/awardtally/internal/adapters/mq/queue"
	"github.com/okian/awardtally/internal/adapters/notify"
	"github.com/okian/awardtally/internal/adapters/repository"
	app "github.com/okian/awardtally/internal/app"
	"github.com/okian/awardtally/internal/config"
	"github.com/okian/awardtally/internal/domain/catalog"
	"github.com/okian/awardtally/internal/domain/eligibility"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/weights"
	"github.com/okian/awardtally/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	natsReconnectWait = 2 * time.Second
	natsMaxReconnects = 60
)

func main() {
	// Our own system gauges replace the default Go and process collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		logger.Get().Error(context.Background(), "awardtally exited", logger.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run wires every component from configuration and serves until ctx ends.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.SentryDSN != "" {
		if err := logger.Init(logger.WithSentryDSN(cfg.SentryDSN)); err != nil {
			return fmt.Errorf("init sentry logging: %w", err)
		}
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// A weight table that does not sum to 1 must stop the process here.
	registry, err := weights.FromConfig(cfg.Weights)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	evaluator, err := buildEvaluator(cfg)
	if err != nil {
		return fmt.Errorf("eligibility rules: %w", err)
	}
	cat, err := catalog.LoadOrEmpty(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	pub, err := buildPublisher(cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("notifier: %w", err)
	}
	dispatcher := notify.NewDispatcher(pub,
		notify.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))),
		notify.WithWorkers(cfg.WorkerCount),
	)
	// Delivery outlives the signal context so Stop can drain it.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "notifier shutdown failed", logger.Error(err))
		}
	}()

	svc, err := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithLedger(buildLedger(cfg)),
		app.WithRegistry(registry),
		app.WithEvaluator(evaluator),
		app.WithCatalog(cat),
		app.WithNotifier(dispatcher),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithLedgerTimeout(cfg.LedgerTimeout()),
		app.WithPrices(cfg.VotePriceAGC, cfg.NominationPriceAGC),
		app.WithRescoreInterval(cfg.RescoreInterval()),
		app.WithConflictRetries(cfg.ConflictMaxRetries),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create service: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc).Handler(ctx),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func buildEvaluator(cfg *config.Config) (*eligibility.Evaluator, error) {
	var opts []eligibility.Option
	for name, threshold := range cfg.Thresholds {
		tier, err := model.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		opts = append(opts, eligibility.WithThreshold(tier, threshold))
	}
	for name, n := range cfg.WinnerCounts {
		tier, err := model.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("winner_counts: %w", err)
		}
		opts = append(opts, eligibility.WithWinnerCount(tier, n))
	}
	return eligibility.NewEvaluator(opts...)
}

func buildStore(cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreSQLite {
		return repository.OpenSQLite(cfg.SQLiteDir)
	}
	return repository.NewMemoryStore(), nil
}

func buildLedger(cfg *config.Config) ledger.Ledger {
	if cfg.LedgerDriver == config.LedgerHTTP {
		return ledger.NewHTTPLedger(cfg.LedgerURL)
	}
	var opts []ledger.MemoryOption
	if cfg.LedgerAutoFund > 0 {
		opts = append(opts, ledger.WithAutoFund(cfg.LedgerAutoFund))
	}
	return ledger.NewMemoryLedger(opts...)
}

func buildPublisher(cfg *config.Config) (notify.Publisher, error) {
	if cfg.NotifierDriver == config.NotifierNATS {
		return notify.NewNATSPublisher(notify.NATSConfig{
			URL:           cfg.NATSURL,
			Subject:       cfg.NATSSubject,
			MaxReconnects: natsMaxReconnects,
			ReconnectWait: natsReconnectWait,
			JetStream:     cfg.NATSJetStream,
		})
	}
	return notify.NewLogPublisher(nil), nil
}
