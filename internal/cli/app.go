package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/broker/paper"
	"github.com/r0fls/soad-sub000/internal/config"
	"github.com/r0fls/soad-sub000/internal/marketdata"
	"github.com/r0fls/soad-sub000/internal/observability"
	"github.com/r0fls/soad-sub000/internal/orders"
	"github.com/r0fls/soad-sub000/internal/reconcile"
	"github.com/r0fls/soad-sub000/internal/storage"
	chstore "github.com/r0fls/soad-sub000/internal/storage/clickhouse"
	"github.com/r0fls/soad-sub000/internal/storage/migrations"
	pgstore "github.com/r0fls/soad-sub000/internal/storage/postgres"
	"github.com/r0fls/soad-sub000/internal/strategy"
)

// app holds everything a subcommand needs, built once from config.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observability.Metrics

	pool    *pgstore.Pool
	ledger  storage.Ledger
	archive storage.BalanceHistoryStore
	chConn  *chstore.Conn

	brokers  map[string]broker.Broker
	policies map[string]map[string]strategy.Policy
	history  marketdata.History
	quotes   *marketdata.QuoteStream

	cycle   *reconcile.Cycle
	manager *orders.Manager
}

// newApp loads config and wires the full engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	metrics := observability.NewMetrics("")

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	ledger := pgstore.NewLedger(pool)

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		pool:    pool,
		ledger:  ledger,
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		a.chConn = conn
		a.archive = chstore.NewBalanceHistoryStore(conn)
	}

	if cfg.HistoryEndpoint != "" {
		a.history = marketdata.NewHTTPClient(cfg.HistoryEndpoint)
	}

	if cfg.QuotesEndpoint != "" {
		quotes, err := marketdata.NewQuoteStream(ctx, cfg.QuotesEndpoint, nil, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect quote stream: %w", err)
		}
		a.quotes = quotes
	}

	if err := a.buildBrokers(); err != nil {
		a.Close()
		return nil, err
	}
	a.buildPolicies()

	a.cycle = reconcile.NewCycle(reconcile.CycleOptions{
		Ledger:      a.ledger,
		Brokers:     a.brokers,
		Policies:    a.policies,
		History:     a.history,
		Archive:     a.archive,
		Concurrency: cfg.Concurrency,
		Log:         log,
		Metrics:     metrics,
	})
	a.manager = orders.NewManager(orders.Options{
		Ledger:         a.ledger,
		Brokers:        a.brokers,
		StaleAfter:     cfg.StaleThreshold(),
		PegCancelAfter: cfg.PegCancelThreshold(),
		Concurrency:    cfg.Concurrency,
		Log:            log,
		Metrics:        metrics,
	})

	return a, nil
}

// buildBrokers constructs the configured broker adapters. Only the paper
// adapter ships with the engine; vendor adapters register out of tree.
func (a *app) buildBrokers() error {
	a.brokers = make(map[string]broker.Broker, len(a.cfg.Brokers))
	for _, bc := range a.cfg.Brokers {
		switch bc.Type {
		case "paper", "":
			var quotes paper.Quoter
			if a.quotes != nil {
				quotes = a.quotes
			}
			a.brokers[bc.Name] = paper.NewBroker(paper.Options{
				Cash:   bc.Cash,
				Quotes: quotes,
				Log:    a.log,
			})
		default:
			return fmt.Errorf("broker %q: unknown type %q", bc.Name, bc.Type)
		}
	}
	return nil
}

// buildPolicies groups the configured strategies' static targets by
// broker.
func (a *app) buildPolicies() {
	a.policies = make(map[string]map[string]strategy.Policy)
	for _, sc := range a.cfg.Strategies {
		if a.policies[sc.Broker] == nil {
			a.policies[sc.Broker] = make(map[string]strategy.Policy)
		}
		a.policies[sc.Broker][sc.Name] = strategy.Static(sc.Targets)
	}
}

// Close releases connections.
func (a *app) Close() {
	if a.quotes != nil {
		a.quotes.Close()
	}
	if a.chConn != nil {
		a.chConn.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// migrate applies all database migrations.
func (a *app) migrate(ctx context.Context) error {
	if err := migrations.RunPostgresMigrations(ctx, a.pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	if a.cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		conn.Close()
	}
	return nil
}

// serveMetrics starts the Prometheus endpoint in the background.
func (a *app) serveMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		a.log.Info("starting metrics server", "addr", a.cfg.MetricsAddr)
		if err := http.ListenAndServe(a.cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics server failed", "error", err)
		}
	}()
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
