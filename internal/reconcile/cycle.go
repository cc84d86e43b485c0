package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/marketdata"
	"github.com/r0fls/soad-sub000/internal/observability"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/strategy"
)

// DefaultConcurrency bounds how many brokers reconcile in parallel.
const DefaultConcurrency = 4

// CycleOptions configures a bookkeeping cycle.
type CycleOptions struct {
	Ledger  storage.Ledger
	Brokers map[string]broker.Broker
	// Policies maps broker name to that broker's strategy policies.
	Policies map[string]map[string]strategy.Policy
	// History enables the enrichment pass; nil skips it.
	History marketdata.History
	// Archive receives committed balance snapshots; may be nil.
	Archive     storage.BalanceHistoryStore
	Concurrency int
	Log         *slog.Logger
	Metrics     *observability.Metrics
}

// Cycle runs one full bookkeeping pass: per broker, positions then
// balances; then enrichment over all rows. A broker failure is isolated
// and surfaced in the returned error without aborting the others.
type Cycle struct {
	brokers     map[string]broker.Broker
	policies    map[string]map[string]strategy.Policy
	positions   *PositionReconciler
	balances    *BalanceReconciler
	enricher    *Enricher
	concurrency int
	log         *slog.Logger
	metrics     *observability.Metrics
}

// NewCycle creates a bookkeeping cycle.
func NewCycle(opts CycleOptions) *Cycle {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var enricher *Enricher
	if opts.History != nil {
		enricher = NewEnricher(opts.Ledger, opts.History, opts.Brokers, log)
	}

	return &Cycle{
		brokers:     opts.Brokers,
		policies:    opts.Policies,
		positions:   NewPositionReconciler(opts.Ledger, log, opts.Metrics),
		balances:    NewBalanceReconciler(opts.Ledger, opts.Archive, log, opts.Metrics),
		enricher:    enricher,
		concurrency: concurrency,
		log:         log,
		metrics:     opts.Metrics,
	}
}

// Run executes one cycle.
func (c *Cycle) Run(ctx context.Context) error {
	start := time.Now()

	names := make([]string, 0, len(c.brokers))
	for name := range c.brokers {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.reconcileBroker(ctx, name); err != nil {
				c.log.Error("broker reconciliation failed", "broker", name, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()

	if c.enricher != nil {
		if err := c.enricher.Run(ctx); err != nil {
			c.log.Error("enrichment pass failed", "error", err)
			errs = append(errs, err)
		}
	}

	status := "ok"
	if len(errs) > 0 {
		status = "error"
	} else if c.metrics != nil {
		c.metrics.LastSuccessfulSync.SetToCurrentTime()
	}
	c.metrics.RecordCycle("sync", status, time.Since(start).Seconds())

	return errors.Join(errs...)
}

// reconcileBroker runs the position pass then the balance pass. Balances
// are computed from the rows just reconciled, so a position failure skips
// the balance pass for that broker.
func (c *Cycle) reconcileBroker(ctx context.Context, name string) error {
	b := c.brokers[name]
	policies := c.policies[name]

	if err := c.positions.ReconcileBroker(ctx, name, b, policies); err != nil {
		return fmt.Errorf("position pass: %w", err)
	}

	known := make([]string, 0, len(policies))
	for strat := range policies {
		known = append(known, strat)
	}
	if err := c.balances.ReconcileBroker(ctx, name, b, known); err != nil {
		return fmt.Errorf("balance pass: %w", err)
	}
	return nil
}
