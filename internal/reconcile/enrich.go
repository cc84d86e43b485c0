package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/marketdata"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/symbols"
)

// volatilityLookback is the trailing window of daily closes used for the
// annualized volatility estimate.
const volatilityLookback = 365 * 24 * time.Hour

// Enricher refreshes the latest price, underlying price and volatility on
// position rows. Each row is its own transaction; a failure is logged and
// skipped so one bad symbol never blocks the rest.
type Enricher struct {
	ledger  storage.Ledger
	history marketdata.History
	brokers map[string]broker.Broker
	log     *slog.Logger
	now     func() time.Time
}

// NewEnricher creates an enricher.
func NewEnricher(ledger storage.Ledger, history marketdata.History, brokers map[string]broker.Broker, log *slog.Logger) *Enricher {
	return &Enricher{
		ledger:  ledger,
		history: history,
		brokers: brokers,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run enriches every position row in the ledger.
func (e *Enricher) Run(ctx context.Context) error {
	rows, err := e.ledger.Positions().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.enrichRow(ctx, row); err != nil {
			e.log.Warn("position enrichment failed",
				"broker", row.Broker,
				"strategy", row.Strategy,
				"symbol", row.Symbol,
				"error", err)
		}
	}
	return nil
}

func (e *Enricher) enrichRow(ctx context.Context, row *domain.Position) error {
	b, ok := e.brokers[row.Broker]
	if !ok {
		return fmt.Errorf("no broker adapter for %s", row.Broker)
	}

	mark, err := b.GetCurrentPrice(ctx, row.Symbol)
	if err != nil {
		return fmt.Errorf("latest price for %s: %w", row.Symbol, err)
	}

	underlying := symbols.Underlying(row.Symbol)

	closes, err := e.history.DailyCloses(ctx, underlying, volatilityLookback)
	if err != nil {
		return fmt.Errorf("daily closes for %s: %w", underlying, err)
	}
	vol, err := marketdata.AnnualizedVolatility(closes)
	if err != nil {
		return fmt.Errorf("volatility for %s: %w", underlying, err)
	}

	var underlyingPrice *float64
	if symbols.IsDerivative(row.Symbol) {
		price, err := b.GetCurrentPrice(ctx, underlying)
		if err != nil {
			return fmt.Errorf("underlying price for %s: %w", underlying, err)
		}
		underlyingPrice = &price
	}

	return e.ledger.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		current, err := tx.Positions().Get(ctx, row.Broker, row.Strategy, row.Symbol)
		if errors.Is(err, storage.ErrNotFound) {
			// Row vanished between listing and enrichment.
			return nil
		}
		if err != nil {
			return err
		}
		current.LatestPrice = mark
		current.UnderlyingVolatility = &vol
		if underlyingPrice != nil {
			current.UnderlyingLatestPrice = underlyingPrice
		}
		current.LastUpdated = e.now()
		return tx.Positions().Upsert(ctx, current)
	})
}
