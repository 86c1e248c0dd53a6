// Package batch drives uploaded row sets through legal validation,
// accumulation tracking and chunked persistence.
package batch

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
)

// Key identifies one accumulation window: the rolling monthly sum of a
// client's amounts within one activity.
type Key struct {
	TenantID    string
	ClientTaxID string
	Activity    engine.ActivityType
	Period      string // "2006-01"
}

// KeyFor derives the accumulation key of a row.
func KeyFor(row *engine.Operation) Key {
	return Key{
		TenantID:    row.TenantID,
		ClientTaxID: row.ClientTaxID,
		Activity:    row.Activity,
		Period:      row.Period(),
	}
}

// AccumulationStore answers the committed-total query against the document
// store: the sum of amounts over all persisted rows matching the key.
type AccumulationStore interface {
	SumAmounts(ctx context.Context, key Key) (decimal.Decimal, error)
}

// loadWorkers bounds the fan-out of committed-total queries.
const loadWorkers = 8

// Accumulator tracks per-key cumulative totals for one batch: the committed
// total from the document store plus the batch's own running total. Totals
// are recomputed per batch, never trusted from a prior run. Load issues one
// query per unique key concurrently; Apply must then be called in row order,
// since later rows in the same file accumulate against earlier rows' keys
// even though none of them exist in the store yet.
type Accumulator struct {
	store  AccumulationStore
	logger *zap.SugaredLogger

	mu        sync.Mutex
	committed map[Key]decimal.Decimal
	running   map[Key]decimal.Decimal
}

// NewAccumulator builds an accumulator for a single batch.
func NewAccumulator(store AccumulationStore, logger *zap.SugaredLogger) *Accumulator {
	return &Accumulator{
		store:     store,
		logger:    logger,
		committed: make(map[Key]decimal.Decimal),
		running:   make(map[Key]decimal.Decimal),
	}
}

// Load prefetches the committed totals for the batch's unique keys with a
// bounded worker fan-out. A failed query is logged and defaulted to zero so
// the batch degrades instead of aborting.
func (a *Accumulator) Load(ctx context.Context, keys []Key) {
	unique := make([]Key, 0, len(keys))
	seen := make(map[Key]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}

	work := make(chan Key)
	var wg sync.WaitGroup
	for i := 0; i < loadWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				total, err := a.store.SumAmounts(ctx, key)
				if err != nil {
					a.logger.Errorw("accumulation query failed, assuming zero prior total",
						"tenant_id", key.TenantID, "client_tax_id", key.ClientTaxID,
						"activity", key.Activity, "period", key.Period, "error", err)
					total = decimal.Zero
				}
				a.mu.Lock()
				a.committed[key] = total
				a.mu.Unlock()
			}
		}()
	}
	for _, k := range unique {
		work <- k
	}
	close(work)
	wg.Wait()
}

// Apply adds one row's amount to the key's running total and returns the new
// cumulative total (committed + batch running + this row). Callers invoke it
// sequentially in input row order.
func (a *Accumulator) Apply(key Key, amount decimal.Decimal) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	running := a.running[key].Add(amount)
	a.running[key] = running
	return a.committed[key].Add(running)
}

// Escalate derives the row's final level from the cumulative total: at or
// above the notification threshold the level is forced HIGH regardless of
// the row's own level; at or above identification a LOW row escalates to
// MEDIUM. Escalation never downgrades.
func Escalate(total decimal.Decimal, thresholds engine.ActivityThresholds, uma decimal.Decimal, own engine.RiskLevel) (engine.RiskLevel, bool) {
	switch {
	case total.GreaterThanOrEqual(thresholds.Notification(uma)):
		if own != engine.RiskLevelHigh {
			return engine.RiskLevelHigh, true
		}
		return engine.RiskLevelHigh, false
	case total.GreaterThanOrEqual(thresholds.Identification(uma)) && own == engine.RiskLevelLow:
		return engine.RiskLevelMedium, true
	default:
		return own, false
	}
}
