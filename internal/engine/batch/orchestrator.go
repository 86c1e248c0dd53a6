package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
	"github.com/umbralrisk/umbral/internal/engine/legal"
	"github.com/umbralrisk/umbral/internal/metrics"
)

// RowStore persists accepted rows in bounded chunks.
type RowStore interface {
	InsertOperations(ctx context.Context, rows []*engine.Operation) error
}

// RowIssue is one capped sample of per-row detail returned to the caller.
type RowIssue struct {
	Row         int      `json:"row"`
	ClientTaxID string   `json:"client_tax_id"`
	Messages    []string `json:"messages"`
}

// ChunkOutcome reports one persistence chunk individually; a failed chunk
// must not silently drop rows from a later chunk.
type ChunkOutcome struct {
	Chunk     int    `json:"chunk"`
	Rows      int    `json:"rows"`
	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

// StatutoryConstants echoes the reference values the batch was evaluated
// against, in currency.
type StatutoryConstants struct {
	UMADailyValue           decimal.Decimal `json:"uma_daily_value"`
	IdentificationThreshold decimal.Decimal `json:"identification_threshold"`
	NotificationThreshold   decimal.Decimal `json:"notification_threshold"`
	CashCeiling             decimal.Decimal `json:"cash_ceiling"`
}

// Result is the structured batch summary.
type Result struct {
	BatchID   string                   `json:"batch_id"`
	Success   bool                     `json:"success"`
	Total     int                      `json:"total"`
	Processed int                      `json:"processed"`
	Rejected  int                      `json:"rejected"`
	Warned    int                      `json:"warned"`
	Failed    int                      `json:"failed"`
	Histogram map[engine.RiskLevel]int `json:"histogram"`

	Errors          []RowIssue `json:"errors,omitempty"`
	HasMoreErrors   bool       `json:"has_more_errors"`
	Warnings        []RowIssue `json:"warnings,omitempty"`
	HasMoreWarnings bool       `json:"has_more_warnings"`

	Chunks    []ChunkOutcome     `json:"chunks"`
	Constants StatutoryConstants `json:"constants"`
}

// Default sizing for persistence chunks and caller-facing samples.
const (
	DefaultChunkSize = 400
	DefaultSampleCap = 20
)

// Orchestrator drives rows through legal validation and accumulation,
// partitions them into rejected / accepted-with-warnings / accepted-clean,
// and persists accepted rows in chunks. Row-level failures never abort the
// batch; partial success is the normal outcome.
type Orchestrator struct {
	validator  *legal.Validator
	store      RowStore
	sums       AccumulationStore
	thresholds engine.ThresholdSource
	cfg        engine.Config
	logger     *zap.SugaredLogger

	chunkSize int
	sampleCap int
	now       func() time.Time
}

// NewOrchestrator wires the batch path.
func NewOrchestrator(
	validator *legal.Validator,
	cfg engine.Config,
	store RowStore,
	sums AccumulationStore,
	thresholds engine.ThresholdSource,
	logger *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		validator:  validator,
		store:      store,
		sums:       sums,
		thresholds: thresholds,
		cfg:        cfg,
		logger:     logger,
		chunkSize:  DefaultChunkSize,
		sampleCap:  DefaultSampleCap,
		now:        time.Now,
	}
}

// Process runs one uploaded row set to completion. Only structurally invalid
// input (missing tenant, empty row set) is a hard failure to the caller.
func (o *Orchestrator) Process(ctx context.Context, tenantID string, rows []*engine.Operation) (*Result, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch contains no rows")
	}

	result := &Result{
		BatchID:   uuid.New().String(),
		Total:     len(rows),
		Histogram: make(map[engine.RiskLevel]int),
		Constants: o.constants(),
	}
	overrides := o.resolveOverrides(ctx, tenantID, rows)

	// Legal pass: a rejected row never receives a risk assessment.
	type acceptedRow struct {
		index   int
		row     *engine.Operation
		outcome legal.Outcome
	}
	accepted := make([]acceptedRow, 0, len(rows))
	for i, row := range rows {
		row.TenantID = tenantID
		outcome := o.validator.Validate(row, overrides[row.Activity])
		if outcome.Rejected() {
			result.Rejected++
			metrics.BatchRows.WithLabelValues("rejected").Inc()
			o.appendIssue(&result.Errors, &result.HasMoreErrors, RowIssue{
				Row: i + 1, ClientTaxID: row.ClientTaxID, Messages: outcome.HardStops,
			})
			continue
		}
		accepted = append(accepted, acceptedRow{index: i, row: row, outcome: outcome})
	}

	// Accumulation: totals are recomputed from the store for every batch,
	// one committed-total query per unique key, then the batch-local
	// running totals applied in row order.
	acc := NewAccumulator(o.sums, o.logger)
	keys := make([]Key, 0, len(accepted))
	for _, ar := range accepted {
		keys = append(keys, KeyFor(ar.row))
	}
	acc.Load(ctx, keys)

	toPersist := make([]*engine.Operation, 0, len(accepted))
	for _, ar := range accepted {
		row, outcome := ar.row, ar.outcome
		key := KeyFor(row)
		thresholds := o.cfg.ThresholdsFor(row.Activity, overrides[row.Activity])
		total := acc.Apply(key, row.Amount)

		level, escalated := Escalate(total, thresholds, o.cfg.UMADailyValue, outcome.RiskLevel)
		score, reason := outcome.RiskScore, outcome.RiskReason
		if escalated {
			score = scoreForLevel(level)
			reason = fmt.Sprintf("acumulado mensual %s alcanza el umbral correspondiente", total.StringFixed(2))
		}
		class := engine.Classify(score)

		row.RiskScore = score
		row.RiskLevel = level
		row.RiskLabel = class.Label
		row.RiskColor = class.Color
		row.RiskSummary = reason
		row.Status = engine.StatusForLevel(level)
		row.Warnings = outcome.Warnings
		row.ContentHash = ""
		row.RiskCalculatedAt = time.Time{}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = o.now()
		}
		row.UpdatedAt = o.now()

		result.Histogram[level]++
		if len(outcome.Warnings) > 0 {
			result.Warned++
			metrics.BatchRows.WithLabelValues("warned").Inc()
			o.appendIssue(&result.Warnings, &result.HasMoreWarnings, RowIssue{
				Row: ar.index + 1, ClientTaxID: row.ClientTaxID, Messages: outcome.Warnings,
			})
		}
		toPersist = append(toPersist, row)
	}

	o.persistChunks(ctx, toPersist, result)
	result.Success = result.Failed == 0

	o.logger.Infow("batch processed",
		"batch_id", result.BatchID, "tenant_id", tenantID,
		"total", result.Total, "processed", result.Processed,
		"rejected", result.Rejected, "warned", result.Warned, "failed", result.Failed)
	return result, nil
}

// persistChunks commits accepted rows in bounded chunks; chunk commits are
// independent and each one's outcome is reported.
func (o *Orchestrator) persistChunks(ctx context.Context, rows []*engine.Operation, result *Result) {
	for i := 0; i < len(rows); i += o.chunkSize {
		end := i + o.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[i:end]
		outcome := ChunkOutcome{Chunk: len(result.Chunks) + 1, Rows: len(chunk), Committed: true}
		if err := o.store.InsertOperations(ctx, chunk); err != nil {
			outcome.Committed = false
			outcome.Error = err.Error()
			result.Failed += len(chunk)
			metrics.ChunkFailures.Inc()
			o.logger.Errorw("persistence chunk failed",
				"batch_id", result.BatchID, "chunk", outcome.Chunk, "rows", len(chunk), "error", err)
		} else {
			result.Processed += len(chunk)
			for range chunk {
				metrics.BatchRows.WithLabelValues("accepted").Inc()
			}
		}
		result.Chunks = append(result.Chunks, outcome)
	}
}

// resolveOverrides fetches the tenant's threshold override once per activity
// present in the batch; a lookup failure falls back to statutory defaults.
func (o *Orchestrator) resolveOverrides(ctx context.Context, tenantID string, rows []*engine.Operation) map[engine.ActivityType]*engine.ActivityThresholds {
	overrides := make(map[engine.ActivityType]*engine.ActivityThresholds)
	for _, row := range rows {
		if _, done := overrides[row.Activity]; done {
			continue
		}
		override, err := o.thresholds.Override(ctx, tenantID, row.Activity)
		if err != nil {
			o.logger.Warnw("threshold override lookup failed, using statutory defaults",
				"tenant_id", tenantID, "activity", row.Activity, "error", err)
			override = nil
		}
		overrides[row.Activity] = override
	}
	return overrides
}

func (o *Orchestrator) appendIssue(list *[]RowIssue, hasMore *bool, issue RowIssue) {
	if len(*list) >= o.sampleCap {
		*hasMore = true
		return
	}
	*list = append(*list, issue)
}

func (o *Orchestrator) constants() StatutoryConstants {
	t := o.cfg.Thresholds[engine.ActivityDefault]
	uma := o.cfg.UMADailyValue
	return StatutoryConstants{
		UMADailyValue:           uma,
		IdentificationThreshold: t.Identification(uma),
		NotificationThreshold:   t.Notification(uma),
		CashCeiling:             t.CashCeiling(uma),
	}
}

func scoreForLevel(level engine.RiskLevel) int {
	switch level {
	case engine.RiskLevelHigh:
		return 85
	case engine.RiskLevelMedium:
		return 50
	default:
		return 10
	}
}
