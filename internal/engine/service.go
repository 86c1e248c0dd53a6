package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/metrics"
	"github.com/umbralrisk/umbral/internal/screening"
)

// OperationStore is the write-back contract against the document store.
type OperationStore interface {
	// UpdateRiskResult overwrites the operation's risk output fields, the
	// content hash and the recalculation timestamp.
	UpdateRiskResult(ctx context.Context, tenantID, operationID string, a *Assessment, status OperationStatus, calculatedAt time.Time) error
}

// AlertStore persists escalation alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *Alert) error
}

// ThresholdSource resolves a tenant's per-activity threshold override.
// A nil override means the statutory catalog applies.
type ThresholdSource interface {
	Override(ctx context.Context, tenantID string, activity ActivityType) (*ActivityThresholds, error)
}

// WatchlistScreener is the engine's view of the screening capability.
type WatchlistScreener interface {
	Screen(ctx context.Context, tenantID, taxID, fullName string) (screening.Result, error)
}

// EventPublisher emits engine events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Event topics published by the recalculation path.
const (
	TopicOperationRecalculated = "umbral.operations.recalculated"
	TopicAlertCreated          = "umbral.alerts.created"
)

// Service drives the single-record path: change guard, watchlist screening,
// factor evaluation, classification, write-back and alerting. It is invoked
// once per document write with at-least-once delivery; the guard makes
// repeated deliveries of the same logical change a no-op.
type Service struct {
	logger     *zap.SugaredLogger
	guard      *ChangeGuard
	evaluator  *Evaluator
	screener   WatchlistScreener
	ops        OperationStore
	alerts     AlertStore
	thresholds ThresholdSource
	publisher  EventPublisher
	now        func() time.Time
}

// NewService wires the single-record path. publisher may be nil when the
// message bus is disabled.
func NewService(
	logger *zap.SugaredLogger,
	evaluator *Evaluator,
	screener WatchlistScreener,
	ops OperationStore,
	alerts AlertStore,
	thresholds ThresholdSource,
	publisher EventPublisher,
) *Service {
	return &Service{
		logger:     logger,
		guard:      NewChangeGuard(evaluator.Config().RecalcCooldown),
		evaluator:  evaluator,
		screener:   screener,
		ops:        ops,
		alerts:     alerts,
		thresholds: thresholds,
		publisher:  publisher,
		now:        time.Now,
	}
}

// HandleWrite processes one document-write delivery. prev may be nil on
// creation. It returns the assessment when a recalculation ran, or nil when
// the guard skipped.
func (s *Service) HandleWrite(ctx context.Context, prev, curr *Operation) (*Assessment, error) {
	if curr == nil {
		return nil, fmt.Errorf("current operation state is required")
	}

	decision := s.guard.ShouldRecalculate(prev, curr, curr.RiskCalculatedAt, curr.ContentHash)
	if !decision.Proceed {
		metrics.RecalcTotal.WithLabelValues("skipped").Inc()
		metrics.GuardSkips.WithLabelValues(decision.Reason).Inc()
		s.logger.Debugw("recalculation skipped",
			"tenant_id", curr.TenantID, "operation_id", curr.ID, "reason", decision.Reason)
		return nil, nil
	}

	// Fail-open: a watchlist outage must degrade to "no match" rather than
	// stall every recalculation. Known limitation: a sanctioned client can
	// pass silently during an outage.
	watch, err := s.screener.Screen(ctx, curr.TenantID, curr.ClientTaxID, curr.FullName())
	if err != nil {
		metrics.ScreeningErrors.Inc()
		s.logger.Errorw("watchlist screening failed, defaulting to no match",
			"tenant_id", curr.TenantID, "operation_id", curr.ID, "error", err)
		watch = screening.Result{}
	}

	thresholds := s.resolveThresholds(ctx, curr)

	assessment := s.evaluator.Evaluate(curr, watch, thresholds)
	metrics.RiskScore.Observe(float64(assessment.Score))

	status := StatusForLevel(assessment.Level)
	calculatedAt := s.now()
	if err := s.ops.UpdateRiskResult(ctx, curr.TenantID, curr.ID, &assessment, status, calculatedAt); err != nil {
		metrics.RecalcTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("write back risk result for operation %s: %w", curr.ID, err)
	}
	metrics.RecalcTotal.WithLabelValues("recalculated").Inc()

	if assessment.Score >= s.evaluator.Config().EscalationScore {
		s.raiseAlert(ctx, curr, &assessment)
	}

	s.publish(ctx, TopicOperationRecalculated, curr.ID, map[string]interface{}{
		"tenant_id":    curr.TenantID,
		"operation_id": curr.ID,
		"score":        assessment.Score,
		"level":        assessment.Level,
		"blocked":      assessment.Blocked,
	})

	return &assessment, nil
}

func (s *Service) resolveThresholds(ctx context.Context, op *Operation) ActivityThresholds {
	override, err := s.thresholds.Override(ctx, op.TenantID, op.Activity)
	if err != nil {
		// Statutory defaults are always safe to fall back to.
		s.logger.Warnw("threshold override lookup failed, using statutory defaults",
			"tenant_id", op.TenantID, "activity", op.Activity, "error", err)
		override = nil
	}
	return s.evaluator.Config().ThresholdsFor(op.Activity, override)
}

func (s *Service) raiseAlert(ctx context.Context, op *Operation, a *Assessment) {
	summaries := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		summaries = append(summaries, f.Rationale)
	}
	alert := &Alert{
		ID:            uuid.New().String(),
		TenantID:      op.TenantID,
		OperationID:   op.ID,
		Severity:      a.Level,
		ClientTaxID:   op.ClientTaxID,
		ClientName:    op.FullName(),
		Score:         a.Score,
		FactorSummary: summaries,
		Status:        AlertStatusPending,
		CreatedAt:     s.now(),
	}
	// An alert failure must not fail the recalculation that produced it.
	if err := s.alerts.InsertAlert(ctx, alert); err != nil {
		s.logger.Errorw("alert creation failed",
			"tenant_id", op.TenantID, "operation_id", op.ID, "error", err)
		return
	}
	metrics.AlertsCreated.WithLabelValues(string(a.Level)).Inc()
	s.logger.Infow("alert created",
		"tenant_id", op.TenantID, "operation_id", op.ID, "alert_id", alert.ID, "score", a.Score)

	s.publish(ctx, TopicAlertCreated, alert.ID, alert)
}

func (s *Service) publish(ctx context.Context, topic, key string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, key, payload); err != nil {
		s.logger.Errorw("event publish failed", "topic", topic, "key", key, "error", err)
	}
}

// StatusForLevel derives the workflow status from a risk level: HIGH rows
// are pending a mandatory report, MEDIUM rows pending manual review.
func StatusForLevel(level RiskLevel) OperationStatus {
	switch level {
	case RiskLevelHigh:
		return StatusPendingReport
	case RiskLevelMedium:
		return StatusPendingReview
	default:
		return StatusPending
	}
}
