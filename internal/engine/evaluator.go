package engine

import (
	"fmt"
	"strings"

	"github.com/umbralrisk/umbral/internal/screening"
	"go.uber.org/zap"
)

// Factor identifiers. The evaluation order is fixed and not configurable:
// watchlist, thresholds, cash, geography, client attributes.
const (
	FactorSanctionsMatch     = "sanctions_list_match"
	FactorInternalMatch      = "internal_list_match"
	FactorWatchlistPEP       = "watchlist_pep_match"
	FactorAboveNotification  = "above_notification_threshold"
	FactorNearNotification   = "near_notification_threshold"
	FactorCashPayment        = "cash_payment"
	FactorLargeCashPayment   = "large_cash_payment"
	FactorCashOverCeiling    = "cash_over_legal_ceiling"
	FactorHighRiskState      = "high_risk_state"
	FactorBorderState        = "border_state"
	FactorCashGeographyBonus = "cash_in_high_risk_state"
	FactorFirstOperation     = "first_operation"
	FactorForeignNationality = "foreign_nationality"
	FactorDeclaredPEP        = "declared_pep"
)

// Evaluator applies the scoring rule set to one operation. Factors are
// independent and additive; the only interaction term is the explicit
// cash-inside-high-risk-geography bonus.
type Evaluator struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// NewEvaluator validates the configuration and builds an evaluator.
func NewEvaluator(cfg Config, logger *zap.SugaredLogger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Evaluator{cfg: cfg, logger: logger}, nil
}

// Config exposes the immutable configuration the evaluator was built with.
func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate scores one operation against its resolved watchlist result and
// activity thresholds, then classifies the clamped score. An operation is
// blocked iff at least one triggered factor is marked blocking.
func (e *Evaluator) Evaluate(op *Operation, watch screening.Result, thresholds ActivityThresholds) Assessment {
	w := e.cfg.Weights
	uma := e.cfg.UMADailyValue
	var factors []RiskFactor

	// Watchlist factors.
	if watch.SanctionsMatch {
		factors = append(factors, RiskFactor{
			ID:        FactorSanctionsMatch,
			Weight:    w.SanctionsMatch,
			Severity:  RiskLevelHigh,
			Rationale: "Cliente con coincidencia exacta en lista de sanciones",
			Blocking:  true,
		})
	}
	if watch.InternalMatch {
		reason := watch.InternalReason
		if reason == "" {
			reason = "sin motivo registrado"
		}
		factors = append(factors, RiskFactor{
			ID:        FactorInternalMatch,
			Weight:    w.InternalListMatch,
			Severity:  RiskLevelHigh,
			Rationale: fmt.Sprintf("Cliente en lista interna del sujeto obligado (%s)", reason),
			Blocking:  true,
		})
	}
	if watch.PEPMatch {
		factors = append(factors, RiskFactor{
			ID:        FactorWatchlistPEP,
			Weight:    w.WatchlistPEP,
			Severity:  RiskLevelMedium,
			Rationale: "Cliente identificado como persona políticamente expuesta en listas de control",
		})
	}

	// Threshold factors.
	notification := thresholds.Notification(uma)
	near := notification.Mul(e.cfg.NearThresholdRatio)
	switch {
	case op.Amount.GreaterThanOrEqual(notification):
		factors = append(factors, RiskFactor{
			ID:        FactorAboveNotification,
			Weight:    w.AboveNotification,
			Severity:  RiskLevelMedium,
			Rationale: fmt.Sprintf("Monto %s igual o superior al umbral de aviso (%s)", op.Amount.StringFixed(2), notification.StringFixed(2)),
		})
	case op.Amount.GreaterThanOrEqual(near):
		factors = append(factors, RiskFactor{
			ID:        FactorNearNotification,
			Weight:    w.NearNotification,
			Severity:  RiskLevelLow,
			Rationale: fmt.Sprintf("Monto %s cercano al umbral de aviso (%s)", op.Amount.StringFixed(2), notification.StringFixed(2)),
		})
	}

	// Cash factors.
	cashInHighRiskState := false
	if op.PaymentMethod == PaymentCash {
		cash := op.EffectiveCashAmount()
		ceiling := thresholds.CashCeiling(uma)
		review := ceiling.Mul(e.cfg.LargeCashRatio)
		switch {
		case cash.GreaterThan(ceiling):
			factors = append(factors, RiskFactor{
				ID:        FactorCashOverCeiling,
				Weight:    w.CashOverCeiling,
				Severity:  RiskLevelHigh,
				Rationale: fmt.Sprintf("Pago en efectivo %s excede el límite legal (%s)", cash.StringFixed(2), ceiling.StringFixed(2)),
				Blocking:  true,
			})
		case cash.GreaterThanOrEqual(review):
			factors = append(factors, RiskFactor{
				ID:        FactorLargeCashPayment,
				Weight:    w.LargeCashPayment,
				Severity:  RiskLevelMedium,
				Rationale: fmt.Sprintf("Pago en efectivo %s por encima del nivel de revisión", cash.StringFixed(2)),
			})
		default:
			factors = append(factors, RiskFactor{
				ID:        FactorCashPayment,
				Weight:    w.CashPayment,
				Severity:  RiskLevelLow,
				Rationale: "Operación liquidada en efectivo",
			})
		}
		cashInHighRiskState = e.cfg.HighRiskStates[normalizeState(op.State)]
	}

	// Geography factors.
	state := normalizeState(op.State)
	if e.cfg.HighRiskStates[state] {
		factors = append(factors, RiskFactor{
			ID:        FactorHighRiskState,
			Weight:    w.HighRiskState,
			Severity:  RiskLevelMedium,
			Rationale: fmt.Sprintf("Operación en entidad de alto riesgo (%s)", op.State),
		})
	}
	if e.cfg.BorderStates[state] {
		factors = append(factors, RiskFactor{
			ID:        FactorBorderState,
			Weight:    w.BorderState,
			Severity:  RiskLevelLow,
			Rationale: fmt.Sprintf("Operación en entidad fronteriza (%s)", op.State),
		})
	}
	if cashInHighRiskState {
		factors = append(factors, RiskFactor{
			ID:        FactorCashGeographyBonus,
			Weight:    w.CashGeographyBonus,
			Severity:  RiskLevelMedium,
			Rationale: "Efectivo en entidad de alto riesgo",
		})
	}

	// Client attribute factors.
	if op.FirstOperation {
		factors = append(factors, RiskFactor{
			ID:        FactorFirstOperation,
			Weight:    w.FirstOperation,
			Severity:  RiskLevelLow,
			Rationale: "Primera operación del cliente",
		})
	}
	if isForeign(op.Nationality) {
		factors = append(factors, RiskFactor{
			ID:        FactorForeignNationality,
			Weight:    w.ForeignNationality,
			Severity:  RiskLevelLow,
			Rationale: fmt.Sprintf("Cliente de nacionalidad extranjera (%s)", op.Nationality),
		})
	}
	// Deduplicated against a watchlist PEP match so the same condition is
	// not counted twice.
	if op.DeclaredPEP && !watch.PEPMatch {
		factors = append(factors, RiskFactor{
			ID:        FactorDeclaredPEP,
			Weight:    w.DeclaredPEP,
			Severity:  RiskLevelMedium,
			Rationale: "Cliente declarado como persona políticamente expuesta",
		})
	}

	total := 0
	blocked := false
	for _, f := range factors {
		total += f.Weight
		if f.Blocking {
			blocked = true
		}
	}
	score := ClampScore(total)
	class := Classify(score)

	return Assessment{
		Score:       score,
		Level:       class.Level,
		Label:       class.Label,
		Color:       class.Color,
		Factors:     factors,
		Blocked:     blocked,
		Summary:     buildSummary(score, class, factors),
		ContentHash: ContentHash(op),
	}
}

// buildSummary produces the display rationale from triggered-factor counts.
// It feeds no downstream logic.
func buildSummary(score int, class Classification, factors []RiskFactor) string {
	if len(factors) == 0 {
		return fmt.Sprintf("%s (puntaje %d): sin factores de riesgo detectados", class.Label, score)
	}
	counts := map[RiskLevel]int{}
	blocking := 0
	for _, f := range factors {
		counts[f.Severity]++
		if f.Blocking {
			blocking++
		}
	}
	parts := []string{fmt.Sprintf("%d factor(es) detectado(s)", len(factors))}
	if counts[RiskLevelHigh] > 0 {
		parts = append(parts, fmt.Sprintf("%d de severidad alta", counts[RiskLevelHigh]))
	}
	if counts[RiskLevelMedium] > 0 {
		parts = append(parts, fmt.Sprintf("%d de severidad media", counts[RiskLevelMedium]))
	}
	if counts[RiskLevelLow] > 0 {
		parts = append(parts, fmt.Sprintf("%d de severidad baja", counts[RiskLevelLow]))
	}
	if blocking > 0 {
		parts = append(parts, fmt.Sprintf("%d bloqueante(s)", blocking))
	}
	return fmt.Sprintf("%s (puntaje %d): %s", class.Label, score, strings.Join(parts, ", "))
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.Join(strings.Fields(state), " "))
}

func isForeign(nationality string) bool {
	switch strings.ToUpper(strings.TrimSpace(nationality)) {
	case "", "MX", "MEX", "MEXICANA", "MEXICANO", "MEXICO", "MÉXICO":
		return false
	default:
		return true
	}
}
