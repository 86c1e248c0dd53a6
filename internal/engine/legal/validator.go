// Package legal applies the statutory hard-stop and warning rules to parsed
// batch rows before persistence. Format validation happens upstream; only
// legal rules live here.
package legal

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
)

// Expected RFC identifier lengths under Mexican tax rules.
const (
	IndividualTaxIDLength = 13
	CorporateTaxIDLength  = 12
	nationalIDLength      = 18 // CURP
)

var curpPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{6}[HM][A-Z]{5}[A-Z0-9][0-9]$`)

// Outcome is the ephemeral per-row result. A non-empty HardStops list means
// the row is rejected and nothing downstream runs for it. The preliminary
// risk level is the two-band amount check against the identification and
// notification thresholds; it lacks the watchlist and geography context the
// persisted-record path has.
type Outcome struct {
	HardStops  []string         `json:"hard_stops,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	RiskLevel  engine.RiskLevel `json:"risk_level"`
	RiskReason string           `json:"risk_reason"`
	RiskScore  int              `json:"risk_score"`
}

// Rejected reports whether any hard stop triggered.
func (o *Outcome) Rejected() bool { return len(o.HardStops) > 0 }

// Validator evaluates the per-activity legal rules. Rule order is fixed;
// hard stops are evaluated before warnings are accumulated, but both sets
// are fully computed so the result reports every applicable issue.
type Validator struct {
	cfg    engine.Config
	logger *zap.SugaredLogger
}

// NewValidator builds a validator over the statutory configuration.
func NewValidator(cfg engine.Config, logger *zap.SugaredLogger) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Validator{cfg: cfg, logger: logger}, nil
}

// Validate applies the hard-stop and warning rules to one row. thresholds
// may carry a tenant override; the statutory catalog applies otherwise.
func (v *Validator) Validate(row *engine.Operation, override *engine.ActivityThresholds) Outcome {
	thresholds := v.cfg.ThresholdsFor(row.Activity, override)
	uma := v.cfg.UMADailyValue

	var out Outcome

	// Hard stops.
	if row.PaymentMethod == engine.PaymentCash {
		cash := row.EffectiveCashAmount()
		ceiling := thresholds.CashCeiling(uma)
		if cash.GreaterThan(ceiling) {
			out.HardStops = append(out.HardStops, fmt.Sprintf(
				"pago en efectivo %s excede el límite legal de %s (%d UMA)",
				cash.StringFixed(2), ceiling.StringFixed(2), thresholds.CashCeilingUMA))
		}
	}
	switch row.PersonType {
	case engine.PersonIndividual:
		if len(row.ClientTaxID) != IndividualTaxIDLength {
			out.HardStops = append(out.HardStops, fmt.Sprintf(
				"RFC de persona física con %d caracteres, se esperan %d",
				len(row.ClientTaxID), IndividualTaxIDLength))
		}
	case engine.PersonCorporate:
		if len(row.ClientTaxID) != CorporateTaxIDLength {
			out.HardStops = append(out.HardStops, fmt.Sprintf(
				"RFC de persona moral con %d caracteres, se esperan %d",
				len(row.ClientTaxID), CorporateTaxIDLength))
		}
	}

	// Warnings, accumulated even when a hard stop already triggered.
	if row.PersonType == engine.PersonIndividual {
		if row.SecondLastName == "" {
			out.Warnings = append(out.Warnings, "persona física sin segundo apellido")
		}
		if row.NationalID != "" && !validCURP(row.NationalID) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("CURP %q con formato inválido", row.NationalID))
		}
	}
	if row.PersonType == engine.PersonCorporate {
		if row.NationalID != "" {
			out.Warnings = append(out.Warnings, "persona moral con CURP, campo exclusivo de personas físicas")
		}
		if row.SecondLastName != "" {
			out.Warnings = append(out.Warnings, "persona moral con segundo apellido, campo exclusivo de personas físicas")
		}
	}
	if row.PaymentMethod == engine.PaymentCash {
		cash := row.EffectiveCashAmount()
		ceiling := thresholds.CashCeiling(uma)
		review := ceiling.Mul(v.cfg.LargeCashRatio)
		if cash.GreaterThanOrEqual(review) && cash.LessThanOrEqual(ceiling) {
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"pago en efectivo %s por encima del nivel de revisión %s",
				cash.StringFixed(2), review.StringFixed(2)))
		}
		if row.Activity == engine.ActivityGaming {
			out.Warnings = append(out.Warnings, "premio o pago en efectivo en actividad de juegos y sorteos")
		}
	}
	if !row.OwnerActsForSelf && (row.OwnerName == "" || row.OwnerTaxID == "") {
		out.Warnings = append(out.Warnings, "dueño beneficiario sin nombre o RFC declarado")
	}

	out.RiskLevel, out.RiskScore, out.RiskReason = v.preliminaryLevel(row.Amount, thresholds)
	return out
}

// preliminaryLevel is the two-band amount check: below identification = LOW,
// at or above identification = MEDIUM, at or above notification = HIGH.
func (v *Validator) preliminaryLevel(amount decimal.Decimal, t engine.ActivityThresholds) (engine.RiskLevel, int, string) {
	uma := v.cfg.UMADailyValue
	notification := t.Notification(uma)
	identification := t.Identification(uma)
	switch {
	case amount.GreaterThanOrEqual(notification):
		return engine.RiskLevelHigh, 85, fmt.Sprintf(
			"monto %s igual o superior al umbral de aviso (%s)", amount.StringFixed(2), notification.StringFixed(2))
	case amount.GreaterThanOrEqual(identification):
		return engine.RiskLevelMedium, 50, fmt.Sprintf(
			"monto %s igual o superior al umbral de identificación (%s)", amount.StringFixed(2), identification.StringFixed(2))
	default:
		return engine.RiskLevelLow, 10, fmt.Sprintf(
			"monto %s por debajo del umbral de identificación (%s)", amount.StringFixed(2), identification.StringFixed(2))
	}
}

func validCURP(curp string) bool {
	return len(curp) == nationalIDLength && curpPattern.MatchString(curp)
}
