package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityThresholds holds the statutory monetary thresholds for one
// vulnerable activity, expressed in UMA multiples. A tenant override carries
// the same shape.
type ActivityThresholds struct {
	IdentificationUMA int64 `json:"identification_uma"`
	NotificationUMA   int64 `json:"notification_uma"`
	CashCeilingUMA    int64 `json:"cash_ceiling_uma"`
}

// Identification returns the identification threshold in currency.
func (t ActivityThresholds) Identification(uma decimal.Decimal) decimal.Decimal {
	return uma.Mul(decimal.NewFromInt(t.IdentificationUMA))
}

// Notification returns the notification threshold in currency.
func (t ActivityThresholds) Notification(uma decimal.Decimal) decimal.Decimal {
	return uma.Mul(decimal.NewFromInt(t.NotificationUMA))
}

// CashCeiling returns the hard cash limit in currency.
func (t ActivityThresholds) CashCeiling(uma decimal.Decimal) decimal.Decimal {
	return uma.Mul(decimal.NewFromInt(t.CashCeilingUMA))
}

// FactorWeights are the additive scores contributed by each triggered rule.
type FactorWeights struct {
	SanctionsMatch     int `json:"sanctions_match"`
	InternalListMatch  int `json:"internal_list_match"`
	WatchlistPEP       int `json:"watchlist_pep"`
	DeclaredPEP        int `json:"declared_pep"`
	AboveNotification  int `json:"above_notification"`
	NearNotification   int `json:"near_notification"`
	CashPayment        int `json:"cash_payment"`
	LargeCashPayment   int `json:"large_cash_payment"`
	CashOverCeiling    int `json:"cash_over_ceiling"`
	HighRiskState      int `json:"high_risk_state"`
	BorderState        int `json:"border_state"`
	CashGeographyBonus int `json:"cash_geography_bonus"`
	FirstOperation     int `json:"first_operation"`
	ForeignNationality int `json:"foreign_nationality"`
}

// Config is the immutable configuration injected into the engine at
// construction. Statutory values are compiled in as defaults; a tenant-level
// threshold override (same ActivityThresholds shape) may replace the catalog
// entry for one activity.
type Config struct {
	// UMADailyValue is the daily reference unit in MXN.
	UMADailyValue decimal.Decimal `json:"uma_daily_value"`

	// Thresholds maps every activity, DEFAULT included, to its statutory
	// thresholds in UMA.
	Thresholds map[ActivityType]ActivityThresholds `json:"thresholds"`

	Weights FactorWeights `json:"weights"`

	// NearThresholdRatio defines "near" as amount >= ratio * notification.
	NearThresholdRatio decimal.Decimal `json:"near_threshold_ratio"`
	// LargeCashRatio is the soft review level as a fraction of the ceiling.
	LargeCashRatio decimal.Decimal `json:"large_cash_ratio"`

	HighRiskStates map[string]bool `json:"high_risk_states"`
	BorderStates   map[string]bool `json:"border_states"`

	// EscalationScore is the score at or above which an alert is raised.
	EscalationScore int `json:"escalation_score"`

	// RecalcCooldown is the change-guard window after a successful write.
	RecalcCooldown time.Duration `json:"recalc_cooldown"`
}

// DefaultConfig returns the compiled-in statutory configuration.
func DefaultConfig() Config {
	defaults := ActivityThresholds{
		IdentificationUMA: 325,
		NotificationUMA:   645,
		CashCeilingUMA:    3210,
	}
	thresholds := make(map[ActivityType]ActivityThresholds, len(ActivityTypes))
	for _, activity := range ActivityTypes {
		thresholds[activity] = defaults
	}
	// Per-activity statutory overrides.
	thresholds[ActivityRealEstate] = ActivityThresholds{IdentificationUMA: 8025, NotificationUMA: 16000, CashCeilingUMA: 8025}
	thresholds[ActivityVehicles] = ActivityThresholds{IdentificationUMA: 3210, NotificationUMA: 6420, CashCeilingUMA: 3210}
	thresholds[ActivityJewelry] = ActivityThresholds{IdentificationUMA: 805, NotificationUMA: 1605, CashCeilingUMA: 3210}

	return Config{
		UMADailyValue: decimal.NewFromFloat(113.14),
		Thresholds:    thresholds,
		Weights: FactorWeights{
			SanctionsMatch:     100,
			InternalListMatch:  60,
			WatchlistPEP:       40,
			DeclaredPEP:        40,
			AboveNotification:  30,
			NearNotification:   15,
			CashPayment:        10,
			LargeCashPayment:   20,
			CashOverCeiling:    100,
			HighRiskState:      20,
			BorderState:        10,
			CashGeographyBonus: 15,
			FirstOperation:     5,
			ForeignNationality: 10,
		},
		NearThresholdRatio: decimal.NewFromFloat(0.80),
		LargeCashRatio:     decimal.NewFromFloat(0.55),
		HighRiskStates: map[string]bool{
			"TAMAULIPAS": true,
			"GUERRERO":   true,
			"MICHOACAN":  true,
			"SINALOA":    true,
			"COLIMA":     true,
			"ZACATECAS":  true,
		},
		BorderStates: map[string]bool{
			"BAJA CALIFORNIA": true,
			"SONORA":          true,
			"CHIHUAHUA":       true,
			"COAHUILA":        true,
			"NUEVO LEON":      true,
			"TAMAULIPAS":      true,
		},
		EscalationScore: 70,
		RecalcCooldown:  5 * time.Second,
	}
}

// Validate checks the configuration for completeness: every activity must
// resolve to thresholds and DEFAULT must be present.
func (c Config) Validate() error {
	if !c.UMADailyValue.IsPositive() {
		return fmt.Errorf("uma daily value must be positive, got %s", c.UMADailyValue)
	}
	if _, ok := c.Thresholds[ActivityDefault]; !ok {
		return fmt.Errorf("threshold catalog is missing the DEFAULT activity")
	}
	for _, activity := range ActivityTypes {
		t, ok := c.Thresholds[activity]
		if !ok {
			return fmt.Errorf("threshold catalog is missing activity %s", activity)
		}
		if t.IdentificationUMA <= 0 || t.NotificationUMA <= 0 || t.CashCeilingUMA <= 0 {
			return fmt.Errorf("activity %s has non-positive thresholds", activity)
		}
		if t.NotificationUMA < t.IdentificationUMA {
			return fmt.Errorf("activity %s: notification threshold below identification threshold", activity)
		}
	}
	if c.EscalationScore <= 0 || c.EscalationScore > 100 {
		return fmt.Errorf("escalation score %d outside (0,100]", c.EscalationScore)
	}
	return nil
}

// ThresholdsFor resolves the thresholds for an activity, using a tenant
// override when one is supplied and falling back to the catalog, then to
// DEFAULT for unknown activities.
func (c Config) ThresholdsFor(activity ActivityType, override *ActivityThresholds) ActivityThresholds {
	if override != nil {
		return *override
	}
	if t, ok := c.Thresholds[activity]; ok {
		return t
	}
	return c.Thresholds[ActivityDefault]
}
