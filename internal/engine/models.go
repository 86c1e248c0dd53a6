// Package engine implements the risk assessment engine for reportable
// operations under the LFPIORPI vulnerable-activity regime: factor-based
// scoring, three-band classification, recalculation guarding and alerting.
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel represents the three-band risk classification of an operation.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Rank returns the ordering of a level so escalation logic can compare bands.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelHigh:
		return 2
	case RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

// ActivityType identifies the vulnerable activity an operation belongs to.
type ActivityType string

const (
	ActivityRealEstate ActivityType = "REAL_ESTATE"
	ActivityGaming     ActivityType = "GAMING"
	ActivityJewelry    ActivityType = "JEWELRY_PRECIOUS_METALS"
	ActivityVehicles   ActivityType = "VEHICLES"
	ActivityArt        ActivityType = "ART_ANTIQUES"
	ActivityLoans      ActivityType = "LOANS"
	ActivityNotary     ActivityType = "NOTARY_SERVICES"
	ActivityDefault    ActivityType = "DEFAULT"
)

// ActivityTypes lists every known activity, DEFAULT included. Mapping tables
// keyed by activity are validated against this list at construction.
var ActivityTypes = []ActivityType{
	ActivityRealEstate,
	ActivityGaming,
	ActivityJewelry,
	ActivityVehicles,
	ActivityArt,
	ActivityLoans,
	ActivityNotary,
	ActivityDefault,
}

// PaymentMethod is the instrument used to settle an operation.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
	PaymentCheck    PaymentMethod = "CHECK"
	PaymentOther    PaymentMethod = "OTHER"
)

// PersonType distinguishes natural persons from legal entities; the RFC
// identifier length depends on it (13 vs 12).
type PersonType string

const (
	PersonIndividual PersonType = "INDIVIDUAL"
	PersonCorporate  PersonType = "CORPORATE"
)

// OperationStatus is the workflow state assigned to a persisted operation.
type OperationStatus string

const (
	StatusPending       OperationStatus = "PENDING"
	StatusPendingReview OperationStatus = "PENDING_REVIEW"
	StatusPendingReport OperationStatus = "PENDING_REPORT"
)

// Operation is one reportable financial act. The batch ingest path creates
// operations; the recalculation path mutates only the risk output fields.
type Operation struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	ClientTaxID      string     `json:"client_tax_id" db:"client_tax_id"`
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	SecondLastName   string     `json:"second_last_name" db:"second_last_name"`
	NationalID       string     `json:"national_id" db:"national_id"` // CURP
	PersonType       PersonType `json:"person_type" db:"person_type"`
	Nationality      string     `json:"nationality" db:"nationality"`
	DeclaredPEP      bool       `json:"declared_pep" db:"declared_pep"`
	FirstOperation   bool       `json:"first_operation" db:"first_operation"`
	OwnerActsForSelf bool       `json:"owner_acts_for_self" db:"owner_acts_for_self"`
	OwnerName        string     `json:"owner_name" db:"owner_name"`
	OwnerTaxID       string     `json:"owner_tax_id" db:"owner_tax_id"`

	Activity      ActivityType    `json:"activity" db:"activity"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	CashAmount    decimal.Decimal `json:"cash_amount" db:"cash_amount"`
	State         string          `json:"state" db:"state"`
	OperationDate time.Time       `json:"operation_date" db:"operation_date"`

	// Risk output fields, written only by the recalculation path.
	RiskScore          int             `json:"risk_score" db:"risk_score"`
	RiskLevel          RiskLevel       `json:"risk_level" db:"risk_level"`
	RiskLabel          string          `json:"risk_label" db:"risk_label"`
	RiskColor          string          `json:"risk_color" db:"risk_color"`
	RiskFactors        []RiskFactor    `json:"risk_factors" db:"risk_factors"`
	RiskSummary        string          `json:"risk_summary" db:"risk_summary"`
	RequiresReview     bool            `json:"requires_review" db:"requires_review"`
	RequiresEscalation bool            `json:"requires_escalation" db:"requires_escalation"`
	Blocked            bool            `json:"blocked" db:"blocked"`
	ContentHash        string          `json:"content_hash" db:"content_hash"`
	RiskCalculatedAt   time.Time       `json:"risk_calculated_at" db:"risk_calculated_at"`
	Status             OperationStatus `json:"status" db:"status"`
	Warnings           []string        `json:"warnings" db:"warnings"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName assembles the display name used for watchlist name matching.
func (o *Operation) FullName() string {
	name := o.FirstName
	if o.LastName != "" {
		name += " " + o.LastName
	}
	if o.SecondLastName != "" {
		name += " " + o.SecondLastName
	}
	return name
}

// EffectiveCashAmount is the amount measured against the statutory cash
// ceiling: the declared cash sub-amount when present, otherwise the full
// amount of a cash-instrument operation.
func (o *Operation) EffectiveCashAmount() decimal.Decimal {
	if o.PaymentMethod != PaymentCash {
		if o.CashAmount.IsPositive() {
			return o.CashAmount
		}
		return decimal.Zero
	}
	if o.CashAmount.IsPositive() {
		return o.CashAmount
	}
	return o.Amount
}

// Period returns the year-month accumulation period of the operation.
func (o *Operation) Period() string {
	return o.OperationDate.Format("2006-01")
}

// RiskFactor is one triggered scoring rule with its weight and rationale.
type RiskFactor struct {
	ID        string    `json:"id"`
	Weight    int       `json:"weight"`
	Severity  RiskLevel `json:"severity"`
	Rationale string    `json:"rationale"`
	Blocking  bool      `json:"blocking,omitempty"`
}

// Assessment is the derived result of scoring one operation. It is written
// back onto the operation's risk fields, never persisted on its own.
type Assessment struct {
	Score       int          `json:"score"`
	Level       RiskLevel    `json:"level"`
	Label       string       `json:"label"`
	Color       string       `json:"color"`
	Factors     []RiskFactor `json:"factors"`
	Blocked     bool         `json:"blocked"`
	Summary     string       `json:"summary"`
	ContentHash string       `json:"content_hash"`
}

// Alert is raised when an operation's score reaches the escalation threshold.
type Alert struct {
	ID            string    `json:"id" db:"id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	OperationID   string    `json:"operation_id" db:"operation_id"`
	Severity      RiskLevel `json:"severity" db:"severity"`
	ClientTaxID   string    `json:"client_tax_id" db:"client_tax_id"`
	ClientName    string    `json:"client_name" db:"client_name"`
	Score         int       `json:"score" db:"score"`
	FactorSummary []string  `json:"factor_summary" db:"factor_summary"`
	Status        string    `json:"status" db:"status"` // "PENDING" or "ACKNOWLEDGED"
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

const (
	AlertStatusPending      = "PENDING"
	AlertStatusAcknowledged = "ACKNOWLEDGED"
)
