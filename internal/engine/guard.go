package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Guard skip reasons, reported through metrics and logs.
const (
	SkipCooldown        = "cooldown"
	SkipNoRelevantDiff  = "no_relevant_diff"
	SkipHashUnchanged   = "hash_unchanged"
	GuardProceed        = "proceed"
	GuardProceedNoState = "proceed_no_previous"
)

// GuardDecision is the outcome of the change guard for one delivery.
type GuardDecision struct {
	Proceed bool
	Reason  string
}

// ChangeGuard decides whether a document write warrants a recalculation.
// The engine's own write-back re-enters the same trigger path, so without
// this guard the system loops. Three independent predicates can each skip:
// a cooldown window since the last recalculation, a field diff confined to
// the assessment's own output fields, and an unchanged content hash over the
// fields the assessment depends on. Any one skipping is sufficient. This is
// heuristic, not provably loop-free under arbitrary concurrent writers; a
// true race between two near-simultaneous edits can pass the guard twice,
// which is acceptable because both recomputations converge.
type ChangeGuard struct {
	cooldown time.Duration
	now      func() time.Time
}

// NewChangeGuard builds a guard with the configured cooldown window.
func NewChangeGuard(cooldown time.Duration) *ChangeGuard {
	return &ChangeGuard{cooldown: cooldown, now: time.Now}
}

// ShouldRecalculate is a pure decision: the caller persists the new hash and
// timestamp after a successful recalculation.
func (g *ChangeGuard) ShouldRecalculate(prev, curr *Operation, lastCalc time.Time, lastHash string) GuardDecision {
	if !lastCalc.IsZero() && g.now().Sub(lastCalc) < g.cooldown {
		return GuardDecision{Proceed: false, Reason: SkipCooldown}
	}
	if prev != nil && relevantFieldsEqual(prev, curr) {
		return GuardDecision{Proceed: false, Reason: SkipNoRelevantDiff}
	}
	if lastHash != "" && ContentHash(curr) == lastHash {
		return GuardDecision{Proceed: false, Reason: SkipHashUnchanged}
	}
	if prev == nil {
		return GuardDecision{Proceed: true, Reason: GuardProceedNoState}
	}
	return GuardDecision{Proceed: true, Reason: GuardProceed}
}

// relevantFieldsEqual reports whether the two states differ only in fields
// the assessment ignores (its own output fields plus bookkeeping timestamps).
func relevantFieldsEqual(a, b *Operation) bool {
	return canonicalFields(a) == canonicalFields(b)
}

// ContentHash hashes the subset of fields the assessment depends on: client
// data, operation details and beneficial-owner data. Risk output fields and
// bookkeeping timestamps are deliberately excluded.
func ContentHash(op *Operation) string {
	sum := sha256.Sum256([]byte(canonicalFields(op)))
	return hex.EncodeToString(sum[:])
}

func canonicalFields(op *Operation) string {
	parts := []string{
		op.ClientTaxID,
		op.FirstName,
		op.LastName,
		op.SecondLastName,
		op.NationalID,
		string(op.PersonType),
		op.Nationality,
		fmt.Sprintf("%t", op.DeclaredPEP),
		fmt.Sprintf("%t", op.FirstOperation),
		fmt.Sprintf("%t", op.OwnerActsForSelf),
		op.OwnerName,
		op.OwnerTaxID,
		string(op.Activity),
		op.Amount.String(),
		string(op.PaymentMethod),
		op.CashAmount.String(),
		op.State,
		op.OperationDate.UTC().Format(time.RFC3339),
	}
	return strings.Join(parts, "|")
}
