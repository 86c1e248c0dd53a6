package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guardTestOperation() *Operation {
	return &Operation{
		ID:            "op-1",
		TenantID:      "tenant-1",
		ClientTaxID:   "GOMC900101AB1",
		FirstName:     "CARLOS",
		LastName:      "GOMEZ",
		PersonType:    PersonIndividual,
		Activity:      ActivityJewelry,
		Amount:        decimal.NewFromInt(50000),
		PaymentMethod: PaymentTransfer,
		State:         "JALISCO",
		OperationDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestChangeGuard_ProceedsOnCreation(t *testing.T) {
	guard := NewChangeGuard(5 * time.Second)
	curr := guardTestOperation()

	decision := guard.ShouldRecalculate(nil, curr, time.Time{}, "")
	require.True(t, decision.Proceed)
	assert.Equal(t, GuardProceedNoState, decision.Reason)
}

func TestChangeGuard_SkipsWithinCooldown(t *testing.T) {
	guard := NewChangeGuard(5 * time.Second)
	curr := guardTestOperation()

	decision := guard.ShouldRecalculate(nil, curr, time.Now().Add(-time.Second), "")
	require.False(t, decision.Proceed)
	assert.Equal(t, SkipCooldown, decision.Reason)
}

func TestChangeGuard_ProceedsAfterCooldown(t *testing.T) {
	guard := NewChangeGuard(5 * time.Second)
	prev := guardTestOperation()
	curr := guardTestOperation()
	curr.Amount = decimal.NewFromInt(60000)

	decision := guard.ShouldRecalculate(prev, curr, time.Now().Add(-time.Minute), "")
	assert.True(t, decision.Proceed)
}

func TestChangeGuard_SkipsWhenOnlyOutputFieldsChanged(t *testing.T) {
	guard := NewChangeGuard(5 * time.Second)
	prev := guardTestOperation()
	curr := guardTestOperation()
	// The engine's own write-back mutates exactly these fields.
	curr.RiskScore = 85
	curr.RiskLevel = RiskLevelHigh
	curr.RiskSummary = "updated"
	curr.RiskCalculatedAt = time.Now().Add(-time.Minute)
	curr.UpdatedAt = time.Now()

	decision := guard.ShouldRecalculate(prev, curr, curr.RiskCalculatedAt, "")
	require.False(t, decision.Proceed)
	assert.Equal(t, SkipNoRelevantDiff, decision.Reason)
}

func TestChangeGuard_SkipsWhenHashUnchanged(t *testing.T) {
	guard := NewChangeGuard(5 * time.Second)
	curr := guardTestOperation()

	decision := guard.ShouldRecalculate(nil, curr, time.Now().Add(-time.Minute), ContentHash(curr))
	require.False(t, decision.Proceed)
	assert.Equal(t, SkipHashUnchanged, decision.Reason)
}

func TestChangeGuard_SecondDeliveryIsNoOp(t *testing.T) {
	// At-least-once delivery: the first delivery recalculates, the caller
	// persists the hash, and the redelivery must skip.
	guard := NewChangeGuard(5 * time.Second)
	curr := guardTestOperation()

	first := guard.ShouldRecalculate(nil, curr, time.Time{}, "")
	require.True(t, first.Proceed)

	stored := ContentHash(curr)
	second := guard.ShouldRecalculate(nil, curr, time.Now().Add(-time.Minute), stored)
	assert.False(t, second.Proceed)
}

func TestContentHash_IgnoresOutputFields(t *testing.T) {
	a := guardTestOperation()
	b := guardTestOperation()
	b.RiskScore = 100
	b.RiskLevel = RiskLevelHigh
	b.ContentHash = "stale"
	b.UpdatedAt = time.Now()

	assert.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_ChangesWithRelevantFields(t *testing.T) {
	a := guardTestOperation()
	b := guardTestOperation()
	b.Amount = decimal.NewFromInt(50001)
	assert.NotEqual(t, ContentHash(a), ContentHash(b))

	c := guardTestOperation()
	c.DeclaredPEP = true
	assert.NotEqual(t, ContentHash(a), ContentHash(c))

	d := guardTestOperation()
	d.OwnerTaxID = "XAXX010101000"
	assert.NotEqual(t, ContentHash(a), ContentHash(d))
}
