package legal

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(engine.DefaultConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return v
}

func validIndividualRow() *engine.Operation {
	return &engine.Operation{
		ID:               "row-1",
		TenantID:         "tenant-1",
		ClientTaxID:      "GOMC900101AB1", // 13 chars
		FirstName:        "CARLOS",
		LastName:         "GOMEZ",
		SecondLastName:   "MARTINEZ",
		NationalID:       "GOMC900101HDFMRR08",
		PersonType:       engine.PersonIndividual,
		Nationality:      "MEXICANA",
		Activity:         engine.ActivityGaming,
		Amount:           decimal.NewFromInt(10000),
		PaymentMethod:    engine.PaymentTransfer,
		State:            "JALISCO",
		OperationDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		OwnerActsForSelf: true,
	}
}

func validCorporateRow() *engine.Operation {
	row := validIndividualRow()
	row.PersonType = engine.PersonCorporate
	row.ClientTaxID = "UMB200101AB1" // 12 chars
	row.FirstName = "UMBRAL COMERCIAL SA DE CV"
	row.LastName = ""
	row.SecondLastName = ""
	row.NationalID = ""
	return row
}

func TestValidate_CleanIndividualRow(t *testing.T) {
	v := newTestValidator(t)
	out := v.Validate(validIndividualRow(), nil)

	assert.False(t, out.Rejected())
	assert.Empty(t, out.HardStops)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, engine.RiskLevelLow, out.RiskLevel)
	assert.Equal(t, 10, out.RiskScore)
}

func TestValidate_IndividualWithCorporateLengthRFC(t *testing.T) {
	// A 12-character RFC on a natural person is a hard stop, not a warning.
	v := newTestValidator(t)
	row := validIndividualRow()
	row.ClientTaxID = "GOMC900101AB" // 12 chars

	out := v.Validate(row, nil)
	require.True(t, out.Rejected())
	require.Len(t, out.HardStops, 1)
	assert.Contains(t, out.HardStops[0], "persona física")
	assert.Contains(t, out.HardStops[0], "13")
}

func TestValidate_CorporateWithIndividualLengthRFC(t *testing.T) {
	v := newTestValidator(t)
	row := validCorporateRow()
	row.ClientTaxID = "UMB200101AB12" // 13 chars

	out := v.Validate(row, nil)
	require.True(t, out.Rejected())
	assert.Contains(t, out.HardStops[0], "persona moral")
}

func TestValidate_CashOverCeilingIsHardStop(t *testing.T) {
	// 400,000 in cash against the default 3,210 UMA ceiling (363,179.40).
	v := newTestValidator(t)
	row := validIndividualRow()
	row.Amount = decimal.NewFromInt(400000)
	row.PaymentMethod = engine.PaymentCash

	out := v.Validate(row, nil)
	require.True(t, out.Rejected())
	assert.Contains(t, out.HardStops[0], "excede el límite legal")
	assert.Contains(t, out.HardStops[0], "363179.40")
}

func TestValidate_CashAtCeilingNotRejected(t *testing.T) {
	v := newTestValidator(t)
	row := validIndividualRow()
	row.Amount = decimal.NewFromFloat(363179.40)
	row.PaymentMethod = engine.PaymentCash

	out := v.Validate(row, nil)
	assert.False(t, out.Rejected(), "the ceiling itself is still legal")
}

func TestValidate_WarningsComputedAlongsideHardStops(t *testing.T) {
	// A rejected row still reports every applicable warning so the uploader
	// can fix the file in one pass.
	v := newTestValidator(t)
	row := validIndividualRow()
	row.ClientTaxID = "GOMC900101AB" // hard stop
	row.SecondLastName = ""
	row.NationalID = "BADCURP"

	out := v.Validate(row, nil)
	require.True(t, out.Rejected())
	require.Len(t, out.Warnings, 2)
	assert.Contains(t, strings.Join(out.Warnings, "; "), "segundo apellido")
	assert.Contains(t, strings.Join(out.Warnings, "; "), "CURP")
}

func TestValidate_CorporateFieldMisuseWarnings(t *testing.T) {
	v := newTestValidator(t)
	row := validCorporateRow()
	row.NationalID = "GOMC900101HDFMRR08"
	row.SecondLastName = "MARTINEZ"

	out := v.Validate(row, nil)
	assert.False(t, out.Rejected())
	require.Len(t, out.Warnings, 2)
}

func TestValidate_LargeCashWarning(t *testing.T) {
	// 55% of the ceiling (199,748.67) up to the ceiling is a review warning.
	v := newTestValidator(t)
	row := validIndividualRow()
	row.Activity = engine.ActivityDefault
	row.Amount = decimal.NewFromInt(250000)
	row.PaymentMethod = engine.PaymentCash

	out := v.Validate(row, nil)
	assert.False(t, out.Rejected())
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, "nivel de revisión") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_GamingCashPrizeWarning(t *testing.T) {
	v := newTestValidator(t)
	row := validIndividualRow()
	row.Amount = decimal.NewFromInt(5000)
	row.PaymentMethod = engine.PaymentCash

	out := v.Validate(row, nil)
	assert.False(t, out.Rejected())
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "juegos y sorteos")
}

func TestValidate_BeneficialOwnerWarning(t *testing.T) {
	v := newTestValidator(t)
	row := validIndividualRow()
	row.OwnerActsForSelf = false
	row.OwnerName = "TERCERO SA"
	row.OwnerTaxID = ""

	out := v.Validate(row, nil)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "dueño beneficiario")

	row.OwnerTaxID = "TER200101AB1"
	out = v.Validate(row, nil)
	assert.Empty(t, out.Warnings)
}

func TestValidate_PreliminaryLevels(t *testing.T) {
	// Default activity: identification 325 UMA = 36,770.50 and notification
	// 645 UMA = 72,975.30.
	v := newTestValidator(t)

	cases := []struct {
		amount int64
		level  engine.RiskLevel
		score  int
	}{
		{10000, engine.RiskLevelLow, 10},
		{36770, engine.RiskLevelLow, 10},
		{36771, engine.RiskLevelMedium, 50},
		{40000, engine.RiskLevelMedium, 50},
		{72975, engine.RiskLevelMedium, 50},
		{72976, engine.RiskLevelHigh, 85},
		{500000, engine.RiskLevelHigh, 85},
	}
	for _, tc := range cases {
		row := validIndividualRow()
		row.Activity = engine.ActivityDefault
		row.Amount = decimal.NewFromInt(tc.amount)
		out := v.Validate(row, nil)
		assert.Equal(t, tc.level, out.RiskLevel, "amount %d", tc.amount)
		assert.Equal(t, tc.score, out.RiskScore, "amount %d", tc.amount)
	}
}

func TestValidate_TenantOverrideChangesBands(t *testing.T) {
	v := newTestValidator(t)
	override := &engine.ActivityThresholds{IdentificationUMA: 50, NotificationUMA: 100, CashCeilingUMA: 3210}

	row := validIndividualRow()
	row.Amount = decimal.NewFromInt(12000) // above 100 UMA = 11,314.00

	out := v.Validate(row, override)
	assert.Equal(t, engine.RiskLevelHigh, out.RiskLevel)
}

func TestValidCURP(t *testing.T) {
	assert.True(t, validCURP("GOMC900101HDFMRR08"))
	assert.True(t, validCURP("PEXL850230MGRRRL09"))
	assert.False(t, validCURP("GOMC900101HDFMRR0"))   // 17 chars
	assert.False(t, validCURP("gomc900101hdfmrr08")) // lowercase
	assert.False(t, validCURP("GOMC9001X1HDFMRR08")) // letter in date
	assert.False(t, validCURP("GOMC900101XDFMRR08")) // sex marker not H/M
}
