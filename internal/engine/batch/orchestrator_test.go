package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
	"github.com/umbralrisk/umbral/internal/engine/legal"
)

type fakeRowStore struct {
	chunks   [][]*engine.Operation
	failNth  int // 1-based chunk to fail, 0 = never
	inserted int
}

func (f *fakeRowStore) InsertOperations(_ context.Context, rows []*engine.Operation) error {
	f.chunks = append(f.chunks, rows)
	if f.failNth > 0 && len(f.chunks) == f.failNth {
		return errors.New("pg: connection reset")
	}
	f.inserted += len(rows)
	return nil
}

type fakeOverrideSource struct {
	override *engine.ActivityThresholds
	err      error
	calls    int
}

func (f *fakeOverrideSource) Override(_ context.Context, _ string, _ engine.ActivityType) (*engine.ActivityThresholds, error) {
	f.calls++
	return f.override, f.err
}

type orchestratorFixture struct {
	orch      *Orchestrator
	store     *fakeRowStore
	sums      *fakeSumStore
	overrides *fakeOverrideSource
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	cfg := engine.DefaultConfig()
	validator, err := legal.NewValidator(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	f := &orchestratorFixture{
		store:     &fakeRowStore{},
		sums:      &fakeSumStore{},
		overrides: &fakeOverrideSource{},
	}
	f.orch = NewOrchestrator(validator, cfg, f.store, f.sums, f.overrides, zap.NewNop().Sugar())
	return f
}

func batchRow(taxID string, amount int64) *engine.Operation {
	return &engine.Operation{
		ID:               fmt.Sprintf("row-%s-%d", taxID, amount),
		ClientTaxID:      taxID,
		FirstName:        "CARLOS",
		LastName:         "GOMEZ",
		SecondLastName:   "MARTINEZ",
		NationalID:       "GOMC900101HDFMRR08",
		PersonType:       engine.PersonIndividual,
		Nationality:      "MEXICANA",
		Activity:         engine.ActivityDefault,
		Amount:           decimal.NewFromInt(amount),
		PaymentMethod:    engine.PaymentTransfer,
		State:            "JALISCO",
		OperationDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		OwnerActsForSelf: true,
	}
}

func TestProcess_CleanBatch(t *testing.T) {
	f := newOrchestratorFixture(t)

	rows := []*engine.Operation{
		batchRow("GOMC900101AB1", 10000),
		batchRow("PELJ850230XY2", 20000),
	}
	res, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Processed)
	assert.Zero(t, res.Rejected)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 2, res.Histogram[engine.RiskLevelLow])
	assert.NotEmpty(t, res.BatchID)
	for _, row := range rows {
		assert.Equal(t, "tenant-1", row.TenantID)
		assert.Equal(t, engine.StatusPending, row.Status)
	}
}

func TestProcess_MonthlyAccumulationEscalatesLaterRows(t *testing.T) {
	// Two 40,000 rows for the same client. Each is MEDIUM on its own amount
	// (above identification 36,770.50); the second reaches a cumulative
	// 80,000, above the notification threshold 72,975.30, and is forced HIGH.
	f := newOrchestratorFixture(t)

	rows := []*engine.Operation{
		batchRow("GOMC900101AB1", 40000),
		batchRow("GOMC900101AB1", 40000),
	}
	res, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, engine.RiskLevelMedium, rows[0].RiskLevel)
	assert.Equal(t, 50, rows[0].RiskScore)
	assert.Equal(t, engine.StatusPendingReview, rows[0].Status)

	assert.Equal(t, engine.RiskLevelHigh, rows[1].RiskLevel)
	assert.Equal(t, 85, rows[1].RiskScore)
	assert.Contains(t, rows[1].RiskSummary, "acumulado mensual 80000.00")
	assert.Equal(t, engine.StatusPendingReport, rows[1].Status)

	assert.Equal(t, 1, res.Histogram[engine.RiskLevelMedium])
	assert.Equal(t, 1, res.Histogram[engine.RiskLevelHigh])
}

func TestProcess_CommittedTotalsCountTowardEscalation(t *testing.T) {
	f := newOrchestratorFixture(t)
	key := Key{TenantID: "tenant-1", ClientTaxID: "GOMC900101AB1", Activity: engine.ActivityDefault, Period: "2026-03"}
	f.sums.totals = map[Key]decimal.Decimal{key: decimal.NewFromInt(70000)}

	rows := []*engine.Operation{batchRow("GOMC900101AB1", 5000)}
	res, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err)
	require.True(t, res.Success)

	// 5,000 alone is LOW, but 70,000 already persisted this month pushes the
	// cumulative total to 75,000, above the notification threshold.
	assert.Equal(t, engine.RiskLevelHigh, rows[0].RiskLevel)
	assert.Contains(t, rows[0].RiskSummary, "acumulado mensual")
}

func TestProcess_RejectedRowsSkipAccumulation(t *testing.T) {
	f := newOrchestratorFixture(t)

	bad := batchRow("GOMC900101AB", 40000) // 12-char RFC on an individual
	good := batchRow("GOMC900101AB1", 40000)
	res, err := f.orch.Process(context.Background(), "tenant-1", []*engine.Operation{bad, good})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Messages[0], "RFC")

	// The rejected row's 40,000 must not count toward the client's total.
	assert.Equal(t, engine.RiskLevelMedium, good.RiskLevel)
	assert.Zero(t, bad.RiskScore, "rejected rows receive no assessment")
}

func TestProcess_WarnedRowsAreStillPersisted(t *testing.T) {
	f := newOrchestratorFixture(t)

	row := batchRow("GOMC900101AB1", 10000)
	row.SecondLastName = ""
	res, err := f.orch.Process(context.Background(), "tenant-1", []*engine.Operation{row})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Warned)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Messages[0], "segundo apellido")
	assert.Equal(t, row.Warnings, res.Warnings[0].Messages)
}

func TestProcess_ChunkedPersistenceIsIndependent(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.chunkSize = 2
	f.store.failNth = 2

	rows := make([]*engine.Operation, 5)
	for i := range rows {
		rows[i] = batchRow("GOMC900101AB1", 1000)
	}
	res, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err, "a chunk failure is partial success, not an error")

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Chunks, 3)
	assert.True(t, res.Chunks[0].Committed)
	assert.False(t, res.Chunks[1].Committed)
	assert.NotEmpty(t, res.Chunks[1].Error)
	assert.True(t, res.Chunks[2].Committed)
}

func TestProcess_SampleCapsLimitIssueLists(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.sampleCap = 3

	rows := make([]*engine.Operation, 6)
	for i := range rows {
		rows[i] = batchRow("GOMC900101AB", 1000) // every row rejected
	}
	res, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Rejected)
	assert.Len(t, res.Errors, 3)
	assert.True(t, res.HasMoreErrors)
}

func TestProcess_OverrideResolvedOncePerActivity(t *testing.T) {
	f := newOrchestratorFixture(t)

	rows := []*engine.Operation{
		batchRow("GOMC900101AB1", 1000),
		batchRow("PELJ850230XY2", 1000),
		batchRow("ROGA700101ZZ3", 1000),
	}
	rows[2].Activity = engine.ActivityVehicles

	_, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, f.overrides.calls)
}

func TestProcess_OverrideLookupFailureFallsBack(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.overrides.err = errors.New("pg: timeout")

	rows := []*engine.Operation{batchRow("GOMC900101AB1", 40000)}
	res, err := f.orch.Process(context.Background(), "tenant-1", rows)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, engine.RiskLevelMedium, rows[0].RiskLevel, "statutory bands still apply")
}

func TestProcess_StructurallyInvalidInput(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.Process(context.Background(), "", []*engine.Operation{batchRow("GOMC900101AB1", 1)})
	require.Error(t, err)

	_, err = f.orch.Process(context.Background(), "tenant-1", nil)
	require.Error(t, err)
}

func TestProcess_ConstantsEchoStatutoryValues(t *testing.T) {
	f := newOrchestratorFixture(t)

	res, err := f.orch.Process(context.Background(), "tenant-1", []*engine.Operation{batchRow("GOMC900101AB1", 1)})
	require.NoError(t, err)

	assert.Equal(t, "113.14", res.Constants.UMADailyValue.StringFixed(2))
	assert.Equal(t, "36770.50", res.Constants.IdentificationThreshold.StringFixed(2))
	assert.Equal(t, "72975.30", res.Constants.NotificationThreshold.StringFixed(2))
	assert.Equal(t, "363179.40", res.Constants.CashCeiling.StringFixed(2))
}
