// Package storage adapts the engine's store contracts to PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
	"github.com/umbralrisk/umbral/internal/engine/batch"
	"github.com/umbralrisk/umbral/internal/screening"
)

// Store provides the document-store queries the engine depends on:
// operations, watchlist entries, tenant threshold overrides and alerts.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewStore connects the store and ensures the schema exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool, logger *zap.SugaredLogger) (*Store, error) {
	s := &Store{pool: pool, logger: logger}
	if err := s.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			client_tax_id VARCHAR(13) NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			second_last_name TEXT NOT NULL DEFAULT '',
			national_id VARCHAR(18) NOT NULL DEFAULT '',
			person_type VARCHAR(16) NOT NULL,
			nationality VARCHAR(32) NOT NULL DEFAULT '',
			declared_pep BOOLEAN NOT NULL DEFAULT FALSE,
			first_operation BOOLEAN NOT NULL DEFAULT FALSE,
			owner_acts_for_self BOOLEAN NOT NULL DEFAULT TRUE,
			owner_name TEXT NOT NULL DEFAULT '',
			owner_tax_id VARCHAR(13) NOT NULL DEFAULT '',
			activity VARCHAR(32) NOT NULL,
			amount NUMERIC(20,2) NOT NULL,
			payment_method VARCHAR(16) NOT NULL,
			cash_amount NUMERIC(20,2) NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT '',
			operation_date TIMESTAMPTZ NOT NULL,
			risk_score INTEGER NOT NULL DEFAULT 0,
			risk_level VARCHAR(8) NOT NULL DEFAULT 'LOW',
			risk_label TEXT NOT NULL DEFAULT '',
			risk_color VARCHAR(16) NOT NULL DEFAULT '',
			risk_factors JSONB NOT NULL DEFAULT '[]',
			risk_summary TEXT NOT NULL DEFAULT '',
			requires_review BOOLEAN NOT NULL DEFAULT FALSE,
			requires_escalation BOOLEAN NOT NULL DEFAULT FALSE,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			content_hash VARCHAR(64) NOT NULL DEFAULT '',
			risk_calculated_at TIMESTAMPTZ,
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			warnings JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_accumulation
			ON operations (tenant_id, client_tax_id, activity, operation_date)`,
		`CREATE TABLE IF NOT EXISTS watchlist_entries (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL DEFAULT '',
			tax_id VARCHAR(13) NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			list_type VARCHAR(16) NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_tax_id ON watchlist_entries (tax_id)`,
		`CREATE TABLE IF NOT EXISTS tenant_thresholds (
			tenant_id VARCHAR(64) NOT NULL,
			activity VARCHAR(32) NOT NULL,
			identification_uma BIGINT NOT NULL,
			notification_uma BIGINT NOT NULL,
			cash_ceiling_uma BIGINT NOT NULL,
			PRIMARY KEY (tenant_id, activity)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			operation_id VARCHAR(64) NOT NULL,
			severity VARCHAR(8) NOT NULL,
			client_tax_id VARCHAR(13) NOT NULL,
			client_name TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL,
			factor_summary JSONB NOT NULL DEFAULT '[]',
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range schemas {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertOperations writes one persistence chunk of accepted batch rows.
func (s *Store) InsertOperations(ctx context.Context, rows []*engine.Operation) error {
	pgBatch := &pgx.Batch{}
	for _, op := range rows {
		factors, err := json.Marshal(op.RiskFactors)
		if err != nil {
			return fmt.Errorf("marshal risk factors for %s: %w", op.ID, err)
		}
		warnings, err := json.Marshal(op.Warnings)
		if err != nil {
			return fmt.Errorf("marshal warnings for %s: %w", op.ID, err)
		}
		pgBatch.Queue(`INSERT INTO operations (
				id, tenant_id, client_tax_id, first_name, last_name, second_last_name,
				national_id, person_type, nationality, declared_pep, first_operation,
				owner_acts_for_self, owner_name, owner_tax_id, activity, amount,
				payment_method, cash_amount, state, operation_date, risk_score,
				risk_level, risk_label, risk_color, risk_factors, risk_summary,
				requires_review, requires_escalation, blocked, content_hash, status,
				warnings, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
				$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34)`,
			op.ID, op.TenantID, op.ClientTaxID, op.FirstName, op.LastName, op.SecondLastName,
			op.NationalID, op.PersonType, op.Nationality, op.DeclaredPEP, op.FirstOperation,
			op.OwnerActsForSelf, op.OwnerName, op.OwnerTaxID, op.Activity, op.Amount.String(),
			op.PaymentMethod, op.CashAmount.String(), op.State, op.OperationDate, op.RiskScore,
			op.RiskLevel, op.RiskLabel, op.RiskColor, factors, op.RiskSummary,
			op.RequiresReview, op.RequiresEscalation, op.Blocked, op.ContentHash, op.Status,
			warnings, op.CreatedAt, op.UpdatedAt)
	}
	results := s.pool.SendBatch(ctx, pgBatch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert operation chunk: %w", err)
		}
	}
	return nil
}

// UpdateRiskResult overwrites the risk output fields of one operation.
func (s *Store) UpdateRiskResult(ctx context.Context, tenantID, operationID string, a *engine.Assessment, status engine.OperationStatus, calculatedAt time.Time) error {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("marshal risk factors: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE operations SET
			risk_score = $1, risk_level = $2, risk_label = $3, risk_color = $4,
			risk_factors = $5, risk_summary = $6, requires_review = $7,
			requires_escalation = $8, blocked = $9, content_hash = $10,
			risk_calculated_at = $11, status = $12, updated_at = NOW()
		WHERE tenant_id = $13 AND id = $14`,
		a.Score, a.Level, a.Label, a.Color,
		factors, a.Summary, a.Level == engine.RiskLevelMedium,
		a.Level == engine.RiskLevelHigh, a.Blocked, a.ContentHash,
		calculatedAt, status, tenantID, operationID)
	if err != nil {
		return fmt.Errorf("update risk result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s not found for tenant %s", operationID, tenantID)
	}
	return nil
}

// SumAmounts answers the committed-total query for one accumulation window.
func (s *Store) SumAmounts(ctx context.Context, key batch.Key) (decimal.Decimal, error) {
	periodStart, err := time.Parse("2006-01", key.Period)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse period %q: %w", key.Period, err)
	}
	periodEnd := periodStart.AddDate(0, 1, 0)

	var raw string
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text
		FROM operations
		WHERE tenant_id = $1 AND client_tax_id = $2 AND activity = $3
			AND operation_date >= $4 AND operation_date < $5`,
		key.TenantID, key.ClientTaxID, key.Activity, periodStart, periodEnd).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum amounts: %w", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse accumulated total %q: %w", raw, err)
	}
	return total, nil
}

// EntriesByTaxID returns active global watchlist entries matching exactly.
func (s *Store) EntriesByTaxID(ctx context.Context, taxID string) ([]screening.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, tenant_id, tax_id, name, list_type, reason, active
		FROM watchlist_entries
		WHERE tax_id = $1 AND active AND list_type IN ($2, $3)`,
		taxID, screening.ListSanctions, screening.ListPEP)
	if err != nil {
		return nil, fmt.Errorf("watchlist query: %w", err)
	}
	defer rows.Close()
	return scanWatchlistEntries(rows)
}

// ActiveInternalEntries returns the tenant's active internal-list entries.
func (s *Store) ActiveInternalEntries(ctx context.Context, tenantID string) ([]screening.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, tenant_id, tax_id, name, list_type, reason, active
		FROM watchlist_entries
		WHERE tenant_id = $1 AND active AND list_type = $2`,
		tenantID, screening.ListInternal)
	if err != nil {
		return nil, fmt.Errorf("internal watchlist query: %w", err)
	}
	defer rows.Close()
	return scanWatchlistEntries(rows)
}

func scanWatchlistEntries(rows pgx.Rows) ([]screening.Entry, error) {
	var entries []screening.Entry
	for rows.Next() {
		var e screening.Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TaxID, &e.Name, &e.ListType, &e.Reason, &e.Active); err != nil {
			return nil, fmt.Errorf("scan watchlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Override resolves a tenant's per-activity threshold override; nil means
// the statutory catalog applies.
func (s *Store) Override(ctx context.Context, tenantID string, activity engine.ActivityType) (*engine.ActivityThresholds, error) {
	var t engine.ActivityThresholds
	err := s.pool.QueryRow(ctx, `SELECT identification_uma, notification_uma, cash_ceiling_uma
		FROM tenant_thresholds WHERE tenant_id = $1 AND activity = $2`,
		tenantID, activity).Scan(&t.IdentificationUMA, &t.NotificationUMA, &t.CashCeilingUMA)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("threshold override query: %w", err)
	}
	return &t, nil
}

// InsertAlert persists one escalation alert.
func (s *Store) InsertAlert(ctx context.Context, alert *engine.Alert) error {
	summary, err := json.Marshal(alert.FactorSummary)
	if err != nil {
		return fmt.Errorf("marshal factor summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO alerts (
			id, tenant_id, operation_id, severity, client_tax_id, client_name,
			score, factor_summary, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		alert.ID, alert.TenantID, alert.OperationID, alert.Severity, alert.ClientTaxID,
		alert.ClientName, alert.Score, summary, alert.Status, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns a tenant's alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, tenantID string, limit int) ([]engine.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, tenant_id, operation_id, severity,
			client_tax_id, client_name, score, factor_summary, status, created_at
		FROM alerts WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []engine.Alert
	for rows.Next() {
		var a engine.Alert
		var summary []byte
		if err := rows.Scan(&a.ID, &a.TenantID, &a.OperationID, &a.Severity,
			&a.ClientTaxID, &a.ClientName, &a.Score, &summary, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if err := json.Unmarshal(summary, &a.FactorSummary); err != nil {
			return nil, fmt.Errorf("unmarshal factor summary: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert transitions an alert from pending to acknowledged.
func (s *Store) AcknowledgeAlert(ctx context.Context, tenantID, alertID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET status = $1
		WHERE tenant_id = $2 AND id = $3`,
		engine.AlertStatusAcknowledged, tenantID, alertID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found for tenant %s", alertID, tenantID)
	}
	return nil
}

// GetOperation loads one operation; the trigger endpoint uses it to resolve
// the previous state.
func (s *Store) GetOperation(ctx context.Context, tenantID, operationID string) (*engine.Operation, error) {
	var op engine.Operation
	var factors, warnings []byte
	var amount, cash string
	var calculatedAt *time.Time
	err := s.pool.QueryRow(ctx, `SELECT id, tenant_id, client_tax_id, first_name,
			last_name, second_last_name, national_id, person_type, nationality,
			declared_pep, first_operation, owner_acts_for_self, owner_name,
			owner_tax_id, activity, amount::text, payment_method, cash_amount::text,
			state, operation_date, risk_score, risk_level, risk_label, risk_color,
			risk_factors, risk_summary, requires_review, requires_escalation,
			blocked, content_hash, risk_calculated_at, status, warnings,
			created_at, updated_at
		FROM operations WHERE tenant_id = $1 AND id = $2`, tenantID, operationID).Scan(
		&op.ID, &op.TenantID, &op.ClientTaxID, &op.FirstName,
		&op.LastName, &op.SecondLastName, &op.NationalID, &op.PersonType, &op.Nationality,
		&op.DeclaredPEP, &op.FirstOperation, &op.OwnerActsForSelf, &op.OwnerName,
		&op.OwnerTaxID, &op.Activity, &amount, &op.PaymentMethod, &cash,
		&op.State, &op.OperationDate, &op.RiskScore, &op.RiskLevel, &op.RiskLabel, &op.RiskColor,
		&factors, &op.RiskSummary, &op.RequiresReview, &op.RequiresEscalation,
		&op.Blocked, &op.ContentHash, &calculatedAt, &op.Status, &warnings,
		&op.CreatedAt, &op.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	if op.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if op.CashAmount, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse cash amount %q: %w", cash, err)
	}
	if err := json.Unmarshal(factors, &op.RiskFactors); err != nil {
		return nil, fmt.Errorf("unmarshal risk factors: %w", err)
	}
	if err := json.Unmarshal(warnings, &op.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if calculatedAt != nil {
		op.RiskCalculatedAt = *calculatedAt
	}
	return &op, nil
}
