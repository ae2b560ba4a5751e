package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarb/venuewatch/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL. Alert metrics are
// stored as a JSONB column since each rule emits a different metric set.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

var _ domain.AlertStore = (*AlertStore)(nil)

const alertSelectCols = `id, alert_type, severity, instrument, message, metrics, created_at`

// Insert stores a liquidity alert.
func (s *AlertStore) Insert(ctx context.Context, alert domain.LiquidityAlert) error {
	const query = `
		INSERT INTO liquidity_alerts (
			id, alert_type, severity, instrument, message, metrics, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	metrics, err := json.Marshal(alert.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal alert metrics %s: %w", alert.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		alert.ID, string(alert.Type), string(alert.Severity),
		alert.Instrument, alert.Message, metrics, alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// ListRecent returns the most recent alerts ordered by creation time.
func (s *AlertStore) ListRecent(ctx context.Context, limit int) ([]domain.LiquidityAlert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM liquidity_alerts ORDER BY created_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListBefore returns all alerts created strictly before the cutoff, oldest
// first.
func (s *AlertStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LiquidityAlert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM liquidity_alerts WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// DeleteBefore removes alerts created strictly before the cutoff and returns
// the number of rows deleted.
func (s *AlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM liquidity_alerts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete alerts before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanAlerts(rows pgxRows) ([]domain.LiquidityAlert, error) {
	var alerts []domain.LiquidityAlert
	for rows.Next() {
		var alert domain.LiquidityAlert
		var alertType, severity string
		var metrics []byte

		if err := rows.Scan(
			&alert.ID, &alertType, &severity,
			&alert.Instrument, &alert.Message, &metrics, &alert.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		alert.Type = domain.AlertType(alertType)
		alert.Severity = domain.AlertSeverity(severity)
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &alert.Metrics); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal alert metrics %s: %w", alert.ID, err)
			}
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: alert rows: %w", err)
	}
	return alerts, nil
}
