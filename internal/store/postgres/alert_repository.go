package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"geowatch-go/internal/domain"
)

// AlertRepository implements store.AlertRepository using PostgreSQL.
// Alerts are immutable, so the repository is insert-and-query only.
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new PostgreSQL-backed alert repository.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create stores a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	actors, err := json.Marshal(alert.Actors)
	if err != nil {
		return fmt.Errorf("failed to marshal actors: %w", err)
	}
	sourceData, err := json.Marshal(alert.SourceData)
	if err != nil {
		return fmt.Errorf("failed to marshal source data: %w", err)
	}
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO alerts (
			id, alert_type, severity, title, description, region, country,
			actors, confidence_score, threat_score, created_at,
			source_data, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.pool.Exec(ctx, query,
		alert.ID,
		alert.Type,
		alert.Severity,
		alert.Title,
		alert.Description,
		alert.Region,
		alert.Country,
		actors,
		alert.ConfidenceScore,
		alert.ThreatScore,
		alert.Timestamp,
		sourceData,
		metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	query := `
		SELECT id, alert_type, severity, title, description, region, country,
			   actors, confidence_score, threat_score, created_at,
			   source_data, metadata
		FROM alerts
		WHERE id = $1
	`

	row := r.db.pool.QueryRow(ctx, query, id)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// List retrieves alerts matching the filter criteria, newest first.
func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	query := `
		SELECT id, alert_type, severity, title, description, region, country,
			   actors, confidence_score, threat_score, created_at,
			   source_data, metadata
		FROM alerts
		WHERE ($1 = '' OR alert_type = $1)
		  AND ($2 = '' OR severity = $2)
		  AND ($3 = '' OR region = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.pool.Query(ctx, query,
		string(filter.Type),
		string(filter.Severity),
		filter.Region,
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// CountSince returns the number of alerts created at or after t.
func (r *AlertRepository) CountSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := r.db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE created_at >= $1`, t,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// scanAlert reads one alert from a row, decoding the JSONB columns.
func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var (
		alert      domain.Alert
		actors     []byte
		sourceData []byte
		metadata   []byte
	)

	err := row.Scan(
		&alert.ID,
		&alert.Type,
		&alert.Severity,
		&alert.Title,
		&alert.Description,
		&alert.Region,
		&alert.Country,
		&actors,
		&alert.ConfidenceScore,
		&alert.ThreatScore,
		&alert.Timestamp,
		&sourceData,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(actors, &alert.Actors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actors: %w", err)
	}
	if err := json.Unmarshal(sourceData, &alert.SourceData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source data: %w", err)
	}
	if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &alert, nil
}
