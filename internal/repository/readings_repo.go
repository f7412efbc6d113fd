package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-envlog/internal/models"

	"go.uber.org/zap"
)

// ReadingsRepository durable store for environment readings
type ReadingsRepository interface {
	SaveReading(ctx context.Context, r models.Reading) error
	// ListRecentReadings newest first, at most limit rows
	ListRecentReadings(ctx context.Context, limit int) ([]models.Reading, error)
}

// PostgresReadingsRepo env_logs table
type PostgresReadingsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresReadingsRepo(db *sql.DB, logger *zap.Logger) *PostgresReadingsRepo {
	return &PostgresReadingsRepo{db: db, logger: logger}
}

// SaveReading inserts one row. The process-local sequence id is not stored;
// the table keeps its own serial key.
func (r *PostgresReadingsRepo) SaveReading(ctx context.Context, rd models.Reading) error {
	query := `
		INSERT INTO env_logs (
			device_id, temperature_sht, temperature_qmp, humidity, pressure,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		nullDeviceID(rd.DeviceID),
		rd.TemperatureSht,
		rd.TemperatureQmp,
		rd.Humidity,
		rd.Pressure,
		rd.CreatedAt,
		rd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert env log: %w", err)
	}
	return nil
}

func (r *PostgresReadingsRepo) ListRecentReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		return []models.Reading{}, nil
	}

	query := `
		SELECT
			id,
			COALESCE(device_id, 0),
			temperature_sht,
			temperature_qmp,
			humidity,
			pressure,
			created_at,
			updated_at
		FROM env_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query env logs: %w", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, limit)
	for rows.Next() {
		var rd models.Reading
		if err := rows.Scan(
			&rd.ID,
			&rd.DeviceID,
			&rd.TemperatureSht,
			&rd.TemperatureQmp,
			&rd.Humidity,
			&rd.Pressure,
			&rd.CreatedAt,
			&rd.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan env log: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate env logs: %w", err)
	}
	return out, nil
}

func nullDeviceID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
