package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-envlog/internal/models"

	"go.uber.org/zap"
)

// SensorsRepository durable store for IR sensor definitions
type SensorsRepository interface {
	// ListSensors ordered by id ascending
	ListSensors(ctx context.Context) ([]models.IRSensor, error)
	// SaveSensor inserts or updates by id
	SaveSensor(ctx context.Context, s models.IRSensor) error
	DeleteSensor(ctx context.Context, id int64) error
}

type PostgresSensorsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresSensorsRepo(db *sql.DB, logger *zap.Logger) *PostgresSensorsRepo {
	return &PostgresSensorsRepo{db: db, logger: logger}
}

func (r *PostgresSensorsRepo) ListSensors(ctx context.Context) ([]models.IRSensor, error) {
	query := `
		SELECT id, COALESCE(device_id, 0), name, data, created_at, updated_at
		FROM ir_sensors
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ir sensors: %w", err)
	}
	defer rows.Close()

	var out []models.IRSensor
	for rows.Next() {
		var s models.IRSensor
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Name, &s.Data, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ir sensor: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ir sensors: %w", err)
	}
	return out, nil
}

func (r *PostgresSensorsRepo) SaveSensor(ctx context.Context, s models.IRSensor) error {
	query := `
		INSERT INTO ir_sensors (id, device_id, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			name = EXCLUDED.name,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, nullDeviceID(s.DeviceID), s.Name, s.Data, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save ir sensor %d: %w", s.ID, err)
	}
	return nil
}

func (r *PostgresSensorsRepo) DeleteSensor(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ir_sensors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete ir sensor %d: %w", id, err)
	}
	return nil
}
