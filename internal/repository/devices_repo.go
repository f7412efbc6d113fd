package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-envlog/internal/models"

	"go.uber.org/zap"
)

// DevicesRepository durable store for devices, keyed by MAC address
type DevicesRepository interface {
	// EnsureDevice creates d on first contact. An existing row keeps its
	// descriptive fields and only refreshes ip_address.
	EnsureDevice(ctx context.Context, d models.Device) (models.Device, error)
	// SaveDevice creates or fully updates an operator-registered device
	SaveDevice(ctx context.Context, d models.Device) (models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
}

type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

const deviceColumns = `id, mac_address, ip_address, name, location, collect_metrics, registered_at, created_at, updated_at`

func (r *PostgresDevicesRepo) EnsureDevice(ctx context.Context, d models.Device) (models.Device, error) {
	query := `
		INSERT INTO devices (
			mac_address, ip_address, name, location, collect_metrics,
			registered_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (mac_address) DO UPDATE SET
			ip_address = CASE WHEN EXCLUDED.ip_address = '` + models.UnknownIP + `'
				THEN devices.ip_address ELSE EXCLUDED.ip_address END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + deviceColumns
	return r.upsert(ctx, query, d)
}

func (r *PostgresDevicesRepo) SaveDevice(ctx context.Context, d models.Device) (models.Device, error) {
	query := `
		INSERT INTO devices (
			mac_address, ip_address, name, location, collect_metrics,
			registered_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (mac_address) DO UPDATE SET
			ip_address = EXCLUDED.ip_address,
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			collect_metrics = EXCLUDED.collect_metrics,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + deviceColumns
	return r.upsert(ctx, query, d)
}

func (r *PostgresDevicesRepo) upsert(ctx context.Context, query string, d models.Device) (models.Device, error) {
	row := r.db.QueryRowContext(ctx, query,
		d.MacAddress,
		d.IPAddress,
		d.Name,
		d.Location,
		d.CollectMetrics,
		d.RegisteredAt,
		d.CreatedAt,
		d.UpdatedAt,
	)
	out, err := scanDevice(row)
	if err != nil {
		return models.Device{}, fmt.Errorf("failed to upsert device %s: %w", d.MacAddress, err)
	}
	return out, nil
}

func (r *PostgresDevicesRepo) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (models.Device, error) {
	var d models.Device
	err := s.Scan(
		&d.ID,
		&d.MacAddress,
		&d.IPAddress,
		&d.Name,
		&d.Location,
		&d.CollectMetrics,
		&d.RegisteredAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}
