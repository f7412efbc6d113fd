package repository

import (
	"context"
	"sort"
	"sync"

	"wisefido-envlog/internal/models"
)

// Memory repositories back the service when DB_ENABLED=false (local runs,
// front-end integration without PostgreSQL). Nothing survives a restart.

type MemoryReadingsRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []models.Reading // oldest first
	max    int
}

// NewMemoryReadingsRepo keeps at most max rows (0 = unbounded)
func NewMemoryReadingsRepo(max int) *MemoryReadingsRepo {
	return &MemoryReadingsRepo{max: max}
}

func (r *MemoryReadingsRepo) SaveReading(_ context.Context, rd models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	rd.ID = r.nextID
	r.rows = append(r.rows, rd)
	if r.max > 0 && len(r.rows) > r.max {
		r.rows = append([]models.Reading(nil), r.rows[len(r.rows)-r.max:]...)
	}
	return nil
}

func (r *MemoryReadingsRepo) ListRecentReadings(_ context.Context, limit int) ([]models.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > len(r.rows) {
		limit = len(r.rows)
	}
	out := make([]models.Reading, 0, max(limit, 0))
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.rows[i])
	}
	return out, nil
}

type MemoryDevicesRepo struct {
	mu     sync.Mutex
	nextID int64
	byMAC  map[string]models.Device
}

func NewMemoryDevicesRepo() *MemoryDevicesRepo {
	return &MemoryDevicesRepo{byMAC: map[string]models.Device{}}
}

func (r *MemoryDevicesRepo) EnsureDevice(_ context.Context, d models.Device) (models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byMAC[d.MacAddress]; ok {
		if d.IPAddress != "" && d.IPAddress != models.UnknownIP {
			cur.IPAddress = d.IPAddress
		}
		cur.UpdatedAt = d.UpdatedAt
		r.byMAC[d.MacAddress] = cur
		return cur, nil
	}
	return r.insertLocked(d), nil
}

func (r *MemoryDevicesRepo) SaveDevice(_ context.Context, d models.Device) (models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byMAC[d.MacAddress]; ok {
		d.ID = cur.ID
		d.RegisteredAt = cur.RegisteredAt
		d.CreatedAt = cur.CreatedAt
		r.byMAC[d.MacAddress] = d
		return d, nil
	}
	return r.insertLocked(d), nil
}

func (r *MemoryDevicesRepo) insertLocked(d models.Device) models.Device {
	r.nextID++
	d.ID = r.nextID
	r.byMAC[d.MacAddress] = d
	return d
}

func (r *MemoryDevicesRepo) ListDevices(_ context.Context) ([]models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Device, 0, len(r.byMAC))
	for _, d := range r.byMAC {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type MemorySensorsRepo struct {
	mu   sync.Mutex
	byID map[int64]models.IRSensor
}

func NewMemorySensorsRepo() *MemorySensorsRepo {
	return &MemorySensorsRepo{byID: map[int64]models.IRSensor{}}
}

func (r *MemorySensorsRepo) ListSensors(_ context.Context) ([]models.IRSensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.IRSensor, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemorySensorsRepo) SaveSensor(_ context.Context, s models.IRSensor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	return nil
}

func (r *MemorySensorsRepo) DeleteSensor(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}
