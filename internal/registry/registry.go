// Package registry caches device identity in memory and creates devices on
// first contact.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"wisefido-envlog/internal/broadcast"
	"wisefido-envlog/internal/metrics"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/repository"

	"go.uber.org/zap"
)

// Publisher receives device_update events
type Publisher interface {
	Publish(topic string, payload any) bool
}

// Registry device cache keyed by MAC address.
//
// Devices that could not be persisted get a negative local id and are
// retried on the next contact.
type Registry struct {
	repo      repository.DevicesRepository
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	timeout   time.Duration

	mu       sync.RWMutex
	byMAC    map[string]models.Device
	byID     map[int64]string
	inflight map[string]*call
	localSeq int64
}

type call struct {
	done chan struct{}
	dev  models.Device
}

// NewRegistry timeout bounds each store call
func NewRegistry(repo repository.DevicesRepository, publisher Publisher, m *metrics.Metrics, timeout time.Duration, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Registry{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		timeout:   timeout,
		byMAC:     make(map[string]models.Device),
		byID:      make(map[int64]string),
		inflight:  make(map[string]*call),
	}
}

// Load fills the cache from the store
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.repo.ListDevices(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, d := range devices {
		r.putLocked(d)
	}
	r.mu.Unlock()

	r.logger.Info("Device registry loaded", zap.Int("devices", len(devices)))
	return nil
}

// Resolve returns the device for address, creating a placeholder on first
// contact. An empty address resolves to the placeholder device. Concurrent
// first contacts for one address share a single creation.
func (r *Registry) Resolve(ctx context.Context, address, ip string) (models.Device, error) {
	address = models.NormalizeMAC(address)
	if address == "" {
		address = models.PlaceholderAddress
	}

	r.mu.RLock()
	d, ok := r.byMAC[address]
	r.mu.RUnlock()
	if ok && d.ID > 0 {
		return d, nil
	}

	r.mu.Lock()
	if d, ok := r.byMAC[address]; ok && d.ID > 0 {
		r.mu.Unlock()
		return d, nil
	}
	if c, ok := r.inflight[address]; ok {
		r.mu.Unlock()
		select {
		case <-c.done:
			return c.dev, nil
		case <-ctx.Done():
			return models.Device{}, ctx.Err()
		}
	}
	prev, hadPrev := r.byMAC[address]
	c := &call{done: make(chan struct{})}
	r.inflight[address] = c
	r.mu.Unlock()

	base := models.NewPlaceholderDevice(address, ip, time.Now().UTC())
	if hadPrev {
		base = prev
	}
	c.dev = r.persist(ctx, base, hadPrev, r.repo.EnsureDevice)

	r.mu.Lock()
	delete(r.inflight, address)
	r.mu.Unlock()
	close(c.done)

	return c.dev, nil
}

// Register creates or updates an operator-described device
func (r *Registry) Register(ctx context.Context, d models.Device) models.Device {
	d.MacAddress = models.NormalizeMAC(d.MacAddress)
	now := time.Now().UTC()
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = now
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	r.mu.RLock()
	prev, hadPrev := r.byMAC[d.MacAddress]
	r.mu.RUnlock()
	if hadPrev {
		d.ID = prev.ID
		d.RegisteredAt = prev.RegisteredAt
		d.CreatedAt = prev.CreatedAt
	}
	return r.persist(ctx, d, hadPrev, r.repo.SaveDevice)
}

// persist runs save outside the cache lock, caches the outcome and announces it
func (r *Registry) persist(ctx context.Context, d models.Device, known bool,
	save func(context.Context, models.Device) (models.Device, error)) models.Device {

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	stored, err := save(sctx, d)
	cancel()

	if err != nil {
		r.metrics.PersistFailed("device")
		r.logger.Warn("Failed to persist device, keeping it in memory",
			zap.String("mac_address", d.MacAddress),
			zap.Error(err),
		)
		stored = d
		if stored.ID == 0 {
			r.mu.Lock()
			r.localSeq++
			stored.ID = -r.localSeq
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	if known {
		if old, ok := r.byMAC[d.MacAddress]; ok && old.ID != stored.ID {
			delete(r.byID, old.ID)
		}
	}
	r.putLocked(stored)
	r.mu.Unlock()

	if !known {
		r.metrics.DeviceRegistered()
		r.logger.Info("Device registered",
			zap.Int64("device_id", stored.ID),
			zap.String("mac_address", stored.MacAddress),
			zap.String("ip_address", stored.IPAddress),
		)
	}
	if !known || err == nil {
		r.publisher.Publish(broadcast.TopicDeviceUpdate, stored)
	}
	return stored
}

func (r *Registry) putLocked(d models.Device) {
	r.byMAC[d.MacAddress] = d
	r.byID[d.ID] = d.MacAddress
}

// Get device by id
func (r *Registry) Get(id int64) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mac, ok := r.byID[id]
	if !ok {
		return models.Device{}, false
	}
	d, ok := r.byMAC[mac]
	return d, ok
}

// List all cached devices ordered by id
func (r *Registry) List() []models.Device {
	return r.filter(func(models.Device) bool { return true })
}

// ListCollecting devices flagged for metric collection
func (r *Registry) ListCollecting() []models.Device {
	return r.filter(func(d models.Device) bool { return d.CollectMetrics })
}

func (r *Registry) filter(keep func(models.Device) bool) []models.Device {
	r.mu.RLock()
	out := make([]models.Device, 0, len(r.byMAC))
	for _, d := range r.byMAC {
		if keep(d) {
			out = append(out, d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
