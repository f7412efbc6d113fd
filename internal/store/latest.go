package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-envlog/internal/models"
)

const (
	latestKey       = "envlog:latest"
	latestDeviceKey = "envlog:latest:device:%d"
)

// LatestCache hot copy of the newest reading, overall and per device, so
// other services can read it without touching PostgreSQL.
type LatestCache struct {
	kv  KV
	ttl time.Duration
}

// NewLatestCache ttl <= 0 means keys never expire
func NewLatestCache(kv KV, ttl time.Duration) *LatestCache {
	if ttl < 0 {
		ttl = 0
	}
	return &LatestCache{kv: kv, ttl: ttl}
}

// MirrorReading writes r under the global and the per-device key
func (c *LatestCache) MirrorReading(ctx context.Context, r models.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	pairs := map[string]string{latestKey: string(b)}
	if r.DeviceID > 0 {
		pairs[fmt.Sprintf(latestDeviceKey, r.DeviceID)] = string(b)
	}
	if err := c.kv.SetMany(ctx, pairs, c.ttl); err != nil {
		return fmt.Errorf("cache latest reading %d: %w", r.ID, err)
	}
	return nil
}

// DeviceLatest returns ErrMiss when the device has no cached reading
func (c *LatestCache) DeviceLatest(ctx context.Context, deviceID int64) (models.Reading, error) {
	raw, err := c.kv.Get(ctx, fmt.Sprintf(latestDeviceKey, deviceID))
	if err != nil {
		return models.Reading{}, err
	}
	var r models.Reading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return models.Reading{}, fmt.Errorf("decode cached reading: %w", err)
	}
	return r, nil
}
