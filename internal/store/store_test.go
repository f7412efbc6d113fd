package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-envlog/internal/models"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (m *memKV) SetMany(_ context.Context, pairs map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for k, v := range pairs {
		m.data[k] = v
		m.ttl[k] = ttl
	}
	return nil
}

func TestLatestCache_MirrorAndRead(t *testing.T) {
	kv := newMemKV()
	c := NewLatestCache(kv, time.Hour)
	ctx := context.Background()

	r := models.Reading{ID: 3, DeviceID: 7, Humidity: 55.5, CreatedAt: time.Now().UTC()}
	require.NoError(t, c.MirrorReading(ctx, r))

	got, err := c.DeviceLatest(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, 55.5, got.Humidity)
	assert.Contains(t, kv.data, latestKey)
	assert.Equal(t, time.Hour, kv.ttl[latestKey])

	_, err = c.DeviceLatest(ctx, 8)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLatestCache_UnattributedReadingSkipsDeviceKey(t *testing.T) {
	kv := newMemKV()
	c := NewLatestCache(kv, -time.Second)

	require.NoError(t, c.MirrorReading(context.Background(), models.Reading{ID: 1, DeviceID: -2}))
	assert.Len(t, kv.data, 1)
	assert.Equal(t, time.Duration(0), kv.ttl[latestKey])
}

func TestLatestCache_SetError(t *testing.T) {
	kv := newMemKV()
	kv.err = errors.New("redis down")
	c := NewLatestCache(kv, 0)

	err := c.MirrorReading(context.Background(), models.Reading{DeviceID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

type capturePoints struct {
	points []*write.Point
}

func (c *capturePoints) WritePoint(_ context.Context, p ...*write.Point) error {
	c.points = append(c.points, p...)
	return nil
}

func TestInfluxMirror_WritesPoint(t *testing.T) {
	w := &capturePoints{}
	m := NewInfluxMirror(w)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.MirrorReading(context.Background(), models.Reading{
		DeviceID: 4, TemperatureSht: 20.5, TemperatureQmp: 20.9, Humidity: 45, Pressure: 1009, CreatedAt: ts,
	}))
	require.Len(t, w.points, 1)

	p := w.points[0]
	assert.Equal(t, influxMeasurement, p.Name())
	assert.Equal(t, ts, p.Time())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "device_id", p.TagList()[0].Key)
	assert.Equal(t, "4", p.TagList()[0].Value)
	assert.Len(t, p.FieldList(), 4)
}
