package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-envlog/internal/buffer"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/registry"
	"wisefido-envlog/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(topic string, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, payload: payload})
	return true
}

func (p *fakePublisher) on(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e.payload)
		}
	}
	return out
}

type failingReadingsRepo struct{}

func (failingReadingsRepo) SaveReading(context.Context, models.Reading) error {
	return errors.New("connection refused")
}

func (failingReadingsRepo) ListRecentReadings(context.Context, int) ([]models.Reading, error) {
	return nil, errors.New("connection refused")
}

type captureMirror struct {
	mu   sync.Mutex
	seen []models.Reading
}

func (m *captureMirror) MirrorReading(_ context.Context, r models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, r)
	return nil
}

type fixture struct {
	pub      *fakePublisher
	registry *registry.Registry
	readings *buffer.History[models.Reading]
	sensors  *buffer.History[models.IRSensor]
	ingest   *IngestService
	sensorSv *SensorService
}

func newFixture(t *testing.T, readingsRepo repository.ReadingsRepository) *fixture {
	t.Helper()
	if readingsRepo == nil {
		readingsRepo = repository.NewMemoryReadingsRepo(0)
	}
	logger := zap.NewNop()
	pub := &fakePublisher{}

	readings, err := buffer.NewHistory[models.Reading](10)
	require.NoError(t, err)
	sensors, err := buffer.NewHistory[models.IRSensor](10)
	require.NoError(t, err)

	reg := registry.NewRegistry(repository.NewMemoryDevicesRepo(), pub, nil, time.Second, logger)
	return &fixture{
		pub:      pub,
		registry: reg,
		readings: readings,
		sensors:  sensors,
		ingest:   NewIngestService(readings, readingsRepo, reg, pub, nil, time.Second, logger),
		sensorSv: NewSensorService(sensors, repository.NewMemorySensorsRepo(), reg, pub, nil, time.Second, logger),
	}
}

const validBody = `{"temperatureSht":21.5,"temperatureQmp":21.9,"humidity":40,"pressure":1013.2}`
