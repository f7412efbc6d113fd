package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"wisefido-envlog/internal/broadcast"
	"wisefido-envlog/internal/buffer"
	"wisefido-envlog/internal/metrics"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/repository"
	"wisefido-envlog/internal/store"

	"go.uber.org/zap"
)

// Publisher fan-out sink for distribution events
type Publisher interface {
	Publish(topic string, payload any) bool
}

// DeviceResolver maps a source address to a device, creating it on first contact
type DeviceResolver interface {
	Resolve(ctx context.Context, address, ip string) (models.Device, error)
}

// ReadingMirror secondary best-effort copy of each reading (Redis, InfluxDB)
type ReadingMirror interface {
	MirrorReading(ctx context.Context, r models.Reading) error
}

// DeviceLatestLookup hot-path lookup of a device's newest reading
type DeviceLatestLookup interface {
	DeviceLatest(ctx context.Context, deviceID int64) (models.Reading, error)
}

type namedMirror struct {
	name   string
	mirror ReadingMirror
}

// IngestService validate -> buffer -> persist -> broadcast
type IngestService struct {
	readings       *buffer.History[models.Reading]
	repo           repository.ReadingsRepository
	devices        DeviceResolver
	publisher      Publisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	persistTimeout time.Duration

	mirrors []namedMirror
	latest  DeviceLatestLookup

	// mu keeps sequence assignment and buffer insertion in the same order
	mu  sync.Mutex
	seq int64
}

func NewIngestService(
	readings *buffer.History[models.Reading],
	repo repository.ReadingsRepository,
	devices DeviceResolver,
	publisher Publisher,
	m *metrics.Metrics,
	persistTimeout time.Duration,
	logger *zap.Logger,
) *IngestService {
	if persistTimeout <= 0 {
		persistTimeout = 3 * time.Second
	}
	return &IngestService{
		readings:       readings,
		repo:           repo,
		devices:        devices,
		publisher:      publisher,
		metrics:        m,
		logger:         logger,
		persistTimeout: persistTimeout,
	}
}

// AddMirror registers a secondary store written after the primary one
func (s *IngestService) AddMirror(name string, m ReadingMirror) {
	s.mirrors = append(s.mirrors, namedMirror{name: name, mirror: m})
}

// SetLatestLookup enables the cache path of LatestForDevice
func (s *IngestService) SetLatestLookup(l DeviceLatestLookup) {
	s.latest = l
}

var readingFields = []string{"temperatureSht", "temperatureQmp", "humidity", "pressure"}

// DecodeReading parses and validates a raw reading payload. Each of the four
// measurement fields must be present and a finite JSON number.
func DecodeReading(body []byte) (models.ReadingInput, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return models.ReadingInput{}, &ValidationError{Reason: "body must be a JSON object"}
	}

	values := make([]float64, len(readingFields))
	for i, field := range readingFields {
		v, ok := raw[field]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return models.ReadingInput{}, &ValidationError{Field: field, Reason: "required"}
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return models.ReadingInput{}, &ValidationError{Field: field, Reason: "must be a finite number"}
		}
		values[i] = f
	}

	in := models.ReadingInput{
		TemperatureSht: values[0],
		TemperatureQmp: values[1],
		Humidity:       values[2],
		Pressure:       values[3],
	}
	// optional identity; non-string values are ignored
	if v, ok := raw["macAddress"]; ok {
		_ = json.Unmarshal(v, &in.MacAddress)
	}
	if v, ok := raw["ipAddress"]; ok {
		_ = json.Unmarshal(v, &in.IPAddress)
	}
	return in, nil
}

// IngestRaw decodes body and ingests it. address, when set, is used if the
// payload carries no macAddress (MQTT topic identity).
func (s *IngestService) IngestRaw(ctx context.Context, body []byte, address string) (models.Reading, error) {
	in, err := DecodeReading(body)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.metrics.ReadingRejected(ve.Field)
		}
		return models.Reading{}, err
	}
	if in.MacAddress == "" {
		in.MacAddress = address
	}
	return s.Ingest(ctx, in)
}

// Ingest accepts a validated reading. Persistence failures are logged and
// counted; the reading is still buffered and broadcast.
func (s *IngestService) Ingest(ctx context.Context, in models.ReadingInput) (models.Reading, error) {
	dev, err := s.devices.Resolve(ctx, in.MacAddress, in.IPAddress)
	if err != nil {
		return models.Reading{}, err
	}

	s.mu.Lock()
	s.seq++
	now := time.Now().UTC()
	r := models.Reading{
		ID:             s.seq,
		DeviceID:       dev.ID,
		TemperatureSht: in.TemperatureSht,
		TemperatureQmp: in.TemperatureQmp,
		Humidity:       in.Humidity,
		Pressure:       in.Pressure,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.readings.Push(r)
	n := s.readings.Len()
	s.mu.Unlock()

	s.metrics.ReadingIngested(n)
	s.persist(context.WithoutCancel(ctx), r)
	s.publisher.Publish(broadcast.TopicReadingUpdate, r)

	s.logger.Debug("Reading ingested",
		zap.Int64("seq", r.ID),
		zap.Int64("device_id", r.DeviceID),
	)
	return r, nil
}

func (s *IngestService) persist(ctx context.Context, r models.Reading) {
	if err := s.write(ctx, "reading", func(c context.Context) error { return s.repo.SaveReading(c, r) }); err != nil {
		s.logger.Warn("Failed to persist reading", zap.Int64("seq", r.ID), zap.Error(err))
	}
	for _, m := range s.mirrors {
		if err := s.write(ctx, m.name, func(c context.Context) error { return m.mirror.MirrorReading(c, r) }); err != nil {
			s.logger.Warn("Failed to mirror reading", zap.String("mirror", m.name), zap.Int64("seq", r.ID), zap.Error(err))
		}
	}
}

func (s *IngestService) write(ctx context.Context, op string, fn func(context.Context) error) error {
	wctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	if err := fn(wctx); err != nil {
		s.metrics.PersistFailed(op)
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

// Recent up to limit readings, newest first
func (s *IngestService) Recent(limit int) []models.Reading {
	return s.readings.Slice(limit)
}

// Latest most recently accepted reading
func (s *IngestService) Latest() (models.Reading, bool) {
	return s.readings.Latest()
}

// LatestForDevice newest reading of one device: cache first, then the buffer
func (s *IngestService) LatestForDevice(ctx context.Context, deviceID int64) (models.Reading, error) {
	if s.latest != nil {
		r, err := s.latest.DeviceLatest(ctx, deviceID)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("Latest cache lookup failed", zap.Int64("device_id", deviceID), zap.Error(err))
		}
	}
	for _, r := range s.readings.Slice(0) {
		if r.DeviceID == deviceID {
			return r, nil
		}
	}
	return models.Reading{}, &UnknownEntityError{Kind: "reading for device", ID: deviceID}
}

// Warm loads the newest stored readings into the buffer, oldest first, with
// fresh sequence ids. Nothing is broadcast.
func (s *IngestService) Warm(ctx context.Context) (int, error) {
	rows, err := s.repo.ListRecentReadings(ctx, s.readings.Capacity())
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(rows) - 1; i >= 0; i-- {
		s.seq++
		r := rows[i]
		r.ID = s.seq
		s.readings.Push(r)
	}
	s.logger.Info("Reading buffer warmed", zap.Int("readings", len(rows)))
	return len(rows), nil
}
