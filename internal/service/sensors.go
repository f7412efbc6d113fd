package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wisefido-envlog/internal/broadcast"
	"wisefido-envlog/internal/buffer"
	"wisefido-envlog/internal/metrics"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/repository"

	"go.uber.org/zap"
)

// ErrSensorListFull sensor definitions are never evicted, so creation stops at capacity
var ErrSensorListFull = errors.New("sensor list is full")

// DeviceDirectory read side of the device registry
type DeviceDirectory interface {
	Get(id int64) (models.Device, bool)
	ListCollecting() []models.Device
}

// SensorService IR sensor definitions: buffer is authoritative, the store is
// written best-effort and every change is broadcast on ir_sensor_update.
type SensorService struct {
	sensors        *buffer.History[models.IRSensor]
	repo           repository.SensorsRepository
	devices        DeviceDirectory
	publisher      Publisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	persistTimeout time.Duration

	mu     sync.Mutex
	nextID int64
}

func NewSensorService(
	sensors *buffer.History[models.IRSensor],
	repo repository.SensorsRepository,
	devices DeviceDirectory,
	publisher Publisher,
	m *metrics.Metrics,
	persistTimeout time.Duration,
	logger *zap.Logger,
) *SensorService {
	if persistTimeout <= 0 {
		persistTimeout = 3 * time.Second
	}
	return &SensorService{
		sensors:        sensors,
		repo:           repo,
		devices:        devices,
		publisher:      publisher,
		metrics:        m,
		logger:         logger,
		persistTimeout: persistTimeout,
	}
}

// Load fills the buffer from the store and seeds the id counter. When the
// store holds more sensors than fit, the newest are kept and ErrSensorListFull
// is returned wrapped.
func (s *SensorService) Load(ctx context.Context) error {
	list, err := s.repo.ListSensors(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range list {
		s.sensors.Push(sn)
		if sn.ID > s.nextID {
			s.nextID = sn.ID
		}
	}
	s.logger.Info("IR sensors loaded", zap.Int("sensors", s.sensors.Len()))
	if capacity := s.sensors.Capacity(); len(list) > capacity {
		return fmt.Errorf("store holds %d IR sensors, only the newest %d fit in memory: %w",
			len(list), capacity, ErrSensorListFull)
	}
	return nil
}

// List newest first
func (s *SensorService) List() []models.IRSensor {
	return s.sensors.Slice(0)
}

func (s *SensorService) Get(id int64) (models.IRSensor, bool) {
	return s.sensors.Get(id)
}

// Create a sensor bound to deviceID; 0 picks the first collecting device
func (s *SensorService) Create(ctx context.Context, deviceID int64, name, data string) (models.IRSensor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.IRSensor{}, &ValidationError{Field: "name", Reason: "required"}
	}

	if deviceID == 0 {
		collecting := s.devices.ListCollecting()
		if len(collecting) == 0 {
			return models.IRSensor{}, &UnknownEntityError{Kind: "device", ID: deviceID}
		}
		deviceID = collecting[0].ID
	} else if _, ok := s.devices.Get(deviceID); !ok {
		return models.IRSensor{}, &UnknownEntityError{Kind: "device", ID: deviceID}
	}

	s.mu.Lock()
	if s.sensors.Len() >= s.sensors.Capacity() {
		s.mu.Unlock()
		return models.IRSensor{}, &ValidationError{Field: "sensor", Reason: ErrSensorListFull.Error()}
	}
	s.nextID++
	now := time.Now().UTC()
	sn := models.IRSensor{
		ID:        s.nextID,
		DeviceID:  deviceID,
		Name:      name,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sensors.Push(sn)
	s.mu.Unlock()

	s.save(ctx, sn)
	s.publish(models.SensorEvent{IRSensor: sn, Status: models.StatusUpdated})
	return sn, nil
}

// Rename updates the display name in place
func (s *SensorService) Rename(ctx context.Context, id int64, name string) (models.IRSensor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.IRSensor{}, &ValidationError{Field: "name", Reason: "required"}
	}
	sn, err := s.update(id, func(sn *models.IRSensor) { sn.Name = name })
	if err != nil {
		return models.IRSensor{}, err
	}
	s.save(ctx, sn)
	s.publish(models.SensorEvent{IRSensor: sn, Status: models.StatusUpdated})
	return sn, nil
}

// ApplyLearned stores a learned signal. The caller publishes the event.
func (s *SensorService) ApplyLearned(ctx context.Context, id int64, data string) (models.IRSensor, error) {
	sn, err := s.update(id, func(sn *models.IRSensor) { sn.Data = data })
	if err != nil {
		return models.IRSensor{}, err
	}
	s.save(ctx, sn)
	return sn, nil
}

func (s *SensorService) update(id int64, mutate func(*models.IRSensor)) (models.IRSensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.sensors.Get(id)
	if !ok {
		return models.IRSensor{}, &UnknownEntityError{Kind: "sensor", ID: id}
	}
	mutate(&sn)
	sn.UpdatedAt = time.Now().UTC()
	s.sensors.Replace(id, sn)
	return sn, nil
}

// Delete removes the sensor and announces it with deleted=true
func (s *SensorService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	sn, ok := s.sensors.Remove(id)
	s.mu.Unlock()
	if !ok {
		return &UnknownEntityError{Kind: "sensor", ID: id}
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	if err := s.repo.DeleteSensor(wctx, id); err != nil {
		s.metrics.PersistFailed("sensor")
		s.logger.Warn("Failed to delete sensor from store", zap.Int64("sensor_id", id), zap.Error(err))
	}

	s.publish(models.SensorEvent{IRSensor: sn, Status: models.StatusDeleted, Deleted: true})
	return nil
}

func (s *SensorService) save(ctx context.Context, sn models.IRSensor) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	if err := s.repo.SaveSensor(wctx, sn); err != nil {
		s.metrics.PersistFailed("sensor")
		s.logger.Warn("Failed to persist sensor",
			zap.Int64("sensor_id", sn.ID),
			zap.Error(&PersistenceError{Op: "sensor", Err: err}),
		)
	}
}

func (s *SensorService) publish(ev models.SensorEvent) {
	s.publisher.Publish(broadcast.TopicSensorUpdate, ev)
}
