package service

import (
	"context"
	"strings"
	"time"

	"wisefido-envlog/internal/metrics"
	"wisefido-envlog/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandSender device transport (MQTT or HTTP)
type CommandSender interface {
	Send(ctx context.Context, device models.Device, cmd models.DeviceCommand) error
}

// RelayService sends learn/execute commands to IR devices and turns their
// asynchronous results into sensor events. Results are joined to the sensor
// by id only; tickets are informational.
type RelayService struct {
	sensors   *SensorService
	devices   DeviceDirectory
	sender    CommandSender
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	timeout   time.Duration
}

func NewRelayService(
	sensors *SensorService,
	devices DeviceDirectory,
	sender CommandSender,
	publisher Publisher,
	m *metrics.Metrics,
	timeout time.Duration,
	logger *zap.Logger,
) *RelayService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RelayService{
		sensors:   sensors,
		devices:   devices,
		sender:    sender,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		timeout:   timeout,
	}
}

// Learn asks the sensor's device to capture a new IR signal
func (s *RelayService) Learn(ctx context.Context, sensorID int64) (models.CommandTicket, error) {
	return s.send(ctx, sensorID, models.CommandLearn)
}

// Execute asks the sensor's device to replay the stored signal
func (s *RelayService) Execute(ctx context.Context, sensorID int64) (models.CommandTicket, error) {
	return s.send(ctx, sensorID, models.CommandExecute)
}

func (s *RelayService) send(ctx context.Context, sensorID int64, command string) (models.CommandTicket, error) {
	sensor, ok := s.sensors.Get(sensorID)
	if !ok {
		return models.CommandTicket{}, &UnknownEntityError{Kind: "sensor", ID: sensorID}
	}
	device, ok := s.devices.Get(sensor.DeviceID)
	if !ok {
		return models.CommandTicket{}, &UnknownEntityError{Kind: "device", ID: sensor.DeviceID}
	}

	cmd := models.DeviceCommand{
		Command:  command,
		SensorID: sensor.ID,
		Ticket:   uuid.NewString(),
	}
	if command == models.CommandExecute {
		cmd.Data = sensor.Data
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.sender.Send(cctx, device, cmd); err != nil {
		s.metrics.CommandSent(command, "error")
		s.logger.Warn("Failed to send device command",
			zap.String("command", command),
			zap.Int64("sensor_id", sensor.ID),
			zap.String("mac_address", device.MacAddress),
			zap.Error(err),
		)
		return models.CommandTicket{}, &TransportError{Target: device.MacAddress, Err: err}
	}
	s.metrics.CommandSent(command, "ok")

	s.logger.Info("Device command sent",
		zap.String("command", command),
		zap.Int64("sensor_id", sensor.ID),
		zap.String("ticket", cmd.Ticket),
	)
	return models.CommandTicket{
		Ticket:   cmd.Ticket,
		SensorID: sensor.ID,
		DeviceID: device.ID,
		Command:  command,
		SentAt:   time.Now().UTC(),
	}, nil
}

// HandleResult applies a device-reported outcome. Unknown sensors are
// reported to the caller and produce no event.
func (s *RelayService) HandleResult(ctx context.Context, res models.CommandResult) error {
	sensor, ok := s.sensors.Get(res.SensorID)
	if !ok {
		s.metrics.CommandResult(res.Command, "unknown_sensor")
		s.logger.Warn("Command result for unknown sensor",
			zap.Int64("sensor_id", res.SensorID),
			zap.String("command", res.Command),
			zap.String("ticket", res.Ticket),
		)
		return &UnknownEntityError{Kind: "sensor", ID: res.SensorID}
	}

	if !res.Success {
		s.metrics.CommandResult(res.Command, models.StatusError)
		s.logger.Warn("Device reported command failure",
			zap.Int64("sensor_id", res.SensorID),
			zap.String("command", res.Command),
			zap.String("error", res.Error),
		)
		s.publish(models.SensorEvent{IRSensor: sensor, Command: res.Command, Status: models.StatusError, Error: res.Error})
		return nil
	}

	switch res.Command {
	case models.CommandLearn:
		if strings.TrimSpace(res.Data) == "" {
			// keep the previously learned signal
			s.metrics.CommandResult(res.Command, models.StatusError)
			s.logger.Warn("Learn result carried no signal data",
				zap.Int64("sensor_id", res.SensorID),
				zap.String("ticket", res.Ticket),
			)
			s.publish(models.SensorEvent{IRSensor: sensor, Command: res.Command, Status: models.StatusError, Error: errNoLearnedData})
			return &ValidationError{Field: "data", Reason: "required"}
		}
		updated, err := s.sensors.ApplyLearned(ctx, sensor.ID, res.Data)
		if err != nil {
			return err
		}
		s.metrics.CommandResult(res.Command, models.StatusLearned)
		s.publish(models.SensorEvent{IRSensor: updated, Command: res.Command, Status: models.StatusLearned})
	case models.CommandExecute:
		s.metrics.CommandResult(res.Command, models.StatusExecuted)
		s.publish(models.SensorEvent{IRSensor: sensor, Command: res.Command, Status: models.StatusExecuted})
	default:
		return &ValidationError{Field: "command", Reason: "must be learn or execute"}
	}
	return nil
}

const errNoLearnedData = "device reported success without learned data"

func (s *RelayService) publish(ev models.SensorEvent) {
	s.sensors.publish(ev)
}
