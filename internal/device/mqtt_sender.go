// Package device delivers IR commands to field devices.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"wisefido-envlog/internal/models"

	"go.uber.org/zap"
)

// Publisher subset of the common MQTT client
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSender publishes commands to ir/{mac}/command. The device answers on
// the result topic, which consumer.MQTTConsumer routes to RelayService.HandleResult.
type MQTTSender struct {
	client        Publisher
	topicTemplate string
	qos           byte
	logger        *zap.Logger
}

// NewMQTTSender topicTemplate must contain {mac}
func NewMQTTSender(client Publisher, topicTemplate string, qos byte, logger *zap.Logger) *MQTTSender {
	return &MQTTSender{
		client:        client,
		topicTemplate: topicTemplate,
		qos:           qos,
		logger:        logger,
	}
}

func (s *MQTTSender) Send(ctx context.Context, d models.Device, cmd models.DeviceCommand) error {
	if d.MacAddress == "" {
		return fmt.Errorf("device %d has no mac address", d.ID)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	topic := CommandTopic(s.topicTemplate, d.MacAddress)
	if err := s.client.Publish(ctx, topic, s.qos, false, payload); err != nil {
		return err
	}
	s.logger.Debug("Command published",
		zap.String("topic", topic),
		zap.String("command", cmd.Command),
		zap.String("ticket", cmd.Ticket),
	)
	return nil
}

// CommandTopic fills {mac} in template
func CommandTopic(template, mac string) string {
	return strings.ReplaceAll(template, "{mac}", mac)
}
