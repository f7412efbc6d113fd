package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqttcommon "wisefido-envlog/internal/common/mqtt"
	"wisefido-envlog/internal/models"

	"go.uber.org/zap"
)

// Subscriber subset of the common MQTT client
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// ReadingIngester ingestion entry point shared with POST /env-logs
type ReadingIngester interface {
	IngestRaw(ctx context.Context, body []byte, address string) (models.Reading, error)
}

// ResultHandler relay completion entry point shared with POST /esp/result
type ResultHandler interface {
	HandleResult(ctx context.Context, res models.CommandResult) error
}

// MQTTConsumer feeds device readings and command results from the broker
// into the services. Topic layout: env/{mac}/reading, ir/{mac}/result.
type MQTTConsumer struct {
	client       Subscriber
	ingester     ReadingIngester
	results      ResultHandler
	readingTopic string
	resultTopic  string
	qos          byte
	logger       *zap.Logger

	ctx context.Context
}

func NewMQTTConsumer(
	client Subscriber,
	ingester ReadingIngester,
	results ResultHandler,
	readingTopic, resultTopic string,
	qos byte,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		client:       client,
		ingester:     ingester,
		results:      results,
		readingTopic: readingTopic,
		resultTopic:  resultTopic,
		qos:          qos,
		logger:       logger,
		ctx:          context.Background(),
	}
}

// Start subscribes and blocks until ctx is done
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.client.Subscribe(c.readingTopic, c.qos, c.handleReading); err != nil {
		return fmt.Errorf("failed to subscribe to reading topic: %w", err)
	}
	if c.resultTopic != "" && c.results != nil {
		if err := c.client.Subscribe(c.resultTopic, c.qos, c.handleResult); err != nil {
			return fmt.Errorf("failed to subscribe to result topic: %w", err)
		}
	}

	c.logger.Info("MQTT consumer started",
		zap.String("reading_topic", c.readingTopic),
		zap.String("result_topic", c.resultTopic),
	)

	<-ctx.Done()
	return nil
}

// Stop unsubscribes
func (c *MQTTConsumer) Stop(_ context.Context) error {
	topics := []string{c.readingTopic}
	if c.resultTopic != "" && c.results != nil {
		topics = append(topics, c.resultTopic)
	}
	if err := c.client.Unsubscribe(topics...); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

func (c *MQTTConsumer) handleReading(topic string, payload []byte) error {
	mac, err := topicAddress(topic)
	if err != nil {
		return err
	}
	r, err := c.ingester.IngestRaw(c.ctx, payload, mac)
	if err != nil {
		return fmt.Errorf("reading from %s rejected: %w", mac, err)
	}
	c.logger.Debug("MQTT reading ingested",
		zap.String("mac_address", mac),
		zap.Int64("seq", r.ID),
	)
	return nil
}

func (c *MQTTConsumer) handleResult(topic string, payload []byte) error {
	var res models.CommandResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("failed to unmarshal command result: %w", err)
	}
	return c.results.HandleResult(c.ctx, res)
}

// topicAddress extracts {mac} from "<prefix>/{mac}/<suffix>"
func topicAddress(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[1], nil
}
