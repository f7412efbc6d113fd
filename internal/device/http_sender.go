package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"wisefido-envlog/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrNoAddress device has no usable IP address
var ErrNoAddress = errors.New("device has no known ip address")

// HTTPSender POSTs commands to the device's own web server
// (http://{ip}:{port}/learn and /send). Each device gets its own circuit
// breaker so one dead emitter does not stall commands to the others.
type HTTPSender struct {
	client *resty.Client
	port   int
	fails  uint32
	open   time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewHTTPSender(port, breakerFails int, breakerOpen time.Duration, logger *zap.Logger) *HTTPSender {
	if port <= 0 {
		port = 80
	}
	if breakerFails <= 0 {
		breakerFails = 3
	}
	if breakerOpen <= 0 {
		breakerOpen = 30 * time.Second
	}
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPSender{
		client:   client,
		port:     port,
		fails:    uint32(breakerFails),
		open:     breakerOpen,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *HTTPSender) Send(ctx context.Context, d models.Device, cmd models.DeviceCommand) error {
	if d.IPAddress == "" || d.IPAddress == models.UnknownIP {
		return fmt.Errorf("%s: %w", d.MacAddress, ErrNoAddress)
	}
	url := s.commandURL(d.IPAddress, cmd.Command)

	_, err := s.breaker(d.MacAddress).Execute(func() (interface{}, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(cmd).
			Post(url)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("device responded %s", resp.Status())
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	return nil
}

func (s *HTTPSender) commandURL(ip, command string) string {
	path := "/send"
	if command == models.CommandLearn {
		path = "/learn"
	}
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(s.port)) + path
}

func (s *HTTPSender) breaker(mac string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[mac]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "device-" + mac,
		Timeout: s.open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Device circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	s.breakers[mac] = cb
	return cb
}
