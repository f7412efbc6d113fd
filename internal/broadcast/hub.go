// Package broadcast fans distribution events out to connected viewers.
//
// Publishers enqueue into an ordered inbox and never wait on subscribers. A
// single dispatcher goroutine (Run) delivers each event to every subscriber of
// its topic, so one subscriber always sees events in publish order. A
// subscriber whose queue stays full for longer than SendTimeout is dropped.
package broadcast

import (
	"context"
	"sync"
	"time"

	"wisefido-envlog/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics
const (
	TopicDeviceUpdate  = "device_update"
	TopicReadingUpdate = "env_log_update"
	TopicSensorUpdate  = "ir_sensor_update"
)

// Event one distribution event
type Event struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tunes delivery
type Options struct {
	SendTimeout     time.Duration
	SubscriberQueue int
	InboxSize       int
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		SendTimeout:     250 * time.Millisecond,
		SubscriberQueue: 64,
		InboxSize:       1024,
	}
}

// Hub subscriber registry plus dispatcher
type Hub struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[string]*Subscriber

	inbox     chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub; call Run to start delivering
func NewHub(opts Options, logger *zap.Logger, m *metrics.Metrics) *Hub {
	def := DefaultOptions()
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	if opts.SubscriberQueue <= 0 {
		opts.SubscriberQueue = def.SubscriberQueue
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = def.InboxSize
	}
	return &Hub{
		opts:    opts,
		logger:  logger,
		metrics: m,
		subs:    make(map[string]*Subscriber),
		inbox:   make(chan Event, opts.InboxSize),
		closed:  make(chan struct{}),
	}
}

// Subscribe registers a new handle for topics; no topics means every topic.
// The caller must Unsubscribe it on teardown. After Close the handle comes
// back already closed.
func (h *Hub) Subscribe(topics ...string) *Subscriber {
	s := newSubscriber(uuid.NewString(), topics, h.opts.SubscriberQueue)

	h.mu.Lock()
	select {
	case <-h.closed:
		h.mu.Unlock()
		s.close()
		return s
	default:
	}
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.Subscribers(n)
	h.logger.Debug("Subscriber registered",
		zap.String("subscriber_id", s.id),
		zap.Strings("topics", topics),
		zap.Int("subscribers", n),
	)
	return s
}

// Unsubscribe removes s. Safe to call more than once and concurrently with
// delivery; once it returns no further event reaches s.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	n := h.remove(s)
	s.close()
	h.metrics.Subscribers(n)
	h.logger.Debug("Subscriber removed", zap.String("subscriber_id", s.id))
}

// Publish enqueues an event for delivery. It waits at most SendTimeout for
// inbox space and reports whether the event was accepted.
func (h *Hub) Publish(topic string, payload any) bool {
	ev := Event{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()}

	select {
	case <-h.closed:
		return false
	default:
	}

	select {
	case h.inbox <- ev:
		h.metrics.EventPublished(topic)
		return true
	default:
	}

	timer := time.NewTimer(h.opts.SendTimeout)
	defer timer.Stop()
	select {
	case h.inbox <- ev:
		h.metrics.EventPublished(topic)
		return true
	case <-h.closed:
		return false
	case <-timer.C:
		h.metrics.EventDropped()
		h.logger.Warn("Broadcast inbox full, event dropped", zap.String("topic", topic))
		return false
	}
}

// Run delivers queued events until ctx is done or Close is called
func (h *Hub) Run(ctx context.Context) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closed:
			return
		case ev := <-h.inbox:
			h.dispatch(ev)
		}
	}
}

// Close stops the hub and releases every subscriber
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)

		h.mu.Lock()
		subs := make([]*Subscriber, 0, len(h.subs))
		for _, s := range h.subs {
			subs = append(subs, s)
		}
		h.subs = make(map[string]*Subscriber)
		h.mu.Unlock()

		for _, s := range subs {
			s.close()
		}
		h.metrics.Subscribers(0)
	})
}

// Count number of registered subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) dispatch(ev Event) {
	for _, s := range h.snapshot(ev.Topic) {
		if !s.deliver(ev, h.opts.SendTimeout) {
			h.drop(s)
		}
	}
}

// snapshot copies the interested subscribers so delivery runs without h.mu
func (h *Hub) snapshot(topic string) []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		if s.Wants(topic) {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) drop(s *Subscriber) {
	n := h.remove(s)
	s.close()
	h.metrics.SubscriberDropped()
	h.metrics.Subscribers(n)
	h.logger.Warn("Subscriber dropped: delivery queue full",
		zap.String("subscriber_id", s.id),
		zap.Duration("send_timeout", h.opts.SendTimeout),
	)
}

func (h *Hub) remove(s *Subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.id)
	return len(h.subs)
}
