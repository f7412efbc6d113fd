package broadcast

import (
	"sync"
	"time"
)

// Subscriber handle of one connected viewer
type Subscriber struct {
	id          string
	topics      map[string]struct{} // empty = all topics
	connectedAt time.Time

	ch   chan Event
	done chan struct{}

	mu     sync.Mutex // serializes deliver against close
	closed bool
	once   sync.Once
}

func newSubscriber(id string, topics []string, queue int) *Subscriber {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return &Subscriber{
		id:          id,
		topics:      set,
		connectedAt: time.Now(),
		ch:          make(chan Event, queue),
		done:        make(chan struct{}),
	}
}

// ID subscriber id
func (s *Subscriber) ID() string { return s.id }

// Events delivery channel; closed when the subscriber is removed
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Done closed as soon as removal starts
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Wants reports whether topic is in the interest set
func (s *Subscriber) Wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// deliver returns false only when the queue stayed full for timeout
func (s *Subscriber) deliver(ev Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	select {
	case s.ch <- ev:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

// close signals done first so a deliver blocked on a full queue lets go of mu,
// then discards anything still queued and closes the channel.
func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		for {
			select {
			case <-s.ch:
				continue
			default:
			}
			break
		}
		close(s.ch)
	})
}
