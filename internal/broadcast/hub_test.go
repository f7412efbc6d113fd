package broadcast

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	h := NewHub(opts, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func recv(t *testing.T, s *Subscriber) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "subscriber channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	h := newTestHub(t, Options{SubscriberQueue: 16})
	sub := h.Subscribe(TopicReadingUpdate)
	defer h.Unsubscribe(sub)

	for i := 1; i <= 5; i++ {
		require.True(t, h.Publish(TopicReadingUpdate, i))
	}
	for i := 1; i <= 5; i++ {
		ev := recv(t, sub)
		assert.Equal(t, TopicReadingUpdate, ev.Topic)
		assert.Equal(t, i, ev.Payload)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestHub_TopicFiltering(t *testing.T) {
	h := newTestHub(t, Options{})
	devices := h.Subscribe(TopicDeviceUpdate)
	all := h.Subscribe()
	defer h.Unsubscribe(devices)
	defer h.Unsubscribe(all)

	h.Publish(TopicReadingUpdate, "reading")
	h.Publish(TopicDeviceUpdate, "device")

	assert.Equal(t, "reading", recv(t, all).Payload)
	assert.Equal(t, "device", recv(t, all).Payload)
	assert.Equal(t, "device", recv(t, devices).Payload)

	select {
	case ev := <-devices.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := newTestHub(t, Options{})
	sub := h.Subscribe()
	require.Equal(t, 1, h.Count())

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Count())

	h.Publish(TopicDeviceUpdate, "late")
	_, ok := <-sub.Events()
	assert.False(t, ok)

	select {
	case <-sub.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	h := newTestHub(t, Options{SendTimeout: 50 * time.Millisecond, SubscriberQueue: 1})
	slow := h.Subscribe()
	fast := h.Subscribe()
	defer h.Unsubscribe(fast)

	for i := 0; i < 3; i++ {
		require.True(t, h.Publish(TopicSensorUpdate, i))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, recv(t, fast).Payload)
	}

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-slow.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	h := newTestHub(t, Options{SendTimeout: 10 * time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := h.Subscribe()
			time.Sleep(time.Millisecond)
			h.Unsubscribe(s)
		}()
		go func(i int) {
			defer wg.Done()
			h.Publish(TopicDeviceUpdate, i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count())
}

func TestHub_PublishAfterClose(t *testing.T) {
	h := NewHub(Options{}, zap.NewNop(), nil)
	sub := h.Subscribe()
	h.Close()

	assert.False(t, h.Publish(TopicDeviceUpdate, "x"))
	assert.Equal(t, 0, h.Count())
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestHub_SubscribeAfterClose(t *testing.T) {
	h := NewHub(Options{}, zap.NewNop(), nil)
	h.Close()

	sub := h.Subscribe(TopicReadingUpdate)
	assert.Equal(t, 0, h.Count())

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscriber should be released once the hub is closed")
	}
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.NotPanics(t, func() { h.Unsubscribe(sub) })
}

func TestParseTopics(t *testing.T) {
	assert.Nil(t, ParseTopics(""))
	assert.Equal(t, []string{"device_update", "env_log_update"}, ParseTopics(" device_update, ,env_log_update"))
}

func TestWSHandler_StreamsEvents(t *testing.T) {
	h := newTestHub(t, Options{})
	srv := httptest.NewServer(NewWSHandler(h, time.Second, nil, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topics=" + TopicReadingUpdate
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)

	h.Publish(TopicDeviceUpdate, map[string]any{"id": 1})
	h.Publish(TopicReadingUpdate, map[string]any{"id": 2})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Topic   string         `json:"topic"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, TopicReadingUpdate, ev.Topic)
	assert.Equal(t, float64(2), ev.Payload["id"])

	conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173/"})

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}
