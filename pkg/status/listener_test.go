package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/medirover/controller/pkg/config"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/rosbridge"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]rosbridge.Handler
	schemas  map[string]string
	unsubs   []string
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[string]rosbridge.Handler),
		schemas:  make(map[string]string),
	}
}

func (f *fakeSubscriber) Subscribe(channel, schema string, handler rosbridge.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.handlers[channel] = handler
	f.schemas[channel] = schema
	return nil
}

func (f *fakeSubscriber) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
	f.unsubs = append(f.unsubs, channel)
	return nil
}

func (f *fakeSubscriber) deliver(t *testing.T, channel, body string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[channel]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("No handler subscribed on %s", channel)
	}
	h(rosbridge.Message{Channel: channel, Raw: json.RawMessage(body)})
}

func (f *fakeSubscriber) subscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[channel]
	return ok
}

func testLogger() customlog.Logger {
	return customlog.NewWriterLogger("error", &bytes.Buffer{})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestStartSubscribesInboundChannels(t *testing.T) {
	sub := newFakeSubscriber()
	l := NewListener(sub, config.DefaultChannelConfig(), Options{Workers: 1, QueueSize: 8}, testLogger())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	for _, ch := range []string{"/transport_status", "/cruise_status", "/take_tp_req", "/tp_result"} {
		if !sub.subscribed(ch) {
			t.Errorf("Expected subscription on %s", ch)
		}
	}
	if sub.schemas["/tp_result"] != "std_msgs/Float32" {
		t.Errorf("Expected Float32 schema for /tp_result, got %s", sub.schemas["/tp_result"])
	}
}

func TestLatestAndObserver(t *testing.T) {
	sub := newFakeSubscriber()
	l := NewListener(sub, config.DefaultChannelConfig(), Options{Workers: 2, QueueSize: 8}, testLogger())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	var mu sync.Mutex
	var seen []Status
	cancel := l.Observe(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	sub.deliver(t, "/tp_result", `{"data": 37.2}`)
	waitFor(t, "observer", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	s, ok := l.Latest("/tp_result")
	if !ok {
		t.Fatalf("Expected latest status for /tp_result")
	}
	if v, _ := s.Value.(float64); v != 37.2 {
		t.Errorf("Expected 37.2, got %#v", s.Value)
	}
	if s.Sequence != 1 || s.MessageType != "std_msgs/Float32" {
		t.Errorf("Unexpected status %+v", s)
	}

	cancel()
	sub.deliver(t, "/tp_result", `{"data": 37.5}`)
	waitFor(t, "second status", func() bool {
		s, _ := l.Latest("/tp_result")
		return s.Sequence == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Errorf("Expected cancelled observer not to be called, got %d calls", len(seen))
	}
}

func TestObserverSeesEveryMessageInOrder(t *testing.T) {
	sub := newFakeSubscriber()
	l := NewListener(sub, config.DefaultChannelConfig(), Options{Workers: 2, QueueSize: 1}, testLogger())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const n = 100
	var mu sync.Mutex
	var got []string
	l.Observe(func(s Status) {
		if s.Channel != "/transport_status" {
			return
		}
		mu.Lock()
		got = append(got, s.Value.(string))
		mu.Unlock()
	})

	for i := 0; i < n; i++ {
		sub.deliver(t, "/transport_status", fmt.Sprintf(`{"data": "step-%d"}`, i))
		sub.deliver(t, "/cruise_status", `{"data": "x"}`)
	}
	l.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != n {
		t.Fatalf("Expected %d messages, got %d", n, len(got))
	}
	for i, v := range got {
		if v != fmt.Sprintf("step-%d", i) {
			t.Fatalf("Message %d out of order: %s", i, v)
		}
	}
}

func TestDecodeErrorKeepsRaw(t *testing.T) {
	sub := newFakeSubscriber()
	l := NewListener(sub, config.DefaultChannelConfig(), Options{Workers: 1, QueueSize: 8}, testLogger())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	sub.deliver(t, "/tp_result", `{"temperature": 1}`)
	waitFor(t, "status", func() bool {
		_, ok := l.Latest("/tp_result")
		return ok
	})
	s, _ := l.Latest("/tp_result")
	if s.DecodeError == "" {
		t.Errorf("Expected decode error to be recorded")
	}
	if string(s.Raw) != `{"temperature": 1}` {
		t.Errorf("Expected raw body kept, got %s", s.Raw)
	}
}

func TestReloadSubscribesAddedAndDropsRemoved(t *testing.T) {
	sub := newFakeSubscriber()
	l := NewListener(sub, config.DefaultChannelConfig(), Options{Workers: 1, QueueSize: 8}, testLogger())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	sub.deliver(t, "/cruise_status", `{"data": "patrolling"}`)
	waitFor(t, "cruise status", func() bool {
		_, ok := l.Latest("/cruise_status")
		return ok
	})

	cfg := &config.Config{
		Version:  "2",
		ConfigID: "ward-4",
		ChannelMappings: []config.ChannelMapping{
			{Channel: "/transport_status", MessageType: "std_msgs/String", Direction: config.DirectionInbound},
			{Channel: "/battery", MessageType: "std_msgs/Float32", Direction: config.DirectionInbound},
			{Channel: "/cli_vel_ctrl", MessageType: "std_msgs/String", Direction: config.DirectionOutbound},
		},
	}
	if err := l.Reload(cfg); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if !sub.subscribed("/battery") {
		t.Errorf("Expected /battery to be subscribed")
	}
	if sub.subscribed("/cli_vel_ctrl") {
		t.Errorf("Expected outbound channel not to be subscribed")
	}
	if sub.subscribed("/cruise_status") {
		t.Errorf("Expected /cruise_status to be unsubscribed")
	}
	if _, ok := l.Latest("/cruise_status"); ok {
		t.Errorf("Expected removed channel's status to be forgotten")
	}
	if got := len(l.Channels()); got != 2 {
		t.Errorf("Expected 2 inbound channels, got %d", got)
	}
}

func TestConnectionStateObservation(t *testing.T) {
	l := NewListener(newFakeSubscriber(), nil, Options{}, testLogger())
	if l.ConnectionState() != rosbridge.StateDisconnected {
		t.Errorf("Expected initial state disconnected")
	}

	var states []rosbridge.State
	cancel := l.ObserveConnection(func(s rosbridge.State) { states = append(states, s) })
	l.SetConnectionState(rosbridge.StateConnecting)
	l.SetConnectionState(rosbridge.StateConnected)
	cancel()
	l.SetConnectionState(rosbridge.StateDisconnected)

	if len(states) != 2 || states[1] != rosbridge.StateConnected {
		t.Errorf("Unexpected observed states %v", states)
	}
	if l.ConnectionState() != rosbridge.StateDisconnected {
		t.Errorf("Expected polled state disconnected, got %s", l.ConnectionState())
	}
}

func TestStartReportsSubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = rosbridge.ErrClosed
	l := NewListener(sub, nil, Options{}, testLogger())
	defer l.Stop()
	if err := l.Start(); err == nil {
		t.Errorf("Expected subscribe failure to be reported")
	}
}
