package status

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/processing"
	"github.com/medirover/controller/pkg/rosbridge"
	"github.com/medirover/controller/pkg/status"
)

type fakeSource struct {
	latest  map[string]status.Status
	state   rosbridge.State
	obs     status.Observer
	connObs status.ConnectionObserver
}

func (f *fakeSource) Latest(channel string) (status.Status, bool) {
	s, ok := f.latest[channel]
	return s, ok
}

func (f *fakeSource) Snapshot() []status.Status {
	var out []status.Status
	for _, s := range f.latest {
		out = append(out, s)
	}
	return out
}

func (f *fakeSource) Stats() []processing.ChannelInfo { return nil }

func (f *fakeSource) ConnectionState() rosbridge.State { return f.state }

func (f *fakeSource) Observe(fn status.Observer) func() {
	f.obs = fn
	return func() { f.obs = nil }
}

func (f *fakeSource) ObserveConnection(fn status.ConnectionObserver) func() {
	f.connObs = fn
	return func() { f.connObs = nil }
}

type recordingSink struct {
	mu       sync.Mutex
	statuses []status.Status
	conns    []status.ConnectionReport
	err      error
}

func (r *recordingSink) PublishStatus(s status.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	return r.err
}

func (r *recordingSink) PublishConnection(c status.ConnectionReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = append(r.conns, c)
	return r.err
}

func TestLatestNormalizesChannel(t *testing.T) {
	src := &fakeSource{latest: map[string]status.Status{
		"/tp_result": {Channel: "/tp_result", Value: 36.8},
	}}
	svc := NewStatusService(src, "ws://robot:9090", customlog.NewWriterLogger("error", &bytes.Buffer{}))

	for _, name := range []string{"tp_result", "/tp_result", " tp_result "} {
		if _, ok := svc.Latest(name); !ok {
			t.Errorf("Expected to find status for %q", name)
		}
	}
	if _, ok := svc.Latest("cruise_status"); ok {
		t.Errorf("Expected no status for cruise_status")
	}
}

func TestSinksReceiveUpdates(t *testing.T) {
	src := &fakeSource{latest: map[string]status.Status{}}
	svc := NewStatusService(src, "ws://robot:9090", customlog.NewWriterLogger("error", &bytes.Buffer{}))
	good := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	svc.AddSink(failing)
	svc.AddSink(good)
	svc.Start()

	before := svc.Connection().Since
	time.Sleep(time.Millisecond)
	src.obs(status.Status{Channel: "/cruise_status", Value: "done"})
	src.state = rosbridge.StateConnected
	src.connObs(rosbridge.StateConnected)
	svc.Stop()

	if len(good.statuses) != 1 || good.statuses[0].Channel != "/cruise_status" {
		t.Errorf("Expected status forwarded past a failing sink, got %+v", good.statuses)
	}
	if len(good.conns) != 1 || !good.conns[0].Connected || good.conns[0].URL != "ws://robot:9090" {
		t.Errorf("Unexpected connection reports %+v", good.conns)
	}
	if !svc.Connection().Since.After(before) {
		t.Errorf("Expected connection time to advance on a state change")
	}

	if src.obs != nil || src.connObs != nil {
		t.Errorf("Expected observers to be cancelled on Stop")
	}
}

func TestNormalizeChannel(t *testing.T) {
	cases := map[string]string{"": "", "a": "/a", "/a": "/a", "a/b": "/a/b"}
	for in, want := range cases {
		if got := NormalizeChannel(in); got != want {
			t.Errorf("NormalizeChannel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWatch(t *testing.T) {
	src := &fakeSource{latest: map[string]status.Status{}}
	svc := NewStatusService(src, "ws://robot:9090", nil)

	var statuses []status.Status
	var conns []status.ConnectionReport
	cancel := svc.Watch(
		func(s status.Status) { statuses = append(statuses, s) },
		func(c status.ConnectionReport) { conns = append(conns, c) },
	)
	src.obs(status.Status{Channel: "/take_tp_req"})
	src.state = rosbridge.StateConnecting
	src.connObs(rosbridge.StateConnecting)
	cancel()

	if len(statuses) != 1 || len(conns) != 1 || conns[0].State != "connecting" {
		t.Errorf("Unexpected watch results %+v %+v", statuses, conns)
	}
	if src.obs != nil || src.connObs != nil {
		t.Errorf("Expected watch to be cancelled")
	}
}

// blockingSink holds every write until release is closed
type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) PublishStatus(status.Status) error {
	<-b.release
	return errors.New("redis: i/o timeout")
}

func (b *blockingSink) PublishConnection(status.ConnectionReport) error {
	<-b.release
	return nil
}

type bridgeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]rosbridge.Handler
}

func (b *bridgeSubscriber) Subscribe(channel, schema string, handler rosbridge.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = handler
	return nil
}

func (b *bridgeSubscriber) Unsubscribe(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, channel)
	return nil
}

func (b *bridgeSubscriber) handler(channel string) rosbridge.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[channel]
}

func TestStuckSinkDoesNotStallStatus(t *testing.T) {
	logger := customlog.NewWriterLogger("error", &bytes.Buffer{})
	sub := &bridgeSubscriber{handlers: make(map[string]rosbridge.Handler)}
	listener := status.NewListener(sub, nil, status.Options{Workers: 1, QueueSize: 1}, logger)

	svc := NewStatusService(listener, "ws://robot:9090", logger)
	stuck := &blockingSink{release: make(chan struct{})}
	svc.AddSink(stuck)
	svc.Start()
	if err := listener.Start(); err != nil {
		t.Fatalf("Listener start failed: %v", err)
	}

	deliver := sub.handler("/tp_result")
	if deliver == nil {
		t.Fatalf("Expected /tp_result to be subscribed")
	}

	const total = SinkQueueSize + 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			deliver(rosbridge.Message{Channel: "/tp_result", Raw: json.RawMessage(`{"data": 36.6}`)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Inbound delivery stalled behind a stuck sink")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, ok := svc.Latest("tp_result"); ok && s.Sequence == total {
			break
		}
		if time.Now().After(deadline) {
			s, _ := svc.Latest("tp_result")
			t.Fatalf("Expected latest sequence %d, got %d", total, s.Sequence)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if svc.Dropped() == 0 {
		t.Errorf("Expected updates to the stuck sink to be dropped")
	}

	close(stuck.release)
	listener.Stop()
	svc.Stop()
}
