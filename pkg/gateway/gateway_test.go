package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/medirover/controller/pkg/catalog"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/pose"
	"github.com/medirover/controller/pkg/rosbridge"
	"github.com/medirover/controller/pkg/store"
)

type published struct {
	channel string
	schema  string
	payload []byte
}

// fakePublisher records publishes, or fails with err
type fakePublisher struct {
	mu    sync.Mutex
	calls []published
	err   error
}

func (f *fakePublisher) Publish(channel, schema string, msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	f.calls = append(f.calls, published{channel: channel, schema: schema, payload: data})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWaypoints map[string]*store.Waypoint

func (f fakeWaypoints) GetWaypointByName(ctx context.Context, name string) (*store.Waypoint, error) {
	if w, ok := f[name]; ok {
		return w, nil
	}
	return nil, fmt.Errorf("waypoint %q: %w", name, store.ErrNotFound)
}

func newTestGateway(pub Publisher, wps WaypointLookup, pace time.Duration) *Gateway {
	return New(pub, wps, Options{PaceInterval: pace, FrameID: "map"},
		customlog.NewWriterLogger("debug", &bytes.Buffer{}))
}

func TestVelocityFrontPublishesOnce(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, 0)

	outcome, err := g.Velocity(context.Background(), catalog.VelocityFront)
	if err != nil {
		t.Fatalf("Velocity failed: %v", err)
	}
	if !outcome.Accepted || !outcome.Sent || outcome.Error != ErrorKindNone {
		t.Errorf("Unexpected outcome %+v", outcome)
	}
	if outcome.Channel != "/cli_vel_ctrl" || outcome.CommandID == "" {
		t.Errorf("Unexpected outcome channel/id %+v", outcome)
	}
	if pub.count() != 1 {
		t.Fatalf("Expected exactly one publish, got %d", pub.count())
	}
	call := pub.calls[0]
	if call.channel != "/cli_vel_ctrl" || call.schema != "std_msgs/String" || string(call.payload) != `{"data":"front"}` {
		t.Errorf("Unexpected publish %+v (%s)", call, call.payload)
	}
}

func TestCruiseReversesPoses(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, 0)

	_, err := g.Cruise(context.Background(), []pose.Pose{
		pose.New("map", 1, 2, 0, 1),
		pose.New("map", 0, 0, 0, 1),
	})
	if err != nil {
		t.Fatalf("Cruise failed: %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("Expected one aggregate publish, got %d", pub.count())
	}

	var msg catalog.PoseArrayMessage
	if err := json.Unmarshal(pub.calls[0].payload, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if pub.calls[0].channel != "/cruise_cmd" || msg.Header.FrameID != "map" {
		t.Errorf("Unexpected channel %s frame %s", pub.calls[0].channel, msg.Header.FrameID)
	}
	want := [][4]float64{{0, 0, 0, 1}, {1, 2, 0, 1}}
	for i, b := range msg.Poses {
		got := [4]float64{b.Position.X, b.Position.Y, b.Orientation.Z, b.Orientation.W}
		if got != want[i] {
			t.Errorf("pose %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestTransportPayload(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, 0)

	_, err := g.Transport(context.Background(), TransportRequest{
		Start:       pose.New("map", 0.12, 1.73, 0, 1),
		Target:      pose.New("map", -4.36, -1.60, 0, 1),
		Origin:      pose.New("map", 0, 0, 0, 1),
		TableHeight: 0.7,
	})
	if err != nil {
		t.Fatalf("Transport failed: %v", err)
	}
	var msg catalog.TransportMessage
	if err := json.Unmarshal(pub.calls[0].payload, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.TargetPos.Pose.Position.X != -4.36 || msg.TableHeight.Data != 0.7 {
		t.Errorf("Unexpected payload %+v", msg)
	}
	if pub.calls[0].schema != "medirover_pkg/transport_cmd" {
		t.Errorf("Unexpected schema %s", pub.calls[0].schema)
	}
}

func TestInvalidArgumentsNeverPublish(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, 0)
	ctx := context.Background()

	cases := map[string]func() (CommandOutcome, error){
		"exception":   func() (CommandOutcome, error) { return g.Exception(ctx, catalog.ExceptionSignal("pause")) },
		"mapping":     func() (CommandOutcome, error) { return g.Mapping(ctx, catalog.MappingCommand("load")) },
		"velocity":    func() (CommandOutcome, error) { return g.Velocity(ctx, catalog.VelocityCommand("up")) },
		"empty":       func() (CommandOutcome, error) { return g.Cruise(ctx, nil) },
		"no frame":    func() (CommandOutcome, error) { return g.Cruise(ctx, []pose.Pose{{}}) },
		"nan":         func() (CommandOutcome, error) { return g.Cruise(ctx, []pose.Pose{pose.New("map", math.NaN(), 0, 0, 1)}) },
		"bad height":  func() (CommandOutcome, error) { return g.Transport(ctx, transportWithHeight(math.Inf(1))) },
		"empty names": func() (CommandOutcome, error) { return g.CruiseByName(ctx, nil) },
	}
	for name, run := range cases {
		outcome, err := run()
		if !errors.Is(err, ErrInvalidCommandArgument) {
			t.Errorf("%s: expected ErrInvalidCommandArgument, got %v", name, err)
		}
		if outcome.Sent || outcome.Accepted || outcome.Error != ErrorKindInvalidCommandArgument {
			t.Errorf("%s: unexpected outcome %+v", name, outcome)
		}
	}
	if pub.count() != 0 {
		t.Errorf("Expected no publishes, got %d", pub.count())
	}
}

func transportWithHeight(h float64) TransportRequest {
	p := pose.New("map", 0, 0, 0, 1)
	return TransportRequest{Start: p, Target: p, Origin: p, TableHeight: h}
}

func TestNotConnectedIsRejectedBeforeSend(t *testing.T) {
	pub := &fakePublisher{err: rosbridge.ErrNotConnected}
	g := newTestGateway(pub, nil, 0)

	outcome, err := g.Mapping(context.Background(), catalog.MappingStart)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}
	if outcome.Sent || outcome.Accepted || outcome.Error != ErrorKindNotConnected {
		t.Errorf("Unexpected outcome %+v", outcome)
	}
}

func TestConnectionErrorIsSentButNotAccepted(t *testing.T) {
	pub := &fakePublisher{err: &rosbridge.ConnectionError{URL: "ws://robot:9090", Err: errors.New("broken pipe")}}
	g := newTestGateway(pub, nil, 0)

	outcome, err := g.Exception(context.Background(), catalog.ExceptionInterrupt)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Expected ErrConnection, got %v", err)
	}
	var connErr *rosbridge.ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("Expected the bridge error to stay reachable, got %v", err)
	}
	if !outcome.Sent || outcome.Accepted || outcome.Error != ErrorKindConnection {
		t.Errorf("Unexpected outcome %+v", outcome)
	}
}

func TestCruiseByName(t *testing.T) {
	pub := &fakePublisher{}
	wps := fakeWaypoints{
		"bed-1":  {Name: "bed-1", PosX: 1, PosY: 2, OriW: 1},
		"origin": {Name: "origin", OriW: 1},
	}
	g := newTestGateway(pub, wps, 0)

	if _, err := g.CruiseByName(context.Background(), []string{"bed-1", "origin"}); err != nil {
		t.Fatalf("CruiseByName failed: %v", err)
	}
	var msg catalog.PoseArrayMessage
	_ = json.Unmarshal(pub.calls[0].payload, &msg)
	if len(msg.Poses) != 2 || msg.Poses[0].Position.X != 0 || msg.Poses[1].Position.X != 1 {
		t.Errorf("Expected reversed [origin, bed-1], got %+v", msg.Poses)
	}
}

func TestCruiseByNameUnresolved(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, fakeWaypoints{"origin": {Name: "origin", OriW: 1}}, 0)

	outcome, err := g.CruiseByName(context.Background(), []string{"bed-9", "origin"})
	if !errors.Is(err, ErrPeerUnresolvedReference) {
		t.Fatalf("Expected ErrPeerUnresolvedReference, got %v", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected the store error to be kept, got %v", err)
	}
	if outcome.Sent || outcome.Error != ErrorKindPeerUnresolvedReference {
		t.Errorf("Unexpected outcome %+v", outcome)
	}
	if pub.count() != 0 {
		t.Errorf("Expected no publishes, got %d", pub.count())
	}
}

func TestTransportByNameDefaultsTableHeight(t *testing.T) {
	pub := &fakePublisher{}
	wps := fakeWaypoints{
		"pharmacy": {Name: "pharmacy", PosX: 0.12, PosY: 1.73, OriW: 1},
		"bed-1":    {Name: "bed-1", PosX: -4.36, PosY: -1.6, OriW: 1, TableHeight: 0.72},
		"origin":   {Name: "origin", OriW: 1},
	}
	g := newTestGateway(pub, wps, 0)
	ctx := context.Background()

	if _, err := g.TransportByName(ctx, TransportByNameRequest{Start: "pharmacy", Target: "bed-1", Origin: "origin"}); err != nil {
		t.Fatalf("TransportByName failed: %v", err)
	}
	override := 0.5
	if _, err := g.TransportByName(ctx, TransportByNameRequest{Start: "pharmacy", Target: "bed-1", Origin: "origin", TableHeight: &override}); err != nil {
		t.Fatalf("TransportByName with height failed: %v", err)
	}

	var first, second catalog.TransportMessage
	_ = json.Unmarshal(pub.calls[0].payload, &first)
	_ = json.Unmarshal(pub.calls[1].payload, &second)
	if first.TableHeight.Data != 0.72 {
		t.Errorf("Expected stored table height 0.72, got %v", first.TableHeight.Data)
	}
	if second.TableHeight.Data != 0.5 {
		t.Errorf("Expected override 0.5, got %v", second.TableHeight.Data)
	}
	if first.StartPos.Pose.Position.Y != 1.73 || first.TargetPos.Header.FrameID != "map" {
		t.Errorf("Unexpected poses %+v", first)
	}
}

func TestNamedCommandWithoutStore(t *testing.T) {
	g := newTestGateway(&fakePublisher{}, nil, 0)
	outcome, err := g.CruiseByName(context.Background(), []string{"a"})
	if !errors.Is(err, ErrLookup) || outcome.Error != ErrorKindLookup {
		t.Errorf("Expected lookup failure, got %v / %+v", err, outcome)
	}
}

func TestPacingHoldsAfterPublish(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, 60*time.Millisecond)

	start := time.Now()
	if _, err := g.Velocity(context.Background(), catalog.VelocityStop); err != nil {
		t.Fatalf("Velocity failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected pacing hold, returned after %v", elapsed)
	}
}

func TestPacingSkippedOnRejection(t *testing.T) {
	g := newTestGateway(&fakePublisher{}, nil, time.Second)

	start := time.Now()
	_, _ = g.Velocity(context.Background(), catalog.VelocityCommand("jump"))
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Rejected command should return immediately, took %v", elapsed)
	}
}

func TestFailedPublishesDoNotUsePacingSlots(t *testing.T) {
	pub := &fakePublisher{err: rosbridge.ErrNotConnected}
	g := newTestGateway(pub, nil, 300*time.Millisecond)

	for i := 0; i < 4; i++ {
		start := time.Now()
		outcome, err := g.Velocity(context.Background(), catalog.VelocityStop)
		if !errors.Is(err, ErrNotConnected) || outcome.Error != ErrorKindNotConnected {
			t.Fatalf("call %d: expected not connected, got %v / %+v", i, err, outcome)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("call %d: disconnected command should return at once, took %v", i, elapsed)
		}
	}

	// Back online: the first successful publish is not held up by the failures
	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	outcome, err := g.Velocity(ctx, catalog.VelocityStop)
	if err != nil || !outcome.Accepted {
		t.Fatalf("Expected accepted publish after reconnect, got %v / %+v", err, outcome)
	}
}

func TestCancelledHoldStaysAccepted(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome, err := g.Velocity(ctx, catalog.VelocityBack)
	if err != nil {
		t.Fatalf("Velocity failed: %v", err)
	}
	if !outcome.Accepted {
		t.Errorf("Expected accepted outcome, got %+v", outcome)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Hold should end with the context, took %v", elapsed)
	}
}

func TestPacingSpacesConcurrentCallers(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, nil, 50*time.Millisecond)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Velocity(context.Background(), catalog.VelocityLeft)
		}()
	}
	wg.Wait()

	if pub.count() != 3 {
		t.Fatalf("Expected 3 publishes, got %d", pub.count())
	}
	// Three slots 50ms apart, plus the last hold
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("Expected publishes to be spaced, all done after %v", elapsed)
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]ErrorKind{
		nil:                            ErrorKindNone,
		invalidArgument("x"):           ErrorKindInvalidCommandArgument,
		ErrNotConnected:                ErrorKindNotConnected,
		ErrPeerUnresolvedReference:     ErrorKindPeerUnresolvedReference,
		context.Canceled:               ErrorKindCancelled,
		errors.New("something broken"): ErrorKindConnection,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Errorf("KindOf(%v) = %s, want %s", err, got, want)
		}
	}
}
