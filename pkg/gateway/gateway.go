// Package gateway turns typed robot commands into messages on the bridge.
//
// Every operation validates its input first and never touches the network
// for a rejected command. Accepted commands are published as exactly one
// message on the catalog channel for their family, then paced.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medirover/controller/pkg/catalog"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/pose"
	"github.com/medirover/controller/pkg/rosbridge"
	"github.com/medirover/controller/pkg/store"
)

// Publisher is the bridge surface the gateway needs
type Publisher interface {
	Publish(channel, schema string, msg interface{}) error
}

// WaypointLookup resolves waypoint names. A missing name is reported with
// an error wrapping store.ErrNotFound.
type WaypointLookup interface {
	GetWaypointByName(ctx context.Context, name string) (*store.Waypoint, error)
}

// Options configures a Gateway
type Options struct {
	// PaceInterval is the quiet period after each successful publish. Zero disables pacing.
	PaceInterval time.Duration
	// FrameID is used for the cruise header and for poses built from waypoints.
	FrameID string
}

// TransportRequest is a delivery from Start (pharmacy) to Target (bed),
// after which the robot returns to Origin.
type TransportRequest struct {
	Start       pose.Pose
	Target      pose.Pose
	Origin      pose.Pose
	TableHeight float64
}

// TransportByNameRequest is a TransportRequest given as waypoint names.
// A nil TableHeight uses the target waypoint's stored table height.
type TransportByNameRequest struct {
	Start       string
	Target      string
	Origin      string
	TableHeight *float64
}

// Gateway publishes robot commands. It is safe for concurrent use.
type Gateway struct {
	publisher Publisher
	waypoints WaypointLookup
	pacer     *Pacer
	frame     string
	logger    customlog.Logger
}

// New creates a Gateway. waypoints may be nil when no named commands are used.
func New(publisher Publisher, waypoints WaypointLookup, opts Options, logger customlog.Logger) *Gateway {
	frame := opts.FrameID
	if frame == "" {
		frame = "map"
	}
	return &Gateway{
		publisher: publisher,
		waypoints: waypoints,
		pacer:     NewPacer(opts.PaceInterval),
		frame:     frame,
		logger:    customlog.OrDefault(logger),
	}
}

// FrameID returns the frame used for cruise headers and stored waypoints
func (g *Gateway) FrameID() string {
	return g.frame
}

// Transport sends a delivery command
func (g *Gateway) Transport(ctx context.Context, req TransportRequest) (CommandOutcome, error) {
	named := []struct {
		name string
		pose pose.Pose
	}{{"start", req.Start}, {"target", req.Target}, {"origin", req.Origin}}
	for _, n := range named {
		if err := validatePose(n.pose); err != nil {
			return g.reject(catalog.KindTransport, invalidArgument("%s pose: %v", n.name, err))
		}
	}
	if !finite(req.TableHeight) {
		return g.reject(catalog.KindTransport, invalidArgument("table height must be a finite number"))
	}
	msg := catalog.BuildTransport(req.Start, req.Target, req.Origin, req.TableHeight)
	return g.publish(ctx, catalog.KindTransport, msg)
}

// TransportByName resolves three waypoint names and sends a delivery command
func (g *Gateway) TransportByName(ctx context.Context, req TransportByNameRequest) (CommandOutcome, error) {
	names := []string{req.Start, req.Target, req.Origin}
	resolved, err := g.resolve(ctx, names)
	if err != nil {
		return g.reject(catalog.KindTransport, err)
	}
	height := resolved[1].TableHeight
	if req.TableHeight != nil {
		height = *req.TableHeight
	}
	return g.Transport(ctx, TransportRequest{
		Start:       resolved[0].Pose(g.frame),
		Target:      resolved[1].Pose(g.frame),
		Origin:      resolved[2].Pose(g.frame),
		TableHeight: height,
	})
}

// Cruise sends a patrol over poses. The last pose is the standby point the
// robot returns to; the list goes out reversed.
func (g *Gateway) Cruise(ctx context.Context, poses []pose.Pose) (CommandOutcome, error) {
	if len(poses) == 0 {
		return g.reject(catalog.KindCruise, invalidArgument("cruise requires at least one pose"))
	}
	for i, p := range poses {
		if err := validatePose(p); err != nil {
			return g.reject(catalog.KindCruise, invalidArgument("pose %d: %v", i, err))
		}
	}
	msg, err := catalog.BuildCruise(g.frame, poses)
	if err != nil {
		return g.reject(catalog.KindCruise, invalidArgument("%v", err))
	}
	return g.publish(ctx, catalog.KindCruise, msg)
}

// CruiseByName resolves waypoint names in order and sends a patrol. The last
// name is the standby point.
func (g *Gateway) CruiseByName(ctx context.Context, names []string) (CommandOutcome, error) {
	if len(names) == 0 {
		return g.reject(catalog.KindCruise, invalidArgument("cruise requires at least one waypoint"))
	}
	resolved, err := g.resolve(ctx, names)
	if err != nil {
		return g.reject(catalog.KindCruise, err)
	}
	poses := make([]pose.Pose, len(resolved))
	for i, w := range resolved {
		poses[i] = w.Pose(g.frame)
	}
	return g.Cruise(ctx, poses)
}

// Exception sends interrupt or recover
func (g *Gateway) Exception(ctx context.Context, sig catalog.ExceptionSignal) (CommandOutcome, error) {
	if !sig.Valid() {
		return g.reject(catalog.KindException, invalidArgument("exception signal %q", sig))
	}
	return g.publish(ctx, catalog.KindException, catalog.BuildException(sig))
}

// Mapping sends a map-building command
func (g *Gateway) Mapping(ctx context.Context, cmd catalog.MappingCommand) (CommandOutcome, error) {
	if !cmd.Valid() {
		return g.reject(catalog.KindMapping, invalidArgument("mapping command %q", cmd))
	}
	return g.publish(ctx, catalog.KindMapping, catalog.BuildMapping(cmd))
}

// Velocity sends a manual drive command
func (g *Gateway) Velocity(ctx context.Context, cmd catalog.VelocityCommand) (CommandOutcome, error) {
	if !cmd.Valid() {
		return g.reject(catalog.KindVelocity, invalidArgument("velocity command %q", cmd))
	}
	return g.publish(ctx, catalog.KindVelocity, catalog.BuildVelocity(cmd))
}

func (g *Gateway) publish(ctx context.Context, kind catalog.Kind, msg interface{}) (CommandOutcome, error) {
	entry := catalog.MustLookup(kind)
	outcome := CommandOutcome{
		CommandID: uuid.NewString(),
		Kind:      kind,
		Channel:   entry.Channel,
	}
	logger := g.logger.WithFields(map[string]interface{}{
		"channel": entry.Channel,
		"command": outcome.CommandID,
	})

	if err := g.pacer.Acquire(ctx); err != nil {
		err = fmt.Errorf("waiting for publish slot: %w", err)
		outcome.Error = ErrorKindCancelled
		outcome.Message = err.Error()
		logger.Warnf("Command %s cancelled before send: %v", kind, err)
		return outcome, err
	}

	err := g.publisher.Publish(entry.Channel, entry.Schema, msg)
	g.pacer.Release(err == nil)
	if err != nil {
		err = classifyPublishError(err)
		outcome.Sent = !errors.Is(err, ErrNotConnected)
		outcome.Error = KindOf(err)
		outcome.Message = err.Error()
		logger.Warnf("Command %s failed: %v", kind, err)
		return outcome, err
	}

	outcome.Sent = true
	outcome.Accepted = true
	logger.Infof("Command %s published", kind)

	// A cancelled hold does not undo the publish
	if err := g.pacer.Hold(ctx); err != nil {
		logger.Debugf("Pacing hold cut short: %v", err)
	}
	return outcome, nil
}

// RejectedOutcome builds the outcome of a kind command that failed with
// err before anything was sent. Callers that validate their own input use
// it to answer the same way the Gateway does.
func RejectedOutcome(kind catalog.Kind, err error) CommandOutcome {
	outcome := CommandOutcome{
		CommandID: uuid.NewString(),
		Kind:      kind,
		Error:     KindOf(err),
		Message:   err.Error(),
	}
	if entry, ok := catalog.Lookup(kind); ok {
		outcome.Channel = entry.Channel
	}
	return outcome
}

func (g *Gateway) reject(kind catalog.Kind, err error) (CommandOutcome, error) {
	outcome := RejectedOutcome(kind, err)
	g.logger.WithField("channel", outcome.Channel).Warnf("Command %s rejected: %v", kind, err)
	return outcome, err
}

// resolve looks names up in order and stops at the first failure
func (g *Gateway) resolve(ctx context.Context, names []string) ([]*store.Waypoint, error) {
	if g.waypoints == nil {
		return nil, fmt.Errorf("%w: no waypoint store configured", ErrLookup)
	}
	resolved := make([]*store.Waypoint, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, invalidArgument("waypoint name %d is empty", i)
		}
		w, err := g.waypoints.GetWaypointByName(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %q: %w", ErrPeerUnresolvedReference, name, err)
			}
			return nil, fmt.Errorf("%w: %q: %w", ErrLookup, name, err)
		}
		resolved = append(resolved, w)
	}
	return resolved, nil
}

func classifyPublishError(err error) error {
	if errors.Is(err, rosbridge.ErrNotConnected) || errors.Is(err, rosbridge.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

func validatePose(p pose.Pose) error {
	if !p.Valid() {
		return errors.New("frame is required")
	}
	for _, v := range []float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W,
	} {
		if !finite(v) {
			return errors.New("coordinates must be finite numbers")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
