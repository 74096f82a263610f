package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/medirover/controller/pkg/catalog"
	"github.com/medirover/controller/pkg/gateway"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/pose"
)

// Request types accepted by Dispatch
const (
	TypeTransport       = "TRANSPORT"
	TypeTransportByName = "TRANSPORT_BY_NAME"
	TypeCruise          = "CRUISE"
	TypeCruiseByName    = "CRUISE_BY_NAME"
	TypeException       = "EXCEPTION"
	TypeMapping         = "MAPPING"
	TypeVelocity        = "VELOCITY"
)

// Commander is the gateway surface behind the service
type Commander interface {
	FrameID() string
	Transport(ctx context.Context, req gateway.TransportRequest) (gateway.CommandOutcome, error)
	TransportByName(ctx context.Context, req gateway.TransportByNameRequest) (gateway.CommandOutcome, error)
	Cruise(ctx context.Context, poses []pose.Pose) (gateway.CommandOutcome, error)
	CruiseByName(ctx context.Context, names []string) (gateway.CommandOutcome, error)
	Exception(ctx context.Context, sig catalog.ExceptionSignal) (gateway.CommandOutcome, error)
	Mapping(ctx context.Context, cmd catalog.MappingCommand) (gateway.CommandOutcome, error)
	Velocity(ctx context.Context, cmd catalog.VelocityCommand) (gateway.CommandOutcome, error)
}

// PoseInput is a pose as clients send it. An empty frame means the
// gateway's frame; position and orientation are required.
type PoseInput struct {
	Frame       string           `json:"frame,omitempty"`
	Position    *pose.Vector3    `json:"position"`
	Orientation *pose.Quaternion `json:"orientation"`
}

// TransportInput is the body of a transport command. Every field is required.
type TransportInput struct {
	Start       *PoseInput `json:"start"`
	Target      *PoseInput `json:"target"`
	Origin      *PoseInput `json:"origin"`
	TableHeight *float64   `json:"table_height"`
}

// TransportByNameInput is the body of a transport-by-name command
type TransportByNameInput struct {
	Start       string   `json:"start"`
	Target      string   `json:"target"`
	Origin      string   `json:"origin"`
	TableHeight *float64 `json:"table_height,omitempty"`
}

// CruiseInput lists the patrol poses, the last one being the origin
type CruiseInput struct {
	Poses []*PoseInput `json:"poses"`
}

// CruiseByNameInput lists the patrol waypoints by name, origin last
type CruiseByNameInput struct {
	Names []string `json:"names"`
}

// TokenInput carries the token of an exception, mapping or velocity command
type TokenInput struct {
	Command string `json:"command"`
}

// CommandService turns client requests into gateway commands. Closed-set
// tokens are parsed here so a bad token never reaches the gateway.
type CommandService struct {
	commander Commander
	logger    customlog.Logger
}

// NewCommandService creates a new command service
func NewCommandService(commander Commander, logger customlog.Logger) *CommandService {
	return &CommandService{
		commander: commander,
		logger:    customlog.OrDefault(logger),
	}
}

// toPose checks that every part of in is present; a missing field is never
// read as zero.
func (s *CommandService) toPose(name string, in *PoseInput) (pose.Pose, error) {
	switch {
	case in == nil:
		return pose.Pose{}, fmt.Errorf("%s pose is required", name)
	case in.Position == nil:
		return pose.Pose{}, fmt.Errorf("%s position is required", name)
	case in.Orientation == nil:
		return pose.Pose{}, fmt.Errorf("%s orientation is required", name)
	}
	frame := in.Frame
	if frame == "" {
		frame = s.commander.FrameID()
	}
	return pose.Pose{Frame: frame, Position: *in.Position, Orientation: *in.Orientation}, nil
}

// Transport sends a delivery command
func (s *CommandService) Transport(ctx context.Context, in TransportInput) (gateway.CommandOutcome, error) {
	var req gateway.TransportRequest
	var err error
	if req.Start, err = s.toPose("start", in.Start); err != nil {
		return s.reject(catalog.KindTransport, err)
	}
	if req.Target, err = s.toPose("target", in.Target); err != nil {
		return s.reject(catalog.KindTransport, err)
	}
	if req.Origin, err = s.toPose("origin", in.Origin); err != nil {
		return s.reject(catalog.KindTransport, err)
	}
	if in.TableHeight == nil {
		return s.reject(catalog.KindTransport, errors.New("table_height is required"))
	}
	req.TableHeight = *in.TableHeight
	return s.commander.Transport(ctx, req)
}

// TransportByName sends a delivery command between stored waypoints
func (s *CommandService) TransportByName(ctx context.Context, in TransportByNameInput) (gateway.CommandOutcome, error) {
	return s.commander.TransportByName(ctx, gateway.TransportByNameRequest{
		Start:       strings.TrimSpace(in.Start),
		Target:      strings.TrimSpace(in.Target),
		Origin:      strings.TrimSpace(in.Origin),
		TableHeight: in.TableHeight,
	})
}

// Cruise sends a patrol over explicit poses
func (s *CommandService) Cruise(ctx context.Context, in CruiseInput) (gateway.CommandOutcome, error) {
	poses := make([]pose.Pose, len(in.Poses))
	for i, p := range in.Poses {
		var err error
		if poses[i], err = s.toPose(fmt.Sprintf("poses[%d]", i), p); err != nil {
			return s.reject(catalog.KindCruise, err)
		}
	}
	return s.commander.Cruise(ctx, poses)
}

// CruiseByName sends a patrol over stored waypoints
func (s *CommandService) CruiseByName(ctx context.Context, in CruiseByNameInput) (gateway.CommandOutcome, error) {
	return s.commander.CruiseByName(ctx, in.Names)
}

// Exception interrupts or resumes the current task
func (s *CommandService) Exception(ctx context.Context, in TokenInput) (gateway.CommandOutcome, error) {
	sig, err := catalog.ParseExceptionSignal(in.Command)
	if err != nil {
		return s.reject(catalog.KindException, err)
	}
	return s.commander.Exception(ctx, sig)
}

// Mapping drives map building
func (s *CommandService) Mapping(ctx context.Context, in TokenInput) (gateway.CommandOutcome, error) {
	cmd, err := catalog.ParseMappingCommand(in.Command)
	if err != nil {
		return s.reject(catalog.KindMapping, err)
	}
	return s.commander.Mapping(ctx, cmd)
}

// Velocity sends a manual drive command
func (s *CommandService) Velocity(ctx context.Context, in TokenInput) (gateway.CommandOutcome, error) {
	cmd, err := catalog.ParseVelocityCommand(in.Command)
	if err != nil {
		return s.reject(catalog.KindVelocity, err)
	}
	return s.commander.Velocity(ctx, cmd)
}

func (s *CommandService) reject(kind catalog.Kind, err error) (gateway.CommandOutcome, error) {
	err = fmt.Errorf("%w: %w", gateway.ErrInvalidCommandArgument, err)
	s.logger.Warnf("Command %s rejected: %v", kind, err)
	return gateway.RejectedOutcome(kind, err), err
}

// Dispatch decodes data according to requestType and runs the command.
// An empty or undecodable body is rejected as an invalid argument.
func (s *CommandService) Dispatch(ctx context.Context, requestType string, data json.RawMessage) (gateway.CommandOutcome, error) {
	decode := func(kind catalog.Kind, v interface{}) error {
		if len(bytes.TrimSpace(data)) == 0 {
			return fmt.Errorf("%w: %s request body is required", gateway.ErrInvalidCommandArgument, kind)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: decoding %s request: %w", gateway.ErrInvalidCommandArgument, kind, err)
		}
		return nil
	}

	switch strings.ToUpper(requestType) {
	case TypeTransport:
		var in TransportInput
		if err := decode(catalog.KindTransport, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindTransport, err), err
		}
		return s.Transport(ctx, in)
	case TypeTransportByName:
		var in TransportByNameInput
		if err := decode(catalog.KindTransport, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindTransport, err), err
		}
		return s.TransportByName(ctx, in)
	case TypeCruise:
		var in CruiseInput
		if err := decode(catalog.KindCruise, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindCruise, err), err
		}
		return s.Cruise(ctx, in)
	case TypeCruiseByName:
		var in CruiseByNameInput
		if err := decode(catalog.KindCruise, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindCruise, err), err
		}
		return s.CruiseByName(ctx, in)
	case TypeException:
		var in TokenInput
		if err := decode(catalog.KindException, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindException, err), err
		}
		return s.Exception(ctx, in)
	case TypeMapping:
		var in TokenInput
		if err := decode(catalog.KindMapping, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindMapping, err), err
		}
		return s.Mapping(ctx, in)
	case TypeVelocity:
		var in TokenInput
		if err := decode(catalog.KindVelocity, &in); err != nil {
			return gateway.RejectedOutcome(catalog.KindVelocity, err), err
		}
		return s.Velocity(ctx, in)
	}

	err := fmt.Errorf("%w: unknown command type %q", gateway.ErrInvalidCommandArgument, requestType)
	return gateway.RejectedOutcome("", err), err
}
