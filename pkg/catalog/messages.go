package catalog

import (
	"errors"

	"github.com/medirover/controller/pkg/pose"
)

// StringMessage is std_msgs/String
type StringMessage struct {
	Data string `json:"data"`
}

// Float64Message is the {data} wrapper used for std_msgs/Float64 fields
type Float64Message struct {
	Data float64 `json:"data"`
}

// TransportMessage is medirover_pkg/transport_cmd
type TransportMessage struct {
	StartPos    pose.Wire      `json:"start_pos"`
	TargetPos   pose.Wire      `json:"target_pos"`
	OriginPos   pose.Wire      `json:"origin_pos"`
	TableHeight Float64Message `json:"table_height"`
}

// PoseArrayMessage is geometry_msgs/PoseArray
type PoseArrayMessage struct {
	Header pose.Header `json:"header"`
	Poses  []pose.Body `json:"poses"`
}

// ErrEmptyCruise is returned for a cruise without poses
var ErrEmptyCruise = errors.New("cruise requires at least one pose")

// BuildTransport builds the delivery command: pharmacy, bed, standby point.
func BuildTransport(start, target, origin pose.Pose, tableHeight float64) TransportMessage {
	return TransportMessage{
		StartPos:    start.ToWire(),
		TargetPos:   target.ToWire(),
		OriginPos:   origin.ToWire(),
		TableHeight: Float64Message{Data: tableHeight},
	}
}

// BuildCruise builds the patrol command. The last input pose is the
// standby point; the peer consumes the list tail first, so the poses go out
// in reverse input order.
func BuildCruise(frame string, poses []pose.Pose) (PoseArrayMessage, error) {
	if len(poses) == 0 {
		return PoseArrayMessage{}, ErrEmptyCruise
	}
	bodies := make([]pose.Body, len(poses))
	for i, p := range poses {
		bodies[len(poses)-1-i] = p.Body()
	}
	return PoseArrayMessage{
		Header: pose.Header{FrameID: frame},
		Poses:  bodies,
	}, nil
}

// BuildException builds the interrupt/recover command
func BuildException(sig ExceptionSignal) StringMessage {
	return StringMessage{Data: string(sig)}
}

// BuildMapping builds the map-building command
func BuildMapping(cmd MappingCommand) StringMessage {
	return StringMessage{Data: string(cmd)}
}

// BuildVelocity builds the manual drive command
func BuildVelocity(cmd VelocityCommand) StringMessage {
	return StringMessage{Data: string(cmd)}
}
