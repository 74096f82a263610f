// Package catalog is the fixed table of robot commands: which channel each
// command family is published on, the ROS message type the peer expects
// there, and how the payload is built.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a command family
type Kind string

const (
	KindTransport Kind = "transport"
	KindCruise    Kind = "cruise"
	KindException Kind = "exception"
	KindMapping   Kind = "mapping"
	KindVelocity  Kind = "velocity"
)

// Channel names on the bridge
const (
	ChannelTransport = "/transport_cmd"
	ChannelCruise    = "/cruise_cmd"
	ChannelException = "/exception_cmd"
	ChannelMapping   = "/bd_map_cmd"
	ChannelVelocity  = "/cli_vel_ctrl"
)

// ROS message types advertised for each channel
const (
	SchemaTransport = "medirover_pkg/transport_cmd"
	SchemaPoseArray = "geometry_msgs/PoseArray"
	SchemaString    = "std_msgs/String"
)

// Entry is one row of the catalog
type Entry struct {
	Kind    Kind
	Channel string
	Schema  string
}

var entries = map[Kind]Entry{
	KindTransport: {Kind: KindTransport, Channel: ChannelTransport, Schema: SchemaTransport},
	KindCruise:    {Kind: KindCruise, Channel: ChannelCruise, Schema: SchemaPoseArray},
	KindException: {Kind: KindException, Channel: ChannelException, Schema: SchemaString},
	KindMapping:   {Kind: KindMapping, Channel: ChannelMapping, Schema: SchemaString},
	KindVelocity:  {Kind: KindVelocity, Channel: ChannelVelocity, Schema: SchemaString},
}

// Lookup returns the catalog entry for kind.
func Lookup(kind Kind) (Entry, bool) {
	e, ok := entries[kind]
	return e, ok
}

// MustLookup is Lookup for kinds declared in this package.
func MustLookup(kind Kind) Entry {
	e, ok := entries[kind]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown command kind %q", kind))
	}
	return e
}

// Entries returns every catalog entry in a stable order.
func Entries() []Entry {
	return []Entry{
		entries[KindTransport],
		entries[KindCruise],
		entries[KindException],
		entries[KindMapping],
		entries[KindVelocity],
	}
}

// ErrUnknownToken is returned when a token is outside a closed command set
var ErrUnknownToken = errors.New("unknown command token")

// ExceptionSignal tells the robot to suspend or resume its current task
type ExceptionSignal string

const (
	ExceptionInterrupt ExceptionSignal = "interrupt"
	ExceptionRecover   ExceptionSignal = "recover"
)

// ParseExceptionSignal accepts only interrupt and recover.
func ParseExceptionSignal(s string) (ExceptionSignal, error) {
	switch sig := ExceptionSignal(strings.TrimSpace(s)); sig {
	case ExceptionInterrupt, ExceptionRecover:
		return sig, nil
	}
	return "", fmt.Errorf("%w: exception signal %q", ErrUnknownToken, s)
}

// Valid reports whether sig is in the closed set
func (sig ExceptionSignal) Valid() bool {
	return sig == ExceptionInterrupt || sig == ExceptionRecover
}

// MappingCommand drives the robot's map building
type MappingCommand string

const (
	MappingStart MappingCommand = "start"
	MappingSave  MappingCommand = "save"
	MappingEnd   MappingCommand = "end"
)

// ParseMappingCommand accepts only start, save and end.
func ParseMappingCommand(s string) (MappingCommand, error) {
	cmd := MappingCommand(strings.TrimSpace(s))
	if cmd.Valid() {
		return cmd, nil
	}
	return "", fmt.Errorf("%w: mapping command %q", ErrUnknownToken, s)
}

// Valid reports whether cmd is in the closed set
func (cmd MappingCommand) Valid() bool {
	switch cmd {
	case MappingStart, MappingSave, MappingEnd:
		return true
	}
	return false
}

// VelocityCommand is a discrete manual drive command
type VelocityCommand string

const (
	VelocityStop      VelocityCommand = "stop"
	VelocityFront     VelocityCommand = "front"
	VelocityBack      VelocityCommand = "back"
	VelocityLeft      VelocityCommand = "left"
	VelocityRight     VelocityCommand = "right"
	VelocityTurnLeft  VelocityCommand = "turn_left"
	VelocityTurnRight VelocityCommand = "turn_right"
)

// ParseVelocityCommand accepts only the seven drive tokens.
func ParseVelocityCommand(s string) (VelocityCommand, error) {
	cmd := VelocityCommand(strings.TrimSpace(s))
	if cmd.Valid() {
		return cmd, nil
	}
	return "", fmt.Errorf("%w: velocity command %q", ErrUnknownToken, s)
}

// Valid reports whether cmd is in the closed set
func (cmd VelocityCommand) Valid() bool {
	switch cmd {
	case VelocityStop, VelocityFront, VelocityBack, VelocityLeft,
		VelocityRight, VelocityTurnLeft, VelocityTurnRight:
		return true
	}
	return false
}
