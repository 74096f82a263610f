// Package rosparser decodes the JSON bodies rosbridge delivers for a topic
// into Go values, keyed by ROS message type.
package rosparser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Error represents a body that could not be decoded as its declared type.
type Error struct {
	MessageType string
	Err         error
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("ROS parser: decode %s: %v", e.MessageType, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Well-known message types
const (
	TypeString  = "std_msgs/String"
	TypeFloat32 = "std_msgs/Float32"
	TypeFloat64 = "std_msgs/Float64"
	TypeInt32   = "std_msgs/Int32"
	TypeInt64   = "std_msgs/Int64"
	TypeBool    = "std_msgs/Bool"
)

// Normalize maps ROS 2 style names (std_msgs/msg/String) to the ROS 1 form
// rosbridge uses for the same type.
func Normalize(messageType string) string {
	return strings.Replace(strings.TrimSpace(messageType), "/msg/", "/", 1)
}

// IsSupported reports whether messageType has a typed decoder. Other types
// are still decoded, as generic JSON.
func IsSupported(messageType string) bool {
	switch Normalize(messageType) {
	case TypeString, TypeFloat32, TypeFloat64, TypeInt32, TypeInt64, TypeBool:
		return true
	}
	return false
}

// Decode returns the value carried by raw. Single-field std_msgs types yield
// their data field (string, float64, int64 or bool); anything else yields the
// generic JSON value.
func Decode(messageType string, raw json.RawMessage) (interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &Error{MessageType: messageType, Err: fmt.Errorf("empty body")}
	}

	msgType := Normalize(messageType)
	switch msgType {
	case TypeString:
		var m struct {
			Data *string `json:"data"`
		}
		if err := decodeData(raw, &m, func() bool { return m.Data != nil }); err != nil {
			return nil, &Error{MessageType: msgType, Err: err}
		}
		return *m.Data, nil
	case TypeFloat32, TypeFloat64:
		var m struct {
			Data *float64 `json:"data"`
		}
		if err := decodeData(raw, &m, func() bool { return m.Data != nil }); err != nil {
			return nil, &Error{MessageType: msgType, Err: err}
		}
		return *m.Data, nil
	case TypeInt32, TypeInt64:
		var m struct {
			Data *int64 `json:"data"`
		}
		if err := decodeData(raw, &m, func() bool { return m.Data != nil }); err != nil {
			return nil, &Error{MessageType: msgType, Err: err}
		}
		return *m.Data, nil
	case TypeBool:
		var m struct {
			Data *bool `json:"data"`
		}
		if err := decodeData(raw, &m, func() bool { return m.Data != nil }); err != nil {
			return nil, &Error{MessageType: msgType, Err: err}
		}
		return *m.Data, nil
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &Error{MessageType: msgType, Err: err}
	}
	return generic, nil
}

func decodeData(raw json.RawMessage, v interface{}, present func() bool) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	if !present() {
		return fmt.Errorf("missing data field")
	}
	return nil
}
