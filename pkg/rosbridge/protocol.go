// Package rosbridge speaks the rosbridge v2 JSON protocol over a single
// WebSocket connection: advertise, publish, subscribe and unsubscribe ops,
// plus the connection lifecycle around them.
package rosbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Protocol op names
const (
	OpPublish     = "publish"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpAdvertise   = "advertise"
	OpStatus      = "status"
)

type publishOp struct {
	Op    string      `json:"op"`
	ID    string      `json:"id,omitempty"`
	Topic string      `json:"topic"`
	Msg   interface{} `json:"msg"`
}

type topicOp struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Type  string `json:"type,omitempty"`
}

// Incoming is an op received from the bridge
type Incoming struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
	Level string          `json:"level,omitempty"`
}

func opID(op, topic string) string {
	return fmt.Sprintf("%s:%s:%s", op, topic, uuid.NewString())
}

// PublishMsg encodes a publish op
func PublishMsg(topic string, msg interface{}) ([]byte, error) {
	return json.Marshal(publishOp{Op: OpPublish, ID: opID(OpPublish, topic), Topic: topic, Msg: msg})
}

// AdvertiseMsg encodes an advertise op
func AdvertiseMsg(topic, msgType string) ([]byte, error) {
	return json.Marshal(topicOp{Op: OpAdvertise, ID: opID(OpAdvertise, topic), Topic: topic, Type: msgType})
}

// SubscribeMsg encodes a subscribe op
func SubscribeMsg(topic, msgType string) ([]byte, error) {
	return json.Marshal(topicOp{Op: OpSubscribe, ID: opID(OpSubscribe, topic), Topic: topic, Type: msgType})
}

// UnsubscribeMsg encodes an unsubscribe op
func UnsubscribeMsg(topic string) ([]byte, error) {
	return json.Marshal(topicOp{Op: OpUnsubscribe, ID: opID(OpUnsubscribe, topic), Topic: topic})
}

// ParseIncoming decodes one frame received from the bridge
func ParseIncoming(data []byte) (Incoming, error) {
	var in Incoming
	if err := json.Unmarshal(data, &in); err != nil {
		return Incoming{}, fmt.Errorf("decode rosbridge frame: %w", err)
	}
	if in.Op == "" {
		return Incoming{}, fmt.Errorf("decode rosbridge frame: missing op")
	}
	return in, nil
}
