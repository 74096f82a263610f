package processing

import (
	"encoding/json"
	"time"
)

// Message is one inbound status message waiting to be processed
type Message struct {
	Channel    string
	Raw        json.RawMessage
	ReceivedAt time.Time
	// Sequence counts messages on Channel in arrival order, starting at 1
	Sequence uint64
}

// ProcessResult is the result of processing a message
type ProcessResult struct {
	Channel     string
	MessageType string
	Value       interface{}
	Raw         json.RawMessage
	ReceivedAt  time.Time
	Sequence    uint64
	Error       error
}
