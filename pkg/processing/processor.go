package processing

import (
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/rosparser"
)

// RosMessageProcessor decodes rosbridge message bodies using the message
// type registered for their channel
type RosMessageProcessor struct {
	logger          customlog.Logger
	channelRegistry *ChannelRegistry
}

// NewRosMessageProcessor creates a new ROS message processor
func NewRosMessageProcessor(logger customlog.Logger, channelRegistry *ChannelRegistry) *RosMessageProcessor {
	return &RosMessageProcessor{
		logger:          customlog.OrDefault(logger),
		channelRegistry: channelRegistry,
	}
}

// ProcessMessage decodes msg. A decode failure is reported in the result,
// which still carries the raw body.
func (p *RosMessageProcessor) ProcessMessage(msg *Message) *ProcessResult {
	result := &ProcessResult{
		Channel:    msg.Channel,
		Raw:        msg.Raw,
		ReceivedAt: msg.ReceivedAt,
		Sequence:   msg.Sequence,
	}

	messageType, exists := p.channelRegistry.GetMessageType(msg.Channel)
	if !exists {
		// Unknown type: keep the generic JSON value
		messageType = ""
	}
	result.MessageType = messageType

	p.logger.Debugf("Processing message for channel '%s' (type: %s, %d bytes)",
		msg.Channel, messageType, len(msg.Raw))

	value, err := rosparser.Decode(messageType, msg.Raw)
	if err != nil {
		result.Error = err
		return result
	}
	result.Value = value
	return result
}

// CreateProcessorFunc creates a MessageProcessor function for a ProcessingPool
func (p *RosMessageProcessor) CreateProcessorFunc() MessageProcessor {
	return p.ProcessMessage
}
