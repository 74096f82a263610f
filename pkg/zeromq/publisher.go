package zeromq

import (
	"strings"

	"github.com/medirover/controller/pkg/config"
	"github.com/medirover/controller/pkg/envelope"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/status"
)

// Publisher sends topic-framed messages
type Publisher interface {
	PublishMessage(topic string, message []byte) error
	PublishJSON(topic string, messageType string, data interface{}) error
}

// StatusPublisher fans status updates out as StatusEnvelope buffers
type StatusPublisher struct {
	publisher Publisher
	logger    customlog.Logger
}

// NewStatusPublisher creates a new status publisher
func NewStatusPublisher(publisher Publisher, logger customlog.Logger) *StatusPublisher {
	return &StatusPublisher{
		publisher: publisher,
		logger:    customlog.OrDefault(logger),
	}
}

// StatusTopic returns the topic frame for channel
func StatusTopic(channel string) string {
	return TopicStatusPrefix + "/" + strings.TrimPrefix(channel, "/")
}

// PublishStatus publishes s on its channel's status topic
func (p *StatusPublisher) PublishStatus(s status.Status) error {
	buf := envelope.Encode(envelope.Envelope{
		Channel:     s.Channel,
		MessageType: s.MessageType,
		Sequence:    s.Sequence,
		Timestamp:   s.ReceivedAt,
		ContentType: envelope.ContentTypeJSON,
		Payload:     s.Raw,
	})
	return p.publisher.PublishMessage(StatusTopic(s.Channel), buf)
}

// PublishConnection publishes a connection state change
func (p *StatusPublisher) PublishConnection(c status.ConnectionReport) error {
	p.logger.Debugf("Publishing connection state %s", c.State)
	return p.publisher.PublishJSON(TopicConnectionState, MsgTypeConnectionState, c)
}

// ConfigPublisher announces configuration changes
type ConfigPublisher struct {
	publisher Publisher
	logger    customlog.Logger
}

// NewConfigPublisher creates a new publisher for configuration updates
func NewConfigPublisher(publisher Publisher, logger customlog.Logger) *ConfigPublisher {
	return &ConfigPublisher{
		publisher: publisher,
		logger:    customlog.OrDefault(logger),
	}
}

// PublishConfigUpdatedNotification publishes a notification that the config has been updated
func (p *ConfigPublisher) PublishConfigUpdatedNotification(cfg *config.Config) error {
	p.logger.Infof("Publishing configuration update notification (ID: %s)", cfg.ConfigID)

	notification := map[string]interface{}{
		"config_id":    cfg.ConfigID,
		"version":      cfg.Version,
		"last_updated": cfg.LastUpdated,
	}
	return p.publisher.PublishJSON(TopicConfigurationNotified, MsgTypeConfigUpdated, notification)
}
