// Package statecache mirrors the last known robot status and the bridge
// link state into Redis so other processes on the host can read them.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/status"
)

// DefaultTimeout bounds each mirror write
const DefaultTimeout = 500 * time.Millisecond

// Mirror writes status updates to Redis
type Mirror struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  customlog.Logger
}

// NewMirror creates a Mirror writing keys under prefix
func NewMirror(client *redis.Client, prefix string, logger customlog.Logger) *Mirror {
	if prefix == "" {
		prefix = "medirover"
	}
	return &Mirror{
		client:  client,
		prefix:  prefix,
		timeout: DefaultTimeout,
		logger:  customlog.OrDefault(logger),
	}
}

// StatusKey is the key holding the last status of channel
func (m *Mirror) StatusKey(channel string) string {
	return fmt.Sprintf("%s:status:%s", m.prefix, channel)
}

// ChannelsKey is the set of channels with a mirrored status
func (m *Mirror) ChannelsKey() string {
	return m.prefix + ":status:channels"
}

// ConnectionKey is the key holding the bridge link report
func (m *Mirror) ConnectionKey() string {
	return m.prefix + ":connection"
}

// UpdatesChannel is the Redis pub/sub channel announcing updated status channels
func (m *Mirror) UpdatesChannel() string {
	return m.prefix + ":status:updates"
}

// PublishStatus stores s and announces its channel
func (m *Mirror) PublishStatus(s status.Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.StatusKey(s.Channel), data, 0)
	pipe.SAdd(ctx, m.ChannelsKey(), s.Channel)
	pipe.Publish(ctx, m.UpdatesChannel(), s.Channel)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror status %s: %w", s.Channel, err)
	}
	return nil
}

// PublishConnection stores the link report
func (m *Mirror) PublishConnection(c status.ConnectionReport) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.client.Set(ctx, m.ConnectionKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("mirror connection: %w", err)
	}
	return nil
}

// forget removes channel from the mirror
func (m *Mirror) forget(ctx context.Context, channel string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.StatusKey(channel))
	pipe.SRem(ctx, m.ChannelsKey(), channel)
	_, err := pipe.Exec(ctx)
	return err
}

// Clear removes every mirrored key. Called at startup so stale status from
// a previous run is not served.
func (m *Mirror) Clear(ctx context.Context) error {
	channels, err := m.client.SMembers(ctx, m.ChannelsKey()).Result()
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if err := m.forget(ctx, ch); err != nil {
			m.logger.Warnf("Failed to clear mirrored status %s: %v", ch, err)
		}
	}
	return m.client.Del(ctx, m.ChannelsKey(), m.ConnectionKey()).Err()
}
