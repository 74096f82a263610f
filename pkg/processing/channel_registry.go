package processing

import (
	"sort"
	"sync"

	"github.com/medirover/controller/pkg/config"
	customlog "github.com/medirover/controller/pkg/log"
)

// ChannelInfo holds metadata for a status channel
type ChannelInfo struct {
	Channel      string `json:"channel"`
	MessageType  string `json:"message_type"`
	Direction    string `json:"direction"`
	Description  string `json:"description,omitempty"`
	StatCount    uint64 `json:"count"`
	LastReceived int64  `json:"last_received"`
}

// ChannelRegistry maintains information about channels
type ChannelRegistry struct {
	logger   customlog.Logger
	channels map[string]*ChannelInfo
	mu       sync.RWMutex
}

// NewChannelRegistry creates a new channel registry
func NewChannelRegistry(logger customlog.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		logger:   customlog.OrDefault(logger),
		channels: make(map[string]*ChannelInfo),
	}
}

// LoadFromConfig replaces the registered channels with the config's
// mappings. Counters survive for channels that are still configured.
func (r *ChannelRegistry) LoadFromConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.channels
	r.channels = make(map[string]*ChannelInfo)

	for _, mapping := range cfg.ChannelMappings {
		m, _ := cfg.GetChannelMapping(mapping.Channel)
		info := &ChannelInfo{
			Channel:     m.Channel,
			MessageType: m.MessageType,
			Direction:   m.Direction,
			Description: m.Description,
		}
		if old, ok := previous[m.Channel]; ok {
			info.StatCount = old.StatCount
			info.LastReceived = old.LastReceived
		}
		r.channels[m.Channel] = info
	}

	r.logger.Infof("Loaded %d channels into registry", len(r.channels))
}

// GetChannelInfo gets information for a channel
func (r *ChannelRegistry) GetChannelInfo(channel string) (ChannelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.channels[channel]
	if !exists {
		return ChannelInfo{}, false
	}
	return *info, true
}

// RecordReceived counts a message on channel and returns its sequence number
func (r *ChannelRegistry) RecordReceived(channel string, timestamp int64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.channels[channel]
	if !exists {
		// Not configured, but subscribed by someone
		info = &ChannelInfo{Channel: channel, Direction: config.DirectionInbound}
		r.channels[channel] = info
	}

	info.StatCount++
	info.LastReceived = timestamp
	return info.StatCount
}

// GetMessageType gets the message type for a channel
func (r *ChannelRegistry) GetMessageType(channel string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.channels[channel]
	if !exists || info.MessageType == "" {
		return "", false
	}
	return info.MessageType, true
}

// GetChannelsByDirection returns the registered channels with direction, sorted
func (r *ChannelRegistry) GetChannelsByDirection(direction string) []ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ChannelInfo
	for _, info := range r.channels {
		if info.Direction == direction {
			out = append(out, *info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// GetChannelStats returns a snapshot of every channel, sorted by name
func (r *ChannelRegistry) GetChannelStats() []ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ChannelInfo, 0, len(r.channels))
	for _, info := range r.channels {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
