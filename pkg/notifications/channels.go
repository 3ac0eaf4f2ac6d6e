package notifications

import (
	"fmt"

	"github.com/shiftflow/pushkit/pkg/provider"
)

// ChannelConfig is the platform-facing presentation for one notification
// type: the delivery channel (android notification channel / ios category)
// and the accent color mobile clients render.
type ChannelConfig struct {
	ChannelID string
	Color     string
}

// channelConfigs is the static per-type mapping. A new Type without an entry
// here fails ValidateChannelConfig at startup instead of silently falling
// through to a default channel.
var channelConfigs = map[Type]ChannelConfig{
	TypeTaskUpdate:       {ChannelID: "task_updates", Color: "#2196F3"},
	TypeSiteChange:       {ChannelID: "site_changes", Color: "#FF9800"},
	TypeAttendanceAlert:  {ChannelID: "attendance_alerts", Color: "#F44336"},
	TypeApprovalStatus:   {ChannelID: "approvals", Color: "#4CAF50"},
	TypeOvertimeRequired: {ChannelID: "overtime", Color: "#E91E63"},
	TypeAnnouncement:     {ChannelID: "announcements", Color: "#9C27B0"},
}

// ValidateChannelConfig verifies every known type has a channel mapping.
// Called once at process startup; a failure is a programming error.
func ValidateChannelConfig() error {
	for _, t := range Types {
		cfg, ok := channelConfigs[t]
		if !ok {
			return fmt.Errorf("notification type %q has no channel config", t)
		}
		if cfg.ChannelID == "" {
			return fmt.Errorf("notification type %q has an empty channel id", t)
		}
	}
	return nil
}

// ChannelFor returns the channel config for a type.
func ChannelFor(t Type) (ChannelConfig, error) {
	cfg, ok := channelConfigs[t]
	if !ok {
		return ChannelConfig{}, fmt.Errorf("notification type %q has no channel config", t)
	}
	return cfg, nil
}

// UrgencyFor maps internal priority onto the provider's delivery tiers:
// CRITICAL and HIGH ride the high-importance tier, NORMAL and LOW standard.
func UrgencyFor(p Priority) provider.Urgency {
	if p >= PriorityHigh {
		return provider.UrgencyHigh
	}
	return provider.UrgencyNormal
}
