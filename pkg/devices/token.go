package devices

import (
	"fmt"
	"time"
)

// Platform tags the OS a token belongs to. The provider payload format and
// channel semantics differ per platform.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Platforms lists every supported platform, used by registration validation.
var Platforms = []string{string(PlatformIOS), string(PlatformAndroid)}

// Preferences are the per-device notification settings a worker controls from
// the mobile app.
type Preferences struct {
	PushEnabled     bool   `json:"push_enabled" bson:"push_enabled"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty" bson:"quiet_hours_start,omitempty"` // "HH:MM", empty disables quiet hours
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty" bson:"quiet_hours_end,omitempty"`
	CriticalBypass  bool   `json:"critical_bypass" bson:"critical_bypass"` // critical notifications ignore quiet hours
	Language        string `json:"language,omitempty" bson:"language,omitempty"`
}

// DefaultPreferences enable push with no quiet hours and critical bypass on.
func DefaultPreferences() Preferences {
	return Preferences{PushEnabled: true, CriticalBypass: true}
}

// InQuietHours reports whether t falls inside the configured quiet window.
// An overnight window like 22:00-07:00 wraps across midnight: 23:30 and 05:00
// are inside, 12:00 is not. Start == end means no window.
func (p Preferences) InQuietHours(t time.Time) bool {
	if p.QuietHoursStart == "" || p.QuietHoursEnd == "" || p.QuietHoursStart == p.QuietHoursEnd {
		return false
	}

	start, err := minuteOfDay(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := minuteOfDay(p.QuietHoursEnd)
	if err != nil {
		return false
	}

	now := t.Hour()*60 + t.Minute()
	if start < end {
		return now >= start && now < end
	}
	// Overnight window.
	return now >= start || now < end
}

func minuteOfDay(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day out of range: %s", hhmm)
	}
	return h*60 + m, nil
}

// Stats accumulate per-token delivery outcomes. Sent counts every attempt
// regardless of outcome; ConsecutiveFailures resets on any success.
type Stats struct {
	Sent                int64      `json:"sent" bson:"sent"`
	Delivered           int64      `json:"delivered" bson:"delivered"`
	Failed              int64      `json:"failed" bson:"failed"`
	ConsecutiveFailures int        `json:"consecutive_failures" bson:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty" bson:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty" bson:"last_failure_at,omitempty"`
}

// Token is one (worker, app install) push address. The provider token string
// is globally unique; a worker may hold several active tokens under the
// default multi-device policy.
type Token struct {
	ID          string      `json:"id" bson:"_id"`
	WorkerID    string      `json:"worker_id" bson:"worker_id"`
	Token       string      `json:"token" bson:"token"`
	Platform    Platform    `json:"platform" bson:"platform"`
	AppVersion  string      `json:"app_version" bson:"app_version"`
	OSVersion   string      `json:"os_version" bson:"os_version"`
	DeviceID    string      `json:"device_id,omitempty" bson:"device_id,omitempty"`
	Active      bool        `json:"active" bson:"active"`
	LastSeenAt  time.Time   `json:"last_seen_at" bson:"last_seen_at"`
	Preferences Preferences `json:"preferences" bson:"preferences"`
	Stats       Stats       `json:"stats" bson:"stats"`
	CreatedAt   time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" bson:"updated_at"`
}
