package devices_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shiftflow/pushkit/pkg/devices"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestPreferences_InQuietHours(t *testing.T) {
	t.Parallel()

	overnight := devices.Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	daytime := devices.Preferences{QuietHoursStart: "09:00", QuietHoursEnd: "17:00"}

	tests := []struct {
		name  string
		prefs devices.Preferences
		now   time.Time
		want  bool
	}{
		{"overnight late evening", overnight, at(23, 30), true},
		{"overnight early morning", overnight, at(5, 0), true},
		{"overnight midday", overnight, at(12, 0), false},
		{"overnight at start", overnight, at(22, 0), true},
		{"overnight at end", overnight, at(7, 0), false},
		{"daytime inside", daytime, at(12, 0), true},
		{"daytime before", daytime, at(8, 59), false},
		{"daytime at end", daytime, at(17, 0), false},
		{"no window configured", devices.Preferences{}, at(3, 0), false},
		{"start equals end", devices.Preferences{QuietHoursStart: "08:00", QuietHoursEnd: "08:00"}, at(8, 0), false},
		{"malformed window", devices.Preferences{QuietHoursStart: "25:99", QuietHoursEnd: "07:00"}, at(3, 0), false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.prefs.InQuietHours(tc.now))
		})
	}
}

func TestDefaultPreferences(t *testing.T) {
	t.Parallel()

	prefs := devices.DefaultPreferences()
	assert.True(t, prefs.PushEnabled)
	assert.True(t, prefs.CriticalBypass)
	assert.False(t, prefs.InQuietHours(at(3, 0)))
}
