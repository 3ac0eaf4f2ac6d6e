package devices_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/validator"
)

func newRegistry(t *testing.T, opts ...devices.RegistryOption) (*devices.Registry, *devices.MemoryStorage, *auditlog.MemoryStorage) {
	t.Helper()
	storage := devices.NewMemoryStorage()
	auditStorage := auditlog.NewMemoryStorage()
	reg := devices.NewRegistry(storage, auditlog.NewLogger(auditStorage), opts...)
	return reg, storage, auditStorage
}

func validInput() devices.RegisterInput {
	return devices.RegisterInput{
		WorkerID:   "worker-1",
		Token:      "fcm-token-abc:APA91_example.token-value",
		Platform:   "android",
		AppVersion: "2.4.0",
		OSVersion:  "14",
	}
}

func TestRegistry_RegisterOrUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates new token with defaults", func(t *testing.T) {
		t.Parallel()
		reg, _, auditStorage := newRegistry(t)

		tok, err := reg.RegisterOrUpdate(ctx, validInput())
		require.NoError(t, err)
		assert.NotEmpty(t, tok.ID)
		assert.True(t, tok.Active)
		assert.True(t, tok.Preferences.PushEnabled)
		assert.WithinDuration(t, time.Now(), tok.LastSeenAt, time.Second)

		recs, err := auditStorage.Query(ctx, auditlog.Criteria{Event: auditlog.EventDeviceRegistered})
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("repeated registration is idempotent", func(t *testing.T) {
		t.Parallel()
		reg, storage, _ := newRegistry(t)

		first, err := reg.RegisterOrUpdate(ctx, validInput())
		require.NoError(t, err)

		in := validInput()
		in.AppVersion = "2.5.0"
		second, err := reg.RegisterOrUpdate(ctx, in)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "2.5.0", second.AppVersion)

		total, _, err := storage.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("registration reactivates a deactivated token", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry(t)

		tok, err := reg.RegisterOrUpdate(ctx, validInput())
		require.NoError(t, err)
		require.NoError(t, reg.Deactivate(ctx, tok.Token, "test"))

		tok, err = reg.RegisterOrUpdate(ctx, validInput())
		require.NoError(t, err)
		assert.True(t, tok.Active)
	})

	t.Run("rejects invalid input with all violations", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry(t)

		_, err := reg.RegisterOrUpdate(ctx, devices.RegisterInput{
			Token:    "has spaces in it",
			Platform: "windows",
		})
		require.Error(t, err)

		verrs := validator.ExtractValidationErrors(err)
		require.NotNil(t, verrs)
		assert.True(t, verrs.Has("worker_id"))
		assert.True(t, verrs.Has("token"))
		assert.True(t, verrs.Has("platform"))
	})

	t.Run("explicit preferences override defaults", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry(t)

		in := validInput()
		in.Preferences = &devices.Preferences{
			PushEnabled:     true,
			QuietHoursStart: "22:00",
			QuietHoursEnd:   "07:00",
		}
		tok, err := reg.RegisterOrUpdate(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "22:00", tok.Preferences.QuietHoursStart)
		assert.False(t, tok.Preferences.CriticalBypass)
	})
}

func TestRegistry_SingleActiveDevicePolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _ := newRegistry(t, devices.WithSingleActiveDevice())

	in := validInput()
	_, err := reg.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)

	in.Token = "fcm-token-second-device"
	_, err = reg.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)

	active, err := reg.FindActiveForWorker(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fcm-token-second-device", active[0].Token)
}

func TestRegistry_MultiDeviceDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _ := newRegistry(t)

	in := validInput()
	_, err := reg.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)

	in.Token = "fcm-token-second-device"
	_, err = reg.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)

	active, err := reg.FindActiveForWorker(ctx, "worker-1")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRegistry_CanReceive(t *testing.T) {
	t.Parallel()

	reg, _, _ := newRegistry(t)
	night := at(23, 30)
	noon := at(12, 0)

	quietTok := &devices.Token{
		Active: true,
		Preferences: devices.Preferences{
			PushEnabled:     true,
			QuietHoursStart: "22:00",
			QuietHoursEnd:   "07:00",
			CriticalBypass:  true,
		},
	}

	tests := []struct {
		name     string
		tok      *devices.Token
		priority notifications.Priority
		now      time.Time
		want     bool
	}{
		{"nil token", nil, notifications.PriorityHigh, noon, false},
		{"inactive token", &devices.Token{Active: false, Preferences: devices.DefaultPreferences()}, notifications.PriorityCritical, noon, false},
		{"push disabled", &devices.Token{Active: true, Preferences: devices.Preferences{PushEnabled: false}}, notifications.PriorityCritical, noon, false},
		{"active outside quiet hours", quietTok, notifications.PriorityLow, noon, true},
		{"quiet hours block normal", quietTok, notifications.PriorityNormal, night, false},
		{"quiet hours block high", quietTok, notifications.PriorityHigh, night, false},
		{"critical bypasses quiet hours", quietTok, notifications.PriorityCritical, night, true},
		{
			"critical without bypass blocked",
			&devices.Token{Active: true, Preferences: devices.Preferences{
				PushEnabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "07:00",
			}},
			notifications.PriorityCritical, night, false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, reg.CanReceive(tc.tok, tc.priority, tc.now))
		})
	}
}

func TestRegistry_FailureLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("five consecutive failures deactivate the token", func(t *testing.T) {
		t.Parallel()
		reg, storage, auditStorage := newRegistry(t)

		tok, err := reg.RegisterOrUpdate(ctx, validInput())
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			require.NoError(t, reg.RecordFailure(ctx, tok.Token))
		}
		got, err := storage.FindByToken(ctx, tok.Token)
		require.NoError(t, err)
		assert.True(t, got.Active)

		require.NoError(t, reg.RecordFailure(ctx, tok.Token))
		got, err = storage.FindByToken(ctx, tok.Token)
		require.NoError(t, err)
		assert.False(t, got.Active)
		assert.Equal(t, 5, got.Stats.ConsecutiveFailures)

		recs, err := auditStorage.Query(ctx, auditlog.Criteria{Event: auditlog.EventDeviceDeactivated})
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("success resets the consecutive counter", func(t *testing.T) {
		t.Parallel()
		reg, storage, _ := newRegistry(t)

		tok, err := reg.RegisterOrUpdate(ctx, validInput())
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			require.NoError(t, reg.RecordFailure(ctx, tok.Token))
		}
		require.NoError(t, reg.RecordSuccess(ctx, tok.Token))
		for i := 0; i < 4; i++ {
			require.NoError(t, reg.RecordFailure(ctx, tok.Token))
		}

		got, err := storage.FindByToken(ctx, tok.Token)
		require.NoError(t, err)
		assert.True(t, got.Active)
		assert.Equal(t, 4, got.Stats.ConsecutiveFailures)
		assert.Equal(t, int64(9), got.Stats.Sent)
		assert.Equal(t, int64(1), got.Stats.Delivered)
		assert.Equal(t, int64(8), got.Stats.Failed)
	})
}

func TestRegistry_Cleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, storage, _ := newRegistry(t)

	fresh, err := reg.RegisterOrUpdate(ctx, validInput())
	require.NoError(t, err)

	stale := validInput()
	stale.Token = "fcm-token-stale-device"
	staleTok, err := reg.RegisterOrUpdate(ctx, stale)
	require.NoError(t, err)
	staleTok.LastSeenAt = time.Now().AddDate(0, 0, -120)
	require.NoError(t, storage.Upsert(ctx, staleTok))

	removed, err := reg.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = storage.FindByToken(ctx, fresh.Token)
	assert.NoError(t, err)
	_, err = storage.FindByToken(ctx, staleTok.Token)
	assert.ErrorIs(t, err, devices.ErrTokenNotFound)
}
