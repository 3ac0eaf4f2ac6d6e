package notifications_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/provider"
	"github.com/shiftflow/pushkit/pkg/validator"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to notifications.Status }{
		{notifications.StatusPending, notifications.StatusSent},
		{notifications.StatusPending, notifications.StatusFailed},
		{notifications.StatusSent, notifications.StatusDelivered},
		{notifications.StatusSent, notifications.StatusFailed},
		{notifications.StatusFailed, notifications.StatusPending},
	}
	for _, tc := range allowed {
		tc := tc
		assert.True(t, notifications.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to notifications.Status }{
		// Delivery acknowledgements only apply to messages the provider accepted.
		{notifications.StatusPending, notifications.StatusDelivered},
		{notifications.StatusSent, notifications.StatusPending},
		{notifications.StatusDelivered, notifications.StatusPending},
		{notifications.StatusDelivered, notifications.StatusFailed},
		{notifications.StatusDelivered, notifications.StatusSent},
		{notifications.StatusFailed, notifications.StatusSent},
		{notifications.StatusFailed, notifications.StatusDelivered},
	}
	for _, tc := range forbidden {
		tc := tc
		assert.False(t, notifications.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPriority_AttemptBudget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, notifications.PriorityLow.AttemptBudget())
	assert.Equal(t, 2, notifications.PriorityNormal.AttemptBudget())
	assert.Equal(t, 3, notifications.PriorityHigh.AttemptBudget())
	assert.Equal(t, 3, notifications.PriorityCritical.AttemptBudget())
}

func TestUrgencyFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, provider.UrgencyNormal, notifications.UrgencyFor(notifications.PriorityLow))
	assert.Equal(t, provider.UrgencyNormal, notifications.UrgencyFor(notifications.PriorityNormal))
	assert.Equal(t, provider.UrgencyHigh, notifications.UrgencyFor(notifications.PriorityHigh))
	assert.Equal(t, provider.UrgencyHigh, notifications.UrgencyFor(notifications.PriorityCritical))
}

func TestValidateChannelConfig(t *testing.T) {
	t.Parallel()

	require.NoError(t, notifications.ValidateChannelConfig())

	for _, typ := range notifications.Types {
		cfg, err := notifications.ChannelFor(typ)
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.ChannelID)
		assert.NotEmpty(t, cfg.Color)
	}

	_, err := notifications.ChannelFor(notifications.Type("bogus"))
	assert.Error(t, err)
}

func TestNotification_New(t *testing.T) {
	t.Parallel()

	n := notifications.New(notifications.TypeTaskUpdate, notifications.PriorityHigh, "Shift changed", "Your shift moved to 14:00", "mgr-1", "worker-1")
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, notifications.StatusPending, n.Status)
	assert.Zero(t, n.Attempts)
	assert.Nil(t, n.LastAttemptAt)
	require.NoError(t, n.Validate())
}

func TestNotification_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*notifications.Notification)
		field  string
	}{
		{"missing title", func(n *notifications.Notification) { n.Title = "" }, "title"},
		{"missing body", func(n *notifications.Notification) { n.Body = "" }, "body"},
		{"missing recipient", func(n *notifications.Notification) { n.RecipientID = "" }, "recipient_id"},
		{"unknown type", func(n *notifications.Notification) { n.Type = "sms" }, "type"},
		{"title too long", func(n *notifications.Notification) { n.Title = strings.Repeat("x", 201) }, "title"},
		{"body too long", func(n *notifications.Notification) { n.Body = strings.Repeat("x", 4001) }, "body"},
		{"priority out of range", func(n *notifications.Notification) { n.Priority = 42 }, "priority"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := notifications.New(notifications.TypeAnnouncement, notifications.PriorityNormal, "Title", "Body", "s", "r")
			tc.mutate(n)

			err := n.Validate()
			require.Error(t, err)
			verrs := validator.ExtractValidationErrors(err)
			require.NotNil(t, verrs)
			assert.True(t, verrs.Has(tc.field))
		})
	}
}
