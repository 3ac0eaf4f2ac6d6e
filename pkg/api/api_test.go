package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftflow/pushkit/pkg/api"
	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/delivery"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/monitor"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/provider"
	"github.com/shiftflow/pushkit/pkg/ratelimit"
	"github.com/shiftflow/pushkit/pkg/resilience"
)

type fixture struct {
	router  http.Handler
	store   *notifications.MemoryStorage
	devices *devices.MemoryStorage
	sender  *provider.FakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	auditStore := auditlog.NewMemoryStorage()
	audit := auditlog.NewLogger(auditStore)

	deviceStore := devices.NewMemoryStorage()
	registry := devices.NewRegistry(deviceStore, audit)

	store := notifications.NewMemoryStorage()
	sender := provider.NewFakeSender()
	breakers := resilience.NewBreakerRegistry()
	executor := resilience.NewExecutor(breakers, resilience.WithBackoff(resilience.FixedBackoff{}))
	engine := delivery.NewEngine(store, registry, sender, executor, audit)

	mon := monitor.New(monitor.DefaultConfig(), store, registry, auditStore, audit, breakers)

	handler := api.New(registry, engine, mon, auditlog.NewReader(auditStore), store)
	return &fixture{
		router:  handler.Router(),
		store:   store,
		devices: deviceStore,
		sender:  sender,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) registerDevice(t *testing.T, workerID, token string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/devices", map[string]any{
		"worker_id":   workerID,
		"token":       token,
		"platform":    "android",
		"app_version": "3.2.0",
		"os_version":  "14",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func notificationBody(recipients ...string) map[string]any {
	return map[string]any{
		"type":          "task_update",
		"priority":      "HIGH",
		"title":         "Shift changed",
		"body":          "Your Tuesday shift moved to 14:00.",
		"sender_id":     "scheduler",
		"recipient_ids": recipients,
	}
}

type createResponse struct {
	Created       int                          `json:"created"`
	Skipped       int                          `json:"skipped"`
	Accepted      int                          `json:"accepted"`
	Failed        int                          `json:"failed"`
	Notifications []notifications.Notification `json:"notifications"`
}

func TestHandler_RegisterDevice(t *testing.T) {
	t.Parallel()

	t.Run("registers and returns the token", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/devices", map[string]any{
			"worker_id":   "w-1",
			"token":       "tok-1",
			"platform":    "ios",
			"app_version": "3.2.0",
			"os_version":  "17.5",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var tok devices.Token
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
		assert.Equal(t, "tok-1", tok.Token)
		assert.True(t, tok.Active)
	})

	t.Run("rejects invalid input with field errors", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/devices", map[string]any{
			"worker_id": "w-1",
			"token":     "tok-1",
			"platform":  "blackberry",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "fields")
	})

	t.Run("rejects unknown json fields", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/devices", map[string]any{
			"worker_id": "w-1",
			"tokenn":    "typo",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing content type", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewBufferString("{}"))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_DeactivateDevice(t *testing.T) {
	t.Parallel()

	t.Run("deactivates a registered token", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")

		rec := f.do(t, http.MethodDelete, "/devices/tok-1", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		tok, err := f.devices.FindByToken(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.False(t, tok.Active)
	})

	t.Run("unknown token returns 404", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodDelete, "/devices/nope", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_CreateNotification(t *testing.T) {
	t.Parallel()

	t.Run("creates and delivers", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")

		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp createResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Created)
		assert.Equal(t, 1, resp.Accepted)
		require.Len(t, resp.Notifications, 1)
		assert.Equal(t, notifications.StatusSent, resp.Notifications[0].Status)
		assert.Len(t, f.sender.Sent(), 1)
	})

	t.Run("fans out to every recipient", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")
		f.registerDevice(t, "w-2", "tok-2")

		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1", "w-2", "w-ghost"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp createResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Created)
		assert.Equal(t, 1, resp.Skipped)
		assert.Equal(t, 2, resp.Accepted)
		require.Len(t, resp.Notifications, 3)

		recipients := map[string]notifications.Status{}
		for _, n := range resp.Notifications {
			recipients[n.RecipientID] = n.Status
		}
		assert.Equal(t, notifications.StatusSent, recipients["w-1"])
		assert.Equal(t, notifications.StatusSent, recipients["w-2"])
		assert.Equal(t, notifications.StatusPending, recipients["w-ghost"])
	})

	t.Run("no active device leaves it pending", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-ghost"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp createResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Skipped)
		require.Len(t, resp.Notifications, 1)
		assert.Equal(t, notifications.StatusPending, resp.Notifications[0].Status)
	})

	t.Run("empty recipient list returns 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/notifications", notificationBody())
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown priority returns 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		body := notificationBody("w-1")
		body["priority"] = "URGENT"
		rec := f.do(t, http.MethodPost, "/notifications", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid payload returns field errors", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		body := notificationBody("w-1")
		body["type"] = "carrier_pigeon"
		body["title"] = ""
		rec := f.do(t, http.MethodPost, "/notifications", body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("open circuit returns 503", func(t *testing.T) {
		t.Parallel()

		auditStore := auditlog.NewMemoryStorage()
		audit := auditlog.NewLogger(auditStore)
		deviceStore := devices.NewMemoryStorage()
		registry := devices.NewRegistry(deviceStore, audit)
		store := notifications.NewMemoryStorage()
		breakers := resilience.NewBreakerRegistry()
		executor := resilience.NewExecutor(breakers, resilience.WithBackoff(resilience.FixedBackoff{}))
		engine := delivery.NewEngine(store, registry, provider.NewFakeSender(), executor, audit)
		mon := monitor.New(monitor.DefaultConfig(), store, registry, auditStore, audit, breakers)
		handler := api.New(registry, engine, mon, auditlog.NewReader(auditStore), store)
		f := &fixture{router: handler.Router(), store: store, devices: deviceStore}

		f.registerDevice(t, "w-1", "tok-1")
		breaker := breakers.Get(delivery.ProviderDependency)
		for i := 0; i < 5; i++ {
			breaker.RecordFailure()
		}

		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandler_GetNotification(t *testing.T) {
	t.Parallel()

	t.Run("returns the stored notification", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")
		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp createResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Notifications, 1)

		got := f.do(t, http.MethodGet, "/notifications/"+resp.Notifications[0].ID, nil)
		require.Equal(t, http.StatusOK, got.Code)

		var n notifications.Notification
		require.NoError(t, json.Unmarshal(got.Body.Bytes(), &n))
		assert.Equal(t, resp.Notifications[0].ID, n.ID)
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/notifications/missing", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_ConfirmDelivered(t *testing.T) {
	t.Parallel()

	t.Run("moves a sent notification to delivered", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")
		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp createResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Notifications, 1)

		ack := f.do(t, http.MethodPost, fmt.Sprintf("/notifications/%s/delivered", resp.Notifications[0].ID), nil)
		require.Equal(t, http.StatusNoContent, ack.Code)

		n, err := f.store.Get(context.Background(), resp.Notifications[0].ID)
		require.NoError(t, err)
		assert.Equal(t, notifications.StatusDelivered, n.Status)
	})

	t.Run("acking a failed notification returns 409", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")
		f.sender.FailWith("tok-1", provider.CodeInvalidToken, 1)

		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp createResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Notifications, 1)
		require.Equal(t, notifications.StatusFailed, resp.Notifications[0].Status)
		assert.Equal(t, 1, resp.Failed)

		ack := f.do(t, http.MethodPost, fmt.Sprintf("/notifications/%s/delivered", resp.Notifications[0].ID), nil)
		require.Equal(t, http.StatusConflict, ack.Code)
	})
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report monitor.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Healthy)
}

func TestHandler_Stats(t *testing.T) {
	t.Parallel()

	t.Run("returns stats for the requested window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.registerDevice(t, "w-1", "tok-1")
		rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
		require.Equal(t, http.StatusCreated, rec.Code)

		got := f.do(t, http.MethodGet, "/stats?hours=48", nil)
		require.Equal(t, http.StatusOK, got.Code)

		var stats monitor.PerformanceStats
		require.NoError(t, json.Unmarshal(got.Body.Bytes(), &stats))
		assert.Equal(t, 48, stats.WindowHours)
		assert.Equal(t, int64(1), stats.Delivered)
	})

	t.Run("rejects a non-numeric window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/stats?hours=soon", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_WorkerHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.registerDevice(t, "w-1", "tok-1")
	rec := f.do(t, http.MethodPost, "/notifications", notificationBody("w-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	got := f.do(t, http.MethodGet, "/workers/w-1/history", nil)
	require.Equal(t, http.StatusOK, got.Code)

	var records []auditlog.Record
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &records))
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.Equal(t, "w-1", rec.WorkerID)
	}
}

func TestHandler_ResetBreaker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/admin/breakers/push-provider/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandler_RateLimit(t *testing.T) {
	t.Parallel()

	auditStore := auditlog.NewMemoryStorage()
	audit := auditlog.NewLogger(auditStore)
	deviceStore := devices.NewMemoryStorage()
	registry := devices.NewRegistry(deviceStore, audit)
	store := notifications.NewMemoryStorage()
	breakers := resilience.NewBreakerRegistry()
	executor := resilience.NewExecutor(breakers, resilience.WithBackoff(resilience.FixedBackoff{}))
	engine := delivery.NewEngine(store, registry, provider.NewFakeSender(), executor, audit)
	mon := monitor.New(monitor.DefaultConfig(), store, registry, auditStore, audit, breakers)

	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 2, time.Minute)
	require.NoError(t, err)

	handler := api.New(registry, engine, mon, auditlog.NewReader(auditStore), store,
		api.WithRateLimit(limiter))
	f := &fixture{router: handler.Router(), store: store, devices: deviceStore}

	f.registerDevice(t, "w-1", "tok-1")
	f.registerDevice(t, "w-1", "tok-2")

	rec := f.do(t, http.MethodPost, "/devices", map[string]any{
		"worker_id":   "w-1",
		"token":       "tok-3",
		"platform":    "android",
		"app_version": "3.2.0",
		"os_version":  "14",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	health := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, health.Code)
}

func TestHandler_Liveness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ALIVE")
}
