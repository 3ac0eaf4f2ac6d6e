package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/resilience"
)

// Alert names the conditions the monitor raises.
type Alert string

const (
	AlertHighLoad       Alert = "HIGH_LOAD"
	AlertHighQueueDepth Alert = "HIGH_QUEUE_DEPTH"
	AlertSlowDelivery   Alert = "SLOW_DELIVERY"
	AlertLowSuccessRate Alert = "LOW_SUCCESS_RATE"
	AlertHealthFailed   Alert = "HEALTH_CHECK_FAILED"
)

// alert writes one performance.alert audit record and a warning log line.
func (m *Monitor) alert(ctx context.Context, a Alert, meta map[string]any) {
	if meta == nil {
		meta = make(map[string]any)
	}
	meta["alert"] = string(a)
	m.audit.Record(ctx, auditlog.Record{
		Event:    auditlog.EventPerformanceAlert,
		Metadata: meta,
	})
	m.log.WarnContext(ctx, "monitor alert raised", logger.Event(string(a)))
}

// checkLoad samples the active-worker census, the fresh pending set, and
// the retry queue against their watermarks. Active workers are devices seen
// within the load window; the queue is retryable FAILED work attempted
// within the queue window.
func (m *Monitor) checkLoad(ctx context.Context) {
	now := m.clock()

	activeWorkers, err := m.registry.ActiveSince(ctx, now.Add(-m.cfg.LoadWindow))
	if err != nil {
		m.log.ErrorContext(ctx, "worker census failed", logger.Error(err))
		return
	}

	pending, err := m.store.CountByStatusSince(ctx,
		[]notifications.Status{notifications.StatusPending, notifications.StatusSent},
		now.Add(-m.cfg.LoadWindow))
	if err != nil {
		m.log.ErrorContext(ctx, "load check failed", logger.Error(err))
		return
	}

	queue, err := m.store.CountRetryQueue(ctx, m.cfg.MaxAttempts, now.Add(-m.cfg.QueueWindow))
	if err != nil {
		m.log.ErrorContext(ctx, "queue depth check failed", logger.Error(err))
		return
	}

	m.audit.Record(ctx, auditlog.Record{
		Event: auditlog.EventPerformanceMetric,
		Metadata: map[string]any{
			"metric":         "load",
			"active_workers": activeWorkers,
			"pending":        pending,
			"queue_depth":    queue,
		},
	})

	watermark := int64(float64(m.cfg.Capacity) * m.cfg.HighLoadRatio)
	if activeWorkers > watermark {
		m.alert(ctx, AlertHighLoad, map[string]any{"active_workers": activeWorkers, "watermark": watermark})
	}
	if queue > m.cfg.QueueDepthLimit {
		m.alert(ctx, AlertHighQueueDepth, map[string]any{"queue_depth": queue, "limit": m.cfg.QueueDepthLimit})
	}
}

// collectPerformance aggregates the trailing hour's delivery success rate
// and average delivery time into a metric record, alerting below the floor.
func (m *Monitor) collectPerformance(ctx context.Context) {
	since := m.clock().Add(-time.Hour)

	rate, err := m.reader.SuccessRate(ctx, since)
	if err != nil {
		m.log.ErrorContext(ctx, "performance collection failed", logger.Error(err))
		return
	}
	avg, err := m.reader.AverageDeliveryTime(ctx, since)
	if err != nil {
		m.log.ErrorContext(ctx, "performance collection failed", logger.Error(err))
		return
	}

	m.audit.Record(ctx, auditlog.Record{
		Event: auditlog.EventPerformanceMetric,
		Metadata: map[string]any{
			"metric":          "performance",
			"success_rate":    rate,
			"avg_delivery_ms": avg.Milliseconds(),
			"window_hours":    1,
		},
	})

	if rate < m.cfg.MinSuccessRate {
		m.alert(ctx, AlertLowSuccessRate, map[string]any{"success_rate": rate, "floor": m.cfg.MinSuccessRate})
	}
	if avg > m.cfg.SlowDeliveryLimit {
		m.alert(ctx, AlertSlowDelivery, map[string]any{"avg_delivery_ms": avg.Milliseconds()})
	}
}

// checkHealth probes every registered dependency and runs a validate-only
// notification construction as a model self-test.
func (m *Monitor) checkHealth(ctx context.Context) {
	report := m.GetHealth(ctx)
	if report.Healthy {
		m.log.DebugContext(ctx, "health check passed", logger.Count(len(report.Checks)))
		return
	}
	failing := make(map[string]any)
	for name, status := range report.Checks {
		if status != "ok" {
			failing[name] = status
			m.log.ErrorContext(ctx, "dependency unhealthy",
				logger.Dependency(name), slog.String("status", status))
		}
	}
	m.alert(ctx, AlertHealthFailed, map[string]any{"checks": failing})
}

// DeviceCounts is the token census in a health report.
type DeviceCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// HealthReport is the monitor's snapshot of subsystem health.
type HealthReport struct {
	Healthy  bool                               `json:"healthy"`
	Checks   map[string]string                  `json:"checks"`
	Breakers map[string]resilience.CircuitStats `json:"breakers"`
	Devices  DeviceCounts                       `json:"devices"`
	InFlight int                                `json:"in_flight"`
}

// GetHealth runs the dependency probes and gathers breaker and device state.
func (m *Monitor) GetHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		Healthy:  true,
		Checks:   make(map[string]string, len(m.health)+1),
		Breakers: m.breakers.Stats(),
		InFlight: m.InFlight(),
	}

	for name, probe := range m.health {
		if err := probe(ctx); err != nil {
			report.Checks[name] = err.Error()
			report.Healthy = false
			continue
		}
		report.Checks[name] = "ok"
	}

	// Model self-test: a minimal notification must validate.
	probe := notifications.New(notifications.TypeAnnouncement, notifications.PriorityLow, "health probe", "health probe", "monitor", "monitor")
	if err := probe.Validate(); err != nil {
		report.Checks["notification_model"] = err.Error()
		report.Healthy = false
	} else {
		report.Checks["notification_model"] = "ok"
	}

	total, activeDevices, err := m.registry.Counts(ctx)
	if err != nil {
		report.Checks["device_registry"] = err.Error()
		report.Healthy = false
	} else {
		report.Checks["device_registry"] = "ok"
		report.Devices = DeviceCounts{Total: total, Active: activeDevices}
	}

	return report
}

// PerformanceStats is the read-side performance view served to operators.
type PerformanceStats struct {
	WindowHours     int           `json:"window_hours"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDelivery time.Duration `json:"average_delivery"`
	Delivered       int64         `json:"delivered"`
	Failed          int64         `json:"failed"`
	Skipped         int64         `json:"skipped"`
	QueueDepth      int64         `json:"queue_depth"`
}

// GetPerformanceStats aggregates delivery outcomes over the trailing window.
func (m *Monitor) GetPerformanceStats(ctx context.Context, hours int) (PerformanceStats, error) {
	if hours <= 0 {
		hours = 24
	}
	now := m.clock()
	since := now.Add(-time.Duration(hours) * time.Hour)

	stats := PerformanceStats{WindowHours: hours}

	var err error
	if stats.SuccessRate, err = m.reader.SuccessRate(ctx, since); err != nil {
		return stats, err
	}
	if stats.AverageDelivery, err = m.reader.AverageDeliveryTime(ctx, since); err != nil {
		return stats, err
	}
	if stats.Delivered, err = m.auditSt.CountByEvent(ctx, auditlog.EventDeliveryDelivered, since); err != nil {
		return stats, err
	}
	if stats.Failed, err = m.auditSt.CountByEvent(ctx, auditlog.EventDeliveryFailed, since); err != nil {
		return stats, err
	}
	if stats.Skipped, err = m.auditSt.CountByEvent(ctx, auditlog.EventDeliverySkipped, since); err != nil {
		return stats, err
	}
	if stats.QueueDepth, err = m.store.CountRetryQueue(ctx, m.cfg.MaxAttempts, since); err != nil {
		return stats, err
	}
	return stats, nil
}
