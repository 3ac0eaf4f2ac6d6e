package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/logger"
)

// OptimizeReport summarizes one optimization sweep.
type OptimizeReport struct {
	Skipped       bool  `json:"skipped"` // another replica holds the lock
	Requeued      int   `json:"requeued"`
	PurgedTokens  int64 `json:"purged_tokens"`
	PurgedMetrics int64 `json:"purged_metrics"`
	PrunedStuck   int   `json:"pruned_stuck"`
}

// Optimize runs the maintenance sweep: re-queue stale failed notifications
// up to the per-sweep cap, purge dead device tokens, expire old metric
// records, and drop stuck in-flight markers. When a locker is configured
// only one replica runs the sweep at a time.
func (m *Monitor) Optimize(ctx context.Context) (OptimizeReport, error) {
	var report OptimizeReport

	if m.locker != nil {
		acquired, err := m.locker.TryLock(ctx)
		if err != nil {
			return report, fmt.Errorf("monitor: sweep lock failed: %w", err)
		}
		if !acquired {
			report.Skipped = true
			m.log.InfoContext(ctx, "optimization sweep skipped, lock held elsewhere")
			return report, nil
		}
		defer func() {
			if err := m.locker.Unlock(ctx); err != nil {
				m.log.WarnContext(ctx, "failed to release sweep lock", logger.Error(err))
			}
		}()
	}

	now := m.clock()

	stale, err := m.store.FindRequeueable(ctx, m.cfg.MaxAttempts, now.Add(-m.cfg.RequeueIdle), m.cfg.RequeueLimit)
	if err != nil {
		return report, fmt.Errorf("monitor: requeue scan failed: %w", err)
	}
	for _, n := range stale {
		if err := m.store.Requeue(ctx, n.ID, m.cfg.MaxAttempts); err != nil {
			// Lost a race with a concurrent attempt; skip the record.
			m.log.WarnContext(ctx, "requeue skipped", logger.NotificationID(n.ID), logger.Error(err))
			continue
		}
		report.Requeued++
		m.audit.Record(ctx, auditlog.Record{
			Event:          auditlog.EventNotificationQueued,
			NotificationID: n.ID,
			WorkerID:       n.RecipientID,
			Metadata:       map[string]any{"attempts": n.Attempts},
		})
	}

	if report.PurgedTokens, err = m.registry.Cleanup(ctx, m.cfg.InactiveDays); err != nil {
		return report, err
	}

	if report.PurgedMetrics, err = m.auditSt.PurgeOlderThan(ctx, auditlog.EventPerformanceMetric, now.Add(-m.cfg.MetricRetention)); err != nil {
		return report, fmt.Errorf("monitor: metric purge failed: %w", err)
	}

	report.PrunedStuck = m.pruneInflight(now)

	m.audit.Record(ctx, auditlog.Record{
		Event: auditlog.EventOptimizationSweep,
		Metadata: map[string]any{
			"requeued":       report.Requeued,
			"purged_tokens":  report.PurgedTokens,
			"purged_metrics": report.PurgedMetrics,
			"pruned_stuck":   report.PrunedStuck,
		},
	})
	m.log.InfoContext(ctx, "optimization sweep finished",
		logger.Count(report.Requeued), logger.Duration(time.Since(now)))
	return report, nil
}
