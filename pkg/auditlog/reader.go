package auditlog

import (
	"context"
	"time"
)

// Reader answers read-side questions over the audit trail.
type Reader struct {
	storage Storage
}

// NewReader creates a reader on top of the given storage.
func NewReader(storage Storage) *Reader {
	if storage == nil {
		panic("auditlog: storage cannot be nil")
	}
	return &Reader{storage: storage}
}

// Find retrieves records matching the criteria, newest first.
func (r *Reader) Find(ctx context.Context, criteria Criteria) ([]Record, error) {
	return r.storage.Query(ctx, criteria)
}

// HistoryForWorker returns the worker's delivery history limited to the
// most recent limit records.
func (r *Reader) HistoryForWorker(ctx context.Context, workerID string, limit int) ([]Record, error) {
	return r.storage.Query(ctx, Criteria{WorkerID: workerID, Limit: limit})
}

// SuccessRate computes delivered / (delivered + failed) over the window
// starting at since. Returns 1 when there were no attempts, so an idle
// system never trips the low-success-rate alert.
func (r *Reader) SuccessRate(ctx context.Context, since time.Time) (float64, error) {
	delivered, err := r.storage.CountByEvent(ctx, EventDeliveryDelivered, since)
	if err != nil {
		return 0, err
	}
	failed, err := r.storage.CountByEvent(ctx, EventDeliveryFailed, since)
	if err != nil {
		return 0, err
	}

	total := delivered + failed
	if total == 0 {
		return 1, nil
	}
	return float64(delivered) / float64(total), nil
}

// AverageDeliveryTime averages delivery durations over the window starting
// at since.
func (r *Reader) AverageDeliveryTime(ctx context.Context, since time.Time) (time.Duration, error) {
	return r.storage.AverageDuration(ctx, EventDeliveryDelivered, since)
}
