package auditlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftflow/pushkit/pkg/logger"
)

// Logger writes audit records without ever failing the caller. Audit is a
// side channel: a storage outage must not break delivery, so write errors
// are logged and swallowed.
type Logger struct {
	storage Storage
	log     *slog.Logger
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithLogger sets the slog logger used to report storage failures.
func WithLogger(log *slog.Logger) LoggerOption {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLogger creates an audit logger on top of the given storage.
func NewLogger(storage Storage, opts ...LoggerOption) *Logger {
	if storage == nil {
		panic("auditlog: storage cannot be nil")
	}
	l := &Logger{
		storage: storage,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stamps and stores the record. ID and CreatedAt are filled in when
// absent. Storage failures are logged, never returned.
func (l *Logger) Record(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := rec.Validate(); err != nil {
		l.log.ErrorContext(ctx, "dropping invalid audit record", logger.Error(err))
		return
	}

	if err := l.storage.Append(ctx, rec); err != nil {
		l.log.ErrorContext(ctx, "failed to store audit record",
			logger.Event(string(rec.Event)), logger.Error(err))
	}
}
