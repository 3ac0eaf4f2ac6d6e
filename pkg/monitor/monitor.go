package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/resilience"
)

// Config tunes the monitor's intervals and alert thresholds.
type Config struct {
	LoadInterval        time.Duration `env:"MONITOR_LOAD_INTERVAL" envDefault:"30s"`
	PerformanceInterval time.Duration `env:"MONITOR_PERFORMANCE_INTERVAL" envDefault:"5m"`
	HealthInterval      time.Duration `env:"MONITOR_HEALTH_INTERVAL" envDefault:"60s"`
	UptimeInterval      time.Duration `env:"MONITOR_UPTIME_INTERVAL" envDefault:"1h"`
	OptimizeInterval    time.Duration `env:"MONITOR_OPTIMIZE_INTERVAL" envDefault:"10m"`

	// LoadWindow bounds the active-worker and pending counts in the load
	// tick; QueueWindow bounds the retryable-FAILED count.
	LoadWindow  time.Duration `env:"MONITOR_LOAD_WINDOW" envDefault:"5m"`
	QueueWindow time.Duration `env:"MONITOR_QUEUE_WINDOW" envDefault:"30m"`

	// Capacity is the concurrent active-worker count the deployment is rated
	// for. HighLoadRatio of it trips the load alert.
	Capacity      int     `env:"MONITOR_CAPACITY" envDefault:"1000"`
	HighLoadRatio float64 `env:"MONITOR_HIGH_LOAD_RATIO" envDefault:"0.8"`

	QueueDepthLimit   int64         `env:"MONITOR_QUEUE_DEPTH_LIMIT" envDefault:"200"`
	SlowDeliveryLimit time.Duration `env:"MONITOR_SLOW_DELIVERY_LIMIT" envDefault:"60s"`
	MinSuccessRate    float64       `env:"MONITOR_MIN_SUCCESS_RATE" envDefault:"0.95"`

	// RequeueLimit caps how many FAILED notifications one optimization sweep
	// moves back to PENDING.
	RequeueLimit int           `env:"MONITOR_REQUEUE_LIMIT" envDefault:"100"`
	RequeueIdle  time.Duration `env:"MONITOR_REQUEUE_IDLE" envDefault:"5m"`
	MaxAttempts  int           `env:"MONITOR_MAX_ATTEMPTS" envDefault:"3"`

	InactiveDays    int           `env:"MONITOR_INACTIVE_DAYS" envDefault:"90"`
	MetricRetention time.Duration `env:"MONITOR_METRIC_RETENTION" envDefault:"168h"`
}

// DefaultConfig returns the production defaults without reading the
// environment.
func DefaultConfig() Config {
	return Config{
		LoadInterval:        30 * time.Second,
		PerformanceInterval: 5 * time.Minute,
		HealthInterval:      time.Minute,
		UptimeInterval:      time.Hour,
		OptimizeInterval:    10 * time.Minute,
		LoadWindow:          5 * time.Minute,
		QueueWindow:         30 * time.Minute,
		Capacity:            1000,
		HighLoadRatio:       0.8,
		QueueDepthLimit:     200,
		SlowDeliveryLimit:   time.Minute,
		MinSuccessRate:      0.95,
		RequeueLimit:        100,
		RequeueIdle:         5 * time.Minute,
		MaxAttempts:         3,
		InactiveDays:        90,
		MetricRetention:     7 * 24 * time.Hour,
	}
}

// Locker serializes the optimization sweep across replicas. A redis-backed
// mutex satisfies it in production; nil means single-replica mode.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// HealthFunc probes one named dependency.
type HealthFunc func(ctx context.Context) error

// Monitor runs the periodic supervision loops: load watermarking,
// performance aggregation, dependency health, business-hours uptime
// accounting, and the optimization sweep. It also implements
// delivery.Observer to track in-flight deliveries.
type Monitor struct {
	cfg      Config
	store    notifications.Storage
	registry *devices.Registry
	auditSt  auditlog.Storage
	reader   *auditlog.Reader
	audit    *auditlog.Logger
	breakers *resilience.BreakerRegistry
	locker   Locker
	health   map[string]HealthFunc
	log      *slog.Logger
	clock    func() time.Time

	inflight      sync.Map // notification id -> start time
	uptimeHours   atomic.Int64
	downtimeHours atomic.Int64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLocker guards the optimization sweep with a distributed lock.
func WithLocker(l Locker) Option {
	return func(m *Monitor) { m.locker = l }
}

// WithHealthcheck registers a named dependency probe.
func WithHealthcheck(name string, fn HealthFunc) Option {
	return func(m *Monitor) { m.health[name] = fn }
}

// WithLogger sets the monitor logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// New creates a monitor over the delivery subsystem's storages.
func New(cfg Config, store notifications.Storage, registry *devices.Registry, auditStorage auditlog.Storage, audit *auditlog.Logger, breakers *resilience.BreakerRegistry, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		store:    store,
		registry: registry,
		auditSt:  auditStorage,
		reader:   auditlog.NewReader(auditStorage),
		audit:    audit,
		breakers: breakers,
		health:   make(map[string]HealthFunc),
		log:      slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the five supervision loops and blocks until ctx is cancelled.
// Each loop ticks independently; a slow sweep never delays the health probe.
func (m *Monitor) Run(ctx context.Context) error {
	loops := []struct {
		name     string
		interval time.Duration
		tick     func(context.Context)
	}{
		{"load", m.cfg.LoadInterval, m.checkLoad},
		{"performance", m.cfg.PerformanceInterval, m.collectPerformance},
		{"health", m.cfg.HealthInterval, m.checkHealth},
		{"uptime", m.cfg.UptimeInterval, m.uptimeTick},
		{"optimize", m.cfg.OptimizeInterval, m.optimizeTick},
	}

	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(loop.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					loop.tick(ctx)
				}
			}
		}()
		m.log.Info("monitor loop started",
			logger.Component(loop.name), slog.Duration("interval", loop.interval))
	}

	wg.Wait()
	return ctx.Err()
}

// uptimeTick accounts service availability in whole hours, but only inside
// business hours: a healthy run adds an uptime hour, an unhealthy one a
// downtime hour. Off-hours runs count toward neither.
func (m *Monitor) uptimeTick(ctx context.Context) {
	if !inBusinessHours(m.clock()) {
		return
	}

	report := m.GetHealth(ctx)
	if report.Healthy {
		m.uptimeHours.Add(1)
	} else {
		m.downtimeHours.Add(1)
	}

	m.audit.Record(ctx, auditlog.Record{
		Event: auditlog.EventPerformanceMetric,
		Metadata: map[string]any{
			"metric":         "uptime",
			"healthy":        report.Healthy,
			"uptime_hours":   m.uptimeHours.Load(),
			"downtime_hours": m.downtimeHours.Load(),
		},
	})
}

// UptimeHours returns the accumulated business-hours availability counters.
func (m *Monitor) UptimeHours() (up, down int64) {
	return m.uptimeHours.Load(), m.downtimeHours.Load()
}

func (m *Monitor) optimizeTick(ctx context.Context) {
	if _, err := m.Optimize(ctx); err != nil {
		m.log.ErrorContext(ctx, "optimization sweep failed", logger.Error(err))
	}
}

// inBusinessHours reports whether t falls in the operational window,
// Monday to Saturday 07:00-19:00.
func inBusinessHours(t time.Time) bool {
	if t.Weekday() == time.Sunday {
		return false
	}
	h := t.Hour()
	return h >= 7 && h < 19
}

// DeliveryStarted implements delivery.Observer.
func (m *Monitor) DeliveryStarted(notificationID string, at time.Time) {
	m.inflight.Store(notificationID, at)
}

// DeliveryFinished implements delivery.Observer. Deliveries that exceeded
// the slow threshold raise an alert.
func (m *Monitor) DeliveryFinished(notificationID string, at time.Time, err error) {
	v, ok := m.inflight.LoadAndDelete(notificationID)
	if !ok {
		return
	}
	took := at.Sub(v.(time.Time))
	if took > m.cfg.SlowDeliveryLimit {
		m.alert(context.Background(), AlertSlowDelivery, map[string]any{
			"notification_id": notificationID,
			"duration_ms":     took.Milliseconds(),
		})
	}
}

// InFlight returns the number of deliveries currently being pushed.
func (m *Monitor) InFlight() int {
	n := 0
	m.inflight.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// pruneInflight drops in-flight entries older than the stuck threshold.
// They belong to deliveries that never reported back, usually a crashed
// goroutine or a lost context.
func (m *Monitor) pruneInflight(now time.Time) int {
	const stuckAfter = 5 * time.Minute

	pruned := 0
	m.inflight.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) > stuckAfter {
			m.inflight.Delete(key)
			pruned++
		}
		return true
	})
	return pruned
}
