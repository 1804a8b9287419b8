package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the registry Metrics registers against when none
	// is supplied to NewMetrics.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels every metric from this package with
	// service="statecraft" so it can share a scrape endpoint with other
	// services without name collisions.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "statecraft"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds the Prometheus collectors for the transition engine,
// event log, archival, and locking subsystems.
type Metrics struct {
	StepsTotal          *prometheus.CounterVec
	StepDuration        *prometheus.HistogramVec
	TransitionsFired     *prometheus.CounterVec
	GuardFailuresTotal   *prometheus.CounterVec
	AlwaysLoopExceeded   prometheus.Counter

	EventsAppendedTotal prometheus.Counter
	EventLogSize        prometheus.Gauge
	PersistenceDuration *prometheus.HistogramVec

	ArchivesTotal     *prometheus.CounterVec
	RestoresTotal     *prometheus.CounterVec
	ArchiveCompressionRatio prometheus.Histogram

	LockWaitDuration  *prometheus.HistogramVec
	LockContentionTotal prometheus.Counter

	DatabaseConnectionsOpen  prometheus.Gauge
	DatabaseConnectionsIdle  prometheus.Gauge
	DatabaseConnectionsInUse prometheus.Gauge
	DatabaseQueryDuration    *prometheus.HistogramVec

	customMu         sync.RWMutex
	CustomCounters   map[string]*prometheus.CounterVec
	CustomGauges     map[string]*prometheus.GaugeVec
	CustomHistograms map[string]*prometheus.HistogramVec
}

// GetMetrics returns the process-wide Metrics instance, lazily registering
// it against DefaultRegisterer on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics constructs and registers a Metrics collection against
// registerer (DefaultRegisterer if nil).
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		StepsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "statecraft_steps_total",
				Help: "Total number of machine step() invocations, by outcome",
			},
			[]string{"machine_id", "outcome"}, // outcome: transitioned, unchanged, error
		),
		StepDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statecraft_step_duration_seconds",
				Help:    "Time taken to process one event through the transition engine",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"machine_id"},
		),
		TransitionsFired: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "statecraft_transitions_fired_total",
				Help: "Total number of transitions executed, by event type",
			},
			[]string{"machine_id", "event_type"},
		),
		GuardFailuresTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "statecraft_guard_failures_total",
				Help: "Total number of guard evaluations that returned false or an error",
			},
			[]string{"machine_id", "guard_name"},
		),
		AlwaysLoopExceeded: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "statecraft_always_loop_exceeded_total",
				Help: "Total number of times the eventless-transition fixpoint exceeded its iteration bound",
			},
		),

		EventsAppendedTotal: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "statecraft_events_appended_total",
				Help: "Total number of machine events appended to the event log",
			},
		),
		EventLogSize: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "statecraft_event_log_size",
				Help: "Approximate number of active (non-archived) event rows",
			},
		),
		PersistenceDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statecraft_persistence_duration_seconds",
				Help:    "Duration of event log operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"}, // append, load, delete
		),

		ArchivesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "statecraft_archives_total",
				Help: "Total number of machine instances archived, by outcome",
			},
			[]string{"outcome"}, // archived, skipped, failed
		),
		RestoresTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "statecraft_restores_total",
				Help: "Total number of archived machine instances restored",
			},
			[]string{"outcome"},
		),
		ArchiveCompressionRatio: promauto.With(registerer).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "statecraft_archive_compression_ratio",
				Help:    "Ratio of compressed size to original size for archived event batches",
				Buckets: []float64{.05, .1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
			},
		),

		LockWaitDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statecraft_lock_wait_duration_seconds",
				Help:    "Time spent waiting to acquire the per-instance concurrency gate",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"backend"}, // memory, nats
		),
		LockContentionTotal: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "statecraft_lock_contention_total",
				Help: "Total number of Acquire calls that had to wait for another holder",
			},
		),

		DatabaseConnectionsOpen: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "statecraft_database_connections_open",
				Help: "Number of open database connections",
			},
		),
		DatabaseConnectionsIdle: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "statecraft_database_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DatabaseConnectionsInUse: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "statecraft_database_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		DatabaseQueryDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statecraft_database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		CustomCounters:   make(map[string]*prometheus.CounterVec),
		CustomGauges:     make(map[string]*prometheus.GaugeVec),
		CustomHistograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RecordStep records one step() invocation's outcome and latency.
func (m *Metrics) RecordStep(machineID, outcome string, d time.Duration) {
	m.StepsTotal.WithLabelValues(machineID, outcome).Inc()
	m.StepDuration.WithLabelValues(machineID).Observe(d.Seconds())
}

// RecordTransition records one fired transition.
func (m *Metrics) RecordTransition(machineID, eventType string) {
	m.TransitionsFired.WithLabelValues(machineID, eventType).Inc()
}

// RecordGuardFailure records one failed guard evaluation.
func (m *Metrics) RecordGuardFailure(machineID, guardName string) {
	m.GuardFailuresTotal.WithLabelValues(machineID, guardName).Inc()
}

// RecordPersistence records the duration of one event log operation.
func (m *Metrics) RecordPersistence(operation string, d time.Duration) {
	m.PersistenceDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordArchive records the outcome of one ArchiveMachine call and, when
// archived, its compression ratio.
func (m *Metrics) RecordArchive(outcome string, originalSize, compressedSize int) {
	m.ArchivesTotal.WithLabelValues(outcome).Inc()
	if outcome == "archived" && originalSize > 0 {
		m.ArchiveCompressionRatio.Observe(float64(compressedSize) / float64(originalSize))
	}
}

// RecordRestore records the outcome of one RestoreMachine call.
func (m *Metrics) RecordRestore(outcome string) {
	m.RestoresTotal.WithLabelValues(outcome).Inc()
}

// RecordLockWait records how long an Acquire call waited, and flags
// contention when it waited at all.
func (m *Metrics) RecordLockWait(backend string, d time.Duration) {
	m.LockWaitDuration.WithLabelValues(backend).Observe(d.Seconds())
	if d > 0 {
		m.LockContentionTotal.Inc()
	}
}

// UpdateDatabasePool refreshes the connection pool gauges from a
// dbstore.Pool.Stats() snapshot.
func (m *Metrics) UpdateDatabasePool(open, idle, inUse int) {
	m.DatabaseConnectionsOpen.Set(float64(open))
	m.DatabaseConnectionsIdle.Set(float64(idle))
	m.DatabaseConnectionsInUse.Set(float64(inUse))
}

// RecordDatabaseQuery records a database query's duration.
func (m *Metrics) RecordDatabaseQuery(operation string, d time.Duration) {
	m.DatabaseQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Counter returns (creating if needed) a custom counter, for machine
// configs that want to expose domain-specific metrics (e.g. a Calculator
// that counts order volume by SKU). Custom counters and gauges are always
// registered with DefaultRegisterer, whatever registerer NewMetrics was given.
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	m.customMu.RLock()
	if c, ok := m.CustomCounters[name]; ok {
		m.customMu.RUnlock()
		return c
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if c, ok := m.CustomCounters[name]; ok {
		return c
	}
	c := promauto.With(DefaultRegisterer).NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.CustomCounters[name] = c
	return c
}

// Gauge returns (creating if needed) a custom gauge.
func (m *Metrics) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	m.customMu.RLock()
	if g, ok := m.CustomGauges[name]; ok {
		m.customMu.RUnlock()
		return g
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if g, ok := m.CustomGauges[name]; ok {
		return g
	}
	g := promauto.With(DefaultRegisterer).NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	m.CustomGauges[name] = g
	return g
}
