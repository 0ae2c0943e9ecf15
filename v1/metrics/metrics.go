package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks the number of locks successfully taken.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latch_lock_acquired_total",
		Help: "Total number of locks acquired",
	})
	// ContentionCounter tracks attempts that found the lock already held.
	ContentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latch_lock_contention_total",
		Help: "Total number of lock attempts rejected because the key was held",
	})
	// ReleaseCounter tracks releases that removed the lock key.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latch_lock_released_total",
		Help: "Total number of locks released",
	})
	// StaleReleaseCounter tracks releases that found the lock changed under them.
	StaleReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latch_lock_stale_release_total",
		Help: "Total number of releases that found the lock expired or re-acquired",
	})
	// HeldGauge reports the number of locks currently held by this process.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "latch_lock_held",
		Help: "Current number of locks held by this process",
	})
	// IDCounter tracks the number of identifiers generated.
	IDCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latch_id_generated_total",
		Help: "Total number of identifiers generated",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers latch metrics on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ContentionCounter, ReleaseCounter, StaleReleaseCounter, HeldGauge, IDCounter)
}
