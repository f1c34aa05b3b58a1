package metrics

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
)

// Mount outcomes.
const (
	OutcomeMounted     = "mounted"
	OutcomeNoAccess    = "no_access"
	OutcomeNotFound    = "not_found"
	OutcomeMountFailed = "mount_failed"
	OutcomeError       = "error"
)

// Unmount outcomes.
const (
	OutcomeUnmounted = "unmounted"
	OutcomeBusy      = "busy"
)

// Collector holds the Prometheus metrics of one wsmount invocation.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	mountCounter    *prometheus.CounterVec
	mountDuration   *prometheus.HistogramVec
	unmountCounter  *prometheus.CounterVec
	unmountDuration prometheus.Histogram
	mountedGauge    prometheus.Gauge
	prunedCounter   prometheus.Counter
	errorCounter    *prometheus.CounterVec
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Textfile  string            `yaml:"textfile"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "wsmount",
			Labels:    make(map[string]string),
		}
	}
	if config.Namespace == "" {
		config.Namespace = "wsmount"
	}

	collector := &Collector{config: config}
	if !config.Enabled {
		return collector, nil
	}

	collector.registry = prometheus.NewRegistry()
	collector.initMetrics()
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return collector, nil
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// Registry returns the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordMount records one mount attempt.
func (c *Collector) RecordMount(cloud, outcome string, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	if cloud == "" {
		cloud = "unknown"
	}
	c.mountCounter.With(prometheus.Labels{"cloud": cloud, "outcome": outcome}).Inc()
	c.mountDuration.With(prometheus.Labels{"cloud": cloud}).Observe(duration.Seconds())
}

// RecordUnmount records one unmount.
func (c *Collector) RecordUnmount(outcome string, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	c.unmountCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
	c.unmountDuration.Observe(duration.Seconds())
}

// RecordPruned records removed empty directories.
func (c *Collector) RecordPruned(n int) {
	if !c.Enabled() || n <= 0 {
		return
	}
	c.prunedCounter.Add(float64(n))
}

// SetMounted sets the number of resources currently mounted under the root.
func (c *Collector) SetMounted(n int) {
	if !c.Enabled() {
		return
	}
	c.mountedGauge.Set(float64(n))
}

// RecordError records an error by its structured code.
func (c *Collector) RecordError(operation string, err error) {
	if !c.Enabled() || err == nil {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"code":      classifyError(err),
	}).Inc()
}

// WriteTextfile writes the registry to the configured textfile. It is a
// no-op when metrics are disabled or no textfile is configured.
func (c *Collector) WriteTextfile() error {
	if !c.Enabled() || c.config.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(c.config.Textfile, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// MountOutcome maps a mount state and failure reason onto an outcome label.
func MountOutcome(state types.MountState, reason types.FailureReason) string {
	if state == types.StateMounted {
		return OutcomeMounted
	}
	switch reason {
	case types.FailurePermission:
		return OutcomeNoAccess
	case types.FailureNotFound:
		return OutcomeNotFound
	case types.FailureGeneric:
		return OutcomeMountFailed
	default:
		return OutcomeError
	}
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace
	constLabels := prometheus.Labels(c.config.Labels)

	c.mountCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "mount_attempts_total",
			Help:        "Total number of mount attempts by outcome",
			ConstLabels: constLabels,
		},
		[]string{"cloud", "outcome"},
	)

	c.mountDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "mount_duration_seconds",
			Help:        "Duration of mount utility runs in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			ConstLabels: constLabels,
		},
		[]string{"cloud"},
	)

	c.unmountCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "unmounts_total",
			Help:        "Total number of unmounts by outcome",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)

	c.unmountDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "unmount_duration_seconds",
			Help:        "Duration of unmount command runs in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			ConstLabels: constLabels,
		},
	)

	c.mountedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "mounted_resources",
			Help:        "Number of resources mounted by the last pass",
			ConstLabels: constLabels,
		},
	)

	c.prunedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "pruned_directories_total",
			Help:        "Total number of empty directories removed after unmounting",
			ConstLabels: constLabels,
		},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "errors_total",
			Help:        "Total number of errors by operation and code",
			ConstLabels: constLabels,
		},
		[]string{"operation", "code"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.mountCounter,
		c.mountDuration,
		c.unmountCounter,
		c.unmountDuration,
		c.mountedGauge,
		c.prunedCounter,
		c.errorCounter,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

func classifyError(err error) string {
	var wsErr *errors.WSMountError
	if stderrors.As(err, &wsErr) {
		return string(wsErr.Code)
	}
	return "other"
}
