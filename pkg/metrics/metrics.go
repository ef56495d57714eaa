package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
	"github.com/rsas-protocol/rsas-go/pkg/version"
)

const namespace = "rsas"

// Metrics holds the engine's collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	// DevicesKnown is the number of network modules in the registry.
	DevicesKnown prometheus.Gauge

	// RegistryChangesTotal counts registry mutations by kind
	// (added/updated/removed/expired).
	RegistryChangesTotal *prometheus.CounterVec

	// ScansTotal counts serial scans by outcome (ok/error).
	ScansTotal *prometheus.CounterVec

	// ScanDuration observes serial scan latency.
	ScanDuration prometheus.Histogram

	// ActivationsTotal counts activations by outcome
	// (success/unconfirmed/validation/unavailable/timeout/error).
	ActivationsTotal *prometheus.CounterVec

	// ActivationDuration observes activation latency by transport kind.
	ActivationDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DevicesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_known",
			Help:      "Number of network modules currently in the registry.",
		}),
		RegistryChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_changes_total",
			Help:      "Total number of registry mutations.",
		}, []string{"kind"}),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_scans_total",
			Help:      "Total number of serial port scans.",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "serial_scan_duration_seconds",
			Help:      "Duration of serial port scans including probes.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8},
		}),
		ActivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Total number of activation attempts.",
		}, []string{"result"}),
		ActivationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activation_duration_seconds",
			Help:      "Duration of activation attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
	}

	info := version.Get()
	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build identity of the running binary; always 1.",
	}, []string{"version", "commit", "goversion"})
	buildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)

	m.Registry.MustRegister(
		buildInfo,
		m.DevicesKnown,
		m.RegistryChangesTotal,
		m.ScansTotal,
		m.ScanDuration,
		m.ActivationsTotal,
		m.ActivationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveChange records a registry mutation. size is the registry size after
// the change.
func (m *Metrics) ObserveChange(c registry.Change, size int) {
	m.RegistryChangesTotal.WithLabelValues(c.Kind.String()).Inc()
	m.DevicesKnown.Set(float64(size))
}

// ObserveScan records one serial scan.
func (m *Metrics) ObserveScan(took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ScansTotal.WithLabelValues(result).Inc()
	m.ScanDuration.Observe(took.Seconds())
}

// ObserveActivation records one activation attempt.
func (m *Metrics) ObserveActivation(kind transport.Kind, took time.Duration, res activation.Result, err error) {
	m.ActivationsTotal.WithLabelValues(ActivationOutcome(res, err)).Inc()
	m.ActivationDuration.WithLabelValues(kind.String()).Observe(took.Seconds())
}

// ActivationOutcome labels an activation result.
func ActivationOutcome(res activation.Result, err error) string {
	switch {
	case err == nil && res.LooksSuccessful:
		return "success"
	case err == nil:
		return "unconfirmed"
	case errors.Is(err, activation.ErrValidation):
		return "validation"
	case errors.Is(err, transport.ErrTimeout):
		return "timeout"
	case errors.Is(err, transport.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
