package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aquasecurity/layerscan/pkg/malwarereport"
)

const (
	namespace = "layerscan"
	subsystem = "resources"
)

const (
	OutcomeClean   = "clean"
	OutcomeMalware = "malware"
	OutcomeFailed  = "failed"
)

// Recorder collects batch metrics on its own registry so that one scan run
// can be exported as a node-exporter textfile.
type Recorder struct {
	registry     *prometheus.Registry
	resources    *prometheus.CounterVec
	abortedUnits prometheus.Counter
	duration     *prometheus.HistogramVec
	lastRun      prometheus.Gauge
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		resources: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scanned_total",
				Help:      "Total number of resources scanned, by outcome.",
			},
			[]string{"outcome"},
		),
		abortedUnits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "aborted_units_total",
				Help:      "Total number of content units whose scan was aborted.",
			},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scan_duration_seconds",
				Help:      "The duration of resource scans, by outcome.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"outcome"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last scan run finished.",
			},
		),
	}
}

// Observe implements malwarereport.Observer.
func (r *Recorder) Observe(item malwarereport.Item, duration time.Duration) {
	outcome := Outcome(item)
	r.resources.WithLabelValues(outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(duration.Seconds())
	if item.Result != nil {
		r.abortedUnits.Add(float64(len(item.Result.Result.Aborted)))
	}
}

// RunFinished records the end of a scan run.
func (r *Recorder) RunFinished(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// Gatherer exposes the registry the metrics are recorded on.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteToTextfile writes the metrics in the text exposition format, replacing
// the file atomically.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// Outcome returns the outcome label of an item.
func Outcome(item malwarereport.Item) string {
	switch {
	case item.Failed() || item.Result == nil:
		return OutcomeFailed
	case item.Result.MalwareDetected():
		return OutcomeMalware
	default:
		return OutcomeClean
	}
}
