package trymerge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/store"
)

const metricNamespace = "trymerger"

const (
	jobsStartedMetricName     = "jobs_started_total"
	jobsFinishedMetricName    = "jobs_finished_total"
	dispatchIgnoredMetricName = "dispatch_ignored_total"
	jobsRunningMetricName     = "jobs_running"
	jobDurationMetricName     = "job_duration_seconds"
	githubEventsMetricName    = "processed_github_events_total"
)

const (
	statusLabel = "status"
	reasonLabel = "reason"
)

type ignoreReasonLabelVal string

const (
	ignoreReasonUnknownCommand ignoreReasonLabelVal = "unknown_command"
	ignoreReasonDuplicate      ignoreReasonLabelVal = "duplicate_in_flight"
	ignoreReasonStopped        ignoreReasonLabelVal = "stopped"
)

type metricCollector struct {
	logger          *zap.Logger
	jobsStarted     prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	dispatchIgnored *prometheus.CounterVec
	jobsRunning     prometheus.Gauge
	jobDuration     prometheus.Histogram
	processedEvents prometheus.Counter
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		jobsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      jobsStartedMetricName,
				Help:      "count of started try-merges",
			},
		),
		jobsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      jobsFinishedMetricName,
				Help:      "count of finished try-merges by final job status",
			},
			[]string{statusLabel},
		),
		dispatchIgnored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      dispatchIgnoredMetricName,
				Help:      "count of try-merge commands that were ignored",
			},
			[]string{reasonLabel},
		),
		jobsRunning: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      jobsRunningMetricName,
				Help:      "count of currently running try-merges",
			},
		),
		jobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      jobDurationMetricName,
				Help:      "duration of try-merges",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		),
		processedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      githubEventsMetricName,
				Help:      "count of processed github webhook events",
			},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func (m *metricCollector) JobStarted() {
	m.jobsStarted.Inc()
	m.jobsRunning.Inc()
}

func (m *metricCollector) JobFinished(status store.JobStatus, duration time.Duration) {
	m.jobsRunning.Dec()
	m.jobDuration.Observe(duration.Seconds())

	cnt, err := m.jobsFinished.GetMetricWith(prometheus.Labels{statusLabel: string(status)})
	if err != nil {
		m.logGetMetricFailed(jobsFinishedMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) DispatchIgnoredInc(reason ignoreReasonLabelVal) {
	cnt, err := m.dispatchIgnored.GetMetricWith(prometheus.Labels{reasonLabel: string(reason)})
	if err != nil {
		m.logGetMetricFailed(dispatchIgnoredMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) ProcessedEventsInc() {
	m.processedEvents.Inc()
}
