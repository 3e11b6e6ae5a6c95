// Package metrics holds the Prometheus collectors for uploads and projects.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds Prometheus metrics for the upload pipeline.
//
// All metrics are prefixed with "roomify_".
//
// Metrics:
//   - roomify_files_total{verdict} - files offered to a widget, by gate verdict
//   - roomify_encode_failures_total - file reads that failed
//   - roomify_uploads_completed_total - sessions that reached completion
//   - roomify_projects_created_total - projects persisted and navigated to
//   - roomify_project_save_failures_total - persistence failures
//   - roomify_widgets_open - currently open widgets
type Metrics struct {
	FilesTotal         *prometheus.CounterVec
	EncodeFailures     prometheus.Counter
	UploadsCompleted   prometheus.Counter
	ProjectsCreated    prometheus.Counter
	ProjectSaveFailure prometheus.Counter
	WidgetsOpen        prometheus.Gauge
}

// Default returns the process-wide metrics, registering them on first use.
func Default() *Metrics {
	once.Do(func() {
		global = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return global
}

// New creates metrics on a private registry. Used by tests.
func New(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		FilesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomify_files_total",
				Help: "Files offered to an upload widget, by gate verdict",
			},
			[]string{"verdict"},
		),
		EncodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "roomify_encode_failures_total",
			Help: "File reads that failed",
		}),
		UploadsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "roomify_uploads_completed_total",
			Help: "Upload sessions that reached completion",
		}),
		ProjectsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "roomify_projects_created_total",
			Help: "Projects persisted and navigated to",
		}),
		ProjectSaveFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "roomify_project_save_failures_total",
			Help: "Project saves rejected by the store",
		}),
		WidgetsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "roomify_widgets_open",
			Help: "Currently open upload widgets",
		}),
	}
}
