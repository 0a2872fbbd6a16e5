package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightpath_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpath_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Метрики конвейера
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightpath_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"}, // parse, derive, smoothing, altitude, legs, recompute
	)

	SectionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpath_sections_ingested_total",
			Help: "Total number of sections produced by parsers",
		},
		[]string{"parser"},
	)

	LegsDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpath_legs_detected",
			Help: "Number of legs found in the current flight",
		},
	)

	LegsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpath_legs_active",
			Help: "Whether legs scope processing in the current flight (1 = active)",
		},
	)

	AltitudeFix = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightpath_altitude_fix_m",
			Help: "Altitude correction applied at the flight endpoints in meters",
		},
		[]string{"endpoint"}, // start, end
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpath_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // success, error, no_data
	)

	// Метрики хранилища
	RepositoryOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightpath_repository_operation_duration_seconds",
			Help:    "Duration of repository operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	RepositoryOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpath_repository_operation_errors_total",
			Help: "Total number of repository operation errors",
		},
		[]string{"backend", "operation"},
	)

	RepositoryRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpath_repository_rows_written_total",
			Help: "Total number of setting rows written",
		},
		[]string{"entity"}, // section, step, leg, summary
	)

	ElevationCacheHitRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpath_elevation_cache_hit_rate",
			Help: "Hit rate of the elevation lookup cache",
		},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightpath_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
