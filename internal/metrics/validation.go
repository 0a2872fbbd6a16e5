package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ParseFailures неудачные попытки разбора лога по парсерам
	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightpath_parse_failures_total",
		Help: "Number of logs a parser could not read",
	}, []string{"parser"})

	// RecordsSkipped пропущенные некорректные записи (строки, кадры, снимки)
	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightpath_records_skipped_total",
		Help: "Number of malformed records skipped during ingestion",
	}, []string{"parser"})

	// RowsDeduplicated строки CSV, отброшенные как почти одновременные
	RowsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightpath_csv_rows_deduplicated_total",
		Help: "Number of CSV rows dropped for being too close to the previous row",
	})

	// GPSInterpolated строки CSV с интерполированными координатами
	GPSInterpolated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightpath_csv_gps_interpolated_total",
		Help: "Number of CSV rows whose coordinates were interpolated",
	})

	// InvariantViolations нарушения инвариантов сводок
	InvariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightpath_invariant_violations_total",
		Help: "Number of summary invariant violations by check",
	}, []string{"check"})

	// SmoothingClamped значения, ограниченные исходным диапазоном после сглаживания
	SmoothingClamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightpath_smoothing_clamped_total",
		Help: "Number of smoothed values clamped back into the original envelope",
	}, []string{"field"})
)
