package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

// FilterChain цепочка фильтров для последовательного применения.
// Первая ошибка останавливает цепочку: частично обработанные шаги не публикуются.
type FilterChain struct {
	filters []StepFilter
	logger  *utils.Logger
}

// NewFilterChain создает цепочку из заданных фильтров
func NewFilterChain(logger *utils.Logger, filters ...StepFilter) *FilterChain {
	chain := &FilterChain{
		filters: make([]StepFilter, 0, len(filters)),
		logger:  logger,
	}
	for _, f := range filters {
		chain.AddFilter(f)
	}
	return chain
}

// NewPipelineChain стандартная цепочка после вывода шагов:
// сглаживание, повторная выборка рельефа, коррекция высоты, зона обзора камеры
func NewPipelineChain(settings Settings, deriver *StepDeriver, logger *utils.Logger) *FilterChain {
	return NewFilterChain(logger,
		NewSmoothingFilter(settings.SmoothSize, logger),
		NewGroundFilter(deriver),
		NewAltitudeFilter(settings.OnGroundAt, logger),
		NewFootprintFilter(deriver),
	)
}

// AddFilter добавляет фильтр в цепочку
func (fc *FilterChain) AddFilter(filter StepFilter) {
	fc.filters = append(fc.filters, filter)
}

// Filters фильтры в порядке применения
func (fc *FilterChain) Filters() []StepFilter {
	return fc.filters
}

// Filter применяет все фильтры в цепочке
func (fc *FilterChain) Filter(steps *models.FlightSteps) error {
	if steps.Len() == 0 {
		return nil
	}

	fc.logger.WithField("steps", steps.Len()).
		WithField("filters_count", len(fc.filters)).
		Debug("Starting step filtering")

	started := time.Now()
	for _, filter := range fc.filters {
		start := time.Now()

		if err := filter.Filter(steps); err != nil {
			var inv *models.InvariantError
			if errors.As(err, &inv) {
				metrics.InvariantViolations.WithLabelValues(inv.Check).Inc()
			}
			fc.logger.WithField("filter", filter.Name()).
				WithError(err).
				Error("Filter failed")
			return fmt.Errorf("%s: %w", filter.Name(), err)
		}

		duration := time.Since(start)
		metrics.StageDuration.WithLabelValues(filter.Name()).Observe(duration.Seconds())

		fc.logger.WithField("filter", filter.Name()).
			WithField("steps", steps.Len()).
			WithField("duration_ms", duration.Milliseconds()).
			Debug("Filter applied")
	}

	fc.logger.WithField("steps", steps.Len()).
		WithField("total_lineal_m", steps.TotalLineal).
		WithField("duration_ms", time.Since(started).Milliseconds()).
		Info("Step filtering completed")

	return nil
}

// Name возвращает имя цепочки фильтров
func (fc *FilterChain) Name() string {
	return "FilterChain"
}

// Description возвращает описание цепочки фильтров
func (fc *FilterChain) Description() string {
	names := make([]string, len(fc.filters))
	for i, f := range fc.filters {
		names[i] = f.Name()
	}
	return fmt.Sprintf("Chain of filters: %s", strings.Join(names, " -> "))
}
