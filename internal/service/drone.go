package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/elevation"
	"github.com/flybeeper/flightpath/internal/filter"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/internal/parser"
	"github.com/flybeeper/flightpath/pkg/utils"
)

// ErrNoFlightData в состоянии нет телеметрии (режим только видео/снимков)
var ErrNoFlightData = errors.New("no flight data loaded")

// State опубликованное состояние конвейера.
// После публикации не изменяется: пересчет строит новое состояние и подменяет его целиком.
type State struct {
	RunID      string
	Config     config.FlightConfig
	Settings   filter.Settings
	Sections   *models.FlightSections
	Steps      *models.FlightSteps
	Legs       *models.FlightLegs
	OnGroundAt models.OnGroundAt // фактический режим после разрешения Auto
	FixStartM  float64
	FixEndM    float64
	Source     string
	FromImages bool
	ComputedAt time.Time

	// NoDataReason причина деградации, если телеметрии нет
	NoDataReason string

	index *spatialIndex
}

// HasData есть ли в состоянии шаги полета
func (s *State) HasData() bool {
	return s != nil && s.Steps != nil && s.Steps.Len() > 0
}

// Drone фасад конвейера: загрузка лога, вывод шагов, коррекция высоты, ноги и запросы к результату
type Drone struct {
	mu    sync.RWMutex
	state *State
	cfg   config.FlightConfig

	// recomputeMu сериализует пересчеты; читатели работают со старым состоянием до подмены
	recomputeMu sync.Mutex

	model   elevation.Model
	parsers *parser.Chain
	logger  *utils.Logger
}

// NewDrone создает фасад. parsers и model могут быть nil: используются цепочка по умолчанию и модель без высот.
func NewDrone(cfg config.FlightConfig, model elevation.Model, parsers *parser.Chain, logger *utils.Logger) *Drone {
	if model == nil {
		model = elevation.None{}
	}
	if parsers == nil {
		parsers = parser.DefaultChain(logger, parser.Options{MinRowGapMs: cfg.CSVMinRowGapMs, ImageWorkers: cfg.ImageWorkers})
	}
	return &Drone{
		cfg:     cfg,
		model:   model,
		parsers: parsers,
		logger:  logger,
		state:   &State{Config: cfg, NoDataReason: ErrNoFlightData.Error()},
	}
}

// Config текущая конфигурация полета
func (d *Drone) Config() config.FlightConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Load разбирает лог и публикует результат конвейера.
// Если ни один парсер не дал данных, публикуется состояние без телеметрии и ошибка не возвращается.
func (d *Drone) Load(ctx context.Context, in parser.Input) error {
	d.recomputeMu.Lock()
	defer d.recomputeMu.Unlock()

	result, err := d.parsers.Parse(ctx, in)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, parser.ErrNoFlightData) {
			metrics.PipelineRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to parse %s: %w", in.Path, err)
		}

		metrics.PipelineRuns.WithLabelValues("no_data").Inc()
		d.logger.WithField("path", in.Path).
			WithField("image_dir", in.ImageDir).
			WithError(err).
			Warn("No telemetry, continuing without flight path")
		d.publish(&State{
			RunID:        uuid.NewString(),
			Config:       d.Config(),
			ComputedAt:   time.Now(),
			NoDataReason: err.Error(),
		})
		return nil
	}

	state, err := d.compute(result.Sections, d.Config())
	if err != nil {
		return err
	}
	d.publish(state)
	return nil
}

// LoadSections запускает конвейер по уже собранным секциям
func (d *Drone) LoadSections(sections *models.FlightSections) error {
	d.recomputeMu.Lock()
	defer d.recomputeMu.Unlock()

	state, err := d.compute(sections, d.Config())
	if err != nil {
		return err
	}
	d.publish(state)
	return nil
}

// Recompute повторяет вывод шагов, коррекцию высоты и выделение ног по текущим секциям
func (d *Drone) Recompute() error {
	d.recomputeMu.Lock()
	defer d.recomputeMu.Unlock()
	return d.recomputeLocked(d.Config())
}

// UpdateConfig применяет новую конфигурацию и пересчитывает полет
func (d *Drone) UpdateConfig(cfg config.FlightConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flight config: %w", err)
	}

	d.recomputeMu.Lock()
	defer d.recomputeMu.Unlock()

	// Конфигурация принимается только вместе с состоянием, посчитанным по ней
	if err := d.recomputeLocked(cfg); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.logger.WithField("on_ground_at", cfg.OnGroundAt.String()).
		WithField("smooth_size", cfg.SmoothSectionSize).
		WithField("use_legs", cfg.UseLegs).
		Info("Flight config updated")
	return nil
}

func (d *Drone) recomputeLocked(cfg config.FlightConfig) error {
	current := d.Snapshot()
	if current.Sections == nil || current.Sections.Len() == 0 {
		// Без телеметрии пересчитывать нечего, но конфигурация публикуется
		next := *current
		next.Config = cfg
		d.publish(&next)
		return nil
	}

	state, err := d.compute(current.Sections, cfg)
	if err != nil {
		return err
	}
	d.publish(state)
	return nil
}

// compute полный проход конвейера; секции не изменяются
func (d *Drone) compute(sections *models.FlightSections, cfg config.FlightConfig) (state *State, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.PipelineRuns.WithLabelValues(status).Inc()
		metrics.StageDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	}()

	if sections == nil || sections.Len() == 0 {
		return nil, ErrNoFlightData
	}

	settings := filter.SettingsFrom(cfg, sections.GimbalData)
	deriver := filter.NewStepDeriver(d.model, settings, d.logger)

	steps, err := deriver.Derive(sections)
	if err != nil {
		return nil, fmt.Errorf("derive steps: %w", err)
	}

	chain := filter.NewPipelineChain(settings, deriver, d.logger)
	if err := chain.Filter(steps); err != nil {
		return nil, fmt.Errorf("filter steps: %w", err)
	}

	state = &State{
		RunID:      uuid.NewString(),
		Config:     cfg,
		Settings:   settings,
		Sections:   sections,
		Steps:      steps,
		OnGroundAt: settings.OnGroundAt,
		Source:     sections.Source,
		FromImages: sections.FromImages,
		ComputedAt: time.Now(),
		index:      buildSpatialIndex(steps),
	}
	for _, f := range chain.Filters() {
		if altitude, ok := f.(*filter.AltitudeFilter); ok {
			state.OnGroundAt = altitude.Resolved()
			state.FixStartM, state.FixEndM = altitude.Fixes()
		}
	}

	segmenter := filter.NewLegSegmenter(cfg.Legs, cfg.UseLegs, d.logger)
	state.Legs, err = segmenter.Segment(steps, sections.Len(), sections.FromImages, settings.Gimbal)
	if err != nil {
		return nil, fmt.Errorf("segment legs: %w", err)
	}

	d.logger.WithField("run_id", state.RunID).
		WithField("sections", sections.Len()).
		WithField("legs", state.Legs.Count()).
		WithField("legs_active", state.Legs.Active).
		WithField("on_ground_at", state.OnGroundAt.String()).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Flight pipeline completed")
	return state, nil
}

func (d *Drone) publish(state *State) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

// Snapshot текущее опубликованное состояние; только для чтения
func (d *Drone) Snapshot() *State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// NearestStepAtTimeMs ближайший по времени шаг или nil без данных.
// Сначала ищется нога, в интервал которой попадает ms, затем поиск по всем шагам.
func (d *Drone) NearestStepAtTimeMs(ms int) *models.FlightStep {
	state := d.Snapshot()
	if !state.HasData() {
		return nil
	}
	steps := state.Steps

	if legs := state.Legs; legs.Count() > 0 {
		i := sort.Search(len(legs.Legs), func(i int) bool {
			return legs.Legs[i].Times.Valid && int(legs.Legs[i].Times.Max/time.Millisecond) >= ms
		})
		if i < len(legs.Legs) {
			leg := legs.Legs[i]
			if int(leg.Times.Min/time.Millisecond) <= ms {
				from, okFrom := steps.IndexOf(leg.MinStepID)
				to, okTo := steps.IndexOf(leg.MaxStepID)
				if okFrom && okTo {
					return steps.NearestByTime(ms, from, to)
				}
			}
		}
	}
	return steps.NearestByTime(ms, 0, steps.Len()-1)
}

// MinRunScopeCameraDownDeg наименьший угол камеры вниз, при котором дальний край кадра
// остается дальше от горизонта, чем models.FootprintHorizonMarginDeg
func MinRunScopeCameraDownDeg(settings filter.Settings) float64 {
	return settings.VFOVDeg/2 + models.FootprintHorizonMarginDeg
}

// IsStepInRunScope входит ли шаг в область обработки: окно RunVideoFromS/ToS и,
// без данных подвеса, достаточный наклон камеры вниз
func (d *Drone) IsStepInRunScope(step *models.FlightStep) bool {
	if step == nil {
		return false
	}
	state := d.Snapshot()
	return inRunScope(state, step)
}

func inRunScope(state *State, step *models.FlightStep) bool {
	fromMs, toMs := state.Config.RunWindow()
	ms := step.StartTimeMs()
	if ms < fromMs || (toMs >= 0 && ms > toMs) {
		return false
	}
	if !state.Settings.Gimbal.Available() && step.CameraDownDeg < MinRunScopeCameraDownDeg(state.Settings) {
		return false
	}
	return true
}

// DefaultRunRange диапазон id шагов по умолчанию: от первой до последней активной ноги,
// иначе весь полет. ok = false без данных.
func (d *Drone) DefaultRunRange() (startStepID, endStepID int, ok bool) {
	return defaultRunRange(d.Snapshot())
}

func defaultRunRange(state *State) (startStepID, endStepID int, ok bool) {
	if !state.HasData() {
		return 0, 0, false
	}
	if legs := state.Legs.ActiveLegs(); len(legs) > 0 {
		return legs[0].MinStepID, legs[len(legs)-1].MaxStepID, true
	}
	steps := state.Steps.Steps
	return steps[0].ID, steps[len(steps)-1].ID, true
}

// RunScopeAltitudeBounds диапазон скорректированной высоты шагов из DefaultRunRange,
// входящих в область обработки
func (d *Drone) RunScopeAltitudeBounds() models.Range {
	state := d.Snapshot()
	var bounds models.Range

	from, to, ok := defaultRunRange(state)
	if !ok {
		return bounds
	}
	for _, step := range state.Steps.Steps {
		if step.ID < from || step.ID > to || !inRunScope(state, step) {
			continue
		}
		bounds.FoldPtr(step.AltitudeM)
	}
	return bounds
}
