package filter

import (
	"fmt"
	"math"
	"time"

	"github.com/flybeeper/flightpath/internal/elevation"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

// StepDeriver строит шаги из секций: расстояния, изменение курса,
// высоты рельефа и зону обзора камеры
type StepDeriver struct {
	model    elevation.Model
	settings Settings
	logger   *utils.Logger
}

// NewStepDeriver создает вычислитель шагов; model nil означает отсутствие данных рельефа
func NewStepDeriver(model elevation.Model, settings Settings, logger *utils.Logger) *StepDeriver {
	if model == nil {
		model = elevation.None{}
	}
	return &StepDeriver{model: model, settings: settings, logger: logger}
}

// Model источник высот рельефа
func (d *StepDeriver) Model() elevation.Model {
	return d.model
}

// Settings параметры, с которыми работает вычислитель
func (d *StepDeriver) Settings() Settings {
	return d.settings
}

// Derive создает по одному шагу на секцию
func (d *StepDeriver) Derive(sections *models.FlightSections) (*models.FlightSteps, error) {
	if sections.Len() == 0 {
		return models.NewFlightSteps(nil), nil
	}
	start := time.Now()

	list := make([]*models.FlightStep, 0, sections.Len())
	for _, s := range sections.Sections {
		list = append(list, &models.FlightStep{TardisCore: s.TardisCore.Clone()})
	}
	steps := models.NewFlightSteps(list)

	steps.RecomputeLineal()
	RecomputeDeltaYaw(steps)
	for _, step := range steps.Steps {
		d.sampleGround(step)
		d.applyCamera(step)
	}
	steps.Summarise()

	if err := steps.AssertGoodSubset(&sections.TardisSummary, true); err != nil {
		return nil, fmt.Errorf("derived steps: %w", err)
	}

	d.reportCache()
	metrics.StageDuration.WithLabelValues("derive").Observe(time.Since(start).Seconds())

	footprints := 0
	for _, s := range steps.Steps {
		if s.Footprint != nil {
			footprints++
		}
	}
	d.logger.WithField("steps", steps.Len()).
		WithField("footprints", footprints).
		WithField("has_elevation", d.model.HasElevationData()).
		WithField("gimbal", d.settings.Gimbal.String()).
		Debug("Steps derived")

	return steps, nil
}

// RecomputeDeltaYaw пересчитывает изменение курса относительно предыдущего шага.
// Неизвестный курс или изменение меньше DeltaYawEpsilonDeg дают 0.
func RecomputeDeltaYaw(steps *models.FlightSteps) {
	for i, s := range steps.Steps {
		s.DeltaYawDeg = 0
		if i == 0 {
			continue
		}
		prev := steps.Steps[i-1]
		if s.YawDeg == nil || prev.YawDeg == nil {
			continue
		}
		delta := models.YawDegsDelta(*prev.YawDeg, *s.YawDeg)
		if math.Abs(delta) >= models.DeltaYawEpsilonDeg {
			s.DeltaYawDeg = delta
		}
	}
}

// sampleGround DEM и DSM в локальной позиции шага
func (d *StepDeriver) sampleGround(step *models.FlightStep) {
	step.DemM, step.DsmM = nil, nil
	if step.Location == nil {
		return
	}
	if v, ok := d.model.ElevationAt(step.Location.NorthingM, step.Location.EastingM, elevation.DEM); ok {
		step.DemM = models.Float(v)
	}
	if v, ok := d.model.ElevationAt(step.Location.NorthingM, step.Location.EastingM, elevation.DSM); ok {
		step.DsmM = models.Float(v)
	}
}

// CameraDownDeg угол камеры вниз от горизонта, [0, 90].
// С данными подвеса это -pitch подвеса; без них настройка минус наклон корпуса.
func (d *StepDeriver) CameraDownDeg(step *models.FlightStep) float64 {
	var down float64
	if d.settings.Gimbal.Available() {
		down = d.settings.CameraDownDeg
		if step.PitchDeg != nil {
			down = -*step.PitchDeg
		}
	} else {
		down = d.settings.CameraDownDeg - models.FloatOr(step.PitchDeg, 0)
	}
	return math.Max(0, math.Min(90, down))
}

// applyCamera угол камеры и зона обзора шага
func (d *StepDeriver) applyCamera(step *models.FlightStep) {
	step.CameraDownDeg = d.CameraDownDeg(step)
	step.Footprint = nil

	height := step.HeightAboveGroundM()
	if step.Location == nil || step.YawDeg == nil || height == nil {
		return
	}
	step.Footprint = models.ComputeFootprint(*step.Location, *step.YawDeg, *height,
		step.CameraDownDeg, d.settings.HFOVDeg, d.settings.VFOVDeg)
}

func (d *StepDeriver) reportCache() {
	if cached, ok := d.model.(*elevation.Cached); ok {
		_, _, rate := cached.Stats()
		metrics.ElevationCacheHitRate.Set(rate)
	}
}

// GroundFilter заново берет DEM/DSM в позициях шагов (после сглаживания)
type GroundFilter struct {
	deriver *StepDeriver
}

// NewGroundFilter создает фильтр выборки рельефа
func NewGroundFilter(deriver *StepDeriver) *GroundFilter {
	return &GroundFilter{deriver: deriver}
}

func (f *GroundFilter) Name() string { return "ground" }

func (f *GroundFilter) Description() string {
	return "Resamples DEM and DSM elevation at step locations"
}

func (f *GroundFilter) Filter(steps *models.FlightSteps) error {
	for _, step := range steps.Steps {
		f.deriver.sampleGround(step)
	}
	f.deriver.reportCache()
	return nil
}

// FootprintFilter пересчитывает угол камеры и зону обзора по текущей высоте
type FootprintFilter struct {
	deriver *StepDeriver
}

// NewFootprintFilter создает фильтр зоны обзора
func NewFootprintFilter(deriver *StepDeriver) *FootprintFilter {
	return &FootprintFilter{deriver: deriver}
}

func (f *FootprintFilter) Name() string { return "footprint" }

func (f *FootprintFilter) Description() string {
	return "Computes camera-down angle and ground footprint per step"
}

func (f *FootprintFilter) Filter(steps *models.FlightSteps) error {
	for _, step := range steps.Steps {
		f.deriver.applyCamera(step)
	}
	return nil
}
