package models

import (
	"math"
	"sort"

	"github.com/flybeeper/flightpath/internal/geo"
)

// Footprint прямоугольник земли, видимый камерой на шаге
type Footprint struct {
	Center  geo.Local `json:"center"`
	WidthM  float64   `json:"width_m"`  // поперек направления полета
	LengthM float64   `json:"length_m"` // вдоль направления полета
	YawDeg  float64   `json:"yaw_deg"`
}

// Corners углы прямоугольника по часовой стрелке, начиная с переднего левого
func (f Footprint) Corners() [4]geo.Local {
	halfW, halfL := f.WidthM/2, f.LengthM/2
	local := [4]geo.Local{
		{EastingM: -halfW, NorthingM: halfL},
		{EastingM: halfW, NorthingM: halfL},
		{EastingM: halfW, NorthingM: -halfL},
		{EastingM: -halfW, NorthingM: -halfL},
	}
	// Курс отсчитывается по часовой стрелке от севера
	angle := -f.YawDeg * math.Pi / 180
	var corners [4]geo.Local
	for i, c := range local {
		corners[i] = geo.Translate(geo.RotatePoint(c, angle), f.Center)
	}
	return corners
}

// FlightStep производная запись 1:1 с секцией
type FlightStep struct {
	TardisCore
	DemM          *float64   `json:"dem_m,omitempty"`
	DsmM          *float64   `json:"dsm_m,omitempty"`
	FixAltM       float64    `json:"fix_alt_m"`
	CameraDownDeg float64    `json:"camera_down_deg"`
	Footprint     *Footprint `json:"footprint,omitempty"`
}

// SectionID id исходной секции (совпадает с id шага)
func (s *FlightStep) SectionID() int {
	return s.ID
}

// RawAltitudeM высота до коррекции
func (s *FlightStep) RawAltitudeM() *float64 {
	if s.AltitudeM == nil {
		return nil
	}
	return Float(*s.AltitudeM - s.FixAltM)
}

// HeightAboveGroundM высота над DEM, если обе величины известны
func (s *FlightStep) HeightAboveGroundM() *float64 {
	if s.AltitudeM == nil || s.DemM == nil {
		return nil
	}
	return Float(*s.AltitudeM - *s.DemM)
}

// BestSurfaceM DSM, иначе DEM
func (s *FlightStep) BestSurfaceM() *float64 {
	if s.DsmM != nil {
		return s.DsmM
	}
	return s.DemM
}

// Clone глубокая копия шага
func (s *FlightStep) Clone() *FlightStep {
	c := *s
	c.TardisCore = s.TardisCore.Clone()
	c.DemM = cloneFloat(s.DemM)
	c.DsmM = cloneFloat(s.DsmM)
	if s.Footprint != nil {
		fp := *s.Footprint
		c.Footprint = &fp
	}
	return &c
}

// FlightSteps последовательность шагов со сводкой
type FlightSteps struct {
	TardisSummary
	Steps []*FlightStep `json:"steps"`

	byID map[int]int
}

// NewFlightSteps создает последовательность и индекс по id
func NewFlightSteps(steps []*FlightStep) *FlightSteps {
	fs := &FlightSteps{Steps: steps}
	fs.reindex()
	fs.Summarise()
	return fs
}

func (fs *FlightSteps) reindex() {
	fs.byID = make(map[int]int, len(fs.Steps))
	for i, s := range fs.Steps {
		fs.byID[s.ID] = i
	}
}

// Len количество шагов
func (fs *FlightSteps) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Steps)
}

// ByID шаг по id или nil
func (fs *FlightSteps) ByID(id int) *FlightStep {
	if i, ok := fs.IndexOf(id); ok {
		return fs.Steps[i]
	}
	return nil
}

// IndexOf позиция шага по id
func (fs *FlightSteps) IndexOf(id int) (int, bool) {
	if fs.byID == nil {
		fs.reindex()
	}
	i, ok := fs.byID[id]
	return i, ok
}

// Summarise пересчитывает сводку
func (fs *FlightSteps) Summarise() {
	fs.TardisSummary.Reset()
	for _, s := range fs.Steps {
		fs.TardisSummary.Summarise(&s.TardisCore)
	}
}

// SummariseRange сводка по шагам с позициями [from, to]
func (fs *FlightSteps) SummariseRange(from, to int) TardisSummary {
	var summary TardisSummary
	for i := from; i <= to && i < len(fs.Steps); i++ {
		if i >= 0 {
			summary.Summarise(&fs.Steps[i].TardisCore)
		}
	}
	return summary
}

// RecomputeLineal пересчитывает расстояния и накопленную сумму по позициям
func (fs *FlightSteps) RecomputeLineal() {
	sum := 0.0
	for i, s := range fs.Steps {
		s.LinealM = 0
		if i > 0 {
			prev := fs.Steps[i-1]
			if s.Location != nil && prev.Location != nil {
				s.LinealM = geo.Distance(*prev.Location, *s.Location)
			}
		}
		sum += s.LinealM
		s.SumLinealM = sum
	}
}

// NearestByTime ближайший по времени шаг в позициях [from, to] (бинарный поиск)
func (fs *FlightSteps) NearestByTime(ms int, from, to int) *FlightStep {
	if len(fs.Steps) == 0 {
		return nil
	}
	if from < 0 {
		from = 0
	}
	if to >= len(fs.Steps) {
		to = len(fs.Steps) - 1
	}
	if from > to {
		return nil
	}
	window := fs.Steps[from : to+1]
	i := sort.Search(len(window), func(i int) bool {
		return window[i].StartTimeMs() >= ms
	})
	if i == 0 {
		return window[0]
	}
	if i == len(window) {
		return window[len(window)-1]
	}
	before, after := window[i-1], window[i]
	if ms-before.StartTimeMs() <= after.StartTimeMs()-ms {
		return before
	}
	return after
}

// Clone глубокая копия последовательности
func (fs *FlightSteps) Clone() *FlightSteps {
	steps := make([]*FlightStep, len(fs.Steps))
	for i, s := range fs.Steps {
		steps[i] = s.Clone()
	}
	c := &FlightSteps{TardisSummary: fs.TardisSummary, Steps: steps}
	c.reindex()
	return c
}

// FootprintHorizonMarginDeg дальний край зоны обзора ближе к горизонту, чем этот угол, дает nil
const FootprintHorizonMarginDeg = 5.0

// VerticalFOVDeg вертикальный угол обзора по горизонтальному и размеру кадра
func VerticalFOVDeg(hfovDeg, widthPx, heightPx float64) float64 {
	half := hfovDeg * math.Pi / 360
	return 2 * math.Atan(math.Tan(half)*heightPx/widthPx) * 180 / math.Pi
}

// ComputeFootprint зона обзора камеры на земле.
// cameraDownDeg отсчитывается от горизонта (90 = надир). nil, если высота над землей
// не положительна или дальний край кадра слишком близок к горизонту.
func ComputeFootprint(location geo.Local, yawDeg, heightM, cameraDownDeg, hfovDeg, vfovDeg float64) *Footprint {
	if heightM <= 0 || hfovDeg <= 0 || vfovDeg <= 0 {
		return nil
	}
	center := 90 - cameraDownDeg
	near := center - vfovDeg/2
	far := center + vfovDeg/2
	if far > 90-FootprintHorizonMarginDeg {
		return nil
	}

	toRad := math.Pi / 180
	nearM := heightM * math.Tan(near*toRad)
	farM := heightM * math.Tan(far*toRad)
	slant := heightM / math.Cos(center*toRad)

	return &Footprint{
		Center:  geo.Translate(location, geo.Offset(yawDeg, (nearM+farM)/2)),
		WidthM:  2 * slant * math.Tan(hfovDeg/2*toRad),
		LengthM: farM - nearM,
		YawDeg:  yawDeg,
	}
}
