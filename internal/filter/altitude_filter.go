package filter

import (
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

// AutoGroundToleranceM в режиме Auto конец полета считается на земле,
// если высота над DEM меньше порога (в том числе отрицательная)
const AutoGroundToleranceM = 5.0

// AltitudeFilter корректирует барометрическую высоту по известным касаниям земли.
// Поправка сохраняется в FixAltM каждого шага; перед применением предыдущая поправка
// снимается, поэтому повторный запуск дает тот же результат.
type AltitudeFilter struct {
	mode   models.OnGroundAt
	logger *utils.Logger

	resolved models.OnGroundAt
	startFix float64
	endFix   float64
}

// NewAltitudeFilter создает фильтр коррекции высоты
func NewAltitudeFilter(mode models.OnGroundAt, logger *utils.Logger) *AltitudeFilter {
	return &AltitudeFilter{mode: mode, logger: logger, resolved: models.OnGroundNeither}
}

func (f *AltitudeFilter) Name() string { return "altitude" }

func (f *AltitudeFilter) Description() string {
	return "Corrects barometric altitude using on-ground anchors (" + f.mode.String() + ")"
}

// Resolved режим после разрешения Auto в последнем запуске
func (f *AltitudeFilter) Resolved() models.OnGroundAt {
	return f.resolved
}

// Fixes поправки в начале и в конце полета в последнем запуске
func (f *AltitudeFilter) Fixes() (startM, endM float64) {
	return f.startFix, f.endFix
}

func (f *AltitudeFilter) Filter(steps *models.FlightSteps) error {
	RevertAltitudeFix(steps)
	f.startFix, f.endFix = 0, 0

	first, last := groundAnchors(steps)
	mode := f.mode
	if mode == models.OnGroundAuto {
		mode = autoOnGround(steps, first, last)
	}
	if first < 0 && mode != models.OnGroundNeither {
		f.logger.WithField("on_ground_at", mode.String()).
			Warn("No ground elevation at flight endpoints, altitude is not corrected")
		mode = models.OnGroundNeither
	}
	f.resolved = mode

	if mode == models.OnGroundNeither {
		steps.Summarise()
		f.logger.WithField("on_ground_at", f.mode.String()).
			Debug("Altitude correction skipped")
		return nil
	}

	fixAt := func(i int) float64 {
		s := steps.Steps[i]
		return *s.DemM - *s.AltitudeM
	}
	f.startFix, f.endFix = fixAt(first), fixAt(last)
	switch mode {
	case models.OnGroundStart:
		f.endFix = f.startFix
	case models.OnGroundEnd:
		f.startFix = f.endFix
	}

	t0 := steps.Steps[first].StartTime
	span := float64(steps.Steps[last].StartTime - t0)
	for _, s := range steps.Steps {
		if s.AltitudeM == nil {
			continue
		}
		frac := 0.0
		if span > 0 {
			frac = min(1, max(0, float64(s.StartTime-t0)/span))
		}
		fix := f.startFix + (f.endFix-f.startFix)*frac
		s.FixAltM = fix
		*s.AltitudeM += fix
	}
	steps.Summarise()

	metrics.AltitudeFix.WithLabelValues("start").Set(f.startFix)
	metrics.AltitudeFix.WithLabelValues("end").Set(f.endFix)

	f.logger.WithField("on_ground_at", mode.String()).
		WithField("start_fix_m", f.startFix).
		WithField("end_fix_m", f.endFix).
		Debug("Altitude corrected")
	return nil
}

// RevertAltitudeFix снимает ранее примененную поправку высоты
func RevertAltitudeFix(steps *models.FlightSteps) {
	for _, s := range steps.Steps {
		if s.AltitudeM != nil && s.FixAltM != 0 {
			*s.AltitudeM -= s.FixAltM
		}
		s.FixAltM = 0
	}
}

// groundAnchors первый и последний шаги, где известны и высота, и DEM; -1 если таких нет
func groundAnchors(steps *models.FlightSteps) (first, last int) {
	first, last = -1, -1
	for i, s := range steps.Steps {
		if s.AltitudeM != nil && s.DemM != nil {
			first = i
			break
		}
	}
	for i := len(steps.Steps) - 1; i >= 0; i-- {
		s := steps.Steps[i]
		if s.AltitudeM != nil && s.DemM != nil {
			last = i
			break
		}
	}
	return first, last
}

// autoOnGround конец на земле, если высота над рельефом меньше AutoGroundToleranceM
func autoOnGround(steps *models.FlightSteps, first, last int) models.OnGroundAt {
	if first < 0 {
		return models.OnGroundNeither
	}
	near := func(i int) bool {
		h := steps.Steps[i].HeightAboveGroundM()
		return h != nil && *h < AutoGroundToleranceM
	}
	if first == last {
		return models.OnGroundFrom(near(first), false)
	}
	return models.OnGroundFrom(near(first), near(last))
}
