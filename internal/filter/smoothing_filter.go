package filter

import (
	"fmt"
	"math"

	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
	"gonum.org/v1/gonum/stat"
)

// SmoothingFilter симметричное скользящее среднее позиции, высоты и курса.
// Окно сужается у краев полета, поэтому первый и последний шаги не изменяются.
type SmoothingFilter struct {
	size   int
	logger *utils.Logger
}

// NewSmoothingFilter создает фильтр сглаживания; size <= 1 отключает его
func NewSmoothingFilter(size int, logger *utils.Logger) *SmoothingFilter {
	return &SmoothingFilter{size: size, logger: logger}
}

func (f *SmoothingFilter) Name() string { return "smoothing" }

func (f *SmoothingFilter) Description() string {
	return fmt.Sprintf("Moving average over ±%d steps of location, altitude and yaw", f.size/2)
}

func (f *SmoothingFilter) Filter(steps *models.FlightSteps) error {
	n := steps.Len()
	if f.size <= 1 || n < 3 {
		return nil
	}

	steps.Summarise()
	orig := steps.TardisSummary

	// Окна считаются по исходным значениям, а не по уже сглаженным
	locs := make([]*geo.Local, n)
	alts := make([]*float64, n)
	yaws := make([]*float64, n)
	for i, s := range steps.Steps {
		if s.Location != nil {
			loc := *s.Location
			locs[i] = &loc
		}
		alts[i] = s.AltitudeM
		yaws[i] = s.YawDeg
	}

	half := f.size / 2
	northing := make([]float64, 0, f.size+1)
	easting := make([]float64, 0, f.size+1)
	values := make([]float64, 0, f.size+1)

	for i, s := range steps.Steps {
		k := min(half, i, n-1-i)
		if k == 0 {
			continue
		}
		from, to := i-k, i+k

		if locs[i] != nil {
			northing, easting = northing[:0], easting[:0]
			for j := from; j <= to; j++ {
				if locs[j] != nil {
					northing = append(northing, locs[j].NorthingM)
					easting = append(easting, locs[j].EastingM)
				}
			}
			s.Location = &geo.Local{
				NorthingM: stat.Mean(northing, nil),
				EastingM:  stat.Mean(easting, nil),
			}
		}

		if alts[i] != nil {
			values = values[:0]
			for j := from; j <= to; j++ {
				if alts[j] != nil {
					values = append(values, *alts[j])
				}
			}
			s.AltitudeM = models.Float(stat.Mean(values, nil))
		}

		if yaws[i] != nil {
			values = values[:0]
			for j := from; j <= to; j++ {
				if yaws[j] != nil {
					values = append(values, *yaws[j]*math.Pi/180)
				}
			}
			s.YawDeg = models.Float(models.SignedYaw(stat.CircularMean(values, nil) * 180 / math.Pi))
		}
	}

	steps.RecomputeLineal()
	RecomputeDeltaYaw(steps)
	clamped := clampToEnvelope(steps, &orig)
	steps.Summarise()

	if err := steps.AssertGoodRevision(&orig); err != nil {
		return fmt.Errorf("smoothing revision: %w", err)
	}

	f.logger.WithField("steps", n).
		WithField("window", f.size).
		WithField("clamped", clamped).
		WithField("total_lineal_m", steps.TotalLineal).
		Debug("Steps smoothed")
	return nil
}

// clampToEnvelope возвращает lineal, скорость и изменение курса в исходные диапазоны.
// Скорость ограничивается через lineal, так как вычисляется из него.
func clampToEnvelope(steps *models.FlightSteps, orig *models.TardisSummary) int {
	var lineal, speed, deltaYaw int
	sum := 0.0
	for _, s := range steps.Steps {
		if v := orig.Lineal.Clamp(s.LinealM); v != s.LinealM {
			s.LinealM = v
			lineal++
		}
		if orig.Speed.Valid && s.TimeMs > 0 && s.LinealM > 0 {
			v := s.SpeedMps()
			if c := orig.Speed.Clamp(v); c != v {
				s.LinealM = c * float64(s.TimeMs) / 1000
				speed++
			}
		}
		if v := orig.DeltaYaw.Clamp(s.DeltaYawDeg); v != s.DeltaYawDeg {
			s.DeltaYawDeg = v
			deltaYaw++
		}
		sum += s.LinealM
		s.SumLinealM = sum
	}

	if lineal > 0 {
		metrics.SmoothingClamped.WithLabelValues("lineal").Add(float64(lineal))
	}
	if speed > 0 {
		metrics.SmoothingClamped.WithLabelValues("speed").Add(float64(speed))
	}
	if deltaYaw > 0 {
		metrics.SmoothingClamped.WithLabelValues("delta_yaw").Add(float64(deltaYaw))
	}
	return lineal + speed + deltaYaw
}
