package filter

import (
	"fmt"
	"math"
	"time"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

const (
	// GimbalPitchThresholdDeg порог наклона, когда подвес компенсирует наклон корпуса
	GimbalPitchThresholdDeg = 95.0

	// Минимальное число секций, при котором ноги используются
	MinVideoSectionsForLegs = 200
	MinImageSectionsForLegs = 20

	// MinLegsForUse ног должно быть больше этого числа
	MinLegsForUse = 2
	// MinLegCoverage доля расстояния полета, которую должны покрывать ноги
	MinLegCoverage = 0.33
)

// legCandidate диапазон позиций шагов [from, to]
type legCandidate struct {
	from, to   int
	whyEnded   string
	durationMs int
	distanceM  float64
}

// LegSegmenter делит шаги на ноги: участки с почти постоянными высотой, курсом и наклоном
type LegSegmenter struct {
	cfg     config.LegConfig
	useLegs bool
	logger  *utils.Logger
}

// NewLegSegmenter создает сегментатор
func NewLegSegmenter(cfg config.LegConfig, useLegs bool, logger *utils.Logger) *LegSegmenter {
	return &LegSegmenter{cfg: cfg, useLegs: useLegs, logger: logger}
}

// Segment выделяет ноги и решает, используются ли они
func (ls *LegSegmenter) Segment(steps *models.FlightSteps, sectionsCount int, fromImages bool, gimbal models.GimbalDataAvail) (*models.FlightLegs, error) {
	start := time.Now()
	legs := models.NewFlightLegs()
	if steps.Len() == 0 {
		legs.WhyInactive = "no steps"
		return legs, nil
	}

	ls.logger.WithField("steps", steps.Len()).
		WithField("gimbal", gimbal.String()).
		Debug("Starting leg segmentation")

	cfg := ls.cfg
	if gimbal.Available() {
		cfg.MaxStepPitchDeg = GimbalPitchThresholdDeg
		cfg.MaxSumPitchDeg = GimbalPitchThresholdDeg
	}

	candidates := ls.detect(steps, cfg)
	candidates = ls.refine(candidates)
	if err := ls.finalize(steps, candidates, legs); err != nil {
		return nil, err
	}
	ls.decide(legs, steps, sectionsCount, fromImages)

	metrics.LegsDetected.Set(float64(legs.Count()))
	if legs.Active {
		metrics.LegsActive.Set(1)
	} else {
		metrics.LegsActive.Set(0)
	}
	metrics.StageDuration.WithLabelValues("legs").Observe(time.Since(start).Seconds())

	ls.logger.WithField("legs", legs.Count()).
		WithField("active", legs.Active).
		WithField("why_inactive", legs.WhyInactive).
		WithField("legs_distance_m", legs.TotalDistanceM()).
		Info("Leg segmentation completed")

	return legs, nil
}

// detect первый проход: поиск границ ног
func (ls *LegSegmenter) detect(steps *models.FlightSteps, cfg config.LegConfig) []legCandidate {
	var kept []legCandidate
	list := steps.Steps

	closeCandidate := func(from, to int, why string) {
		c := legCandidate{
			from:       from,
			to:         to,
			whyEnded:   why,
			durationMs: list[to].StartTimeMs() - list[from].StartTimeMs(),
			distanceM:  list[to].SumLinealM - list[from].SumLinealM,
		}
		if c.durationMs >= cfg.MinDurationMs && c.distanceM >= cfg.MinDistanceM {
			kept = append(kept, c)
			return
		}
		ls.logger.WithField("from_step", list[from].ID).
			WithField("to_step", list[to].ID).
			WithField("duration_ms", c.durationMs).
			WithField("distance_m", c.distanceM).
			WithField("why_ended", why).
			Debug("Leg candidate discarded")
	}

	from := 0
	for i := 1; i < len(list); i++ {
		if why := breakReason(list[from], list[i-1], list[i], cfg); why != "" {
			closeCandidate(from, i-1, why)
			from = i
		}
	}
	closeCandidate(from, len(list)-1, models.LegEndFlightEnded)
	return kept
}

// breakReason причина, по которой шаг cur не продолжает ногу, начатую с first; "" если продолжает
func breakReason(first, prev, cur *models.FlightStep, cfg config.LegConfig) string {
	if first.AltitudeM == nil || prev.AltitudeM == nil || cur.AltitudeM == nil {
		return models.LegEndNoAltitude
	}
	if first.YawDeg == nil || prev.YawDeg == nil || cur.YawDeg == nil {
		return models.LegEndNoYaw
	}
	if cur.StartTimeMs()-prev.StartTimeMs() > cfg.MaxGapDurationMs {
		return models.LegEndTimeGap
	}
	if math.Abs(*cur.AltitudeM-*prev.AltitudeM) > cfg.MaxStepAltDeltaM {
		return models.LegEndAltitudeStep
	}
	if math.Abs(*cur.AltitudeM-*first.AltitudeM) > cfg.MaxSumAltDeltaM {
		return models.LegEndAltitudeSum
	}
	if math.Abs(models.YawDegsDelta(*prev.YawDeg, *cur.YawDeg)) > cfg.MaxStepYawDeltaDeg {
		return models.LegEndYawStep
	}
	if math.Abs(models.YawDegsDelta(*first.YawDeg, *cur.YawDeg)) > cfg.MaxSumYawDeltaDeg {
		return models.LegEndYawSum
	}
	// Неизвестный наклон не ограничивает ногу
	if prev.PitchDeg != nil && cur.PitchDeg != nil &&
		math.Abs(*cur.PitchDeg-*prev.PitchDeg) > cfg.MaxStepPitchDeg {
		return models.LegEndPitchStep
	}
	if first.PitchDeg != nil && cur.PitchDeg != nil &&
		math.Abs(*cur.PitchDeg-*first.PitchDeg) > cfg.MaxSumPitchDeg {
		return models.LegEndPitchSum
	}
	return ""
}

// refine второй проход зарезервирован для уточнения границ между соседними ногами
func (ls *LegSegmenter) refine(candidates []legCandidate) []legCandidate {
	return candidates
}

// finalize третий проход: сводки, id и связь шагов с ногами
func (ls *LegSegmenter) finalize(steps *models.FlightSteps, candidates []legCandidate, legs *models.FlightLegs) error {
	for i, c := range candidates {
		if c.to < c.from {
			continue
		}
		id := len(legs.Legs) + 1
		leg := &models.FlightLeg{
			TardisSummary: steps.SummariseRange(c.from, c.to),
			ID:            id,
			Name:          models.LegName(id),
			MinStepID:     steps.Steps[c.from].ID,
			MaxStepID:     steps.Steps[c.to].ID,
			WhyLegEnded:   c.whyEnded,
			DistanceM:     c.distanceM,
		}
		if err := leg.AssertGoodSubset(&steps.TardisSummary, true); err != nil {
			return fmt.Errorf("leg %s (candidate %d): %w", leg.Name, i, err)
		}

		ids := make([]int, 0, c.to-c.from+1)
		for j := c.from; j <= c.to; j++ {
			ids = append(ids, steps.Steps[j].ID)
		}
		legs.Add(leg, ids)
	}
	return nil
}

// decide ноги используются только для достаточно длинного полета с несколькими ногами,
// покрывающими заметную часть пути
func (ls *LegSegmenter) decide(legs *models.FlightLegs, steps *models.FlightSteps, sectionsCount int, fromImages bool) {
	minSections := MinVideoSectionsForLegs
	if fromImages {
		minSections = MinImageSectionsForLegs
	}
	total := steps.TotalLineal

	legs.Active = false
	switch {
	case !ls.useLegs:
		legs.WhyInactive = "legs disabled"
	case sectionsCount <= minSections:
		legs.WhyInactive = fmt.Sprintf("too few sections (%d <= %d)", sectionsCount, minSections)
	case legs.Count() <= MinLegsForUse:
		legs.WhyInactive = fmt.Sprintf("too few legs (%d <= %d)", legs.Count(), MinLegsForUse)
	case total <= 0 || legs.TotalDistanceM() <= MinLegCoverage*total:
		coverage := 0.0
		if total > 0 {
			coverage = 100 * legs.TotalDistanceM() / total
		}
		legs.WhyInactive = fmt.Sprintf("legs cover %.0f%% of flight distance (<= %.0f%%)", coverage, 100*MinLegCoverage)
	default:
		legs.Active = true
		legs.WhyInactive = ""
	}
}
