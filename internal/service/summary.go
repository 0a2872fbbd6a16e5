package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/flybeeper/flightpath/internal/models"
)

// Summary краткое описание опубликованного состояния
func (d *Drone) Summary() *models.FlightSummary {
	return summaryOf(d.Snapshot())
}

func summaryOf(state *State) *models.FlightSummary {
	summary := &models.FlightSummary{
		RunID:      state.RunID,
		Source:     state.Source,
		FromImages: state.FromImages,
		GimbalData: state.Settings.Gimbal.String(),
		OnGroundAt: state.OnGroundAt.String(),
		ComputedAt: state.ComputedAt,
	}
	if state.Sections != nil {
		summary.FlightKey = state.Sections.FlightKey()
		summary.Sections = state.Sections.Len()
		if state.Sections.HasGlobal {
			origin := state.Sections.Origin
			summary.Origin = &origin
		}
	}
	if state.HasData() {
		steps := state.Steps
		summary.Steps = steps.Len()
		summary.DurationMs = steps.DurationMs()
		summary.DistanceM = steps.TotalLineal
		if steps.Altitude.Valid {
			summary.AltitudeMinM = models.Float(steps.Altitude.Min)
			summary.AltitudeMaxM = models.Float(steps.Altitude.Max)
		}
	}
	if state.Legs != nil {
		summary.Legs = state.Legs.Count()
		summary.LegsActive = state.Legs.Active
		summary.WhyInactive = state.Legs.WhyInactive
	}
	summary.Description = describe(state, summary)
	return summary
}

// Describe однострочное описание полета для логов и API
func (d *Drone) Describe() string {
	state := d.Snapshot()
	return describe(state, summaryOf(state))
}

func describe(state *State, summary *models.FlightSummary) string {
	if !state.HasData() {
		if state.NoDataReason != "" {
			return "no flight data: " + firstLine(state.NoDataReason)
		}
		return "no flight data"
	}

	distance, distanceUnit := humanize.ComputeSI(summary.DistanceM)
	duration := (time.Duration(summary.DurationMs) * time.Millisecond).Round(time.Second)

	parts := []string{
		fmt.Sprintf("%s sections from %s", humanize.Comma(int64(summary.Sections)), summary.Source),
		duration.String(),
		fmt.Sprintf("%s %sm", humanize.FtoaWithDigits(distance, 1), distanceUnit),
	}
	if summary.AltitudeMinM != nil && summary.AltitudeMaxM != nil {
		parts = append(parts, fmt.Sprintf("altitude %s..%s m",
			humanize.FtoaWithDigits(*summary.AltitudeMinM, 1), humanize.FtoaWithDigits(*summary.AltitudeMaxM, 1)))
	}

	legs := fmt.Sprintf("%d legs", summary.Legs)
	if summary.LegsActive {
		legs += " (active)"
	} else if summary.WhyInactive != "" {
		legs += " (inactive: " + summary.WhyInactive + ")"
	}
	parts = append(parts, legs)

	if state.OnGroundAt != models.OnGroundNeither {
		parts = append(parts, fmt.Sprintf("ground fix %s %.1f/%.1f m", state.OnGroundAt, state.FixStartM, state.FixEndM))
	}
	return strings.Join(parts, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
