package handler

import (
	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/internal/service"
)

// StepResponse шаг полета в ответах API
type StepResponse struct {
	ID            int               `json:"id"`
	SectionID     int               `json:"section_id"`
	TimeMs        int               `json:"time_ms"`
	Position      *models.GeoPoint  `json:"position,omitempty"`
	Location      *geo.Local        `json:"location,omitempty"`
	Country       *geo.Local        `json:"country,omitempty"`
	AltitudeM     *float64          `json:"altitude_m,omitempty"`
	RawAltitudeM  *float64          `json:"raw_altitude_m,omitempty"`
	FixAltM       float64           `json:"fix_alt_m"`
	HeightM       *float64          `json:"height_above_ground_m,omitempty"`
	DemM          *float64          `json:"dem_m,omitempty"`
	DsmM          *float64          `json:"dsm_m,omitempty"`
	YawDeg        *float64          `json:"yaw_deg,omitempty"`
	PitchDeg      *float64          `json:"pitch_deg,omitempty"`
	RollDeg       *float64          `json:"roll_deg,omitempty"`
	SpeedMps      float64           `json:"speed_mps"`
	CameraDownDeg float64           `json:"camera_down_deg"`
	LegID         int               `json:"leg_id"`
	InRunScope    bool              `json:"in_run_scope"`
	Footprint     *FootprintPayload `json:"footprint,omitempty"`
}

// FootprintPayload зона обзора камеры с углами в широте/долготе
type FootprintPayload struct {
	WidthM  float64           `json:"width_m"`
	LengthM float64           `json:"length_m"`
	YawDeg  float64           `json:"yaw_deg"`
	Center  *models.GeoPoint  `json:"center,omitempty"`
	Corners []models.GeoPoint `json:"corners,omitempty"`
}

// LegResponse нога полета в ответах API
type LegResponse struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	MinStepID   int      `json:"min_step_id"`
	MaxStepID   int      `json:"max_step_id"`
	StartMs     int      `json:"start_ms"`
	DurationMs  int      `json:"duration_ms"`
	DistanceM   float64  `json:"distance_m"`
	WhyLegEnded string   `json:"why_leg_ended"`
	AltitudeMin *float64 `json:"altitude_min_m,omitempty"`
	AltitudeMax *float64 `json:"altitude_max_m,omitempty"`
	YawMin      *float64 `json:"yaw_min_deg,omitempty"`
	YawMax      *float64 `json:"yaw_max_deg,omitempty"`
}

// LegsResponse список ног с решением об их использовании
type LegsResponse struct {
	Active      bool          `json:"active"`
	WhyInactive string        `json:"why_inactive,omitempty"`
	Legs        []LegResponse `json:"legs"`
}

// RunRangeResponse диапазон обработки по умолчанию
type RunRangeResponse struct {
	StartStepID  int      `json:"start_step_id"`
	EndStepID    int      `json:"end_step_id"`
	StartMs      int      `json:"start_ms"`
	EndMs        int      `json:"end_ms"`
	FromLegs     bool     `json:"from_legs"`
	AltitudeMinM *float64 `json:"altitude_min_m,omitempty"`
	AltitudeMaxM *float64 `json:"altitude_max_m,omitempty"`
}

func rangeBounds(r models.Range) (minV, maxV *float64) {
	if !r.Valid {
		return nil, nil
	}
	return models.Float(r.Min), models.Float(r.Max)
}

// convertStep переводит шаг в ответ API; projection может быть nil
func convertStep(state *service.State, step *models.FlightStep, inScope bool, projection *geo.TransverseMercator) StepResponse {
	resp := StepResponse{
		ID:            step.ID,
		SectionID:     step.SectionID(),
		TimeMs:        step.StartTimeMs(),
		AltitudeM:     step.AltitudeM,
		RawAltitudeM:  step.RawAltitudeM(),
		FixAltM:       step.FixAltM,
		HeightM:       step.HeightAboveGroundM(),
		DemM:          step.DemM,
		DsmM:          step.DsmM,
		YawDeg:        step.YawDeg,
		PitchDeg:      step.PitchDeg,
		RollDeg:       step.RollDeg,
		SpeedMps:      step.SpeedMps(),
		CameraDownDeg: step.CameraDownDeg,
		LegID:         state.Legs.LegIDOf(step.ID),
		InRunScope:    inScope,
	}

	hasGlobal := state.Sections != nil && state.Sections.HasGlobal
	if step.Location != nil {
		loc := *step.Location
		resp.Location = &loc
		if hasGlobal {
			p := models.GeoPointFromLocal(loc, state.Sections.Origin)
			resp.Position = &p
			if projection != nil {
				country := geo.LocalToCountry(loc, state.Sections.Origin.Latitude, state.Sections.Origin.Longitude, *projection)
				resp.Country = &country
			}
		}
	}

	if fp := step.Footprint; fp != nil {
		payload := &FootprintPayload{WidthM: fp.WidthM, LengthM: fp.LengthM, YawDeg: fp.YawDeg}
		if hasGlobal {
			center := models.GeoPointFromLocal(fp.Center, state.Sections.Origin)
			payload.Center = &center
			for _, c := range fp.Corners() {
				payload.Corners = append(payload.Corners, models.GeoPointFromLocal(c, state.Sections.Origin))
			}
		}
		resp.Footprint = payload
	}
	return resp
}

// convertLeg переводит ногу в ответ API
func convertLeg(leg *models.FlightLeg) LegResponse {
	resp := LegResponse{
		ID:          leg.ID,
		Name:        leg.Name,
		MinStepID:   leg.MinStepID,
		MaxStepID:   leg.MaxStepID,
		DurationMs:  leg.DurationMs(),
		DistanceM:   leg.DistanceM,
		WhyLegEnded: leg.WhyLegEnded,
	}
	if leg.Times.Valid {
		resp.StartMs = int(leg.Times.Min.Milliseconds())
	}
	resp.AltitudeMin, resp.AltitudeMax = rangeBounds(leg.Altitude)
	resp.YawMin, resp.YawMax = rangeBounds(leg.Yaw)
	return resp
}

// convertLegs список ног состояния
func convertLegs(legs *models.FlightLegs) LegsResponse {
	resp := LegsResponse{Legs: make([]LegResponse, 0, legs.Count())}
	if legs == nil {
		return resp
	}
	resp.Active = legs.Active
	resp.WhyInactive = legs.WhyInactive
	for _, leg := range legs.Legs {
		resp.Legs = append(resp.Legs, convertLeg(leg))
	}
	return resp
}
