package models

import "time"

// FlightSummary краткое описание обработанного полета для API и кэша
type FlightSummary struct {
	RunID        string    `json:"run_id"`
	FlightKey    string    `json:"flight_key"`
	Source       string    `json:"source"`
	FromImages   bool      `json:"from_images"`
	GimbalData   string    `json:"gimbal_data"`
	OnGroundAt   string    `json:"on_ground_at"`
	Sections     int       `json:"sections"`
	Steps        int       `json:"steps"`
	Legs         int       `json:"legs"`
	LegsActive   bool      `json:"legs_active"`
	WhyInactive  string    `json:"why_inactive,omitempty"`
	DurationMs   int       `json:"duration_ms"`
	DistanceM    float64   `json:"distance_m"`
	AltitudeMinM *float64  `json:"altitude_min_m,omitempty"`
	AltitudeMaxM *float64  `json:"altitude_max_m,omitempty"`
	Origin       *GeoPoint `json:"origin,omitempty"`
	Description  string    `json:"description"`
	ComputedAt   time.Time `json:"computed_at"`
}
