// Package elevation provides ground (DEM) and surface (DSM) elevation lookups
// in flight-local meters.
package elevation

import "math"

// Kind selects the elevation surface
type Kind int

const (
	// DEM is bare terrain
	DEM Kind = iota
	// DSM includes vegetation and buildings
	DSM
)

func (k Kind) String() string {
	if k == DSM {
		return "dsm"
	}
	return "dem"
}

// Model answers elevation queries at flight-local positions.
// ElevationAt reports false when the position has no data.
type Model interface {
	ElevationAt(northingM, eastingM float64, kind Kind) (float64, bool)
	HasElevationData() bool
	MinMaxElevation() (float64, float64)
}

// None is a model with no elevation data
type None struct{}

func (None) ElevationAt(float64, float64, Kind) (float64, bool) { return 0, false }
func (None) HasElevationData() bool                             { return false }
func (None) MinMaxElevation() (float64, float64)                { return 0, 0 }

// Flat is a constant-elevation model. A NaN DSM means surface data is unavailable.
type Flat struct {
	DEMM float64
	DSMM float64
}

// NewFlat returns a flat model with ground only
func NewFlat(demM float64) *Flat {
	return &Flat{DEMM: demM, DSMM: math.NaN()}
}

func (f *Flat) ElevationAt(_, _ float64, kind Kind) (float64, bool) {
	if kind == DSM {
		if math.IsNaN(f.DSMM) {
			return 0, false
		}
		return f.DSMM, true
	}
	return f.DEMM, true
}

func (f *Flat) HasElevationData() bool { return true }

func (f *Flat) MinMaxElevation() (float64, float64) {
	lo, hi := f.DEMM, f.DEMM
	if !math.IsNaN(f.DSMM) {
		lo, hi = math.Min(lo, f.DSMM), math.Max(hi, f.DSMM)
	}
	return lo, hi
}
