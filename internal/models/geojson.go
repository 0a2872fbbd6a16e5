package models

import (
	"github.com/flybeeper/flightpath/internal/geo"
	geojson "github.com/paulmach/go.geojson"
)

// FlightGeoJSON строит GeoJSON с траекторией шагов, ногами и, по запросу, зонами обзора камеры
func FlightGeoJSON(sections *FlightSections, steps *FlightSteps, legs *FlightLegs, withFootprints bool) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if sections == nil || !sections.HasGlobal || steps == nil {
		return fc
	}
	origin := sections.Origin

	toCoord := func(local geo.Local) []float64 {
		p := GeoPointFromLocal(local, origin)
		return []float64{p.Longitude, p.Latitude}
	}

	path := make([][]float64, 0, steps.Len())
	for _, s := range steps.Steps {
		if s.Location != nil {
			path = append(path, toCoord(*s.Location))
		}
	}
	if len(path) >= 2 {
		f := geojson.NewLineStringFeature(path)
		f.SetProperty("kind", "flight")
		f.SetProperty("steps", steps.Len())
		f.SetProperty("distance_m", steps.TotalLineal)
		f.SetProperty("source", sections.Source)
		fc.AddFeature(f)
	}

	for _, leg := range legs.ActiveLegs() {
		from, okFrom := steps.IndexOf(leg.MinStepID)
		to, okTo := steps.IndexOf(leg.MaxStepID)
		if !okFrom || !okTo {
			continue
		}
		coords := make([][]float64, 0, to-from+1)
		for i := from; i <= to; i++ {
			if loc := steps.Steps[i].Location; loc != nil {
				coords = append(coords, toCoord(*loc))
			}
		}
		if len(coords) < 2 {
			continue
		}
		f := geojson.NewLineStringFeature(coords)
		f.SetProperty("kind", "leg")
		f.SetProperty("leg_id", leg.ID)
		f.SetProperty("name", leg.Name)
		f.SetProperty("why_ended", leg.WhyLegEnded)
		f.SetProperty("distance_m", leg.DistanceM)
		f.SetProperty("duration_ms", leg.DurationMs())
		fc.AddFeature(f)
	}

	if !withFootprints {
		return fc
	}
	for _, s := range steps.Steps {
		if s.Footprint == nil {
			continue
		}
		corners := s.Footprint.Corners()
		ring := make([][]float64, 0, len(corners)+1)
		for _, c := range corners {
			ring = append(ring, toCoord(c))
		}
		ring = append(ring, ring[0])
		f := geojson.NewPolygonFeature([][][]float64{ring})
		f.SetProperty("kind", "footprint")
		f.SetProperty("step_id", s.ID)
		f.SetProperty("leg_id", legs.LegIDOf(s.ID))
		fc.AddFeature(f)
	}
	return fc
}
