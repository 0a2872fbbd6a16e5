package service

import (
	"math"

	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/flybeeper/flightpath/internal/models"
)

// MaxNearRadiusM предел радиуса поиска шагов вокруг точки
const MaxNearRadiusM = 5000

// spatialIndex индексы шагов по положению и по центру зоны обзора
type spatialIndex struct {
	steps      *geo.QuadTree
	footprints *geo.QuadTree
	// reachM наибольшее расстояние от центра зоны обзора до ее угла
	reachM float64
}

func buildSpatialIndex(steps *models.FlightSteps) *spatialIndex {
	var locations, centers []geo.Point
	reach := 0.0
	for _, s := range steps.Steps {
		if s.Location != nil {
			locations = append(locations, geo.Point{ID: s.ID, Pos: *s.Location})
		}
		if fp := s.Footprint; fp != nil {
			centers = append(centers, geo.Point{ID: s.ID, Pos: fp.Center})
			reach = math.Max(reach, math.Hypot(fp.WidthM, fp.LengthM)/2)
		}
	}
	return &spatialIndex{
		steps:      geo.BuildQuadTree(locations),
		footprints: geo.BuildQuadTree(centers),
		reachM:     reach,
	}
}

// localOf точка в локальных координатах полета; false без GPS
func localOf(state *State, p models.GeoPoint) (geo.Local, bool) {
	if !state.HasData() || state.index == nil || state.Sections == nil || !state.Sections.HasGlobal {
		return geo.Local{}, false
	}
	return p.ToLocal(state.Sections.Origin), true
}

// StepsNear шаги не дальше radiusM от точки, по возрастанию id
func (d *Drone) StepsNear(p models.GeoPoint, radiusM float64) []*models.FlightStep {
	state := d.Snapshot()
	local, ok := localOf(state, p)
	if !ok {
		return nil
	}
	return stepsOf(state, state.index.steps.QueryRadius(local, math.Min(radiusM, MaxNearRadiusM)))
}

// StepsCovering шаги, в зону обзора которых попадает точка на земле, по возрастанию id
func (d *Drone) StepsCovering(p models.GeoPoint) []*models.FlightStep {
	state := d.Snapshot()
	local, ok := localOf(state, p)
	if !ok {
		return nil
	}

	var covering []*models.FlightStep
	for _, step := range stepsOf(state, state.index.footprints.QueryRadius(local, state.index.reachM)) {
		corners := step.Footprint.Corners()
		if geo.PolygonContains(corners[:], local) {
			covering = append(covering, step)
		}
	}
	return covering
}

func stepsOf(state *State, points []geo.Point) []*models.FlightStep {
	if len(points) == 0 {
		return nil
	}
	out := make([]*models.FlightStep, 0, len(points))
	for _, p := range points {
		if s := state.Steps.ByID(p.ID); s != nil {
			out = append(out, s)
		}
	}
	return out
}
