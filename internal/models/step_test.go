package models

import (
	"testing"
	"time"

	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepAt(id, ms int) *FlightStep {
	return &FlightStep{TardisCore: TardisCore{ID: id, StartTime: time.Duration(ms) * time.Millisecond}}
}

func TestFootprint_Corners(t *testing.T) {
	fp := Footprint{
		Center:  geo.Local{NorthingM: 100, EastingM: 50},
		WidthM:  20,
		LengthM: 40,
		YawDeg:  90,
	}

	corners := fp.Corners()

	// Курс на восток: передний левый угол на северо-востоке от центра
	assert.InDelta(t, 110, corners[0].NorthingM, 1e-9)
	assert.InDelta(t, 70, corners[0].EastingM, 1e-9)
	// Задний правый угол на юго-западе
	assert.InDelta(t, 90, corners[2].NorthingM, 1e-9)
	assert.InDelta(t, 30, corners[2].EastingM, 1e-9)

	diag := geo.Distance(corners[0], corners[2])
	assert.InDelta(t, geo.Local{NorthingM: 20, EastingM: 40}.Length(), diag, 1e-9)
}

func TestFlightStep_Altitudes(t *testing.T) {
	step := &FlightStep{
		TardisCore: TardisCore{AltitudeM: Float(40)},
		DemM:       Float(35),
		FixAltM:    -60,
	}

	assert.InDelta(t, 100, *step.RawAltitudeM(), 1e-9)
	assert.InDelta(t, 5, *step.HeightAboveGroundM(), 1e-9)
	assert.Equal(t, step.DemM, step.BestSurfaceM())

	step.DsmM = Float(38)
	assert.Equal(t, step.DsmM, step.BestSurfaceM())

	step.AltitudeM = nil
	assert.Nil(t, step.RawAltitudeM())
	assert.Nil(t, step.HeightAboveGroundM())
}

func TestFlightSteps_NearestByTime(t *testing.T) {
	steps := NewFlightSteps([]*FlightStep{
		stepAt(0, 0), stepAt(1, 250), stepAt(2, 500), stepAt(3, 1000),
	})

	tests := []struct {
		name     string
		ms       int
		expected int
	}{
		{"before start", -100, 0},
		{"exact", 500, 2},
		{"closer to earlier", 600, 2},
		{"tie picks earlier", 750, 2},
		{"closer to later", 800, 3},
		{"after end", 5000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := steps.NearestByTime(tt.ms, 0, steps.Len()-1)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got.ID)
		})
	}

	assert.Equal(t, 1, steps.NearestByTime(0, 1, 2).ID)
	assert.Nil(t, steps.NearestByTime(0, 3, 2))
}

func TestFlightSteps_RecomputeLinealAndClone(t *testing.T) {
	a, b, c := stepAt(0, 0), stepAt(1, 250), stepAt(2, 500)
	a.Location = &geo.Local{}
	b.Location = &geo.Local{NorthingM: 3, EastingM: 4}
	c.Location = &geo.Local{NorthingM: 3, EastingM: 10}

	steps := NewFlightSteps([]*FlightStep{a, b, c})
	steps.RecomputeLineal()
	assert.InDelta(t, 5, b.LinealM, 1e-9)
	assert.InDelta(t, 11, c.SumLinealM, 1e-9)

	clone := steps.Clone()
	clone.Steps[1].Location.NorthingM = 100
	assert.Equal(t, 3.0, b.Location.NorthingM)
	assert.Same(t, clone.Steps[2], clone.ByID(2))

	idx, ok := steps.IndexOf(2)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	summary := steps.SummariseRange(1, 2)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 1, summary.IDs.Min)
}

func TestVerticalFOVDeg(t *testing.T) {
	assert.InDelta(t, 60.0, VerticalFOVDeg(60, 100, 100), 1e-9)
	assert.Less(t, VerticalFOVDeg(42, 640, 512), 42.0)
}

func TestComputeFootprint(t *testing.T) {
	origin := geo.Local{NorthingM: 100, EastingM: 200}

	t.Run("nadir", func(t *testing.T) {
		fp := ComputeFootprint(origin, 0, 100, 90, 90, 90)
		require.NotNil(t, fp)
		assert.InDelta(t, 100.0, fp.Center.NorthingM, 1e-9)
		assert.InDelta(t, 200.0, fp.Center.EastingM, 1e-9)
		assert.InDelta(t, 200.0, fp.WidthM, 1e-9)
		assert.InDelta(t, 200.0, fp.LengthM, 1e-9)
	})

	t.Run("forward tilt moves center ahead", func(t *testing.T) {
		fp := ComputeFootprint(origin, 90, 50, 60, 40, 30)
		require.NotNil(t, fp)
		assert.Greater(t, fp.Center.EastingM, 200.0)
		assert.InDelta(t, 100.0, fp.Center.NorthingM, 1e-9)
		assert.Greater(t, fp.LengthM, 0.0)
	})

	t.Run("near horizon", func(t *testing.T) {
		assert.Nil(t, ComputeFootprint(origin, 0, 50, 10, 40, 30))
	})

	t.Run("below ground", func(t *testing.T) {
		assert.Nil(t, ComputeFootprint(origin, 0, 0, 90, 40, 30))
		assert.Nil(t, ComputeFootprint(origin, 0, -3, 90, 40, 30))
	})
}
