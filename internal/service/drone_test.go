package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/filter"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/internal/parser"
	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeLegSections 600 секций на север по 250 мс на высоте 100 м;
// курс меняется на 200-й и 400-й секции, что дает три ноги
func threeLegSections(t *testing.T) *models.FlightSections {
	t.Helper()
	yaws := []float64{0, 90, 180}
	raw := make([]*models.FlightSection, 600)
	for i := range raw {
		s := &models.FlightSection{Global: &models.GeoPoint{Latitude: 47 + float64(i)*1e-5, Longitude: 8}}
		s.ID = i
		s.StartTime = time.Duration(i) * 250 * time.Millisecond
		s.AltitudeM = models.Float(100)
		s.YawDeg = models.Float(yaws[i/200])
		s.PitchDeg = models.Float(0)
		raw[i] = s
	}
	sections, err := models.AssembleSections(raw, false)
	require.NoError(t, err)
	sections.Source = "synthetic"
	return sections
}

func newLoadedDrone(t *testing.T, cfg config.FlightConfig) *Drone {
	t.Helper()
	d := NewDrone(cfg, nil, parser.NewChain(utils.NewNopLogger()), utils.NewNopLogger())
	require.NoError(t, d.LoadSections(threeLegSections(t)))
	return d
}

func TestDrone_LoadSections(t *testing.T) {
	d := newLoadedDrone(t, config.DefaultFlightConfig())

	state := d.Snapshot()
	require.True(t, state.HasData())
	assert.NotEmpty(t, state.RunID)
	assert.Equal(t, 600, state.Steps.Len())
	assert.Equal(t, 3, state.Legs.Count())
	assert.True(t, state.Legs.Active, state.Legs.WhyInactive)
	// Без модели высот коррекция невозможна
	assert.Equal(t, models.OnGroundNeither, state.OnGroundAt)

	for _, leg := range state.Legs.Legs {
		for _, step := range state.Steps.Steps {
			if leg.ContainsStep(step.ID) {
				assert.Equal(t, leg.ID, state.Legs.LegIDOf(step.ID))
			}
		}
	}

	description := d.Describe()
	assert.Contains(t, description, "600 sections from synthetic")
	assert.Contains(t, description, "3 legs (active)")
	assert.Contains(t, description, "altitude 100..100 m")
}

func TestDrone_NearestStepAtTimeMs(t *testing.T) {
	d := newLoadedDrone(t, config.DefaultFlightConfig())

	tests := []struct {
		name   string
		ms     int
		wantID int
	}{
		{name: "before start", ms: -500, wantID: 0},
		{name: "exact first", ms: 0, wantID: 0},
		{name: "tie prefers earlier", ms: 125, wantID: 0},
		{name: "closer to next", ms: 260, wantID: 1},
		{name: "inside a leg", ms: 75_100, wantID: 300},
		{name: "between legs", ms: 50_010, wantID: 200},
		{name: "after end", ms: 1_000_000, wantID: 599},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := d.NearestStepAtTimeMs(tt.ms)
			require.NotNil(t, step)
			assert.Equal(t, tt.wantID, step.ID)
		})
	}
}

func TestDrone_DefaultRunRange(t *testing.T) {
	d := newLoadedDrone(t, config.DefaultFlightConfig())
	legs := d.Snapshot().Legs.Legs

	from, to, ok := d.DefaultRunRange()
	require.True(t, ok)
	assert.Equal(t, legs[0].MinStepID, from)
	assert.Equal(t, legs[len(legs)-1].MaxStepID, to)

	cfg := config.DefaultFlightConfig()
	cfg.UseLegs = false
	require.NoError(t, d.UpdateConfig(cfg))

	from, to, ok = d.DefaultRunRange()
	require.True(t, ok)
	assert.Equal(t, 0, from)
	assert.Equal(t, 599, to)
	assert.Equal(t, "legs disabled", d.Snapshot().Legs.WhyInactive)
}

func TestDrone_IsStepInRunScope(t *testing.T) {
	stepAt := func(seconds, cameraDown float64) *models.FlightStep {
		s := &models.FlightStep{CameraDownDeg: cameraDown}
		s.StartTime = time.Duration(seconds * float64(time.Second))
		return s
	}

	tests := []struct {
		name   string
		gimbal models.GimbalDataAvail
		fromS  float64
		toS    float64
		step   *models.FlightStep
		want   bool
	}{
		{name: "nadir", gimbal: models.GimbalManualNo, step: stepAt(10, 90), want: true},
		{name: "near horizon without gimbal", gimbal: models.GimbalManualNo, step: stepAt(10, 20), want: false},
		{name: "near horizon with gimbal", gimbal: models.GimbalManualYes, step: stepAt(10, 20), want: true},
		{name: "before window", gimbal: models.GimbalManualNo, fromS: 20, step: stepAt(10, 90), want: false},
		{name: "after window", gimbal: models.GimbalManualNo, fromS: 5, toS: 8, step: stepAt(10, 90), want: false},
		{name: "inside window", gimbal: models.GimbalManualNo, fromS: 5, toS: 15, step: stepAt(10, 90), want: true},
		{name: "nil step", gimbal: models.GimbalManualNo, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultFlightConfig()
			cfg.GimbalDataAvail = tt.gimbal
			cfg.RunVideoFromS = tt.fromS
			cfg.RunVideoToS = tt.toS
			d := newLoadedDrone(t, cfg)

			assert.Equal(t, tt.want, d.IsStepInRunScope(tt.step))
		})
	}
}

func TestMinRunScopeCameraDownDeg(t *testing.T) {
	settings := filter.SettingsFrom(config.DefaultFlightConfig(), models.GimbalManualNo)
	// Дальний край кадра ровно на границе отступа от горизонта
	assert.InDelta(t, settings.VFOVDeg/2+models.FootprintHorizonMarginDeg, MinRunScopeCameraDownDeg(settings), 1e-12)
	assert.Greater(t, MinRunScopeCameraDownDeg(settings), models.FootprintHorizonMarginDeg)
}

func TestDrone_RunScopeAltitudeBounds(t *testing.T) {
	cfg := config.DefaultFlightConfig()
	cfg.RunVideoFromS = 10
	cfg.RunVideoToS = 20
	d := newLoadedDrone(t, cfg)

	bounds := d.RunScopeAltitudeBounds()
	require.True(t, bounds.Valid)
	assert.InDelta(t, 100, bounds.Min, 1e-9)
	assert.InDelta(t, 100, bounds.Max, 1e-9)

	// Окно вне полета
	cfg.RunVideoFromS = 1000
	cfg.RunVideoToS = 0
	require.NoError(t, d.UpdateConfig(cfg))
	assert.False(t, d.RunScopeAltitudeBounds().Valid)
}

func TestDrone_RecomputeSwapsState(t *testing.T) {
	d := newLoadedDrone(t, config.DefaultFlightConfig())
	before := d.Snapshot()

	cfg := config.DefaultFlightConfig()
	cfg.UseLegs = false
	require.NoError(t, d.UpdateConfig(cfg))
	after := d.Snapshot()

	assert.NotSame(t, before, after)
	assert.NotEqual(t, before.RunID, after.RunID)
	// Прежнее состояние не изменено
	assert.True(t, before.Legs.Active)
	assert.False(t, after.Legs.Active)
	assert.Same(t, before.Sections, after.Sections)

	require.NoError(t, d.Recompute())
	assert.False(t, d.Snapshot().Legs.Active)
	assert.False(t, d.Config().UseLegs)
}

func TestDrone_UpdateConfigInvalid(t *testing.T) {
	d := newLoadedDrone(t, config.DefaultFlightConfig())
	before := d.Snapshot()

	cfg := config.DefaultFlightConfig()
	cfg.CameraDownDeg = 120
	require.Error(t, d.UpdateConfig(cfg))

	assert.Same(t, before, d.Snapshot())
	assert.InDelta(t, 90, d.Config().CameraDownDeg, 1e-12)
}

func TestDrone_UpdateConfigFailedRecomputeKeepsConfig(t *testing.T) {
	d := newLoadedDrone(t, config.DefaultFlightConfig())
	before := d.Snapshot()

	// Сводка секций уже не покрывает шаги: любой пересчет нарушит инвариант подмножества
	before.Sections.TardisSummary.Northing = models.Range{Min: 1e6, Max: 1e6 + 1, Valid: true}

	cfg := config.DefaultFlightConfig()
	cfg.SmoothSectionSize = 6
	cfg.UseLegs = false
	err := d.UpdateConfig(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvariant)

	assert.Same(t, before, d.Snapshot())
	assert.Equal(t, before.Config, d.Config())
	assert.Equal(t, 4, d.Config().SmoothSectionSize)
	assert.True(t, d.Config().UseLegs)
}

func TestDrone_LoadNoData(t *testing.T) {
	d := NewDrone(config.DefaultFlightConfig(), nil, parser.NewChain(utils.NewNopLogger()), utils.NewNopLogger())

	require.NoError(t, d.Load(context.Background(), parser.Input{Path: "flight.unknown"}))

	state := d.Snapshot()
	assert.False(t, state.HasData())
	assert.Contains(t, state.NoDataReason, "no flight data available")
	assert.True(t, strings.HasPrefix(d.Describe(), "no flight data"))
	assert.Nil(t, d.NearestStepAtTimeMs(0))
	_, _, ok := d.DefaultRunRange()
	assert.False(t, ok)
	assert.False(t, d.RunScopeAltitudeBounds().Valid)
	assert.NoError(t, d.Recompute())
	assert.ErrorIs(t, d.LoadSections(nil), ErrNoFlightData)
}

func TestDrone_LoadCanceled(t *testing.T) {
	d := NewDrone(config.DefaultFlightConfig(), nil, nil, utils.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Load(ctx, parser.Input{Path: "flight.csv"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrone_LoadCSV(t *testing.T) {
	var b strings.Builder
	b.WriteString("Time,Longitude,Latitude,Altitude_AMSL,Gimbal:Pitch,Gimbal:Roll,Gimbal:Heading\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "%.1f,8.00000,%.5f,120,-90,0,0\n", float64(i)*0.5, 47+float64(i)*1e-5)
	}
	path := filepath.Join(t.TempDir(), "flight.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	d := NewDrone(config.DefaultFlightConfig(), nil, nil, utils.NewNopLogger())
	require.NoError(t, d.Load(context.Background(), parser.Input{Path: path}))

	state := d.Snapshot()
	require.True(t, state.HasData())
	assert.Equal(t, "csv", state.Source)
	assert.Equal(t, 40, state.Steps.Len())
	assert.Equal(t, models.GimbalAutoYes, state.Settings.Gimbal)
	assert.InDelta(t, 90, state.Steps.Steps[10].CameraDownDeg, 1e-9)

	summary := d.Summary()
	assert.Equal(t, state.RunID, summary.RunID)
	assert.Equal(t, 40, summary.Sections)
	assert.Equal(t, 19500, summary.DurationMs)
	require.NotNil(t, summary.Origin)
	assert.InDelta(t, 47, summary.Origin.Latitude, 1e-9)
}
