package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flybeeper/flightpath/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Flight.SmoothSectionSize)
	assert.Equal(t, 33, cfg.Flight.CSVMinRowGapMs)
	assert.Equal(t, models.OnGroundAuto, cfg.Flight.OnGroundAt)
	assert.Equal(t, models.GimbalManualNo, cfg.Flight.GimbalDataAvail)
	assert.Equal(t, DefaultLegConfig(), cfg.Flight.Legs)
	assert.True(t, cfg.Flight.UseLegs)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SMOOTH_SECTION_SIZE", "6")
	t.Setenv("ON_GROUND_AT", "both")
	t.Setenv("GIMBAL_DATA_AVAIL", "ManualYes")
	t.Setenv("LEG_MIN_DISTANCE_M", "12.5")
	t.Setenv("MAX_LEG_GAP_DURATION_MS", "1500")
	t.Setenv("USE_LEGS", "false")
	t.Setenv("RUN_VIDEO_FROM_S", "10")
	t.Setenv("RUN_VIDEO_TO_S", "20")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Flight.SmoothSectionSize)
	assert.Equal(t, models.OnGroundBoth, cfg.Flight.OnGroundAt)
	assert.Equal(t, models.GimbalManualYes, cfg.Flight.GimbalDataAvail)
	assert.Equal(t, 12.5, cfg.Flight.Legs.MinDistanceM)
	assert.Equal(t, 1500, cfg.Flight.Legs.MaxGapDurationMs)
	assert.False(t, cfg.Flight.UseLegs)

	from, to := cfg.Flight.RunWindow()
	assert.Equal(t, 10000, from)
	assert.Equal(t, 20000, to)
}

func TestLoad_InvalidEnum(t *testing.T) {
	t.Setenv("ON_GROUND_AT", "sometimes")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flightpath.yaml")
	content := `
storage:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/flightpath"
flight:
  camera_down_deg: 45
  on_ground_at: End
  gimbal_data_avail: AutoYes
  legs:
    min_duration_ms: 2000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.Equal(t, 45.0, cfg.Flight.CameraDownDeg)
	assert.Equal(t, models.OnGroundEnd, cfg.Flight.OnGroundAt)
	assert.Equal(t, models.GimbalAutoYes, cfg.Flight.GimbalDataAvail)
	assert.Equal(t, 2000, cfg.Flight.Legs.MinDurationMs)
	// Остальные пороги остаются по умолчанию
	assert.Equal(t, DefaultLegConfig().MaxSumYawDeltaDeg, cfg.Flight.Legs.MaxSumYawDeltaDeg)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestFlightConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *FlightConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(f *FlightConfig) {}},
		{name: "camera too steep", mutate: func(f *FlightConfig) { f.CameraDownDeg = 91 }, wantErr: true},
		{name: "camera negative", mutate: func(f *FlightConfig) { f.CameraDownDeg = -1 }, wantErr: true},
		{name: "negative smoothing", mutate: func(f *FlightConfig) { f.SmoothSectionSize = -1 }, wantErr: true},
		{name: "zero smoothing", mutate: func(f *FlightConfig) { f.SmoothSectionSize = 0 }},
		{name: "window reversed", mutate: func(f *FlightConfig) { f.RunVideoFromS = 20; f.RunVideoToS = 10 }, wantErr: true},
		{name: "open window", mutate: func(f *FlightConfig) { f.RunVideoFromS = 20 }},
		{name: "negative threshold", mutate: func(f *FlightConfig) { f.Legs.MaxSumAltDeltaM = -1 }, wantErr: true},
		{name: "bad fov", mutate: func(f *FlightConfig) { f.Camera.HFOVDeg = 0 }, wantErr: true},
		{name: "bad enum", mutate: func(f *FlightConfig) { f.OnGroundAt = models.OnGroundAt(42) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DefaultFlightConfig()
			tt.mutate(&f)
			err := f.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateStorage(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Storage.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg.Storage.Driver = "MySQL"
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	cfg.Redis.URL = ""
	assert.Error(t, cfg.Validate())
}

func TestCameraConfig_VFOV(t *testing.T) {
	c := CameraConfig{HFOVDeg: 50, ImageWidthPx: 0}
	assert.Equal(t, 50.0, c.VFOVDeg())

	c = CameraConfig{HFOVDeg: 50, ImageWidthPx: 400, ImageHeightPx: 400}
	assert.InDelta(t, 50.0, c.VFOVDeg(), 1e-9)
}
