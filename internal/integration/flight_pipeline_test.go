package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/elevation"
	"github.com/flybeeper/flightpath/internal/handler"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/internal/parser"
	"github.com/flybeeper/flightpath/internal/repository"
	"github.com/flybeeper/flightpath/internal/service"
	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	legRows  = 150 // 300 м при 8 м/с и 4 Гц
	turnRows = 20  // 40 м разворота, короче минимальной ноги
	rowGapS  = 0.25
	stepM    = 2.0
	startLat = 46.52
	startLon = 6.57
)

// FlightPipelineTestSuite тестирует конвейер от CSV лога до API и хранилища
type FlightPipelineTestSuite struct {
	suite.Suite
	ctx     context.Context
	dir     string
	logPath string
	logger  *utils.Logger
	store   *repository.SQLStore
	drone   *service.Drone
	server  *handler.Server
}

// writeSurveyCSV облет змейкой: три ноги север-юг-север, соединенные разворотами на восток
func writeSurveyCSV(path string) (rows int, err error) {
	var b strings.Builder
	b.WriteString("time,longitude,latitude,altitude_amsl,gimbal:pitch,gimbal:roll,gimbal:heading\n")

	metersPerDegLon := 111_195.0 * math.Cos(startLat*math.Pi/180)
	var n, e float64
	emit := func(yaw float64) {
		fmt.Fprintf(&b, "%.3f,%.7f,%.7f,120.0,-90,0,%.0f\n",
			float64(rows)*rowGapS, startLon+e/metersPerDegLon, startLat+n/111_195.0, yaw)
		rows++
	}
	for leg := 0; leg < 3; leg++ {
		dir, yaw := 1.0, 0.0
		if leg == 1 {
			dir, yaw = -1, 180
		}
		for i := 0; i < legRows; i++ {
			emit(yaw)
			n += dir * stepM
		}
		if leg < 2 {
			for i := 0; i < turnRows; i++ {
				emit(90)
				e += stepM
			}
		}
	}
	return rows, os.WriteFile(path, []byte(b.String()), 0o644)
}

func (suite *FlightPipelineTestSuite) SetupSuite() {
	suite.ctx = context.Background()
	gin.SetMode(gin.TestMode)
	suite.logger = utils.NewNopLogger()
	suite.dir = suite.T().TempDir()

	suite.logPath = filepath.Join(suite.dir, "survey.csv")
	rows, err := writeSurveyCSV(suite.logPath)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 3*legRows+2*turnRows, rows)

	suite.store, err = repository.NewSQLStore(config.StorageConfig{
		Driver:       repository.DriverSQLite,
		DSN:          "file:" + filepath.Join(suite.dir, "flightpath.db") + "?_pragma=busy_timeout(5000)",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, suite.logger)
	require.NoError(suite.T(), err)
}

func (suite *FlightPipelineTestSuite) SetupTest() {
	suite.drone = newDrone(suite.logger)
	require.NoError(suite.T(), suite.drone.Load(suite.ctx, parser.Input{Path: suite.logPath}))

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Address: ":0", RateLimitRPS: 1000, RateBurst: 1000},
	}
	suite.server = handler.NewServer(cfg, suite.drone, nil, "test", suite.logger)
}

func (suite *FlightPipelineTestSuite) TearDownSuite() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func newDrone(logger *utils.Logger) *service.Drone {
	model := elevation.NewCached(elevation.NewFlat(30), 10_000, time.Hour)
	return service.NewDrone(config.DefaultFlightConfig(), model,
		parser.DefaultChain(logger, parser.Options{MinRowGapMs: parser.DefaultMinRowGapMs}), logger)
}

func (suite *FlightPipelineTestSuite) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	suite.server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (suite *FlightPipelineTestSuite) TestLoadedFlight() {
	t := suite.T()
	state := suite.drone.Snapshot()

	require.True(t, state.HasData())
	assert.Equal(t, "csv", state.Source)
	assert.Equal(t, 3*legRows+2*turnRows, state.Steps.Len())
	assert.Equal(t, models.GimbalAutoYes, state.Settings.Gimbal)

	// Развороты короче минимальной ноги, остаются три ноги облета
	require.Equal(t, 3, state.Legs.Count(), "legs: %+v", state.Legs.Legs)
	assert.True(t, state.Legs.Active, state.Legs.WhyInactive)
	assert.Equal(t, []string{"A", "B", "C"}, []string{state.Legs.Legs[0].Name, state.Legs.Legs[1].Name, state.Legs.Legs[2].Name})
	for _, leg := range state.Legs.Legs {
		assert.InDelta(t, 300, leg.DistanceM, 30)
	}
}

func (suite *FlightPipelineTestSuite) TestAPIEndpoints() {
	t := suite.T()

	w := suite.get("/health")
	require.Equal(t, http.StatusOK, w.Code)

	w = suite.get("/api/v1/flight")
	require.Equal(t, http.StatusOK, w.Code)
	var flight struct {
		HasData bool                 `json:"has_data"`
		Summary models.FlightSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flight))
	assert.True(t, flight.HasData)
	assert.Equal(t, 3, flight.Summary.Legs)
	assert.Contains(t, flight.Summary.Description, "from csv")

	w = suite.get("/api/v1/run-range")
	require.Equal(t, http.StatusOK, w.Code)
	var runRange handler.RunRangeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runRange))
	assert.True(t, runRange.FromLegs)
	assert.Less(t, runRange.StartStepID, runRange.EndStepID)

	// Середина второй ноги
	midMs := int((float64(legRows+turnRows) + legRows/2) * rowGapS * 1000)
	w = suite.get(fmt.Sprintf("/api/v1/steps/nearest?ms=%d", midMs))
	require.Equal(t, http.StatusOK, w.Code)
	var step handler.StepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step))
	assert.Equal(t, midMs, step.TimeMs)
	assert.Equal(t, suite.drone.Snapshot().Legs.Legs[1].ID, step.LegID)
	require.NotNil(t, step.Position)

	// Кадр этого шага видит точку под дроном
	w = suite.get(fmt.Sprintf("/api/v1/steps/covering?lat=%.7f&lon=%.7f", step.Position.Latitude, step.Position.Longitude))
	require.Equal(t, http.StatusOK, w.Code)
	var covering struct {
		Steps []handler.StepResponse `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &covering))
	ids := make([]int, 0, len(covering.Steps))
	for _, s := range covering.Steps {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, step.ID)

	w = suite.get("/api/v1/flight.geojson")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Len(t, fc.Features, 1+3) // траектория и ноги
}

func (suite *FlightPipelineTestSuite) TestRecomputePersistRestore() {
	t := suite.T()

	body := bytes.NewBufferString(`{"use_legs": false, "smooth_section_size": 6}`)
	w := httptest.NewRecorder()
	suite.server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/recompute", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	state := suite.drone.Snapshot()
	assert.False(t, state.Legs.Active)
	assert.Equal(t, "legs disabled", state.Legs.WhyInactive)
	assert.Equal(t, 6, suite.drone.Config().SmoothSectionSize)

	require.NoError(t, suite.drone.Persist(suite.ctx, suite.store))

	restored := newDrone(suite.logger)
	require.NoError(t, restored.Restore(suite.ctx, suite.store, state.RunID))
	got := restored.Snapshot()
	assert.Equal(t, state.Steps.Len(), got.Steps.Len())
	assert.Equal(t, state.Legs.Count(), got.Legs.Count())
	assert.False(t, got.Legs.Active)
	assert.Equal(t, 6, restored.Config().SmoothSectionSize)
	assert.Equal(t, state.Sections.FlightKey(), got.Sections.FlightKey())

	runs, err := suite.store.ListRuns(suite.ctx, 10)
	require.NoError(t, err)
	found := false
	for _, run := range runs {
		found = found || run.ID == state.RunID
	}
	assert.True(t, found)
}

func (suite *FlightPipelineTestSuite) TestGPXFallback() {
	t := suite.T()
	path := filepath.Join(suite.dir, "track.gpx")
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>
`)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "<trkpt lat=\"%.6f\" lon=\"%.6f\"><ele>150</ele><time>%s</time></trkpt>\n",
			startLat+float64(i)*2e-5, startLon, start.Add(time.Duration(i)*time.Second).Format(time.RFC3339))
	}
	b.WriteString("</trkseg></trk></gpx>\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	d := newDrone(suite.logger)
	require.NoError(t, d.Load(suite.ctx, parser.Input{Path: path}))
	state := d.Snapshot()
	require.True(t, state.HasData())
	assert.Equal(t, "gpx", state.Source)
	assert.Equal(t, 60, state.Steps.Len())
	assert.InDelta(t, 59_000, state.Steps.DurationMs(), 1)
}

func (suite *FlightPipelineTestSuite) TestMissingLogDegrades() {
	t := suite.T()
	d := newDrone(suite.logger)

	require.NoError(t, d.Load(suite.ctx, parser.Input{Path: filepath.Join(suite.dir, "video.mp4")}))
	assert.False(t, d.Snapshot().HasData())
	assert.NotEmpty(t, d.Snapshot().NoDataReason)
	assert.ErrorIs(t, d.Persist(suite.ctx, suite.store), service.ErrNoFlightData)
}

func TestFlightPipelineSuite(t *testing.T) {
	suite.Run(t, new(FlightPipelineTestSuite))
}
