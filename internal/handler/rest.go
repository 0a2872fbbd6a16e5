package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/internal/repository"
	"github.com/flybeeper/flightpath/internal/service"
	"github.com/flybeeper/flightpath/pkg/utils"
)

// FlightService операции фасада, доступные через API
type FlightService interface {
	Snapshot() *service.State
	Summary() *models.FlightSummary
	Config() config.FlightConfig
	UpdateConfig(cfg config.FlightConfig) error
	NearestStepAtTimeMs(ms int) *models.FlightStep
	IsStepInRunScope(step *models.FlightStep) bool
	DefaultRunRange() (startStepID, endStepID int, ok bool)
	RunScopeAltitudeBounds() models.Range
	StepsNear(p models.GeoPoint, radiusM float64) []*models.FlightStep
	StepsCovering(p models.GeoPoint) []*models.FlightStep
}

var _ FlightService = (*service.Drone)(nil)

// Максимальный размер тела запроса пересчета
const maxConfigBodyBytes = 64 << 10

// RESTHandler обработчик REST API endpoints
type RESTHandler struct {
	svc        FlightService
	cache      repository.SummaryCache // может быть nil
	projection *geo.TransverseMercator // может быть nil
	logger     *utils.Logger
	timeout    time.Duration
}

// NewRESTHandler создает новый REST handler
func NewRESTHandler(svc FlightService, cache repository.SummaryCache, logger *utils.Logger) *RESTHandler {
	return &RESTHandler{
		svc:     svc,
		cache:   cache,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// WithProjection добавляет координаты сетки страны в ответы с шагами
func (h *RESTHandler) WithProjection(tm *geo.TransverseMercator) *RESTHandler {
	h.projection = tm
	return h
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// requireData состояние с телеметрией или ответ 404
func (h *RESTHandler) requireData(c *gin.Context) (*service.State, bool) {
	state := h.svc.Snapshot()
	if !state.HasData() {
		errorJSON(c, http.StatusNotFound, "no_flight_data", "No flight data loaded")
		return nil, false
	}
	return state, true
}

// GetFlight сводка текущего полета
// GET /api/v1/flight
func (h *RESTHandler) GetFlight(c *gin.Context) {
	summary := h.svc.Summary()
	c.JSON(http.StatusOK, gin.H{
		"has_data": h.svc.Snapshot().HasData(),
		"summary":  summary,
	})
}

// GetLegs ноги полета
// GET /api/v1/legs
func (h *RESTHandler) GetLegs(c *gin.Context) {
	state, ok := h.requireData(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, convertLegs(state.Legs))
}

// GetNearestStep ближайший шаг к моменту времени
// GET /api/v1/steps/nearest?ms=12500
func (h *RESTHandler) GetNearestStep(c *gin.Context) {
	ms, err := strconv.Atoi(c.Query("ms"))
	if err != nil || ms < 0 {
		errorJSON(c, http.StatusBadRequest, "invalid_ms", "ms must be a non-negative integer")
		return
	}
	state, ok := h.requireData(c)
	if !ok {
		return
	}

	step := h.svc.NearestStepAtTimeMs(ms)
	if step == nil {
		errorJSON(c, http.StatusNotFound, "step_not_found", "No step near the requested time")
		return
	}
	c.JSON(http.StatusOK, h.stepResponse(state, step))
}

// GetStepsNear шаги вокруг точки
// GET /api/v1/steps/near?lat=46.5&lon=7.9&radius_m=50
func (h *RESTHandler) GetStepsNear(c *gin.Context) {
	point, ok := parsePosition(c)
	if !ok {
		return
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radius_m", "50"), 64)
	if err != nil || radius <= 0 || radius > service.MaxNearRadiusM {
		errorJSON(c, http.StatusBadRequest, "invalid_radius", "radius_m must be in (0, 5000]")
		return
	}
	state, ok := h.requireData(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": h.convertSteps(state, h.svc.StepsNear(point, radius))})
}

// GetStepsCovering шаги, в кадр которых попадает точка на земле
// GET /api/v1/steps/covering?lat=46.5&lon=7.9
func (h *RESTHandler) GetStepsCovering(c *gin.Context) {
	point, ok := parsePosition(c)
	if !ok {
		return
	}
	state, ok := h.requireData(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": h.convertSteps(state, h.svc.StepsCovering(point))})
}

// parsePosition lat/lon из запроса или ответ 400
func parsePosition(c *gin.Context) (models.GeoPoint, bool) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	point := models.GeoPoint{Latitude: lat, Longitude: lon}
	if errLat != nil || errLon != nil || point.Validate() != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_position", "lat and lon must be valid WGS84 coordinates")
		return point, false
	}
	return point, true
}

func (h *RESTHandler) convertSteps(state *service.State, steps []*models.FlightStep) []StepResponse {
	out := make([]StepResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, h.stepResponse(state, step))
	}
	return out
}

func (h *RESTHandler) stepResponse(state *service.State, step *models.FlightStep) StepResponse {
	return convertStep(state, step, h.svc.IsStepInRunScope(step), h.projection)
}

// GetRunRange диапазон обработки по умолчанию и границы высоты в нем
// GET /api/v1/run-range
func (h *RESTHandler) GetRunRange(c *gin.Context) {
	state, ok := h.requireData(c)
	if !ok {
		return
	}
	from, to, ok := h.svc.DefaultRunRange()
	if !ok {
		errorJSON(c, http.StatusNotFound, "no_flight_data", "No flight data loaded")
		return
	}

	resp := RunRangeResponse{
		StartStepID: from,
		EndStepID:   to,
		FromLegs:    len(state.Legs.ActiveLegs()) > 0,
	}
	if s := state.Steps.ByID(from); s != nil {
		resp.StartMs = s.StartTimeMs()
	}
	if s := state.Steps.ByID(to); s != nil {
		resp.EndMs = s.StartTimeMs()
	}
	resp.AltitudeMinM, resp.AltitudeMaxM = rangeBounds(h.svc.RunScopeAltitudeBounds())
	c.JSON(http.StatusOK, resp)
}

// GetGeoJSON траектория, ноги и (по запросу) зоны обзора в GeoJSON
// GET /api/v1/flight.geojson?footprints=true
func (h *RESTHandler) GetGeoJSON(c *gin.Context) {
	state, ok := h.requireData(c)
	if !ok {
		return
	}
	withFootprints, _ := strconv.ParseBool(c.DefaultQuery("footprints", "false"))

	fc := models.FlightGeoJSON(state.Sections, state.Steps, state.Legs, withFootprints)
	data, err := fc.MarshalJSON()
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode GeoJSON")
		errorJSON(c, http.StatusInternalServerError, "internal_error", "Failed to encode GeoJSON")
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// PostRecompute применяет изменения конфигурации и пересчитывает полет
// POST /api/v1/recompute
func (h *RESTHandler) PostRecompute(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigBodyBytes))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	// Тело накладывается поверх текущей конфигурации
	cfg := h.svc.Config()
	if len(body) > 0 {
		if err := json.Unmarshal(body, &cfg); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid_config", err.Error())
			return
		}
	}
	if err := cfg.Validate(); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}

	start := time.Now()
	if err := h.svc.UpdateConfig(cfg); err != nil {
		h.logger.WithError(err).Error("Recompute failed")
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrInvariant) {
			status = http.StatusUnprocessableEntity
		}
		errorJSON(c, status, "recompute_failed", err.Error())
		return
	}

	summary := h.svc.Summary()
	h.cacheSummary(c.Request.Context(), summary)

	h.logger.WithField("run_id", summary.RunID).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Flight recomputed via API")
	c.JSON(http.StatusOK, gin.H{
		"has_data": h.svc.Snapshot().HasData(),
		"summary":  summary,
	})
}

// GetRecentRuns последние сводки из кэша
// GET /api/v1/runs?limit=20
func (h *RESTHandler) GetRecentRuns(c *gin.Context) {
	if h.cache == nil {
		errorJSON(c, http.StatusServiceUnavailable, "cache_disabled", "Summary cache is not configured")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 200 {
		errorJSON(c, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	summaries, err := h.cache.RecentSummaries(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read recent summaries")
		errorJSON(c, http.StatusInternalServerError, "internal_error", "Failed to read recent runs")
		return
	}
	if summaries == nil {
		summaries = []*models.FlightSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": summaries})
}

func (h *RESTHandler) cacheSummary(ctx context.Context, summary *models.FlightSummary) {
	if h.cache == nil || summary.RunID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.cache.StoreSummary(ctx, summary); err != nil {
		h.logger.WithField("run_id", summary.RunID).WithError(err).Warn("Failed to cache flight summary")
	}
}
