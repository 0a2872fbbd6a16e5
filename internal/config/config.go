package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Storage     StorageConfig    `yaml:"storage"`
	Redis       RedisConfig      `yaml:"redis"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Elevation   ElevationConfig  `yaml:"elevation"`
	Flight      FlightConfig     `yaml:"flight"`

	// Projection сетка страны для координат в ответах API: "", "nztm", "utm33n"
	Projection string `yaml:"projection"`
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address      string        `yaml:"address"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	RateBurst    int           `yaml:"rate_burst"`
}

// StorageConfig конфигурация хранилища настроек (sqlite или mysql)
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig конфигурация Redis (кэш сводок)
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	SummaryTTL   time.Duration `yaml:"summary_ttl"`
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPort    string `yaml:"metrics_port"`
}

// ElevationConfig источник высот рельефа: none или flat
type ElevationConfig struct {
	Mode      string        `yaml:"mode"`
	FlatDEMM  float64       `yaml:"flat_dem_m"`
	FlatDSMM  float64       `yaml:"flat_dsm_m"` // 0 = нет DSM
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// CameraConfig геометрия камеры
type CameraConfig struct {
	HFOVDeg       float64 `yaml:"hfov_deg" json:"hfov_deg"`
	ImageWidthPx  int     `yaml:"image_width_px" json:"image_width_px"`
	ImageHeightPx int     `yaml:"image_height_px" json:"image_height_px"`
}

// VFOVDeg вертикальный угол обзора по горизонтальному и соотношению сторон кадра
func (c CameraConfig) VFOVDeg() float64 {
	if c.ImageWidthPx <= 0 || c.ImageHeightPx <= 0 {
		return c.HFOVDeg
	}
	return models.VerticalFOVDeg(c.HFOVDeg, float64(c.ImageWidthPx), float64(c.ImageHeightPx))
}

// LegConfig пороги выделения ног
type LegConfig struct {
	MaxStepAltDeltaM   float64 `yaml:"max_step_alt_delta_m" json:"max_step_alt_delta_m"`
	MaxSumAltDeltaM    float64 `yaml:"max_sum_alt_delta_m" json:"max_sum_alt_delta_m"`
	MaxStepYawDeltaDeg float64 `yaml:"max_step_yaw_delta_deg" json:"max_step_yaw_delta_deg"`
	MaxSumYawDeltaDeg  float64 `yaml:"max_sum_yaw_delta_deg" json:"max_sum_yaw_delta_deg"`
	MaxStepPitchDeg    float64 `yaml:"max_step_pitch_deg" json:"max_step_pitch_deg"`
	MaxSumPitchDeg     float64 `yaml:"max_sum_pitch_deg" json:"max_sum_pitch_deg"`
	MinDurationMs      int     `yaml:"min_duration_ms" json:"min_duration_ms"`
	MinDistanceM       float64 `yaml:"min_distance_m" json:"min_distance_m"`
	MaxGapDurationMs   int     `yaml:"max_gap_duration_ms" json:"max_gap_duration_ms"`
}

// FlightConfig параметры конвейера обработки полета
type FlightConfig struct {
	LogPath           string                 `yaml:"log_path" json:"log_path"`
	ImageDir          string                 `yaml:"image_dir" json:"image_dir"`
	RunVideoFromS     float64                `yaml:"run_video_from_s" json:"run_video_from_s"`
	RunVideoToS       float64                `yaml:"run_video_to_s" json:"run_video_to_s"` // 0 = до конца
	GimbalDataAvail   models.GimbalDataAvail `yaml:"gimbal_data_avail" json:"gimbal_data_avail"`
	CameraDownDeg     float64                `yaml:"camera_down_deg" json:"camera_down_deg"`
	OnGroundAt        models.OnGroundAt      `yaml:"on_ground_at" json:"on_ground_at"`
	SmoothSectionSize int                    `yaml:"smooth_section_size" json:"smooth_section_size"`
	UseLegs           bool                   `yaml:"use_legs" json:"use_legs"`
	CSVMinRowGapMs    int                    `yaml:"csv_min_row_gap_ms" json:"csv_min_row_gap_ms"`
	ImageWorkers      int                    `yaml:"image_workers" json:"image_workers"` // 0 = GOMAXPROCS
	Camera            CameraConfig           `yaml:"camera" json:"camera"`
	Legs              LegConfig              `yaml:"legs" json:"legs"`
}

// DefaultLegConfig пороги по умолчанию
func DefaultLegConfig() LegConfig {
	return LegConfig{
		MaxStepAltDeltaM:   2,
		MaxSumAltDeltaM:    6,
		MaxStepYawDeltaDeg: 4,
		MaxSumYawDeltaDeg:  10,
		MaxStepPitchDeg:    4,
		MaxSumPitchDeg:     12,
		MinDurationMs:      5000,
		MinDistanceM:       20,
		MaxGapDurationMs:   1000,
	}
}

// DefaultFlightConfig параметры конвейера по умолчанию
func DefaultFlightConfig() FlightConfig {
	return FlightConfig{
		GimbalDataAvail:   models.GimbalManualNo,
		CameraDownDeg:     90,
		OnGroundAt:        models.OnGroundAuto,
		SmoothSectionSize: 4,
		UseLegs:           true,
		CSVMinRowGapMs:    33,
		Camera: CameraConfig{
			HFOVDeg:       42,
			ImageWidthPx:  640,
			ImageHeightPx: 512,
		},
		Legs: DefaultLegConfig(),
	}
}

// Load загружает конфигурацию из переменных окружения (и .env, если есть)
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	defaults := DefaultFlightConfig()
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Projection:  getEnv("COUNTRY_PROJECTION", ""),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8090"),
			Port:         getEnv("SERVER_PORT", "8090"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimitRPS: getFloat("RATE_LIMIT_RPS", 50),
			RateBurst:    getInt("RATE_LIMIT_BURST", 100),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", "sqlite"),
			DSN:          getEnv("STORAGE_DSN", "file:flightpath.db?_pragma=busy_timeout(5000)"),
			MaxIdleConns: getInt("STORAGE_MAX_IDLE_CONNS", 2),
			MaxOpenConns: getInt("STORAGE_MAX_OPEN_CONNS", 4),
		},
		Redis: RedisConfig{
			Enabled:      getBool("REDIS_ENABLED", false),
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			SummaryTTL:   getDuration("REDIS_SUMMARY_TTL", 24*time.Hour),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			MetricsPort:    getEnv("METRICS_PORT", "9090"),
		},
		Elevation: ElevationConfig{
			Mode:      getEnv("ELEVATION_MODE", "none"),
			FlatDEMM:  getFloat("ELEVATION_FLAT_DEM_M", 0),
			FlatDSMM:  getFloat("ELEVATION_FLAT_DSM_M", 0),
			CacheSize: getInt("ELEVATION_CACHE_SIZE", 50000),
			CacheTTL:  getDuration("ELEVATION_CACHE_TTL", time.Hour),
		},
		Flight: FlightConfig{
			LogPath:           getEnv("FLIGHT_LOG_PATH", ""),
			ImageDir:          getEnv("FLIGHT_IMAGE_DIR", ""),
			RunVideoFromS:     getFloat("RUN_VIDEO_FROM_S", defaults.RunVideoFromS),
			RunVideoToS:       getFloat("RUN_VIDEO_TO_S", defaults.RunVideoToS),
			CameraDownDeg:     getFloat("CAMERA_DOWN_DEG", defaults.CameraDownDeg),
			SmoothSectionSize: getInt("SMOOTH_SECTION_SIZE", defaults.SmoothSectionSize),
			UseLegs:           getBool("USE_LEGS", defaults.UseLegs),
			CSVMinRowGapMs:    getInt("CSV_MIN_ROW_GAP_MS", defaults.CSVMinRowGapMs),
			ImageWorkers:      getInt("IMAGE_WORKERS", defaults.ImageWorkers),
			Camera: CameraConfig{
				HFOVDeg:       getFloat("CAMERA_HFOV_DEG", defaults.Camera.HFOVDeg),
				ImageWidthPx:  getInt("IMAGE_WIDTH_PX", defaults.Camera.ImageWidthPx),
				ImageHeightPx: getInt("IMAGE_HEIGHT_PX", defaults.Camera.ImageHeightPx),
			},
			Legs: LegConfig{
				MaxStepAltDeltaM:   getFloat("LEG_MAX_STEP_ALT_DELTA_M", defaults.Legs.MaxStepAltDeltaM),
				MaxSumAltDeltaM:    getFloat("LEG_MAX_SUM_ALT_DELTA_M", defaults.Legs.MaxSumAltDeltaM),
				MaxStepYawDeltaDeg: getFloat("LEG_MAX_STEP_YAW_DELTA_DEG", defaults.Legs.MaxStepYawDeltaDeg),
				MaxSumYawDeltaDeg:  getFloat("LEG_MAX_SUM_YAW_DELTA_DEG", defaults.Legs.MaxSumYawDeltaDeg),
				MaxStepPitchDeg:    getFloat("LEG_MAX_STEP_PITCH_DEG", defaults.Legs.MaxStepPitchDeg),
				MaxSumPitchDeg:     getFloat("LEG_MAX_SUM_PITCH_DEG", defaults.Legs.MaxSumPitchDeg),
				MinDurationMs:      getInt("LEG_MIN_DURATION_MS", defaults.Legs.MinDurationMs),
				MinDistanceM:       getFloat("LEG_MIN_DISTANCE_M", defaults.Legs.MinDistanceM),
				MaxGapDurationMs:   getInt("MAX_LEG_GAP_DURATION_MS", defaults.Legs.MaxGapDurationMs),
			},
		},
	}

	var err error
	if cfg.Flight.GimbalDataAvail, err = models.ParseGimbalDataAvail(getEnv("GIMBAL_DATA_AVAIL", defaults.GimbalDataAvail.String())); err != nil {
		return nil, fmt.Errorf("GIMBAL_DATA_AVAIL: %w", err)
	}
	if cfg.Flight.OnGroundAt, err = models.ParseOnGroundAt(getEnv("ON_GROUND_AT", defaults.OnGroundAt.String())); err != nil {
		return nil, fmt.Errorf("ON_GROUND_AT: %w", err)
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile накладывает YAML файл поверх текущих значений
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be sqlite or mysql, got %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("STORAGE_DSN is required")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when redis is enabled")
	}

	switch c.Elevation.Mode {
	case "none", "flat":
	default:
		return fmt.Errorf("ELEVATION_MODE must be none or flat, got %q", c.Elevation.Mode)
	}

	if _, err := geo.ParseProjection(c.Projection); err != nil {
		return fmt.Errorf("COUNTRY_PROJECTION: %w", err)
	}

	return c.Flight.Validate()
}

// Validate проверяет параметры конвейера
func (f *FlightConfig) Validate() error {
	if f.CameraDownDeg < 0 || f.CameraDownDeg > 90 {
		return fmt.Errorf("CAMERA_DOWN_DEG must be between 0 and 90")
	}
	if f.SmoothSectionSize < 0 {
		return fmt.Errorf("SMOOTH_SECTION_SIZE must not be negative")
	}
	if f.RunVideoFromS < 0 {
		return fmt.Errorf("RUN_VIDEO_FROM_S must not be negative")
	}
	if f.RunVideoToS != 0 && f.RunVideoToS < f.RunVideoFromS {
		return fmt.Errorf("RUN_VIDEO_TO_S must not be before RUN_VIDEO_FROM_S")
	}
	if f.CSVMinRowGapMs < 0 {
		return fmt.Errorf("CSV_MIN_ROW_GAP_MS must not be negative")
	}
	if f.ImageWorkers < 0 {
		return fmt.Errorf("IMAGE_WORKERS must not be negative")
	}
	if f.Camera.HFOVDeg <= 0 || f.Camera.HFOVDeg >= 180 {
		return fmt.Errorf("CAMERA_HFOV_DEG must be between 0 and 180")
	}
	if !f.GimbalDataAvail.Valid() {
		return fmt.Errorf("GIMBAL_DATA_AVAIL is invalid")
	}
	if !f.OnGroundAt.Valid() {
		return fmt.Errorf("ON_GROUND_AT is invalid")
	}

	l := f.Legs
	for name, v := range map[string]float64{
		"LEG_MAX_STEP_ALT_DELTA_M":   l.MaxStepAltDeltaM,
		"LEG_MAX_SUM_ALT_DELTA_M":    l.MaxSumAltDeltaM,
		"LEG_MAX_STEP_YAW_DELTA_DEG": l.MaxStepYawDeltaDeg,
		"LEG_MAX_SUM_YAW_DELTA_DEG":  l.MaxSumYawDeltaDeg,
		"LEG_MAX_STEP_PITCH_DEG":     l.MaxStepPitchDeg,
		"LEG_MAX_SUM_PITCH_DEG":      l.MaxSumPitchDeg,
		"LEG_MIN_DURATION_MS":        float64(l.MinDurationMs),
		"LEG_MIN_DISTANCE_M":         l.MinDistanceM,
		"MAX_LEG_GAP_DURATION_MS":    float64(l.MaxGapDurationMs),
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// RunWindow окно обработки в миллисекундах; to = -1 означает до конца
func (f *FlightConfig) RunWindow() (fromMs, toMs int) {
	fromMs = int(f.RunVideoFromS * 1000)
	toMs = -1
	if f.RunVideoToS > 0 {
		toMs = int(f.RunVideoToS * 1000)
	}
	return fromMs, toMs
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func IsDevelopment() bool {
	return getEnv("APP_ENV", "production") == "development"
}
