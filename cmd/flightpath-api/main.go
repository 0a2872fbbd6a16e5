package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/elevation"
	"github.com/flybeeper/flightpath/internal/handler"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/parser"
	"github.com/flybeeper/flightpath/internal/repository"
	"github.com/flybeeper/flightpath/internal/service"
	"github.com/flybeeper/flightpath/pkg/utils"
)

var (
	// Version будет установлен при сборке через ldflags
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	restoreRun := flag.String("restore", "", "restore a persisted run by id instead of parsing the flight log")
	noServe := flag.Bool("no-serve", false, "process the flight, print its description and exit")
	flag.Parse()

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализируем логирование
	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	utils.SetDefaultLogger(logger)
	logger.WithField("version", Version).Info("Starting FlightPath")
	metrics.SetAppInfo(Version, Commit, BuildTime)

	// Создаем контекст приложения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drone := service.NewDrone(cfg.Flight, newElevationModel(cfg.Elevation), parser.DefaultChain(logger, parser.Options{
		MinRowGapMs:  cfg.Flight.CSVMinRowGapMs,
		ImageWorkers: cfg.Flight.ImageWorkers,
	}), logger)

	// Хранилище настроек
	store, err := repository.NewSQLStore(cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize settings store")
	}
	defer store.Close()

	// Кэш сводок (опционально)
	var cache repository.SummaryCache
	if cfg.Redis.Enabled {
		redisCache, err := repository.NewRedisSummaryCache(&cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis summary cache")
		} else if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("Failed to connect to Redis, summary cache disabled")
			redisCache.Close()
		} else {
			defer redisCache.Close()
			cache = redisCache
			logger.Info("Connected to Redis")
		}
	}

	if *restoreRun != "" {
		if err := drone.Restore(ctx, store, *restoreRun); err != nil {
			logger.WithField("run_id", *restoreRun).WithError(err).Fatal("Failed to restore flight run")
		}
	} else {
		if err := drone.Load(ctx, parser.Input{Path: cfg.Flight.LogPath, ImageDir: cfg.Flight.ImageDir}); err != nil {
			logger.WithError(err).Fatal("Failed to process flight")
		}
		persistRun(ctx, drone, store, logger)
	}
	publishSummary(ctx, drone, cache, logger)

	logger.WithField("run_id", drone.Snapshot().RunID).Info(drone.Describe())
	if *noServe {
		return
	}

	// Создаем HTTP сервер
	server := handler.NewServer(cfg, drone, cache, Version, logger)

	// Запускаем HTTP сервер в горутине
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Ждем сигнала остановки
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Отменяем контекст приложения
	cancel()

	// Останавливаем HTTP сервер
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	logger.Info("Server stopped gracefully")
}

// newElevationModel модель рельефа по конфигурации, с кэшем выборок
func newElevationModel(cfg config.ElevationConfig) elevation.Model {
	if cfg.Mode != "flat" {
		return elevation.None{}
	}
	flat := elevation.NewFlat(cfg.FlatDEMM)
	if cfg.FlatDSMM != 0 {
		flat.DSMM = cfg.FlatDSMM
	}
	return elevation.NewCached(flat, cfg.CacheSize, cfg.CacheTTL)
}

// persistRun сохраняет результат обработки; отсутствие телеметрии не ошибка
func persistRun(ctx context.Context, drone *service.Drone, store repository.SettingsStore, logger *utils.Logger) {
	saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := drone.Persist(saveCtx, store)
	switch {
	case errors.Is(err, service.ErrNoFlightData):
		logger.Warn("No flight data to persist")
	case err != nil:
		logger.WithError(err).Error("Failed to persist flight run")
	default:
		logger.WithField("run_id", drone.Snapshot().RunID).Info("Flight run persisted")
	}
}

// publishSummary кладет сводку в кэш, если он настроен
func publishSummary(ctx context.Context, drone *service.Drone, cache repository.SummaryCache, logger *utils.Logger) {
	if cache == nil || !drone.Snapshot().HasData() {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.StoreSummary(cacheCtx, drone.Summary()); err != nil {
		logger.WithError(err).Warn("Failed to cache flight summary")
	}
}
