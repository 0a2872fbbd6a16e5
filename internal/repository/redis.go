package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

const (
	SummaryPrefix     = "flightpath:summary:"         // flightpath:summary:{run_id}
	RecentSummaryKey  = "flightpath:summaries:recent" // Z-SET run_id по времени расчета
	DefaultSummaryTTL = 24 * time.Hour

	// Максимум запусков в индексе последних
	MaxRecentSummaries = 200
)

// RedisSummaryCache кэш сводок полетов в Redis
type RedisSummaryCache struct {
	client *redis.Client
	logger *utils.Logger
	ttl    time.Duration
}

// NewRedisSummaryCache создает кэш сводок
func NewRedisSummaryCache(cfg *config.RedisConfig, logger *utils.Logger) (*RedisSummaryCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Парсим Redis URL
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Дополнительные настройки
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	ttl := cfg.SummaryTTL
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}

	return &RedisSummaryCache{
		client: redis.NewClient(opt),
		logger: logger,
		ttl:    ttl,
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisSummaryCache) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisSummaryCache) Close() error {
	return r.client.Close()
}

func (r *RedisSummaryCache) observe(operation string, start time.Time, err error) {
	metrics.RepositoryOperationDuration.WithLabelValues("redis", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RepositoryOperationErrors.WithLabelValues("redis", operation).Inc()
	}
}

// StoreSummary сохраняет сводку и обновляет индекс последних запусков
func (r *RedisSummaryCache) StoreSummary(ctx context.Context, summary *models.FlightSummary) (err error) {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("summary must have a run id")
	}
	start := time.Now()
	defer func() { r.observe("store_summary", start, err) }()

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	computedAt := summary.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, SummaryPrefix+summary.RunID, data, r.ttl)
	pipe.ZAdd(ctx, RecentSummaryKey, redis.Z{Score: float64(computedAt.UnixMilli()), Member: summary.RunID})
	// Оставляем только последние MaxRecentSummaries
	pipe.ZRemRangeByRank(ctx, RecentSummaryKey, 0, -MaxRecentSummaries-1)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store summary %s: %w", summary.RunID, err)
	}

	metrics.RepositoryRowsWritten.WithLabelValues(string(KindSummary)).Inc()
	r.logger.WithField("run_id", summary.RunID).Debug("Stored flight summary")
	return nil
}

// GetSummary возвращает сводку запуска
func (r *RedisSummaryCache) GetSummary(ctx context.Context, runID string) (summary *models.FlightSummary, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			r.observe("get_summary", start, nil)
			return
		}
		r.observe("get_summary", start, err)
	}()

	data, err := r.client.Get(ctx, SummaryPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("summary %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary %s: %w", runID, err)
	}

	summary = &models.FlightSummary{}
	if err = json.Unmarshal(data, summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary %s: %w", runID, err)
	}
	return summary, nil
}

// RecentSummaries последние сводки, новые первыми; истекшие пропускаются
func (r *RedisSummaryCache) RecentSummaries(ctx context.Context, limit int) (summaries []*models.FlightSummary, err error) {
	if limit <= 0 {
		limit = 20
	}
	start := time.Now()
	defer func() { r.observe("recent_summaries", start, err) }()

	ids, err := r.client.ZRevRange(ctx, RecentSummaryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent summaries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = SummaryPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent summaries: %w", err)
	}

	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var summary models.FlightSummary
		if decodeErr := json.Unmarshal([]byte(raw), &summary); decodeErr != nil {
			r.logger.WithField("run_id", ids[i]).WithError(decodeErr).Warn("Failed to decode cached summary")
			continue
		}
		summaries = append(summaries, &summary)
	}

	if len(expired) > 0 {
		if remErr := r.client.ZRem(ctx, RecentSummaryKey, expired...).Err(); remErr != nil {
			r.logger.WithError(remErr).Warn("Failed to prune expired summaries")
		}
	}
	return summaries, nil
}

// DeleteSummary удаляет сводку
func (r *RedisSummaryCache) DeleteSummary(ctx context.Context, runID string) (err error) {
	start := time.Now()
	defer func() { r.observe("delete_summary", start, err) }()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, SummaryPrefix+runID)
	pipe.ZRem(ctx, RecentSummaryKey, runID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete summary %s: %w", runID, err)
	}
	return nil
}
