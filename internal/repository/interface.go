package repository

import (
	"context"
	"errors"
	"time"

	"github.com/flybeeper/flightpath/internal/models"
)

// ErrNotFound запись отсутствует в хранилище
var ErrNotFound = errors.New("not found")

// EntityKind тип сохраняемой сущности
type EntityKind string

const (
	KindSection EntityKind = "section"
	KindStep    EntityKind = "step"
	KindLeg     EntityKind = "leg"
	KindSummary EntityKind = "summary"
)

// RunRecord описание сохраненного запуска конвейера
type RunRecord struct {
	ID          string    `json:"id"`
	FlightKey   string    `json:"flight_key"`
	Source      string    `json:"source"`
	FromImages  bool      `json:"from_images"`
	GimbalData  string    `json:"gimbal_data"`
	Sections    int       `json:"sections"`
	Legs        int       `json:"legs"`
	LegsActive  bool      `json:"legs_active"`
	WhyInactive string    `json:"why_inactive,omitempty"`
	Config      string    `json:"config"` // JSON конфигурации полета
	CreatedAt   time.Time `json:"created_at"`
}

// SettingsStore хранилище настроек сущностей по запускам
type SettingsStore interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Запуски
	SaveRun(ctx context.Context, run *RunRecord) error
	LoadRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error

	// Сущности: строки настроек в исходном порядке; сохранение заменяет прежние строки того же вида
	SaveEntities(ctx context.Context, runID string, kind EntityKind, rows [][]models.Setting) error
	LoadEntities(ctx context.Context, runID string, kind EntityKind) ([][]string, error)
}

// SummaryCache кэш кратких описаний полетов
type SummaryCache interface {
	Ping(ctx context.Context) error
	Close() error

	StoreSummary(ctx context.Context, summary *models.FlightSummary) error
	GetSummary(ctx context.Context, runID string) (*models.FlightSummary, error)
	RecentSummaries(ctx context.Context, limit int) ([]*models.FlightSummary, error)
	DeleteSummary(ctx context.Context, runID string) error
}

// Ensure implementations
var _ SettingsStore = (*SQLStore)(nil)
var _ SummaryCache = (*RedisSummaryCache)(nil)
