package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	// Максимум строк настроек в одном INSERT
	settingsBatchSize = 500
	settingsFields    = 6
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS flight_runs (
		run_id        VARCHAR(64) NOT NULL PRIMARY KEY,
		flight_key    VARCHAR(255) NOT NULL,
		source        VARCHAR(255) NOT NULL,
		from_images   INT NOT NULL,
		gimbal_data   VARCHAR(32) NOT NULL,
		sections      INT NOT NULL,
		legs          INT NOT NULL,
		legs_active   INT NOT NULL,
		why_inactive  VARCHAR(255) NOT NULL,
		config        TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS flight_settings (
		run_id        VARCHAR(64) NOT NULL,
		kind          VARCHAR(16) NOT NULL,
		row_index     INT NOT NULL,
		field_index   INT NOT NULL,
		setting_key   VARCHAR(64) NOT NULL,
		setting_value TEXT NOT NULL,
		PRIMARY KEY (run_id, kind, row_index, field_index)
	)`,
}

// SQLStore хранилище настроек поверх database/sql (sqlite или mysql)
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *utils.Logger
}

// NewSQLStore открывает соединение и создает схему
func NewSQLStore(cfg config.StorageConfig, logger *utils.Logger) (*SQLStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage DSN is required")
	}

	driver := strings.ToLower(cfg.Driver)
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
	case DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	// Настройки connection pool
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	store := &SQLStore{
		db:     db,
		driver: driver,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("driver", driver).Info("Settings store ready")
	return store, nil
}

// Driver имя драйвера базы
func (s *SQLStore) Driver() string {
	return s.driver
}

// Migrate создает таблицы, если их нет
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Ping проверяет соединение
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает соединение
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) observe(operation string, start time.Time, err error) {
	metrics.RepositoryOperationDuration.WithLabelValues(s.driver, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RepositoryOperationErrors.WithLabelValues(s.driver, operation).Inc()
	}
}

// SaveRun сохраняет или заменяет описание запуска
func (s *SQLStore) SaveRun(ctx context.Context, run *RunRecord) (err error) {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run record must have an id")
	}
	start := time.Now()
	defer func() { s.observe("save_run", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM flight_runs WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to replace run %s: %w", run.ID, err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO flight_runs
			(run_id, flight_key, source, from_images, gimbal_data, sections, legs, legs_active, why_inactive, config, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FlightKey, run.Source, boolToInt(run.FromImages), run.GimbalData,
		run.Sections, run.Legs, boolToInt(run.LegsActive), run.WhyInactive, run.Config, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `run_id, flight_key, source, from_images, gimbal_data, sections, legs, legs_active, why_inactive, config, created_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run        RunRecord
		fromImages int
		legsActive int
		createdMs  int64
	)
	err := row.Scan(
		&run.ID, &run.FlightKey, &run.Source, &fromImages, &run.GimbalData,
		&run.Sections, &run.Legs, &legsActive, &run.WhyInactive, &run.Config, &createdMs,
	)
	if err != nil {
		return nil, err
	}
	run.FromImages = fromImages != 0
	run.LegsActive = legsActive != 0
	run.CreatedAt = time.UnixMilli(createdMs)
	return &run, nil
}

// LoadRun загружает описание запуска
func (s *SQLStore) LoadRun(ctx context.Context, runID string) (run *RunRecord, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			s.observe("load_run", start, nil)
			return
		}
		s.observe("load_run", start, err)
	}()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM flight_runs WHERE run_id = ?`, runID)
	run, err = scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns последние запуски, новые первыми
func (s *SQLStore) ListRuns(ctx context.Context, limit int) (runs []*RunRecord, err error) {
	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	defer func() { s.observe("list_runs", start, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM flight_runs ORDER BY created_at_ms DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			s.logger.WithError(scanErr).Warn("Failed to scan run row")
			continue
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// DeleteRun удаляет запуск вместе с сохраненными сущностями
func (s *SQLStore) DeleteRun(ctx context.Context, runID string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete_run", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM flight_settings WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete settings of run %s: %w", runID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM flight_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of run %s: %w", runID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// SaveEntities заменяет строки настроек вида kind для запуска
func (s *SQLStore) SaveEntities(ctx context.Context, runID string, kind EntityKind, rows [][]models.Setting) (err error) {
	start := time.Now()
	defer func() { s.observe("save_"+string(kind), start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM flight_settings WHERE run_id = ? AND kind = ?`, runID, string(kind)); err != nil {
		return fmt.Errorf("failed to clear %s settings: %w", kind, err)
	}

	args := make([]any, 0, settingsBatchSize*settingsFields)
	pending := 0
	written := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		query := `INSERT INTO flight_settings (run_id, kind, row_index, field_index, setting_key, setting_value) VALUES ` +
			generatePlaceholders(pending, settingsFields)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert %s settings: %w", kind, err)
		}
		written += pending
		args = args[:0]
		pending = 0
		return nil
	}

	for rowIndex, row := range rows {
		for fieldIndex, setting := range row {
			args = append(args, runID, string(kind), rowIndex, fieldIndex, setting.Key, setting.Value)
			pending++
			if pending == settingsBatchSize {
				if err = flush(); err != nil {
					return err
				}
			}
		}
	}
	if err = flush(); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s settings: %w", kind, err)
	}

	metrics.RepositoryRowsWritten.WithLabelValues(string(kind)).Add(float64(written))
	s.logger.WithField("run_id", runID).
		WithField("kind", kind).
		WithField("entities", len(rows)).
		WithField("rows", written).
		Debug("Saved entity settings")
	return nil
}

// LoadEntities значения настроек по сущностям в порядке сохранения
func (s *SQLStore) LoadEntities(ctx context.Context, runID string, kind EntityKind) (entities [][]string, err error) {
	start := time.Now()
	defer func() { s.observe("load_"+string(kind), start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_index, field_index, setting_value
		FROM flight_settings
		WHERE run_id = ? AND kind = ?
		ORDER BY row_index, field_index`, runID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s settings: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rowIndex, fieldIndex int
			value                string
		)
		if err = rows.Scan(&rowIndex, &fieldIndex, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s setting: %w", kind, err)
		}
		for len(entities) <= rowIndex {
			entities = append(entities, nil)
		}
		if fieldIndex != len(entities[rowIndex]) {
			return nil, fmt.Errorf("%s %d: missing field %d", kind, rowIndex, len(entities[rowIndex]))
		}
		entities[rowIndex] = append(entities[rowIndex], value)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s settings: %w", kind, err)
	}
	return entities, nil
}

// generatePlaceholders генерирует плейсхолдеры для batch INSERT
func generatePlaceholders(count, fieldsPerRecord int) string {
	if count == 0 {
		return ""
	}

	singleRecord := "(" + strings.Repeat("?,", fieldsPerRecord-1) + "?)"

	placeholders := make([]string, count)
	for i := range placeholders {
		placeholders[i] = singleRecord
	}
	return strings.Join(placeholders, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
