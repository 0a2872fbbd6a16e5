package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

var (
	// ErrUnsupportedFormat ни один парсер не распознал формат входа
	ErrUnsupportedFormat = errors.New("unsupported flight log format")
	// ErrNoRecords в логе нет ни одной пригодной записи
	ErrNoRecords = errors.New("no usable records")
	// ErrMissingColumns в CSV нет обязательных колонок
	ErrMissingColumns = errors.New("missing required columns")
	// ErrNoFlightData ни один применимый парсер не смог прочитать лог
	ErrNoFlightData = errors.New("no flight data available")
)

// Input описывает источник телеметрии: файл лога и/или каталог снимков
type Input struct {
	Path     string `json:"path"`
	ImageDir string `json:"image_dir,omitempty"`
}

func (in Input) ext() string {
	return strings.ToLower(filepath.Ext(in.Path))
}

// imageDir каталог снимков: явно заданный или Path, если это каталог
func (in Input) imageDir() string {
	if in.ImageDir != "" {
		return in.ImageDir
	}
	if in.Path == "" {
		return ""
	}
	if info, err := os.Stat(in.Path); err == nil && info.IsDir() {
		return in.Path
	}
	return ""
}

// Result результат успешного разбора
type Result struct {
	Sections   *models.FlightSections
	GimbalData models.GimbalDataAvail
	Source     string
	FromImages bool
	Skipped    int // пропущенные некорректные записи
}

// Parser стратегия разбора одного формата
type Parser interface {
	Name() string
	CanParse(in Input) bool
	Parse(ctx context.Context, in Input) (*Result, error)
}

// Options параметры парсеров по умолчанию
type Options struct {
	MinRowGapMs  int
	Metadata     MetadataReader
	ImageWorkers int
}

// Chain перебирает парсеры по порядку до первого успешного
type Chain struct {
	parsers []Parser
	logger  *utils.Logger
}

// NewChain создает цепочку из заданных парсеров
func NewChain(logger *utils.Logger, parsers ...Parser) *Chain {
	return &Chain{parsers: parsers, logger: logger}
}

// DefaultChain субтитры → CSV → снимки → GPX
func DefaultChain(logger *utils.Logger, opts Options) *Chain {
	return NewChain(logger,
		NewSubtitleParser(logger),
		NewCSVParser(logger, opts.MinRowGapMs),
		NewImageParser(logger, opts.Metadata).WithWorkers(opts.ImageWorkers),
		NewGPXParser(logger),
	)
}

// Parsers список парсеров цепочки
func (c *Chain) Parsers() []Parser {
	return c.parsers
}

// Parse возвращает результат первого парсера, справившегося с входом.
// Если все применимые парсеры упали, ошибка содержит ErrNoFlightData и причины.
func (c *Chain) Parse(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	var errs []error
	tried := 0

	for _, p := range c.parsers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.CanParse(in) {
			c.logger.
				WithField("parser", p.Name()).
				WithField("path", in.Path).
				Debug("Parser not applicable")
			continue
		}
		tried++

		result, err := p.Parse(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.ParseFailures.WithLabelValues(p.Name()).Inc()
			c.logger.
				WithField("parser", p.Name()).
				WithField("path", in.Path).
				WithError(err).
				Warn("Parser failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		if result.Skipped > 0 {
			metrics.RecordsSkipped.WithLabelValues(p.Name()).Add(float64(result.Skipped))
		}
		metrics.SectionsIngested.WithLabelValues(p.Name()).Add(float64(result.Sections.Len()))
		metrics.StageDuration.WithLabelValues("parse").Observe(time.Since(start).Seconds())

		c.logger.
			WithField("parser", p.Name()).
			WithField("sections", result.Sections.Len()).
			WithField("skipped", result.Skipped).
			WithField("gimbal", result.GimbalData.String()).
			WithField("duration", time.Since(start)).
			Info("Flight log parsed")
		return result, nil
	}

	if tried == 0 {
		errs = append(errs, ErrUnsupportedFormat)
	}
	c.logger.
		WithField("path", in.Path).
		WithField("image_dir", in.ImageDir).
		WithField("tried", tried).
		Warn("No flight data available")
	return nil, errors.Join(append([]error{ErrNoFlightData}, errs...)...)
}

// assemble общий пост-обработчик для всех парсеров
func assemble(source string, raw []*models.FlightSection, skipped int, fromImages bool, gimbal models.GimbalDataAvail) (*Result, error) {
	if len(raw) == 0 {
		return nil, ErrNoRecords
	}
	sections, err := models.AssembleSections(raw, fromImages)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble sections: %w", err)
	}
	sections.Source = source
	sections.GimbalData = gimbal
	return &Result{
		Sections:   sections,
		GimbalData: gimbal,
		Source:     source,
		FromImages: fromImages,
		Skipped:    skipped,
	}, nil
}

// globalOf точка по широте/долготе; нулевые и некорректные координаты означают отсутствие фиксации
func globalOf(lat, lon float64) *models.GeoPoint {
	p := models.GeoPoint{Latitude: lat, Longitude: lon}
	if p.IsZero() || p.Validate() != nil {
		return nil
	}
	return &p
}

// yawOf нормализует курс в [-180, 180)
func yawOf(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(models.SignedYaw(*v))
}
