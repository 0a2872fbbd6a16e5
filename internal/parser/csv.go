package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/metrics"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

// Обязательные колонки CSV лога
var requiredColumns = []string{
	"time",
	"longitude",
	"latitude",
	"altitude_amsl",
	"gimbal:pitch",
	"gimbal:roll",
	"gimbal:heading",
}

// DefaultMinRowGapMs строки ближе этого интервала к предыдущей считаются дублями
const DefaultMinRowGapMs = 33

// CSVParser разбирает CSV лог с колонками по заголовку (без учета регистра)
type CSVParser struct {
	logger      *utils.Logger
	minRowGapMs int
}

// NewCSVParser создает CSV парсер; minRowGapMs <= 0 означает значение по умолчанию
func NewCSVParser(logger *utils.Logger, minRowGapMs int) *CSVParser {
	if minRowGapMs <= 0 {
		minRowGapMs = DefaultMinRowGapMs
	}
	return &CSVParser{logger: logger, minRowGapMs: minRowGapMs}
}

func (p *CSVParser) Name() string { return "csv" }

func (p *CSVParser) CanParse(in Input) bool {
	return in.ext() == ".csv"
}

// csvRow строка после разбора, до интерполяции
type csvRow struct {
	at       time.Duration
	lat, lon float64
	section  *models.FlightSection
}

func (p *CSVParser) Parse(ctx context.Context, in Input) (*Result, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()
	return p.parseReader(ctx, f)
}

func (p *CSVParser) parseReader(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoRecords
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var (
		rows      []csvRow
		skipped   int
		deduped   int
		lineNo    = 1
		firstTime *time.Time
		firstSecs *float64
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		if lineNo%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			skipped++
			p.logger.WithField("parser", p.Name()).WithField("line", lineNo).WithError(err).Debug("Skipping unreadable csv row")
			continue
		}

		row, err := p.parseRow(record, columns, &firstTime, &firstSecs)
		if err != nil {
			skipped++
			p.logger.WithField("parser", p.Name()).WithField("line", lineNo).WithError(err).Debug("Skipping malformed csv row")
			continue
		}

		if n := len(rows); n > 0 {
			gap := row.at - rows[n-1].at
			if gap < time.Duration(p.minRowGapMs)*time.Millisecond {
				deduped++
				continue
			}
		}
		rows = append(rows, row)
	}

	if deduped > 0 {
		metrics.RowsDeduplicated.Add(float64(deduped))
	}
	interpolated := interpolateSparseGPS(rows)
	if interpolated > 0 {
		metrics.GPSInterpolated.Add(float64(interpolated))
	}

	p.logger.
		WithField("parser", p.Name()).
		WithField("rows", len(rows)).
		WithField("deduplicated", deduped).
		WithField("interpolated", interpolated).
		Debug("CSV rows collected")

	sections := make([]*models.FlightSection, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		row.section.ID = i
		row.section.StartTime = row.at
		row.section.Global = globalOf(row.lat, row.lon)
		sections = append(sections, row.section)
	}
	return assemble(p.Name(), sections, skipped, false, models.GimbalAutoYes)
}

func (p *CSVParser) parseRow(record []string, columns map[string]int, firstTime **time.Time, firstSecs **float64) (csvRow, error) {
	field := func(name string) (string, bool) {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[i])
		return v, v != ""
	}
	number := func(name string) (float64, error) {
		v, ok := field(name)
		if !ok {
			return 0, fmt.Errorf("empty %s", name)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("invalid %s: %q", name, v)
		}
		return f, nil
	}
	optional := func(name string) *float64 {
		if v, err := number(name); err == nil {
			return models.Float(v)
		}
		return nil
	}

	raw, ok := field("time")
	if !ok {
		return csvRow{}, fmt.Errorf("empty time")
	}
	at, err := parseRowTime(raw, firstTime, firstSecs)
	if err != nil {
		return csvRow{}, err
	}

	lat, err := number("latitude")
	if err != nil {
		return csvRow{}, err
	}
	lon, err := number("longitude")
	if err != nil {
		return csvRow{}, err
	}

	section := &models.FlightSection{}
	section.AltitudeM = optional("altitude_amsl")
	section.PitchDeg = optional("gimbal:pitch")
	section.RollDeg = optional("gimbal:roll")
	section.YawDeg = yawOf(optional("gimbal:heading"))
	section.FocalLength = optional("focal_length")
	section.Zoom = optional("zoom")

	return csvRow{at: at, lat: lat, lon: lon, section: section}, nil
}

// parseRowTime время строки от первой строки: секунды (число) или метка времени
func parseRowTime(raw string, firstTime **time.Time, firstSecs **float64) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if *firstSecs == nil {
			*firstSecs = &secs
		}
		return time.Duration(math.Round((secs - **firstSecs) * float64(time.Second))), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.000", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			if *firstTime == nil {
				*firstTime = &t
			}
			return t.Sub(**firstTime), nil
		}
	}
	return 0, fmt.Errorf("invalid time: %q", raw)
}

// interpolateSparseGPS исправляет координаты, которые телеметрия обновляет реже, чем пишет строки.
// Значение, повторенное ровно в двух строках подряд и сменившееся в третьей, интерполируется
// в средней строке между моментом, когда значение появилось, и моментом смены. Если значение
// пришло с первой строкой лога, момент его получения неизвестен и доля равна нулю: координата
// не меняется. Более длинные повторы считаются зависанием и не трогаются. Строки без фиксации
// (нулевые или некорректные координаты) не бывают ни серединой, ни концами интерполяции.
func interpolateSparseGPS(rows []csvRow) int {
	interpolated := 0
	runStart := 0
	for i := 1; i <= len(rows); i++ {
		if i < len(rows) && rows[i].lat == rows[runStart].lat && rows[i].lon == rows[runStart].lon {
			continue
		}
		// rows[runStart:i] одно значение; rows[i] (если есть) новое
		if i < len(rows) && i-runStart == 2 && runStart > 0 && rows[runStart].hasFix() && rows[i].hasFix() {
			from, to, mid := rows[runStart], rows[i], &rows[runStart+1]
			if span := float64(to.at - from.at); span > 0 {
				frac := float64(mid.at-from.at) / span
				mid.lat = from.lat + (to.lat-from.lat)*frac
				mid.lon = from.lon + (to.lon-from.lon)*frac
				interpolated++
			}
		}
		runStart = i
	}
	return interpolated
}

// hasFix координаты строки получены от GPS
func (r csvRow) hasFix() bool {
	return globalOf(r.lat, r.lon) != nil
}
