package parser

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
)

var (
	srtTimingRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->`)
	srtKeyValueRe = regexp.MustCompile(`([A-Za-z_]+)\s*:\s*([-+]?\d+(?:\.\d+)?)`)
	srtLegacyGPS  = regexp.MustCompile(`GPS\s*\(\s*([-+]?\d+(?:\.\d+)?)\s*,\s*([-+]?\d+(?:\.\d+)?)\s*,\s*([-+]?\d+(?:\.\d+)?)\s*\)`)
	srtBarometer  = regexp.MustCompile(`BAROMETER\s*:\s*([-+]?\d+(?:\.\d+)?)`)
	srtTagRe      = regexp.MustCompile(`<[^>]*>`)
)

// SubtitleParser разбирает DJI субтитры (.srt): по одной секции на кадр субтитров.
// Поддерживаются формат "[key: value]" и старый "GPS(lon,lat,alt) BAROMETER:x".
type SubtitleParser struct {
	logger *utils.Logger
}

// NewSubtitleParser создает парсер субтитров
func NewSubtitleParser(logger *utils.Logger) *SubtitleParser {
	return &SubtitleParser{logger: logger}
}

func (p *SubtitleParser) Name() string { return "subtitle" }

func (p *SubtitleParser) CanParse(in Input) bool {
	return in.ext() == ".srt"
}

func (p *SubtitleParser) Parse(ctx context.Context, in Input) (*Result, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer f.Close()

	var (
		sections []*models.FlightSection
		skipped  int
		gimbal   bool
		block    []string
		blockNo  int
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		blockNo++
		section, hasGimbal, err := p.parseBlock(block)
		block = block[:0]
		if err != nil {
			skipped++
			p.logger.
				WithField("parser", p.Name()).
				WithField("block", blockNo).
				WithError(err).
				Debug("Skipping malformed subtitle block")
			return
		}
		gimbal = gimbal || hasGimbal
		sections = append(sections, section)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			flush()
			if len(sections)%1000 == 0 && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		block = append(block, line)
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	// Без координат и высоты субтитры не содержат телеметрии
	usable := 0
	for _, s := range sections {
		if s.Global != nil || s.AltitudeM != nil {
			usable++
		}
	}
	if usable == 0 {
		return nil, ErrNoRecords
	}

	availability := models.GimbalManualNo
	if gimbal {
		availability = models.GimbalAutoYes
	}
	return assemble(p.Name(), sections, skipped, false, availability)
}

// parseBlock разбирает один кадр: номер, тайминг, текст телеметрии
func (p *SubtitleParser) parseBlock(lines []string) (*models.FlightSection, bool, error) {
	timingAt := -1
	for i, line := range lines {
		if srtTimingRe.MatchString(line) {
			timingAt = i
			break
		}
	}
	if timingAt < 0 {
		return nil, false, fmt.Errorf("no timing line")
	}

	start, err := parseSRTTime(lines[timingAt])
	if err != nil {
		return nil, false, err
	}

	section := &models.FlightSection{}
	section.ID = -1
	if timingAt > 0 {
		if id, err := strconv.Atoi(lines[timingAt-1]); err == nil {
			section.ID = id
		}
	}
	section.StartTime = start

	text := srtTagRe.ReplaceAllString(strings.Join(lines[timingAt+1:], " "), " ")
	values := make(map[string]float64)
	for _, m := range srtKeyValueRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			values[strings.ToLower(m[1])] = v
		}
	}
	get := func(keys ...string) *float64 {
		for _, k := range keys {
			if v, ok := values[k]; ok {
				return models.Float(v)
			}
		}
		return nil
	}

	lat, lon := get("latitude", "lat"), get("longitude", "lon", "longtitude")
	section.AltitudeM = get("abs_alt", "altitude", "rel_alt")

	if m := srtLegacyGPS.FindStringSubmatch(text); m != nil {
		lonV, _ := strconv.ParseFloat(m[1], 64)
		latV, _ := strconv.ParseFloat(m[2], 64)
		lat, lon = models.Float(latV), models.Float(lonV)
		if section.AltitudeM == nil {
			altV, _ := strconv.ParseFloat(m[3], 64)
			section.AltitudeM = models.Float(altV)
		}
	}
	if m := srtBarometer.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			section.AltitudeM = models.Float(v)
		}
	}

	if lat != nil && lon != nil {
		section.Global = globalOf(*lat, *lon)
	}

	gimbalYaw := get("gb_yaw")
	gimbalPitch := get("gb_pitch")
	hasGimbal := gimbalYaw != nil || gimbalPitch != nil || get("gb_roll") != nil
	if hasGimbal {
		section.YawDeg = yawOf(firstOf(gimbalYaw, get("drone_yaw", "yaw")))
		section.PitchDeg = firstOf(gimbalPitch, get("drone_pitch", "pitch"))
		section.RollDeg = firstOf(get("gb_roll"), get("drone_roll", "roll"))
	} else {
		section.YawDeg = yawOf(get("drone_yaw", "yaw"))
		section.PitchDeg = get("drone_pitch", "pitch")
		section.RollDeg = get("drone_roll", "roll")
	}
	section.FocalLength = get("focal_len", "focal_length")
	section.Zoom = get("dzoom_ratio", "zoom", "dzoom")

	if v := get("min_raw_heat", "tmin"); v != nil {
		heat := int(*v)
		section.MinRawHeat = &heat
	}
	if v := get("max_raw_heat", "tmax"); v != nil {
		heat := int(*v)
		section.MaxRawHeat = &heat
	}

	return section, hasGimbal, nil
}

func parseSRTTime(line string) (time.Duration, error) {
	m := srtTimingRe.FindStringSubmatch(line)
	if m == nil {
		return 0, fmt.Errorf("invalid timing line: %q", line)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	frac := m[4]
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac)
	return time.Duration(h)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

func firstOf(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
