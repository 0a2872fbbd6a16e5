package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/pool"
	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/rwcarlsen/goexif/exif"
)

// ImageMetadata метаданные одного снимка
type ImageMetadata struct {
	CaptureTime time.Time
	Latitude    *float64
	Longitude   *float64
	AltitudeM   *float64
	YawDeg      *float64
	PitchDeg    *float64
	RollDeg     *float64
	FocalLength *float64
	Zoom        *float64
	MinRawHeat  *int
	MaxRawHeat  *int
	// GimbalAngles углы взяты с подвеса, а не с корпуса
	GimbalAngles bool
}

// MetadataReader читает метаданные снимка
type MetadataReader interface {
	Read(path string) (*ImageMetadata, error)
}

// maxXMPScan сколько байт начала файла просматривать в поисках XMP
const maxXMPScan = 512 * 1024

var xmpBuffers = pool.NewBufferPool(maxXMPScan)

var xmpAttrRe = regexp.MustCompile(`(?:drone-dji|Camera|FLIR):([A-Za-z]+)\s*=\s*"([-+]?\d+(?:\.\d+)?)"`)

// ExifReader читает EXIF через goexif и DJI XMP атрибуты
type ExifReader struct{}

func (ExifReader) Read(path string) (*ImageMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta := &ImageMetadata{}

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exif: %w", err)
	}
	if t, err := x.DateTime(); err == nil {
		meta.CaptureTime = t
	}
	if lat, lon, err := x.LatLong(); err == nil {
		meta.Latitude, meta.Longitude = models.Float(lat), models.Float(lon)
	}
	if tag, err := x.Get(exif.GPSAltitude); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			alt := float64(num) / float64(den)
			if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
				if v, err := ref.Int(0); err == nil && v == 1 {
					alt = -alt
				}
			}
			meta.AltitudeM = models.Float(alt)
		}
	}
	if tag, err := x.Get(exif.FocalLength); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			meta.FocalLength = models.Float(float64(num) / float64(den))
		}
	}
	if tag, err := x.Get(exif.DigitalZoomRatio); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			meta.Zoom = models.Float(float64(num) / float64(den))
		}
	}

	// XMP необязателен: ошибки чтения не отменяют снимок
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		head := xmpBuffers.Get()
		n, _ := io.ReadFull(f, *head)
		applyXMP(meta, (*head)[:n])
		xmpBuffers.Put(head)
	}
	return meta, nil
}

// applyXMP дополняет метаданные атрибутами DJI XMP
func applyXMP(meta *ImageMetadata, data []byte) {
	attrs := make(map[string]float64)
	for _, m := range xmpAttrRe.FindAllSubmatch(data, -1) {
		if v, err := strconv.ParseFloat(string(m[2]), 64); err == nil {
			attrs[string(m[1])] = v
		}
	}
	get := func(key string) *float64 {
		if v, ok := attrs[key]; ok {
			return models.Float(v)
		}
		return nil
	}

	if v := get("AbsoluteAltitude"); v != nil {
		meta.AltitudeM = v
	}
	if v := get("GpsLatitude"); v != nil && meta.Latitude == nil {
		meta.Latitude = v
	}
	if v := get("GpsLongitude"); v != nil && meta.Longitude == nil {
		meta.Longitude = v
	}

	if yaw := get("GimbalYawDegree"); yaw != nil {
		meta.GimbalAngles = true
		meta.YawDeg = yaw
		meta.PitchDeg = get("GimbalPitchDegree")
		meta.RollDeg = get("GimbalRollDegree")
	} else {
		meta.YawDeg = get("FlightYawDegree")
		meta.PitchDeg = get("FlightPitchDegree")
		meta.RollDeg = get("FlightRollDegree")
	}

	if v := get("RawThermalMin"); v != nil {
		heat := int(*v)
		meta.MinRawHeat = &heat
	}
	if v := get("RawThermalMax"); v != nil {
		heat := int(*v)
		meta.MaxRawHeat = &heat
	}
}

// ImageParser одна секция на снимок, по времени съемки
type ImageParser struct {
	logger  *utils.Logger
	reader  MetadataReader
	workers int
}

// NewImageParser создает парсер снимков; reader nil означает ExifReader
func NewImageParser(logger *utils.Logger, reader MetadataReader) *ImageParser {
	if reader == nil {
		reader = ExifReader{}
	}
	return &ImageParser{logger: logger, reader: reader}
}

// WithWorkers задает число параллельных чтений метаданных; 0 означает GOMAXPROCS
func (p *ImageParser) WithWorkers(n int) *ImageParser {
	p.workers = n
	return p
}

func (p *ImageParser) Name() string { return "image" }

func (p *ImageParser) CanParse(in Input) bool {
	return in.imageDir() != ""
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

func (p *ImageParser) Parse(ctx context.Context, in Input) (*Result, error) {
	dir := in.imageDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isImageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}

	// Снимки независимы: метаданные читаются параллельно, порядок задает сортировка ниже
	metas := make([]*ImageMetadata, len(names))
	readErrs := make([]error, len(names))
	err = pool.Run(ctx, p.workers, len(names), func(_ context.Context, i int) error {
		metas[i], readErrs[i] = p.reader.Read(filepath.Join(dir, names[i]))
		return nil
	})
	if err != nil {
		return nil, err
	}

	type shot struct {
		name string
		meta *ImageMetadata
	}
	var (
		shots   []shot
		skipped int
		gimbal  bool
	)
	for i, name := range names {
		meta := metas[i]
		if readErrs[i] != nil || meta == nil || meta.CaptureTime.IsZero() {
			skipped++
			p.logger.
				WithField("parser", p.Name()).
				WithField("file", name).
				WithError(readErrs[i]).
				Debug("Skipping image without usable metadata")
			continue
		}
		gimbal = gimbal || meta.GimbalAngles
		shots = append(shots, shot{name: name, meta: meta})
	}
	if len(shots) == 0 {
		return nil, ErrNoRecords
	}

	sort.SliceStable(shots, func(i, j int) bool {
		if shots[i].meta.CaptureTime.Equal(shots[j].meta.CaptureTime) {
			return shots[i].name < shots[j].name
		}
		return shots[i].meta.CaptureTime.Before(shots[j].meta.CaptureTime)
	})

	first := shots[0].meta.CaptureTime
	sections := make([]*models.FlightSection, 0, len(shots))
	for i, s := range shots {
		m := s.meta
		section := &models.FlightSection{ImageFileName: s.name}
		section.ID = i
		section.StartTime = m.CaptureTime.Sub(first)
		if m.Latitude != nil && m.Longitude != nil {
			section.Global = globalOf(*m.Latitude, *m.Longitude)
		}
		section.AltitudeM = m.AltitudeM
		section.YawDeg = yawOf(m.YawDeg)
		section.PitchDeg = m.PitchDeg
		section.RollDeg = m.RollDeg
		section.FocalLength = m.FocalLength
		section.Zoom = m.Zoom
		section.MinRawHeat = m.MinRawHeat
		section.MaxRawHeat = m.MaxRawHeat
		sections = append(sections, section)
	}

	availability := models.GimbalManualNo
	if gimbal {
		availability = models.GimbalAutoYes
	}
	return assemble(p.Name(), sections, skipped, true, availability)
}
