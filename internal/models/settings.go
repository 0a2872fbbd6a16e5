package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flybeeper/flightpath/internal/geo"
)

// Setting пара ключ/значение для сохранения сущности.
// Порядок настроек фиксирован: при загрузке значения адресуются 1-based индексом.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Settable сущность с сохранением и восстановлением через настройки
type Settable interface {
	GetSettings() []Setting
	LoadSettings(values []string) error
}

// SettingValues значения настроек в исходном порядке
func SettingValues(settings []Setting) []string {
	values := make([]string, len(settings))
	for i, s := range settings {
		values[i] = s.Value
	}
	return values
}

// Индексы общих полей TardisCore
const (
	TardisIDSetting = iota + 1
	TardisStartTimeMsSetting
	TardisTimeMsSetting
	TardisNorthingSetting
	TardisEastingSetting
	TardisLinealSetting
	TardisSumLinealSetting
	TardisYawSetting
	TardisDeltaYawSetting
	TardisPitchSetting
	TardisRollSetting
	TardisAltitudeSetting
	TardisFocalLengthSetting
	TardisZoomSetting
	tardisSettingsEnd
)

// Индексы полей секции (после общих)
const (
	SectionLatitudeSetting = tardisSettingsEnd + iota
	SectionLongitudeSetting
	SectionMinRawHeatSetting
	SectionMaxRawHeatSetting
	SectionImageFileNameSetting
)

// Индексы полей шага (после общих)
const (
	StepDemSetting = tardisSettingsEnd + iota
	StepDsmSetting
	StepFixAltSetting
	StepCameraDownSetting
	StepFootprintNorthingSetting
	StepFootprintEastingSetting
	StepFootprintWidthSetting
	StepFootprintLengthSetting
	StepFootprintYawSetting
)

// Индексы полей ноги; сводка ноги следует начиная с LegSummarySetting
const (
	LegIDSetting = iota + 1
	LegNameSetting
	LegMinStepIDSetting
	LegMaxStepIDSetting
	LegWhyEndedSetting
	LegDistanceSetting
	LegSummarySetting
)

// SummarySettingsCount количество настроек сводки
const SummarySettingsCount = 28

const (
	metersDecimals = 3
	anglesDecimals = 3
	latLonDecimals = 8
)

type settingsWriter struct {
	out []Setting
}

func (w *settingsWriter) text(key, v string) {
	w.out = append(w.out, Setting{Key: key, Value: v})
}

func (w *settingsWriter) integer(key string, v int) {
	w.text(key, strconv.Itoa(v))
}

func (w *settingsWriter) number(key string, v float64, decimals int) {
	w.text(key, strconv.FormatFloat(v, 'f', decimals, 64))
}

func (w *settingsWriter) optFloat(key string, v *float64, decimals int) {
	if v == nil {
		w.text(key, "")
		return
	}
	w.number(key, *v, decimals)
}

func (w *settingsWriter) optInt(key string, v *int) {
	if v == nil {
		w.text(key, "")
		return
	}
	w.integer(key, *v)
}

func (w *settingsWriter) rng(key string, r Range, decimals int) {
	if !r.Valid {
		w.text("Min"+key, "")
		w.text("Max"+key, "")
		return
	}
	w.number("Min"+key, r.Min, decimals)
	w.number("Max"+key, r.Max, decimals)
}

type settingsReader struct {
	entity string
	values []string
	errs   []error
}

func (r *settingsReader) raw(index int) string {
	if index < 1 || index > len(r.values) {
		r.errs = append(r.errs, fmt.Errorf("%s: setting %d missing (have %d)", r.entity, index, len(r.values)))
		return ""
	}
	return strings.TrimSpace(r.values[index-1])
}

func (r *settingsReader) text(index int) string {
	return r.raw(index)
}

func (r *settingsReader) integer(index int) int {
	v := r.raw(index)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: setting %d: %w", r.entity, index, err))
	}
	return n
}

func (r *settingsReader) number(index int) float64 {
	v := r.optFloat(index)
	if v == nil {
		return 0
	}
	return *v
}

func (r *settingsReader) optFloat(index int) *float64 {
	v := r.raw(index)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: setting %d: %w", r.entity, index, err))
		return nil
	}
	return &f
}

func (r *settingsReader) optInt(index int) *int {
	v := r.raw(index)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: setting %d: %w", r.entity, index, err))
		return nil
	}
	return &n
}

func (r *settingsReader) rng(index int) Range {
	lo, hi := r.optFloat(index), r.optFloat(index+1)
	if lo == nil || hi == nil {
		return Range{}
	}
	return Range{Min: *lo, Max: *hi, Valid: true}
}

func (r *settingsReader) err() error {
	return errors.Join(r.errs...)
}

// TardisCore

func (t *TardisCore) writeSettings(w *settingsWriter) {
	w.integer("Id", t.ID)
	w.integer("StartTimeMs", t.StartTimeMs())
	w.integer("TimeMs", t.TimeMs)
	if t.Location != nil {
		w.number("NorthingM", t.Location.NorthingM, metersDecimals)
		w.number("EastingM", t.Location.EastingM, metersDecimals)
	} else {
		w.text("NorthingM", "")
		w.text("EastingM", "")
	}
	w.number("LinealM", t.LinealM, metersDecimals)
	w.number("SumLinealM", t.SumLinealM, metersDecimals)
	w.optFloat("YawDeg", t.YawDeg, anglesDecimals)
	w.number("DeltaYawDeg", t.DeltaYawDeg, anglesDecimals)
	w.optFloat("PitchDeg", t.PitchDeg, anglesDecimals)
	w.optFloat("RollDeg", t.RollDeg, anglesDecimals)
	w.optFloat("AltitudeM", t.AltitudeM, metersDecimals)
	w.optFloat("FocalLength", t.FocalLength, anglesDecimals)
	w.optFloat("Zoom", t.Zoom, anglesDecimals)
}

func (t *TardisCore) readSettings(r *settingsReader) {
	t.ID = r.integer(TardisIDSetting)
	t.StartTime = time.Duration(r.integer(TardisStartTimeMsSetting)) * time.Millisecond
	t.TimeMs = r.integer(TardisTimeMsSetting)
	northing, easting := r.optFloat(TardisNorthingSetting), r.optFloat(TardisEastingSetting)
	t.Location = nil
	if northing != nil && easting != nil {
		t.Location = &geo.Local{NorthingM: *northing, EastingM: *easting}
	}
	t.LinealM = r.number(TardisLinealSetting)
	t.SumLinealM = r.number(TardisSumLinealSetting)
	t.YawDeg = r.optFloat(TardisYawSetting)
	t.DeltaYawDeg = r.number(TardisDeltaYawSetting)
	t.PitchDeg = r.optFloat(TardisPitchSetting)
	t.RollDeg = r.optFloat(TardisRollSetting)
	t.AltitudeM = r.optFloat(TardisAltitudeSetting)
	t.FocalLength = r.optFloat(TardisFocalLengthSetting)
	t.Zoom = r.optFloat(TardisZoomSetting)
}

// GetSettings настройки секции
func (s *FlightSection) GetSettings() []Setting {
	w := &settingsWriter{}
	s.TardisCore.writeSettings(w)
	if s.Global != nil {
		w.number("Latitude", s.Global.Latitude, latLonDecimals)
		w.number("Longitude", s.Global.Longitude, latLonDecimals)
	} else {
		w.text("Latitude", "")
		w.text("Longitude", "")
	}
	w.optInt("MinRawHeat", s.MinRawHeat)
	w.optInt("MaxRawHeat", s.MaxRawHeat)
	w.text("ImageFileName", s.ImageFileName)
	return w.out
}

// LoadSettings восстанавливает секцию из значений настроек
func (s *FlightSection) LoadSettings(values []string) error {
	r := &settingsReader{entity: "section", values: values}
	s.TardisCore.readSettings(r)
	lat, lon := r.optFloat(SectionLatitudeSetting), r.optFloat(SectionLongitudeSetting)
	s.Global = nil
	if lat != nil && lon != nil {
		s.Global = &GeoPoint{Latitude: *lat, Longitude: *lon}
	}
	s.MinRawHeat = r.optInt(SectionMinRawHeatSetting)
	s.MaxRawHeat = r.optInt(SectionMaxRawHeatSetting)
	s.ImageFileName = r.text(SectionImageFileNameSetting)
	return r.err()
}

// GetSettings настройки шага
func (s *FlightStep) GetSettings() []Setting {
	w := &settingsWriter{}
	s.TardisCore.writeSettings(w)
	w.optFloat("DemM", s.DemM, metersDecimals)
	w.optFloat("DsmM", s.DsmM, metersDecimals)
	w.number("FixAltM", s.FixAltM, metersDecimals)
	w.number("CameraDownDeg", s.CameraDownDeg, anglesDecimals)
	if fp := s.Footprint; fp != nil {
		w.number("FootprintNorthingM", fp.Center.NorthingM, metersDecimals)
		w.number("FootprintEastingM", fp.Center.EastingM, metersDecimals)
		w.number("FootprintWidthM", fp.WidthM, metersDecimals)
		w.number("FootprintLengthM", fp.LengthM, metersDecimals)
		w.number("FootprintYawDeg", fp.YawDeg, anglesDecimals)
	} else {
		for _, key := range []string{"FootprintNorthingM", "FootprintEastingM", "FootprintWidthM", "FootprintLengthM", "FootprintYawDeg"} {
			w.text(key, "")
		}
	}
	return w.out
}

// LoadSettings восстанавливает шаг из значений настроек
func (s *FlightStep) LoadSettings(values []string) error {
	r := &settingsReader{entity: "step", values: values}
	s.TardisCore.readSettings(r)
	s.DemM = r.optFloat(StepDemSetting)
	s.DsmM = r.optFloat(StepDsmSetting)
	s.FixAltM = r.number(StepFixAltSetting)
	s.CameraDownDeg = r.number(StepCameraDownSetting)
	northing := r.optFloat(StepFootprintNorthingSetting)
	easting := r.optFloat(StepFootprintEastingSetting)
	width := r.optFloat(StepFootprintWidthSetting)
	length := r.optFloat(StepFootprintLengthSetting)
	yaw := r.optFloat(StepFootprintYawSetting)
	s.Footprint = nil
	if northing != nil && easting != nil && width != nil && length != nil && yaw != nil {
		s.Footprint = &Footprint{
			Center:  geo.Local{NorthingM: *northing, EastingM: *easting},
			WidthM:  *width,
			LengthM: *length,
			YawDeg:  *yaw,
		}
	}
	return r.err()
}

// GetSettings настройки сводки
func (s *TardisSummary) GetSettings() []Setting {
	w := &settingsWriter{}
	s.writeSettings(w)
	return w.out
}

// LoadSettings восстанавливает сводку из значений настроек
func (s *TardisSummary) LoadSettings(values []string) error {
	r := &settingsReader{entity: "summary", values: values}
	s.readSettings(r, 1)
	return r.err()
}

func (s *TardisSummary) writeSettings(w *settingsWriter) {
	w.integer("Count", s.Count)
	if s.IDs.Valid {
		w.integer("MinId", s.IDs.Min)
		w.integer("MaxId", s.IDs.Max)
	} else {
		w.text("MinId", "")
		w.text("MaxId", "")
	}
	if s.Times.Valid {
		w.integer("MinStartTimeMs", int(s.Times.Min/time.Millisecond))
		w.integer("MaxStartTimeMs", int(s.Times.Max/time.Millisecond))
	} else {
		w.text("MinStartTimeMs", "")
		w.text("MaxStartTimeMs", "")
	}
	w.rng("NorthingM", s.Northing, metersDecimals)
	w.rng("EastingM", s.Easting, metersDecimals)
	w.rng("LinealM", s.Lineal, metersDecimals)
	w.rng("SpeedMps", s.Speed, metersDecimals)
	w.rng("YawDeg", s.Yaw, anglesDecimals)
	w.rng("DeltaYawDeg", s.DeltaYaw, anglesDecimals)
	w.rng("PitchDeg", s.Pitch, anglesDecimals)
	w.rng("RollDeg", s.Roll, anglesDecimals)
	w.rng("AltitudeM", s.Altitude, metersDecimals)
	w.rng("FocalLength", s.FocalLength, anglesDecimals)
	w.rng("Zoom", s.Zoom, anglesDecimals)
	w.number("TotalLinealM", s.TotalLineal, metersDecimals)
}

func (s *TardisSummary) readSettings(r *settingsReader, first int) {
	i := first
	s.Count = r.integer(i)
	minID, maxID := r.optInt(i+1), r.optInt(i+2)
	s.IDs = IntRange{}
	if minID != nil && maxID != nil {
		s.IDs = IntRange{Min: *minID, Max: *maxID, Valid: true}
	}
	minT, maxT := r.optInt(i+3), r.optInt(i+4)
	s.Times = DurationRange{}
	if minT != nil && maxT != nil {
		s.Times = DurationRange{
			Min:   time.Duration(*minT) * time.Millisecond,
			Max:   time.Duration(*maxT) * time.Millisecond,
			Valid: true,
		}
	}
	i += 5
	for _, target := range []*Range{
		&s.Northing, &s.Easting, &s.Lineal, &s.Speed, &s.Yaw, &s.DeltaYaw,
		&s.Pitch, &s.Roll, &s.Altitude, &s.FocalLength, &s.Zoom,
	} {
		*target = r.rng(i)
		i += 2
	}
	s.TotalLineal = r.number(i)
}

// GetSettings настройки ноги, за которыми следует сводка
func (l *FlightLeg) GetSettings() []Setting {
	w := &settingsWriter{}
	w.integer("LegId", l.ID)
	w.text("LegName", l.Name)
	w.integer("MinStepId", l.MinStepID)
	w.integer("MaxStepId", l.MaxStepID)
	w.text("WhyLegEnded", l.WhyLegEnded)
	w.number("DistanceM", l.DistanceM, metersDecimals)
	l.TardisSummary.writeSettings(w)
	return w.out
}

// LoadSettings восстанавливает ногу из значений настроек
func (l *FlightLeg) LoadSettings(values []string) error {
	r := &settingsReader{entity: "leg", values: values}
	l.ID = r.integer(LegIDSetting)
	l.Name = r.text(LegNameSetting)
	l.MinStepID = r.integer(LegMinStepIDSetting)
	l.MaxStepID = r.integer(LegMaxStepIDSetting)
	l.WhyLegEnded = r.text(LegWhyEndedSetting)
	l.DistanceM = r.number(LegDistanceSetting)
	l.TardisSummary.readSettings(r, LegSummarySetting)
	return r.err()
}
