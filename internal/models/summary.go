package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// LocationToleranceM допуск по координатам при проверке вложенности
	LocationToleranceM = 0.001
	// RevisionEpsilon допуск для производных величин после сглаживания
	RevisionEpsilon = 0.2
)

// ErrInvariant базовая ошибка нарушения инварианта
var ErrInvariant = errors.New("invariant violation")

// InvariantError нарушение инварианта последовательности или сводки
type InvariantError struct {
	Check  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Check, e.Detail)
}

// Is позволяет errors.Is(err, ErrInvariant)
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

func invariantf(check, format string, args ...interface{}) error {
	return &InvariantError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

// Range диапазон значений; Valid=false пока не добавлено ни одно значение
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Valid bool    `json:"valid"`
}

// Fold расширяет диапазон значением
func (r *Range) Fold(v float64) {
	if math.IsNaN(v) {
		return
	}
	if !r.Valid {
		r.Min, r.Max, r.Valid = v, v, true
		return
	}
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
}

// FoldPtr расширяет диапазон, если значение известно
func (r *Range) FoldPtr(v *float64) {
	if v != nil {
		r.Fold(*v)
	}
}

// Within проверяет, что r лежит внутри outer с допуском tol.
// Неизвестный диапазон с любой стороны не проверяется.
func (r Range) Within(outer Range, tol float64) bool {
	if !r.Valid || !outer.Valid {
		return true
	}
	return r.Min >= outer.Min-tol && r.Max <= outer.Max+tol
}

// Clamp ограничивает значение диапазоном
func (r Range) Clamp(v float64) float64 {
	if !r.Valid {
		return v
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// IntRange целочисленный диапазон
type IntRange struct {
	Min   int  `json:"min"`
	Max   int  `json:"max"`
	Valid bool `json:"valid"`
}

// Fold расширяет диапазон значением
func (r *IntRange) Fold(v int) {
	if !r.Valid {
		r.Min, r.Max, r.Valid = v, v, true
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// DurationRange диапазон времени
type DurationRange struct {
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Valid bool          `json:"valid"`
}

// Fold расширяет диапазон значением
func (r *DurationRange) Fold(v time.Duration) {
	if !r.Valid {
		r.Min, r.Max, r.Valid = v, v, true
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// TardisSummary агрегированные min/max по последовательности записей
type TardisSummary struct {
	Count       int           `json:"count"`
	IDs         IntRange      `json:"ids"`
	Times       DurationRange `json:"times"`
	Northing    Range         `json:"northing_m"`
	Easting     Range         `json:"easting_m"`
	Lineal      Range         `json:"lineal_m"`
	Speed       Range         `json:"speed_mps"`
	Yaw         Range         `json:"yaw_deg"`
	DeltaYaw    Range         `json:"delta_yaw_deg"`
	Pitch       Range         `json:"pitch_deg"`
	Roll        Range         `json:"roll_deg"`
	Altitude    Range         `json:"altitude_m"`
	FocalLength Range         `json:"focal_length"`
	Zoom        Range         `json:"zoom"`
	TotalLineal float64       `json:"total_lineal_m"`
}

// Reset очищает сводку
func (s *TardisSummary) Reset() {
	*s = TardisSummary{}
}

// Summarise добавляет запись в сводку
func (s *TardisSummary) Summarise(t *TardisCore) {
	if t == nil {
		return
	}
	s.Count++
	s.IDs.Fold(t.ID)
	s.Times.Fold(t.StartTime)
	if t.Location != nil {
		s.Northing.Fold(t.Location.NorthingM)
		s.Easting.Fold(t.Location.EastingM)
	}
	s.Lineal.Fold(t.LinealM)
	s.Speed.Fold(t.SpeedMps())
	s.Yaw.FoldPtr(t.YawDeg)
	s.DeltaYaw.Fold(t.DeltaYawDeg)
	s.Pitch.FoldPtr(t.PitchDeg)
	s.Roll.FoldPtr(t.RollDeg)
	s.Altitude.FoldPtr(t.AltitudeM)
	s.FocalLength.FoldPtr(t.FocalLength)
	s.Zoom.FoldPtr(t.Zoom)
	s.TotalLineal += t.LinealM
}

// CopyFrom копирует значения другой сводки
func (s *TardisSummary) CopyFrom(other *TardisSummary) {
	if other == nil {
		s.Reset()
		return
	}
	*s = *other
}

// DurationMs длительность между первой и последней записью
func (s *TardisSummary) DurationMs() int {
	if !s.Times.Valid {
		return 0
	}
	return int((s.Times.Max - s.Times.Min) / time.Millisecond)
}

// AssertGoodSubset проверяет, что сводка является подмножеством orig:
// диапазон id (по запросу), прямоугольник координат и углы pitch/roll.
// Высота не проверяется, так как коррекция высоты сдвигает ее за пределы исходной.
func (s *TardisSummary) AssertGoodSubset(orig *TardisSummary, checkIDRange bool) error {
	if orig == nil {
		return invariantf("subset", "original summary is nil")
	}
	if checkIDRange && s.IDs.Valid && orig.IDs.Valid {
		if s.IDs.Min < orig.IDs.Min || s.IDs.Max > orig.IDs.Max {
			return invariantf("subset.ids", "ids [%d,%d] outside [%d,%d]",
				s.IDs.Min, s.IDs.Max, orig.IDs.Min, orig.IDs.Max)
		}
	}
	if !s.Northing.Within(orig.Northing, LocationToleranceM) {
		return invariantf("subset.northing", "northing [%.3f,%.3f] outside [%.3f,%.3f]",
			s.Northing.Min, s.Northing.Max, orig.Northing.Min, orig.Northing.Max)
	}
	if !s.Easting.Within(orig.Easting, LocationToleranceM) {
		return invariantf("subset.easting", "easting [%.3f,%.3f] outside [%.3f,%.3f]",
			s.Easting.Min, s.Easting.Max, orig.Easting.Min, orig.Easting.Max)
	}
	if !s.Pitch.Within(orig.Pitch, 0) {
		return invariantf("subset.pitch", "pitch [%.3f,%.3f] outside [%.3f,%.3f]",
			s.Pitch.Min, s.Pitch.Max, orig.Pitch.Min, orig.Pitch.Max)
	}
	if !s.Roll.Within(orig.Roll, 0) {
		return invariantf("subset.roll", "roll [%.3f,%.3f] outside [%.3f,%.3f]",
			s.Roll.Min, s.Roll.Max, orig.Roll.Min, orig.Roll.Max)
	}
	return nil
}

// AssertGoodRevision проверяет пересчитанную сводку с допуском RevisionEpsilon
func (s *TardisSummary) AssertGoodRevision(orig *TardisSummary) error {
	return s.AssertGoodRevisionWithin(orig, RevisionEpsilon)
}

// AssertGoodRevisionWithin проверяет, что пересчет не изменил диапазоны id и времени,
// остался подмножеством и не вышел за огибающую lineal/speed/deltaYaw больше чем на eps.
func (s *TardisSummary) AssertGoodRevisionWithin(orig *TardisSummary, eps float64) error {
	if orig == nil {
		return invariantf("revision", "original summary is nil")
	}
	if s.IDs != orig.IDs {
		return invariantf("revision.ids", "ids [%d,%d] differ from [%d,%d]",
			s.IDs.Min, s.IDs.Max, orig.IDs.Min, orig.IDs.Max)
	}
	if s.Times != orig.Times {
		return invariantf("revision.times", "times [%s,%s] differ from [%s,%s]",
			s.Times.Min, s.Times.Max, orig.Times.Min, orig.Times.Max)
	}
	if err := s.AssertGoodSubset(orig, true); err != nil {
		return err
	}
	if !s.Lineal.Within(orig.Lineal, eps) {
		return invariantf("revision.lineal", "lineal [%.3f,%.3f] outside [%.3f,%.3f]±%.2f",
			s.Lineal.Min, s.Lineal.Max, orig.Lineal.Min, orig.Lineal.Max, eps)
	}
	if !s.Speed.Within(orig.Speed, eps) {
		return invariantf("revision.speed", "speed [%.3f,%.3f] outside [%.3f,%.3f]±%.2f",
			s.Speed.Min, s.Speed.Max, orig.Speed.Min, orig.Speed.Max, eps)
	}
	if !s.DeltaYaw.Within(orig.DeltaYaw, eps) {
		return invariantf("revision.delta_yaw", "delta yaw [%.3f,%.3f] outside [%.3f,%.3f]±%.2f",
			s.DeltaYaw.Min, s.DeltaYaw.Max, orig.DeltaYaw.Min, orig.DeltaYaw.Max, eps)
	}
	return nil
}
