package models

import (
	"math"
	"time"

	"github.com/flybeeper/flightpath/internal/geo"
)

// DeltaYawEpsilonDeg изменения курса меньше порога считаются нулевыми
const DeltaYawEpsilonDeg = 0.001

// TardisCore общие поля временной записи полета (секции и шага).
// Необязательные значения представлены указателями: nil означает "неизвестно".
type TardisCore struct {
	ID          int           `json:"id"`
	StartTime   time.Duration `json:"start_time"` // смещение от начала видео/полета
	TimeMs      int           `json:"time_ms"`    // интервал от предыдущей записи
	Location    *geo.Local    `json:"location,omitempty"`
	LinealM     float64       `json:"lineal_m"`     // расстояние от предыдущей записи
	SumLinealM  float64       `json:"sum_lineal_m"` // накопленное расстояние
	YawDeg      *float64      `json:"yaw_deg,omitempty"`
	DeltaYawDeg float64       `json:"delta_yaw_deg"`
	PitchDeg    *float64      `json:"pitch_deg,omitempty"`
	RollDeg     *float64      `json:"roll_deg,omitempty"`
	AltitudeM   *float64      `json:"altitude_m,omitempty"`
	FocalLength *float64      `json:"focal_length,omitempty"`
	Zoom        *float64      `json:"zoom,omitempty"`
}

// StartTimeMs смещение в миллисекундах
func (t *TardisCore) StartTimeMs() int {
	return int(t.StartTime / time.Millisecond)
}

// SpeedMps скорость в м/с; 0 если интервал или расстояние не положительны
func (t *TardisCore) SpeedMps() float64 {
	if t.TimeMs <= 0 || t.LinealM <= 0 {
		return 0
	}
	return 1000 * t.LinealM / float64(t.TimeMs)
}

// YawRad курс в радианах, 0 если неизвестен
func (t *TardisCore) YawRad() float64 {
	if t.YawDeg == nil {
		return 0
	}
	return *t.YawDeg * math.Pi / 180
}

// DeltaYawRad изменение курса в радианах
func (t *TardisCore) DeltaYawRad() float64 {
	return t.DeltaYawDeg * math.Pi / 180
}

// HasLocation есть ли локальная позиция
func (t *TardisCore) HasLocation() bool {
	return t.Location != nil
}

// Clone глубокая копия, не разделяющая указатели с оригиналом
func (t TardisCore) Clone() TardisCore {
	c := t
	if t.Location != nil {
		loc := *t.Location
		c.Location = &loc
	}
	c.YawDeg = cloneFloat(t.YawDeg)
	c.PitchDeg = cloneFloat(t.PitchDeg)
	c.RollDeg = cloneFloat(t.RollDeg)
	c.AltitudeM = cloneFloat(t.AltitudeM)
	c.FocalLength = cloneFloat(t.FocalLength)
	c.Zoom = cloneFloat(t.Zoom)
	return c
}

// YawDegsDelta разница курсов to-from, приведенная к (-180, 180]
func YawDegsDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// NormalizeYaw приводит курс к [0, 360)
func NormalizeYaw(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// SignedYaw приводит курс к [-180, 180)
func SignedYaw(deg float64) float64 {
	d := NormalizeYaw(deg)
	if d >= 180 {
		d -= 360
	}
	return d
}

// Float возвращает указатель на значение
func Float(v float64) *float64 {
	return &v
}

// FloatOr значение или запасное, если nil
func FloatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
