package models

import (
	"fmt"
	"strings"
)

// GimbalDataAvail наличие данных о подвесе камеры
type GimbalDataAvail int

const (
	// GimbalManualNo данных о подвесе нет, используется ориентация корпуса
	GimbalManualNo GimbalDataAvail = iota
	// GimbalManualYes пользователь указал, что данные о подвесе есть
	GimbalManualYes
	// GimbalAutoYes парсер обнаружил углы подвеса в логе
	GimbalAutoYes
)

var gimbalNames = map[GimbalDataAvail]string{
	GimbalManualNo:  "ManualNo",
	GimbalManualYes: "ManualYes",
	GimbalAutoYes:   "AutoYes",
}

func (g GimbalDataAvail) String() string {
	if name, ok := gimbalNames[g]; ok {
		return name
	}
	return fmt.Sprintf("GimbalDataAvail(%d)", int(g))
}

// Available true когда камера ориентирована по данным подвеса
func (g GimbalDataAvail) Available() bool {
	return g == GimbalManualYes || g == GimbalAutoYes
}

// MarshalText реализует encoding.TextMarshaler
func (g GimbalDataAvail) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (g *GimbalDataAvail) UnmarshalText(text []byte) error {
	v, err := ParseGimbalDataAvail(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// ParseGimbalDataAvail разбирает строковое значение без учета регистра
func ParseGimbalDataAvail(s string) (GimbalDataAvail, error) {
	for k, name := range gimbalNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return GimbalManualNo, fmt.Errorf("unknown gimbal data availability: %q", s)
}

// OnGroundAt в каких точках полета дрон находился на земле
type OnGroundAt int

const (
	OnGroundNeither OnGroundAt = iota
	OnGroundStart
	OnGroundEnd
	OnGroundBoth
	OnGroundAuto
)

var onGroundNames = map[OnGroundAt]string{
	OnGroundNeither: "Neither",
	OnGroundStart:   "Start",
	OnGroundEnd:     "End",
	OnGroundBoth:    "Both",
	OnGroundAuto:    "Auto",
}

func (o OnGroundAt) String() string {
	if name, ok := onGroundNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OnGroundAt(%d)", int(o))
}

// MarshalText реализует encoding.TextMarshaler
func (o OnGroundAt) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (o *OnGroundAt) UnmarshalText(text []byte) error {
	v, err := ParseOnGroundAt(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOnGroundAt разбирает строковое значение без учета регистра
func ParseOnGroundAt(s string) (OnGroundAt, error) {
	for k, name := range onGroundNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return OnGroundNeither, fmt.Errorf("unknown on-ground mode: %q", s)
}

// Valid известное ли значение
func (g GimbalDataAvail) Valid() bool {
	_, ok := gimbalNames[g]
	return ok
}

// Valid известное ли значение
func (o OnGroundAt) Valid() bool {
	_, ok := onGroundNames[o]
	return ok
}

// AnchorsStart в начале полета дрон на земле
func (o OnGroundAt) AnchorsStart() bool {
	return o == OnGroundStart || o == OnGroundBoth
}

// AnchorsEnd в конце полета дрон на земле
func (o OnGroundAt) AnchorsEnd() bool {
	return o == OnGroundEnd || o == OnGroundBoth
}

// OnGroundFrom режим по признакам касания земли в начале и конце
func OnGroundFrom(start, end bool) OnGroundAt {
	switch {
	case start && end:
		return OnGroundBoth
	case start:
		return OnGroundStart
	case end:
		return OnGroundEnd
	default:
		return OnGroundNeither
	}
}
