package models

import (
	"fmt"
	"math"

	"github.com/flybeeper/flightpath/internal/geo"
	"github.com/mmcloughlin/geohash"
	gogeo "github.com/paulmach/go.geo"
)

// GeoPoint представляет географическую точку (WGS84)
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// IsZero точка (0,0) считается отсутствием GPS фикса
func (p GeoPoint) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

// DistanceTo расстояние по дуге большого круга в метрах
func (p GeoPoint) DistanceTo(other GeoPoint) float64 {
	return p.point().GeoDistanceFrom(other.point(), true)
}

// BearingTo курс на другую точку в градусах [0, 360)
func (p GeoPoint) BearingTo(other GeoPoint) float64 {
	bearing := p.point().BearingTo(other.point())
	if bearing < 0 {
		bearing += 360
	}
	return bearing
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// ToLocal переводит точку в локальные координаты относительно origin
func (p GeoPoint) ToLocal(origin GeoPoint) geo.Local {
	return geo.GlobalToLocal(p.Latitude, p.Longitude, origin.Latitude, origin.Longitude)
}

// IsInBounds проверяет, находится ли точка в границах
func (p GeoPoint) IsInBounds(sw, ne GeoPoint) bool {
	return p.Latitude >= sw.Latitude && p.Latitude <= ne.Latitude &&
		p.Longitude >= sw.Longitude && p.Longitude <= ne.Longitude
}

func (p GeoPoint) point() *gogeo.Point {
	return gogeo.NewPointFromLatLng(p.Latitude, p.Longitude)
}

// GeoPointFromLocal обратное преобразование из локальных координат
func GeoPointFromLocal(local geo.Local, origin GeoPoint) GeoPoint {
	lat, lon := geo.LocalToGlobal(local, origin.Latitude, origin.Longitude)
	return GeoPoint{Latitude: lat, Longitude: lon}
}

// Bounds представляет географические границы
type Bounds struct {
	Southwest GeoPoint `json:"sw"`
	Northeast GeoPoint `json:"ne"`
}

// BoundsOf строит минимальные границы, содержащие все точки
func BoundsOf(points []GeoPoint) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	bound := gogeo.NewBound(points[0].Longitude, points[0].Longitude, points[0].Latitude, points[0].Latitude)
	for _, p := range points[1:] {
		bound.Extend(p.point())
	}
	return Bounds{
		Southwest: GeoPoint{Latitude: bound.SouthWest().Lat(), Longitude: bound.SouthWest().Lng()},
		Northeast: GeoPoint{Latitude: bound.NorthEast().Lat(), Longitude: bound.NorthEast().Lng()},
	}, true
}

// Validate проверяет корректность границ
func (b Bounds) Validate() error {
	if err := b.Southwest.Validate(); err != nil {
		return fmt.Errorf("southwest: %w", err)
	}
	if err := b.Northeast.Validate(); err != nil {
		return fmt.Errorf("northeast: %w", err)
	}
	if b.Southwest.Latitude > b.Northeast.Latitude {
		return fmt.Errorf("southwest latitude must be less than northeast latitude")
	}
	if b.Southwest.Longitude > b.Northeast.Longitude {
		return fmt.Errorf("southwest longitude must be less than northeast longitude")
	}
	return nil
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(point GeoPoint) bool {
	return point.IsInBounds(b.Southwest, b.Northeast)
}

// Center возвращает центральную точку границ
func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Latitude:  (b.Southwest.Latitude + b.Northeast.Latitude) / 2,
		Longitude: (b.Southwest.Longitude + b.Northeast.Longitude) / 2,
	}
}

// DiagonalM возвращает диагональ границ в метрах
func (b Bounds) DiagonalM() float64 {
	return b.Southwest.DistanceTo(b.Northeast)
}
