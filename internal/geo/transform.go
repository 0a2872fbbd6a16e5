package geo

import "math"

const (
	// EarthRadiusM mean Earth radius in meters
	EarthRadiusM = 6371008.8

	// MetersPerDegree length of one degree of latitude on the mean sphere
	MetersPerDegree = math.Pi * EarthRadiusM / 180.0
)

// Local is a planar position relative to a flight's local origin, in meters.
// Easting is the X axis, northing is the Y axis.
type Local struct {
	NorthingM float64 `json:"northing_m"`
	EastingM  float64 `json:"easting_m"`
}

// Add returns l + other
func (l Local) Add(other Local) Local {
	return Local{NorthingM: l.NorthingM + other.NorthingM, EastingM: l.EastingM + other.EastingM}
}

// Sub returns l - other
func (l Local) Sub(other Local) Local {
	return Local{NorthingM: l.NorthingM - other.NorthingM, EastingM: l.EastingM - other.EastingM}
}

// Scale returns l multiplied by factor
func (l Local) Scale(factor float64) Local {
	return Local{NorthingM: l.NorthingM * factor, EastingM: l.EastingM * factor}
}

// Length returns the distance from the origin
func (l Local) Length() float64 {
	return math.Hypot(l.NorthingM, l.EastingM)
}

// GlobalToLocal converts a lat/long to a local position relative to the origin.
// Uses a small-angle approximation, valid for flight-sized areas.
func GlobalToLocal(lat, lon, originLat, originLon float64) Local {
	return Local{
		NorthingM: (lat - originLat) * MetersPerDegree,
		EastingM:  (lon - originLon) * MetersPerDegree * math.Cos(originLat*math.Pi/180),
	}
}

// LocalToGlobal is the inverse of GlobalToLocal
func LocalToGlobal(local Local, originLat, originLon float64) (lat, lon float64) {
	lat = originLat + local.NorthingM/MetersPerDegree
	cosLat := math.Cos(originLat * math.Pi / 180)
	if cosLat == 0 {
		return lat, originLon
	}
	lon = originLon + local.EastingM/(MetersPerDegree*cosLat)
	return lat, lon
}

// Translate moves p by delta
func Translate(p, delta Local) Local {
	return p.Add(delta)
}

// RotatePoint rotates p about the origin counter-clockwise by angleRad
// in the easting/northing plane.
func RotatePoint(p Local, angleRad float64) Local {
	sin, cos := math.Sincos(angleRad)
	return Local{
		EastingM:  p.EastingM*cos - p.NorthingM*sin,
		NorthingM: p.EastingM*sin + p.NorthingM*cos,
	}
}

// Distance returns the planar distance between two local positions
func Distance(a, b Local) float64 {
	return math.Hypot(a.NorthingM-b.NorthingM, a.EastingM-b.EastingM)
}

// Offset returns the local vector of length distanceM along a compass
// heading (degrees clockwise from north).
func Offset(headingDeg, distanceM float64) Local {
	sin, cos := math.Sincos(headingDeg * math.Pi / 180)
	return Local{NorthingM: distanceM * cos, EastingM: distanceM * sin}
}

// PolygonContains reports whether p lies inside the polygon ring (even-odd rule).
// The ring need not be closed.
func PolygonContains(ring []Local, p Local) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.NorthingM > p.NorthingM) != (b.NorthingM > p.NorthingM) {
			cross := (b.EastingM-a.EastingM)*(p.NorthingM-a.NorthingM)/(b.NorthingM-a.NorthingM) + a.EastingM
			if p.EastingM < cross {
				inside = !inside
			}
		}
	}
	return inside
}
