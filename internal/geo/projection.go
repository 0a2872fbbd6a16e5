package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"
)

// TransverseMercator holds the parameters of a transverse mercator
// country grid (NZTM, UTM zones and similar).
type TransverseMercator struct {
	Name               string  `json:"name" yaml:"name"`
	CentralMeridianDeg float64 `json:"central_meridian_deg" yaml:"central_meridian_deg"`
	OriginLatDeg       float64 `json:"origin_lat_deg" yaml:"origin_lat_deg"`
	ScaleFactor        float64 `json:"scale_factor" yaml:"scale_factor"`
	FalseEastingM      float64 `json:"false_easting_m" yaml:"false_easting_m"`
	FalseNorthingM     float64 `json:"false_northing_m" yaml:"false_northing_m"`
	SemiMajorAxisM     float64 `json:"semi_major_axis_m" yaml:"semi_major_axis_m"`
	Flattening         float64 `json:"flattening" yaml:"flattening"`
}

// NZTM returns the New Zealand Transverse Mercator 2000 grid on GRS80
func NZTM() TransverseMercator {
	return TransverseMercator{
		Name:               "NZTM2000",
		CentralMeridianDeg: 173,
		OriginLatDeg:       0,
		ScaleFactor:        0.9996,
		FalseEastingM:      1600000,
		FalseNorthingM:     10000000,
		SemiMajorAxisM:     6378137,
		Flattening:         1 / 298.257222101,
	}
}

// UTM returns the WGS84 UTM grid for the given zone and hemisphere
func UTM(zone int, south bool) TransverseMercator {
	tm := TransverseMercator{
		Name:               "UTM",
		CentralMeridianDeg: float64(zone*6 - 183),
		ScaleFactor:        0.9996,
		FalseEastingM:      500000,
		SemiMajorAxisM:     6378137,
		Flattening:         1 / 298.257223563,
	}
	if south {
		tm.FalseNorthingM = 10000000
	}
	return tm
}

// ellipsoid is the reference ellipsoid of a grid
type ellipsoid struct {
	a, fi float64
}

func (e ellipsoid) A() float64  { return e.a }
func (e ellipsoid) Fi() float64 { return e.fi }

// System returns the projected reference system described by tm.
// The datum carries no Helmert shift, so WGS84 and GRS80 grids differ only by ellipsoid.
func (tm TransverseMercator) System() wgs84.ProjectedReferenceSystem {
	datum := wgs84.Datum{
		Spheroid: ellipsoid{a: tm.SemiMajorAxisM, fi: 1 / tm.Flattening},
		Area: wgs84.AreaFunc(func(lon, lat float64) bool {
			return math.Abs(lat) <= 90 && math.Abs(lon) <= 180
		}),
	}
	return datum.TransverseMercator(tm.CentralMeridianDeg, tm.OriginLatDeg, tm.ScaleFactor, tm.FalseEastingM, tm.FalseNorthingM)
}

// Forward projects lat/long in degrees to grid northing/easting in meters
func (tm TransverseMercator) Forward(lat, lon float64) (northingM, eastingM float64) {
	easting, northing, _ := wgs84.LonLat().To(tm.System())(lon, lat, 0)
	return northing, easting
}

// LocalToCountry converts a local position into the country grid, given
// the lat/long of the local origin.
func LocalToCountry(local Local, originLat, originLon float64, tm TransverseMercator) Local {
	lat, lon := LocalToGlobal(local, originLat, originLon)
	northing, easting := tm.Forward(lat, lon)
	return Local{NorthingM: northing, EastingM: easting}
}

// ParseProjection resolves a grid name: "nztm", or "utm<zone><n|s>" such as "utm33n".
// An empty name returns nil.
func ParseProjection(name string) (*TransverseMercator, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		return nil, nil
	case name == "nztm":
		tm := NZTM()
		return &tm, nil
	case strings.HasPrefix(name, "utm") && len(name) > 4:
		hemi := name[len(name)-1]
		zone, err := strconv.Atoi(name[3 : len(name)-1])
		if err != nil || zone < 1 || zone > 60 || (hemi != 'n' && hemi != 's') {
			return nil, fmt.Errorf("invalid utm projection %q", name)
		}
		tm := UTM(zone, hemi == 's')
		tm.Name = fmt.Sprintf("UTM%d%c", zone, hemi-'a'+'A')
		return &tm, nil
	}
	return nil, fmt.Errorf("unknown projection %q", name)
}
