package geo

import (
	"math"
	"testing"

	gogeo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/wroge/wgs84"
)

func TestGlobalToLocal(t *testing.T) {
	tests := []struct {
		name      string
		lat, lon  float64
		originLat float64
		originLon float64
		northing  float64
		easting   float64
	}{
		{"origin maps to zero", -36.5, 174.5, -36.5, 174.5, 0, 0},
		{"one millidegree north", -36.499, 174.5, -36.5, 174.5, 111.195, 0},
		{"one millidegree east at equator", 0, 10.001, 0, 10, 0, 111.195},
		{"one millidegree east at 60 deg", 60, 10.001, 60, 10, 0, 55.597},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := GlobalToLocal(tt.lat, tt.lon, tt.originLat, tt.originLon)
			assert.InDelta(t, tt.northing, local.NorthingM, 0.01)
			assert.InDelta(t, tt.easting, local.EastingM, 0.01)
		})
	}
}

func TestLocalToGlobal_RoundTrip(t *testing.T) {
	originLat, originLon := -41.2865, 174.7762
	points := []Local{
		{NorthingM: 0, EastingM: 0},
		{NorthingM: 250, EastingM: -420},
		{NorthingM: -1800, EastingM: 3100},
	}

	for _, p := range points {
		lat, lon := LocalToGlobal(p, originLat, originLon)
		back := GlobalToLocal(lat, lon, originLat, originLon)
		assert.InDelta(t, p.NorthingM, back.NorthingM, 1e-6)
		assert.InDelta(t, p.EastingM, back.EastingM, 1e-6)
	}
}

func TestGlobalToLocal_AgreesWithGreatCircle(t *testing.T) {
	originLat, originLon := 46.0, 8.0
	lat, lon := 46.004, 8.006

	local := GlobalToLocal(lat, lon, originLat, originLon)
	planar := local.Length()

	haversine := gogeo.NewPointFromLatLng(originLat, originLon).
		GeoDistanceFrom(gogeo.NewPointFromLatLng(lat, lon), true)

	assert.InEpsilon(t, haversine, planar, 0.005)
}

func TestRotatePoint(t *testing.T) {
	tests := []struct {
		name  string
		p     Local
		angle float64
		want  Local
	}{
		{"quarter turn east to north", Local{EastingM: 1}, math.Pi / 2, Local{NorthingM: 1}},
		{"half turn", Local{NorthingM: 2, EastingM: 1}, math.Pi, Local{NorthingM: -2, EastingM: -1}},
		{"zero angle", Local{NorthingM: 3, EastingM: 4}, 0, Local{NorthingM: 3, EastingM: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RotatePoint(tt.p, tt.angle)
			assert.InDelta(t, tt.want.NorthingM, got.NorthingM, 1e-9)
			assert.InDelta(t, tt.want.EastingM, got.EastingM, 1e-9)
			assert.InDelta(t, tt.p.Length(), got.Length(), 1e-9)
		})
	}
}

func TestTranslateAndDistance(t *testing.T) {
	p := Translate(Local{NorthingM: 1, EastingM: 1}, Local{NorthingM: 3, EastingM: 4})
	assert.Equal(t, Local{NorthingM: 4, EastingM: 5}, p)
	assert.InDelta(t, 5.0, Distance(Local{}, Local{NorthingM: 3, EastingM: 4}), 1e-12)
}

func TestOffset(t *testing.T) {
	north := Offset(0, 10)
	assert.InDelta(t, 10, north.NorthingM, 1e-9)
	assert.InDelta(t, 0, north.EastingM, 1e-9)

	east := Offset(90, 10)
	assert.InDelta(t, 0, east.NorthingM, 1e-9)
	assert.InDelta(t, 10, east.EastingM, 1e-9)
}

func TestNZTM_Forward(t *testing.T) {
	tm := NZTM()

	northing, easting := tm.Forward(0, 173)
	assert.InDelta(t, tm.FalseNorthingM, northing, 1e-3)
	assert.InDelta(t, tm.FalseEastingM, easting, 1e-3)

	// На центральном меридиане восточная координата равна false easting
	northing, easting = tm.Forward(-41, 173)
	assert.InDelta(t, 1600000, easting, 1e-3)
	assert.InDelta(t, 5461248, northing, 2000)
}

func TestNZTM_LocalScale(t *testing.T) {
	tm := NZTM()
	originLat, originLon := -43.53, 172.63

	a := LocalToCountry(Local{}, originLat, originLon, tm)
	b := LocalToCountry(Local{NorthingM: 300, EastingM: 400}, originLat, originLon, tm)

	// Около центрального меридиана масштаб близок к 0.9996
	assert.InEpsilon(t, 500.0, Distance(a, b), 0.002)
}

func TestUTM(t *testing.T) {
	tm := UTM(60, true)
	assert.Equal(t, 177.0, tm.CentralMeridianDeg)
	assert.Equal(t, 10000000.0, tm.FalseNorthingM)

	_, easting := tm.Forward(-41, 177)
	assert.InDelta(t, 500000, easting, 1e-3)
}

func TestUTM_MatchesReferenceZone(t *testing.T) {
	tm := UTM(32, false)
	reference := wgs84.LonLat().To(wgs84.UTM(32, true))

	for _, p := range [][2]float64{{47, 8}, {52, 9}, {46.52, 6.57}, {60, 11.5}} {
		northing, easting := tm.Forward(p[0], p[1])
		wantE, wantN, _ := reference(p[1], p[0], 0)
		assert.InDelta(t, wantE, easting, 1e-3, "%v", p)
		assert.InDelta(t, wantN, northing, 1e-3, "%v", p)
	}

	// Восточная координата на меридиане 9° равна false easting зоны 32
	_, easting := tm.Forward(52, 9)
	assert.InDelta(t, 500000, easting, 1e-3)
}

func TestParseProjection(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantErr  bool
	}{
		{name: "empty", input: ""},
		{name: "nztm", input: "NZTM", wantName: "NZTM2000"},
		{name: "utm north", input: "utm33n", wantName: "UTM33N"},
		{name: "utm south", input: " utm60s ", wantName: "UTM60S"},
		{name: "zone out of range", input: "utm61n", wantErr: true},
		{name: "no hemisphere", input: "utm33", wantErr: true},
		{name: "unknown", input: "lambert", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, err := ParseProjection(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if tt.wantName == "" {
				assert.Nil(t, tm)
				return
			}
			if assert.NotNil(t, tm) {
				assert.Equal(t, tt.wantName, tm.Name)
			}
		})
	}

	tm, err := ParseProjection("utm60s")
	assert.NoError(t, err)
	assert.Equal(t, 177.0, tm.CentralMeridianDeg)
}
