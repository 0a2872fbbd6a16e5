package parser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = "Time,Longitude,Latitude,Altitude_AMSL,Gimbal:Pitch,Gimbal:Roll,Gimbal:Heading,Focal_Length\n"

func parseCSV(t *testing.T, body string) (*Result, error) {
	t.Helper()
	p := NewCSVParser(utils.NewNopLogger(), 0)
	return p.parseReader(context.Background(), strings.NewReader(body))
}

func TestCSVParser_Basic(t *testing.T) {
	res, err := parseCSV(t, csvHeader+
		"0.0,174.000,-36.000,100,-90,0,350,24\n"+
		"0.5,174.001,-36.001,101,-89,1,355,24\n"+
		"not-a-time,174.002,-36.002,102,-88,0,0,24\n"+
		"1.0,174.002,-36.002,102,-88,0,0,\n")
	require.NoError(t, err)

	assert.Equal(t, "csv", res.Source)
	assert.Equal(t, 1, res.Skipped)
	require.Equal(t, 3, res.Sections.Len())

	s := res.Sections.Sections[1]
	assert.Equal(t, 500*time.Millisecond, s.StartTime)
	assert.InDelta(t, 101.0, *s.AltitudeM, 1e-9)
	assert.InDelta(t, -5.0, *s.YawDeg, 1e-9)
	assert.InDelta(t, -89.0, *s.PitchDeg, 1e-9)
	assert.InDelta(t, 24.0, *s.FocalLength, 1e-9)
	assert.Nil(t, res.Sections.Sections[2].FocalLength)
}

func TestCSVParser_MissingColumns(t *testing.T) {
	_, err := parseCSV(t, "time,longitude,latitude,altitude_amsl,gimbal:pitch\n0,1,2,3,4\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "gimbal:roll")
	assert.Contains(t, err.Error(), "gimbal:heading")
}

func TestCSVParser_Empty(t *testing.T) {
	_, err := parseCSV(t, "")
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = parseCSV(t, csvHeader)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestCSVParser_Deduplicates(t *testing.T) {
	res, err := parseCSV(t, csvHeader+
		"0.000,174.000,-36.000,100,-90,0,0,\n"+
		"0.010,174.000,-36.000,100,-90,0,0,\n"+
		"0.032,174.000,-36.000,100,-90,0,0,\n"+
		"0.033,174.001,-36.000,100,-90,0,0,\n"+
		"0.050,174.001,-36.000,100,-90,0,0,\n"+
		"0.100,174.002,-36.000,100,-90,0,0,\n")
	require.NoError(t, err)

	require.Equal(t, 3, res.Sections.Len())
	assert.Equal(t, 33*time.Millisecond, res.Sections.Sections[1].StartTime)
	assert.Equal(t, 100*time.Millisecond, res.Sections.Sections[2].StartTime)
}

func TestCSVParser_Timestamps(t *testing.T) {
	res, err := parseCSV(t, csvHeader+
		"2024-03-01 10:00:00.000,174.000,-36.000,100,-90,0,0,\n"+
		"2024-03-01 10:00:01.250,174.001,-36.000,100,-90,0,0,\n")
	require.NoError(t, err)
	assert.Equal(t, 1250, res.Sections.Sections[1].TimeMs)
}

func TestCSVParser_SparseGPSFirstSample(t *testing.T) {
	// Повтор первого значения лога: момент получения неизвестен, доля 0
	res, err := parseCSV(t, csvHeader+
		"0,174.000,-36.000,100,-90,0,0,\n"+
		"2,174.000,-36.000,100,-90,0,0,\n"+
		"4,174.004,-36.004,100,-90,0,0,\n")
	require.NoError(t, err)
	require.Equal(t, 3, res.Sections.Len())

	middle := res.Sections.Sections[1].Global
	assert.Equal(t, -36.000, middle.Latitude)
	assert.Equal(t, 174.000, middle.Longitude)
}

func TestCSVParser_SparseGPSInterpolates(t *testing.T) {
	res, err := parseCSV(t, csvHeader+
		"0,174.000,-36.000,100,-90,0,0,\n"+
		"1,174.002,-36.002,100,-90,0,0,\n"+
		"2,174.002,-36.002,100,-90,0,0,\n"+
		"4,174.006,-36.006,100,-90,0,0,\n")
	require.NoError(t, err)
	require.Equal(t, 4, res.Sections.Len())

	s := res.Sections.Sections
	assert.InDelta(t, -36.002, s[1].Global.Latitude, 1e-12)
	assert.InDelta(t, -36.003, s[2].Global.Latitude, 1e-12)
	assert.InDelta(t, 174.003, s[2].Global.Longitude, 1e-12)
	assert.InDelta(t, -36.006, s[3].Global.Latitude, 1e-12)
}

func TestCSVParser_HoverKeepsRepeatedFix(t *testing.T) {
	res, err := parseCSV(t, csvHeader+
		"0,174.000,-36.000,100,-90,0,0,\n"+
		"1,174.002,-36.002,100,-90,0,0,\n"+
		"2,174.002,-36.002,100,-90,0,0,\n"+
		"3,174.002,-36.002,100,-90,0,0,\n"+
		"5,174.006,-36.006,100,-90,0,0,\n")
	require.NoError(t, err)
	require.Equal(t, 5, res.Sections.Len())

	for _, s := range res.Sections.Sections[1:4] {
		assert.InDelta(t, -36.002, s.Global.Latitude, 1e-12)
		assert.InDelta(t, 174.002, s.Global.Longitude, 1e-12)
	}
}

func TestCSVParser_GPSDropoutIsNotInterpolated(t *testing.T) {
	res, err := parseCSV(t, csvHeader+
		"0,174.0000,-36,100,-90,0,0,\n"+
		"1,0,0,100,-90,0,0,\n"+
		"2,0,0,100,-90,0,0,\n"+
		"3,174.0003,-36,100,-90,0,0,\n")
	require.NoError(t, err)
	require.Equal(t, 4, res.Sections.Len())

	s := res.Sections.Sections
	assert.NotNil(t, s[0].Global)
	assert.Nil(t, s[1].Global)
	assert.Nil(t, s[2].Global)
	require.NotNil(t, s[3].Global)
	assert.InDelta(t, 174.0003, s[3].Global.Longitude, 1e-12)

	// Без фиктивной точки охват остается у реальных фиксаций
	bounds := res.Sections.Bounds
	assert.InDelta(t, -36, bounds.Southwest.Latitude, 1e-9)
	assert.InDelta(t, 174, bounds.Southwest.Longitude, 1e-9)
	assert.InDelta(t, 174.0003, bounds.Northeast.Longitude, 1e-9)
}

func TestInterpolateSparseGPS_DropoutEndpoints(t *testing.T) {
	rows := []csvRow{
		{at: 0, lat: 1, lon: 1},
		{at: time.Second, lat: 2, lon: 2},
		{at: 2 * time.Second, lat: 2, lon: 2},
		{at: 3 * time.Second, lat: 0, lon: 0},
		{at: 4 * time.Second, lat: 0, lon: 0},
		{at: 5 * time.Second, lat: 3, lon: 3},
	}
	assert.Equal(t, 0, interpolateSparseGPS(rows))
	assert.Equal(t, 2.0, rows[2].lat, "a fix is never pulled toward a dropout")
	assert.Equal(t, 0.0, rows[4].lat, "a dropout is never moved onto the track")
}

func TestInterpolateSparseGPS_TrailingRun(t *testing.T) {
	rows := []csvRow{
		{at: 0, lat: 1, lon: 1},
		{at: time.Second, lat: 2, lon: 2},
		{at: 2 * time.Second, lat: 2, lon: 2},
	}
	assert.Equal(t, 0, interpolateSparseGPS(rows), "no change follows the run")
	assert.Equal(t, 2.0, rows[2].lat)
}
