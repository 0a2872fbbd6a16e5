package parser

import (
	"context"
	"math"
	"testing"

	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>survey</name><trkseg>
    <trkpt lat="-36.0000" lon="174.0000"><ele>120.0</ele><time>2024-05-01T10:00:00Z</time></trkpt>
    <trkpt lat="-36.0000" lon="174.0010"><ele>121.0</ele><time>2024-05-01T10:00:01Z</time></trkpt>
    <trkpt lat="-36.0010" lon="174.0010"><time>2024-05-01T10:00:02Z</time></trkpt>
    <trkpt lat="-36.0020" lon="174.0010"></trkpt>
  </trkseg></trk>
</gpx>`

func TestGPXParser(t *testing.T) {
	path := writeFile(t, "track.gpx", sampleGPX)
	p := NewGPXParser(utils.NewNopLogger())
	require.True(t, p.CanParse(Input{Path: path}))

	res, err := p.Parse(context.Background(), Input{Path: path})
	require.NoError(t, err)

	assert.Equal(t, models.GimbalManualNo, res.GimbalData)
	assert.Equal(t, 1, res.Skipped)
	require.Equal(t, 3, res.Sections.Len())

	s := res.Sections.Sections
	assert.InDelta(t, 120.0, *s[0].AltitudeM, 1e-9)
	assert.Nil(t, s[2].AltitudeM)
	assert.Equal(t, 1000, s[1].TimeMs)

	// Курс по направлению движения: восток, затем юг
	assert.InDelta(t, 90.0, *s[0].YawDeg, 0.5)
	assert.InDelta(t, 180.0, math.Abs(*s[1].YawDeg), 0.5)
	assert.Equal(t, *s[1].YawDeg, *s[2].YawDeg)
}

func TestGPXParser_Invalid(t *testing.T) {
	path := writeFile(t, "bad.gpx", "<gpx><trk>")
	_, err := NewGPXParser(utils.NewNopLogger()).Parse(context.Background(), Input{Path: path})
	assert.Error(t, err)
}
