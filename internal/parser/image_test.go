package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetadata map[string]*ImageMetadata

func (f fakeMetadata) Read(path string) (*ImageMetadata, error) {
	if m, ok := f[filepath.Base(path)]; ok {
		return m, nil
	}
	return nil, errors.New("no metadata")
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0xff, 0xd8}, 0o600))
	}
}

func TestImageParser_OrdersByCaptureTime(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DJI_0003.JPG", "DJI_0001.JPG", "DJI_0002.jpg", "broken.jpg", "notes.txt")

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	heat := 7000
	meta := fakeMetadata{
		"DJI_0001.JPG": {CaptureTime: base.Add(2 * time.Second), Latitude: models.Float(-36.001), Longitude: models.Float(174.0), AltitudeM: models.Float(80), YawDeg: models.Float(270), GimbalAngles: true},
		"DJI_0002.jpg": {CaptureTime: base, Latitude: models.Float(-36.0), Longitude: models.Float(174.0), AltitudeM: models.Float(80), MinRawHeat: &heat},
		"DJI_0003.JPG": {CaptureTime: base.Add(4 * time.Second), Latitude: models.Float(-36.002), Longitude: models.Float(174.0)},
	}

	p := NewImageParser(utils.NewNopLogger(), meta)
	in := Input{Path: dir}
	require.True(t, p.CanParse(in))

	res, err := p.Parse(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, res.FromImages)
	assert.True(t, res.Sections.FromImages)
	assert.Equal(t, models.GimbalAutoYes, res.GimbalData)
	assert.Equal(t, 1, res.Skipped)
	require.Equal(t, 3, res.Sections.Len())

	names := []string{}
	for _, s := range res.Sections.Sections {
		names = append(names, s.ImageFileName)
	}
	assert.Equal(t, []string{"DJI_0002.jpg", "DJI_0001.JPG", "DJI_0003.JPG"}, names)
	assert.Equal(t, 2000, res.Sections.Sections[1].TimeMs)
	assert.InDelta(t, -90.0, *res.Sections.Sections[1].YawDeg, 1e-9)
	require.NotNil(t, res.Sections.Sections[0].MinRawHeat)
	assert.Equal(t, 7000, *res.Sections.Sections[0].MinRawHeat)
}

func TestImageParser_ParallelReadsKeepCaptureOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	meta := fakeMetadata{}
	for i := range 40 {
		// Имена идут в обратном порядке относительно времени съемки
		name := fmt.Sprintf("IMG_%03d.jpg", 40-i)
		touch(t, dir, name)
		meta[name] = &ImageMetadata{CaptureTime: base.Add(time.Duration(i) * time.Second), Latitude: models.Float(-36 - float64(i)*1e-4), Longitude: models.Float(174.0)}
	}
	touch(t, dir, "broken.jpg")

	res, err := NewImageParser(utils.NewNopLogger(), meta).WithWorkers(4).Parse(context.Background(), Input{ImageDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Equal(t, 40, res.Sections.Len())
	for i, s := range res.Sections.Sections {
		assert.Equal(t, fmt.Sprintf("IMG_%03d.jpg", 40-i), s.ImageFileName)
		assert.Equal(t, time.Duration(i)*time.Second, s.StartTime)
	}
}

func TestImageParser_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DJI_0001.JPG")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImageParser(utils.NewNopLogger(), fakeMetadata{}).Parse(ctx, Input{ImageDir: dir})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImageParser_NoImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "readme.txt")
	_, err := NewImageParser(utils.NewNopLogger(), fakeMetadata{}).Parse(context.Background(), Input{ImageDir: dir})
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestImageParser_CanParse(t *testing.T) {
	p := NewImageParser(utils.NewNopLogger(), nil)
	assert.False(t, p.CanParse(Input{Path: "flight.csv"}))
	assert.True(t, p.CanParse(Input{Path: "flight.csv", ImageDir: "shots"}))
}

func TestExifReader_NotAnImage(t *testing.T) {
	path := writeFile(t, "fake.jpg", "definitely not a jpeg")
	_, err := ExifReader{}.Read(path)
	assert.Error(t, err)
}

func TestApplyXMP(t *testing.T) {
	xmp := []byte(`<rdf:Description drone-dji:AbsoluteAltitude="+120.50" drone-dji:RelativeAltitude="+50.10"
 drone-dji:GimbalRollDegree="+0.00" drone-dji:GimbalYawDegree="-88.40" drone-dji:GimbalPitchDegree="-90.00"
 drone-dji:FlightYawDegree="-87.00" drone-dji:FlightPitchDegree="+2.10"/>`)

	meta := &ImageMetadata{AltitudeM: models.Float(19)}
	applyXMP(meta, xmp)

	assert.True(t, meta.GimbalAngles)
	assert.InDelta(t, 120.5, *meta.AltitudeM, 1e-9)
	assert.InDelta(t, -88.4, *meta.YawDeg, 1e-9)
	assert.InDelta(t, -90.0, *meta.PitchDeg, 1e-9)
	assert.InDelta(t, 0.0, *meta.RollDeg, 1e-9)

	airframe := &ImageMetadata{}
	applyXMP(airframe, []byte(`drone-dji:FlightYawDegree="15.5" drone-dji:FlightPitchDegree="-3"`))
	assert.False(t, airframe.GimbalAngles)
	assert.InDelta(t, 15.5, *airframe.YawDeg, 1e-9)
	assert.InDelta(t, -3.0, *airframe.PitchDeg, 1e-9)
	assert.Nil(t, airframe.RollDeg)
}
