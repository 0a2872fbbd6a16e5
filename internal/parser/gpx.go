package parser

import (
	"context"
	"fmt"

	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/pkg/utils"
	"github.com/tkrajina/gpxgo/gpx"
)

// GPXParser разбирает GPX трек. В GPX нет ориентации камеры, поэтому курс
// вычисляется по направлению на следующую точку.
type GPXParser struct {
	logger *utils.Logger
}

// NewGPXParser создает GPX парсер
func NewGPXParser(logger *utils.Logger) *GPXParser {
	return &GPXParser{logger: logger}
}

func (p *GPXParser) Name() string { return "gpx" }

func (p *GPXParser) CanParse(in Input) bool {
	return in.ext() == ".gpx"
}

func (p *GPXParser) Parse(ctx context.Context, in Input) (*Result, error) {
	file, err := gpx.ParseFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpx: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		sections []*models.FlightSection
		skipped  int
	)
	var first *gpx.GPXPoint
	for ti := range file.Tracks {
		for si := range file.Tracks[ti].Segments {
			for pi := range file.Tracks[ti].Segments[si].Points {
				pt := &file.Tracks[ti].Segments[si].Points[pi]
				global := globalOf(pt.Latitude, pt.Longitude)
				if pt.Timestamp.IsZero() || global == nil {
					skipped++
					p.logger.
						WithField("parser", p.Name()).
						WithField("track", ti).
						WithField("point", pi).
						Debug("Skipping gpx point without time or position")
					continue
				}
				if first == nil {
					first = pt
				}
				section := &models.FlightSection{Global: global}
				section.ID = -1
				section.StartTime = pt.Timestamp.Sub(first.Timestamp)
				if pt.Elevation.NotNull() {
					section.AltitudeM = models.Float(pt.Elevation.Value())
				}
				sections = append(sections, section)
			}
		}
	}
	if len(sections) == 0 {
		return nil, ErrNoRecords
	}

	for i := 0; i+1 < len(sections); i++ {
		a, b := sections[i].Global, sections[i+1].Global
		if a.DistanceTo(*b) > 0.5 {
			sections[i].YawDeg = yawOf(models.Float(a.BearingTo(*b)))
		}
	}
	if n := len(sections); n > 1 && sections[n-2].YawDeg != nil {
		yaw := *sections[n-2].YawDeg
		sections[n-1].YawDeg = &yaw
	}

	return assemble(p.Name(), sections, skipped, false, models.GimbalManualNo)
}
