package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
)

// Генератор синтетического полета "змейкой" для ручной проверки API

// FlightPlan параметры облета
type FlightPlan struct {
	StartLat   float64
	StartLon   float64
	AltitudeM  float64
	SpeedMps   float64
	LegLengthM float64
	LegSpacing float64
	Legs       int
	RateHz     float64
	NoiseM     float64
	Seed       int64
}

// sample одна точка телеметрии
type sample struct {
	at       time.Duration
	lat, lon float64
	altM     float64
	yawDeg   float64
	pitchDeg float64
}

const metersPerDegLat = 111_320.0

func main() {
	var (
		out     = flag.String("out", "synthetic-flight.csv", "output file (.csv or .gpx)")
		lat     = flag.Float64("lat", 46.5, "start latitude")
		lon     = flag.Float64("lon", 7.9, "start longitude")
		alt     = flag.Float64("alt", 600, "altitude AMSL, m")
		speed   = flag.Float64("speed", 8, "ground speed, m/s")
		legLen  = flag.Float64("leg-length", 300, "survey leg length, m")
		spacing = flag.Float64("leg-spacing", 40, "distance between legs, m")
		legs    = flag.Int("legs", 6, "number of survey legs")
		rate    = flag.Float64("rate", 4, "samples per second")
		noise   = flag.Float64("noise", 0.3, "position noise, m")
		seed    = flag.Int64("seed", 1, "random seed")
	)
	flag.Parse()

	plan := FlightPlan{
		StartLat: *lat, StartLon: *lon, AltitudeM: *alt, SpeedMps: *speed,
		LegLengthM: *legLen, LegSpacing: *spacing, Legs: *legs, RateHz: *rate,
		NoiseM: *noise, Seed: *seed,
	}
	if plan.SpeedMps <= 0 || plan.RateHz <= 0 || plan.Legs <= 0 {
		log.Fatal("speed, rate and legs must be positive")
	}

	samples := plan.generate()

	var err error
	switch ext := strings.ToLower(filepath.Ext(*out)); ext {
	case ".gpx":
		err = writeGPX(*out, samples)
	case ".csv":
		err = writeCSV(*out, samples)
	default:
		err = fmt.Errorf("unsupported output extension %q", ext)
	}
	if err != nil {
		log.Fatalf("Failed to write flight: %v", err)
	}
	log.Printf("Wrote %d samples (%d legs) to %s", len(samples), plan.Legs, *out)
}

// generate облет: ноги на север и юг, соединенные разворотами на восток
func (p FlightPlan) generate() []sample {
	rng := rand.New(rand.NewSource(p.Seed))
	metersPerDegLon := metersPerDegLat * math.Cos(p.StartLat*math.Pi/180)
	step := p.SpeedMps / p.RateHz
	dt := time.Duration(float64(time.Second) / p.RateHz)

	var (
		out  []sample
		at   time.Duration
		n, e float64
	)
	emit := func(yaw float64) {
		out = append(out, sample{
			at:       at,
			lat:      p.StartLat + (n+rng.NormFloat64()*p.NoiseM)/metersPerDegLat,
			lon:      p.StartLon + (e+rng.NormFloat64()*p.NoiseM)/metersPerDegLon,
			altM:     p.AltitudeM + rng.NormFloat64()*0.2,
			yawDeg:   yaw,
			pitchDeg: -90,
		})
		at += dt
	}

	for leg := 0; leg < p.Legs; leg++ {
		dir, yaw := 1.0, 0.0
		if leg%2 == 1 {
			dir, yaw = -1, 180
		}
		for d := 0.0; d < p.LegLengthM; d += step {
			emit(yaw)
			n += dir * step
		}
		if leg == p.Legs-1 {
			break
		}
		for d := 0.0; d < p.LegSpacing; d += step {
			emit(90)
			e += step
		}
	}
	return out
}

func writeCSV(path string, samples []sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "longitude", "latitude", "altitude_amsl", "gimbal:pitch", "gimbal:roll", "gimbal:heading"}); err != nil {
		return err
	}
	format := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	for _, s := range samples {
		if err := w.Write([]string{
			format(s.at.Seconds(), 3),
			format(s.lon, 7),
			format(s.lat, 7),
			format(s.altM, 2),
			format(s.pitchDeg, 1),
			"0",
			format(s.yawDeg, 1),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeGPX(path string, samples []sample) error {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	points := make([]gpx.GPXPoint, 0, len(samples))
	for _, s := range samples {
		points = append(points, gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  s.lat,
				Longitude: s.lon,
				Elevation: *gpx.NewNullableFloat64(s.altM),
			},
			Timestamp: start.Add(s.at),
		})
	}
	g := &gpx.GPX{
		Version: "1.1",
		Creator: "flightpath synthetic-flight",
		Tracks: []gpx.GPXTrack{{
			Name:     "synthetic survey",
			Segments: []gpx.GPXTrackSegment{{Points: points}},
		}},
	}
	data, err := g.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
