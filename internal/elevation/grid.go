package elevation

import (
	"fmt"
	"math"
)

// Grid is a regular raster in flight-local meters. Row 0 is the southern edge,
// column 0 the western edge. NaN cells hold no data.
type Grid struct {
	OriginNorthingM float64
	OriginEastingM  float64
	CellSizeM       float64
	Rows, Cols      int

	dem []float64
	dsm []float64
	min float64
	max float64
}

// NewGrid builds a grid from row-major samples; dsm may be nil
func NewGrid(originNorthingM, originEastingM, cellSizeM float64, rows, cols int, dem, dsm []float64) (*Grid, error) {
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("grid needs at least 2x2 cells, got %dx%d", rows, cols)
	}
	if cellSizeM <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSizeM)
	}
	if len(dem) != rows*cols {
		return nil, fmt.Errorf("dem has %d samples, want %d", len(dem), rows*cols)
	}
	if dsm != nil && len(dsm) != rows*cols {
		return nil, fmt.Errorf("dsm has %d samples, want %d", len(dsm), rows*cols)
	}

	g := &Grid{
		OriginNorthingM: originNorthingM,
		OriginEastingM:  originEastingM,
		CellSizeM:       cellSizeM,
		Rows:            rows,
		Cols:            cols,
		dem:             dem,
		dsm:             dsm,
		min:             math.Inf(1),
		max:             math.Inf(-1),
	}
	for _, layer := range [][]float64{dem, dsm} {
		for _, v := range layer {
			if !math.IsNaN(v) {
				g.min = math.Min(g.min, v)
				g.max = math.Max(g.max, v)
			}
		}
	}
	return g, nil
}

// ElevationAt bilinearly interpolates the four surrounding samples
func (g *Grid) ElevationAt(northingM, eastingM float64, kind Kind) (float64, bool) {
	layer := g.dem
	if kind == DSM {
		layer = g.dsm
	}
	if layer == nil {
		return 0, false
	}

	r := (northingM - g.OriginNorthingM) / g.CellSizeM
	c := (eastingM - g.OriginEastingM) / g.CellSizeM
	if r < 0 || c < 0 || r > float64(g.Rows-1) || c > float64(g.Cols-1) {
		return 0, false
	}

	r0, c0 := int(r), int(c)
	if r0 == g.Rows-1 {
		r0--
	}
	if c0 == g.Cols-1 {
		c0--
	}
	fr, fc := r-float64(r0), c-float64(c0)

	v00 := layer[r0*g.Cols+c0]
	v01 := layer[r0*g.Cols+c0+1]
	v10 := layer[(r0+1)*g.Cols+c0]
	v11 := layer[(r0+1)*g.Cols+c0+1]
	if math.IsNaN(v00) || math.IsNaN(v01) || math.IsNaN(v10) || math.IsNaN(v11) {
		return 0, false
	}

	south := v00*(1-fc) + v01*fc
	north := v10*(1-fc) + v11*fc
	return south*(1-fr) + north*fr, true
}

func (g *Grid) HasElevationData() bool {
	return !math.IsInf(g.min, 1)
}

func (g *Grid) MinMaxElevation() (float64, float64) {
	if !g.HasElevationData() {
		return 0, 0
	}
	return g.min, g.max
}
