package elevation

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNone(t *testing.T) {
	var m Model = None{}
	_, ok := m.ElevationAt(1, 2, DEM)
	assert.False(t, ok)
	assert.False(t, m.HasElevationData())
}

func TestFlat(t *testing.T) {
	f := NewFlat(40)
	v, ok := f.ElevationAt(10, 10, DEM)
	require.True(t, ok)
	assert.Equal(t, 40.0, v)

	_, ok = f.ElevationAt(10, 10, DSM)
	assert.False(t, ok)

	f.DSMM = 55
	lo, hi := f.MinMaxElevation()
	assert.Equal(t, 40.0, lo)
	assert.Equal(t, 55.0, hi)
}

func TestGrid_Bilinear(t *testing.T) {
	// 3x3, высоты растут на 1 м к востоку и на 10 м к северу
	dem := []float64{
		0, 1, 2,
		10, 11, 12,
		20, 21, 22,
	}
	g, err := NewGrid(100, 200, 5, 3, 3, dem, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		n, e     float64
		expected float64
		ok       bool
	}{
		{"corner", 100, 200, 0, true},
		{"center of first cell", 102.5, 202.5, 5.5, true},
		{"north-east corner", 110, 210, 22, true},
		{"east edge", 105, 210, 12, true},
		{"outside south", 99, 205, 0, false},
		{"outside east", 105, 211, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := g.ElevationAt(tt.n, tt.e, DEM)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.expected, v, 1e-9)
			}
		})
	}

	_, ok := g.ElevationAt(102, 202, DSM)
	assert.False(t, ok, "no dsm layer")

	lo, hi := g.MinMaxElevation()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 22.0, hi)
}

func TestNewGrid_Errors(t *testing.T) {
	_, err := NewGrid(0, 0, 1, 1, 3, []float64{1, 2, 3}, nil)
	assert.Error(t, err)
	_, err = NewGrid(0, 0, 0, 2, 2, []float64{1, 2, 3, 4}, nil)
	assert.Error(t, err)
	_, err = NewGrid(0, 0, 1, 2, 2, []float64{1, 2, 3}, nil)
	assert.Error(t, err)
	_, err = NewGrid(0, 0, 1, 2, 2, []float64{1, 2, 3, 4}, []float64{1})
	assert.Error(t, err)
}

type countingModel struct {
	Flat
	calls atomic.Int64
}

func (m *countingModel) ElevationAt(n, e float64, kind Kind) (float64, bool) {
	m.calls.Add(1)
	return m.Flat.ElevationAt(n, e, kind)
}

func TestCached(t *testing.T) {
	inner := &countingModel{Flat: *NewFlat(12)}
	c := NewCached(inner, 2, time.Minute)

	v, ok := c.ElevationAt(1.01, 1.02, DEM)
	require.True(t, ok)
	assert.Equal(t, 12.0, v)

	// Квантование до 0.1 м
	_, _ = c.ElevationAt(1.03, 1.04, DEM)
	assert.Equal(t, int64(1), inner.calls.Load())

	_, ok = c.ElevationAt(1.01, 1.02, DSM)
	assert.False(t, ok)
	_, _ = c.ElevationAt(1.01, 1.02, DSM)
	assert.Equal(t, int64(2), inner.calls.Load(), "misses are cached")

	// Вытеснение самой старой записи
	_, _ = c.ElevationAt(50, 50, DEM)
	assert.Equal(t, 2, c.Size())
	_, _ = c.ElevationAt(1.01, 1.02, DEM)
	assert.Equal(t, int64(4), inner.calls.Load())

	hits, misses, rate := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(4), misses)
	assert.InDelta(t, 1.0/3, rate, 1e-9)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.True(t, c.HasElevationData())
}

func TestCached_TTL(t *testing.T) {
	inner := &countingModel{Flat: *NewFlat(1)}
	c := NewCached(inner, 10, time.Nanosecond)

	_, _ = c.ElevationAt(0, 0, DEM)
	time.Sleep(time.Millisecond)
	_, _ = c.ElevationAt(0, 0, DEM)
	assert.Equal(t, int64(2), inner.calls.Load())
}
