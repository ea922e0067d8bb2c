package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHistory_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultHistorySize, NewHistory(0).Cap())
	assert.Equal(t, 7, NewHistory(7).Cap())
}

func TestHistory_Append(t *testing.T) {
	h := NewHistory(5)

	p := h.Append(1.5)
	assert.Equal(t, Point{Index: 0, Value: 1.5}, p)
	p = h.Append(2.5)
	assert.Equal(t, Point{Index: 1, Value: 2.5}, p)

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, []Point{{0, 1.5}, {1, 2.5}}, h.Points())
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Append(float64(i * 10))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []Point{{2, 20}, {3, 30}, {4, 40}}, h.Points())
}

func TestHistory_CapacityIsNeverExceeded(t *testing.T) {
	h := NewHistory(DefaultHistorySize)
	for i := range 150 {
		h.Append(float64(i))
		require.LessOrEqual(t, h.Len(), DefaultHistorySize)
	}

	points := h.Points()
	require.Len(t, points, 100)
	assert.Equal(t, 50, points[0].Index)
	assert.Equal(t, 149, points[99].Index)
	for i, p := range points {
		assert.Equal(t, float64(p.Index), p.Value)
		if i > 0 {
			assert.Equal(t, points[i-1].Index+1, p.Index)
		}
	}
}

func TestHistory_Window(t *testing.T) {
	h := NewHistory(100)

	lo, hi := h.Window()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)

	h.Append(1)
	lo, hi = h.Window()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)

	for range 149 {
		h.Append(1)
	}
	lo, hi = h.Window()
	assert.Equal(t, 49, lo)
	assert.Equal(t, 149, hi)
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(4)
	for range 6 {
		h.Append(3)
	}
	h.Reset()

	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Points())
	assert.Equal(t, Point{Index: 0, Value: 9}, h.Append(9))
}
