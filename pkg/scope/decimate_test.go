package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimate_NoDecimation(t *testing.T) {
	src := []float64{1, 2, 3}

	result := Decimate(nil, src, 10)
	assert.Equal(t, src, result)

	dst := make([]float64, 0, 10)
	result = Decimate(dst, src, 10)
	assert.Equal(t, src, result)
	assert.Equal(t, cap(dst), cap(result), "dst is reused")
}

func TestDecimate_Reduces(t *testing.T) {
	src := make([]Point, 1000)
	for i := range src {
		src[i] = Point{X: float64(i), Y: float64(i) * 0.5}
	}

	result := Decimate(nil, src, 100)
	require.Len(t, result, 100)
	assert.Equal(t, src[0], result[0])
	assert.GreaterOrEqual(t, result[99].X, 980.0)
	for i := 1; i < len(result); i++ {
		assert.Greater(t, result[i].X, result[i-1].X)
	}
}

func TestDecimate_ReusesDestination(t *testing.T) {
	src := make([]int, 50)
	for i := range src {
		src[i] = i
	}

	dst := make([]int, 3, 20)
	result := Decimate(dst, src, 10)
	require.Len(t, result, 10)
	assert.Equal(t, 20, cap(result))
	assert.Equal(t, []int{0, 5, 10, 15, 20, 25, 30, 35, 40, 45}, result)
}

func TestDecimate_Empty(t *testing.T) {
	assert.Empty(t, Decimate[float64](nil, nil, 10))
}

func TestDecimate_UnlimitedKeepsAll(t *testing.T) {
	src := []int{1, 2, 3, 4}
	assert.Equal(t, src, Decimate(nil, src, 0))
}
