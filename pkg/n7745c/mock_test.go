package n7745c

import (
	"context"
	"testing"

	"github.com/itohio/opmlog/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMock_NilConfig(t *testing.T) {
	dev := NewMock(nil)
	assert.NotNil(t, dev)
	assert.NotNil(t, dev.cfg)
	assert.Equal(t, 10, dev.cfg.MaxValue)
}

func TestNewMock_CopiesConfig(t *testing.T) {
	cfg := &config.MockConfig{MaxValue: 3}
	dev := NewMock(cfg)
	cfg.MaxValue = 1000

	assert.Equal(t, 3, dev.cfg.MaxValue)
}

func TestNewMock_NegativeMaxValue(t *testing.T) {
	dev := NewMock(&config.MockConfig{MaxValue: -5})
	ctx := context.Background()
	require.NoError(t, dev.ConfigureLogging(ctx, 20, 1, Milliseconds))

	var values []float64
	require.NotPanics(t, func() {
		var err error
		values, err = dev.FetchResults(ctx)
		require.NoError(t, err)
	})
	require.Len(t, values, 20)
	for _, v := range values {
		assert.Equal(t, 0.0, v)
	}
}

func TestMock_FetchResults(t *testing.T) {
	dev := NewMock(&config.MockConfig{MaxValue: 10})
	ctx := context.Background()

	require.NoError(t, dev.ConfigureLogging(ctx, 250, 10, Milliseconds))

	for range 20 {
		values, err := dev.FetchResults(ctx)
		require.NoError(t, err)
		require.Len(t, values, 250)
		for _, v := range values {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 10.0)
			assert.Equal(t, float64(int(v)), v, "simulated values are integers")
		}
	}
}

func TestMock_OperationCompleteIsImmediate(t *testing.T) {
	dev := NewMock(nil)
	done, err := dev.OperationComplete(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMock_LoggingState(t *testing.T) {
	dev := NewMock(nil)
	ctx := context.Background()

	assert.False(t, dev.Logging())
	require.NoError(t, dev.StartLogging(ctx))
	assert.True(t, dev.Logging())
	require.NoError(t, dev.StopLogging(ctx))
	assert.False(t, dev.Logging())
}

func TestMock_InvalidPoints(t *testing.T) {
	dev := NewMock(nil)
	assert.Error(t, dev.ConfigureLogging(context.Background(), 0, 1, Seconds))
}

func TestMock_Closed(t *testing.T) {
	dev := NewMock(nil)
	require.NoError(t, dev.ConfigureLogging(context.Background(), 5, 1, Seconds))
	require.NoError(t, dev.Close())

	_, err := dev.FetchResults(context.Background())
	assert.Error(t, err)
}
