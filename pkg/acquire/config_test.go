package acquire

import (
	"testing"
	"time"

	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/n7745c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_BatchSeconds(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want float64
	}{
		{"microseconds", Config{Points: 1000, IntegrationTime: 100, Unit: n7745c.Microseconds}, 0.1},
		{"milliseconds", Config{Points: 100, IntegrationTime: 10, Unit: n7745c.Milliseconds}, 1.0},
		{"seconds", Config{Points: 3, IntegrationTime: 2, Unit: n7745c.Seconds}, 6.0},
		{"fractional", Config{Points: 5000, IntegrationTime: 2.5, Unit: n7745c.Microseconds}, 0.0125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.cfg.BatchSeconds(), 1e-12)
		})
	}
}

func TestConfig_BatchDuration(t *testing.T) {
	cfg := Config{Points: 100, IntegrationTime: 10, Unit: n7745c.Milliseconds}
	assert.Equal(t, time.Second, cfg.BatchDuration())

	cfg = Config{Points: 1000, IntegrationTime: 100, Unit: n7745c.Microseconds}
	assert.Equal(t, 100*time.Millisecond, cfg.BatchDuration())
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Points: 100, IntegrationTime: 10, Unit: n7745c.Milliseconds, LoopDelay: 100 * time.Millisecond}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero points", func(c *Config) { c.Points = 0 }},
		{"negative points", func(c *Config) { c.Points = -5 }},
		{"zero integration", func(c *Config) { c.IntegrationTime = 0 }},
		{"negative integration", func(c *Config) { c.IntegrationTime = -1 }},
		{"unknown unit", func(c *Config) { c.Unit = "NS" }},
		{"negative delay", func(c *Config) { c.LoopDelay = -time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(" 100 ", "10", "ms", "0.1")
	require.NoError(t, err)
	assert.Equal(t, Config{
		Points:          100,
		IntegrationTime: 10,
		Unit:            n7745c.Milliseconds,
		LoopDelay:       100 * time.Millisecond,
	}, cfg)
}

func TestParseConfig_Malformed(t *testing.T) {
	tests := []struct {
		name                             string
		points, integration, unit, delay string
	}{
		{"points not a number", "abc", "10", "MS", "0.1"},
		{"fractional points", "1.5", "10", "MS", "0.1"},
		{"integration not a number", "100", "ten", "MS", "0.1"},
		{"bad unit", "100", "10", "minutes", "0.1"},
		{"delay not a number", "100", "10", "MS", "soon"},
		{"delay NaN", "100", "10", "MS", "NaN"},
		{"zero points", "0", "10", "MS", "0.1"},
		{"negative delay", "100", "10", "MS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.points, tt.integration, tt.unit, tt.delay)
			assert.Error(t, err)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.Default().Acquisition)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Points)
	assert.Equal(t, 10.0, cfg.IntegrationTime)
	assert.Equal(t, n7745c.Milliseconds, cfg.Unit)
	assert.Equal(t, 100*time.Millisecond, cfg.LoopDelay)

	_, err = FromSettings(config.AcquisitionConfig{Points: 10, IntegrationTime: 1, TimeUnit: "h"})
	assert.Error(t, err)
}

func TestConfig_Settings(t *testing.T) {
	base := config.Default().Acquisition
	cfg := Config{Points: 42, IntegrationTime: 2.5, Unit: n7745c.Microseconds, LoopDelay: 250 * time.Millisecond}

	got := cfg.Settings(base)
	assert.Equal(t, 42, got.Points)
	assert.Equal(t, 2.5, got.IntegrationTime)
	assert.Equal(t, "US", got.TimeUnit)
	assert.InDelta(t, 0.25, got.LoopDelay, 1e-12)
	assert.Equal(t, base.PollInterval, got.PollInterval)
}
