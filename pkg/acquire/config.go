package acquire

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/n7745c"
)

// Config holds the parameters of one acquisition run. It is not modified
// once the run starts.
type Config struct {
	Points          int
	IntegrationTime float64
	Unit            n7745c.TimeUnit
	LoopDelay       time.Duration
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if c.Points <= 0 {
		return fmt.Errorf("point count must be positive, got %d", c.Points)
	}
	if c.IntegrationTime <= 0 || math.IsNaN(c.IntegrationTime) || math.IsInf(c.IntegrationTime, 0) {
		return fmt.Errorf("integration time must be positive, got %g", c.IntegrationTime)
	}
	if _, err := n7745c.ParseTimeUnit(string(c.Unit)); err != nil {
		return err
	}
	if c.LoopDelay < 0 {
		return fmt.Errorf("loop delay must not be negative, got %s", c.LoopDelay)
	}
	return nil
}

// BatchSeconds is the time the instrument needs to integrate one batch:
// Points × IntegrationTime converted to seconds.
func (c Config) BatchSeconds() float64 {
	return c.Unit.ToSeconds(float64(c.Points) * c.IntegrationTime)
}

// BatchDuration is BatchSeconds as a time.Duration.
func (c Config) BatchDuration() time.Duration {
	return time.Duration(math.Round(c.BatchSeconds() * float64(time.Second)))
}

// ParseConfig converts text input into a Config.
func ParseConfig(points, integration, unit, loopDelay string) (Config, error) {
	p, err := strconv.Atoi(strings.TrimSpace(points))
	if err != nil {
		return Config{}, fmt.Errorf("invalid point count %q: %w", points, err)
	}
	it, err := strconv.ParseFloat(strings.TrimSpace(integration), 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid integration time %q: %w", integration, err)
	}
	u, err := n7745c.ParseTimeUnit(unit)
	if err != nil {
		return Config{}, err
	}
	delay, err := strconv.ParseFloat(strings.TrimSpace(loopDelay), 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid loop delay %q: %w", loopDelay, err)
	}
	if math.IsNaN(delay) || math.IsInf(delay, 0) {
		return Config{}, fmt.Errorf("invalid loop delay %q", loopDelay)
	}

	c := Config{
		Points:          p,
		IntegrationTime: it,
		Unit:            u,
		LoopDelay:       secondsToDuration(delay),
	}
	return c, c.Validate()
}

// FromSettings builds a Config from the persisted acquisition settings.
func FromSettings(s config.AcquisitionConfig) (Config, error) {
	u, err := n7745c.ParseTimeUnit(s.TimeUnit)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		Points:          s.Points,
		IntegrationTime: s.IntegrationTime,
		Unit:            u,
		LoopDelay:       secondsToDuration(s.LoopDelay),
	}
	return c, c.Validate()
}

// Settings converts c back into persisted form.
func (c Config) Settings(into config.AcquisitionConfig) config.AcquisitionConfig {
	into.Points = c.Points
	into.IntegrationTime = c.IntegrationTime
	into.TimeUnit = string(c.Unit)
	into.LoopDelay = c.LoopDelay.Seconds()
	return into
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
