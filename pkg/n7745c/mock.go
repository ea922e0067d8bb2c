package n7745c

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/itohio/opmlog/pkg/config"
)

// Mock simulates an N7745C for development without hardware.
// It performs no I/O: completion is immediate and results are random
// integers in [0, MaxValue].
type Mock struct {
	cfg config.MockConfig

	mu      sync.RWMutex
	points  int
	logging bool
	closed  bool
}

// NewMock creates a new simulated instrument from a copy of cfg.
// A negative MaxValue is clamped to zero.
func NewMock(cfg *config.MockConfig) *Mock {
	m := &Mock{cfg: config.MockConfig{MaxValue: 10}}
	if cfg != nil {
		m.cfg = *cfg
	}
	m.cfg.MaxValue = max(m.cfg.MaxValue, 0)
	return m
}

// Identify returns a fixed identification string.
func (m *Mock) Identify(ctx context.Context) (string, error) {
	return "Simulated,N7745C,0,0", nil
}

// ConfigureLogging records the point count used by FetchResults.
func (m *Mock) ConfigureLogging(ctx context.Context, points int, integration float64, unit TimeUnit) error {
	if points <= 0 {
		return fmt.Errorf("invalid point count %d", points)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = points
	return nil
}

// StartLogging is a no-op for the simulation.
func (m *Mock) StartLogging(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logging = true
	return nil
}

// StopLogging is a no-op for the simulation.
func (m *Mock) StopLogging(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logging = false
	return nil
}

// OperationComplete is always satisfied.
func (m *Mock) OperationComplete(ctx context.Context) (bool, error) {
	return true, nil
}

// FetchResults returns one random value per configured point.
func (m *Mock) FetchResults(ctx context.Context) ([]float64, error) {
	m.mu.RLock()
	points := m.points
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("simulated instrument closed")
	}

	values := make([]float64, points)
	for i := range values {
		values[i] = float64(rand.IntN(m.cfg.MaxValue + 1))
	}
	return values, nil
}

// Logging reports whether StartLogging was called more recently than StopLogging.
func (m *Mock) Logging() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logging
}

// Close marks the simulation closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
