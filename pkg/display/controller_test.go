package display

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itohio/opmlog/pkg/acquire"
	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/n7745c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	mu       sync.Mutex
	traces   []acquire.Batch
	history  []Point
	lo, hi   int
	draws    int
	progress []time.Duration
	states   []acquire.State
	errs     []error
}

func (f *fakeRenderer) ShowTrace(b acquire.Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces = append(f.traces, b)
}

func (f *fakeRenderer) ShowHistory(points []Point, lo, hi int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = points
	f.lo, f.hi = lo, hi
	f.draws++
}

func (f *fakeRenderer) ShowProgress(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, d)
}

func (f *fakeRenderer) ShowState(s acquire.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}

func (f *fakeRenderer) ShowError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeRenderer) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.errs...)
}

func (f *fakeRenderer) TraceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.traces)
}

func (f *fakeRenderer) States() []acquire.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]acquire.State(nil), f.states...)
}

type fakeSink struct {
	mu      sync.Mutex
	begins  int
	ends    int
	batches []acquire.Batch
}

func (s *fakeSink) BeginRun(cfg acquire.Config, simulate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	return nil
}

func (s *fakeSink) Record(b acquire.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return nil
}

func (s *fakeSink) EndRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
	return nil
}

// faultyDevice completes immediately and fails on fetch.
type faultyDevice struct {
	*n7745c.Mock
	err error
}

func (d *faultyDevice) FetchResults(ctx context.Context) ([]float64, error) {
	return nil, d.err
}

func mockOpener(dev n7745c.Device) DeviceFunc {
	return func(ctx context.Context, simulate bool) (n7745c.Device, error) {
		return dev, nil
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(cfg)

	assert.Equal(t, 100, opts.HistorySize)
	assert.Equal(t, 10*time.Millisecond, opts.TickInterval)
	assert.Equal(t, cfg.Acquisition.PollInterval, opts.Loop.PollInterval)
	assert.Equal(t, cfg.Acquisition.CompletionTimeout, opts.Loop.CompletionTimeout)
	assert.Equal(t, cfg.Acquisition.BatchBuffer, opts.Loop.BatchBuffer)
}

func TestController_SetOptions(t *testing.T) {
	c := NewController(mockOpener(n7745c.NewMock(nil)), &fakeRenderer{}, Options{HistorySize: 100})

	c.SetOptions(Options{HistorySize: 5, Loop: acquire.Options{BatchBuffer: 7}})
	assert.Equal(t, 100, c.History().Cap())
	assert.Equal(t, 7, c.opts.Loop.BatchBuffer)
	assert.Equal(t, DefaultTickInterval, c.opts.TickInterval)

	c.SetOptions(Options{TickInterval: time.Millisecond})
	assert.Equal(t, time.Millisecond, c.opts.TickInterval)
	assert.Equal(t, 100, c.opts.HistorySize)
}

func TestController_OnTickWithoutBatch(t *testing.T) {
	r := &fakeRenderer{}
	c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{})

	assert.False(t, c.OnTick())
	assert.Equal(t, 0, c.History().Len())
	assert.Equal(t, 0, r.draws)
}

func TestController_OnBatchThenTick(t *testing.T) {
	r := &fakeRenderer{}
	sink := &fakeSink{}
	c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{}, sink)

	b := acquire.Batch{Seq: 1, Values: []float64{4, 5, 6}}
	c.OnBatch(b)
	require.Len(t, r.traces, 1)
	assert.Equal(t, b, r.traces[0])
	assert.Equal(t, []acquire.Batch{b}, sink.batches)

	assert.True(t, c.OnTick())
	assert.False(t, c.OnTick(), "the pending sample is consumed once")

	assert.Equal(t, []Point{{Index: 0, Value: 4}}, r.history)
	assert.Equal(t, 1, r.draws)
}

func TestController_EmptyBatchLeavesNothingPending(t *testing.T) {
	r := &fakeRenderer{}
	c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{})

	c.OnBatch(acquire.Batch{Seq: 1})
	assert.Len(t, r.traces, 1)
	assert.False(t, c.OnTick())
}

func TestController_HistoryKeepsLast100(t *testing.T) {
	r := &fakeRenderer{}
	c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{HistorySize: 100})

	for i := range 150 {
		c.OnBatch(acquire.Batch{Seq: uint64(i + 1), Values: []float64{float64(i)}})
		require.True(t, c.OnTick())
	}

	points := c.History().Points()
	require.Len(t, points, 100)
	for i, p := range points {
		assert.Equal(t, 50+i, p.Index)
		assert.Equal(t, float64(50+i), p.Value)
	}
	assert.Equal(t, 49, r.lo)
	assert.Equal(t, 149, r.hi)
}

func TestController_SimulatedRunKeepsLast100(t *testing.T) {
	r := &fakeRenderer{}
	c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{HistorySize: 100, TickInterval: time.Millisecond})

	// One batch every few milliseconds, well above the tick rate.
	cfg := acquire.Config{Points: 1, IntegrationTime: 1, Unit: n7745c.Microseconds, LoopDelay: 3 * time.Millisecond}
	require.NoError(t, c.Start(context.Background(), cfg, true))

	require.Eventually(t, func() bool {
		_, hi := c.History().Window()
		return hi >= 149
	}, 10*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	points := c.History().Points()
	require.Len(t, points, 100)
	assert.GreaterOrEqual(t, points[0].Index, 50)
	for i, p := range points {
		assert.Equal(t, points[0].Index+i, p.Index)
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 10.0)
	}
	assert.GreaterOrEqual(t, r.TraceCount(), 150)
}

func TestController_StopRightAfterFirstBatch(t *testing.T) {
	for range 5 {
		r := &fakeRenderer{}
		c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{})

		cfg := acquire.Config{Points: 10, IntegrationTime: 1, Unit: n7745c.Milliseconds, LoopDelay: 300 * time.Millisecond}
		require.NoError(t, c.Start(context.Background(), cfg, true))

		require.Eventually(t, func() bool { return r.TraceCount() == 1 }, 2*time.Second, time.Millisecond)
		require.NoError(t, c.Stop())

		assert.Equal(t, 1, c.History().Len())
		assert.Equal(t, 1, r.TraceCount())
	}
}

func TestController_StopBeforeFirstBatch(t *testing.T) {
	r := &fakeRenderer{}
	sink := &fakeSink{}
	c := NewController(mockOpener(n7745c.NewMock(nil)), r, Options{}, sink)

	cfg := acquire.Config{Points: 100, IntegrationTime: 10, Unit: n7745c.Milliseconds, LoopDelay: 100 * time.Millisecond}
	require.NoError(t, c.Start(context.Background(), cfg, true))
	assert.True(t, c.Running())

	require.NoError(t, c.Stop())
	assert.False(t, c.Running())
	assert.Equal(t, 0, c.History().Len())
	assert.Empty(t, r.traces)
	assert.Equal(t, []acquire.State{acquire.Running, acquire.Idle}, r.States())
	assert.Equal(t, 1, sink.begins)
	assert.Equal(t, 1, sink.ends)
}

func TestController_FirstBatchScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a full one second batch")
	}

	r := &fakeRenderer{}
	dev := n7745c.NewMock(nil)
	c := NewController(mockOpener(dev), r, Options{})

	cfg := acquire.Config{Points: 100, IntegrationTime: 10, Unit: n7745c.Milliseconds, LoopDelay: 100 * time.Millisecond}
	require.Equal(t, time.Second, cfg.BatchDuration())

	started := time.Now()
	require.NoError(t, c.Start(context.Background(), cfg, true))

	require.Eventually(t, func() bool { return c.History().Len() == 1 }, 3*time.Second, 5*time.Millisecond)
	elapsed := time.Since(started)
	require.NoError(t, c.Stop())

	assert.GreaterOrEqual(t, elapsed, 1100*time.Millisecond)
	assert.Equal(t, 1, c.History().Len())
	assert.Equal(t, 0, c.History().Points()[0].Index)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.traces, 1)
	assert.Len(t, r.traces[0].Values, 100)
	require.NotEmpty(t, r.progress)
	assert.Equal(t, time.Second, r.progress[0])
}

func TestController_StartTwice(t *testing.T) {
	c := NewController(mockOpener(n7745c.NewMock(nil)), &fakeRenderer{}, Options{})
	cfg := acquire.Config{Points: 10, IntegrationTime: 1, Unit: n7745c.Seconds, LoopDelay: time.Second}

	require.NoError(t, c.Start(context.Background(), cfg, true))
	assert.ErrorIs(t, c.Start(context.Background(), cfg, true), acquire.ErrAlreadyRunning)
	require.NoError(t, c.Stop())
	assert.NoError(t, c.Stop(), "stopping an idle controller is a no-op")
}

func TestController_InvalidConfig(t *testing.T) {
	c := NewController(mockOpener(n7745c.NewMock(nil)), &fakeRenderer{}, Options{})
	assert.Error(t, c.Start(context.Background(), acquire.Config{}, true))
	assert.False(t, c.Running())
}

func TestController_OpenError(t *testing.T) {
	boom := errors.New("no such resource")
	c := NewController(func(ctx context.Context, simulate bool) (n7745c.Device, error) {
		return nil, boom
	}, &fakeRenderer{}, Options{})

	cfg := acquire.Config{Points: 10, IntegrationTime: 1, Unit: n7745c.Milliseconds}
	assert.ErrorIs(t, c.Start(context.Background(), cfg, false), boom)
	assert.False(t, c.Running())
}

func TestController_FaultIsReported(t *testing.T) {
	boom := errors.New("link lost")
	r := &fakeRenderer{}
	sink := &fakeSink{}
	c := NewController(mockOpener(&faultyDevice{Mock: n7745c.NewMock(nil), err: boom}), r, Options{}, sink)

	cfg := acquire.Config{Points: 1, IntegrationTime: 1, Unit: n7745c.Microseconds}
	require.NoError(t, c.Start(context.Background(), cfg, true))

	require.Eventually(t, func() bool { return !c.Running() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(r.States()) == 2 }, time.Second, 5*time.Millisecond)

	errs := r.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, []acquire.State{acquire.Running, acquire.Idle}, r.States())
	assert.NoError(t, c.Stop())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 1, sink.ends)
}
