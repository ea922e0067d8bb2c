package display

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/opmlog/pkg/acquire"
	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/n7745c"
)

// DefaultTickInterval is the scroll plot refresh period.
const DefaultTickInterval = 10 * time.Millisecond

// Renderer draws the controller output. Implementations are called from
// background goroutines and must hop to their UI thread themselves.
type Renderer interface {
	ShowTrace(b acquire.Batch)
	ShowHistory(points []Point, lo, hi int)
	ShowProgress(d time.Duration)
	ShowState(s acquire.State)
	ShowError(err error)
}

// Sink receives every batch of a run, e.g. a recorder or a live feed.
type Sink interface {
	BeginRun(cfg acquire.Config, simulate bool) error
	Record(b acquire.Batch) error
	EndRun() error
}

// DeviceFunc returns the instrument for a run. simulate selects the
// simulated instrument.
type DeviceFunc func(ctx context.Context, simulate bool) (n7745c.Device, error)

// Options configures a Controller. HistorySize is fixed at NewController;
// the rest can be replaced between runs with SetOptions.
type Options struct {
	HistorySize  int
	TickInterval time.Duration
	Loop         acquire.Options
}

// OptionsFromConfig collects the controller options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HistorySize:  cfg.Display.HistorySize,
		TickInterval: cfg.Display.TickInterval,
		Loop: acquire.Options{
			PollInterval:      cfg.Acquisition.PollInterval,
			CompletionTimeout: cfg.Acquisition.CompletionTimeout,
			BatchBuffer:       cfg.Acquisition.BatchBuffer,
		},
	}
}

// Controller runs one acquisition loop at a time and feeds the trace and
// scroll plots from it.
type Controller struct {
	open    DeviceFunc
	r       Renderer
	opts    Options
	sinks   []Sink
	history *History

	mu  sync.Mutex
	run *run

	pendMu     sync.Mutex
	pending    float64
	hasPending bool
}

type run struct {
	loop     *acquire.Loop
	stopTick chan struct{}
	wg       sync.WaitGroup
}

// NewController creates a controller. Sinks are optional.
func NewController(open DeviceFunc, r Renderer, opts Options, sinks ...Sink) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	return &Controller{
		open:    open,
		r:       r,
		opts:    opts,
		sinks:   sinks,
		history: NewHistory(opts.HistorySize),
	}
}

// SetOptions replaces the tick interval and loop options used by the next
// Start. HistorySize is ignored.
func (c *Controller) SetOptions(opts Options) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	opts.HistorySize = c.opts.HistorySize
	c.opts = opts
}

// History returns the scroll history.
func (c *Controller) History() *History {
	return c.history
}

// Running reports whether a run is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// Start configures the instrument and starts a new run.
func (c *Controller) Start(ctx context.Context, cfg acquire.Config, simulate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return acquire.ErrAlreadyRunning
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dev, err := c.open(ctx, simulate)
	if err != nil {
		return fmt.Errorf("failed to open instrument: %w", err)
	}
	if err := dev.ConfigureLogging(ctx, cfg.Points, cfg.IntegrationTime, cfg.Unit); err != nil {
		return err
	}

	loop, err := acquire.New(dev, cfg, c.opts.Loop)
	if err != nil {
		return err
	}

	c.history.Reset()
	c.takePending()
	for _, s := range c.sinks {
		if err := s.BeginRun(cfg, simulate); err != nil {
			log.Printf("failed to begin run on sink: %v", err)
		}
	}

	if err := loop.Start(ctx); err != nil {
		c.endSinks()
		return err
	}

	r := &run{loop: loop, stopTick: make(chan struct{})}
	c.run = r
	r.wg.Add(2)
	go c.pump(r)
	go c.tick(r, c.opts.TickInterval)

	c.r.ShowState(acquire.Running)
	return nil
}

// Stop ends the active run and blocks until its goroutines have exited.
// The sample of the last batch is flushed to the history before returning.
// It returns the fault that ended the run, if any.
func (c *Controller) Stop() error {
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()

	if r == nil {
		return nil
	}

	err := r.loop.Stop()
	close(r.stopTick)
	r.wg.Wait()
	c.OnTick()

	c.endSinks()
	c.r.ShowState(acquire.Idle)
	return err
}

// OnBatch shows the batch as the trace, keeps its first sample for the
// next tick and forwards it to the sinks.
func (c *Controller) OnBatch(b acquire.Batch) {
	c.r.ShowTrace(b)

	if v, ok := b.First(); ok {
		c.pendMu.Lock()
		c.pending = v
		c.hasPending = true
		c.pendMu.Unlock()
	}

	for _, s := range c.sinks {
		if err := s.Record(b); err != nil {
			log.Printf("failed to record batch %d: %v", b.Seq, err)
		}
	}
}

// OnTick appends the pending sample to the history and redraws the scroll
// plot. It reports whether anything was drawn.
func (c *Controller) OnTick() bool {
	v, ok := c.takePending()
	if !ok {
		return false
	}

	c.history.Append(v)
	lo, hi := c.history.Window()
	c.r.ShowHistory(c.history.Points(), lo, hi)
	return true
}

func (c *Controller) takePending() (float64, bool) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()

	v, ok := c.pending, c.hasPending
	c.pending, c.hasPending = 0, false
	return v, ok
}

func (c *Controller) pump(r *run) {
	defer r.wg.Done()

	batches, progress := r.loop.Batches(), r.loop.Progress()
	for batches != nil || progress != nil {
		select {
		case b, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			c.OnBatch(b)
		case d, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			c.r.ShowProgress(d)
		}
	}

	// The loop ended on its own; Stop was not called.
	c.mu.Lock()
	own := c.run == r
	if own {
		c.run = nil
	}
	c.mu.Unlock()
	if !own {
		return
	}

	close(r.stopTick)
	c.OnTick()
	c.endSinks()
	if err := r.loop.Err(); err != nil {
		c.r.ShowError(err)
	}
	c.r.ShowState(acquire.Idle)
}

func (c *Controller) tick(r *run, interval time.Duration) {
	defer r.wg.Done()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-r.stopTick:
			return
		case <-t.C:
			c.OnTick()
		}
	}
}

func (c *Controller) endSinks() {
	for _, s := range c.sinks {
		if err := s.EndRun(); err != nil {
			log.Printf("failed to end run on sink: %v", err)
		}
	}
}
