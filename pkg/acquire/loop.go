package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/opmlog/pkg/n7745c"
)

const (
	// DefaultPollInterval is the pause between two *OPC? polls.
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultBatchBuffer is the number of batches queued towards the consumer.
	DefaultBatchBuffer = 4
	// stopTimeout bounds the logging stop command sent on exit.
	stopTimeout = 5 * time.Second
)

var (
	// ErrAlreadyRunning is returned when starting a loop or controller twice.
	ErrAlreadyRunning = errors.New("acquisition already running")
	// ErrCompletionTimeout is returned when the instrument does not report
	// completion within Options.CompletionTimeout.
	ErrCompletionTimeout = errors.New("instrument did not complete in time")
)

// Options tunes the loop pacing.
type Options struct {
	PollInterval      time.Duration // Pause between completion polls
	CompletionTimeout time.Duration // 0 waits forever
	BatchBuffer       int           // Capacity of the Batches channel
}

// Loop polls the instrument in a background goroutine and publishes batches.
// A Loop runs once; create a new one for every run.
type Loop struct {
	dev  n7745c.Device
	cfg  Config
	opts Options

	state    atomic.Int32
	batches  chan Batch
	progress chan time.Duration
	done     chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error
	seq    uint64
}

// New creates a loop for dev. The configuration is validated here.
func New(dev n7745c.Device, cfg Config, opts Options) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BatchBuffer <= 0 {
		opts.BatchBuffer = DefaultBatchBuffer
	}

	return &Loop{
		dev:      dev,
		cfg:      cfg,
		opts:     opts,
		batches:  make(chan Batch, opts.BatchBuffer),
		progress: make(chan time.Duration, 1),
		done:     make(chan struct{}),
	}, nil
}

// Config returns the configuration of the run.
func (l *Loop) Config() Config {
	return l.cfg
}

// Start launches the acquisition goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	l.state.Store(int32(Running))
	go l.run(ctx)

	return nil
}

// Stop signals the loop to finish, waits until it has exited and returns the
// fault that ended the run, if any.
func (l *Loop) Stop() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}

	l.state.Store(int32(Idle))
	cancel()
	<-l.done
	return l.Err()
}

// State returns the current run state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Batches delivers fetched batches. It is closed when the loop exits.
// When the consumer falls behind, the oldest queued batch is dropped.
func (l *Loop) Batches() <-chan Batch {
	return l.batches
}

// Progress receives the batch duration every time the loop is about to
// fetch a batch. It is closed when the loop exits.
func (l *Loop) Progress() <-chan time.Duration {
	return l.progress
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the fault that ended the run.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) running() bool {
	return l.State() == Running
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		l.state.Store(int32(Idle))
		close(l.batches)
		close(l.progress)
	}()

	if err := l.dev.StartLogging(ctx); err != nil {
		l.fail(ctx, err)
		return
	}
	defer l.stopLogging()

	batchDuration := l.cfg.BatchDuration()
	log.Printf("acquisition started: %d points, %g %s, batch %s, delay %s",
		l.cfg.Points, l.cfg.IntegrationTime, l.cfg.Unit, batchDuration, l.cfg.LoopDelay)

	for l.running() {
		if err := sleep(ctx, l.cfg.LoopDelay); err != nil {
			return
		}

		if err := l.waitComplete(ctx); err != nil {
			l.fail(ctx, err)
			return
		}

		if err := sleep(ctx, batchDuration); err != nil {
			return
		}
		if !l.running() {
			return
		}

		publishLatest(l.progress, batchDuration)

		values, err := l.dev.FetchResults(ctx)
		if err != nil {
			l.fail(ctx, err)
			return
		}

		l.mu.Lock()
		l.seq++
		seq := l.seq
		l.mu.Unlock()

		if dropped, ok := publishLatest(l.batches, Batch{Seq: seq, Time: time.Now(), Values: values}); ok {
			log.Printf("consumer is behind, dropped batch %d", dropped.Seq)
		}
	}
}

// waitComplete polls the completion flag until it is set, the run is
// stopped or the completion timeout expires.
func (l *Loop) waitComplete(ctx context.Context) error {
	var deadline <-chan time.Time
	if l.opts.CompletionTimeout > 0 {
		t := time.NewTimer(l.opts.CompletionTimeout)
		defer t.Stop()
		deadline = t.C
	}

	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrCompletionTimeout, l.opts.CompletionTimeout)
		case <-poll.C:
		}

		done, err := l.dev.OperationComplete(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		poll.Reset(l.opts.PollInterval)
	}
}

func (l *Loop) stopLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := l.dev.StopLogging(ctx); err != nil {
		log.Printf("failed to stop instrument logging: %v", err)
	}
	log.Printf("acquisition stopped after %d batches", l.batchCount())
}

func (l *Loop) batchCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// fail records err unless it is only the consequence of Stop.
func (l *Loop) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	log.Printf("acquisition fault: %v", err)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// publishLatest sends v on ch, discarding the oldest queued value when ch is
// full. The loop is the only sender, so a slot frees up after one discard.
func publishLatest[T any](ch chan T, v T) (dropped T, ok bool) {
	for {
		select {
		case ch <- v:
			return dropped, ok
		default:
		}
		select {
		case dropped = <-ch:
			ok = true
		default:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
