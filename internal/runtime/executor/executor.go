// Package executor runs a single periodic timer on the calling goroutine.
// It is the event loop of a publishing node: one timer, one callback, no
// overlapping dispatch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	errspkg "github.com/drblury/framepub/internal/runtime/errors"
	"github.com/drblury/framepub/internal/runtime/logging"
)

// State is the lifecycle phase of an Executor.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Callback is invoked once per timer deadline.
type Callback func(ctx context.Context)

// Option configures an Executor.
type Option func(*Executor)

// WithClock replaces the wall clock, mainly for tests using clock.NewMock.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(log logging.ServiceLogger) Option {
	return func(e *Executor) {
		if log != nil {
			e.logger = log
		}
	}
}

// Executor owns exactly one periodic timer and dispatches its callback
// synchronously. Stop is cooperative: it is observed between ticks and never
// interrupts a running callback.
type Executor struct {
	clock  clock.Clock
	logger logging.ServiceLogger

	mu       sync.Mutex
	state    State
	period   time.Duration
	callback Callback
	next     time.Time

	stopOnce      sync.Once
	stopCh        chan struct{}
	stopRequested atomic.Bool
	ticks         atomic.Uint64
}

// New creates an idle executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		clock:  clock.New(),
		logger: logging.NewNopServiceLogger(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddTimer registers the single periodic timer. Only one registration is
// accepted per executor.
func (e *Executor) AddTimer(period time.Duration, cb Callback) error {
	if period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %s", errspkg.ErrTimerInit, period)
	}
	if cb == nil {
		return fmt.Errorf("%w: callback is required", errspkg.ErrTimerInit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Stopped {
		return errspkg.ErrExecutorStopped
	}
	if e.callback != nil {
		return errspkg.ErrTimerAlreadyRegistered
	}
	e.period = period
	e.callback = cb
	return nil
}

// Spin runs the event loop until Stop is called or ctx is cancelled. The
// first deadline is one period after Spin starts; later deadlines advance by
// whole periods from the previous one, skipping any that already passed.
// Spin returns nil after Stop and ctx.Err() after cancellation. Either way
// the executor ends up Stopped.
func (e *Executor) Spin(ctx context.Context) error {
	period, cb, err := e.begin()
	if err != nil {
		return err
	}
	defer e.finish()

	e.logger.Debug("Executor spinning", logging.LogFields{"period": period.String()})

	for {
		if err := e.wait(ctx); err != nil {
			if err == errStopRequested {
				return nil
			}
			return err
		}
		e.dispatch(ctx, cb, period)
	}
}

// SpinOnce waits for the next deadline and dispatches the callback once. The
// executor returns to Idle afterwards unless Stop was called meanwhile.
func (e *Executor) SpinOnce(ctx context.Context) error {
	period, cb, err := e.begin()
	if err != nil {
		return err
	}

	err = e.wait(ctx)
	if err == nil {
		e.dispatch(ctx, cb, period)
	}

	e.mu.Lock()
	if e.stopRequested.Load() {
		e.state = Stopped
	} else {
		e.state = Idle
	}
	e.mu.Unlock()

	if err == errStopRequested {
		return nil
	}
	return err
}

// Stop asks the loop to exit before the next dispatch. It is safe to call
// from the callback, from another goroutine, and more than once.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		e.stopRequested.Store(true)
		close(e.stopCh)
	})

	e.mu.Lock()
	if e.state == Idle {
		e.state = Stopped
	}
	e.mu.Unlock()
}

// State reports the current lifecycle phase.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ticks reports how many callbacks have been dispatched.
func (e *Executor) Ticks() uint64 {
	return e.ticks.Load()
}

var errStopRequested = errors.New("executor: stop requested")

func (e *Executor) begin() (time.Duration, Callback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Running:
		return 0, nil, errspkg.ErrExecutorRunning
	case Stopped:
		return 0, nil, errspkg.ErrExecutorStopped
	}
	if e.callback == nil {
		return 0, nil, errspkg.ErrNoTimer
	}

	e.state = Running
	if e.next.IsZero() {
		e.next = e.clock.Now().Add(e.period)
	}
	return e.period, e.callback, nil
}

func (e *Executor) finish() {
	e.mu.Lock()
	e.state = Stopped
	e.mu.Unlock()
	e.logger.Debug("Executor stopped", logging.LogFields{"ticks": e.ticks.Load()})
}

// wait blocks until the pending deadline, a stop request or ctx cancellation.
func (e *Executor) wait(ctx context.Context) error {
	if e.stopRequested.Load() {
		return errStopRequested
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	deadline := e.next
	e.mu.Unlock()

	timer := e.clock.Timer(e.clock.Until(deadline))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return errStopRequested
	}

	// a stop that raced with the deadline still wins
	if e.stopRequested.Load() {
		return errStopRequested
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, cb Callback, period time.Duration) {
	e.ticks.Add(1)
	cb(ctx)

	now := e.clock.Now()

	e.mu.Lock()
	prev := e.next
	e.next = nextDeadline(prev, now, period)
	next := e.next
	e.mu.Unlock()

	if skipped := int64(next.Sub(prev)/period) - 1; skipped > 0 {
		e.logger.Debug("Timer overran, skipping periods", logging.LogFields{
			"skipped": skipped,
			"period":  period.String(),
		})
	}
}

// nextDeadline returns the first deadline after now on the grid
// prev + k*period (k >= 1).
func nextDeadline(prev, now time.Time, period time.Duration) time.Time {
	next := prev.Add(period)
	if next.After(now) {
		return next
	}
	missed := now.Sub(prev) / period
	return prev.Add((missed + 1) * period)
}
