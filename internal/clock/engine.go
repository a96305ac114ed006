package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrDebounced is returned when a start/stop request lands inside the
	// guard window of the previous one (accidental double-tap).
	ErrDebounced = errors.New("start/stop ignored: too soon after previous action")

	ErrAlreadyRunning = errors.New("timer is already running")
	ErrNotRunning     = errors.New("timer is not running")

	// ErrClockSkew reports that the wall clock moved behind the start epoch.
	// The cached elapsed value is left untouched.
	ErrClockSkew = errors.New("wall clock moved backwards")
)

const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultDebounce     = 200 * time.Millisecond
)

// RaceClock is the single shared clock state. While running, ElapsedMS is a
// cache refreshed on every tick; while stopped it is authoritative.
type RaceClock struct {
	Running      bool   `json:"isRunning"`
	ElapsedMS    int64  `json:"elapsedTime"`
	StartEpochMS *int64 `json:"startTime"`
}

// Engine owns the RaceClock and the recurring tick task that refreshes it.
// All time reads go through an injected clockwork.Clock so the debounce guard
// and the tick cadence are testable without real delays.
type Engine struct {
	mu    sync.Mutex
	clk   clockwork.Clock
	state RaceClock

	debounce   time.Duration
	interval   time.Duration
	lastAction time.Time

	onTick     func(RaceClock)
	cancelTick context.CancelFunc
}

type Option func(*Engine)

// WithDebounce sets the guard window between consecutive start/stop actions.
// Zero disables the guard.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithTickInterval sets the cadence of the elapsed-time refresh loop.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithOnTick registers a callback invoked after every tick while running.
// It is called from the tick goroutine without the engine lock held.
func WithOnTick(fn func(RaceClock)) Option {
	return func(e *Engine) { e.onTick = fn }
}

func NewEngine(clk clockwork.Clock, opts ...Option) *Engine {
	e := &Engine{
		clk:      clk,
		debounce: DefaultDebounce,
		interval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start transitions Stopped -> Running, preserving any previously accumulated
// elapsed time (a resume, not a reset).
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard(); err != nil {
		return err
	}
	if e.state.Running {
		return ErrAlreadyRunning
	}

	now := e.clk.Now()
	start := now.UnixMilli() - e.state.ElapsedMS
	e.state.Running = true
	e.state.StartEpochMS = &start
	e.lastAction = now
	e.startLoop()

	log.Debug().Int64("elapsed_ms", e.state.ElapsedMS).Msg("timer started")
	return nil
}

// Stop transitions Running -> Stopped, freezing ElapsedMS at its last
// computed value.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard(); err != nil {
		return err
	}
	if !e.state.Running {
		return ErrNotRunning
	}

	now := e.clk.Now()
	if elapsed := now.UnixMilli() - *e.state.StartEpochMS; elapsed >= 0 {
		e.state.ElapsedMS = elapsed
	}
	e.state.Running = false
	e.state.StartEpochMS = nil
	e.lastAction = now
	e.stopLoop()

	log.Debug().Int64("elapsed_ms", e.state.ElapsedMS).Msg("timer stopped")
	return nil
}

// Tick refreshes the cached elapsed time while running. It never transitions
// state; a negative computed elapsed is reported as clock skew and the cache
// is left as-is.
func (e *Engine) Tick() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Running {
		return nil
	}
	elapsed := e.clk.Now().UnixMilli() - *e.state.StartEpochMS
	if elapsed < 0 {
		return fmt.Errorf("%w: computed elapsed %dms", ErrClockSkew, elapsed)
	}
	e.state.ElapsedMS = elapsed
	return nil
}

// VisibilityResume recomputes elapsed immediately, bypassing the tick
// cadence. The host calls this when the app regains foreground so a
// suspended background period doesn't show stale time.
func (e *Engine) VisibilityResume() {
	if err := e.Tick(); err != nil {
		log.Warn().Err(err).Msg("skipping elapsed refresh on visibility resume")
	}
}

// Reset unconditionally returns the clock to its initial state. It is not
// subject to the debounce guard: the caller confirms destructive resets.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLoop()
	e.state = RaceClock{}
	log.Debug().Msg("timer reset")
}

// Restore applies a persisted clock state. A snapshot saved while running
// continues counting up through the restart gap: the start epoch is rebuilt
// from the saved elapsed so the clock picks up where it left off.
func (e *Engine) Restore(running bool, elapsedMS int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLoop()
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	e.state = RaceClock{ElapsedMS: elapsedMS}
	if running {
		start := e.clk.Now().UnixMilli() - elapsedMS
		e.state.Running = true
		e.state.StartEpochMS = &start
		e.startLoop()
	}
	log.Info().Bool("running", running).Int64("elapsed_ms", elapsedMS).Msg("timer restored")
}

// Elapsed returns the authoritative current elapsed time in milliseconds.
func (e *Engine) Elapsed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Running {
		return e.state.ElapsedMS
	}
	elapsed := e.clk.Now().UnixMilli() - *e.state.StartEpochMS
	if elapsed < 0 {
		return e.state.ElapsedMS
	}
	return elapsed
}

// Snapshot returns a copy of the clock state safe to hand to other goroutines.
func (e *Engine) Snapshot() RaceClock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyState()
}

// Close cancels the tick loop. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLoop()
}

func (e *Engine) copyState() RaceClock {
	s := e.state
	if e.state.StartEpochMS != nil {
		start := *e.state.StartEpochMS
		s.StartEpochMS = &start
	}
	return s
}

// guard enforces the debounce window. Checked before the state transition so
// a double-tap is reported as a debounce rejection, not a wrong-state error.
func (e *Engine) guard() error {
	if e.debounce <= 0 || e.lastAction.IsZero() {
		return nil
	}
	if e.clk.Now().Sub(e.lastAction) < e.debounce {
		return ErrDebounced
	}
	return nil
}

// startLoop launches the recurring tick task. Caller holds e.mu.
func (e *Engine) startLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelTick = cancel
	ticker := e.clk.NewTicker(e.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if err := e.Tick(); err != nil {
					log.Warn().Err(err).Msg("tick skipped")
					continue
				}
				if e.onTick != nil {
					e.onTick(e.Snapshot())
				}
			}
		}
	}()
}

// stopLoop cancels the recurring tick task synchronously. Caller holds e.mu.
// No fire-and-forget tickers may outlive a Stopped state.
func (e *Engine) stopLoop() {
	if e.cancelTick != nil {
		e.cancelTick()
		e.cancelTick = nil
	}
}
