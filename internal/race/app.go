package race

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcall12/xctimer/internal/clock"
	"github.com/mcall12/xctimer/internal/roster"
	"github.com/mcall12/xctimer/internal/session"
)

// ErrTimerNotRunning rejects split recording while the clock is stopped.
var ErrTimerNotRunning = errors.New("timer is not running")

// DefaultAutosaveQuiet is the debounce window between a mutation and the
// best-effort persistence write it triggers.
const DefaultAutosaveQuiet = 500 * time.Millisecond

// StateView is the read-only snapshot handed to gateway subscribers after
// every mutation and tick.
type StateView struct {
	Runners []roster.Runner `json:"runners"`
	Timer   clock.RaceClock `json:"timerState"`
	Display string          `json:"display"`
}

// Config wires an App. Zero-value durations fall back to defaults.
type Config struct {
	Clock         clockwork.Clock
	Store         session.Store
	TickInterval  time.Duration
	Debounce      time.Duration
	AutosaveQuiet time.Duration
	Staleness     time.Duration
	SizeCap       int
}

// App is the orchestration surface the UI layer drives. It exclusively owns
// the live clock engine and roster; every mutation is serialized through its
// mutex, persisted best-effort, and broadcast to subscribers.
type App struct {
	mu     sync.Mutex
	clk    clockwork.Clock
	engine *clock.Engine
	roster *roster.Roster
	codec  *session.Codec
	store  session.Store

	staleness time.Duration
	quiet     time.Duration
	saveTimer clockwork.Timer

	subs    map[int]chan StateView
	nextSub int
}

func NewApp(cfg Config) *App {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = session.DefaultStaleness
	}
	if cfg.AutosaveQuiet <= 0 {
		cfg.AutosaveQuiet = DefaultAutosaveQuiet
	}

	a := &App{
		clk:       clk,
		roster:    roster.New(),
		codec:     session.NewCodec(cfg.SizeCap),
		store:     cfg.Store,
		staleness: cfg.Staleness,
		quiet:     cfg.AutosaveQuiet,
		subs:      make(map[int]chan StateView),
	}

	engineOpts := []clock.Option{clock.WithOnTick(a.broadcastTick)}
	if cfg.TickInterval > 0 {
		engineOpts = append(engineOpts, clock.WithTickInterval(cfg.TickInterval))
	}
	// Debounce: zero keeps the engine default; negative disables the guard.
	if cfg.Debounce != 0 {
		d := cfg.Debounce
		if d < 0 {
			d = 0
		}
		engineOpts = append(engineOpts, clock.WithDebounce(d))
	}
	a.engine = clock.NewEngine(clk, engineOpts...)
	return a
}

// AddRunner validates and appends a runner, then persists.
func (a *App) AddRunner(name string) (roster.Runner, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	runner, err := a.roster.Add(name)
	if err != nil {
		return roster.Runner{}, err
	}
	log.Info().Str("runner_id", runner.ID).Str("name", runner.Name).Msg("runner added")
	a.stateChanged()
	return runner, nil
}

// RecordSplit records the clock's current elapsed time under key for the
// runner. The recorded value always comes from the shared clock, never from
// the caller, so splits follow the clock's own progression.
func (a *App) RecordSplit(runnerID string, key roster.SplitKey) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.engine.Snapshot().Running {
		return 0, ErrTimerNotRunning
	}
	elapsed := a.engine.Elapsed()
	if err := a.roster.RecordSplit(runnerID, key, elapsed); err != nil {
		return 0, err
	}
	log.Info().
		Str("runner_id", runnerID).
		Str("split", string(key)).
		Str("time", clock.FormatElapsed(elapsed)).
		Msg("split recorded")
	a.stateChanged()
	return elapsed, nil
}

// Start starts or resumes the race clock.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.Start(); err != nil {
		return err
	}
	a.stateChanged()
	return nil
}

// Stop freezes the race clock.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.Stop(); err != nil {
		return err
	}
	a.stateChanged()
	return nil
}

// Reset clears the clock and the roster together and erases the persisted
// slot. From the caller's perspective the teardown is atomic: no observer
// sees one cleared without the other.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancelPendingSave()
	a.engine.Reset()
	a.roster.Clear()
	session.EraseQuietly(a.store)
	log.Info().Msg("session reset")
	a.broadcastLocked(a.viewLocked())
}

// VisibilityResume refreshes the elapsed display immediately after the host
// regains foreground.
func (a *App) VisibilityResume() {
	a.engine.VisibilityResume()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broadcastLocked(a.viewLocked())
}

// Restore loads the persisted session on startup. Anything short of a
// present, recent, structurally valid snapshot collapses to a clean start
// plus an erase attempt.
func (a *App) Restore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, present, err := a.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("session load failed; starting clean")
		session.EraseQuietly(a.store)
		return false
	}
	if !present {
		log.Debug().Msg("no saved session")
		return false
	}

	snap, err := a.codec.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Msg("saved session is corrupt; discarding")
		session.EraseQuietly(a.store)
		return false
	}
	if !snap.IsRecent(a.clk.Now(), a.staleness) {
		log.Info().
			Int64("last_saved", snap.LastSaved).
			Dur("cutoff", a.staleness).
			Msg("saved session is stale; discarding")
		session.EraseQuietly(a.store)
		return false
	}

	a.roster.Replace(runnersFromRecords(snap.Runners))
	a.engine.Restore(snap.TimerState.IsRunning, snap.TimerState.ElapsedTime)
	log.Info().
		Int("runners", len(snap.Runners)).
		Bool("running", snap.TimerState.IsRunning).
		Msg("session restored")
	a.broadcastLocked(a.viewLocked())
	return true
}

// Elapsed returns the clock's authoritative current elapsed time.
func (a *App) Elapsed() int64 {
	return a.engine.Elapsed()
}

// State returns the current view for one-shot reads.
func (a *App) State() StateView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

// Subscribe registers a listener for state views. The returned cancel must
// be called when the listener goes away; slow listeners miss updates rather
// than block the core.
func (a *App) Subscribe() (<-chan StateView, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	ch := make(chan StateView, 8)
	a.subs[id] = ch

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if sub, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Flush persists immediately, bypassing the autosave quiet window. Used on
// shutdown.
func (a *App) Flush() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelPendingSave()
	return a.persistLocked()
}

// Close tears down the tick loop and any pending autosave.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelPendingSave()
	a.engine.Close()
}

// stateChanged schedules a debounced persist and notifies subscribers.
// Caller holds a.mu.
func (a *App) stateChanged() {
	a.scheduleSave()
	a.broadcastLocked(a.viewLocked())
}

// scheduleSave (re)arms the autosave timer so bursts of mutations collapse
// into one write. Caller holds a.mu.
func (a *App) scheduleSave() {
	if a.saveTimer != nil {
		a.saveTimer.Stop()
	}
	a.saveTimer = a.clk.AfterFunc(a.quiet, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.persistLocked()
	})
}

func (a *App) cancelPendingSave() {
	if a.saveTimer != nil {
		a.saveTimer.Stop()
		a.saveTimer = nil
	}
}

// persistLocked writes the session best-effort. Failures are logged and
// reported as false; the in-memory session is never rolled back. Caller
// holds a.mu.
func (a *App) persistLocked() bool {
	timer := a.engine.Snapshot()
	raw, err := a.codec.Encode(recordsFromRunners(a.roster.Runners()), session.TimerState{
		IsRunning:   timer.Running,
		ElapsedTime: timer.ElapsedMS,
		StartTime:   timer.StartEpochMS,
	}, a.clk.Now())
	if err != nil {
		log.Warn().Err(err).Msg("session not persisted")
		return false
	}
	if err := a.store.Save(raw); err != nil {
		log.Warn().Err(err).Msg("session write failed")
		return false
	}
	return true
}

func (a *App) viewLocked() StateView {
	timer := a.engine.Snapshot()
	return StateView{
		Runners: a.roster.Runners(),
		Timer:   timer,
		Display: clock.FormatElapsed(timer.ElapsedMS),
	}
}

// broadcastTick runs on the engine's tick goroutine.
func (a *App) broadcastTick(state clock.RaceClock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broadcastLocked(StateView{
		Runners: a.roster.Runners(),
		Timer:   state,
		Display: clock.FormatElapsed(state.ElapsedMS),
	})
}

// broadcastLocked fans a view out to subscribers. Caller holds a.mu.
func (a *App) broadcastLocked(view StateView) {
	for id, ch := range a.subs {
		select {
		case ch <- view:
		default:
			log.Debug().Int("subscriber", id).Msg("subscriber lagging; update dropped")
		}
	}
}

func runnersFromRecords(records []session.RunnerRecord) []roster.Runner {
	runners := make([]roster.Runner, 0, len(records))
	for _, rec := range records {
		splits := make(map[roster.SplitKey]int64, len(rec.Splits))
		for k, v := range rec.Splits {
			splits[roster.SplitKey(k)] = v
		}
		runners = append(runners, roster.Runner{ID: rec.ID, Name: rec.Name, Splits: splits})
	}
	return runners
}

func recordsFromRunners(runners []roster.Runner) []session.RunnerRecord {
	records := make([]session.RunnerRecord, 0, len(runners))
	for _, r := range runners {
		splits := make(map[string]int64, len(r.Splits))
		for k, v := range r.Splits {
			splits[string(k)] = v
		}
		records = append(records, session.RunnerRecord{ID: r.ID, Name: r.Name, Splits: splits})
	}
	return records
}
