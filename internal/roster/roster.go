package roster

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SplitKey names one of the three fixed checkpoint recording slots.
type SplitKey string

const (
	Mile1 SplitKey = "mile1"
	Mile2 SplitKey = "mile2"
	Mile3 SplitKey = "mile3"
)

// SplitKeys lists every valid key in course order.
var SplitKeys = []SplitKey{Mile1, Mile2, Mile3}

func ValidSplitKey(k string) bool {
	switch SplitKey(k) {
	case Mile1, Mile2, Mile3:
		return true
	}
	return false
}

// Name validation errors.
var (
	ErrEmptyName         = errors.New("runner name is empty")
	ErrNameTooShort      = errors.New("runner name is too short")
	ErrNameTooLong       = errors.New("runner name is too long")
	ErrInvalidCharacters = errors.New("runner name contains invalid characters")
	ErrDuplicateName     = errors.New("runner name already in roster")
)

// Split recording errors.
var (
	ErrRunnerNotFound     = errors.New("runner not found")
	ErrUnknownSplitKey    = errors.New("unknown split key")
	ErrAlreadyRecorded    = errors.New("split already recorded for this runner")
	ErrInvalidElapsedTime = errors.New("elapsed time must be positive")
)

const (
	minNameLen = 2
	maxNameLen = 50
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9 .'-]+$`)

// Runner is one roster entry. Splits is write-once per key: a recorded value
// never changes until the whole session is reset.
type Runner struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Splits map[SplitKey]int64 `json:"splits"`
}

// Roster is the ordered runner collection. It is a plain collection with no
// locking: the orchestration layer owns it and serializes access.
type Roster struct {
	runners []*Runner
	byID    map[string]*Runner
}

func New() *Roster {
	return &Roster{byID: make(map[string]*Runner)}
}

// Add validates a name, assigns a fresh id, and appends the runner. The
// collection is untouched when validation fails.
func (r *Roster) Add(name string) (Runner, error) {
	name = strings.TrimSpace(name)
	if err := r.validateName(name); err != nil {
		return Runner{}, err
	}

	runner := &Runner{
		ID:     uuid.New().String(),
		Name:   name,
		Splits: make(map[SplitKey]int64),
	}
	r.runners = append(r.runners, runner)
	r.byID[runner.ID] = runner
	return *cloneRunner(runner), nil
}

func (r *Roster) validateName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case len(name) < minNameLen:
		return ErrNameTooShort
	case len(name) > maxNameLen:
		return ErrNameTooLong
	case !nameRe.MatchString(name):
		return ErrInvalidCharacters
	}
	for _, existing := range r.runners {
		if strings.EqualFold(existing.Name, name) {
			return ErrDuplicateName
		}
	}
	return nil
}

// RecordSplit stores elapsedMS under key for the runner. Each (runner, key)
// pair records at most once; a second attempt fails rather than overwriting.
func (r *Roster) RecordSplit(runnerID string, key SplitKey, elapsedMS int64) error {
	runner, ok := r.byID[runnerID]
	if !ok {
		return ErrRunnerNotFound
	}
	if !ValidSplitKey(string(key)) {
		return ErrUnknownSplitKey
	}
	if _, exists := runner.Splits[key]; exists {
		return ErrAlreadyRecorded
	}
	if elapsedMS <= 0 {
		return ErrInvalidElapsedTime
	}
	runner.Splits[key] = elapsedMS
	return nil
}

// Get returns a copy of the runner with the given id.
func (r *Roster) Get(runnerID string) (Runner, bool) {
	runner, ok := r.byID[runnerID]
	if !ok {
		return Runner{}, false
	}
	return *cloneRunner(runner), true
}

// Runners returns a copy of the collection in insertion order.
func (r *Roster) Runners() []Runner {
	out := make([]Runner, 0, len(r.runners))
	for _, runner := range r.runners {
		out = append(out, *cloneRunner(runner))
	}
	return out
}

func (r *Roster) Len() int { return len(r.runners) }

// Clear empties the collection. Invoked only together with a clock reset.
func (r *Roster) Clear() {
	r.runners = nil
	r.byID = make(map[string]*Runner)
}

// Replace swaps in a restored collection, keeping order. Entries with nil
// split maps get empty ones so later recording does not nil-deref.
func (r *Roster) Replace(runners []Runner) {
	r.Clear()
	for i := range runners {
		runner := cloneRunner(&runners[i])
		r.runners = append(r.runners, runner)
		r.byID[runner.ID] = runner
	}
}

func cloneRunner(src *Runner) *Runner {
	splits := make(map[SplitKey]int64, len(src.Splits))
	for k, v := range src.Splits {
		splits[k] = v
	}
	return &Runner{ID: src.ID, Name: src.Name, Splits: splits}
}
