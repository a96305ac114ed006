package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SlotKey is the single slot the session occupies in the durable store.
const SlotKey = "cross-country-timer-session"

const (
	// DefaultSizeCap bounds the serialized snapshot (5 MiB).
	DefaultSizeCap = 5 << 20
	// DefaultStaleness is the cutoff beyond which a saved session is
	// discarded instead of restored.
	DefaultStaleness = 24 * time.Hour
)

var (
	ErrSnapshotTooLarge = errors.New("serialized session exceeds size cap")
	ErrInvalidSnapshot  = errors.New("invalid session snapshot")
)

// RunnerRecord is the persisted form of one roster entry.
type RunnerRecord struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Splits map[string]int64 `json:"splits"`
}

// TimerState is the persisted clock state.
type TimerState struct {
	IsRunning   bool   `json:"isRunning"`
	ElapsedTime int64  `json:"elapsedTime"`
	StartTime   *int64 `json:"startTime"`
}

// Snapshot is the full persisted session unit.
type Snapshot struct {
	Runners    []RunnerRecord `json:"runners"`
	TimerState TimerState     `json:"timerState"`
	LastSaved  int64          `json:"lastSaved"`
}

// IsRecent reports whether the snapshot was saved within threshold of now.
func (s *Snapshot) IsRecent(now time.Time, threshold time.Duration) bool {
	age := now.UnixMilli() - s.LastSaved
	return age <= threshold.Milliseconds()
}

// Codec serializes sessions to the wire format and validates them back.
// It owns only the serialized representation; the live state stays with the
// orchestration layer.
type Codec struct {
	sizeCap int
}

func NewCodec(sizeCap int) *Codec {
	if sizeCap <= 0 {
		sizeCap = DefaultSizeCap
	}
	return &Codec{sizeCap: sizeCap}
}

// Encode produces the serialized snapshot with lastSaved stamped from now.
// Oversized output is rejected rather than written.
func (c *Codec) Encode(runners []RunnerRecord, timer TimerState, now time.Time) ([]byte, error) {
	if runners == nil {
		runners = []RunnerRecord{}
	}
	snap := Snapshot{
		Runners:    runners,
		TimerState: timer,
		LastSaved:  now.UnixMilli(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if len(raw) > c.sizeCap {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrSnapshotTooLarge, len(raw), c.sizeCap)
	}
	return raw, nil
}

// Intermediate shapes with pointer fields so missing values are
// distinguishable from zero values during validation.
type rawSnapshot struct {
	Runners    *[]rawRunner `json:"runners"`
	TimerState *rawTimer    `json:"timerState"`
	LastSaved  *json.Number `json:"lastSaved"`
}

type rawRunner struct {
	ID     *string                `json:"id"`
	Name   *string                `json:"name"`
	Splits map[string]json.Number `json:"splits"`
}

type rawTimer struct {
	IsRunning   *bool        `json:"isRunning"`
	ElapsedTime *json.Number `json:"elapsedTime"`
	StartTime   *json.Number `json:"startTime"`
}

// Decode parses and validates a stored value. Validation is all-or-nothing:
// any structural violation discards the entire snapshot, never a partial
// restore.
func (c *Codec) Decode(raw []byte) (*Snapshot, error) {
	var parsed rawSnapshot
	if err := unmarshalStrictNumbers(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	if parsed.Runners == nil {
		return nil, fmt.Errorf("%w: missing runners", ErrInvalidSnapshot)
	}
	if parsed.TimerState == nil {
		return nil, fmt.Errorf("%w: missing timerState", ErrInvalidSnapshot)
	}
	if parsed.LastSaved == nil {
		return nil, fmt.Errorf("%w: missing lastSaved", ErrInvalidSnapshot)
	}

	lastSaved, err := msValue(*parsed.LastSaved)
	if err != nil {
		return nil, fmt.Errorf("%w: lastSaved: %v", ErrInvalidSnapshot, err)
	}

	timer, err := validateTimer(parsed.TimerState)
	if err != nil {
		return nil, err
	}

	runners := make([]RunnerRecord, 0, len(*parsed.Runners))
	for i, rr := range *parsed.Runners {
		rec, err := validateRunner(rr)
		if err != nil {
			return nil, fmt.Errorf("%w: runner %d: %v", ErrInvalidSnapshot, i, err)
		}
		runners = append(runners, rec)
	}

	return &Snapshot{Runners: runners, TimerState: timer, LastSaved: lastSaved}, nil
}

func validateTimer(rt *rawTimer) (TimerState, error) {
	if rt.IsRunning == nil {
		return TimerState{}, fmt.Errorf("%w: timerState missing isRunning", ErrInvalidSnapshot)
	}
	if rt.ElapsedTime == nil {
		return TimerState{}, fmt.Errorf("%w: timerState missing elapsedTime", ErrInvalidSnapshot)
	}
	elapsed, err := msValue(*rt.ElapsedTime)
	if err != nil {
		return TimerState{}, fmt.Errorf("%w: elapsedTime: %v", ErrInvalidSnapshot, err)
	}
	if elapsed < 0 {
		return TimerState{}, fmt.Errorf("%w: negative elapsedTime", ErrInvalidSnapshot)
	}

	timer := TimerState{IsRunning: *rt.IsRunning, ElapsedTime: elapsed}
	if rt.StartTime != nil {
		start, err := msValue(*rt.StartTime)
		if err != nil {
			return TimerState{}, fmt.Errorf("%w: startTime: %v", ErrInvalidSnapshot, err)
		}
		timer.StartTime = &start
	}
	return timer, nil
}

func validateRunner(rr rawRunner) (RunnerRecord, error) {
	if rr.ID == nil || *rr.ID == "" {
		return RunnerRecord{}, errors.New("missing id")
	}
	if rr.Name == nil || *rr.Name == "" {
		return RunnerRecord{}, errors.New("missing name")
	}

	splits := make(map[string]int64, len(rr.Splits))
	for key, num := range rr.Splits {
		if !validSplitKey(key) {
			return RunnerRecord{}, fmt.Errorf("unknown split key %q", key)
		}
		ms, err := msValue(num)
		if err != nil {
			return RunnerRecord{}, fmt.Errorf("split %s: %w", key, err)
		}
		if ms < 0 {
			return RunnerRecord{}, fmt.Errorf("split %s: negative elapsed", key)
		}
		splits[key] = ms
	}
	return RunnerRecord{ID: *rr.ID, Name: *rr.Name, Splits: splits}, nil
}

func validSplitKey(k string) bool {
	switch k {
	case "mile1", "mile2", "mile3":
		return true
	}
	return false
}

// unmarshalStrictNumbers unmarshals with json.Number so numeric fields can be
// range-checked instead of silently truncated through float64.
func unmarshalStrictNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func msValue(n json.Number) (int64, error) {
	// Accept integral floats (JavaScript writers emit plain numbers).
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
