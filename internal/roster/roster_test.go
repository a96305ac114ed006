package roster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddValidatesNames(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "Jane Smith", nil},
		{"valid apostrophe", "Miles O'Brien", nil},
		{"valid hyphen and dot", "J. Smith-Jones", nil},
		{"trimmed whitespace", "  Ana Cruz  ", nil},
		{"empty", "", ErrEmptyName},
		{"only whitespace", "   ", ErrEmptyName},
		{"too short", "J", ErrNameTooShort},
		{"too long", strings.Repeat("a", 51), ErrNameTooLong},
		{"invalid characters", "Jane<script>", ErrInvalidCharacters},
		{"emoji", "Jane 🏃", ErrInvalidCharacters},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New()
			runner, err := r.Add(tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Equal(t, 0, r.Len())
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, runner.ID)
			require.Equal(t, strings.TrimSpace(tc.input), runner.Name)
			require.Equal(t, 1, r.Len())
		})
	}
}

func TestAddRejectsCaseInsensitiveDuplicates(t *testing.T) {
	r := New()
	_, err := r.Add("Jane Smith")
	require.NoError(t, err)

	_, err = r.Add("jane smith")
	require.ErrorIs(t, err, ErrDuplicateName)
	require.Equal(t, 1, r.Len())
}

func TestAddAssignsUniqueIDs(t *testing.T) {
	r := New()
	a, err := r.Add("Runner One")
	require.NoError(t, err)
	b, err := r.Add("Runner Two")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestRecordSplitIsWriteOnce(t *testing.T) {
	r := New()
	runner, err := r.Add("Jane Smith")
	require.NoError(t, err)

	require.NoError(t, r.RecordSplit(runner.ID, Mile1, 65_000))

	err = r.RecordSplit(runner.ID, Mile1, 99_000)
	require.ErrorIs(t, err, ErrAlreadyRecorded)

	got, ok := r.Get(runner.ID)
	require.True(t, ok)
	require.Equal(t, int64(65_000), got.Splits[Mile1])
}

func TestRecordSplitAllowsOutOfOrderKeys(t *testing.T) {
	r := New()
	runner, err := r.Add("Jane Smith")
	require.NoError(t, err)

	// mile2 before mile1 is accepted.
	require.NoError(t, r.RecordSplit(runner.ID, Mile2, 120_000))
	require.NoError(t, r.RecordSplit(runner.ID, Mile1, 130_000))
}

func TestRecordSplitRejections(t *testing.T) {
	r := New()
	runner, err := r.Add("Jane Smith")
	require.NoError(t, err)

	require.ErrorIs(t, r.RecordSplit("no-such-id", Mile1, 1000), ErrRunnerNotFound)
	require.ErrorIs(t, r.RecordSplit(runner.ID, SplitKey("mile9"), 1000), ErrUnknownSplitKey)
	require.ErrorIs(t, r.RecordSplit(runner.ID, Mile1, 0), ErrInvalidElapsedTime)
	require.ErrorIs(t, r.RecordSplit(runner.ID, Mile1, -50), ErrInvalidElapsedTime)

	got, _ := r.Get(runner.ID)
	require.Empty(t, got.Splits)
}

func TestRunnersReturnsCopies(t *testing.T) {
	r := New()
	runner, err := r.Add("Jane Smith")
	require.NoError(t, err)
	require.NoError(t, r.RecordSplit(runner.ID, Mile1, 1000))

	out := r.Runners()
	require.Len(t, out, 1)
	out[0].Splits[Mile2] = 9999

	got, _ := r.Get(runner.ID)
	require.NotContains(t, got.Splits, Mile2)
}

func TestClearEmptiesRoster(t *testing.T) {
	r := New()
	_, err := r.Add("Jane Smith")
	require.NoError(t, err)

	r.Clear()
	require.Equal(t, 0, r.Len())

	// Names from the cleared roster are usable again.
	_, err = r.Add("Jane Smith")
	require.NoError(t, err)
}

func TestReplaceKeepsOrderAndSplits(t *testing.T) {
	r := New()
	r.Replace([]Runner{
		{ID: "a", Name: "First", Splits: map[SplitKey]int64{Mile1: 100}},
		{ID: "b", Name: "Second"},
	})

	out := r.Runners()
	require.Len(t, out, 2)
	require.Equal(t, "First", out[0].Name)
	require.Equal(t, "Second", out[1].Name)
	require.Equal(t, int64(100), out[0].Splits[Mile1])

	// Restored entries without splits still accept recording.
	require.NoError(t, r.RecordSplit("b", Mile1, 2000))
}
