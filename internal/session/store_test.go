package session

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := NewBadgerStore(openTestDB(t))

	_, present, err := store.Load()
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, store.Save([]byte(`{"hello":"race"}`)))

	raw, present, err := store.Load()
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte(`{"hello":"race"}`), raw)

	require.NoError(t, store.Erase())
	_, present, err = store.Load()
	require.NoError(t, err)
	require.False(t, present)
}

func TestBadgerStoreEraseEmptySlot(t *testing.T) {
	store := NewBadgerStore(openTestDB(t))
	require.NoError(t, store.Erase())
}

func TestBadgerStoreOverwrite(t *testing.T) {
	store := NewBadgerStore(openTestDB(t))
	require.NoError(t, store.Save([]byte("first")))
	require.NoError(t, store.Save([]byte("second")))

	raw, present, err := store.Load()
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte("second"), raw)
}

func TestMemStoreFaultInjection(t *testing.T) {
	store := NewMemStore()
	boom := errors.New("boom")

	store.SaveErr = boom
	require.ErrorIs(t, store.Save([]byte("x")), boom)

	store.SaveErr = nil
	require.NoError(t, store.Save([]byte("x")))

	store.LoadErr = boom
	_, _, err := store.Load()
	require.ErrorIs(t, err, boom)
}

func TestEraseQuietlySwallowsFailure(t *testing.T) {
	store := NewMemStore()
	store.EraseErr = errors.New("store unavailable")
	// Must not panic or propagate.
	EraseQuietly(store)
}
