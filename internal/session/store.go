package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog/log"
)

// Store is the single-slot durable layer the session is persisted to. It is
// pass-through durability only: it holds bytes, never live state.
type Store interface {
	// Load returns the stored value and whether the slot is occupied.
	Load() ([]byte, bool, error)
	// Save overwrites the slot.
	Save(raw []byte) error
	// Erase removes the slot. Implementations return the underlying error,
	// but callers are expected to log rather than propagate it.
	Erase() error
}

// BadgerStore keeps the session slot in an embedded badger database.
type BadgerStore struct {
	key []byte
	db  *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{key: []byte(SlotKey), db: db}
}

func (s *BadgerStore) Load() ([]byte, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session slot: %w", err)
	}
	return raw, true, nil
}

func (s *BadgerStore) Save(raw []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, raw)
	})
	if err != nil {
		return fmt.Errorf("save session slot: %w", err)
	}
	return nil
}

func (s *BadgerStore) Erase() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key)
	})
	if err != nil {
		return fmt.Errorf("erase session slot: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and ephemeral runs.
type MemStore struct {
	mu      sync.Mutex
	raw     []byte
	present bool

	// Fault injection for tests.
	LoadErr  error
	SaveErr  error
	EraseErr error
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, false, s.LoadErr
	}
	if !s.present {
		return nil, false, nil
	}
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out, true, nil
}

func (s *MemStore) Save(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.raw = make([]byte, len(raw))
	copy(s.raw, raw)
	s.present = true
	return nil
}

func (s *MemStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EraseErr != nil {
		return s.EraseErr
	}
	s.raw = nil
	s.present = false
	return nil
}

// EraseQuietly erases the slot, logging instead of propagating failure. The
// caller always continues with a clean in-memory session.
func EraseQuietly(store Store) {
	if err := store.Erase(); err != nil {
		log.Warn().Err(err).Msg("failed to erase session slot")
	}
}
