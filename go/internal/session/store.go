// Package session persists the one record needed to rejoin a game after a
// restart, and validates it against the ledger before it is trusted.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// Key is the fixed storage key of the session record.
const Key = "majority-rules:session"

// Record is the persisted session. It carries no phase or round: those are
// always re-read from the ledger.
type Record struct {
	GameID      string `json:"gameId"`
	Tier        uint8  `json:"tier"`
	UserAddress string `json:"userAddress"`
	JoinedAtMs  int64  `json:"joinedAtMs"`
}

func (r Record) validate() error {
	if r.GameID == "" || r.UserAddress == "" {
		return errors.New("session record incomplete")
	}
	return nil
}

// Store holds at most one Record. Load returns nil, nil when empty.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (*Record, error)
	Clear(ctx context.Context) error
}

// LevelDBStore keeps the record in a local LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the session database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("session store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve session path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LevelDBStore) Save(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.db.Put([]byte(Key), value, nil); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the stored record. A value that no longer decodes is treated
// as absent and removed.
func (s *LevelDBStore) Load(ctx context.Context) (*Record, error) {
	value, err := s.db.Get([]byte(Key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil || rec.validate() != nil {
		return nil, s.Clear(ctx)
	}
	return &rec, nil
}

func (s *LevelDBStore) Clear(context.Context) error {
	if err := s.db.Delete([]byte(Key), nil); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &rec
	return nil
}

func (m *MemoryStore) Load(context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	rec := *m.rec
	return &rec, nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}
