package sponsor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQuotaExceeded is returned when a sender already holds the maximum number
// of grants for the current window.
var ErrQuotaExceeded = errors.New("sponsorship quota exceeded")

// GrantRecord is the audit entry written for every issued grant.
type GrantRecord struct {
	ID        uuid.UUID
	Sender    string
	Target    string
	Budget    uint64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// GrantStore records issued grants and enforces the per-sender quota.
type GrantStore interface {
	// Reserve records rec unless sender already has limit grants issued at or
	// after since. A limit of zero disables the quota.
	Reserve(ctx context.Context, rec GrantRecord, limit int, since time.Time) error
}

type MemoryGrantStore struct {
	mu      sync.Mutex
	records []GrantRecord
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{}
}

func (m *MemoryGrantStore) Reserve(_ context.Context, rec GrantRecord, limit int, since time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > 0 {
		count := 0
		for _, r := range m.records {
			if r.Sender == rec.Sender && !r.IssuedAt.Before(since) {
				count++
			}
		}
		if count >= limit {
			return ErrQuotaExceeded
		}
	}
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of every stored grant.
func (m *MemoryGrantStore) Records() []GrantRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GrantRecord, len(m.records))
	copy(out, m.records)
	return out
}
