package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wiki-mailauth/internal/domain"
)

// VerificationStore keeps verification records in process memory, keyed by
// normalized email. Nothing is persisted. A single mutex serializes every
// read and mutation, including the periodic sweep.
type VerificationStore struct {
	mu      sync.Mutex
	records map[string]domain.VerificationRecord
	now     func() time.Time
	onSweep func(removed int)
}

// Option configures a VerificationStore.
type Option func(*VerificationStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *VerificationStore) { s.now = now }
}

// WithSweepHook registers a callback invoked after each sweep with the number of records removed.
func WithSweepHook(fn func(removed int)) Option {
	return func(s *VerificationStore) { s.onSweep = fn }
}

func NewVerificationStore(opts ...Option) *VerificationStore {
	s := &VerificationStore{
		records: make(map[string]domain.VerificationRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's clock reading.
func (s *VerificationStore) Now() time.Time { return s.now() }

// Put inserts or overwrites the record for email with a fresh expiry, zero
// attempts and sentAt set to now. Check-then-write callers should use Apply.
func (s *VerificationStore) Put(email, code string, ttl time.Duration) domain.VerificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec := domain.VerificationRecord{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(ttl),
		SentAt:    now,
	}
	s.records[email] = rec
	return rec
}

// Get returns a copy of the record for email. It does not filter expired
// records; decisions based on the result should be made inside Apply.
func (s *VerificationStore) Get(email string) (domain.VerificationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	return rec, ok
}

// Delete removes the record for email unconditionally. Prefer DeleteIfCode
// when withdrawing a specific code.
func (s *VerificationStore) Delete(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, email)
}

// DeleteIfCode removes the record only while it still holds code.
func (s *VerificationStore) DeleteIfCode(email, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	if !ok || rec.Code != code {
		return false
	}
	delete(s.records, email)
	return true
}

// Apply runs fn under the store lock with a copy of the current record
// (nil when absent) and the clock reading. Whatever fn returns replaces the
// stored record; a nil record deletes it. fn's error is returned unchanged
// and does not prevent the write. fn must not call back into the store.
func (s *VerificationStore) Apply(email string, fn func(cur *domain.VerificationRecord, now time.Time) (*domain.VerificationRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *domain.VerificationRecord
	if rec, ok := s.records[email]; ok {
		cur = &rec
	}
	next, err := fn(cur, s.now())
	if next == nil {
		delete(s.records, email)
	} else {
		next.Email = email
		s.records[email] = *next
	}
	return err
}

// Sweep deletes every record with expiresAt <= now and returns how many were removed.
func (s *VerificationStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for email, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, email)
			removed++
		}
	}
	return removed
}

// Len returns the number of records currently held, expired or not.
func (s *VerificationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RunSweeper sweeps expired records every interval until ctx is cancelled.
// Lookups evict lazily; the sweep only bounds growth from codes nobody verified.
func (s *VerificationStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep(s.now())
			if removed > 0 {
				slog.Debug("swept expired verification codes", "removed", removed)
			}
			if s.onSweep != nil {
				s.onSweep(removed)
			}
		}
	}
}
