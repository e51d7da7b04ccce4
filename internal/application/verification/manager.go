// Package verification manages the lifecycle of emailed numeric codes:
// issuance, resend throttling, bounded verification attempts and expiry.
package verification

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"time"

	"github.com/wiki-mailauth/internal/domain"
	"github.com/wiki-mailauth/internal/infrastructure/metrics"
)

// Policy holds the code parameters the manager enforces.
type Policy struct {
	CodeLength  int
	MaxAttempts int
}

// DefaultPolicy is the reference policy: six digits, five attempts.
var DefaultPolicy = Policy{CodeLength: 6, MaxAttempts: 5}

type verificationStore interface {
	Now() time.Time
	Get(email string) (domain.VerificationRecord, bool)
	Put(email, code string, ttl time.Duration) domain.VerificationRecord
	DeleteIfCode(email, code string) bool
	Apply(email string, fn func(cur *domain.VerificationRecord, now time.Time) (*domain.VerificationRecord, error)) error
}

// Manager issues and checks codes. Emails passed in must already be normalized.
type Manager struct {
	store   verificationStore
	policy  Policy
	metrics *metrics.Metrics
	random  io.Reader
}

// Option configures a Manager.
type Option func(*Manager)

// WithRandom replaces crypto/rand as the entropy source.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

// WithMetrics records issuance and verification outcomes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(store verificationStore, policy Policy, opts ...Option) *Manager {
	m := &Manager{store: store, policy: policy, random: rand.Reader}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanSend reports whether a new code may be sent to email. When it may not,
// retryAfter is the remaining wait in whole seconds, rounded up.
// An expired record that has not been swept still throttles.
// The answer can be stale by the time Issue runs; request paths use TryIssue.
func (m *Manager) CanSend(email string, interval time.Duration) (allowed bool, retryAfter int) {
	rec, ok := m.store.Get(email)
	if !ok {
		return true, 0
	}
	return sendWindow(rec.SentAt, m.store.Now(), interval)
}

// Issue generates a code and unconditionally replaces the record for email.
// Delivery is the caller's job; the record stands whether or not it succeeds.
// It skips the throttle; request paths use TryIssue.
func (m *Manager) Issue(email string, ttl time.Duration) (string, error) {
	code, err := generateCode(m.random, m.policy.CodeLength)
	if err != nil {
		return "", err
	}
	m.store.Put(email, code, ttl)
	m.metrics.CodeIssued()
	return code, nil
}

// TryIssue is CanSend followed by Issue as one atomic step, so two
// concurrent requests for the same address cannot both pass the throttle.
// It returns a *domain.ThrottleError when the interval has not elapsed.
func (m *Manager) TryIssue(email string, interval, ttl time.Duration) (string, error) {
	code, err := generateCode(m.random, m.policy.CodeLength)
	if err != nil {
		return "", err
	}
	err = m.store.Apply(email, func(cur *domain.VerificationRecord, now time.Time) (*domain.VerificationRecord, error) {
		if cur != nil {
			if ok, wait := sendWindow(cur.SentAt, now, interval); !ok {
				return cur, &domain.ThrottleError{RetryAfter: wait}
			}
		}
		return &domain.VerificationRecord{Code: code, ExpiresAt: now.Add(ttl), SentAt: now}, nil
	})
	if err != nil {
		m.metrics.SendThrottled()
		return "", err
	}
	m.metrics.CodeIssued()
	return code, nil
}

// Revoke deletes the record for email if it still holds code. Used to
// withdraw a code whose delivery failed without touching a newer one.
func (m *Manager) Revoke(email, code string) bool {
	return m.store.DeleteIfCode(email, code)
}

// Verify checks code against the live record for email. It returns nil on
// success and consumes the record. Failures:
//   - domain.ErrNotFoundOrExpired: no record
//   - domain.ErrCodeExpired: record past its expiry, now deleted
//   - domain.ErrAttemptsExhausted: attempts used up, record deleted
//   - *domain.WrongCodeError: mismatch, attempts remain
func (m *Manager) Verify(email, code string) error {
	var outcome string
	err := m.store.Apply(email, func(cur *domain.VerificationRecord, now time.Time) (*domain.VerificationRecord, error) {
		switch {
		case cur == nil:
			outcome = metrics.OutcomeNotFound
			return nil, domain.ErrNotFoundOrExpired
		case cur.Expired(now):
			outcome = metrics.OutcomeExpired
			return nil, domain.ErrCodeExpired
		case cur.Attempts >= m.policy.MaxAttempts:
			outcome = metrics.OutcomeExhausted
			return nil, domain.ErrAttemptsExhausted
		}

		cur.Attempts++
		if subtle.ConstantTimeCompare([]byte(cur.Code), []byte(code)) == 1 {
			outcome = metrics.OutcomeConsumed
			return nil, nil
		}

		remaining := m.policy.MaxAttempts - cur.Attempts
		if remaining <= 0 {
			outcome = metrics.OutcomeExhausted
			return nil, domain.ErrAttemptsExhausted
		}
		outcome = metrics.OutcomeWrongCode
		return cur, &domain.WrongCodeError{Remaining: remaining}
	})
	m.metrics.Verified(outcome)
	return err
}

// ValidCodeFormat reports whether code has the shape of an issued code.
func (m *Manager) ValidCodeFormat(code string) bool {
	return isDigits(code, m.policy.CodeLength)
}

func sendWindow(sentAt, now time.Time, interval time.Duration) (bool, int) {
	elapsed := now.Sub(sentAt)
	if elapsed >= interval {
		return true, 0
	}
	remaining := interval - elapsed
	return false, int((remaining + time.Second - 1) / time.Second)
}
