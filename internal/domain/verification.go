package domain

import "time"

// VerificationRecord is the live code issued to one normalized email address.
// At most one record exists per address; a new issuance replaces the old one.
type VerificationRecord struct {
	Email     string    `json:"email"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	SentAt    time.Time `json:"sent_at"`
}

// Expired reports whether the record is unusable at now.
func (r *VerificationRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Purpose names the flow a code is requested for. It only changes the
// wording of the delivered email; codes are keyed by address alone.
type Purpose string

const (
	PurposeRegister      Purpose = "register"
	PurposeResetPassword Purpose = "reset"
	PurposeDeleteAccount Purpose = "delete"
)

// Account is the provisional account returned by registration.
// Persistent user storage is outside this service.
type Account struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}
