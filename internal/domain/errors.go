package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation        = errors.New("validation failed")
	ErrThrottled         = errors.New("sending too frequently")
	ErrNotFoundOrExpired = errors.New("verification code not found or expired")
	ErrAttemptsExhausted = errors.New("too many attempts, request a new code")
	ErrWrongCode         = errors.New("wrong verification code")
	ErrDelivery          = errors.New("email delivery failed")
)

// ValidationError carries a reason that is safe to show to the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a *ValidationError for reason.
func Invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// ErrCodeExpired is the NotFoundOrExpired case where a record existed but
// its TTL had elapsed. errors.Is(ErrCodeExpired, ErrNotFoundOrExpired) holds.
var ErrCodeExpired error = expiredError{}

type expiredError struct{}

func (expiredError) Error() string { return "verification code expired" }

func (expiredError) Unwrap() error { return ErrNotFoundOrExpired }

// ThrottleError is returned when a code was sent to the address less than
// the resend interval ago.
type ThrottleError struct {
	RetryAfter int // seconds, rounded up
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("sending too frequently, retry in %d seconds", e.RetryAfter)
}

func (e *ThrottleError) Unwrap() error { return ErrThrottled }

// WrongCodeError is returned for a mismatched code that left attempts on the record.
type WrongCodeError struct {
	Remaining int
}

func (e *WrongCodeError) Error() string {
	return fmt.Sprintf("wrong code, %d attempts remaining", e.Remaining)
}

func (e *WrongCodeError) Unwrap() error { return ErrWrongCode }

// DeliveryKind distinguishes mail gateway failures for operators.
type DeliveryKind string

const (
	DeliveryAuth       DeliveryKind = "auth"
	DeliveryConnection DeliveryKind = "connection"
	DeliveryOther      DeliveryKind = "other"
)

// DeliveryError wraps a transport failure from the mail gateway.
// errors.Is(err, ErrDelivery) holds for every DeliveryError.
type DeliveryError struct {
	Kind DeliveryKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email delivery failed (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }
