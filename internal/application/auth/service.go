package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wiki-mailauth/internal/domain"
	"github.com/wiki-mailauth/internal/infrastructure/metrics"
	"github.com/wiki-mailauth/internal/pkg/emailaddr"
	"github.com/wiki-mailauth/internal/pkg/id"
	"github.com/wiki-mailauth/internal/pkg/mailtmpl"
	"github.com/wiki-mailauth/internal/pkg/validate"
)

type SendCodeRequest struct {
	Email   string         `json:"email" validate:"required"`
	Purpose domain.Purpose `json:"purpose" validate:"omitempty,oneof=register reset delete"`
}

type SendCodeResult struct {
	Email         string `json:"email"`
	ExpiryMinutes int    `json:"expiryMinutes"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

type ValidateEmailRequest struct {
	Email string `json:"email" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required"`
	Username string `json:"username" validate:"required,min=2,max=20"`
	Password string `json:"password" validate:"required,min=6,max=32"`
	Code     string `json:"code" validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=32"`
}

type DeleteAccountRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=32"`
	Code     string `json:"code" validate:"required"`
}

// Service runs the account flows that are gated on an emailed code.
type Service interface {
	SendCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error)
	SendResetCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error)
	VerifyCode(ctx context.Context, req VerifyCodeRequest) error
	ValidateEmail(ctx context.Context, req ValidateEmailRequest) (*emailaddr.Result, error)
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	DeleteAccount(ctx context.Context, req DeleteAccountRequest) error
	CheckDelivery(ctx context.Context) error
}

type codeManager interface {
	TryIssue(email string, interval, ttl time.Duration) (string, error)
	Revoke(email, code string) bool
	Verify(email, code string) error
	ValidCodeFormat(code string) bool
}

type addressClassifier interface {
	Classify(address string) emailaddr.Result
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
	Ping(ctx context.Context) error
}

// Policy is the slice of configuration the flows need.
type Policy struct {
	SiteName                  string
	CodeTTL                   time.Duration
	ResendInterval            time.Duration
	RollbackOnDeliveryFailure bool
}

type ServiceDeps struct {
	Codes      codeManager
	Classifier addressClassifier
	Mailer     mailer
	Metrics    *metrics.Metrics
	Policy     Policy
	Now        func() time.Time
}

type service struct {
	codes      codeManager
	classifier addressClassifier
	mailer     mailer
	metrics    *metrics.Metrics
	policy     Policy
	now        func() time.Time
}

func NewService(d ServiceDeps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		codes:      d.Codes,
		classifier: d.Classifier,
		mailer:     d.Mailer,
		metrics:    d.Metrics,
		policy:     d.Policy,
		now:        now,
	}
}

func (s *service) SendCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	email, err := s.normalize(req.Email)
	if err != nil {
		return nil, err
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = domain.PurposeRegister
	}
	return s.sendCode(ctx, email, purpose)
}

func (s *service) SendResetCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error) {
	req.Purpose = domain.PurposeResetPassword
	return s.SendCode(ctx, req)
}

// sendCode issues under the store lock, then renders and delivers outside it.
func (s *service) sendCode(ctx context.Context, email string, purpose domain.Purpose) (*SendCodeResult, error) {
	masked := emailaddr.Mask(email)
	code, err := s.codes.TryIssue(email, s.policy.ResendInterval, s.policy.CodeTTL)
	if err != nil {
		var te *domain.ThrottleError
		if errors.As(err, &te) {
			slog.Info("verification code throttled", "to", masked, "retry_after", te.RetryAfter)
		}
		return nil, err
	}

	expiry := expiryMinutes(s.policy.CodeTTL)
	data := mailtmpl.VerificationCode{
		SiteName:      s.policy.SiteName,
		Code:          code,
		ExpiryMinutes: expiry,
		Purpose:       purpose,
		Year:          s.now().Year(),
	}
	body, err := mailtmpl.RenderVerificationCode(data)
	if err != nil {
		s.codes.Revoke(email, code)
		return nil, err
	}

	if err := s.deliver(ctx, email, data.Subject(), body); err != nil {
		if s.policy.RollbackOnDeliveryFailure && s.codes.Revoke(email, code) {
			slog.Info("verification code revoked after failed delivery", "to", masked)
		}
		return nil, err
	}
	slog.Info("verification code sent", "to", masked, "purpose", purpose)
	return &SendCodeResult{Email: masked, ExpiryMinutes: expiry}, nil
}

// expiryMinutes rounds ttl up so a sub-minute TTL never reads as 0 minutes.
func expiryMinutes(ttl time.Duration) int {
	return int((ttl + time.Minute - 1) / time.Minute)
}

// deliver sends one email and always returns a *domain.DeliveryError on failure.
func (s *service) deliver(ctx context.Context, to, subject, body string) error {
	err := s.mailer.SendEmail(ctx, to, subject, body)
	if err == nil {
		s.metrics.Delivered("ok")
		return nil
	}
	var de *domain.DeliveryError
	if !errors.As(err, &de) {
		de = &domain.DeliveryError{Kind: domain.DeliveryOther, Err: err}
	}
	s.metrics.Delivered(string(de.Kind))
	slog.Error("email delivery failed", "to", emailaddr.Mask(to), "kind", de.Kind, "err", de.Err)
	return de
}

func (s *service) VerifyCode(_ context.Context, req VerifyCodeRequest) error {
	if err := validate.Struct(&req); err != nil {
		return domain.Invalid(err.Error())
	}
	email, err := s.normalize(req.Email)
	if err != nil {
		return err
	}
	return s.checkCode(email, req.Code)
}

func (s *service) ValidateEmail(_ context.Context, req ValidateEmailRequest) (*emailaddr.Result, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	res := s.classifier.Classify(req.Email)
	if !res.Valid {
		return nil, domain.Invalid(res.Message)
	}
	return &res, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	email, err := s.normalize(req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.checkCode(email, req.Code); err != nil {
		return nil, err
	}

	account := &domain.Account{UserID: id.New(), Email: email, Username: req.Username}
	slog.Info("account registered", "user_id", account.UserID, "email", emailaddr.Mask(email))

	welcome := mailtmpl.Welcome{SiteName: s.policy.SiteName, Username: req.Username}
	body, err := mailtmpl.RenderWelcome(welcome)
	if err != nil {
		slog.Warn("failed to render welcome email", "user_id", account.UserID, "err", err)
		return account, nil
	}
	// Welcome mail is best effort; registration already succeeded.
	_ = s.deliver(ctx, email, welcome.Subject(), body)
	return account, nil
}

func (s *service) ResetPassword(_ context.Context, req ResetPasswordRequest) error {
	if err := validate.Struct(&req); err != nil {
		return domain.Invalid(err.Error())
	}
	email, err := s.normalize(req.Email)
	if err != nil {
		return err
	}
	if err := s.checkCode(email, req.Code); err != nil {
		return err
	}
	slog.Info("password reset", "email", emailaddr.Mask(email))
	return nil
}

func (s *service) DeleteAccount(_ context.Context, req DeleteAccountRequest) error {
	if err := validate.Struct(&req); err != nil {
		return domain.Invalid(err.Error())
	}
	email, err := s.normalize(req.Email)
	if err != nil {
		return err
	}
	if err := s.checkCode(email, req.Code); err != nil {
		return err
	}
	slog.Info("account deleted", "email", emailaddr.Mask(email))
	return nil
}

func (s *service) CheckDelivery(ctx context.Context) error {
	if err := s.mailer.Ping(ctx); err != nil {
		return fmt.Errorf("smtp check: %w", err)
	}
	return nil
}

// normalize classifies address and returns its storage key.
func (s *service) normalize(address string) (string, error) {
	res := s.classifier.Classify(address)
	if !res.Valid {
		return "", domain.Invalid(res.Message)
	}
	return res.Normalized, nil
}

func (s *service) checkCode(email, code string) error {
	if !s.codes.ValidCodeFormat(code) {
		return domain.Invalid("invalid verification code format")
	}
	if err := s.codes.Verify(email, code); err != nil {
		slog.Info("verification failed", "email", emailaddr.Mask(email), "reason", err.Error())
		return err
	}
	return nil
}
