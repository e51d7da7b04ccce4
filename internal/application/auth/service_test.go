package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wiki-mailauth/internal/application/verification"
	"github.com/wiki-mailauth/internal/domain"
	"github.com/wiki-mailauth/internal/infrastructure/memory"
	"github.com/wiki-mailauth/internal/pkg/emailaddr"
)

// --- mocks ---

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

func (m *mockMailer) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// repeatReader yields the same bytes forever so every code is predictable.
type repeatReader struct{ pattern []byte }

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.pattern[i%len(r.pattern)]
	}
	return len(p), nil
}

// 0x01e240 == 123456
var fixedCode = repeatReader{pattern: []byte{0x01, 0xe2, 0x40}}

const (
	testEmail = "12345@qq.com"
	testCode  = "123456"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    Service
	mailer *mockMailer
	store  *memory.VerificationStore
	clock  *testClock
}

func newFixture(t *testing.T, rollback bool) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewVerificationStore(memory.WithClock(clock.Now))
	codes := verification.NewManager(store, verification.DefaultPolicy, verification.WithRandom(fixedCode))
	classifier := emailaddr.NewClassifier(emailaddr.Policy{MinLength: 6, MaxLength: 50, AllowedDomains: []string{"qq.com"}})
	mailer := &mockMailer{}
	svc := NewService(ServiceDeps{
		Codes:      codes,
		Classifier: classifier,
		Mailer:     mailer,
		Policy: Policy{
			SiteName:                  "Wiki",
			CodeTTL:                   10 * time.Minute,
			ResendInterval:            60 * time.Second,
			RollbackOnDeliveryFailure: rollback,
		},
		Now: clock.Now,
	})
	return &fixture{svc: svc, mailer: mailer, store: store, clock: clock}
}

func bodyContains(s string) interface{} {
	return mock.MatchedBy(func(body string) bool { return strings.Contains(body, s) })
}

// --- SendCode ---

func TestSendCode_Success(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.On("SendEmail", mock.Anything, testEmail, "[Wiki] Your verification code", bodyContains(testCode)).Return(nil).Once()

	res, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: "  12345@QQ.com "})
	require.NoError(t, err)
	assert.Equal(t, "123***5@qq.com", res.Email)
	assert.Equal(t, 10, res.ExpiryMinutes)

	rec, ok := f.store.Get(testEmail)
	require.True(t, ok)
	assert.Equal(t, testCode, rec.Code)
	f.mailer.AssertExpectations(t)
}

func TestSendCode_InvalidEmail(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: "someone@gmail.com"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "qq.com")
	assert.Equal(t, 0, f.store.Len())
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendCode_MissingEmail(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Email is required", err.Error())
}

func TestSendCode_UnknownPurpose(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail, Purpose: "login"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSendCode_ThrottledWithinInterval(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	require.NoError(t, err)

	f.clock.Advance(20 * time.Second)
	_, err = f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	var te *domain.ThrottleError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 40, te.RetryAfter)
	f.mailer.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestSendCode_DeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, mock.Anything).
		Return(&domain.DeliveryError{Kind: domain.DeliveryAuth, Err: errors.New("535 bad credentials")}).Once()

	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	require.ErrorIs(t, err, domain.ErrDelivery)
	var de *domain.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.DeliveryAuth, de.Kind)

	_, ok := f.store.Get(testEmail)
	assert.False(t, ok, "failed delivery must not leave a record that throttles the retry")

	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, mock.Anything).Return(nil).Once()
	_, err = f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	assert.NoError(t, err)
}

func TestSendCode_DeliveryFailureWithoutRollback(t *testing.T) {
	f := newFixture(t, false)
	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, mock.Anything).Return(errors.New("boom")).Once()

	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	var de *domain.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.DeliveryOther, de.Kind)

	_, ok := f.store.Get(testEmail)
	assert.True(t, ok)

	_, err = f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	assert.ErrorIs(t, err, domain.ErrThrottled)
}

func TestSendResetCode_UsesResetWording(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, bodyContains("reset your Wiki password")).Return(nil).Once()

	_, err := f.svc.SendResetCode(context.Background(), SendCodeRequest{Email: testEmail, Purpose: domain.PurposeRegister})
	require.NoError(t, err)
	f.mailer.AssertExpectations(t)
}

// --- VerifyCode ---

func sendOK(t *testing.T, f *fixture) {
	t.Helper()
	f.mailer.On("SendEmail", mock.Anything, testEmail, "[Wiki] Your verification code", mock.Anything).Return(nil).Once()
	_, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	require.NoError(t, err)
}

func TestVerifyCode_SingleUse(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)

	require.NoError(t, f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: testCode}))
	err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: testCode})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrExpired)
}

func TestVerifyCode_BadFormat(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)

	err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: "12ab56"})
	require.ErrorIs(t, err, domain.ErrValidation)

	rec, ok := f.store.Get(testEmail)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Attempts, "malformed codes must not consume attempts")
}

func TestVerifyCode_WrongThenExhausted(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)

	for remaining := 4; remaining >= 1; remaining-- {
		err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: "000000"})
		var we *domain.WrongCodeError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, remaining, we.Remaining)
	}
	err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: "000000"})
	require.ErrorIs(t, err, domain.ErrAttemptsExhausted)

	err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: testCode})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrExpired)
}

func TestVerifyCode_Expired(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)

	f.clock.Advance(10 * time.Minute)
	err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: testEmail, Code: testCode})
	require.ErrorIs(t, err, domain.ErrNotFoundOrExpired)
	assert.Equal(t, "verification code expired", err.Error())
}

// --- ValidateEmail ---

func TestValidateEmail(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.svc.ValidateEmail(context.Background(), ValidateEmailRequest{Email: "Alice.W@QQ.com"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "alice.w@qq.com", res.Normalized)
	assert.Equal(t, emailaddr.KindHandle, res.Kind)

	_, err = f.svc.ValidateEmail(context.Background(), ValidateEmailRequest{Email: "a@b"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)
	f.mailer.On("SendEmail", mock.Anything, testEmail, "Welcome to Wiki!", bodyContains("alice")).Return(nil).Once()

	acct, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: testEmail, Username: "alice", Password: "secret1", Code: testCode,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, acct.UserID)
	assert.Equal(t, testEmail, acct.Email)
	assert.Equal(t, "alice", acct.Username)
	f.mailer.AssertExpectations(t)
}

func TestRegister_WelcomeFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)
	f.mailer.On("SendEmail", mock.Anything, testEmail, "Welcome to Wiki!", mock.Anything).Return(errors.New("down")).Once()

	acct, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: testEmail, Username: "alice", Password: "secret1", Code: testCode,
	})
	require.NoError(t, err)
	assert.NotNil(t, acct)
}

func TestRegister_RequiresCode(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: testEmail, Username: "alice", Password: "secret1", Code: testCode,
	})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrExpired)
}

func TestRegister_FieldValidation(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: testEmail, Username: "a", Password: "123", Code: testCode,
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "Username must be at least 2 characters long")
	assert.Contains(t, err.Error(), "Password must be at least 6 characters long")
}

// --- ResetPassword / DeleteAccount ---

func TestResetPassword(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, mock.Anything).Return(nil).Once()
	_, err := f.svc.SendResetCode(context.Background(), SendCodeRequest{Email: testEmail})
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), ResetPasswordRequest{Email: testEmail, Code: testCode, NewPassword: "newpass1"})
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), ResetPasswordRequest{Email: testEmail, Code: testCode, NewPassword: "newpass1"})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrExpired)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t, true)
	sendOK(t, f)

	err := f.svc.DeleteAccount(context.Background(), DeleteAccountRequest{Email: testEmail, Password: "secret1", Code: "654321"})
	var we *domain.WrongCodeError
	require.ErrorAs(t, err, &we)

	require.NoError(t, f.svc.DeleteAccount(context.Background(), DeleteAccountRequest{Email: testEmail, Password: "secret1", Code: testCode}))
}

// --- CheckDelivery ---

func TestCheckDelivery(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.On("Ping", mock.Anything).Return(nil).Once()
	require.NoError(t, f.svc.CheckDelivery(context.Background()))

	f.mailer.On("Ping", mock.Anything).Return(&domain.DeliveryError{Kind: domain.DeliveryConnection, Err: errors.New("refused")}).Once()
	err := f.svc.CheckDelivery(context.Background())
	require.ErrorIs(t, err, domain.ErrDelivery)
	assert.Contains(t, err.Error(), "smtp check")
}

func TestExpiryMinutes_RoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		0:                0,
		30 * time.Second: 1,
		time.Minute:      1,
		90 * time.Second: 2,
		10 * time.Minute: 10,
	}
	for ttl, want := range cases {
		assert.Equal(t, want, expiryMinutes(ttl), ttl.String())
	}
}

func TestSendCode_SubMinuteTTL(t *testing.T) {
	f := newFixture(t, true)
	f.svc.(*service).policy.CodeTTL = 30 * time.Second
	f.mailer.On("SendEmail", mock.Anything, testEmail, mock.Anything, bodyContains("<strong>1 minutes</strong>")).Return(nil).Once()

	res, err := f.svc.SendCode(context.Background(), SendCodeRequest{Email: testEmail})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiryMinutes)
	f.mailer.AssertExpectations(t)
}
