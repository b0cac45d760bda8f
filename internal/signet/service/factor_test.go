package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/service"
	"github.com/aussiebroadwan/signet/internal/signet/store/drivers/memory"
)

// testClock is a settable clock shared with the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureSender struct {
	mu    sync.Mutex
	to    string
	codes []string
}

func (s *captureSender) SendCode(_ context.Context, to, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = to
	s.codes = append(s.codes, code)
	return nil
}

func newFactorService(t *testing.T) (*service.FactorService, *testClock) {
	t.Helper()
	clock := newTestClock()
	svc := &service.FactorService{
		Store:  memory.NewStore(),
		Issuer: "Signet",
		Now:    clock.Now,
	}
	return svc, clock
}

func TestCreateSessionEmail(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, 0, "")
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)
	require.Len(t, issued.Code, 6)
	require.Equal(t, clock.Now().Add(service.DefaultSessionTTL), issued.ExpiresAt)

	// Fresh sessions are never verified.
	ok, err := svc.IsVerified(ctx, issued.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateSessionDeliversCode(t *testing.T) {
	svc, _ := newFactorService(t)
	sender := &captureSender{}
	svc.Sender = sender

	issued, err := svc.CreateSession(context.Background(), "user-1", domain.FactorEmail, 0, "user@example.com")
	require.NoError(t, err)

	require.Equal(t, "user@example.com", sender.to)
	require.Equal(t, []string{issued.Code}, sender.codes)
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _ := newFactorService(t)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, "", domain.FactorEmail, 0, "")
	require.Error(t, err)

	_, err = svc.CreateSession(ctx, "user-1", domain.FactorMethod("sms"), 0, "")
	require.Error(t, err)
}

func TestVerifySessionLifecycle(t *testing.T) {
	svc, _ := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, 0, "")
	require.NoError(t, err)

	// Wrong code first.
	_, err = svc.VerifySession(ctx, issued.ID, "000000")
	require.ErrorIs(t, err, service.ErrInvalidCode)

	ok, err := svc.IsVerified(ctx, issued.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// Correct code succeeds despite the earlier failure.
	verified, err := svc.VerifySession(ctx, issued.ID, issued.Code)
	require.NoError(t, err)
	require.Equal(t, "user-1", verified.UserID)
	require.Equal(t, domain.FactorEmail, verified.Method)

	ok, err = svc.IsVerified(ctx, issued.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// The code is single use: resubmitting it changes nothing.
	_, err = svc.VerifySession(ctx, issued.ID, issued.Code)
	require.ErrorIs(t, err, service.ErrAlreadyVerified)
}

func TestVerifySessionExpired(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, time.Minute, "")
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)

	_, err = svc.VerifySession(ctx, issued.ID, issued.Code)
	require.ErrorIs(t, err, service.ErrSessionExpired)

	ok, err := svc.IsVerified(ctx, issued.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerificationDoesNotOutliveWindow(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, time.Minute, "")
	require.NoError(t, err)

	_, err = svc.VerifySession(ctx, issued.ID, issued.Code)
	require.NoError(t, err)

	ok, err := svc.IsVerified(ctx, issued.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Verified status lapses with the session's original window.
	clock.Advance(2 * time.Minute)

	ok, err = svc.IsVerified(ctx, issued.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySessionAttemptCap(t *testing.T) {
	svc, _ := newFactorService(t)
	svc.MaxAttempts = 3
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, 0, "")
	require.NoError(t, err)

	for range 3 {
		_, err = svc.VerifySession(ctx, issued.ID, "000000")
		require.ErrorIs(t, err, service.ErrInvalidCode)
	}

	// Even the correct code is refused once the cap is hit.
	_, err = svc.VerifySession(ctx, issued.ID, issued.Code)
	require.ErrorIs(t, err, service.ErrTooManyAttempts)
}

func TestVerifySessionUnknown(t *testing.T) {
	svc, _ := newFactorService(t)
	ctx := context.Background()

	_, err := svc.VerifySession(ctx, "nope", "123456")
	require.ErrorIs(t, err, service.ErrSessionNotFound)

	// Unknown sessions read as unverified rather than erroring.
	ok, err := svc.IsVerified(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySessionConcurrentOneWinner(t *testing.T) {
	svc, _ := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, 0, "")
	require.NoError(t, err)

	const workers = 16
	results := make(chan error, workers)
	var start sync.WaitGroup
	start.Add(1)

	for range workers {
		go func() {
			start.Wait()
			_, err := svc.VerifySession(ctx, issued.ID, issued.Code)
			results <- err
		}()
	}
	start.Done()

	var wins, losses int
	for range workers {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrAlreadyVerified):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, workers-1, losses)
}

func TestGetSessionView(t *testing.T) {
	svc, _ := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorEmail, 0, "")
	require.NoError(t, err)

	view, err := svc.GetSession(ctx, issued.ID)
	require.NoError(t, err)
	require.Equal(t, issued.ID, view.ID)
	require.Equal(t, "user-1", view.UserID)
	require.Equal(t, domain.FactorEmail, view.Method)
	require.Nil(t, view.VerifiedAt)

	_, err = svc.GetSession(ctx, "nope")
	require.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestTOTPEnrollConfirmVerify(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	enrollment, err := svc.EnrollTOTP(ctx, "user-1", "user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.Contains(t, enrollment.URL, "Signet")

	// A totp session cannot be satisfied until enrollment is confirmed.
	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorTOTP, 0, "")
	require.NoError(t, err)
	require.Empty(t, issued.Code)

	code, err := totp.GenerateCode(enrollment.Secret, clock.Now())
	require.NoError(t, err)

	_, err = svc.VerifySession(ctx, issued.ID, code)
	require.ErrorIs(t, err, service.ErrTOTPNotConfirmed)

	require.NoError(t, svc.ConfirmTOTP(ctx, "user-1", code))

	verified, err := svc.VerifySession(ctx, issued.ID, code)
	require.NoError(t, err)
	require.Equal(t, domain.FactorTOTP, verified.Method)
}

func TestTOTPSkewTolerance(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	enrollment, err := svc.EnrollTOTP(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, clock.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmTOTP(ctx, "user-1", code))

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorTOTP, 0, "")
	require.NoError(t, err)

	// A code from the previous 30s step is still inside the skew window.
	previous, err := totp.GenerateCode(enrollment.Secret, clock.Now().Add(-30*time.Second))
	require.NoError(t, err)

	_, err = svc.VerifySession(ctx, issued.ID, previous)
	require.NoError(t, err)
}

func TestTOTPRejectsStaleCode(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	enrollment, err := svc.EnrollTOTP(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, clock.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmTOTP(ctx, "user-1", code))

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorTOTP, 0, "")
	require.NoError(t, err)

	stale, err := totp.GenerateCode(enrollment.Secret, clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)

	_, err = svc.VerifySession(ctx, issued.ID, stale)
	require.ErrorIs(t, err, service.ErrInvalidCode)
}

func TestTOTPNotEnrolled(t *testing.T) {
	svc, _ := newFactorService(t)
	ctx := context.Background()

	issued, err := svc.CreateSession(ctx, "user-1", domain.FactorTOTP, 0, "")
	require.NoError(t, err)

	_, err = svc.VerifySession(ctx, issued.ID, "123456")
	require.ErrorIs(t, err, service.ErrTOTPNotEnrolled)

	require.ErrorIs(t, svc.ConfirmTOTP(ctx, "user-1", "123456"), service.ErrTOTPNotEnrolled)
}

func TestTOTPReEnrollAfterConfirm(t *testing.T) {
	svc, clock := newFactorService(t)
	ctx := context.Background()

	enrollment, err := svc.EnrollTOTP(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	// Re-enrolling before confirmation just rotates the pending secret.
	enrollment, err = svc.EnrollTOTP(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, clock.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmTOTP(ctx, "user-1", code))

	// A confirmed secret is locked in.
	_, err = svc.EnrollTOTP(ctx, "user-1", "user@example.com")
	require.ErrorIs(t, err, service.ErrTOTPAlreadySetup)
	require.ErrorIs(t, svc.ConfirmTOTP(ctx, "user-1", code), service.ErrTOTPAlreadySetup)
}
