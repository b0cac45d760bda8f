package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/mail"
	"github.com/aussiebroadwan/signet/internal/signet/store"
	"github.com/aussiebroadwan/signet/pkg/cryptox"
	"github.com/aussiebroadwan/signet/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultSessionTTL bounds how long an issued code stays usable.
	DefaultSessionTTL = 5 * time.Minute

	// DefaultMaxAttempts caps failed code submissions per session.
	DefaultMaxAttempts = 5

	// DefaultTOTPSkew accepts the current and immediately adjacent 30s time
	// steps.
	DefaultTOTPSkew = 1

	totpPeriod = 30
)

var (
	ErrSessionNotFound  = errors.New("factor session not found")
	ErrSessionExpired   = errors.New("factor session expired")
	ErrAlreadyVerified  = errors.New("factor session already verified")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrTooManyAttempts  = errors.New("too many failed verification attempts")
	ErrTOTPNotEnrolled  = errors.New("TOTP not enrolled for this user")
	ErrTOTPNotConfirmed = errors.New("TOTP enrollment not confirmed")
	ErrTOTPAlreadySetup = errors.New("TOTP already confirmed for this user")
)

// FactorService owns factor sessions: issuance, verification, and the TOTP
// enrollment that backs the totp method. It is the sole source of truth for
// "has this factor been satisfied".
type FactorService struct {
	Store  store.Store
	Sender mail.Sender // Out-of-band code delivery; may be mail.Discard
	Issuer string      // Issuer name for TOTP provisioning (e.g., "Signet")

	TTL         time.Duration // Session TTL (default 5m)
	CodeWidth   int           // One-time code width (default 6)
	MaxAttempts int           // Failed-submission cap (default 5)
	TOTPSkew    uint          // Accepted adjacent time steps (default 1)

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *FactorService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *FactorService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

func (s *FactorService) codeWidth() int {
	if s.CodeWidth > 0 {
		return s.CodeWidth
	}
	return cryptox.CodeWidthDefault
}

func (s *FactorService) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (s *FactorService) totpSkew() uint {
	if s.TOTPSkew > 0 {
		return s.TOTPSkew
	}
	return DefaultTOTPSkew
}

// CreateSession issues a new factor session for the user.
//
// For the email method a fresh numeric code is generated, its fingerprint
// stored, and the plaintext returned exactly once (and delivered via the
// Sender when deliverTo is non-empty). For the totp method no per-code state
// exists; validity comes from the user's confirmed authenticator secret at
// verify time.
func (s *FactorService) CreateSession(ctx context.Context, userID string, method domain.FactorMethod, ttl time.Duration, deliverTo string) (domain.IssuedSession, error) {
	if userID == "" {
		return domain.IssuedSession{}, fmt.Errorf("user id is required")
	}
	if !method.Valid() {
		return domain.IssuedSession{}, fmt.Errorf("unknown factor method %q", method)
	}
	if ttl <= 0 {
		ttl = s.ttl()
	}

	now := s.now()
	sess := domain.FactorSession{
		ID:        idx.New().String(),
		UserID:    userID,
		Method:    method,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	var code string
	if method == domain.FactorEmail {
		var err error
		code, err = cryptox.GenerateCode(s.codeWidth())
		if err != nil {
			return domain.IssuedSession{}, fmt.Errorf("failed to generate code: %w", err)
		}
		sess.CodeFingerprint = cryptox.FingerprintCode(code)
	}

	if err := s.Store.FactorSessions().CreateFactorSession(ctx, sess); err != nil {
		return domain.IssuedSession{}, fmt.Errorf("failed to store factor session: %w", err)
	}

	if method == domain.FactorEmail && deliverTo != "" && s.Sender != nil {
		if err := s.Sender.SendCode(ctx, deliverTo, code); err != nil {
			return domain.IssuedSession{}, fmt.Errorf("failed to deliver code: %w", err)
		}
	}

	return domain.IssuedSession{
		ID:        sess.ID,
		Code:      code,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// VerifySession checks a submitted code against the session and, on success,
// marks the session verified. The verified transition is a single atomic
// check-and-set in the store, so two concurrent correct submissions yield
// exactly one success and one ErrAlreadyVerified.
func (s *FactorService) VerifySession(ctx context.Context, id, submittedCode string) (domain.VerifiedSession, error) {
	sess, err := s.Store.FactorSessions().GetFactorSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.VerifiedSession{}, ErrSessionNotFound
		}
		return domain.VerifiedSession{}, fmt.Errorf("failed to load factor session: %w", err)
	}

	now := s.now()
	switch {
	case sess.IsExpired(now):
		return domain.VerifiedSession{}, ErrSessionExpired
	case sess.VerifiedAt != nil:
		return domain.VerifiedSession{}, ErrAlreadyVerified
	case sess.Attempts >= s.maxAttempts():
		return domain.VerifiedSession{}, ErrTooManyAttempts
	}

	ok, err := s.codeMatches(ctx, sess, submittedCode, now)
	if err != nil {
		return domain.VerifiedSession{}, err
	}
	if !ok {
		if _, err := s.Store.FactorSessions().IncrementAttempts(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.VerifiedSession{}, fmt.Errorf("failed to record attempt: %w", err)
		}
		return domain.VerifiedSession{}, ErrInvalidCode
	}

	won, err := s.Store.FactorSessions().MarkVerified(ctx, id, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.VerifiedSession{}, ErrSessionNotFound
		}
		return domain.VerifiedSession{}, fmt.Errorf("failed to mark session verified: %w", err)
	}
	if !won {
		// A concurrent correct submission beat us to the transition.
		return domain.VerifiedSession{}, ErrAlreadyVerified
	}

	return domain.VerifiedSession{
		ID:         sess.ID,
		UserID:     sess.UserID,
		Method:     sess.Method,
		VerifiedAt: now,
		ExpiresAt:  sess.ExpiresAt,
	}, nil
}

// codeMatches checks the submitted code. Email sessions compare against the
// stored fingerprint in constant time; totp sessions validate against the
// user's confirmed authenticator secret with the configured skew tolerance.
func (s *FactorService) codeMatches(ctx context.Context, sess domain.FactorSession, submittedCode string, now time.Time) (bool, error) {
	switch sess.Method {
	case domain.FactorEmail:
		return cryptox.CodeEqual(sess.CodeFingerprint, submittedCode), nil

	case domain.FactorTOTP:
		secret, err := s.Store.TOTPSecrets().GetTOTPSecret(ctx, sess.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return false, ErrTOTPNotEnrolled
			}
			return false, fmt.Errorf("failed to load TOTP secret: %w", err)
		}
		if !secret.Confirmed() {
			return false, ErrTOTPNotConfirmed
		}
		return s.validateTOTP(submittedCode, secret.Secret, now)

	default:
		return false, fmt.Errorf("unknown factor method %q", sess.Method)
	}
}

func (s *FactorService) validateTOTP(code, secret string, now time.Time) (bool, error) {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      s.totpSkew(),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	return ok, nil
}

// IsVerified reports whether the session has been verified AND is still
// inside its original TTL window. Verification does not outlive the window
// fixed at creation; that is a deliberate design rule.
func (s *FactorService) IsVerified(ctx context.Context, id string) (bool, error) {
	sess, err := s.Store.FactorSessions().GetFactorSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load factor session: %w", err)
	}
	return sess.IsVerified(s.now()), nil
}

// GetSession returns a read-only projection of the session. No side effects.
func (s *FactorService) GetSession(ctx context.Context, id string) (domain.SessionView, error) {
	sess, err := s.Store.FactorSessions().GetFactorSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SessionView{}, ErrSessionNotFound
		}
		return domain.SessionView{}, fmt.Errorf("failed to load factor session: %w", err)
	}
	return sess.View(), nil
}

// EnrollTOTP generates a fresh TOTP secret for the user and returns the
// provisioning URL. The secret gates nothing until ConfirmTOTP proves the
// user's authenticator produces valid codes.
func (s *FactorService) EnrollTOTP(ctx context.Context, userID, account string) (domain.TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	err = s.Store.TOTPSecrets().UpsertTOTPSecret(ctx, domain.TOTPSecret{
		UserID:    userID,
		Secret:    key.Secret(),
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.TOTPEnrollment{}, ErrTOTPAlreadySetup
		}
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: account,
	}, nil
}

// ConfirmTOTP finishes enrollment by checking a first code from the user's
// authenticator.
func (s *FactorService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	secret, err := s.Store.TOTPSecrets().GetTOTPSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTOTPNotEnrolled
		}
		return fmt.Errorf("failed to load TOTP secret: %w", err)
	}
	if secret.Confirmed() {
		return ErrTOTPAlreadySetup
	}

	ok, err := s.validateTOTP(code, secret.Secret, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := s.Store.TOTPSecrets().ConfirmTOTPSecret(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("failed to confirm TOTP secret: %w", err)
	}
	return nil
}
