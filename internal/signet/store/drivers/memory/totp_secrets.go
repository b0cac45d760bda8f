package memory

import (
	"context"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
)

type totpSecretsRepo struct {
	s *Store
}

func (r *totpSecretsRepo) UpsertTOTPSecret(_ context.Context, sec domain.TOTPSecret) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.totp[sec.UserID]; ok && existing.ConfirmedAt != nil {
		return store.ErrAlreadyExists
	}

	cp := sec
	r.s.totp[sec.UserID] = &cp
	return nil
}

func (r *totpSecretsRepo) GetTOTPSecret(_ context.Context, userID string) (domain.TOTPSecret, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sec, ok := r.s.totp[userID]
	if !ok {
		return domain.TOTPSecret{}, store.ErrNotFound
	}
	return *sec, nil
}

func (r *totpSecretsRepo) ConfirmTOTPSecret(_ context.Context, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sec, ok := r.s.totp[userID]
	if !ok || sec.ConfirmedAt != nil {
		return store.ErrNotFound
	}

	t := at.UTC()
	sec.ConfirmedAt = &t
	return nil
}

func (r *totpSecretsRepo) DeleteTOTPSecret(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.totp, userID)
	return nil
}
