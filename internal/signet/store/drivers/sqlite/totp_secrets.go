package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
)

type totpSecretsRepo struct {
	db *sql.DB
}

func (r *totpSecretsRepo) UpsertTOTPSecret(ctx context.Context, s domain.TOTPSecret) error {
	// Re-enrollment may replace an unconfirmed secret, never a confirmed one.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO totp_secrets (user_id, secret, created_at, confirmed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = excluded.secret, created_at = excluded.created_at
		WHERE totp_secrets.confirmed_at IS NULL`,
		s.UserID, s.Secret, s.CreatedAt.UTC(), mapTimeNull(s.ConfirmedAt),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *totpSecretsRepo) GetTOTPSecret(ctx context.Context, userID string) (domain.TOTPSecret, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, secret, created_at, confirmed_at
		FROM totp_secrets
		WHERE user_id = ?`, userID)

	var (
		s           domain.TOTPSecret
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&s.UserID, &s.Secret, &s.CreatedAt, &confirmedAt); err != nil {
		return domain.TOTPSecret{}, mapNotFound(err)
	}

	s.CreatedAt = s.CreatedAt.UTC()
	s.ConfirmedAt = mapNullTime(confirmedAt)
	return s, nil
}

func (r *totpSecretsRepo) ConfirmTOTPSecret(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE totp_secrets
		SET confirmed_at = ?
		WHERE user_id = ? AND confirmed_at IS NULL`,
		at.UTC(), userID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *totpSecretsRepo) DeleteTOTPSecret(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM totp_secrets WHERE user_id = ?`, userID)
	return err
}
