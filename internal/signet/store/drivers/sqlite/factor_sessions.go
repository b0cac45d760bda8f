package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
)

type factorSessionsRepo struct {
	db *sql.DB
}

func (r *factorSessionsRepo) CreateFactorSession(ctx context.Context, s domain.FactorSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO factor_sessions
			(id, user_id, method, code_fingerprint, attempts, created_at, expires_at, verified_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, string(s.Method), s.CodeFingerprint, s.Attempts,
		s.CreatedAt.UTC(), s.ExpiresAt.UTC(), mapTimeNull(s.VerifiedAt), mapTimeNull(s.ConsumedAt),
	)
	return err
}

func (r *factorSessionsRepo) GetFactorSession(ctx context.Context, id string) (domain.FactorSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, method, code_fingerprint, attempts, created_at, expires_at, verified_at, consumed_at
		FROM factor_sessions
		WHERE id = ?`, id)

	var (
		s          domain.FactorSession
		method     string
		verifiedAt sql.NullTime
		consumedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &method, &s.CodeFingerprint, &s.Attempts,
		&s.CreatedAt, &s.ExpiresAt, &verifiedAt, &consumedAt)
	if err != nil {
		return domain.FactorSession{}, mapNotFound(err)
	}

	s.Method = domain.FactorMethod(method)
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.VerifiedAt = mapNullTime(verifiedAt)
	s.ConsumedAt = mapNullTime(consumedAt)
	return s, nil
}

// MarkVerified is the single atomic check-and-set for verification: the
// WHERE clause only matches while verified_at is unset, so exactly one of
// any number of concurrent callers gets RowsAffected == 1.
func (r *factorSessionsRepo) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE factor_sessions
		SET verified_at = ?
		WHERE id = ? AND verified_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *factorSessionsRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE factor_sessions
		SET attempts = attempts + 1
		WHERE id = ?
		RETURNING attempts`, id)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

// ConsumeForSigning spends a session for one signing attempt, same CAS shape
// as MarkVerified.
func (r *factorSessionsRepo) ConsumeForSigning(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE factor_sessions
		SET consumed_at = ?
		WHERE id = ? AND consumed_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *factorSessionsRepo) DeleteExpiredFactorSessions(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM factor_sessions
		WHERE expires_at < ?`, time.Now().UTC())
	return err
}
