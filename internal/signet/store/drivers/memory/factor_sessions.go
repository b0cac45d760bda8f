package memory

import (
	"context"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
)

type factorSessionsRepo struct {
	s *Store
}

func (r *factorSessionsRepo) CreateFactorSession(_ context.Context, sess domain.FactorSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[sess.ID]; ok {
		return store.ErrAlreadyExists
	}

	cp := sess
	r.s.sessions[sess.ID] = &cp
	return nil
}

func (r *factorSessionsRepo) GetFactorSession(_ context.Context, id string) (domain.FactorSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return domain.FactorSession{}, store.ErrNotFound
	}
	return *sess, nil
}

// MarkVerified performs the check-and-set under the store lock: exactly one
// of any number of concurrent callers observes the nil -> set transition.
func (r *factorSessionsRepo) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sess.VerifiedAt != nil {
		return false, nil
	}

	t := at.UTC()
	sess.VerifiedAt = &t
	return true, nil
}

func (r *factorSessionsRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return 0, store.ErrNotFound
	}

	sess.Attempts++
	return sess.Attempts, nil
}

func (r *factorSessionsRepo) ConsumeForSigning(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sess.ConsumedAt != nil {
		return false, nil
	}

	t := at.UTC()
	sess.ConsumedAt = &t
	return true, nil
}

func (r *factorSessionsRepo) DeleteExpiredFactorSessions(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	for id, sess := range r.s.sessions {
		if sess.IsExpired(now) {
			delete(r.s.sessions, id)
		}
	}
	return nil
}
