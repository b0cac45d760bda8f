package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
	"github.com/aussiebroadwan/signet/internal/signet/store/drivers/memory"
	"github.com/aussiebroadwan/signet/pkg/idx"
)

func newSession(expiresIn time.Duration) domain.FactorSession {
	now := time.Now().UTC()
	return domain.FactorSession{
		ID:              idx.New().String(),
		UserID:          "user-1",
		Method:          domain.FactorEmail,
		CodeFingerprint: "fp",
		CreatedAt:       now,
		ExpiresAt:       now.Add(expiresIn),
	}
}

func TestFactorSessionCAS(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()

	sess := newSession(5 * time.Minute)
	require.NoError(t, st.FactorSessions().CreateFactorSession(ctx, sess))
	require.ErrorIs(t, st.FactorSessions().CreateFactorSession(ctx, sess), store.ErrAlreadyExists)

	won, err := st.FactorSessions().MarkVerified(ctx, sess.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	won, err = st.FactorSessions().MarkVerified(ctx, sess.ID, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, won)

	spent, err := st.FactorSessions().ConsumeForSigning(ctx, sess.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, spent)

	spent, err = st.FactorSessions().ConsumeForSigning(ctx, sess.ID, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, spent)
}

func TestDeleteExpiredFactorSessions(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()

	expired := newSession(-time.Minute)
	live := newSession(5 * time.Minute)
	require.NoError(t, st.FactorSessions().CreateFactorSession(ctx, expired))
	require.NoError(t, st.FactorSessions().CreateFactorSession(ctx, live))

	require.NoError(t, st.FactorSessions().DeleteExpiredFactorSessions(ctx))

	_, err := st.FactorSessions().GetFactorSession(ctx, expired.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.FactorSessions().GetFactorSession(ctx, live.ID)
	require.NoError(t, err)
}

func TestSignatureRecordIsolation(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()

	rec := domain.SignatureRecord{
		ID:              idx.New().String(),
		ArtifactRef:     "doc://a",
		Signature:       []byte{0x01, 0x02},
		DigestAlgorithm: "sha256",
		Status:          domain.SignatureStatusPending,
		FactorSessionID: idx.New().String(),
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, st.SignatureRecords().CreateSignatureRecord(ctx, rec))

	// Mutating the caller's slice must not reach the stored record.
	rec.Signature[0] = 0xff

	got, err := st.SignatureRecords().GetSignatureRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, got.Signature)

	// One record per factor session, same rule as the sqlite schema.
	dup := rec
	dup.ID = idx.New().String()
	require.ErrorIs(t, st.SignatureRecords().CreateSignatureRecord(ctx, dup), store.ErrAlreadyExists)
}
