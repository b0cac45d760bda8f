package cryptox_test

import (
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/aussiebroadwan/signet/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyDigest(t *testing.T) {
	key, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("hello"))

	sig, err := cryptox.SignDigest(key, "sha256", digest[:])
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	require.True(t, cryptox.VerifyDigest(&key.PublicKey, "sha256", digest[:], sig))

	t.Run("altered digest fails", func(t *testing.T) {
		other := sha256.Sum256([]byte("hello!"))
		require.False(t, cryptox.VerifyDigest(&key.PublicKey, "sha256", other[:], sig))

		flipped := append([]byte(nil), digest[:]...)
		flipped[0] ^= 0x01
		require.False(t, cryptox.VerifyDigest(&key.PublicKey, "sha256", flipped, sig))
	})

	t.Run("altered signature fails", func(t *testing.T) {
		bad := append([]byte(nil), sig...)
		bad[0] ^= 0x01
		require.False(t, cryptox.VerifyDigest(&key.PublicKey, "sha256", digest[:], bad))
	})
}

func TestSignDigestLegacySHA1(t *testing.T) {
	key, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	digest := sha1.Sum([]byte("legacy"))

	sig, err := cryptox.SignDigest(key, "sha1", digest[:])
	require.NoError(t, err)
	require.True(t, cryptox.VerifyDigest(&key.PublicKey, "sha1", digest[:], sig))
}

func TestSignDigestUnsupportedAlgorithm(t *testing.T) {
	key, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("hello"))

	_, err = cryptox.SignDigest(key, "md5", digest[:])
	require.ErrorIs(t, err, cryptox.ErrUnsupportedDigest)
}

func TestSignDigestLengthMismatch(t *testing.T) {
	key, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	_, err = cryptox.SignDigest(key, "sha256", []byte("too short"))
	require.Error(t, err)
}

func TestVerifyDigestMalformedInput(t *testing.T) {
	key, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("hello"))

	// Malformed input is a negative result, never a panic or error
	require.False(t, cryptox.VerifyDigest(nil, "sha256", digest[:], nil))
	require.False(t, cryptox.VerifyDigest(&key.PublicKey, "md5", digest[:], nil))
	require.False(t, cryptox.VerifyDigest(&key.PublicKey, "sha256", []byte("short"), nil))
	require.False(t, cryptox.VerifyDigest(&key.PublicKey, "sha256", digest[:], []byte{}))
}
