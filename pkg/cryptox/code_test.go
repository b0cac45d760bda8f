package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/signet/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		code, err := cryptox.GenerateCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9', "code must be numeric, got %q", code)
		}
		seen[code] = true
	}
	// 50 draws from a million values colliding down to a handful would be
	// astronomically unlikely; a tiny map means the generator is broken.
	require.Greater(t, len(seen), 40)
}

func TestGenerateCodeRejectsZeroWidth(t *testing.T) {
	_, err := cryptox.GenerateCode(0)
	require.Error(t, err)
}

func TestFingerprintCodeDeterministic(t *testing.T) {
	fp1 := cryptox.FingerprintCode("123456")
	fp2 := cryptox.FingerprintCode("123456")
	require.Equal(t, fp1, fp2)
	require.Len(t, fp1, 43) // base64url of a SHA-256 sum

	// The fingerprint never contains the code itself
	require.NotContains(t, fp1, "123456")
	require.NotEqual(t, fp1, cryptox.FingerprintCode("123457"))
}

func TestCodeEqual(t *testing.T) {
	fp := cryptox.FingerprintCode("654321")

	require.True(t, cryptox.CodeEqual(fp, "654321"))
	require.False(t, cryptox.CodeEqual(fp, "654322"))
	require.False(t, cryptox.CodeEqual(fp, ""))
	require.False(t, cryptox.CodeEqual("", "654321"))
}
