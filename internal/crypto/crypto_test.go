package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ephemera/pkg/errors"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	a, err := Rand(SaltLen)
	require.NoError(t, err)
	require.Len(t, a, SaltLen)
	b, _ := Rand(SaltLen)
	assert.False(t, bytes.Equal(a, b))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	bodies := []string{"", "hello", "ünïcødé ✓", strings.Repeat("x", 4096), "a:b:c"}
	for _, m := range bodies {
		sealed, err := Encrypt(m, "p@ss")
		require.NoError(t, err)
		assert.True(t, LooksSealed(sealed) || m == "")

		got, err := Decrypt(sealed, "p@ss")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestEncrypt_FreshSaltPerMessage(t *testing.T) {
	t.Parallel()
	a, err := Encrypt("same", "pw")
	require.NoError(t, err)
	b, err := Encrypt("same", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, strings.Split(a, ":"), 3)
}

func TestDecrypt_WrongPassword(t *testing.T) {
	t.Parallel()
	sealed, err := Encrypt("secret", "right")
	require.NoError(t, err)
	_, err = Decrypt(sealed, "wrong")
	require.ErrorIs(t, err, apperrors.ErrDecryption)

	out, ok := DecryptOrRaw(sealed, "wrong")
	assert.False(t, ok)
	assert.Equal(t, sealed, out)
}

func TestDecryptOrRaw_Garbage(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "plain text", "zz:yy:xx", "00:00:00", "a:b"} {
		out, ok := DecryptOrRaw(in, "pw")
		assert.False(t, ok)
		assert.Equal(t, in, out)
	}
}
