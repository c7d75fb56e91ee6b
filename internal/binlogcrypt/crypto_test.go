package binlogcrypt

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T, scheme Scheme, keyLen int) *Context {
	t.Helper()
	key := make([]byte, keyLen)
	_, err := rand.Read(key)
	require.NoError(t, err)
	var nonce [12]byte
	_, err = rand.Read(nonce[:])
	require.NoError(t, err)
	return &Context{Scheme: scheme, KeyVersion: 1, Nonce: nonce, Key: key}
}

func TestEncryptDecryptRoundTripCBC(t *testing.T) {
	ctx := testContext(t, SchemeCBC, 16)
	for _, size := range []int{13, 19, 32, 45, 100} {
		event := make([]byte, size)
		_, err := rand.Read(event)
		require.NoError(t, err)
		original := append([]byte(nil), event...)

		enc := append([]byte(nil), event...)
		require.NoError(t, ctx.Encrypt(enc, 1234))

		// clear event-size field must be unchanged
		require.Equal(t, original[0:4], enc[0:4])

		dec := append([]byte(nil), enc...)
		require.NoError(t, ctx.Decrypt(dec, 1234))
		require.Equal(t, original, dec)
	}
}

func TestEncryptDecryptRoundTripCTR(t *testing.T) {
	ctx := testContext(t, SchemeCTR, 32)
	event := bytes.Repeat([]byte{0xAB}, 64)
	original := append([]byte(nil), event...)

	enc := append([]byte(nil), event...)
	require.NoError(t, ctx.Encrypt(enc, 77))
	require.Equal(t, original[0:4], enc[0:4])
	require.NotEqual(t, original[4:], enc[4:])

	dec := append([]byte(nil), enc...)
	require.NoError(t, ctx.Decrypt(dec, 77))
	require.Equal(t, original, dec)
}

func TestParseKeyFile(t *testing.T) {
	data := "# comment\n\n1;" + strings.Repeat("ab", 16) + "\n"
	kf, err := ParseKeyFile(strings.NewReader(data))
	require.NoError(t, err)
	key, ok := kf.Key(1)
	require.True(t, ok)
	require.Len(t, key, 16)
}

func TestParseKeyFileLenientHex(t *testing.T) {
	data := "1;zz" + strings.Repeat("0", 30) + "\n"
	kf, err := ParseKeyFile(strings.NewReader(data))
	require.NoError(t, err)
	key, ok := kf.Key(1)
	require.True(t, ok)
	require.Equal(t, byte(0), key[0])
}
