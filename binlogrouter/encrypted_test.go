package binlogrouter

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mxproxy/corerouter/internal/binlogcrypt"
)

// TestEncryptedReadBack covers §8 scenario 6: write 100 events through
// AES-CBC with a 16-byte key, close the file, reopen via ReadBinlog with
// the observed nonce, and check the decrypted event headers match what was
// written.
func TestEncryptedReadBack(t *testing.T) {
	dir := t.TempDir()
	files := NewFileManager(dir, "master", Flat, 0, 0)
	pos, err := files.OpenCurrent("master.000001")
	require.NoError(t, err)

	key := make([]byte, 16)
	_, err = rand.Read(key)
	require.NoError(t, err)
	var nonce [12]byte
	_, err = rand.Read(nonce[:])
	require.NoError(t, err)
	ctx := &binlogcrypt.Context{Scheme: binlogcrypt.SchemeCBC, KeyVersion: 1, Nonce: nonce, Key: key}
	firstEncPos := pos

	type want struct {
		pos     uint32
		nextPos uint32
		query   string
	}
	var wants []want

	for i := 0; i < 100; i++ {
		query := "SELECT " + string(rune('a'+i%26))
		raw := newQueryEvent(5000, pos, query, true)
		require.NoError(t, ctx.Encrypt(raw, pos))
		require.NoError(t, files.WriteEvent(pos, raw, pos))
		wants = append(wants, want{pos: pos, nextPos: pos + uint32(len(raw)), query: query})
		pos += uint32(len(raw))
	}
	require.NoError(t, files.Sync())
	require.NoError(t, files.Close())

	f, err := files.OpenBinlog("master.000001")
	require.NoError(t, err)
	defer files.ReleaseBinlog("master.000001")

	for _, w := range wants {
		ev, status, err := ReadBinlog(f, w.pos, pos, pos, true, ctx, firstEncPos, true)
		require.NoError(t, err)
		require.Equal(t, ReadOK, status)
		require.Equal(t, w.nextPos, ev.Header.NextPos)
	}
}
