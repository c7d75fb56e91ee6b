package binlogrouter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mxproxy/corerouter/internal/config"
)

// writeIncompleteTransaction creates master.000001 containing a BEGIN-flagged
// GTID followed by a bare UPDATE with no closing COMMIT/XID, simulating a
// crash mid-transaction (§8 scenario 3's setup).
func writeIncompleteTransaction(t *testing.T, dir string) {
	t.Helper()
	files := NewFileManager(dir, "master", Flat, 0, 0)
	pos, err := files.OpenCurrent("master.000001")
	require.NoError(t, err)

	gtidEvent := newGTIDEvent(5000, pos, 1, 0, GTIDFlagStandaloneForTest, true)
	require.NoError(t, files.WriteEvent(pos, gtidEvent, pos))
	pos += uint32(len(gtidEvent))

	queryEvent := newQueryEvent(5000, pos, "UPDATE t SET x = x + 1", true)
	require.NoError(t, files.WriteEvent(pos, queryEvent, pos))

	require.NoError(t, files.Close())
}

// TestInitTruncatesIncompleteTransactionWhenTransactionSafetyOn covers §3's
// truncate-to-binlog_position recovery path running as part of real startup,
// not just FileManager.Recover in isolation.
func TestInitTruncatesIncompleteTransactionWhenTransactionSafetyOn(t *testing.T) {
	dir := t.TempDir()
	writeIncompleteTransaction(t, dir)

	cfg := &config.BinlogRouter{BinlogDir: dir, TransactionSafety: true}
	files := NewFileManager(dir, "master", Flat, 0, 0)
	r := NewRouter(cfg, testLogger(t), files, nil, nil)

	require.NoError(t, r.Init(context.Background()))
	require.Equal(t, "master.000001", r.currentFile)

	info, err := os.Stat(filepath.Join(dir, "master.000001"))
	require.NoError(t, err)
	require.EqualValues(t, r.binlogPos, info.Size())
}

// TestInitRefusesIncompleteTransactionWhenTransactionSafetyOff covers §3's
// other branch: with transaction_safety off, startup must refuse rather than
// silently truncate.
func TestInitRefusesIncompleteTransactionWhenTransactionSafetyOff(t *testing.T) {
	dir := t.TempDir()
	writeIncompleteTransaction(t, dir)

	cfg := &config.BinlogRouter{BinlogDir: dir, TransactionSafety: false}
	files := NewFileManager(dir, "master", Flat, 0, 0)
	r := NewRouter(cfg, testLogger(t), files, nil, nil)

	err := r.Init(context.Background())
	require.Error(t, err)
}
