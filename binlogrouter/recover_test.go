package binlogrouter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRecoverTruncatesIncompleteTransaction covers §8 scenario 3: a
// BEGIN-flagged GTID followed by a single QUERY event with no commit
// (simulating a crash mid-transaction); recovering with fix=true must
// truncate the file back to the offset before the GTID event.
func TestRecoverTruncatesIncompleteTransaction(t *testing.T) {
	dir := t.TempDir()
	files := NewFileManager(dir, "master", Flat, 0, 0)
	pos, err := files.OpenCurrent("master.000001")
	require.NoError(t, err)

	beginPos := pos
	gtidEvent := newGTIDEvent(5000, pos, 1, 0, GTIDFlagStandaloneForTest, true)
	require.NoError(t, files.WriteEvent(pos, gtidEvent, pos))
	pos += uint32(len(gtidEvent))

	queryEvent := newQueryEvent(5000, pos, "UPDATE t SET x = x + 1", true)
	require.NoError(t, files.WriteEvent(pos, queryEvent, pos))
	pos += uint32(len(queryEvent))

	require.NoError(t, files.Close())

	newPos, status, err := files.Recover("master.000001", true, true)
	require.NoError(t, err)
	require.Equal(t, RecoverTruncated, status)
	require.Equal(t, beginPos, newPos)

	info, err := os.Stat(filepath.Join(dir, "master.000001"))
	require.NoError(t, err)
	require.EqualValues(t, beginPos, info.Size())
}

// GTIDFlagStandaloneForTest is 0: a non-standalone GTID, so the
// transaction stays open across the following QUERY event (mirrors a
// real multi-statement transaction rather than a one-statement DDL).
const GTIDFlagStandaloneForTest = 0
