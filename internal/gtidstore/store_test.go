package gtidstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "gtid_maps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertThenFind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, 1, 100, 5, "master.000001", 4, 200))
	e, ok, err := s.Find(ctx, 1, 100, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "master.000001", e.BinlogFile)
	require.EqualValues(t, 200, e.EndPos)

	// a later write to the same key updates start/end rather than duplicating
	require.NoError(t, s.Upsert(ctx, 1, 100, 5, "master.000001", 4, 350))
	e2, ok, err := s.Find(ctx, 1, 100, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 350, e2.EndPos)
	require.Equal(t, e.ID, e2.ID)
}

func TestLastEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LastEntry(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Upsert(ctx, 1, 100, 1, "master.000001", 4, 100))
	require.NoError(t, s.Upsert(ctx, 1, 100, 2, "master.000001", 100, 200))

	last, ok, err := s.LastEntry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, last.Sequence)
}
