package masterini

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.ini")

	cfg := Config{
		MasterHost:     "10.0.0.5",
		MasterPort:     3306,
		MasterUser:     "repl",
		MasterPassword: "s3cret",
		MasterLogFile:  "master.000042",
		MasterLogPos:   65536,
		MasterServerID: 1001,
		Filestem:       "master",
	}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)

	// tmp file must not survive a successful save
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)
	require.Equal(t, Config{}, cfg)
}

func TestCachePath(t *testing.T) {
	require.Equal(t, filepath.Join("/data/binlogs", "cache", "server1"), CachePath("/data/binlogs", "server1"))
}
