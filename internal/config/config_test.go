package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadBinlogRouter(t *testing.T) {
	path := writeTemp(t, "binlog_router.toml", `
[binlog_router]
server_id = 4000
binlogdir = "/data/binlogs"
encryption_algorithm = "aes_cbc"
binlog_structure = "tree"
heartbeat = 300
`)
	cfg, err := LoadBinlogRouter(path)
	require.NoError(t, err)
	require.EqualValues(t, 4000, cfg.ServerID)
	require.Equal(t, "/data/binlogs", cfg.BinlogDir)
	require.Equal(t, "tree", cfg.BinlogStructure)
}

func TestLoadBinlogRouterRejectsBadEnum(t *testing.T) {
	path := writeTemp(t, "bad.toml", `
[binlog_router]
binlogdir = "/data/binlogs"
encryption_algorithm = "rot13"
`)
	_, err := LoadBinlogRouter(path)
	require.Error(t, err)
}

func TestLoadRWSplit(t *testing.T) {
	path := writeTemp(t, "rwsplit.toml", `
[rwsplit]
causal_reads = "fast_universal"
master_failure_mode = "fail_on_write"
transaction_replay = true
transaction_replay_checksum = "result_only"
`)
	cfg, err := LoadRWSplit(path)
	require.NoError(t, err)
	require.Equal(t, "fast_universal", cfg.CausalReads)
	require.True(t, cfg.TransactionReplay)
	require.Equal(t, "result_only", cfg.TransactionReplayChecksum)
}

func TestLoadRWSplitRejectsBadEnum(t *testing.T) {
	path := writeTemp(t, "bad.toml", `
[rwsplit]
causal_reads = "sometimes"
`)
	_, err := LoadRWSplit(path)
	require.Error(t, err)
}
