package binlogrouter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mxproxy/corerouter/internal/config"
)

func TestAdvanceLinearDialogue(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: Authenticated}
	dir := t.TempDir()

	next, err := r.Advance(dir, []byte("12345"), nil)
	require.NoError(t, err)
	require.Equal(t, Timestamp, next)

	cached, err := r.CachedReply(dir, "ts")
	require.NoError(t, err)
	require.Equal(t, []byte("12345"), cached)
}

func TestAdvanceMariadbGTIDBranch(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{Mariadb10MasterGTID: true}, log: testLogger(t), masterState: Mariadb10GTIDDomain}
	next, err := r.Advance(t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, Mariadb10RequestGTID, next)
}

func TestAdvanceNonMariadbGTIDBranchGoesToGTIDMode(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: Mariadb10GTIDDomain}
	next, err := r.Advance(t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, GTIDMode, next)
}

func TestAdvanceRegisterWithSemisyncGoesThroughCheckSemisync(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: Register, semisync: true}
	next, err := r.Advance(t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, CheckSemisync, next)
}

func TestAdvanceRegisterWithoutSemisyncSkipsToBinlogDump(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: Register, semisync: false}
	next, err := r.Advance(t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, RequestBinlogDump, next)
}

func TestAdvanceSlaveStoppedIsTerminal(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: SlaveStopped}
	_, err := r.Advance(t.TempDir(), nil, nil)
	require.Error(t, err)
}

func TestMarkSlaveStoppedTransitionsState(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: BinlogDump}
	r.MarkSlaveStopped(require.AnError)
	require.Equal(t, SlaveStopped, r.masterState)
}

func TestGTIDModeOptionalSwallowsError(t *testing.T) {
	r := &Router{cfg: &config.BinlogRouter{}, log: testLogger(t), masterState: GTIDMode}
	next, err := r.Advance(t.TempDir(), nil, require.AnError)
	require.NoError(t, err)
	require.Equal(t, MasterUUID, next)
}
