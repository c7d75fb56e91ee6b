package binlogrouter

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mxproxy/corerouter/internal/binlogfmt"
	"github.com/mxproxy/corerouter/internal/metrics"
)

func newTestRouter(t *testing.T, dir string) *Router {
	t.Helper()
	files := NewFileManager(dir, "master", Flat, 0, 0)
	pos, err := files.OpenCurrent("master.000001")
	require.NoError(t, err)
	r := &Router{files: files, log: testLogger(t), slaves: make(map[uint32]*SlaveState)}
	r.currentFile = "master.000001"
	r.currentPos = pos
	r.binlogPos = pos
	return r
}

// TestCRCMismatchIncrementsBadCRC covers §8 scenario 2: mutate one payload
// byte inside a CRC-enabled event; n_badcrc must increment and the event
// must not be written.
func TestCRCMismatchIncrementsBadCRC(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, dir)

	raw := newQueryEvent(5000, r.currentPos, "BEGIN", true)
	raw[binlogfmt.HeaderSize+2] ^= 0xff // mutate one payload byte

	reg := prometheus.NewRegistry()
	m, err := metrics.NewRegistry(reg, "test")
	require.NoError(t, err)

	_, err = r.ReceiveEvent(context.Background(), raw, true, nil, 0, m)
	require.Error(t, err)
	require.True(t, IsBadCRC(err))

	families, _ := reg.Gather()
	require.NotEmpty(t, families)
	var badCRC float64
	for _, f := range families {
		if f.GetName() == "n_badcrc" {
			badCRC = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, badCRC)
	require.EqualValues(t, 4, r.currentPos)
}

// TestGoodCRCWritesEvent exercises the happy path of ReceiveEvent/HandleEvent
// so the CRC-mismatch test above has a contrasting baseline.
func TestGoodCRCWritesEvent(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, dir)

	raw := newQueryEvent(5000, r.currentPos, "SELECT 1", true)
	_, err := r.ReceiveEvent(context.Background(), raw, true, nil, 0, nil)
	require.NoError(t, err)
	require.EqualValues(t, 4+len(raw), r.currentPos)
}
