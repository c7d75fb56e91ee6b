package binlogfmt

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/mxproxy/corerouter/internal/wire"
	"github.com/stretchr/testify/require"
)

func encodeEvent(t *testing.T, h EventHeader, body []byte, checksum bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := &bytes.Buffer{}
	_ = w
	var seqIgnored uint8
	ww := wire.NewWriter(&buf, &seqIgnored)
	require.NoError(t, h.Encode(ww))
	ww.Write(body)
	if checksum {
		full := append(append([]byte{}, mustHeaderBytes(t, h)...), body...)
		sum := crc32.ChecksumIEEE(full)
		ww.Int4(sum)
	}
	require.NoError(t, ww.Close())
	return buf.Bytes()
}

func mustHeaderBytes(t *testing.T, h EventHeader) []byte {
	t.Helper()
	var buf bytes.Buffer
	var seq uint8
	w := wire.NewWriter(&buf, &seq)
	require.NoError(t, h.Encode(w))
	require.NoError(t, w.Close())
	// strip the 4-byte packet header added by Close()
	return buf.Bytes()[4:]
}

func TestDecodeRotateEvent(t *testing.T) {
	body := (&RotateEventData{}) // placeholder to appease linter
	_ = body
	re := RotateEventData{Position: 4, NextBinlog: "master.000002"}
	var rbuf bytes.Buffer
	var seq uint8
	rw := wire.NewWriter(&rbuf, &seq)
	require.NoError(t, re.Encode(rw))
	require.NoError(t, rw.Close())
	raw := rbuf.Bytes()[4:]

	h := EventHeader{EventType: RotateEvent, EventSize: uint32(HeaderSize + len(raw))}
	packet := encodeEvent(t, h, raw, false)

	var rseq uint8
	r := wire.NewReader(bytes.NewReader(packet), &rseq)
	ev, err := DecodeEvent(r, false)
	require.NoError(t, err)
	got, ok := ev.Data.(*RotateEventData)
	require.True(t, ok)
	require.Equal(t, "master.000002", got.NextBinlog)
	require.EqualValues(t, 4, got.Position)
}

func TestDecodeGTIDEvent(t *testing.T) {
	ge := GTIDEventData{Sequence: 42, DomainID: 1, Flags: GTIDFlagStandalone}
	var gbuf bytes.Buffer
	var seq uint8
	gw := wire.NewWriter(&gbuf, &seq)
	require.NoError(t, ge.Encode(gw))
	require.NoError(t, gw.Close())
	raw := gbuf.Bytes()[4:]

	h := EventHeader{EventType: MariaGTIDEvent, EventSize: uint32(HeaderSize + len(raw))}
	packet := encodeEvent(t, h, raw, false)

	var rseq uint8
	r := wire.NewReader(bytes.NewReader(packet), &rseq)
	ev, err := DecodeEvent(r, false)
	require.NoError(t, err)
	got := ev.Data.(*GTIDEventData)
	require.EqualValues(t, 42, got.Sequence)
	require.EqualValues(t, 1, got.DomainID)
	require.True(t, got.IsStandalone())
}

func TestDecodeWithChecksum(t *testing.T) {
	qe := QueryEventData{Schema: "t", Query: "BEGIN"}
	var qbuf bytes.Buffer
	var seq uint8
	qw := wire.NewWriter(&qbuf, &seq)
	qw.Int4(qe.SlaveProxyID)
	qw.Int4(qe.ExecutionTime)
	qw.Int1(uint8(len(qe.Schema)))
	qw.Int2(qe.ErrorCode)
	qw.Int2(uint16(len(qe.StatusVars)))
	qw.Write(qe.StatusVars)
	qw.String(qe.Schema)
	qw.Int1(0)
	qw.String(qe.Query)
	require.NoError(t, qw.Close())
	raw := qbuf.Bytes()[4:]

	h := EventHeader{EventType: QueryEvent, EventSize: uint32(HeaderSize + len(raw) + ChecksumSize)}
	packet := encodeEvent(t, h, raw, true)

	var rseq uint8
	r := wire.NewReader(bytes.NewReader(packet), &rseq)
	ev, err := DecodeEvent(r, true)
	require.NoError(t, err)
	got := ev.Data.(*QueryEventData)
	require.True(t, got.IsBegin())
}

func TestDecodeRawEventPassthrough(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	h := EventHeader{EventType: IntvarEvent, EventSize: uint32(HeaderSize + len(body))}
	packet := encodeEvent(t, h, body, false)

	var rseq uint8
	r := wire.NewReader(bytes.NewReader(packet), &rseq)
	ev, err := DecodeEvent(r, false)
	require.NoError(t, err)
	raw := ev.Data.(*RawEvent)
	require.Equal(t, body, raw.Body)
}

func TestVerifyCRC32(t *testing.T) {
	data := []byte("some event bytes")
	sum := crc32.ChecksumIEEE(data)
	require.True(t, VerifyCRC32(data, sum))
	require.False(t, VerifyCRC32(data, sum+1))
}
