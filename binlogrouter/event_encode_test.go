package binlogrouter

import (
	"hash/crc32"

	"github.com/mxproxy/corerouter/internal/binlogfmt"
)

// The helpers below hand-encode binlog events directly to bytes for tests,
// mirroring the layouts internal/binlogfmt decodes, since wire.Writer
// always frames its output as wire packets rather than raw on-disk bytes.

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// encodeEvent assembles header+body(+CRC32 trailer if withChecksum) into one
// on-disk event buffer.
func encodeEvent(h binlogfmt.EventHeader, body []byte, withChecksum bool) []byte {
	total := int(h.EventSize)
	buf := make([]byte, total)
	h.PutHeader(buf)
	copy(buf[binlogfmt.HeaderSize:], body)
	if withChecksum {
		crc := crc32.ChecksumIEEE(buf[:total-binlogfmt.ChecksumSize])
		putUint32(buf[total-binlogfmt.ChecksumSize:], crc)
	}
	return buf
}

func gtidEventBody(sequence uint64, domain uint32, flags uint8) []byte {
	body := make([]byte, 13)
	putUint64(body[0:8], sequence)
	putUint32(body[8:12], domain)
	body[12] = flags
	return body
}

func queryEventBody(query string) []byte {
	schema := ""
	statusVars := []byte{}
	body := make([]byte, 4+4+1+2+2+len(statusVars)+len(schema)+1+len(query))
	i := 0
	putUint32(body[i:], 0) // slave proxy id
	i += 4
	putUint32(body[i:], 0) // execution time
	i += 4
	body[i] = byte(len(schema))
	i++
	putUint16(body[i:], 0) // error code
	i += 2
	putUint16(body[i:], uint16(len(statusVars)))
	i += 2
	i += copy(body[i:], statusVars)
	i += copy(body[i:], schema)
	body[i] = 0
	i++
	copy(body[i:], query)
	return body
}

func putUint16(b []byte, v uint16) {
	b[0], b[1] = byte(v), byte(v>>8)
}

func xidEventBody(xid uint64) []byte {
	body := make([]byte, 8)
	putUint64(body, xid)
	return body
}

func newGTIDEvent(serverID, pos uint32, sequence uint64, domain uint32, flags uint8, withChecksum bool) []byte {
	body := gtidEventBody(sequence, domain, flags)
	size := uint32(binlogfmt.HeaderSize + len(body))
	if withChecksum {
		size += binlogfmt.ChecksumSize
	}
	h := binlogfmt.EventHeader{EventType: binlogfmt.MariaGTIDEvent, ServerID: serverID, EventSize: size, NextPos: pos + size}
	return encodeEvent(h, body, withChecksum)
}

func newQueryEvent(serverID, pos uint32, query string, withChecksum bool) []byte {
	body := queryEventBody(query)
	size := uint32(binlogfmt.HeaderSize + len(body))
	if withChecksum {
		size += binlogfmt.ChecksumSize
	}
	h := binlogfmt.EventHeader{EventType: binlogfmt.QueryEvent, ServerID: serverID, EventSize: size, NextPos: pos + size}
	return encodeEvent(h, body, withChecksum)
}

func newXIDEvent(serverID, pos uint32, xid uint64, withChecksum bool) []byte {
	body := xidEventBody(xid)
	size := uint32(binlogfmt.HeaderSize + len(body))
	if withChecksum {
		size += binlogfmt.ChecksumSize
	}
	h := binlogfmt.EventHeader{EventType: binlogfmt.XIDEvent, ServerID: serverID, EventSize: size, NextPos: pos + size}
	return encodeEvent(h, body, withChecksum)
}
