// Package binlogfmt decodes the MariaDB/MySQL binlog event header and the
// handful of event kinds the router inspects (§3, §4.4-§4.5): FORMAT_DESCRIPTION,
// ROTATE, QUERY, XID, the MariaDB GTID and GTID_LIST events,
// START_ENCRYPTION, HEARTBEAT and IGNORABLE. Every other event type is
// decoded only as far as its header and is otherwise passed through
// opaquely, byte-for-byte, exactly as received.
package binlogfmt

import (
	"fmt"

	"github.com/mxproxy/corerouter/internal/wire"
)

// EventType identifies a binlog event's kind. Values above 0x90 are the
// MariaDB-specific extensions (GTID, GTID_LIST, START_ENCRYPTION).
type EventType uint8

const (
	UnknownEvent           EventType = 0x00
	StartEventV3           EventType = 0x01
	QueryEvent             EventType = 0x02
	StopEvent              EventType = 0x03
	RotateEvent            EventType = 0x04
	IntvarEvent            EventType = 0x05
	XIDEvent               EventType = 0x10
	FormatDescriptionEvent EventType = 0x0f
	IncidentEvent          EventType = 0x1a
	HeartbeatEvent         EventType = 0x1b
	IgnorableEvent         EventType = 0x1c
	AnonymousGTIDEvent     EventType = 0x22
	PreviousGTIDsEvent     EventType = 0x23

	// MariaDB-specific event types (10.0+).
	MariaAnnotateRowsEvent  EventType = 0xa0
	MariaBinlogCheckpoint   EventType = 0xa1
	MariaGTIDEvent          EventType = 0xa2
	MariaGTIDListEvent      EventType = 0xa3
	MariaStartEncryptionEvent EventType = 0xa4
)

var eventTypeNames = map[EventType]string{
	UnknownEvent:              "UNKNOWN_EVENT",
	StartEventV3:              "START_EVENT_V3",
	QueryEvent:                "QUERY_EVENT",
	StopEvent:                 "STOP_EVENT",
	RotateEvent:               "ROTATE_EVENT",
	IntvarEvent:               "INTVAR_EVENT",
	XIDEvent:                  "XID_EVENT",
	FormatDescriptionEvent:    "FORMAT_DESCRIPTION_EVENT",
	IncidentEvent:             "INCIDENT_EVENT",
	HeartbeatEvent:            "HEARTBEAT_EVENT",
	IgnorableEvent:            "IGNORABLE_EVENT",
	AnonymousGTIDEvent:        "ANONYMOUS_GTID_EVENT",
	PreviousGTIDsEvent:        "PREVIOUS_GTIDS_EVENT",
	MariaAnnotateRowsEvent:    "MARIA_ANNOTATE_ROWS_EVENT",
	MariaBinlogCheckpoint:     "MARIA_BINLOG_CHECKPOINT_EVENT",
	MariaGTIDEvent:            "MARIA_GTID_EVENT",
	MariaGTIDListEvent:        "MARIA_GTID_LIST_EVENT",
	MariaStartEncryptionEvent: "MARIA_START_ENCRYPTION_EVENT",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}

// Header flags (§4.5 step 3).
const (
	FlagLCB          = 0x0001 // LOG_EVENT_BINLOG_IN_USE_F (format description)
	FlagIgnorable    = 0x0080 // LOG_EVENT_IGNORABLE_F
	FlagArtificial   = 0x0020 // LOG_EVENT_ARTIFICIAL_F
)

// FileMagic is the 4-byte header every binlog file begins with.
var FileMagic = [4]byte{0xfe, 'b', 'i', 'n'}

// HeaderSize is the fixed 19-byte binlog event header (§3).
const HeaderSize = 19

// EventHeader is the 19-byte header preceding every event (§3).
type EventHeader struct {
	Timestamp uint32
	EventType EventType
	ServerID  uint32
	EventSize uint32
	NextPos   uint32
	Flags     uint16
}

// Decode reads a fixed 19-byte header. The router never talks to binlog
// version < 4 servers, so there is no conditional v1 13-byte header path.
func (h *EventHeader) Decode(r *wire.Reader) error {
	h.Timestamp = r.Int4()
	h.EventType = EventType(r.Int1())
	h.ServerID = r.Int4()
	h.EventSize = r.Int4()
	h.NextPos = r.Int4()
	h.Flags = r.Int2()
	return r.Err
}

// Encode writes the header back out, e.g. when synthesizing an IGNORABLE_EVENT
// to fill a gap (§4.5 step 3, §8 boundary behavior).
func (h *EventHeader) Encode(w *wire.Writer) error {
	w.Int4(h.Timestamp)
	w.Int1(uint8(h.EventType))
	w.Int4(h.ServerID)
	w.Int4(h.EventSize)
	w.Int4(h.NextPos)
	w.Int2(h.Flags)
	return w.Err
}

// IsArtificial reports the LOG_EVENT_ARTIFICIAL_F flag: such events are
// never written to the binlog file (§4.5 step 3).
func (h *EventHeader) IsArtificial() bool { return h.Flags&FlagArtificial != 0 }

// PutHeader writes the header in its flat on-disk form directly into buf
// (len(buf) >= HeaderSize), with no wire packet framing. Used when
// synthesizing events for file storage (e.g. a gap-filling IGNORABLE_EVENT)
// where wire.Writer's packet framing would be wrong.
func (h *EventHeader) PutHeader(buf []byte) {
	byteOrderPutUint32(buf[0:4], h.Timestamp)
	buf[4] = byte(h.EventType)
	byteOrderPutUint32(buf[5:9], h.ServerID)
	byteOrderPutUint32(buf[9:13], h.EventSize)
	byteOrderPutUint32(buf[13:17], h.NextPos)
	buf[17] = byte(h.Flags)
	buf[18] = byte(h.Flags >> 8)
}

// GetHeader is the inverse of PutHeader.
func GetHeader(buf []byte) EventHeader {
	return EventHeader{
		Timestamp: byteOrderUint32(buf[0:4]),
		EventType: EventType(buf[4]),
		ServerID:  byteOrderUint32(buf[5:9]),
		EventSize: byteOrderUint32(buf[9:13]),
		NextPos:   byteOrderUint32(buf[13:17]),
		Flags:     uint16(buf[17]) | uint16(buf[18])<<8,
	}
}

func byteOrderPutUint32(buf []byte, v uint32) {
	buf[0], buf[1], buf[2], buf[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func byteOrderUint32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

// Event pairs a decoded header with its interpreted body. Data is one of
// the *Event types below for tracked kinds, or RawEvent for everything else.
type Event struct {
	Header EventHeader
	Data   interface{}
}

// RawEvent is the opaque body of any event kind the router does not need
// to interpret; it is forwarded byte-for-byte.
type RawEvent struct {
	Body []byte
}
