package binlogfmt

import (
	"strings"

	"github.com/mxproxy/corerouter/internal/wire"
)

// FormatDescriptionEventData is the FDE at the start of every binlog file
// (§3: "FDE, the first non-magic event of a binlog file").
type FormatDescriptionEventData struct {
	BinlogVersion          uint16
	ServerVersion          string
	CreateTimestamp        uint32
	EventHeaderLength      uint8
	EventTypeHeaderLengths []byte
	ChecksumAlg            uint8 // trailing byte: 0=off, 1=CRC32
}

func (e *FormatDescriptionEventData) Decode(r *wire.Reader, eventSize uint32) error {
	e.BinlogVersion = r.Int2()
	e.ServerVersion = r.String(50)
	if i := strings.IndexByte(e.ServerVersion, 0); i != -1 {
		e.ServerVersion = e.ServerVersion[:i]
	}
	e.CreateTimestamp = r.Int4()
	e.EventHeaderLength = r.Int1()
	body := r.BytesEOF()
	if len(body) > 0 {
		e.ChecksumAlg = body[len(body)-1]
		body = body[:len(body)-1]
	}
	e.EventTypeHeaderLengths = body
	return r.Err
}

// ChecksumCRC32 is the FDE's documented binlog_checksum algorithm id for CRC32
// (§4.4: "if the FDE reports BINLOG_CHECKSUM_ALG_CRC32...").
const ChecksumCRC32 = 1

// RotateEventData announces the next binlog file (§4.5 step 3, §8).
type RotateEventData struct {
	Position   uint64
	NextBinlog string
}

func (e *RotateEventData) Decode(r *wire.Reader) error {
	e.Position = r.Int8()
	e.NextBinlog = r.StringEOF()
	return r.Err
}

func (e RotateEventData) Encode(w *wire.Writer) error {
	w.Int8(e.Position)
	w.String(e.NextBinlog)
	return w.Err
}

// QueryEventData carries a statement executed on the master (§4.5 step 5:
// used to detect BEGIN/START TRANSACTION/COMMIT).
type QueryEventData struct {
	SlaveProxyID  uint32
	ExecutionTime uint32
	ErrorCode     uint16
	StatusVars    []byte
	Schema        string
	Query         string
}

func (e *QueryEventData) Decode(r *wire.Reader) error {
	e.SlaveProxyID = r.Int4()
	e.ExecutionTime = r.Int4()
	schemaLen := r.Int1()
	e.ErrorCode = r.Int2()
	statusVarsLen := r.Int2()
	if r.Err != nil {
		return r.Err
	}
	e.StatusVars = r.Bytes(int(statusVarsLen))
	e.Schema = r.String(int(schemaLen))
	r.Skip(1)
	e.Query = r.StringEOF()
	return r.Err
}

// IsBegin reports whether this QUERY_EVENT opens a transaction (§4.5 step 5).
func (e *QueryEventData) IsBegin() bool {
	q := strings.TrimSpace(strings.ToUpper(e.Query))
	return q == "BEGIN" || strings.HasPrefix(q, "START TRANSACTION")
}

// IsCommit reports whether this QUERY_EVENT commits a transaction.
func (e *QueryEventData) IsCommit() bool {
	return strings.TrimSpace(strings.ToUpper(e.Query)) == "COMMIT"
}

// XIDEventData marks a transactional commit (§4.5 step 5).
type XIDEventData struct {
	XID uint64
}

func (e *XIDEventData) Decode(r *wire.Reader) error {
	e.XID = r.Int8()
	return r.Err
}

// MariaDB GTID flags (§4.5 step 5: "flags standalone iff the event flag says so").
const (
	GTIDFlagStandalone  = 0x1
	GTIDFlagGroupCommit = 0x2
)

// GTIDEventData is the MariaDB GTID event: (domain_id, server_id, sequence)
// (§3). ServerID comes from the shared EventHeader, not this body.
type GTIDEventData struct {
	Sequence uint64
	DomainID uint32
	Flags    uint8
}

func (e *GTIDEventData) Decode(r *wire.Reader) error {
	e.Sequence = r.Int8()
	e.DomainID = r.Int4()
	e.Flags = r.Int1()
	// Remaining optional fields (commit_id et al.) are not needed by the
	// router and are left for the caller's Drain to discard.
	return r.Err
}

func (e GTIDEventData) Encode(w *wire.Writer) error {
	w.Int8(e.Sequence)
	w.Int4(e.DomainID)
	w.Int1(e.Flags)
	return w.Err
}

// IsStandalone reports the standalone flag (§3 "Pending transaction").
func (e *GTIDEventData) IsStandalone() bool { return e.Flags&GTIDFlagStandalone != 0 }

// GTIDListEntry is one entry of a GTID_LIST event.
type GTIDListEntry struct {
	DomainID uint32
	ServerID uint32
	Sequence uint64
}

// GTIDListEventData is the MariaDB GTID_LIST event, used as a fake event to
// communicate the master's binlog position during the registration dialogue
// (§4.5 step 3: "if it's a fake GTID_LIST and the target position exceeds
// current EOF, pad with an IGNORABLE_EVENT").
type GTIDListEventData struct {
	Entries []GTIDListEntry
}

func (e *GTIDListEventData) Decode(r *wire.Reader) error {
	countAndFlags := r.Int4()
	count := countAndFlags & 0x0fffffff
	e.Entries = make([]GTIDListEntry, count)
	for i := range e.Entries {
		e.Entries[i].DomainID = r.Int4()
		e.Entries[i].ServerID = r.Int4()
		e.Entries[i].Sequence = r.Int8()
	}
	return r.Err
}

// StartEncryptionEventData carries the per-file encryption context (§3,
// §4.4): scheme, key version and the 12-byte nonce used to derive each
// event's IV.
type StartEncryptionEventData struct {
	Scheme     uint8
	KeyVersion uint32
	Nonce      [12]byte
}

func (e *StartEncryptionEventData) Decode(r *wire.Reader) error {
	e.Scheme = r.Int1()
	e.KeyVersion = r.Int4()
	copy(e.Nonce[:], r.Bytes(12))
	return r.Err
}

func (e StartEncryptionEventData) Encode(w *wire.Writer) error {
	w.Int1(e.Scheme)
	w.Int4(e.KeyVersion)
	w.Write(e.Nonce[:])
	return w.Err
}

// HeartbeatEventData is sent in lieu of real events to keep a streaming
// connection alive; it is never written to a file (§4.5 step 2), and the
// router records no other state for it.
type HeartbeatEventData struct {
	LogFilename string
}

func (e *HeartbeatEventData) Decode(r *wire.Reader) error {
	e.LogFilename = r.StringEOF()
	return r.Err
}

// IgnorableEventData is either a server-sent ignorable event, or one the
// router itself synthesizes to fill next_pos gaps (§3 invariants, §8).
type IgnorableEventData struct{}

func (e *IgnorableEventData) Decode(r *wire.Reader) error {
	r.Drain()
	return r.Err
}
