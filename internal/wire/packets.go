package wire

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned for structurally invalid packets — the protocol
// error kind of §7, which always closes the offending connection rather
// than panicking.
var ErrMalformed = errors.New("wire: malformed packet")

// ErrPacket is the ERR response (§4.1): after the 0xff marker, a 2-byte
// errno at payload offset 1 and, under CLIENT_PROTOCOL_41, a '#' marker
// plus 5-byte SQL state at payload offset 3 (offsets 5 and 7 counting the
// 4-byte packet header).
type ErrPacket struct {
	ErrorCode      uint16
	SQLStateMarker string
	SQLState       string
	ErrorMessage   string
}

func (e *ErrPacket) Decode(r *Reader, capabilities uint32) error {
	marker := r.Int1()
	if r.Err != nil {
		return r.Err
	}
	if marker != ErrMarker {
		return fmt.Errorf("wire: ErrPacket.Decode: got marker 0x%02x", marker)
	}
	e.ErrorCode = r.Int2()
	if capabilities&CapProtocol41 != 0 {
		e.SQLStateMarker = r.String(1)
		e.SQLState = r.String(5)
	}
	e.ErrorMessage = r.StringEOF()
	return r.Err
}

func (e *ErrPacket) Error() string {
	return fmt.Sprintf("ERROR %d (%s): %s", e.ErrorCode, e.SQLState, e.ErrorMessage)
}

// EOFPacket is the legacy EOF marker (§4.1): 0xfe as the leading byte.
type EOFPacket struct {
	Warnings    uint16
	StatusFlags uint16
}

func (e *EOFPacket) Decode(r *Reader, capabilities uint32) error {
	marker := r.Int1()
	if r.Err != nil {
		return r.Err
	}
	if marker != EOFMarker {
		return fmt.Errorf("wire: EOFPacket.Decode: got marker 0x%02x", marker)
	}
	if capabilities&CapProtocol41 != 0 {
		e.Warnings = r.Int2()
		e.StatusFlags = r.Int2()
	}
	return r.Err
}

// CheckError peeks the next byte; if it is the ERR marker it decodes and
// returns the packet as an error, otherwise it returns nil leaving the
// reader untouched.
func CheckError(r *Reader, capabilities uint32) error {
	marker, err := r.Peek()
	if err != nil {
		return err
	}
	if marker != ErrMarker {
		return nil
	}
	ep := &ErrPacket{}
	if err := ep.Decode(r, capabilities); err != nil {
		return err
	}
	return ep
}

// ComBinlogDump is the COM_BINLOG_DUMP request (§4.3, §6) that puts a
// connection into binlog streaming mode at (BinlogFilename, BinlogPos).
type ComBinlogDump struct {
	BinlogPos      uint32
	Flags          uint16
	ServerID       uint32
	BinlogFilename string
}

func (e ComBinlogDump) Encode(w *Writer) error {
	w.Int1(ComBinlogDump)
	w.Int4(e.BinlogPos)
	w.Int2(e.Flags)
	w.Int4(e.ServerID)
	w.String(e.BinlogFilename)
	return w.Err
}

// ComRegisterSlave is the COM_REGISTER_SLAVE request that completes the
// master-registration dialogue of §4.3.
type ComRegisterSlave struct {
	ServerID     uint32
	Hostname     string
	User         string
	Password     string
	Port         uint16
	ReplicationRank uint32
	MasterID     uint32
}

func (e ComRegisterSlave) Encode(w *Writer) error {
	w.Int1(ComRegisterSlave)
	w.Int4(e.ServerID)
	w.Bytes1([]byte(e.Hostname))
	w.Bytes1([]byte(e.User))
	w.Bytes1([]byte(e.Password))
	w.Int2(e.Port)
	w.Int4(e.ReplicationRank)
	w.Int4(e.MasterID)
	return w.Err
}
