package binlogrouter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mxproxy/corerouter/internal/binlogcrypt"
	"github.com/mxproxy/corerouter/internal/binlogfmt"
	"github.com/mxproxy/corerouter/internal/wire"
)

// FileMagic is the 4-byte header every binlog file begins with
// (§3/§8 scenario 1).
var FileMagic = binlogfmt.FileMagic[:]

// Structure selects the on-disk layout (§4.2 "flat and tree").
type Structure int

const (
	Flat Structure = iota
	Tree
)

// FileManager owns file creation, rotation, the write path and recovery
// for one binlog router instance (§4.2).
type FileManager struct {
	dir       string
	filestem  string
	structure Structure
	domain    uint32
	serverID  uint32

	mu      sync.Mutex
	current *os.File
	name    string

	// refcounted reader handles, keyed by file name only; a manager serves a
	// single (domain, server_id), so in tree mode the name alone picks the
	// path.
	readersMu sync.Mutex
	readers   map[string]*openFile
}

type openFile struct {
	f        *os.File
	refcount int
}

// NewFileManager constructs a manager rooted at dir.
func NewFileManager(dir, filestem string, structure Structure, domain, serverID uint32) *FileManager {
	return &FileManager{
		dir:       dir,
		filestem:  filestem,
		structure: structure,
		domain:    domain,
		serverID:  serverID,
		readers:   make(map[string]*openFile),
	}
}

// FileName renders the zero-padded basename for sequence n, per
// blr_file.c's "<filestem>.NNNNNN" (6-digit, zero-padded) convention.
func (m *FileManager) FileName(n uint64) string {
	return fmt.Sprintf("%s.%06d", m.filestem, n)
}

// Path returns the full on-disk path for a binlog file name, honoring the
// tree layout (`<binlogdir>/<domain>/<server_id>/<filestem>.NNNNNN`).
func (m *FileManager) Path(name string) string {
	if m.structure == Tree {
		return filepath.Join(m.dir, fmt.Sprint(m.domain), fmt.Sprint(m.serverID), name)
	}
	return filepath.Join(m.dir, name)
}

// EnsureDir creates the directory a file name lives in (tree mode only
// needs more than one level).
func (m *FileManager) EnsureDir(name string) error {
	return os.MkdirAll(filepath.Dir(m.Path(name)), 0755)
}

// CreateEmpty creates a file containing only the 4-byte magic, used both
// for opening a brand new current file and for filling rotation gaps
// (§4.5 step 3, §8 scenario 1).
func (m *FileManager) CreateEmpty(name string) error {
	if err := m.EnsureDir(name); err != nil {
		return err
	}
	f, err := os.OpenFile(m.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.Write(FileMagic)
	return err
}

// OpenCurrent opens name as the active write file: creates it with magic if
// absent, or appends/seeks to its end. A length in (0,4) is fatal (§4.2
// init: "File length 0 ⇒ write magic; length in (0,4) ⇒ fatal").
func (m *FileManager) OpenCurrent(name string) (pos uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.EnsureDir(name); err != nil {
		return 0, err
	}
	path := m.Path(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	switch {
	case info.Size() == 0:
		if _, err := f.Write(FileMagic); err != nil {
			f.Close()
			return 0, err
		}
		pos = uint32(len(FileMagic))
	case info.Size() < int64(len(FileMagic)):
		f.Close()
		return 0, fmt.Errorf("binlogrouter: %s: truncated magic, length %d", name, info.Size())
	default:
		pos = uint32(info.Size())
	}

	if m.current != nil {
		m.current.Close()
	}
	m.current = f
	m.name = name
	return pos, nil
}

// WriteEvent writes one already-framed event (header+payload, including
// trailing checksum if enabled) at offset pos. It does not detect or pad a
// gap between the end of the file and pos; a gap is only filled when a
// caller writes one explicitly through WriteIgnorable. On short write the
// file is truncated back to safePos and an error returned.
func (m *FileManager) WriteEvent(pos uint32, buf []byte, safePos uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return fmt.Errorf("binlogrouter: no open file")
	}
	n, err := m.current.WriteAt(buf, int64(pos))
	if err != nil || n != len(buf) {
		if truncErr := m.current.Truncate(int64(safePos)); truncErr != nil {
			return fmt.Errorf("binlogrouter: short write (%w) and truncate failed: %v", err, truncErr)
		}
		if err == nil {
			err = fmt.Errorf("short write: wrote %d of %d bytes", n, len(buf))
		}
		return err
	}
	return nil
}

// WriteIgnorable writes a self-generated IGNORABLE_EVENT spanning [pos,
// pos+gap) so downstream readers see a contiguous stream across a hole
// (§3 invariant, §4.5 step 3).
func (m *FileManager) WriteIgnorable(pos uint32, gap uint32) error {
	if gap < binlogfmt.HeaderSize {
		return fmt.Errorf("binlogrouter: gap %d smaller than event header", gap)
	}
	hdr := binlogfmt.EventHeader{
		EventType: binlogfmt.IgnorableEvent,
		EventSize: gap,
		NextPos:   pos + gap,
		Flags:     binlogfmt.FlagIgnorable,
	}
	buf := make([]byte, gap)
	hdr.PutHeader(buf)
	return m.WriteEvent(pos, buf, pos)
}

// Sync fsyncs the current file.
func (m *FileManager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.Sync()
}

// Rotate switches the active file to name through OpenCurrent (§4.2
// rotate): a new file's write cursor starts just past the magic, an
// existing file's at its end.
func (m *FileManager) Rotate(name string) (pos uint32, err error) {
	return m.OpenCurrent(name)
}

// Close releases the current write handle.
func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}

// OpenBinlog returns a refcounted reader handle for name, reusing an
// existing one when already open (§4.2 open_binlog).
func (m *FileManager) OpenBinlog(name string) (*os.File, error) {
	m.readersMu.Lock()
	defer m.readersMu.Unlock()
	if of, ok := m.readers[name]; ok {
		of.refcount++
		return of.f, nil
	}
	f, err := os.Open(m.Path(name))
	if err != nil {
		return nil, err
	}
	m.readers[name] = &openFile{f: f, refcount: 1}
	return f, nil
}

// ReleaseBinlog drops a reference, closing the handle when it reaches zero.
func (m *FileManager) ReleaseBinlog(name string) error {
	m.readersMu.Lock()
	defer m.readersMu.Unlock()
	of, ok := m.readers[name]
	if !ok {
		return nil
	}
	of.refcount--
	if of.refcount > 0 {
		return nil
	}
	delete(m.readers, name)
	return of.f.Close()
}

// ReadStatus is the result taxonomy from §4.2 read_binlog.
type ReadStatus int

const (
	ReadOK ReadStatus = iota
	ReadUnsafe
	ReadBeyondEOF
	ReadClosedFileEOF // position beyond EOF in an already-rotated-away file: ERR 1236
	ReadBadFD
	ReadError
)

// ReadBinlog reads one event at pos from an already-open reader handle,
// decrypting via encCtx when the position is at or past the file's first
// encrypted event. isCurrentFile distinguishes the live write-ahead file
// (whose tail beyond current_pos is merely unsafe) from a closed one
// (whose tail is a genuine protocol error), per §8 boundary behaviors:
// "> current_pos but ≤ file_size in the current file returns read_unsafe;
// > file_size in a closed file returns an ERR 1236; > file_size in the
// current file returns beyond_eof and the slave is disconnected."
func ReadBinlog(f *os.File, pos uint32, currentPos, fileSize uint32, isCurrentFile bool, encCtx *binlogcrypt.Context, firstEncPos uint32, checksumEnabled bool) (binlogfmt.Event, ReadStatus, error) {
	switch {
	case isCurrentFile && pos > currentPos && pos <= fileSize:
		return binlogfmt.Event{}, ReadUnsafe, nil
	case isCurrentFile && pos > fileSize:
		return binlogfmt.Event{}, ReadBeyondEOF, nil
	case !isCurrentFile && pos > fileSize:
		return binlogfmt.Event{}, ReadClosedFileEOF, nil
	}

	hdrBuf := make([]byte, binlogfmt.HeaderSize)
	if _, err := f.ReadAt(hdrBuf, int64(pos)); err != nil {
		return binlogfmt.Event{}, ReadError, err
	}

	hdr := binlogfmt.GetHeader(hdrBuf)
	if hdr.NextPos < pos && hdr.EventType != binlogfmt.RotateEvent {
		// next_pos < pos is only legal for ROTATE (it points at the start
		// of the next file); anywhere else it means we raced a concurrent
		// writer mid-append. Re-read once before accepting the header.
		if _, err := f.ReadAt(hdrBuf, int64(pos)); err != nil {
			return binlogfmt.Event{}, ReadError, err
		}
		hdr = binlogfmt.GetHeader(hdrBuf)
	}
	if hdr.EventSize < binlogfmt.HeaderSize {
		return binlogfmt.Event{}, ReadError, fmt.Errorf("binlogrouter: event size %d too small at pos %d", hdr.EventSize, pos)
	}

	body := make([]byte, hdr.EventSize)
	copy(body, hdrBuf)
	if _, err := f.ReadAt(body[binlogfmt.HeaderSize:], int64(pos)+int64(binlogfmt.HeaderSize)); err != nil {
		return binlogfmt.Event{}, ReadError, err
	}

	if encCtx != nil && pos >= firstEncPos {
		if err := encCtx.Decrypt(body, pos); err != nil {
			return binlogfmt.Event{}, ReadError, err
		}
	}

	r := wire.NewRawReader(bytes.NewReader(body))
	ev, err := binlogfmt.DecodeEvent(r, checksumEnabled)
	if err != nil {
		return binlogfmt.Event{}, ReadError, err
	}
	return ev, ReadOK, nil
}
