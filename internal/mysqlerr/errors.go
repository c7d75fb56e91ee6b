// Package mysqlerr names the MySQL ERR-packet codes this repo returns to
// clients and slaves (§7 "Logical"/"Policy" error kinds).
package mysqlerr

import "fmt"

// Numeric codes referenced by spec.md.
const (
	ERBadSlave            = 1236 // invalid binlog position requested by a slave
	ERUnknownComError     = 1047 // used here for WSREP-not-ready
	ERLockDeadlock        = 1213
	ERWarnReplayAttempt   = 1792 // "policy: retry budget exceeded"
	ERReadOnlyTransaction = 25006
)

// sqlState maps a handful of the above to their 5-character SQLSTATE class.
var sqlState = map[uint16]string{
	ERBadSlave:            "HY000",
	ERUnknownComError:     "HY000",
	ERLockDeadlock:        "40001",
	ERWarnReplayAttempt:   "25S03",
	ERReadOnlyTransaction: "25006",
}

// Error is a typed MySQL ERR-packet payload, the common "exception with an
// optional retry buffer and a message" result type of Design Note §9.
type Error struct {
	Code    uint16
	State   string
	Message string
	// Retry, when non-nil, is the buffer the caller should retry with once
	// the error has been handled (e.g. a query to re-send to another
	// backend). Most error kinds leave this nil.
	Retry []byte
}

func New(code uint16, format string, args ...interface{}) *Error {
	return &Error{Code: code, State: sqlState[code], Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("ERROR %d (%s): %s", e.Code, e.State, e.Message)
}

// WithRetry attaches a retry buffer and returns the same error for chaining.
func (e *Error) WithRetry(buf []byte) *Error {
	e.Retry = buf
	return e
}

// BadSlavePos is returned when a slave asks to read a position beyond a
// closed file's end (§8 boundary behavior).
func BadSlavePos(file string, pos uint32) *Error {
	return New(ERBadSlave, "Client requested master to start replication from position > file size; file: %q pos: %d", file, pos)
}

// WSREPNotReady signals a Galera node that hasn't caught up yet.
func WSREPNotReady() *Error {
	return New(ERUnknownComError, "WSREP has not yet prepared node for application use")
}

// ReplayExhausted signals that transaction replay could not reproduce the
// original result and the client must retry its whole transaction (§4.9
// step 3, §8 scenario 5).
func ReplayExhausted(reason string) *Error {
	return New(ERWarnReplayAttempt, "Transaction checksum mismatch during replay: %s", reason)
}

// ReadOnlyTransaction signals a causal-reads wait timeout observed inside a
// read-only transaction (§4.8 causal reads, §8 scenario 4).
func ReadOnlyTransaction() *Error {
	return New(ERReadOnlyTransaction, "Causal read timed out while inside a read-only transaction")
}
