package rwsplit

import (
	"fmt"

	"github.com/mxproxy/corerouter/internal/mysqlerr"
)

// RouteError is the splitter's single exception-like return type (§7:
// "each core defines a single exception-like return that carries an
// optional buffer to retry with and a human-readable message"). It mirrors
// binlogrouter.RouterError but carries the retry buffer inline since the
// splitter's retries replay statement bytes, not a cached reply.
type RouteError struct {
	Op         string
	Err        error
	Kill       bool   // true: session.kill(reason); false: delayed re-enqueue
	RetryBytes []byte // statement bytes to re-send, when Kill is false
	MySQL      *mysqlerr.Error
}

func (e *RouteError) Error() string {
	if e.MySQL != nil {
		return fmt.Sprintf("rwsplit: %s: %s", e.Op, e.MySQL.Error())
	}
	return fmt.Sprintf("rwsplit: %s: %v", e.Op, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

func killErr(op string, err error) *RouteError {
	return &RouteError{Op: op, Err: err, Kill: true}
}

func retryErr(op string, err error, retry []byte) *RouteError {
	return &RouteError{Op: op, Err: err, Kill: false, RetryBytes: retry}
}

func mysqlRouteErr(op string, merr *mysqlerr.Error) *RouteError {
	return &RouteError{Op: op, Err: merr, MySQL: merr, Kill: true}
}

// IsIgnorableRollback reports whether err is the class of transient error
// that §4.9/§4.10 retry rather than fail: deadlock, lock wait timeout, or a
// WSREP-not-ready condition.
func IsIgnorableRollback(err error) bool {
	var merr *mysqlerr.Error
	if re, ok := err.(*RouteError); ok && re.MySQL != nil {
		merr = re.MySQL
	}
	if merr == nil {
		return false
	}
	switch merr.Code {
	case mysqlerr.ERLockDeadlock,
		1205, // ER_LOCK_WAIT_TIMEOUT
		mysqlerr.ERUnknownComError: // WSREP not ready
		return true
	}
	return false
}
