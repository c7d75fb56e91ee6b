package binlogrouter

import (
	"errors"
	"fmt"

	"github.com/mxproxy/corerouter/internal/mysqlerr"
)

// RouterError is the single exception-like return type the binlog router
// uses for recoverable and unrecoverable failures alike (Design Note §9:
// "a result type carrying an optional retry buffer and a message").
type RouterError struct {
	Op      string
	Err     error
	Fatal   bool // true: tear down the master connection / kill the slave session
	MySQL   *mysqlerr.Error
}

func (e *RouterError) Error() string {
	if e.MySQL != nil {
		return fmt.Sprintf("binlogrouter: %s: %v", e.Op, e.MySQL)
	}
	return fmt.Sprintf("binlogrouter: %s: %v", e.Op, e.Err)
}

func (e *RouterError) Unwrap() error {
	if e.MySQL != nil {
		return e.MySQL
	}
	return e.Err
}

func wrapErr(op string, err error) *RouterError {
	return &RouterError{Op: op, Err: err, Fatal: false}
}

func fatalErr(op string, err error) *RouterError {
	return &RouterError{Op: op, Err: err, Fatal: true}
}

func mysqlErr(op string, e *mysqlerr.Error) *RouterError {
	return &RouterError{Op: op, MySQL: e, Fatal: false}
}

// IsBadCRC reports whether err ultimately came from a CRC32 mismatch, used
// by callers deciding whether to bump the n_badcrc counter.
func IsBadCRC(err error) bool {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Op == "verify_crc"
	}
	return false
}
