package scpi

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/nasa-jpl/scopesync/comm"
)

// Kind classifies the outcome of a transaction
type Kind int

const (
	// OK means the transaction completed
	OK Kind = iota

	// TimedOut means no reply arrived within the configured window
	TimedOut

	// IOError means the channel itself failed: disconnect, reset, malformed frame
	IOError

	// Other is anything that is neither a timeout nor a channel failure
	Other
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case TimedOut:
		return "TimedOut"
	case IOError:
		return "IOError"
	default:
		return "Other"
	}
}

// Transport reports whether the kind is a transport-level failure
// (TimedOut or IOError)
func (k Kind) Transport() bool {
	return k == TimedOut || k == IOError
}

// ErrMalformedBlock is generated when a binary reply does not follow the
// IEEE 488.2 definite length block format
var ErrMalformedBlock = errors.New("malformed definite length block")

// Error is the error type returned by every transaction
type Error struct {
	Kind Kind
	Op   string
	Cmd  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scpi %s %q: %s: %v", e.Op, e.Cmd, e.Kind, e.Err)
}

// Unwrap returns the underlying I/O error
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err.  nil is OK; errors that did not come from
// this package are classified from their cause.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return classify(err)
}

func wrap(op, cmd string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: classify(err), Op: op, Cmd: cmd, Err: err}
}

func classify(err error) Kind {
	var nerr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, io.ErrNoProgress):
		return TimedOut
	case errors.As(err, &nerr) && nerr.Timeout():
		return TimedOut
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, comm.ErrNotConnected),
		errors.Is(err, ErrMalformedBlock):
		return IOError
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return IOError
	}
	return Other
}
