/*Package comm provides the connection plumbing for talking to lab hardware.

Most usages of this package will boil down to:
	1.  Open a connection to the remote with Open, which dials TCP or opens a
		serial port and retries with an exponential backoff
	2.  wrap it with NewTimeout so every read and write is bounded
	3.  hand the result to a protocol layer (see package scpi), usually
		through a Pool so a connection that has gone bad can be replaced

	conn, err := comm.Open("192.168.100.50:5025", false, 0, 3*time.Second)
	if err != nil {
		return err
	}
	rw := comm.NewTimeout(conn, 5*time.Second)
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when the connection is nil and I/O is attempted.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrNoAddress is generated when Open is called with a blank address
	ErrNoAddress = errors.New("no address given for the remote")
)

// DefaultBaud is used for serial connections that do not specify a baud rate
const DefaultBaud = 9600

// Open creates a connection to the remote at addr.  If isSerial is true, addr
// is a path to a serial port (e.g. /dev/ttyUSB0 or COM3), otherwise it is a
// host:port pair.
//
// we use an exponential backoff; instruments do not like being connection
// thrashed.  A refused connection aborts immediately, since no amount of
// waiting will fix a closed port.
func Open(addr string, isSerial bool, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	if addr == "" {
		return nil, ErrNoAddress
	}
	var conn io.ReadWriteCloser
	op := func() error {
		var err error
		if isSerial {
			conn, err = openSerial(addr, baud, timeout)
		} else {
			conn, err = TCPSetup(addr, timeout)
		}
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

func openSerial(addr string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	return serial.OpenPort(&serial.Config{
		Name:        addr,
		Baud:        baud,
		ReadTimeout: timeout,
	})
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout wraps a connection and refreshes its deadline before every Read or
// Write.  Connections that do not support deadlines (serial ports) rely on
// their own read timeout and are passed through untouched.
type Timeout struct {
	rwc     io.ReadWriteCloser
	dl      deadliner
	timeout time.Duration
}

// NewTimeout returns a Timeout wrapping rwc.  A nil rwc produces a wrapper
// whose every call fails with ErrNotConnected.
func NewTimeout(rwc io.ReadWriteCloser, timeout time.Duration) *Timeout {
	t := &Timeout{rwc: rwc, timeout: timeout}
	if dl, ok := rwc.(deadliner); ok {
		t.dl = dl
	}
	return t
}

// Read implements io.Reader
func (t *Timeout) Read(b []byte) (int, error) {
	if t.rwc == nil {
		return 0, ErrNotConnected
	}
	if t.dl != nil && t.timeout > 0 {
		if err := t.dl.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, err
		}
	}
	return t.rwc.Read(b)
}

// Write implements io.Writer
func (t *Timeout) Write(b []byte) (int, error) {
	if t.rwc == nil {
		return 0, ErrNotConnected
	}
	if t.dl != nil && t.timeout > 0 {
		if err := t.dl.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, err
		}
	}
	return t.rwc.Write(b)
}

// Close closes the underlying connection
func (t *Timeout) Close() error {
	if t.rwc == nil {
		return ErrNotConnected
	}
	return t.rwc.Close()
}
