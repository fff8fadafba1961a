// Package scpi provides primitives for working with devices that
// have SCPI interfaces over a single stateful session
package scpi

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/nasa-jpl/scopesync/comm"
)

const (
	// ChainSeparator joins the fragments of a chained query
	ChainSeparator = ";:"

	// FieldSeparator splits the reply to a chained query
	FieldSeparator = ";"

	terminator = '\n'
)

// Transactor can carry out protocol transactions
type Transactor interface {
	// Write sends a command that produces no reply
	Write(cmd string) error

	// Query sends a command and returns the trimmed textual reply
	Query(cmd string) (string, error)

	// QueryBinary sends a command and decodes the definite length block
	// reply as signed 16-bit samples
	QueryBinary(cmd string) ([]int16, error)
}

// Instrument is a Transactor whose transactions are serialized, and which can
// lend out the exclusive region for a sequence of transactions
type Instrument interface {
	Transactor

	// Exclusive holds the region for the duration of fn.  The Transactor
	// given to fn must not be used after fn returns.
	Exclusive(fn func(Transactor) error) error
}

// SCPI is a type for encapsulating SCPI communication over one connection.
// All access goes through a single mutex; the session is stateful and a
// reply must be fully consumed before the next command is sent.  A
// transaction that fails part way leaves the stream in an unknown position,
// so its connection is destroyed and the next transaction dials a new one.
type SCPI struct {
	mu    sync.Mutex
	pool  *comm.Pool
	conn  io.ReadWriteCloser
	br    *bufio.Reader
	order binary.ByteOrder
}

// New returns an SCPI drawing its connection from pool.  order is the byte
// order binary blocks arrive in, as configured on the instrument.
func New(pool *comm.Pool, order binary.ByteOrder) *SCPI {
	if order == nil {
		order = binary.LittleEndian
	}
	return &SCPI{pool: pool, order: order}
}

// Connect opens the connection if it is not already open
func (s *SCPI) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.lease()
	return wrap("connect", "", err)
}

// Close returns the connection and closes the pool
func (s *SCPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.pool.Put(s.conn)
		s.conn, s.br = nil, nil
	}
	return s.pool.Close()
}

// ByteOrder returns the byte order used to decode binary blocks
func (s *SCPI) ByteOrder() binary.ByteOrder {
	return s.order
}

// Write sends a command to the device
func (s *SCPI) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cmd)
}

// Query sends a command to the device and returns its reply as a string
// with the terminator and surrounding whitespace removed
func (s *SCPI) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(cmd)
}

// QueryBinary sends a command to the device and decodes the reply as a
// sequence of int16
func (s *SCPI) QueryBinary(cmd string) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryBinary(cmd)
}

// Exclusive holds the lock while fn runs
func (s *SCPI) Exclusive(fn func(Transactor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(session{s})
}

// Raw sends a command to the device and returns a response if it was a
// query, else a blank string
func (s *SCPI) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return s.Query(cmd)
	}
	return "", s.Write(cmd)
}

// ClearStatus clears the status byte and error queue of the device
func (s *SCPI) ClearStatus() error {
	return s.Write("*CLS")
}

// Identify returns the reply to *IDN?
func (s *SCPI) Identify() (string, error) {
	return s.Query("*IDN?")
}

// lease returns the open connection, taking one from the pool if needed
func (s *SCPI) lease() (io.ReadWriter, error) {
	if s.conn == nil {
		c, err := s.pool.Get()
		if err != nil {
			return nil, err
		}
		s.conn = c
		s.br = bufio.NewReader(c)
	}
	return s.conn, nil
}

// discard destroys the connection along with anything still buffered from it
func (s *SCPI) discard() {
	if s.conn != nil {
		s.pool.Destroy(s.conn)
		s.conn, s.br = nil, nil
	}
}

func (s *SCPI) send(cmd string) error {
	rw, err := s.lease()
	if err != nil {
		return err
	}
	_, err = io.WriteString(rw, cmd+string(terminator))
	return err
}

func (s *SCPI) write(cmd string) error {
	if err := s.send(cmd); err != nil {
		s.discard()
		return wrap("write", cmd, err)
	}
	return nil
}

func (s *SCPI) query(cmd string) (string, error) {
	if err := s.send(cmd); err != nil {
		s.discard()
		return "", wrap("query", cmd, err)
	}
	line, err := s.br.ReadString(terminator)
	if err != nil {
		s.discard()
		return "", wrap("query", cmd, err)
	}
	return strings.TrimSpace(line), nil
}

func (s *SCPI) queryBinary(cmd string) ([]int16, error) {
	if err := s.send(cmd); err != nil {
		s.discard()
		return nil, wrap("query binary", cmd, err)
	}
	payload, err := readBlock(s.br)
	if err != nil {
		s.discard()
		return nil, wrap("query binary", cmd, err)
	}
	return decodeInt16(payload, s.order), nil
}

// session is the unlocked view of an SCPI handed out by Exclusive
type session struct {
	s *SCPI
}

func (t session) Write(cmd string) error                  { return t.s.write(cmd) }
func (t session) Query(cmd string) (string, error)        { return t.s.query(cmd) }
func (t session) QueryBinary(cmd string) ([]int16, error) { return t.s.queryBinary(cmd) }

// readBlock reads an IEEE 488.2 definite length block, #<n><len><payload>,
// and the terminator that follows it
func readBlock(br *bufio.Reader) ([]byte, error) {
	hash, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	if hash != '#' {
		return nil, ErrMalformedBlock
	}
	nd, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	ndigits := int(nd) - '0'
	if ndigits < 1 || ndigits > 9 {
		return nil, ErrMalformedBlock
	}
	digits := make([]byte, ndigits)
	if _, err = io.ReadFull(br, digits); err != nil {
		return nil, err
	}
	nbytes, err := strconv.Atoi(string(digits))
	if err != nil || nbytes%2 != 0 {
		return nil, ErrMalformedBlock
	}
	payload := make([]byte, nbytes)
	if _, err = io.ReadFull(br, payload); err != nil {
		return nil, err
	}
	// now we need to pop off the terminator
	if _, err = br.ReadString(terminator); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeInt16(buf []byte, order binary.ByteOrder) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(order.Uint16(buf[2*i:]))
	}
	return out
}

// Canonical converts a command template such as "CHANnel1:SCALe" to the
// wire form "CHAN1:SCAL" by dropping the optional lowercase letters
func Canonical(template string) string {
	var b strings.Builder
	b.Grow(len(template))
	for _, r := range template {
		if unicode.IsLower(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Chain joins fragments into a single chained query,
// F1?;:F2?;:...;:Fn?
func Chain(fragments ...string) string {
	if len(fragments) == 0 {
		return ""
	}
	return strings.Join(fragments, "?"+ChainSeparator) + "?"
}

// SplitReply splits the reply to a chained query into its fields
func SplitReply(reply string) []string {
	return strings.Split(reply, FieldSeparator)
}
