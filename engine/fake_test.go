package engine

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/scpi"
	"github.com/nasa-jpl/scopesync/util"
)

type result struct {
	reply string
	err   error
}

func ok(reply string) result { return result{reply: reply} }

func timeout(cmd string) result {
	return result{err: &scpi.Error{Kind: scpi.TimedOut, Op: "query", Cmd: cmd, Err: os.ErrDeadlineExceeded}}
}

var errUndefinedHeader = errors.New("undefined header")

// fakeScope answers queries from per-command scripts.  The last scripted
// reply for a command repeats; unscripted queries get defaultReply.
type fakeScope struct {
	mu           sync.Mutex
	sent         []string
	replies      map[string][]result
	blocks       map[string][]int16
	writeErrs    map[string]error
	defaultReply string
}

func newFakeScope() *fakeScope {
	return &fakeScope{
		replies:   map[string][]result{},
		blocks:    map[string][]int16{},
		writeErrs: map[string]error{},
	}
}

func (f *fakeScope) script(cmd string, rs ...result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[cmd] = append(f.replies[cmd], rs...)
}

func (f *fakeScope) write(cmd string) error {
	f.sent = append(f.sent, cmd)
	return f.writeErrs[cmd]
}

func (f *fakeScope) query(cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	q := f.replies[cmd]
	switch len(q) {
	case 0:
		return f.defaultReply, nil
	case 1:
		return q[0].reply, q[0].err
	}
	f.replies[cmd] = q[1:]
	return q[0].reply, q[0].err
}

func (f *fakeScope) queryBinary(cmd string) ([]int16, error) {
	f.sent = append(f.sent, cmd)
	b, ok := f.blocks[cmd]
	if !ok {
		return nil, &scpi.Error{Kind: scpi.IOError, Op: "query binary", Cmd: cmd, Err: scpi.ErrMalformedBlock}
	}
	return b, nil
}

func (f *fakeScope) Write(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(cmd)
}

func (f *fakeScope) Query(cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query(cmd)
}

func (f *fakeScope) QueryBinary(cmd string) ([]int16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryBinary(cmd)
}

func (f *fakeScope) Exclusive(fn func(scpi.Transactor) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(fakeSession{f})
}

type fakeSession struct{ f *fakeScope }

func (s fakeSession) Write(cmd string) error                  { return s.f.write(cmd) }
func (s fakeSession) Query(cmd string) (string, error)        { return s.f.query(cmd) }
func (s fakeSession) QueryBinary(cmd string) ([]int16, error) { return s.f.queryBinary(cmd) }

// commands returns a copy of everything sent so far
func (f *fakeScope) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeScope) count(cmd string) int {
	n := 0
	for _, c := range f.commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeScope) index(cmd string) int {
	for i, c := range f.commands() {
		if c == cmd {
			return i
		}
	}
	return -1
}

type publication struct {
	Name  string
	Value interface{}
	TS    time.Time
}

type fakeBridge struct {
	mu        sync.Mutex
	values    map[string]interface{}
	published []publication
	setters   map[string]func(interface{}) error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{values: map[string]interface{}{}, setters: map[string]func(interface{}) error{}}
}

func (b *fakeBridge) Declare(p param.Parameter, set func(interface{}) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[p.Name] = p.Value()
	if set != nil {
		b.setters[p.Name] = set
	}
}

func (b *fakeBridge) Publish(name string, value interface{}, ts time.Time, onlyIfChanged bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if onlyIfChanged && reflect.DeepEqual(b.values[name], value) {
		return
	}
	b.values[name] = value
	b.published = append(b.published, publication{name, value, ts})
}

func (b *fakeBridge) Value(name string) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[name]
	return v, ok
}

func (b *fakeBridge) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, p := range b.published {
		out[i] = p.Name
	}
	return out
}

func (b *fakeBridge) publishedCount(name string) int {
	n := 0
	for _, s := range b.names() {
		if s == name {
			n++
		}
	}
	return n
}

func (b *fakeBridge) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadyInterval = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PeriodicInterval = time.Hour
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeScope, *fakeBridge, *bytes.Buffer) {
	t.Helper()
	scope := newFakeScope()
	bridge := newFakeBridge()
	var buf bytes.Buffer
	e, err := New(scope, bridge, cfg, util.NewLogger(&buf, "", 0), NewMetrics(nil))
	if err != nil {
		t.Fatal(err)
	}
	return e, scope, bridge, &buf
}
