// Package pv holds the process variables the engine publishes and exposes
// them, along with their setters, to the outside world.
package pv

import (
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/scopesync/param"
)

var (
	// ErrNotWritable is generated when a value is posted to a variable with no setter
	ErrNotWritable = errors.New("process variable is not writable")
)

// Record is the externally visible state of one process variable
type Record struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Type        string        `json:"type"`
	Units       string        `json:"units,omitempty"`
	Choices     []string      `json:"choices,omitempty"`
	Writable    bool          `json:"writable"`
	Limits      *param.Limits `json:"limits,omitempty"`
	Value       interface{}   `json:"value"`
	Time        time.Time     `json:"time"`
	Alarm       string        `json:"alarm"`
}

type entry struct {
	p     param.Parameter
	set   func(interface{}) error
	value interface{}
	ts    time.Time
	alarm param.AlarmState
}

func (e *entry) record() Record {
	return Record{
		Name:        e.p.Name,
		Description: e.p.Description,
		Type:        e.p.Type.String(),
		Units:       e.p.Units,
		Choices:     e.p.Choices,
		Writable:    e.set != nil,
		Limits:      e.p.Limits,
		Value:       e.value,
		Time:        e.ts,
		Alarm:       e.alarm.String(),
	}
}

// Store is a concurrency safe table of process variables
type Store struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry

	// AxisFor names the variable holding the time axis of an array variable;
	// used for CSV export.  nil means no array has a time axis.
	AxisFor func(name string) string
}

// NewStore returns an empty Store
func NewStore() *Store {
	return &Store{entries: map[string]*entry{}}
}

// Declare adds p to the store with its initial value.  set may be nil for
// read only variables.  Declaring a name twice replaces the metadata and
// setter but keeps the current value.
func (s *Store) Declare(p param.Parameter, set func(interface{}) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[p.Name]; ok {
		e.p = p
		e.set = set
		return
	}
	v := p.Value()
	s.entries[p.Name] = &entry{p: p, set: set, value: v, alarm: param.Alarm(p, v)}
	s.order = append(s.order, p.Name)
}

// Publish updates a variable.  With onlyIfChanged, a value equal to the
// current one is dropped and the timestamp is left alone.  Publishing an
// undeclared name declares it as a read only variable.
func (s *Store) Publish(name string, value interface{}, ts time.Time, onlyIfChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &entry{p: param.Parameter{Name: name}}
		s.entries[name] = e
		s.order = append(s.order, name)
	} else if onlyIfChanged && reflect.DeepEqual(e.value, value) {
		return
	}
	e.value = value
	e.ts = ts
	e.alarm = param.Alarm(e.p, value)
}

// Value returns the current value of a variable
func (s *Store) Value(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Get returns the full record of a variable
func (s *Store) Get(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return Record{}, false
	}
	return e.record(), true
}

// List returns every record in declaration order
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].record())
	}
	return out
}

// Set invokes the setter of a variable.  The store lock is released before
// the setter runs, since setters publish.
func (s *Store) Set(name string, value interface{}) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	var set func(interface{}) error
	if ok {
		set = e.set
	}
	s.mu.RUnlock()
	if !ok {
		return errors.Wrap(param.ErrUnknown, name)
	}
	if set == nil {
		return errors.Wrap(ErrNotWritable, name)
	}
	return set(value)
}
