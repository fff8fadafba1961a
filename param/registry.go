package param

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/scopesync/scpi"
)

// Registry holds every known parameter in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	order  []*Parameter
	byName map[string]*Parameter
}

// NewRegistry returns an empty Registry
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Parameter{}}
}

// Register inserts p by name
func (r *Registry) Register(p Parameter) error {
	if p.Name == "" {
		return errors.New("parameter has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name]; exists {
		return errors.Wrap(ErrDuplicateName, p.Name)
	}
	if p.Initial != nil {
		p.value = p.Initial
	} else {
		p.value = p.Type.zero()
	}
	rec := p
	r.order = append(r.order, &rec)
	r.byName[p.Name] = &rec
	return nil
}

// RegisterAll registers every parameter, stopping at the first error
func (r *Registry) RegisterAll(ps []Parameter) error {
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered parameters
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Lookup returns a copy of the named parameter
func (r *Registry) Lookup(name string) (Parameter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return Parameter{}, false
	}
	return *p, true
}

// Parameters returns copies of every parameter in registration order
func (r *Registry) Parameters() []Parameter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Parameter, len(r.order))
	for i, p := range r.order {
		out[i] = *p
	}
	return out
}

// Value returns the current value of the named parameter
func (r *Registry) Value(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return p.value, true
}

// Store replaces the value of the named parameter.  The value must already
// be of the parameter's type; see Coerce.
func (r *Registry) Store(name string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	if !ok {
		return errors.Wrap(ErrUnknown, name)
	}
	p.value = value
	return nil
}

// SetterFor returns the handler registered for name.  ok is false if the
// parameter is unknown or its handler is a no-op.
func (r *Registry) SetterFor(name string) (h Handler, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, exists := r.byName[name]
	if !exists || p.Handler.Kind == NoOp {
		return Handler{}, false
	}
	return p.Handler, true
}

// Entry is one sub-query of a CombinedQuery
type Entry struct {
	Name     string
	Fragment string
}

// CombinedQuery is the ordered list of sub-queries that read every
// queryable parameter in one round trip
type CombinedQuery struct {
	Entries []Entry
}

// Len returns the number of fields the reply must have
func (q CombinedQuery) Len() int { return len(q.Entries) }

// String returns the chained query sent on the wire
func (q CombinedQuery) String() string {
	frags := make([]string, len(q.Entries))
	for i, e := range q.Entries {
		frags[i] = e.Fragment
	}
	return scpi.Chain(frags...)
}

// BuildCombinedQuery assembles the query for every queryable parameter.
// Each fragment is checked once with validate (given the fragment with the
// query suffix appended); any failure is returned and the query must not be
// used.  validate may be nil.
func (r *Registry) BuildCombinedQuery(validate func(query string) error) (CombinedQuery, error) {
	r.mu.RLock()
	params := make([]Parameter, 0, len(r.order))
	for _, p := range r.order {
		if p.Queryable() {
			params = append(params, *p)
		}
	}
	r.mu.RUnlock()

	var q CombinedQuery
	for _, p := range params {
		frag := scpi.Canonical(p.Command)
		if validate != nil {
			if err := validate(frag + "?"); err != nil {
				return CombinedQuery{}, errors.Wrapf(err, "invalid command %s? for %s", frag, p.Name)
			}
		}
		q.Entries = append(q.Entries, Entry{Name: p.Name, Fragment: frag})
	}
	return q, nil
}

// Change is a parameter whose value changed
type Change struct {
	Name  string
	Value interface{}
}

// ApplyCombinedReply splits the reply to q and updates every parameter whose
// value differs from the reply.  The changed parameters are returned in
// query order.  On any error no parameter is modified.
func (r *Registry) ApplyCombinedReply(q CombinedQuery, reply string) ([]Change, error) {
	fields := scpi.SplitReply(reply)
	if len(fields) != q.Len() {
		e := &MismatchError{Expected: q.Len(), Got: len(fields)}
		if len(fields) < q.Len() {
			e.First = q.Entries[len(fields)].Name
		}
		return nil, e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	type pending struct {
		p     *Parameter
		value interface{}
		raw   string
	}
	updates := make([]pending, 0, len(fields))
	for i, e := range q.Entries {
		p, ok := r.byName[e.Name]
		if !ok {
			return nil, errors.Wrap(ErrUnknown, e.Name)
		}
		raw := strings.TrimSpace(fields[i])
		v, err := parseReply(p, raw)
		if err != nil {
			return nil, err
		}
		if !equal(p.value, v) {
			updates = append(updates, pending{p, v, raw})
		}
	}

	changes := make([]Change, len(updates))
	for i, u := range updates {
		u.p.value = u.value
		u.p.raw = u.raw
		changes[i] = Change{Name: u.p.Name, Value: u.value}
	}
	return changes, nil
}

func parseReply(p *Parameter, raw string) (interface{}, error) {
	switch p.Type {
	case String:
		if alias, ok := p.Aliases[raw]; ok {
			return alias, nil
		}
		return raw, nil
	case Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ConversionError{Name: p.Name, Raw: raw, Type: p.Type, Err: err}
		}
		return f, nil
	case Int:
		i, err := parseInt(raw)
		if err != nil {
			return nil, &ConversionError{Name: p.Name, Raw: raw, Type: p.Type, Err: err}
		}
		return i, nil
	default:
		return nil, &ConversionError{Name: p.Name, Raw: raw, Type: p.Type, Err: errors.New("type cannot be read from a reply")}
	}
}

// parseInt accepts integer text, or float text that holds an integral
// value, which is how many instruments report counts (1.0E+04)
func parseInt(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err == nil {
		return i, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%s is not an integer", s)
	}
	return int(f), nil
}

func equal(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case []float64:
		bv, ok := b.([]float64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
}

// Coerce converts a value supplied by a client to the parameter's type and
// checks it against the parameter's choices and limits
func Coerce(p Parameter, v interface{}) (interface{}, error) {
	var (
		out interface{}
		err error
	)
	switch p.Type {
	case String:
		out, err = toString(v)
	case Float:
		out, err = toFloat(v)
	case Int:
		var f float64
		f, err = toFloat(v)
		if err == nil {
			if f != math.Trunc(f) {
				err = fmt.Errorf("%v is not an integer", v)
			}
			out = int(f)
		}
	case FloatArray:
		out, err = toFloats(v)
	}
	if err != nil {
		return nil, &ConversionError{Name: p.Name, Raw: fmt.Sprint(v), Type: p.Type, Err: err}
	}

	if p.Kind == Discrete && len(p.Choices) > 0 {
		s := fmt.Sprint(out)
		found := false
		for _, c := range p.Choices {
			if c == s {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Wrapf(ErrInvalidChoice, "%s=%s, choices %v", p.Name, s, p.Choices)
		}
	}
	if p.Limits != nil {
		var x float64
		switch n := out.(type) {
		case float64:
			x = n
		case int:
			x = float64(n)
		default:
			return out, nil
		}
		if !p.Limits.Contains(x) {
			return nil, errors.Wrapf(ErrOutOfRange, "%s=%v, limits [%v, %v]", p.Name, x, p.Limits.Low, p.Limits.High)
		}
	}
	return out, nil
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'G', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	default:
		return "", fmt.Errorf("cannot use %T as a string", v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("cannot use %T as a number", v)
	}
}

func toFloats(v interface{}) ([]float64, error) {
	switch a := v.(type) {
	case []float64:
		return append([]float64(nil), a...), nil
	case []interface{}:
		out := make([]float64, len(a))
		for i := range a {
			f, err := toFloat(a[i])
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot use %T as an array", v)
	}
}
