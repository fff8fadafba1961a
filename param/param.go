/*Package param holds the registry of named instrument parameters.

A Parameter binds a name to an SCPI command template, a storage type and a
setter handler.  The Registry owns every Parameter, builds the chained query
that reads all of their settings in one round trip, and applies the reply,
reporting only the parameters whose value actually changed.
*/
package param

import (
	"fmt"
)

// Kind is the role a parameter plays
type Kind int

const (
	// Discrete parameters take one of a fixed set of string values
	Discrete Kind = iota

	// Scalar parameters hold a single number
	Scalar

	// Array parameters hold a sequence of numbers, e.g. a waveform
	Array

	// Status parameters are read-only strings reported by the instrument or process
	Status
)

func (k Kind) String() string {
	switch k {
	case Discrete:
		return "discrete"
	case Scalar:
		return "scalar"
	case Array:
		return "array"
	case Status:
		return "status"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Type is the Go type a parameter's value is stored as
type Type int

const (
	// String values are stored as string
	String Type = iota

	// Float values are stored as float64
	Float

	// Int values are stored as int
	Int

	// FloatArray values are stored as []float64
	FloatArray
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Float:
		return "float64"
	case Int:
		return "int"
	case FloatArray:
		return "[]float64"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// zero returns the zero value of the type
func (t Type) zero() interface{} {
	switch t {
	case Float:
		return 0.
	case Int:
		return 0
	case FloatArray:
		return []float64{}
	default:
		return ""
	}
}

// Limits is a closed interval [Low, High]
type Limits struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains returns true if Low <= x <= High
func (l Limits) Contains(x float64) bool {
	return x >= l.Low && x <= l.High
}

// AlarmState is the alarm severity of a value against alarm limits
type AlarmState int

const (
	// NoAlarm means the value is within limits, or there are none
	NoAlarm AlarmState = iota

	// LowAlarm means the value is below the low limit
	LowAlarm

	// HighAlarm means the value is above the high limit
	HighAlarm
)

func (a AlarmState) String() string {
	switch a {
	case LowAlarm:
		return "low"
	case HighAlarm:
		return "high"
	default:
		return "none"
	}
}

// Check classifies x against the limits
func (l *Limits) Check(x float64) AlarmState {
	switch {
	case l == nil:
		return NoAlarm
	case x < l.Low:
		return LowAlarm
	case x > l.High:
		return HighAlarm
	default:
		return NoAlarm
	}
}

// Alarm evaluates v against the alarm limits of p.  Non-numeric values never
// alarm.
func Alarm(p Parameter, v interface{}) AlarmState {
	switch n := v.(type) {
	case float64:
		return p.Alarm.Check(n)
	case int:
		return p.Alarm.Check(float64(n))
	default:
		return NoAlarm
	}
}

// Parameter is a named configuration or measurement slot
type Parameter struct {
	// Name uniquely identifies the parameter
	Name string

	// Description is a human readable blurb
	Description string

	Kind Kind
	Type Type

	// Command is the SCPI command template, e.g. "CHANnel1:SCALe".
	// Lowercase letters are optional on the wire and dropped from queries.
	// A leading NonQueryable marker keeps the command out of the settings query.
	Command string

	Writable bool
	Units    string

	// Choices enumerates the legal values of a Discrete parameter
	Choices []string

	// Aliases maps instrument replies onto choices, e.g. "1" => "ON"
	Aliases map[string]string

	// Limits bounds the values a setter accepts
	Limits *Limits

	// Alarm holds optional low/high alarm limits for published values
	Alarm *Limits

	// Handler is how external writes are carried out
	Handler Handler

	// Initial is the value before the first read; the zero of Type if nil
	Initial interface{}

	value interface{}
	raw   string
}

// Value returns the current value of the parameter
func (p *Parameter) Value() interface{} {
	return p.value
}

// Raw returns the last raw reply the parameter was updated from
func (p *Parameter) Raw() string {
	return p.raw
}

// Queryable returns true if the parameter participates in the settings query
func (p *Parameter) Queryable() bool {
	return p.Command != "" && !IsNonQueryable(p.Command)
}

// NonQueryable holds the leading characters that keep a command out of the
// combined settings query
const NonQueryable = "!*"

// IsNonQueryable returns true if cmd starts with a non-queryable marker
func IsNonQueryable(cmd string) bool {
	if cmd == "" {
		return false
	}
	for _, m := range NonQueryable {
		if rune(cmd[0]) == m {
			return true
		}
	}
	return false
}

// HandlerKind is the tag of a Handler
type HandlerKind int

const (
	// NoOp handlers ignore writes
	NoOp HandlerKind = iota

	// DirectWrite handlers store and publish the value without touching the instrument
	DirectWrite

	// TemplateWrite handlers send "<command> <value>" to the instrument
	TemplateWrite

	// Custom handlers call Func
	Custom
)

func (k HandlerKind) String() string {
	switch k {
	case NoOp:
		return "no-op"
	case DirectWrite:
		return "direct-write"
	case TemplateWrite:
		return "template-write"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("HandlerKind(%d)", int(k))
	}
}

// SetFunc carries out a write of value to the parameter p
type SetFunc func(p *Parameter, value interface{}) error

// Handler is a tagged setter; Func is only used when Kind is Custom
type Handler struct {
	Kind HandlerKind
	Func SetFunc
}

// Direct returns a DirectWrite handler
func Direct() Handler { return Handler{Kind: DirectWrite} }

// Template returns a TemplateWrite handler
func Template() Handler { return Handler{Kind: TemplateWrite} }

// Func returns a Custom handler calling f
func Func(f SetFunc) Handler { return Handler{Kind: Custom, Func: f} }

// ChannelTemplate generates one Parameter per channel.  The generated name is
// c<NN><Suffix> with NN the two digit channel index, and the command is
// CommandFormat formatted with the channel index.
type ChannelTemplate struct {
	Suffix        string
	CommandFormat string
	Proto         Parameter
}

// ChannelName returns the name of the channel-scoped parameter with suffix
func ChannelName(ch int, suffix string) string {
	return fmt.Sprintf("c%02d%s", ch, suffix)
}

// Instantiate produces the Parameter for channel ch
func (t ChannelTemplate) Instantiate(ch int) Parameter {
	p := t.Proto
	p.Name = ChannelName(ch, t.Suffix)
	if t.CommandFormat != "" {
		p.Command = fmt.Sprintf(t.CommandFormat, ch)
	}
	if p.Choices != nil {
		p.Choices = append([]string(nil), p.Choices...)
	}
	return p
}

// Expand instantiates every template for channels 1..n, channel-major
func Expand(templates []ChannelTemplate, n int) []Parameter {
	out := make([]Parameter, 0, n*len(templates))
	for ch := 1; ch <= n; ch++ {
		for _, t := range templates {
			out = append(out, t.Instantiate(ch))
		}
	}
	return out
}
