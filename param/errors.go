package param

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName is generated when a name is registered twice
	ErrDuplicateName = errors.New("duplicate parameter name")

	// ErrUnknown is generated when a name is not registered
	ErrUnknown = errors.New("unknown parameter")

	// ErrReadOnly is generated when a write targets a parameter that is not writable
	ErrReadOnly = errors.New("parameter is read only")

	// ErrOutOfRange is generated when a value falls outside a parameter's limits
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidChoice is generated when a discrete value is not one of the choices
	ErrInvalidChoice = errors.New("value is not one of the allowed choices")
)

// MismatchError is generated when the reply to a combined query does not
// have one field per queried parameter.  The instrument and the registry no
// longer agree on what was asked, so nothing in the reply can be trusted.
type MismatchError struct {
	Expected int
	Got      int

	// First is the name of the first parameter without a matching field,
	// blank if the reply had too many fields
	First string
}

func (e *MismatchError) Error() string {
	if e.First != "" {
		return fmt.Sprintf("combined reply has %d fields, expected %d; first unmatched parameter is %s", e.Got, e.Expected, e.First)
	}
	return fmt.Sprintf("combined reply has %d fields, expected %d", e.Got, e.Expected)
}

// ConversionError is generated when a reply cannot be coerced to the
// parameter's type
type ConversionError struct {
	Name string
	Raw  string
	Type Type
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %q to %s for %s: %v", e.Raw, e.Type, e.Name, e.Err)
}

// Unwrap returns the underlying parse error
func (e *ConversionError) Unwrap() error { return e.Err }
