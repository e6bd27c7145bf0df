package dispatch

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrFrozen is returned by every registration entry point once the engine
// has been frozen.
var ErrFrozen = errors.New("dispatch: engine is frozen")

// NoHandlerError reports that single dispatch found no handler anywhere in
// the chain and no "default" fallback.
type NoHandlerError struct {
	Op    string
	Chain TypeChain
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("dispatch: no handler for %q on chain %s", e.Op, e.Chain)
}

// IncompatibleTypeError reports that unification found no relationship
// between two tags. Field is set when the failure surfaced from record
// reconciliation, naming the offending field.
type IncompatibleTypeError struct {
	TagA  TypeTag
	TagB  TypeTag
	Field string
}

func (e *IncompatibleTypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("dispatch: field %q: incompatible types %q and %q", e.Field, e.TagA, e.TagB)
	}
	return fmt.Sprintf("dispatch: incompatible types %q and %q", e.TagA, e.TagB)
}

// NoConversionError reports that no registered or hierarchy-derived
// conversion path exists between two tags.
type NoConversionError struct {
	Source TypeTag
	Target TypeTag
}

func (e *NoConversionError) Error() string {
	return fmt.Sprintf("dispatch: no conversion from %q to %q", e.Source, e.Target)
}

// IncompatibleValueError reports that a conversion path exists but this
// specific payload violates the target's constraints. Distinct from
// NoConversionError: the type pair is compatible in general.
type IncompatibleValueError struct {
	Source TypeTag
	Target TypeTag
	Reason string
}

func (e *IncompatibleValueError) Error() string {
	return fmt.Sprintf("dispatch: value of type %q cannot convert to %q: %s", e.Source, e.Target, e.Reason)
}

// RegistrationConflictError reports a key registered twice, a unify pair
// left asymmetric at freeze time, or a hierarchy edge that would introduce
// a cycle.
type RegistrationConflictError struct {
	Key string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("dispatch: registration conflict for %s", e.Key)
}
