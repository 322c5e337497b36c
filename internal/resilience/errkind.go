package resilience

import "github.com/rotisserie/eris"

// ValidationError wraps a per-row or per-request validation failure. It
// is always reported against the offending item and never aborts the
// surrounding batch or sync.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Detail
	}
	return e.Field + ": " + e.Detail
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, detail string) *ValidationError {
	return &ValidationError{Field: field, Detail: detail}
}

// PermanentInfraError wraps an error that is not worth retrying: invalid
// credentials, a malformed upstream response surviving retry exhaustion,
// or any failure that would not resolve itself on a later attempt. A
// sync or batch that hits one is marked failed.
type PermanentInfraError struct {
	Err error
}

func (e *PermanentInfraError) Error() string { return e.Err.Error() }
func (e *PermanentInfraError) Unwrap() error { return e.Err }

// NewPermanentInfraError wraps err as non-retryable.
func NewPermanentInfraError(err error) *PermanentInfraError {
	return &PermanentInfraError{Err: err}
}

// InvariantViolation marks a state that the data model's invariants say
// must be impossible — e.g. two active Matches for one canonical lead.
// The operation that detects one must abort rather than repair it
// silently; it is logged for human attention.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return "invariant violated: " + e.Invariant + ": " + e.Detail
}

// NewInvariantViolation builds an error reporting a broken invariant.
func NewInvariantViolation(invariant, detail string) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}

// WrapInfra classifies err as TransientError (via IsTransient) or wraps
// it as a PermanentInfraError, so callers can branch on error kind
// without repeating the IsTransient check at every call site.
func WrapInfra(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return eris.Wrapf(err, "%s: transient", op)
	}
	return NewPermanentInfraError(eris.Wrap(err, op))
}
