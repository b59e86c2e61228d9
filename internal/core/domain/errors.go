package domain

import "errors"

// Broker error kinds. Every failure that crosses the service boundary is
// tagged with exactly one of these so callers can branch on errors.Is
// without parsing message text.
var (
	ErrConfigNotFound = errors.New("no connection configuration found")
	ErrDecryption     = errors.New("decryption failed")
	ErrConnection     = errors.New("connection failed")
	ErrValidation     = errors.New("validation failed")
	ErrTimeout        = errors.New("query timed out")
	ErrSchema         = errors.New("schema introspection failed")
)

// kindError tags a cause with one of the kind sentinels above. The cause
// stays reachable through Unwrap so driver error text survives intact.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Kind wraps err with the given kind sentinel. A nil err returns the
// sentinel itself.
func Kind(kind, err error) error {
	if err == nil {
		return kind
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, cause: err}
}
