package errs

import (
	"errors"
	"sync"
)

// Record is a last-error slot value.
type Record struct {
	Kind Kind
	Code int
}

// IsZero is true when nothing has been recorded.
func (r Record) IsZero() bool {
	return r.Kind == 0
}

func (r Record) String() string {
	if r.IsZero() {
		return "none"
	}
	return r.Kind.String() + ": " + r.Kind.Error()
}

// Registry holds the most recent failure of one execution context. Every
// failing operation records into its registry before returning, so a caller
// reading Last directly after a failure sees that failure.
type Registry struct {
	mu   sync.Mutex
	last Record
}

// Record stores kind and code as the latest failure.
func (r *Registry) Record(kind Kind, code int) {
	r.mu.Lock()
	r.last = Record{Kind: kind, Code: code}
	r.mu.Unlock()
}

// RecordError stores err if it carries a kind. It returns err unchanged.
func (r *Registry) RecordError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		r.Record(e.Kind, e.Code)
		return err
	}
	if kind, ok := KindOf(err); ok {
		r.Record(kind, kind.Code())
	}
	return err
}

// Last returns the latest recorded failure.
func (r *Registry) Last() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
