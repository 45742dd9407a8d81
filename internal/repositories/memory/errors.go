package memory

import "fmt"

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	op       string
	id       string
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	switch {
	case e.notFound:
		return fmt.Sprintf("%s: %s not found", e.op, e.id)
	case e.conflict:
		return fmt.Sprintf("%s: %s already exists", e.op, e.id)
	default:
		return e.op
	}
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) error { return &Error{op: op, id: id, notFound: true} }
func conflict(op, id string) error { return &Error{op: op, id: id, conflict: true} }
