package domain

import "errors"

var (
	// ErrUnauthenticated means the request carries no usable principal
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound means the principal resolved to no user record
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden means the principal lacks the required permission or role
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidAssignment covers duplicate assignments, system role mutation
	// and deletion of in-use roles or permissions
	ErrInvalidAssignment = errors.New("invalid assignment")
	// ErrStore means the persistence layer failed
	ErrStore = errors.New("store error")
	// ErrNotFound means a referenced role, permission or assignment does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidKey means a permission key or role name failed validation
	ErrInvalidKey = errors.New("invalid identifier")
)

// StoreError wraps a failed persistence operation.
// Both ErrStore and the underlying cause are reachable through errors.Is.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err, returning nil when err is nil
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}
