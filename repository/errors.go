package repository

import "errors"

// ErrNotFound is returned for lookups of datasets the catalog does not serve.
var ErrNotFound = errors.New("dataset not found")

// StoreError wraps a connection or query failure of the backing store.
// Callers recover locally where a degraded response is possible: the
// hierarchy engine prunes the subtree, the read service answers an empty
// frame.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
