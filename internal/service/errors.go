package service

import (
	"errors"
	"fmt"

	"github.com/septivank/ev-telemetry-engine/internal/repository"
)

// ErrNotFound reports that a device has no current status row
var ErrNotFound = repository.ErrNotFound

// StorageError reports a failed or timed-out persistence operation
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageError wraps err unless it is already a StorageError
func storageError(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
