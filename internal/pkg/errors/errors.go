package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal")

	// ErrOwnerMissing is returned when a document write references an owner
	// that does not exist. The write is rejected, not silently dropped, so
	// callers can surface it.
	ErrOwnerMissing = errors.New("owner missing")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsOwnerMissing(err error) bool {
	return errors.Is(err, ErrOwnerMissing)
}
