package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups, updates and deletes that matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks unique-constraint violations (duplicate author name).
	ErrConflict = errors.New("record conflicts with an existing row")
	// ErrReferenced marks deletes rejected because other rows still point at the target.
	ErrReferenced = errors.New("record still referenced")
	// ErrNotConfigured is returned by every call on a data service handle
	// built without a URL or access key.
	ErrNotConfigured = errors.New("data service not configured")
)

// ServiceMessager is implemented by errors decoded from a data service
// response. ServiceMessage is empty when the response carried no message.
type ServiceMessager interface {
	ServiceMessage() string
}

// NotFoundError names the missing record. It matches ErrNotFound via errors.Is.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) succeed.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
