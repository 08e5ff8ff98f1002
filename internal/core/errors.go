package core

import (
	"errors"

	"poemhub/internal/logging"
	"poemhub/pkg/domain"
)

// DefaultErrorMessage is used when a failure carries no message of its own.
const DefaultErrorMessage = "操作失败"

// Deletion guard messages.
const (
	AuthorHasPoemsMessage   = "该作者还有诗词作品，无法删除"
	CategoryHasPoemsMessage = "该分类还有诗词作品，无法删除"
)

// ErrInvariant marks guard failures. GuardError matches it via errors.Is.
var ErrInvariant = errors.New("invariant violation")

// ServiceError is the normalized failure returned by every Service operation.
// Message is user-facing; Err keeps the cause for errors.Is/As.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.Err }

// GuardError reports a rejected delete: Count poems still reference the record.
type GuardError struct {
	Entity  domain.EntityType
	ID      string
	Count   int
	Message string
}

func (e *GuardError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrInvariant) succeed.
func (e *GuardError) Is(target error) bool { return target == ErrInvariant }

// HandleStoreError logs err and converts it into a *ServiceError whose message
// is the data service's message for remote failures, the error's own text
// otherwise, or defaultMessage when either is empty. It never
// returns nil and never retries.
func HandleStoreError(logger logging.Logger, err error, defaultMessage string) error {
	if logger == nil {
		logger = logging.Nop()
	}
	if defaultMessage == "" {
		defaultMessage = DefaultErrorMessage
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	logger.Error("data service error", "error", err, "default_message", defaultMessage)
	msg := defaultMessage
	var remote domain.ServiceMessager
	switch {
	case errors.As(err, &remote):
		if m := remote.ServiceMessage(); m != "" {
			msg = m
		}
	case err != nil && err.Error() != "":
		msg = err.Error()
	}
	return &ServiceError{Message: msg, Err: err}
}
