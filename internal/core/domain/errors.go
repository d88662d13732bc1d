package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrDependencyTimeout     = errors.New("dependency timeout")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrWorkflowNotFound      = errors.New("workflow not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCategory tells callers whether a failure is worth retrying.
type ErrorCategory string

const (
	CategoryValidation            ErrorCategory = "validation"
	CategoryDependencyTimeout     ErrorCategory = "dependency_timeout"
	CategoryDependencyUnavailable ErrorCategory = "dependency_unavailable"
	CategorySecurity              ErrorCategory = "security"
	CategoryUnknown               ErrorCategory = "unknown"
)

func CategoryOf(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrDependencyTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryDependencyTimeout
	case errors.Is(err, ErrDependencyUnavailable):
		return CategoryDependencyUnavailable
	case errors.Is(err, ErrUnauthorized):
		return CategorySecurity
	default:
		return CategoryUnknown
	}
}

// RetryRecommended reports whether a caller should retry a failure of the
// given category. Unknown failures are conservatively treated as retryable.
func (c ErrorCategory) RetryRecommended() bool {
	switch c {
	case CategoryValidation, CategorySecurity:
		return false
	default:
		return true
	}
}
