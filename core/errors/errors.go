package errors

import (
	"errors"
	"fmt"
)

type Category string

const (
	CategoryInvalidInput      Category = "invalid_input"
	CategoryVerification      Category = "verification_failed"
	CategoryDependencyMissing Category = "dependency_missing"
	CategoryIOFailure         Category = "io_failure"
	CategoryNetworkTransient  Category = "network_transient"
	CategoryNetworkPermanent  Category = "network_permanent"
	CategoryInternalFailure   Category = "internal_failure"
)

// Categories lists every supported category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryInvalidInput,
		CategoryVerification,
		CategoryDependencyMissing,
		CategoryIOFailure,
		CategoryNetworkTransient,
		CategoryNetworkPermanent,
		CategoryInternalFailure,
	}
}

func IsKnownCategory(category Category) bool {
	for _, known := range Categories() {
		if known == category {
			return true
		}
	}
	return false
}

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// Newf builds a classified, non-retryable error from a format string.
func Newf(category Category, code, hint, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), category, code, hint, false)
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
