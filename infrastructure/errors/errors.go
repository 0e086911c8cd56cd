// Package errors provides unified error handling for the entity kernel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of kernel error, matching a fixed HTTP status.
type Kind string

const (
	KindBadInput        Kind = "BadInput"
	KindSchemaMissing   Kind = "SchemaMissing"
	KindVerbUnknown     Kind = "VerbUnknown"
	KindUseActionForm   Kind = "UseActionForm"
	KindVerbDisabled    Kind = "VerbDisabled"
	KindNotFound        Kind = "NotFound"
	KindVersionConflict Kind = "VersionConflict"
	KindInternal        Kind = "Internal"
)

var httpStatusByKind = map[Kind]int{
	KindBadInput:        http.StatusBadRequest,
	KindSchemaMissing:   http.StatusBadRequest,
	KindVerbUnknown:     http.StatusBadRequest,
	KindUseActionForm:   http.StatusBadRequest,
	KindVerbDisabled:    http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindVersionConflict: http.StatusConflict,
	KindInternal:        http.StatusInternalServerError,
}

// ServiceError represents a structured kernel error with a kind, message, and HTTP status.
type ServiceError struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code for this error's kind.
func (e *ServiceError) HTTPStatus() int {
	if status, ok := httpStatusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates a new ServiceError of the given kind.
func New(kind Kind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a ServiceError of the given kind.
func Wrap(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// BadInput reports a malformed request: missing/invalid field, bad JSON,
// invalid PascalCase noun name, or a malformed sort/filter/atVersion expression.
func BadInput(reason string) *ServiceError {
	return New(KindBadInput, reason)
}

// SchemaMissing reports an entity operation against an undefined noun.
func SchemaMissing(noun string) *ServiceError {
	return New(KindSchemaMissing, fmt.Sprintf("noun %q is not registered", noun)).
		WithDetails("noun", noun)
}

// VerbUnknown reports an execute call for a verb the noun does not define.
func VerbUnknown(noun, verb string) *ServiceError {
	return New(KindVerbUnknown, fmt.Sprintf("verb %q is not defined on %q", verb, noun)).
		WithDetails("noun", noun).
		WithDetails("verb", verb)
}

// UseActionForm reports a verb supplied in its activity or event form instead
// of its canonical action form.
func UseActionForm(noun, form, action string) *ServiceError {
	return New(KindUseActionForm, fmt.Sprintf("use the action form %q instead of %q", action, form)).
		WithDetails("noun", noun).
		WithDetails("form", form).
		WithDetails("action", action)
}

// VerbDisabled reports a verb present in the noun's disabled set.
func VerbDisabled(noun, verb string) *ServiceError {
	return New(KindVerbDisabled, fmt.Sprintf("verb %q is disabled on %q", verb, noun)).
		WithDetails("noun", noun).
		WithDetails("verb", verb)
}

// NotFound reports a missing or soft-deleted entity, event, subscription, or hook.
func NotFound(resource, id string) *ServiceError {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", resource, id)).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// VersionConflict reports a failed optimistic-concurrency precondition.
func VersionConflict(expected, current int64) *ServiceError {
	return New(KindVersionConflict, "version conflict").
		WithDetails("expectedVersion", expected).
		WithDetails("currentVersion", current)
}

// Internal reports a storage failure or invariant violation.
func Internal(message string, err error) *ServiceError {
	return Wrap(KindInternal, message, err)
}

// IsServiceError reports whether err is, or wraps, a *ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a *ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error, defaulting to 500
// when err is not a *ServiceError.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
