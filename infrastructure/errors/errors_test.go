package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(KindBadInput, "test message"),
			want: "[BadInput] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(KindInternal, "test message", errors.New("underlying")),
			want: "[Internal] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(KindInternal, "test", underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(KindBadInput, "test")
	err.WithDetails("field", "stage").WithDetails("reason", "unknown enum value")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "stage" {
		t.Errorf("Details[field] = %v, want stage", err.Details["field"])
	}
}

func TestBadInput(t *testing.T) {
	err := BadInput("invalid sort expression")
	if err.Kind != KindBadInput {
		t.Errorf("Kind = %v, want %v", err.Kind, KindBadInput)
	}
	if err.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want %d", err.HTTPStatus(), http.StatusBadRequest)
	}
}

func TestSchemaMissing(t *testing.T) {
	err := SchemaMissing("Contact")
	if err.Kind != KindSchemaMissing {
		t.Errorf("Kind = %v, want %v", err.Kind, KindSchemaMissing)
	}
	if err.Details["noun"] != "Contact" {
		t.Errorf("Details[noun] = %v, want Contact", err.Details["noun"])
	}
	if err.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want %d", err.HTTPStatus(), http.StatusBadRequest)
	}
}

func TestVerbUnknown(t *testing.T) {
	err := VerbUnknown("Contact", "teleport")
	if err.Kind != KindVerbUnknown {
		t.Errorf("Kind = %v, want %v", err.Kind, KindVerbUnknown)
	}
	if err.Details["verb"] != "teleport" {
		t.Errorf("Details[verb] = %v, want teleport", err.Details["verb"])
	}
}

func TestUseActionForm(t *testing.T) {
	err := UseActionForm("Contact", "qualifying", "qualify")
	if err.Kind != KindUseActionForm {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUseActionForm)
	}
	if err.Details["action"] != "qualify" {
		t.Errorf("Details[action] = %v, want qualify", err.Details["action"])
	}
}

func TestVerbDisabled(t *testing.T) {
	err := VerbDisabled("Contact", "delete")
	if err.Kind != KindVerbDisabled {
		t.Errorf("Kind = %v, want %v", err.Kind, KindVerbDisabled)
	}
	if err.HTTPStatus() != http.StatusForbidden {
		t.Errorf("HTTPStatus() = %d, want %d", err.HTTPStatus(), http.StatusForbidden)
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("entity", "contact_abc123")
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if err.HTTPStatus() != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want %d", err.HTTPStatus(), http.StatusNotFound)
	}
	if err.Details["id"] != "contact_abc123" {
		t.Errorf("Details[id] = %v, want contact_abc123", err.Details["id"])
	}
}

func TestVersionConflict(t *testing.T) {
	err := VersionConflict(1, 2)
	if err.Kind != KindVersionConflict {
		t.Errorf("Kind = %v, want %v", err.Kind, KindVersionConflict)
	}
	if err.HTTPStatus() != http.StatusConflict {
		t.Errorf("HTTPStatus() = %d, want %d", err.HTTPStatus(), http.StatusConflict)
	}
	if err.Details["expectedVersion"] != int64(1) {
		t.Errorf("Details[expectedVersion] = %v, want 1", err.Details["expectedVersion"])
	}
	if err.Details["currentVersion"] != int64(2) {
		t.Errorf("Details[currentVersion] = %v, want 2", err.Details["currentVersion"])
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("storage connection failed")
	err := Internal("internal error", underlying)

	if err.Kind != KindInternal {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInternal)
	}
	if err.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("HTTPStatus() = %d, want %d", err.HTTPStatus(), http.StatusInternalServerError)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "service error", err: New(KindInternal, "test"), want: true},
		{name: "standard error", err: errors.New("standard error"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(KindInternal, "test")
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{name: "service error", err: serviceErr, want: serviceErr},
		{name: "standard error", err: standardErr, want: nil},
		{name: "nil error", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "service error", err: New(KindNotFound, "test"), want: http.StatusNotFound},
		{name: "standard error", err: errors.New("standard error"), want: http.StatusInternalServerError},
		{name: "nil error", err: nil, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
