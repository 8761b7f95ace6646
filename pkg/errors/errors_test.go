package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorString(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "index missing"}
	assert.Equal(t, "NOT_FOUND: index missing", appErr.Error())

	wrapped := &AppError{Code: "INTERNAL_ERROR", Message: "boom", Err: fmt.Errorf("connection reset")}
	assert.Contains(t, wrapped.Error(), "connection reset")
}

func TestNotFound(t *testing.T) {
	err := NotFound("index", "catalog_index")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, `index "catalog_index" not found`, err.Message)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("bad request")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestInternal_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal(cause)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Equal(t, "an internal error occurred", err.Message)
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable("search engine", cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.Equal(t, "SERVICE_UNAVAILABLE", err.Code)
	assert.True(t, errors.Is(err, ErrServiceUnavail))
	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", InvalidInput("x"), http.StatusBadRequest},
		{"wrapped app error", fmt.Errorf("search: %w", NotFound("index", "x")), http.StatusNotFound},
		{"not found sentinel", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"invalid sentinel", ErrInvalidInput, http.StatusBadRequest},
		{"unavailable sentinel", ErrServiceUnavail, http.StatusServiceUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
