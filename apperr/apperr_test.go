package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Validation("bad %s", "input"), http.StatusBadRequest},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Forbidden("not owner"), http.StatusForbidden},
		{NotFound("stream"), http.StatusNotFound},
		{Conflict("taken"), http.StatusConflict},
		{Unavailable("uploads"), http.StatusServiceUnavailable},
		{External("livepeer", errors.New("boom")), http.StatusBadGateway},
		{Internal("oops", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatusUnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("profile"))
	if got := Status(wrapped); got != http.StatusNotFound {
		t.Errorf("Status() = %d, want 404", got)
	}
	if got := Status(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("Status() = %d, want 500", got)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	e := External("pinata", cause)
	if !errors.Is(e, cause) {
		t.Errorf("expected errors.Is to find cause")
	}
	if e.Error() != "external: pinata request failed: dial tcp: timeout" {
		t.Errorf("Error() = %q", e.Error())
	}
}
