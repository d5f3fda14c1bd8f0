package livepeer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sony/gobreaker"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"429", &APIError{Status: 429}, ErrorClassRetryable},
		{"503", &APIError{Status: 503}, ErrorClassRetryable},
		{"404", &APIError{Status: 404}, ErrorClassFatal},
		{"422 wrapped", fmt.Errorf("create: %w", &APIError{Status: 422}), ErrorClassFatal},
		{"canceled", context.Canceled, ErrorClassFatal},
		{"deadline", context.DeadlineExceeded, ErrorClassRetryable},
		{"breaker open", gobreaker.ErrOpenState, ErrorClassRetryable},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrorClassRetryable},
		{"other", errors.New("mystery"), ErrorClassRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcomeLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&APIError{Status: 404}, "not_found"},
		{&APIError{Status: 400}, "client_error"},
		{gobreaker.ErrOpenState, "circuit_open"},
		{&APIError{Status: 500}, "error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAPIErrorIsNotFoundOnlyFor404(t *testing.T) {
	if errors.Is(&APIError{Status: 500}, ErrNotFound) {
		t.Error("500 should not match ErrNotFound")
	}
	if !errors.Is(&APIError{Status: 404}, ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
}
