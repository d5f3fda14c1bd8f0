package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	assert.NoError(t, probe(context.Background(), srv.Client(), srv.URL))

	code.Store(http.StatusServiceUnavailable)
	err := probe(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "Service Unavailable")

	assert.Error(t, probe(context.Background(), srv.Client(), "http://127.0.0.1:1/readyz"))
}
