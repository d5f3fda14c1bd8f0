package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/auth"
	"github.com/onnwee/livecast/backend/chat"
	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/playback"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
	"github.com/onnwee/livecast/backend/wallet"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// writeError renders err as {"error","type"} with the status its category maps to.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAppErr(err)
	status := ae.HTTPStatus()
	log := telemetry.LoggerWithCorr(r.Context())
	switch {
	case status >= 500:
		log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err), slog.String("component", "http"))
	default:
		log.Debug("request rejected", slog.String("path", r.URL.Path), slog.Any("err", err), slog.String("component", "http"))
	}
	if errors.Is(err, chat.ErrRateLimited) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: ae.Message, Type: "rate_limited"})
		return
	}
	writeJSON(w, status, errorBody{Error: ae.Message, Type: string(ae.Type)})
}

// toAppErr folds package sentinels into apperr categories.
func toAppErr(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("resource")
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict("resource already exists")
	case errors.Is(err, playback.ErrNoPlayback):
		return &apperr.Error{Type: apperr.TypeNotFound, Message: "playback not available", Cause: err}
	case errors.Is(err, playback.ErrNoRecording):
		return &apperr.Error{Type: apperr.TypeNotFound, Message: "recording not available", Cause: err}
	case errors.Is(err, playback.ErrNoThumbnail):
		return &apperr.Error{Type: apperr.TypeNotFound, Message: "thumbnail not available", Cause: err}
	case errors.Is(err, chat.ErrEmpty), errors.Is(err, chat.ErrTooLong):
		return &apperr.Error{Type: apperr.TypeValidation, Message: err.Error(), Cause: err}
	case errors.Is(err, chat.ErrRateLimited):
		return &apperr.Error{Type: apperr.TypeValidation, Message: "slow down", Cause: err}
	case errors.Is(err, wallet.ErrInvalidAddress):
		return &apperr.Error{Type: apperr.TypeValidation, Message: "invalid wallet address", Cause: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperr.External("livepeer", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.External("upstream", err)
	}
	var apiErr *livepeer.APIError
	if errors.As(err, &apiErr) {
		return apperr.External("livepeer", err)
	}
	return apperr.Internal("internal error", err)
}

// decodeJSON reads a bounded JSON body into v and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseInt64Query(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return n
}

func parseBoolQuery(r *http.Request, key string) *bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func pageQuery(r *http.Request) store.Page {
	return store.Page{Limit: parseIntQuery(r, "limit", 0), Offset: parseIntQuery(r, "offset", 0)}
}

// addressParam normalizes the {address} URL parameter.
func addressParam(r *http.Request) (string, error) {
	addr, err := wallet.Normalize(chi.URLParam(r, "address"))
	if err != nil {
		return "", apperr.Validation("invalid wallet address")
	}
	return addr, nil
}

// caller returns the authenticated wallet or "".
func caller(r *http.Request) string {
	addr, _ := auth.AddressFrom(r.Context())
	return addr
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}
