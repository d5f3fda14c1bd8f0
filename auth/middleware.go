package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const addressKey contextKey = "wallet_address"

// Middleware reads "Authorization: Bearer <jwt>" and stores the wallet address in the request
// context. With required=false an absent token passes through anonymously, but a present and
// invalid token is still rejected. A nil Verifier rejects required routes with 503.
func Middleware(v *Verifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if required {
					if v == nil {
						writeAuthError(w, http.StatusServiceUnavailable, "unavailable", "authentication is not configured")
						return
					}
					writeAuthError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if v == nil {
				writeAuthError(w, http.StatusServiceUnavailable, "unavailable", "authentication is not configured")
				return
			}
			addr, err := v.Verify(token)
			if err != nil {
				slog.Debug("identity token rejected", slog.Any("err", err), slog.String("component", "auth"))
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAddress(r.Context(), addr)))
		})
	}
}

// WithAddress returns a context carrying addr as the authenticated wallet.
func WithAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, addressKey, addr)
}

// AddressFrom returns the authenticated wallet address, if any.
func AddressFrom(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(addressKey).(string)
	return a, ok && a != ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "type": typ})
}
