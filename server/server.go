// Package server exposes the HTTP API: health, metrics, profiles, social graph, streams,
// playback, chat, uploads, minting, webhooks and admin routes. It applies CORS, injects
// correlation ids and opens a tracing span per request.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/livecast/backend/auth"
)

// NewRouter returns the HTTP handler with all routes. ctx bounds the rate limiter sweeper.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	h := NewHandlers(d)
	limiter := newIPRateLimiter(ctx, d.Config)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestContext)
	r.Use(withCORS(newCORSConfig(d.Config)))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	r.Post("/webhooks/livepeer", h.HandleLivepeerWebhook)
	r.Get("/uploads/*", h.HandleServeUpload)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(d.Verifier, false))

		r.Route("/profiles", func(r chi.Router) {
			r.With(h.requireAuth).Put("/me", h.HandleUpdateProfile)
			r.Get("/by-username/{username}", h.HandleGetProfileByUsername)
			r.Get("/{address}", h.HandleGetProfile)
			r.Get("/{address}/streams", h.HandleProfileStreams)
			r.Get("/{address}/followers", h.HandleFollowers)
			r.Get("/{address}/following", h.HandleFollowing)
			r.Get("/{address}/reviews", h.HandleListReviews)
			r.With(h.requireAuth).Post("/{address}/reviews", h.HandleCreateReview)
		})

		r.Get("/follows/{address}", h.HandleFollowState)
		r.With(h.requireAuth).Post("/follows/{address}", h.HandleFollow)
		r.With(h.requireAuth).Delete("/follows/{address}", h.HandleUnfollow)

		r.Get("/categories", h.HandleListCategories)
		r.Get("/categories/{slug}", h.HandleGetCategory)

		r.Route("/streams", func(r chi.Router) {
			r.Get("/", h.HandleListStreams)
			r.With(h.requireAuth).Post("/", h.HandleCreateStream)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetStream)
				r.With(h.requireAuth).Patch("/", h.HandleUpdateStream)
				r.With(h.requireAuth).Delete("/", h.HandleDeleteStream)

				r.Get("/playback", h.HandlePlayback)
				r.Get("/recording", h.HandleRecording)
				r.Get("/thumbnail", h.HandleThumbnail)
				r.Get("/views", h.HandleViews)
				r.Post("/views", h.HandleRecordView)

				r.Get("/like", h.HandleLikeState)
				r.With(h.requireAuth).Post("/like", h.HandleLike)
				r.With(h.requireAuth).Delete("/like", h.HandleUnlike)

				r.Get("/chat", h.HandleListChat)
				r.With(h.requireAuth).Post("/chat", h.HandlePostChat)
				r.Get("/chat/stream", h.HandleChatSSE)

				r.Get("/mint", h.HandleMintStatus)
				r.With(h.requireAuth).Post("/mint", h.HandlePrepareMint)
				r.With(h.requireAuth).Patch("/mint", h.HandleConfirmMint)
			})
		})

		r.With(h.requireAuth, limiter.middleware).Post("/uploads", h.HandleUpload)

		r.Get("/ens/{address}", h.HandleENS)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(newAuthConfig(d.Config)))
		r.Use(limiter.middleware)
		r.Get("/status", h.HandleAdminStatus)
		r.Post("/categories", h.HandleCreateCategory)
		r.Post("/streams/{id}/resync", h.HandleAdminResync)
	})

	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, d Deps) error {
	srv := &http.Server{
		Addr:              d.Config.HTTPAddr,
		Handler:           NewRouter(ctx, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
