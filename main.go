// Command backend is the livecast API server.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Wires the video platform, pinning, object storage and ENS clients that are configured.
//   - Starts the stream reconciler and the HTTP API.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/livecast/backend/auth"
	"github.com/onnwee/livecast/backend/cache"
	"github.com/onnwee/livecast/backend/chat"
	"github.com/onnwee/livecast/backend/config"
	"github.com/onnwee/livecast/backend/crypto"
	"github.com/onnwee/livecast/backend/db"
	"github.com/onnwee/livecast/backend/ens"
	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/mint"
	"github.com/onnwee/livecast/backend/objstore"
	"github.com/onnwee/livecast/backend/pinning"
	"github.com/onnwee/livecast/backend/playback"
	"github.com/onnwee/livecast/backend/server"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/streamsync"
	"github.com/onnwee/livecast/backend/telemetry"
)

func main() {
	// local dev convenience only; production relies on real env
	_ = godotenv.Load("backend/.env")

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("livecast", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("backend exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(ctx context.Context, cfg *config.Config) error {
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// versioned migrations first; the embedded schema covers environments without the migration files
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database.DB); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database.DB); err != nil {
			return err
		}
	}

	var keys *crypto.Sealer
	if cfg.EncryptionKey != "" {
		if keys, err = crypto.NewSealer(cfg.EncryptionKey); err != nil {
			return err
		}
	} else {
		slog.Warn("ENCRYPTION_KEY not set; stream keys are stored in plaintext")
	}
	st := store.New(database, keys)

	c, err := cache.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close cache", slog.Any("err", err))
		}
	}()
	slog.Info("cache ready", slog.String("backend", c.Backend()))

	deps := server.Deps{
		Config: cfg,
		DB:     database,
		Store:  st,
		Cache:  c,
		Chat:   chat.NewService(st, cfg.ChatRatePerSec, cfg.ChatBurst),
		ENS:    ens.New(cfg.ENSAPIURL, c, 0),
	}

	if cfg.AuthEnabled() {
		if deps.Verifier, err = auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthJWTAudience); err != nil {
			return err
		}
	} else {
		slog.Warn("AUTH_JWT_SECRET not set; authenticated routes are unavailable")
	}

	if cfg.LivepeerEnabled() {
		if deps.Livepeer, err = livepeer.New(livepeer.Options{
			APIKey:         cfg.LivepeerAPIKey,
			APIURL:         cfg.LivepeerAPIURL,
			CDNURL:         cfg.LivepeerCDNURL,
			MaxConcurrency: cfg.VendorMaxConcurrency,
		}); err != nil {
			return err
		}
		deps.Playback = playback.New(deps.Livepeer, st, c, cfg.CacheTTL)
		deps.Sync = streamsync.New(st, deps.Playback, database.DB, cfg.SyncInterval)
	} else {
		slog.Warn("LIVEPEER_API_KEY not set; streaming features are disabled")
	}

	var pinner mint.Pinner
	if cfg.PinningEnabled() {
		p, err := pinning.New(cfg.PinataJWT, cfg.PinataAPIURL, cfg.IPFSGatewayURL, nil)
		if err != nil {
			return err
		}
		pinner = p
	}
	var media mint.Media
	if deps.Playback != nil {
		media = deps.Playback
	}
	deps.Mint = mint.NewService(st, pinner, media)
	deps.Mint.SiteURL = cfg.SiteURL

	switch {
	case cfg.UploadsEnabled():
		gcs, err := objstore.NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return err
		}
		deps.Uploads = gcs
	case cfg.IsDev():
		slog.Info("GCS_BUCKET not set; serving uploads from memory")
		deps.Uploads = objstore.NewMemory(cfg.PublicURL + "/uploads")
	}

	if os.Getenv("ENABLE_PPROF") == "1" {
		go servePprof()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx, deps) })
	if deps.Sync != nil {
		g.Go(func() error {
			deps.Sync.Run(gctx)
			return nil
		})
	}
	return g.Wait()
}

func servePprof() {
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	slog.Info("pprof profiling enabled", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil, // default mux exposes /debug/pprof
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("pprof server error", slog.Any("err", err))
	}
}
