package server

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onnwee/livecast/backend/auth"
	"github.com/onnwee/livecast/backend/cache"
	"github.com/onnwee/livecast/backend/chat"
	"github.com/onnwee/livecast/backend/config"
	"github.com/onnwee/livecast/backend/ens"
	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/mint"
	"github.com/onnwee/livecast/backend/objstore"
	"github.com/onnwee/livecast/backend/playback"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/streamsync"
)

// Deps are the services the HTTP API is built on. Optional vendor integrations are nil when
// their credentials are not configured; the routes that need them answer 503.
type Deps struct {
	Config   *config.Config
	DB       *sqlx.DB
	Store    *store.Store
	Cache    cache.Cache
	Verifier *auth.Verifier
	Livepeer *livepeer.Client
	Playback *playback.Resolver
	Chat     *chat.Service
	ENS      *ens.Resolver
	Uploads  objstore.Store
	Mint     *mint.Service
	Sync     *streamsync.Syncer
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg      *config.Config
	db       *sqlx.DB
	store    *store.Store
	cache    cache.Cache
	verifier *auth.Verifier
	livepeer *livepeer.Client
	playback *playback.Resolver
	chat     *chat.Service
	ens      *ens.Resolver
	uploads  objstore.Store
	mint     *mint.Service
	sync     *streamsync.Syncer

	now          func() time.Time
	enrichBudget time.Duration
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		cfg:          d.Config,
		db:           d.DB,
		store:        d.Store,
		cache:        d.Cache,
		verifier:     d.Verifier,
		livepeer:     d.Livepeer,
		playback:     d.Playback,
		chat:         d.Chat,
		ens:          d.ENS,
		uploads:      d.Uploads,
		mint:         d.Mint,
		sync:         d.Sync,
		now:          time.Now,
		enrichBudget: 5 * time.Second,
	}
}
