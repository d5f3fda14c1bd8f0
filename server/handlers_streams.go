package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/playback"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
	"github.com/onnwee/livecast/backend/wallet"
)

const (
	maxTitle       = 140
	maxDescription = 2000
)

// streamView is a stream as returned to clients. Ingest credentials are set only for the creator.
type streamView struct {
	*store.Stream
	StreamKey string           `json:"streamKey,omitempty"`
	IngestURL string           `json:"ingestUrl,omitempty"`
	Playback  *playback.Result `json:"playback,omitempty"`
	Liked     *bool            `json:"liked,omitempty"`
}

// loadStream fetches the {id} stream, mapping unknown ids to 404.
func (h *Handlers) loadStream(r *http.Request) (*store.Stream, error) {
	st, err := h.store.GetStream(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("stream")
	}
	return st, err
}

// loadOwnStream is loadStream restricted to the caller's streams.
func (h *Handlers) loadOwnStream(r *http.Request) (*store.Stream, error) {
	st, err := h.loadStream(r)
	if err != nil {
		return nil, err
	}
	if !wallet.Equal(st.CreatorAddress, caller(r)) {
		return nil, apperr.Forbidden("only the creator can modify this stream")
	}
	return st, nil
}

func (h *Handlers) creatorView(st *store.Stream) (*streamView, error) {
	key, err := h.store.OpenStreamKey(st)
	if err != nil {
		return nil, apperr.Internal("stream key unavailable", err)
	}
	return &streamView{Stream: st, StreamKey: key, IngestURL: h.cfg.LivepeerIngestURL}, nil
}

func (h *Handlers) HandleListStreams(w http.ResponseWriter, r *http.Request) {
	f := store.StreamFilter{
		Live:         parseBoolQuery(r, "live"),
		CategorySlug: r.URL.Query().Get("category"),
		Page:         pageQuery(r),
	}
	if c := r.URL.Query().Get("creator"); c != "" {
		addr, err := wallet.Normalize(c)
		if err != nil {
			writeError(w, r, apperr.Validation("invalid creator address"))
			return
		}
		f.Creator = addr
	}
	streams, err := h.store.ListStreams(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

type streamInput struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	CategoryID   *int64     `json:"categoryId"`
	CategorySlug *string    `json:"categorySlug"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
	MintEnabled  *bool      `json:"mintEnabled"`
	ThumbnailURL *string    `json:"thumbnailUrl"`
	// patch only
	ClearCategory bool `json:"clearCategory"`
	End           bool `json:"end"`
}

func (in *streamInput) validate(create bool) error {
	in.Title = trimmed(in.Title)
	in.Description = trimmed(in.Description)
	if create && (in.Title == nil || *in.Title == "") {
		return apperr.Validation("title is required")
	}
	if in.Title != nil {
		if *in.Title == "" {
			return apperr.Validation("title cannot be empty")
		}
		if utf8.RuneCountInString(*in.Title) > maxTitle {
			return apperr.Validation("title exceeds %d characters", maxTitle)
		}
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescription {
		return apperr.Validation("description exceeds %d characters", maxDescription)
	}
	if in.ThumbnailURL != nil && *in.ThumbnailURL != "" && !isHTTPURL(*in.ThumbnailURL) {
		return apperr.Validation("thumbnailUrl must be an http(s) URL")
	}
	return nil
}

// resolveCategory turns a slug into an id; an explicit id wins.
func (h *Handlers) resolveCategory(ctx context.Context, in *streamInput) error {
	if in.CategoryID != nil || in.CategorySlug == nil || *in.CategorySlug == "" {
		return nil
	}
	c, err := h.store.GetCategoryBySlug(ctx, *in.CategorySlug)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Validation("unknown category %q", *in.CategorySlug)
	}
	if err != nil {
		return err
	}
	in.CategoryID = &c.ID
	return nil
}

// HandleCreateStream provisions an ingest stream on the video platform and stores it for the caller.
func (h *Handlers) HandleCreateStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.livepeer == nil {
		writeError(w, r, apperr.Unavailable("video platform"))
		return
	}
	var in streamInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.validate(true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.resolveCategory(ctx, &in); err != nil {
		writeError(w, r, err)
		return
	}

	vs, err := h.livepeer.CreateStream(ctx, *in.Title, true)
	if err != nil {
		writeError(w, r, apperr.External("livepeer", err))
		return
	}
	ns := store.NewStream{
		CreatorAddress: caller(r),
		Title:          *in.Title,
		CategoryID:     in.CategoryID,
		VendorStreamID: vs.ID,
		StreamKey:      vs.StreamKey,
		PlaybackID:     vs.PlaybackID,
		ScheduledAt:    in.ScheduledAt,
	}
	if in.Description != nil {
		ns.Description = *in.Description
	}
	if in.MintEnabled != nil {
		ns.MintEnabled = *in.MintEnabled
	}
	st, err := h.store.CreateStream(ctx, ns)
	if err != nil {
		// do not leak an orphaned ingest stream
		if derr := h.livepeer.DeleteStream(context.WithoutCancel(ctx), vs.ID); derr != nil {
			telemetry.LoggerWithCorr(ctx).Warn("failed to delete orphaned vendor stream", slog.String("vendor_stream_id", vs.ID), slog.Any("err", derr))
		}
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.Validation("unknown category")
		}
		writeError(w, r, err)
		return
	}
	view, err := h.creatorView(st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(ctx).Info("stream created", slog.String("stream_id", st.ID), slog.String("creator", st.CreatorAddress))
	writeJSON(w, http.StatusCreated, view)
}

// HandleGetStream returns one stream, resolving playback and thumbnail on read.
func (h *Handlers) HandleGetStream(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := &streamView{Stream: st}
	me := caller(r)
	if me != "" && wallet.Equal(me, st.CreatorAddress) {
		if view, err = h.creatorView(st); err != nil {
			writeError(w, r, err)
			return
		}
	}
	view.Playback = h.enrich(r.Context(), st)
	if me != "" {
		liked, err := h.store.HasLiked(r.Context(), st.ID, me)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view.Liked = &liked
	}
	writeJSON(w, http.StatusOK, view)
}

// enrich resolves playback and a thumbnail for st within the enrichment budget. Vendor
// failures leave the stored values in place.
func (h *Handlers) enrich(ctx context.Context, st *store.Stream) *playback.Result {
	if h.playback == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.enrichBudget)
	defer cancel()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("stream_id", st.ID))

	res, err := h.playback.Resolve(ctx, st)
	switch {
	case err == nil:
		res.Apply(st)
	case errors.Is(err, playback.ErrNoPlayback):
		return nil
	default:
		log.Warn("playback resolution failed", slog.Any("err", err))
		return nil
	}
	if st.ThumbnailURL == "" {
		if thumb, err := h.playback.Thumbnail(ctx, st); err == nil {
			res.ThumbnailURL = thumb
		} else if !errors.Is(err, playback.ErrNoThumbnail) {
			log.Debug("thumbnail lookup failed", slog.Any("err", err))
		}
	}
	return res
}

func (in *streamInput) patch(now time.Time) store.StreamPatch {
	p := store.StreamPatch{
		Title:         in.Title,
		Description:   in.Description,
		CategoryID:    in.CategoryID,
		ClearCategory: in.ClearCategory,
		ScheduledAt:   in.ScheduledAt,
		MintEnabled:   in.MintEnabled,
		ThumbnailURL:  trimmed(in.ThumbnailURL),
	}
	if in.End {
		p.EndedAt = &now
	}
	return p
}

func (h *Handlers) HandleUpdateStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.loadOwnStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in streamInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.validate(false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.resolveCategory(ctx, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.MintEnabled != nil && !*in.MintEnabled && st.MintStatus == store.MintMinted {
		writeError(w, r, apperr.Conflict("stream has already been minted"))
		return
	}
	updated, err := h.store.UpdateStream(ctx, st.ID, in.patch(h.now()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && in.CategoryID != nil {
			err = apperr.Validation("unknown category")
		}
		writeError(w, r, err)
		return
	}
	if in.End && h.playback != nil {
		h.playback.InvalidateViews(ctx, st.ID)
	}
	view, err := h.creatorView(updated)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDeleteStream removes the stream and its vendor ingest stream.
func (h *Handlers) HandleDeleteStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.loadOwnStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vid := st.VendorID(); vid != "" && h.livepeer != nil {
		if err := h.livepeer.DeleteStream(ctx, vid); err != nil {
			writeError(w, r, apperr.External("livepeer", err))
			return
		}
	}
	if err := h.store.DeleteStream(ctx, st.ID); err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(ctx).Info("stream deleted", slog.String("stream_id", st.ID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandlePlayback(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.playback == nil {
		writeError(w, r, apperr.Unavailable("video platform"))
		return
	}
	res, err := h.playback.Resolve(r.Context(), st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) HandleRecording(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.playback == nil {
		writeError(w, r, apperr.Unavailable("video platform"))
		return
	}
	rec, err := h.playback.Recording(r.Context(), st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.playback == nil {
		if st.ThumbnailURL == "" {
			writeError(w, r, playback.ErrNoThumbnail)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"thumbnailUrl": st.ThumbnailURL})
		return
	}
	url, err := h.playback.Thumbnail(r.Context(), st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"thumbnailUrl": url})
}

type viewsBody struct {
	TotalViews    int64 `json:"totalViews"`
	ViewerCount   int   `json:"viewerCount"`
	UniqueViewers int64 `json:"uniqueViewers"`
	Recorded      *bool `json:"recorded,omitempty"`
	Fresh         bool  `json:"fresh"`
}

// views reads vendor counts, falling back to the stored ones when the platform is off.
func (h *Handlers) views(ctx context.Context, st *store.Stream) (*viewsBody, error) {
	out := &viewsBody{TotalViews: st.ViewCount, ViewerCount: st.ViewerCount}
	if h.playback != nil {
		v, err := h.playback.Views(ctx, st)
		if err != nil {
			return nil, err
		}
		out.TotalViews, out.ViewerCount, out.Fresh = v.TotalViews, v.ViewerCount, true
	}
	unique, err := h.store.CountViews(ctx, st.ID)
	if err != nil {
		return nil, err
	}
	out.UniqueViewers = unique
	return out, nil
}

func (h *Handlers) HandleViews(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := h.views(r.Context(), st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleRecordView counts one view per signed-in wallet. Anonymous calls only read counts.
func (h *Handlers) HandleRecordView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recorded := false
	if me := caller(r); me != "" {
		if recorded, err = h.store.RecordView(ctx, st.ID, me); err != nil {
			writeError(w, r, err)
			return
		}
	}
	body, err := h.views(ctx, st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body.Recorded = &recorded
	writeJSON(w, http.StatusOK, body)
}

type likeBody struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

func (h *Handlers) HandleLikeState(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := likeBody{LikeCount: st.LikeCount}
	if me := caller(r); me != "" {
		if out.Liked, err = h.store.HasLiked(r.Context(), st.ID, me); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, true)
}

func (h *Handlers) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, false)
}

func (h *Handlers) changeLike(w http.ResponseWriter, r *http.Request, like bool) {
	ctx := r.Context()
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	var (
		changed bool
		count   int
		action  = "unlike"
	)
	if like {
		action = "like"
		changed, count, err = h.store.Like(ctx, st.ID, me)
	} else {
		changed, count, err = h.store.Unlike(ctx, st.ID, me)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changed {
		telemetry.IncLike(action)
	}
	writeJSON(w, http.StatusOK, likeBody{Liked: like, LikeCount: count})
}
