package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/ens"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
	"github.com/onnwee/livecast/backend/wallet"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

const (
	maxDisplayName = 50
	maxBio         = 500
	maxReview      = 1000
)

type profileView struct {
	*store.User
	Followers   int                 `json:"followers"`
	Following   int                 `json:"following"`
	Reviews     store.ReviewSummary `json:"reviews"`
	IsFollowing *bool               `json:"isFollowing,omitempty"`
}

func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.store.GetUser(r.Context(), addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("profile")
		}
		writeError(w, r, err)
		return
	}
	h.writeProfile(w, r, u)
}

func (h *Handlers) HandleGetProfileByUsername(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("profile")
		}
		writeError(w, r, err)
		return
	}
	h.writeProfile(w, r, u)
}

func (h *Handlers) writeProfile(w http.ResponseWriter, r *http.Request, u *store.User) {
	ctx := r.Context()
	h.refreshENS(ctx, u)

	view := profileView{User: u}
	var err error
	if view.Followers, view.Following, err = h.store.FollowCounts(ctx, u.WalletAddress); err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.store.ReviewSummary(ctx, u.WalletAddress)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view.Reviews = *sum
	if me := caller(r); me != "" && me != u.WalletAddress {
		following, err := h.store.IsFollowing(ctx, me, u.WalletAddress)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view.IsFollowing = &following
	}
	writeJSON(w, http.StatusOK, view)
}

// refreshENS re-resolves a stale reverse record and writes the answer back. Failures keep
// the stored name.
func (h *Handlers) refreshENS(ctx context.Context, u *store.User) {
	if h.ens == nil || !ens.Stale(u.ENSCheckedAt, h.now()) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	name, err := h.ens.Lookup(ctx, u.WalletAddress)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Debug("ens refresh failed", slog.String("address", u.WalletAddress), slog.Any("err", err))
		return
	}
	now := h.now()
	if err := h.store.SetENSName(ctx, u.WalletAddress, name, now); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("ens write-back failed", slog.String("address", u.WalletAddress), slog.Any("err", err))
		return
	}
	u.ENSName = name
	u.ENSCheckedAt = &now
}

type profileUpdate struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatarUrl"`
	BannerURL   *string `json:"bannerUrl"`
}

func (p *profileUpdate) patch() (store.ProfilePatch, error) {
	out := store.ProfilePatch{
		Username:    trimmed(p.Username),
		DisplayName: trimmed(p.DisplayName),
		Bio:         trimmed(p.Bio),
		AvatarURL:   trimmed(p.AvatarURL),
		BannerURL:   trimmed(p.BannerURL),
	}
	if out.Username != nil && *out.Username != "" && !usernamePattern.MatchString(*out.Username) {
		return out, apperr.Validation("username must be 3-30 letters, digits or underscores")
	}
	if out.DisplayName != nil && utf8.RuneCountInString(*out.DisplayName) > maxDisplayName {
		return out, apperr.Validation("displayName exceeds %d characters", maxDisplayName)
	}
	if out.Bio != nil && utf8.RuneCountInString(*out.Bio) > maxBio {
		return out, apperr.Validation("bio exceeds %d characters", maxBio)
	}
	for field, v := range map[string]*string{"avatarUrl": out.AvatarURL, "bannerUrl": out.BannerURL} {
		if v != nil && *v != "" && !isHTTPURL(*v) {
			return out, apperr.Validation("%s must be an http(s) URL", field)
		}
	}
	return out, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// HandleUpdateProfile edits the caller's own profile.
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileUpdate
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := body.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.store.UpdateProfile(r.Context(), caller(r), p)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = apperr.Conflict("username is taken")
		}
		writeError(w, r, err)
		return
	}
	h.writeProfile(w, r, u)
}

func (h *Handlers) HandleProfileStreams(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	streams, err := h.store.ListStreams(r.Context(), store.StreamFilter{
		Live:    parseBoolQuery(r, "live"),
		Creator: addr,
		Page:    pageQuery(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

func (h *Handlers) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	h.listEdges(w, r, h.store.ListFollowers)
}

func (h *Handlers) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	h.listEdges(w, r, h.store.ListFollowing)
}

func (h *Handlers) listEdges(w http.ResponseWriter, r *http.Request, list func(context.Context, string, store.Page) ([]store.FollowEdge, error)) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	edges, err := list(r.Context(), addr, pageQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

type followState struct {
	Address     string `json:"address"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	IsFollowing bool   `json:"isFollowing"`
}

func (h *Handlers) followState(ctx context.Context, me, addr string) (*followState, error) {
	out := &followState{Address: addr}
	var err error
	if out.Followers, out.Following, err = h.store.FollowCounts(ctx, addr); err != nil {
		return nil, err
	}
	if me != "" && me != addr {
		if out.IsFollowing, err = h.store.IsFollowing(ctx, me, addr); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (h *Handlers) HandleFollowState(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.followState(r.Context(), caller(r), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, true)
}

func (h *Handlers) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, false)
}

func (h *Handlers) changeFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	ctx := r.Context()
	target, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	if wallet.Equal(me, target) {
		writeError(w, r, apperr.Validation("cannot follow yourself"))
		return
	}
	if follow {
		if _, err := h.store.GetUser(ctx, target); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = apperr.NotFound("profile")
			}
			writeError(w, r, err)
			return
		}
		if _, err := h.store.UpsertUser(ctx, me); err != nil {
			writeError(w, r, err)
			return
		}
		_, err = h.store.Follow(ctx, me, target)
	} else {
		_, err = h.store.Unfollow(ctx, me, target)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.followState(ctx, me, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type reviewList struct {
	Summary store.ReviewSummary `json:"summary"`
	Reviews []store.Review      `json:"reviews"`
}

func (h *Handlers) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reviews, err := h.store.ListReviews(r.Context(), addr, pageQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.store.ReviewSummary(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewList{Summary: *sum, Reviews: reviews})
}

type reviewInput struct {
	Rating   int     `json:"rating"`
	Comment  string  `json:"comment"`
	StreamID *string `json:"streamId"`
}

func (h *Handlers) HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewee, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in reviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	switch {
	case wallet.Equal(me, reviewee):
		writeError(w, r, apperr.Validation("cannot review yourself"))
		return
	case in.Rating < 1 || in.Rating > 5:
		writeError(w, r, apperr.Validation("rating must be between 1 and 5"))
		return
	case utf8.RuneCountInString(in.Comment) > maxReview:
		writeError(w, r, apperr.Validation("comment exceeds %d characters", maxReview))
		return
	}
	if _, err := h.store.GetUser(ctx, reviewee); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("profile")
		}
		writeError(w, r, err)
		return
	}
	if in.StreamID != nil && *in.StreamID != "" {
		st, err := h.store.GetStream(ctx, *in.StreamID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = apperr.NotFound("stream")
			}
			writeError(w, r, err)
			return
		}
		if st.CreatorAddress != reviewee {
			writeError(w, r, apperr.Validation("stream does not belong to the reviewed profile"))
			return
		}
	} else {
		in.StreamID = nil
	}
	if _, err := h.store.UpsertUser(ctx, me); err != nil {
		writeError(w, r, err)
		return
	}
	rev, err := h.store.CreateReview(ctx, store.Review{
		ReviewerAddress: me,
		RevieweeAddress: reviewee,
		StreamID:        in.StreamID,
		Rating:          in.Rating,
		Comment:         in.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

// HandleENS resolves an address to its primary ENS name.
func (h *Handlers) HandleENS(w http.ResponseWriter, r *http.Request) {
	if h.ens == nil {
		writeError(w, r, apperr.Unavailable("name resolution"))
		return
	}
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := h.ens.Resolve(r.Context(), addr)
	if err != nil {
		writeError(w, r, apperr.External("ens", err))
		return
	}
	writeJSON(w, http.StatusOK, name)
}
