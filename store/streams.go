package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var streamColumns = []string{
	"id", "creator_address", "title", "description", "category_id", "vendor_stream_id",
	"stream_key", "stream_key_version", "playback_id", "asset_id", "asset_playback_id",
	"thumbnail_url", "is_live", "viewer_count", "view_count", "like_count",
	"scheduled_at", "started_at", "ended_at", "mint_enabled", "mint_status", "token_uri",
	"contract_address", "token_id", "mint_tx_hash", "minted_at", "created_at", "updated_at",
}

func streamQuery() sq.SelectBuilder {
	return psql.Select(streamColumns...).From("streams")
}

// CreateStream inserts a stream for an existing or new creator and seals its stream key.
func (s *Store) CreateStream(ctx context.Context, in NewStream) (*Stream, error) {
	id := uuid.NewString()
	sealed, version, err := s.keys.Seal(in.StreamKey, id)
	if err != nil {
		return nil, fmt.Errorf("seal stream key: %w", err)
	}
	var vendorID any
	if in.VendorStreamID != "" {
		vendorID = in.VendorStreamID
	}

	var out *Stream
	err = s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.UpsertUser(ctx, in.CreatorAddress); err != nil {
			return err
		}
		_, err := s.exec(ctx, psql.Insert("streams").
			Columns("id", "creator_address", "title", "description", "category_id", "vendor_stream_id",
				"stream_key", "stream_key_version", "playback_id", "scheduled_at", "mint_enabled").
			Values(id, in.CreatorAddress, in.Title, in.Description, in.CategoryID, vendorID,
				sealed, version, in.PlaybackID, in.ScheduledAt, in.MintEnabled))
		if err != nil {
			return err
		}
		out, err = s.GetStream(ctx, id)
		return err
	})
	return out, err
}

// GetStream returns ErrNotFound for unknown or malformed ids.
func (s *Store) GetStream(ctx context.Context, id string) (*Stream, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var st Stream
	if err := s.get(ctx, &st, streamQuery().Where(sq.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStreamByVendorID(ctx context.Context, vendorID string) (*Stream, error) {
	var st Stream
	if err := s.get(ctx, &st, streamQuery().Where(sq.Eq{"vendor_stream_id": vendorID})); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStreams returns live streams first, then newest.
func (s *Store) ListStreams(ctx context.Context, f StreamFilter) ([]Stream, error) {
	limit, offset := f.Page.normalize()
	b := psql.Select(prefixed("s", streamColumns)...).From("streams s").
		OrderBy("s.is_live DESC", "s.created_at DESC").
		Limit(limit).Offset(offset)
	if f.Live != nil {
		b = b.Where(sq.Eq{"s.is_live": *f.Live})
	}
	if f.Creator != "" {
		b = b.Where(sq.Eq{"s.creator_address": f.Creator})
	}
	if f.CategorySlug != "" {
		b = b.Join("categories c ON c.id = s.category_id").Where(sq.Eq{"c.slug": f.CategorySlug})
	}
	out := []Stream{}
	if err := s.selectAll(ctx, &out, b); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStream applies p and returns the updated row.
func (s *Store) UpdateStream(ctx context.Context, id string, p StreamPatch) (*Stream, error) {
	b := psql.Update("streams").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
	if p.Title != nil {
		b = b.Set("title", *p.Title)
	}
	if p.Description != nil {
		b = b.Set("description", *p.Description)
	}
	switch {
	case p.ClearCategory:
		b = b.Set("category_id", nil)
	case p.CategoryID != nil:
		b = b.Set("category_id", *p.CategoryID)
	}
	if p.ScheduledAt != nil {
		b = b.Set("scheduled_at", *p.ScheduledAt)
	}
	if p.MintEnabled != nil {
		b = b.Set("mint_enabled", *p.MintEnabled)
	}
	if p.ThumbnailURL != nil {
		b = b.Set("thumbnail_url", *p.ThumbnailURL)
	}
	if p.EndedAt != nil {
		b = b.Set("ended_at", sq.Expr("COALESCE(ended_at, ?)", *p.EndedAt)).
			Set("is_live", false).
			Set("viewer_count", 0)
	}
	if err := s.execOne(ctx, id, b); err != nil {
		return nil, err
	}
	return s.GetStream(ctx, id)
}

// DeleteStream hard-deletes the stream; chat, likes, views and stream reviews cascade.
func (s *Store) DeleteStream(ctx context.Context, id string) error {
	return s.execOne(ctx, id, psql.Delete("streams").Where(sq.Eq{"id": id}))
}

// SetLive marks the stream as broadcasting. started_at keeps its first value.
func (s *Store) SetLive(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("is_live", true).
		Set("started_at", sq.Expr("COALESCE(started_at, ?)", at)).
		Set("ended_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
}

// SetEnded marks the stream as finished. ended_at keeps its first value.
func (s *Store) SetEnded(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("is_live", false).
		Set("viewer_count", 0).
		Set("started_at", sq.Expr("COALESCE(started_at, ?)", at)).
		Set("ended_at", sq.Expr("COALESCE(ended_at, ?)", at)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
}

// SetAsset records recording identifiers. Empty values leave the column unchanged.
func (s *Store) SetAsset(ctx context.Context, id, assetID, assetPlaybackID string) error {
	if assetID == "" && assetPlaybackID == "" {
		return nil
	}
	b := psql.Update("streams").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
	if assetID != "" {
		b = b.Set("asset_id", assetID)
	}
	if assetPlaybackID != "" {
		b = b.Set("asset_playback_id", assetPlaybackID)
	}
	return s.execOne(ctx, id, b)
}

func (s *Store) SetThumbnail(ctx context.Context, id, url string) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("thumbnail_url", url).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
}

// SetCounts stores the last known vendor view totals.
func (s *Store) SetCounts(ctx context.Context, id string, views int64, viewers int) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("view_count", views).
		Set("viewer_count", viewers).
		Where(sq.Eq{"id": id}))
}

// ListActiveStreams returns streams the reconciler should refresh: anything marked live, and
// anything started since `since` whose recording has not been located yet.
func (s *Store) ListActiveStreams(ctx context.Context, since time.Time, limit int) ([]Stream, error) {
	if limit <= 0 {
		limit = maxLimit
	}
	out := []Stream{}
	err := s.selectAll(ctx, &out, streamQuery().
		Where(sq.NotEq{"vendor_stream_id": nil}).
		Where(sq.Or{
			sq.Eq{"is_live": true},
			sq.And{sq.Gt{"started_at": since}, sq.Eq{"asset_playback_id": ""}},
		}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpenStreamKey returns the plaintext RTMP key of st.
func (s *Store) OpenStreamKey(st *Stream) (string, error) {
	return s.keys.Open(st.StreamKey, st.StreamKeyVersion, st.ID)
}

// ListPlainStreamKeys returns streams whose key is stored unsealed.
func (s *Store) ListPlainStreamKeys(ctx context.Context) ([]Stream, error) {
	out := []Stream{}
	err := s.selectAll(ctx, &out, streamQuery().
		Where(sq.Eq{"stream_key_version": 0}).
		Where(sq.NotEq{"stream_key": ""}))
	return out, err
}

// SealStreamKey re-stores st's plaintext key sealed with the configured key.
func (s *Store) SealStreamKey(ctx context.Context, st *Stream) error {
	plain, err := s.OpenStreamKey(st)
	if err != nil {
		return err
	}
	sealed, version, err := s.keys.Seal(plain, st.ID)
	if err != nil {
		return err
	}
	return s.execOne(ctx, st.ID, psql.Update("streams").
		Set("stream_key", sealed).
		Set("stream_key_version", version).
		Where(sq.Eq{"id": st.ID, "stream_key_version": st.StreamKeyVersion}))
}

// SetMintPinned records pinned metadata and resets any earlier failed attempt.
func (s *Store) SetMintPinned(ctx context.Context, id, tokenURI string) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("mint_status", MintPinned).
		Set("token_uri", tokenURI).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
}

// SetMintConfirmed records the on-chain result submitted by the creator's wallet.
func (s *Store) SetMintConfirmed(ctx context.Context, id, txHash, contract, tokenID string, at time.Time) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("mint_status", MintMinted).
		Set("mint_tx_hash", txHash).
		Set("contract_address", contract).
		Set("token_id", tokenID).
		Set("minted_at", at).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
}

func (s *Store) SetMintFailed(ctx context.Context, id string) error {
	return s.execOne(ctx, id, psql.Update("streams").
		Set("mint_status", MintFailed).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
}

// execOne runs b and maps zero affected rows to ErrNotFound.
func (s *Store) execOne(ctx context.Context, id string, b sq.Sqlizer) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	n, err := s.exec(ctx, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
