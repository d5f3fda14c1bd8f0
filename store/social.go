package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
)

// Like records addr's like once and keeps streams.like_count in step with stream_likes.
// It returns whether a new like was recorded and the resulting count.
func (s *Store) Like(ctx context.Context, streamID, addr string) (bool, int, error) {
	var (
		created bool
		count   int
	)
	err := s.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.exec(ctx, psql.Insert("stream_likes").
			Columns("stream_id", "user_address").
			Values(streamID, addr).
			Suffix("ON CONFLICT DO NOTHING"))
		if err != nil {
			return err
		}
		created = n == 1
		delta := 0
		if created {
			delta = 1
		}
		return s.bumpLikes(ctx, streamID, delta, &count)
	})
	return created, count, err
}

// Unlike removes addr's like if present.
func (s *Store) Unlike(ctx context.Context, streamID, addr string) (bool, int, error) {
	var (
		removed bool
		count   int
	)
	err := s.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.exec(ctx, psql.Delete("stream_likes").
			Where(sq.Eq{"stream_id": streamID, "user_address": addr}))
		if err != nil {
			return err
		}
		removed = n == 1
		delta := 0
		if removed {
			delta = -1
		}
		return s.bumpLikes(ctx, streamID, delta, &count)
	})
	return removed, count, err
}

func (s *Store) bumpLikes(ctx context.Context, streamID string, delta int, count *int) error {
	return s.get(ctx, count, psql.Update("streams").
		Set("like_count", sq.Expr("GREATEST(like_count + ?, 0)", delta)).
		Where(sq.Eq{"id": streamID}).
		Suffix("RETURNING like_count"))
}

func (s *Store) HasLiked(ctx context.Context, streamID, addr string) (bool, error) {
	var ok bool
	err := s.get(ctx, &ok, psql.Select("COUNT(*) > 0").From("stream_likes").
		Where(sq.Eq{"stream_id": streamID, "user_address": addr}))
	return ok, err
}

// RecordView stores one view per viewer and stream; repeats are no-ops.
func (s *Store) RecordView(ctx context.Context, streamID, viewer string) (bool, error) {
	n, err := s.exec(ctx, psql.Insert("stream_views").
		Columns("stream_id", "viewer_address").
		Values(streamID, viewer).
		Suffix("ON CONFLICT DO NOTHING"))
	return n == 1, err
}

// CountViews returns distinct recorded viewers for a stream.
func (s *Store) CountViews(ctx context.Context, streamID string) (int64, error) {
	var n int64
	err := s.get(ctx, &n, psql.Select("COUNT(*)").From("stream_views").Where(sq.Eq{"stream_id": streamID}))
	return n, err
}

// Follow creates the edge follower -> following. Following yourself yields ErrConflict.
func (s *Store) Follow(ctx context.Context, follower, following string) (bool, error) {
	n, err := s.exec(ctx, psql.Insert("follows").
		Columns("follower_address", "following_address").
		Values(follower, following).
		Suffix("ON CONFLICT DO NOTHING"))
	return n == 1, err
}

func (s *Store) Unfollow(ctx context.Context, follower, following string) (bool, error) {
	n, err := s.exec(ctx, psql.Delete("follows").
		Where(sq.Eq{"follower_address": follower, "following_address": following}))
	return n == 1, err
}

func (s *Store) IsFollowing(ctx context.Context, follower, following string) (bool, error) {
	var ok bool
	err := s.get(ctx, &ok, psql.Select("COUNT(*) > 0").From("follows").
		Where(sq.Eq{"follower_address": follower, "following_address": following}))
	return ok, err
}

// ListFollowers returns wallets following addr, newest first.
func (s *Store) ListFollowers(ctx context.Context, addr string, p Page) ([]FollowEdge, error) {
	return s.listEdges(ctx, "follower_address", "following_address", addr, p)
}

// ListFollowing returns wallets addr follows, newest first.
func (s *Store) ListFollowing(ctx context.Context, addr string, p Page) ([]FollowEdge, error) {
	return s.listEdges(ctx, "following_address", "follower_address", addr, p)
}

func (s *Store) listEdges(ctx context.Context, other, self, addr string, p Page) ([]FollowEdge, error) {
	limit, offset := p.normalize()
	out := []FollowEdge{}
	err := s.selectAll(ctx, &out, psql.Select(
		"f."+other+" AS address", "u.username", "u.display_name", "u.avatar_url", "f.created_at").
		From("follows f").
		LeftJoin("users u ON u.wallet_address = f."+other).
		Where(sq.Eq{"f." + self: addr}).
		OrderBy("f.created_at DESC").
		Limit(limit).Offset(offset))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FollowCounts returns how many wallets follow addr and how many addr follows.
func (s *Store) FollowCounts(ctx context.Context, addr string) (followers, following int, err error) {
	var row struct {
		Followers int `db:"followers"`
		Following int `db:"following"`
	}
	err = s.get(ctx, &row, psql.Select().
		Column("COUNT(*) FILTER (WHERE following_address = ?) AS followers", addr).
		Column("COUNT(*) FILTER (WHERE follower_address = ?) AS following", addr).
		From("follows").
		Where(sq.Or{sq.Eq{"following_address": addr}, sq.Eq{"follower_address": addr}}))
	return row.Followers, row.Following, err
}
