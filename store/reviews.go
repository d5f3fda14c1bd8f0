package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
)

var reviewColumns = []string{"id", "reviewer_address", "reviewee_address", "stream_id", "rating", "comment", "created_at"}

// CreateReview inserts r. Ratings outside 1..5 or a self-review yield ErrConflict from the
// table constraints; callers validate first for a better message.
func (s *Store) CreateReview(ctx context.Context, r Review) (*Review, error) {
	var out Review
	err := s.get(ctx, &out, psql.Insert("reviews").
		Columns("reviewer_address", "reviewee_address", "stream_id", "rating", "comment").
		Values(r.ReviewerAddress, r.RevieweeAddress, r.StreamID, r.Rating, r.Comment).
		Suffix("RETURNING id, reviewer_address, reviewee_address, stream_id, rating, comment, created_at"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReviews returns reviews of reviewee, newest first.
func (s *Store) ListReviews(ctx context.Context, reviewee string, p Page) ([]Review, error) {
	limit, offset := p.normalize()
	out := []Review{}
	err := s.selectAll(ctx, &out, psql.Select(reviewColumns...).From("reviews").
		Where(sq.Eq{"reviewee_address": reviewee}).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).Offset(offset))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReviewSummary(ctx context.Context, reviewee string) (*ReviewSummary, error) {
	var sum ReviewSummary
	err := s.get(ctx, &sum, psql.Select("COUNT(*) AS count", "COALESCE(AVG(rating), 0)::float8 AS average").
		From("reviews").
		Where(sq.Eq{"reviewee_address": reviewee}))
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
