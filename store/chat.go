package store

import (
	"context"
	"slices"

	sq "github.com/Masterminds/squirrel"
)

func chatQuery() sq.SelectBuilder {
	return psql.Select("m.id", "m.stream_id", "m.sender_address", "u.username AS sender_username", "m.message", "m.created_at").
		From("chat_messages m").
		LeftJoin("users u ON u.wallet_address = m.sender_address")
}

// ListChatMessages returns messages oldest first. AfterID pages forward (used by the live feed);
// BeforeID pages back through history.
func (s *Store) ListChatMessages(ctx context.Context, streamID string, q ChatQuery) ([]ChatMessage, error) {
	limit, _ := Page{Limit: q.Limit}.normalize()
	b := chatQuery().Where(sq.Eq{"m.stream_id": streamID}).Limit(limit)

	ascending := q.AfterID > 0
	if ascending {
		b = b.Where(sq.Gt{"m.id": q.AfterID}).OrderBy("m.id ASC")
	} else {
		if q.BeforeID > 0 {
			b = b.Where(sq.Lt{"m.id": q.BeforeID})
		}
		b = b.OrderBy("m.id DESC")
	}

	out := []ChatMessage{}
	if err := s.selectAll(ctx, &out, b); err != nil {
		return nil, err
	}
	if !ascending {
		slices.Reverse(out)
	}
	return out, nil
}

// InsertChatMessage stores a message; an unknown stream yields ErrNotFound.
func (s *Store) InsertChatMessage(ctx context.Context, streamID, sender, text string) (*ChatMessage, error) {
	var id int64
	err := s.get(ctx, &id, psql.Insert("chat_messages").
		Columns("stream_id", "sender_address", "message").
		Values(streamID, sender, text).
		Suffix("RETURNING id"))
	if err != nil {
		return nil, err
	}
	var m ChatMessage
	if err := s.get(ctx, &m, chatQuery().Where(sq.Eq{"m.id": id})); err != nil {
		return nil, err
	}
	return &m, nil
}
