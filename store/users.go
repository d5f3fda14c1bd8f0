package store

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var userColumns = []string{
	"wallet_address", "username", "display_name", "bio", "avatar_url", "banner_url",
	"ens_name", "ens_checked_at", "created_at", "updated_at",
}

// UpsertUser makes sure a profile row exists for addr and returns it.
func (s *Store) UpsertUser(ctx context.Context, addr string) (*User, error) {
	_, err := s.exec(ctx, psql.Insert("users").
		Columns("wallet_address").
		Values(addr).
		Suffix("ON CONFLICT (wallet_address) DO NOTHING"))
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, addr)
}

func (s *Store) GetUser(ctx context.Context, addr string) (*User, error) {
	var u User
	err := s.get(ctx, &u, psql.Select(userColumns...).From("users").Where(sq.Eq{"wallet_address": addr}))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername matches usernames case-insensitively.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.get(ctx, &u, psql.Select(userColumns...).From("users").
		Where(sq.Expr("lower(username) = lower(?)", username)))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile applies p to addr's profile, creating the row if needed. A username already
// held by another wallet yields ErrConflict. An empty username clears it.
func (s *Store) UpdateProfile(ctx context.Context, addr string, p ProfilePatch) (*User, error) {
	var out *User
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.UpsertUser(ctx, addr); err != nil {
			return err
		}
		if p.Username != nil && *p.Username != "" {
			taken, err := s.GetUserByUsername(ctx, *p.Username)
			switch {
			case err == nil && taken.WalletAddress != addr:
				return ErrConflict
			case err != nil && !errors.Is(err, ErrNotFound):
				return err
			}
		}

		b := psql.Update("users").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"wallet_address": addr})
		if p.Username != nil {
			if name := strings.TrimSpace(*p.Username); name == "" {
				b = b.Set("username", nil)
			} else {
				b = b.Set("username", name)
			}
		}
		if p.DisplayName != nil {
			b = b.Set("display_name", *p.DisplayName)
		}
		if p.Bio != nil {
			b = b.Set("bio", *p.Bio)
		}
		if p.AvatarURL != nil {
			b = b.Set("avatar_url", *p.AvatarURL)
		}
		if p.BannerURL != nil {
			b = b.Set("banner_url", *p.BannerURL)
		}
		if _, err := s.exec(ctx, b); err != nil {
			return err
		}
		u, err := s.GetUser(ctx, addr)
		out = u
		return err
	})
	return out, err
}

// SetENSName records a reverse-resolution result, including the empty result.
func (s *Store) SetENSName(ctx context.Context, addr, name string, checkedAt time.Time) error {
	_, err := s.exec(ctx, psql.Update("users").
		Set("ens_name", name).
		Set("ens_checked_at", checkedAt).
		Where(sq.Eq{"wallet_address": addr}))
	return err
}
