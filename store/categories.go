package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
)

func categoryQuery() sq.SelectBuilder {
	return psql.Select(
		"c.id", "c.name", "c.slug", "c.description", "c.image_url", "c.created_at",
		"(SELECT COUNT(*) FROM streams s WHERE s.category_id = c.id AND s.is_live) AS live_count",
	).From("categories c")
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	out := []Category{}
	if err := s.selectAll(ctx, &out, categoryQuery().OrderBy("c.name")); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var c Category
	if err := s.get(ctx, &c, categoryQuery().Where(sq.Eq{"c.slug": slug})); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts c; a duplicate name or slug yields ErrConflict.
func (s *Store) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	err := s.get(ctx, &c, psql.Insert("categories").
		Columns("name", "slug", "description", "image_url").
		Values(c.Name, c.Slug, c.Description, c.ImageURL).
		Suffix("RETURNING id, created_at"))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureCategory inserts c unless its slug exists. It reports whether a row was created.
func (s *Store) EnsureCategory(ctx context.Context, c Category) (bool, error) {
	n, err := s.exec(ctx, psql.Insert("categories").
		Columns("name", "slug", "description", "image_url").
		Values(c.Name, c.Slug, c.Description, c.ImageURL).
		Suffix("ON CONFLICT DO NOTHING"))
	return n == 1, err
}
