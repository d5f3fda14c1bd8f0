package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/testutil"
)

type memInserter struct {
	slugs map[string]bool
	err   error
}

func (m *memInserter) EnsureCategory(_ context.Context, c store.Category) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.slugs[c.Slug] {
		return false, nil
	}
	m.slugs[c.Slug] = true
	return true, nil
}

func TestSeedIsIdempotent(t *testing.T) {
	m := &memInserter{slugs: map[string]bool{"music": true}}
	n, err := seed(context.Background(), m, defaultCategories)
	require.NoError(t, err)
	assert.Equal(t, len(defaultCategories)-1, n)

	n, err = seed(context.Background(), m, defaultCategories)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedStopsOnError(t *testing.T) {
	_, err := seed(context.Background(), &memInserter{err: errors.New("boom")}, defaultCategories)
	assert.ErrorContains(t, err, "just-chatting")
}

func TestDefaultCategorySlugsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range defaultCategories {
		assert.False(t, seen[c.Slug], c.Slug)
		seen[c.Slug] = true
	}
}

func TestLoadCategories(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"name":"Sports","slug":"sports","imageUrl":"https://x.test/s.png"}]`), 0o600))
	cats, err := loadCategories(good)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "https://x.test/s.png", cats[0].ImageURL)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":"No slug"}]`), 0o600))
	_, err = loadCategories(bad)
	assert.ErrorContains(t, err, "slug")

	_, err = loadCategories(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSeedPostgres(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t), nil)
	ctx := context.Background()

	n, err := seed(ctx, s, defaultCategories)
	require.NoError(t, err)
	assert.Equal(t, len(defaultCategories), n)

	n, err = seed(ctx, s, defaultCategories)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(defaultCategories))
}
