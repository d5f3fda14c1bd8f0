// Package main inserts the default stream categories. Existing slugs are left untouched, so the
// tool is safe to run on every deploy.
//
// Usage:
//
//	seed-categories [--file categories.json]
//
// The optional file holds a JSON array of {"name","slug","description","imageUrl"} objects and
// replaces the built-in list.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/onnwee/livecast/backend/config"
	"github.com/onnwee/livecast/backend/db"
	"github.com/onnwee/livecast/backend/store"
)

var defaultCategories = []store.Category{
	{Name: "Just Chatting", Slug: "just-chatting", Description: "Hang out and talk with the community"},
	{Name: "Music", Slug: "music", Description: "Live performances, DJ sets and production sessions"},
	{Name: "Gaming", Slug: "gaming", Description: "Playthroughs, speedruns and competitive play"},
	{Name: "Art", Slug: "art", Description: "Drawing, painting, 3D and generative art"},
	{Name: "Crypto", Slug: "crypto", Description: "Markets, protocols and on-chain culture"},
	{Name: "Education", Slug: "education", Description: "Workshops, lectures and coding streams"},
	{Name: "IRL", Slug: "irl", Description: "Out in the world"},
}

type categoryInserter interface {
	EnsureCategory(ctx context.Context, c store.Category) (bool, error)
}

func main() {
	file := flag.String("file", "", "JSON file with categories to seed instead of the defaults")
	flag.Parse()
	_ = godotenv.Load("backend/.env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	cats := defaultCategories
	if *file != "" {
		if cats, err = loadCategories(*file); err != nil {
			slog.Error("failed to read categories", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close() //nolint:errcheck // process exit

	created, err := seed(ctx, store.New(database, nil), cats)
	if err != nil {
		slog.Error("seeding failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("categories seeded", slog.Int("created", created), slog.Int("total", len(cats)))
}

func loadCategories(path string) ([]store.Category, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}
	var cats []store.Category
	if err := json.Unmarshal(raw, &cats); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, c := range cats {
		if c.Name == "" || c.Slug == "" {
			return nil, fmt.Errorf("category %d: name and slug are required", i)
		}
	}
	return cats, nil
}

// seed inserts each category that is missing and returns how many were created.
func seed(ctx context.Context, s categoryInserter, cats []store.Category) (int, error) {
	created := 0
	for _, c := range cats {
		ok, err := s.EnsureCategory(ctx, c)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", c.Slug, err)
		}
		if ok {
			created++
			slog.Info("category created", slog.String("slug", c.Slug))
		}
	}
	return created, nil
}
