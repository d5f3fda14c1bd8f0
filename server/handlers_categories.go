package server

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/store"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// slugify lowercases s and joins its alphanumeric runs with dashes.
func slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (h *Handlers) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type categoryDetail struct {
	*store.Category
	Streams []store.Stream `json:"streams"`
}

// HandleGetCategory returns the category with a page of its streams, live first.
func (h *Handlers) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	c, err := h.store.GetCategoryBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("category")
		}
		writeError(w, r, err)
		return
	}
	streams, err := h.store.ListStreams(r.Context(), store.StreamFilter{
		CategorySlug: slug,
		Live:         parseBoolQuery(r, "live"),
		Page:         pageQuery(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryDetail{Category: c, Streams: streams})
}

type categoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// HandleCreateCategory is the admin route for adding a category.
func (h *Handlers) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		writeError(w, r, apperr.Validation("name is required"))
		return
	}
	if in.Slug == "" {
		in.Slug = slugify(in.Name)
	}
	if !slugPattern.MatchString(in.Slug) {
		writeError(w, r, apperr.Validation("slug must be lowercase letters, digits and dashes"))
		return
	}
	if in.ImageURL != "" && !isHTTPURL(in.ImageURL) {
		writeError(w, r, apperr.Validation("imageUrl must be an http(s) URL"))
		return
	}
	c, err := h.store.CreateCategory(r.Context(), store.Category{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    in.ImageURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = apperr.Conflict("category name or slug already exists")
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
