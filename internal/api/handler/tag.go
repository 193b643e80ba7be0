package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
	"github.com/storyshare/storyshare-api/internal/tagging"
)

const defaultPopularTags = 20

// TagHandler handles story tag and tag catalog endpoints.
type TagHandler struct {
	store   storage.Storage
	tagging *tagging.Service
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(store storage.Storage, tagging *tagging.Service) *TagHandler {
	return &TagHandler{store: store, tagging: tagging}
}

// ListStoryTags lists the tags attached to a story.
func (h *TagHandler) ListStoryTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := chi.URLParam(r, "story_id")

	if _, err := h.store.GetStory(ctx, storyID); err != nil {
		handleError(w, err)
		return
	}

	tags, err := h.tagging.StoryTags(ctx, storyID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tags)
}

// AddStoryTags attaches tags to a story, keeping the ones it already has.
func (h *TagHandler) AddStoryTags(w http.ResponseWriter, r *http.Request) {
	var req domain.TagsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, err)
		return
	}

	ctx := r.Context()
	storyID := chi.URLParam(r, "story_id")

	if _, err := h.store.GetStory(ctx, storyID); err != nil {
		handleError(w, err)
		return
	}

	resp, err := h.tagging.AddTags(ctx, storyID, req.Tags)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ReplaceStoryTags makes the story's tags exactly the requested set.
func (h *TagHandler) ReplaceStoryTags(w http.ResponseWriter, r *http.Request) {
	var req domain.TagsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, err)
		return
	}

	ctx := r.Context()
	storyID := chi.URLParam(r, "story_id")

	if _, err := h.store.GetStory(ctx, storyID); err != nil {
		handleError(w, err)
		return
	}

	tags, err := h.tagging.ReplaceTags(ctx, storyID, req.Tags)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tags)
}

// ListPopular lists active tags ordered by usage.
func (h *TagHandler) ListPopular(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPopularTags)
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "limit must be a non-negative integer")
		return
	}

	tags, err := h.tagging.PopularTags(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tags)
}

// Update renames, deactivates or reactivates a tag.
func (h *TagHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateTagRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, err)
		return
	}

	ctx := r.Context()
	slug := chi.URLParam(r, "slug")

	current, err := h.store.GetTagBySlug(ctx, slug)
	if err != nil {
		handleError(w, err)
		return
	}
	if !checkTagIfMatch(r, current) {
		RespondPreconditionFailed(w, "tag", current.ID, current.UpdatedAt)
		return
	}

	tag, err := h.tagging.UpdateTag(ctx, slug, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	setTagETag(w, tag)
	respondJSON(w, http.StatusOK, tag)
}
