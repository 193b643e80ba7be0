package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
	"github.com/storyshare/storyshare-api/internal/tagging"
)

const (
	defaultStoryPageSize = 20
	maxStoryPageSize     = 100
)

// StoryHandler handles story endpoints.
type StoryHandler struct {
	store   storage.Storage
	tagging *tagging.Service
}

// NewStoryHandler creates a new StoryHandler.
func NewStoryHandler(store storage.Storage, tagging *tagging.Service) *StoryHandler {
	return &StoryHandler{store: store, tagging: tagging}
}

// Create publishes a story authored by the caller, optionally tagged.
func (h *StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateStoryRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, err)
		return
	}

	now := time.Now()
	story := &domain.Story{
		ID:        generateID(),
		AuthorID:  callerID(r),
		Title:     req.Title,
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.tagging.CreateStory(r.Context(), story, tagging.Strings(req.Tags)); err != nil {
		handleError(w, err)
		return
	}

	setStoryETag(w, story)
	respondJSON(w, http.StatusCreated, story)
}

// List lists stories, newest first.
func (h *StoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultStoryPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "offset must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxStoryPageSize {
		limit = maxStoryPageSize
	}

	stories, err := h.store.ListStories(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stories)
}

// Get returns a story with its current tags.
func (h *StoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	story, err := h.store.GetStory(ctx, chi.URLParam(r, "story_id"))
	if err != nil {
		handleError(w, err)
		return
	}

	story.Tags, err = h.tagging.StoryTags(ctx, story.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	setStoryETag(w, story)
	respondJSON(w, http.StatusOK, story)
}
