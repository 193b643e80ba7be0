package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
	"github.com/storyshare/storyshare-api/internal/support"
)

// SupportHandler handles story reaction endpoints.
type SupportHandler struct {
	store   storage.Storage
	support *support.Service
}

// NewSupportHandler creates a new SupportHandler.
func NewSupportHandler(store storage.Storage, support *support.Service) *SupportHandler {
	return &SupportHandler{store: store, support: support}
}

// Apply toggles or switches the caller's reaction on a story.
// An empty body reacts with the default type.
func (h *SupportHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req domain.SupportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	userID := callerID(r)
	if userID == "" {
		respondError(w, http.StatusForbidden, domain.ErrCodeForbidden, "API key is not bound to a user")
		return
	}

	result, err := h.support.ApplyReaction(r.Context(), chi.URLParam(r, "story_id"), userID, req.SupportType)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Summary returns reaction counts for a story and the caller's own reaction.
func (h *SupportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := chi.URLParam(r, "story_id")

	if _, err := h.store.GetStory(ctx, storyID); err != nil {
		handleError(w, err)
		return
	}

	summary, err := h.support.Summary(ctx, storyID, callerID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// Reconcile recomputes a story's support count from its reactions.
func (h *SupportHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "story_id")

	total, err := h.support.Reconcile(r.Context(), storyID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"storyId":      storyID,
		"supportCount": total,
	})
}
