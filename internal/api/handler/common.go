package handler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/storyshare/storyshare-api/internal/api/middleware"
	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/validation"
)

// requestValidator validates decoded request bodies.
var requestValidator = validation.New()

// tagLimitResponse is the body returned when a story would exceed its tag limit.
type tagLimitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Max     int    `json:"max"`
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response. code is one of the
// domain.ErrCode constants.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &domain.APIError{
		Code:    status,
		Message: message,
		ErrCode: code,
	})
}

// respondStandardError writes a JSON error response carrying a machine readable code.
func respondStandardError(w http.ResponseWriter, status int, code, message, field string, details map[string]any) {
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{
			Code:    code,
			Message: message,
			Field:   field,
			Details: details,
		},
	})
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	var limitErr *domain.TagLimitError
	var validationErrs validation.ValidationErrors

	switch {
	case errors.As(err, &limitErr):
		respondJSON(w, http.StatusUnprocessableEntity, &tagLimitResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: limitErr.Error(),
			Error:   domain.ErrCodeTagLimitExceeded,
			Max:     limitErr.Max,
		})
	case errors.As(err, &validationErrs):
		respondValidationErrors(w, validationErrs)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, domain.ErrCodeResourceAlreadyExists, "already exists")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid input")
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
	default:
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// decodeAndValidate decodes the request body into v and validates its struct tags.
func decodeAndValidate(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return requestValidator.Validate(v)
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.ErrInvalidInput
	}
	return n, nil
}

// callerID returns the user id of the authenticated API key.
func callerID(r *http.Request) string {
	if key := middleware.GetAPIKeyFromContext(r.Context()); key != nil {
		return key.UserID
	}
	return ""
}

// generateID generates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new random API key.
func generateAPIKey() (key string, hash string, prefix string, err error) {
	// Generate 32 random bytes for the key
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}

	key = "ssk_" + hex.EncodeToString(bytes)
	hash = hashKey(key)
	prefix = key[:12] // "ssk_" + first 8 chars of hex

	return key, hash, prefix, nil
}

// hashKey creates a SHA-256 hash of the API key.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// respondValidationErrors writes a JSON response for validation errors.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"code":    http.StatusBadRequest,
		"message": errs.Error(),
		"error":   domain.ErrCodeValidationError,
		"errors":  errs,
	})
}
