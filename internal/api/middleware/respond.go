package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/storyshare/storyshare-api/internal/domain"
)

// writeError writes the API's JSON error envelope. http.Error is not used
// because it labels the body text/plain.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&domain.APIError{
		Code:    status,
		Message: message,
		ErrCode: code,
	})
}
