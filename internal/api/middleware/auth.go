package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
)

type contextKey string

const APIKeyContextKey contextKey = "api_key"

// BootstrapUserID is the user id the bootstrap key acts as.
const BootstrapUserID = "bootstrap"

// Auth creates authentication middleware.
func Auth(store storage.Storage, bootstrapKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract the API key from the Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid authorization header format")
				return
			}

			apiKey := strings.TrimPrefix(authHeader, "Bearer ")
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "empty API key")
				return
			}

			ctx := r.Context()

			// Check if we have any API keys in the database
			keyCount, err := store.CountAPIKeys(ctx)
			if err != nil {
				logger.Error("counting API keys", "error", err)
				writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
				return
			}

			// If no keys exist and bootstrap key is set, allow bootstrap key
			if keyCount == 0 && bootstrapKey != "" {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(bootstrapKey)) == 1 {
					ctx = context.WithValue(ctx, APIKeyContextKey, &domain.APIKey{
						ID:     "bootstrap",
						UserID: BootstrapUserID,
						Name:   "Bootstrap Key",
					})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Hash the provided key and look it up
			storedKey, err := store.GetAPIKeyByHash(ctx, hashAPIKey(apiKey))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid API key")
					return
				}
				logger.Error("looking up API key", "error", err)
				writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
				return
			}

			// Update last used timestamp (fire and forget)
			go func() {
				if err := store.UpdateAPIKeyLastUsed(context.Background(), storedKey.ID); err != nil {
					logger.Warn("updating API key last used", "key_id", storedKey.ID, "error", err)
				}
			}()

			ctx = context.WithValue(ctx, APIKeyContextKey, storedKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// hashAPIKey creates a SHA-256 hash of the API key.
// API keys are high-entropy random strings, so a fast hash is enough for lookups.
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GetAPIKeyFromContext retrieves the API key from the request context.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}
