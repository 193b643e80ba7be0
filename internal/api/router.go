package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/storyshare/storyshare-api/internal/api/handler"
	"github.com/storyshare/storyshare-api/internal/api/middleware"
	"github.com/storyshare/storyshare-api/internal/ratelimit"
	"github.com/storyshare/storyshare-api/internal/storage"
	"github.com/storyshare/storyshare-api/internal/support"
	"github.com/storyshare/storyshare-api/internal/tagging"
)

// Options configures the router.
type Options struct {
	BootstrapKey   string
	AllowedOrigins []string
	// Limiter throttles API requests per client. Nil disables rate limiting.
	Limiter *ratelimit.KeyedRateLimiter
	Logger  *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	store storage.Storage,
	tagService *tagging.Service,
	supportService *support.Service,
	opts Options,
) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-Match"},
			ExposedHeaders:   []string{"ETag"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(middleware.RateLimit(opts.Limiter, logger))
		}
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, opts.BootstrapKey, logger))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Stories
		storyHandler := handler.NewStoryHandler(store, tagService)
		r.Post("/stories", storyHandler.Create)
		r.Get("/stories", storyHandler.List)

		tagHandler := handler.NewTagHandler(store, tagService)
		supportHandler := handler.NewSupportHandler(store, supportService)

		r.Route("/stories/{story_id}", func(r chi.Router) {
			r.Get("/", storyHandler.Get)

			// Tags
			r.Get("/tags", tagHandler.ListStoryTags)
			r.Post("/tags", tagHandler.AddStoryTags)
			r.Put("/tags", tagHandler.ReplaceStoryTags)

			// Reactions
			r.Post("/support", supportHandler.Apply)
			r.Get("/support", supportHandler.Summary)
			r.Post("/support/reconcile", supportHandler.Reconcile)
		})

		// Tag catalog
		r.Get("/tags", tagHandler.ListPopular)
		r.Patch("/tags/{slug}", tagHandler.Update)
	})

	return r
}
