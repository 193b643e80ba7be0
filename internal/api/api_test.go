package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storyshare/storyshare-api/internal/api"
	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/logger"
	"github.com/storyshare/storyshare-api/internal/ratelimit"
	"github.com/storyshare/storyshare-api/internal/storage/memory"
	"github.com/storyshare/storyshare-api/internal/support"
	"github.com/storyshare/storyshare-api/internal/tagging"
)

// testServer creates a test server with in-memory storage
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	bootstrapKey string
}

func newTestServer() *testServer {
	return newTestServerWithLimiter(nil)
}

func newTestServerWithLimiter(limiter *ratelimit.KeyedRateLimiter) *testServer {
	store := memory.New()
	bootstrapKey := "test-bootstrap-key"
	log := logger.Discard()

	handler := api.NewRouter(
		store,
		tagging.NewService(store, domain.DefaultMaxTagsPerStory, log),
		support.NewService(store, log),
		api.Options{
			BootstrapKey: bootstrapKey,
			Limiter:      limiter,
			Logger:       log,
		},
	)

	return &testServer{
		handler:      handler,
		store:        store,
		bootstrapKey: bootstrapKey,
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// createKey issues an API key for userID.
func (ts *testServer) createKey(t *testing.T, authKey, userID string) string {
	t.Helper()

	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: userID + " key", UserID: userID}, authKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating key, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp domain.CreateAPIKeyResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return resp.Key
}

// createStory publishes a story and returns it.
func (ts *testServer) createStory(t *testing.T, apiKey string, tags ...string) domain.Story {
	t.Helper()

	req := domain.CreateStoryRequest{
		Title:   "Finding my voice",
		Content: "It took years before I could talk about it.",
		Tags:    tags,
	}
	rr := ts.request("POST", "/api/v1/stories", req, apiKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating story, got %d: %s", rr.Code, rr.Body.String())
	}

	var story domain.Story
	_ = json.Unmarshal(rr.Body.Bytes(), &story)
	return story
}

// assertErrorBody checks the JSON error envelope written for a failed request.
func assertErrorBody(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}

	var resp domain.APIError
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected JSON error body, got %q: %v", rr.Body.String(), err)
	}
	if resp.Code != status {
		t.Errorf("Expected code %d in body, got %d", status, resp.Code)
	}
	if resp.ErrCode != code {
		t.Errorf("Expected error %s, got %q", code, resp.ErrCode)
	}
	if resp.Message == "" {
		t.Error("Expected a message")
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("GET", "/health", nil, "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer()

	// Request without auth header
	rr := ts.request("GET", "/api/v1/stories", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
	assertErrorBody(t, rr, http.StatusUnauthorized, domain.ErrCodeUnauthorized)

	// Request with invalid auth header format
	req := httptest.NewRequest("GET", "/api/v1/stories", nil)
	req.Header.Set("Authorization", "Basic invalid")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid API key
	rr = ts.request("GET", "/api/v1/stories", nil, "invalid-key")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestBootstrapKeyAuth(t *testing.T) {
	ts := newTestServer()

	// Bootstrap key works while no API keys exist
	rr := ts.request("GET", "/api/v1/stories", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bootstrap key, got %d", rr.Code)
	}

	ts.createKey(t, ts.bootstrapKey, "user-1")

	rr = ts.request("GET", "/api/v1/stories", nil, ts.bootstrapKey)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected bootstrap key to be rejected once keys exist, got %d", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer()

	createReq := domain.CreateAPIKeyRequest{Name: "Test Key", UserID: "user-1"}
	rr := ts.request("POST", "/api/v1/keys", createReq, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var createResp domain.CreateAPIKeyResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &createResp)
	if createResp.Key == "" {
		t.Error("Expected key to be returned on creation")
	}
	if createResp.UserID != "user-1" {
		t.Errorf("Expected user_id 'user-1', got '%s'", createResp.UserID)
	}

	// List API keys with the new key
	rr = ts.request("GET", "/api/v1/keys", nil, createResp.Key)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var keys []*domain.APIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys) != 1 {
		t.Errorf("Expected 1 key, got %d", len(keys))
	}

	rr = ts.request("DELETE", "/api/v1/keys/"+createResp.ID, nil, createResp.Key)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: "No user"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["error"] != domain.ErrCodeValidationError {
		t.Errorf("Expected error %s, got %v", domain.ErrCodeValidationError, resp["error"])
	}
}

func TestStoryCRUD(t *testing.T) {
	ts := newTestServer()
	key := ts.createKey(t, ts.bootstrapKey, "author-1")

	story := ts.createStory(t, key, "Healing", "hope")
	if story.AuthorID != "author-1" {
		t.Errorf("Expected author 'author-1', got '%s'", story.AuthorID)
	}
	if len(story.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %d", len(story.Tags))
	}

	// Get story (note trailing slash for the subrouter)
	rr := ts.request("GET", "/api/v1/stories/"+story.ID+"/", nil, key)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("ETag") == "" {
		t.Error("Expected ETag header")
	}

	var got domain.Story
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Title != story.Title {
		t.Errorf("Expected title '%s', got '%s'", story.Title, got.Title)
	}
	if len(got.Tags) != 2 || got.Tags[0].Slug != "healing" {
		t.Errorf("Expected tags [healing hope], got %+v", got.Tags)
	}

	ts.createStory(t, key)

	rr = ts.request("GET", "/api/v1/stories?limit=1", nil, key)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var stories []*domain.Story
	_ = json.Unmarshal(rr.Body.Bytes(), &stories)
	if len(stories) != 1 {
		t.Errorf("Expected 1 story with limit=1, got %d", len(stories))
	}

	rr = ts.request("GET", "/api/v1/stories/missing/", nil, key)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
	assertErrorBody(t, rr, http.StatusNotFound, domain.ErrCodeResourceNotFound)
}

func TestCreateStoryTooManyTags(t *testing.T) {
	ts := newTestServer()

	req := domain.CreateStoryRequest{
		Title:   "Too many labels",
		Content: "Every label tells only part of it.",
		Tags:    []string{"one", "two", "three", "four", "five", "six"},
	}
	rr := ts.request("POST", "/api/v1/stories", req, ts.bootstrapKey)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}

	stories, _ := ts.store.ListStories(t.Context(), 0, 0)
	if len(stories) != 0 {
		t.Errorf("Expected no story to be created, got %d", len(stories))
	}
}

func TestStoryTags(t *testing.T) {
	ts := newTestServer()
	story := ts.createStory(t, ts.bootstrapKey)
	path := "/api/v1/stories/" + story.ID + "/tags"

	// Add tags, with a duplicate and a malformed value
	rr := ts.request("POST", path, map[string]any{"tags": []any{"Güçlü Kadın", "guclu kadin", "x", 42, "Hope"}}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var added domain.AddTagsResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &added)
	if len(added.Added) != 2 {
		t.Errorf("Expected 2 added tags, got %d", len(added.Added))
	}
	if added.Added[0].Slug != "guclu-kadin" || added.Added[0].Name != "Güçlü Kadın" {
		t.Errorf("Expected first tag guclu-kadin/Güçlü Kadın, got %s/%s", added.Added[0].Slug, added.Added[0].Name)
	}

	// Replace the set
	rr = ts.request("PUT", path, map[string]any{"tags": []string{"hope", "courage"}}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("GET", path, nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var tags []*domain.Tag
	_ = json.Unmarshal(rr.Body.Bytes(), &tags)
	slugs := map[string]bool{}
	for _, tag := range tags {
		slugs[tag.Slug] = true
	}
	if len(tags) != 2 || !slugs["hope"] || !slugs["courage"] {
		t.Errorf("Expected tags {hope, courage}, got %v", slugs)
	}

	old, err := ts.store.GetTagBySlug(t.Context(), "guclu-kadin")
	if err != nil {
		t.Fatalf("GetTagBySlug() error = %v", err)
	}
	if old.UsageCount != 0 {
		t.Errorf("Expected detached tag usage 0, got %d", old.UsageCount)
	}

	// Missing tags field
	rr = ts.request("POST", path, map[string]any{}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	// Unknown story
	rr = ts.request("POST", "/api/v1/stories/missing/tags", map[string]any{"tags": []string{"hope"}}, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestStoryTagsLimitExceeded(t *testing.T) {
	ts := newTestServer()
	story := ts.createStory(t, ts.bootstrapKey, "a1", "a2", "a3", "a4")
	path := "/api/v1/stories/" + story.ID + "/tags"

	rr := ts.request("POST", path, map[string]any{"tags": []string{"b1", "b2"}}, ts.bootstrapKey)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["error"] != domain.ErrCodeTagLimitExceeded {
		t.Errorf("Expected error %s, got %v", domain.ErrCodeTagLimitExceeded, resp["error"])
	}
	if resp["max"] != float64(domain.DefaultMaxTagsPerStory) {
		t.Errorf("Expected max %d, got %v", domain.DefaultMaxTagsPerStory, resp["max"])
	}
	if resp["code"] != float64(http.StatusUnprocessableEntity) {
		t.Errorf("Expected code 422, got %v", resp["code"])
	}

	// Nothing was written
	tags, _ := ts.store.ListStoryTags(t.Context(), story.ID)
	if len(tags) != 4 {
		t.Errorf("Expected 4 tags after rejected add, got %d", len(tags))
	}
	if _, err := ts.store.GetTagBySlug(t.Context(), "b1"); err == nil {
		t.Error("Expected tag b1 not to be created")
	}

	rr = ts.request("PUT", path, map[string]any{"tags": []string{"c1", "c2", "c3", "c4", "c5", "c6"}}, ts.bootstrapKey)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 on replace, got %d", rr.Code)
	}
}

func TestSupportToggle(t *testing.T) {
	ts := newTestServer()
	aliceKey := ts.createKey(t, ts.bootstrapKey, "alice")
	bobKey := ts.createKey(t, aliceKey, "bob")

	story := ts.createStory(t, aliceKey)
	path := "/api/v1/stories/" + story.ID + "/support"

	// Empty body reacts with HEART
	rr := ts.request("POST", path, nil, aliceKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var result domain.SupportResult
	_ = json.Unmarshal(rr.Body.Bytes(), &result)
	if result.Action != domain.SupportAdded || result.SupportType != domain.SupportHeart {
		t.Errorf("Expected added/HEART, got %s/%s", result.Action, result.SupportType)
	}

	rr = ts.request("POST", path, domain.SupportRequest{SupportType: "hug"}, bobKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &result)
	if result.Action != domain.SupportAdded || result.SupportType != domain.SupportHug {
		t.Errorf("Expected added/HUG, got %s/%s", result.Action, result.SupportType)
	}

	// Switch type
	rr = ts.request("POST", path, domain.SupportRequest{SupportType: "CLAP"}, aliceKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &result)
	if result.Action != domain.SupportUpdated || result.SupportType != domain.SupportClap {
		t.Errorf("Expected updated/CLAP, got %s/%s", result.Action, result.SupportType)
	}

	rr = ts.request("GET", path, nil, aliceKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var summary domain.SupportSummary
	_ = json.Unmarshal(rr.Body.Bytes(), &summary)
	if summary.Total != 2 {
		t.Errorf("Expected total 2, got %d", summary.Total)
	}
	if len(summary.Breakdown) != 4 {
		t.Errorf("Expected 4 breakdown entries, got %d", len(summary.Breakdown))
	}
	if summary.UserSupport == nil || *summary.UserSupport != domain.SupportClap {
		t.Errorf("Expected user support CLAP, got %v", summary.UserSupport)
	}

	// Same type again removes
	rr = ts.request("POST", path, domain.SupportRequest{SupportType: "CLAP"}, aliceKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &result)
	if result.Action != domain.SupportRemoved {
		t.Errorf("Expected removed, got %s", result.Action)
	}

	rr = ts.request("GET", "/api/v1/stories/"+story.ID+"/", nil, aliceKey)
	var got domain.Story
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.SupportCount != 1 {
		t.Errorf("Expected support count 1, got %d", got.SupportCount)
	}

	rr = ts.request("POST", path+"/reconcile", nil, aliceKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from reconcile, got %d", rr.Code)
	}
	var reconciled map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &reconciled)
	if reconciled["supportCount"] != float64(1) {
		t.Errorf("Expected reconciled count 1, got %v", reconciled["supportCount"])
	}

	rr = ts.request("GET", "/api/v1/stories/missing/support", nil, aliceKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestUpdateTag(t *testing.T) {
	ts := newTestServer()
	ts.createStory(t, ts.bootstrapKey, "mental health")

	inactive := false
	rr := ts.request("PATCH", "/api/v1/tags/mental-health", domain.UpdateTagRequest{IsActive: &inactive}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	etag := rr.Header().Get("ETag")

	rr = ts.request("GET", "/api/v1/tags", nil, ts.bootstrapKey)
	var tags []*domain.Tag
	_ = json.Unmarshal(rr.Body.Bytes(), &tags)
	if len(tags) != 0 {
		t.Errorf("Expected inactive tag to be hidden, got %d tags", len(tags))
	}

	// Rename that changes the slug is rejected
	name := "Wellbeing"
	rr = ts.request("PATCH", "/api/v1/tags/mental-health", domain.UpdateTagRequest{Name: &name}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	// Stale If-Match is rejected
	req := httptest.NewRequest("PATCH", "/api/v1/tags/mental-health", bytes.NewReader([]byte(`{"isActive":true}`)))
	req.Header.Set("Authorization", "Bearer "+ts.bootstrapKey)
	req.Header.Set("If-Match", `"tag-stale-0"`)
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected status 412, got %d", rr.Code)
	}

	// Matching If-Match is accepted
	req = httptest.NewRequest("PATCH", "/api/v1/tags/mental-health", bytes.NewReader([]byte(`{"isActive":true}`)))
	req.Header.Set("Authorization", "Bearer "+ts.bootstrapKey)
	req.Header.Set("If-Match", etag)
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("PATCH", "/api/v1/tags/unknown", domain.UpdateTagRequest{IsActive: &inactive}, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(1, 2, 0)
	defer limiter.Stop()
	ts := newTestServerWithLimiter(limiter)

	for i := 0; i < 2; i++ {
		rr := ts.request("GET", "/api/v1/stories", nil, ts.bootstrapKey)
		if rr.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i, rr.Code)
		}
	}

	rr := ts.request("GET", "/api/v1/stories", nil, ts.bootstrapKey)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Expected Retry-After 1, got %q", got)
	}
	assertErrorBody(t, rr, http.StatusTooManyRequests, domain.ErrCodeRateLimited)

	// Health is not rate limited
	rr = ts.request("GET", "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 for health, got %d", rr.Code)
	}
}

func TestInvalidRequests(t *testing.T) {
	ts := newTestServer()

	req := httptest.NewRequest("POST", "/api/v1/stories", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Authorization", "Bearer "+ts.bootstrapKey)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid JSON, got %d", rr.Code)
	}

	rr = ts.request("POST", "/api/v1/stories", domain.CreateStoryRequest{Title: "Hi", Content: "short"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid story, got %d", rr.Code)
	}

	rr = ts.request("GET", "/api/v1/stories?limit=-1", nil, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for negative limit, got %d", rr.Code)
	}
	assertErrorBody(t, rr, http.StatusBadRequest, domain.ErrCodeInvalidInput)
}
