// Package storagetest holds behavior tests shared by every storage.Storage
// implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
)

// Factory returns an empty store. The store must be closed by the factory's
// cleanup, not by the caller.
type Factory func(t *testing.T) storage.Storage

// Run runs the shared storage tests against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("APIKeys", func(t *testing.T) { testAPIKeys(t, newStore(t)) })
	t.Run("Stories", func(t *testing.T) { testStories(t, newStore(t)) })
	t.Run("LockStory", func(t *testing.T) { testLockStory(t, newStore(t)) })
	t.Run("StoryPagination", func(t *testing.T) { testStoryPagination(t, newStore(t)) })
	t.Run("Tags", func(t *testing.T) { testTags(t, newStore(t)) })
	t.Run("StoryTags", func(t *testing.T) { testStoryTags(t, newStore(t)) })
	t.Run("Supports", func(t *testing.T) { testSupports(t, newStore(t)) })
	t.Run("CountersFloorAtZero", func(t *testing.T) { testCountersFloorAtZero(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewStory builds a story created at base plus offset.
func NewStory(id string, offset time.Duration) *domain.Story {
	return &domain.Story{
		ID:        id,
		AuthorID:  "author-" + id,
		Title:     "Story " + id,
		Content:   "Once upon a time in " + id,
		CreatedAt: base.Add(offset),
		UpdatedAt: base.Add(offset),
	}
}

// NewTag builds an active tag.
func NewTag(id, name, slug string) *domain.Tag {
	return &domain.Tag{
		ID:        id,
		Name:      name,
		Slug:      slug,
		IsActive:  true,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func testAPIKeys(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	key := &domain.APIKey{ID: "k1", UserID: "u1", Name: "laptop", KeyHash: "hash-1", KeyPrefix: "ssk_12345678", CreatedAt: base}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	dup := *key
	dup.ID = "k2"
	assert.ErrorIs(t, s.CreateAPIKey(ctx, &dup), domain.ErrAlreadyExists)

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetAPIKeyByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, "k1"))
	got, err = s.GetAPIKeyByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)

	_, err = s.GetAPIKeyByHash(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, s.DeleteAPIKey(ctx, "k1"))
	assert.ErrorIs(t, s.DeleteAPIKey(ctx, "k1"), domain.ErrNotFound)
}

func testStories(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("s1", 0)))
	assert.ErrorIs(t, s.CreateStory(ctx, NewStory("s1", 0)), domain.ErrAlreadyExists)

	got, err := s.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Story s1", got.Title)
	assert.Equal(t, 0, got.SupportCount)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetStory(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testLockStory(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("s1", 0)))
	assert.NoError(t, s.LockStory(ctx, "s1"))
	assert.ErrorIs(t, s.LockStory(ctx, "missing"), domain.ErrNotFound)

	err := storage.WithTx(ctx, s, func(tx storage.Transaction) error {
		if err := tx.CreateStory(ctx, NewStory("s2", time.Minute)); err != nil {
			return err
		}
		assert.ErrorIs(t, tx.LockStory(ctx, "missing"), domain.ErrNotFound)
		if err := tx.LockStory(ctx, "s1"); err != nil {
			return err
		}
		// Stories created earlier in the same transaction are lockable.
		return tx.LockStory(ctx, "s2")
	})
	require.NoError(t, err)
}

func testStoryPagination(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("old", 0)))
	require.NoError(t, s.CreateStory(ctx, NewStory("mid", time.Hour)))
	require.NoError(t, s.CreateStory(ctx, NewStory("new", 2*time.Hour)))

	all, err := s.ListStories(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, storyIDs(all))

	page, err := s.ListStories(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, storyIDs(page))
}

func testTags(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateTag(ctx, NewTag("t1", "Hope", "hope")))
	require.NoError(t, s.CreateTag(ctx, NewTag("t2", "Courage", "courage")))
	require.NoError(t, s.CreateTag(ctx, NewTag("t3", "Grief", "grief")))
	assert.ErrorIs(t, s.CreateTag(ctx, NewTag("t4", "HOPE", "hope")), domain.ErrAlreadyExists)

	require.NoError(t, s.AdjustTagUsage(ctx, "t2", 3))
	require.NoError(t, s.AdjustTagUsage(ctx, "t1", 1))
	assert.ErrorIs(t, s.AdjustTagUsage(ctx, "missing", 1), domain.ErrNotFound)

	grief, err := s.GetTagBySlug(ctx, "grief")
	require.NoError(t, err)
	grief.IsActive = false
	grief.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.UpdateTag(ctx, grief))

	active, err := s.ListTags(ctx, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"courage", "hope"}, tagSlugs(active))

	all, err := s.ListTags(ctx, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"courage", "hope", "grief"}, tagSlugs(all))

	top, err := s.ListTags(ctx, false, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"courage"}, tagSlugs(top))

	_, err = s.GetTagBySlug(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testStoryTags(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("s1", 0)))
	require.NoError(t, s.CreateTag(ctx, NewTag("t1", "Hope", "hope")))
	require.NoError(t, s.CreateTag(ctx, NewTag("t2", "Courage", "courage")))

	require.NoError(t, s.CreateStoryTag(ctx, &domain.StoryTag{StoryID: "s1", TagID: "t1", CreatedAt: base}))
	require.NoError(t, s.CreateStoryTag(ctx, &domain.StoryTag{StoryID: "s1", TagID: "t2", CreatedAt: base.Add(time.Second)}))

	assert.ErrorIs(t, s.CreateStoryTag(ctx, &domain.StoryTag{StoryID: "s1", TagID: "t1", CreatedAt: base}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, s.CreateStoryTag(ctx, &domain.StoryTag{StoryID: "missing", TagID: "t1", CreatedAt: base}), domain.ErrNotFound)
	assert.ErrorIs(t, s.CreateStoryTag(ctx, &domain.StoryTag{StoryID: "s1", TagID: "missing", CreatedAt: base}), domain.ErrNotFound)

	tags, err := s.ListStoryTags(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hope", "courage"}, tagSlugs(tags))

	require.NoError(t, s.DeleteStoryTag(ctx, "s1", "t1"))
	assert.ErrorIs(t, s.DeleteStoryTag(ctx, "s1", "t1"), domain.ErrNotFound)

	tags, err = s.ListStoryTags(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"courage"}, tagSlugs(tags))

	none, err := s.ListStoryTags(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSupports(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("s1", 0)))

	heart := &domain.StorySupport{ID: "r1", StoryID: "s1", UserID: "u1", SupportType: domain.SupportHeart, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateStorySupport(ctx, heart))
	require.NoError(t, s.CreateStorySupport(ctx, &domain.StorySupport{ID: "r2", StoryID: "s1", UserID: "u2", SupportType: domain.SupportHeart, CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.CreateStorySupport(ctx, &domain.StorySupport{ID: "r3", StoryID: "s1", UserID: "u3", SupportType: domain.SupportHug, CreatedAt: base, UpdatedAt: base}))

	assert.ErrorIs(t, s.CreateStorySupport(ctx, &domain.StorySupport{ID: "r4", StoryID: "s1", UserID: "u1", SupportType: domain.SupportCare, CreatedAt: base, UpdatedAt: base}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, s.CreateStorySupport(ctx, &domain.StorySupport{ID: "r5", StoryID: "missing", UserID: "u1", SupportType: domain.SupportCare, CreatedAt: base, UpdatedAt: base}), domain.ErrNotFound)

	got, err := s.GetStorySupport(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SupportHeart, got.SupportType)

	got.SupportType = domain.SupportClap
	got.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.UpdateStorySupport(ctx, got))

	counts, err := s.CountStorySupportsByType(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[domain.SupportType]int{
		domain.SupportHeart: 1,
		domain.SupportHug:   1,
		domain.SupportClap:  1,
	}, counts)

	require.NoError(t, s.DeleteStorySupport(ctx, "s1", "u2"))
	assert.ErrorIs(t, s.DeleteStorySupport(ctx, "s1", "u2"), domain.ErrNotFound)

	_, err = s.GetStorySupport(ctx, "s1", "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	counts, err = s.CountStorySupportsByType(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func testCountersFloorAtZero(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("s1", 0)))
	require.NoError(t, s.CreateTag(ctx, NewTag("t1", "Hope", "hope")))

	require.NoError(t, s.AdjustStorySupportCount(ctx, "s1", 1))
	require.NoError(t, s.AdjustStorySupportCount(ctx, "s1", -3))
	story, err := s.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, story.SupportCount)

	require.NoError(t, s.AdjustTagUsage(ctx, "t1", -1))
	tag, err := s.GetTagBySlug(ctx, "hope")
	require.NoError(t, err)
	assert.Equal(t, 0, tag.UsageCount)

	assert.ErrorIs(t, s.AdjustStorySupportCount(ctx, "missing", 1), domain.ErrNotFound)
}

func testTxCommit(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	err := storage.WithTx(ctx, s, func(tx storage.Transaction) error {
		if err := tx.CreateStory(ctx, NewStory("s1", 0)); err != nil {
			return err
		}
		return tx.AdjustStorySupportCount(ctx, "s1", 2)
	})
	require.NoError(t, err)

	story, err := s.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, story.SupportCount)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), storage.ErrTxDone)

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
}

func testTxRollback(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateStory(ctx, NewStory("s1", 0)))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTag(ctx, NewTag("t1", "Hope", "hope")))
	require.NoError(t, tx.CreateStoryTag(ctx, &domain.StoryTag{StoryID: "s1", TagID: "t1", CreatedAt: base}))
	require.NoError(t, tx.AdjustTagUsage(ctx, "t1", 1))

	// Writes are visible inside the transaction
	inTx, err := tx.ListStoryTags(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, inTx, 1)

	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, tx.Rollback(), storage.ErrTxDone)

	_, err = s.GetTagBySlug(ctx, "hope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	tags, err := s.ListStoryTags(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func storyIDs(stories []*domain.Story) []string {
	ids := make([]string, 0, len(stories))
	for _, st := range stories {
		ids = append(ids, st.ID)
	}
	return ids
}

func tagSlugs(tags []*domain.Tag) []string {
	slugs := make([]string, 0, len(tags))
	for _, tag := range tags {
		slugs = append(slugs, tag.Slug)
	}
	return slugs
}
