package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
)

// Service assigns tags to stories.
type Service struct {
	store   storage.Storage
	maxTags int
	logger  *slog.Logger
}

// NewService creates a new Service. A non-positive maxTags falls back to
// domain.DefaultMaxTagsPerStory.
func NewService(store storage.Storage, maxTags int, logger *slog.Logger) *Service {
	if maxTags <= 0 {
		maxTags = domain.DefaultMaxTagsPerStory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, maxTags: maxTags, logger: logger}
}

// MaxTags returns the per-story tag limit.
func (s *Service) MaxTags() int {
	return s.maxTags
}

// CreateStory stores a new story and attaches the given tag values in one
// transaction, so a tag failure leaves no untagged story behind. On success
// story.Tags holds the attached tags.
func (s *Service) CreateStory(ctx context.Context, story *domain.Story, values []any) error {
	normalized := NormalizeAll(values)
	if len(normalized) > s.maxTags {
		return &domain.TagLimitError{Max: s.maxTags}
	}

	var resp *domain.AddTagsResponse
	err := storage.WithTx(ctx, s.store, func(tx storage.Transaction) error {
		if err := tx.CreateStory(ctx, story); err != nil {
			return fmt.Errorf("creating story: %w", err)
		}
		var err error
		resp, err = s.addTags(ctx, tx, story.ID, normalized)
		return err
	})
	if err != nil {
		return err
	}

	story.Tags = resp.Tags
	s.logger.Info("story created", "story_id", story.ID, "tags", len(resp.Tags))
	return nil
}

// AddTags attaches the given values to a story without removing any of its
// current tags. Values whose slug is already attached are ignored. If the
// story would end up with more than MaxTags tags, nothing is written and a
// *domain.TagLimitError is returned.
func (s *Service) AddTags(ctx context.Context, storyID string, values []any) (*domain.AddTagsResponse, error) {
	normalized := NormalizeAll(values)

	var resp *domain.AddTagsResponse
	err := storage.WithTx(ctx, s.store, func(tx storage.Transaction) error {
		var err error
		resp, err = s.addTags(ctx, tx, storyID, normalized)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("tags added", "story_id", storyID, "added", len(resp.Added), "total", len(resp.Tags))
	return resp, nil
}

// addTags holds the story lock from the limit check until commit, so
// concurrent adds to one story cannot both pass the check.
func (s *Service) addTags(ctx context.Context, tx storage.Transaction, storyID string, normalized []Normalized) (*domain.AddTagsResponse, error) {
	if err := tx.LockStory(ctx, storyID); err != nil {
		return nil, fmt.Errorf("locking story: %w", err)
	}

	current, err := tx.ListStoryTags(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("listing story tags: %w", err)
	}

	attached := slugSet(current)
	var fresh []Normalized
	for _, n := range normalized {
		if !attached[n.Slug] {
			fresh = append(fresh, n)
		}
	}

	if len(current)+len(fresh) > s.maxTags {
		return nil, &domain.TagLimitError{Max: s.maxTags}
	}

	resp := &domain.AddTagsResponse{Added: []*domain.Tag{}}
	for _, n := range fresh {
		tag, err := s.attach(ctx, tx, storyID, n, false)
		if err != nil {
			return nil, err
		}
		resp.Added = append(resp.Added, tag)
	}

	resp.Tags, err = tx.ListStoryTags(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("listing story tags: %w", err)
	}
	return resp, nil
}

// ReplaceTags makes the story's tag set exactly the normalized values.
// Detached tags lose one usage, newly attached tags gain one and are
// reactivated. More than MaxTags values after normalization fails with a
// *domain.TagLimitError before anything is written.
func (s *Service) ReplaceTags(ctx context.Context, storyID string, values []any) ([]*domain.Tag, error) {
	normalized := NormalizeAll(values)
	if len(normalized) > s.maxTags {
		return nil, &domain.TagLimitError{Max: s.maxTags}
	}

	desired := make(map[string]bool, len(normalized))
	for _, n := range normalized {
		desired[n.Slug] = true
	}

	var tags []*domain.Tag
	var removed, added int
	err := storage.WithTx(ctx, s.store, func(tx storage.Transaction) error {
		if err := tx.LockStory(ctx, storyID); err != nil {
			return fmt.Errorf("locking story: %w", err)
		}

		current, err := tx.ListStoryTags(ctx, storyID)
		if err != nil {
			return fmt.Errorf("listing story tags: %w", err)
		}

		for _, tag := range current {
			if desired[tag.Slug] {
				continue
			}
			if err := tx.DeleteStoryTag(ctx, storyID, tag.ID); err != nil {
				return fmt.Errorf("detaching tag %q: %w", tag.Slug, err)
			}
			if err := tx.AdjustTagUsage(ctx, tag.ID, -1); err != nil {
				return fmt.Errorf("decrementing usage of %q: %w", tag.Slug, err)
			}
			removed++
		}

		attached := slugSet(current)
		for _, n := range normalized {
			if attached[n.Slug] {
				continue
			}
			if _, err := s.attach(ctx, tx, storyID, n, true); err != nil {
				return err
			}
			added++
		}

		tags, err = tx.ListStoryTags(ctx, storyID)
		if err != nil {
			return fmt.Errorf("listing story tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("tags replaced", "story_id", storyID, "added", added, "removed", removed, "total", len(tags))
	return tags, nil
}

// attach finds or creates the tag for n, links it to the story and counts
// the new usage. The display name follows the latest spelling.
func (s *Service) attach(ctx context.Context, tx storage.Transaction, storyID string, n Normalized, reactivate bool) (*domain.Tag, error) {
	now := time.Now()

	tag, err := tx.GetTagBySlug(ctx, n.Slug)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		tag = &domain.Tag{
			ID:        uuid.New().String(),
			Name:      n.Name,
			Slug:      n.Slug,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateTag(ctx, tag); err != nil {
			return nil, fmt.Errorf("creating tag %q: %w", n.Slug, err)
		}
		s.logger.Info("tag created", "tag_id", tag.ID, "slug", tag.Slug)
	case err != nil:
		return nil, fmt.Errorf("looking up tag %q: %w", n.Slug, err)
	default:
		changed := false
		if tag.Name != n.Name {
			tag.Name = n.Name
			changed = true
		}
		if reactivate && !tag.IsActive {
			tag.IsActive = true
			changed = true
		}
		if changed {
			tag.UpdatedAt = now
			if err := tx.UpdateTag(ctx, tag); err != nil {
				return nil, fmt.Errorf("updating tag %q: %w", n.Slug, err)
			}
		}
	}

	if err := tx.CreateStoryTag(ctx, &domain.StoryTag{StoryID: storyID, TagID: tag.ID, CreatedAt: now}); err != nil {
		return nil, fmt.Errorf("attaching tag %q: %w", n.Slug, err)
	}
	if err := tx.AdjustTagUsage(ctx, tag.ID, 1); err != nil {
		return nil, fmt.Errorf("incrementing usage of %q: %w", n.Slug, err)
	}
	tag.UsageCount++
	return tag, nil
}

// StoryTags returns the tags currently attached to a story.
func (s *Service) StoryTags(ctx context.Context, storyID string) ([]*domain.Tag, error) {
	return s.store.ListStoryTags(ctx, storyID)
}

// PopularTags returns active tags ordered by usage count.
func (s *Service) PopularTags(ctx context.Context, limit int) ([]*domain.Tag, error) {
	return s.store.ListTags(ctx, true, limit)
}

// UpdateTag renames or (de)activates a tag. A new name must slug to the
// tag's existing slug; the slug is the tag's identity.
func (s *Service) UpdateTag(ctx context.Context, slug string, req *domain.UpdateTagRequest) (*domain.Tag, error) {
	var tag *domain.Tag
	err := storage.WithTx(ctx, s.store, func(tx storage.Transaction) error {
		var err error
		tag, err = tx.GetTagBySlug(ctx, slug)
		if err != nil {
			return err
		}

		if req.Name != nil {
			n, ok := Normalize(*req.Name)
			if !ok || n.Slug != tag.Slug {
				return domain.ErrInvalidInput
			}
			tag.Name = n.Name
		}
		if req.IsActive != nil {
			tag.IsActive = *req.IsActive
		}
		tag.UpdatedAt = time.Now()
		return tx.UpdateTag(ctx, tag)
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func slugSet(tags []*domain.Tag) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t.Slug] = true
	}
	return set
}
