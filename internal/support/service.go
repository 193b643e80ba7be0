// Package support records one typed reaction per user per story and keeps
// the story's aggregate support count consistent with those reactions.
//
// Per (story, user) pair the state is NONE or REACTED(type):
//
//	NONE        --pick T-->  REACTED(T)   count +1
//	REACTED(T)  --pick T-->  NONE         count -1, floored at 0
//	REACTED(T)  --pick U-->  REACTED(U)   count unchanged
package support

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
)

// NormalizeType maps a requested type onto the closed set of support types.
// Matching is case-insensitive; empty or unknown input yields the default.
func NormalizeType(requested string) domain.SupportType {
	candidate := domain.SupportType(strings.ToUpper(strings.TrimSpace(requested)))
	for _, t := range domain.SupportTypes {
		if t == candidate {
			return t
		}
	}
	return domain.DefaultSupportType
}

// Service applies reactions to stories.
type Service struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewService creates a new Service.
func NewService(store storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ApplyReaction toggles the user's reaction on a story. Store errors are
// returned as is; the request type itself never causes an error.
func (s *Service) ApplyReaction(ctx context.Context, storyID, userID, requested string) (*domain.SupportResult, error) {
	supportType := NormalizeType(requested)
	result := &domain.SupportResult{SupportType: supportType}

	err := storage.WithTx(ctx, s.store, func(tx storage.Transaction) error {
		if err := tx.LockStory(ctx, storyID); err != nil {
			return err
		}
		now := time.Now()

		existing, err := tx.GetStorySupport(ctx, storyID, userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			err = tx.CreateStorySupport(ctx, &domain.StorySupport{
				ID:          uuid.New().String(),
				StoryID:     storyID,
				UserID:      userID,
				SupportType: supportType,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return err
			}
			result.Action = domain.SupportAdded
			return tx.AdjustStorySupportCount(ctx, storyID, 1)

		case err != nil:
			return err

		case existing.SupportType == supportType:
			if err := tx.DeleteStorySupport(ctx, storyID, userID); err != nil {
				return err
			}
			result.Action = domain.SupportRemoved
			return tx.AdjustStorySupportCount(ctx, storyID, -1)

		default:
			existing.SupportType = supportType
			existing.UpdatedAt = now
			result.Action = domain.SupportUpdated
			return tx.UpdateStorySupport(ctx, existing)
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("reaction applied",
		"story_id", storyID,
		"user_id", userID,
		"action", result.Action,
		"support_type", result.SupportType,
	)
	return result, nil
}

// Summary counts the reactions on a story by type. Every support type is
// present in the breakdown. When userID is not empty the user's current
// reaction, if any, is included.
func (s *Service) Summary(ctx context.Context, storyID, userID string) (*domain.SupportSummary, error) {
	counts, err := s.store.CountStorySupportsByType(ctx, storyID)
	if err != nil {
		return nil, err
	}

	summary := &domain.SupportSummary{
		Breakdown: make([]domain.SupportCount, 0, len(domain.SupportTypes)),
	}
	for _, t := range domain.SupportTypes {
		n := counts[t]
		summary.Breakdown = append(summary.Breakdown, domain.SupportCount{Type: t, Count: n})
		summary.Total += n
	}

	if userID == "" {
		return summary, nil
	}

	existing, err := s.store.GetStorySupport(ctx, storyID, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		t := existing.SupportType
		summary.UserSupport = &t
	}
	return summary, nil
}

// Reconcile resets the story's support count to the number of reactions it
// currently has and returns that number.
func (s *Service) Reconcile(ctx context.Context, storyID string) (int, error) {
	var total int
	err := storage.WithTx(ctx, s.store, func(tx storage.Transaction) error {
		// The lock keeps reactions from landing between the read and the
		// correction.
		if err := tx.LockStory(ctx, storyID); err != nil {
			return err
		}
		story, err := tx.GetStory(ctx, storyID)
		if err != nil {
			return err
		}

		counts, err := tx.CountStorySupportsByType(ctx, storyID)
		if err != nil {
			return err
		}
		for _, n := range counts {
			total += n
		}

		delta := total - story.SupportCount
		if delta == 0 {
			return nil
		}
		s.logger.Warn("support count drift corrected",
			"story_id", storyID,
			"was", story.SupportCount,
			"now", total,
		)
		return tx.AdjustStorySupportCount(ctx, storyID, delta)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
