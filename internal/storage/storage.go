package storage

import (
	"context"
	"errors"

	"github.com/storyshare/storyshare-api/internal/domain"
)

var (
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already committed or rolled back")
	// ErrNestedTx is returned by BeginTx on a transaction.
	ErrNestedTx = errors.New("nested transactions not supported")
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Stories
	CreateStory(ctx context.Context, story *domain.Story) error
	GetStory(ctx context.Context, id string) (*domain.Story, error)
	ListStories(ctx context.Context, limit, offset int) ([]*domain.Story, error)
	// LockStory returns ErrNotFound for an unknown story. Inside a
	// transaction it also holds the story's row lock until commit or
	// rollback, serializing writers that touch the same story.
	LockStory(ctx context.Context, storyID string) error
	// AdjustStorySupportCount adds delta to the story's support count in a
	// single statement, flooring the result at zero.
	AdjustStorySupportCount(ctx context.Context, storyID string, delta int) error

	// Tags
	CreateTag(ctx context.Context, tag *domain.Tag) error
	GetTagBySlug(ctx context.Context, slug string) (*domain.Tag, error)
	ListTags(ctx context.Context, activeOnly bool, limit int) ([]*domain.Tag, error)
	UpdateTag(ctx context.Context, tag *domain.Tag) error
	// AdjustTagUsage adds delta to the tag's usage count in a single
	// statement, flooring the result at zero.
	AdjustTagUsage(ctx context.Context, tagID string, delta int) error

	// Story Tags
	CreateStoryTag(ctx context.Context, storyTag *domain.StoryTag) error
	DeleteStoryTag(ctx context.Context, storyID, tagID string) error
	ListStoryTags(ctx context.Context, storyID string) ([]*domain.Tag, error)

	// Story Supports
	CreateStorySupport(ctx context.Context, support *domain.StorySupport) error
	GetStorySupport(ctx context.Context, storyID, userID string) (*domain.StorySupport, error)
	UpdateStorySupport(ctx context.Context, support *domain.StorySupport) error
	DeleteStorySupport(ctx context.Context, storyID, userID string) error
	CountStorySupportsByType(ctx context.Context, storyID string) (map[domain.SupportType]int, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise; fn's error is returned unchanged.
func WithTx(ctx context.Context, s Storage, fn func(tx Transaction) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
