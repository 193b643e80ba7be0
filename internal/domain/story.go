package domain

import "time"

// Story is a personal narrative post published by a user.
// SupportCount is a denormalized count of StorySupport rows.
type Story struct {
	ID           string    `json:"id" db:"id"`
	AuthorID     string    `json:"authorId" db:"author_id"`
	Title        string    `json:"title" db:"title"`
	Content      string    `json:"content" db:"content"`
	SupportCount int       `json:"supportCount" db:"support_count"`
	Tags         []*Tag    `json:"tags,omitempty" db:"-"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// CreateStoryRequest is the request body for creating a story.
type CreateStoryRequest struct {
	Title   string   `json:"title" validate:"required,min=3,max=200"`
	Content string   `json:"content" validate:"required,min=10"`
	Tags    []string `json:"tags,omitempty"`
}
