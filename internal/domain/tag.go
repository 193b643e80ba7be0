package domain

import "time"

// DefaultMaxTagsPerStory is the number of tags a story may carry at once.
const DefaultMaxTagsPerStory = 5

// Tag is a global label identified by its slug.
// The display name is mutable metadata; the slug never changes.
type Tag struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Slug       string    `json:"slug" db:"slug"`
	UsageCount int       `json:"usageCount" db:"usage_count"`
	IsActive   bool      `json:"isActive" db:"is_active"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// StoryTag records that a story currently carries a tag.
type StoryTag struct {
	StoryID   string    `json:"storyId" db:"story_id"`
	TagID     string    `json:"tagId" db:"tag_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TagsRequest is the request body for adding or replacing story tags.
// Values are free text; malformed entries are dropped during normalization.
type TagsRequest struct {
	Tags []any `json:"tags" validate:"required"`
}

// AddTagsResponse is returned after adding tags to a story.
type AddTagsResponse struct {
	Added []*Tag `json:"added"`
	Tags  []*Tag `json:"tags"`
}

// UpdateTagRequest is the request body for updating a tag.
type UpdateTagRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=2,max=30"`
	IsActive *bool   `json:"isActive,omitempty"`
}
