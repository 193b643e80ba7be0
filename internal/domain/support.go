package domain

import "time"

// SupportType is the kind of reaction a user leaves on a story.
type SupportType string

const (
	SupportHeart SupportType = "HEART"
	SupportHug   SupportType = "HUG"
	SupportClap  SupportType = "CLAP"
	SupportCare  SupportType = "CARE"
)

// DefaultSupportType is used when a request names no type or an unknown one.
const DefaultSupportType = SupportHeart

// SupportTypes lists every support type in display order.
var SupportTypes = []SupportType{SupportHeart, SupportHug, SupportClap, SupportCare}

// StorySupport is a user's single reaction slot on a story.
type StorySupport struct {
	ID          string      `json:"id" db:"id"`
	StoryID     string      `json:"storyId" db:"story_id"`
	UserID      string      `json:"userId" db:"user_id"`
	SupportType SupportType `json:"supportType" db:"support_type"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

// SupportAction describes what a reaction request did.
type SupportAction string

const (
	SupportAdded   SupportAction = "added"
	SupportRemoved SupportAction = "removed"
	SupportUpdated SupportAction = "updated"
)

// SupportRequest is the request body for reacting to a story.
type SupportRequest struct {
	SupportType string `json:"supportType,omitempty"`
}

// SupportResult is returned after a reaction request.
type SupportResult struct {
	Action      SupportAction `json:"action"`
	SupportType SupportType   `json:"supportType"`
}

// SupportCount is the number of reactions of one type.
type SupportCount struct {
	Type  SupportType `json:"type"`
	Count int         `json:"count"`
}

// SupportSummary aggregates the reactions on a story.
type SupportSummary struct {
	Total       int            `json:"total"`
	Breakdown   []SupportCount `json:"breakdown"`
	UserSupport *SupportType   `json:"userSupport"`
}
