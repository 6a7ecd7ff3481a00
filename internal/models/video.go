package models

import (
	"time"
)

// Video represents a catalog entry for a skill tutorial, owned by a creator
// profile. Like and tip counters only ever increase.
type Video struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	Title        string    `json:"title" db:"title"`
	SkillTag     string    `json:"skillTag" db:"skill_tag"`
	VideoURL     string    `json:"videoUrl" db:"video_url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty" db:"thumbnail_url"`
	CreatorName  string    `json:"creatorName,omitempty" db:"creator_name"`
	Likes        int       `json:"likes" db:"likes"`
	Tips         int       `json:"tips" db:"tips"`
	Version      int       `json:"version" db:"version"` // for optimistic locking
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// CreateVideoRequest is the upload payload. Title and skill tag are enforced
// here at the caller level, not by the store.
type CreateVideoRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	SkillTag     string `json:"skillTag" validate:"required,max=50,skilltag"`
	VideoURL     string `json:"videoUrl" validate:"required,max=500"`
	ThumbnailURL string `json:"thumbnailUrl" validate:"omitempty,max=500"`
}

// SearchResult is a video returned by the external search API, not yet part
// of the catalog.
type SearchResult struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SkillTag     string `json:"skillTag"`
	CreatorName  string `json:"creatorName"`
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Views        int64  `json:"views"`
	Duration     string `json:"duration"`
	ChannelIcon  string `json:"channelIcon,omitempty"`
}

// TrendingSkill is a static discovery category.
type TrendingSkill struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Count string `json:"count"`
}
