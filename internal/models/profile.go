package models

import (
	"time"
)

// Profile represents a per-user record of identity attributes and V-Coin balance.
// Exactly one profile exists per user id; it is created lazily on first
// authenticated access and never deleted.
type Profile struct {
	UserID    string    `json:"userId" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	SkillTag  string    `json:"skillTag" db:"skill_tag"`
	Location  string    `json:"location" db:"location"`
	VCoins    int64     `json:"vCoins" db:"v_coins"`
	IsGuru    bool      `json:"isGuru" db:"is_guru"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ProfileUpdateRequest carries the self-editable profile fields. The coin
// balance is never writable through this path.
type ProfileUpdateRequest struct {
	Name     string `json:"name" validate:"omitempty,max=100"`
	SkillTag string `json:"skillTag" validate:"omitempty,max=50,skilltag"`
	Location string `json:"location" validate:"omitempty,max=100"`
	IsGuru   *bool  `json:"isGuru"`
}
