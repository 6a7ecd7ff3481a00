package models

import (
	"time"
)

// Hire request statuses.
const (
	HireStatusPending  = "PENDING"
	HireStatusAccepted = "ACCEPTED"
	HireStatusDeclined = "DECLINED"
)

// HireRequest tracks a learner asking to hire a creator. The quoted lead cost
// is debited only when the creator accepts.
type HireRequest struct {
	ID           string    `json:"id" db:"id"`
	VideoID      string    `json:"videoId,omitempty" db:"video_id"`
	CreatorID    string    `json:"creatorId" db:"creator_id"`
	RequesterID  string    `json:"requesterId" db:"requester_id"`
	ContactName  string    `json:"contactName" db:"contact_name"`
	ContactPhone string    `json:"contactPhone" db:"contact_phone"`
	Message      string    `json:"message" db:"message"`
	LeadCost     int64     `json:"leadCost" db:"lead_cost"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

type CreateHireRequest struct {
	VideoID      string `json:"videoId" validate:"omitempty,uuid4"`
	CreatorID    string `json:"creatorId" validate:"required"`
	ContactName  string `json:"contactName" validate:"required,min=2,max=100"`
	ContactPhone string `json:"contactPhone" validate:"required,min=7,max=20"`
	Message      string `json:"message" validate:"max=500"`
}
