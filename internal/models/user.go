package models

import "time"

type User struct {
	ID                  int        `json:"id" example:"1"`                      // User ID
	Email               string     `json:"email" example:"user@example.com"`    // User email
	DisplayName         string     `json:"displayName" example:"Asha Kumar"`    // Display name
	PhoneNumber         string     `json:"phoneNumber" example:"+919812345678"` // User phone number
	PhoneVerified       bool       `json:"phoneVerified"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}
