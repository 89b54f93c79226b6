package team

import (
	"errors"
	"time"
)

// Phone is a call-forwarding target. Only configuration changes mutate it;
// the call flow reads it.
type Phone struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	Enabled   bool      `json:"enabled"`
	RingOrder int       `json:"ring_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound       = errors.New("team: phone not found")
	ErrInvalidPhone   = errors.New("team: phone number is not a 10-digit number")
	ErrNameRequired   = errors.New("team: name is required")
	ErrDuplicatePhone = errors.New("team: phone number already configured")
)
