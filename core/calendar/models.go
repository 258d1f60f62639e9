package calendar

import (
	"time"
)

const ProviderGoogle = "google"

// Token is the OAuth token a user granted for their external calendar.
type Token struct {
	UserID       string    `json:"-"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"-"`
	Expiry       time.Time `json:"-"`
	CreatedAt    time.Time `json:"connected_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is what gets written to the external calendar.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Status tells a user whether their calendar is connected.
type Status struct {
	Provider    string     `json:"provider"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at"`
}
