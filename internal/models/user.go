package models

import "time"

// User represents a registered person.
// The ID is issued by the identity provider and never changes.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Name is the display name of the user.
	Name string `json:"name"`

	// Email is the user's email address (unique).
	Email string `json:"email"`

	// CreatedAt is when the user first appeared in the directory.
	CreatedAt time.Time `json:"created_at"`
}
