package models

import (
	"slices"
	"time"
)

// Group is a set of users sharing expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description"`

	// CreatedBy is the owner of the group. Only the owner may remove members.
	CreatedBy string `json:"created_by"`

	// Members holds user IDs in insertion order, which is also display order.
	Members []string `json:"members"`

	// CreatedAt is when the group was created.
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// IsOwner reports whether userID created the group.
func (g *Group) IsOwner(userID string) bool {
	return g.CreatedBy == userID
}
