// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/equalsplit/internal/models"
)

// Snapshot is one consistent read of a group's ledger.
type Snapshot struct {
	Group       *models.Group
	Expenses    []*models.Expense    // oldest first
	Settlements []*models.Settlement // oldest first
}

// LedgerStore is the append-only record of expenses and settlements.
// Records are never updated in place; a missing record is apperr.ErrNotFound.
type LedgerStore interface {
	// AppendExpense persists an expense and its splits atomically.
	// ID and CreatedAt are filled in when empty.
	AppendExpense(ctx context.Context, expense *models.Expense) error

	// RemoveExpense hard-deletes an expense and its splits.
	RemoveExpense(ctx context.Context, expenseID string) error

	// GetExpense retrieves an expense with its splits.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// AppendSettlement persists a settlement.
	// ID and CreatedAt are filled in when empty.
	AppendSettlement(ctx context.Context, settlement *models.Settlement) error

	// ListExpenses returns a group's expenses, oldest first.
	ListExpenses(ctx context.Context, groupID string) ([]*models.Expense, error)

	// ListSettlements returns a group's settlements, oldest first.
	ListSettlements(ctx context.Context, groupID string) ([]*models.Settlement, error)

	// ListSettlementsByUser returns every settlement the user is a party to,
	// across groups, newest first.
	ListSettlementsByUser(ctx context.Context, userID string) ([]*models.Settlement, error)

	// Snapshot reads the group and its whole ledger as one consistent view.
	Snapshot(ctx context.Context, groupID string) (*Snapshot, error)

	// IsMemberReferenced reports whether userID appears on any expense or
	// settlement of the group.
	IsMemberReferenced(ctx context.Context, groupID, userID string) (bool, error)
}

// Directory stores users and group membership.
type Directory interface {
	// CreateUser persists a new user. ID and CreatedAt are filled in when empty.
	// A duplicate ID or email is apperr.ErrConflict.
	CreateUser(ctx context.Context, user *models.User) error

	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUsers returns the users that exist among ids, keyed by ID.
	GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error)

	// SearchUsers matches email case-insensitively by substring.
	SearchUsers(ctx context.Context, fragment string, limit int) ([]*models.User, error)

	// CreateGroup persists a group with its initial member list.
	CreateGroup(ctx context.Context, group *models.Group) error

	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupsForUser returns the groups userID belongs to, newest first.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// AddGroupMember appends userID to the member list.
	// An existing member is apperr.ErrAlreadyMember.
	AddGroupMember(ctx context.Context, groupID, userID string) error

	// RemoveGroupMember drops userID from the member list.
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
}

// Store defines the full storage backend used by the services.
// This abstraction allows swapping storage backends (SQLite, in-memory)
// without changing the service layer.
type Store interface {
	LedgerStore
	Directory

	// Close releases any resources held by the store.
	Close() error
}
