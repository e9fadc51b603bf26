package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/models"
)

// CreateGroup persists a new group and its initial members in one transaction.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = s.now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO groups (id, name, description, created_by, created_at) VALUES (?, ?, ?, ?, ?)",
			group.ID, group.Name, group.Description, group.CreatedBy, toUnix(group.CreatedAt),
		)
		if isUniqueViolation(err) {
			return apperr.Newf(apperr.ErrConflict, "group %s already exists", group.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}

		for i, userID := range group.Members {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO group_members (group_id, user_id, position) VALUES (?, ?, ?)",
				group.ID, userID, i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert group member: %w", err)
			}
		}
		return nil
	})
}

// GetGroup retrieves a group by ID, including its members in order.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return getGroup(ctx, s.db, groupID)
}

func getGroup(ctx context.Context, q queryer, groupID string) (*models.Group, error) {
	group := &models.Group{}
	var createdAt int64
	err := q.QueryRowContext(ctx,
		"SELECT id, name, description, created_by, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrNotFound, "group %s not found", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.CreatedAt = fromUnix(createdAt)

	members, err := listMembers(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	group.Members = members
	return group, nil
}

func listMembers(ctx context.Context, q queryer, groupID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT user_id FROM group_members WHERE group_id = ? ORDER BY position",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return members, nil
}

// ListGroupsForUser returns the groups userID belongs to, newest first.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id FROM groups g
		 JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ?
		 ORDER BY g.created_at DESC, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := getGroup(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// AddGroupMember appends userID at the end of the member list.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "SELECT 1 FROM groups WHERE id = ?", groupID)
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		if !ok {
			return apperr.Newf(apperr.ErrNotFound, "group %s not found", groupID)
		}

		ok, err = exists(ctx, tx, "SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if ok {
			return apperr.Newf(apperr.ErrAlreadyMember, "user %s is already a member of group %s", userID, groupID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, position)
			 SELECT ?, ?, COALESCE(MAX(position), -1) + 1 FROM group_members WHERE group_id = ?`,
			groupID, userID, groupID,
		)
		if err != nil {
			return fmt.Errorf("failed to add group member: %w", err)
		}
		return nil
	})
}

// RemoveGroupMember drops userID from the member list.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removed rows: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.ErrNotFound, "user %s is not a member of group %s", userID, groupID)
	}
	return nil
}
