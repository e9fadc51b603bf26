package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

const settlementColumns = "id, group_id, from_user_id, to_user_id, amount, created_by, created_at, note"

// AppendSettlement persists a new settlement to the database.
func (s *SQLiteStore) AppendSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt.IsZero() {
		settlement.CreatedAt = s.now()
	}

	var note any
	if settlement.Note != "" {
		note = settlement.Note
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "SELECT 1 FROM groups WHERE id = ?", settlement.GroupID)
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		if !ok {
			return apperr.Newf(apperr.ErrNotFound, "group %s not found", settlement.GroupID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO settlements (id, seq, group_id, from_user_id, to_user_id, amount, created_by, created_at, note)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM settlements), ?, ?, ?, ?, ?, ?, ?)`,
			settlement.ID, settlement.GroupID, settlement.FromUser, settlement.ToUser,
			int64(settlement.Amount), settlement.CreatedBy, toUnix(settlement.CreatedAt), note,
		)
		if isUniqueViolation(err) {
			return apperr.Newf(apperr.ErrConflict, "settlement %s already exists", settlement.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert settlement: %w", err)
		}
		return nil
	})
}

// ListSettlements retrieves all settlements for a group, oldest first.
func (s *SQLiteStore) ListSettlements(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	return listSettlements(ctx, s.db, "group_id = ?", "seq", groupID)
}

// ListSettlementsByUser retrieves every settlement the user sent or received, newest first.
func (s *SQLiteStore) ListSettlementsByUser(ctx context.Context, userID string) ([]*models.Settlement, error) {
	return listSettlements(ctx, s.db, "from_user_id = ? OR to_user_id = ?", "created_at DESC, seq DESC", userID, userID)
}

func listSettlements(ctx context.Context, q queryer, where, orderBy string, args ...any) ([]*models.Settlement, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+settlementColumns+" FROM settlements WHERE "+where+" ORDER BY "+orderBy,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	settlements := []*models.Settlement{}
	for rows.Next() {
		settlement := &models.Settlement{}
		var amount, createdAt int64
		var note sql.NullString

		if err := rows.Scan(&settlement.ID, &settlement.GroupID, &settlement.FromUser, &settlement.ToUser,
			&amount, &settlement.CreatedBy, &createdAt, &note); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlement.Amount = money.Amount(amount)
		settlement.CreatedAt = fromUnix(createdAt)
		if note.Valid {
			settlement.Note = note.String
		}

		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}
