package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
	"github.com/mmynk/equalsplit/internal/storage"
)

const expenseColumns = "id, group_id, description, amount, paid_by, split_type, created_by, created_at"

// AppendExpense persists an expense and its splits in one transaction.
func (s *SQLiteStore) AppendExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = s.now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "SELECT 1 FROM groups WHERE id = ?", expense.GroupID)
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		if !ok {
			return apperr.Newf(apperr.ErrNotFound, "group %s not found", expense.GroupID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (id, seq, group_id, description, amount, paid_by, split_type, created_by, created_at)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM expenses), ?, ?, ?, ?, ?, ?, ?)`,
			expense.ID, expense.GroupID, expense.Description, int64(expense.Amount), expense.PaidBy,
			string(expense.SplitType), expense.CreatedBy, toUnix(expense.CreatedAt),
		)
		if isUniqueViolation(err) {
			return apperr.Newf(apperr.ErrConflict, "expense %s already exists", expense.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}

		for i, split := range expense.Splits {
			var pct, shares any
			if split.Percentage != nil {
				pct = split.Percentage.String()
			}
			if split.Shares != 0 {
				shares = split.Shares
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO expense_splits (expense_id, position, user_id, amount, percentage, shares)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				expense.ID, i, split.UserID, int64(split.Amount), pct, shares,
			)
			if err != nil {
				return fmt.Errorf("failed to insert expense split: %w", err)
			}
		}
		return nil
	})
}

// RemoveExpense deletes an expense; its splits go with it via ON DELETE CASCADE.
func (s *SQLiteStore) RemoveExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.ErrNotFound, "expense %s not found", expenseID)
	}
	return nil
}

func scanExpense(row interface{ Scan(...any) error }) (*models.Expense, error) {
	e := &models.Expense{}
	var amount, createdAt int64
	var splitType string
	if err := row.Scan(&e.ID, &e.GroupID, &e.Description, &amount, &e.PaidBy, &splitType, &e.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	e.Amount = money.Amount(amount)
	e.SplitType = models.SplitType(splitType)
	e.CreatedAt = fromUnix(createdAt)
	return e, nil
}

// GetExpense retrieves an expense with its splits.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	var expense *models.Expense
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		expense, err = scanExpense(tx.QueryRowContext(ctx,
			"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Newf(apperr.ErrNotFound, "expense %s not found", expenseID)
		}
		if err != nil {
			return fmt.Errorf("failed to get expense: %w", err)
		}

		splits, err := loadSplits(ctx, tx, "s.expense_id = ?", expenseID)
		if err != nil {
			return err
		}
		expense.Splits = splits[expenseID]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns a group's expenses with splits, oldest first.
func (s *SQLiteStore) ListExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	var expenses []*models.Expense
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		expenses, err = listExpenses(ctx, tx, groupID)
		return err
	})
	return expenses, err
}

func listExpenses(ctx context.Context, q queryer, groupID string) ([]*models.Expense, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? ORDER BY seq",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	expenses := []*models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	splits, err := loadSplits(ctx, q, "e.group_id = ?", groupID)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		e.Splits = splits[e.ID]
	}
	return expenses, nil
}

// loadSplits returns splits keyed by expense ID, each slice in declaration order.
func loadSplits(ctx context.Context, q queryer, where string, arg any) (map[string][]models.Split, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT s.expense_id, s.user_id, s.amount, s.percentage, s.shares
		 FROM expense_splits s JOIN expenses e ON e.id = s.expense_id
		 WHERE `+where+`
		 ORDER BY s.expense_id, s.position`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense splits: %w", err)
	}
	defer rows.Close()

	splits := make(map[string][]models.Split)
	for rows.Next() {
		var (
			expenseID string
			split     models.Split
			amount    int64
			pct       decimal.NullDecimal
			shares    sql.NullInt64
		)
		if err := rows.Scan(&expenseID, &split.UserID, &amount, &pct, &shares); err != nil {
			return nil, fmt.Errorf("failed to scan expense split: %w", err)
		}
		split.Amount = money.Amount(amount)
		if pct.Valid {
			p := pct.Decimal
			split.Percentage = &p
		}
		if shares.Valid {
			split.Shares = shares.Int64
		}
		splits[expenseID] = append(splits[expenseID], split)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense splits: %w", err)
	}
	return splits, nil
}

// Snapshot reads the group, its expenses and its settlements inside one transaction.
func (s *SQLiteStore) Snapshot(ctx context.Context, groupID string) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{}
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Group, err = getGroup(ctx, tx, groupID); err != nil {
			return err
		}
		if snap.Expenses, err = listExpenses(ctx, tx, groupID); err != nil {
			return err
		}
		snap.Settlements, err = listSettlements(ctx, tx, "group_id = ?", "seq", groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// IsMemberReferenced reports whether userID appears on any expense or
// settlement of the group.
func (s *SQLiteStore) IsMemberReferenced(ctx context.Context, groupID, userID string) (bool, error) {
	var referenced bool
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   EXISTS (SELECT 1 FROM expenses WHERE group_id = ? AND (paid_by = ? OR created_by = ?))
		   OR EXISTS (SELECT 1 FROM expense_splits s JOIN expenses e ON e.id = s.expense_id
		              WHERE e.group_id = ? AND s.user_id = ?)
		   OR EXISTS (SELECT 1 FROM settlements WHERE group_id = ? AND (from_user_id = ? OR to_user_id = ?))`,
		groupID, userID, userID,
		groupID, userID,
		groupID, userID, userID,
	).Scan(&referenced)
	if err != nil {
		return false, fmt.Errorf("failed to check member references: %w", err)
	}
	return referenced, nil
}
