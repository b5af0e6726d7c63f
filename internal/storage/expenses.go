package storage

import (
	"context"
	"database/sql"
	"fmt"

	"splitledger/internal/core"
)

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	split, err := core.MarshalSplit(e.Split)
	if err != nil {
		return 0, fmt.Errorf("encode split: %w", err)
	}

	query := `INSERT INTO expenses
	          (group_id, description, currency_id, amount_cents, date, split_strategy, created_id, updated_id)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		e.GroupID, e.Description, int64(e.CurrencyID), e.Amount.Cents,
		e.Date, string(split), string(e.CreatedID), string(e.CreatedID))
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, expenseID int64) (*core.Expense, error) {
	query := `SELECT id, group_id, description, currency_id, amount_cents, date,
	                 split_strategy, created_id, created_at, updated_id, updated_at
	          FROM expenses WHERE id = ?`

	e, err := scanExpense(r.db.QueryRowContext(ctx, query, expenseID))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListExpenses returns the group's full ledger, newest date first. Ties on
// date break by insertion order, also newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, groupID int64) ([]core.Expense, error) {
	query := `SELECT id, group_id, description, currency_id, amount_cents, date,
	                 split_strategy, created_id, created_at, updated_id, updated_at
	          FROM expenses
	          WHERE group_id = ?
	          ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	split, err := core.MarshalSplit(e.Split)
	if err != nil {
		return fmt.Errorf("encode split: %w", err)
	}

	query := `UPDATE expenses
	          SET description = ?, currency_id = ?, amount_cents = ?, date = ?,
	              split_strategy = ?, updated_id = ?, updated_at = CURRENT_TIMESTAMP
	          WHERE id = ? AND group_id = ?`
	res, err := r.db.ExecContext(ctx, query,
		e.Description, int64(e.CurrencyID), e.Amount.Cents, e.Date,
		string(split), string(e.UpdatedID), e.ID, e.GroupID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, groupID, expenseID int64) error {
	query := `DELETE FROM expenses WHERE id = ? AND group_id = ?`
	res, err := r.db.ExecContext(ctx, query, expenseID, groupID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*core.Expense, error) {
	var e core.Expense
	var splitJSON string
	var createdID, updatedID string
	err := row.Scan(&e.ID, &e.GroupID, &e.Description, &e.CurrencyID, &e.Amount.Cents,
		&e.Date, &splitJSON, &createdID, &e.CreatedAt, &updatedID, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}

	split, err := core.UnmarshalSplit([]byte(splitJSON))
	if err != nil {
		return nil, fmt.Errorf("decode split of expense %d: %w", e.ID, err)
	}
	e.Split = split
	e.CreatedID = core.UserID(createdID)
	e.UpdatedID = core.UserID(updatedID)
	return &e, nil
}
