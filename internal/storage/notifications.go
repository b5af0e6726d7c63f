package storage

import (
	"context"
	"database/sql"
	"fmt"

	"splitledger/internal/core"
)

func (r *SQLiteRepository) CreateNotification(ctx context.Context, n Notification) (int64, error) {
	query := `INSERT INTO notifications (user_id, group_id, expense_id, action, actor_id)
	          VALUES (?, ?, ?, ?, ?)`

	var expenseID any
	if n.ExpenseID != 0 {
		expenseID = n.ExpenseID
	}
	res, err := r.db.ExecContext(ctx, query,
		string(n.UserID), n.GroupID, expenseID, n.Action, string(n.ActorID))
	if err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListNotifications(ctx context.Context, userID core.UserID, unreadOnly bool) ([]Notification, error) {
	query := `SELECT id, user_id, group_id, expense_id, action, actor_id, read, created_at
	          FROM notifications
	          WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var uid, actorID string
		var expenseID sql.NullInt64
		if err := rows.Scan(&n.ID, &uid, &n.GroupID, &expenseID,
			&n.Action, &actorID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.UserID = core.UserID(uid)
		n.ActorID = core.UserID(actorID)
		if expenseID.Valid {
			n.ExpenseID = expenseID.Int64
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *SQLiteRepository) MarkNotificationsRead(ctx context.Context, userID core.UserID, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, id, string(userID)); err != nil {
			return fmt.Errorf("mark notification %d read: %w", id, err)
		}
	}
	return tx.Commit()
}
