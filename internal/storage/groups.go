package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"splitledger/internal/core"
)

func (r *SQLiteRepository) CreateGroup(ctx context.Context, group core.Group, creator core.UserID) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insertGroup := `INSERT INTO groups (name, default_currency_id, simplified_balance, created_by)
	                VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insertGroup,
		group.Name, int64(group.DefaultCurrencyID), group.BalanceConfig.Simplified, string(creator))
	if err != nil {
		return 0, fmt.Errorf("insert group: %w", err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("group id: %w", err)
	}

	// the creator joins their own group immediately
	insertMembership := `INSERT INTO memberships (group_id, user_id, status) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertMembership, groupID, string(creator), string(core.StatusJoined)); err != nil {
		return 0, fmt.Errorf("insert creator membership: %w", err)
	}

	return groupID, tx.Commit()
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, groupID int64) (*core.DetailedGroup, error) {
	query := `SELECT g.id, g.name, g.default_currency_id, g.simplified_balance, g.created_at,
	                 u.id, u.email, u.name, u.picture
	          FROM groups g
	          INNER JOIN users u ON u.id = g.created_by
	          WHERE g.id = ?`

	var detailed core.DetailedGroup
	var creatorID string
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(
		&detailed.ID, &detailed.Name, &detailed.DefaultCurrencyID,
		&detailed.BalanceConfig.Simplified, &detailed.CreatedAt,
		&creatorID, &detailed.Creator.Email, &detailed.Creator.Name, &detailed.Creator.Picture)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	detailed.Creator.ID = core.UserID(creatorID)

	members, err := r.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	detailed.Members = members
	return &detailed, nil
}

func (r *SQLiteRepository) ListGroupsForUser(ctx context.Context, userID core.UserID) ([]core.Group, error) {
	query := `SELECT g.id, g.name, g.default_currency_id, g.simplified_balance, g.created_at
	          FROM groups g
	          INNER JOIN memberships m ON m.group_id = g.id
	          WHERE m.user_id = ? AND m.status = 'joined'
	          ORDER BY g.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []core.Group
	for rows.Next() {
		var g core.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.DefaultCurrencyID,
			&g.BalanceConfig.Simplified, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *SQLiteRepository) UpdateGroup(ctx context.Context, group core.Group) error {
	query := `UPDATE groups SET name = ?, default_currency_id = ?, simplified_balance = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		group.Name, int64(group.DefaultCurrencyID), group.BalanceConfig.Simplified, group.ID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteGroup(ctx context.Context, groupID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, groupID int64) ([]core.Membership, error) {
	query := `SELECT u.id, u.email, u.name, u.picture, m.status
	          FROM memberships m
	          INNER JOIN users u ON u.id = m.user_id
	          WHERE m.group_id = ?
	          ORDER BY m.created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Membership
	for rows.Next() {
		var m core.Membership
		var id, status string
		if err := rows.Scan(&id, &m.User.Email, &m.User.Name, &m.User.Picture, &status); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.User.ID = core.UserID(id)
		m.Status = core.MembershipStatus(status)
		members = append(members, m)
	}
	return members, rows.Err()
}

// JoinedMemberIDs returns the members that take part in balance computations,
// in join order.
func (r *SQLiteRepository) JoinedMemberIDs(ctx context.Context, groupID int64) ([]core.UserID, error) {
	query := `SELECT user_id FROM memberships
	          WHERE group_id = ? AND status = 'joined'
	          ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("joined members: %w", err)
	}
	defer rows.Close()

	var ids []core.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, core.UserID(id))
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) AddMember(ctx context.Context, groupID int64, userID core.UserID, status core.MembershipStatus) error {
	query := `INSERT INTO memberships (group_id, user_id, status) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, groupID, string(userID), string(status))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateRow
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateMembershipStatus(ctx context.Context, groupID int64, userID core.UserID, status core.MembershipStatus) error {
	query := `UPDATE memberships SET status = ? WHERE group_id = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, string(status), groupID, string(userID))
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) RemoveMember(ctx context.Context, groupID int64, userID core.UserID) error {
	query := `DELETE FROM memberships WHERE group_id = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, groupID, string(userID))
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsJoinedMember reports whether the user is a joined member of the group.
func (r *SQLiteRepository) IsJoinedMember(ctx context.Context, groupID int64, userID core.UserID) (bool, error) {
	query := `SELECT 1 FROM memberships WHERE group_id = ? AND user_id = ? AND status = 'joined'`
	var one int
	err := r.db.QueryRowContext(ctx, query, groupID, string(userID)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return true, nil
}
