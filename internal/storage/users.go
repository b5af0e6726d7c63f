package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"splitledger/internal/core"
)

func (r *SQLiteRepository) CreateUser(ctx context.Context, account UserAccount) error {
	query := `INSERT INTO users (id, email, name, picture, password_hash) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		string(account.ID), account.Email, account.Name, account.Picture, account.PasswordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*UserAccount, error) {
	query := `SELECT id, email, name, picture, password_hash, created_at FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id core.UserID) (*UserAccount, error) {
	query := `SELECT id, email, name, picture, password_hash, created_at FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, string(id)))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*UserAccount, error) {
	var account UserAccount
	var id string
	err := row.Scan(&id, &account.Email, &account.Name, &account.Picture,
		&account.PasswordHash, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	account.ID = core.UserID(id)
	return &account, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, session Session) error {
	query := `INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, session.Token, string(session.UserID), session.ExpiresAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (*Session, error) {
	query := `SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`

	var session Session
	var userID string
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.Token, &userID, &session.ExpiresAt, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.UserID = core.UserID(userID)
	return &session, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) ListCurrencies(ctx context.Context) ([]core.Currency, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, acronym, description FROM currencies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	var currencies []core.Currency
	for rows.Next() {
		var c core.Currency
		if err := rows.Scan(&c.ID, &c.Acronym, &c.Description); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}
