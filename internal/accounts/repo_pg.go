package accounts

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) List(ctx context.Context) ([]Account, error) {
	const query = `
SELECT username, password_hash, role, is_blocked
FROM accounts
ORDER BY position ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var role string
		if err := rows.Scan(&a.Username, &a.PasswordHash, &role, &a.IsBlocked); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepo) Get(ctx context.Context, username string) (Account, error) {
	const query = `
SELECT username, password_hash, role, is_blocked
FROM accounts
WHERE username = $1
LIMIT 1`
	return scanAccount(r.DB.QueryRowContext(ctx, query, username))
}

func (r *PGRepo) Create(ctx context.Context, account Account) error {
	const query = `
INSERT INTO accounts (username, password_hash, role, is_blocked, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (username) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, query, account.Username, account.PasswordHash, string(account.Role), account.IsBlocked)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicateUsername
	}
	return nil
}

func (r *PGRepo) Upsert(ctx context.Context, account Account) error {
	const query = `
INSERT INTO accounts (username, password_hash, role, is_blocked, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (username) DO UPDATE SET
  password_hash = EXCLUDED.password_hash,
  role = EXCLUDED.role,
  is_blocked = EXCLUDED.is_blocked,
  updated_at = now()`
	_, err := r.DB.ExecContext(ctx, query, account.Username, account.PasswordHash, string(account.Role), account.IsBlocked)
	return err
}

func (r *PGRepo) ToggleBlocked(ctx context.Context, username string) (Account, error) {
	const query = `
UPDATE accounts
SET is_blocked = NOT is_blocked, updated_at = now()
WHERE username = $1
RETURNING username, password_hash, role, is_blocked`
	return scanAccount(r.DB.QueryRowContext(ctx, query, username))
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var role string
	if err := row.Scan(&a.Username, &a.PasswordHash, &role, &a.IsBlocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.Role = Role(role)
	return a, nil
}

var _ Repo = (*PGRepo)(nil)
