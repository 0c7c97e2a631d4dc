package store

import (
	"context"
	"database/sql"
	"errors"

	"laikostar/internal/model"
)

var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `id, username, gateway, account_number, account_title, created_at, updated_at`

func (r *Database) CreateAccount(ctx context.Context, a *model.UserAccount) error {
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO user_accounts (username, gateway, account_number, account_title)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
		a.Username, a.Gateway, a.AccountNumber, a.AccountTitle).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *Database) GetAccounts(ctx context.Context, username string) ([]model.UserAccount, error) {
	accounts := []model.UserAccount{}
	err := r.DB.SelectContext(ctx, &accounts,
		`SELECT `+accountColumns+` FROM user_accounts WHERE username = $1 ORDER BY created_at`, username)
	return accounts, err
}

// UpdateAccount only touches accounts owned by a.Username.
func (r *Database) UpdateAccount(ctx context.Context, a *model.UserAccount) error {
	err := r.DB.GetContext(ctx, a, `
		UPDATE user_accounts SET gateway = $1, account_number = $2, account_title = $3, updated_at = now()
		WHERE id = $4 AND username = $5 RETURNING `+accountColumns,
		a.Gateway, a.AccountNumber, a.AccountTitle, a.ID, a.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	return err
}

func (r *Database) DeleteAccount(ctx context.Context, username string, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_accounts WHERE id = $1 AND username = $2`, id, username)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrAccountNotFound)
}
