package store

import (
	"context"
	"database/sql"
	"errors"

	"laikostar/internal/model"

	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds (402)")
	ErrRequestNotFound   = errors.New("withdrawal request not found")
	ErrAlreadySettled    = errors.New("request is not pending")
)

const withdrawalColumns = `id, user_id, amount, status, gateway, account_number, account_title, remarks, created_at, updated_at`

// CreateWithdrawal reserves the amount in held_balance and records a pending
// request. The reservation is a single conditional update, so two requests can
// never hold more than the balance.
func (r *Database) CreateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET held_balance = held_balance + $1, updated_at = now()
			WHERE user_id = $2 AND balance - held_balance >= $1`, w.Amount, w.UserID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, ErrInsufficientFunds); err != nil {
			return err
		}

		w.Status = model.StatusPending
		return tx.QueryRowContext(ctx, `
			INSERT INTO withdrawal_requests (user_id, amount, status, gateway, account_number, account_title)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
			w.UserID, w.Amount, w.Status, w.Gateway, w.AccountNumber, w.AccountTitle).
			Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	})
}

func (r *Database) GetWithdrawals(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error) {
	withdrawals := []model.WithdrawalRequest{}
	err := r.DB.SelectContext(ctx, &withdrawals,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	return withdrawals, err
}

// settleWithdrawal moves a pending request to status and returns it.
func settleWithdrawal(ctx context.Context, tx *sqlx.Tx, id int64, status model.Status, remarks *string) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	err := tx.GetContext(ctx, &w, `
		UPDATE withdrawal_requests SET status = $1, remarks = COALESCE($2, remarks), updated_at = now()
		WHERE id = $3 AND status = 'pending'
		RETURNING `+withdrawalColumns, status, remarks, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unsettled(ctx, tx, "withdrawal_requests", id, ErrRequestNotFound)
		}
		return nil, err
	}
	return &w, nil
}

// ApproveWithdrawal pays out a pending request: the hold is released and the
// amount leaves the balance.
func (r *Database) ApproveWithdrawal(ctx context.Context, id int64, remarks *string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if w, err = settleWithdrawal(ctx, tx, id, model.StatusApproved, remarks); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET balance = balance - $1, held_balance = held_balance - $1,
				withdrawal_balance = withdrawal_balance + $1, updated_at = now()
			WHERE user_id = $2 AND held_balance >= $1`, w.Amount, w.UserID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, ErrInsufficientFunds); err != nil {
			return err
		}
		return appendTransaction(ctx, tx, w.UserID, model.Debit, w.Amount, "Withdrawal via "+w.Gateway)
	})
	return w, err
}

// RejectWithdrawal releases the hold without touching the balance.
func (r *Database) RejectWithdrawal(ctx context.Context, id int64, remarks string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if w, err = settleWithdrawal(ctx, tx, id, model.StatusRejected, &remarks); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET held_balance = GREATEST(held_balance - $1, 0), updated_at = now()
			WHERE user_id = $2`, w.Amount, w.UserID)
		return err
	})
	return w, err
}

// unsettled explains why a pending-only update matched nothing: the row is
// either missing or already decided.
func unsettled(ctx context.Context, tx *sqlx.Tx, table string, id int64, notFound error) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound
	}
	return ErrAlreadySettled
}
