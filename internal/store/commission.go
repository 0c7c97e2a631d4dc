package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"laikostar/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// DueCommissions lists unreleased commission rows whose release date has passed.
func (r *Database) DueCommissions(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	ids := []int64{}
	err := r.DB.SelectContext(ctx, &ids, `
		SELECT id FROM commission_pending_tasks
		WHERE released_at IS NULL AND release_date <= $1
		ORDER BY release_date LIMIT $2`, now, limit)
	return ids, err
}

// ReleaseCommission moves one matured commission from pending_commission into
// balance. It reports false when the row was already released.
func (r *Database) ReleaseCommission(ctx context.Context, id int64, now time.Time) (bool, error) {
	released := false
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var userID int64
		var amount decimal.Decimal
		err := tx.QueryRowContext(ctx, `
			UPDATE commission_pending_tasks SET released_at = $1
			WHERE id = $2 AND released_at IS NULL
			RETURNING user_id, commission_amount`, now, id).Scan(&userID, &amount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE users SET pending_commission = GREATEST(pending_commission - $1, 0),
				balance = balance + $1, updated_at = now()
			WHERE user_id = $2`, amount, userID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, ErrUserNotFound); err != nil {
			return err
		}
		if err := appendTransaction(ctx, tx, userID, model.Credit, amount, "Commission released"); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}
