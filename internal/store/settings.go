package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

const KeyWithdrawalsEnabled = "withdrawals_enabled"

// GetFlag returns the stored boolean setting, or def when it was never set.
func (r *Database) GetFlag(ctx context.Context, key string, def bool) (bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return def, err
	}
	return strconv.ParseBool(value)
}

func (r *Database) SetFlag(ctx context.Context, key string, on bool) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, strconv.FormatBool(on))
	return err
}
