package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"laikostar/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicate       = errors.New("username or email already exists")
	ErrPendingNotFound = errors.New("referrer pin not found")
)

const userColumns = `user_id, username, email, full_name, password_hash, phone_number, profile_picture,
	account_type, plan, plan_activation_date, ref_per, ref_parent_per,
	balance, held_balance, withdrawal_balance, bonus_balance, pending_commission, total_points, advance_points,
	daily_task_limit, tasks_completed_today, last_completed_date,
	parent_id, referral_code, referrer_code, created_at, updated_at`

func (u *Database) getUser(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*model.User, error) {
	var user model.User
	err := sqlx.GetContext(ctx, q, &user, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *Database) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getUser(ctx, u.DB, "username = $1", username)
}

func (u *Database) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return u.getUser(ctx, u.DB, "user_id = $1", id)
}

// GetUserByLogin accepts either the username or the email.
func (u *Database) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return u.getUser(ctx, u.DB, "username = $1 OR email = $1", login)
}

func (u *Database) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := u.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (u *Database) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := u.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

// GetPendingByPin looks up an unconsumed referral plan activation.
func (u *Database) GetPendingByPin(ctx context.Context, pin string) (*model.UserPending, error) {
	var pending model.UserPending
	err := u.DB.GetContext(ctx, &pending, `
		SELECT id, plan_name, plan_price, advance_points, direct_point, indirect_point,
			ref_per, ref_parent_per, referrer_pin, referrer_id, created_at
		FROM user_pending WHERE referrer_pin = $1`, pin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPendingNotFound
		}
		return nil, err
	}
	return &pending, nil
}

const insertUser = `
	INSERT INTO users (username, email, full_name, password_hash, phone_number, account_type,
		plan, plan_activation_date, ref_per, ref_parent_per, advance_points,
		daily_task_limit, parent_id, referral_code, referrer_code)
	VALUES (:username, :email, :full_name, :password_hash, :phone_number, :account_type,
		:plan, :plan_activation_date, :ref_per, :ref_parent_per, :advance_points,
		:daily_task_limit, :parent_id, :referral_code, :referrer_code)
	RETURNING user_id, created_at, updated_at`

// CreateUser inserts the user. When pin is not empty the matching user_pending
// row is deleted in the same transaction, so a pin activates at most one account.
func (u *Database) CreateUser(ctx context.Context, user *model.User, pin string) error {
	return u.withTx(ctx, func(tx *sqlx.Tx) error {
		if pin != "" {
			res, err := tx.ExecContext(ctx, `DELETE FROM user_pending WHERE referrer_pin = $1`, pin)
			if err != nil {
				return err
			}
			if err := mustAffect(res, ErrPendingNotFound); err != nil {
				return err
			}
		}

		query, args, err := tx.BindNamed(insertUser, user)
		if err != nil {
			return err
		}
		err = tx.QueryRowxContext(ctx, query, args...).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

func (u *Database) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := u.DB.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE user_id = $2`, passwordHash, userID)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrUserNotFound)
}

type ProfileUpdate struct {
	FullName       *string
	Email          *string
	PhoneNumber    *string
	ProfilePicture *string
}

// UpdateProfile changes only the fields that are set.
func (u *Database) UpdateProfile(ctx context.Context, username string, p ProfileUpdate) (*model.User, error) {
	var sets []string
	var args []any
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("full_name", p.FullName)
	add("email", p.Email)
	add("phone_number", p.PhoneNumber)
	add("profile_picture", p.ProfilePicture)

	if len(sets) == 0 {
		return u.GetUserByUsername(ctx, username)
	}

	args = append(args, username)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = now() WHERE username = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	var user model.User
	if err := u.DB.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &user, nil
}

// ReferralLevels counts descendants of userID per level, level 1 first. The
// returned slice always has depth entries.
func (u *Database) ReferralLevels(ctx context.Context, userID int64, depth int) ([]int, error) {
	rows, err := u.DB.QueryContext(ctx, `
		WITH RECURSIVE tree AS (
			SELECT user_id, 1 AS level FROM users WHERE parent_id = $1
			UNION ALL
			SELECT c.user_id, t.level + 1 FROM users c JOIN tree t ON c.parent_id = t.user_id
			WHERE t.level < $2
		)
		SELECT level, COUNT(*) FROM tree GROUP BY level ORDER BY level`, userID, depth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]int, depth)
	for rows.Next() {
		var level, count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		if level >= 1 && level <= depth {
			levels[level-1] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

// Upline returns up to depth ancestors of userID, nearest first.
func (u *Database) Upline(ctx context.Context, userID int64, depth int) ([]model.User, error) {
	var upline []model.User
	current := userID
	for i := 0; i < depth; i++ {
		user, err := u.GetUserByID(ctx, current)
		if err != nil {
			return nil, err
		}
		if user.ParentID == nil {
			break
		}
		parent, err := u.GetUserByID(ctx, *user.ParentID)
		if err != nil {
			return nil, err
		}
		upline = append(upline, *parent)
		current = parent.ID
	}
	return upline, nil
}

func (u *Database) creditBonus(ctx context.Context, tx *sqlx.Tx, userID int64, points decimal.Decimal, description string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET bonus_balance = bonus_balance + $1, total_points = total_points + $1, updated_at = now()
		WHERE user_id = $2`, points, userID)
	if err != nil {
		return err
	}
	if err := mustAffect(res, ErrUserNotFound); err != nil {
		return err
	}
	return appendTransaction(ctx, tx, userID, model.Credit, points, description)
}

func appendTransaction(ctx context.Context, tx *sqlx.Tx, userID int64, t model.TType, amount decimal.Decimal, description string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transaction_history (user_id, type, amount, description) VALUES ($1, $2, $3, $4)`,
		userID, t, amount, description)
	return err
}

func (u *Database) GetTransactionHistory(ctx context.Context, userID int64) ([]model.Transaction, error) {
	history := []model.Transaction{}
	err := u.DB.SelectContext(ctx, &history, `
		SELECT type, amount, description, created_at FROM transaction_history
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	return history, err
}

