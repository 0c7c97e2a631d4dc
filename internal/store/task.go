package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"laikostar/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrConflict means the guarded row changed between read and write.
	ErrConflict = errors.New("concurrent update")
)

const taskColumns = `task_id, name, description, reward, image, completed_count, redirect_link, created_at`

func (r *Database) GetTasks(ctx context.Context) ([]model.Task, error) {
	tasks := []model.Task{}
	err := r.DB.SelectContext(ctx, &tasks, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	return tasks, err
}

func (r *Database) GetTaskByID(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	err := r.DB.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *Database) CreateTask(ctx context.Context, task *model.Task) error {
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO tasks (name, description, reward, image, redirect_link)
		VALUES ($1, $2, $3, $4, $5) RETURNING task_id, created_at`,
		task.Name, task.Description, task.Reward, task.Image, task.RedirectLink).
		Scan(&task.ID, &task.CreatedAt)
}

// Commission is an amount owed to an ancestor for a descendant's completion.
type Commission struct {
	UserID int64
	Amount decimal.Decimal
}

type Completion struct {
	User        *model.User
	Task        *model.Task
	NewCount    int
	CompletedAt time.Time
	// ToBalance credits the settled balance instead of pending commission.
	ToBalance bool
	ReleaseAt time.Time
	Upline    []Commission
}

type CompletionResult struct {
	TasksCompletedToday int
	PendingCommission   decimal.Decimal
	Balance             decimal.Decimal
}

// CompleteTask applies a task completion in one transaction. The user row is
// only updated if tasks_completed_today and last_completed_date still hold the
// values read by the caller and the new count stays within the daily limit;
// otherwise ErrConflict is returned and nothing is written.
func (r *Database) CompleteTask(ctx context.Context, c Completion) (*CompletionResult, error) {
	column := "pending_commission"
	if c.ToBalance {
		column = "balance"
	}
	user, task := c.User, c.Task
	result := &CompletionResult{TasksCompletedToday: c.NewCount}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`
			UPDATE users SET tasks_completed_today = $1, last_completed_date = $2,
				%[1]s = %[1]s + $3, total_points = total_points + $3, updated_at = now()
			WHERE user_id = $4 AND tasks_completed_today = $5
				AND last_completed_date IS NOT DISTINCT FROM $6 AND $1 <= daily_task_limit
			RETURNING pending_commission, balance`, column),
			c.NewCount, c.CompletedAt, task.Reward, user.ID, user.TasksCompletedToday, user.LastCompletedDate).
			Scan(&result.PendingCommission, &result.Balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrConflict
			}
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET completed_count = completed_count + 1 WHERE task_id = $1`, task.ID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, ErrTaskNotFound); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_history (user_id, task_id, completed_at, reward) VALUES ($1, $2, $3, $4)`,
			user.ID, task.ID, c.CompletedAt, task.Reward); err != nil {
			return err
		}

		description := "Completed task: " + task.Name
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_transactions (username, task_id, amount, status, transaction_type, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			user.Username, task.ID, task.Reward, model.StatusPending, model.Credit, description); err != nil {
			return err
		}

		if c.ToBalance {
			if err := appendTransaction(ctx, tx, user.ID, model.Credit, task.Reward, description); err != nil {
				return err
			}
		} else if err := addPendingCommission(ctx, tx, user.ID, task.ID, task.Reward, c.ReleaseAt); err != nil {
			return err
		}

		for _, up := range c.Upline {
			if up.Amount.IsZero() {
				continue
			}
			if err := r.creditUpline(ctx, tx, up, task, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task.CompletedCount++
	return result, nil
}

func (r *Database) creditUpline(ctx context.Context, tx *sqlx.Tx, up Commission, task *model.Task, c Completion) error {
	description := fmt.Sprintf("Referral commission from %s: %s", c.User.Username, task.Name)
	if c.ToBalance {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET balance = balance + $1, updated_at = now() WHERE user_id = $2`,
			up.Amount, up.UserID); err != nil {
			return err
		}
		return appendTransaction(ctx, tx, up.UserID, model.Credit, up.Amount, description)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET pending_commission = pending_commission + $1, updated_at = now() WHERE user_id = $2`,
		up.Amount, up.UserID); err != nil {
		return err
	}
	return addPendingCommission(ctx, tx, up.UserID, task.ID, up.Amount, c.ReleaseAt)
}

func addPendingCommission(ctx context.Context, tx *sqlx.Tx, userID, taskID int64, amount decimal.Decimal, releaseAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commission_pending_tasks (user_id, task_id, commission_amount, release_date)
		VALUES ($1, $2, $3, $4)`, userID, taskID, amount, releaseAt)
	return err
}

func (r *Database) GetTaskTransactions(ctx context.Context, username string) ([]model.TaskTransaction, error) {
	txs := []model.TaskTransaction{}
	err := r.DB.SelectContext(ctx, &txs, `
		SELECT tt.id, tt.username, tt.task_id, t.name AS task_name, tt.amount, tt.status,
			tt.transaction_type, tt.description, tt.created_at, tt.updated_at
		FROM task_transactions tt JOIN tasks t ON t.task_id = tt.task_id
		WHERE tt.username = $1
		ORDER BY tt.created_at DESC`, username)
	return txs, err
}
