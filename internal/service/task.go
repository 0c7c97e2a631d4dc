package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laikostar/internal/config"
	"laikostar/internal/logging"
	"laikostar/internal/metrics"
	"laikostar/internal/model"
	"laikostar/internal/store"

	"github.com/shopspring/decimal"
)

const maxCompletionAttempts = 3

var hundred = decimal.NewFromInt(100)

type Completion struct {
	TasksCompletedToday int             `json:"tasksCompletedToday"`
	PendingBalance      decimal.Decimal `json:"updatedPendingBalance"`
	Balance             decimal.Decimal `json:"balance"`
	Task                *model.Task     `json:"task"`
	RedirectLink        *string         `json:"redirectLink,omitempty"`
}

// CompleteTask credits the task reward to the user and the upline commission
// to its ancestors. The daily counter is reset when the last completion
// happened on an earlier calendar day in the policy location.
func (l *Ledger) CompleteTask(ctx context.Context, username string, taskID int64) (*Completion, error) {
	unlock := l.locks.Lock(username)
	defer unlock()

	task, err := l.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, translate(err)
	}

	for attempt := 1; ; attempt++ {
		res, err := l.completeOnce(ctx, username, task)
		if err == nil {
			metrics.TaskCompletions.WithLabelValues("ok").Inc()
			return res, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxCompletionAttempts {
			outcome := "error"
			if errors.Is(err, ErrLimitExceeded) {
				outcome = "limit"
			}
			metrics.TaskCompletions.WithLabelValues(outcome).Inc()
			return nil, translate(err)
		}
		logging.Logg.Debug("Task completion conflicted, retrying", "username", username, "attempt", attempt)
	}
}

func (l *Ledger) completeOnce(ctx context.Context, username string, task *model.Task) (*Completion, error) {
	user, err := l.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	now := l.now()
	done := user.TasksCompletedToday
	if !sameDay(user.LastCompletedDate, now, l.policy.Location) {
		done = 0
	}
	if done >= user.DailyTaskLimit {
		return nil, ErrLimitExceeded
	}

	upline, err := l.uplineCommissions(ctx, user, task.Reward)
	if err != nil {
		return nil, err
	}

	res, err := l.store.CompleteTask(ctx, store.Completion{
		User:        user,
		Task:        task,
		NewCount:    done + 1,
		CompletedAt: now,
		ToBalance:   l.policy.CreditMode == config.CreditBalance,
		ReleaseAt:   now.Add(l.policy.CommissionHold),
		Upline:      upline,
	})
	if err != nil {
		return nil, err
	}
	return &Completion{
		TasksCompletedToday: res.TasksCompletedToday,
		PendingBalance:      res.PendingCommission,
		Balance:             res.Balance,
		Task:                task,
		RedirectLink:        task.RedirectLink,
	}, nil
}

// uplineCommissions pays the parent ref_per percent and the grandparent
// ref_parent_per percent of the reward.
func (l *Ledger) uplineCommissions(ctx context.Context, user *model.User, reward decimal.Decimal) ([]store.Commission, error) {
	if user.ParentID == nil || (user.RefPer.IsZero() && user.RefParentPer.IsZero()) {
		return nil, nil
	}
	ancestors, err := l.store.Upline(ctx, user.ID, 2)
	if err != nil {
		return nil, err
	}

	rates := []decimal.Decimal{user.RefPer, user.RefParentPer}
	var out []store.Commission
	for i, a := range ancestors {
		if i >= len(rates) || !rates[i].IsPositive() {
			continue
		}
		out = append(out, store.Commission{
			UserID: a.ID,
			Amount: reward.Mul(rates[i]).Div(hundred).Round(2),
		})
	}
	return out, nil
}

func sameDay(last *time.Time, now time.Time, loc *time.Location) bool {
	if last == nil {
		return false
	}
	ly, lm, ld := last.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ly == ny && lm == nm && ld == nd
}

func (l *Ledger) Tasks(ctx context.Context) ([]model.Task, error) {
	return l.store.GetTasks(ctx)
}

type NewTask struct {
	Name         string          `json:"name" validate:"required"`
	Description  string          `json:"description" validate:"required"`
	Reward       decimal.Decimal `json:"reward"`
	Image        *string         `json:"image"`
	RedirectLink *string         `json:"redirectLink" validate:"omitempty,url"`
}

func (l *Ledger) CreateTask(ctx context.Context, req NewTask) (*model.Task, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if req.Reward.IsNegative() {
		return nil, fmt.Errorf("%w: reward must not be negative", ErrValidation)
	}
	task := &model.Task{
		Name:         req.Name,
		Description:  req.Description,
		Reward:       req.Reward,
		Image:        req.Image,
		RedirectLink: req.RedirectLink,
	}
	if err := l.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (l *Ledger) TaskTransactions(ctx context.Context, username string) ([]model.TaskTransaction, error) {
	return l.store.GetTaskTransactions(ctx, username)
}
