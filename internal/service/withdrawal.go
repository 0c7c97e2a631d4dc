package service

import (
	"context"
	"fmt"
	"strings"

	"laikostar/internal/logging"
	"laikostar/internal/metrics"
	"laikostar/internal/model"
	"laikostar/internal/store"

	luhn "github.com/EClaesson/go-luhn"
	"github.com/shopspring/decimal"
)

// GatewayCard account numbers must pass the Luhn check.
const GatewayCard = "card"

type WithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Gateway       string          `json:"gateway" validate:"required"`
	AccountNumber string          `json:"accountNumber" validate:"required"`
	AccountTitle  string          `json:"accountTitle" validate:"required"`
}

// RequestWithdrawal records a pending payout and reserves the amount in
// held_balance. The settled balance only changes on admin approval.
func (l *Ledger) RequestWithdrawal(ctx context.Context, username string, req WithdrawalRequest) (*model.WithdrawalRequest, error) {
	w, err := l.requestWithdrawal(ctx, username, req)
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	metrics.WithdrawalRequests.WithLabelValues(outcome).Inc()
	return w, err
}

func (l *Ledger) requestWithdrawal(ctx context.Context, username string, req WithdrawalRequest) (*model.WithdrawalRequest, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.EqualFold(req.Gateway, GatewayCard) {
		valid, err := luhn.IsValid(req.AccountNumber)
		if err != nil || !valid {
			return nil, fmt.Errorf("%w: invalid card number", ErrValidation)
		}
	}

	enabled, err := l.store.GetFlag(ctx, store.KeyWithdrawalsEnabled, l.policy.WithdrawEnabled)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrWithdrawalsDisabled
	}
	if !l.policy.WindowOpen(l.now()) {
		return nil, ErrWithdrawalWindowClosed
	}

	unlock := l.locks.Lock(username)
	defer unlock()

	user, err := l.user(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Available().LessThan(req.Amount) {
		return nil, ErrInsufficientBalance
	}

	w := &model.WithdrawalRequest{
		UserID:        user.ID,
		Amount:        req.Amount,
		Gateway:       req.Gateway,
		AccountNumber: req.AccountNumber,
		AccountTitle:  req.AccountTitle,
	}
	if err := l.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, translate(err)
	}
	logging.Logg.Info("Withdrawal requested", "username", username, "amount", req.Amount.String(), "id", w.ID)
	return w, nil
}

func (l *Ledger) Withdrawals(ctx context.Context, username string) ([]model.WithdrawalRequest, error) {
	user, err := l.user(ctx, username)
	if err != nil {
		return nil, err
	}
	return l.store.GetWithdrawals(ctx, user.ID)
}

func (l *Ledger) ApproveWithdrawal(ctx context.Context, id int64, remarks string) (*model.WithdrawalRequest, error) {
	var r *string
	if remarks != "" {
		r = &remarks
	}
	w, err := l.store.ApproveWithdrawal(ctx, id, r)
	if err != nil {
		return nil, translate(err)
	}
	l.notify(ctx, w.UserID, model.NotifyMessage, fmt.Sprintf("Your withdrawal of %s was approved.", w.Amount.StringFixed(2)))
	return w, nil
}

func (l *Ledger) RejectWithdrawal(ctx context.Context, id int64, remarks string) (*model.WithdrawalRequest, error) {
	if strings.TrimSpace(remarks) == "" {
		return nil, fmt.Errorf("%w: remarks are required", ErrValidation)
	}
	w, err := l.store.RejectWithdrawal(ctx, id, remarks)
	if err != nil {
		return nil, translate(err)
	}
	l.notify(ctx, w.UserID, model.NotifyAlert, fmt.Sprintf("Your withdrawal of %s was rejected: %s", w.Amount.StringFixed(2), remarks))
	return w, nil
}

func (l *Ledger) SetWithdrawalsEnabled(ctx context.Context, on bool) error {
	return l.store.SetFlag(ctx, store.KeyWithdrawalsEnabled, on)
}

func (l *Ledger) WithdrawalsEnabled(ctx context.Context) (bool, error) {
	return l.store.GetFlag(ctx, store.KeyWithdrawalsEnabled, l.policy.WithdrawEnabled)
}
