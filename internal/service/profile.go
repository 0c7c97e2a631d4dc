package service

import (
	"context"
	"fmt"

	"laikostar/internal/logging"
	"laikostar/internal/model"
	"laikostar/internal/store"

	"github.com/shopspring/decimal"
)

func (l *Ledger) Profile(ctx context.Context, username string) (*model.User, error) {
	return l.user(ctx, username)
}

type ProfileEdit struct {
	FullName    *string `json:"fullName" validate:"omitempty,min=1"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,min=1"`
}

func (l *Ledger) UpdateProfile(ctx context.Context, username string, req ProfileEdit) (*model.User, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	user, err := l.store.UpdateProfile(ctx, username, store.ProfileUpdate{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	})
	return user, translate(err)
}

func (l *Ledger) SetProfilePicture(ctx context.Context, username, key string) (*model.User, error) {
	user, err := l.store.UpdateProfile(ctx, username, store.ProfileUpdate{ProfilePicture: &key})
	return user, translate(err)
}

func (l *Ledger) Transactions(ctx context.Context, username string) ([]model.Transaction, error) {
	user, err := l.user(ctx, username)
	if err != nil {
		return nil, err
	}
	return l.store.GetTransactionHistory(ctx, user.ID)
}

type AccountInput struct {
	Gateway       string `json:"gateway" validate:"required"`
	AccountNumber string `json:"accountNumber" validate:"required"`
	AccountTitle  string `json:"accountTitle" validate:"required"`
}

func (l *Ledger) AddAccount(ctx context.Context, username string, req AccountInput) (*model.UserAccount, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	a := &model.UserAccount{
		Username:      username,
		Gateway:       req.Gateway,
		AccountNumber: req.AccountNumber,
		AccountTitle:  req.AccountTitle,
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (l *Ledger) Accounts(ctx context.Context, username string) ([]model.UserAccount, error) {
	return l.store.GetAccounts(ctx, username)
}

func (l *Ledger) EditAccount(ctx context.Context, username string, id int64, req AccountInput) (*model.UserAccount, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	a := &model.UserAccount{
		ID:            id,
		Username:      username,
		Gateway:       req.Gateway,
		AccountNumber: req.AccountNumber,
		AccountTitle:  req.AccountTitle,
	}
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (l *Ledger) RemoveAccount(ctx context.Context, username string, id int64) error {
	return translate(l.store.DeleteAccount(ctx, username, id))
}

func (l *Ledger) Notifications(ctx context.Context, username string) ([]model.Notification, error) {
	return l.store.GetNotifications(ctx, username)
}

func (l *Ledger) MarkNotification(ctx context.Context, username string, id int64, status model.NotificationStatus) (*model.Notification, error) {
	if status != model.Read && status != model.Unread {
		return nil, fmt.Errorf("%w: status must be read or unread", ErrValidation)
	}
	n, err := l.store.SetNotificationStatus(ctx, username, id, status)
	return n, translate(err)
}

type NotificationInput struct {
	Username string                 `json:"userName" validate:"required"`
	Message  string                 `json:"message" validate:"required"`
	Type     model.NotificationType `json:"type" validate:"omitempty,oneof=alert message"`
}

func (l *Ledger) Notify(ctx context.Context, req NotificationInput) (*model.Notification, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if _, err := l.user(ctx, req.Username); err != nil {
		return nil, err
	}
	n := &model.Notification{Username: req.Username, Message: req.Message, Type: req.Type}
	if err := l.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// notifyUser records a notification as a side effect; failures are only logged.
func (l *Ledger) notifyUser(ctx context.Context, username string, t model.NotificationType, message string) {
	n := &model.Notification{Username: username, Message: message, Type: t}
	if err := l.store.CreateNotification(ctx, n); err != nil {
		logging.Logg.Warn("Failed to record notification", "username", username, "error", err)
	}
}

func (l *Ledger) notify(ctx context.Context, userID int64, t model.NotificationType, message string) {
	user, err := l.store.GetUserByID(ctx, userID)
	if err != nil {
		logging.Logg.Warn("Failed to resolve notification recipient", "user_id", userID, "error", err)
		return
	}
	l.notifyUser(ctx, user.Username, t, message)
}

func (l *Ledger) Plans(ctx context.Context) ([]model.Plan, error) {
	return l.store.GetPlans(ctx)
}

type NewPlan struct {
	Name           string          `json:"name" validate:"required"`
	Price          decimal.Decimal `json:"price"`
	AdvancePoints  decimal.Decimal `json:"advancePoints"`
	DirectPoint    decimal.Decimal `json:"DirectPoint"`
	IndirectPoint  decimal.Decimal `json:"IndirectPoint"`
	ParentPer      decimal.Decimal `json:"parent"`
	GrandParentPer decimal.Decimal `json:"grandParent"`
}

func (l *Ledger) CreatePlan(ctx context.Context, req NewPlan) (*model.Plan, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if req.AdvancePoints.IsNegative() || req.DirectPoint.IsNegative() || req.IndirectPoint.IsNegative() {
		return nil, fmt.Errorf("%w: points must not be negative", ErrValidation)
	}
	if !validPercent(req.ParentPer) || !validPercent(req.GrandParentPer) {
		return nil, fmt.Errorf("%w: percentages must be between 0 and 100", ErrValidation)
	}
	p := &model.Plan{
		Name:           req.Name,
		Price:          req.Price,
		AdvancePoints:  req.AdvancePoints,
		DirectPoint:    req.DirectPoint,
		IndirectPoint:  req.IndirectPoint,
		ParentPer:      req.ParentPer,
		GrandParentPer: req.GrandParentPer,
	}
	if err := l.store.CreatePlan(ctx, p); err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// ReportUndelivered leaves an alert for the owner of email after the mailer
// gave up on a message.
func (l *Ledger) ReportUndelivered(ctx context.Context, email string) {
	user, err := l.store.GetUserByLogin(ctx, email)
	if err != nil {
		logging.Logg.Warn("Undelivered mail has no owner", "email", email, "error", err)
		return
	}
	l.notifyUser(ctx, user.Username, model.NotifyAlert,
		"We could not email your login credentials. Please contact support.")
}
