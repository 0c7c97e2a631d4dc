package service

import (
	"context"
	"errors"
	"fmt"

	"laikostar/internal/logging"
	"laikostar/internal/metrics"
	"laikostar/internal/model"
	"laikostar/internal/store"
)

const maxUsernameAttempts = 20

type Registration struct {
	FullName    string `json:"fullName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	ReferrerPin string `json:"referrerPin"`
}

// Credentials are returned once, at signup. NotificationErr is set when the
// account exists but the credentials email could not be queued.
type Credentials struct {
	Username        string
	Password        string
	NotificationErr error
}

// Register creates an account with generated credentials. A referrer pin is
// matched against pending plan activations first and then against existing
// usernames; the pending activation is consumed in the same transaction as
// the insert.
func (l *Ledger) Register(ctx context.Context, req Registration) (*Credentials, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	exists, err := l.store.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateIdentity
	}

	now := l.now()
	user := &model.User{
		FullName:       req.FullName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		AccountType:    model.DefaultAccountType,
		DailyTaskLimit: l.policy.DailyTaskLimit,
	}

	variant := "direct"
	var consumePin string
	if req.ReferrerPin != "" {
		if err := l.resolveReferrer(ctx, user, req.ReferrerPin, &consumePin); err != nil {
			return nil, err
		}
		variant = "referral_code"
		if consumePin != "" {
			variant = "pin"
			user.PlanActivationDate = &now
		}
	}

	username, err := l.freeUsername(ctx)
	if err != nil {
		return nil, err
	}
	user.Username = username
	user.ReferralCode = username

	password, err := newPassword()
	if err != nil {
		return nil, err
	}
	if user.PasswordHash, err = HashPassword(password); err != nil {
		return nil, err
	}

	if err := l.store.CreateUser(ctx, user, consumePin); err != nil {
		return nil, translate(err)
	}
	metrics.Registrations.WithLabelValues(variant).Inc()
	logging.Logg.Info("User registered", "username", user.Username, "variant", variant)

	creds := &Credentials{Username: username, Password: password}
	if l.notifier != nil {
		if err := l.notifier.SendCredentials(user.Email, user.FullName, username, password); err != nil {
			logging.Logg.Warn("Credentials email was not queued", "username", username, "error", err)
			creds.NotificationErr = fmt.Errorf("%w: %w", ErrDependencyFailure, err)
		}
	}
	return creds, nil
}

func (l *Ledger) resolveReferrer(ctx context.Context, user *model.User, pin string, consumePin *string) error {
	pending, err := l.store.GetPendingByPin(ctx, pin)
	switch {
	case err == nil:
		terms := pending.PlanTerms
		user.Plan = &terms.PlanName
		user.RefPer = terms.RefPer
		user.RefParentPer = terms.RefParentPer
		user.AdvancePoints = terms.AdvancePoints
		user.ParentID = &pending.ReferrerID
		user.ReferrerCode = &pin
		*consumePin = pin
		return nil
	case !errors.Is(err, store.ErrPendingNotFound):
		return err
	}

	referrer, err := l.store.GetUserByUsername(ctx, pin)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrInvalidReferralCode
		}
		return err
	}
	user.ParentID = &referrer.ID
	user.ReferrerCode = &pin
	return nil
}

func (l *Ledger) freeUsername(ctx context.Context) (string, error) {
	for i := 0; i < maxUsernameAttempts; i++ {
		username, err := newUsername()
		if err != nil {
			return "", err
		}
		taken, err := l.store.UsernameExists(ctx, username)
		if err != nil {
			return "", err
		}
		if !taken {
			return username, nil
		}
	}
	return "", fmt.Errorf("%w: no free username after %d attempts", ErrDuplicateIdentity, maxUsernameAttempts)
}
