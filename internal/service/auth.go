package service

import (
	"context"
	"errors"
	"fmt"

	"laikostar/internal/logging"
	"laikostar/internal/store"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

func CheckPassword(passwordHash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password))
}

// VerifyCredential accepts a username or an email. Storage failures count as a mismatch.
func (l *Ledger) VerifyCredential(ctx context.Context, login, candidate string) bool {
	user, err := l.store.GetUserByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			logging.Logg.Error("Failed to load user for credential check", "error", err)
		}
		return false
	}
	return CheckPassword(user.PasswordHash, candidate) == nil
}

// Login checks the credential and issues a signed token for the username.
func (l *Ledger) Login(ctx context.Context, login, password string) (string, error) {
	user, err := l.store.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrInvalidCredential
		}
		return "", err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return "", ErrInvalidCredential
	}
	return GenerateToken(user.Username, l.policy.TokenSecret, l.policy.TokenTTL)
}

// Authenticate resolves a bearer token to a username.
func (l *Ledger) Authenticate(token string) (string, error) {
	username, err := ParseToken(token, l.policy.TokenSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return username, nil
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

func (l *Ledger) ChangePassword(ctx context.Context, username string, req PasswordChange) error {
	if err := l.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	user, err := l.user(ctx, username)
	if err != nil {
		return err
	}
	if !l.VerifyCredential(ctx, username, req.CurrentPassword) {
		return ErrInvalidCredential
	}
	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return translate(l.store.UpdatePassword(ctx, user.ID, hash))
}
