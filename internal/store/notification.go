package store

import (
	"context"
	"database/sql"
	"errors"

	"laikostar/internal/model"
)

var ErrNotificationNotFound = errors.New("notification not found")

func (r *Database) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.Type == "" {
		n.Type = model.NotifyMessage
	}
	n.Status = model.Unread
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO notifications (username, message, type, status) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, n.Username, n.Message, n.Type, n.Status).Scan(&n.ID, &n.CreatedAt)
}

func (r *Database) GetNotifications(ctx context.Context, username string) ([]model.Notification, error) {
	notifications := []model.Notification{}
	err := r.DB.SelectContext(ctx, &notifications, `
		SELECT id, username, message, type, status, created_at FROM notifications
		WHERE username = $1 ORDER BY created_at DESC`, username)
	return notifications, err
}

func (r *Database) SetNotificationStatus(ctx context.Context, username string, id int64, status model.NotificationStatus) (*model.Notification, error) {
	var n model.Notification
	err := r.DB.GetContext(ctx, &n, `
		UPDATE notifications SET status = $1 WHERE id = $2 AND username = $3
		RETURNING id, username, message, type, status, created_at`, status, id, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}
