package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

type Notifications struct {
	store store.Store
}

func NewNotifications(s store.Store) *Notifications {
	return &Notifications{store: s}
}

// List returns the recipient's notifications, newest first.
func (n *Notifications) List(ctx context.Context, recipientID string) ([]models.Notification, error) {
	var out []models.Notification
	q := store.Where("recipient_id", recipientID).Sort("created_at", true)
	if err := n.store.Find(ctx, store.Notifications, q, &out); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead flags a notification as read. Other users' notifications look
// missing rather than forbidden.
func (n *Notifications) MarkRead(ctx context.Context, recipientID, id string) error {
	return n.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var note models.Notification
		if err := tx.Get(ctx, store.Notifications, id, &note); err != nil {
			return err
		}
		if note.RecipientID != recipientID {
			return fmt.Errorf("%s/%s: %w", store.Notifications, id, store.ErrNotFound)
		}
		if note.Read {
			return nil
		}
		return tx.Update(ctx, store.Notifications, id, bson.M{"read": true})
	})
}

// Unread counts the recipient's unread notifications.
func (n *Notifications) Unread(ctx context.Context, recipientID string) (int, error) {
	var out []models.Notification
	q := store.Where("recipient_id", recipientID).And("read", false)
	if err := n.store.Find(ctx, store.Notifications, q, &out); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return len(out), nil
}
