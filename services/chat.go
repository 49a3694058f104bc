package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

const MaxMessageLength = 1000

type Chat struct {
	store store.Store
	clock clock
}

func NewChat(s store.Store) *Chat {
	return &Chat{store: s}
}

func (c *Chat) Send(ctx context.Context, chatID string, sender *models.User, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validation("message text is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, validation("message is longer than %d characters", MaxMessageLength)
	}
	if chatID == "" {
		return nil, validation("chat id is required")
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		SenderID:   sender.ID,
		SenderName: sender.Profile.Nickname,
		Text:       text,
		Timestamp:  c.clock.now(),
	}
	if err := c.store.Set(ctx, store.Messages, msg.ID, msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// List returns the chat's messages oldest first. When limit > 0 only the
// newest limit messages are kept.
func (c *Chat) List(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := store.Where("chat_id", chatID).Sort("timestamp", true).Take(limit)
	if err := c.store.Find(ctx, store.Messages, q, &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}
