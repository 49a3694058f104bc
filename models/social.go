package models

import (
	"time"
)

// Message is one chat line. Event chats use the id "event-<eventID>".
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	ChatID     string    `bson:"chat_id" json:"chat_id"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	SenderName string    `bson:"sender_name" json:"sender_name"`
	Text       string    `bson:"text" json:"text"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}

const NotificationFriendRequest = "friend_request"

type Notification struct {
	ID          string    `bson:"_id" json:"id"`
	RecipientID string    `bson:"recipient_id" json:"recipient_id"`
	Type        string    `bson:"type" json:"type"`
	ActorID     string    `bson:"actor_id" json:"actor_id"`
	ActorName   string    `bson:"actor_name" json:"actor_name"`
	Message     string    `bson:"message,omitempty" json:"message,omitempty"`
	Read        bool      `bson:"read" json:"read"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
