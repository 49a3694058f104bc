package live

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/haojiu-go/auth"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrPrivateTopic = errors.New("topic belongs to another user")
)

// Topics:
//
//	events            events/<id>
//	challenges        challenges/<id>
//	chats/<chatID>    messages of one chat
//	users/<id>        the caller's own user document
//	notifications/<id> the caller's own notifications
const (
	topicEvents        = store.Events
	topicChallenges    = store.Challenges
	topicChats         = "chats"
	topicUsers         = store.Users
	topicNotifications = store.Notifications
)

func splitTopic(topic string) (kind, id string) {
	kind, id, _ = strings.Cut(strings.Trim(topic, "/"), "/")
	return kind, id
}

func EventTopic(id string) string     { return topicEvents + "/" + id }
func ChallengeTopic(id string) string { return topicChallenges + "/" + id }
func ChatTopic(chatID string) string  { return topicChats + "/" + chatID }

// authorize checks sess may watch topic.
func authorize(sess *auth.Session, topic string) error {
	kind, id := splitTopic(topic)
	switch kind {
	case topicEvents, topicChallenges:
		return nil
	case topicChats:
		if id == "" {
			return fmt.Errorf("%w: %q needs a chat id", ErrUnknownTopic, topic)
		}
		return nil
	case topicUsers, topicNotifications:
		if id == "" || sess == nil || id != sess.UserID {
			return ErrPrivateTopic
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
}

// routeChange lists the topics a committed change is published on, and
// the payload to send.
func routeChange(ch store.Change) (topics []string, data any, err error) {
	if ch.Op == store.OpDelete {
		switch ch.Collection {
		case store.Events, store.Challenges:
			return []string{ch.Collection, ch.Collection + "/" + ch.ID}, nil, nil
		}
		return nil, nil, nil
	}

	switch ch.Collection {
	case store.Events:
		var ev models.Event
		err = bson.Unmarshal(ch.Doc, &ev)
		return []string{topicEvents, EventTopic(ch.ID)}, ev, err
	case store.Challenges:
		var c models.Challenge
		err = bson.Unmarshal(ch.Doc, &c)
		return []string{topicChallenges, ChallengeTopic(ch.ID)}, c, err
	case store.Messages:
		var m models.Message
		err = bson.Unmarshal(ch.Doc, &m)
		return []string{ChatTopic(m.ChatID)}, m, err
	case store.Users:
		// password_hash is dropped by the json tag on models.User
		var u models.User
		err = bson.Unmarshal(ch.Doc, &u)
		return []string{topicUsers + "/" + ch.ID}, u, err
	case store.Notifications:
		var n models.Notification
		err = bson.Unmarshal(ch.Doc, &n)
		return []string{topicNotifications + "/" + n.RecipientID}, n, err
	}
	return nil, nil, nil
}

// snapshot loads the current state behind topic.
func snapshot(ctx context.Context, s store.Store, topic string) (any, error) {
	kind, id := splitTopic(topic)
	switch kind {
	case topicEvents:
		if id != "" {
			return getOne[models.Event](ctx, s, store.Events, id)
		}
		return findAll[models.Event](ctx, s, store.Events, store.Query{}.Sort("event_timestamp", false))
	case topicChallenges:
		if id != "" {
			return getOne[models.Challenge](ctx, s, store.Challenges, id)
		}
		return findAll[models.Challenge](ctx, s, store.Challenges, store.Query{}.Sort("event_timestamp", false))
	case topicChats:
		return findAll[models.Message](ctx, s, store.Messages, store.Where("chat_id", id).Sort("timestamp", false))
	case topicUsers:
		return getOne[models.User](ctx, s, store.Users, id)
	case topicNotifications:
		return findAll[models.Notification](ctx, s, store.Notifications, store.Where("recipient_id", id).Sort("created_at", true))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
}

func getOne[T any](ctx context.Context, s store.Store, coll, id string) (any, error) {
	var v T
	if err := s.Get(ctx, coll, id, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func findAll[T any](ctx context.Context, s store.Store, coll string, q store.Query) (any, error) {
	var v []T
	if err := s.Find(ctx, coll, q, &v); err != nil {
		return nil, err
	}
	return v, nil
}
