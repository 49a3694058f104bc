package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/metrics"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

type FriendOpKind string

const (
	FriendSend    FriendOpKind = "send"
	FriendAccept  FriendOpKind = "accept"
	FriendDecline FriendOpKind = "decline"
)

// FriendOp is one step of the request protocol between Actor and Other.
// Send: Actor asks Other. Accept: Actor accepts Other's request.
// Decline: Actor drops any pending request with Other, in either direction.
type FriendOp struct {
	Kind  FriendOpKind
	Actor string
	Other string
}

// ApplyFriendOp mutates both user records for op. Pending requests always
// exist as a mirrored pair, and friends are added to both sides once.
func ApplyFriendOp(op FriendOp, actor, other *models.User) error {
	if actor.ID == other.ID {
		return ErrSelfRequest
	}

	switch op.Kind {
	case FriendSend:
		if hasContact(actor.Friends, other.ID) {
			return ErrAlreadyFriends
		}
		if hasContact(actor.OutgoingRequests, other.ID) || hasContact(actor.IncomingRequests, other.ID) {
			return ErrRequestExists
		}
		actor.OutgoingRequests = append(contacts(actor.OutgoingRequests), other.Contact())
		other.IncomingRequests = append(contacts(other.IncomingRequests), actor.Contact())

	case FriendAccept:
		if !hasContact(actor.IncomingRequests, other.ID) {
			return ErrNoPendingRequest
		}
		actor.IncomingRequests = removeContact(actor.IncomingRequests, other.ID)
		other.OutgoingRequests = removeContact(other.OutgoingRequests, actor.ID)
		if !hasContact(actor.Friends, other.ID) {
			actor.Friends = append(contacts(actor.Friends), other.Contact())
		}
		if !hasContact(other.Friends, actor.ID) {
			other.Friends = append(contacts(other.Friends), actor.Contact())
		}

	case FriendDecline:
		actor.IncomingRequests = removeContact(actor.IncomingRequests, other.ID)
		actor.OutgoingRequests = removeContact(actor.OutgoingRequests, other.ID)
		other.IncomingRequests = removeContact(other.IncomingRequests, actor.ID)
		other.OutgoingRequests = removeContact(other.OutgoingRequests, actor.ID)

	default:
		return validation("unknown friend operation %q", op.Kind)
	}
	return nil
}

// RequestNotifier is told about a committed friend request. Delivery
// failures are logged and never undo the request.
type RequestNotifier interface {
	FriendRequest(ctx context.Context, from, to *models.User) error
}

type Friends struct {
	store    store.Store
	clock    clock
	notifier RequestNotifier
}

func NewFriends(s store.Store, n RequestNotifier) *Friends {
	return &Friends{store: s, notifier: n}
}

// Do runs op as one transaction over both user documents. A Send also
// writes the receiver's notification inside the same transaction.
func (f *Friends) Do(ctx context.Context, op FriendOp) error {
	var actor, other models.User
	err := f.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Get(ctx, store.Users, op.Actor, &actor); err != nil {
			return fmt.Errorf("user %s: %w", op.Actor, err)
		}
		if err := tx.Get(ctx, store.Users, op.Other, &other); err != nil {
			return fmt.Errorf("user %s: %w", op.Other, err)
		}
		if err := ApplyFriendOp(op, &actor, &other); err != nil {
			return err
		}

		for _, u := range []*models.User{&actor, &other} {
			if err := tx.Update(ctx, store.Users, u.ID, relationFields(u)); err != nil {
				return err
			}
		}

		if op.Kind == FriendSend {
			n := models.Notification{
				ID:          uuid.NewString(),
				RecipientID: other.ID,
				Type:        models.NotificationFriendRequest,
				ActorID:     actor.ID,
				ActorName:   actor.Profile.Nickname,
				Message:     actor.Profile.Nickname + " 想加你為好友",
				CreatedAt:   f.clock.now(),
			}
			return tx.Set(ctx, store.Notifications, n.ID, n)
		}
		return nil
	})
	metrics.FriendOps.WithLabelValues(string(op.Kind), metrics.Result(err)).Inc()
	if err != nil {
		logger.Warn.Printf("[friends] %s %s -> %s: %v", op.Kind, op.Actor, op.Other, err)
		return fmt.Errorf("friend %s: %w", op.Kind, err)
	}

	if op.Kind == FriendSend && f.notifier != nil {
		if err := f.notifier.FriendRequest(ctx, &actor, &other); err != nil {
			logger.Warn.Printf("[friends] notify %s: %v", other.ID, err)
		}
	}
	return nil
}

func (f *Friends) SendRequest(ctx context.Context, senderID, receiverID string) error {
	return f.Do(ctx, FriendOp{Kind: FriendSend, Actor: senderID, Other: receiverID})
}

func (f *Friends) AcceptRequest(ctx context.Context, currentID, requesterID string) error {
	return f.Do(ctx, FriendOp{Kind: FriendAccept, Actor: currentID, Other: requesterID})
}

func (f *Friends) DeclineOrCancel(ctx context.Context, currentID, otherID string) error {
	return f.Do(ctx, FriendOp{Kind: FriendDecline, Actor: currentID, Other: otherID})
}

// CreateGroup appends a named group to owner's groups. Members must be
// friends of the owner; the owner is always included.
func (f *Friends) CreateGroup(ctx context.Context, ownerID, name string, memberIDs []string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("group name is required")
	}

	var group models.Group
	err := f.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var owner models.User
		if err := tx.Get(ctx, store.Users, ownerID, &owner); err != nil {
			return err
		}

		members := []string{owner.ID}
		seen := map[string]bool{owner.ID: true}
		for _, id := range memberIDs {
			if seen[id] {
				continue
			}
			if !hasContact(owner.Friends, id) {
				return validation("%s is not a friend", id)
			}
			seen[id] = true
			members = append(members, id)
		}

		group = models.Group{ID: uuid.NewString(), Name: name, Members: members}
		groups := append(owner.Groups, group)
		return tx.Update(ctx, store.Users, owner.ID, bson.M{"groups": groups})
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return &group, nil
}

func relationFields(u *models.User) bson.M {
	return bson.M{
		"friends":           contacts(u.Friends),
		"incoming_requests": contacts(u.IncomingRequests),
		"outgoing_requests": contacts(u.OutgoingRequests),
	}
}

func hasContact(list []models.Contact, userID string) bool {
	for _, c := range list {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// removeContact filters userID out of list. Absent ids are a no-op.
func removeContact(list []models.Contact, userID string) []models.Contact {
	out := make([]models.Contact, 0, len(list))
	for _, c := range list {
		if c.UserID != userID {
			out = append(out, c)
		}
	}
	return out
}

// contacts keeps empty lists encoded as [] rather than null.
func contacts(list []models.Contact) []models.Contact {
	if list == nil {
		return []models.Contact{}
	}
	return list
}
