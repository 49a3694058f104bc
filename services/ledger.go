package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/metrics"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

// ApplyResponse toggles userID's attendance response on ev. A user has at
// most one response; choosing the one they already hold clears it.
// It reports whether the response was cleared.
func ApplyResponse(ev *models.Event, userID, nickname string, rt models.ResponseType) (cleared bool) {
	if ev.Responders == nil {
		ev.Responders = map[string]models.Responder{}
	}

	old, had := ev.Responders[userID]
	if had {
		ev.Responses.Dec(old.Response)
	}
	if had && old.Response == rt {
		delete(ev.Responders, userID)
		return true
	}

	ev.Responders[userID] = models.Responder{Response: rt, Nickname: nickname}
	ev.Responses.Inc(rt)
	return false
}

// Ledger keeps each event's response counters in step with its
// responders map.
type Ledger struct {
	store store.Store
	clock clock
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// SetResponse applies ApplyResponse inside a store transaction and returns
// the event as committed.
func (l *Ledger) SetResponse(ctx context.Context, eventID, userID, nickname string, rt models.ResponseType) (*models.Event, error) {
	if !rt.Valid() {
		return nil, ErrInvalidResponse
	}

	var (
		out     models.Event
		cleared bool
	)
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var ev models.Event
		if err := tx.Get(ctx, store.Events, eventID, &ev); err != nil {
			return err
		}

		cleared = ApplyResponse(&ev, userID, nickname, rt)
		ev.UpdatedAt = l.clock.now()

		out = ev
		return tx.Update(ctx, store.Events, eventID, bson.M{
			"responses":  ev.Responses,
			"responders": ev.Responders,
			"updated_at": ev.UpdatedAt,
		})
	})
	if err != nil {
		logger.Warn.Printf("[ledger] set response event=%s user=%s: %v", eventID, userID, err)
		return nil, fmt.Errorf("set response: %w", err)
	}

	action := "set"
	if cleared {
		action = "cleared"
	}
	metrics.ResponsesTotal.WithLabelValues(string(rt), action).Inc()
	return &out, nil
}
