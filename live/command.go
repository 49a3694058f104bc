package live

import (
	"context"

	"github.com/phillip/haojiu-go/logger"
)

// Command is an optimistic write. Subscribers see Predict immediately,
// then either the committed state or Snapshot again if Commit fails.
type Command struct {
	Topic    string
	ID       string
	Snapshot any
	Predict  any
	Commit   func(ctx context.Context) (any, error)
}

// Dispatch publishes the prediction, runs Commit and reconciles. The
// commit error is returned unchanged.
func (h *Hub) Dispatch(ctx context.Context, cmd Command) (any, error) {
	h.Publish(Message{Type: TypeOptimistic, Topic: cmd.Topic, ID: cmd.ID, Data: cmd.Predict})

	res, err := cmd.Commit(ctx)
	if err != nil {
		logger.Debug.Printf("[live] revert %s: %v", cmd.Topic, err)
		h.Publish(Message{Type: TypeRevert, Topic: cmd.Topic, ID: cmd.ID, Data: cmd.Snapshot, Error: err.Error()})
		return nil, err
	}

	h.Publish(Message{Type: TypeConfirmed, Topic: cmd.Topic, ID: cmd.ID, Data: res})
	return res, nil
}
