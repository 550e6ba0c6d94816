package local

import (
	"context"
	"fmt"

	"digidiary/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

func changeTopic(userID string) string {
	return "notes." + userID
}

// notify tells the Watch streams of every listed user that their rows
// changed.
func (s *SQLiteStore) notify(userIDs ...string) {
	for _, userID := range userIDs {
		msg := message.NewMessage(watermill.NewUUID(), []byte(userID))
		if err := s.events.Publish(changeTopic(userID), msg); err != nil {
			s.logger.Warn("failed to publish note change", "user", userID, "error", err)
		}
	}
}

// Watch emits the user's notes, newest first, right away and again after
// every change to them. The channel closes when ctx is done or the store is
// closed.
func (s *SQLiteStore) Watch(ctx context.Context, userID string) (<-chan Snapshot, error) {
	changes, err := s.events.Subscribe(ctx, changeTopic(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to watch notes: %w", domain.ErrStorage, err)
	}

	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		if !s.emit(ctx, out, userID) {
			return
		}

		for {
			select {
			case msg, ok := <-changes:
				if !ok {
					return
				}
				msg.Ack()
				if !s.emit(ctx, out, userID) {
					return
				}
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
		}
	}()

	return out, nil
}

func (s *SQLiteStore) emit(ctx context.Context, out chan<- Snapshot, userID string) bool {
	notes, err := s.listNotes(ctx, userID)

	select {
	case out <- Snapshot{Notes: notes, Err: err}:
		return true
	case <-ctx.Done():
		return false
	case <-s.closed:
		return false
	}
}
