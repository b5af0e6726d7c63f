// Package worker consumes group activity messages and materializes them into
// per-member notification rows.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/events"
	"splitledger/internal/storage"
)

// NotifyWorker fans one activity message out to every joined member of the
// group except the actor, then wakes their long-poll subscriptions.
type NotifyWorker struct {
	storage *storage.SQLiteRepository
	broker  *events.Broker
}

func NewNotifyWorker(storage *storage.SQLiteRepository, broker *events.Broker) *NotifyWorker {
	return &NotifyWorker{storage: storage, broker: broker}
}

// HandleActivity processes a single activity message from AMQP.
func (w *NotifyWorker) HandleActivity(ctx context.Context, msg *amqp.ActivityMessage) error {
	slog.InfoContext(ctx, "Processing activity message",
		"group_id", msg.GroupID,
		"action", msg.Action,
		"actor_id", msg.ActorID)

	// An invitation concerns exactly one user, and that user is pending,
	// not joined; the member fan-out below would never reach them.
	if msg.Action == amqp.ActionMemberInvited && msg.TargetID != "" {
		return w.notify(ctx, msg, core.UserID(msg.TargetID))
	}

	members, err := w.storage.JoinedMemberIDs(ctx, msg.GroupID)
	if err != nil {
		return fmt.Errorf("resolve group members: %w", err)
	}

	notified := 0
	for _, member := range members {
		if string(member) == msg.ActorID {
			continue // actors do not notify themselves
		}
		if err := w.notify(ctx, msg, member); err != nil {
			return err
		}
		notified++
	}

	slog.InfoContext(ctx, "Activity fanned out",
		"group_id", msg.GroupID,
		"action", msg.Action,
		"notified", notified)
	return nil
}

// notify materializes one notification row and wakes the user's long-poll
// subscriptions when a broker is attached.
func (w *NotifyWorker) notify(ctx context.Context, msg *amqp.ActivityMessage, user core.UserID) error {
	_, err := w.storage.CreateNotification(ctx, storage.Notification{
		UserID:    user,
		GroupID:   msg.GroupID,
		ExpenseID: msg.ExpenseID,
		Action:    msg.Action,
		ActorID:   core.UserID(msg.ActorID),
	})
	if err != nil {
		return fmt.Errorf("create notification for %s: %w", user, err)
	}

	if w.broker != nil {
		w.broker.Publish(events.Event{Kind: events.KindNotification}, string(user))
	}
	return nil
}
