package service

import (
	"context"
	"time"

	"invite_mall/internal/model"
)

// OrderEvent is emitted by the order ledger after a committed transition.
type OrderEvent interface {
	EventOrderID() string
}

type OrderReceived struct {
	OrderID    string
	ReceivedAt time.Time
}

func (e OrderReceived) EventOrderID() string { return e.OrderID }

type OrderRefunded struct {
	OrderID    string
	RefundedAt time.Time
}

func (e OrderRefunded) EventOrderID() string { return e.OrderID }

type OrderEventHandler interface {
	HandleOrderEvent(ctx context.Context, ev OrderEvent) error
}

type TaskEventType string

const (
	TaskEventQualified     TaskEventType = "task.qualified"
	TaskEventPendingPayout TaskEventType = "task.pending_payout"
	TaskEventPaidOut       TaskEventType = "task.paid_out"
	TaskEventRevoked       TaskEventType = "task.revoked"
)

type TaskEvent struct {
	Type   TaskEventType
	TaskID string
	TaskNo string
	UserID string
	Status model.TaskStatus
	At     time.Time
}

func newTaskEvent(typ TaskEventType, task *model.Task, at time.Time) TaskEvent {
	return TaskEvent{
		Type:   typ,
		TaskID: task.TaskID,
		TaskNo: task.TaskNo,
		UserID: task.UserID,
		Status: task.Status,
		At:     at,
	}
}

// Notifier receives task lifecycle events. Implementations must not block:
// they are called while the task is locked.
type Notifier interface {
	NotifyTask(ctx context.Context, ev TaskEvent)
}

type Notifiers []Notifier

func (ns Notifiers) NotifyTask(ctx context.Context, ev TaskEvent) {
	for _, n := range ns {
		n.NotifyTask(ctx, ev)
	}
}
