package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"
)

type HelperStage string

const (
	StageBound         HelperStage = "BOUND"
	StageOrderBound    HelperStage = "ORDER_BOUND"
	StageShipped       HelperStage = "SHIPPED"
	StageReceived      HelperStage = "RECEIVED"
	StagePendingReview HelperStage = "PENDING_REVIEW"
	StageRejected      HelperStage = "REJECTED"
)

// TaskProgress is the read model shown to inviters and admins.
type TaskProgress struct {
	Task             *model.Task
	Progress         int
	Required         int
	CountdownSeconds int64
	Helpers          []HelperProgress
	Risk             model.RiskAssessment
	HasPendingReview bool
	Ledger           *model.PayoutLedgerEntry
}

type HelperProgress struct {
	Help        *model.Help
	OrderStatus model.OrderStatus
	ShippedAt   *time.Time
	ReceivedAt  *time.Time
	Stage       HelperStage
}

func (s *InviteService) buildProgress(ctx context.Context, task *model.Task) (*TaskProgress, error) {
	helps, err := s.repo.ListHelpsByTask(ctx, task.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list helps: %w", err)
	}

	p := &TaskProgress{
		Task:     task,
		Required: task.RequiredHelpers,
		Helpers:  make([]HelperProgress, 0, len(helps)),
		Risk:     s.classifier.Classify(task.RiskMarks),
	}
	if task.Qualification != nil {
		if left := task.Qualification.PayoutAt.Sub(s.now()); left > 0 {
			p.CountdownSeconds = int64(left / time.Second)
			if left%time.Second != 0 {
				p.CountdownSeconds++
			}
		}
	}
	if entry, ok := s.ledger.Summary(ctx, task.TaskID); ok {
		p.Ledger = entry
	}

	for _, h := range helps {
		if h.Qualifying() {
			p.Progress++
		}
		if h.HelperStatus == model.HelperPendingReview {
			p.HasPendingReview = true
		}

		hp := HelperProgress{Help: h}
		var order *model.Order
		if h.OrderID != "" {
			order, err = s.repo.GetOrder(ctx, h.OrderID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("failed to get helper order: %w", err)
			}
		}
		if order != nil {
			hp.OrderStatus = order.Status
			hp.ShippedAt = order.ShippedAt
			hp.ReceivedAt = order.ReceivedAt
		}
		hp.Stage = helperStage(h, order)
		p.Helpers = append(p.Helpers, hp)
	}

	return p, nil
}

func helperStage(h *model.Help, order *model.Order) HelperStage {
	switch {
	case h.HelperStatus == model.HelperRejected:
		return StageRejected
	case h.HelperStatus == model.HelperPendingReview:
		return StagePendingReview
	case h.Status == model.HelpValid:
		return StageReceived
	case order == nil:
		return StageBound
	}

	switch order.Status {
	case model.OrderShipped:
		return StageShipped
	case model.OrderCreated, model.OrderPaid:
		return StageOrderBound
	case model.OrderRefunded:
		return StageRejected
	default:
		return StageBound
	}
}
