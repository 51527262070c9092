package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"
	"invite_mall/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const CloseReasonPayTimeout = "pay_timeout"

// ReservationReleaser frees stock held for an order that will never be paid.
type ReservationReleaser interface {
	ReleaseReservation(ctx context.Context, orderID string) error
}

type CreateOrderOptions struct {
	AddressHash string
}

// OrderService owns the order lifecycle. Every transition goes through
// transition, which holds the order lock while the change is written and
// while subscribers handle the resulting event.
type OrderService struct {
	repo     OrderRepository
	now      Clock
	releaser ReservationReleaser

	mu       sync.RWMutex
	handlers []OrderEventHandler
}

func NewOrderService(repo OrderRepository, clock Clock, releaser ReservationReleaser) *OrderService {
	if clock == nil {
		clock = systemClock
	}
	return &OrderService{
		repo:     repo,
		now:      clock,
		releaser: releaser,
	}
}

func (s *OrderService) Subscribe(h OrderEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *OrderService) Create(ctx context.Context, userID string, amount decimal.Decimal, opts CreateOrderOptions) (*model.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	amount = amount.Round(2)
	order := &model.Order{
		OrderID:     uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		PayAmount:   amount,
		Status:      model.OrderCreated,
		AddressHash: opts.AddressHash,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return order, nil
}

func (s *OrderService) Get(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	return s.repo.ListOrders(ctx, repository.OrderFilter{UserID: userID})
}

func (s *OrderService) ListByStatus(ctx context.Context, status model.OrderStatus) ([]*model.Order, error) {
	return s.repo.ListOrders(ctx, repository.OrderFilter{Status: status})
}

func (s *OrderService) Pay(ctx context.Context, orderID string, payAmount *decimal.Decimal) (*model.Order, error) {
	order, _, err := s.transition(ctx, orderID, "pay", func(o *model.Order, now time.Time) (bool, error) {
		switch o.Status {
		case model.OrderPaid:
			return false, nil
		case model.OrderCreated:
		default:
			return false, transitionError("pay", o)
		}
		o.Status = model.OrderPaid
		if payAmount != nil {
			o.PayAmount = payAmount.Round(2)
		}
		o.PaidAt = &now
		return true, nil
	}, nil)
	return order, err
}

// Ship accepts unpaid orders as well as paid ones.
func (s *OrderService) Ship(ctx context.Context, orderID, expressCompanyCode, trackingNo string) (*model.Order, error) {
	order, _, err := s.transition(ctx, orderID, "ship", func(o *model.Order, now time.Time) (bool, error) {
		switch o.Status {
		case model.OrderShipped:
			return false, nil
		case model.OrderPaid, model.OrderCreated:
		default:
			return false, transitionError("ship", o)
		}
		o.Status = model.OrderShipped
		o.ExpressCompanyCode = expressCompanyCode
		o.TrackingNo = trackingNo
		o.ShippedAt = &now
		return true, nil
	}, nil)
	return order, err
}

func (s *OrderService) Receive(ctx context.Context, orderID string, mode model.ReceiveMode) (*model.Order, error) {
	if mode == "" {
		mode = model.ReceiveManual
	}
	order, _, err := s.transition(ctx, orderID, "receive", func(o *model.Order, now time.Time) (bool, error) {
		switch o.Status {
		case model.OrderReceived:
			return false, nil
		case model.OrderShipped:
		default:
			return false, transitionError("receive", o)
		}
		o.Status = model.OrderReceived
		o.ReceivedAt = &now
		o.ReceiveMode = mode
		return true, nil
	}, func(o *model.Order) OrderEvent {
		return OrderReceived{OrderID: o.OrderID, ReceivedAt: *o.ReceivedAt}
	})
	return order, err
}

func (s *OrderService) Refund(ctx context.Context, orderID, reason string) (*model.Order, error) {
	order, _, err := s.transition(ctx, orderID, "refund", func(o *model.Order, now time.Time) (bool, error) {
		if o.Status == model.OrderRefunded {
			return false, nil
		}
		o.Status = model.OrderRefunded
		o.RefundedAt = &now
		o.RefundReason = reason
		return true, nil
	}, func(o *model.Order) OrderEvent {
		return OrderRefunded{OrderID: o.OrderID, RefundedAt: *o.RefundedAt}
	})
	return order, err
}

// Close settles a received order.
func (s *OrderService) Close(ctx context.Context, orderID string) (*model.Order, error) {
	order, _, err := s.transition(ctx, orderID, "close", func(o *model.Order, now time.Time) (bool, error) {
		switch o.Status {
		case model.OrderClosed:
			return false, nil
		case model.OrderReceived:
		default:
			return false, transitionError("close", o)
		}
		o.Status = model.OrderClosed
		o.ClosedAt = &now
		return true, nil
	}, nil)
	return order, err
}

// ExpireUnpaid closes an order still waiting for payment and releases its
// stock reservation. It reports whether the order was closed by this call;
// orders that left CREATED in the meantime are returned untouched.
func (s *OrderService) ExpireUnpaid(ctx context.Context, orderID, reason string) (*model.Order, bool, error) {
	order, changed, err := s.transition(ctx, orderID, "expire", func(o *model.Order, now time.Time) (bool, error) {
		if o.Status != model.OrderCreated {
			return false, nil
		}
		o.Status = model.OrderClosed
		o.ClosedAt = &now
		o.CloseReason = reason
		return true, nil
	}, nil)
	if err != nil || !changed {
		return order, false, err
	}

	if s.releaser != nil {
		if err := s.releaser.ReleaseReservation(ctx, orderID); err != nil {
			logger.Logger().Error("failed to release stock reservation",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}

	return order, true, nil
}

func (s *OrderService) transition(
	ctx context.Context,
	orderID, action string,
	apply func(o *model.Order, now time.Time) (bool, error),
	event func(o *model.Order) OrderEvent,
) (*model.Order, bool, error) {
	unlock := s.repo.LockOrder(orderID)
	defer unlock()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	changed, err := apply(order, s.now())
	if err != nil {
		logger.Logger().Warn("order transition blocked",
			zap.String("order_id", orderID),
			zap.String("action", action),
			zap.String("status", string(order.Status)))
		return nil, false, err
	}
	if !changed {
		return order, false, nil
	}

	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, false, fmt.Errorf("failed to %s order: %w", action, err)
	}

	logger.Logger().Info("order transitioned",
		zap.String("order_id", orderID),
		zap.String("action", action),
		zap.String("status", string(order.Status)))

	if event != nil {
		s.publish(ctx, event(order))
	}

	return order, true, nil
}

func (s *OrderService) publish(ctx context.Context, ev OrderEvent) {
	s.mu.RLock()
	handlers := append([]OrderEventHandler(nil), s.handlers...)
	s.mu.RUnlock()

	for _, h := range handlers {
		if err := h.HandleOrderEvent(ctx, ev); err != nil {
			logger.Logger().Error("order event handler failed",
				zap.String("order_id", ev.EventOrderID()), zap.Error(err))
		}
	}
}

func transitionError(action string, o *model.Order) error {
	return fmt.Errorf("%w: cannot %s order in status %s", ErrOrderTransition, action, o.Status)
}
