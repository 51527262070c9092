package repository

import (
	"context"
	"sort"

	"invite_mall/internal/model"
)

type OrderFilter struct {
	Status model.OrderStatus
	UserID string
}

func (r *Repository) CreateOrder(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderID]; exists {
		return ErrAlreadyExists
	}
	o := *order
	r.orders[order.OrderID] = &o
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *o
	return &c, nil
}

func (r *Repository) UpdateOrder(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.OrderID]; !ok {
		return ErrNotFound
	}
	o := *order
	r.orders[order.OrderID] = &o
	return nil
}

func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Order, 0)
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
