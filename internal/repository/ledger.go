package repository

import (
	"context"

	"invite_mall/internal/model"
)

func (r *Repository) GetLedgerEntry(ctx context.Context, taskID string) (*model.PayoutLedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ledger[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (r *Repository) InsertLedgerEntry(ctx context.Context, entry *model.PayoutLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ledger[entry.TaskID]; exists {
		return ErrAlreadyExists
	}
	r.ledger[entry.TaskID] = entry.Clone()
	return nil
}

func (r *Repository) UpdateLedgerEntry(ctx context.Context, entry *model.PayoutLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ledger[entry.TaskID]; !ok {
		return ErrNotFound
	}
	r.ledger[entry.TaskID] = entry.Clone()
	return nil
}

// EnqueuePayout records the task in the payout queue. It reports false when
// the task was already queued.
func (r *Repository) EnqueuePayout(ctx context.Context, entry model.PayoutQueueEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queue[entry.TaskID]; exists {
		return false
	}
	r.queue[entry.TaskID] = entry
	return true
}

func (r *Repository) GetPayoutQueueEntry(ctx context.Context, taskID string) (*model.PayoutQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.queue[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}
