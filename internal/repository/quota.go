package repository

import (
	"context"

	"invite_mall/internal/model"
)

// GetDailyQuota returns the user's record for date, creating an empty one on
// first access. Records of past days are never cleaned up.
func (r *Repository) GetDailyQuota(ctx context.Context, date, userID string) (*model.DailyQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := quotaKey{date: date, userID: userID}
	q, ok := r.quotas[key]
	if !ok {
		q = &model.DailyQuota{Date: date, UserID: userID}
		r.quotas[key] = q
	}
	c := *q
	return &c, nil
}

func (r *Repository) UpdateDailyQuota(ctx context.Context, quota *model.DailyQuota) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *quota
	r.quotas[quotaKey{date: quota.Date, userID: quota.UserID}] = &c
	return nil
}
