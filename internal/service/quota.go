package service

import (
	"context"
	"fmt"

	"invite_mall/internal/model"
	"invite_mall/pkg/logger"

	"go.uber.org/zap"
)

const quotaDateLayout = "2006-01-02"

// QuotaService tracks how many tasks a user may start per UTC day. A base
// quota of zero or less disables the limit.
type QuotaService struct {
	repo     QuotaRepository
	base     int
	bonusMax int
	now      Clock
}

func NewQuotaService(repo QuotaRepository, base, bonusMax int, clock Clock) *QuotaService {
	if clock == nil {
		clock = systemClock
	}
	return &QuotaService{
		repo:     repo,
		base:     base,
		bonusMax: bonusMax,
		now:      clock,
	}
}

func (s *QuotaService) today() string {
	return s.now().UTC().Format(quotaDateLayout)
}

func (s *QuotaService) unlimited() bool {
	return s.base <= 0
}

func (s *QuotaService) CanStartTask(ctx context.Context, userID string) (bool, error) {
	return s.canStart(ctx, s.today(), userID)
}

func (s *QuotaService) canStart(ctx context.Context, date, userID string) (bool, error) {
	if s.unlimited() {
		return true, nil
	}
	q, err := s.repo.GetDailyQuota(ctx, date, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load quota: %w", err)
	}
	return q.UsedQuota < s.base+q.BonusQuota, nil
}

// UseQuota consumes one unit of today's quota. Consumption is never undone.
func (s *QuotaService) UseQuota(ctx context.Context, userID string) error {
	unlock := s.repo.LockQuota(userID)
	defer unlock()

	return s.use(ctx, s.today(), userID)
}

// WithStartQuota runs fn only if the user has quota left and consumes one
// unit when fn succeeds. The quota stays locked for the duration of fn, so
// concurrent starts by the same user cannot overdraw it. The unit is charged
// to the day that was checked, even if fn runs past midnight.
func (s *QuotaService) WithStartQuota(ctx context.Context, userID string, fn func() error) error {
	unlock := s.repo.LockQuota(userID)
	defer unlock()

	date := s.today()
	ok, err := s.canStart(ctx, date, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuotaExceeded
	}

	if err := fn(); err != nil {
		return err
	}

	return s.use(ctx, date, userID)
}

func (s *QuotaService) use(ctx context.Context, date, userID string) error {
	q, err := s.repo.GetDailyQuota(ctx, date, userID)
	if err != nil {
		return fmt.Errorf("failed to load quota: %w", err)
	}
	q.UsedQuota++
	if err := s.repo.UpdateDailyQuota(ctx, q); err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	return nil
}

func (s *QuotaService) ClaimBonus(ctx context.Context, userID string) (*model.QuotaSummary, error) {
	unlock := s.repo.LockQuota(userID)
	defer unlock()

	q, err := s.repo.GetDailyQuota(ctx, s.today(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota: %w", err)
	}
	if q.BonusClaimedToday >= s.bonusMax {
		return nil, ErrQuotaBonusLimit
	}

	q.BonusQuota++
	q.BonusClaimedToday++
	if err := s.repo.UpdateDailyQuota(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to claim bonus: %w", err)
	}

	logger.Logger().Info("quota bonus claimed",
		zap.String("user_id", userID),
		zap.Int("bonus", q.BonusQuota))

	return s.summarize(q), nil
}

func (s *QuotaService) Summary(ctx context.Context, userID string) (*model.QuotaSummary, error) {
	q, err := s.repo.GetDailyQuota(ctx, s.today(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota: %w", err)
	}
	return s.summarize(q), nil
}

func (s *QuotaService) summarize(q *model.DailyQuota) *model.QuotaSummary {
	sum := &model.QuotaSummary{
		Date:      q.Date,
		Base:      s.base,
		Bonus:     q.BonusQuota,
		Used:      q.UsedQuota,
		Unlimited: s.unlimited(),
	}
	if !sum.Unlimited {
		sum.Available = max(s.base+q.BonusQuota-q.UsedQuota, 0)
	}
	return sum
}
