package service

import (
	"context"
	"errors"
	"fmt"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"
	"invite_mall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LedgerUpdate struct {
	Note        *string
	OperatorKey string
}

// LedgerService keeps one payout ledger entry per qualified task. Callers hold
// the task lock.
type LedgerService struct {
	repo       LedgerRepository
	classifier RiskClassifier
	now        Clock
}

func NewLedgerService(repo LedgerRepository, classifier RiskClassifier, clock Clock) *LedgerService {
	if clock == nil {
		clock = systemClock
	}
	if classifier == nil {
		classifier = RuleCountClassifier{}
	}
	return &LedgerService{
		repo:       repo,
		classifier: classifier,
		now:        clock,
	}
}

// UpsertFromTask creates the task's entry or refreshes its schedule and risk.
// Note, operator and payout status of an existing entry are left alone.
func (s *LedgerService) UpsertFromTask(ctx context.Context, task *model.Task) (*model.PayoutLedgerEntry, error) {
	now := s.now()
	risk := s.classifier.Classify(task.RiskMarks)

	entry, err := s.repo.GetLedgerEntry(ctx, task.TaskID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		entry, err = s.newEntry(ctx, task, risk)
		if err != nil {
			return nil, err
		}
		if err := s.repo.InsertLedgerEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		logger.Logger().Info("payout ledger entry created",
			zap.String("task_id", task.TaskID),
			zap.String("risk_level", string(risk.Level)))
		return entry, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	applySchedule(entry, task)
	entry.RiskLevel = risk.Level
	entry.RiskReasons = risk.Reasons
	entry.UpdatedAt = now
	if err := s.repo.UpdateLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger entry: %w", err)
	}
	return entry, nil
}

// UpdateStatus records a payout decision. A missing entry is created first.
// Only the masked operator key is stored.
func (s *LedgerService) UpdateStatus(ctx context.Context, task *model.Task, status model.PayoutStatus, upd LedgerUpdate) (*model.PayoutLedgerEntry, error) {
	entry, err := s.UpsertFromTask(ctx, task)
	if err != nil {
		return nil, err
	}

	entry.PayoutStatus = status
	entry.UpdatedAt = s.now()
	if upd.Note != nil {
		n := *upd.Note
		entry.Note = &n
	}
	if upd.OperatorKey != "" {
		entry.Operator = MaskOperatorKey(upd.OperatorKey)
	}
	if err := s.repo.UpdateLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger status: %w", err)
	}

	logger.Logger().Info("payout ledger status updated",
		zap.String("task_id", task.TaskID),
		zap.String("payout_status", string(status)),
		zap.String("operator", entry.Operator))

	return entry, nil
}

// Summary returns the task's entry, if any.
func (s *LedgerService) Summary(ctx context.Context, taskID string) (*model.PayoutLedgerEntry, bool) {
	entry, err := s.repo.GetLedgerEntry(ctx, taskID)
	if err != nil {
		return nil, false
	}
	return entry, true
}

func (s *LedgerService) newEntry(ctx context.Context, task *model.Task, risk model.RiskAssessment) (*model.PayoutLedgerEntry, error) {
	helps, err := s.repo.ListHelpsByTask(ctx, task.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list helps: %w", err)
	}

	now := s.now()
	entry := &model.PayoutLedgerEntry{
		ID:             uuid.NewString(),
		TaskID:         task.TaskID,
		TaskNo:         task.TaskNo,
		UserID:         task.UserID,
		OrderID:        task.OrderID,
		HelperUserIDs:  make([]string, 0, len(helps)),
		HelperOrderIDs: make([]string, 0, len(helps)),
		PayoutStatus:   model.PayoutPending,
		RiskLevel:      risk.Level,
		RiskReasons:    risk.Reasons,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, h := range helps {
		entry.HelperUserIDs = append(entry.HelperUserIDs, h.HelperUserID)
		if h.OrderID != "" {
			entry.HelperOrderIDs = append(entry.HelperOrderIDs, h.OrderID)
		}
	}
	applySchedule(entry, task)
	return entry, nil
}

func applySchedule(entry *model.PayoutLedgerEntry, task *model.Task) {
	if task.Qualification == nil {
		return
	}
	qa, pa := task.Qualification.QualifiedAt, task.Qualification.PayoutAt
	entry.QualifiedAt = &qa
	entry.PayoutAt = &pa
}

// MaskOperatorKey keeps enough of an admin key to tell operators apart.
func MaskOperatorKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return key[:min(2, len(key))] + "***"
	}
	return key[:4] + "***" + key[len(key)-2:]
}
