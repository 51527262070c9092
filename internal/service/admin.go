package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PayoutQuery struct {
	RiskLevel    model.RiskLevel
	PayoutStatus model.PayoutStatus
	Search       string
	// SortAsc lists the oldest tasks first.
	SortAsc  bool
	Page     int
	PageSize int
}

func (q *PayoutQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
}

type PayoutItem struct {
	Task         *model.Task
	Amount       *decimal.Decimal
	RiskLevel    model.RiskLevel
	RiskReasons  []string
	PayoutStatus model.PayoutStatus
	QualifiedAt  *time.Time
	PayoutAt     *time.Time
}

type PayoutPage struct {
	Items    []PayoutItem
	Total    int
	Page     int
	PageSize int
}

type TaskDetail struct {
	*TaskProgress
	Order    *model.Order
	QueuedAt *time.Time
}

// SettlementResult reports the task status after an admin decision.
// AlreadyHandled is set when the task had reached a terminal status before.
type SettlementResult struct {
	TaskID         string
	Status         model.TaskStatus
	AlreadyHandled bool
}

type AdminService struct {
	repo       AdminRepository
	invites    *InviteService
	ledger     *LedgerService
	classifier RiskClassifier
	now        Clock
}

func NewAdminService(
	repo AdminRepository,
	invites *InviteService,
	ledger *LedgerService,
	classifier RiskClassifier,
	clock Clock,
) *AdminService {
	if clock == nil {
		clock = systemClock
	}
	if classifier == nil {
		classifier = RuleCountClassifier{}
	}
	return &AdminService{
		repo:       repo,
		invites:    invites,
		ledger:     ledger,
		classifier: classifier,
		now:        clock,
	}
}

// ListPendingPayouts pages through tasks waiting for a payout decision whose
// payout time has passed.
func (s *AdminService) ListPendingPayouts(ctx context.Context, q PayoutQuery) (*PayoutPage, error) {
	q.normalize()

	tasks, err := s.repo.ListTasks(ctx, repository.TaskFilter{Status: model.TaskPendingPayout})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	now := s.now()
	items := make([]PayoutItem, 0, len(tasks))
	for _, t := range tasks {
		if t.Qualification == nil || t.Qualification.PayoutAt.After(now) {
			continue
		}
		if q.Search != "" &&
			!strings.Contains(strings.ToLower(t.TaskNo), q.Search) &&
			!strings.Contains(strings.ToLower(t.UserID), q.Search) {
			continue
		}

		item, err := s.payoutItem(ctx, t)
		if err != nil {
			return nil, err
		}
		if q.RiskLevel != "" && item.RiskLevel != q.RiskLevel {
			continue
		}
		if q.PayoutStatus != "" && item.PayoutStatus != q.PayoutStatus {
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Task.CreatedAt, items[j].Task.CreatedAt
		if q.SortAsc {
			return a.Before(b)
		}
		return a.After(b)
	})

	page := &PayoutPage{
		Items:    []PayoutItem{},
		Total:    len(items),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	start := (q.Page - 1) * q.PageSize
	if start < len(items) {
		end := min(start+q.PageSize, len(items))
		page.Items = items[start:end]
	}
	return page, nil
}

func (s *AdminService) payoutItem(ctx context.Context, t *model.Task) (PayoutItem, error) {
	item := PayoutItem{Task: t}

	order, err := s.repo.GetOrder(ctx, t.OrderID)
	switch {
	case err == nil:
		amount := order.Amount
		item.Amount = &amount
	case !errors.Is(err, repository.ErrNotFound):
		return item, fmt.Errorf("failed to get order: %w", err)
	}

	risk := s.classifier.Classify(t.RiskMarks)
	item.RiskLevel = risk.Level
	item.RiskReasons = risk.Reasons

	if t.Qualification != nil {
		qa, pa := t.Qualification.QualifiedAt, t.Qualification.PayoutAt
		item.QualifiedAt, item.PayoutAt = &qa, &pa
	}
	if entry, ok := s.ledger.Summary(ctx, t.TaskID); ok {
		item.PayoutStatus = entry.PayoutStatus
		if entry.QualifiedAt != nil {
			item.QualifiedAt = entry.QualifiedAt
		}
		if entry.PayoutAt != nil {
			item.PayoutAt = entry.PayoutAt
		}
	}
	return item, nil
}

func (s *AdminService) TaskDetail(ctx context.Context, taskID string) (*TaskDetail, error) {
	progress, err := s.invites.TaskProgress(ctx, taskID)
	if err != nil {
		return nil, err
	}

	detail := &TaskDetail{TaskProgress: progress}
	order, err := s.repo.GetOrder(ctx, progress.Task.OrderID)
	switch {
	case err == nil:
		detail.Order = order
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if q, err := s.repo.GetPayoutQueueEntry(ctx, taskID); err == nil {
		detail.QueuedAt = &q.EnteredAt
	}
	return detail, nil
}

// Approve pays out a task. Repeating the call on a settled task reports the
// existing outcome instead of failing.
func (s *AdminService) Approve(ctx context.Context, taskID, note, operatorKey string) (*SettlementResult, error) {
	task, err := s.invites.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return alreadyHandled(task), nil
	}

	task, err = s.invites.ApproveTask(ctx, taskID, note, operatorKey)
	if err != nil {
		return s.settledMeanwhile(ctx, taskID, err)
	}
	return &SettlementResult{TaskID: task.TaskID, Status: task.Status}, nil
}

func (s *AdminService) Reject(ctx context.Context, taskID, note, operatorKey string) (*SettlementResult, error) {
	task, err := s.invites.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return alreadyHandled(task), nil
	}

	task, changed, err := s.invites.rejectTask(ctx, taskID, note, operatorKey, true)
	if err != nil {
		return nil, err
	}
	if !changed {
		return alreadyHandled(task), nil
	}
	return &SettlementResult{TaskID: task.TaskID, Status: task.Status}, nil
}

// settledMeanwhile turns a lost race against another decision into an
// already-handled result.
func (s *AdminService) settledMeanwhile(ctx context.Context, taskID string, cause error) (*SettlementResult, error) {
	if !errors.Is(cause, ErrTaskNotPendingPayout) {
		return nil, cause
	}
	task, err := s.invites.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return alreadyHandled(task), nil
	}
	return nil, cause
}

func alreadyHandled(task *model.Task) *SettlementResult {
	return &SettlementResult{TaskID: task.TaskID, Status: task.Status, AlreadyHandled: true}
}

// ReviewQueue lists tasks with at least one helper held for risk review,
// oldest first.
func (s *AdminService) ReviewQueue(ctx context.Context) ([]*TaskProgress, error) {
	ids, err := s.repo.ListTaskIDsByHelperStatus(ctx, model.HelperPendingReview)
	if err != nil {
		return nil, fmt.Errorf("failed to list review tasks: %w", err)
	}

	out := make([]*TaskProgress, 0, len(ids))
	for _, id := range ids {
		p, err := s.invites.TaskProgress(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Task, out[j].Task
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.TaskID < b.TaskID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (s *AdminService) ApproveHelper(ctx context.Context, taskID, helperUserID string) (*model.Help, error) {
	return s.invites.ApproveRiskHelper(ctx, taskID, helperUserID)
}

func (s *AdminService) RejectHelper(ctx context.Context, taskID, helperUserID string) (*model.Help, error) {
	return s.invites.RejectRiskHelper(ctx, taskID, helperUserID)
}

func (s *AdminService) MarkTaskRisk(ctx context.Context, taskID, rule, detail string) (*model.Task, error) {
	return s.invites.MarkTaskRisk(ctx, taskID, rule, detail)
}
