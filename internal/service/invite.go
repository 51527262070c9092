package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"
	"invite_mall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	taskNoCharset  = "abcdefghijklmnopqrstuvwxyz0123456789"
	taskNoSuffix   = 4
	taskNoAttempts = 10

	day = 24 * time.Hour
)

type BindOptions struct {
	// HelperStatus is BOUND unless an upstream risk check asks for review.
	HelperStatus model.HelperStatus
}

type PromotionOutcome int

const (
	PromotionSkipped PromotionOutcome = iota
	PromotionNotDue
	PromotionRiskBlocked
	PromotionPromoted
)

func (o PromotionOutcome) String() string {
	switch o {
	case PromotionNotDue:
		return "not_due"
	case PromotionRiskBlocked:
		return "risk_blocked"
	case PromotionPromoted:
		return "promoted"
	default:
		return "skipped"
	}
}

// InviteService drives the invite task state machine. Every mutation of a
// task or its helps runs under that task's lock.
type InviteService struct {
	repo       InviteRepository
	quotas     *QuotaService
	ledger     *LedgerService
	classifier RiskClassifier
	notifier   Notifier
	cfg        Config
	now        Clock
}

func NewInviteService(
	repo InviteRepository,
	quotas *QuotaService,
	ledger *LedgerService,
	classifier RiskClassifier,
	notifier Notifier,
	cfg Config,
	clock Clock,
) *InviteService {
	if clock == nil {
		clock = systemClock
	}
	if classifier == nil {
		classifier = RuleCountClassifier{}
	}
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	return &InviteService{
		repo:       repo,
		quotas:     quotas,
		ledger:     ledger,
		classifier: classifier,
		notifier:   notifier,
		cfg:        cfg,
		now:        clock,
	}
}

func (s *InviteService) StartTask(ctx context.Context, userID, orderID string) (*model.Task, error) {
	if userID == "" || orderID == "" {
		return nil, fmt.Errorf("%w: user id and order id are required", ErrInvalidInput)
	}

	var task *model.Task
	err := s.quotas.WithStartQuota(ctx, userID, func() error {
		order, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to get order: %w", err)
		}
		if order.UserID != userID {
			return ErrOrderNotFound
		}
		if s.repo.TaskExistsForOrder(ctx, orderID) {
			return ErrOrderAlreadyHasTask
		}

		task, err = s.createTask(ctx, userID, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Logger().Info("invite task started",
		zap.String("task_id", task.TaskID),
		zap.String("task_no", task.TaskNo),
		zap.String("user_id", userID),
		zap.String("order_id", orderID))

	return task, nil
}

func (s *InviteService) createTask(ctx context.Context, userID, orderID string) (*model.Task, error) {
	now := s.now()
	for i := 0; i < taskNoAttempts; i++ {
		taskNo, err := generateTaskNo(now)
		if err != nil {
			return nil, err
		}

		task := &model.Task{
			TaskID:          uuid.NewString(),
			TaskNo:          taskNo,
			UserID:          userID,
			OrderID:         orderID,
			Status:          model.TaskPending,
			RequiredHelpers: s.cfg.RequiredHelpers,
			CreatedAt:       now,
		}
		err = s.repo.CreateTask(ctx, task)
		switch {
		case err == nil:
			return task, nil
		case errors.Is(err, repository.ErrTaskNoTaken):
			continue
		case errors.Is(err, repository.ErrAlreadyExists):
			return nil, ErrOrderAlreadyHasTask
		default:
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to generate unique task number after %d attempts", taskNoAttempts)
}

// generateTaskNo builds a shareable code from the creation time and a short
// random suffix.
func generateTaskNo(now time.Time) (string, error) {
	var b strings.Builder
	b.WriteString("T")
	b.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))

	limit := big.NewInt(int64(len(taskNoCharset)))
	for i := 0; i < taskNoSuffix; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate task number: %w", err)
		}
		b.WriteByte(taskNoCharset[n.Int64()])
	}
	return b.String(), nil
}

func (s *InviteService) BindHelper(ctx context.Context, taskNo, helperUserID string, opts BindOptions) (*model.Help, error) {
	if taskNo == "" || helperUserID == "" {
		return nil, fmt.Errorf("%w: task number and helper are required", ErrInvalidInput)
	}

	task, err := s.GetTaskByNo(ctx, taskNo)
	if err != nil {
		return nil, err
	}

	unlock := s.repo.LockTask(task.TaskID)
	defer unlock()

	task, err = s.GetTask(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskPending {
		return nil, ErrTaskNotPending
	}

	helperStatus := opts.HelperStatus
	if helperStatus == "" {
		helperStatus = model.HelperBound
	}
	help := &model.Help{
		HelpID:       uuid.NewString(),
		TaskID:       task.TaskID,
		HelperUserID: helperUserID,
		Status:       model.HelpBound,
		HelperStatus: helperStatus,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateHelp(ctx, help, s.cfg.AllowDuplicateHelper); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrAlreadyBound
		}
		return nil, fmt.Errorf("failed to bind helper: %w", err)
	}

	logger.Logger().Info("helper bound",
		zap.String("task_id", task.TaskID),
		zap.String("helper_user_id", helperUserID),
		zap.String("helper_status", string(helperStatus)))

	return help, nil
}

// BindOrderToHelp links the helper's own order to their help. It does not
// change any status; progress moves only when the order is received.
func (s *InviteService) BindOrderToHelp(ctx context.Context, taskNo, helperUserID, orderID string) (*model.Help, error) {
	if taskNo == "" || helperUserID == "" || orderID == "" {
		return nil, fmt.Errorf("%w: task number, helper and order are required", ErrInvalidInput)
	}

	task, err := s.GetTaskByNo(ctx, taskNo)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order.UserID != helperUserID {
		return nil, ErrOrderNotFound
	}

	unlock := s.repo.LockTask(task.TaskID)
	defer unlock()

	help, err := s.repo.FindHelp(ctx, task.TaskID, helperUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrHelpNotFound
		}
		return nil, fmt.Errorf("failed to find help: %w", err)
	}

	help, err = s.repo.AttachHelpOrder(ctx, help.HelpID, orderID)
	switch {
	case errors.Is(err, repository.ErrHelpOrderSet):
		return nil, ErrHelpOrderAlreadySet
	case errors.Is(err, repository.ErrOrderBound):
		return nil, ErrOrderAlreadyBound
	case err != nil:
		return nil, fmt.Errorf("failed to bind order: %w", err)
	}

	logger.Logger().Info("helper order bound",
		zap.String("task_id", task.TaskID),
		zap.String("helper_user_id", helperUserID),
		zap.String("order_id", orderID))

	return help, nil
}

// HandleOrderEvent reacts to helper orders being received or refunded.
// Orders that back no help are ignored.
func (s *InviteService) HandleOrderEvent(ctx context.Context, ev OrderEvent) error {
	switch e := ev.(type) {
	case OrderReceived:
		return s.onOrderReceived(ctx, e)
	case OrderRefunded:
		return s.onOrderRefunded(ctx, e)
	default:
		return nil
	}
}

func (s *InviteService) onOrderReceived(ctx context.Context, ev OrderReceived) error {
	help, task, unlock, err := s.lockHelpByOrder(ctx, ev.OrderID)
	if err != nil || help == nil {
		return err
	}
	defer unlock()

	if help.Status != model.HelpBound {
		return nil
	}

	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	help.Status = model.HelpValid
	help.ReceivedAt = &receivedAt
	if err := s.repo.UpdateHelp(ctx, help); err != nil {
		return fmt.Errorf("failed to validate help: %w", err)
	}

	logger.Logger().Info("help validated",
		zap.String("task_id", task.TaskID),
		zap.String("help_id", help.HelpID),
		zap.String("order_id", ev.OrderID))

	_, err = s.evaluateQualification(ctx, task)
	return err
}

func (s *InviteService) onOrderRefunded(ctx context.Context, ev OrderRefunded) error {
	help, task, unlock, err := s.lockHelpByOrder(ctx, ev.OrderID)
	if err != nil || help == nil {
		return err
	}
	defer unlock()

	invalidAt := ev.RefundedAt
	if invalidAt.IsZero() {
		invalidAt = s.now()
	}
	help.Status = model.HelpInvalid
	help.InvalidAt = &invalidAt
	if err := s.repo.UpdateHelp(ctx, help); err != nil {
		return fmt.Errorf("failed to invalidate help: %w", err)
	}

	if !task.Status.Revocable() {
		return nil
	}

	now := s.now()
	task.Status = model.TaskRevoked
	task.RevokedAt = &now
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to revoke task: %w", err)
	}

	logger.Logger().Warn("task revoked by helper refund",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID),
		zap.String("order_id", ev.OrderID))

	s.notifier.NotifyTask(ctx, newTaskEvent(TaskEventRevoked, task, now))
	return nil
}

// lockHelpByOrder finds the help backed by orderID and locks its task. It
// returns a nil help when the order backs none.
func (s *InviteService) lockHelpByOrder(ctx context.Context, orderID string) (*model.Help, *model.Task, func(), error) {
	help, err := s.repo.GetHelpByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("failed to find help by order: %w", err)
	}

	unlock := s.repo.LockTask(help.TaskID)

	// re-read under the lock
	help, err = s.repo.GetHelpByOrder(ctx, orderID)
	if err != nil {
		unlock()
		return nil, nil, nil, fmt.Errorf("failed to find help by order: %w", err)
	}
	task, err := s.GetTask(ctx, help.TaskID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return help, task, unlock, nil
}

// evaluateQualification moves a PENDING task to QUALIFIED once enough helps
// count. The caller holds the task lock.
func (s *InviteService) evaluateQualification(ctx context.Context, task *model.Task) (bool, error) {
	if task.Status != model.TaskPending {
		return false, nil
	}

	helps, err := s.repo.ListHelpsByTask(ctx, task.TaskID)
	if err != nil {
		return false, fmt.Errorf("failed to list helps: %w", err)
	}

	var (
		count       int
		qualifiedAt time.Time
	)
	for _, h := range helps {
		if !h.Qualifying() {
			continue
		}
		count++
		if h.ReceivedAt != nil && h.ReceivedAt.After(qualifiedAt) {
			qualifiedAt = *h.ReceivedAt
		}
	}
	if count < task.RequiredHelpers {
		return false, nil
	}
	if qualifiedAt.IsZero() {
		qualifiedAt = s.now()
	}

	payoutAt := qualifiedAt.Add(time.Duration(s.cfg.PayoutDelayDays) * day)
	risk := s.classifier.Classify(task.RiskMarks)
	if s.cfg.Features.RiskBlocking && risk.Level == model.RiskMedium && !task.RiskDelayApplied {
		payoutAt = payoutAt.Add(time.Duration(s.cfg.PayoutDelayRiskMediumDays) * day)
		task.RiskDelayApplied = true
	}

	task.Status = model.TaskQualified
	task.Qualification = &model.Qualification{QualifiedAt: qualifiedAt, PayoutAt: payoutAt}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return false, fmt.Errorf("failed to qualify task: %w", err)
	}
	if _, err := s.ledger.UpsertFromTask(ctx, task); err != nil {
		return true, err
	}

	logger.Logger().Info("task qualified",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID),
		zap.Int("progress", count),
		zap.Time("payout_at", payoutAt),
		zap.String("risk_level", string(risk.Level)))

	s.notifier.NotifyTask(ctx, newTaskEvent(TaskEventQualified, task, s.now()))
	return true, nil
}

// ApproveRiskHelper clears a helper held for review and re-checks the task.
// Helpers not awaiting review are returned unchanged.
func (s *InviteService) ApproveRiskHelper(ctx context.Context, taskID, helperUserID string) (*model.Help, error) {
	unlock := s.repo.LockTask(taskID)
	defer unlock()

	task, help, err := s.taskHelp(ctx, taskID, helperUserID)
	if err != nil {
		return nil, err
	}
	if help.HelperStatus != model.HelperPendingReview {
		return help, nil
	}

	help.HelperStatus = model.HelperBound
	if err := s.repo.UpdateHelp(ctx, help); err != nil {
		return nil, fmt.Errorf("failed to approve helper: %w", err)
	}

	logger.Logger().Info("risk helper approved",
		zap.String("task_id", taskID),
		zap.String("helper_user_id", helperUserID))

	if help.Status == model.HelpValid {
		if _, err := s.evaluateQualification(ctx, task); err != nil {
			return nil, err
		}
	}
	return help, nil
}

// RejectRiskHelper excludes a helper from progress for good.
func (s *InviteService) RejectRiskHelper(ctx context.Context, taskID, helperUserID string) (*model.Help, error) {
	unlock := s.repo.LockTask(taskID)
	defer unlock()

	_, help, err := s.taskHelp(ctx, taskID, helperUserID)
	if err != nil {
		return nil, err
	}
	if help.HelperStatus == model.HelperRejected {
		return help, nil
	}

	help.HelperStatus = model.HelperRejected
	if err := s.repo.UpdateHelp(ctx, help); err != nil {
		return nil, fmt.Errorf("failed to reject helper: %w", err)
	}

	logger.Logger().Info("risk helper rejected",
		zap.String("task_id", taskID),
		zap.String("helper_user_id", helperUserID))

	return help, nil
}

func (s *InviteService) taskHelp(ctx context.Context, taskID, helperUserID string) (*model.Task, *model.Help, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	help, err := s.repo.FindHelp(ctx, taskID, helperUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrHelpNotFound
		}
		return nil, nil, fmt.Errorf("failed to find help: %w", err)
	}
	return task, help, nil
}

// ApproveTask pays out a task awaiting review. A HIGH risk level blocks the
// payout while risk blocking is enabled.
func (s *InviteService) ApproveTask(ctx context.Context, taskID, note, operatorKey string) (*model.Task, error) {
	unlock := s.repo.LockTask(taskID)
	defer unlock()

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskPendingPayout {
		return nil, ErrTaskNotPendingPayout
	}
	if s.cfg.Features.RiskBlocking {
		if risk := s.classifier.Classify(task.RiskMarks); risk.Level == model.RiskHigh {
			logger.Logger().Error("payout approval blocked by risk",
				zap.String("task_id", taskID),
				zap.String("user_id", task.UserID),
				zap.Strings("risk_reasons", risk.Reasons))
			return nil, ErrRiskBlocked
		}
	}

	now := s.now()
	task.Status = model.TaskPaidOut
	task.PaidOutAt = &now
	task.Note = note
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to approve task: %w", err)
	}
	if _, err := s.ledger.UpdateStatus(ctx, task, model.PayoutApproved, LedgerUpdate{Note: &note, OperatorKey: operatorKey}); err != nil {
		return nil, err
	}

	logger.Logger().Info("payout approved",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID))

	s.notifier.NotifyTask(ctx, newTaskEvent(TaskEventPaidOut, task, now))
	return task, nil
}

// RejectTask revokes a task whatever its status. An earlier revocation time
// is kept.
func (s *InviteService) RejectTask(ctx context.Context, taskID, note, operatorKey string) (*model.Task, error) {
	task, _, err := s.rejectTask(ctx, taskID, note, operatorKey, false)
	return task, err
}

// rejectTask reports false without touching the task when keepTerminal is
// set and the task is already PAID_OUT or REVOKED.
func (s *InviteService) rejectTask(ctx context.Context, taskID, note, operatorKey string, keepTerminal bool) (*model.Task, bool, error) {
	unlock := s.repo.LockTask(taskID)
	defer unlock()

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if keepTerminal && task.Status.Terminal() {
		return task, false, nil
	}

	now := s.now()
	task.Status = model.TaskRevoked
	if task.RevokedAt == nil {
		task.RevokedAt = &now
	}
	task.Note = note
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, false, fmt.Errorf("failed to reject task: %w", err)
	}
	if _, err := s.ledger.UpdateStatus(ctx, task, model.PayoutRejected, LedgerUpdate{Note: &note, OperatorKey: operatorKey}); err != nil {
		return nil, true, err
	}

	logger.Logger().Info("payout rejected",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID))

	s.notifier.NotifyTask(ctx, newTaskEvent(TaskEventRevoked, task, now))
	return task, true, nil
}

// PromoteIfDue moves a qualified task whose payout time has passed into the
// admin payout queue, unless its risk level blocks payouts.
func (s *InviteService) PromoteIfDue(ctx context.Context, taskID string) (PromotionOutcome, error) {
	unlock := s.repo.LockTask(taskID)
	defer unlock()

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return PromotionSkipped, err
	}
	if task.Status != model.TaskQualified || task.Qualification == nil {
		return PromotionSkipped, nil
	}

	now := s.now()
	if now.Before(task.Qualification.PayoutAt) {
		return PromotionNotDue, nil
	}

	risk := s.classifier.Classify(task.RiskMarks)
	if s.cfg.Features.RiskBlocking && risk.Level == model.RiskHigh {
		logger.Logger().Error("payout blocked by risk",
			zap.String("task_id", task.TaskID),
			zap.String("user_id", task.UserID),
			zap.Strings("risk_reasons", risk.Reasons))
		return PromotionRiskBlocked, nil
	}

	task.Status = model.TaskPendingPayout
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return PromotionSkipped, fmt.Errorf("failed to promote task: %w", err)
	}
	if s.repo.EnqueuePayout(ctx, model.PayoutQueueEntry{TaskID: task.TaskID, EnteredAt: now}) {
		logger.Logger().Info("task entered payout queue", zap.String("task_id", task.TaskID))
	}
	if _, err := s.ledger.UpsertFromTask(ctx, task); err != nil {
		return PromotionPromoted, err
	}

	logger.Logger().Info("task pending payout",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID))

	s.notifier.NotifyTask(ctx, newTaskEvent(TaskEventPendingPayout, task, now))
	return PromotionPromoted, nil
}

// MarkTaskRisk records that a risk rule fired for the task. A rule is
// recorded once; later marks for the same rule are ignored.
func (s *InviteService) MarkTaskRisk(ctx context.Context, taskID, rule, detail string) (*model.Task, error) {
	if rule == "" {
		return nil, fmt.Errorf("%w: risk rule is required", ErrInvalidInput)
	}

	unlock := s.repo.LockTask(taskID)
	defer unlock()

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.HasRiskRule(rule) {
		return task, nil
	}

	task.RiskMarks = append(task.RiskMarks, model.RiskMark{Rule: rule, Detail: detail, At: s.now()})
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to mark task risk: %w", err)
	}
	if task.Qualification != nil {
		if _, err := s.ledger.UpsertFromTask(ctx, task); err != nil {
			return nil, err
		}
	}

	logger.Logger().Warn("task risk marked",
		zap.String("task_id", taskID),
		zap.String("rule", rule))

	return task, nil
}

func (s *InviteService) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *InviteService) GetTaskByNo(ctx context.Context, taskNo string) (*model.Task, error) {
	task, err := s.repo.GetTaskByNo(ctx, taskNo)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *InviteService) ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	return s.repo.ListTasks(ctx, repository.TaskFilter{Status: status})
}

func (s *InviteService) ListUserTasks(ctx context.Context, userID string) ([]*TaskProgress, error) {
	tasks, err := s.repo.ListTasks(ctx, repository.TaskFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	out := make([]*TaskProgress, 0, len(tasks))
	for _, t := range tasks {
		p, err := s.buildProgress(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *InviteService) TaskProgress(ctx context.Context, taskID string) (*TaskProgress, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.buildProgress(ctx, task)
}
