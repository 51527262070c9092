package worker

import (
	"context"
	"sync"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/service"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	day             = 24 * time.Hour
	defaultInterval = 30 * time.Second
)

type OrderLedger interface {
	ListByStatus(ctx context.Context, status model.OrderStatus) ([]*model.Order, error)
	Receive(ctx context.Context, orderID string, mode model.ReceiveMode) (*model.Order, error)
	ExpireUnpaid(ctx context.Context, orderID, reason string) (*model.Order, bool, error)
}

type TaskEngine interface {
	ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error)
	PromoteIfDue(ctx context.Context, taskID string) (service.PromotionOutcome, error)
}

// TickReport counts what one pass of the scheduler changed.
type TickReport struct {
	AutoReceived int
	Promoted     int
	RiskBlocked  int
	Expired      int
	Failed       int
}

// Scheduler moves orders and tasks along as time passes. Every sweep works
// item by item: a failing item is logged and the sweep continues.
type Scheduler struct {
	orders   OrderLedger
	tasks    TaskEngine
	cfg      service.Config
	interval time.Duration
	now      service.Clock
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(orders OrderLedger, tasks TaskEngine, cfg service.Config, interval time.Duration, clock service.Clock, log *zap.Logger) *Scheduler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		orders:   orders,
		tasks:    tasks,
		cfg:      cfg,
		interval: interval,
		now:      clock,
		log:      log,
	}
}

// Tick runs all sweeps once. Running it again without time passing changes
// nothing.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var report TickReport

	if s.cfg.Features.AutoReceive {
		s.autoReceive(ctx, &report)
	}
	s.promotePayouts(ctx, &report)
	if s.cfg.Features.OrderExpireClose {
		s.expireUnpaid(ctx, &report)
	}

	if report != (TickReport{}) {
		s.log.Info("Scheduler tick finished",
			zap.Int("auto_received", report.AutoReceived),
			zap.Int("promoted", report.Promoted),
			zap.Int("risk_blocked", report.RiskBlocked),
			zap.Int("expired", report.Expired),
			zap.Int("failed", report.Failed))
	}
	return report
}

func (s *Scheduler) autoReceive(ctx context.Context, report *TickReport) {
	orders, err := s.orders.ListByStatus(ctx, model.OrderShipped)
	if err != nil {
		s.log.Error("Failed to list shipped orders", zap.Error(err))
		report.Failed++
		return
	}

	threshold := time.Duration(s.cfg.AutoReceiveDays) * day
	now := s.now()
	for _, o := range orders {
		if o.ShippedAt == nil || now.Sub(*o.ShippedAt) < threshold {
			continue
		}
		if _, err := s.orders.Receive(ctx, o.OrderID, model.ReceiveAuto); err != nil {
			s.log.Error("Failed to auto-receive order",
				zap.Error(errors.Wrapf(err, "order %s", o.OrderID)))
			report.Failed++
			continue
		}
		s.log.Info("Order auto-received", zap.String("order_id", o.OrderID))
		report.AutoReceived++
	}
}

func (s *Scheduler) promotePayouts(ctx context.Context, report *TickReport) {
	tasks, err := s.tasks.ListTasksByStatus(ctx, model.TaskQualified)
	if err != nil {
		s.log.Error("Failed to list qualified tasks", zap.Error(err))
		report.Failed++
		return
	}

	now := s.now()
	for _, t := range tasks {
		if t.Qualification == nil || now.Before(t.Qualification.PayoutAt) {
			continue
		}
		outcome, err := s.tasks.PromoteIfDue(ctx, t.TaskID)
		if err != nil {
			s.log.Error("Failed to promote task",
				zap.Error(errors.Wrapf(err, "task %s", t.TaskID)))
			report.Failed++
			continue
		}
		switch outcome {
		case service.PromotionPromoted:
			report.Promoted++
		case service.PromotionRiskBlocked:
			report.RiskBlocked++
		}
	}
}

func (s *Scheduler) expireUnpaid(ctx context.Context, report *TickReport) {
	orders, err := s.orders.ListByStatus(ctx, model.OrderCreated)
	if err != nil {
		s.log.Error("Failed to list unpaid orders", zap.Error(err))
		report.Failed++
		return
	}

	threshold := time.Duration(s.cfg.OrderPayExpireMinutes * float64(time.Minute))
	now := s.now()
	for _, o := range orders {
		if now.Sub(o.CreatedAt) < threshold {
			continue
		}
		_, closed, err := s.orders.ExpireUnpaid(ctx, o.OrderID, service.CloseReasonPayTimeout)
		if err != nil {
			s.log.Error("Failed to expire order",
				zap.Error(errors.Wrapf(err, "order %s", o.OrderID)))
			report.Failed++
			continue
		}
		if closed {
			s.log.Info("Unpaid order closed",
				zap.String("order_id", o.OrderID),
				zap.String("reason", service.CloseReasonPayTimeout))
			report.Expired++
		}
	}
}

// Start ticks once right away and then every interval until ctx is done or
// Stop is called. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.log.Info("Scheduler started", zap.Duration("interval", s.interval))
	defer s.log.Info("Scheduler stopped")

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels future ticks and waits for a running one to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
