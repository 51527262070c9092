package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"
	"invite_mall/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	svc   *service.Service
	repo  *repository.Repository
	clock *clock
	sched *Scheduler
}

func newHarness(t *testing.T, mutate func(*service.Config)) *harness {
	t.Helper()

	cfg := service.DefaultConfig()
	cfg.DailyStartQuota = 0
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{repo: repository.New(), clock: &clock{t: start}}
	svc, err := service.NewService(h.repo, cfg, service.WithClock(h.clock.Now))
	require.NoError(t, err)
	h.svc = svc
	h.sched = NewScheduler(svc.Orders, svc.Invites, cfg, time.Hour, h.clock.Now, nil)
	return h
}

// taskWithShippedHelpers starts a task for inviter with two helpers whose
// orders are shipped but not received. It returns the task and helper orders.
func (h *harness) taskWithShippedHelpers(t *testing.T, inviter string) (*model.Task, []string) {
	t.Helper()
	ctx := context.Background()

	own, err := h.svc.Orders.Create(ctx, inviter, decimal.NewFromInt(100), service.CreateOrderOptions{})
	require.NoError(t, err)
	_, err = h.svc.Orders.Pay(ctx, own.OrderID, nil)
	require.NoError(t, err)
	task, err := h.svc.Invites.StartTask(ctx, inviter, own.OrderID)
	require.NoError(t, err)

	var orders []string
	for _, helper := range []string{inviter + "-h1", inviter + "-h2"} {
		_, err := h.svc.Invites.BindHelper(ctx, task.TaskNo, helper, service.BindOptions{})
		require.NoError(t, err)
		o, err := h.svc.Orders.Create(ctx, helper, decimal.NewFromInt(30), service.CreateOrderOptions{})
		require.NoError(t, err)
		_, err = h.svc.Invites.BindOrderToHelp(ctx, task.TaskNo, helper, o.OrderID)
		require.NoError(t, err)
		_, err = h.svc.Orders.Ship(ctx, o.OrderID, "SF", "")
		require.NoError(t, err)
		orders = append(orders, o.OrderID)
	}
	return task, orders
}

func (h *harness) qualifiedTask(t *testing.T, inviter string) *model.Task {
	t.Helper()
	task, orders := h.taskWithShippedHelpers(t, inviter)
	for _, id := range orders {
		_, err := h.svc.Orders.Receive(context.Background(), id, model.ReceiveManual)
		require.NoError(t, err)
	}
	return h.task(t, task.TaskID)
}

func (h *harness) task(t *testing.T, id string) *model.Task {
	t.Helper()
	task, err := h.svc.Invites.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func TestScheduler_PromotesOnce(t *testing.T) {
	h := newHarness(t, func(c *service.Config) { c.PayoutDelayDays = 0 })
	ctx := context.Background()

	task := h.qualifiedTask(t, "alice")
	require.Equal(t, model.TaskQualified, task.Status)

	report := h.sched.Tick(ctx)
	assert.Equal(t, TickReport{Promoted: 1}, report)
	assert.Equal(t, model.TaskPendingPayout, h.task(t, task.TaskID).Status)

	queued, err := h.repo.GetPayoutQueueEntry(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, start, queued.EnteredAt)

	h.clock.Advance(time.Minute)
	assert.Equal(t, TickReport{}, h.sched.Tick(ctx))

	queued, err = h.repo.GetPayoutQueueEntry(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, start, queued.EnteredAt)

	page, err := h.svc.Admin.ListPendingPayouts(ctx, service.PayoutQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestScheduler_WaitsForPayoutTime(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	task := h.qualifiedTask(t, "alice")

	h.clock.Advance(3*day - time.Second)
	assert.Zero(t, h.sched.Tick(ctx).Promoted)

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.sched.Tick(ctx).Promoted)
	assert.Equal(t, model.TaskPendingPayout, h.task(t, task.TaskID).Status)
}

func TestScheduler_AutoReceiveQualifiesTask(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	task, orders := h.taskWithShippedHelpers(t, "alice")

	h.clock.Advance(10*day - time.Minute)
	assert.Equal(t, TickReport{}, h.sched.Tick(ctx))

	h.clock.Advance(time.Minute)
	report := h.sched.Tick(ctx)
	assert.Equal(t, TickReport{AutoReceived: 2}, report)

	for _, id := range orders {
		o, err := h.svc.Orders.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.OrderReceived, o.Status)
		assert.Equal(t, model.ReceiveAuto, o.ReceiveMode)
	}

	got := h.task(t, task.TaskID)
	require.Equal(t, model.TaskQualified, got.Status)
	assert.Equal(t, start.Add(10*day), got.Qualification.QualifiedAt)

	h.clock.Advance(3 * day)
	assert.Equal(t, TickReport{Promoted: 1}, h.sched.Tick(ctx))
}

func TestScheduler_ExpiresUnpaidOrders(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	unpaid, err := h.svc.Orders.Create(ctx, "alice", decimal.NewFromInt(10), service.CreateOrderOptions{})
	require.NoError(t, err)
	paid, err := h.svc.Orders.Create(ctx, "alice", decimal.NewFromInt(10), service.CreateOrderOptions{})
	require.NoError(t, err)
	_, err = h.svc.Orders.Pay(ctx, paid.OrderID, nil)
	require.NoError(t, err)

	h.clock.Advance(29 * time.Minute)
	assert.Equal(t, TickReport{}, h.sched.Tick(ctx))

	h.clock.Advance(time.Minute)
	assert.Equal(t, TickReport{Expired: 1}, h.sched.Tick(ctx))
	assert.Equal(t, TickReport{}, h.sched.Tick(ctx))

	o, err := h.svc.Orders.Get(ctx, unpaid.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderClosed, o.Status)
	assert.Equal(t, service.CloseReasonPayTimeout, o.CloseReason)

	o, err = h.svc.Orders.Get(ctx, paid.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)
}

func TestScheduler_HighRiskStaysQualified(t *testing.T) {
	tests := []struct {
		name         string
		riskBlocking bool
		want         TickReport
		wantStatus   model.TaskStatus
	}{
		{name: "blocking on", riskBlocking: true, want: TickReport{RiskBlocked: 1}, wantStatus: model.TaskQualified},
		{name: "blocking off", riskBlocking: false, want: TickReport{Promoted: 1}, wantStatus: model.TaskPendingPayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *service.Config) { c.Features.RiskBlocking = tt.riskBlocking })
			ctx := context.Background()

			task := h.qualifiedTask(t, "alice")
			_, err := h.svc.Invites.MarkTaskRisk(ctx, task.TaskID, "same_device", "")
			require.NoError(t, err)
			_, err = h.svc.Invites.MarkTaskRisk(ctx, task.TaskID, "same_address", "")
			require.NoError(t, err)

			h.clock.Advance(30 * day)
			assert.Equal(t, tt.want, h.sched.Tick(ctx))
			assert.Equal(t, tt.wantStatus, h.task(t, task.TaskID).Status)
		})
	}
}

func TestScheduler_FeatureFlagsDisableSweeps(t *testing.T) {
	h := newHarness(t, func(c *service.Config) {
		c.Features.AutoReceive = false
		c.Features.OrderExpireClose = false
	})
	ctx := context.Background()

	_, orders := h.taskWithShippedHelpers(t, "alice")
	unpaid, err := h.svc.Orders.Create(ctx, "bob", decimal.NewFromInt(10), service.CreateOrderOptions{})
	require.NoError(t, err)

	h.clock.Advance(60 * day)
	assert.Equal(t, TickReport{}, h.sched.Tick(ctx))

	o, err := h.svc.Orders.Get(ctx, orders[0])
	require.NoError(t, err)
	assert.Equal(t, model.OrderShipped, o.Status)
	o, err = h.svc.Orders.Get(ctx, unpaid.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCreated, o.Status)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) ListByStatus(ctx context.Context, status model.OrderStatus) ([]*model.Order, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Order), args.Error(1)
}

func (m *mockOrders) Receive(ctx context.Context, orderID string, mode model.ReceiveMode) (*model.Order, error) {
	args := m.Called(ctx, orderID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *mockOrders) ExpireUnpaid(ctx context.Context, orderID, reason string) (*model.Order, bool, error) {
	args := m.Called(ctx, orderID, reason)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Order), args.Bool(1), args.Error(2)
}

type mockTasks struct {
	mock.Mock
}

func (m *mockTasks) ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Task), args.Error(1)
}

func (m *mockTasks) PromoteIfDue(ctx context.Context, taskID string) (service.PromotionOutcome, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(service.PromotionOutcome), args.Error(1)
}

func TestScheduler_FailuresDoNotStopSweep(t *testing.T) {
	shipped := start.Add(-20 * day)
	due := &model.Qualification{QualifiedAt: start.Add(-5 * day), PayoutAt: start.Add(-day)}

	orders := &mockOrders{}
	orders.On("ListByStatus", mock.Anything, model.OrderShipped).Return([]*model.Order{
		{OrderID: "o1", Status: model.OrderShipped, ShippedAt: &shipped},
		{OrderID: "o2", Status: model.OrderShipped, ShippedAt: &shipped},
	}, nil)
	orders.On("Receive", mock.Anything, "o1", model.ReceiveAuto).Return(nil, errors.New("db down"))
	orders.On("Receive", mock.Anything, "o2", model.ReceiveAuto).Return(&model.Order{OrderID: "o2"}, nil)
	orders.On("ListByStatus", mock.Anything, model.OrderCreated).Return(nil, errors.New("db down"))

	tasks := &mockTasks{}
	tasks.On("ListTasksByStatus", mock.Anything, model.TaskQualified).Return([]*model.Task{
		{TaskID: "t1", Status: model.TaskQualified, Qualification: due},
		{TaskID: "t2", Status: model.TaskQualified, Qualification: due},
	}, nil)
	tasks.On("PromoteIfDue", mock.Anything, "t1").Return(service.PromotionSkipped, service.ErrTaskNotFound)
	tasks.On("PromoteIfDue", mock.Anything, "t2").Return(service.PromotionPromoted, nil)

	core, logs := observer.New(zap.ErrorLevel)
	s := NewScheduler(orders, tasks, service.DefaultConfig(), 0, func() time.Time { return start }, zap.New(core))
	report := s.Tick(context.Background())

	assert.Equal(t, TickReport{AutoReceived: 1, Promoted: 1, Failed: 3}, report)
	assert.Equal(t, 1, logs.FilterMessage("Failed to auto-receive order").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to promote task").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to list unpaid orders").Len())
	orders.AssertExpectations(t)
	tasks.AssertExpectations(t)
}

func TestScheduler_StartStop(t *testing.T) {
	h := newHarness(t, func(c *service.Config) { c.PayoutDelayDays = 0 })
	task := h.qualifiedTask(t, "alice")

	h.sched.Start(context.Background())
	h.sched.Start(context.Background())

	require.Eventually(t, func() bool {
		got, err := h.svc.Invites.GetTask(context.Background(), task.TaskID)
		return err == nil && got.Status == model.TaskPendingPayout
	}, time.Second, 5*time.Millisecond)

	h.sched.Stop()
	h.sched.Stop()
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(nil, nil, service.DefaultConfig(), 0, nil, nil)
	assert.Equal(t, defaultInterval, s.interval)
	assert.NotNil(t, s.log)
	assert.WithinDuration(t, time.Now(), s.now(), time.Minute)
}
