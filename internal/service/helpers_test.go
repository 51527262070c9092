package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []TaskEvent
}

func (n *recordingNotifier) NotifyTask(ctx context.Context, ev TaskEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Types() []TaskEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]TaskEventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	svc      *Service
	repo     *repository.Repository
	clock    *fakeClock
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...Option) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		repo:     repository.New(),
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
	}
	opts = append([]Option{WithClock(env.clock.Now), WithNotifier(env.notifier)}, opts...)

	svc, err := NewService(env.repo, cfg, opts...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func (e *testEnv) order(t *testing.T, userID string) *model.Order {
	t.Helper()
	o, err := e.svc.Orders.Create(context.Background(), userID, decimal.NewFromInt(100), CreateOrderOptions{})
	require.NoError(t, err)
	return o
}

// startTask creates an order for the inviter and starts a task on it.
func (e *testEnv) startTask(t *testing.T, inviter string) *model.Task {
	t.Helper()
	task, err := e.svc.Invites.StartTask(context.Background(), inviter, e.order(t, inviter).OrderID)
	require.NoError(t, err)
	return task
}

// helperOrder binds the helper to the task and attaches a fresh order of
// theirs. The order is left CREATED.
func (e *testEnv) helperOrder(t *testing.T, task *model.Task, helper string, opts BindOptions) *model.Order {
	t.Helper()
	ctx := context.Background()

	_, err := e.svc.Invites.BindHelper(ctx, task.TaskNo, helper, opts)
	require.NoError(t, err)

	o := e.order(t, helper)
	_, err = e.svc.Invites.BindOrderToHelp(ctx, task.TaskNo, helper, o.OrderID)
	require.NoError(t, err)
	return o
}

func (e *testEnv) deliver(t *testing.T, orderID string) *model.Order {
	t.Helper()
	ctx := context.Background()

	_, err := e.svc.Orders.Ship(ctx, orderID, "SF", "SF123")
	require.NoError(t, err)
	o, err := e.svc.Orders.Receive(ctx, orderID, model.ReceiveManual)
	require.NoError(t, err)
	return o
}

func (e *testEnv) task(t *testing.T, taskID string) *model.Task {
	t.Helper()
	task, err := e.svc.Invites.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	return task
}

// qualify runs a task with two helpers through to QUALIFIED.
func (e *testEnv) qualify(t *testing.T, inviter string) *model.Task {
	t.Helper()
	task := e.startTask(t, inviter)
	ob := e.helperOrder(t, task, inviter+"-helper-1", BindOptions{})
	oc := e.helperOrder(t, task, inviter+"-helper-2", BindOptions{})
	e.deliver(t, ob.OrderID)
	e.deliver(t, oc.OrderID)

	task = e.task(t, task.TaskID)
	require.Equal(t, model.TaskQualified, task.Status)
	return task
}
