package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"invite_mall/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_SerializesPerKey(t *testing.T) {
	l := NewLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("task:1")
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks)
}

func TestLocker_IndependentKeys(t *testing.T) {
	l := NewLocker()

	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}

	unlockA()
	unlockA()
	assert.Empty(t, l.locks)
}

func TestRepository_TaskUniqueness(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.CreateTask(ctx, &model.Task{TaskID: "t1", TaskNo: "TA", OrderID: "o1"}))

	err := r.CreateTask(ctx, &model.Task{TaskID: "t2", TaskNo: "TB", OrderID: "o1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = r.CreateTask(ctx, &model.Task{TaskID: "t3", TaskNo: "TA", OrderID: "o3"})
	assert.ErrorIs(t, err, ErrTaskNoTaken)

	assert.True(t, r.TaskExistsForOrder(ctx, "o1"))
	assert.False(t, r.TaskExistsForOrder(ctx, "o3"))

	got, err := r.GetTaskByNo(ctx, "TA")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TaskID)

	_, err = r.GetTask(ctx, "t2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ReadsReturnCopies(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.CreateTask(ctx, &model.Task{
		TaskID:        "t1",
		TaskNo:        "TA",
		OrderID:       "o1",
		Status:        model.TaskQualified,
		Qualification: &model.Qualification{QualifiedAt: time.Unix(0, 0)},
		RiskMarks:     []model.RiskMark{{Rule: "same_ip"}},
	}))

	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	got.Status = model.TaskRevoked
	got.Qualification.QualifiedAt = time.Unix(100, 0)
	got.RiskMarks[0].Rule = "changed"

	again, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskQualified, again.Status)
	assert.Equal(t, time.Unix(0, 0), again.Qualification.QualifiedAt)
	assert.Equal(t, "same_ip", again.RiskMarks[0].Rule)

	require.NoError(t, r.InsertLedgerEntry(ctx, &model.PayoutLedgerEntry{TaskID: "t1", RiskReasons: []string{"same_ip"}}))
	entry, err := r.GetLedgerEntry(ctx, "t1")
	require.NoError(t, err)
	entry.RiskReasons[0] = "changed"
	entry, err = r.GetLedgerEntry(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"same_ip"}, entry.RiskReasons)
}

func TestRepository_Helps(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.CreateHelp(ctx, &model.Help{HelpID: "h1", TaskID: "t1", HelperUserID: "bob", HelperStatus: model.HelperBound}, false))
	assert.ErrorIs(t, r.CreateHelp(ctx, &model.Help{HelpID: "h2", TaskID: "t1", HelperUserID: "bob"}, false), ErrAlreadyExists)
	require.NoError(t, r.CreateHelp(ctx, &model.Help{HelpID: "h3", TaskID: "t2", HelperUserID: "bob", HelperStatus: model.HelperPendingReview}, false))

	h, err := r.AttachHelpOrder(ctx, "h1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", h.OrderID)

	_, err = r.AttachHelpOrder(ctx, "h1", "o2")
	assert.ErrorIs(t, err, ErrHelpOrderSet)
	_, err = r.AttachHelpOrder(ctx, "h3", "o1")
	assert.ErrorIs(t, err, ErrOrderBound)
	_, err = r.AttachHelpOrder(ctx, "missing", "o9")
	assert.ErrorIs(t, err, ErrNotFound)

	byOrder, err := r.GetHelpByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "h1", byOrder.HelpID)

	// UpdateHelp leaves the order reference alone
	byOrder.OrderID = ""
	byOrder.Status = model.HelpValid
	require.NoError(t, r.UpdateHelp(ctx, byOrder))
	found, err := r.FindHelp(ctx, "t1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "o1", found.OrderID)
	assert.Equal(t, model.HelpValid, found.Status)

	ids, err := r.ListTaskIDsByHelperStatus(ctx, model.HelperPendingReview)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids)
}

func TestRepository_PayoutQueueIsWriteOnce(t *testing.T) {
	r := New()
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, r.EnqueuePayout(ctx, model.PayoutQueueEntry{TaskID: "t1", EnteredAt: at}))
	assert.False(t, r.EnqueuePayout(ctx, model.PayoutQueueEntry{TaskID: "t1", EnteredAt: at.Add(time.Hour)}))

	e, err := r.GetPayoutQueueEntry(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, at, e.EnteredAt)

	_, err = r.GetPayoutQueueEntry(ctx, "t2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListOrdersFilters(t *testing.T) {
	r := New()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.CreateOrder(ctx, &model.Order{OrderID: "b", UserID: "u1", Status: model.OrderCreated, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, r.CreateOrder(ctx, &model.Order{OrderID: "a", UserID: "u1", Status: model.OrderShipped, CreatedAt: base}))
	require.NoError(t, r.CreateOrder(ctx, &model.Order{OrderID: "c", UserID: "u2", Status: model.OrderCreated, CreatedAt: base}))
	assert.ErrorIs(t, r.CreateOrder(ctx, &model.Order{OrderID: "a"}), ErrAlreadyExists)

	mine, err := r.ListOrders(ctx, OrderFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a", mine[0].OrderID)
	assert.Equal(t, "b", mine[1].OrderID)

	created, err := r.ListOrders(ctx, OrderFilter{Status: model.OrderCreated})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "c", created[0].OrderID)

	assert.ErrorIs(t, r.UpdateOrder(ctx, &model.Order{OrderID: "zzz"}), ErrNotFound)
}
