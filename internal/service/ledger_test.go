package service

import (
	"context"
	"testing"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskOperatorKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"a", "a***"},
		{"abcdef", "ab***"},
		{"abcdefg", "abcd***fg"},
		{"super-secret-admin-key", "supe***ey"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskOperatorKey(tt.key), "key %q", tt.key)
	}
}

func TestLedgerService_UpsertKeepsDecision(t *testing.T) {
	clock := newFakeClock()
	repo := repository.New()
	s := NewLedgerService(repo, nil, clock.Now)
	ctx := context.Background()

	task := &model.Task{
		TaskID:  "task-1",
		TaskNo:  "TABC",
		UserID:  "alice",
		OrderID: "order-1",
		Status:  model.TaskQualified,
		Qualification: &model.Qualification{
			QualifiedAt: baseTime,
			PayoutAt:    baseTime.Add(3 * day),
		},
	}
	require.NoError(t, repo.CreateHelp(ctx, &model.Help{HelpID: "h1", TaskID: "task-1", HelperUserID: "bob", OrderID: "order-b"}, false))
	require.NoError(t, repo.CreateHelp(ctx, &model.Help{HelpID: "h2", TaskID: "task-1", HelperUserID: "carol"}, false))

	entry, err := s.UpsertFromTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutPending, entry.PayoutStatus)
	assert.Equal(t, model.RiskLow, entry.RiskLevel)
	assert.Equal(t, []string{"bob", "carol"}, entry.HelperUserIDs)
	assert.Equal(t, []string{"order-b"}, entry.HelperOrderIDs)
	assert.Equal(t, baseTime.Add(3*day), *entry.PayoutAt)

	note := "checked receipts"
	entry, err = s.UpdateStatus(ctx, task, model.PayoutApproved, LedgerUpdate{Note: &note, OperatorKey: "admin-key-42"})
	require.NoError(t, err)
	assert.Equal(t, "admi***42", entry.Operator)

	clock.Advance(time.Hour)
	task.RiskMarks = []model.RiskMark{{Rule: "same_device", At: clock.Now()}}
	task.Qualification.PayoutAt = baseTime.Add(6 * day)
	entry, err = s.UpsertFromTask(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, model.PayoutApproved, entry.PayoutStatus)
	require.NotNil(t, entry.Note)
	assert.Equal(t, note, *entry.Note)
	assert.Equal(t, "admi***42", entry.Operator)
	assert.Equal(t, model.RiskMedium, entry.RiskLevel)
	assert.Equal(t, []string{"same_device"}, entry.RiskReasons)
	assert.Equal(t, baseTime.Add(6*day), *entry.PayoutAt)
	assert.Equal(t, clock.Now(), entry.UpdatedAt)
	assert.Equal(t, baseTime, entry.CreatedAt)

	stored, ok := s.Summary(ctx, "task-1")
	require.True(t, ok)
	assert.Equal(t, entry, stored)

	_, ok = s.Summary(ctx, "missing")
	assert.False(t, ok)
}
