package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"invite_mall/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestTelegramNotifier_DeliversToInviterChat(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.NotifyTask(ctx, TaskEvent{Type: TaskEventQualified, TaskNo: "TABC1234", UserID: "42", Status: model.TaskQualified})
	// not a telegram id, logged and skipped
	n.NotifyTask(ctx, TaskEvent{Type: TaskEventRevoked, TaskNo: "TXYZ", UserID: "alice"})
	n.NotifyTask(ctx, TaskEvent{Type: TaskEventPaidOut, TaskNo: "TABC1234", UserID: "42"})

	require.Eventually(t, func() bool { return len(sender.messages()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	msgs := sender.messages()
	assert.Equal(t, int64(42), msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "TABC1234")
	assert.Contains(t, msgs[1].Text, "paid out")
}

func TestTelegramNotifier_DropsWhenQueueFull(t *testing.T) {
	n := newTelegramNotifier(&fakeSender{}, 1)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		n.NotifyTask(ctx, TaskEvent{Type: TaskEventQualified, UserID: "1"})
		n.NotifyTask(ctx, TaskEvent{Type: TaskEventPaidOut, UserID: "1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyTask blocked on a full queue")
	}
	assert.Len(t, n.queue, 1)
}

func TestTelegramNotifier_DeliverErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("chat not found")}
	n := newTelegramNotifier(sender, 1)

	err := n.deliver(TaskEvent{Type: TaskEventQualified, UserID: "7"})
	assert.EqualError(t, err, "chat not found")

	assert.NoError(t, n.deliver(TaskEvent{Type: "task.unknown", UserID: "7"}))
	assert.Len(t, sender.messages(), 1)
}
