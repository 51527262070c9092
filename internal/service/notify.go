package service

import (
	"context"
	"fmt"
	"strconv"

	"invite_mall/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultNotifyBuffer = 256

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier tells inviters about their task over the bot chat. Events
// are queued and delivered by Run; a full queue drops the event.
type TelegramNotifier struct {
	bot   messageSender
	queue chan TaskEvent
}

func NewTelegramNotifier(botToken string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newTelegramNotifier(bot, defaultNotifyBuffer), nil
}

func newTelegramNotifier(bot messageSender, buffer int) *TelegramNotifier {
	return &TelegramNotifier{
		bot:   bot,
		queue: make(chan TaskEvent, buffer),
	}
}

func (n *TelegramNotifier) NotifyTask(ctx context.Context, ev TaskEvent) {
	select {
	case n.queue <- ev:
	default:
		logger.Logger().Warn("telegram notification dropped",
			zap.String("task_id", ev.TaskID),
			zap.String("event", string(ev.Type)))
	}
}

func (n *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case ev := <-n.queue:
			if err := n.deliver(ev); err != nil {
				logger.Logger().Error("Failed to send task notification",
					zap.String("task_id", ev.TaskID),
					zap.String("user_id", ev.UserID),
					zap.Error(err))
			}

		case <-ctx.Done():
			return
		}
	}
}

func (n *TelegramNotifier) deliver(ev TaskEvent) error {
	chatID, err := strconv.ParseInt(ev.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("user %q has no telegram chat: %w", ev.UserID, err)
	}
	text := taskEventText(ev)
	if text == "" {
		return nil
	}
	_, err = n.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func taskEventText(ev TaskEvent) string {
	switch ev.Type {
	case TaskEventQualified:
		return fmt.Sprintf("Task %s reached its helper goal. Your free order is being scheduled for payout.", ev.TaskNo)
	case TaskEventPendingPayout:
		return fmt.Sprintf("Task %s is now waiting for payout review.", ev.TaskNo)
	case TaskEventPaidOut:
		return fmt.Sprintf("Task %s was paid out. Enjoy your free order!", ev.TaskNo)
	case TaskEventRevoked:
		return fmt.Sprintf("Task %s was revoked.", ev.TaskNo)
	default:
		return ""
	}
}
