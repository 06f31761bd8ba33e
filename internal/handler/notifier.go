package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"otpbot/internal/domain"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Sender is the part of *tele.Bot used to push messages
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier delivers tracker events with a few retries.
// Delivery is best effort; the last error is returned to the tracker.
type TelegramNotifier struct {
	sender   Sender
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewTelegramNotifier creates a new notifier
func NewTelegramNotifier(sender Sender, attempts int, delay time.Duration, logger *zap.Logger) *TelegramNotifier {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = time.Nanosecond
	}
	return &TelegramNotifier{
		sender:   sender,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
	}
}

// NotifyOrder sends the message for an order event to the owning chat
func (n *TelegramNotifier) NotifyOrder(ctx context.Context, event domain.OrderEvent) error {
	msg := eventMessage(event)
	to := tele.ChatID(msg.ChatID)
	opts := sendOptions(msg.Buttons)

	backoff := retry.WithMaxRetries(uint64(n.attempts-1), retry.NewConstant(n.delay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if _, err := n.sender.Send(to, msg.Text, opts...); err != nil {
			if permanentSendError(err) {
				return err
			}
			n.logger.Warn("Failed to send notification",
				zap.String("order_id", event.Order.ID),
				zap.Int64("chat_id", msg.ChatID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("notify chat %d about order %s: %w", msg.ChatID, event.Order.ID, err)
	}
	return nil
}

// permanentSendError reports errors that will not go away on retry
func permanentSendError(err error) bool {
	return errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrChatNotFound) ||
		errors.Is(err, tele.ErrUserIsDeactivated)
}
