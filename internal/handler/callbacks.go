package handler

import (
	"strings"
	"unicode"

	"otpbot/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// cleanCallbackData removes all non-printable characters from callback data
func cleanCallbackData(data string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(data))
}

// callbackToken extracts the action token of a button press.
// Buttons without a registered handler keep "\f<unique>" in Data.
func callbackToken(cb *tele.Callback) string {
	if cb.Unique != "" {
		return cleanCallbackData(cb.Unique)
	}
	data := cleanCallbackData(cb.Data)
	if i := strings.IndexByte(data, '|'); i >= 0 {
		data = data[:i]
	}
	return data
}

// handleEditError handles errors from c.Edit() - if message is not modified, just acknowledge callback
// Otherwise, acknowledge callback and return error so caller can send new message
func (h *Handler) handleEditError(err error, c tele.Context, userID int64) error {
	if err == nil {
		return nil
	}

	// If message is not modified, it was already edited by another callback
	if strings.Contains(err.Error(), "message is not modified") {
		h.logger.Debug("Message already modified by another callback, acknowledging",
			zap.Int64("user_id", userID),
			zap.String("callback_id", c.Callback().ID),
		)
		_ = c.Respond()
		return nil
	}

	h.logger.Warn("Failed to edit message, sending new",
		zap.Error(err),
		zap.Int64("user_id", userID),
		zap.String("callback_id", c.Callback().ID),
	)
	// Always acknowledge callback before sending new message
	if ackErr := c.Respond(); ackErr != nil {
		h.logger.Warn("Failed to acknowledge callback", zap.Error(ackErr))
	}
	return err
}

// handleCallback handles ALL callback queries
func (h *Handler) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		h.logger.Warn("handleCallback: callback is nil")
		return nil
	}

	token := callbackToken(callback)
	h.logger.Debug("handleCallback: Processing callback",
		zap.String("token", token),
		zap.String("data_raw", callback.Data),
		zap.String("id", callback.ID),
		zap.Int64("user_id", c.Sender().ID),
	)

	in, err := domain.ParseAction(token)
	if err != nil {
		// If it's not handled, acknowledge it anyway
		h.logger.Warn("Unhandled callback", zap.String("token", token), zap.Error(err))
		return c.Respond()
	}

	return h.dispatch(c, intentFor(c, in))
}
