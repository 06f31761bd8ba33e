package handler

import (
	"strings"

	"otpbot/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleStart handles /start command
func (h *Handler) handleStart(c tele.Context) error {
	h.logger.Info("User started bot",
		zap.Int64("user_id", c.Sender().ID),
		zap.String("username", c.Sender().Username),
	)
	return h.dispatch(c, intentFor(c, domain.Intent{Kind: domain.IntentMenu}))
}

// handleBalance handles /saldo command
func (h *Handler) handleBalance(c tele.Context) error {
	return h.dispatch(c, intentFor(c, domain.Intent{Kind: domain.IntentBalance}))
}

// handleHistory handles /riwayat command
func (h *Handler) handleHistory(c tele.Context) error {
	return h.dispatch(c, intentFor(c, domain.Intent{Kind: domain.IntentHistory}))
}

// handleText handles plain text; it only matters while searching
func (h *Handler) handleText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())

	// Unknown commands are ignored
	if strings.HasPrefix(text, "/") {
		return nil
	}

	return h.dispatch(c, intentFor(c, domain.Intent{Kind: domain.IntentText, Text: text}))
}
