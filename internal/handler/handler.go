package handler

import (
	"context"
	"time"

	"otpbot/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// dispatchTimeout bounds one intent, which may include a full provider retry cycle
const dispatchTimeout = 90 * time.Second

// Handler adapts telebot updates to dispatcher intents
type Handler struct {
	ctx        context.Context
	bot        *tele.Bot
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(
	ctx context.Context,
	bot *tele.Bot,
	dispatcher *Dispatcher,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ctx:        ctx,
		bot:        bot,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers registers all bot handlers
func (h *Handler) RegisterHandlers() {
	// Commands
	h.bot.Handle("/start", h.handleStart)
	h.bot.Handle("/saldo", h.handleBalance)
	h.bot.Handle("/riwayat", h.handleHistory)

	// Text messages
	h.bot.Handle(tele.OnText, h.handleText)

	// Every inline button carries an action token and lands here
	h.bot.Handle(tele.OnCallback, h.handleCallback)
}

// dispatch runs an intent and renders the reply
func (h *Handler) dispatch(c tele.Context, in domain.Intent) error {
	ctx, cancel := context.WithTimeout(h.ctx, dispatchTimeout)
	defer cancel()

	reply := h.dispatcher.Dispatch(ctx, in)
	if err := h.render(c, reply); err != nil {
		// rendering is best effort
		h.logger.Warn("Failed to render reply",
			zap.Int64("user_id", in.UserID),
			zap.String("intent", in.Kind.String()),
			zap.Error(err),
		)
	}
	return nil
}

// intentFor fills the sender fields of an intent
func intentFor(c tele.Context, in domain.Intent) domain.Intent {
	in.UserID = c.Sender().ID
	in.ChatID = in.UserID
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	in.FromCallback = c.Callback() != nil
	return in
}

func (h *Handler) render(c tele.Context, reply Reply) error {
	userID := c.Sender().ID

	if c.Callback() == nil {
		if !reply.HasMessage() {
			if reply.Notice == "" {
				return nil
			}
			return c.Send(reply.Notice)
		}
		return c.Send(reply.Message.Text, sendOptions(reply.Message.Buttons)...)
	}

	if !reply.HasMessage() {
		return c.Respond(&tele.CallbackResponse{Text: reply.Notice, ShowAlert: reply.Alert})
	}

	opts := sendOptions(reply.Message.Buttons)
	if reply.Edit {
		if err := c.Edit(reply.Message.Text, opts...); err != nil {
			if handleErr := h.handleEditError(err, c, userID); handleErr == nil {
				return nil // Message was already modified, just acknowledged
			}
			return c.Send(reply.Message.Text, opts...)
		}
		return c.Respond(&tele.CallbackResponse{Text: reply.Notice, ShowAlert: reply.Alert})
	}

	if err := c.Respond(&tele.CallbackResponse{Text: reply.Notice, ShowAlert: reply.Alert}); err != nil {
		h.logger.Warn("Failed to acknowledge callback", zap.Error(err))
	}
	return c.Send(reply.Message.Text, opts...)
}

// sendOptions returns HTML parse mode plus the inline keyboard, if any
func sendOptions(buttons [][]domain.Button) []interface{} {
	opts := []interface{}{tele.ModeHTML, tele.NoPreview}
	if markup := toMarkup(buttons); markup != nil {
		opts = append(opts, markup)
	}
	return opts
}

// toMarkup converts button rows into an inline keyboard.
// Action tokens travel as the button's unique field.
func toMarkup(buttons [][]domain.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}

	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))
	for _, row := range buttons {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, markup.Data(b.Label, b.Action))
		}
		rows = append(rows, markup.Row(btns...))
	}
	markup.Inline(rows...)
	return markup
}
