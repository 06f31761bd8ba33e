package middleware

import (
	"otpbot/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const rejectText = "❌ Maaf, Anda tidak diizinkan menggunakan bot ini."

// AuthMiddleware rejects users outside the allow-list before any handler runs
func AuthMiddleware(authService *service.AuthService, logger *zap.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !authService.IsAuthorized(sender.ID) {
				logger.Warn("Rejected update from unauthorized user",
					zap.Int64("user_id", sender.ID),
					zap.String("username", sender.Username),
				)
				if c.Callback() != nil {
					return c.Respond(&tele.CallbackResponse{Text: rejectText, ShowAlert: true})
				}
				return c.Send(rejectText)
			}

			// User is authorized, continue
			return next(c)
		}
	}
}
