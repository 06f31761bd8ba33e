package middleware

import (
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing
func RecoverMiddleware(logger *zap.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					fields := []zap.Field{zap.Any("panic", r), zap.Stack("stack")}
					if sender := c.Sender(); sender != nil {
						fields = append(fields, zap.Int64("user_id", sender.ID))
					}
					logger.Error("Panic recovered in handler", fields...)
					err = nil
				}
			}()
			return next(c)
		}
	}
}
