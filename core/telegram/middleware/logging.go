package middleware

import (
	"time"

	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
	tghelpers "github.com/jituformyself-glitch/enjoy-bot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware logs a receipt line and a completion line per update and
// seeds the request-scoped context (rid, update/user/chat ids) for
// downstream layers. The ids themselves are appended by logger.LogEvent from
// the context.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()

		chatID, userID := int64(0), int64(0)
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		start := time.Now()
		c.Set("rid", rid)
		c.Set("update_start", start)

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		var attrs []slog.Attr
		if user != nil && user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		switch {
		case upd.Message != nil && upd.Message.Contact != nil:
			attrs = append(attrs, slog.String("kind", "contact"))
		case upd.Message != nil:
			attrs = append(attrs, slog.String("kind", "text"))
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
		}
		logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)

		err := next(c)

		logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.handled",
			slog.String("status", logger.Status(err)),
			slog.Duration("duration", logger.Took(start)),
		)
		return err
	}
}
