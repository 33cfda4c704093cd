// Package handlers maps Telegram updates onto registration engine events and
// delivers the produced replies.
package handlers

import (
	"errors"
	"strings"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/jituformyself-glitch/enjoy-bot/bot/registration"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
	tg "github.com/jituformyself-glitch/enjoy-bot/core/telegram"
	tghelpers "github.com/jituformyself-glitch/enjoy-bot/core/telegram/helpers"
	"github.com/jituformyself-glitch/enjoy-bot/core/telegram/keyboard"
	"github.com/jituformyself-glitch/enjoy-bot/core/telegram/middleware"
)

const (
	contactButtonLabel = "📱 Share Phone Number"

	msgAdminOnly   = "This command is available to the administrator only."
	msgTryAgain    = "Something went wrong, please try again in a moment."
	msgRateLimited = "Too fast, give me a second."
)

// Handler wires the registration engine to the Telegram surface.
type Handler struct {
	engine *registration.Engine
}

// New constructs the handler set.
func New(engine *registration.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterCommands declares the command surface on the registry.
func (h *Handler) RegisterCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", tg.Command{
		Handler:     h.onStart,
		Description: "Begin registration",
	})
	reg.RegisterCommand("/list", tg.Command{
		Handler:     h.onList,
		Description: "List registrations (admin)",
		AdminOnly:   true,
		Hidden:      true,
		Aliases:     []string{"list_registrations"},
	})
	reg.SetTextFallback(h.onText)
}

// Routes builds the bot routes. Admin-only commands are gated by the access
// middleware; the engine re-checks permission as well, so the store is never
// read for a non-admin caller.
func (h *Handler) Routes(reg *tg.Registry, adminID int64) []tg.Route {
	adminOpts := middleware.AdminOptions{
		AdminID: adminID,
		OnReject: func(c tele.Context) error {
			return tghelpers.SendText(c, msgAdminOnly)
		},
	}

	routes := make([]tg.Route, 0, len(reg.Commands())+2)
	for cmd, def := range reg.Commands() {
		handler := def.Handler
		if def.AdminOnly {
			handler = middleware.AdminOnlyMiddleware(adminOpts)(handler)
		}
		for _, endpoint := range reg.Endpoints(cmd) {
			routes = append(routes, tg.Route{Endpoint: endpoint, Handler: handler})
		}
	}

	onText := reg.TextFallback()
	if onText == nil {
		onText = h.onText
	}
	routes = append(routes,
		tg.Route{Endpoint: tele.OnText, Handler: onText},
		tg.Route{Endpoint: tele.OnContact, Handler: h.onContact},
	)
	return routes
}

// OnRateLimited replies when the rate limiter drops an update.
func (h *Handler) OnRateLimited(c tele.Context) error {
	return tghelpers.SendText(c, msgRateLimited)
}

func (h *Handler) onStart(c tele.Context) error {
	tghelpers.WithHandler(c, "start")
	var firstName string
	if sender := c.Sender(); sender != nil {
		firstName = sender.FirstName
	}
	return tghelpers.SendText(c, registration.Greeting(firstName))
}

func (h *Handler) onText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	// Unknown slash commands are not names or phones.
	if strings.HasPrefix(c.Text(), "/") {
		return nil
	}
	return h.handle(c, "text", registration.Event{
		UserID: sender.ID,
		Kind:   registration.KindText,
		Text:   c.Text(),
	})
}

func (h *Handler) onContact(c tele.Context) error {
	sender := c.Sender()
	msg := c.Message()
	if sender == nil || msg == nil || msg.Contact == nil {
		return nil
	}
	return h.handle(c, "contact", registration.Event{
		UserID: sender.ID,
		Kind:   registration.KindContact,
		Phone:  msg.Contact.PhoneNumber,
	})
}

// handle runs one event through the engine. The engine performs no retries;
// this wrapper decides what a store failure means for the conversation (an
// apology, the update itself is dropped).
func (h *Handler) handle(c tele.Context, name string, ev registration.Event) error {
	ctx := tghelpers.WithHandler(c, name)

	reply, err := h.engine.HandleEvent(ctx, ev)
	if err != nil {
		if errors.Is(err, registration.ErrInvalidEvent) {
			logger.Warn(ctx, "tg", "event.invalid", slog.String("handler", name))
			return nil
		}
		logger.Error(ctx, "tg", "event.failed",
			slog.String("handler", name),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgTryAgain)
	}

	markup := keyboard.RemoveKeyboard()
	if reply.SuggestContactShare {
		markup = keyboard.ContactRequest(contactButtonLabel)
	}
	return tghelpers.SendWithKeyboard(c, reply.Body, markup)
}

func (h *Handler) onList(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "list")
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	listing, err := h.engine.ListRegistrations(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, registration.ErrPermissionDenied) {
			return tghelpers.SendText(c, msgAdminOnly)
		}
		logger.Error(ctx, "tg", "listing.failed", slog.String("err", err.Error()))
		return tghelpers.SendText(c, msgTryAgain)
	}
	return tghelpers.SendText(c, listing)
}
