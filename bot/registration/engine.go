// Package registration implements the three-state signup flow: an unseen
// user sends their name, a pending user supplies a phone number, a complete
// user receives the group link. Records only gain fields, never lose or
// change them, and replaying an event leaves the store exactly as if the
// event had been applied once.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/jituformyself-glitch/enjoy-bot/bot/retention"
	"github.com/jituformyself-glitch/enjoy-bot/bot/storage"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
)

// Kind discriminates inbound events.
type Kind string

const (
	// KindText is a plain text message.
	KindText Kind = "text"
	// KindContact is a structured contact share.
	KindContact Kind = "contact"
)

// State is the registration progress derived from the stored record.
type State string

const (
	StateUnseen   State = "unseen"
	StatePending  State = "pending"
	StateComplete State = "complete"
)

var (
	// ErrInvalidEvent marks an inbound event without a user id. No record
	// is touched.
	ErrInvalidEvent = errors.New("registration: event missing user id")
	// ErrPermissionDenied is returned when a non-administrator requests the
	// registration listing.
	ErrPermissionDenied = errors.New("registration: permission denied")
)

// Event is one parsed inbound message.
type Event struct {
	UserID int64
	Kind   Kind
	Text   string
	Phone  string
}

// Reply is the outbound message produced for an event.
type Reply struct {
	UserID int64
	Body   string
	// SuggestContactShare asks the transport to offer the contact-share
	// keyboard alongside the message.
	SuggestContactShare bool
}

// Options configure the engine. Zero Retention falls back to 30 days and a
// nil Now falls back to time.Now.
type Options struct {
	GroupLink        string
	AdminID          int64
	Retention        time.Duration
	AcceptTypedPhone bool
	Now              func() time.Time
}

const defaultRetention = 30 * 24 * time.Hour

const lockStripes = 64

// Engine drives the registration state machine over an injected record
// store. It keeps no state of its own beyond the per-user critical sections.
type Engine struct {
	store storage.Store
	opts  Options
	locks [lockStripes]sync.Mutex
}

// New constructs an engine over the given store.
func New(store storage.Store, opts Options) *Engine {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{store: store, opts: opts}
}

// StateFor derives the registration state from a stored record.
func StateFor(rec storage.Record, found bool) State {
	switch {
	case !found:
		return StateUnseen
	case rec.Phone == "":
		return StatePending
	default:
		return StateComplete
	}
}

// HandleEvent applies one inbound event and returns the reply to deliver.
// The retention sweep runs before the triggering record is read, so an event
// from a user whose record aged out sees a fresh, unseen view. The sweep
// holds only this user's stripe lock and may delete another user's aged
// record while that user is inside their own critical section; that section
// opened with its own sweep over an equal-or-later cutoff and store
// operations are atomic per record, so the concurrent user still observes a
// post-sweep view. Store failures propagate to the caller; the engine never
// retries.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) (Reply, error) {
	if ev.UserID == 0 {
		return Reply{}, ErrInvalidEvent
	}

	mu := e.lock(ev.UserID)
	mu.Lock()
	defer mu.Unlock()

	now := e.opts.Now()
	if _, err := retention.Sweep(ctx, e.store, now.Add(-e.opts.Retention)); err != nil {
		return Reply{}, fmt.Errorf("registration: pre-event sweep: %w", err)
	}

	rec, err := e.store.Get(ctx, ev.UserID)
	found := true
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return Reply{}, fmt.Errorf("registration: load record: %w", err)
		}
		found = false
	}

	state := StateFor(rec, found)
	switch state {
	case StateUnseen:
		return e.handleUnseen(ctx, ev, now)
	case StatePending:
		return e.handlePending(ctx, ev, rec)
	default:
		return e.reply(ctx, ev.UserID, state, msgAlreadyRegistered+e.opts.GroupLink, false), nil
	}
}

func (e *Engine) handleUnseen(ctx context.Context, ev Event, now time.Time) (Reply, error) {
	name := strings.TrimSpace(ev.Text)
	if ev.Kind != KindText || name == "" {
		// A contact share before a name makes no record; ask for the name.
		return e.reply(ctx, ev.UserID, StateUnseen, msgAskName, false), nil
	}

	rec := storage.Record{
		UserID:    ev.UserID,
		Name:      name,
		CreatedAt: now,
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return Reply{}, fmt.Errorf("registration: create record: %w", err)
	}
	return e.reply(ctx, ev.UserID, StatePending, msgAskPhone, true), nil
}

func (e *Engine) handlePending(ctx context.Context, ev Event, rec storage.Record) (Reply, error) {
	var (
		phone string
		ok    bool
	)
	switch ev.Kind {
	case KindContact:
		// Structured payloads are trusted; only normalization applies.
		phone = NormalizePhone(ev.Phone)
		ok = phone != ""
	case KindText:
		if e.opts.AcceptTypedPhone {
			phone, ok = TypedPhone(ev.Text)
		}
	}
	if !ok {
		return e.reply(ctx, ev.UserID, StatePending, msgInvalidPhone, true), nil
	}

	rec.Phone = phone
	if err := e.store.Put(ctx, rec); err != nil {
		return Reply{}, fmt.Errorf("registration: save phone: %w", err)
	}
	return e.reply(ctx, ev.UserID, StateComplete, msgComplete+e.opts.GroupLink, false), nil
}

func (e *Engine) reply(ctx context.Context, userID int64, state State, body string, suggestContact bool) Reply {
	// user_id reaches the line through the context metadata when the event
	// came in over the transport.
	logger.Debug(ctx, "service.registration", "event.handled",
		slog.String("status", "ok"),
		slog.String("state", string(state)),
	)
	return Reply{UserID: userID, Body: body, SuggestContactShare: suggestContact}
}

// Greeting is the /start response, addressed by first name.
func Greeting(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(msgGreeting, name)
}

func (e *Engine) lock(userID int64) *sync.Mutex {
	return &e.locks[uint64(userID)%lockStripes]
}

const (
	msgGreeting = "Hello %s! 👋\n\nTo join the group, first send me your full name."
	msgAskName  = "Please send your full name first."
	msgAskPhone = "Now share your phone number."
	msgInvalidPhone = "That does not look like a phone number. " +
		"Send 10 to 15 digits, or use the button to share your contact."
	msgComplete          = "✅ Thank you! Here is the group link:\n"
	msgAlreadyRegistered = "You are already registered. Group link: "
)
