package registration

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/jituformyself-glitch/enjoy-bot/bot/retention"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
)

// phoneSentinel stands in for a missing phone in the admin listing.
const phoneSentinel = "—"

// ListRegistrations returns a flat enumerated listing of all stored records
// for the administrator. Any other requester gets ErrPermissionDenied before
// the store is touched. The listing reflects a post-sweep view.
func (e *Engine) ListRegistrations(ctx context.Context, requesterID int64) (string, error) {
	if e.opts.AdminID == 0 || requesterID != e.opts.AdminID {
		logger.Warn(ctx, "service.registration", "listing.denied",
			slog.Int64("requester_id", requesterID),
		)
		return "", ErrPermissionDenied
	}

	now := e.opts.Now()
	if _, err := retention.Sweep(ctx, e.store, now.Add(-e.opts.Retention)); err != nil {
		return "", fmt.Errorf("registration: pre-listing sweep: %w", err)
	}

	records, err := e.store.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("registration: list records: %w", err)
	}
	if len(records) == 0 {
		return "No registrations yet.", nil
	}

	var b strings.Builder
	for i, rec := range records {
		phone := rec.Phone
		if phone == "" {
			phone = phoneSentinel
		}
		fmt.Fprintf(&b, "%d. %s — %s — %s\n",
			i+1, rec.Name, phone, rec.CreatedAt.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
