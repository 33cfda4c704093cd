package registration

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jituformyself-glitch/enjoy-bot/bot/storage"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
)

func init() {
	logger.Configure(&bytes.Buffer{}, "error", "json")
}

// memStore is an in-memory storage.Store for engine tests.
type memStore struct {
	mu   sync.Mutex
	recs map[int64]storage.Record

	getErr    error
	putErr    error
	listErr   error
	listCalls int
	getCalls  int
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[int64]storage.Record)}
}

func (m *memStore) Get(ctx context.Context, userID int64) (storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return storage.Record{}, m.getErr
	}
	rec, ok := m.recs[userID]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Put(ctx context.Context, rec storage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.recs[rec.UserID] = rec
	return nil
}

func (m *memStore) ListAll(ctx context.Context) ([]storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]storage.Record, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, userID)
	return nil
}

func (m *memStore) snapshot(userID int64) (storage.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[userID]
	return rec, ok
}

const testGroupLink = "https://t.me/+testgroup"

func newTestEngine(store storage.Store, now time.Time, mutate func(*Options)) *Engine {
	opts := Options{
		GroupLink:        testGroupLink,
		AdminID:          42,
		Retention:        30 * 24 * time.Hour,
		AcceptTypedPhone: true,
		Now:              func() time.Time { return now },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(store, opts)
}

func TestFullRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	eng := newTestEngine(store, now, nil)

	// Name first.
	reply, err := eng.HandleEvent(ctx, Event{UserID: 7, Kind: KindText, Text: "Asha Rao"})
	require.NoError(t, err)
	assert.Contains(t, reply.Body, "phone")
	assert.True(t, reply.SuggestContactShare)

	rec, ok := store.snapshot(7)
	require.True(t, ok)
	assert.Equal(t, "Asha Rao", rec.Name)
	assert.Empty(t, rec.Phone)
	assert.Equal(t, now, rec.CreatedAt)

	// Then the phone.
	reply, err = eng.HandleEvent(ctx, Event{UserID: 7, Kind: KindText, Text: "9876543210"})
	require.NoError(t, err)
	assert.Contains(t, reply.Body, testGroupLink)
	assert.False(t, reply.SuggestContactShare)

	rec, _ = store.snapshot(7)
	assert.Equal(t, "9876543210", rec.Phone)
	assert.Equal(t, now, rec.CreatedAt)

	// Any further message repeats the link.
	reply, err = eng.HandleEvent(ctx, Event{UserID: 7, Kind: KindText, Text: "hello"})
	require.NoError(t, err)
	assert.Contains(t, reply.Body, testGroupLink)
}

func TestContactShareCompletesRegistration(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Now()
	eng := newTestEngine(store, now, nil)

	_, err := eng.HandleEvent(ctx, Event{UserID: 3, Kind: KindText, Text: "Jin Park"})
	require.NoError(t, err)

	reply, err := eng.HandleEvent(ctx, Event{UserID: 3, Kind: KindContact, Phone: "+82 10-1234-5678"})
	require.NoError(t, err)
	assert.Contains(t, reply.Body, testGroupLink)

	rec, _ := store.snapshot(3)
	assert.Equal(t, "821012345678", rec.Phone)
}

func TestContactBeforeNameCreatesNoRecord(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(store, time.Now(), nil)

	reply, err := eng.HandleEvent(ctx, Event{UserID: 9, Kind: KindContact, Phone: "9876543210"})
	require.NoError(t, err)
	assert.Contains(t, reply.Body, "name")

	_, ok := store.snapshot(9)
	assert.False(t, ok, "a contact before a name must not create a record")
}

func TestInvalidTypedPhoneReprompts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(store, time.Now(), nil)

	_, err := eng.HandleEvent(ctx, Event{UserID: 5, Kind: KindText, Text: "Mo Farah"})
	require.NoError(t, err)

	for _, bad := range []string{"12345", "not a phone", "9876543210123456"} {
		reply, err := eng.HandleEvent(ctx, Event{UserID: 5, Kind: KindText, Text: bad})
		require.NoError(t, err)
		assert.True(t, reply.SuggestContactShare, "re-prompt keeps the contact button for %q", bad)
		rec, _ := store.snapshot(5)
		assert.Empty(t, rec.Phone, "record must stay pending after %q", bad)
	}
}

func TestTypedPhoneDisabled(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(store, time.Now(), func(o *Options) { o.AcceptTypedPhone = false })

	_, err := eng.HandleEvent(ctx, Event{UserID: 6, Kind: KindText, Text: "Lena Krause"})
	require.NoError(t, err)

	reply, err := eng.HandleEvent(ctx, Event{UserID: 6, Kind: KindText, Text: "9876543210"})
	require.NoError(t, err)
	assert.NotContains(t, reply.Body, testGroupLink)

	// A contact share still completes.
	reply, err = eng.HandleEvent(ctx, Event{UserID: 6, Kind: KindContact, Phone: "9876543210"})
	require.NoError(t, err)
	assert.Contains(t, reply.Body, testGroupLink)
}

func TestReplayedEventsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	eng := newTestEngine(store, now, nil)

	nameEv := Event{UserID: 11, Kind: KindText, Text: "Asha Rao"}
	phoneEv := Event{UserID: 11, Kind: KindText, Text: "9876543210"}

	_, err := eng.HandleEvent(ctx, nameEv)
	require.NoError(t, err)
	_, err = eng.HandleEvent(ctx, phoneEv)
	require.NoError(t, err)
	want, _ := store.snapshot(11)

	// Replays change nothing.
	_, err = eng.HandleEvent(ctx, phoneEv)
	require.NoError(t, err)
	got, _ := store.snapshot(11)
	assert.Equal(t, want, got)

	_, err = eng.HandleEvent(ctx, nameEv)
	require.NoError(t, err)
	got, _ = store.snapshot(11)
	assert.Equal(t, want, got, "a complete record never regresses")
}

func TestCompleteStateIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(store, time.Now(), nil)

	_, err := eng.HandleEvent(ctx, Event{UserID: 2, Kind: KindText, Text: "First Name"})
	require.NoError(t, err)
	_, err = eng.HandleEvent(ctx, Event{UserID: 2, Kind: KindText, Text: "9876543210"})
	require.NoError(t, err)

	// Another valid phone must not overwrite the stored one.
	_, err = eng.HandleEvent(ctx, Event{UserID: 2, Kind: KindContact, Phone: "1112223334"})
	require.NoError(t, err)
	rec, _ := store.snapshot(2)
	assert.Equal(t, "9876543210", rec.Phone)
	assert.Equal(t, "First Name", rec.Name)
}

func TestRetentionBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	t.Run("aged out record restarts the flow", func(t *testing.T) {
		store := newMemStore()
		store.recs[20] = storage.Record{
			UserID:    20,
			Name:      "Old User",
			Phone:     "9876543210",
			CreatedAt: now.Add(-30*24*time.Hour - time.Second),
		}
		eng := newTestEngine(store, now, nil)

		reply, err := eng.HandleEvent(ctx, Event{UserID: 20, Kind: KindText, Text: "Old User"})
		require.NoError(t, err)
		assert.Contains(t, reply.Body, "phone", "the user is asked for a phone again")

		rec, ok := store.snapshot(20)
		require.True(t, ok)
		assert.Empty(t, rec.Phone, "the record restarted from the name step")
		assert.Equal(t, now, rec.CreatedAt)
	})

	t.Run("record inside the window survives", func(t *testing.T) {
		store := newMemStore()
		created := now.Add(-29*24*time.Hour - 23*time.Hour)
		store.recs[21] = storage.Record{
			UserID:    21,
			Name:      "Fresh User",
			Phone:     "9876543210",
			CreatedAt: created,
		}
		eng := newTestEngine(store, now, nil)

		reply, err := eng.HandleEvent(ctx, Event{UserID: 21, Kind: KindText, Text: "hi"})
		require.NoError(t, err)
		assert.Contains(t, reply.Body, testGroupLink)

		rec, _ := store.snapshot(21)
		assert.Equal(t, created, rec.CreatedAt)
	})
}

func TestInvalidEvent(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store, time.Now(), nil)

	_, err := eng.HandleEvent(context.Background(), Event{UserID: 0, Kind: KindText, Text: "hi"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Zero(t, store.listCalls, "an invalid event must not touch the store")
	assert.Zero(t, store.getCalls)
}

func TestStoreFailurePropagates(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")

	store := newMemStore()
	store.listErr = boom
	eng := newTestEngine(store, time.Now(), nil)
	_, err := eng.HandleEvent(ctx, Event{UserID: 1, Kind: KindText, Text: "A Name Here"})
	assert.ErrorIs(t, err, boom)

	store = newMemStore()
	store.putErr = boom
	eng = newTestEngine(store, time.Now(), nil)
	_, err = eng.HandleEvent(ctx, Event{UserID: 1, Kind: KindText, Text: "A Name Here"})
	assert.ErrorIs(t, err, boom)
	_, ok := store.snapshot(1)
	assert.False(t, ok, "a failed Put leaves no record behind")
}

func TestListRegistrations(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	t.Run("denied before the store is read", func(t *testing.T) {
		store := newMemStore()
		eng := newTestEngine(store, now, nil)

		_, err := eng.ListRegistrations(ctx, 99)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Zero(t, store.listCalls, "non-admin requests must not touch the store")
	})

	t.Run("unset admin id denies everyone", func(t *testing.T) {
		store := newMemStore()
		eng := newTestEngine(store, now, func(o *Options) { o.AdminID = 0 })

		_, err := eng.ListRegistrations(ctx, 0)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("empty store", func(t *testing.T) {
		eng := newTestEngine(newMemStore(), now, nil)
		out, err := eng.ListRegistrations(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "No registrations yet.", out)
	})

	t.Run("ordered listing with pending sentinel", func(t *testing.T) {
		store := newMemStore()
		store.recs[1] = storage.Record{UserID: 1, Name: "Beta", CreatedAt: now.Add(-time.Hour)}
		store.recs[2] = storage.Record{UserID: 2, Name: "Alpha", Phone: "9876543210", CreatedAt: now.Add(-2 * time.Hour)}
		eng := newTestEngine(store, now, nil)

		out, err := eng.ListRegistrations(ctx, 42)
		require.NoError(t, err)

		lines := strings.Split(out, "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "1. Alpha")
		assert.Contains(t, lines[0], "9876543210")
		assert.Contains(t, lines[1], "2. Beta")
		assert.Contains(t, lines[1], "—", "pending records show the phone sentinel")
	})

	t.Run("listing reflects a post-sweep view", func(t *testing.T) {
		store := newMemStore()
		store.recs[1] = storage.Record{UserID: 1, Name: "Stale", CreatedAt: now.Add(-31 * 24 * time.Hour)}
		store.recs[2] = storage.Record{UserID: 2, Name: "Live", Phone: "9876543210", CreatedAt: now.Add(-time.Hour)}
		eng := newTestEngine(store, now, nil)

		out, err := eng.ListRegistrations(ctx, 42)
		require.NoError(t, err)
		assert.NotContains(t, out, "Stale")
		assert.Contains(t, out, "Live")
	})
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, StateUnseen, StateFor(storage.Record{}, false))
	assert.Equal(t, StatePending, StateFor(storage.Record{Name: "x"}, true))
	assert.Equal(t, StateComplete, StateFor(storage.Record{Name: "x", Phone: "9876543210"}, true))
}

func TestGreeting(t *testing.T) {
	assert.Contains(t, Greeting("Asha"), "Asha")
	assert.Contains(t, Greeting("  "), "there")
}
