package regular

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"mofkobot/internal/storage"
	"mofkobot/pkg/logx"
)

// memStore is an in-memory storage.Store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
	// failSet makes every Set fail when true.
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]json.RawMessage)}
}

func (m *memStore) Get(_ context.Context, ns, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[ns+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, ns, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[ns+"/"+key] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, ns, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ns+"/"+key)
	return nil
}

func (m *memStore) Close() error { return nil }

func newTestStore(t *testing.T, db storage.Store, now time.Time) *Store {
	t.Helper()
	s := NewStore(db, time.UTC, logx.Nop())
	s.SetClock(func() time.Time { return now }, time.UTC)
	return s
}

func dailyArgs() CreateArgs {
	return CreateArgs{
		Period:     PeriodSpec{Kind: PeriodDaily},
		Time:       &ClockTime{Hour: 9},
		StartDay:   1,
		StartMonth: 1,
		Text:       "доброе утро",
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := mustTime(t, "2024-03-01 10:00")
	s := newTestStore(t, newMemStore(), now)

	e, err := s.Create(ctx, dailyArgs(), 42, "Чат", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID == 0 || !e.Enabled || e.ErrorCount != 0 {
		t.Fatalf("unexpected new entry: %+v", e)
	}
	if want := mustTime(t, "2024-03-02 09:00").Unix(); e.NextFireAt != want {
		t.Fatalf("NextFireAt = %d, want %d", e.NextFireAt, want)
	}

	got, err := s.Get(e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("Get = %+v, want %+v", got, e)
	}
}

func TestStoreIDsNeverReused(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := mustTime(t, "2024-03-01 10:00")
	s := newTestStore(t, nil, now)

	a, _ := s.Create(ctx, dailyArgs(), 1, "", nil)
	b, _ := s.Create(ctx, dailyArgs(), 1, "", nil)
	c, _ := s.Create(ctx, dailyArgs(), 1, "", nil)
	if a.ID == b.ID || b.ID == c.ID || a.ID == c.ID {
		t.Fatalf("duplicate ids with a frozen clock: %d %d %d", a.ID, b.ID, c.ID)
	}
	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Fatalf("ids not monotonic: %d %d %d", a.ID, b.ID, c.ID)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := mustTime(t, "2024-03-01 10:00")
	db := newMemStore()
	s := newTestStore(t, db, now)

	specs := []CreateArgs{
		{Period: PeriodSpec{Kind: PeriodInterval, Seconds: 8100}, StartDay: 27, StartMonth: 12, Text: "интервал"},
		{Period: PeriodSpec{Kind: PeriodDaily}, Time: &ClockTime{Hour: 9}, StartDay: 1, StartMonth: 1, Text: "ежедневно"},
		{Period: PeriodSpec{Kind: PeriodWeekly}, Time: &ClockTime{Hour: 12}, StartDay: 1, StartMonth: 1, Text: "еженедельно"},
		{Period: PeriodSpec{Kind: PeriodWeeklyDay, Weekday: 5}, Time: &ClockTime{Hour: 20, Minute: 15}, StartDay: 1, StartMonth: 1, Text: "по субботам"},
		{Period: PeriodSpec{Kind: PeriodMonthly}, Time: &ClockTime{Hour: 10}, StartDay: 15, StartMonth: 2, Text: "ежемесячно"},
		{Period: PeriodSpec{Kind: PeriodMonthlyDay, Month: 12}, Time: &ClockTime{Hour: 0}, StartDay: 31, StartMonth: 12, Text: "в декабре"},
		{Period: PeriodSpec{Kind: PeriodYearly}, Time: &ClockTime{Hour: 8}, StartDay: 9, StartMonth: 5, Text: "ежегодно"},
		{Period: PeriodSpec{Kind: PeriodWeeks, Weeks: 3}, Time: &ClockTime{Hour: 7}, StartDay: 1, StartMonth: 3, Text: "раз в 3 недели"},
	}
	for _, args := range specs {
		if _, err := s.Create(ctx, args, 7, "Чат", []byte{0x89, 0x50}); err != nil {
			t.Fatalf("Create(%v): %v", args.Period.Kind, err)
		}
	}

	// fresh store over the same backing data
	s2 := newTestStore(t, db, now)
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before, after := s.List(), s2.List()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip mismatch:\n before %+v\n after  %+v", before, after)
	}
}

func TestStoreRestoreSkipsToNextOccurrence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	created := mustTime(t, "2024-03-01 10:00")
	db := newMemStore()
	s := newTestStore(t, db, created)
	e, _ := s.Create(ctx, dailyArgs(), 1, "", nil)

	// process comes back a week later
	restarted := mustTime(t, "2024-03-08 15:00")
	s2 := newTestStore(t, db, restarted)
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := s2.Get(e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := mustTime(t, "2024-03-09 09:00").Unix(); got.NextFireAt != want {
		t.Fatalf("NextFireAt = %d, want %d (single next occurrence, no burst)", got.NextFireAt, want)
	}
}

func TestStoreUpdatePeriodToIntervalDropsTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	e, _ := s.Create(ctx, dailyArgs(), 1, "", nil)

	got, err := s.UpdatePeriod(ctx, e.ID, PeriodSpec{Kind: PeriodInterval, Seconds: 1800})
	if err != nil {
		t.Fatalf("UpdatePeriod: %v", err)
	}
	if got.Time != nil {
		t.Fatalf("time of day survived the switch to interval: %+v", got.Time)
	}
	if got.NextFireAt == e.NextFireAt {
		t.Fatal("fire time was not recomputed")
	}
}

func TestStoreToggleIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	e, _ := s.Create(ctx, dailyArgs(), 1, "", nil)

	off, err := s.Toggle(ctx, e.ID)
	if err != nil || off.Enabled {
		t.Fatalf("first toggle: %+v, %v", off, err)
	}
	on, err := s.Toggle(ctx, e.ID)
	if err != nil || !on.Enabled {
		t.Fatalf("second toggle: %+v, %v", on, err)
	}
	if !reflect.DeepEqual(on, e) {
		t.Fatalf("double toggle changed other fields:\n was %+v\n now %+v", e, on)
	}
}

func TestStoreMarkFailedAutoDisables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	e, _ := s.Create(ctx, dailyArgs(), 1, "", nil)

	for i := 1; i <= 4; i++ {
		got, err := s.MarkFailed(ctx, e.ID)
		if err != nil {
			t.Fatalf("MarkFailed #%d: %v", i, err)
		}
		if !got.Enabled || got.ErrorCount != i {
			t.Fatalf("after %d failures: %+v", i, got)
		}
	}

	got, err := s.MarkFailed(ctx, e.ID)
	if err != nil {
		t.Fatalf("MarkFailed #5: %v", err)
	}
	if got.Enabled || got.ErrorCount != MaxConsecutiveErrors {
		t.Fatalf("after 5 failures: %+v, want disabled with count 5", got)
	}

	// toggle re-enables without touching period or payload
	back, err := s.Toggle(ctx, e.ID)
	if err != nil || !back.Enabled {
		t.Fatalf("re-enable: %+v, %v", back, err)
	}
	if back.Period != e.Period || back.Text != e.Text {
		t.Fatalf("toggle altered period/payload: %+v", back)
	}
}

func TestStoreSuccessResetsErrorCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	e, _ := s.Create(ctx, dailyArgs(), 1, "", nil)

	for i := 0; i < 4; i++ {
		if _, err := s.MarkFailed(ctx, e.ID); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
	}
	got, err := s.MarkSent(ctx, e.ID)
	if err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if got.ErrorCount != 0 || !got.Enabled {
		t.Fatalf("after success: %+v, want error count 0", got)
	}
	if got.LastSentAt == 0 || got.NextFireAt <= got.LastSentAt {
		t.Fatalf("schedule not advanced: %+v", got)
	}
}

func TestStoreClearAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	for i := 0; i < 3; i++ {
		if _, err := s.Create(ctx, dailyArgs(), int64(i), "", nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := s.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if n != 3 {
		t.Fatalf("ClearAll = %d, want 3", n)
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("List after clear = %d entries", len(got))
	}
}

func TestStoreNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))

	if _, err := s.Get(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.Toggle(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Toggle: %v", err)
	}
	if err := s.Delete(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.UpdateMessage(ctx, 99, "x", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateMessage: %v", err)
	}
}

func TestStorePersistErrorKeepsMemoryState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newMemStore()
	s := newTestStore(t, db, mustTime(t, "2024-03-01 10:00"))
	e, err := s.Create(ctx, dailyArgs(), 1, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	db.mu.Lock()
	db.failSet = true
	db.mu.Unlock()

	if _, err := s.Toggle(ctx, e.ID); err == nil {
		t.Fatal("Toggle should surface the persistence error")
	}
	// in-memory state still reflects the mutation
	got, _ := s.Get(e.ID)
	if got.Enabled {
		t.Fatal("in-memory toggle was lost on persistence failure")
	}
}

func TestStoreDueOrderAndFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := mustTime(t, "2024-03-01 10:00")
	s := newTestStore(t, nil, now)

	a, _ := s.Create(ctx, dailyArgs(), 1, "", nil)
	b, _ := s.Create(ctx, dailyArgs(), 2, "", nil)
	c, _ := s.Create(ctx, dailyArgs(), 3, "", nil)
	if _, err := s.Toggle(ctx, b.ID); err != nil { // disabled, never due
		t.Fatalf("Toggle: %v", err)
	}

	later := mustTime(t, "2024-03-02 09:30")
	due := s.Due(later)
	if len(due) != 2 || due[0].ID != a.ID || due[1].ID != c.ID {
		t.Fatalf("Due = %+v, want [a c] in creation order", due)
	}
	if got := s.Due(now); len(got) != 0 {
		t.Fatalf("nothing should be due before the fire time, got %d", len(got))
	}
}
