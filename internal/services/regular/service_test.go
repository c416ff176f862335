package regular

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
)

type sentMsg struct {
	ChatID int64
	Text   string
	Photo  bool
	At     time.Time
}

// fakeAdapter records sends and can be told to fail them.
type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
	fail bool
}

func (f *fakeAdapter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAdapter) record(chatID int64, text string, photo bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, sentMsg{ChatID: chatID, Text: text, Photo: photo, At: time.Now()})
	return nil
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, f.record(to.ChatID, text, false)
}

func (f *fakeAdapter) SendPhoto(_ context.Context, to transport.ChatTarget, _ []byte, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, f.record(to.ChatID, caption, true)
}

func (f *fakeAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error      { return nil }
func (f *fakeAdapter) DownloadPhoto(context.Context, string) ([]byte, error)     { return nil, nil }

func newEngine(t *testing.T, store *Store, ad transport.Adapter) *Service {
	t.Helper()
	return NewService(Config{Enabled: true}, store, ad, logx.Nop())
}

func TestServiceDeliverSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := mustTime(t, "2024-03-02 09:30")
	store := newTestStore(t, nil, now)
	e, _ := store.Create(ctx, dailyArgs(), 42, "Чат", nil)

	// force the entry due
	store.SetClock(func() time.Time { return now.Add(48 * time.Hour) }, time.UTC)

	ad := &fakeAdapter{}
	svc := newEngine(t, store, ad)

	if err := svc.deliver(ctx, e.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if ad.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1", ad.sentCount())
	}
	got, _ := store.Get(e.ID)
	if got.LastSentAt == 0 || got.ErrorCount != 0 {
		t.Fatalf("post-send state: %+v", got)
	}
	if got.NextFireAt <= got.LastSentAt {
		t.Fatalf("schedule not advanced: %+v", got)
	}
}

func TestServiceDeliverPhoto(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	e, _ := store.Create(ctx, dailyArgs(), 42, "Чат", []byte{1, 2, 3})

	ad := &fakeAdapter{}
	svc := newEngine(t, store, ad)

	if err := svc.deliver(ctx, e.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent) != 1 || !ad.sent[0].Photo || ad.sent[0].Text != "доброе утро" {
		t.Fatalf("sent = %+v, want one photo with caption", ad.sent)
	}
}

func TestServiceFiveFailuresDisable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, nil, mustTime(t, "2024-03-01 10:00"))
	e, _ := store.Create(ctx, dailyArgs(), 42, "", nil)

	ad := &fakeAdapter{}
	ad.setFail(true)
	svc := newEngine(t, store, ad)

	for i := 0; i < MaxConsecutiveErrors; i++ {
		if err := svc.deliver(ctx, e.ID); err == nil {
			t.Fatalf("deliver #%d should fail", i+1)
		}
	}

	got, _ := store.Get(e.ID)
	if got.Enabled || got.ErrorCount != MaxConsecutiveErrors {
		t.Fatalf("after 5 failures: %+v, want disabled", got)
	}

	// disabled entries are skipped silently
	ad.setFail(false)
	if err := svc.deliver(ctx, e.ID); err != nil {
		t.Fatalf("deliver on disabled entry: %v", err)
	}
	if ad.sentCount() != 0 {
		t.Fatal("disabled entry was sent")
	}
}

func TestServiceCycleRateLimitsAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := mustTime(t, "2024-03-02 10:00")
	store := newTestStore(t, nil, now.Add(-48*time.Hour))
	var ids []uint64
	for i := 0; i < 3; i++ {
		e, err := store.Create(ctx, dailyArgs(), int64(i+1), "", nil)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, e.ID)
	}
	store.SetClock(func() time.Time { return now }, time.UTC)

	ad := &fakeAdapter{}
	svc := newEngine(t, store, ad)
	// tight spacing so the test runs fast
	svc.limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)

	stopCh := make(chan struct{})
	start := time.Now()
	svc.cycle(ctx, stopCh)
	elapsed := time.Since(start)

	if ad.sentCount() != 3 {
		t.Fatalf("sent %d, want 3", ad.sentCount())
	}
	// 3 sends with 100ms minimum spacing: at least 200ms total
	if elapsed < 200*time.Millisecond {
		t.Fatalf("cycle finished in %v, rate limit not applied", elapsed)
	}
	for _, id := range ids {
		got, _ := store.Get(id)
		if got.NextFireAt <= now.Unix() {
			t.Fatalf("entry %d still due after cycle: %+v", id, got)
		}
	}
}

func TestServiceStartStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now().Add(-time.Hour)
	store := newTestStore(t, nil, now)
	e, _ := store.Create(ctx, CreateArgs{
		Period:     PeriodSpec{Kind: PeriodInterval, Seconds: 60},
		StartDay:   now.Day(),
		StartMonth: int(now.Month()),
		Text:       "тик",
	}, 5, "", nil)
	// entry is due: its fire time was computed an hour ago
	store.SetClock(time.Now, time.UTC)

	ad := &fakeAdapter{}
	svc := newEngine(t, store, ad)
	svc.Start(ctx)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		svc.Stop(sctx)
	}()

	if got, _ := store.Get(e.ID); got.NextFireAt > time.Now().Unix() {
		t.Skipf("entry not due yet (next fire %d)", got.NextFireAt)
	}

	svc.CheckNow()
	deadline := time.After(3 * time.Second)
	for ad.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no delivery within 3s of CheckNow")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), time.Second)
	defer scancel()
	svc.Stop(sctx)
	if sctx.Err() != nil {
		t.Fatal("Stop did not finish in time")
	}
}
