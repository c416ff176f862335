package regular

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mofkobot/internal/storage"
	"mofkobot/pkg/logx"
)

const (
	storeNamespace = "regularm"
	storeKey       = "messages"
)

// persistedDoc is the single serialized document holding every entry.
// Order is creation order and is preserved across restarts.
type persistedDoc struct {
	Entries []*Entry `json:"entries"`
}

// Store owns the canonical entry collection. Every mutation is a
// read-modify-persist sequence under one mutex so a user edit can never race
// a delivery update on the same entry, and the whole document is rewritten on
// each change (mutations are human-driven, not high-throughput).
//
// Persistence failures keep the in-memory state and surface the error to the
// caller; memory is authoritative until the next successful flush.
type Store struct {
	mu  sync.Mutex
	log logx.Logger
	db  storage.Store // nil disables durability

	entries map[uint64]*Entry
	order   []uint64

	loc *time.Location
	now func() time.Time

	lastID uint64
}

func NewStore(db storage.Store, loc *time.Location, log logx.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		log:     log,
		db:      db,
		entries: make(map[uint64]*Entry),
		loc:     loc,
		now:     time.Now,
	}
}

// Load reads the persisted document and then reschedules every enabled entry
// whose fire time was missed while the process was down: overdue entries are
// skipped forward to their next occurrence, not fired in a burst.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		var doc persistedDoc
		if _, err := storage.GetJSON(ctx, s.db, storeNamespace, storeKey, &doc); err != nil {
			return err
		}
		for _, e := range doc.Entries {
			if e == nil || e.ID == 0 {
				continue
			}
			s.entries[e.ID] = e
			s.order = append(s.order, e.ID)
			if e.ID > s.lastID {
				s.lastID = e.ID
			}
		}
	}

	now := s.now()
	changed := 0
	for _, id := range s.order {
		e := s.entries[id]
		if !e.Enabled || e.NextFireAt == 0 {
			continue
		}
		if e.NextFireAt < now.Unix() {
			e.NextFireAt = NextFire(e, now, s.loc).Unix()
			changed++
		}
	}
	if changed > 0 {
		s.log.Info("rescheduled overdue entries after restart", logx.Int("count", changed))
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	doc := persistedDoc{Entries: make([]*Entry, 0, len(s.order))}
	for _, id := range s.order {
		doc.Entries = append(doc.Entries, s.entries[id])
	}
	if err := storage.SetJSON(ctx, s.db, storeNamespace, storeKey, doc); err != nil {
		s.log.Error("entry persistence failed, keeping in-memory state", logx.Err(err))
		return err
	}
	return nil
}

// nextIDLocked derives a unique id from the creation time (ms precision),
// bumping by one on collision so ids are never reused.
func (s *Store) nextIDLocked() uint64 {
	id := uint64(s.now().UnixMilli())
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Create validates, computes the first fire time and persists a new entry.
func (s *Store) Create(ctx context.Context, args CreateArgs, chatID int64, chatTitle string, photo []byte) (Entry, error) {
	if err := args.Period.Validate(); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &Entry{
		ID:         s.nextIDLocked(),
		ChatID:     chatID,
		ChatTitle:  chatTitle,
		Period:     args.Period,
		Time:       args.Time,
		StartDay:   args.StartDay,
		StartMonth: args.StartMonth,
		Text:       args.Text,
		Photo:      photo,
		Enabled:    true,
		CreatedAt:  now.Unix(),
	}
	e.NextFireAt = NextFire(e, now, s.loc).Unix()

	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	if err := s.persistLocked(ctx); err != nil {
		return *e, err
	}
	return *e, nil
}

// mutate runs fn on the entry, recomputes the fire time if asked, persists.
func (s *Store) mutate(ctx context.Context, id uint64, reschedule bool, fn func(e *Entry)) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	fn(e)
	if reschedule {
		e.NextFireAt = NextFire(e, s.now(), s.loc).Unix()
	}
	if err := s.persistLocked(ctx); err != nil {
		return *e, err
	}
	return *e, nil
}

func (s *Store) UpdatePeriod(ctx context.Context, id uint64, p PeriodSpec) (Entry, error) {
	if err := p.Validate(); err != nil {
		return Entry{}, err
	}
	return s.mutate(ctx, id, true, func(e *Entry) {
		e.Period = p
		if p.IsInterval() {
			e.Time = nil
		}
	})
}

func (s *Store) UpdateTime(ctx context.Context, id uint64, t *ClockTime) (Entry, error) {
	return s.mutate(ctx, id, true, func(e *Entry) { e.Time = t })
}

func (s *Store) UpdateDate(ctx context.Context, id uint64, day, month int) (Entry, error) {
	return s.mutate(ctx, id, true, func(e *Entry) {
		e.StartDay, e.StartMonth = day, month
	})
}

func (s *Store) UpdateMessage(ctx context.Context, id uint64, text string, photo []byte) (Entry, error) {
	return s.mutate(ctx, id, true, func(e *Entry) {
		e.Text = text
		e.Photo = photo
	})
}

// Toggle flips enabled and returns the new state. Toggling does not touch
// the schedule or the error counter: re-enabling a failed entry resumes it
// as-is.
func (s *Store) Toggle(ctx context.Context, id uint64) (Entry, error) {
	return s.mutate(ctx, id, false, func(e *Entry) { e.Enabled = !e.Enabled })
}

func (s *Store) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.persistLocked(ctx)
}

// ClearAll removes every entry and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[uint64]*Entry)
	s.order = nil
	return n, s.persistLocked(ctx)
}

// Get returns a copy of the entry.
func (s *Store) Get(id uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// List returns copies of all entries in creation order.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Due returns copies of enabled entries whose fire time has passed,
// in a stable (creation) order.
func (s *Store) Due(now time.Time) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	ts := now.Unix()
	for _, id := range s.order {
		e := s.entries[id]
		if e.Enabled && e.NextFireAt > 0 && e.NextFireAt <= ts {
			out = append(out, *e)
		}
	}
	return out
}

// MarkSent records a successful delivery: stamps last-sent, resets the error
// counter and schedules the next occurrence.
func (s *Store) MarkSent(ctx context.Context, id uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	now := s.now()
	e.LastSentAt = now.Unix()
	e.ErrorCount = 0
	e.NextFireAt = NextFire(e, now, s.loc).Unix()
	if err := s.persistLocked(ctx); err != nil {
		return *e, err
	}
	return *e, nil
}

// MarkFailed records a delivery failure and auto-disables the entry once the
// consecutive failure threshold is reached. Only the operator can re-enable
// it afterwards.
func (s *Store) MarkFailed(ctx context.Context, id uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.ErrorCount++
	if e.ErrorCount >= MaxConsecutiveErrors {
		e.Enabled = false
		s.log.Warn("entry auto-disabled after repeated failures",
			logx.Uint64("id", id), logx.Int("errors", e.ErrorCount))
	}
	if err := s.persistLocked(ctx); err != nil {
		return *e, err
	}
	return *e, nil
}

// RecalcAll recomputes the fire time of every entry and returns how many
// were recalculated.
func (s *Store) RecalcAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, e := range s.entries {
		e.NextFireAt = NextFire(e, now, s.loc).Unix()
	}
	return len(s.entries), s.persistLocked(ctx)
}

// Stats summarizes the collection for the statistics command.
type Stats struct {
	Total    int
	Enabled  int
	Disabled int
	ByKind   map[PeriodKind]int
	// Recent holds up to 5 entries, newest first.
	Recent []Entry
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{ByKind: make(map[PeriodKind]int)}
	all := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		st.Total++
		if e.Enabled {
			st.Enabled++
		} else {
			st.Disabled++
		}
		st.ByKind[e.Period.Kind]++
		all = append(all, *e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	if len(all) > 5 {
		all = all[:5]
	}
	st.Recent = all
	return st
}

// SetClock overrides the time source and timezone, used by tests.
func (s *Store) SetClock(now func() time.Time, loc *time.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
	if loc != nil {
		s.loc = loc
	}
}

// IsNotFound reports whether err is the missing-entry error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
