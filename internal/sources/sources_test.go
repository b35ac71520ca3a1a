package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/store"
)

// fakeSource is a scriptable source for manager tests.
type fakeSource struct {
	id       string
	enabled  bool
	priority int
	err      error
}

func (f *fakeSource) SourceID() string         { return f.id }
func (f *fakeSource) DisplayName() string      { return f.id }
func (f *fakeSource) Enabled() bool            { return f.enabled }
func (f *fakeSource) Priority() int            { return f.priority }
func (f *fakeSource) RequiredConfig() []string { return nil }

func (f *fakeSource) FetchContext(_ context.Context, _, _ time.Time) (ContextData, error) {
	if f.err != nil {
		return ContextData{}, f.err
	}
	return ContextData{
		SourceID: f.id,
		DataType: TypeGeneric,
		Priority: f.priority,
		Generic:  &GenericContext{Summary: f.id},
	}, nil
}

func TestManager_FetchAllSortsByPriority(t *testing.T) {
	m := NewManager()
	m.Add(&fakeSource{id: "low", enabled: true, priority: 10})
	m.Add(&fakeSource{id: "high", enabled: true, priority: 200})
	m.Add(&fakeSource{id: "mid", enabled: true, priority: 100})

	out := m.FetchAll(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	if out[0].SourceID != "high" || out[1].SourceID != "mid" || out[2].SourceID != "low" {
		t.Errorf("order = %s, %s, %s", out[0].SourceID, out[1].SourceID, out[2].SourceID)
	}
}

func TestManager_SkipsDisabledAndFailing(t *testing.T) {
	m := NewManager()
	m.Add(&fakeSource{id: "off", enabled: false, priority: 100})
	m.Add(&fakeSource{id: "broken", enabled: true, priority: 100, err: errors.New("boom")})
	m.Add(&fakeSource{id: "ok", enabled: true, priority: 100})

	out := m.FetchAll(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if len(out) != 1 || out[0].SourceID != "ok" {
		t.Errorf("out = %+v, want only ok", out)
	}
}

func TestManager_Get(t *testing.T) {
	m := NewManager()
	m.Add(&fakeSource{id: "weather", enabled: true})
	if m.Get("weather") == nil {
		t.Error("Get(weather) should find the source")
	}
	if m.Get("nope") != nil {
		t.Error("Get(nope) should return nil")
	}
}

// ─── Calendar source ────────────────────────────────────────────────────────

func TestCalendarSource_FetchContext(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	title1, title2 := "Standup", "Design Review"
	end1 := now.Add(3 * time.Hour).Unix()
	end2 := now.Add(4 * time.Hour).Unix()
	events := []struct {
		sid   string
		title *string
		start int64
		end   *int64
	}{
		{"s1", &title1, now.Add(2 * time.Hour).Unix(), &end1},
		{"s2", &title2, now.Add(150 * time.Minute).Unix(), &end2}, // overlaps s1
	}
	for _, ev := range events {
		if _, err := db.CreateEvent(domainEvent(ev.sid, ev.title, ev.start, ev.end)); err != nil {
			t.Fatalf("CreateEvent(%s) error: %v", ev.sid, err)
		}
	}

	src := NewCalendarSource(db)
	src.now = func() time.Time { return now }

	data, err := src.FetchContext(context.Background(), now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FetchContext() error: %v", err)
	}
	cal := data.Calendar
	if cal == nil {
		t.Fatal("Calendar payload missing")
	}
	if len(cal.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(cal.Events))
	}
	if len(cal.Conflicts) != 1 {
		t.Errorf("got %d conflicts, want 1: %v", len(cal.Conflicts), cal.Conflicts)
	}
	if len(cal.UpcomingDeadlines) != 2 {
		t.Errorf("got %d deadlines, want 2: %v", len(cal.UpcomingDeadlines), cal.UpcomingDeadlines)
	}
}

func domainEvent(sid string, title *string, start int64, end *int64) domain.Event {
	return domain.Event{
		SourceID:   sid,
		CalendarID: 1,
		Title:      title,
		StartTime:  start,
		EndTime:    end,
	}
}
