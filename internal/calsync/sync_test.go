package calsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/store"
)

func TestSyncer_SyncStoresEventsAndCalendar(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/work@example.com/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(eventsResponse{Items: []googleEvent{
			{ID: "w1", Summary: strPtr("Sprint planning"),
				Start: &googleDateTime{DateTime: strPtr("2026-03-10T10:00:00Z")},
				End:   &googleDateTime{DateTime: strPtr("2026-03-10T11:00:00Z")}},
			{ID: "w2", Summary: strPtr("Trash day"),
				Start: &googleDateTime{Date: strPtr("2026-03-11")},
				End:   &googleDateTime{Date: strPtr("2026-03-11")}},
		}})
	})
	mux.HandleFunc("/calendars/work@example.com", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(calendarListEntry{ID: "work@example.com", Summary: "Work Calendar"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	service := NewService(Config{
		ClientID: "c", ClientSecret: "s",
		CalendarIDs: []string{"work@example.com"},
	}, t.TempDir())
	service.apiBase = server.URL
	if err := service.storeToken(StoredToken{AccessToken: "at", Scopes: []string{calendarScope}}); err != nil {
		t.Fatalf("storeToken() error: %v", err)
	}

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	syncer := NewSyncer(service, db, 7*24*time.Hour)
	syncer.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	ev, err := db.EventBySourceID("w1")
	if err != nil {
		t.Fatalf("EventBySourceID() error: %v", err)
	}
	if ev == nil {
		t.Fatal("event w1 not stored")
	}

	cal, err := db.CalendarInfo(ev.CalendarID)
	if err != nil {
		t.Fatalf("CalendarInfo() error: %v", err)
	}
	if cal == nil {
		t.Fatal("calendar row missing")
	}
	if cal.Name != "Work Calendar" {
		t.Errorf("Name = %q, want Work Calendar", cal.Name)
	}
	if cal.Type != domain.CalendarWork {
		t.Errorf("Type = %q, want work (inferred)", cal.Type)
	}

	// A second sync must not duplicate events.
	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("second Sync() error: %v", err)
	}
	events, err := db.EventsInRange(
		time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("EventsInRange() error: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events after re-sync, want 2", len(events))
	}
}
