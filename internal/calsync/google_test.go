package calsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/auth/callback",
		CalendarIDs:  []string{"primary"},
	}, t.TempDir())
}

// ─── Event conversion ───────────────────────────────────────────────────────

func TestConvertGoogleEvent_DateTime(t *testing.T) {
	item := googleEvent{
		ID:       "ev1",
		Summary:  strPtr("Dentist"),
		Location: strPtr("Main St"),
		Start:    &googleDateTime{DateTime: strPtr("2026-03-10T14:30:00-05:00")},
		End:      &googleDateTime{DateTime: strPtr("2026-03-10T15:30:00-05:00")},
		Attendees: []googleAttendee{
			{Email: strPtr("ada@example.com")},
			{DisplayName: strPtr("no email")},
		},
	}

	ev, err := convertGoogleEvent(item)
	if err != nil {
		t.Fatalf("convertGoogleEvent() error: %v", err)
	}

	wantStart := time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC).Unix()
	if ev.StartTime != wantStart {
		t.Errorf("StartTime = %d, want %d (normalized to UTC)", ev.StartTime, wantStart)
	}
	if ev.EndTime == nil || *ev.EndTime != wantStart+3600 {
		t.Errorf("EndTime = %v, want %d", ev.EndTime, wantStart+3600)
	}
	if ev.IsAllDay {
		t.Error("datetime event should not be all-day")
	}
	if ev.EventType == nil || *ev.EventType != "google_calendar" {
		t.Errorf("EventType = %v", ev.EventType)
	}

	var emails []string
	if ev.Participants == nil {
		t.Fatal("Participants missing")
	}
	if err := json.Unmarshal([]byte(*ev.Participants), &emails); err != nil {
		t.Fatalf("participants not JSON: %v", err)
	}
	if len(emails) != 1 || emails[0] != "ada@example.com" {
		t.Errorf("emails = %v", emails)
	}
	if ev.RawDataJSON == nil {
		t.Error("raw provider payload should be retained")
	}
}

func TestConvertGoogleEvent_AllDay(t *testing.T) {
	item := googleEvent{
		ID:      "allday1",
		Summary: strPtr("Trash day"),
		Start:   &googleDateTime{Date: strPtr("2026-03-10")},
		End:     &googleDateTime{Date: strPtr("2026-03-10")},
	}

	ev, err := convertGoogleEvent(item)
	if err != nil {
		t.Fatalf("convertGoogleEvent() error: %v", err)
	}
	if !ev.IsAllDay {
		t.Fatal("date-only event should be all-day")
	}

	// Naive-UTC day boundaries: midnight start, 23:59:59 end.
	start := time.Unix(ev.StartTime, 0).UTC()
	if start.Hour() != 0 || start.Minute() != 0 || start.Second() != 0 {
		t.Errorf("start = %v, want local midnight as naive UTC", start)
	}
	if ev.EndTime == nil {
		t.Fatal("EndTime missing")
	}
	end := time.Unix(*ev.EndTime, 0).UTC()
	if end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 {
		t.Errorf("end = %v, want 23:59:59 as naive UTC", end)
	}
	if start.Format("2006-01-02") != "2026-03-10" {
		t.Errorf("start date = %s, want 2026-03-10", start.Format("2006-01-02"))
	}
}

func TestConvertGoogleEvent_MissingStart(t *testing.T) {
	if _, err := convertGoogleEvent(googleEvent{ID: "broken"}); err == nil {
		t.Error("event without a start should fail conversion")
	}
}

func TestConvertGoogleEvent_MissingIDGetsGenerated(t *testing.T) {
	item := googleEvent{
		Start: &googleDateTime{DateTime: strPtr("2026-03-10T14:30:00Z")},
	}
	ev, err := convertGoogleEvent(item)
	if err != nil {
		t.Fatalf("convertGoogleEvent() error: %v", err)
	}
	if ev.SourceID == "" {
		t.Error("missing provider id should be replaced with a generated one")
	}
}

// ─── Token lifecycle ────────────────────────────────────────────────────────

func TestIsAuthenticated_NoToken(t *testing.T) {
	s := newTestService(t)
	if s.IsAuthenticated() {
		t.Error("service without a cached token should not be authenticated")
	}
}

func TestAuthURL_CarriesClientAndScope(t *testing.T) {
	s := newTestService(t)
	authURL, state := s.AuthURL()
	if state == "" {
		t.Error("CSRF state should not be empty")
	}
	for _, want := range []string{"client_id=client-id", "calendar.readonly", "access_type=offline"} {
		if !strings.Contains(authURL, want) {
			t.Errorf("auth URL %q missing %q", authURL, want)
		}
	}
}

func TestAuthenticateWithCode_StoresToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("code") != "auth-code" {
			t.Errorf("code = %q", r.PostForm.Get("code"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	s := newTestService(t)
	s.tokenURL = tokenServer.URL

	if err := s.AuthenticateWithCode(context.Background(), "auth-code", "state"); err != nil {
		t.Fatalf("AuthenticateWithCode() error: %v", err)
	}

	if !s.IsAuthenticated() {
		t.Error("service should be authenticated after code exchange")
	}
	raw, err := os.ReadFile(s.tokenFilePath)
	if err != nil {
		t.Fatalf("token cache missing: %v", err)
	}
	var stored StoredToken
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("token cache not JSON: %v", err)
	}
	if stored.AccessToken != "at-1" || stored.RefreshToken == nil || *stored.RefreshToken != "rt-1" {
		t.Errorf("stored token = %+v", stored)
	}
	if len(stored.Scopes) != 1 || stored.Scopes[0] != calendarScope {
		t.Errorf("scopes = %v", stored.Scopes)
	}
}

func TestValidToken_RefreshesNearExpiry(t *testing.T) {
	refreshed := false
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", r.PostForm.Get("grant_type"))
		}
		refreshed = true
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	s := newTestService(t)
	s.tokenURL = tokenServer.URL

	// Seed a token expiring inside the refresh margin.
	rt := "rt-keep"
	soon := time.Now().Add(time.Minute)
	if err := s.storeToken(StoredToken{
		AccessToken: "at-old", RefreshToken: &rt, ExpiresAt: &soon,
		Scopes: []string{calendarScope},
	}); err != nil {
		t.Fatalf("storeToken() error: %v", err)
	}

	token, err := s.validToken(context.Background())
	if err != nil {
		t.Fatalf("validToken() error: %v", err)
	}
	if !refreshed {
		t.Error("token within the refresh margin should be refreshed")
	}
	if token.AccessToken != "at-new" {
		t.Errorf("AccessToken = %q, want at-new", token.AccessToken)
	}
	if token.RefreshToken == nil || *token.RefreshToken != "rt-keep" {
		t.Error("refresh token must be preserved across refresh")
	}
}

// ─── Event fetch ────────────────────────────────────────────────────────────

func TestFetchEvents_PerCalendarFailureIsolation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" || q.Get("maxResults") != "250" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(eventsResponse{Items: []googleEvent{
			{ID: "e1", Summary: strPtr("OK"), Start: &googleDateTime{DateTime: strPtr("2026-03-10T10:00:00Z")}},
		}})
	})
	mux.HandleFunc("/calendars/broken/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewService(Config{
		ClientID: "c", ClientSecret: "s",
		CalendarIDs: []string{"primary", "broken"},
	}, t.TempDir())
	s.apiBase = server.URL
	if err := s.storeToken(StoredToken{AccessToken: "at", Scopes: []string{calendarScope}}); err != nil {
		t.Fatalf("storeToken() error: %v", err)
	}

	byCalendar, err := s.FetchEvents(context.Background(),
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchEvents() error: %v", err)
	}
	if len(byCalendar) != 1 {
		t.Fatalf("got %d calendars, want 1 (broken one skipped)", len(byCalendar))
	}
	if byCalendar[0].CalendarID != "primary" || len(byCalendar[0].Events) != 1 {
		t.Errorf("byCalendar = %+v", byCalendar)
	}
}

