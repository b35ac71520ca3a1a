// Package domain defines the core types shared across the Jasper daemon:
// persisted records (events, calendars, insights, frontends) and the
// structured error surface. Domain types are pure — no infrastructure
// dependency.
package domain

import (
	"strings"
	"time"
)

// ─── Persisted Records ──────────────────────────────────────────────────────

// Event is a single calendar occurrence as stored in the events table.
// Instants are Unix seconds, UTC. source_id is unique per provider and is
// the dedup key for re-ingest.
type Event struct {
	ID           int64   `json:"id"`
	SourceID     string  `json:"source_id"`
	CalendarID   int64   `json:"calendar_id"`
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	StartTime    int64   `json:"start_time"`
	EndTime      *int64  `json:"end_time,omitempty"`
	Location     *string `json:"location,omitempty"`
	EventType    *string `json:"event_type,omitempty"`
	Participants *string `json:"participants,omitempty"` // JSON array of attendee emails
	RawDataJSON  *string `json:"raw_data_json,omitempty"`
	IsAllDay     bool    `json:"is_all_day"`
}

// TitleOrUntitled returns the event title, or "Untitled" when absent.
func (e Event) TitleOrUntitled() string {
	if e.Title != nil && *e.Title != "" {
		return *e.Title
	}
	return "Untitled"
}

// Start returns the event start as a UTC instant.
func (e Event) Start() time.Time {
	return time.Unix(e.StartTime, 0).UTC()
}

// End returns the event end as a UTC instant, or false when absent.
func (e Event) End() (time.Time, bool) {
	if e.EndTime == nil {
		return time.Time{}, false
	}
	return time.Unix(*e.EndTime, 0).UTC(), true
}

// CalendarType classifies a calendar by its inferred ownership.
type CalendarType string

const (
	CalendarPersonal    CalendarType = "personal"
	CalendarFamily      CalendarType = "family"
	CalendarHouse       CalendarType = "house"
	CalendarWork        CalendarType = "work"
	CalendarHoliday     CalendarType = "holiday"
	CalendarCelebration CalendarType = "celebration"
	CalendarUnknown     CalendarType = "unknown"
)

// Calendar is a collection of events under one account.
// (account_id, external_id) is unique.
type Calendar struct {
	ID         int64        `json:"id"`
	AccountID  int64        `json:"account_id"`
	ExternalID string       `json:"external_id"`
	Name       string       `json:"name"`
	Type       CalendarType `json:"type"`
	Color      *string      `json:"color,omitempty"`
}

// Account is one external credential context. At most one row per service.
type Account struct {
	ID             int64      `json:"id"`
	ServiceName    string     `json:"service_name"`
	UserIdentifier string     `json:"user_identifier"`
	TokenHandle    string     `json:"token_handle"` // opaque pointer to the token cache
	LastSync       *time.Time `json:"last_sync,omitempty"`
}

// Insight is a persisted AI output: one emoji plus one or two sentences.
// Never mutated after insert.
type Insight struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Emoji       string    `json:"emoji"`
	Text        string    `json:"text"`
	ContextHash string    `json:"context_hash"`
}

// ContextSnapshotRecord is the stored JSON describing the context that
// produced an insight. Append-only.
type ContextSnapshotRecord struct {
	ID        int64  `json:"id"`
	InsightID int64  `json:"insight_id"`
	Kind      string `json:"kind"`
	Payload   string `json:"payload"`
	Metadata  string `json:"metadata,omitempty"`
}

// FrontendRegistration is the liveness record for one IPC client.
// A record whose heartbeat is older than FrontendTTL is expired.
type FrontendRegistration struct {
	FrontendID    string    `json:"frontend_id"`
	PID           *int      `json:"pid,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// FrontendTTL is the heartbeat window after which a frontend is considered
// gone and eligible for removal.
const FrontendTTL = 60 * time.Second

// Correlation is the legacy output shape kept for compatibility with older
// frontends. The current pipeline does not produce it.
type Correlation struct {
	ID               string    `json:"id"`
	EventIDs         []int64   `json:"event_ids"`
	Insight          string    `json:"insight"`
	UrgencyScore     int       `json:"urgency_score"` // 0–10
	DiscoveredAt     time.Time `json:"discovered_at"`
	RecommendedGlyph *string   `json:"recommended_glyph,omitempty"`
}

// ─── Calendar Type Inference ────────────────────────────────────────────────

// InferCalendarType classifies a calendar from its external id and display
// name using case-insensitive substring rules, in priority order.
func InferCalendarType(externalID, name string) CalendarType {
	id := strings.ToLower(externalID)
	nm := strings.ToLower(name)

	switch {
	case externalID == "primary" || strings.Contains(nm, "personal") || strings.Contains(id, "personal"):
		return CalendarPersonal
	case strings.Contains(id, "family") || strings.Contains(nm, "family"):
		return CalendarFamily
	case strings.Contains(id, "house") || strings.Contains(nm, "house") || strings.Contains(nm, "home") || strings.Contains(nm, "maintenance"):
		return CalendarHouse
	case strings.Contains(id, "work") || strings.Contains(nm, "work") || strings.Contains(nm, "office") || strings.Contains(nm, "business"):
		return CalendarWork
	case strings.Contains(id, "holiday") || strings.Contains(nm, "holiday"):
		return CalendarHoliday
	case strings.Contains(nm, "celebration") || strings.Contains(nm, "birthday"):
		return CalendarCelebration
	default:
		return CalendarUnknown
	}
}

// InferCalendarColor maps an external calendar id to a display color.
func InferCalendarColor(externalID string) string {
	id := strings.ToLower(externalID)
	switch {
	case externalID == "primary":
		return "#4285F4"
	case strings.Contains(id, "family"):
		return "#0F9D58"
	case strings.Contains(id, "house") || strings.Contains(id, "home"):
		return "#F4B400"
	case strings.Contains(id, "work") || strings.Contains(id, "office"):
		return "#DB4437"
	case strings.Contains(id, "holiday"):
		return "#9C27B0"
	default:
		return "#757575"
	}
}
