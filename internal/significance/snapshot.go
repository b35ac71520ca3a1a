// Package significance decides when a context change is worth an LLM call.
// It holds the previous context snapshot and applies a typed diff plus a
// cooldown so that event flap never turns into API spend.
package significance

import (
	"time"

	"github.com/jasper-companion/jasper/internal/sources"
)

// ContextSnapshot is the in-memory value type the daemon hashes and diffs.
// Only the summary fields participate in significance decisions; the rich
// notes/weather payloads pass through untouched to the prompt builder.
type ContextSnapshot struct {
	CalendarEvents []CalendarEventSummary `json:"calendar_events"`
	Weather        *WeatherSummary        `json:"weather,omitempty"`
	Tasks          []TaskSummary          `json:"tasks"`
	NotesContext   *sources.NotesContext  `json:"notes_context,omitempty"`
	WeatherContext *sources.WeatherContext `json:"weather_context,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	ContextHash    string                 `json:"context_hash"`
}

// CalendarEventSummary is the slim event view used for diffing.
type CalendarEventSummary struct {
	ID        string     `json:"id"` // provider source id
	Title     string     `json:"title"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Location  *string    `json:"location,omitempty"`
	IsAllDay  bool       `json:"is_all_day"`
}

// WeatherSummary uses integer temperatures so equal conditions hash and
// compare stably.
type WeatherSummary struct {
	Condition   string `json:"condition"`
	Temperature int    `json:"temperature"`
	FeelsLike   int    `json:"feels_like"`
}

// TaskSummary is the slim task view used for diffing.
type TaskSummary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Due       *time.Time `json:"due,omitempty"`
	Completed bool       `json:"completed"`
}
