// Package sources implements the context providers the daemon samples on
// every analysis tick: calendar (from the store), an Obsidian-style notes
// vault, tasks (Todoist or local file), and weather. Each provider returns
// a typed ContextData payload for a time window; the manager fans out to
// every enabled provider and tolerates individual failures.
package sources

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/domain"
)

// Source is the uniform provider contract.
type Source interface {
	// SourceID returns the stable identifier for this provider.
	SourceID() string
	// DisplayName returns the human-readable provider name.
	DisplayName() string
	// Enabled reports whether the provider is configured and usable.
	// Disabled providers are never fetched.
	Enabled() bool
	// Priority orders emitted ContextData items; higher is more important.
	Priority() int
	// RequiredConfig lists the config keys this provider needs.
	RequiredConfig() []string
	// FetchContext returns the provider's context for [start, end).
	FetchContext(ctx context.Context, start, end time.Time) (ContextData, error)
}

// DataType tags the payload carried by a ContextData.
type DataType string

const (
	TypeCalendar DataType = "calendar"
	TypeTasks    DataType = "tasks"
	TypeNotes    DataType = "notes"
	TypeWeather  DataType = "weather"
	TypeGeneric  DataType = "generic"
)

// ContextData is the tagged payload a provider emits. Exactly one of the
// content pointers is set, matching DataType.
type ContextData struct {
	SourceID  string            `json:"source_id"`
	Timestamp time.Time         `json:"timestamp"`
	DataType  DataType          `json:"data_type"`
	Priority  int               `json:"priority"`
	Calendar  *CalendarContext  `json:"calendar,omitempty"`
	Tasks     *TaskContext      `json:"tasks,omitempty"`
	Notes     *NotesContext     `json:"notes,omitempty"`
	Weather   *WeatherContext   `json:"weather,omitempty"`
	Generic   *GenericContext   `json:"generic,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CalendarContext carries the window's events plus derived conflict and
// deadline summaries.
type CalendarContext struct {
	Events            []domain.Event `json:"events"`
	Conflicts         []string       `json:"conflicts"`
	UpcomingDeadlines []string       `json:"upcoming_deadlines"`
}

// TaskContext carries tasks plus overdue/upcoming counts relative to now.
type TaskContext struct {
	Tasks         []Task `json:"tasks"`
	OverdueCount  int    `json:"overdue_count"`
	UpcomingCount int    `json:"upcoming_count"`
}

// NotesContext is the vault-derived context.
type NotesContext struct {
	DailyNotes         []DailyNote         `json:"daily_notes"`
	ActiveProjects     []Project           `json:"active_projects"`
	RecentActivities   []Activity          `json:"recent_activities"`
	PendingTasks       []Task              `json:"pending_tasks"`
	RelationshipAlerts []RelationshipAlert `json:"relationship_alerts"`
}

// WeatherContext carries current conditions, a short forecast and derived
// alerts.
type WeatherContext struct {
	CurrentConditions string     `json:"current_conditions"`
	Forecast          []Forecast `json:"forecast"`
	Alerts            []string   `json:"alerts"`
}

// GenericContext is the extensibility escape hatch.
type GenericContext struct {
	Data     map[string]any `json:"data"`
	Summary  string         `json:"summary"`
	Insights []string       `json:"insights"`
}

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskBlocked    TaskStatus = "blocked"
)

// Task is a single actionable item from any source.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    int        `json:"priority"` // 1..10, higher is more urgent
	Status      TaskStatus `json:"status"`
	Tags        []string   `json:"tags,omitempty"`
	Source      string     `json:"source"`
}

// ProjectStatus is a project's lifecycle state.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPending   ProjectStatus = "pending"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Project is a vault project note.
type Project struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   ProjectStatus `json:"status"`
	DueDate  *time.Time    `json:"due_date,omitempty"`
	Client   *string       `json:"client,omitempty"`
	Priority int           `json:"priority"`
	Progress float64       `json:"progress"` // 0.0 to 1.0
	Tasks    []Task        `json:"tasks,omitempty"`
}

// DailyNote is one day's vault note.
type DailyNote struct {
	Date       time.Time `json:"date"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Tasks      []Task    `json:"tasks,omitempty"`
	Mood       *string   `json:"mood,omitempty"`
	EnergyLevel *int     `json:"energy_level,omitempty"`
	FocusAreas []string  `json:"focus_areas,omitempty"`
}

// Activity is an extracted meeting or call reference.
type Activity struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"` // meeting, call
}

// RelationshipAlert flags a contact who has gone quiet.
type RelationshipAlert struct {
	PersonName       string    `json:"person_name"`
	Company          *string   `json:"company,omitempty"`
	LastContact      time.Time `json:"last_contact"`
	DaysSinceContact int       `json:"days_since_contact"`
	Relationship     string    `json:"relationship"`
	Urgency          int       `json:"urgency"`
}

// Forecast is one day's weather outlook.
type Forecast struct {
	Date                time.Time `json:"date"`
	TemperatureHigh     float64   `json:"temperature_high"`
	TemperatureLow      float64   `json:"temperature_low"`
	Conditions          string    `json:"conditions"`
	PrecipitationChance float64   `json:"precipitation_chance"`
	Description         string    `json:"description"`
}

// ─── Manager ────────────────────────────────────────────────────────────────

// Manager owns a homogeneous list of sources and fans requests out to the
// enabled ones.
type Manager struct {
	sources []Source
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers a source.
func (m *Manager) Add(s Source) {
	m.sources = append(m.sources, s)
}

// Enabled returns the currently enabled sources.
func (m *Manager) Enabled() []Source {
	var out []Source
	for _, s := range m.sources {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the source with the given id, or nil.
func (m *Manager) Get(sourceID string) Source {
	for _, s := range m.sources {
		if s.SourceID() == sourceID {
			return s
		}
	}
	return nil
}

// FetchAll fetches context from every enabled source, skipping failures.
// Output is sorted by priority, highest first.
func (m *Manager) FetchAll(ctx context.Context, start, end time.Time) []ContextData {
	var all []ContextData
	for _, s := range m.Enabled() {
		data, err := s.FetchContext(ctx, start, end)
		if err != nil {
			log.Warn().Str("component", "sources").
				Str("source", s.SourceID()).Err(err).
				Msg("context fetch failed, skipping source")
			continue
		}
		all = append(all, data)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Priority > all[j].Priority
	})
	return all
}
