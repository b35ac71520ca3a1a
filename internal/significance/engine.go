package significance

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ChangeKind labels one detected difference between two snapshots.
type ChangeKind string

const (
	ChangeInitialContext       ChangeKind = "initial_context"
	ChangeNewCalendarEvent     ChangeKind = "new_calendar_event"
	ChangeCancelledEvent       ChangeKind = "cancelled_calendar_event"
	ChangeEventTimeChanged     ChangeKind = "event_time_changed"
	ChangeEventLocationChanged ChangeKind = "event_location_changed"
	ChangeWeatherCondition     ChangeKind = "weather_condition_changed"
	ChangeWeatherTemperature   ChangeKind = "weather_temperature_changed"
	ChangeNewTask              ChangeKind = "new_task"
	ChangeTaskCompleted        ChangeKind = "task_completed"
	ChangeTaskDueChanged       ChangeKind = "task_due_changed"
)

// Change is one significant difference, with the detail relevant to its
// kind filled in.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	Title     string     `json:"title,omitempty"`    // event or task title
	EventID   string     `json:"event_id,omitempty"` // for time/location changes
	TaskID    string     `json:"task_id,omitempty"`
	HoursDiff float64    `json:"hours_diff,omitempty"`
	TempDiff  int        `json:"temp_diff,omitempty"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
}

func (c Change) String() string {
	switch c.Kind {
	case ChangeNewCalendarEvent, ChangeCancelledEvent, ChangeNewTask, ChangeTaskCompleted:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Title)
	case ChangeEventTimeChanged:
		return fmt.Sprintf("%s(%s, %+.1fh)", c.Kind, c.EventID, c.HoursDiff)
	case ChangeWeatherCondition:
		return fmt.Sprintf("%s(%s→%s)", c.Kind, c.From, c.To)
	case ChangeWeatherTemperature:
		return fmt.Sprintf("%s(%+d)", c.Kind, c.TempDiff)
	default:
		return string(c.Kind)
	}
}

// DefaultMinInterval is the cooldown between two LLM calls, measured from
// the decision instant.
const DefaultMinInterval = 5 * time.Minute

// Engine compares successive context snapshots. Thread-safe; state lives
// behind a single short-critical-section mutex.
type Engine struct {
	mu           sync.Mutex
	lastSnapshot *ContextSnapshot
	lastAICall   *time.Time
	minInterval  time.Duration
	now          func() time.Time // injectable clock for testing
}

// NewEngine creates an engine with the default 5-minute cooldown.
func NewEngine() *Engine {
	return &Engine{
		minInterval: DefaultMinInterval,
		now:         time.Now,
	}
}

// Analyze diffs the new snapshot against the last one and reports whether
// the changes justify an LLM call.
//
// The first snapshot ever seen is significant by definition. Inside the
// cooldown window nothing is reported and the stored snapshot is NOT
// replaced, so the suppressed delta is still visible to the next analysis.
// Outside the window the snapshot is always replaced — even when nothing
// changed — so flapping events cannot accumulate into a phantom diff.
func (e *Engine) Analyze(snapshot ContextSnapshot) (bool, []Change) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastSnapshot == nil {
		log.Info().Str("component", "significance").Msg("initial context detected - significant by default")
		e.lastSnapshot = &snapshot
		return true, []Change{{Kind: ChangeInitialContext}}
	}

	if e.lastAICall != nil {
		elapsed := e.now().Sub(*e.lastAICall)
		if elapsed < e.minInterval {
			log.Debug().Str("component", "significance").
				Dur("since_last_call", elapsed).
				Msg("skipping analysis - inside cooldown")
			return false, nil
		}
	}

	last := e.lastSnapshot
	var changes []Change
	changes = append(changes, diffCalendar(last.CalendarEvents, snapshot.CalendarEvents)...)
	if last.Weather != nil && snapshot.Weather != nil {
		changes = append(changes, diffWeather(*last.Weather, *snapshot.Weather)...)
	}
	changes = append(changes, diffTasks(last.Tasks, snapshot.Tasks)...)

	significant := len(changes) > 0

	// Always track the latest snapshot so the next diff is incremental.
	e.lastSnapshot = &snapshot

	if significant {
		log.Info().Str("component", "significance").
			Int("changes", len(changes)).
			Msg("significant changes detected")
		now := e.now()
		e.lastAICall = &now
	}

	return significant, changes
}

// RecordAICall stamps the cooldown clock for callers that trigger LLM
// calls outside Analyze (heartbeat-driven refreshes).
func (e *Engine) RecordAICall() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.lastAICall = &now
}

// Reset clears all state; the next snapshot is forced significant.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSnapshot = nil
	e.lastAICall = nil
	log.Info().Str("component", "significance").Msg("engine reset - next context will be significant")
}

// ─── Diffing ────────────────────────────────────────────────────────────────

func diffCalendar(old, cur []CalendarEventSummary) []Change {
	oldByID := make(map[string]CalendarEventSummary, len(old))
	for _, ev := range old {
		oldByID[ev.ID] = ev
	}
	curByID := make(map[string]CalendarEventSummary, len(cur))
	for _, ev := range cur {
		curByID[ev.ID] = ev
	}

	var changes []Change
	for _, ev := range cur {
		if _, ok := oldByID[ev.ID]; !ok {
			changes = append(changes, Change{Kind: ChangeNewCalendarEvent, Title: ev.Title})
		}
	}
	for _, ev := range old {
		if _, ok := curByID[ev.ID]; !ok {
			changes = append(changes, Change{Kind: ChangeCancelledEvent, Title: ev.Title})
		}
	}
	for _, ev := range cur {
		prev, ok := oldByID[ev.ID]
		if !ok {
			continue
		}
		hours := ev.StartTime.Sub(prev.StartTime).Minutes() / 60.0
		if math.Abs(hours) > 1.0 {
			changes = append(changes, Change{Kind: ChangeEventTimeChanged, EventID: ev.ID, HoursDiff: hours})
		}
		if !equalStrPtr(prev.Location, ev.Location) {
			changes = append(changes, Change{Kind: ChangeEventLocationChanged, EventID: ev.ID})
		}
	}
	return changes
}

func diffWeather(old, cur WeatherSummary) []Change {
	var changes []Change
	if old.Condition != cur.Condition {
		changes = append(changes, Change{Kind: ChangeWeatherCondition, From: old.Condition, To: cur.Condition})
	}
	if diff := cur.Temperature - old.Temperature; diff > 5 || diff < -5 {
		changes = append(changes, Change{Kind: ChangeWeatherTemperature, TempDiff: diff})
	}
	return changes
}

func diffTasks(old, cur []TaskSummary) []Change {
	oldByID := make(map[string]TaskSummary, len(old))
	for _, t := range old {
		oldByID[t.ID] = t
	}

	var changes []Change
	for _, t := range cur {
		prev, ok := oldByID[t.ID]
		if !ok {
			changes = append(changes, Change{Kind: ChangeNewTask, Title: t.Title})
			continue
		}
		if !prev.Completed && t.Completed {
			changes = append(changes, Change{Kind: ChangeTaskCompleted, Title: t.Title, TaskID: t.ID})
		}
		if prev.Due != nil && t.Due != nil {
			hours := t.Due.Sub(*prev.Due).Minutes() / 60.0
			if math.Abs(hours) > 1.0 {
				changes = append(changes, Change{Kind: ChangeTaskDueChanged, TaskID: t.ID, HoursDiff: hours})
			}
		}
	}
	return changes
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
