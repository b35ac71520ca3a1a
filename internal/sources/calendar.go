package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/store"
)

// CalendarSource reads events from the store (populated by calendar sync)
// and derives conflicts and upcoming deadlines.
type CalendarSource struct {
	db  *store.DB
	now func() time.Time
}

// NewCalendarSource creates a calendar source over the given store.
func NewCalendarSource(db *store.DB) *CalendarSource {
	return &CalendarSource{db: db, now: time.Now}
}

func (s *CalendarSource) SourceID() string    { return "calendar" }
func (s *CalendarSource) DisplayName() string { return "Calendar Events" }
func (s *CalendarSource) Enabled() bool       { return s.db != nil }
func (s *CalendarSource) Priority() int       { return 150 }

func (s *CalendarSource) RequiredConfig() []string { return nil }

// FetchContext returns the window's events with conflict and deadline
// summaries attached.
func (s *CalendarSource) FetchContext(_ context.Context, start, end time.Time) (ContextData, error) {
	events, err := s.db.EventsInRange(start, end)
	if err != nil {
		return ContextData{}, domain.Wrap(domain.KindDatabase, "calendar.fetch", err, "read events")
	}

	return ContextData{
		SourceID:  s.SourceID(),
		Timestamp: s.now().UTC(),
		DataType:  TypeCalendar,
		Priority:  s.Priority(),
		Calendar: &CalendarContext{
			Events:            events,
			Conflicts:         conflictSummaries(events),
			UpcomingDeadlines: s.upcomingDeadlines(events),
		},
		Metadata: map[string]string{"source_type": "calendar"},
	}, nil
}

// conflictSummaries renders each overlapping pair as a display string.
func conflictSummaries(events []domain.Event) []string {
	pairs := DetectOverlaps(events)
	conflicts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		conflicts = append(conflicts, fmt.Sprintf(
			"Conflict: '%s' overlaps with '%s'",
			p.First.TitleOrUntitled(), p.Second.TitleOrUntitled(),
		))
	}
	return conflicts
}

// upcomingDeadlines lists events starting within the next 24 hours,
// stably sorted.
func (s *CalendarSource) upcomingDeadlines(events []domain.Event) []string {
	now := s.now().Unix()
	tomorrow := now + 24*3600

	var deadlines []string
	for _, ev := range events {
		if ev.StartTime > now && ev.StartTime <= tomorrow {
			deadlines = append(deadlines, fmt.Sprintf(
				"Tomorrow: '%s' at %s",
				ev.TitleOrUntitled(),
				ev.Start().Format("03:04 PM"),
			))
		}
	}
	sort.Strings(deadlines)
	return deadlines
}
