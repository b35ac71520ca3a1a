package apimanager

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/sources"
)

// ContextHash fingerprints the semantically meaningful fields of the
// current context: event identity and timing plus per-source summaries
// (counts, conflicts, urgencies, conditions). Verbose free text is left
// out so its churn never looks like a context change.
func ContextHash(events []domain.Event, contexts []sources.ContextData) string {
	components := make([]string, 0, len(contexts)+1)
	components = append(components, renderEvents(events))

	for _, ctx := range contexts {
		var summary string
		switch {
		case ctx.Calendar != nil:
			summary = fmt.Sprintf("cal:%d:%s:%s",
				len(ctx.Calendar.Events),
				strings.Join(ctx.Calendar.Conflicts, "|"),
				strings.Join(ctx.Calendar.UpcomingDeadlines, "|"),
			)
		case ctx.Tasks != nil:
			summary = fmt.Sprintf("tasks:%d:%d:%d",
				len(ctx.Tasks.Tasks),
				ctx.Tasks.OverdueCount,
				ctx.Tasks.UpcomingCount,
			)
		case ctx.Notes != nil:
			statuses := make([]string, 0, len(ctx.Notes.ActiveProjects))
			for _, p := range ctx.Notes.ActiveProjects {
				statuses = append(statuses, fmt.Sprintf("%s:%s:%.2f", p.Name, p.Status, p.Progress))
			}
			urgencies := make([]string, 0, len(ctx.Notes.RelationshipAlerts))
			for _, a := range ctx.Notes.RelationshipAlerts {
				urgencies = append(urgencies, fmt.Sprintf("%s:%d", a.PersonName, a.Urgency))
			}
			summary = fmt.Sprintf("notes:%d:%s:%d:%s",
				len(ctx.Notes.DailyNotes),
				strings.Join(statuses, "|"),
				len(ctx.Notes.PendingTasks),
				strings.Join(urgencies, "|"),
			)
		case ctx.Weather != nil:
			summary = fmt.Sprintf("weather:%s:%s",
				ctx.Weather.CurrentConditions,
				strings.Join(ctx.Weather.Alerts, "|"),
			)
		case ctx.Generic != nil:
			summary = fmt.Sprintf("generic:%s:%s", ctx.SourceID, ctx.Generic.Summary)
		}
		components = append(components, ctx.SourceID+":"+summary)
	}

	combined := strings.Join(components, ":")
	return fmt.Sprintf("%x", md5.Sum([]byte(combined)))
}

// renderEvents serializes the hash-relevant event fields.
func renderEvents(events []domain.Event) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		end := int64(0)
		if ev.EndTime != nil {
			end = *ev.EndTime
		}
		location := ""
		if ev.Location != nil {
			location = *ev.Location
		}
		parts = append(parts, fmt.Sprintf("%s|%s|%d|%d|%s|%t",
			ev.SourceID, ev.TitleOrUntitled(), ev.StartTime, end, location, ev.IsAllDay))
	}
	return strings.Join(parts, ";")
}
