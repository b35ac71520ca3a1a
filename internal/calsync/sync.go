package calsync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/metrics"
	"github.com/jasper-companion/jasper/internal/store"
)

// Syncer pulls events from the calendar service into the store.
type Syncer struct {
	service *Service
	db      *store.DB
	horizon time.Duration
	now     func() time.Time
}

// NewSyncer creates a syncer with the given look-ahead window.
func NewSyncer(service *Service, db *store.DB, horizon time.Duration) *Syncer {
	return &Syncer{
		service: service,
		db:      db,
		horizon: horizon,
		now:     time.Now,
	}
}

// Sync performs one full sync pass: fetch events for the planning horizon,
// resolve calendar metadata, upsert calendars and bulk-ingest events.
// Token refresh happens inside the service as needed.
func (s *Syncer) Sync(ctx context.Context) error {
	now := s.now().UTC()
	end := now.Add(s.horizon)

	log.Info().Str("component", "calsync").
		Time("from", now).Time("to", end).Msg("syncing Google Calendar events")

	byCalendar, err := s.service.FetchEvents(ctx, now, end)
	if err != nil {
		return err
	}

	total := 0
	for _, group := range byCalendar {
		total += len(group.Events)
	}
	log.Info().Str("component", "calsync").Int("events", total).Msg("fetched events, storing")

	for _, group := range byCalendar {
		if err := s.storeCalendarEvents(ctx, group); err != nil {
			return err
		}
	}

	metrics.SyncRuns.Inc()
	return nil
}

// storeCalendarEvents resolves one calendar's metadata, upserts the
// calendar row and ingests the events under its internal id.
func (s *Syncer) storeCalendarEvents(ctx context.Context, group CalendarEvents) error {
	externalID, name, err := s.service.CalendarMetadata(ctx, group.CalendarID)
	if err != nil {
		log.Warn().Str("component", "calsync").Str("calendar", group.CalendarID).Err(err).
			Msg("metadata lookup failed, using calendar id as name")
		externalID, name = group.CalendarID, group.CalendarID
	}

	calType := domain.InferCalendarType(externalID, name)
	internalID, err := s.db.CreateOrUpdateCalendar(externalID, name, calType)
	if err != nil {
		return domain.Wrap(domain.KindDatabase, "calsync", err, "upsert calendar")
	}

	log.Debug().Str("component", "calsync").
		Str("calendar", name).Int64("internal_id", internalID).
		Str("type", string(calType)).Msg("calendar mapped")

	events := make([]domain.Event, len(group.Events))
	copy(events, group.Events)
	for i := range events {
		events[i].CalendarID = internalID
	}
	if len(events) == 0 {
		return nil
	}

	ids, err := s.db.CreateEventsBulk(events)
	if err == nil {
		if len(ids) != len(events) {
			log.Debug().Str("component", "calsync").
				Int("skipped", len(events)-len(ids)).Msg("events already existed")
		}
		return nil
	}

	// Bulk path failed; insert row by row so one bad event cannot block
	// the rest.
	log.Warn().Str("component", "calsync").Err(err).
		Msg("bulk insert failed, falling back to per-row inserts")
	for _, ev := range events {
		existing, err := s.db.EventBySourceID(ev.SourceID)
		if err != nil {
			return domain.Wrap(domain.KindDatabase, "calsync", err, "lookup event")
		}
		if existing != nil {
			continue
		}
		if _, err := s.db.CreateEvent(ev); err != nil {
			log.Warn().Str("component", "calsync").Str("event", ev.SourceID).Err(err).
				Msg("event insert failed")
		}
	}
	return nil
}

// Authenticated reports whether the underlying service holds a usable
// token.
func (s *Syncer) Authenticated() bool {
	return s.service.IsAuthenticated()
}
