package significance

import (
	"testing"
	"time"
)

func newTestEngine(t *testing.T, now func() time.Time) *Engine {
	t.Helper()
	e := NewEngine()
	if now != nil {
		e.now = now
	}
	return e
}

func snapshotWith(events []CalendarEventSummary, weather *WeatherSummary, tasks []TaskSummary) ContextSnapshot {
	return ContextSnapshot{
		CalendarEvents: events,
		Weather:        weather,
		Tasks:          tasks,
		Timestamp:      time.Now().UTC(),
		ContextHash:    "test",
	}
}

func TestAnalyze_InitialContextIsSignificant(t *testing.T) {
	e := newTestEngine(t, nil)

	significant, changes := e.Analyze(snapshotWith(nil, nil, nil))
	if !significant {
		t.Fatal("first snapshot should be significant")
	}
	if len(changes) != 1 || changes[0].Kind != ChangeInitialContext {
		t.Errorf("changes = %v, want [initial_context]", changes)
	}
}

func TestAnalyze_NewCalendarEvent(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	e.Analyze(snapshotWith(nil, nil, nil))
	clock = clock.Add(10 * time.Minute) // past the cooldown

	ev := CalendarEventSummary{ID: "e1", Title: "Dentist", StartTime: clock.Add(2 * time.Hour)}
	significant, changes := e.Analyze(snapshotWith([]CalendarEventSummary{ev}, nil, nil))
	if !significant {
		t.Fatal("new event should be significant")
	}
	found := false
	for _, c := range changes {
		if c.Kind == ChangeNewCalendarEvent && c.Title == "Dentist" {
			found = true
		}
	}
	if !found {
		t.Errorf("changes = %v, want new_calendar_event(Dentist)", changes)
	}
}

func TestAnalyze_SmallTimeShiftNotSignificant(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	ev := CalendarEventSummary{ID: "e1", Title: "Meeting", StartTime: clock.Add(2 * time.Hour)}
	e.Analyze(snapshotWith([]CalendarEventSummary{ev}, nil, nil))
	clock = clock.Add(10 * time.Minute)

	shifted := ev
	shifted.StartTime = ev.StartTime.Add(30 * time.Minute)
	significant, changes := e.Analyze(snapshotWith([]CalendarEventSummary{shifted}, nil, nil))
	if significant {
		t.Errorf("30-minute shift should not be significant, got %v", changes)
	}
}

func TestAnalyze_LargeTimeShiftSignificant(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	ev := CalendarEventSummary{ID: "e1", Title: "Meeting", StartTime: clock.Add(2 * time.Hour)}
	e.Analyze(snapshotWith([]CalendarEventSummary{ev}, nil, nil))
	clock = clock.Add(10 * time.Minute)

	shifted := ev
	shifted.StartTime = ev.StartTime.Add(90 * time.Minute)
	significant, changes := e.Analyze(snapshotWith([]CalendarEventSummary{shifted}, nil, nil))
	if !significant {
		t.Fatal("90-minute shift should be significant")
	}
	if changes[0].Kind != ChangeEventTimeChanged || changes[0].EventID != "e1" {
		t.Errorf("changes = %v, want event_time_changed(e1)", changes)
	}
}

func TestAnalyze_CooldownSkipsAndPreservesSnapshot(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	// The initial snapshot does not stamp the cooldown; the first
	// diff-path significant change does.
	e.Analyze(snapshotWith(nil, nil, nil))
	ev1 := CalendarEventSummary{ID: "e1", Title: "Dentist", StartTime: clock.Add(2 * time.Hour)}
	significant, _ := e.Analyze(snapshotWith([]CalendarEventSummary{ev1}, nil, nil))
	if !significant {
		t.Fatal("new event after initial context should be significant")
	}

	// One minute later a second event appears. Inside the cooldown
	// window: skipped, and the stored snapshot must remain {e1}.
	clock = clock.Add(time.Minute)
	ev2 := CalendarEventSummary{ID: "e2", Title: "Standup", StartTime: clock.Add(time.Hour)}
	both := []CalendarEventSummary{ev1, ev2}
	significant, changes := e.Analyze(snapshotWith(both, nil, nil))
	if significant || len(changes) != 0 {
		t.Fatalf("analysis inside cooldown should return (false, nil), got (%v, %v)", significant, changes)
	}

	// After the cooldown elapses e2 must still read as new, because the
	// skipped snapshot was not stored.
	clock = clock.Add(10 * time.Minute)
	significant, changes = e.Analyze(snapshotWith(both, nil, nil))
	if !significant {
		t.Fatal("event should still be significant after cooldown")
	}
	if changes[0].Kind != ChangeNewCalendarEvent || changes[0].Title != "Standup" {
		t.Errorf("changes = %v, want new_calendar_event(Standup)", changes)
	}
}

func TestAnalyze_CooldownMeasuredFromDecision(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	e.Analyze(snapshotWith(nil, nil, nil))

	// First diff-path change stamps the cooldown at the decision instant.
	ev := CalendarEventSummary{ID: "e1", Title: "X", StartTime: clock.Add(time.Hour)}
	if significant, _ := e.Analyze(snapshotWith([]CalendarEventSummary{ev}, nil, nil)); !significant {
		t.Fatal("diff-path change should be significant")
	}
	decision := clock

	// Just before the 5-minute mark: still suppressed.
	clock = decision.Add(5*time.Minute - time.Second)
	ev2 := CalendarEventSummary{ID: "e2", Title: "Y", StartTime: clock.Add(time.Hour)}
	grown := []CalendarEventSummary{ev, ev2}
	if significant, _ := e.Analyze(snapshotWith(grown, nil, nil)); significant {
		t.Error("analysis 1s before cooldown expiry should be suppressed")
	}

	// At the mark: allowed again.
	clock = decision.Add(5 * time.Minute)
	if significant, _ := e.Analyze(snapshotWith(grown, nil, nil)); !significant {
		t.Error("analysis at cooldown expiry should run")
	}
}

func TestAnalyze_WeatherChanges(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	e.Analyze(snapshotWith(nil, &WeatherSummary{Condition: "Clear", Temperature: 70, FeelsLike: 70}, nil))
	clock = clock.Add(10 * time.Minute)

	significant, changes := e.Analyze(snapshotWith(nil, &WeatherSummary{Condition: "Thunderstorm", Temperature: 62, FeelsLike: 60}, nil))
	if !significant {
		t.Fatal("condition change plus 8° drop should be significant")
	}
	kinds := map[ChangeKind]bool{}
	for _, c := range changes {
		kinds[c.Kind] = true
	}
	if !kinds[ChangeWeatherCondition] || !kinds[ChangeWeatherTemperature] {
		t.Errorf("changes = %v, want condition and temperature changes", changes)
	}
}

func TestAnalyze_SmallTemperatureChangeIgnored(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	e.Analyze(snapshotWith(nil, &WeatherSummary{Condition: "Clear", Temperature: 70, FeelsLike: 70}, nil))
	clock = clock.Add(10 * time.Minute)

	significant, _ := e.Analyze(snapshotWith(nil, &WeatherSummary{Condition: "Clear", Temperature: 75, FeelsLike: 74}, nil))
	if significant {
		t.Error("a 5° change is at the threshold and should not trigger")
	}
}

func TestAnalyze_TaskCompleted(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	task := TaskSummary{ID: "t1", Title: "File taxes"}
	e.Analyze(snapshotWith(nil, nil, []TaskSummary{task}))
	clock = clock.Add(10 * time.Minute)

	task.Completed = true
	significant, changes := e.Analyze(snapshotWith(nil, nil, []TaskSummary{task}))
	if !significant {
		t.Fatal("task completion should be significant")
	}
	if changes[0].Kind != ChangeTaskCompleted || changes[0].Title != "File taxes" {
		t.Errorf("changes = %v, want task_completed(File taxes)", changes)
	}
}

func TestReset_ForcesNextSignificant(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	e.Analyze(snapshotWith(nil, nil, nil))
	e.Reset()

	// Immediately after reset, even inside what was the cooldown window,
	// the next snapshot is initial context again.
	significant, changes := e.Analyze(snapshotWith(nil, nil, nil))
	if !significant || changes[0].Kind != ChangeInitialContext {
		t.Errorf("after Reset, got (%v, %v), want initial context", significant, changes)
	}
}

func TestRecordAICall_StartsCooldown(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, func() time.Time { return clock })

	e.Analyze(snapshotWith(nil, nil, nil))
	clock = clock.Add(10 * time.Minute)
	e.RecordAICall()

	ev := CalendarEventSummary{ID: "e1", Title: "X", StartTime: clock}
	clock = clock.Add(time.Minute)
	if significant, _ := e.Analyze(snapshotWith([]CalendarEventSummary{ev}, nil, nil)); significant {
		t.Error("RecordAICall should suppress analysis inside the cooldown")
	}
}
