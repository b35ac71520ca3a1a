// Package daemon implements the Jasper control loop: collect context,
// hash it, ask the significance engine whether it is worth an LLM call,
// and if so generate, persist and announce a new insight.
package daemon

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/apimanager"
	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/metrics"
	"github.com/jasper-companion/jasper/internal/significance"
	"github.com/jasper-companion/jasper/internal/sources"
	"github.com/jasper-companion/jasper/internal/store"
)

const (
	// DefaultCheckInterval is the cadence of the analysis loop.
	DefaultCheckInterval = 60 * time.Second

	// startupGrace gives frontends time to connect before the first
	// liveness check.
	startupGrace = 5 * time.Second

	// frontendRecheckDelay is the second chance before an idle exit.
	frontendRecheckDelay = 3 * time.Second

	// contextWindow is how far ahead the loop reads calendar events.
	contextWindow = 24 * time.Hour

	// notifyKillSwitch disables daemon-side desktop notifications when a
	// frontend already owns that UX.
	notifyKillSwitch = "JASPER_DISABLE_DAEMON_NOTIFICATIONS"
)

// Fallback insight served when quota or the circuit breaker blocks the
// LLM. It is stored and announced like a real one.
const (
	fallbackEmoji       = "⏳"
	fallbackInsightText = "Rate limited - check back later for fresh insights"
)

// SignalEmitter pushes bus signals to connected frontends. Wired in after
// the IPC connection is up.
type SignalEmitter interface {
	EmitInsightUpdated(insightID int64, emoji, preview string) error
	EmitDaemonStopping() error
}

// Notifier shows a desktop notification for a fresh insight.
type Notifier interface {
	Notify(summary, body string, timeoutMs int) error
}

// Core is the daemon's long-lived control loop and the backing object for
// every IPC method.
type Core struct {
	db        *store.DB
	engine    *significance.Engine
	manager   *sources.Manager
	api       *apimanager.Manager
	cfg       *config.Store
	llm       *anthropicClient
	notifier  Notifier

	checkInterval time.Duration
	grace         time.Duration
	recheckDelay  time.Duration

	mu      sync.Mutex
	running bool
	emitter SignalEmitter

	now func() time.Time
}

// NewCore wires the daemon from its collaborators.
func NewCore(db *store.DB, manager *sources.Manager, api *apimanager.Manager, cfg *config.Store) *Core {
	return &Core{
		db:            db,
		engine:        significance.NewEngine(),
		manager:       manager,
		api:           api,
		cfg:           cfg,
		llm:           newAnthropicClient(),
		checkInterval: DefaultCheckInterval,
		grace:         startupGrace,
		recheckDelay:  frontendRecheckDelay,
		now:           time.Now,
	}
}

// SetSignalEmitter installs the bus signal emitter once IPC is connected.
func (c *Core) SetSignalEmitter(emitter SignalEmitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitter = emitter
}

// SetNotifier installs the desktop notifier.
func (c *Core) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// Running reports whether the loop is active.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stop asks the loop to exit at its next iteration.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Info().Str("component", "daemon").Msg("stop requested")
	c.running = false
}

// Run drives the control loop until Stop, context cancellation, or an
// idle exit when no frontend is listening.
func (c *Core) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		log.Warn().Str("component", "daemon").Msg("daemon already running")
		return nil
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		log.Info().Str("component", "daemon").Msg("daemon core stopped")
	}()

	log.Info().Str("component", "daemon").Msg("starting daemon core, waiting for frontends to connect")
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(c.grace):
	}

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		if !c.Running() {
			return nil
		}

		alive, err := c.db.HasActiveFrontends()
		if err != nil {
			log.Error().Str("component", "daemon").Err(err).Msg("frontend liveness check failed")
			alive = true // never idle-exit on a store hiccup
		}
		if !alive {
			log.Info().Str("component", "daemon").Msg("no active frontends, rechecking before idle exit")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.recheckDelay):
			}
			stillAlive, err := c.db.HasActiveFrontends()
			if err == nil && !stillAlive {
				log.Info().Str("component", "daemon").Msg("no frontends after grace period, exiting")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := c.CheckAndAnalyze(ctx); err != nil {
			log.Error().Str("component", "daemon").Err(err).Msg("context check failed")
		}
	}
}

// ForceRefresh runs one synchronous analysis iteration.
func (c *Core) ForceRefresh(ctx context.Context) error {
	log.Info().Str("component", "daemon").Msg("forcing immediate context refresh")
	return c.CheckAndAnalyze(ctx)
}

// ResetSignificance clears diff state; the next snapshot is forced
// significant.
func (c *Core) ResetSignificance() {
	c.engine.Reset()
}

// CheckAndAnalyze is one loop iteration: collect → decide → call → persist
// → announce.
func (c *Core) CheckAndAnalyze(ctx context.Context) error {
	metrics.ContextChecks.Inc()

	snapshot, err := c.collectContext(ctx)
	if err != nil {
		return err
	}

	significant, changes := c.engine.Analyze(*snapshot)
	if !significant {
		log.Debug().Str("component", "daemon").Msg("no significant changes")
		return nil
	}
	metrics.SignificantChanges.Inc()
	log.Info().Str("component", "daemon").
		Int("changes", len(changes)).
		Str("hash", snapshot.ContextHash).
		Msg("significant changes detected, generating insight")

	insight, err := c.generateInsight(ctx, snapshot)
	if err != nil {
		// Quota and breaker denials become the fallback insight; any
		// other failure skips this iteration without storing anything.
		if domain.KindOf(err) == domain.KindServiceUnavailable {
			log.Warn().Str("component", "daemon").Err(err).Msg("LLM blocked, storing fallback insight")
			metrics.LLMCalls.WithLabelValues("blocked").Inc()
			insight = aiInsight{
				Emoji:       fallbackEmoji,
				Text:        fallbackInsightText,
				ContextHash: snapshot.ContextHash,
			}
		} else {
			metrics.LLMCalls.WithLabelValues("error").Inc()
			return err
		}
	}

	insightID, err := c.db.StoreInsight(insight.Emoji, insight.Text, insight.ContextHash)
	if err != nil {
		return domain.Wrap(domain.KindDatabase, "daemon", err, "store insight")
	}
	metrics.InsightsStored.Inc()
	log.Info().Str("component", "daemon").Int64("insight_id", insightID).Msg("stored new insight")

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		snapshotJSON = []byte("{}")
	}
	if _, err := c.db.StoreContextSnapshot(insightID, "combined", string(snapshotJSON), ""); err != nil {
		log.Warn().Str("component", "daemon").Err(err).Msg("context snapshot store failed")
	}

	c.emitInsightSignal(insightID, insight.Emoji, insight.Text)
	c.notifyDesktop(insight.Emoji, insight.Text)
	return nil
}

// collectContext assembles the current snapshot: stored events for the
// next 24 hours enriched with live source data, then hashed.
func (c *Core) collectContext(ctx context.Context) (*significance.ContextSnapshot, error) {
	now := c.now().UTC()
	end := now.Add(contextWindow)

	events, err := c.db.EventsInRange(now, end)
	if err != nil {
		return nil, domain.Wrap(domain.KindDatabase, "daemon", err, "read events")
	}

	summaries := make([]significance.CalendarEventSummary, 0, len(events))
	for _, ev := range events {
		summary := significance.CalendarEventSummary{
			ID:        ev.SourceID,
			Title:     ev.TitleOrUntitled(),
			StartTime: ev.Start(),
			Location:  ev.Location,
			IsAllDay:  ev.IsAllDay,
		}
		if end, ok := ev.End(); ok {
			summary.EndTime = &end
		}
		summaries = append(summaries, summary)
	}

	contextData := c.manager.FetchAll(ctx, now, end)

	snapshot := significance.ContextSnapshot{
		CalendarEvents: summaries,
		Timestamp:      now,
		ContextHash:    apimanager.ContextHash(events, contextData),
	}

	for _, data := range contextData {
		switch {
		case data.Weather != nil:
			snapshot.WeatherContext = data.Weather
			if len(data.Weather.Forecast) > 0 {
				first := data.Weather.Forecast[0]
				snapshot.Weather = &significance.WeatherSummary{
					Condition:   first.Conditions,
					Temperature: int(first.TemperatureHigh),
					FeelsLike:   int(first.TemperatureHigh),
				}
			}
		case data.Tasks != nil:
			for _, t := range data.Tasks.Tasks {
				snapshot.Tasks = append(snapshot.Tasks, significance.TaskSummary{
					ID:        t.ID,
					Title:     t.Title,
					Due:       t.DueDate,
					Completed: t.Status == sources.TaskCompleted,
				})
			}
		case data.Notes != nil:
			snapshot.NotesContext = data.Notes
			for _, t := range data.Notes.PendingTasks {
				snapshot.Tasks = append(snapshot.Tasks, significance.TaskSummary{
					ID:        t.ID,
					Title:     t.Title,
					Due:       t.DueDate,
					Completed: t.Status == sources.TaskCompleted,
				})
			}
		}
	}

	return &snapshot, nil
}

// generateInsight runs the guarded LLM call for a snapshot.
func (c *Core) generateInsight(ctx context.Context, snapshot *significance.ContextSnapshot) (aiInsight, error) {
	cfg := c.cfg.Snapshot()
	request := buildRequest(cfg, snapshot)

	type callResult struct {
		insight aiInsight
		tokens  uint64
	}
	result, err := apimanager.ExecuteWithRetry(ctx, c.api, "anthropic", func() (callResult, error) {
		insight, tokens, err := c.llm.send(ctx, cfg.APIKey(), request, snapshot.ContextHash)
		return callResult{insight, tokens}, err
	})
	if err != nil {
		return aiInsight{}, err
	}

	c.api.RecordAPICall(result.tokens)
	c.api.CacheInsight(result.insight.Text)
	metrics.LLMCalls.WithLabelValues("ok").Inc()
	metrics.LLMTokens.Add(float64(result.tokens))
	return result.insight, nil
}

func (c *Core) emitInsightSignal(insightID int64, emoji, preview string) {
	c.mu.Lock()
	emitter := c.emitter
	c.mu.Unlock()

	if emitter == nil {
		log.Debug().Str("component", "daemon").Msg("signal emitter not initialized, skipping signal")
		return
	}
	if err := emitter.EmitInsightUpdated(insightID, emoji, preview); err != nil {
		log.Warn().Str("component", "daemon").Err(err).Msg("InsightUpdated signal failed")
	}
}

func (c *Core) notifyDesktop(emoji, text string) {
	if os.Getenv(notifyKillSwitch) == "true" {
		return
	}

	cfg := c.cfg.Snapshot()
	if !cfg.Notifications.Enabled || !cfg.Notifications.NotifyNewInsights {
		return
	}

	c.mu.Lock()
	notifier := c.notifier
	c.mu.Unlock()
	if notifier == nil {
		return
	}
	if err := notifier.Notify(emoji+" Jasper", text, cfg.Notifications.NotificationTimeout); err != nil {
		log.Debug().Str("component", "daemon").Err(err).Msg("desktop notification failed")
	}
}

// ─── IPC-facing accessors ───────────────────────────────────────────────────

// LatestInsight returns the newest stored insight, or nil.
func (c *Core) LatestInsight() (*domain.Insight, error) {
	return c.db.LatestInsight()
}

// InsightByID returns a stored insight by id, or nil.
func (c *Core) InsightByID(id int64) (*domain.Insight, error) {
	return c.db.InsightByID(id)
}

// RegisterFrontend records a frontend as live.
func (c *Core) RegisterFrontend(frontendID string, pid *int) error {
	log.Info().Str("component", "daemon").Str("frontend", frontendID).Msg("registering frontend")
	metrics.FrontendRegistrations.Inc()
	return c.db.RegisterFrontend(frontendID, pid)
}

// UnregisterFrontend removes a frontend record.
func (c *Core) UnregisterFrontend(frontendID string) error {
	log.Info().Str("component", "daemon").Str("frontend", frontendID).Msg("unregistering frontend")
	return c.db.UnregisterFrontend(frontendID)
}

// Heartbeat refreshes a frontend's liveness window.
func (c *Core) Heartbeat(frontendID string) error {
	return c.db.UpdateHeartbeat(frontendID)
}

// Status is the IPC status snapshot.
type Status struct {
	Running         bool
	ActiveFrontends int
	InsightsCount   int64
}

// GetStatus reports loop state, live frontend count and total insights.
func (c *Core) GetStatus() (Status, error) {
	frontends, err := c.db.ActiveFrontends()
	if err != nil {
		return Status{}, err
	}
	count, err := c.db.InsightCount()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:         c.Running(),
		ActiveFrontends: len(frontends),
		InsightsCount:   count,
	}, nil
}

// EmitStopping announces shutdown to frontends, best effort.
func (c *Core) EmitStopping() {
	c.mu.Lock()
	emitter := c.emitter
	c.mu.Unlock()
	if emitter == nil {
		return
	}
	if err := emitter.EmitDaemonStopping(); err != nil {
		log.Debug().Str("component", "daemon").Err(err).Msg("DaemonStopping signal failed")
	}
}
