package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jasper-companion/jasper/internal/apimanager"
	"github.com/jasper-companion/jasper/internal/calsync"
	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/daemon"
	"github.com/jasper-companion/jasper/internal/ipc"
	"github.com/jasper-companion/jasper/internal/notify"
	"github.com/jasper-companion/jasper/internal/sources"
	"github.com/jasper-companion/jasper/internal/status"
	"github.com/jasper-companion/jasper/internal/store"
)

func init() {
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	log.Info().Str("component", "main").Msg("starting jasper daemon")

	cfg := config.Load()
	cfgStore := config.NewStore(cfg)
	applyConfiguredLogLevel(cfg)

	db, err := store.Open(config.DataDir())
	if err != nil {
		return err
	}
	defer db.Close()

	core := daemon.NewCore(db, buildSourceManager(cfg, db), apimanager.New(), cfgStore)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Calendar sync, scheduled with cron while the daemon runs.
	scheduler := startCalendarSync(ctx, cfg, db)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	// IPC before the loop, so frontends can register during the grace
	// period.
	service, err := ipc.Start(core)
	if err != nil {
		log.Error().Str("component", "main").Err(err).
			Msg("D-Bus service failed to start; frontends cannot connect")
		return err
	}
	defer service.Close()
	core.SetSignalEmitter(service.Emitter())

	if notifier, err := notify.New(); err == nil {
		core.SetNotifier(notifier)
		defer notifier.Close()
	} else {
		log.Warn().Str("component", "main").Err(err).
			Msg("desktop notifications unavailable")
	}

	if cfg.Status.Enabled {
		go status.NewServer(core, cfg.Status.Host, cfg.Status.Port).Run(ctx)
	}

	// SIGINT/SIGTERM and SIGHUP handling: stop gracefully, reload config.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				cfgStore.Reload()
				continue
			}
			log.Info().Str("component", "main").Str("signal", sig.String()).
				Msg("shutdown signal received")
			core.Stop()
			cancel()
			return
		}
	}()

	err = core.Run(ctx)
	log.Info().Str("component", "main").Msg("jasper daemon stopped")
	return err
}

// buildSourceManager registers every configured context source.
func buildSourceManager(cfg config.Config, db *store.DB) *sources.Manager {
	manager := sources.NewManager()
	manager.Add(sources.NewCalendarSource(db))

	if cfg.ContextSources.Obsidian.Enabled {
		src := sources.NewNotesSource(cfg.ContextSources.Obsidian)
		manager.Add(src)
		log.Info().Str("component", "main").
			Str("vault", cfg.ContextSources.Obsidian.VaultPath).
			Bool("enabled", src.Enabled()).Msg("notes source registered")
	}
	if cfg.ContextSources.Weather.Enabled {
		manager.Add(sources.NewWeatherSource(cfg.ContextSources.Weather))
		log.Info().Str("component", "main").
			Str("location", cfg.ContextSources.Weather.Location).
			Msg("weather source registered")
	}
	if cfg.ContextSources.Tasks.Enabled {
		manager.Add(sources.NewTasksSource(cfg.ContextSources.Tasks))
		log.Info().Str("component", "main").
			Str("backend", cfg.ContextSources.Tasks.SourceType).
			Msg("tasks source registered")
	}
	return manager
}

// startCalendarSync runs an initial sync and schedules periodic passes.
// Returns nil when calendar sync is not configured.
func startCalendarSync(ctx context.Context, cfg config.Config, db *store.DB) *cron.Cron {
	gc := cfg.GoogleCalendar
	if !gc.Enabled || gc.ClientID == "" || gc.ClientSecret == "" {
		log.Debug().Str("component", "main").Msg("calendar sync not configured")
		return nil
	}

	syncer := newSyncer(cfg, db)
	if !syncer.Authenticated() {
		log.Warn().Str("component", "main").
			Msg("Google Calendar not authenticated; run 'jasper auth-google'")
	}

	runSync := func() {
		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := syncer.Sync(syncCtx); err != nil {
			log.Warn().Str("component", "main").Err(err).Msg("calendar sync failed")
		}
	}
	go runSync()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SyncInterval(), runSync); err != nil {
		log.Warn().Str("component", "main").Err(err).Msg("sync schedule rejected")
		return nil
	}
	scheduler.Start()
	log.Info().Str("component", "main").Str("schedule", cfg.SyncInterval()).
		Msg("calendar sync scheduled")
	return scheduler
}

func newSyncer(cfg config.Config, db *store.DB) *calsync.Syncer {
	service := calsync.NewService(calsync.Config{
		ClientID:     cfg.GoogleCalendar.ClientID,
		ClientSecret: cfg.GoogleCalendar.ClientSecret,
		RedirectURI:  cfg.GoogleCalendar.RedirectURI,
		CalendarIDs:  cfg.GoogleCalendar.CalendarIDs,
	}, config.DataDir())
	return calsync.NewSyncer(service, db, cfg.PlanningHorizon())
}

// applyConfiguredLogLevel lowers or raises the global level from config
// unless --debug already forced debug.
func applyConfiguredLogLevel(cfg config.Config) {
	if debugFlag {
		return
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.General.LogLevel)); err == nil {
		log.Logger = log.Logger.Level(level)
	}
}
