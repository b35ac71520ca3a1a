// Package config holds the daemon configuration: a typed aggregate loaded
// from TOML with a secret overlay, published process-wide as an immutable
// snapshot behind an atomic pointer. Callers read a cheap copy and never
// mutate fields in place; a reload swaps the whole snapshot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/secrets"
)

// Config is the full daemon configuration.
type Config struct {
	General        GeneralConfig        `toml:"general"`
	AI             AIConfig             `toml:"ai"`
	Insights       InsightsConfig       `toml:"insights"`
	Personality    PersonalityConfig    `toml:"personality"`
	GoogleCalendar GoogleCalendarConfig `toml:"google_calendar"`
	CalendarOwners map[string]string    `toml:"calendar_owners"`
	ContextSources ContextSourcesConfig `toml:"context_sources"`
	Notifications  NotificationConfig   `toml:"notifications"`
	Status         StatusConfig         `toml:"status"`
}

// GeneralConfig controls daemon-wide behavior.
type GeneralConfig struct {
	PlanningHorizonDays int    `toml:"planning_horizon_days"`
	AnalysisInterval    int    `toml:"analysis_interval"` // minutes
	LogLevel            string `toml:"log_level"`
	Timezone            string `toml:"timezone"`
}

// AIConfig controls the LLM provider.
type AIConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	APIKey      string  `toml:"api_key"`
}

// InsightsConfig holds insight thresholds and delivery limits.
type InsightsConfig struct {
	HighUrgencyDays   int    `toml:"high_urgency_days"`
	MediumUrgencyDays int    `toml:"medium_urgency_days"`
	MaxInsightsPerDay int    `toml:"max_insights_per_day"`
	QuietHoursStart   string `toml:"quiet_hours_start"`
	QuietHoursEnd     string `toml:"quiet_hours_end"`
}

// PersonalityConfig shapes how insights address the user.
type PersonalityConfig struct {
	UserTitle          string `toml:"user_title"`
	Formality          string `toml:"formality"`   // formal, balanced, casual
	HumorLevel         string `toml:"humor_level"` // none, occasional, frequent
	AssistantPersona   string `toml:"assistant_persona"`
	ChildcareHelperTerm string `toml:"childcare_helper_term"`
}

// GoogleCalendarConfig controls calendar sync.
type GoogleCalendarConfig struct {
	Enabled             bool     `toml:"enabled"`
	ClientID            string   `toml:"client_id"`
	ClientSecret        string   `toml:"client_secret"`
	RedirectURI         string   `toml:"redirect_uri"`
	CalendarIDs         []string `toml:"calendar_ids"`
	SyncIntervalMinutes int      `toml:"sync_interval_minutes"`
}

// ContextSourcesConfig gathers the per-source settings.
type ContextSourcesConfig struct {
	Obsidian ObsidianConfig `toml:"obsidian"`
	Weather  WeatherConfig  `toml:"weather"`
	Tasks    TasksConfig    `toml:"tasks"`
}

// ObsidianConfig points at the notes vault.
type ObsidianConfig struct {
	Enabled               bool     `toml:"enabled"`
	VaultPath             string   `toml:"vault_path"`
	DailyNotesFolder      string   `toml:"daily_notes_folder"`
	PeopleFolder          string   `toml:"people_folder"`
	ProjectsFolder        string   `toml:"projects_folder"`
	RelationshipAlertDays int      `toml:"relationship_alert_days"`
	IgnoredFolders        []string `toml:"ignored_folders"`
}

// WeatherConfig controls the OpenWeatherMap source.
type WeatherConfig struct {
	Enabled              bool   `toml:"enabled"`
	APIKey               string `toml:"api_key"`
	Location             string `toml:"location"`
	Units                string `toml:"units"` // metric, imperial, kelvin
	CacheDurationMinutes int    `toml:"cache_duration_minutes"`
}

// TasksConfig controls the tasks source.
type TasksConfig struct {
	Enabled       bool   `toml:"enabled"`
	SourceType    string `toml:"source_type"` // todoist, local_file
	APIKey        string `toml:"api_key"`
	FilePath      string `toml:"file_path"`
	SyncCompleted bool   `toml:"sync_completed"`
	MaxTasks      int    `toml:"max_tasks"`
}

// NotificationConfig controls daemon-side desktop notifications.
type NotificationConfig struct {
	Enabled             bool `toml:"enabled"`
	NotifyNewInsights   bool `toml:"notify_new_insights"`
	NotificationTimeout int  `toml:"notification_timeout"` // milliseconds
	MinUrgencyThreshold int  `toml:"min_urgency_threshold"`
}

// StatusConfig controls the local status HTTP endpoint.
type StatusConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		General: GeneralConfig{
			PlanningHorizonDays: 7,
			AnalysisInterval:    30,
			LogLevel:            "info",
			Timezone:            "UTC",
		},
		AI: AIConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
		Insights: InsightsConfig{
			HighUrgencyDays:   2,
			MediumUrgencyDays: 5,
			MaxInsightsPerDay: 10,
			QuietHoursStart:   "22:00",
			QuietHoursEnd:     "08:00",
		},
		Personality: PersonalityConfig{
			UserTitle:           "Sir",
			Formality:           "balanced",
			HumorLevel:          "occasional",
			AssistantPersona:    "trusted family assistant",
			ChildcareHelperTerm: "Helper Day",
		},
		GoogleCalendar: GoogleCalendarConfig{
			RedirectURI:         "http://localhost:8080/auth/callback",
			CalendarIDs:         []string{"primary"},
			SyncIntervalMinutes: 15,
		},
		ContextSources: ContextSourcesConfig{
			Obsidian: ObsidianConfig{
				VaultPath:             "~/Documents/Obsidian Vault",
				DailyNotesFolder:      "Work/Daily",
				PeopleFolder:          "Work/People",
				ProjectsFolder:        "Work/Projects",
				RelationshipAlertDays: 21,
				IgnoredFolders:        []string{".obsidian", ".trash"},
			},
			Weather: WeatherConfig{
				Location:             "Detroit, MI",
				Units:                "imperial",
				CacheDurationMinutes: 30,
			},
			Tasks: TasksConfig{
				SourceType:    "todoist",
				SyncCompleted: true,
				MaxTasks:      100,
			},
		},
		Notifications: NotificationConfig{
			Enabled:             true,
			NotifyNewInsights:   true,
			NotificationTimeout: 5000,
			MinUrgencyThreshold: 3,
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 7531,
		},
	}
}

// ─── Paths ──────────────────────────────────────────────────────────────────

// ConfigPath returns <config_dir>/jasper-companion/config.toml.
func ConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "jasper-companion", "config.toml")
}

// DataDir returns the per-user data directory for the daemon's store,
// token cache and logs.
func DataDir() string {
	if env := os.Getenv("JASPER_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "jasper-companion")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "jasper-companion")
}

// ─── Load / Save ────────────────────────────────────────────────────────────

// Load reads the on-disk config (writing defaults when the file is
// missing) and overlays decrypted secrets. Failures yield defaults rather
// than aborting the daemon.
func Load() Config {
	cfg := Default()
	path := ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("component", "config").Str("path", path).
			Msg("config file not found, writing defaults")
		if err := Save(cfg); err != nil {
			log.Warn().Str("component", "config").Err(err).Msg("default config write failed")
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		log.Warn().Str("component", "config").Err(err).
			Msg("config parse failed, using defaults")
		cfg = Default()
	}

	applySecrets(&cfg, secrets.Load())
	return cfg
}

// Save writes the config to its standard path.
func Save(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// applySecrets overlays well-known secret keys onto configured values.
func applySecrets(cfg *Config, s *secrets.Secrets) {
	if v, ok := s.Get(secrets.KeyClaudeAPI); ok {
		cfg.AI.APIKey = v
	}
	if v, ok := s.Get(secrets.KeyGoogleCalendarSecret); ok {
		cfg.GoogleCalendar.ClientSecret = v
	}
	if v, ok := s.Get(secrets.KeyOpenWeatherMap); ok {
		cfg.ContextSources.Weather.APIKey = v
	}
	if v, ok := s.Get(secrets.KeyTodoist); ok {
		cfg.ContextSources.Tasks.APIKey = v
	}
}

// ─── Snapshot handle ────────────────────────────────────────────────────────

// Store publishes an immutable Config snapshot. Snapshot() is a cheap
// pointer load; Reload() re-reads disk plus secrets and swaps atomically.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store holding the given initial snapshot.
func NewStore(cfg Config) *Store {
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

// Snapshot returns the current configuration snapshot. The returned value
// must be treated as read-only.
func (s *Store) Snapshot() Config {
	return *s.current.Load()
}

// Replace swaps in a new snapshot.
func (s *Store) Replace(cfg Config) {
	s.current.Store(&cfg)
}

// Reload re-reads the on-disk config plus secret overlay and replaces the
// in-memory snapshot. Best effort: parse failures keep the old snapshot.
func (s *Store) Reload() {
	path := ConfigPath()
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		log.Warn().Str("component", "config").Err(err).Msg("reload failed, keeping current snapshot")
		return
	}
	applySecrets(&cfg, secrets.Load())
	s.Replace(cfg)
	log.Info().Str("component", "config").Msg("configuration reloaded")
}

// ─── Derived accessors ──────────────────────────────────────────────────────

// APIKey returns the configured LLM key, falling back to the
// ANTHROPIC_API_KEY environment variable.
func (c Config) APIKey() string {
	if c.AI.APIKey != "" {
		return c.AI.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// Location returns the configured timezone, falling back to UTC when the
// name does not resolve.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PlanningHorizon returns the sync look-ahead window.
func (c Config) PlanningHorizon() time.Duration {
	days := c.General.PlanningHorizonDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// SyncInterval returns the calendar sync cadence as a cron spec.
func (c Config) SyncInterval() string {
	minutes := c.GoogleCalendar.SyncIntervalMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return fmt.Sprintf("@every %dm", minutes)
}
