package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jasper-companion/jasper/internal/apimanager"
	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/sources"
	"github.com/jasper-companion/jasper/internal/store"
)

// fakeLLMServer serves a canned Messages API response.
func fakeLLMServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"text": text}},
			"usage":   map[string]any{"input_tokens": 42, "output_tokens": 13},
		})
	}))
}

type recordingEmitter struct {
	insights []int64
	stopping int
}

func (r *recordingEmitter) EmitInsightUpdated(id int64, emoji, preview string) error {
	r.insights = append(r.insights, id)
	return nil
}

func (r *recordingEmitter) EmitDaemonStopping() error {
	r.stopping++
	return nil
}

func newTestCore(t *testing.T, llmText string) (*Core, *store.DB, *recordingEmitter) {
	t.Helper()

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.AI.APIKey = "test-key"
	cfgStore := config.NewStore(cfg)

	core := NewCore(db, sources.NewManager(), apimanager.New(), cfgStore)
	if llmText != "" {
		server := fakeLLMServer(t, llmText)
		t.Cleanup(server.Close)
		core.llm.baseURL = server.URL
	}

	emitter := &recordingEmitter{}
	core.SetSignalEmitter(emitter)
	return core, db, emitter
}

func TestCheckAndAnalyze_FirstIterationStoresInsight(t *testing.T) {
	core, db, emitter := newTestCore(t,
		"Emoji: 📅\nInsight: Nothing on your plate — enjoy the quiet.")

	if err := core.CheckAndAnalyze(context.Background()); err != nil {
		t.Fatalf("CheckAndAnalyze() error: %v", err)
	}

	insight, err := db.LatestInsight()
	if err != nil {
		t.Fatalf("LatestInsight() error: %v", err)
	}
	if insight == nil {
		t.Fatal("no insight stored")
	}
	if insight.Emoji != "📅" {
		t.Errorf("Emoji = %q, want 📅", insight.Emoji)
	}
	if insight.Text != "Nothing on your plate — enjoy the quiet." {
		t.Errorf("Text = %q", insight.Text)
	}
	if insight.ContextHash == "" {
		t.Error("ContextHash should be recorded")
	}

	snaps, err := db.ContextSnapshotsForInsight(insight.ID)
	if err != nil {
		t.Fatalf("ContextSnapshotsForInsight() error: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Kind != "combined" {
		t.Errorf("snapshots = %+v, want one combined record", snaps)
	}

	if len(emitter.insights) != 1 || emitter.insights[0] != insight.ID {
		t.Errorf("emitted signals = %v, want [%d]", emitter.insights, insight.ID)
	}
}

func TestCheckAndAnalyze_UnchangedContextIsQuiet(t *testing.T) {
	core, db, _ := newTestCore(t, "Emoji: 🎯\nInsight: Stay focused.")

	if err := core.CheckAndAnalyze(context.Background()); err != nil {
		t.Fatalf("first CheckAndAnalyze() error: %v", err)
	}
	// The second iteration sees the identical context: no diff, no LLM
	// call, no new insight.
	if err := core.CheckAndAnalyze(context.Background()); err != nil {
		t.Fatalf("second CheckAndAnalyze() error: %v", err)
	}

	count, err := db.InsightCount()
	if err != nil {
		t.Fatalf("InsightCount() error: %v", err)
	}
	if count != 1 {
		t.Errorf("insight count = %d, want 1", count)
	}
}

func TestCheckAndAnalyze_QuotaExhaustedStoresFallback(t *testing.T) {
	core, db, emitter := newTestCore(t, "Emoji: 📅\nInsight: unreachable")

	// Exhaust the daily quota before the first analysis.
	for i := 0; i < apimanager.DefaultDailyLimit; i++ {
		core.api.RecordAPICall(1)
	}

	if err := core.CheckAndAnalyze(context.Background()); err != nil {
		t.Fatalf("CheckAndAnalyze() error: %v", err)
	}

	insight, err := db.LatestInsight()
	if err != nil {
		t.Fatalf("LatestInsight() error: %v", err)
	}
	if insight == nil {
		t.Fatal("fallback insight not stored")
	}
	if insight.Emoji != fallbackEmoji {
		t.Errorf("Emoji = %q, want %q", insight.Emoji, fallbackEmoji)
	}
	if insight.Text != fallbackInsightText {
		t.Errorf("Text = %q, want fallback", insight.Text)
	}
	if len(emitter.insights) != 1 {
		t.Errorf("fallback should still emit a signal, got %v", emitter.insights)
	}

	// Quota state preserved across the call.
	today, limit, _, _ := core.api.Stats()
	if today != limit {
		t.Errorf("calls today = %d, want still %d", today, limit)
	}
}

func TestCheckAndAnalyze_LLMErrorSkipsIteration(t *testing.T) {
	core, db, _ := newTestCore(t, "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)
	core.llm.baseURL = server.URL

	if err := core.CheckAndAnalyze(context.Background()); err == nil {
		t.Fatal("expected error from failing LLM")
	}

	count, err := db.InsightCount()
	if err != nil {
		t.Fatalf("InsightCount() error: %v", err)
	}
	if count != 0 {
		t.Errorf("insight count = %d, want 0 (error skips the iteration)", count)
	}
}

func TestRun_IdlesOutWithNoFrontends(t *testing.T) {
	core, _, _ := newTestCore(t, "")
	core.grace = 10 * time.Millisecond
	core.recheckDelay = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- core.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("daemon did not idle out with no frontends registered")
	}
	if core.Running() {
		t.Error("core should not be running after idle exit")
	}
}

func TestGetStatus(t *testing.T) {
	core, db, _ := newTestCore(t, "")
	pid := 99
	if err := db.RegisterFrontend("waybar", &pid); err != nil {
		t.Fatalf("RegisterFrontend() error: %v", err)
	}

	status, err := core.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}
	if status.Running {
		t.Error("loop not started, Running should be false")
	}
	if status.ActiveFrontends != 1 {
		t.Errorf("ActiveFrontends = %d, want 1", status.ActiveFrontends)
	}
	if status.InsightsCount != 0 {
		t.Errorf("InsightsCount = %d, want 0", status.InsightsCount)
	}
}
