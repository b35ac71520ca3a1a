package sources

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jasper-companion/jasper/internal/config"
)

func TestTodoistPriority(t *testing.T) {
	tests := []struct {
		remote, want int
	}{
		{4, 10},
		{3, 8},
		{2, 5},
		{1, 3},
		{0, 5},
	}
	for _, tt := range tests {
		if got := todoistPriority(tt.remote); got != tt.want {
			t.Errorf("todoistPriority(%d) = %d, want %d", tt.remote, got, tt.want)
		}
	}
}

func TestParseMarkdownTasks(t *testing.T) {
	src := NewTasksSource(config.TasksConfig{MaxTasks: 10})

	content := "- [ ] Buy milk #errand\n- [x] Done task\n- [!] Urgent fix\nplain line\n"
	tasks := src.parseMarkdown(content)
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Title != "Buy milk" || len(tasks[0].Tags) != 1 || tasks[0].Tags[0] != "errand" {
		t.Errorf("task 0 = %+v", tasks[0])
	}
	if tasks[1].Status != TaskCompleted {
		t.Errorf("task 1 status = %q, want completed", tasks[1].Status)
	}
	if tasks[2].Status != TaskInProgress || tasks[2].Priority != 8 {
		t.Errorf("task 2 = %+v, want in_progress priority 8", tasks[2])
	}
}

func TestParseMarkdown_MaxTasksCap(t *testing.T) {
	src := NewTasksSource(config.TasksConfig{MaxTasks: 1})
	tasks := src.parseMarkdown("- [ ] one\n- [ ] two\n")
	if len(tasks) != 1 {
		t.Errorf("got %d tasks, want 1 (capped)", len(tasks))
	}
}

func TestFetchLocal_JSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	due := time.Date(2026, 3, 12, 17, 0, 0, 0, time.UTC)
	file := localTaskFile{Tasks: []localTask{
		{ID: "t1", Title: "Pay invoice", DueDate: &due, Priority: 7, Status: "pending"},
		{ID: "t2", Title: "Old thing", Priority: 2, Status: "completed"},
	}}
	raw, _ := json.Marshal(file)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("write task file: %v", err)
	}

	src := NewTasksSource(config.TasksConfig{
		Enabled: true, SourceType: "local_file", FilePath: path, MaxTasks: 10,
	})
	tasks, err := src.fetchLocal()
	if err != nil {
		t.Fatalf("fetchLocal() error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "t1" || tasks[0].DueDate == nil || !tasks[0].DueDate.Equal(due) {
		t.Errorf("task 0 = %+v", tasks[0])
	}
	if tasks[1].Status != TaskCompleted {
		t.Errorf("task 1 status = %q, want completed", tasks[1].Status)
	}
}

func TestFetchLocal_MissingFileIsEmpty(t *testing.T) {
	src := NewTasksSource(config.TasksConfig{
		Enabled: true, SourceType: "local_file", FilePath: "/nonexistent/tasks.json",
	})
	tasks, err := src.fetchLocal()
	if err != nil {
		t.Fatalf("fetchLocal() error: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("got %d tasks, want 0", len(tasks))
	}
}

func TestFetchTodoist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]todoistProject{{ID: "p1", Name: "Home"}})
	})
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]todoistTask{
			{ID: "1", Content: "Fix gutter", Priority: 4, ProjectID: "p1",
				Due: &todoistDue{Date: "2026-03-12"}},
			{ID: "2", Content: "Archived", Priority: 1, Completed: true},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewTasksSource(config.TasksConfig{
		Enabled: true, SourceType: "todoist", APIKey: "test-token",
		SyncCompleted: false, MaxTasks: 10,
	})
	src.baseURL = server.URL

	tasks, err := src.fetchTodoist(t.Context())
	if err != nil {
		t.Fatalf("fetchTodoist() error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1 (completed dropped)", len(tasks))
	}
	got := tasks[0]
	if got.Title != "Fix gutter" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Priority != 10 {
		t.Errorf("Priority = %d, want 10 for remote 4", got.Priority)
	}
	if got.DueDate == nil || got.DueDate.Format("2006-01-02") != "2026-03-12" {
		t.Errorf("DueDate = %v", got.DueDate)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "project:Home" {
		t.Errorf("Tags = %v, want [project:Home]", got.Tags)
	}
}

func TestFetchContext_OverdueAndUpcomingCounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	soon := now.Add(48 * time.Hour)
	far := now.Add(30 * 24 * time.Hour)

	file := localTaskFile{Tasks: []localTask{
		{ID: "o", Title: "Overdue", DueDate: &past, Status: "pending"},
		{ID: "u", Title: "Upcoming", DueDate: &soon, Status: "pending"},
		{ID: "f", Title: "Far out", DueDate: &far, Status: "pending"},
		{ID: "d", Title: "Done late", DueDate: &past, Status: "completed"},
	}}
	raw, _ := json.Marshal(file)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("write task file: %v", err)
	}

	src := NewTasksSource(config.TasksConfig{
		Enabled: true, SourceType: "local_file", FilePath: path, MaxTasks: 10,
	})
	src.now = func() time.Time { return now }

	data, err := src.FetchContext(t.Context(), now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FetchContext() error: %v", err)
	}
	if data.Tasks.OverdueCount != 1 {
		t.Errorf("OverdueCount = %d, want 1 (completed tasks excluded)", data.Tasks.OverdueCount)
	}
	if data.Tasks.UpcomingCount != 1 {
		t.Errorf("UpcomingCount = %d, want 1 (beyond 7 days excluded)", data.Tasks.UpcomingCount)
	}
}
