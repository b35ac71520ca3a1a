package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/domain"
)

const todoistBaseURL = "https://api.todoist.com/rest/v2"

// TasksSource fetches tasks from the Todoist REST API or from a local
// file (JSON, with a markdown-checkbox fallback).
type TasksSource struct {
	cfg     config.TasksConfig
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewTasksSource creates a tasks source for the configured backend.
func NewTasksSource(cfg config.TasksConfig) *TasksSource {
	return &TasksSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: todoistBaseURL,
		now:     time.Now,
	}
}

func (s *TasksSource) SourceID() string {
	if s.cfg.SourceType == "local_file" {
		return "tasks_local"
	}
	return "tasks_todoist"
}

func (s *TasksSource) DisplayName() string {
	if s.cfg.SourceType == "local_file" {
		return "Local Task File"
	}
	return "Todoist Tasks"
}

func (s *TasksSource) Enabled() bool {
	if !s.cfg.Enabled {
		return false
	}
	if s.cfg.SourceType == "local_file" {
		return s.cfg.FilePath != ""
	}
	return s.cfg.APIKey != ""
}

func (s *TasksSource) Priority() int { return 120 }

func (s *TasksSource) RequiredConfig() []string {
	if s.cfg.SourceType == "local_file" {
		return []string{"file_path"}
	}
	return []string{"api_key"}
}

// FetchContext returns the task list with overdue and upcoming counts
// computed relative to now.
func (s *TasksSource) FetchContext(ctx context.Context, _, _ time.Time) (ContextData, error) {
	var tasks []Task
	var err error
	if s.cfg.SourceType == "local_file" {
		tasks, err = s.fetchLocal()
	} else {
		tasks, err = s.fetchTodoist(ctx)
	}
	if err != nil {
		return ContextData{}, err
	}

	now := s.now().UTC()
	overdue, upcoming := 0, 0
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		switch {
		case t.DueDate.Before(now) && t.Status != TaskCompleted:
			overdue++
		case t.DueDate.After(now) && !t.DueDate.After(now.Add(7*24*time.Hour)):
			upcoming++
		}
	}

	return ContextData{
		SourceID:  s.SourceID(),
		Timestamp: now,
		DataType:  TypeTasks,
		Priority:  s.Priority(),
		Tasks: &TaskContext{
			Tasks:         tasks,
			OverdueCount:  overdue,
			UpcomingCount: upcoming,
		},
		Metadata: map[string]string{"source_type": s.cfg.SourceType},
	}, nil
}

// ─── Todoist ────────────────────────────────────────────────────────────────

type todoistTask struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Description string    `json:"description"`
	Due       *todoistDue `json:"due"`
	Priority  int         `json:"priority"`
	Completed bool        `json:"is_completed"`
	Labels    []string    `json:"labels"`
	ProjectID string      `json:"project_id"`
}

type todoistDue struct {
	Date     string  `json:"date"`
	DateTime *string `json:"datetime"`
}

type todoistProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *TasksSource) fetchTodoist(ctx context.Context) ([]Task, error) {
	var projects []todoistProject
	if err := s.todoistGet(ctx, "/projects", &projects); err != nil {
		return nil, err
	}
	projectNames := make(map[string]string, len(projects))
	for _, p := range projects {
		projectNames[p.ID] = p.Name
	}

	var remote []todoistTask
	if err := s.todoistGet(ctx, "/tasks", &remote); err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(remote))
	for _, rt := range remote {
		if rt.Completed && !s.cfg.SyncCompleted {
			continue
		}

		status := TaskPending
		if rt.Completed {
			status = TaskCompleted
		}

		tags := append([]string(nil), rt.Labels...)
		if name, ok := projectNames[rt.ProjectID]; ok {
			tags = append(tags, "project:"+name)
		}

		task := Task{
			ID:       rt.ID,
			Title:    rt.Content,
			DueDate:  parseTodoistDue(rt.Due),
			Priority: todoistPriority(rt.Priority),
			Status:   status,
			Tags:     tags,
			Source:   "todoist",
		}
		if rt.Description != "" {
			desc := rt.Description
			task.Description = &desc
		}
		tasks = append(tasks, task)

		if s.cfg.MaxTasks > 0 && len(tasks) >= s.cfg.MaxTasks {
			break
		}
	}

	log.Info().Str("component", "sources").Int("count", len(tasks)).Msg("fetched Todoist tasks")
	return tasks, nil
}

func (s *TasksSource) todoistGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "todoist", err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindNetwork, "todoist", err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Errf(domain.KindAPI, "todoist", "GET %s returned %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.KindParsing, "todoist", err, "decode response")
	}
	return nil
}

// parseTodoistDue prefers the full datetime, falling back to end-of-day
// for date-only deadlines.
func parseTodoistDue(due *todoistDue) *time.Time {
	if due == nil {
		return nil
	}
	if due.DateTime != nil {
		if dt, err := time.Parse(time.RFC3339, *due.DateTime); err == nil {
			utc := dt.UTC()
			return &utc
		}
	}
	if d, err := time.Parse("2006-01-02", due.Date); err == nil {
		eod := d.Add(23*time.Hour + 59*time.Minute + 59*time.Second).UTC()
		return &eod
	}
	return nil
}

// todoistPriority maps the remote 1..4 scale onto the internal 1..10.
func todoistPriority(p int) int {
	switch p {
	case 4:
		return 10
	case 3:
		return 8
	case 2:
		return 5
	case 1:
		return 3
	default:
		return 5
	}
}

// ─── Local file ─────────────────────────────────────────────────────────────

type localTaskFile struct {
	Tasks []localTask `json:"tasks"`
}

type localTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	Tags        []string   `json:"tags"`
}

func (s *TasksSource) fetchLocal() ([]Task, error) {
	path := expandHome(s.cfg.FilePath)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("component", "sources").Str("path", path).Msg("local task file missing")
		return nil, nil
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindFileSystem, "tasks.local", err, "read task file")
	}

	// JSON first; anything that does not parse falls back to markdown.
	var file localTaskFile
	if err := json.Unmarshal(content, &file); err == nil && len(file.Tasks) > 0 {
		return s.convertLocal(file.Tasks), nil
	}
	return s.parseMarkdown(string(content)), nil
}

func (s *TasksSource) convertLocal(local []localTask) []Task {
	var tasks []Task
	for _, lt := range local {
		status := TaskPending
		switch lt.Status {
		case "completed":
			status = TaskCompleted
		case "in_progress":
			status = TaskInProgress
		case "blocked":
			status = TaskBlocked
		case "cancelled":
			status = TaskCancelled
		}
		tasks = append(tasks, Task{
			ID:          lt.ID,
			Title:       lt.Title,
			Description: lt.Description,
			DueDate:     lt.DueDate,
			Priority:    lt.Priority,
			Status:      status,
			Tags:        lt.Tags,
			Source:      "local",
		})
		if s.cfg.MaxTasks > 0 && len(tasks) >= s.cfg.MaxTasks {
			break
		}
	}
	return tasks
}

// parseMarkdown reads checkbox lines: "- [ ] title", "- [x] done",
// "- [!] urgent". Hashtags become tags and are stripped from the title.
func (s *TasksSource) parseMarkdown(content string) []Task {
	var tasks []Task
	taskNum := 1
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- [") || len(line) <= 5 {
			continue
		}
		statusChar := line[3]
		title := strings.TrimSpace(line[5:])
		if title == "" {
			continue
		}

		status := TaskPending
		priority := 5
		switch statusChar {
		case 'x', 'X':
			status = TaskCompleted
		case '!':
			status = TaskInProgress
			priority = 8
		}

		cleanTitle, tags := extractHashTags(title)
		tasks = append(tasks, Task{
			ID:       fmt.Sprintf("local_%d", taskNum),
			Title:    cleanTitle,
			Priority: priority,
			Status:   status,
			Tags:     tags,
			Source:   "local",
		})
		taskNum++

		if s.cfg.MaxTasks > 0 && len(tasks) >= s.cfg.MaxTasks {
			break
		}
	}
	return tasks
}

// extractHashTags pulls #tag words out of a title.
func extractHashTags(title string) (string, []string) {
	var tags []string
	var kept []string
	for _, word := range strings.Fields(title) {
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			tags = append(tags, word[1:])
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " "), tags
}
