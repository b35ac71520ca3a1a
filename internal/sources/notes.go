package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/jasper-companion/jasper/internal/config"
)

var (
	taskLineRe  = regexp.MustCompile(`^\s*- \[([ xX])\] (.+)$`)
	focusItemRe = regexp.MustCompile(`^\s*[-*]\s+(.+)$`)
	meetingRe   = regexp.MustCompile(`(?i)meeting\s+with\s+([^.]+)`)
	callRe      = regexp.MustCompile(`(?i)call\s+with\s+([^.]+)`)
)

var focusHeadings = []string{"## Focus", "## Focus Areas", "## Today's Focus", "## Priorities"}

// noteFrontMatter is the typed view of the YAML block between --- fences.
type noteFrontMatter struct {
	Name         string  `yaml:"name"`
	Company      string  `yaml:"company"`
	LastContact  string  `yaml:"last_contact"` // YYYY-MM-DD
	Relationship string  `yaml:"relationship"`
	Status       string  `yaml:"status"`
	DueDate      string  `yaml:"due_date"` // YYYY-MM-DD
	Priority     int     `yaml:"priority"`
	Client       string  `yaml:"client"`
	Progress     float64 `yaml:"progress"`
	Mood         string  `yaml:"mood"`
	Energy       *int    `yaml:"energy"`
}

// NotesSource walks an Obsidian-style vault: daily notes, project notes
// with status front-matter, and people notes whose last_contact drives
// relationship alerts.
type NotesSource struct {
	cfg       config.ObsidianConfig
	vaultPath string
	now       func() time.Time
}

// NewNotesSource creates a notes source for the configured vault.
func NewNotesSource(cfg config.ObsidianConfig) *NotesSource {
	return &NotesSource{
		cfg:       cfg,
		vaultPath: expandHome(cfg.VaultPath),
		now:       time.Now,
	}
}

func (s *NotesSource) SourceID() string    { return "obsidian" }
func (s *NotesSource) DisplayName() string { return "Obsidian Vault" }
func (s *NotesSource) Priority() int       { return 200 }

func (s *NotesSource) RequiredConfig() []string { return []string{"vault_path"} }

// Enabled requires the vault directory to exist on disk.
func (s *NotesSource) Enabled() bool {
	if !s.cfg.Enabled {
		return false
	}
	info, err := os.Stat(s.vaultPath)
	return err == nil && info.IsDir()
}

// FetchContext assembles the full vault context for the window.
func (s *NotesSource) FetchContext(_ context.Context, start, end time.Time) (ContextData, error) {
	dailyNotes, err := s.dailyNotes(start, end)
	if err != nil {
		return ContextData{}, err
	}
	projects, err := s.activeProjects()
	if err != nil {
		return ContextData{}, err
	}
	alerts, err := s.relationshipAlerts()
	if err != nil {
		return ContextData{}, err
	}

	var pending []Task
	for _, note := range dailyNotes {
		pending = append(pending, note.Tasks...)
	}
	for _, p := range projects {
		pending = append(pending, p.Tasks...)
	}
	pending = filterPending(pending)

	return ContextData{
		SourceID:  s.SourceID(),
		Timestamp: s.now().UTC(),
		DataType:  TypeNotes,
		Priority:  s.Priority(),
		Notes: &NotesContext{
			DailyNotes:         dailyNotes,
			ActiveProjects:     projects,
			RecentActivities:   s.activities(dailyNotes),
			PendingTasks:       pending,
			RelationshipAlerts: alerts,
		},
		Metadata: map[string]string{
			"vault_path":  s.vaultPath,
			"source_type": "obsidian",
		},
	}, nil
}

// ─── Daily notes ────────────────────────────────────────────────────────────

// dailyNotes loads YYYY-MM-DD.md files for every day in [start, end].
func (s *NotesSource) dailyNotes(start, end time.Time) ([]DailyNote, error) {
	dir := filepath.Join(s.vaultPath, s.cfg.DailyNotesFolder)
	if _, err := os.Stat(dir); err != nil {
		return nil, nil // no daily notes folder, nothing to report
	}

	var notes []DailyNote
	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end); day = day.AddDate(0, 0, 1) {
		name := day.Format("2006-01-02") + ".md"
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		fm, body := parseFrontMatter(string(raw))
		note := DailyNote{
			Date:       day.Add(9 * time.Hour), // morning anchor for display
			Title:      name,
			Content:    body,
			Tasks:      extractTasks(body, name),
			FocusAreas: extractFocusAreas(body),
		}
		if fm != nil {
			if fm.Mood != "" {
				mood := fm.Mood
				note.Mood = &mood
			}
			note.EnergyLevel = fm.Energy
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// ─── Projects ───────────────────────────────────────────────────────────────

func (s *NotesSource) activeProjects() ([]Project, error) {
	dir := filepath.Join(s.vaultPath, s.cfg.ProjectsFolder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	var projects []Project
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn().Str("component", "sources").Str("file", entry.Name()).Err(err).
				Msg("project note unreadable")
			continue
		}

		fm, body := parseFrontMatter(string(raw))
		if fm == nil {
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), ".md")
		name := fm.Name
		if name == "" {
			name = stem
		}
		priority := fm.Priority
		if priority == 0 {
			priority = 5
		}

		project := Project{
			ID:       stem,
			Name:     name,
			Status:   projectStatus(fm.Status),
			Priority: priority,
			Progress: fm.Progress,
			Tasks:    extractTasks(body, entry.Name()),
		}
		if fm.Client != "" {
			client := fm.Client
			project.Client = &client
		}
		if due, err := time.Parse("2006-01-02", fm.DueDate); err == nil {
			d := due.Add(23*time.Hour + 59*time.Minute + 59*time.Second).UTC()
			project.DueDate = &d
		}
		projects = append(projects, project)
	}
	return projects, nil
}

func projectStatus(s string) ProjectStatus {
	switch strings.ToLower(s) {
	case "pending":
		return ProjectPending
	case "completed":
		return ProjectCompleted
	case "onhold", "on_hold":
		return ProjectOnHold
	case "cancelled":
		return ProjectCancelled
	default:
		return ProjectActive
	}
}

// ─── Relationship alerts ────────────────────────────────────────────────────

// relationshipAlerts flags people whose last_contact is older than the
// configured threshold, most urgent first.
func (s *NotesSource) relationshipAlerts() ([]RelationshipAlert, error) {
	dir := filepath.Join(s.vaultPath, s.cfg.PeopleFolder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	thresholdDays := s.cfg.RelationshipAlertDays
	if thresholdDays <= 0 {
		thresholdDays = 21
	}

	now := s.now().UTC()
	var alerts []RelationshipAlert
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		fm, _ := parseFrontMatter(string(raw))
		if fm == nil || fm.LastContact == "" {
			continue
		}
		lastContact, err := time.Parse("2006-01-02", fm.LastContact)
		if err != nil {
			continue
		}
		lastContact = lastContact.Add(12 * time.Hour).UTC() // midday anchor

		days := int(now.Sub(lastContact).Hours() / 24)
		if days <= thresholdDays {
			continue
		}

		name := fm.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".md")
		}
		relationship := fm.Relationship
		if relationship == "" {
			relationship = "professional"
		}

		alert := RelationshipAlert{
			PersonName:       name,
			LastContact:      lastContact,
			DaysSinceContact: days,
			Relationship:     relationship,
			Urgency:          relationshipUrgency(days),
		}
		if fm.Company != "" {
			company := fm.Company
			alert.Company = &company
		}
		alerts = append(alerts, alert)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Urgency > alerts[j].Urgency
	})
	return alerts, nil
}

// relationshipUrgency maps silence duration to an urgency score.
func relationshipUrgency(days int) int {
	switch {
	case days >= 30:
		return 8
	case days >= 21:
		return 6
	case days >= 14:
		return 4
	default:
		return 2
	}
}

// ─── Activities ─────────────────────────────────────────────────────────────

// activities pulls meeting/call references out of the daily notes.
func (s *NotesSource) activities(notes []DailyNote) []Activity {
	var activities []Activity
	for _, note := range notes {
		for lineNum, line := range strings.Split(note.Content, "\n") {
			if m := meetingRe.FindStringSubmatch(line); m != nil {
				activities = append(activities, Activity{
					ID:          fmt.Sprintf("%s:meeting:%d", note.Date.Format("2006-01-02"), lineNum),
					Title:       "Meeting with " + strings.TrimSpace(m[1]),
					Description: line,
					Timestamp:   note.Date,
					Kind:        "meeting",
				})
			}
			if m := callRe.FindStringSubmatch(line); m != nil {
				activities = append(activities, Activity{
					ID:          fmt.Sprintf("%s:call:%d", note.Date.Format("2006-01-02"), lineNum),
					Title:       "Call with " + strings.TrimSpace(m[1]),
					Description: line,
					Timestamp:   note.Date,
					Kind:        "call",
				})
			}
		}
	}
	return activities
}

// ─── Markdown parsing ───────────────────────────────────────────────────────

// parseFrontMatter splits a note into its YAML front-matter and body. A
// note without fences, or with YAML that does not parse, yields a nil
// front-matter and the whole content as body.
func parseFrontMatter(content string) (*noteFrontMatter, string) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content
	}
	rest := content[4:]
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		return nil, content
	}

	var fm noteFrontMatter
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		log.Warn().Str("component", "sources").Err(err).Msg("front-matter parse failed")
		return nil, content
	}
	return &fm, rest[idx+5:]
}

// extractTasks finds - [ ] / - [x] checkboxes in markdown content.
func extractTasks(content, fileName string) []Task {
	var tasks []Task
	for lineNum, line := range strings.Split(content, "\n") {
		m := taskLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		completed := m[1] == "x" || m[1] == "X"
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}

		status := TaskPending
		if completed {
			status = TaskCompleted
		}
		id := fmt.Sprintf("%s:%d:%s", fileName, lineNum, truncateRunes(text, 20))
		tasks = append(tasks, Task{
			ID:       id,
			Title:    text,
			Priority: 5,
			Status:   status,
			Source:   "obsidian",
		})
	}
	return tasks
}

// extractFocusAreas collects list items under focus/priority headings.
func extractFocusAreas(content string) []string {
	var areas []string
	lines := strings.Split(content, "\n")
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inSection = false
			for _, heading := range focusHeadings {
				if strings.EqualFold(trimmed, heading) {
					inSection = true
					break
				}
			}
			continue
		}
		if !inSection {
			continue
		}
		if m := focusItemRe.FindStringSubmatch(line); m != nil {
			areas = append(areas, strings.TrimSpace(m[1]))
		}
	}
	return areas
}

func filterPending(tasks []Task) []Task {
	var pending []Task
	for _, t := range tasks {
		if t.Status == TaskPending {
			pending = append(pending, t)
		}
	}
	return pending
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
