package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/domain"
	"github.com/jasper-companion/jasper/internal/significance"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion     = "2023-06-01"

	// promptTokenCap bounds the insight response regardless of the
	// configured max_tokens; insights are one or two sentences.
	promptTokenCap = 200
)

// aiInsight is one parsed LLM result.
type aiInsight struct {
	Emoji       string
	Text        string
	ContextHash string
}

// anthropicClient issues Messages API calls for insight generation.
type anthropicClient struct {
	client  *http.Client
	baseURL string
}

func newAnthropicClient() *anthropicClient {
	return &anthropicClient{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: anthropicMessagesURL,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  uint64 `json:"input_tokens"`
		OutputTokens uint64 `json:"output_tokens"`
	} `json:"usage"`
}

// buildRequest renders the snapshot into a prompt. No I/O, so retries can
// reuse the result.
func buildRequest(cfg config.Config, snapshot *significance.ContextSnapshot) anthropicRequest {
	summary := renderContextSummary(cfg, snapshot)

	prompt := fmt.Sprintf(
		`You are Jasper, a %s. Address the user as %q; humor level: %s. Analyze this context and provide a brief, actionable insight with an appropriate emoji.

Context:
%s

Provide response in this format:
Emoji: [single emoji]
Insight: [brief actionable insight in 1-2 sentences]`,
		cfg.Personality.AssistantPersona,
		cfg.Personality.UserTitle,
		cfg.Personality.HumorLevel,
		summary,
	)

	maxTokens := cfg.AI.MaxTokens
	if maxTokens > promptTokenCap || maxTokens <= 0 {
		maxTokens = promptTokenCap
	}

	return anthropicRequest{
		Model:     cfg.AI.Model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
}

// renderContextSummary formats the snapshot for the prompt. All times are
// rendered in the configured timezone with a 12-hour clock; all-day
// events read as reminders, never as time-consuming blocks.
func renderContextSummary(cfg config.Config, snapshot *significance.ContextSnapshot) string {
	loc := cfg.Location()
	var b strings.Builder

	if len(snapshot.CalendarEvents) > 0 {
		b.WriteString("Calendar Events (next 24h):\n")
		for _, ev := range snapshot.CalendarEvents {
			if ev.IsAllDay {
				fmt.Fprintf(&b, "- Reminder for the day: %s\n", ev.Title)
				continue
			}
			fmt.Fprintf(&b, "- %s at %s", ev.Title, ev.StartTime.In(loc).Format("03:04 PM"))
			if ev.Location != nil {
				fmt.Fprintf(&b, " (at %s)", *ev.Location)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if snapshot.Weather != nil {
		fmt.Fprintf(&b, "Weather: %s (%d°)\n\n", snapshot.Weather.Condition, snapshot.Weather.Temperature)
	}
	if snapshot.WeatherContext != nil && len(snapshot.WeatherContext.Alerts) > 0 {
		b.WriteString("Weather alerts:\n")
		for _, alert := range snapshot.WeatherContext.Alerts {
			fmt.Fprintf(&b, "- %s\n", alert)
		}
		b.WriteString("\n")
	}

	if len(snapshot.Tasks) > 0 {
		b.WriteString("Upcoming Tasks:\n")
		for _, task := range snapshot.Tasks {
			fmt.Fprintf(&b, "- %s", task.Title)
			if task.Due != nil {
				fmt.Fprintf(&b, " (due %s)", task.Due.In(loc).Format("Mon 03:04 PM"))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if snapshot.NotesContext != nil {
		for _, alert := range snapshot.NotesContext.RelationshipAlerts {
			fmt.Fprintf(&b, "Reach out to %s - %d days since last contact\n",
				alert.PersonName, alert.DaysSinceContact)
		}
	}

	if b.Len() == 0 {
		return "No significant context available."
	}
	return b.String()
}

// send issues one Messages API call. Returns the parsed insight and the
// total tokens reported by the provider.
func (c *anthropicClient) send(ctx context.Context, apiKey string, req anthropicRequest, contextHash string) (aiInsight, uint64, error) {
	if apiKey == "" {
		return aiInsight{}, 0, domain.Errf(domain.KindAuthentication, "anthropic",
			"API key not configured; set it via config, secrets, or ANTHROPIC_API_KEY")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return aiInsight{}, 0, domain.Wrap(domain.KindInternal, "anthropic", err, "encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return aiInsight{}, 0, domain.Wrap(domain.KindInternal, "anthropic", err, "build request")
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return aiInsight{}, 0, domain.Wrap(domain.KindNetwork, "anthropic", err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := domain.KindAPI
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = domain.KindAuthentication
		}
		return aiInsight{}, 0, domain.Errf(kind, "anthropic", "API returned %d: %s", resp.StatusCode, text)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return aiInsight{}, 0, domain.Wrap(domain.KindParsing, "anthropic", err, "decode response")
	}
	if len(parsed.Content) == 0 {
		return aiInsight{}, 0, domain.Errf(domain.KindParsing, "anthropic", "response carries no content")
	}

	emoji, text := parseAIResponse(parsed.Content[0].Text)
	tokens := parsed.Usage.InputTokens + parsed.Usage.OutputTokens

	return aiInsight{Emoji: emoji, Text: text, ContextHash: contextHash}, tokens, nil
}
