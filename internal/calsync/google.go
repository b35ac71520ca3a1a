// Package calsync synchronizes Google Calendar into the store: OAuth2
// token lifecycle, event fetch, calendar-metadata discovery and bulk
// ingest with owner/type inference.
package calsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jasper-companion/jasper/internal/domain"
)

const (
	calendarScope    = "https://www.googleapis.com/auth/calendar.readonly"
	calendarAPIBase  = "https://www.googleapis.com/calendar/v3"
	tokenEndpoint    = "https://oauth2.googleapis.com/token"
	tokenCacheFile   = "google_calendar_token.json"
	maxEventsPerPull = 250

	// refreshMargin renews the access token when it has less than this
	// left to live, so in-flight requests never race expiry.
	refreshMargin = 5 * time.Minute
)

// Config identifies the OAuth2 client and the calendars to sync.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CalendarIDs  []string
}

// StoredToken is the on-disk token cache shape.
type StoredToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken *string    `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scopes       []string   `json:"scopes"`
}

// Service talks to the Google Calendar REST API with a cached token.
type Service struct {
	config        Config
	tokenFilePath string
	client        *http.Client
	apiBase       string
	tokenURL      string
	now           func() time.Time
}

// NewService creates a calendar service storing its token under dataDir.
func NewService(config Config, dataDir string) *Service {
	return &Service{
		config:        config,
		tokenFilePath: filepath.Join(dataDir, tokenCacheFile),
		client:        &http.Client{Timeout: 30 * time.Second},
		apiBase:       calendarAPIBase,
		tokenURL:      tokenEndpoint,
		now:           time.Now,
	}
}

// ─── Authentication ─────────────────────────────────────────────────────────

// IsAuthenticated reports whether a usable token is cached. A token with
// no expiry is assumed long-lived.
func (s *Service) IsAuthenticated() bool {
	token, err := s.loadToken()
	if err != nil {
		return false
	}
	if token.ExpiresAt == nil {
		return true
	}
	return s.now().Before(*token.ExpiresAt)
}

// AuthURL returns the consent URL to open in a browser plus the CSRF state
// token to verify on callback.
func (s *Service) AuthURL() (string, string) {
	conf := s.oauthConfig()
	state := uuid.New().String()
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), state
}

func (s *Service) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		RedirectURL:  s.config.RedirectURI,
		Scopes:       []string{calendarScope},
		Endpoint:     google.Endpoint,
	}
}

type googleTokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresIn    *int64  `json:"expires_in"`
}

// AuthenticateWithCode exchanges the authorization code for tokens and
// persists them. The exchange is a manual form-encoded POST: some OAuth2
// client libraries mis-parse Google's token response, the raw endpoint
// does not.
func (s *Service) AuthenticateWithCode(ctx context.Context, code, _ string) error {
	form := url.Values{
		"client_id":     {s.config.ClientID},
		"client_secret": {s.config.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {s.config.RedirectURI},
	}

	token, err := s.postTokenForm(ctx, form)
	if err != nil {
		return err
	}

	stored := StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       []string{calendarScope},
	}
	if token.ExpiresIn != nil {
		exp := s.now().Add(time.Duration(*token.ExpiresIn) * time.Second)
		stored.ExpiresAt = &exp
	}
	if err := s.storeToken(stored); err != nil {
		return err
	}

	log.Info().Str("component", "calsync").Msg("Google Calendar authentication successful")
	return nil
}

// refreshToken exchanges the refresh token for a fresh access token,
// preserving the refresh token itself.
func (s *Service) refreshToken(ctx context.Context, current StoredToken) (StoredToken, error) {
	if current.RefreshToken == nil {
		return StoredToken{}, domain.Errf(domain.KindAuthentication, "google", "no refresh token available")
	}

	form := url.Values{
		"client_id":     {s.config.ClientID},
		"client_secret": {s.config.ClientSecret},
		"refresh_token": {*current.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	token, err := s.postTokenForm(ctx, form)
	if err != nil {
		return StoredToken{}, err
	}

	refreshed := StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: current.RefreshToken,
		Scopes:       current.Scopes,
	}
	if token.ExpiresIn != nil {
		exp := s.now().Add(time.Duration(*token.ExpiresIn) * time.Second)
		refreshed.ExpiresAt = &exp
	}
	if err := s.storeToken(refreshed); err != nil {
		return StoredToken{}, err
	}

	log.Info().Str("component", "calsync").Msg("Google Calendar token refreshed")
	return refreshed, nil
}

func (s *Service) postTokenForm(ctx context.Context, form url.Values) (googleTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return googleTokenResponse{}, domain.Wrap(domain.KindInternal, "google", err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return googleTokenResponse{}, domain.Wrap(domain.KindNetwork, "google", err, "token exchange failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return googleTokenResponse{}, domain.Wrap(domain.KindNetwork, "google", err, "read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return googleTokenResponse{}, domain.Errf(domain.KindAuthentication, "google",
			"token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token googleTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return googleTokenResponse{}, domain.Wrap(domain.KindParsing, "google", err,
			"parse token response: "+string(body))
	}
	return token, nil
}

// validToken returns a token fit for immediate use, refreshing when it is
// within the renewal margin.
func (s *Service) validToken(ctx context.Context) (StoredToken, error) {
	token, err := s.loadToken()
	if err != nil {
		return StoredToken{}, domain.Wrap(domain.KindAuthentication, "google", err, "no cached token")
	}
	if token.ExpiresAt != nil && !s.now().Add(refreshMargin).Before(*token.ExpiresAt) {
		log.Debug().Str("component", "calsync").Msg("access token near expiry, refreshing")
		return s.refreshToken(ctx, token)
	}
	return token, nil
}

func (s *Service) storeToken(token StoredToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return domain.Wrap(domain.KindInternal, "google", err, "encode token")
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenFilePath), 0700); err != nil {
		return domain.Wrap(domain.KindFileSystem, "google", err, "create token dir")
	}
	if err := os.WriteFile(s.tokenFilePath, data, 0600); err != nil {
		return domain.Wrap(domain.KindFileSystem, "google", err, "write token cache")
	}
	return nil
}

func (s *Service) loadToken() (StoredToken, error) {
	data, err := os.ReadFile(s.tokenFilePath)
	if err != nil {
		return StoredToken{}, err
	}
	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		return StoredToken{}, err
	}
	return token, nil
}

// ─── Calendar API ───────────────────────────────────────────────────────────

type calendarListResponse struct {
	Items []calendarListEntry `json:"items"`
}

type calendarListEntry struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

type eventsResponse struct {
	Items []googleEvent `json:"items"`
}

type googleEvent struct {
	ID          string           `json:"id"`
	Summary     *string          `json:"summary,omitempty"`
	Description *string          `json:"description,omitempty"`
	Location    *string          `json:"location,omitempty"`
	Start       *googleDateTime  `json:"start,omitempty"`
	End         *googleDateTime  `json:"end,omitempty"`
	Status      *string          `json:"status,omitempty"`
	Attendees   []googleAttendee `json:"attendees,omitempty"`
}

type googleDateTime struct {
	DateTime *string `json:"dateTime,omitempty"`
	Date     *string `json:"date,omitempty"`
	TimeZone *string `json:"timeZone,omitempty"`
}

type googleAttendee struct {
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

// ListCalendars returns (external id, display name) pairs for the user's
// calendar list.
func (s *Service) ListCalendars(ctx context.Context) ([][2]string, error) {
	token, err := s.validToken(ctx)
	if err != nil {
		return nil, err
	}

	var list calendarListResponse
	if err := s.apiGet(ctx, token.AccessToken, "/users/me/calendarList", nil, &list); err != nil {
		return nil, err
	}

	calendars := make([][2]string, 0, len(list.Items))
	for _, entry := range list.Items {
		if entry.ID != "" && entry.Summary != "" {
			calendars = append(calendars, [2]string{entry.ID, entry.Summary})
		}
	}
	return calendars, nil
}

// CalendarMetadata resolves the display name for one calendar. Color is
// inferred later from the external id, so none is returned here.
func (s *Service) CalendarMetadata(ctx context.Context, calendarID string) (string, string, error) {
	token, err := s.validToken(ctx)
	if err != nil {
		return "", "", err
	}

	var entry calendarListEntry
	path := "/calendars/" + url.PathEscape(calendarID)
	if err := s.apiGet(ctx, token.AccessToken, path, nil, &entry); err != nil {
		return "", "", err
	}

	name := entry.Summary
	if name == "" {
		name = calendarID
	}
	return calendarID, name, nil
}

// FetchEvents pulls [start, end] from every configured calendar. A failure
// on one calendar is logged and skipped; the others continue.
func (s *Service) FetchEvents(ctx context.Context, start, end time.Time) ([]CalendarEvents, error) {
	token, err := s.validToken(ctx)
	if err != nil {
		return nil, err
	}

	var byCalendar []CalendarEvents
	for _, calendarID := range s.config.CalendarIDs {
		events, err := s.fetchCalendarEvents(ctx, token.AccessToken, calendarID, start, end)
		if err != nil {
			log.Warn().Str("component", "calsync").Str("calendar", calendarID).Err(err).
				Msg("event fetch failed, continuing with other calendars")
			continue
		}
		log.Info().Str("component", "calsync").Str("calendar", calendarID).
			Int("count", len(events)).Msg("fetched events")
		byCalendar = append(byCalendar, CalendarEvents{CalendarID: calendarID, Events: events})
	}
	return byCalendar, nil
}

// CalendarEvents groups fetched events under their external calendar id.
type CalendarEvents struct {
	CalendarID string
	Events     []domain.Event
}

func (s *Service) fetchCalendarEvents(ctx context.Context, accessToken, calendarID string, start, end time.Time) ([]domain.Event, error) {
	query := url.Values{
		"timeMin":      {start.Format(time.RFC3339)},
		"timeMax":      {end.Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {fmt.Sprint(maxEventsPerPull)},
	}

	var resp eventsResponse
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := s.apiGet(ctx, accessToken, path, query, &resp); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, err := convertGoogleEvent(item)
		if err != nil {
			log.Debug().Str("component", "calsync").Str("event", item.ID).Err(err).
				Msg("skipping unconvertible event")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Service) apiGet(ctx context.Context, accessToken, path string, query url.Values, out any) error {
	u := s.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "google", err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindNetwork, "google", err, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Errf(domain.KindAuthentication, "google", "calendar API returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Errf(domain.KindCalendarSync, "google", "calendar API returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.KindParsing, "google", err, "decode calendar response")
	}
	return nil
}

// ─── Event conversion ───────────────────────────────────────────────────────

// convertGoogleEvent maps the provider payload onto a store event.
// All-day events (date without datetime) keep their day boundary as
// naive-UTC midnight → 23:59:59 so they never shift across timezones;
// datetime events are parsed as RFC3339 and normalized to UTC.
func convertGoogleEvent(item googleEvent) (domain.Event, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return domain.Event{}, domain.Wrap(domain.KindInternal, "google", err, "serialize raw event")
	}
	rawJSON := string(raw)

	sourceID := item.ID
	if sourceID == "" {
		sourceID = uuid.New().String()
	}

	isAllDay := item.Start != nil && item.Start.Date != nil && item.Start.DateTime == nil

	start, err := parseEventTime(item.Start, false)
	if err != nil {
		return domain.Event{}, err
	}

	var endTime *int64
	if item.End != nil {
		end, err := parseEventTime(item.End, true)
		if err == nil {
			ts := end.Unix()
			endTime = &ts
		}
	}

	var participants *string
	if len(item.Attendees) > 0 {
		emails := make([]string, 0, len(item.Attendees))
		for _, a := range item.Attendees {
			if a.Email != nil {
				emails = append(emails, *a.Email)
			}
		}
		if len(emails) > 0 {
			encoded, err := json.Marshal(emails)
			if err == nil {
				p := string(encoded)
				participants = &p
			}
		}
	}

	eventType := "google_calendar"
	return domain.Event{
		SourceID:     sourceID,
		Title:        item.Summary,
		Description:  item.Description,
		StartTime:    start.Unix(),
		EndTime:      endTime,
		Location:     item.Location,
		EventType:    &eventType,
		Participants: participants,
		RawDataJSON:  &rawJSON,
		IsAllDay:     isAllDay,
	}, nil
}

// parseEventTime handles both datetime and date-only boundaries. Date-only
// values are expressed as naive UTC: midnight for starts, 23:59:59 for
// ends, preserving the local day without timezone shift.
func parseEventTime(dt *googleDateTime, isEnd bool) (time.Time, error) {
	if dt == nil {
		return time.Time{}, domain.Errf(domain.KindValidation, "google", "event has no time")
	}
	if dt.DateTime != nil {
		parsed, err := time.Parse(time.RFC3339, *dt.DateTime)
		if err != nil {
			return time.Time{}, domain.Wrap(domain.KindParsing, "google", err, "invalid datetime")
		}
		return parsed.UTC(), nil
	}
	if dt.Date != nil {
		parsed, err := time.ParseInLocation("2006-01-02", *dt.Date, time.UTC)
		if err != nil {
			return time.Time{}, domain.Wrap(domain.KindParsing, "google", err, "invalid date")
		}
		if isEnd {
			return parsed.Add(23*time.Hour + 59*time.Minute + 59*time.Second), nil
		}
		return parsed, nil
	}
	return time.Time{}, domain.Errf(domain.KindValidation, "google", "event has neither date nor datetime")
}
