package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/domain"
)

const (
	openWeatherMapBaseURL = "https://api.openweathermap.org/data/2.5"

	// placeholderAPIKey is the documented sample value; seeing it means the
	// user never configured a real key, so the demo payload is served.
	placeholderAPIKey = "your_openweathermap_api_key_here"
)

// WeatherSource fetches current conditions and a 5-day forecast from
// OpenWeatherMap. Without a usable API key it returns a deterministic demo
// payload so the rest of the pipeline stays exercisable offline.
type WeatherSource struct {
	cfg     config.WeatherConfig
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewWeatherSource creates a weather source for the configured location.
func NewWeatherSource(cfg config.WeatherConfig) *WeatherSource {
	return &WeatherSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: openWeatherMapBaseURL,
		now:     time.Now,
	}
}

func (s *WeatherSource) SourceID() string    { return "weather" }
func (s *WeatherSource) DisplayName() string { return "Weather" }
func (s *WeatherSource) Enabled() bool       { return s.cfg.Enabled }
func (s *WeatherSource) Priority() int       { return 75 }

func (s *WeatherSource) RequiredConfig() []string { return []string{"api_key", "location"} }

// FetchContext returns the weather context for the window.
func (s *WeatherSource) FetchContext(ctx context.Context, _, _ time.Time) (ContextData, error) {
	weather, err := s.fetch(ctx)
	if err != nil {
		return ContextData{}, err
	}

	return ContextData{
		SourceID:  s.SourceID(),
		Timestamp: s.now().UTC(),
		DataType:  TypeWeather,
		Priority:  s.Priority(),
		Weather:   weather,
		Metadata: map[string]string{
			"location":    s.cfg.Location,
			"source_type": "weather",
		},
	}, nil
}

func (s *WeatherSource) fetch(ctx context.Context) (*WeatherContext, error) {
	if s.cfg.APIKey == "" || s.cfg.APIKey == placeholderAPIKey {
		return s.demoPayload(), nil
	}

	// Current conditions and forecast come from the same remote; fetch
	// them in parallel.
	type currentResult struct {
		data *owmCurrent
		err  error
	}
	type forecastResult struct {
		data *owmForecast
		err  error
	}
	currentCh := make(chan currentResult, 1)
	forecastCh := make(chan forecastResult, 1)

	go func() {
		var data owmCurrent
		err := s.get(ctx, "/weather", &data)
		currentCh <- currentResult{&data, err}
	}()
	go func() {
		var data owmForecast
		err := s.get(ctx, "/forecast", &data)
		forecastCh <- forecastResult{&data, err}
	}()

	current := <-currentCh
	forecastResp := <-forecastCh
	if current.err != nil {
		return nil, current.err
	}
	if forecastResp.err != nil {
		return nil, forecastResp.err
	}

	forecast := dailyForecast(forecastResp.data.List)
	conditions := s.renderConditions(current.data)
	alerts := s.weatherAlerts(current.data, forecast)

	return &WeatherContext{
		CurrentConditions: conditions,
		Forecast:          forecast,
		Alerts:            alerts,
	}, nil
}

func (s *WeatherSource) get(ctx context.Context, path string, out any) error {
	q := url.Values{}
	q.Set("q", s.cfg.Location)
	q.Set("appid", s.cfg.APIKey)
	q.Set("units", s.cfg.Units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "weather", err, "build request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindNetwork, "weather", err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Errf(domain.KindAPI, "weather", "GET %s returned %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.KindParsing, "weather", err, "decode response")
	}
	return nil
}

// ─── OpenWeatherMap wire types ──────────────────────────────────────────────

type owmCurrent struct {
	Weather []owmCondition `json:"weather"`
	Main    owmMain        `json:"main"`
	Rain    *owmVolume     `json:"rain"`
	Snow    *owmVolume     `json:"snow"`
	Name    string         `json:"name"`
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Humidity  int     `json:"humidity"`
}

type owmVolume struct {
	OneHour float64 `json:"1h"`
}

type owmForecast struct {
	List []owmForecastItem `json:"list"`
}

type owmForecastItem struct {
	Dt      int64          `json:"dt"`
	Main    owmMain        `json:"main"`
	Weather []owmCondition `json:"weather"`
	Pop     float64        `json:"pop"`
}

// ─── Derivations ────────────────────────────────────────────────────────────

// dailyForecast collapses 3-hour forecast slots into per-day highs/lows,
// keeping the next five days.
func dailyForecast(items []owmForecastItem) []Forecast {
	byDay := make(map[string]*Forecast)
	for _, item := range items {
		ts := time.Unix(item.Dt, 0).UTC()
		key := ts.Format("2006-01-02")

		entry, ok := byDay[key]
		if !ok {
			conditions, description := "Unknown", "No description"
			if len(item.Weather) > 0 {
				conditions = item.Weather[0].Main
				description = item.Weather[0].Description
			}
			day := ts.Truncate(24 * time.Hour).Add(12 * time.Hour)
			byDay[key] = &Forecast{
				Date:                day,
				TemperatureHigh:     item.Main.TempMax,
				TemperatureLow:      item.Main.TempMin,
				Conditions:          conditions,
				PrecipitationChance: item.Pop,
				Description:         description,
			}
			continue
		}

		if item.Main.TempMax > entry.TemperatureHigh {
			entry.TemperatureHigh = item.Main.TempMax
		}
		if item.Main.TempMin < entry.TemperatureLow {
			entry.TemperatureLow = item.Main.TempMin
		}
		if item.Pop > entry.PrecipitationChance {
			entry.PrecipitationChance = item.Pop
		}
	}

	forecasts := make([]Forecast, 0, len(byDay))
	for _, f := range byDay {
		forecasts = append(forecasts, *f)
	}
	sort.Slice(forecasts, func(i, j int) bool { return forecasts[i].Date.Before(forecasts[j].Date) })
	if len(forecasts) > 5 {
		forecasts = forecasts[:5]
	}
	return forecasts
}

func (s *WeatherSource) renderConditions(current *owmCurrent) string {
	if len(current.Weather) == 0 {
		return "Current temperature: " + s.formatTemp(current.Main.Temp)
	}
	return fmt.Sprintf("%s, %s (feels like %s), %d%% humidity",
		current.Weather[0].Description,
		s.formatTemp(current.Main.Temp),
		s.formatTemp(current.Main.FeelsLike),
		current.Main.Humidity,
	)
}

func (s *WeatherSource) formatTemp(temp float64) string {
	switch s.cfg.Units {
	case "metric":
		return fmt.Sprintf("%.0f°C", temp)
	case "kelvin":
		return fmt.Sprintf("%.0fK", temp)
	default:
		return fmt.Sprintf("%.0f°F", temp)
	}
}

// weatherAlerts derives actionable warnings from conditions, temperature
// extremes and precipitation probability.
func (s *WeatherSource) weatherAlerts(current *owmCurrent, forecast []Forecast) []string {
	var alerts []string

	if len(current.Weather) > 0 {
		switch current.Weather[0].Main {
		case "Thunderstorm":
			alerts = append(alerts, "Thunderstorms expected - plan indoor activities")
		case "Snow":
			alerts = append(alerts, "Snow conditions - allow extra travel time")
		case "Rain":
			if current.Rain != nil && current.Rain.OneHour > 5.0 {
				alerts = append(alerts, "Heavy rain expected - consider rescheduling outdoor plans")
			}
		}
	}

	switch s.cfg.Units {
	case "imperial":
		if current.Main.Temp < 32.0 {
			alerts = append(alerts, "Freezing temperatures - dress warmly")
		} else if current.Main.Temp > 90.0 {
			alerts = append(alerts, "High temperatures - stay hydrated")
		}
	case "metric":
		if current.Main.Temp < 0.0 {
			alerts = append(alerts, "Below freezing - dress warmly")
		} else if current.Main.Temp > 32.0 {
			alerts = append(alerts, "High temperatures - stay hydrated")
		}
	}

	now := s.now().UTC()
	for i, day := range forecast {
		if i >= 2 {
			break
		}
		if day.PrecipitationChance <= 0.7 {
			continue
		}
		name := day.Date.Format("Monday")
		switch day.Date.Format("2006-01-02") {
		case now.Format("2006-01-02"):
			name = "today"
		case now.AddDate(0, 0, 1).Format("2006-01-02"):
			name = "tomorrow"
		}
		alerts = append(alerts, fmt.Sprintf("High chance of rain %s - bring an umbrella", name))
	}

	return alerts
}

// demoPayload is the fixed offline payload used when no real key is set.
func (s *WeatherSource) demoPayload() *WeatherContext {
	now := s.now().UTC()
	return &WeatherContext{
		CurrentConditions: "Partly cloudy, 72°F (feels like 75°F), 65% humidity",
		Forecast: []Forecast{
			{
				Date:                now,
				TemperatureHigh:     75.0,
				TemperatureLow:      65.0,
				Conditions:          "Partly Cloudy",
				PrecipitationChance: 0.2,
				Description:         "Pleasant weather with some clouds",
			},
			{
				Date:                now.AddDate(0, 0, 1),
				TemperatureHigh:     78.0,
				TemperatureLow:      68.0,
				Conditions:          "Sunny",
				PrecipitationChance: 0.1,
				Description:         "Clear skies and warm temperatures",
			},
			{
				Date:                now.AddDate(0, 0, 2),
				TemperatureHigh:     82.0,
				TemperatureLow:      70.0,
				Conditions:          "Thunderstorms",
				PrecipitationChance: 0.8,
				Description:         "Scattered thunderstorms in the afternoon",
			},
		},
		Alerts: []string{
			"High chance of rain Saturday - bring an umbrella",
			"Thunderstorms expected Saturday - plan indoor activities",
		},
	}
}
