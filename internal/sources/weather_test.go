package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jasper-companion/jasper/internal/config"
)

func TestWeatherSource_DemoPayloadWithoutKey(t *testing.T) {
	src := NewWeatherSource(config.WeatherConfig{Enabled: true, Units: "imperial"})

	weather, err := src.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch() error: %v", err)
	}
	if !strings.Contains(weather.CurrentConditions, "Partly cloudy") {
		t.Errorf("CurrentConditions = %q", weather.CurrentConditions)
	}
	if len(weather.Forecast) != 3 {
		t.Errorf("got %d forecast days, want 3", len(weather.Forecast))
	}
	if len(weather.Alerts) == 0 {
		t.Error("demo payload should carry alerts")
	}
}

func TestWeatherSource_DemoPayloadWithPlaceholderKey(t *testing.T) {
	src := NewWeatherSource(config.WeatherConfig{
		Enabled: true, APIKey: "your_openweathermap_api_key_here",
	})
	weather, err := src.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch() error: %v", err)
	}
	if len(weather.Forecast) == 0 {
		t.Error("placeholder key should serve the demo payload")
	}
}

func TestWeatherSource_FetchesCurrentAndForecast(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "real-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(owmCurrent{
			Weather: []owmCondition{{Main: "Thunderstorm", Description: "heavy thunderstorm"}},
			Main:    owmMain{Temp: 95.0, FeelsLike: 99.0, Humidity: 70},
			Name:    "Detroit",
		})
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		json.NewEncoder(w).Encode(owmForecast{List: []owmForecastItem{
			{Dt: base.Unix(), Main: owmMain{TempMax: 96, TempMin: 70}, Pop: 0.9,
				Weather: []owmCondition{{Main: "Rain", Description: "rain"}}},
			{Dt: base.Add(3 * time.Hour).Unix(), Main: owmMain{TempMax: 98, TempMin: 68}, Pop: 0.5,
				Weather: []owmCondition{{Main: "Rain", Description: "rain"}}},
			{Dt: base.AddDate(0, 0, 1).Unix(), Main: owmMain{TempMax: 80, TempMin: 60}, Pop: 0.1,
				Weather: []owmCondition{{Main: "Clear", Description: "clear"}}},
		}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewWeatherSource(config.WeatherConfig{
		Enabled: true, APIKey: "real-key", Location: "Detroit, MI", Units: "imperial",
	})
	src.baseURL = server.URL
	src.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	weather, err := src.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch() error: %v", err)
	}

	if !strings.Contains(weather.CurrentConditions, "heavy thunderstorm") {
		t.Errorf("CurrentConditions = %q", weather.CurrentConditions)
	}
	if len(weather.Forecast) != 2 {
		t.Fatalf("got %d forecast days, want 2", len(weather.Forecast))
	}
	// Two slots on day one collapse into one entry with the max high and
	// max precipitation chance.
	if weather.Forecast[0].TemperatureHigh != 98 {
		t.Errorf("day 1 high = %v, want 98", weather.Forecast[0].TemperatureHigh)
	}
	if weather.Forecast[0].PrecipitationChance != 0.9 {
		t.Errorf("day 1 pop = %v, want 0.9", weather.Forecast[0].PrecipitationChance)
	}

	joined := strings.Join(weather.Alerts, "\n")
	if !strings.Contains(joined, "Thunderstorms expected") {
		t.Errorf("alerts missing thunderstorm warning: %v", weather.Alerts)
	}
	if !strings.Contains(joined, "stay hydrated") {
		t.Errorf("alerts missing heat warning at 95°F: %v", weather.Alerts)
	}
	if !strings.Contains(joined, "rain today") {
		t.Errorf("alerts missing rain-today warning: %v", weather.Alerts)
	}
}

func TestWeatherAlerts_FreezingMetric(t *testing.T) {
	src := NewWeatherSource(config.WeatherConfig{Enabled: true, Units: "metric"})
	src.now = func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }

	current := &owmCurrent{
		Weather: []owmCondition{{Main: "Snow", Description: "light snow"}},
		Main:    owmMain{Temp: -3.0},
	}
	alerts := src.weatherAlerts(current, nil)
	joined := strings.Join(alerts, "\n")
	if !strings.Contains(joined, "Snow conditions") {
		t.Errorf("alerts missing snow warning: %v", alerts)
	}
	if !strings.Contains(joined, "dress warmly") {
		t.Errorf("alerts missing freezing warning: %v", alerts)
	}
}
