// Package secrets reads externally decrypted secrets and flattens them
// into dotted keys. The daemon never decrypts anything itself; a SOPS (or
// similar) pipeline is expected to have produced a plain YAML document at
// one of the standard search paths.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Well-known secret keys recognized by the config overlay.
const (
	KeyClaudeAPI            = "claude_api_key"
	KeyGoogleCalendarSecret = "google_calendar_client_secret"
	KeyOpenWeatherMap       = "openweathermap_api_key"
	KeyTodoist              = "todoist_api_key"
)

// Secrets is a flat dotted-key map of decrypted secret values.
type Secrets struct {
	values map[string]string
}

// searchPaths returns the standard secret file locations, most specific
// first. The home-relative entries expand against the current user.
func searchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".nixos", "secrets", "secrets.yaml"),
		filepath.Join(home, ".config", "jasper-companion", "secrets.yaml"),
		"/etc/jasper-companion/secrets.yaml",
	}
}

// Load reads the first readable secrets file from the search path list.
// A missing file is not an error: configured values simply stay in place.
func Load() *Secrets {
	for _, path := range searchPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		s, err := parse(data)
		if err != nil {
			log.Warn().Str("component", "secrets").Str("path", path).Err(err).
				Msg("secrets file unreadable, skipping")
			continue
		}
		log.Debug().Str("component", "secrets").Str("path", path).
			Int("count", len(s.values)).Msg("loaded secrets")
		return s
	}
	log.Debug().Str("component", "secrets").Msg("no secrets file found")
	return &Secrets{values: map[string]string{}}
}

// parse flattens a nested YAML document into dotted keys, dropping the
// reserved sops subtree and its metadata fields.
func parse(data []byte) (*Secrets, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	values := make(map[string]string)
	flatten("", doc, values)
	return &Secrets{values: values}, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, val := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if full == "sops" || strings.HasPrefix(full, "sops.") ||
			strings.Contains(full, "lastmodified") || strings.Contains(full, "mac") {
			continue
		}
		switch v := val.(type) {
		case map[string]any:
			flatten(full, v, out)
		case string:
			out[full] = v
		case nil:
			// Section with no value; nothing to record.
		default:
			out[full] = strings.TrimSpace(strings.Trim(stringify(v), "\n"))
		}
	}
}

func stringify(v any) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Get returns the value for a dotted key, or false when absent.
func (s *Secrets) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len reports how many secrets were loaded.
func (s *Secrets) Len() int { return len(s.values) }
