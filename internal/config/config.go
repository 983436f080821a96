// Package config loads the scenario engine's launch configuration from
// environment variables: platform selector, platform credentials, scenario
// document path, and the telemetry/store toggles the domain stack adds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the scenario engine server.
type Config struct {
	Port      int
	Version   string
	Scenario  ScenarioConfig
	Platform  PlatformConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
	Notify    NotifyConfig
}

// ScenarioConfig points at the scenario document the engine runs.
type ScenarioConfig struct {
	// Path is a filesystem path to the scenario JSON document (default
	// "scenario.json"). It is the only source the engine loads from.
	Path string
	// ID is an identifier the (out-of-scope) authoring CRUD service would
	// resolve to a document. Carried here so a future loader has somewhere
	// to read it from; this engine itself only reads Path.
	ID string
}

// PlatformConfig selects which transport adapter(s) to start and carries
// their credentials. An unknown platform name is fatal at startup (spec §6).
type PlatformConfig struct {
	// Names is the closed set of adapter names to start: "telegram",
	// "websocket", or both.
	Names []string

	TelegramToken string

	WebSocketAddr      string
	WebSocketRateLimit float64 // messages/sec per connection
	WebSocketBurst     int
}

// StoreConfig selects the State Store backend.
type StoreConfig struct {
	// Backend is "memory" (default) or "postgres".
	Backend string
	// PostgresURL is read when Backend == "postgres".
	PostgresURL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// NotifyConfig configures the optional session-lifecycle webhook fan-out.
type NotifyConfig struct {
	// WebhookURLs receive a signed POST when a session reaches "final" or
	// terminates with an unrecoverable "break". Empty disables the feature.
	WebhookURLs []string
	Secret      string
	Timeout     time.Duration
}

const UnknownPlatformFatal = "unknown platform selector"

var validPlatforms = map[string]bool{
	"telegram":  true,
	"websocket": true,
}

// Load reads configuration from environment variables with sensible
// defaults, matching the engine's own AGENTOVEN_*-free naming: every
// engine-specific variable here is prefixed SCENARIO_ to avoid colliding with
// the control plane's own env surface when both run on one host; the
// telemetry settings use the standard OTEL_* names.
func Load() *Config {
	return &Config{
		Port:    envInt("SCENARIO_PORT", 8080),
		Version: envStr("SCENARIO_VERSION", "0.1.0"),
		Scenario: ScenarioConfig{
			Path: envStr("SCENARIO_DOCUMENT_PATH", "scenario.json"),
			ID:   envStr("SCENARIO_DOCUMENT_ID", ""),
		},
		Platform: PlatformConfig{
			Names:              envList("SCENARIO_PLATFORMS", []string{}),
			TelegramToken:      envStr("SCENARIO_TELEGRAM_TOKEN", ""),
			WebSocketAddr:      envStr("SCENARIO_WEBSOCKET_ADDR", ":8081"),
			WebSocketRateLimit: envFloat("SCENARIO_WEBSOCKET_RATE_LIMIT", 5.0),
			WebSocketBurst:     envInt("SCENARIO_WEBSOCKET_BURST", 10),
		},
		Store: StoreConfig{
			Backend:     envStr("SCENARIO_STORE_BACKEND", "memory"),
			PostgresURL: envStr("SCENARIO_PG_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "scenario-engine"),
		},
		Notify: NotifyConfig{
			WebhookURLs: envList("SCENARIO_NOTIFY_WEBHOOKS", nil),
			Secret:      envStr("SCENARIO_NOTIFY_SECRET", ""),
			Timeout:     envDuration("SCENARIO_NOTIFY_TIMEOUT", 15*time.Second),
		},
	}
}

// ValidatePlatforms checks every configured platform name against the
// closed set the engine knows how to start. An unknown platform is fatal at
// startup, per spec §6.
func ValidatePlatforms(names []string) error {
	for _, n := range names {
		if !validPlatforms[n] {
			return fmt.Errorf("%s: %q (allowed: telegram, websocket)", UnknownPlatformFatal, n)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
