package httpapi

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/raga-review/internal/config"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the default TCP port for the review API.
	DefaultPort = 8787
	// DefaultMaxBodyBytes limits request payloads to 64 KB.
	DefaultMaxBodyBytes int64 = 64 << 10
	// DefaultRatePerSecond bounds sustained request throughput.
	DefaultRatePerSecond = 20.0
	// DefaultBurst bounds request bursts.
	DefaultBurst = 40
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the review API server.
type Settings struct {
	Enabled        bool
	Host           string
	Port           int
	MaxBodyBytes   int64
	RatePerSecond  float64
	Burst          int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// DefaultSettings returns an enabled loopback configuration.
func DefaultSettings() Settings {
	s := Settings{Enabled: true}
	s.normalize()
	return s
}

// SettingsFromConfig builds Settings from the project config and environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Enabled:      false,
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	if cfg != nil {
		raw := cfg.Project.API
		if raw.Enabled != nil {
			settings.Enabled = *raw.Enabled
		}
		if host := strings.TrimSpace(raw.Host); host != "" {
			settings.Host = host
		}
		if isValidPort(raw.Port) {
			settings.Port = raw.Port
		}
		settings.RatePerSecond = raw.RatePerSecond
		settings.Burst = raw.Burst
		settings.AllowedOrigins = append([]string(nil), raw.AllowedOrigins...)
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("RAGA_REVIEW_API_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			s.Enabled = enabled
		}
	}
	if host := strings.TrimSpace(os.Getenv("RAGA_REVIEW_API_HOST")); host != "" {
		s.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("RAGA_REVIEW_API_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			s.Port = parsed
		}
	}
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if !isValidPort(s.Port) {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = DefaultRatePerSecond
	}
	if s.Burst <= 0 {
		s.Burst = DefaultBurst
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
