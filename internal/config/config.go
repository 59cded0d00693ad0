// internal/config/config.go
//
// This package handles configuration and the .ragareview directory structure.
// Every project directory the reviewer runs from gets a .ragareview/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DataDir is the name of the directory we create in each project
	DataDir = ".ragareview"

	SinkLog         = "log"
	SinkEventBridge = "eventbridge"

	defaultJournalLimit    = 7
	defaultAuditDateLayout = "1/2/2006"
	defaultSendBackNote    = "Please review tone."
	defaultFeedbackNote    = "Please refine empathy / context."
	defaultLogLevel        = "info"
)

const defaultProjectConfigYAML = `# raga-review configuration
version: 1
log_level: info

reviewer:
  name: Dr. Mehta
  title: Clinical Psychologist

queue:
  # Path to a summary-queue YAML document. Leave empty to load the demo queue.
  seed: ""
  audit_date_layout: "1/2/2006"
  default_send_back_note: Please review tone.

panel:
  journal_limit: 7
  clear_notes_on_switch: true
  feedback_note: Please refine empathy / context.

api:
  enabled: false
  host: 127.0.0.1
  port: 8787

notify:
  triage:
    sink: log
  tasks:
    sink: log
  # event_bus: clinical-review
  # region: eu-west-1
`

// ReviewerConfig identifies who is reviewing.
type ReviewerConfig struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title,omitempty"`
}

// QueueConfig controls how the review queue is seeded and annotated.
type QueueConfig struct {
	Seed                string `yaml:"seed"`
	AuditDateLayout     string `yaml:"audit_date_layout"`
	DefaultSendBackNote string `yaml:"default_send_back_note"`
}

// PanelConfig captures review panel preferences.
type PanelConfig struct {
	JournalLimit       int    `yaml:"journal_limit"`
	ClearNotesOnSwitch *bool  `yaml:"clear_notes_on_switch,omitempty"`
	FeedbackNote       string `yaml:"feedback_note"`
}

// APIConfig is the raw api section; httpapi.SettingsFromConfig applies defaults.
type APIConfig struct {
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	RatePerSecond  float64  `yaml:"rate_per_second,omitempty"`
	Burst          int      `yaml:"burst,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// SinkConfig selects the delivery transport for one collaborator.
type SinkConfig struct {
	Sink string `yaml:"sink"`
}

// BreakerConfig tunes the circuit breaker around remote sinks.
type BreakerConfig struct {
	MinRequests      uint32        `yaml:"min_requests,omitempty"`
	FailureThreshold float64       `yaml:"failure_threshold,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
}

// NotifyConfig wires triage alerts and micro-task dispatch.
type NotifyConfig struct {
	Triage   SinkConfig    `yaml:"triage"`
	Tasks    SinkConfig    `yaml:"tasks"`
	EventBus string        `yaml:"event_bus,omitempty"`
	Source   string        `yaml:"source,omitempty"`
	Region   string        `yaml:"region,omitempty"`
	Breaker  BreakerConfig `yaml:"breaker,omitempty"`
}

// ProjectConfig models .ragareview/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	LogLevel string         `yaml:"log_level"`
	Reviewer ReviewerConfig `yaml:"reviewer"`
	Queue    QueueConfig    `yaml:"queue"`
	Panel    PanelConfig    `yaml:"panel"`
	API      APIConfig      `yaml:"api"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory the reviewer ran raga-review from
	ProjectDir string

	// DataProjectDir is ProjectDir/.ragareview
	DataProjectDir string

	Project ProjectConfig
}

// InitDir creates the .ragareview directory structure in projectDir.
//
// Structure created:
// .ragareview/
// ├── config.yaml
// ├── logs/   <- structured log and the review trail
// ├── seed/   <- queue documents handed over by the summary generator
// └── state/  <- reserved for exported snapshots
func InitDir(projectDir string) error {
	dataDir := filepath.Join(projectDir, DataDir)
	dirs := []string{
		filepath.Join(dataDir, "logs"),
		filepath.Join(dataDir, "seed"),
		filepath.Join(dataDir, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(dataDir, "config.yaml"))
}

// NewConfig loads .ragareview/config.yaml (if present) and applies
// environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:     projectDir,
		DataProjectDir: filepath.Join(projectDir, DataDir),
		Project:        defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides(projectDir)
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataProjectDir, "logs")
}

// SeedDir returns the directory conventionally holding queue documents
func (c *Config) SeedDir() string {
	return filepath.Join(c.DataProjectDir, "seed")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.DataProjectDir, "state")
}

// TrailPath returns the review trail file.
func (c *Config) TrailPath() string {
	return filepath.Join(c.LogsDir(), "review-trail.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DataProjectDir, "config.yaml")
}

// SeedPath returns the resolved queue document path, or "" for the demo queue.
func (c *Config) SeedPath() string {
	return c.Project.Queue.Seed
}

// ClearNotesOnSwitch reports the panel notes policy.
func (c *Config) ClearNotesOnSwitch() bool {
	if c.Project.Panel.ClearNotesOnSwitch == nil {
		return true
	}
	return *c.Project.Panel.ClearNotesOnSwitch
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.LogLevel) == "" {
		pc.LogLevel = defaultLogLevel
	}
	if strings.TrimSpace(pc.Queue.AuditDateLayout) == "" {
		pc.Queue.AuditDateLayout = defaultAuditDateLayout
	}
	if strings.TrimSpace(pc.Queue.DefaultSendBackNote) == "" {
		pc.Queue.DefaultSendBackNote = defaultSendBackNote
	}
	if pc.Panel.JournalLimit == 0 {
		pc.Panel.JournalLimit = defaultJournalLimit
	}
	if strings.TrimSpace(pc.Panel.FeedbackNote) == "" {
		pc.Panel.FeedbackNote = defaultFeedbackNote
	}
	if strings.TrimSpace(pc.Notify.Triage.Sink) == "" {
		pc.Notify.Triage.Sink = SinkLog
	}
	if strings.TrimSpace(pc.Notify.Tasks.Sink) == "" {
		pc.Notify.Tasks.Sink = SinkLog
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.LogLevel = strings.ToLower(strings.TrimSpace(pc.LogLevel))
	pc.Reviewer.Name = strings.TrimSpace(pc.Reviewer.Name)
	pc.Reviewer.Title = strings.TrimSpace(pc.Reviewer.Title)
	pc.Queue.Seed = resolvePath(base, pc.Queue.Seed)
	pc.Queue.DefaultSendBackNote = strings.TrimSpace(pc.Queue.DefaultSendBackNote)
	pc.Panel.FeedbackNote = strings.TrimSpace(pc.Panel.FeedbackNote)
	pc.Notify.Triage.Sink = normalizeSink(pc.Notify.Triage.Sink)
	pc.Notify.Tasks.Sink = normalizeSink(pc.Notify.Tasks.Sink)
	pc.Notify.EventBus = strings.TrimSpace(pc.Notify.EventBus)
	pc.Notify.Region = strings.TrimSpace(pc.Notify.Region)
	for i, origin := range pc.API.AllowedOrigins {
		pc.API.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Panel.JournalLimit < 1 {
		return fmt.Errorf("panel.journal_limit must be >= 1")
	}
	for name, sink := range map[string]SinkConfig{"triage": pc.Notify.Triage, "tasks": pc.Notify.Tasks} {
		switch sink.Sink {
		case SinkLog:
		case SinkEventBridge:
			if pc.Notify.EventBus == "" {
				return fmt.Errorf("notify.event_bus is required when notify.%s.sink is eventbridge", name)
			}
		default:
			return fmt.Errorf("notify.%s.sink must be 'log' or 'eventbridge'", name)
		}
	}
	if pc.Notify.Breaker.FailureThreshold < 0 || pc.Notify.Breaker.FailureThreshold > 1 {
		return fmt.Errorf("notify.breaker.failure_threshold must be between 0 and 1")
	}
	if pc.API.Port < 0 || pc.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}
	return nil
}

func (pc *ProjectConfig) applyEnvOverrides(base string) {
	if seed, ok := os.LookupEnv("RAGA_REVIEW_SEED"); ok {
		pc.Queue.Seed = resolvePath(base, seed)
	}
	if level := strings.TrimSpace(os.Getenv("RAGA_REVIEW_LOG_LEVEL")); level != "" {
		pc.LogLevel = strings.ToLower(level)
	}
	if name := strings.TrimSpace(os.Getenv("RAGA_REVIEW_REVIEWER")); name != "" {
		pc.Reviewer.Name = name
	}
	if value := strings.TrimSpace(os.Getenv("RAGA_REVIEW_JOURNAL_LIMIT")); value != "" {
		if limit, err := strconv.Atoi(value); err == nil && limit > 0 {
			pc.Panel.JournalLimit = limit
		}
	}
	if sink := strings.TrimSpace(os.Getenv("RAGA_REVIEW_NOTIFY_SINK")); sink != "" {
		pc.Notify.Triage.Sink = normalizeSink(sink)
		pc.Notify.Tasks.Sink = normalizeSink(sink)
	}
	if bus := strings.TrimSpace(os.Getenv("RAGA_REVIEW_EVENT_BUS")); bus != "" {
		pc.Notify.EventBus = bus
	}
	if region := strings.TrimSpace(os.Getenv("AWS_REGION")); region != "" && pc.Notify.Region == "" {
		pc.Notify.Region = region
	}
}

func normalizeSink(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
