package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".video-digest"

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/writer-system-prompt.md
var defaultWriterSystemPrompt string

//go:embed config/digest.html.tmpl
var defaultDigestTemplate string

//go:embed config/digest.css
var defaultDigestCSS string

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath     *string
	WriterPromptPath *string
	TemplatePath     *string
}

// Settings represents the YAML configuration structure
type Settings struct {
	Channels  []string      `yaml:"channels"`
	StateFile string        `yaml:"state_file"`
	Delay     time.Duration `yaml:"delay"`

	Discovery struct {
		APIEndpoint     string        `yaml:"api_endpoint"`
		SiteBaseURL     string        `yaml:"site_base_url"`
		Depth           int           `yaml:"depth"`
		Timeout         time.Duration `yaml:"timeout"`
		SkipShortsProbe bool          `yaml:"skip_shorts_probe"`
		ProbeRPS        float64       `yaml:"probe_rps"`
	} `yaml:"discovery"`

	Transcript struct {
		Languages []string      `yaml:"languages"`
		Timeout   time.Duration `yaml:"timeout"`
		CacheDir  string        `yaml:"cache_dir"`
		Command   []string      `yaml:"command"`
	} `yaml:"transcript"`

	Writer struct {
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"writer"`

	Delivery struct {
		SMTPHost      string        `yaml:"smtp_host"`
		SMTPPort      int           `yaml:"smtp_port"`
		SSL           bool          `yaml:"ssl"`
		Timeout       time.Duration `yaml:"timeout"`
		From          string        `yaml:"from"`
		To            string        `yaml:"to"`
		SubjectPrefix string        `yaml:"subject_prefix"`
		OutputDir     string        `yaml:"output_dir"`
	} `yaml:"delivery"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Secrets are read from the environment (optionally seeded from .env).
type Secrets struct {
	YouTubeAPIKey    string
	AnthropicAPIKey  string
	TranscriptAPIKey string
	TranscriptAPIURL string
	SMTPUsername     string
	SMTPPassword     string
}

// Config holds settings, secrets and overrides
type Config struct {
	Settings  *Settings
	Secrets   Secrets
	Overrides *ConfigOverrides
}

// NewConfig loads .env, the settings file and environment secrets.
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var (
		settings *Settings
		err      error
	)
	if overrides != nil && overrides.SettingsPath != nil {
		// Explicit settings file must exist
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		settings, err = loadSettings(getConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	return &Config{
		Settings:  settings,
		Secrets:   secretsFromEnv(),
		Overrides: overrides,
	}, nil
}

func secretsFromEnv() Secrets {
	s := Secrets{
		YouTubeAPIKey:    os.Getenv("YOUTUBE_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		TranscriptAPIKey: os.Getenv("YOUTUBE_TRANSCRIPT_API_KEY"),
		TranscriptAPIURL: os.Getenv("YOUTUBE_TRANSCRIPT_API_URL"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
	}
	if s.SMTPUsername == "" {
		s.SMTPUsername = os.Getenv("GMAIL_ADDRESS")
	}
	if s.SMTPPassword == "" {
		s.SMTPPassword = os.Getenv("GMAIL_APP_PASSWORD")
	}
	return s
}

// Validate checks the settings needed for a run. Delivery credentials are only
// required when the digest is actually mailed.
func (c *Config) Validate(dryRun bool) error {
	var problems []string
	s := c.Settings

	if len(s.Channels) == 0 {
		problems = append(problems, "no channels configured")
	}
	if s.StateFile == "" {
		problems = append(problems, "state_file is empty")
	}
	if s.Writer.MaxTokens <= 0 {
		problems = append(problems, "writer.max_tokens must be positive")
	}
	if c.Secrets.AnthropicAPIKey == "" {
		problems = append(problems, "ANTHROPIC_API_KEY is not set")
	}
	if len(s.Transcript.Command) == 0 && (c.Secrets.TranscriptAPIKey == "" || c.Secrets.TranscriptAPIURL == "") {
		problems = append(problems, "transcript source missing: set YOUTUBE_TRANSCRIPT_API_KEY and YOUTUBE_TRANSCRIPT_API_URL or transcript.command")
	}
	if !dryRun {
		if c.sender() == "" {
			problems = append(problems, "delivery.from is empty and SMTP_USERNAME is not set")
		}
		if c.Secrets.SMTPPassword == "" {
			problems = append(problems, "SMTP_PASSWORD (or GMAIL_APP_PASSWORD) is not set")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// sender returns the From address, falling back to the SMTP user.
func (c *Config) sender() string {
	if c.Settings.Delivery.From != "" {
		return c.Settings.Delivery.From
	}
	return c.Secrets.SMTPUsername
}

// recipient returns the To address; the digest goes to the sender by default.
func (c *Config) recipient() string {
	if c.Settings.Delivery.To != "" {
		return c.Settings.Delivery.To
	}
	return c.sender()
}

// GetWriterSystemPrompt returns the writer system prompt (from override file or embedded)
func (c *Config) GetWriterSystemPrompt() (string, error) {
	if c.Overrides != nil && c.Overrides.WriterPromptPath != nil {
		data, err := os.ReadFile(*c.Overrides.WriterPromptPath)
		if err != nil {
			return "", fmt.Errorf("reading writer prompt %s: %w", *c.Overrides.WriterPromptPath, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(defaultWriterSystemPrompt), nil
}

// GetDigestTemplate returns the digest HTML template (from override file or embedded)
func (c *Config) GetDigestTemplate() (string, error) {
	if c.Overrides != nil && c.Overrides.TemplatePath != nil {
		data, err := os.ReadFile(*c.Overrides.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("reading digest template %s: %w", *c.Overrides.TemplatePath, err)
		}
		return string(data), nil
	}
	return defaultDigestTemplate, nil
}

// loadSettings loads settings from YAML file with fallback to the embedded defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return parseSettings([]byte(defaultSettings))
		}
		return nil, err
	}
	return parseSettings(data)
}

// loadSettingsRequired loads settings from YAML file, failing if file doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, err
	}
	return parseSettings(data)
}

// parseSettings decodes data on top of the embedded defaults so a partial file
// only changes what it names.
func parseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}
	// a file that lists channels replaces the default list instead of merging into it
	settings.Channels = nil
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	if settings.Channels == nil {
		var defaults Settings
		_ = yaml.Unmarshal([]byte(defaultSettings), &defaults)
		settings.Channels = defaults.Channels
	}
	return &settings, nil
}

// getConfigPath returns the path to a config file in the .video-digest directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists writes the embedded defaults into the config directory. Existing
// files are left alone; the returned list holds the files that were created.
func ensureConfigExists(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"settings.yaml", defaultSettings},
		{"writer-system-prompt.md", defaultWriterSystemPrompt},
		{"digest.html.tmpl", defaultDigestTemplate},
	}

	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return created, fmt.Errorf("checking %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return created, fmt.Errorf("writing %s: %w", path, err)
		}
		created = append(created, path)
	}
	return created, nil
}
