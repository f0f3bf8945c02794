package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Remote API
	APIBaseURL string
	APITimeout time.Duration

	// Server
	Port             int
	SessionSecret    string
	WorkspaceIdleTTL time.Duration

	// Drafts database (optional)
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Settings screen
	AvailabilityDebounce time.Duration

	// RSS Feed
	FeedTitle       string
	FeedDescription string
	FeedLink        string
	FeedAuthor      string

	// Generation form presets
	Presets Presets
}

// Presets configures the choices offered by the bulk generation form
type Presets struct {
	GPTVersions []GPTVersion `yaml:"gpt_versions"`
	Languages   []string     `yaml:"languages"`
	WordCounts  []WordCount  `yaml:"word_counts"`
	MaxFAQs     int          `yaml:"max_faqs"`
}

// GPTVersion maps a display label to the model identifier sent to the API
type GPTVersion struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

// WordCount maps a word count preset to the article type it implies
type WordCount struct {
	Words       int    `yaml:"words"`
	ArticleType string `yaml:"article_type"`
}

// DefaultPresets returns the generation presets used when no config file is given
func DefaultPresets() Presets {
	return Presets{
		GPTVersions: []GPTVersion{
			{Label: "GPT-4o", Value: "gpt-4"},
			{Label: "o1-preview", Value: "gpt-4-turbo"},
			{Label: "o1-mini", Value: "gpt-3.5-turbo"},
		},
		Languages: []string{"English", "Bangla"},
		WordCounts: []WordCount{
			{Words: 1500, ArticleType: "Long Article"},
			{Words: 750, ArticleType: "Short Article"},
		},
		MaxFAQs: 10,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:           strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8000"), "/"),
		APITimeout:           time.Duration(getEnvAsInt("API_TIMEOUT", 30)) * time.Second,
		Port:                 getEnvAsInt("PORT", 8080),
		SessionSecret:        getEnv("SESSION_SECRET", ""),
		WorkspaceIdleTTL:     time.Duration(getEnvAsInt("WORKSPACE_IDLE_MINUTES", 60)) * time.Minute,
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		AvailabilityDebounce: time.Duration(getEnvAsInt("AVAILABILITY_DEBOUNCE_MS", 500)) * time.Millisecond,
		FeedTitle:            getEnv("FEED_TITLE", "Inkdesk Published Articles"),
		FeedDescription:      getEnv("FEED_DESCRIPTION", "Articles published from Inkdesk"),
		FeedLink:             getEnv("FEED_LINK", "http://localhost:8080"),
		FeedAuthor:           getEnv("FEED_AUTHOR", "Inkdesk"),
		Presets:              DefaultPresets(),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		presets, err := LoadPresets(path)
		if err != nil {
			return nil, err
		}
		cfg.Presets = presets
	}

	// Validate required fields
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	return cfg, nil
}

// LoadPresets reads generation presets from a YAML file. Sections left out
// of the file keep their defaults.
func LoadPresets(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Presets{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var file struct {
		Presets Presets `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Presets{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	presets := DefaultPresets()
	if len(file.Presets.GPTVersions) > 0 {
		presets.GPTVersions = file.Presets.GPTVersions
	}
	if len(file.Presets.Languages) > 0 {
		presets.Languages = file.Presets.Languages
	}
	if len(file.Presets.WordCounts) > 0 {
		presets.WordCounts = file.Presets.WordCounts
	}
	if file.Presets.MaxFAQs > 0 {
		presets.MaxFAQs = file.Presets.MaxFAQs
	}
	return presets, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
