package config

import "strings"

// Config is the root configuration of the CardioRisk service.
type Config struct {
	App    AppConfig    `toml:"app"`
	Model  ModelConfig  `toml:"model"`
	Form   FormConfig   `toml:"form"`
	UI     UIConfig     `toml:"ui"`
	Render RenderConfig `toml:"render"`
	Audit  AuditConfig  `toml:"audit"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
	// TracePath receives one block per prediction when TracePredictions is on.
	TracePath        string `toml:"trace_path"`
	TracePredictions bool   `toml:"trace_predictions"`
}

// ModelConfig points at the exported artifacts.
type ModelConfig struct {
	Path         string `toml:"path"`
	FeaturesPath string `toml:"features_path"`
	MeansPath    string `toml:"means_path"`
}

type FormConfig struct {
	// RulesPath overrides the built-in full-variant widget rules; hot reloaded.
	RulesPath string `toml:"rules_path"`
}

type UIConfig struct {
	Title       string `toml:"title"`
	Subtitle    string `toml:"subtitle"`
	MetricLabel string `toml:"metric_label"`
}

type RenderConfig struct {
	PNGEnabled        bool `toml:"png_enabled"`
	PNGTimeoutSeconds int  `toml:"png_timeout_seconds"`
	PNGPerMinute      int  `toml:"png_per_minute"`
	PNGMaxConcurrent  int  `toml:"png_max_concurrent"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet tracks the field paths explicitly set in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes how one field gets its default.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
