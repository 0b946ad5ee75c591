package config

import (
	"fmt"
	"strings"
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Model.validate(); err != nil {
		return err
	}
	if err := c.Render.validate(); err != nil {
		return err
	}
	if err := c.Audit.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	if !validLogLevels[a.LogLevel] {
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	if !validLogFormats[a.LogFormat] {
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	if a.TracePredictions && strings.TrimSpace(a.TracePath) == "" {
		return fmt.Errorf("app.trace_path required when trace_predictions is on")
	}
	return nil
}

func (m *ModelConfig) validate() error {
	if strings.TrimSpace(m.Path) == "" {
		return fmt.Errorf("model.path cannot be empty")
	}
	if strings.TrimSpace(m.FeaturesPath) == "" {
		return fmt.Errorf("model.features_path cannot be empty")
	}
	return nil
}

func (r *RenderConfig) validate() error {
	if r.PNGTimeoutSeconds <= 0 || r.PNGTimeoutSeconds > 120 {
		return fmt.Errorf("render.png_timeout_seconds must be in [1,120]")
	}
	if r.PNGPerMinute <= 0 {
		return fmt.Errorf("render.png_per_minute must be > 0")
	}
	if r.PNGMaxConcurrent <= 0 || r.PNGMaxConcurrent > 16 {
		return fmt.Errorf("render.png_max_concurrent must be in [1,16]")
	}
	return nil
}

func (a *AuditConfig) validate() error {
	if a.Enabled && strings.TrimSpace(a.Path) == "" {
		return fmt.Errorf("audit.path required when audit is enabled")
	}
	return nil
}
