package config

import (
	"strings"
)

const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppLogFormat  = "text"
	defaultAppHTTPAddr   = ":8501"
	defaultTracePath     = "logs/predictions.log"
	defaultModelPath     = "models/cardio_xgb.json"
	defaultFeaturesPath  = "models/feature_order.json"
	defaultUITitle       = "CardioRisk Estimator"
	defaultUISubtitle    = "Predict the Cardio-related risks in 10 years based on clinical biomarkers"
	defaultUIMetricLabel = "Cardio Risk Probability"
	defaultPNGTimeout    = 20
	defaultPNGPerMinute  = 30
	defaultPNGConcurrent = 2
	defaultAuditPath     = "data/predictions.db"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Model.applyDefaults(keys)
	c.Form.applyDefaults(keys)
	c.UI.applyDefaults(keys)
	c.Render.applyDefaults(keys)
	c.Audit.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.trace_path", &a.TracePath, defaultTracePath),
		boolFieldDefault("app.trace_predictions", &a.TracePredictions, false),
	)
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
	a.LogFormat = strings.ToLower(strings.TrimSpace(a.LogFormat))
}

func (m *ModelConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("model.path", &m.Path, defaultModelPath),
		stringFieldDefault("model.features_path", &m.FeaturesPath, defaultFeaturesPath),
	)
	m.MeansPath = strings.TrimSpace(m.MeansPath)
}

func (f *FormConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	f.RulesPath = strings.TrimSpace(f.RulesPath)
}

func (u *UIConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ui.title", &u.Title, defaultUITitle),
		stringFieldDefault("ui.subtitle", &u.Subtitle, defaultUISubtitle),
		stringFieldDefault("ui.metric_label", &u.MetricLabel, defaultUIMetricLabel),
	)
}

func (r *RenderConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "render.png_timeout_seconds",
			need:  func() bool { return r.PNGTimeoutSeconds <= 0 },
			apply: func() { r.PNGTimeoutSeconds = defaultPNGTimeout },
		},
		fieldDefault{
			key:   "render.png_per_minute",
			need:  func() bool { return r.PNGPerMinute <= 0 },
			apply: func() { r.PNGPerMinute = defaultPNGPerMinute },
		},
		fieldDefault{
			key:   "render.png_max_concurrent",
			need:  func() bool { return r.PNGMaxConcurrent <= 0 },
			apply: func() { r.PNGMaxConcurrent = defaultPNGConcurrent },
		},
	)
}

func (a *AuditConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("audit.enabled", &a.Enabled, false),
		stringFieldDefault("audit.path", &a.Path, defaultAuditPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
