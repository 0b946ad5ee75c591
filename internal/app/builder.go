package app

import (
	"context"
	"fmt"
	"time"

	"cardiorisk/internal/booster"
	"cardiorisk/internal/config"
	"cardiorisk/internal/explain"
	"cardiorisk/internal/form"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/predict"
	"cardiorisk/internal/store"
	"cardiorisk/internal/store/gormstore"
	webhttp "cardiorisk/internal/transport/http/web"
	"cardiorisk/internal/visual"
)

// Artifacts are the exported model files, loaded once per process.
type Artifacts struct {
	Booster *booster.Booster
	Order   []string
	Means   map[string]float64
}

type AppBuilder struct {
	cfg *config.Config

	artifactsFn func(config.ModelConfig) (*Artifacts, error)
	rulesFn     func(config.FormConfig) (*form.RuleLoader, error)
	auditFn     func(config.AuditConfig) (store.PredictionLog, error)
	httpFn      func(*config.Config, webhttp.Predictor) (*webhttp.Server, error)
	headlessFn  func(context.Context) error
}

type AppBuilderOption func(*AppBuilder)

// WithAuditStore replaces the audit log factory.
func WithAuditStore(fn func(config.AuditConfig) (store.PredictionLog, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.auditFn = fn }
}

// WithHeadlessProbe replaces the headless Chrome availability check.
func WithHeadlessProbe(fn func(context.Context) error) AppBuilderOption {
	return func(b *AppBuilder) { b.headlessFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		artifactsFn: LoadArtifacts,
		rulesFn:     buildRuleLoader,
		auditFn:     buildAuditStore,
		httpFn:      buildHTTPServer,
		headlessFn:  visual.EnsureHeadlessAvailable,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	arts, err := b.artifactsFn(cfg.Model)
	if err != nil {
		return nil, err
	}
	imputer := inference.NewMeanImputer(arts.Means)
	runner, err := inference.NewRunner(arts.Booster, arts.Order, imputer)
	if err != nil {
		return nil, err
	}
	rules, err := b.rulesFn(cfg.Form)
	if err != nil {
		return nil, err
	}
	var audit store.PredictionLog
	if cfg.Audit.Enabled {
		audit, err = b.auditFn(cfg.Audit)
		if err != nil {
			return nil, fmt.Errorf("open audit log failed: %w", err)
		}
	}
	svc, err := predict.NewService(predict.Deps{
		Runner:     runner,
		Explainer:  explain.NewTreeExplainer(arts.Booster, arts.Order),
		Importance: arts.Booster,
		Rules:      rules,
		Audit:      audit,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Render.PNGEnabled && b.headlessFn != nil {
		if err := b.headlessFn(ctx); err != nil {
			logger.Warnf("headless chrome unavailable, /api/chart.png will fail: %v", err)
		}
	}
	srv, err := b.httpFn(cfg, svc)
	if err != nil {
		return nil, err
	}

	summary := buildSummary(cfg, arts, imputer, svc, rules)
	for _, name := range summary.Unmatched {
		logger.Warnf("feature %q matched no widget rule; using fallback range", name)
	}
	return &App{
		cfg:     cfg,
		http:    srv,
		service: svc,
		audit:   audit,
		Summary: summary,
	}, nil
}

// LoadArtifacts reads the model, the feature order and the optional means
// file, and checks that they agree.
func LoadArtifacts(cfg config.ModelConfig) (*Artifacts, error) {
	b, err := booster.LoadModel(cfg.Path)
	if err != nil {
		return nil, err
	}
	order, err := booster.LoadFeatureOrder(cfg.FeaturesPath)
	if err != nil {
		return nil, err
	}
	if err := b.CheckFeatureOrder(order); err != nil {
		return nil, err
	}
	arts := &Artifacts{Booster: b, Order: order}
	if cfg.MeansPath != "" {
		means, err := inference.LoadMeans(cfg.MeansPath)
		if err != nil {
			return nil, err
		}
		arts.Means = means
	}
	logger.Infof("✓ model loaded: %s (booster=%s objective=%s trees=%d features=%d)",
		cfg.Path, b.Kind(), b.Objective(), b.NumTrees(), len(order))
	return arts, nil
}

func buildRuleLoader(cfg config.FormConfig) (*form.RuleLoader, error) {
	if cfg.RulesPath == "" {
		return form.NewStaticLoader(), nil
	}
	return form.NewRuleLoader(cfg.RulesPath)
}

func buildAuditStore(cfg config.AuditConfig) (store.PredictionLog, error) {
	return gormstore.NewGormStore(cfg.Path)
}

func buildHTTPServer(cfg *config.Config, p webhttp.Predictor) (*webhttp.Server, error) {
	return webhttp.NewServer(webhttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Predictor: p,
		UI: webhttp.UIConfig{
			Title:       cfg.UI.Title,
			Subtitle:    cfg.UI.Subtitle,
			MetricLabel: cfg.UI.MetricLabel,
		},
		PNGEnabled: cfg.Render.PNGEnabled,
		PNGTimeout: time.Duration(cfg.Render.PNGTimeoutSeconds) * time.Second,

		PNGPerMinute:     cfg.Render.PNGPerMinute,
		PNGMaxConcurrent: cfg.Render.PNGMaxConcurrent,
	})
}
