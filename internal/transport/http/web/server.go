package webhttp

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"cardiorisk/internal/form"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/pkg/circuit"
	"cardiorisk/internal/pkg/convert"
	"cardiorisk/internal/predict"
	"cardiorisk/internal/store"
	"cardiorisk/internal/visual"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Predictor is implemented by *predict.Service.
type Predictor interface {
	Widgets(v form.Variant) []form.Widget
	Validator(v form.Variant) (*form.Validator, error)
	Predict(ctx context.Context, v form.Variant, values map[string]float64) (predict.Outcome, error)
	AuditEnabled() bool
	Recent(ctx context.Context, limit int) ([]store.PredictionRecord, error)
}

var _ Predictor = (*predict.Service)(nil)

// UIConfig holds the page copy.
type UIConfig struct {
	Title       string
	Subtitle    string
	MetricLabel string
}

// ServerConfig describes the HTTP server dependencies.
type ServerConfig struct {
	Addr       string
	Predictor  Predictor
	UI         UIConfig
	PNGEnabled bool
	PNGTimeout time.Duration

	// PNGPerMinute and PNGMaxConcurrent throttle /api/chart.png.
	PNGPerMinute     int
	PNGMaxConcurrent int
	// Render defaults to visual.RenderPNG.
	Render           PNGRenderer
}

// PNGRenderer turns a chart into a PNG image.
type PNGRenderer func(ctx context.Context, c *visual.Chart, name string, timeout time.Duration) (visual.ImageResult, error)

// Server serves the two form pages and the JSON API.
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Predictor == nil {
		return nil, errors.New("web server requires a predictor")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8501"
	}
	if cfg.UI.MetricLabel == "" {
		cfg.UI.MetricLabel = "Cardio Risk Probability"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	tmpl, err := template.New("pages").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	h := &handler{
		predictor: cfg.Predictor,
		ui:        cfg.UI,
		pngTO:     cfg.PNGTimeout,
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/", h.page(form.VariantFull))
	router.POST("/", h.page(form.VariantFull))
	router.GET("/lite", h.page(form.VariantDeployment))
	router.POST("/lite", h.page(form.VariantDeployment))

	api := router.Group("/api")
	api.GET("/features", h.handleFeatures)
	api.POST("/predict", h.handlePredict)
	if cfg.PNGEnabled {
		h.chrome = circuit.NewCircuitBreaker("HeadlessChrome", 3, time.Minute)
		h.gate = newRenderGate(cfg.PNGPerMinute, cfg.PNGMaxConcurrent)
		h.render = cfg.Render
		if h.render == nil {
			h.render = visual.RenderPNG
		}
		api.POST("/chart.png", h.handleChartPNG)
	}
	if cfg.Predictor.AuditEnabled() {
		api.GET("/predictions", h.handlePredictions)
	}
	return &Server{addr: cfg.Addr, router: router}, nil
}

var templateFuncs = template.FuncMap{
	"num": func(v float64) float64 { return convert.RoundFloat(v, 4) },
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.L().Debug("http request",
			"method", method,
			"path", fullPath,
			"status", status,
			"ip", client,
			"dur", dur,
		)
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
