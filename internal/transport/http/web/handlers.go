package webhttp

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"cardiorisk/internal/explain"
	"cardiorisk/internal/form"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/pkg/circuit"
	"cardiorisk/internal/pkg/convert"
	"cardiorisk/internal/predict"
	"cardiorisk/internal/visual"

	"github.com/gin-gonic/gin"
)

type handler struct {
	predictor Predictor
	ui        UIConfig
	pngTO     time.Duration
	chrome    *circuit.CircuitBreaker
	gate      *renderGate
	render    PNGRenderer
}

type field struct {
	form.Widget
	Value float64
}

type pageData struct {
	UI          UIConfig
	Variant     form.Variant
	Action      string
	OtherLink   string
	OtherLabel  string
	Fields      []field
	Outcome     *predict.Outcome
	Chart       *visual.Snippet
	Importances []explain.ImportanceRow
	Error       string
}

type predictRequest struct {
	Values map[string]any `json:"values"`
}

func (h *handler) page(v form.Variant) gin.HandlerFunc {
	return func(c *gin.Context) {
		widgets := h.predictor.Widgets(v)
		data := pageData{UI: h.ui, Variant: v}
		if v == form.VariantDeployment {
			data.Action, data.OtherLink, data.OtherLabel = "/lite", "/", "Explained view"
		} else {
			data.Action, data.OtherLink, data.OtherLabel = "/", "/lite", "Lite view"
		}

		values := form.Defaults(widgets)
		if c.Request.Method == http.MethodPost {
			values = form.ParseForm(widgets, c.PostForm)
		}
		data.Fields = make([]field, len(widgets))
		for i, w := range widgets {
			data.Fields[i] = field{Widget: w, Value: values[w.Feature]}
		}
		if c.Request.Method != http.MethodPost {
			c.HTML(http.StatusOK, "page.html", data)
			return
		}

		out, err := h.predictor.Predict(c.Request.Context(), v, values)
		if err != nil {
			logger.Errorf("predict failed (variant=%s): %v", v, err)
			data.Error = fmt.Sprintf("Prediction failed: %v", err)
			c.HTML(http.StatusInternalServerError, "page.html", data)
			return
		}
		data.Outcome = &out
		if chart := chartFor(out); chart != nil {
			snippet := visual.Embed(chart)
			data.Chart = &snippet
		}
		data.Importances = out.Importances
		c.HTML(http.StatusOK, "page.html", data)
	}
}

// chartFor returns nil when there is nothing to draw (attribution failed).
func chartFor(out predict.Outcome) *visual.Chart {
	switch {
	case out.Attribution != nil:
		return visual.AttributionChart(*out.Attribution)
	case len(out.Importances) > 0:
		return visual.ImportanceChart(out.Importances)
	default:
		return nil
	}
}

func (h *handler) handleFeatures(c *gin.Context) {
	v, err := form.ParseVariant(c.Query("variant"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	widgets := h.predictor.Widgets(v)
	c.JSON(http.StatusOK, gin.H{
		"variant":   v,
		"widgets":   widgets,
		"unmatched": form.Unmatched(widgets),
		"schema":    form.SchemaDocument(widgets),
	})
}

// decodeValues binds and validates an API body. It writes the error response
// itself and reports false on failure.
func (h *handler) decodeValues(c *gin.Context) (form.Variant, map[string]float64, bool) {
	v, err := form.ParseVariant(c.Query("variant"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, false
	}
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body: " + err.Error()})
		return "", nil, false
	}
	if req.Values == nil {
		req.Values = map[string]any{}
	}
	validator, err := h.predictor.Validator(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", nil, false
	}
	if err := validator.Validate(req.Values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, false
	}
	values := make(map[string]float64, len(req.Values))
	for name, raw := range req.Values {
		f, err := convert.ParseFloat(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", name, err)})
			return "", nil, false
		}
		values[name] = f
	}
	return v, values, true
}

func (h *handler) predict(c *gin.Context) (predict.Outcome, bool) {
	v, values, ok := h.decodeValues(c)
	if !ok {
		return predict.Outcome{}, false
	}
	out, err := h.predictor.Predict(c.Request.Context(), v, values)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, inference.ErrUnknownFeature) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return predict.Outcome{}, false
	}
	return out, true
}

func (h *handler) handlePredict(c *gin.Context) {
	out, ok := h.predict(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, out)
}

// handleChartPNG renders the chart of one prediction with headless Chrome.
// ?format=json returns the image as a data URI instead of raw bytes.
func (h *handler) handleChartPNG(c *gin.Context) {
	release, err := h.gate.acquire(c.Request.Context())
	if err != nil {
		c.Header("Retry-After", "2")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	defer release()

	out, ok := h.predict(c)
	if !ok {
		return
	}
	chart := chartFor(out)
	if chart == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": out.Warning})
		return
	}
	var img visual.ImageResult
	err = h.chrome.Do(func() error {
		var err error
		img, err = h.render(c.Request.Context(), chart, string(out.Variant), h.pngTO)
		return err
	})
	if err != nil {
		logger.Warnf("chart png render failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"filename": img.Filename, "data_uri": img.DataURI()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Filename))
	c.Data(http.StatusOK, "image/png", img.Bytes)
}

func (h *handler) handlePredictions(c *gin.Context) {
	limit := int(convert.ToFloat64(c.DefaultQuery("limit", "50")))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	recs, err := h.predictor.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": recs, "count": len(recs)})
}
