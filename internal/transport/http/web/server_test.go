package webhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"cardiorisk/internal/booster"
	"cardiorisk/internal/explain"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/predict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var order = []string{"age", "sysBP_1", "chol_total", "glucose_fasting"}

type failingExplainer struct{}

func (failingExplainer) Explain([]float64) (explain.Attribution, error) {
	return explain.Attribution{}, errors.New("tree path mismatch")
}

func newTestServer(t *testing.T, explainer explain.Explainer) http.Handler {
	t.Helper()
	b, err := booster.LoadModel("../../../../testdata/models/cardio_tree.json")
	require.NoError(t, err)
	runner, err := inference.NewRunner(b, order, nil)
	require.NoError(t, err)
	if explainer == nil {
		explainer = explain.NewTreeExplainer(b, order)
	}
	svc, err := predict.NewService(predict.Deps{Runner: runner, Explainer: explainer, Importance: b})
	require.NoError(t, err)
	srv, err := NewServer(ServerConfig{
		Predictor: svc,
		UI:        UIConfig{Title: "CardioRisk Estimator", Subtitle: "10 year risk", MetricLabel: "Cardio Risk Probability"},
	})
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postForm(t *testing.T, h http.Handler, target string, values url.Values) *httptest.ResponseRecorder {
	return do(t, h, http.MethodPost, target, []byte(values.Encode()), "application/x-www-form-urlencoded")
}

func TestFullPage_Get(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "CardioRisk Estimator")
	assert.Contains(t, body, "Systolic Blood Pressure")
	assert.Contains(t, body, "Total Cholesterol")
	assert.Contains(t, body, `name="age"`)
	assert.Contains(t, body, `value="55"`)
	assert.NotContains(t, body, "Cardio Risk Probability")
}

func TestFullPage_PostShowsMetricAndChart(t *testing.T) {
	w := postForm(t, newTestServer(t, nil), "/", url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Cardio Risk Probability")
	assert.Contains(t, body, "51.25%")
	assert.Contains(t, body, "Biomarkers attribution (%)")
	assert.Contains(t, body, "echarts.init")
	assert.NotContains(t, body, `class="warning"`)
}

func TestFullPage_AttributionFailureShowsWarning(t *testing.T) {
	w := postForm(t, newTestServer(t, failingExplainer{}), "/", url.Values{"age": {"55"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "51.25%")
	assert.Contains(t, body, `class="warning"`)
	assert.Contains(t, body, "tree path mismatch")
	assert.NotContains(t, body, "echarts.init")
}

func TestFullPage_ClampsOutOfRangeInput(t *testing.T) {
	w := postForm(t, newTestServer(t, nil), "/", url.Values{"age": {"500"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="age" min="18" max="120" step="1" value="120"`)
}

func TestLitePage_TableAndChart(t *testing.T) {
	h := newTestServer(t, failingExplainer{})
	w := postForm(t, h, "/lite", url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "51.25%")
	assert.Contains(t, body, "<th>Importance</th>")
	assert.Contains(t, body, "<td>sysBP_1</td>")
	assert.Contains(t, body, "Gain importance")
	assert.NotContains(t, body, `class="warning"`)
}

func TestAPIPredict(t *testing.T) {
	h := newTestServer(t, nil)
	body := []byte(`{"values":{"age":55,"sysBP_1":120,"chol_total":200,"glucose_fasting":100}}`)
	w := do(t, h, http.MethodPost, "/api/predict", body, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out predict.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "51.25%", out.Percent)
	assert.InDelta(t, 0.05, out.Margin, 1e-12)
	require.NotNil(t, out.Attribution)
	assert.Len(t, out.Attribution.Contributions, 4)
}

func TestAPIPredict_Deployment(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/api/predict?variant=lite", []byte(`{"values":{"age":55}}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out predict.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Importances, 4)
	assert.Nil(t, out.Attribution)
}

func TestAPIPredict_ValidationErrors(t *testing.T) {
	h := newTestServer(t, nil)
	cases := map[string]string{
		"range":   `{"values":{"age":400}}`,
		"unknown": `{"values":{"bmi":22}}`,
		"type":    `{"values":{"age":"old"}}`,
		"json":    `{"values":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/predict", []byte(body), "application/json")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	w := do(t, h, http.MethodPost, "/api/predict?variant=mobile", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIPredict_AttributionWarning(t *testing.T) {
	h := newTestServer(t, failingExplainer{})
	w := do(t, h, http.MethodPost, "/api/predict", []byte(`{"values":{}}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var out predict.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Contains(t, out.Warning, "tree path mismatch")
	assert.Greater(t, out.Probability, 0.0)
}

func TestAPIFeatures(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/api/features?variant=deployment", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Variant string `json:"variant"`
		Widgets []struct {
			Feature string  `json:"feature"`
			Label   string  `json:"label"`
			Default float64 `json:"default"`
		} `json:"widgets"`
		Unmatched []string `json:"unmatched"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "deployment", resp.Variant)
	require.Len(t, resp.Widgets, 4)
	assert.Equal(t, "Age", resp.Widgets[0].Label)
	assert.Equal(t, "sysBP_1", resp.Widgets[1].Label)
	assert.Equal(t, []string{"glucose_fasting"}, resp.Unmatched)
}

func TestOptionalRoutesDisabled(t *testing.T) {
	h := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/chart.png", []byte(`{}`), "application/json").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/predictions", nil, "").Code)
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ok"))
}

func TestNewServer_RequiresPredictor(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
