package webhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"cardiorisk/internal/booster"
	"cardiorisk/internal/explain"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/predict"
	"cardiorisk/internal/store"
	"cardiorisk/internal/visual"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var pngBody = []byte(`{"values":{"age":55,"sysBP_1":120,"chol_total":200,"glucose_fasting":100}}`)

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Save(ctx context.Context, rec *store.PredictionRecord) error {
	args := m.Called(ctx, rec)
	if args.Error(0) == nil {
		rec.ID = "rec-1"
	}
	return args.Error(0)
}

func (m *mockAudit) ListRecent(ctx context.Context, limit int) ([]store.PredictionRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]store.PredictionRecord), args.Error(1)
}

func (m *mockAudit) Close() error { return nil }

type fakeRenderer struct {
	mu     sync.Mutex
	calls  int
	labels []string
	err    error
}

func (f *fakeRenderer) render(_ context.Context, c *visual.Chart, name string, _ time.Duration) (visual.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.labels = c.Labels
	if f.err != nil {
		return visual.ImageResult{}, f.err
	}
	return visual.ImageResult{Bytes: []byte("\x89PNG"), Filename: name + ".png"}, nil
}

type routeOpts struct {
	explainer   explain.Explainer
	audit       store.PredictionLog
	renderer    *fakeRenderer
	perMinute   int
	concurrency int
}

func newRouteServer(t *testing.T, o routeOpts) http.Handler {
	t.Helper()
	b, err := booster.LoadModel("../../../../testdata/models/cardio_tree.json")
	require.NoError(t, err)
	runner, err := inference.NewRunner(b, order, nil)
	require.NoError(t, err)
	if o.explainer == nil {
		o.explainer = explain.NewTreeExplainer(b, order)
	}
	svc, err := predict.NewService(predict.Deps{Runner: runner, Explainer: o.explainer, Importance: b, Audit: o.audit})
	require.NoError(t, err)
	if o.renderer == nil {
		o.renderer = &fakeRenderer{}
	}
	if o.perMinute == 0 {
		o.perMinute = 6000
	}
	if o.concurrency == 0 {
		o.concurrency = 8
	}
	srv, err := NewServer(ServerConfig{
		Predictor:        svc,
		PNGEnabled:       true,
		PNGTimeout:       time.Second,
		PNGPerMinute:     o.perMinute,
		PNGMaxConcurrent: o.concurrency,
		Render:           o.renderer.render,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func TestChartPNG_ReturnsImage(t *testing.T) {
	r := &fakeRenderer{}
	h := newRouteServer(t, routeOpts{renderer: r})

	w := do(t, h, http.MethodPost, "/api/chart.png", pngBody, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="full.png"`)
	assert.Equal(t, "\x89PNG", w.Body.String())
	assert.Equal(t, 1, r.calls)
	assert.Len(t, r.labels, 4)
}

func TestChartPNG_DataURI(t *testing.T) {
	h := newRouteServer(t, routeOpts{})
	w := do(t, h, http.MethodPost, "/api/chart.png?variant=lite&format=json", pngBody, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Filename string `json:"filename"`
		DataURI  string `json:"data_uri"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "deployment.png", resp.Filename)
	assert.True(t, strings.HasPrefix(resp.DataURI, "data:image/png;base64,"))
}

func TestChartPNG_NoChartWhenAttributionFails(t *testing.T) {
	r := &fakeRenderer{}
	h := newRouteServer(t, routeOpts{explainer: failingExplainer{}, renderer: r})

	w := do(t, h, http.MethodPost, "/api/chart.png", pngBody, "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Unable to compute attribution")
	assert.Equal(t, 0, r.calls)
}

func TestChartPNG_BreakerOpensAfterFailures(t *testing.T) {
	r := &fakeRenderer{err: errors.New("chrome crashed")}
	h := newRouteServer(t, routeOpts{renderer: r})

	for i := 0; i < 3; i++ {
		w := do(t, h, http.MethodPost, "/api/chart.png", pngBody, "application/json")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "chrome crashed")
	}
	w := do(t, h, http.MethodPost, "/api/chart.png", pngBody, "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "circuit open")
	assert.Equal(t, 3, r.calls)
}

func TestChartPNG_ThrottledBeforePredicting(t *testing.T) {
	audit := new(mockAudit)
	audit.On("Save", mock.Anything, mock.Anything).Return(nil)
	r := &fakeRenderer{}
	h := newRouteServer(t, routeOpts{audit: audit, renderer: r, perMinute: 1, concurrency: 1})

	w := do(t, h, http.MethodPost, "/api/chart.png", pngBody, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/chart.png", pngBody, "application/json")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, 1, r.calls)
	audit.AssertNumberOfCalls(t, "Save", 1)
}

func TestPredictions_ListsRecent(t *testing.T) {
	audit := new(mockAudit)
	recs := []store.PredictionRecord{
		{ID: "b", Variant: "full", Probability: 0.51},
		{ID: "a", Variant: "deployment", Probability: 0.4},
	}
	audit.On("ListRecent", mock.Anything, 10).Return(recs, nil).Once()
	audit.On("ListRecent", mock.Anything, 50).Return([]store.PredictionRecord{}, nil).Once()
	h := newRouteServer(t, routeOpts{audit: audit})

	w := do(t, h, http.MethodGet, "/api/predictions?limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Predictions []store.PredictionRecord `json:"predictions"`
		Count       int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "b", resp.Predictions[0].ID)

	w = do(t, h, http.MethodGet, "/api/predictions?limit=abc", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	audit.AssertExpectations(t)
}

func TestPredictions_StoreError(t *testing.T) {
	audit := new(mockAudit)
	audit.On("ListRecent", mock.Anything, 50).Return([]store.PredictionRecord(nil), errors.New("database is locked"))
	h := newRouteServer(t, routeOpts{audit: audit})

	w := do(t, h, http.MethodGet, "/api/predictions", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "database is locked")
}
