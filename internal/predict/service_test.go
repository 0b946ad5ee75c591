package predict

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"cardiorisk/internal/booster"
	"cardiorisk/internal/explain"
	"cardiorisk/internal/form"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var order = []string{"age", "sysBP_1", "chol_total", "glucose_fasting"}

type mockExplainer struct {
	mock.Mock
}

func (m *mockExplainer) Explain(row []float64) (explain.Attribution, error) {
	args := m.Called(row)
	return args.Get(0).(explain.Attribution), args.Error(1)
}

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

func newService(t *testing.T, explainer explain.Explainer, audit store.PredictionLog) *Service {
	t.Helper()
	b, err := booster.LoadModel("../../testdata/models/cardio_tree.json")
	require.NoError(t, err)
	runner, err := inference.NewRunner(b, order, nil)
	require.NoError(t, err)
	if explainer == nil {
		explainer = explain.NewTreeExplainer(b, order)
	}
	d := Deps{Runner: runner, Explainer: explainer, Importance: b}
	if audit != nil {
		d.Audit = audit
	}
	svc, err := NewService(d)
	require.NoError(t, err)
	return svc
}

func defaults(svc *Service, v form.Variant) map[string]float64 {
	return form.Defaults(svc.Widgets(v))
}

func TestPredict_FullScenario(t *testing.T) {
	svc := newService(t, nil, nil)
	values := defaults(svc, form.VariantFull)
	assert.Equal(t, map[string]float64{"age": 55, "sysBP_1": 120, "chol_total": 200, "glucose_fasting": 100}, values)

	out, err := svc.Predict(context.Background(), form.VariantFull, values)
	require.NoError(t, err)
	assert.InDelta(t, booster.Sigmoid(0.05), out.Probability, 1e-12)
	assert.Equal(t, "51.25%", out.Percent)
	assert.Empty(t, out.Warning)
	require.NotNil(t, out.Attribution)
	assert.Len(t, out.Attribution.Contributions, 4)
	assert.InDelta(t, out.Margin, out.Attribution.Margin(), 1e-9)
	assert.Nil(t, out.Importances)
}

func TestPredict_AttributionFailureKeepsProbability(t *testing.T) {
	m := new(mockExplainer)
	m.On("Explain", mock.Anything).Return(explain.Attribution{}, errors.New("shap exploded"))
	svc := newService(t, m, nil)
	values := defaults(svc, form.VariantFull)

	out, err := svc.Predict(context.Background(), form.VariantFull, values)
	require.NoError(t, err)
	assert.Equal(t, "51.25%", out.Percent)
	assert.Contains(t, out.Warning, "shap exploded")
	assert.Nil(t, out.Attribution)

	lite, err := svc.Predict(context.Background(), form.VariantDeployment, defaults(svc, form.VariantDeployment))
	require.NoError(t, err)
	assert.Empty(t, lite.Warning)
	require.Len(t, lite.Importances, 4)
	m.AssertNumberOfCalls(t, "Explain", 1)
}

type panicExplainer struct{}

func (panicExplainer) Explain([]float64) (explain.Attribution, error) { panic("index out of range") }

func TestPredict_ExplainerPanicBecomesWarning(t *testing.T) {
	svc := newService(t, panicExplainer{}, nil)
	out, err := svc.Predict(context.Background(), form.VariantFull, defaults(svc, form.VariantFull))
	require.NoError(t, err)
	assert.Contains(t, out.Warning, "index out of range")
}

func TestPredict_DeploymentImportances(t *testing.T) {
	svc := newService(t, nil, nil)
	values := defaults(svc, form.VariantDeployment)
	out, err := svc.Predict(context.Background(), form.VariantDeployment, values)
	require.NoError(t, err)
	assert.Nil(t, out.Attribution)
	require.Len(t, out.Importances, 4)
	for i, row := range out.Importances {
		assert.Equal(t, order[i], row.Feature)
		assert.Equal(t, values[row.Feature], row.Value)
	}
	assert.Equal(t, 6.0, out.Importances[0].Importance)
}

func TestPredict_UnknownFeature(t *testing.T) {
	svc := newService(t, nil, nil)
	_, err := svc.Predict(context.Background(), form.VariantFull, map[string]float64{"bmi": 20})
	assert.ErrorIs(t, err, inference.ErrUnknownFeature)
}

func TestPredict_Audit(t *testing.T) {
	audit := new(mockAudit)
	audit.On("Save", mock.Anything, mock.MatchedBy(func(rec *store.PredictionRecord) bool {
		return rec.Variant == "full" && len(rec.Explanation) > 0 && rec.Inputs["age"] == 55
	})).Return(nil).Once()
	svc := newService(t, nil, audit)
	assert.True(t, svc.AuditEnabled())

	out, err := svc.Predict(context.Background(), form.VariantFull, defaults(svc, form.VariantFull))
	require.NoError(t, err)
	assert.Equal(t, "rec-1", out.ID)
	audit.AssertExpectations(t)
}

func TestPredict_AuditFailureDoesNotFailRequest(t *testing.T) {
	audit := new(mockAudit)
	audit.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	svc := newService(t, nil, audit)
	out, err := svc.Predict(context.Background(), form.VariantFull, defaults(svc, form.VariantFull))
	require.NoError(t, err)
	assert.Empty(t, out.ID)
}

func TestRecent(t *testing.T) {
	svc := newService(t, nil, nil)
	assert.False(t, svc.AuditEnabled())
	_, err := svc.Recent(context.Background(), 5)
	assert.Error(t, err)

	audit := new(mockAudit)
	audit.On("ListRecent", mock.Anything, 5).Return([]store.PredictionRecord{{ID: "a"}}, nil)
	svc = newService(t, nil, audit)
	recs, err := svc.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "a", recs[0].ID)
}

func TestPredict_Trace(t *testing.T) {
	var buf bytes.Buffer
	logger.SetTraceWriter(&buf)
	t.Cleanup(func() { logger.SetTraceWriter(nil) })

	svc := newService(t, nil, nil)
	_, err := svc.Predict(context.Background(), form.VariantFull, defaults(svc, form.VariantFull))
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "[PREDICT][result][full]")
	assert.Contains(t, out, "--- INPUTS ---")
	assert.Contains(t, out, "probability=51.25%")
	assert.Contains(t, out, "--- EXPLANATION ---")
}

func TestValidator(t *testing.T) {
	svc := newService(t, nil, nil)
	v, err := svc.Validator(form.VariantFull)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(map[string]any{"age": 40.0}))
	assert.Error(t, v.Validate(map[string]any{"age": 400.0}))
	assert.Error(t, v.Validate(map[string]any{"bmi": 20.0}))
}

type versionedRules struct {
	version int64
	full    form.RuleSet
}

func (r *versionedRules) RulesFor(v form.Variant) form.RuleSet {
	if v == form.VariantDeployment {
		return form.DeploymentRules()
	}
	return r.full
}

func (r *versionedRules) Version() int64 { return r.version }

func TestValidator_CachedUntilRulesChange(t *testing.T) {
	b, err := booster.LoadModel("../../testdata/models/cardio_tree.json")
	require.NoError(t, err)
	runner, err := inference.NewRunner(b, order, nil)
	require.NoError(t, err)
	rules := &versionedRules{version: 1, full: form.FullRules()}
	svc, err := NewService(Deps{Runner: runner, Rules: rules})
	require.NoError(t, err)

	first, err := svc.Validator(form.VariantFull)
	require.NoError(t, err)
	again, err := svc.Validator(form.VariantFull)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Error(t, first.Validate(map[string]any{"age": 125.0}))

	rules.full.Rules[0].Max = 130
	rules.version = 2
	rebuilt, err := svc.Validator(form.VariantFull)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.NoError(t, rebuilt.Validate(map[string]any{"age": 125.0}))
}
