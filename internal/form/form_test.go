package form

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioOrder = []string{"age", "sysBP_1", "chol_total", "glucose_fasting"}

func TestFullRules_Scenario(t *testing.T) {
	widgets := FullRules().Build(scenarioOrder)
	require.Len(t, widgets, 4)

	assert.Equal(t, Widget{Feature: "age", Label: "Age", Min: 18, Max: 120, Default: 55, Rule: "age"}, widgets[0])
	assert.Equal(t, "Systolic Blood Pressure", widgets[1].Label)
	assert.Equal(t, [3]float64{50, 250, 120}, [3]float64{widgets[1].Min, widgets[1].Max, widgets[1].Default})
	assert.Equal(t, "Total Cholesterol", widgets[2].Label)
	assert.Equal(t, "Glucose", widgets[3].Label)
	assert.Equal(t, [3]float64{30, 300, 100}, [3]float64{widgets[3].Min, widgets[3].Max, widgets[3].Default})
	assert.Empty(t, Unmatched(widgets))
}

func TestFullRules_CholesterolAnyCase(t *testing.T) {
	for _, name := range []string{"chol", "CHOL_total", "totChol", "hdl_Cholesterol", "ldlCHOLESTEROL"} {
		w := FullRules().Build([]string{name})[0]
		assert.Equal(t, "cholesterol", w.Rule, name)
		assert.Equal(t, 100.0, w.Min, name)
		assert.Equal(t, 400.0, w.Max, name)
		assert.Equal(t, 200.0, w.Default, name)
	}
}

func TestFullRules_PriorityOrder(t *testing.T) {
	widgets := FullRules().Build([]string{"diaBP_chol", "sysBP_chol", "Age"})
	assert.Equal(t, "diastolic", widgets[0].Rule)
	assert.Equal(t, "systolic", widgets[1].Rule)
	// "age" is an exact match only
	assert.True(t, widgets[2].Unmatched)
}

func TestFullRules_UnmatchedIsFlaggedNotGlucose(t *testing.T) {
	widgets := FullRules().Build([]string{"bmi", "age"})
	assert.True(t, widgets[0].Unmatched)
	assert.Equal(t, "bmi", widgets[0].Label)
	assert.Equal(t, [3]float64{30, 300, 100}, [3]float64{widgets[0].Min, widgets[0].Max, widgets[0].Default})
	assert.Equal(t, []string{"bmi"}, Unmatched(widgets))
}

func TestDeploymentRules(t *testing.T) {
	widgets := DeploymentRules().Build([]string{"age", "sysBP_1", "diaBP", "Chol_total", "glucose_fasting"})
	assert.Equal(t, "Age", widgets[0].Label)
	assert.Equal(t, "sysBP_1", widgets[1].Label)
	assert.Equal(t, "blood_pressure", widgets[2].Rule)
	assert.Equal(t, "Chol_total", widgets[3].Label)
	assert.Equal(t, 400.0, widgets[3].Max)
	assert.Equal(t, "glucose_fasting", widgets[4].Label)
	assert.True(t, widgets[4].Unmatched)
}

func TestRuleSetsValidate(t *testing.T) {
	assert.NoError(t, FullRules().Validate())
	assert.NoError(t, DeploymentRules().Validate())

	bad := FullRules()
	bad.Rules[0].Default = 500
	assert.Error(t, bad.Validate())

	bad = FullRules()
	bad.Rules[1].Match = "regex"
	assert.Error(t, bad.Validate())
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantFull, v)
	v, err = ParseVariant("Lite")
	require.NoError(t, err)
	assert.Equal(t, VariantDeployment, v)
	_, err = ParseVariant("other")
	assert.Error(t, err)
}

func TestParseForm_ClampsAndDefaults(t *testing.T) {
	widgets := FullRules().Build(scenarioOrder)
	submitted := map[string]string{
		"age":        "150",
		"sysBP_1":    "  ",
		"chol_total": "abc",
		// glucose_fasting absent
	}
	values := ParseForm(widgets, func(k string) string { return submitted[k] })
	assert.Equal(t, map[string]float64{
		"age":             120,
		"sysBP_1":         120,
		"chol_total":      200,
		"glucose_fasting": 100,
	}, values)

	assert.Equal(t, Defaults(widgets), ParseForm(widgets, func(string) string { return "" }))
}

func TestClamp(t *testing.T) {
	w := Widget{Min: 18, Max: 120}
	assert.Equal(t, 18.0, w.Clamp(3))
	assert.Equal(t, 64.5, w.Clamp(64.5))
	assert.Equal(t, 120.0, w.Clamp(1e9))
}

func TestValidator(t *testing.T) {
	v, err := CompileSchema(FullRules().Build(scenarioOrder))
	require.NoError(t, err)

	decode := func(s string) map[string]any {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(s), &m))
		return m
	}
	assert.NoError(t, v.Validate(decode(`{"age":55,"sysBP_1":120,"chol_total":200,"glucose_fasting":100}`)))
	assert.NoError(t, v.Validate(decode(`{"age":55}`)))
	assert.Error(t, v.Validate(decode(`{"age":10}`)))
	assert.Error(t, v.Validate(decode(`{"age":"55"}`)))
	assert.Error(t, v.Validate(decode(`{"bmi":22}`)))
}

func TestRuleLoader_LoadsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	src, err := os.ReadFile("../../testdata/models/rules.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, src, 0o644))

	l, err := NewRuleLoader(path)
	require.NoError(t, err)
	snap := l.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Rules.Rules, 2)

	widgets := l.RulesFor(VariantFull).Build(scenarioOrder)
	assert.Equal(t, "Age (years)", widgets[0].Label)
	assert.Equal(t, 60.0, widgets[0].Default)
	assert.Equal(t, "Cholesterol (mg/dL)", widgets[2].Label)
	assert.True(t, widgets[1].Unmatched)

	// deployment rules are never overridden
	assert.Equal(t, "sysBP_1", l.RulesFor(VariantDeployment).Build(scenarioOrder)[1].Label)

	updated := "rules:\n  - name: age\n    match: exact\n    pattern: age\n    label: Patient age\n    min: 20\n    max: 100\n    default: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	assert.Eventually(t, func() bool {
		return l.Snapshot().Version > 1 && l.Snapshot().Rules.Rules[0].Label == "Patient age"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRuleLoader_RejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - pattern: age\n    min: 10\n    max: 5\n"), 0o644))
	_, err := NewRuleLoader(path)
	assert.Error(t, err)

	_, err = NewRuleLoader("")
	assert.Error(t, err)
}

func TestStaticLoader(t *testing.T) {
	l := NewStaticLoader()
	assert.Equal(t, "builtin", l.Snapshot().Source)
	assert.Equal(t, FullRules(), l.RulesFor(VariantFull))
}

func TestRuleLoaderVersion(t *testing.T) {
	assert.Equal(t, int64(1), NewStaticLoader().Version())
	var l *RuleLoader
	assert.Equal(t, int64(0), l.Version())
}
