package booster

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// LoadModel reads an XGBoost JSON model written by Booster.save_model.
func LoadModel(path string) (*Booster, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model failed: %w", err)
	}
	b, err := ParseModel(raw)
	if err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return b, nil
}

// ParseModel decodes the JSON model document.
func ParseModel(raw []byte) (*Booster, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("model is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	learner := doc.Get("learner")
	if !learner.IsObject() {
		return nil, fmt.Errorf("%w: missing learner section", ErrUnsupportedModel)
	}

	b := &Booster{}
	if err := parseVersion(doc.Get("version"), b); err != nil {
		return nil, err
	}
	if err := parseLearnerParams(learner, b); err != nil {
		return nil, err
	}
	learner.Get("feature_names").ForEach(func(_, v gjson.Result) bool {
		b.featureNames = append(b.featureNames, v.String())
		return true
	})
	if len(b.featureNames) > 0 && len(b.featureNames) != b.numFeature {
		return nil, fmt.Errorf("model records %d feature names for %d features", len(b.featureNames), b.numFeature)
	}

	gb := learner.Get("gradient_booster")
	switch Kind(gb.Get("name").String()) {
	case KindTree:
		b.kind = KindTree
		if err := parseTrees(gb.Get("model"), b); err != nil {
			return nil, err
		}
	case KindDart:
		b.kind = KindDart
		if err := parseTrees(gb.Get("gbtree.model"), b); err != nil {
			return nil, err
		}
		drops := gb.Get("weight_drop").Array()
		if len(drops) != len(b.trees) {
			return nil, fmt.Errorf("dart model has %d drop weights for %d trees", len(drops), len(b.trees))
		}
		for i, w := range drops {
			b.treeWeights[i] = w.Float()
		}
	case KindLinear:
		b.kind = KindLinear
		if err := parseLinear(gb.Get("model"), b); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: booster %q", ErrUnsupportedModel, gb.Get("name").String())
	}
	return b, nil
}

func parseVersion(v gjson.Result, b *Booster) error {
	parts := v.Array()
	if len(parts) != 3 {
		return fmt.Errorf("%w: model has no version stamp", ErrUnsupportedModel)
	}
	for i, p := range parts {
		b.version[i] = int(p.Int())
	}
	if b.version[0] < 1 {
		return fmt.Errorf("%w: model written by xgboost %d.%d.%d, need >= 1.0.0",
			ErrUnsupportedModel, b.version[0], b.version[1], b.version[2])
	}
	return nil
}

func parseLearnerParams(learner gjson.Result, b *Booster) error {
	params := learner.Get("learner_model_param")
	numFeature, err := parseIntParam(params.Get("num_feature"))
	if err != nil || numFeature <= 0 {
		return fmt.Errorf("invalid num_feature %q", params.Get("num_feature").String())
	}
	b.numFeature = numFeature
	if n, _ := parseIntParam(params.Get("num_class")); n > 1 {
		return fmt.Errorf("%w: multi-class model (num_class=%d)", ErrUnsupportedModel, n)
	}
	if t := params.Get("num_target"); t.Exists() {
		if n, _ := parseIntParam(t); n > 1 {
			return fmt.Errorf("%w: multi-target model (num_target=%d)", ErrUnsupportedModel, n)
		}
	}
	baseScore, err := parseBaseScore(params.Get("base_score").String())
	if err != nil {
		return err
	}

	b.objective = learner.Get("objective.name").String()
	switch b.objective {
	case "binary:logistic", "reg:logistic":
		if baseScore <= 0 || baseScore >= 1 {
			return fmt.Errorf("base_score %v outside (0,1) for %s", baseScore, b.objective)
		}
		b.baseMargin = Logit(baseScore)
	case "binary:logitraw":
		b.baseMargin = baseScore
	default:
		return fmt.Errorf("%w: objective %q does not produce a probability", ErrUnsupportedModel, b.objective)
	}
	return nil
}

// parseBaseScore accepts "5E-1" and the bracketed "[5E-1]" written by xgboost 3.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return 0.5, nil
	}
	if strings.Contains(s, ",") {
		return 0, fmt.Errorf("%w: vector base_score %q", ErrUnsupportedModel, s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return v, nil
}

func parseIntParam(v gjson.Result) (int, error) {
	if v.Type == gjson.Number {
		return int(v.Int()), nil
	}
	return strconv.Atoi(strings.TrimSpace(v.String()))
}

func parseTrees(model gjson.Result, b *Booster) error {
	items := model.Get("trees").Array()
	if len(items) == 0 {
		return fmt.Errorf("%w: model has no trees", ErrUnsupportedModel)
	}
	b.trees = make([]tree, 0, len(items))
	b.treeWeights = make([]float64, 0, len(items))
	for i, item := range items {
		t, err := parseTree(item, b.numFeature)
		if err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		b.trees = append(b.trees, t)
		b.treeWeights = append(b.treeWeights, 1)
	}
	return nil
}

func parseTree(item gjson.Result, numFeature int) (tree, error) {
	t := tree{
		left:       intArray(item.Get("left_children")),
		right:      intArray(item.Get("right_children")),
		splitIndex: intArray(item.Get("split_indices")),
		splitCond:  floatArray(item.Get("split_conditions")),
		lossChange: floatArray(item.Get("loss_changes")),
		sumHessian: floatArray(item.Get("sum_hessian")),
	}
	for _, v := range item.Get("default_left").Array() {
		// older writers emit booleans, newer ones 0/1; Bool covers both
		t.defaultLeft = append(t.defaultLeft, v.Bool())
	}
	n := len(t.left)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	for name, l := range map[string]int{
		"right_children":   len(t.right),
		"split_indices":    len(t.splitIndex),
		"split_conditions": len(t.splitCond),
		"default_left":     len(t.defaultLeft),
		"loss_changes":     len(t.lossChange),
		"sum_hessian":      len(t.sumHessian),
	} {
		if l != n {
			return tree{}, fmt.Errorf("%s has %d entries, want %d", name, l, n)
		}
	}
	for _, st := range item.Get("split_type").Array() {
		if st.Int() != 0 {
			return tree{}, fmt.Errorf("%w: categorical splits", ErrUnsupportedModel)
		}
	}
	for i := 0; i < n; i++ {
		if t.left[i] == -1 {
			if t.right[i] != -1 {
				return tree{}, fmt.Errorf("node %d has only one child", i)
			}
			continue
		}
		if t.left[i] <= i || t.left[i] >= n || t.right[i] <= i || t.right[i] >= n {
			return tree{}, fmt.Errorf("node %d has child out of range", i)
		}
		if t.splitIndex[i] < 0 || t.splitIndex[i] >= numFeature {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, t.splitIndex[i], numFeature)
		}
	}
	return t, nil
}

func parseLinear(model gjson.Result, b *Booster) error {
	weights := floatArray(model.Get("weights"))
	if len(weights) != b.numFeature+1 {
		return fmt.Errorf("linear model has %d weights, want %d", len(weights), b.numFeature+1)
	}
	b.linearWeights = weights[:b.numFeature]
	b.linearBias = weights[b.numFeature]
	return nil
}

func intArray(v gjson.Result) []int {
	arr := v.Array()
	out := make([]int, len(arr))
	for i, x := range arr {
		out[i] = int(x.Int())
	}
	return out
}

func floatArray(v gjson.Result) []float64 {
	arr := v.Array()
	out := make([]float64, len(arr))
	for i, x := range arr {
		out[i] = x.Float()
	}
	return out
}

// LoadFeatureOrder reads the ordered feature-name list. YAML is a superset of
// JSON, so both `["age", ...]` and a YAML sequence are accepted.
func LoadFeatureOrder(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("feature order path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature order failed: %w", err)
	}
	var names []string
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&names); err != nil {
		return nil, fmt.Errorf("parse feature order %s: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("feature order %s is empty", path)
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("feature order entry %d is blank", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("feature order lists %q twice", name)
		}
		seen[name] = true
	}
	return names, nil
}

// CheckFeatureOrder verifies that order can be fed to the model as-is.
func (b *Booster) CheckFeatureOrder(order []string) error {
	if len(order) != b.numFeature {
		return fmt.Errorf("%w: %d names for %d model features", ErrFeatureMismatch, len(order), b.numFeature)
	}
	if len(b.featureNames) == 0 {
		return nil
	}
	for i, name := range order {
		if b.featureNames[i] != name {
			return fmt.Errorf("%w: position %d is %q, model expects %q", ErrFeatureMismatch, i, name, b.featureNames[i])
		}
	}
	return nil
}
