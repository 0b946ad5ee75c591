// Package booster reads XGBoost JSON model files and evaluates them without
// the native library: tree and linear boosters, margin and probability
// prediction, path-dependent TreeSHAP and gain importance.
package booster

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnsupportedModel marks artifacts this package cannot evaluate.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrUnsupportedExplain is returned by Shap for boosters without trees.
	ErrUnsupportedExplain = errors.New("attribution not supported for this booster")
	// ErrFeatureMismatch is returned when a feature order disagrees with the model.
	ErrFeatureMismatch = errors.New("feature order does not match model")
)

// Kind is the gradient booster family stored in the artifact.
type Kind string

const (
	KindTree   Kind = "gbtree"
	KindDart   Kind = "dart"
	KindLinear Kind = "gblinear"
)

// Booster is an immutable, evaluation-only view of a trained model.
// Every method is safe for concurrent use.
type Booster struct {
	kind         Kind
	objective    string
	baseMargin   float64
	numFeature   int
	featureNames []string
	version      [3]int

	trees       []tree
	treeWeights []float64

	linearWeights []float64
	linearBias    float64
}

type tree struct {
	left        []int
	right       []int
	splitIndex  []int
	splitCond   []float64
	defaultLeft []bool
	lossChange  []float64
	sumHessian  []float64
}

func (t *tree) isLeaf(n int) bool { return t.left[n] == -1 }

// next returns the child x follows at internal node n. Thresholds are float32
// in the model, so the comparison is done in float32 as well.
func (t *tree) next(n int, row []float64) int {
	v := row[t.splitIndex[n]]
	switch {
	case math.IsNaN(v):
		if t.defaultLeft[n] {
			return t.left[n]
		}
		return t.right[n]
	case float32(v) < float32(t.splitCond[n]):
		return t.left[n]
	default:
		return t.right[n]
	}
}

func (t *tree) leafValue(row []float64) float64 {
	n := 0
	for !t.isLeaf(n) {
		n = t.next(n, row)
	}
	return t.splitCond[n]
}

// Kind reports the booster family.
func (b *Booster) Kind() Kind { return b.kind }

// Objective reports the learning objective name, e.g. "binary:logistic".
func (b *Booster) Objective() string { return b.objective }

// BaseMargin is the margin every prediction starts from.
func (b *Booster) BaseMargin() float64 { return b.baseMargin }

// NumFeature is the width of the input row.
func (b *Booster) NumFeature() int { return b.numFeature }

// NumTrees is zero for linear boosters.
func (b *Booster) NumTrees() int { return len(b.trees) }

// Version is the XGBoost version that wrote the artifact.
func (b *Booster) Version() [3]int { return b.version }

// FeatureNames returns a copy of the names recorded in the artifact, if any.
func (b *Booster) FeatureNames() []string {
	if len(b.featureNames) == 0 {
		return nil
	}
	out := make([]string, len(b.featureNames))
	copy(out, b.featureNames)
	return out
}

// Margin evaluates the raw (log-odds) score of one row.
// NaN cells are treated as missing.
func (b *Booster) Margin(row []float64) (float64, error) {
	if len(row) != b.numFeature {
		return 0, fmt.Errorf("row has %d values, model expects %d", len(row), b.numFeature)
	}
	margin := b.baseMargin
	if b.kind == KindLinear {
		margin += b.linearBias
		for i, w := range b.linearWeights {
			if math.IsNaN(row[i]) {
				continue
			}
			margin += w * row[i]
		}
		return margin, nil
	}
	for i := range b.trees {
		margin += b.treeWeights[i] * b.trees[i].leafValue(row)
	}
	return margin, nil
}

// Predict returns the probability of the positive class for one row.
func (b *Booster) Predict(row []float64) (float64, error) {
	m, err := b.Margin(row)
	if err != nil {
		return 0, err
	}
	return Sigmoid(m), nil
}

// Sigmoid maps a log-odds value onto (0,1).
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Logit is the inverse of Sigmoid.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
