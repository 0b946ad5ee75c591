// Package inference turns an input record into a model-ready row and runs the
// booster on it.
package inference

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"cardiorisk/internal/booster"
)

// ErrUnknownFeature is returned for record keys outside the feature order.
var ErrUnknownFeature = errors.New("unknown feature")

// Record is one user submission keyed by feature name.
type Record map[string]float64

// Model is the part of the booster the runner needs.
type Model interface {
	Margin(row []float64) (float64, error)
}

// Result is one prediction.
type Result struct {
	Probability float64   `json:"probability"`
	Margin      float64   `json:"margin"`
	Row         []float64 `json:"row"`
}

// Runner is built once at startup and shared by all requests.
type Runner struct {
	model   Model
	order   []string
	imputer *MeanImputer
}

// NewRunner binds a model to its feature order.
func NewRunner(model Model, order []string, imputer *MeanImputer) (*Runner, error) {
	if model == nil {
		return nil, fmt.Errorf("runner requires a model")
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("runner requires a feature order")
	}
	if imputer == nil {
		imputer = NewMeanImputer(nil)
	}
	return &Runner{model: model, order: append([]string(nil), order...), imputer: imputer}, nil
}

// Order returns the canonical feature order.
func (r *Runner) Order() []string {
	return append([]string(nil), r.order...)
}

// Assemble lays a record out in feature order. Absent features become NaN.
func Assemble(order []string, rec Record) ([]float64, error) {
	index := make(map[string]int, len(order))
	for i, name := range order {
		index[name] = i
	}
	var unknown []string
	for name := range rec {
		if _, ok := index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, strings.Join(unknown, ", "))
	}
	row := make([]float64, len(order))
	for i, name := range order {
		v, ok := rec[name]
		if !ok {
			v = math.NaN()
		}
		row[i] = v
	}
	return row, nil
}

// Run predicts the probability of one record.
func (r *Runner) Run(rec Record) (Result, error) {
	row, err := Assemble(r.order, rec)
	if err != nil {
		return Result{}, err
	}
	row = r.imputer.Transform(r.order, row)
	margin, err := r.model.Margin(row)
	if err != nil {
		return Result{}, fmt.Errorf("predict failed: %w", err)
	}
	return Result{
		Probability: booster.Sigmoid(margin),
		Margin:      margin,
		Row:         row,
	}, nil
}
