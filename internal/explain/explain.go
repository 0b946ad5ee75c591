// Package explain projects booster attributions into the units shown to the
// user: percentage points of probability for the full page and raw gain
// importance for the lite page.
package explain

import (
	"fmt"
	"math"
	"sort"

	"cardiorisk/internal/booster"
)

// Shapper is the attribution source of a tree ensemble.
type Shapper interface {
	Shap(row []float64) (booster.Attribution, error)
}

// Explainer produces an attribution for one assembled row.
type Explainer interface {
	Explain(row []float64) (Attribution, error)
}

// Contribution is one feature's share of the prediction.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	// Missing is set when the feature had no value; Value is then 0.
	Missing bool `json:"missing,omitempty"`
	// Displacement is the raw log-odds attribution.
	Displacement float64 `json:"displacement"`
	// Percent is sigmoid(baseline+displacement) - sigmoid(baseline), in points.
	Percent float64 `json:"percent"`
}

// Attribution is sorted ascending by Percent.
type Attribution struct {
	BaselineLogOdds     float64        `json:"baseline_log_odds"`
	BaselineProbability float64        `json:"baseline_probability"`
	Contributions       []Contribution `json:"contributions"`
}

// Margin reconstructs the explained margin from the additive parts.
func (a Attribution) Margin() float64 {
	sum := a.BaselineLogOdds
	for _, c := range a.Contributions {
		sum += c.Displacement
	}
	return sum
}

// TreeExplainer wraps exact TreeSHAP.
type TreeExplainer struct {
	source Shapper
	order  []string
}

func NewTreeExplainer(source Shapper, order []string) *TreeExplainer {
	return &TreeExplainer{source: source, order: append([]string(nil), order...)}
}

func (e *TreeExplainer) Explain(row []float64) (Attribution, error) {
	if e == nil || e.source == nil {
		return Attribution{}, fmt.Errorf("explainer not configured")
	}
	if len(row) != len(e.order) {
		return Attribution{}, fmt.Errorf("row has %d values, feature order has %d", len(row), len(e.order))
	}
	raw, err := e.source.Shap(row)
	if err != nil {
		return Attribution{}, fmt.Errorf("attribution failed: %w", err)
	}
	if len(raw.Values) != len(e.order) {
		return Attribution{}, fmt.Errorf("attribution has %d values, feature order has %d", len(raw.Values), len(e.order))
	}
	return Project(raw.Expected, e.order, row, raw.Values), nil
}

// Project converts log-odds displacements into probability points around the
// baseline and sorts them ascending. Each bar is that feature's effect in
// isolation, so the bars need not sum to the overall shift.
func Project(baseline float64, order []string, row, phi []float64) Attribution {
	base := booster.Sigmoid(baseline)
	out := Attribution{
		BaselineLogOdds:     baseline,
		BaselineProbability: base,
		Contributions:       make([]Contribution, len(phi)),
	}
	for i, d := range phi {
		c := Contribution{
			Feature:      order[i],
			Value:        row[i],
			Displacement: d,
			Percent:      (booster.Sigmoid(baseline+d) - base) * 100,
		}
		if math.IsNaN(c.Value) {
			c.Value, c.Missing = 0, true
		}
		out.Contributions[i] = c
	}
	sort.SliceStable(out.Contributions, func(i, j int) bool {
		return out.Contributions[i].Percent < out.Contributions[j].Percent
	})
	return out
}
