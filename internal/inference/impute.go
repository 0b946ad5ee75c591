package inference

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MeanImputer fills missing cells with population means. It is never fitted
// on the request itself: a one-row mean is the row, so values that are present
// pass through unchanged and absent ones without a known mean stay NaN for the
// booster's default direction.
type MeanImputer struct {
	means map[string]float64
}

// NewMeanImputer copies means; a nil map yields a pass-through imputer.
func NewMeanImputer(means map[string]float64) *MeanImputer {
	cp := make(map[string]float64, len(means))
	for k, v := range means {
		cp[k] = v
	}
	return &MeanImputer{means: cp}
}

// LoadMeans reads a YAML mapping of feature name to population mean.
func LoadMeans(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("read population means failed: %w", err)
	}
	var means map[string]float64
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&means); err != nil {
		return nil, fmt.Errorf("parse population means %s: %w", path, err)
	}
	for name, v := range means {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("population mean of %q is not finite", name)
		}
	}
	return means, nil
}

// Transform returns a copy of row with NaN cells replaced where a mean is known.
func (m *MeanImputer) Transform(order []string, row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	if m == nil {
		return out
	}
	for i, v := range out {
		if !math.IsNaN(v) || i >= len(order) {
			continue
		}
		if mean, ok := m.means[order[i]]; ok {
			out[i] = mean
		}
	}
	return out
}

// Known reports how many features have a population mean.
func (m *MeanImputer) Known() int {
	if m == nil {
		return 0
	}
	return len(m.means)
}
