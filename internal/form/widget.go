package form

import (
	"math"
	"strconv"
	"strings"
)

// Widget is one numeric input of the page.
type Widget struct {
	Feature   string  `json:"feature"`
	Label     string  `json:"label"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Default   float64 `json:"default"`
	Rule      string  `json:"rule"`
	Unmatched bool    `json:"unmatched,omitempty"`
}

// Clamp limits v to the widget range, the way a number input does.
func (w Widget) Clamp(v float64) float64 {
	return math.Min(w.Max, math.Max(w.Min, v))
}

// Build creates one widget per feature, in order.
func (rs RuleSet) Build(order []string) []Widget {
	widgets := make([]Widget, 0, len(order))
	for _, feature := range order {
		widgets = append(widgets, rs.widgetFor(feature))
	}
	return widgets
}

func (rs RuleSet) widgetFor(feature string) Widget {
	for _, r := range rs.Rules {
		if r.matches(feature) {
			return newWidget(feature, r, false)
		}
	}
	return newWidget(feature, rs.Fallback, true)
}

func newWidget(feature string, r Rule, unmatched bool) Widget {
	label := r.Label
	if label == "" {
		label = feature
	}
	return Widget{
		Feature:   feature,
		Label:     label,
		Min:       r.Min,
		Max:       r.Max,
		Default:   r.Default,
		Rule:      r.Name,
		Unmatched: unmatched,
	}
}

// Unmatched lists the features that fell through to the fallback widget.
func Unmatched(widgets []Widget) []string {
	var out []string
	for _, w := range widgets {
		if w.Unmatched {
			out = append(out, w.Feature)
		}
	}
	return out
}

// Defaults returns the widget defaults keyed by feature.
func Defaults(widgets []Widget) map[string]float64 {
	out := make(map[string]float64, len(widgets))
	for _, w := range widgets {
		out[w.Feature] = w.Default
	}
	return out
}

// ParseForm reads submitted values through lookup (e.g. gin's PostForm).
// Blank or unparsable inputs fall back to the widget default; everything is
// clamped to the widget range.
func ParseForm(widgets []Widget, lookup func(string) string) map[string]float64 {
	out := make(map[string]float64, len(widgets))
	for _, w := range widgets {
		v := w.Default
		if raw := strings.TrimSpace(lookup(w.Feature)); raw != "" {
			if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				v = f
			}
		}
		out[w.Feature] = w.Clamp(v)
	}
	return out
}
