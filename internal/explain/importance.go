package explain

import (
	"strconv"

	"cardiorisk/internal/booster"
)

// ImportanceSource is satisfied by *booster.Booster.
type ImportanceSource interface {
	GainImportance() map[string]float64
	FeatureNames() []string
}

// ImportanceRow is one line of the lite table.
type ImportanceRow struct {
	Feature    string  `json:"feature"`
	Value      float64 `json:"value"`
	Importance float64 `json:"importance"`
}

var _ ImportanceSource = (*booster.Booster)(nil)

// Importances lists global gain importance next to the entered values, in
// feature order. Features that never split report 0. Models saved without
// feature names key their scores as f0, f1, ...
func Importances(src ImportanceSource, order []string, values map[string]float64) []ImportanceRow {
	scores := src.GainImportance()
	named := len(src.FeatureNames()) > 0
	rows := make([]ImportanceRow, len(order))
	for i, name := range order {
		key := name
		if !named {
			key = "f" + strconv.Itoa(i)
		}
		rows[i] = ImportanceRow{
			Feature:    name,
			Value:      values[name],
			Importance: scores[key],
		}
	}
	return rows
}
