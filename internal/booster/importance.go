package booster

import "strconv"

// GainImportance mirrors Booster.get_score(importance_type="gain"): the
// average loss reduction of the splits made on each feature. Features that
// never split are absent from the map. Linear boosters return an empty map.
func (b *Booster) GainImportance() map[string]float64 {
	out := make(map[string]float64)
	if b.kind == KindLinear {
		return out
	}
	total := make([]float64, b.numFeature)
	count := make([]int, b.numFeature)
	for i := range b.trees {
		t := &b.trees[i]
		for n := range t.left {
			if t.isLeaf(n) {
				continue
			}
			f := t.splitIndex[n]
			total[f] += t.lossChange[n]
			count[f]++
		}
	}
	for f := range total {
		if count[f] == 0 {
			continue
		}
		out[b.featureName(f)] = total[f] / float64(count[f])
	}
	return out
}

// featureName falls back to xgboost's positional "f<i>" naming.
func (b *Booster) featureName(i int) string {
	if i < len(b.featureNames) {
		return b.featureNames[i]
	}
	return "f" + strconv.Itoa(i)
}
