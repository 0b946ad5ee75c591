package booster

import (
	"fmt"
	"math"
)

// Attribution is the additive explanation of one margin:
// Expected + sum(Values) equals the margin of the explained row.
type Attribution struct {
	Expected float64
	Values   []float64
}

// Shap computes exact path-dependent TreeSHAP values (Lundberg et al.,
// "Consistent Individualized Feature Attribution for Tree Ensembles",
// Algorithm 2) in log-odds space. Node covers (sum_hessian) provide the
// background distribution.
func (b *Booster) Shap(row []float64) (Attribution, error) {
	if b.kind == KindLinear {
		return Attribution{}, fmt.Errorf("%w: %s", ErrUnsupportedExplain, b.kind)
	}
	if len(row) != b.numFeature {
		return Attribution{}, fmt.Errorf("row has %d values, model expects %d", len(row), b.numFeature)
	}
	phi := make([]float64, b.numFeature)
	expected := b.baseMargin
	for i := range b.trees {
		t := &b.trees[i]
		if err := t.checkCovers(); err != nil {
			return Attribution{}, fmt.Errorf("tree %d: %w", i, err)
		}
		w := b.treeWeights[i]
		expected += w * t.meanValue(0)

		treePhi := make([]float64, b.numFeature)
		t.shapRecurse(row, treePhi, 0, 0, nil, 1, 1, -1)
		for j, v := range treePhi {
			phi[j] += w * v
		}
	}
	return Attribution{Expected: expected, Values: phi}, nil
}

func (t *tree) checkCovers() error {
	for n := range t.left {
		if t.isLeaf(n) {
			continue
		}
		if !(t.sumHessian[n] > 0) || math.IsInf(t.sumHessian[n], 0) {
			return fmt.Errorf("%w: node %d has cover %v", ErrUnsupportedExplain, n, t.sumHessian[n])
		}
	}
	return nil
}

// meanValue is the cover-weighted average leaf value below node n.
func (t *tree) meanValue(n int) float64 {
	if t.isLeaf(n) {
		return t.splitCond[n]
	}
	l, r := t.left[n], t.right[n]
	return (t.meanValue(l)*t.sumHessian[l] + t.meanValue(r)*t.sumHessian[r]) / t.sumHessian[n]
}

type pathElement struct {
	feature      int
	zeroFraction float64
	oneFraction  float64
	pweight      float64
}

func (t *tree) shapRecurse(row, phi []float64, node, depth int, parent []pathElement,
	zeroFraction, oneFraction float64, feature int) {
	path := make([]pathElement, depth+1)
	copy(path, parent)
	extendPath(path, depth, zeroFraction, oneFraction, feature)

	if t.isLeaf(node) {
		leaf := t.splitCond[node]
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			phi[el.feature] += w * (el.oneFraction - el.zeroFraction) * leaf
		}
		return
	}

	split := t.splitIndex[node]
	hot := t.next(node, row)
	cold := t.left[node]
	if hot == cold {
		cold = t.right[node]
	}
	cover := t.sumHessian[node]
	hotZero := t.sumHessian[hot] / cover
	coldZero := t.sumHessian[cold] / cover

	incomingZero, incomingOne := 1.0, 1.0
	for k := 0; k <= depth; k++ {
		if path[k].feature == split {
			incomingZero = path[k].zeroFraction
			incomingOne = path[k].oneFraction
			unwindPath(path, depth, k)
			depth--
			break
		}
	}

	t.shapRecurse(row, phi, hot, depth+1, path, hotZero*incomingZero, incomingOne, split)
	t.shapRecurse(row, phi, cold, depth+1, path, coldZero*incomingZero, 0, split)
}

func extendPath(path []pathElement, depth int, zeroFraction, oneFraction float64, feature int) {
	path[depth] = pathElement{feature: feature, zeroFraction: zeroFraction, oneFraction: oneFraction}
	if depth == 0 {
		path[depth].pweight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].pweight += oneFraction * path[i].pweight * float64(i+1) / d
		path[i].pweight = zeroFraction * path[i].pweight * float64(depth-i) / d
	}
}

func unwindPath(path []pathElement, depth, index int) {
	one := path[index].oneFraction
	zero := path[index].zeroFraction
	next := path[depth].pweight
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].pweight
			path[i].pweight = next * d / (float64(i+1) * one)
			next = tmp - path[i].pweight*zero*float64(depth-i)/d
		} else {
			path[i].pweight = path[i].pweight * d / (zero * float64(depth-i))
		}
	}
	for i := index; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

func unwoundPathSum(path []pathElement, depth, index int) float64 {
	one := path[index].oneFraction
	zero := path[index].zeroFraction
	next := path[depth].pweight
	d := float64(depth + 1)
	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].pweight - tmp*zero*float64(depth-i)/d
		} else if zero != 0 {
			total += path[i].pweight / zero / (float64(depth-i) / d)
		}
	}
	return total
}
