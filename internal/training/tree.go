package training

import (
	"errors"
	"sort"
)

// TreeNode is a binary split node. Leaf nodes carry Value, the fraction of
// positive samples (classification) or the mean target (regression).
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Value     float64
	Leaf      bool
}

func (n *TreeNode) eval(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// DecisionTree is a CART classifier splitting on Gini impurity.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	FeatureSubset   int // 0 means all features; set by random forests
	Seed            int64

	Root        *TreeNode
	Importances []float64
}

func giniOf(pos, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(pos) / float64(total)
	return 2 * p * (1 - p)
}

type splitResult struct {
	feature   int
	threshold float64
	gain      float64
	leftIdx   []int
	rightIdx  []int
}

// bestSplit scans candidate features for the impurity-minimizing threshold.
func bestSplit(features [][]float64, labels []int, idx []int, candidates []int, minLeaf int) *splitResult {
	total := len(idx)
	totalPos := 0
	for _, i := range idx {
		totalPos += labels[i]
	}
	parentGini := giniOf(totalPos, total)

	var best *splitResult
	order := make([]int, len(idx))
	for _, f := range candidates {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool {
			return features[order[a]][f] < features[order[b]][f]
		})
		leftPos := 0
		for split := 1; split < total; split++ {
			leftPos += labels[order[split-1]]
			if features[order[split]][f] == features[order[split-1]][f] {
				continue
			}
			if split < minLeaf || total-split < minLeaf {
				continue
			}
			leftGini := giniOf(leftPos, split)
			rightGini := giniOf(totalPos-leftPos, total-split)
			weighted := (float64(split)*leftGini + float64(total-split)*rightGini) / float64(total)
			gain := parentGini - weighted
			if best == nil || gain > best.gain {
				threshold := (features[order[split-1]][f] + features[order[split]][f]) / 2
				best = &splitResult{
					feature:   f,
					threshold: threshold,
					gain:      gain,
					leftIdx:   append([]int(nil), order[:split]...),
					rightIdx:  append([]int(nil), order[split:]...),
				}
			}
		}
	}
	if best != nil && best.gain <= 0 {
		return nil
	}
	return best
}

func (m *DecisionTree) Fit(features [][]float64, labels []int) error {
	return m.fitRandomized(features, labels, nil)
}

// fitRandomized allows a random forest to inject a feature sampler.
func (m *DecisionTree) fitRandomized(features [][]float64, labels []int, sampleFeatures func(d int) []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("decision_tree: features and labels must be non-empty and equal length")
	}
	d := len(features[0])
	m.Importances = make([]float64, d)
	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	m.Root = m.grow(features, labels, idx, 0, sampleFeatures)

	var sum float64
	for _, v := range m.Importances {
		sum += v
	}
	if sum > 0 {
		for i := range m.Importances {
			m.Importances[i] /= sum
		}
	}
	return nil
}

func (m *DecisionTree) grow(features [][]float64, labels []int, idx []int, depth int, sampleFeatures func(d int) []int) *TreeNode {
	pos := 0
	for _, i := range idx {
		pos += labels[i]
	}
	leaf := &TreeNode{Leaf: true, Value: float64(pos) / float64(len(idx))}
	if depth >= m.MaxDepth || len(idx) < m.MinSamplesSplit || pos == 0 || pos == len(idx) {
		return leaf
	}

	d := len(features[0])
	var candidates []int
	if sampleFeatures != nil {
		candidates = sampleFeatures(d)
	} else {
		candidates = make([]int, d)
		for i := range candidates {
			candidates[i] = i
		}
	}

	split := bestSplit(features, labels, idx, candidates, m.MinSamplesLeaf)
	if split == nil {
		return leaf
	}
	m.Importances[split.feature] += split.gain * float64(len(idx))
	return &TreeNode{
		Feature:   split.feature,
		Threshold: split.threshold,
		Left:      m.grow(features, labels, split.leftIdx, depth+1, sampleFeatures),
		Right:     m.grow(features, labels, split.rightIdx, depth+1, sampleFeatures),
	}
}

func (m *DecisionTree) Predict(features [][]float64) ([]int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

func (m *DecisionTree) PredictProba(features [][]float64) ([]float64, error) {
	if m.Root == nil {
		return nil, errors.New("decision_tree: model not fitted")
	}
	out := make([]float64, len(features))
	for i, x := range features {
		out[i] = m.Root.eval(x)
	}
	return out, nil
}

// FeatureImportances reports normalized Gini importance per feature.
func (m *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), m.Importances...)
}

// regressionTree fits squared-error splits against continuous targets. It is
// the weak learner for gradient boosting.
type regressionTree struct {
	maxDepth       int
	minSamplesLeaf int
	root           *TreeNode
	importances    []float64
}

func (m *regressionTree) fit(features [][]float64, targets []float64) {
	d := len(features[0])
	m.importances = make([]float64, d)
	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	m.root = m.grow(features, targets, idx, 0)
}

func variance(targets []float64, idx []int) (float64, float64) {
	var sum float64
	for _, i := range idx {
		sum += targets[i]
	}
	m := sum / float64(len(idx))
	var v float64
	for _, i := range idx {
		d := targets[i] - m
		v += d * d
	}
	return v, m
}

func (m *regressionTree) grow(features [][]float64, targets []float64, idx []int, depth int) *TreeNode {
	parentSSE, meanT := variance(targets, idx)
	leaf := &TreeNode{Leaf: true, Value: meanT}
	if depth >= m.maxDepth || len(idx) < 2 || parentSSE == 0 {
		return leaf
	}

	d := len(features[0])
	var best struct {
		found     bool
		feature   int
		threshold float64
		gain      float64
		split     int
		order     []int
	}
	order := make([]int, len(idx))
	for f := 0; f < d; f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool {
			return features[order[a]][f] < features[order[b]][f]
		})
		var leftSum, leftSq float64
		var totalSum, totalSq float64
		for _, i := range order {
			totalSum += targets[i]
			totalSq += targets[i] * targets[i]
		}
		for split := 1; split < len(order); split++ {
			t := targets[order[split-1]]
			leftSum += t
			leftSq += t * t
			if features[order[split]][f] == features[order[split-1]][f] {
				continue
			}
			if split < m.minSamplesLeaf || len(order)-split < m.minSamplesLeaf {
				continue
			}
			nL, nR := float64(split), float64(len(order)-split)
			sseL := leftSq - leftSum*leftSum/nL
			rightSum := totalSum - leftSum
			sseR := (totalSq - leftSq) - rightSum*rightSum/nR
			gain := parentSSE - sseL - sseR
			if !best.found || gain > best.gain {
				best.found = true
				best.feature = f
				best.threshold = (features[order[split-1]][f] + features[order[split]][f]) / 2
				best.gain = gain
				best.split = split
				best.order = append(best.order[:0], order...)
			}
		}
	}
	if !best.found || best.gain <= 1e-12 {
		return leaf
	}
	m.importances[best.feature] += best.gain
	left := append([]int(nil), best.order[:best.split]...)
	right := append([]int(nil), best.order[best.split:]...)
	return &TreeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      m.grow(features, targets, left, depth+1),
		Right:     m.grow(features, targets, right, depth+1),
	}
}

func (m *regressionTree) predict(x []float64) float64 {
	return m.root.eval(x)
}
