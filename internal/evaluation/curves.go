package evaluation

import "sort"

// CurvePoint is one point on a ROC or precision-recall curve.
type CurvePoint struct {
	Threshold float64 `json:"threshold"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// thresholds returns the distinct probabilities, descending.
func thresholds(proba []float64) []float64 {
	seen := make(map[float64]struct{}, len(proba))
	var out []float64
	for _, p := range proba {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// ROCCurve returns (FPR, TPR) points per distinct threshold, plus the (0,0)
// anchor.
func ROCCurve(labels []int, proba []float64) []CurvePoint {
	nPos, nNeg := 0, 0
	for _, y := range labels {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	points := []CurvePoint{{Threshold: 1.0001, X: 0, Y: 0}}
	for _, t := range thresholds(proba) {
		tp, fp := 0, 0
		for i, p := range proba {
			if p >= t {
				if labels[i] == 1 {
					tp++
				} else {
					fp++
				}
			}
		}
		var fpr, tpr float64
		if nNeg > 0 {
			fpr = float64(fp) / float64(nNeg)
		}
		if nPos > 0 {
			tpr = float64(tp) / float64(nPos)
		}
		points = append(points, CurvePoint{Threshold: t, X: fpr, Y: tpr})
	}
	return points
}

// PrecisionRecallCurve returns (recall, precision) points per distinct
// threshold.
func PrecisionRecallCurve(labels []int, proba []float64) []CurvePoint {
	nPos := 0
	for _, y := range labels {
		nPos += y
	}
	var points []CurvePoint
	for _, t := range thresholds(proba) {
		tp, fp := 0, 0
		for i, p := range proba {
			if p >= t {
				if labels[i] == 1 {
					tp++
				} else {
					fp++
				}
			}
		}
		precision := safeDiv(float64(tp), float64(tp+fp))
		recall := safeDiv(float64(tp), float64(nPos))
		points = append(points, CurvePoint{Threshold: t, X: recall, Y: precision})
	}
	return points
}
