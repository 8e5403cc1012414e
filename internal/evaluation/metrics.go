package evaluation

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ClassMetrics holds per-class precision, recall, F1 and support.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Result is the full evaluation of one model on one dataset. Weighted
// averages use class support as weights; divisions by zero yield zero.
// RocAUC is nil when probabilities were unavailable or the labels carried a
// single class.
type Result struct {
	Model     string                `json:"model"`
	Accuracy  float64               `json:"accuracy"`
	Precision float64               `json:"precision"`
	Recall    float64               `json:"recall"`
	F1        float64               `json:"f1"`
	RocAUC    *float64              `json:"roc_auc,omitempty"`
	PerClass  map[int]ClassMetrics  `json:"per_class"`
	Confusion [2][2]int             `json:"confusion_matrix"`
	Samples   int                   `json:"samples"`
}

// MetricComputationFailure marks a metric that could not be computed; the
// evaluation as a whole still succeeds.
type MetricComputationFailure struct {
	Metric string
	Reason string
}

func (e *MetricComputationFailure) Error() string {
	return fmt.Sprintf("failed to compute %s: %s", e.Metric, e.Reason)
}

// Engine evaluates predictions and keeps a history so the best model can be
// selected after a suite run.
type Engine struct {
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	history []Result
}

func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Evaluate computes all metrics for the given predictions. proba may be nil;
// ROC-AUC is then reported as nil. The result is appended to the history.
func (e *Engine) Evaluate(model string, labels, predicted []int, proba []float64) (*Result, error) {
	if len(labels) == 0 || len(labels) != len(predicted) {
		return nil, fmt.Errorf("labels (%d) and predictions (%d) must be non-empty and equal length", len(labels), len(predicted))
	}

	res := &Result{
		Model:    model,
		PerClass: make(map[int]ClassMetrics, 2),
		Samples:  len(labels),
	}

	correct := 0
	for i, y := range labels {
		if predicted[i] == y {
			correct++
		}
		res.Confusion[y][predicted[i]]++
	}
	res.Accuracy = float64(correct) / float64(len(labels))

	total := float64(len(labels))
	for class := 0; class < 2; class++ {
		tp := float64(res.Confusion[class][class])
		fp := float64(res.Confusion[1-class][class])
		fn := float64(res.Confusion[class][1-class])
		support := res.Confusion[class][0] + res.Confusion[class][1]

		cm := ClassMetrics{
			Precision: safeDiv(tp, tp+fp),
			Recall:    safeDiv(tp, tp+fn),
			Support:   support,
		}
		cm.F1 = safeDiv(2*cm.Precision*cm.Recall, cm.Precision+cm.Recall)
		res.PerClass[class] = cm

		w := float64(support) / total
		res.Precision += w * cm.Precision
		res.Recall += w * cm.Recall
		res.F1 += w * cm.F1
	}

	if proba != nil {
		auc, err := rocAUC(labels, proba)
		if err != nil {
			e.logger.Warnw("skipping ROC-AUC", "model", model, "error", err)
		} else {
			res.RocAUC = &auc
		}
	}

	e.mu.Lock()
	e.history = append(e.history, *res)
	e.mu.Unlock()

	e.logger.Infow("evaluated model",
		"model", model,
		"accuracy", res.Accuracy,
		"f1", res.F1,
		"samples", res.Samples)
	return res, nil
}

// rocAUC computes the area under the ROC curve via the rank-sum statistic.
func rocAUC(labels []int, proba []float64) (float64, error) {
	if len(labels) != len(proba) {
		return 0, &MetricComputationFailure{Metric: "roc_auc", Reason: "labels and probabilities differ in length"}
	}
	nPos, nNeg := 0, 0
	for _, y := range labels {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, &MetricComputationFailure{Metric: "roc_auc", Reason: "labels contain a single class"}
	}

	type scored struct {
		p float64
		y int
	}
	items := make([]scored, len(labels))
	for i := range labels {
		items[i] = scored{proba[i], labels[i]}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].p < items[j].p })

	// average ranks over ties
	ranks := make([]float64, len(items))
	for i := 0; i < len(items); {
		j := i
		for j < len(items) && items[j].p == items[i].p {
			j++
		}
		avg := float64(i+j-1)/2 + 1
		for k := i; k < j; k++ {
			ranks[k] = avg
		}
		i = j
	}
	var rankSum float64
	for i, it := range items {
		if it.y == 1 {
			rankSum += ranks[i]
		}
	}
	auc := (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
	return auc, nil
}

// History returns a copy of all evaluations so far, in insertion order.
func (e *Engine) History() []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Result(nil), e.history...)
}

// metricValue extracts a named metric from a result. Unknown metrics and nil
// ROC-AUC read as NaN so they never win a ranking.
func metricValue(r Result, metric string) float64 {
	switch metric {
	case "accuracy":
		return r.Accuracy
	case "precision":
		return r.Precision
	case "recall":
		return r.Recall
	case "f1":
		return r.F1
	case "roc_auc":
		if r.RocAUC == nil {
			return math.NaN()
		}
		return *r.RocAUC
	default:
		return math.NaN()
	}
}

// Rank returns the history sorted descending by the given metric. The sort is
// stable, so equal scores keep evaluation order.
func (e *Engine) Rank(metric string) []Result {
	out := e.History()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := metricValue(out[i], metric), metricValue(out[j], metric)
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		if math.IsNaN(a) {
			return false
		}
		return a > b
	})
	return out
}

// Best returns the highest-scoring evaluation by the given metric, or false
// when the history is empty or no result carries the metric.
func (e *Engine) Best(metric string) (Result, bool) {
	ranked := e.Rank(metric)
	if len(ranked) == 0 || math.IsNaN(metricValue(ranked[0], metric)) {
		return Result{}, false
	}
	return ranked[0], true
}

// ModelComparison places one evaluated model against the rest of the
// history: its result plus its 1-based rank under each standard metric.
type ModelComparison struct {
	Model  string         `json:"model"`
	Result Result         `json:"result"`
	Ranks  map[string]int `json:"ranks"`
}

var comparisonMetrics = []string{"accuracy", "precision", "recall", "f1", "roc_auc"}

// CompareModels summarizes the whole history, ordered by F1 rank. Models
// missing a metric (nil ROC-AUC) get no rank for it.
func (e *Engine) CompareModels() []ModelComparison {
	history := e.History()
	byModel := make(map[string]*ModelComparison, len(history))
	out := make([]ModelComparison, 0, len(history))
	for _, r := range history {
		byModel[r.Model] = &ModelComparison{Model: r.Model, Result: r, Ranks: map[string]int{}}
	}
	for _, metric := range comparisonMetrics {
		for i, r := range e.Rank(metric) {
			c, ok := byModel[r.Model]
			if !ok || math.IsNaN(metricValue(r, metric)) {
				continue
			}
			if _, seen := c.Ranks[metric]; !seen {
				c.Ranks[metric] = i + 1
			}
		}
	}
	for _, r := range e.Rank("f1") {
		if c, ok := byModel[r.Model]; ok {
			out = append(out, *c)
			delete(byModel, r.Model)
		}
	}
	return out
}

// ResetHistory clears the accumulated evaluations.
func (e *Engine) ResetHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}
