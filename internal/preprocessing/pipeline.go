package preprocessing

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"
)

// Scaling methods.
const (
	ScaleStandard = "standard"
	ScaleMinMax   = "minmax"
)

// Imputation strategies.
const (
	ImputeMean   = "mean"
	ImputeMedian = "median"
	ImputeMode   = "mode"
	ImputeDrop   = "drop"
)

// Outlier detection methods.
const (
	OutlierIQR    = "iqr"
	OutlierZScore = "zscore"
)

// zeroInvalidColumns are measurements where a recorded zero is physiologically
// impossible and treated as a missing value.
var zeroInvalidColumns = []string{"resting_bp", "cholesterol"}

// CleanReport summarizes what Clean changed.
type CleanReport struct {
	DuplicatesRemoved int
	ZerosRepaired     map[string]int
}

// Pipeline fits and applies the feature preprocessing steps. Encoder and
// scaler state live in the embedded FittedTransform so they can be persisted
// with a trained model and replayed at inference time.
type Pipeline struct {
	logger *zap.SugaredLogger
	seed   int64

	encoderFitted bool
	transform     FittedTransform
}

// NewPipeline creates a pipeline with the default deterministic seed.
func NewPipeline(logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		logger: logger,
		seed:   42,
		transform: FittedTransform{
			Categories: make(map[string][]float64),
			Mean:       make(map[string]float64),
			Scale:      make(map[string]float64),
			Min:        make(map[string]float64),
			Max:        make(map[string]float64),
		},
	}
}

// Transform returns the fit state accumulated so far.
func (p *Pipeline) Transform() *FittedTransform { return &p.transform }

// Reset clears all fitted state so the pipeline can be fitted again.
func (p *Pipeline) Reset() {
	p.encoderFitted = false
	p.transform = FittedTransform{
		Categories: make(map[string][]float64),
		Mean:       make(map[string]float64),
		Scale:      make(map[string]float64),
		Min:        make(map[string]float64),
		Max:        make(map[string]float64),
	}
}

// Clean removes duplicate rows and repairs impossible zero readings in blood
// pressure and cholesterol by substituting the non-zero median of the column.
// Cleaning an already clean frame is a no-op.
func (p *Pipeline) Clean(f *Frame) (*Frame, *CleanReport, error) {
	report := &CleanReport{ZerosRepaired: make(map[string]int)}

	seen := make(map[string]struct{}, f.NumRows())
	keep := make([]bool, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		key := rowKey(f.Row(i))
		if _, dup := seen[key]; dup {
			report.DuplicatesRemoved++
			continue
		}
		seen[key] = struct{}{}
		keep[i] = true
	}
	out := f.Filter(keep)

	for _, col := range zeroInvalidColumns {
		if !out.HasColumn(col) {
			continue
		}
		values, err := out.Col(col)
		if err != nil {
			return nil, nil, err
		}
		nonZero := make([]float64, 0, len(values))
		for _, v := range values {
			if v != 0 && !math.IsNaN(v) {
				nonZero = append(nonZero, v)
			}
		}
		if len(nonZero) == 0 {
			continue
		}
		med := quantile(nonZero, 0.5)
		for i, v := range values {
			if v == 0 {
				values[i] = med
				report.ZerosRepaired[col]++
			}
		}
		if err := out.SetCol(col, values); err != nil {
			return nil, nil, err
		}
	}

	if report.DuplicatesRemoved > 0 || len(report.ZerosRepaired) > 0 {
		p.logger.Infow("cleaned dataset",
			"duplicates_removed", report.DuplicatesRemoved,
			"zeros_repaired", report.ZerosRepaired,
			"rows", out.NumRows())
	}
	return out, report, nil
}

func rowKey(row []float64) string {
	key := make([]byte, 0, len(row)*12)
	for _, v := range row {
		key = append(key, fmt.Sprintf("%v|", v)...)
	}
	return string(key)
}

// Impute fills missing values (NaN) per column using the given strategy.
// "drop" removes any row containing a missing value. An unknown strategy logs
// a warning and returns the frame unchanged.
func (p *Pipeline) Impute(f *Frame, strategy string) (*Frame, error) {
	switch strategy {
	case ImputeDrop:
		keep := make([]bool, f.NumRows())
		for i := 0; i < f.NumRows(); i++ {
			keep[i] = true
			for _, v := range f.Row(i) {
				if math.IsNaN(v) {
					keep[i] = false
					break
				}
			}
		}
		return f.Filter(keep), nil
	case ImputeMean, ImputeMedian, ImputeMode:
		out := f.Clone()
		for _, col := range out.Columns() {
			values, err := out.Col(col)
			if err != nil {
				return nil, err
			}
			var fill float64
			switch strategy {
			case ImputeMean:
				clean := make([]float64, 0, len(values))
				for _, v := range values {
					if !math.IsNaN(v) {
						clean = append(clean, v)
					}
				}
				fill = mean(clean)
			case ImputeMedian:
				fill = median(values)
			case ImputeMode:
				fill = mode(values)
			}
			if math.IsNaN(fill) {
				continue
			}
			changed := false
			for i, v := range values {
				if math.IsNaN(v) {
					values[i] = fill
					changed = true
				}
			}
			if changed {
				if err := out.SetCol(col, values); err != nil {
					return nil, err
				}
			}
		}
		return out, nil
	default:
		p.logger.Warnw("unknown imputation strategy, returning data unchanged", "strategy", strategy)
		return f, nil
	}
}

// FitEncode learns one-hot categories from the given categorical columns and
// returns the encoded frame. Fitting twice without Reset is a state error.
func (p *Pipeline) FitEncode(f *Frame, categorical []string) (*Frame, error) {
	if p.encoderFitted {
		return nil, &TransformStateError{Op: "encode", Reason: "encoder already fitted; call Reset before refitting"}
	}
	for _, col := range categorical {
		if !f.HasColumn(col) {
			return nil, &SchemaError{Column: col, Reason: "categorical column missing from input"}
		}
		values, err := f.Col(col)
		if err != nil {
			return nil, err
		}
		p.transform.Categories[col] = uniqueSorted(values)
	}
	p.transform.EncodedColumns = append([]string(nil), categorical...)
	p.encoderFitted = true

	out, err := p.transform.EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("fitted one-hot encoder",
		"columns", categorical,
		"output_columns", out.NumCols())
	return out, nil
}

// Encode applies the already fitted encoder to a new frame.
func (p *Pipeline) Encode(f *Frame) (*Frame, error) {
	if !p.encoderFitted {
		return nil, &TransformStateError{Op: "encode", Reason: "encoder not fitted"}
	}
	return p.transform.EncodeFrame(f)
}

// FitScale learns scaler statistics from train and applies them to every frame
// given, train first. Statistics come from the training frame only. Refitting
// overwrites previous scaler state.
func (p *Pipeline) FitScale(method string, exclude []string, train *Frame, rest ...*Frame) error {
	if method != ScaleStandard && method != ScaleMinMax {
		return &TransformStateError{Op: "scale", Reason: fmt.Sprintf("unknown scaling method %q", method)}
	}
	excluded := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		excluded[c] = true
	}
	cols := make([]string, 0, train.NumCols())
	for _, c := range train.Columns() {
		if !excluded[c] {
			cols = append(cols, c)
		}
	}

	p.transform.ScaleMethod = method
	p.transform.ScaleColumns = cols
	for _, c := range cols {
		values, err := train.Col(c)
		if err != nil {
			return err
		}
		switch method {
		case ScaleStandard:
			p.transform.Mean[c] = mean(values)
			p.transform.Scale[c] = populationStd(values)
		case ScaleMinMax:
			lo, hi := minMax(values)
			p.transform.Min[c] = lo
			p.transform.Max[c] = hi
		}
	}

	frames := append([]*Frame{train}, rest...)
	for _, f := range frames {
		if f == nil {
			continue
		}
		if _, err := p.transform.ScaleFrame(f); err != nil {
			return err
		}
	}
	p.transform.OutputColumns = train.Columns()
	p.logger.Infow("fitted scaler", "method", method, "columns", len(cols))
	return nil
}

// Balance oversamples the minority class by interpolating between each
// minority row and one of its k nearest minority neighbours until both classes
// have equal counts. Sampling is deterministic for a fixed pipeline seed.
func (p *Pipeline) Balance(features [][]float64, labels []int) ([][]float64, []int, error) {
	if len(features) != len(labels) {
		return nil, nil, &SchemaError{Reason: fmt.Sprintf("feature rows (%d) and labels (%d) differ", len(features), len(labels))}
	}
	counts := make(map[int]int)
	for _, y := range labels {
		counts[y]++
	}
	if len(counts) < 2 {
		return features, labels, nil
	}

	classes := make([]int, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	maxCount := 0
	for _, c := range classes {
		if counts[c] > maxCount {
			maxCount = counts[c]
		}
	}

	outX := append([][]float64(nil), features...)
	outY := append([]int(nil), labels...)
	rng := rand.New(rand.NewSource(p.seed))

	for _, class := range classes {
		need := maxCount - counts[class]
		if need == 0 {
			continue
		}
		var members [][]float64
		for i, y := range labels {
			if y == class {
				members = append(members, features[i])
			}
		}
		k := 5
		if len(members)-1 < k {
			k = len(members) - 1
		}
		if k < 1 {
			// cannot interpolate from a single sample; duplicate it
			for j := 0; j < need; j++ {
				outX = append(outX, append([]float64(nil), members[0]...))
				outY = append(outY, class)
			}
			continue
		}
		for j := 0; j < need; j++ {
			base := members[rng.Intn(len(members))]
			neighbor := nearestNeighbors(base, members, k)[rng.Intn(k)]
			synth := make([]float64, len(base))
			gap := rng.Float64()
			for d := range base {
				synth[d] = base[d] + gap*(neighbor[d]-base[d])
			}
			outX = append(outX, synth)
			outY = append(outY, class)
		}
	}
	p.logger.Infow("balanced classes", "before", counts, "rows_after", len(outY))
	return outX, outY, nil
}

// nearestNeighbors returns the k nearest rows to x, excluding x itself.
func nearestNeighbors(x []float64, rows [][]float64, k int) [][]float64 {
	type cand struct {
		dist float64
		row  []float64
	}
	cands := make([]cand, 0, len(rows))
	for _, r := range rows {
		if &r[0] == &x[0] {
			continue
		}
		var d float64
		for i := range x {
			diff := x[i] - r[i]
			d += diff * diff
		}
		cands = append(cands, cand{d, r})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if k > len(cands) {
		k = len(cands)
	}
	out := make([][]float64, k)
	for i := 0; i < k; i++ {
		out[i] = cands[i].row
	}
	return out
}

// RemoveOutliers drops rows outside the per-column bounds. With "iqr" the
// bounds are [Q1 - t*IQR, Q3 + t*IQR]; with "zscore" a row is removed when
// |x - mean| / std exceeds t. Columns are processed sequentially, so later
// bounds are computed on the already narrowed data.
func (p *Pipeline) RemoveOutliers(f *Frame, columns []string, method string, threshold float64) (*Frame, error) {
	out := f
	for _, col := range columns {
		if !out.HasColumn(col) {
			return nil, &SchemaError{Column: col, Reason: "outlier column missing from input"}
		}
		values, err := out.Col(col)
		if err != nil {
			return nil, err
		}
		keep := make([]bool, len(values))
		switch method {
		case OutlierIQR:
			q1 := quantile(values, 0.25)
			q3 := quantile(values, 0.75)
			iqr := q3 - q1
			lo := q1 - threshold*iqr
			hi := q3 + threshold*iqr
			for i, v := range values {
				keep[i] = v >= lo && v <= hi
			}
		case OutlierZScore:
			m := mean(values)
			s := sampleStd(values)
			for i, v := range values {
				keep[i] = s == 0 || math.Abs(v-m)/s <= threshold
			}
		default:
			return nil, &TransformStateError{Op: "outliers", Reason: fmt.Sprintf("unknown outlier method %q", method)}
		}
		out = out.Filter(keep)
	}
	p.logger.Infow("removed outliers",
		"method", method,
		"threshold", threshold,
		"rows_before", f.NumRows(),
		"rows_after", out.NumRows())
	return out, nil
}

// SplitOptions controls Split.
type SplitOptions struct {
	TrainFraction float64
	ValFraction   float64
	Stratify      bool
	Seed          int64
}

// Split partitions rows into train/validation/test index sets. With Stratify
// the class proportions of labels are preserved in each partition.
func Split(labels []int, opts SplitOptions) (train, val, test []int) {
	rng := rand.New(rand.NewSource(opts.Seed))
	groups := map[int][]int{}
	if opts.Stratify {
		for i, y := range labels {
			groups[y] = append(groups[y], i)
		}
	} else {
		all := make([]int, len(labels))
		for i := range labels {
			all[i] = i
		}
		groups[0] = all
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		idx := groups[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTrain := int(math.Round(opts.TrainFraction * float64(len(idx))))
		nVal := int(math.Round(opts.ValFraction * float64(len(idx))))
		if nTrain+nVal > len(idx) {
			nVal = len(idx) - nTrain
		}
		train = append(train, idx[:nTrain]...)
		val = append(val, idx[nTrain:nTrain+nVal]...)
		test = append(test, idx[nTrain+nVal:]...)
	}
	sort.Ints(train)
	sort.Ints(val)
	sort.Ints(test)
	return train, val, test
}

// FeatureInfo summarizes a frame: its shape, per-column missing-value counts,
// and the cardinality of each categorical column once the encoder is fitted.
type FeatureInfo struct {
	Samples       int            `json:"samples"`
	Features      int            `json:"features"`
	Columns       []string       `json:"columns"`
	Missing       map[string]int `json:"missing,omitempty"`
	Cardinalities map[string]int `json:"cardinalities,omitempty"`
}

// FeatureInfo reports the shape of a frame. Cardinalities are filled from the
// fitted encoder and stay empty before FitEncode.
func (p *Pipeline) FeatureInfo(f *Frame) FeatureInfo {
	info := FeatureInfo{
		Samples:       f.NumRows(),
		Features:      f.NumCols(),
		Columns:       f.Columns(),
		Missing:       make(map[string]int),
		Cardinalities: make(map[string]int),
	}
	for _, col := range info.Columns {
		values, err := f.Col(col)
		if err != nil {
			continue
		}
		missing := 0
		for _, v := range values {
			if math.IsNaN(v) {
				missing++
			}
		}
		if missing > 0 {
			info.Missing[col] = missing
		}
	}
	for col, cats := range p.transform.Categories {
		info.Cardinalities[col] = len(cats)
	}
	p.logger.Infow("feature info", "samples", info.Samples, "features", info.Features)
	return info
}

// PrepareOptions configures the end-to-end Prepare run.
type PrepareOptions struct {
	Target          string
	Categorical     []string
	ImputeStrategy  string
	ScaleMethod     string
	Balance         bool
	OutlierMethod   string
	OutlierColumns  []string
	OutlierThresh   float64
	TrainFraction   float64
	ValFraction     float64
	Seed            int64
}

// Prepared is the output of Prepare: transformed splits ready for training.
type Prepared struct {
	Columns                    []string
	TrainX, ValX, TestX        [][]float64
	TrainY, ValY, TestY        []int
	Transform                  *FittedTransform
	Clean                      *CleanReport
	Info                       FeatureInfo
}

// Prepare runs the full training-time preprocessing sequence: clean, impute,
// optional outlier removal, encode, stratified split, scale (fit on train
// only) and optional class balancing of the training partition.
func (p *Pipeline) Prepare(f *Frame, opts PrepareOptions) (*Prepared, error) {
	cleaned, report, err := p.Clean(f)
	if err != nil {
		return nil, fmt.Errorf("failed to clean dataset: %w", err)
	}
	imputed, err := p.Impute(cleaned, opts.ImputeStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to impute missing values: %w", err)
	}
	if opts.OutlierMethod != "" && len(opts.OutlierColumns) > 0 {
		imputed, err = p.RemoveOutliers(imputed, opts.OutlierColumns, opts.OutlierMethod, opts.OutlierThresh)
		if err != nil {
			return nil, fmt.Errorf("failed to remove outliers: %w", err)
		}
	}

	encoded, err := p.FitEncode(imputed, opts.Categorical)
	if err != nil {
		return nil, fmt.Errorf("failed to encode categorical features: %w", err)
	}
	features, labelCol, err := encoded.Drop(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to split off target column: %w", err)
	}
	labels := make([]int, len(labelCol))
	for i, v := range labelCol {
		labels[i] = int(math.Round(v))
	}

	trainIdx, valIdx, testIdx := Split(labels, SplitOptions{
		TrainFraction: opts.TrainFraction,
		ValFraction:   opts.ValFraction,
		Stratify:      true,
		Seed:          opts.Seed,
	})
	trainF := selectRows(features, trainIdx)
	valF := selectRows(features, valIdx)
	testF := selectRows(features, testIdx)

	if err := p.FitScale(opts.ScaleMethod, nil, trainF, valF, testF); err != nil {
		return nil, fmt.Errorf("failed to scale features: %w", err)
	}

	out := &Prepared{
		Columns:   trainF.Columns(),
		TrainX:    trainF.Matrix(),
		ValX:      valF.Matrix(),
		TestX:     testF.Matrix(),
		TrainY:    selectLabels(labels, trainIdx),
		ValY:      selectLabels(labels, valIdx),
		TestY:     selectLabels(labels, testIdx),
		Transform: &p.transform,
		Clean:     report,
		Info:      p.FeatureInfo(imputed),
	}
	if opts.Balance {
		out.TrainX, out.TrainY, err = p.Balance(out.TrainX, out.TrainY)
		if err != nil {
			return nil, fmt.Errorf("failed to balance classes: %w", err)
		}
	}
	return out, nil
}

func selectRows(f *Frame, idx []int) *Frame {
	out := New(f.Columns())
	for _, i := range idx {
		out.rows = append(out.rows, append([]float64(nil), f.Row(i)...))
	}
	return out
}

func selectLabels(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}
