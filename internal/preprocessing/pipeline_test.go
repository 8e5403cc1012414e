package preprocessing

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testPipeline(t *testing.T) *Pipeline {
	return NewPipeline(zaptest.NewLogger(t).Sugar())
}

func TestCleanRepairsZerosAndDuplicates(t *testing.T) {
	f, err := FromRows([]string{"age", "resting_bp", "cholesterol"}, [][]float64{
		{54, 150, 0},
		{54, 150, 0}, // duplicate
		{60, 0, 210},
		{48, 130, 190},
		{71, 140, 250},
	})
	require.NoError(t, err)

	p := testPipeline(t)
	cleaned, report, err := p.Clean(f)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DuplicatesRemoved)
	assert.Equal(t, 4, cleaned.NumRows())

	bp, err := cleaned.Col("resting_bp")
	require.NoError(t, err)
	// non-zero medians: bp {150,130,140} -> 140, chol {210,190,250} -> 210
	assert.Equal(t, []float64{150, 140, 130, 140}, bp)
	chol, err := cleaned.Col("cholesterol")
	require.NoError(t, err)
	assert.Equal(t, []float64{210, 210, 190, 250}, chol)
	assert.Equal(t, 1, report.ZerosRepaired["resting_bp"])
	assert.Equal(t, 1, report.ZerosRepaired["cholesterol"])
}

func TestCleanIsIdempotent(t *testing.T) {
	f, err := FromRows([]string{"age", "resting_bp", "cholesterol"}, [][]float64{
		{54, 150, 0},
		{54, 150, 0},
		{60, 0, 210},
	})
	require.NoError(t, err)

	p := testPipeline(t)
	once, r1, err := p.Clean(f)
	require.NoError(t, err)
	twice, r2, err := p.Clean(once)
	require.NoError(t, err)

	assert.Positive(t, r1.DuplicatesRemoved+len(r1.ZerosRepaired))
	assert.Zero(t, r2.DuplicatesRemoved)
	assert.Empty(t, r2.ZerosRepaired)
	assert.Equal(t, once.Matrix(), twice.Matrix())
}

func TestImputeStrategies(t *testing.T) {
	rows := [][]float64{
		{1, 10},
		{math.NaN(), 20},
		{3, 30},
		{3, math.NaN()},
	}

	t.Run("mean", func(t *testing.T) {
		f, err := FromRows([]string{"a", "b"}, rows)
		require.NoError(t, err)
		out, err := testPipeline(t).Impute(f, ImputeMean)
		require.NoError(t, err)
		a, _ := out.Col("a")
		assert.InDelta(t, (1.0+3+3)/3, a[1], 1e-12)
		b, _ := out.Col("b")
		assert.InDelta(t, 20, b[3], 1e-12)
	})

	t.Run("median", func(t *testing.T) {
		f, err := FromRows([]string{"a", "b"}, rows)
		require.NoError(t, err)
		out, err := testPipeline(t).Impute(f, ImputeMedian)
		require.NoError(t, err)
		a, _ := out.Col("a")
		assert.Equal(t, 3.0, a[1])
	})

	t.Run("mode", func(t *testing.T) {
		f, err := FromRows([]string{"a", "b"}, rows)
		require.NoError(t, err)
		out, err := testPipeline(t).Impute(f, ImputeMode)
		require.NoError(t, err)
		a, _ := out.Col("a")
		assert.Equal(t, 3.0, a[1])
	})

	t.Run("drop", func(t *testing.T) {
		f, err := FromRows([]string{"a", "b"}, rows)
		require.NoError(t, err)
		out, err := testPipeline(t).Impute(f, ImputeDrop)
		require.NoError(t, err)
		assert.Equal(t, 2, out.NumRows())
	})

	t.Run("unknown strategy returns data unchanged", func(t *testing.T) {
		f, err := FromRows([]string{"a", "b"}, rows)
		require.NoError(t, err)
		out, err := testPipeline(t).Impute(f, "bogus")
		require.NoError(t, err)
		assert.True(t, math.IsNaN(out.Row(1)[0]))
	})
}

func TestFitEncodeProducesIndicators(t *testing.T) {
	f, err := FromRows([]string{"age", "chest_pain_type"}, [][]float64{
		{54, 1},
		{60, 2},
		{48, 4},
	})
	require.NoError(t, err)

	p := testPipeline(t)
	out, err := p.FitEncode(f, []string{"chest_pain_type"})
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "chest_pain_type_1", "chest_pain_type_2", "chest_pain_type_4"}, out.Columns())
	assert.Equal(t, []float64{54, 1, 0, 0}, out.Row(0))
	assert.Equal(t, []float64{60, 0, 1, 0}, out.Row(1))
	assert.Equal(t, []float64{48, 0, 0, 1}, out.Row(2))
}

func TestEncodeUnseenCategoryIsAllZero(t *testing.T) {
	train, err := FromRows([]string{"chest_pain_type"}, [][]float64{{1}, {2}})
	require.NoError(t, err)
	p := testPipeline(t)
	_, err = p.FitEncode(train, []string{"chest_pain_type"})
	require.NoError(t, err)

	unseen, err := FromRows([]string{"chest_pain_type"}, [][]float64{{3}})
	require.NoError(t, err)
	out, err := p.Encode(unseen)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, out.Row(0))
}

func TestFitEncodeTwiceIsStateError(t *testing.T) {
	f, err := FromRows([]string{"c"}, [][]float64{{1}})
	require.NoError(t, err)
	p := testPipeline(t)
	_, err = p.FitEncode(f, []string{"c"})
	require.NoError(t, err)

	_, err = p.FitEncode(f, []string{"c"})
	var stateErr *TransformStateError
	require.ErrorAs(t, err, &stateErr)

	p.Reset()
	_, err = p.FitEncode(f, []string{"c"})
	assert.NoError(t, err)
}

func TestStandardScaleFitsOnTrainOnly(t *testing.T) {
	train, err := FromRows([]string{"x"}, [][]float64{{1}, {2}, {3}, {4}})
	require.NoError(t, err)
	test, err := FromRows([]string{"x"}, [][]float64{{10}})
	require.NoError(t, err)

	p := testPipeline(t)
	require.NoError(t, p.FitScale(ScaleStandard, nil, train, test))

	x, _ := train.Col("x")
	assert.InDelta(t, 0, mean(x), 1e-12)
	assert.InDelta(t, 1, populationStd(x), 1e-12)

	// test frame scaled with training statistics (mean 2.5, std sqrt(1.25))
	tx, _ := test.Col("x")
	assert.InDelta(t, (10-2.5)/math.Sqrt(1.25), tx[0], 1e-12)
}

func TestMinMaxScale(t *testing.T) {
	train, err := FromRows([]string{"x"}, [][]float64{{10}, {20}, {30}})
	require.NoError(t, err)
	p := testPipeline(t)
	require.NoError(t, p.FitScale(ScaleMinMax, nil, train))
	x, _ := train.Col("x")
	assert.Equal(t, []float64{0, 0.5, 1}, x)
}

func TestScaleRefitOverwrites(t *testing.T) {
	p := testPipeline(t)
	a, err := FromRows([]string{"x"}, [][]float64{{0}, {10}})
	require.NoError(t, err)
	require.NoError(t, p.FitScale(ScaleMinMax, nil, a))

	b, err := FromRows([]string{"x"}, [][]float64{{0}, {100}})
	require.NoError(t, err)
	require.NoError(t, p.FitScale(ScaleMinMax, nil, b))
	assert.Equal(t, 100.0, p.Transform().Max["x"])
}

func TestBalanceEqualizesClassCounts(t *testing.T) {
	features := [][]float64{
		{0, 0}, {0.1, 0}, {0.2, 0.1}, {0.3, 0}, {0.4, 0.1}, {0.5, 0},
		{5, 5}, {5.2, 5.1},
	}
	labels := []int{0, 0, 0, 0, 0, 0, 1, 1}

	p := testPipeline(t)
	outX, outY, err := p.Balance(features, labels)
	require.NoError(t, err)

	counts := map[int]int{}
	for _, y := range outY {
		counts[y]++
	}
	assert.Equal(t, 6, counts[0])
	assert.Equal(t, 6, counts[1])
	assert.Len(t, outX, 12)

	// synthetic minority rows lie on segments between minority samples
	for i := len(labels); i < len(outY); i++ {
		require.Equal(t, 1, outY[i])
		assert.GreaterOrEqual(t, outX[i][0], 5.0)
		assert.LessOrEqual(t, outX[i][0], 5.2)
	}
}

func TestBalanceIsDeterministic(t *testing.T) {
	features := [][]float64{{0, 0}, {1, 1}, {2, 2}, {10, 10}, {11, 11}}
	labels := []int{0, 0, 0, 1, 1}

	x1, y1, err := testPipeline(t).Balance(features, labels)
	require.NoError(t, err)
	x2, y2, err := testPipeline(t).Balance(features, labels)
	require.NoError(t, err)
	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
}

func TestRemoveOutliersIQR(t *testing.T) {
	f, err := FromRows([]string{"x"}, [][]float64{
		{1}, {2}, {2}, {3}, {3}, {3}, {4}, {4}, {100},
	})
	require.NoError(t, err)

	out, err := testPipeline(t).RemoveOutliers(f, []string{"x"}, OutlierIQR, 1.5)
	require.NoError(t, err)

	// Q1=2, Q3=4, IQR=2, bounds [-1, 7]: only the 100 goes
	assert.Equal(t, 8, out.NumRows())
	x, _ := out.Col("x")
	assert.NotContains(t, x, 100.0)
}

func TestRemoveOutliersZScore(t *testing.T) {
	f, err := FromRows([]string{"x"}, [][]float64{
		{10}, {11}, {9}, {10}, {10}, {1000},
	})
	require.NoError(t, err)
	out, err := testPipeline(t).RemoveOutliers(f, []string{"x"}, OutlierZScore, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())
}

func TestRemoveOutliersUnknownMethod(t *testing.T) {
	f, err := FromRows([]string{"x"}, [][]float64{{1}})
	require.NoError(t, err)
	_, err = testPipeline(t).RemoveOutliers(f, []string{"x"}, "mad", 2.0)
	var stateErr *TransformStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestSplitStratified(t *testing.T) {
	labels := make([]int, 100)
	for i := 60; i < 100; i++ {
		labels[i] = 1
	}
	train, val, test := Split(labels, SplitOptions{TrainFraction: 0.6, ValFraction: 0.2, Stratify: true, Seed: 42})

	assert.Len(t, train, 60)
	assert.Len(t, val, 20)
	assert.Len(t, test, 20)

	count := func(idx []int) int {
		n := 0
		for _, i := range idx {
			n += labels[i]
		}
		return n
	}
	assert.Equal(t, 24, count(train))
	assert.Equal(t, 8, count(val))
	assert.Equal(t, 8, count(test))
}

func TestApplyRowMatchesTrainingContract(t *testing.T) {
	train, err := FromRows([]string{"age", "chest_pain_type"}, [][]float64{
		{40, 1}, {50, 2}, {60, 1}, {70, 2},
	})
	require.NoError(t, err)

	p := testPipeline(t)
	encoded, err := p.FitEncode(train, []string{"chest_pain_type"})
	require.NoError(t, err)
	require.NoError(t, p.FitScale(ScaleStandard, nil, encoded))

	row, err := p.Transform().ApplyRow(
		map[string]float64{"age": 55, "chest_pain_type": 2},
		[]string{"age", "chest_pain_type"},
	)
	require.NoError(t, err)
	require.Len(t, row, 3)
	assert.InDelta(t, 0, row[0], 1e-12) // age 55 is the training mean
}

func TestApplyRowMissingColumn(t *testing.T) {
	p := testPipeline(t)
	f, err := FromRows([]string{"age"}, [][]float64{{40}, {60}})
	require.NoError(t, err)
	_, err = p.FitEncode(f, nil)
	require.NoError(t, err)
	require.NoError(t, p.FitScale(ScaleStandard, nil, f))

	_, err = p.Transform().ApplyRow(map[string]float64{}, []string{"age"})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "age", schemaErr.Column)
}

func TestReadWriteCSV(t *testing.T) {
	in := "age,cholesterol\n54,239\n61,\n"
	f, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, f.NumRows())
	assert.True(t, math.IsNaN(f.Row(1)[1]))

	var sb strings.Builder
	require.NoError(t, f.WriteCSV(&sb))
	assert.Contains(t, sb.String(), "age,cholesterol")
	assert.Contains(t, sb.String(), "54,239")
}

func TestPrepareEndToEnd(t *testing.T) {
	cols := []string{"age", "chest_pain_type", "target"}
	var rows [][]float64
	for i := 0; i < 30; i++ {
		rows = append(rows, []float64{40 + float64(i), float64(1 + i%3), float64(i % 2)})
	}
	f, err := FromRows(cols, rows)
	require.NoError(t, err)

	p := testPipeline(t)
	prep, err := p.Prepare(f, PrepareOptions{
		Target:         "target",
		Categorical:    []string{"chest_pain_type"},
		ImputeStrategy: ImputeMean,
		ScaleMethod:    ScaleStandard,
		Balance:        true,
		TrainFraction:  0.6,
		ValFraction:    0.2,
		Seed:           42,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "chest_pain_type_1", "chest_pain_type_2", "chest_pain_type_3"}, prep.Columns)
	assert.Len(t, prep.TrainX, len(prep.TrainY))
	assert.Len(t, prep.ValX, 6)
	assert.Len(t, prep.TestX, 6)

	counts := map[int]int{}
	for _, y := range prep.TrainY {
		counts[y]++
	}
	assert.Equal(t, counts[0], counts[1])
	assert.NotNil(t, prep.Transform)
	assert.Equal(t, prep.Columns, prep.Transform.OutputColumns)

	assert.Equal(t, 30, prep.Info.Samples)
	assert.Equal(t, 3, prep.Info.Features)
	assert.Equal(t, 3, prep.Info.Cardinalities["chest_pain_type"])
	assert.Empty(t, prep.Info.Missing)
}

func TestFeatureInfo(t *testing.T) {
	f, err := FromRows([]string{"age", "chest_pain_type", "cholesterol"}, [][]float64{
		{54, 1, 230},
		{61, 2, math.NaN()},
		{47, 2, 199},
		{58, 3, math.NaN()},
	})
	require.NoError(t, err)

	p := testPipeline(t)
	info := p.FeatureInfo(f)
	assert.Equal(t, 4, info.Samples)
	assert.Equal(t, 3, info.Features)
	assert.Equal(t, []string{"age", "chest_pain_type", "cholesterol"}, info.Columns)
	assert.Equal(t, map[string]int{"cholesterol": 2}, info.Missing)
	assert.Empty(t, info.Cardinalities)

	_, err = p.FitEncode(f, []string{"chest_pain_type"})
	require.NoError(t, err)
	info = p.FeatureInfo(f)
	assert.Equal(t, 3, info.Cardinalities["chest_pain_type"])
}
