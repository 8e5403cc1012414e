package training

// Suite is a named list of training jobs to run against one prepared dataset.
type Suite struct {
	Name string
	Jobs []SuiteJob
}

// SuiteJob trains one named model, optionally grid-searching first.
type SuiteJob struct {
	ModelName string
	Algorithm string
	Params    Params
	Grid      Grid
	CVFolds   int
}

// BaselineSuite trains every supported algorithm with default parameters.
func BaselineSuite() Suite {
	jobs := make([]SuiteJob, 0, len(registry))
	for _, algo := range Algorithms() {
		jobs = append(jobs, SuiteJob{
			ModelName: algo,
			Algorithm: algo,
			CVFolds:   5,
		})
	}
	return Suite{Name: "baseline", Jobs: jobs}
}

// TunedSuite grid-searches the ensemble algorithms that benefit most from
// hyperparameter tuning.
func TunedSuite() Suite {
	return Suite{
		Name: "tuned",
		Jobs: []SuiteJob{
			{
				ModelName: "random_forest_tuned",
				Algorithm: AlgoRandomForest,
				CVFolds:   5,
				Grid: Grid{
					"n_estimators": {50, 100, 200},
					"max_depth":    {5, 10, 15},
				},
			},
			{
				ModelName: "gradient_boosting_tuned",
				Algorithm: AlgoGradientBoosting,
				CVFolds:   5,
				Grid: Grid{
					"n_estimators":  {50, 100},
					"learning_rate": {0.05, 0.1, 0.2},
					"max_depth":     {2, 3, 4},
				},
			},
			{
				ModelName: "svm_tuned",
				Algorithm: AlgoSVM,
				CVFolds:   5,
				Grid: Grid{
					"c":      {0.5, 1.0, 2.0},
					"kernel": {"rbf", "linear"},
				},
			},
		},
	}
}

// SuiteByName resolves a suite name.
func SuiteByName(name string) (Suite, bool) {
	switch name {
	case "baseline":
		return BaselineSuite(), true
	case "tuned":
		return TunedSuite(), true
	default:
		return Suite{}, false
	}
}
