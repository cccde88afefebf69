package learners

import (
	"automl/internal/estimator"
)

// DefaultEntries lists the built-in algorithms in roster order.
func DefaultEntries() []estimator.Entry {
	return []estimator.Entry{
		{
			Name:       RidgeName,
			Capability: estimator.Regressor,
			Space:      estimator.Space{{Name: "alpha", Min: 0.01, Max: 10, Log: true, Steps: 4}},
			New:        func() estimator.Estimator { return NewRidge() },
		},
		{
			Name:       KNNRegressorName,
			Capability: estimator.Regressor,
			Space: estimator.Space{
				{Name: "n_neighbors", Choices: []any{3, 5, 7}},
				{Name: "weights", Choices: []any{weightsUniform, weightsDistance}},
			},
			New: func() estimator.Estimator { return NewKNNRegressor() },
		},
		{
			Name:       DecisionTreeRegressorName,
			Capability: estimator.Regressor,
			Space: estimator.Space{
				{Name: "max_depth", Min: 2, Max: 8, Integer: true, Steps: 4},
				{Name: "min_samples_split", Choices: []any{2, 5}},
			},
			New: func() estimator.Estimator { return NewDecisionTreeRegressor() },
		},
		{
			Name:       LogisticRegressionName,
			Capability: estimator.Classifier,
			Space:      estimator.Space{{Name: "c", Min: 0.1, Max: 10, Log: true, Steps: 3}},
			New:        func() estimator.Estimator { return NewLogisticRegression() },
		},
		{
			Name:       KNNClassifierName,
			Capability: estimator.Classifier,
			Space: estimator.Space{
				{Name: "n_neighbors", Choices: []any{3, 5, 7}},
				{Name: "weights", Choices: []any{weightsUniform, weightsDistance}},
			},
			New: func() estimator.Estimator { return NewKNNClassifier() },
		},
		{
			Name:       DecisionTreeClassifierName,
			Capability: estimator.Classifier,
			Space: estimator.Space{
				{Name: "max_depth", Min: 2, Max: 8, Integer: true, Steps: 4},
				{Name: "min_samples_split", Choices: []any{2, 5}},
			},
			New: func() estimator.Estimator { return NewDecisionTreeClassifier() },
		},
		{
			Name:       VotingRegressorName,
			Capability: estimator.Ensemble,
			Composes:   estimator.Regressor,
			New:        func() estimator.Estimator { return NewVotingRegressor() },
		},
		{
			Name:       StackingRegressorName,
			Capability: estimator.Ensemble,
			Composes:   estimator.Regressor,
			Space:      estimator.Space{{Name: "final_alpha", Min: 0.01, Max: 10, Log: true, Steps: 4}},
			New:        func() estimator.Estimator { return NewStackingRegressor() },
		},
		{
			Name:       VotingClassifierName,
			Capability: estimator.Ensemble,
			Composes:   estimator.Classifier,
			New:        func() estimator.Estimator { return NewVotingClassifier() },
		},
	}
}

// DefaultRegistry returns a registry holding DefaultEntries.
func DefaultRegistry() *estimator.Registry {
	r, err := estimator.NewRegistry(DefaultEntries()...)
	if err != nil {
		panic(err)
	}
	return r
}
