package estimator

// Built-in algorithm names.
const (
	LinearRegression       = "linear_regression"
	RandomForest           = "random_forest"
	GradientBoosting       = "gradient_boosting"
	XGBoost                = "xgboost"
	LightGBM               = "lightgbm"
	RandomForestClassifier = "random_forest_classifier"
)

// DefaultRegistry returns a registry with every built-in algorithm. The
// boosted variants share one implementation and differ in their defaults.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Algorithm{
		Name:     LinearRegression,
		Task:     TaskRegression,
		Defaults: Params{"fit_intercept": true},
		New:      NewLinear,
	})
	r.Register(Algorithm{
		Name: RandomForest,
		Task: TaskRegression,
		Defaults: Params{
			"n_estimators":      100,
			"max_depth":         0,
			"min_samples_split": 2,
			"min_samples_leaf":  1,
			"max_features":      1.0,
			"bootstrap":         true,
			"random_state":      42,
		},
		New: NewForestRegressor,
	})
	r.Register(Algorithm{
		Name: RandomForestClassifier,
		Task: TaskClassification,
		Defaults: Params{
			"n_estimators":      100,
			"max_depth":         0,
			"min_samples_split": 2,
			"min_samples_leaf":  1,
			"max_features":      "sqrt",
			"bootstrap":         true,
			"random_state":      42,
		},
		New: NewForestClassifier,
	})
	r.Register(Algorithm{
		Name: GradientBoosting,
		Task: TaskRegression,
		Defaults: Params{
			"n_estimators":     100,
			"learning_rate":    0.1,
			"max_depth":        3,
			"min_samples_leaf": 1,
			"subsample":        1.0,
			"random_state":     42,
		},
		New: NewBoosting,
	})
	r.Register(Algorithm{
		Name: XGBoost,
		Task: TaskRegression,
		Defaults: Params{
			"n_estimators":     100,
			"learning_rate":    0.3,
			"max_depth":        6,
			"min_samples_leaf": 1,
			"subsample":        1.0,
			"random_state":     42,
		},
		New: NewBoosting,
	})
	r.Register(Algorithm{
		Name: LightGBM,
		Task: TaskRegression,
		Defaults: Params{
			"n_estimators":     100,
			"learning_rate":    0.1,
			"max_depth":        0,
			"min_samples_leaf": 20,
			"subsample":        1.0,
			"random_state":     42,
		},
		New: NewBoosting,
	})
	return r
}
