package contracts

import "time"

// FoldMetrics is the out-of-sample evaluation of one walk-forward fold.
type FoldMetrics struct {
	Fold              int     `json:"fold"`
	NTrain            int     `json:"n_train"`
	NTest             int     `json:"n_test"`
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	R2                float64 `json:"r2"`
	DirectionAccuracy float64 `json:"direction_accuracy"`
	BestIteration     int     `json:"best_iteration"`
}

// FeatureImportance is one row of the gain-importance table, aggregated
// across folds and sorted descending.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// TrainingRun records one walk-forward training execution and where its
// artifacts live.
type TrainingRun struct {
	ID          string                 `json:"id"`
	Horizon     string                 `json:"horizon"`
	CreatedAt   time.Time              `json:"created_at"`
	Params      map[string]interface{} `json:"params"`
	Folds       []FoldMetrics          `json:"folds"`
	Aggregates  map[string]float64     `json:"aggregates"`
	Importances []FeatureImportance    `json:"importances"`
	ModelPath   string                 `json:"model_path"`
	MetricsPath string                 `json:"metrics_path"`
}
