// Package gbrt implements a small deterministic gradient-boosted
// regression tree ensemble: squared-error objective, leaf-wise tree
// growth under a leaf budget, row/column subsampling from a seeded
// source, and early stopping against a validation slice.
package gbrt

import (
	"fmt"

	"github.com/creasty/defaults"
)

// Params are the boosting hyperparameters. Zero values are filled by
// DefaultParams; Fit rejects out-of-range settings instead of clamping.
type Params struct {
	NEstimators         int     `json:"n_estimators" default:"100"`
	LearningRate        float64 `json:"learning_rate" default:"0.05"`
	NumLeaves           int     `json:"num_leaves" default:"31"`
	MaxDepth            int     `json:"max_depth" default:"6"`
	MinChildSamples     int     `json:"min_child_samples" default:"20"`
	Subsample           float64 `json:"subsample" default:"0.8"`
	ColsampleByTree     float64 `json:"colsample_bytree" default:"0.8"`
	LambdaL1            float64 `json:"lambda_l1" default:"0.1"`
	LambdaL2            float64 `json:"lambda_l2" default:"0.1"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds" default:"10"`
	Seed                int64   `json:"seed" default:"42"`
}

// DefaultParams returns the standard configuration for daily-return
// regression.
func DefaultParams() Params {
	var p Params
	if err := defaults.Set(&p); err != nil {
		panic(err)
	}
	return p
}

func (p Params) validate() error {
	if p.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be >= 1, got %d", p.NEstimators)
	}
	if p.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0, got %v", p.LearningRate)
	}
	if p.NumLeaves < 2 {
		return fmt.Errorf("num_leaves must be >= 2, got %d", p.NumLeaves)
	}
	if p.MinChildSamples < 1 {
		return fmt.Errorf("min_child_samples must be >= 1, got %d", p.MinChildSamples)
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %v", p.Subsample)
	}
	if p.ColsampleByTree <= 0 || p.ColsampleByTree > 1 {
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %v", p.ColsampleByTree)
	}
	if p.LambdaL1 < 0 || p.LambdaL2 < 0 {
		return fmt.Errorf("lambda_l1 and lambda_l2 must be >= 0")
	}
	return nil
}

// Map renders the params as a flat document for run records.
func (p Params) Map() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":          p.NEstimators,
		"learning_rate":         p.LearningRate,
		"num_leaves":            p.NumLeaves,
		"max_depth":             p.MaxDepth,
		"min_child_samples":     p.MinChildSamples,
		"subsample":             p.Subsample,
		"colsample_bytree":      p.ColsampleByTree,
		"lambda_l1":             p.LambdaL1,
		"lambda_l2":             p.LambdaL2,
		"early_stopping_rounds": p.EarlyStoppingRounds,
		"seed":                  p.Seed,
	}
}
