package ml

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/internal/ml/gbrt"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// valFraction is the trailing share of each fold's training rows held
// out as the early-stopping validation slice.
const valFraction = 0.2

// Trainer runs embargoed walk-forward training and writes the run's
// artifacts: a metrics document, a feature-importance table and the
// final fold's model.
// ⭐ SSOT: 워크포워드 학습 절차는 여기서만
type Trainer struct {
	logger   *logger.Logger
	cfg      config.ModelConfig
	feats    contracts.FeatureRepository
	runs     contracts.TrainingRunRepository
	splitter *Splitter
	metrics  *metrics.Recorder
}

// NewTrainer wires the trainer from configuration and stores.
func NewTrainer(
	log *logger.Logger,
	cfg config.ModelConfig,
	feats contracts.FeatureRepository,
	runs contracts.TrainingRunRepository,
	recorder *metrics.Recorder,
) *Trainer {
	return &Trainer{
		logger: log.WithComponent("trainer"),
		cfg:    cfg,
		feats:  feats,
		runs:   runs,
		splitter: NewSplitter(log, SplitConfig{
			NSplits:     cfg.NSplits,
			EmbargoDays: cfg.EmbargoDays,
			TestSize:    cfg.TestSize,
		}),
		metrics: recorder,
	}
}

// Train fits one model per walk-forward fold over the labeled rows in
// [from, to], evaluates each fold out of sample, persists the run
// record and returns it. The saved model is the final fold's, the one
// trained on the longest history.
func (t *Trainer) Train(ctx context.Context, from, to time.Time) (*contracts.TrainingRun, error) {
	horizon := contracts.HorizonLabel(t.cfg.HorizonDays)
	rows, err := t.feats.GetLabeled(ctx, t.cfg.HorizonDays, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("load labeled rows: %w", err)
	}
	ds := BuildDataset(rows)
	if ds.Len() == 0 {
		return nil, contracts.NewValidationError("training_data", "no labeled rows with enough features in range")
	}
	t.logger.WithFields(map[string]interface{}{
		"horizon":  horizon,
		"rows":     ds.Len(),
		"features": len(ds.Columns),
	}).Info("Building walk-forward folds")

	folds, err := t.splitter.Split(ds.Dates)
	if err != nil {
		return nil, err
	}

	params := gbrt.DefaultParams()
	params.Seed = t.cfg.Seed

	var (
		foldMetrics []contracts.FoldMetrics
		last        *gbrt.Booster
		gainSums    = map[string]float64{}
		gainFolds   = map[string]int{}
	)
	for _, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		train := ds.Subset(fold.Train)
		test := ds.Subset(fold.Test)

		fitX, fitY, valX, valY := fitSplit(train)
		booster, err := gbrt.Fit(params, ds.Columns, fitX, fitY, valX, valY)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fold.Fold, err)
		}
		preds := booster.PredictBatch(test.X)
		fm := evalFold(fold.Fold, train.Len(), test.Len(), booster.BestIteration, test.Y, preds)
		foldMetrics = append(foldMetrics, fm)

		for _, imp := range booster.FeatureImportance() {
			gainSums[imp.Feature] += imp.Gain
			gainFolds[imp.Feature]++
		}
		last = booster

		t.logger.WithFields(map[string]interface{}{
			"fold":           fm.Fold,
			"n_train":        fm.NTrain,
			"n_test":         fm.NTest,
			"best_iteration": fm.BestIteration,
			"rmse":           fm.RMSE,
			"direction_acc":  fm.DirectionAccuracy,
		}).Info("Fold evaluated")
	}

	run := &contracts.TrainingRun{
		ID:          uuid.New().String(),
		Horizon:     horizon,
		CreatedAt:   time.Now().UTC(),
		Params:      params.Map(),
		Folds:       foldMetrics,
		Aggregates:  aggregate(foldMetrics),
		Importances: meanImportances(gainSums, gainFolds),
	}
	if err := t.writeArtifacts(run, last, from, to); err != nil {
		return nil, err
	}
	if err := t.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save training run: %w", err)
	}
	t.metrics.RecordTrainingRMSE(horizon, run.Aggregates["rmse_mean"])

	t.logger.WithFields(map[string]interface{}{
		"run_id":    run.ID,
		"folds":     len(foldMetrics),
		"rmse_mean": run.Aggregates["rmse_mean"],
		"model":     run.ModelPath,
	}).Info("Training run complete")
	return run, nil
}

// fitSplit carves a fold's time-ordered training block into fit and
// validation slices, validation being the trailing rows. Blocks too
// small to spare any rows train without early stopping.
func fitSplit(train *Dataset) (fitX [][]float64, fitY []float64, valX [][]float64, valY []float64) {
	nVal := int(float64(train.Len()) * valFraction)
	cut := train.Len() - nVal
	fitX, fitY = train.X[:cut], train.Y[:cut]
	if nVal > 0 {
		valX, valY = train.X[cut:], train.Y[cut:]
	}
	return fitX, fitY, valX, valY
}

func evalFold(fold, nTrain, nTest, bestIter int, y, yhat []float64) contracts.FoldMetrics {
	return contracts.FoldMetrics{
		Fold:              fold,
		NTrain:            nTrain,
		NTest:             nTest,
		BestIteration:     bestIter,
		RMSE:              evalRMSE(y, yhat),
		MAE:               evalMAE(y, yhat),
		R2:                evalR2(y, yhat),
		DirectionAccuracy: evalDirectionAccuracy(y, yhat),
	}
}

// aggregate reduces fold metrics to mean and population standard
// deviation per metric, plus fold and test-row counts.
func aggregate(folds []contracts.FoldMetrics) map[string]float64 {
	pick := map[string]func(contracts.FoldMetrics) float64{
		"rmse":               func(m contracts.FoldMetrics) float64 { return m.RMSE },
		"mae":                func(m contracts.FoldMetrics) float64 { return m.MAE },
		"r2":                 func(m contracts.FoldMetrics) float64 { return m.R2 },
		"direction_accuracy": func(m contracts.FoldMetrics) float64 { return m.DirectionAccuracy },
	}
	out := make(map[string]float64, 2*len(pick)+2)
	for name, get := range pick {
		vals := make([]float64, len(folds))
		for i, m := range folds {
			vals[i] = get(m)
		}
		mu, sigma := meanStd(vals)
		out[name+"_mean"] = mu
		out[name+"_std"] = sigma
	}
	nTest := 0
	for _, m := range folds {
		nTest += m.NTest
	}
	out["n_folds"] = float64(len(folds))
	out["n_test_total"] = float64(nTest)
	return out
}

// meanImportances averages each feature's gain over the folds where it
// hosted splits, descending.
func meanImportances(sums map[string]float64, folds map[string]int) []contracts.FeatureImportance {
	out := make([]contracts.FeatureImportance, 0, len(sums))
	for f, s := range sums {
		out = append(out, contracts.FeatureImportance{Feature: f, Gain: s / float64(folds[f])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gain != out[j].Gain {
			return out[i].Gain > out[j].Gain
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// metricsDocument is the JSON layout of the metrics artifact.
type metricsDocument struct {
	RunID     string                  `json:"run_id"`
	Horizon   string                  `json:"horizon"`
	CreatedAt time.Time               `json:"created_at"`
	Overall   map[string]float64      `json:"overall_metrics"`
	Folds     []contracts.FoldMetrics `json:"fold_metrics"`
	Config    map[string]interface{}  `json:"config"`
}

func (t *Trainer) writeArtifacts(run *contracts.TrainingRun, model *gbrt.Booster, from, to time.Time) error {
	dir := filepath.Join(t.cfg.ArtifactDir, run.Horizon, run.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	run.ModelPath = filepath.Join(dir, "model.json")
	run.MetricsPath = filepath.Join(dir, "metrics.json")

	if err := model.Save(run.ModelPath); err != nil {
		return err
	}

	doc := metricsDocument{
		RunID:     run.ID,
		Horizon:   run.Horizon,
		CreatedAt: run.CreatedAt,
		Overall:   run.Aggregates,
		Folds:     run.Folds,
		Config:    t.runConfig(run, from, to),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := os.WriteFile(run.MetricsPath, data, 0644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return writeImportanceCSV(filepath.Join(dir, "feature_importances.csv"), run.Importances)
}

func (t *Trainer) runConfig(run *contracts.TrainingRun, from, to time.Time) map[string]interface{} {
	cfg := make(map[string]interface{}, len(run.Params)+6)
	for k, v := range run.Params {
		cfg[k] = v
	}
	cfg["horizon_days"] = t.cfg.HorizonDays
	cfg["n_splits"] = t.cfg.NSplits
	cfg["embargo_days"] = t.cfg.EmbargoDays
	cfg["test_size"] = t.cfg.TestSize
	cfg["from"] = from.Format("2006-01-02")
	cfg["to"] = to.Format("2006-01-02")
	return cfg
}

func writeImportanceCSV(path string, imps []contracts.FeatureImportance) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"feature", "importance"}); err != nil {
		return err
	}
	for _, imp := range imps {
		if err := w.Write([]string{imp.Feature, strconv.FormatFloat(imp.Gain, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write importance table: %w", err)
	}
	return nil
}

func evalRMSE(y, yhat []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var ss float64
	for i := range y {
		d := yhat[i] - y[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(y)))
}

func evalMAE(y, yhat []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var s float64
	for i := range y {
		s += math.Abs(yhat[i] - y[i])
	}
	return s / float64(len(y))
}

func evalR2(y, yhat []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var m float64
	for _, v := range y {
		m += v
	}
	m /= float64(len(y))
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - yhat[i]) * (y[i] - yhat[i])
		ssTot += (y[i] - m) * (y[i] - m)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// evalDirectionAccuracy is the share of rows whose predicted sign
// matches the realized sign; exact zeros match only zeros.
func evalDirectionAccuracy(y, yhat []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	hits := 0
	for i := range y {
		if sign(y[i]) == sign(yhat[i]) {
			hits++
		}
	}
	return float64(hits) / float64(len(y))
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func meanStd(vs []float64) (float64, float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	var m float64
	for _, v := range vs {
		m += v
	}
	m /= float64(len(vs))
	var ss float64
	for _, v := range vs {
		d := v - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(len(vs)))
}
