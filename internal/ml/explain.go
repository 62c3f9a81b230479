package ml

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/internal/ml/gbrt"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
)

// defaultTopContributions bounds the explanation payload.
const defaultTopContributions = 10

// Contribution is one feature's share of a prediction's distance from
// the model's base value.
type Contribution struct {
	Feature      string  `json:"feature"`
	FeatureValue float64 `json:"feature_value"`
	Contribution float64 `json:"contribution"`
}

// Explanation decomposes one prediction along the decision paths of the
// model's trees. BaseValue plus every per-feature contribution
// reconstructs Yhat.
type Explanation struct {
	Ticker    string         `json:"ticker"`
	Date      time.Time      `json:"date"`
	Horizon   string         `json:"horizon"`
	Yhat      float64        `json:"yhat"`
	BaseValue float64        `json:"base_value"`
	Top       []Contribution `json:"top_contributions"`
}

// Explainer attributes stored predictions back to feature movements.
type Explainer struct {
	logger *logger.Logger
	cfg    config.ModelConfig
	feats  contracts.FeatureRepository
	runs   contracts.TrainingRunRepository
}

// NewExplainer wires the explainer from configuration and stores.
func NewExplainer(
	log *logger.Logger,
	cfg config.ModelConfig,
	feats contracts.FeatureRepository,
	runs contracts.TrainingRunRepository,
) *Explainer {
	return &Explainer{
		logger: log.WithComponent("explain"),
		cfg:    cfg,
		feats:  feats,
		runs:   runs,
	}
}

// Explain scores one (ticker, date) feature row and attributes the
// prediction's movement away from the base value to the features its
// decision paths split on. Every step from a node to a child shifts
// the expected value; that shift is credited to the node's split
// feature, shrunk by the learning rate like the prediction itself.
// topK <= 0 falls back to the default payload size.
func (e *Explainer) Explain(ctx context.Context, modelPath, ticker string, date time.Time, topK int) (*Explanation, error) {
	horizon := contracts.HorizonLabel(e.cfg.HorizonDays)
	booster, _, err := resolveModel(ctx, e.runs, horizon, modelPath)
	if err != nil {
		return nil, err
	}

	date = contracts.Day(date)
	row, err := e.feats.GetByTickerDate(ctx, ticker, date)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, contracts.NewValidationError("feature_row",
			"no feature row for "+ticker+" on "+date.Format("2006-01-02"))
	}

	x := Vectorize(row, booster.FeatureNames)
	base, contribs := pathContributions(booster, x)

	if topK <= 0 {
		topK = defaultTopContributions
	}
	top := make([]Contribution, 0, len(contribs))
	for f, c := range contribs {
		top = append(top, Contribution{
			Feature:      booster.FeatureNames[f],
			FeatureValue: x[f],
			Contribution: c,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		ai, aj := math.Abs(top[i].Contribution), math.Abs(top[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return top[i].Feature < top[j].Feature
	})
	if len(top) > topK {
		top = top[:topK]
	}

	return &Explanation{
		Ticker:    ticker,
		Date:      date,
		Horizon:   horizon,
		Yhat:      booster.Predict(x),
		BaseValue: base,
		Top:       top,
	}, nil
}

// pathContributions walks every scoring tree and accumulates, per split
// feature, the learning-rate-scaled change in expected value along the
// row's decision path. The returned base is the ensemble base score
// plus each tree's root expectation, so base plus all contributions
// telescopes exactly to the prediction.
func pathContributions(b *gbrt.Booster, x []float64) (float64, map[int]float64) {
	limit := b.BestIteration
	if limit > len(b.Trees) {
		limit = len(b.Trees)
	}
	base := b.BaseScore
	out := make(map[int]float64)
	for _, t := range b.Trees[:limit] {
		base += b.Params.LearningRate * t.Nodes[0].Value
		i := 0
		for {
			nd := &t.Nodes[i]
			if nd.IsLeaf() {
				break
			}
			next := nd.Left
			if x[nd.Feature] > nd.Threshold {
				next = nd.Right
			}
			out[nd.Feature] += b.Params.LearningRate * (t.Nodes[next].Value - nd.Value)
			i = next
		}
	}
	return base, out
}
