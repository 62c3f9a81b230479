package ml

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// Labeler computes realized forward returns and writes them onto feature
// rows that already exist. It never creates rows: a label without a
// matching feature row is dropped and counted.
// ⭐ SSOT: 레이블(미래 수익률) 계산은 여기서만
type Labeler struct {
	logger *logger.Logger
	prices contracts.PriceRepository
	feats  contracts.FeatureRepository
}

// NewLabeler creates a labeler over the price and feature stores.
func NewLabeler(log *logger.Logger, prices contracts.PriceRepository, feats contracts.FeatureRepository) *Labeler {
	return &Labeler{
		logger: log.WithComponent("labeling"),
		prices: prices,
		feats:  feats,
	}
}

// ComputeForwardReturns derives label[t] = close[t+h]/close[t] - 1 within a
// single instrument's date-sorted bars. The trailing h rows have no forward
// close and produce no label. Uses the raw close, not the adjusted close,
// matching the return an order at t would have realized. Bars with a
// non-positive close are skipped.
func (l *Labeler) ComputeForwardReturns(bars []*contracts.PriceBar, horizon int) ([]contracts.LabelValue, error) {
	if horizon < 1 {
		return nil, contracts.NewValidationError("horizon", "must be >= 1")
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Ticker != bars[i-1].Ticker {
			return nil, contracts.NewValidationError("bars", "bars must belong to one instrument")
		}
		if !bars[i].Date.After(bars[i-1].Date) {
			return nil, contracts.NewValidationError("bars",
				fmt.Sprintf("bars not strictly ascending at index %d", i))
		}
	}

	var labels []contracts.LabelValue
	for i := 0; i+horizon < len(bars); i++ {
		base := bars[i].Close
		if base <= 0 {
			l.logger.WithFields(map[string]interface{}{
				"ticker": bars[i].Ticker,
				"date":   bars[i].Date.Format("2006-01-02"),
			}).Warn("Skipping label with non-positive close")
			continue
		}
		labels = append(labels, contracts.LabelValue{
			Ticker: bars[i].Ticker,
			Date:   contracts.Day(bars[i].Date),
			Value:  bars[i+horizon].Close/base - 1.0,
		})
	}
	return labels, nil
}

// Run labels every configured instrument over [from, to]. Returns how many
// feature rows took a label and how many labels had no row to attach to.
func (l *Labeler) Run(ctx context.Context, tickers []string, from, to time.Time, horizon int) (updated, skipped int, err error) {
	// Load past the range end so rows near `to` still get forward data.
	loadTo := to.AddDate(0, 0, horizon*7/5+7)

	var all []contracts.LabelValue
	for _, ticker := range tickers {
		bars, err := l.prices.GetByTicker(ctx, ticker, from, loadTo)
		if err != nil {
			return 0, 0, fmt.Errorf("load prices for %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			continue
		}
		labels, err := l.ComputeForwardReturns(bars, horizon)
		if err != nil {
			return 0, 0, fmt.Errorf("labels for %s: %w", ticker, err)
		}
		for _, lab := range labels {
			if lab.Date.Before(from) || lab.Date.After(to) {
				continue
			}
			all = append(all, lab)
		}
	}

	if len(all) == 0 {
		l.logger.Warn("No labels computed")
		return 0, 0, nil
	}

	updated, skipped, err = l.feats.UpdateLabels(ctx, all, horizon)
	if err != nil {
		return 0, 0, fmt.Errorf("update labels: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"horizon": horizon,
		"labels":  len(all),
		"updated": updated,
		"skipped": skipped,
	}).Info("Labeled feature rows")

	return updated, skipped, nil
}
