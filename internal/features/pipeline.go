package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// Result summarizes one pipeline run.
type Result struct {
	Rows          int
	RowsByTicker  map[string]int
	FailedTickers []string
	Columns       int
	Elapsed       time.Duration
}

// Pipeline runs the end-of-day feature build: technicals, fundamentals,
// sentiment, cleaning and composite scores, then persists the rows.
// ⭐ SSOT: 피처 파이프라인 단계 구성과 순서는 여기서만
type Pipeline struct {
	logger    *logger.Logger
	cfg       config.PipelineConfig
	prices    contracts.PriceRepository
	news      contracts.NewsRepository
	funds     contracts.FundamentalRepository
	feats     contracts.FeatureRepository
	tech      *TechnicalCalculator
	fund      *FundamentalJoiner
	sent      *SentimentAggregator
	cleaner   *FeatureCleaner
	composite *CompositeScorer
	metrics   *metrics.Recorder
}

// NewPipeline wires the pipeline stages from configuration.
func NewPipeline(
	log *logger.Logger,
	cfg config.PipelineConfig,
	prices contracts.PriceRepository,
	news contracts.NewsRepository,
	funds contracts.FundamentalRepository,
	feats contracts.FeatureRepository,
	recorder *metrics.Recorder,
) *Pipeline {
	plog := log.WithComponent("pipeline")
	return &Pipeline{
		logger:    plog,
		cfg:       cfg,
		prices:    prices,
		news:      news,
		funds:     funds,
		feats:     feats,
		tech:      NewTechnicalCalculator(log),
		fund:      NewFundamentalJoiner(log, cfg.FundStalenessDays),
		sent:      NewSentimentAggregator(log),
		cleaner:   NewFeatureCleaner(log, cfg.MissingDropThreshold),
		composite: NewCompositeScorer(log, ParseWeights(cfg.CompositeWeights, plog)),
		metrics:   recorder,
	}
}

// Run computes and upserts feature rows dated within [from, to]. Price
// history is loaded LookbackDays earlier so long-window indicators have
// warmup data; those warmup rows never leave the pipeline.
func (p *Pipeline) Run(ctx context.Context, from, to time.Time) (*Result, error) {
	started := time.Now()
	from = contracts.Day(from)
	to = contracts.Day(to)
	if to.Before(from) {
		return nil, contracts.NewValidationError("range", "to date before from date")
	}

	tickers := append([]string(nil), p.cfg.Tickers...)
	if len(tickers) == 0 {
		p.logger.Warn("No tickers configured, nothing to compute")
		return &Result{RowsByTicker: map[string]int{}}, nil
	}
	sort.Strings(tickers)

	loadFrom := from.AddDate(0, 0, -p.cfg.LookbackDays)
	p.logger.WithFields(map[string]interface{}{
		"tickers":   len(tickers),
		"from":      from.Format("2006-01-02"),
		"to":        to.Format("2006-01-02"),
		"load_from": loadFrom.Format("2006-01-02"),
	}).Info("Starting feature pipeline")

	frame, barsByTicker, err := p.loadSpine(ctx, tickers, loadFrom, to)
	if err != nil {
		p.metrics.RecordPipelineRun("error")
		return nil, err
	}
	if frame.Len() == 0 {
		p.logger.Warn("No price data available")
		p.metrics.RecordPipelineRun("empty")
		return &Result{RowsByTicker: map[string]int{}}, nil
	}

	failed := p.computeTechnicals(ctx, frame, barsByTicker)
	if err := ctx.Err(); err != nil {
		p.metrics.RecordPipelineRun("error")
		return nil, err
	}

	if err := p.joinFundamentals(ctx, frame, tickers); err != nil {
		p.metrics.RecordPipelineRun("error")
		return nil, err
	}

	if err := p.joinSentiment(ctx, frame, tickers, loadFrom, to); err != nil {
		p.metrics.RecordPipelineRun("error")
		return nil, err
	}

	p.timeStage("clean", func() { p.cleaner.Clean(frame) })
	p.timeStage("composite", func() { p.composite.Score(frame) })

	rows := p.extractRows(frame, from, to)
	count, err := p.feats.UpsertRows(ctx, rows)
	if err != nil {
		p.metrics.RecordPipelineRun("error")
		return nil, fmt.Errorf("upsert features: %w", err)
	}

	result := &Result{
		Rows:          count,
		RowsByTicker:  make(map[string]int, len(tickers)),
		FailedTickers: failed,
		Columns:       len(frame.Columns()),
		Elapsed:       time.Since(started),
	}
	for _, row := range rows {
		result.RowsByTicker[row.Ticker]++
	}
	for ticker, n := range result.RowsByTicker {
		p.metrics.RecordFeatureRows(ticker, n)
	}
	p.metrics.RecordPipelineRun("success")

	p.logger.WithFields(map[string]interface{}{
		"rows":     result.Rows,
		"columns":  result.Columns,
		"failed":   len(result.FailedTickers),
		"duration": result.Elapsed.String(),
	}).Info("Feature pipeline completed")

	return result, nil
}

// loadSpine reads price history and builds the (ticker, date) row universe.
func (p *Pipeline) loadSpine(ctx context.Context, tickers []string, from, to time.Time) (*Frame, map[string][]*contracts.PriceBar, error) {
	start := time.Now()
	barsByTicker := make(map[string][]*contracts.PriceBar, len(tickers))
	var keys []RowKey
	for _, ticker := range tickers {
		bars, err := p.prices.GetByTicker(ctx, ticker, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("load prices for %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			continue
		}
		barsByTicker[ticker] = bars
		for _, b := range bars {
			keys = append(keys, RowKey{Ticker: ticker, Date: contracts.Day(b.Date)})
		}
	}
	p.metrics.RecordStageDuration("load", time.Since(start).Seconds())
	p.logger.WithFields(map[string]interface{}{
		"rows":    len(keys),
		"tickers": len(barsByTicker),
	}).Info("Loaded price spine")
	return NewFrame(keys), barsByTicker, nil
}

type techJob struct {
	ticker string
	start  int
	bars   []*contracts.PriceBar
}

type techResult struct {
	ticker string
	start  int
	n      int
	cols   map[string][]float64
	err    error
}

// computeTechnicals fills the indicator columns with a bounded worker pool.
// A failing instrument keeps all-missing indicators and is reported, never
// fatal to the run.
func (p *Pipeline) computeTechnicals(ctx context.Context, f *Frame, barsByTicker map[string][]*contracts.PriceBar) []string {
	start := time.Now()

	cols := make(map[string][]float64, len(TechnicalColumns))
	for _, name := range TechnicalColumns {
		cols[name] = nanColumn(f.Len())
	}

	segs := f.tickerSegments()
	jobCh := make(chan techJob, len(segs))
	resultCh := make(chan techResult, len(segs))

	workers := p.cfg.Workers
	if workers > len(segs) {
		workers = len(segs)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				select {
				case <-ctx.Done():
					resultCh <- techResult{ticker: job.ticker, err: ctx.Err()}
					continue
				default:
				}
				computed, err := p.tech.Compute(job.ticker, job.bars)
				resultCh <- techResult{
					ticker: job.ticker,
					start:  job.start,
					n:      len(job.bars),
					cols:   computed,
					err:    err,
				}
			}
		}()
	}

	for _, seg := range segs {
		jobCh <- techJob{ticker: seg.ticker, start: seg.start, bars: barsByTicker[seg.ticker]}
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var failed []string
	for res := range resultCh {
		if res.err != nil {
			p.logger.WithError(res.err).WithField("ticker", res.ticker).Warn("Indicator computation failed, leaving values missing")
			p.metrics.RecordInstrumentFailure("technicals")
			failed = append(failed, res.ticker)
			continue
		}
		for name, vals := range res.cols {
			copy(cols[name][res.start:res.start+res.n], vals)
		}
	}
	sort.Strings(failed)

	for _, name := range TechnicalColumns {
		f.AddColumn(name, cols[name])
	}
	p.metrics.RecordStageDuration("technicals", time.Since(start).Seconds())
	return failed
}

func (p *Pipeline) joinFundamentals(ctx context.Context, f *Frame, tickers []string) error {
	start := time.Now()
	snapshots := make(map[string][]*contracts.FundamentalSnapshot, len(tickers))
	for _, ticker := range tickers {
		snaps, err := p.funds.GetByTicker(ctx, ticker)
		if err != nil {
			return fmt.Errorf("load fundamentals for %s: %w", ticker, err)
		}
		if len(snaps) > 0 {
			snapshots[ticker] = snaps
		}
	}
	p.fund.Join(f, snapshots)

	sectors, err := p.loadSectors()
	if err != nil {
		return err
	}
	p.fund.AddRelativeValuation(f, sectors)
	p.metrics.RecordStageDuration("fundamentals", time.Since(start).Seconds())
	return ctx.Err()
}

// loadSectors treats a missing file like no mapping, but a malformed one
// as a configuration error.
func (p *Pipeline) loadSectors() (map[string]string, error) {
	sectors, err := LoadSectorMap(p.cfg.SectorMapFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.WithField("path", p.cfg.SectorMapFile).Warn("Sector map file not found, falling back to z-scores")
			return nil, nil
		}
		return nil, err
	}
	return sectors, nil
}

func (p *Pipeline) joinSentiment(ctx context.Context, f *Frame, tickers []string, from, to time.Time) error {
	start := time.Now()
	var items []*contracts.NewsItem
	for _, ticker := range tickers {
		got, err := p.news.GetByTicker(ctx, ticker, from, to)
		if err != nil {
			return fmt.Errorf("load news for %s: %w", ticker, err)
		}
		items = append(items, got...)
	}
	p.sent.Apply(f, items)
	p.metrics.RecordStageDuration("sentiment", time.Since(start).Seconds())
	return ctx.Err()
}

func (p *Pipeline) timeStage(name string, fn func()) {
	start := time.Now()
	fn()
	p.metrics.RecordStageDuration(name, time.Since(start).Seconds())
}

// extractRows converts frame rows inside [from, to] into feature rows for
// persistence. Warmup rows loaded only for indicator history fall outside
// the range and are skipped.
func (p *Pipeline) extractRows(f *Frame, from, to time.Time) []*contracts.FeatureRow {
	cols := f.Columns()
	rows := make([]*contracts.FeatureRow, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		k := f.Key(i)
		if k.Date.Before(from) || k.Date.After(to) {
			continue
		}
		feats := make(map[string]float64, len(cols))
		for _, c := range cols {
			feats[c] = f.Column(c)[i]
		}
		rows = append(rows, &contracts.FeatureRow{
			Ticker:   k.Ticker,
			Date:     k.Date,
			Features: feats,
		})
	}
	return rows
}
