package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// maxProblems caps how many row-level problems an ImportResult reports in
// detail; everything past the cap is still counted in Rejected.
const maxProblems = 20

// ImportResult summarizes one CSV import.
type ImportResult struct {
	Rows     int      `json:"rows"`
	Imported int      `json:"imported"`
	Rejected int      `json:"rejected"`
	Problems []string `json:"problems,omitempty"`
}

func (r *ImportResult) addProblem(row int, msg string) {
	r.Rejected++
	if len(r.Problems) < maxProblems {
		r.Problems = append(r.Problems, fmt.Sprintf("row %d: %s", row, msg))
	}
}

// CSVImporter loads price, news and fundamental CSV files and upserts them
// through the repositories. Malformed rows are rejected individually; the
// batch keeps going.
// ⭐ SSOT: CSV 임포트 경로는 여기서만
type CSVImporter struct {
	logger *logger.Logger
	prices contracts.PriceRepository
	news   contracts.NewsRepository
	funds  contracts.FundamentalRepository
}

// NewCSVImporter creates a CSV importer over the given repositories.
func NewCSVImporter(log *logger.Logger, prices contracts.PriceRepository, news contracts.NewsRepository, funds contracts.FundamentalRepository) *CSVImporter {
	return &CSVImporter{
		logger: log.WithComponent("csv_importer"),
		prices: prices,
		news:   news,
		funds:  funds,
	}
}

type priceRecord struct {
	Ticker string  `validate:"required"`
	Open   float64 `validate:"gte=0"`
	High   float64 `validate:"gte=0"`
	Low    float64 `validate:"gte=0"`
	Close  float64 `validate:"gt=0"`
	Volume float64 `validate:"gte=0"`
}

// ImportPrices reads a daily OHLCV CSV. Required columns: ticker, date (or
// dt), open, high, low, close, volume. adj_close is optional and falls back
// to close.
func (i *CSVImporter) ImportPrices(ctx context.Context, path string) (*ImportResult, error) {
	rows, header, closeFn, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	cols, err := requireColumns(header, map[string][]string{
		"ticker": {"ticker"},
		"date":   {"date", "dt"},
		"open":   {"open"},
		"high":   {"high"},
		"low":    {"low"},
		"close":  {"close"},
		"volume": {"volume"},
	})
	if err != nil {
		return nil, err
	}
	adjIdx := findColumn(header, "adj_close", "adjclose")

	result := &ImportResult{}
	var bars []*contracts.PriceBar

	for rowNum := 2; ; rowNum++ {
		rec, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}
		result.Rows++

		date, err := parseDay(cell(rec, cols["date"]))
		if err != nil {
			result.addProblem(rowNum, err.Error())
			continue
		}

		pr := priceRecord{Ticker: strings.TrimSpace(cell(rec, cols["ticker"]))}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &pr.Open},
			{"high", &pr.High},
			{"low", &pr.Low},
			{"close", &pr.Close},
			{"volume", &pr.Volume},
		}
		bad := false
		for _, f := range fields {
			v, ok := parseNumber(cell(rec, cols[f.name]))
			if !ok {
				result.addProblem(rowNum, fmt.Sprintf("%s is not numeric: %q", f.name, cell(rec, cols[f.name])))
				bad = true
				break
			}
			*f.dst = v
		}
		if bad {
			continue
		}

		if err := validate.Struct(&pr); err != nil {
			result.addProblem(rowNum, describeValidation(err))
			continue
		}

		adjClose := pr.Close
		if adjIdx >= 0 {
			if v, ok := parseNumber(cell(rec, adjIdx)); ok && v > 0 {
				adjClose = v
			}
		}

		bars = append(bars, &contracts.PriceBar{
			Ticker:   pr.Ticker,
			Date:     date,
			Open:     pr.Open,
			High:     pr.High,
			Low:      pr.Low,
			Close:    pr.Close,
			AdjClose: adjClose,
			Volume:   pr.Volume,
		})
	}

	if len(bars) > 0 {
		n, err := i.prices.Upsert(ctx, bars)
		if err != nil {
			return result, fmt.Errorf("upsert prices: %w", err)
		}
		result.Imported = n
	}

	i.logImport("prices", path, result)
	return result, nil
}

type newsRecord struct {
	Ticker   string  `validate:"required"`
	URL      string  `validate:"required,url"`
	Title    string  `validate:"required"`
	SentPos  float64 `validate:"gte=0,lte=1"`
	SentNeg  float64 `validate:"gte=0,lte=1"`
	SentNeu  float64 `validate:"gte=0,lte=1"`
	SentComp float64 `validate:"gte=-1,lte=1"`
}

// ImportNews reads a scored-headline CSV. Required columns: ticker,
// published_at (or dt), url, title (or headline). source and the sentiment
// columns are optional; missing sentiment scores default to neutral zero.
func (i *CSVImporter) ImportNews(ctx context.Context, path string) (*ImportResult, error) {
	rows, header, closeFn, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	cols, err := requireColumns(header, map[string][]string{
		"ticker":       {"ticker"},
		"published_at": {"published_at", "dt"},
		"url":          {"url"},
		"title":        {"title", "headline"},
	})
	if err != nil {
		return nil, err
	}
	srcIdx := findColumn(header, "source")
	sentIdx := map[string]int{
		"sent_pos":  findColumn(header, "sent_pos"),
		"sent_neg":  findColumn(header, "sent_neg"),
		"sent_neu":  findColumn(header, "sent_neu"),
		"sent_comp": findColumn(header, "sent_comp"),
	}

	result := &ImportResult{}
	var items []*contracts.NewsItem

	for rowNum := 2; ; rowNum++ {
		rec, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}
		result.Rows++

		published, err := parseTimestamp(cell(rec, cols["published_at"]))
		if err != nil {
			result.addProblem(rowNum, err.Error())
			continue
		}

		nr := newsRecord{
			Ticker: strings.TrimSpace(cell(rec, cols["ticker"])),
			URL:    strings.TrimSpace(cell(rec, cols["url"])),
			Title:  strings.TrimSpace(cell(rec, cols["title"])),
		}
		sentVals := map[string]*float64{
			"sent_pos":  &nr.SentPos,
			"sent_neg":  &nr.SentNeg,
			"sent_neu":  &nr.SentNeu,
			"sent_comp": &nr.SentComp,
		}
		bad := false
		for name, idx := range sentIdx {
			if idx < 0 || strings.TrimSpace(cell(rec, idx)) == "" {
				continue
			}
			v, ok := parseNumber(cell(rec, idx))
			if !ok {
				result.addProblem(rowNum, fmt.Sprintf("%s is not numeric: %q", name, cell(rec, idx)))
				bad = true
				break
			}
			*sentVals[name] = v
		}
		if bad {
			continue
		}

		if err := validate.Struct(&nr); err != nil {
			result.addProblem(rowNum, describeValidation(err))
			continue
		}

		source := ""
		if srcIdx >= 0 {
			source = strings.TrimSpace(cell(rec, srcIdx))
		}

		items = append(items, &contracts.NewsItem{
			Ticker:      nr.Ticker,
			PublishedAt: published,
			URL:         nr.URL,
			Title:       nr.Title,
			Source:      source,
			SentPos:     nr.SentPos,
			SentNeg:     nr.SentNeg,
			SentNeu:     nr.SentNeu,
			SentComp:    nr.SentComp,
		})
	}

	if len(items) > 0 {
		n, err := i.news.Upsert(ctx, items)
		if err != nil {
			return result, fmt.Errorf("upsert news: %w", err)
		}
		result.Imported = n
	}

	i.logImport("news", path, result)
	return result, nil
}

// screenerColumns maps Screener-style CSV headers to snapshot metric names.
var screenerColumns = map[string]string{
	"p/e":               "pe",
	"p/b":               "pb",
	"ev/ebitda":         "ev_ebitda",
	"roe":               "roe",
	"roce":              "roce",
	"d/e":               "de_ratio",
	"eps growth 3y":     "eps_g3y",
	"revenue growth 3y": "rev_g3y",
	"profit growth 3y":  "profit_g3y",
	"opm":               "opm",
	"npm":               "npm",
	"dividend yield":    "div_yield",
	"promoter holding":  "promoter_hold",
	"pledged %":         "pledged_pct",
}

// ImportFundamentals reads a Screener-style ratios CSV. Only the ticker
// column is required; "As Of" defaults to today and non-numeric metric cells
// become missing, not errors.
func (i *CSVImporter) ImportFundamentals(ctx context.Context, path string) (*ImportResult, error) {
	rows, header, closeFn, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	tickerIdx := findColumn(header, "ticker")
	if tickerIdx < 0 {
		return nil, contracts.NewValidationError("csv", `missing required column "ticker"`)
	}
	asofIdx := findColumn(header, "asof", "as of")

	// Resolve each header to a metric name, via the Screener mapping or the
	// already-normalized schema name.
	metricIdx := map[string]int{}
	for idx, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if mapped, ok := screenerColumns[name]; ok {
			metricIdx[mapped] = idx
			continue
		}
		for _, col := range contracts.FundamentalColumns {
			if name == col {
				metricIdx[col] = idx
				break
			}
		}
	}

	today := contracts.Day(time.Now())
	result := &ImportResult{}
	var snaps []*contracts.FundamentalSnapshot

	for rowNum := 2; ; rowNum++ {
		rec, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}
		result.Rows++

		ticker := strings.TrimSpace(cell(rec, tickerIdx))
		if ticker == "" {
			result.addProblem(rowNum, "ticker is empty")
			continue
		}

		asof := today
		if asofIdx >= 0 && strings.TrimSpace(cell(rec, asofIdx)) != "" {
			asof, err = parseDay(cell(rec, asofIdx))
			if err != nil {
				result.addProblem(rowNum, err.Error())
				continue
			}
		}

		snap := &contracts.FundamentalSnapshot{Ticker: ticker, AsOf: asof}
		for col, idx := range metricIdx {
			if v, ok := parseNumber(cell(rec, idx)); ok {
				snap.SetValue(col, v)
			}
		}
		snaps = append(snaps, snap)
	}

	if len(snaps) > 0 {
		n, err := i.funds.Upsert(ctx, snaps)
		if err != nil {
			return result, fmt.Errorf("upsert fundamentals: %w", err)
		}
		result.Imported = n
	}

	i.logImport("fundamentals", path, result)
	return result, nil
}

func (i *CSVImporter) logImport(kind, path string, result *ImportResult) {
	log := i.logger.WithFields(map[string]interface{}{
		"kind":     kind,
		"path":     path,
		"rows":     result.Rows,
		"imported": result.Imported,
		"rejected": result.Rejected,
	})
	if result.Rejected > 0 {
		log.Warn("CSV import finished with rejected rows")
		return
	}
	log.Info("CSV import finished")
}

// openCSV opens the file and reads the header row.
func openCSV(path string) (*csv.Reader, []string, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open csv: %w", err)
	}

	r := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	r.ReuseRecord = true
	r.TrimLeadingSpace = true
	// Ragged rows are rejected per row, not fatal for the file.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, nil, nil, contracts.NewValidationError("csv", "file is empty")
		}
		return nil, nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	// Copy the header out of the reused record.
	cols := make([]string, len(header))
	copy(cols, header)

	return r, cols, func() { f.Close() }, nil
}

// requireColumns resolves each logical column to its index, accepting any of
// the listed header aliases. A missing column fails the whole import.
func requireColumns(header []string, wanted map[string][]string) (map[string]int, error) {
	out := make(map[string]int, len(wanted))
	for name, aliases := range wanted {
		idx := findColumn(header, aliases...)
		if idx < 0 {
			return nil, contracts.NewValidationError("csv", fmt.Sprintf("missing required column %q", name))
		}
		out[name] = idx
	}
	return out, nil
}

// findColumn returns the index of the first header matching any alias
// (case-insensitive), or -1.
func findColumn(header []string, aliases ...string) int {
	for idx, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		for _, a := range aliases {
			if name == a {
				return idx
			}
		}
	}
	return -1
}

// cell reads a field by index, tolerating short rows.
func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

// parseDay parses a date cell and truncates it to UTC midnight.
func parseDay(s string) (time.Time, error) {
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}, err
	}
	return contracts.Day(t), nil
}

// parseTimestamp accepts the timestamp layouts seen in exports.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"20060102",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseNumber parses a numeric cell, tolerating thousands separators, a
// percent suffix and the usual missing-value markers.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || s == "-" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// describeValidation flattens validator errors into one readable line.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldErrorMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
