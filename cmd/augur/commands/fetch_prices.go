package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/ingest"
	"github.com/wonny/augur/backend/pkg/httputil"
)

// fetchPricesCmd represents the fetch-prices command
var fetchPricesCmd = &cobra.Command{
	Use:   "fetch-prices [tickers...]",
	Short: "가격 데이터 수집",
	Long: `외부 가격 API에서 일봉을 수집해 업서트합니다.

종목을 지정하지 않으면 TICKERS 환경변수의 유니버스를 사용합니다.

Example:
  go run ./cmd/augur fetch-prices
  go run ./cmd/augur fetch-prices AAPL MSFT --from 2024-01-01`,
	RunE: runFetchPrices,
}

var (
	fetchFrom string
	fetchTo   string
)

func init() {
	rootCmd.AddCommand(fetchPricesCmd)

	fetchPricesCmd.Flags().StringVar(&fetchFrom, "from", "", "시작일 (YYYY-MM-DD, 기본: --to 30일 전)")
	fetchPricesCmd.Flags().StringVar(&fetchTo, "to", "", "종료일 (YYYY-MM-DD, 기본: 오늘)")
}

func runFetchPrices(cmd *cobra.Command, args []string) error {
	from, to, err := dateRange(fetchFrom, fetchTo, 30)
	if err != nil {
		return err
	}

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	tickers := args
	if len(tickers) == 0 {
		tickers = deps.cfg.Pipeline.Tickers
	}
	if len(tickers) == 0 {
		return fmt.Errorf("no tickers given and TICKERS is empty")
	}

	httpClient := httputil.New(deps.cfg, deps.log)
	fetcher := ingest.NewPriceFetcher(deps.cfg, deps.log, httpClient, deps.prices)

	fmt.Printf("Fetching prices %s ~ %s for %d tickers\n",
		from.Format("2006-01-02"), to.Format("2006-01-02"), len(tickers))

	counts, err := fetcher.FetchAndStore(cmd.Context(), tickers, from, to)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(counts))
	total := 0
	for t, n := range counts {
		names = append(names, t)
		total += n
	}
	sort.Strings(names)
	for _, t := range names {
		fmt.Printf("  %-12s %d bars\n", t, counts[t])
	}

	fmt.Printf("✅ %d bars stored\n", total)
	return nil
}
