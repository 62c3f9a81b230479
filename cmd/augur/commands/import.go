package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/ingest"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "CSV 데이터 임포트",
	Long: `CSV 파일에서 가격/뉴스/펀더멘털 데이터를 임포트합니다.

잘못된 행은 개별적으로 거부되고 나머지는 계속 임포트됩니다.

Example:
  go run ./cmd/augur import prices data/prices.csv
  go run ./cmd/augur import news data/news.csv
  go run ./cmd/augur import fundamentals data/ratios.csv`,
}

var (
	importPricesCmd = &cobra.Command{
		Use:   "prices [file]",
		Short: "가격 CSV 임포트",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), "prices", args[0])
		},
	}

	importNewsCmd = &cobra.Command{
		Use:   "news [file]",
		Short: "뉴스 CSV 임포트",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), "news", args[0])
		},
	}

	importFundamentalsCmd = &cobra.Command{
		Use:   "fundamentals [file]",
		Short: "펀더멘털 CSV 임포트",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), "fundamentals", args[0])
		},
	}
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importPricesCmd)
	importCmd.AddCommand(importNewsCmd)
	importCmd.AddCommand(importFundamentalsCmd)
}

func runImport(ctx context.Context, kind, path string) error {
	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	importer := ingest.NewCSVImporter(deps.log, deps.prices, deps.news, deps.funds)

	var result *ingest.ImportResult
	switch kind {
	case "prices":
		result, err = importer.ImportPrices(ctx, path)
	case "news":
		result, err = importer.ImportNews(ctx, path)
	case "fundamentals":
		result, err = importer.ImportFundamentals(ctx, path)
	default:
		return fmt.Errorf("unknown import kind %q", kind)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✅ %s: %d rows read, %d imported, %d rejected\n",
		kind, result.Rows, result.Imported, result.Rejected)
	for _, p := range result.Problems {
		fmt.Printf("   ⚠ %s\n", p)
	}
	return nil
}
