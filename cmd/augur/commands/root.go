package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "augur",
	Short: "Augur - 일간 주가 수익률 예측 백엔드",
	Long: `Augur Unified CLI

가격/펀더멘털/뉴스 데이터를 결합한 피처 파이프라인과
워크포워드 학습/추론 엔진을 하나의 CLI로 제공합니다.

Usage:
  go run ./cmd/augur [command]

Examples:
  go run ./cmd/augur api
  go run ./cmd/augur features --from 2024-01-01 --to 2024-06-30
  go run ./cmd/augur train
  go run ./cmd/augur infer`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return err
			}
		}
		if verbose {
			os.Setenv("LOG_LEVEL", "debug")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load before config (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
