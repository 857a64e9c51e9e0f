package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledgerflow",
	Short: "ledgerflow - 금융 데이터 VTL 엔진",
	Long: `ledgerflow Validation–Transformation–Load engine

금융 시계열 배치를 검증하고, 파생 지표를 계산하고,
웨어하우스에 멱등 적재합니다. 추출과 스케줄링은 외부 협력자 몫.

Usage:
  go run ./cmd/ledgerflow [command]

Examples:
  go run ./cmd/ledgerflow status
  go run ./cmd/ledgerflow version`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
