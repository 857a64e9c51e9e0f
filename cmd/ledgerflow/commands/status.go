package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ledgerflow/pkg/config"
	"github.com/wonny/ledgerflow/pkg/database"
	"github.com/wonny/ledgerflow/pkg/redis"
)

// statusCmd checks the engine's collaborators
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "웨어하우스 / 락 스토어 상태 점검",
	Long: `웨어하우스(PostgreSQL)와 락 스토어(Redis) 연결을 점검합니다.

표시 정보:
- 웨어하우스 응답 시간 및 커넥션 풀 통계
- 락 스토어 응답 여부

Example:
  go run ./cmd/ledgerflow status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println("=== ledgerflow status ===")

	// Warehouse
	db, err := database.New(cfg)
	if err != nil {
		fmt.Printf("warehouse:  UNREACHABLE (%v)\n", err)
	} else {
		defer db.Close()
		health, herr := db.HealthCheck(ctx)
		if herr != nil {
			fmt.Printf("warehouse:  UNHEALTHY (%v)\n", herr)
		} else {
			fmt.Printf("warehouse:  OK (%.0fms, conns %d/%d)\n",
				float64(health.ResponseTime.Microseconds())/1000,
				health.Stats.TotalConns, health.Stats.MaxConns)
		}
	}

	// Lock store
	rdb, err := redis.New(cfg)
	if err != nil {
		fmt.Printf("lock store: UNREACHABLE (%v)\n", err)
		return nil
	}
	defer rdb.Close()
	if perr := rdb.Ping(ctx); perr != nil {
		fmt.Printf("lock store: UNHEALTHY (%v)\n", perr)
	} else {
		fmt.Println("lock store: OK")
	}

	return nil
}
