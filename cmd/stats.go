package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binventory/binventory/internal/audit"
	"github.com/binventory/binventory/internal/config"
	"github.com/binventory/binventory/internal/database"
	"github.com/binventory/binventory/internal/inventory"
	"github.com/binventory/binventory/internal/log"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inventory totals and recent operations",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger := log.NewNop()

	store, err := inventory.NewStore(pool, logger)
	if err != nil {
		return err
	}
	st, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading inventory stats: %w", err)
	}

	fmt.Printf("items: %d\n", st.Items)
	fmt.Printf("bins:  %d\n", st.Bins)

	auditLog, err := audit.NewPostgresLog(pool, logger)
	if err != nil {
		return err
	}
	entries, err := auditLog.Recent(ctx, 10)
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}

	if len(entries) > 0 {
		fmt.Println()
		fmt.Println("recent operations:")
		for _, e := range entries {
			marker := " "
			if e.Reversible {
				marker = "r"
			}
			fmt.Printf("  %s [%s]%s %s (%s)\n",
				e.CreatedAt.Format("2006-01-02 15:04"), e.Action, marker, e.Description, e.OperationID)
		}
	}
	return nil
}
