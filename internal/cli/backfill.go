package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"currex/internal/app"
)

var (
	backfillCurrencies []string
	backfillPeriod     int
	backfillDryRun     bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Archive a historical period into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillPeriod < 0 {
			return fmt.Errorf("--period must be positive")
		}

		opts := app.BackfillOptions{
			Currencies: backfillCurrencies,
			Period:     backfillPeriod,
			DryRun:     backfillDryRun,
		}
		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringSliceVar(&backfillCurrencies, "currency", nil, "Currencies to backfill (defaults to config)")
	backfillCmd.Flags().IntVar(&backfillPeriod, "period", 0, "Period in days (defaults to config)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
