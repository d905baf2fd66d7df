package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"currex/internal/app"
)

var historyOpts app.HistoryOptions

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show historical rates and export them as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyOpts.Period < 0 {
			return fmt.Errorf("--period must be positive")
		}
		return getApp().History(cmd.Context(), historyOpts)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyOpts.Currency, "currency", "", "Currency (defaults to the first configured)")
	historyCmd.Flags().IntVar(&historyOpts.Period, "period", 0, "Period in days (defaults to config)")
	historyCmd.Flags().StringSliceVar(&historyOpts.Banks, "bank", nil, "Banks to include (defaults to all)")
	historyCmd.Flags().BoolVar(&historyOpts.FromArchive, "archive", false, "Read from the database archive instead of the provider")
	historyCmd.Flags().StringVar(&historyOpts.PNGPath, "png", "", "Path to write PNG chart")
	historyCmd.Flags().StringVar(&historyOpts.CSVPath, "csv", "", "Path to write CSV data")
	historyCmd.Flags().IntVar(&historyOpts.MaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
