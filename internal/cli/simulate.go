package cli

import (
	"github.com/spf13/cobra"

	"currex/internal/app"
)

var (
	simulateCurrency string
	simulateSide     string
	simulatePrevious string
	simulateCurrent  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a best-rate move and send the resulting alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		previous, err := app.ParseRate(simulatePrevious)
		if err != nil {
			return err
		}
		current, err := app.ParseRate(simulateCurrent)
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Currency: simulateCurrency,
			Side:     simulateSide,
			Previous: previous,
			Current:  current,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCurrency, "currency", "USD", "Currency code")
	simulateCmd.Flags().StringVar(&simulateSide, "side", "buy", "Side that moved: buy or sell")
	simulateCmd.Flags().StringVar(&simulatePrevious, "previous", "", "Best rate before the move")
	simulateCmd.Flags().StringVar(&simulateCurrent, "current", "", "Best rate after the move")
}
