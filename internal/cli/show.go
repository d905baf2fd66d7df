package cli

import (
	"github.com/spf13/cobra"

	"currex/internal/app"
)

var (
	showCurrencies []string

	widgetCurrency string
	widgetSelect   string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current bank rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Currencies: showCurrencies})
	},
}

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Display what the widget shows from the shared store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Widget(cmd.Context(), app.WidgetOptions{
			Currency: widgetCurrency,
			Select:   widgetSelect,
		})
	},
}

func init() {
	showCmd.Flags().StringSliceVar(&showCurrencies, "currency", nil, "Currencies to show (defaults to config)")

	widgetCmd.Flags().StringVar(&widgetCurrency, "currency", "", "Currency to display (defaults to the saved selection)")
	widgetCmd.Flags().StringVar(&widgetSelect, "select", "", "Persist the selected widget currency")
}
