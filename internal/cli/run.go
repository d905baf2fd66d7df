package cli

import (
	"github.com/spf13/cobra"

	"currex/internal/app"
)

var runServe bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled refresh service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{Serve: runServe})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch every configured currency once and update the widget",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Refresh(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rates and the widget snapshot over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runServe, "serve", false, "Also serve the read API from this process")
}
