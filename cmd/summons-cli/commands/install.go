package commands

import (
	"summons-lookup/internal/transport/browser"
	"summons-lookup/pkg/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(installBrowserCmd)
}

var installBrowserCmd = &cobra.Command{
	Use:   "install-browser",
	Short: "Downloads the browser and driver used by the browser transport.",
	Run: func(cmd *cobra.Command, args []string) {
		err := browser.Install()
		if err != nil {
			serviceutil.Fatal("failed to install browser", err)
		}
	},
}
