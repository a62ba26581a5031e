package commands

import (
	"context"
	"fmt"
	"os"

	"summons-lookup/internal/config"

	"github.com/spf13/cobra"
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:   "summons-cli",
	Short: "summons-cli looks up summons identifiers on the ECB ticket finder and records what it finds.",
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", config.DefaultPath, "The config file, <name>.local.<ext> is merged over it when present.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
