package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"summons-lookup/internal/input"
	"summons-lookup/internal/report"
	"summons-lookup/pkg/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	addLookupFlags(singleCmd)
	rootCmd.AddCommand(singleCmd)
}

var singleCmd = &cobra.Command{
	Use:   "single <identifier>",
	Short: "Looks up one identifier and prints every field found.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		code := runSingle(cmd, args)
		if code != 0 {
			os.Exit(code)
		}
	},
}

func runSingle(cmd *cobra.Command, args []string) int {
	entries := input.FromArgs(args)
	if len(entries) != 1 {
		serviceutil.Fatal("expected exactly one identifier", nil)
	}

	s := openSession(cmd)
	defer s.Close()

	ctrl := s.newController(nil, nil)
	state, err := ctrl.Run(cmd.Context(), entries)
	if err != nil {
		return stoppedCode(err)
	}
	for _, r := range state.Results {
		report.RenderResult(os.Stdout, r)
	}
	return 0
}

// stoppedCode is the exit code of a run that stopped with err, an
// interrupted run exits like a process killed by SIGINT.
func stoppedCode(err error) int {
	if errors.Is(err, context.Canceled) {
		slog.Warn("lookup interrupted")
		return 130
	}
	slog.Error("lookup stopped", "err", err)
	return 1
}
