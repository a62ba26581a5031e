package commands

import (
	"os"

	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/db"
	"summons-lookup/internal/sink"
	"summons-lookup/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runsDb *string

func init() {
	runsDb = runsCmd.Flags().String("db", "summons.db", "The database runs are recorded to.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--db <summons.db>]",
	Short: "Lists the recorded runs, newest first.",
	Run: func(cmd *cobra.Command, args []string) {
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}
		database, err := db.OpenDB(*runsDb)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		runs, err := sink.ListRuns(cmd.Context(), database, clock.Location())
		if err != nil {
			serviceutil.Fatal("failed to list runs", err)
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Run", "Started", "Transport", "Identifiers", "Input"})
		for _, run := range runs {
			input := run.Input
			if src, err := parseSource(run.Input); err == nil {
				input = src.Kind + " " + src.Value
			}
			t.AppendRow(table.Row{
				run.ID,
				run.CreatedAt.Format("2006-01-02 15:04:05"),
				run.Transport,
				run.Total,
				input,
			})
		}
		t.Render()
	},
}
