package commands

import (
	"os"

	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/db"
	"summons-lookup/internal/record"
	"summons-lookup/internal/report"
	"summons-lookup/internal/sink"
	"summons-lookup/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	summaryRun *string
	summaryDb  *string
)

func init() {
	summaryRun = summaryCmd.Flags().String("run", "", "Summarize a run recorded in the database instead of a results file.")
	summaryDb = summaryCmd.Flags().String("db", "summons.db", "The database holding --run.")
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary [<results.json> | --run <run-id>]",
	Short: "Prints status counts, failed lookups and active summonses of a previous run.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}

		var results []record.Result
		switch {
		case *summaryRun != "":
			database, err := db.OpenDB(*summaryDb)
			if err != nil {
				serviceutil.Fatal("failed to open db", err)
			}
			defer database.Close()

			store, _, err := sink.OpenRun(cmd.Context(), database, *summaryRun, clock.Location())
			if err != nil {
				serviceutil.Fatal("failed to open run", err)
			}
			results, err = store.Results(cmd.Context())
			if err != nil {
				serviceutil.Fatal("failed to read results", err)
			}
		case len(args) == 1:
			results, err = sink.ReadJSON(args[0], clock.Location())
			if err != nil {
				serviceutil.Fatal("failed to read results", err)
			}
		default:
			serviceutil.Fatal("give a results file or --run", nil)
		}

		report.Render(os.Stdout, report.Summarize(results))
	},
}
