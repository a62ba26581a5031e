package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"summons-lookup/internal/batch"
	"summons-lookup/internal/config"
	"summons-lookup/internal/db"
	"summons-lookup/internal/record"
	"summons-lookup/internal/report"
	"summons-lookup/internal/sink"
	"summons-lookup/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	lookupFile   *string
	lookupXlsx   *string
	lookupResume *string
)

func init() {
	addLookupFlags(lookupCmd)
	flags := lookupCmd.Flags()
	lookupFile = flags.String("file", "", "A text or CSV file with one identifier per line.")
	lookupXlsx = flags.String("xlsx", "", "A workbook to read identifiers from.")
	flags.String("sheet", "", "The sheet of --xlsx to read, defaults to the first one.")
	flags.String("column", "", "The column of --xlsx holding identifiers.")
	flags.Int("start-row", 0, "The first row of --xlsx holding an identifier.")
	lookupResume = flags.String("resume", "", "Continue the run with the given id, skipping identifiers it already has results for.")
	flags.String("db", "", "The sqlite database runs are recorded to, empty disables it.")
	flags.String("out", "", "The directory result files are written to.")
	flags.StringSlice("format", nil, "The result files to write (json, xlsx).")
	rootCmd.AddCommand(lookupCmd)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [identifiers...] [--file <ids.txt> | --xlsx <tracking.xlsx>] [--resume <run-id>]",
	Short: "Looks up every identifier in order and writes the results.",
	Run: func(cmd *cobra.Command, args []string) {
		code := runLookup(cmd, args)
		if code != 0 {
			os.Exit(code)
		}
	},
}

// runLookup returns the exit code, deferred cleanup runs before the
// process exits.
func runLookup(cmd *cobra.Command, args []string) int {
	s := openSession(cmd)
	defer s.Close()

	src, given, err := resolveSource(args, *lookupFile, *lookupXlsx, s.cfg.SheetOptions())
	if err != nil {
		serviceutil.Fatal("invalid input", err)
	}
	if !given && *lookupResume == "" {
		serviceutil.Fatal("no identifiers given", nil)
	}

	var database *sql.DB
	if s.cfg.DB != "" {
		database, err = db.OpenDB(s.cfg.DB)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()
	} else if *lookupResume != "" {
		serviceutil.Fatal("--resume needs a database", nil)
	}

	var prior batch.State
	var store *sink.Store
	runID := *lookupResume

	if runID != "" {
		opened, info, err := sink.OpenRun(cmd.Context(), database, runID, s.clock.Location())
		if err != nil {
			serviceutil.Fatal("failed to open run", err)
		}
		store = &opened
		if !given {
			src, err = parseSource(info.Input)
			if err != nil {
				serviceutil.Fatal("failed to read the input of the run", err)
			}
		}
		prior.Results, err = store.Results(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to load results of the run", err)
		}
		slog.Info("resuming run", "run", runID, "results", len(prior.Results), "input", src.Value)
	}

	entries, err := src.Entries()
	if err != nil {
		serviceutil.Fatal("failed to read identifiers", err)
	}

	startedAt := s.clock.Now()
	if runID == "" && database != nil {
		runID, err = sink.UniqueRunID(cmd.Context(), database, startedAt.Format("20060102_150405"))
		if err != nil {
			serviceutil.Fatal("failed to pick a run id", err)
		}
	}
	if store == nil && database != nil {
		created, err := sink.CreateRun(cmd.Context(), database, sink.RunInfo{
			ID:        runID,
			CreatedAt: startedAt,
			Transport: s.cfg.Transport,
			Total:     len(entries),
			Input:     src.String(),
		})
		if err != nil {
			serviceutil.Fatal("failed to record run", err)
		}
		store = &created
	}

	slog.Info(
		"starting lookups",
		"run", runID,
		"identifiers", len(entries),
		"transport", s.cfg.Transport,
		"delay", s.cfg.Delay.Std(),
	)

	var recorder batch.Recorder
	if store != nil {
		recorder = store
	}
	ctrl := s.newController(recorder, progress(os.Stderr))

	state, runErr := ctrl.Resume(cmd.Context(), entries, prior)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run stopped", "err", runErr)
	}

	// the run context may be cancelled, results are still saved
	if store != nil {
		flushResults(*store, state.Results)
	}
	writeResults(s.cfg, state.Results, startedAt)

	report.Render(os.Stdout, report.Summarize(state.Results))

	if !state.Done(len(entries)) {
		if store != nil {
			fmt.Fprintf(
				os.Stderr,
				"run %s stopped after %d of %d identifiers, continue it with: summons-cli lookup --resume %s\n",
				runID, state.Cursor, len(entries), runID,
			)
		}
		return 130
	}
	return 0
}

func progress(w *os.File) func(r record.Result, total int) {
	return func(r record.Result, total int) {
		fmt.Fprintf(w, "[%d/%d] %s: %s", r.Position+1, total, r.Identifier, r.Status)
		switch {
		case r.Error != "":
			fmt.Fprintf(w, " (%s)", r.Error)
		case r.Note != "":
			fmt.Fprintf(w, " (%s)", r.Note)
		case r.Fields.Len() > 0:
			fmt.Fprintf(w, " (%d fields)", r.Fields.Len())
		}
		fmt.Fprintln(w)
	}
}

// flushResults stores every result again in one transaction, this repairs
// the results whose incremental record failed.
func flushResults(store sink.Sink, results []record.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	err := store.Write(ctx, results)
	if err != nil {
		slog.Error("failed to store results", "err", err)
	}
}

func writeResults(cfg config.Config, results []record.Result, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	outputs := map[string]sink.Sink{}
	if cfg.HasFormat(config.FORMAT_JSON) {
		path := sink.OutputPath(cfg.Output.Dir, cfg.Output.Prefix, "json", now)
		outputs[path] = sink.JSON{Path: path}
	}
	if cfg.HasFormat(config.FORMAT_XLSX) {
		path := sink.OutputPath(cfg.Output.Dir, cfg.Output.Prefix, "xlsx", now)
		outputs[path] = sink.XLSX{Path: path}
	}

	for path, out := range outputs {
		err := out.Write(ctx, results)
		if err != nil {
			slog.Error("failed to write results", "path", path, "err", err)
			continue
		}
		slog.Info("results written", "path", path)
	}
}
