package commands

import (
	"context"
	"log/slog"
	"time"

	"summons-lookup/internal/batch"
	"summons-lookup/internal/classify"
	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/config"
	"summons-lookup/internal/extract"
	"summons-lookup/internal/record"
	"summons-lookup/internal/transport"
	"summons-lookup/internal/transport/browser"
	"summons-lookup/internal/transport/form"
	"summons-lookup/pkg/serviceutil"

	"github.com/spf13/cobra"
)

const serviceName = "summons-cli"

// addLookupFlags registers the flags shared by every command that talks to
// the lookup service, they override the config file only when given.
func addLookupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("transport", "", "The transport to use, http or browser.")
	flags.Duration("delay", 0, "Minimum spacing between calls to the lookup service.")
	flags.Duration("timeout", 0, "Timeout of a single call to the lookup service.")
	flags.Int("max-attempts", 0, "Calls allowed per identifier when the service throttles.")
	flags.Bool("headless", true, "Run the browser without a window (browser transport).")
	flags.Bool("itemized-charges", false, "Extract one group of charge_* fields per charge.")
}

func changed(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if changed(cmd, "transport") {
		cfg.Transport, _ = flags.GetString("transport")
	}
	if changed(cmd, "delay") {
		delay, _ := flags.GetDuration("delay")
		cfg.Delay = config.Duration(delay)
	}
	if changed(cmd, "timeout") {
		timeout, _ := flags.GetDuration("timeout")
		cfg.Timeout = config.Duration(timeout)
	}
	if changed(cmd, "max-attempts") {
		cfg.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if changed(cmd, "headless") {
		headless, _ := flags.GetBool("headless")
		cfg.ShowBrowser = !headless
	}
	if changed(cmd, "itemized-charges") {
		cfg.ItemizedCharges, _ = flags.GetBool("itemized-charges")
	}
	if changed(cmd, "db") {
		cfg.DB, _ = flags.GetString("db")
	}
	if changed(cmd, "out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if changed(cmd, "sheet") {
		cfg.Input.Sheet, _ = flags.GetString("sheet")
	}
	if changed(cmd, "column") {
		cfg.Input.Column, _ = flags.GetString("column")
	}
	if changed(cmd, "start-row") {
		cfg.Input.StartRow, _ = flags.GetInt("start-row")
	}
	if changed(cmd, "format") {
		cfg.Output.Formats, _ = flags.GetStringSlice("format")
	}
}

type session struct {
	cfg   config.Config
	tel   telemetry.API
	clock chrono.API

	closeLog func() error
	otel     telemetry.Otel
}

// openSession reads the config, applies the command's flags and sets up
// logging and telemetry, any failure is fatal.
func openSession(cmd *cobra.Command) *session {
	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	applyFlags(cmd, &cfg)
	err = cfg.Validate()
	if err != nil {
		serviceutil.Fatal("invalid config", err)
	}

	closeLog, err := telemetry.InitSlog(cfg.Log)
	if err != nil {
		serviceutil.Fatal("failed to initialize logging", err)
	}
	otel, err := telemetry.Setup(cmd.Context(), serviceName, cfg.Otlp)
	if err != nil {
		serviceutil.Fatal("failed to initialize telemetry", err)
	}

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		serviceutil.Fatal("failed to load timezone", err)
	}

	return &session{
		cfg:      cfg,
		tel:      telemetry.SlogAPI{},
		clock:    clock,
		closeLog: closeLog,
		otel:     otel,
	}
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err := s.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	err = s.closeLog()
	if err != nil {
		slog.Warn("failed to close log file", "err", err)
	}
}

func (s *session) newTransport() (transport.Transport, error) {
	switch s.cfg.Transport {
	case config.TRANSPORT_BROWSER:
		opts := s.cfg.BrowserOptions()
		opts.Clock = s.clock
		return browser.New(opts, s.tel)
	default:
		opts := s.cfg.FormOptions()
		opts.Clock = s.clock
		return form.New(opts, s.tel)
	}
}

func (s *session) newController(recorder batch.Recorder, onResult func(r record.Result, total int)) *batch.Controller {
	tr, err := s.newTransport()
	if err != nil {
		serviceutil.Fatal("failed to open transport", err)
	}

	ctrl, err := batch.New(
		tr,
		extract.New(s.cfg.ExtractOptions(), s.tel),
		classify.New(s.cfg.ClassifyOptions()),
		batch.Options{
			MaxAttempts: s.cfg.MaxAttempts,
			Clock:       s.clock,
			Pacer:       batch.NewRatePacer(s.cfg.Delay.Std(), s.clock),
			Recorder:    recorder,
			OnResult:    onResult,
		},
		s.tel,
	)
	if err != nil {
		tr.Close()
		serviceutil.Fatal("failed to create controller", err)
	}
	return ctrl
}
