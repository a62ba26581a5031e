// Package config holds the settings of a lookup run, read from
// summons.json5 (merged with summons.local.json5) over built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"summons-lookup/internal/classify"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/extract"
	"summons-lookup/internal/input"
	"summons-lookup/internal/transport"
	"summons-lookup/internal/transport/browser"
	"summons-lookup/internal/transport/form"
	"summons-lookup/pkg/configutil"

	"github.com/titanous/json5"
	"github.com/xuri/excelize/v2"
)

const DefaultPath = "summons.json5"

const (
	TRANSPORT_HTTP    = "http"
	TRANSPORT_BROWSER = "browser"
)

const (
	FORMAT_JSON = "json"
	FORMAT_XLSX = "xlsx"
)

// Duration reads either a Go duration string ("2s", "1m30s") or a number
// of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json5.Unmarshal(data, &text); err == nil {
		parsed, err := time.ParseDuration(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", text, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := json5.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

type InputConfig struct {
	Sheet    string `json:"sheet"`
	Column   string `json:"column"`
	StartRow int    `json:"start_row"`
}

type OutputConfig struct {
	Dir     string   `json:"dir"`
	Prefix  string   `json:"prefix"`
	Formats []string `json:"formats"`
}

type Config struct {
	// http or browser
	Transport string `json:"transport"`
	BaseUrl   string `json:"base_url"`
	// minimum spacing between calls to the lookup service
	Delay       Duration `json:"delay"`
	Timeout     Duration `json:"timeout"`
	MaxAttempts int      `json:"max_attempts"`

	// longest wait a throttled response can ask for
	MaxRetryAfter Duration `json:"max_retry_after"`

	// browser transport only, the browser runs headless unless this is set
	ShowBrowser       bool     `json:"show_browser"`
	SettleWait        Duration `json:"settle_wait"`
	BrowserExecutable string   `json:"browser_executable"`
	// http transport only
	CloudflareBypass bool `json:"cloudflare_bypass"`

	Sentinel         string `json:"sentinel"`
	SuccessThreshold int    `json:"success_threshold"`
	RequiredField    string `json:"required_field"`
	ItemizedCharges  bool   `json:"itemized_charges"`

	Input  InputConfig  `json:"input"`
	Output OutputConfig `json:"output"`

	// sqlite database holding every run, empty disables persistence
	DB   string               `json:"db"`
	Log  telemetry.LogConfig  `json:"log"`
	Otlp telemetry.OtlpConfig `json:"otlp"`
}

func Default() Config {
	return Config{
		Transport:     TRANSPORT_HTTP,
		BaseUrl:       form.DefaultBaseUrl,
		Delay:         Duration(2 * time.Second),
		Timeout:       Duration(30 * time.Second),
		MaxAttempts:   3,
		MaxRetryAfter: Duration(transport.DefaultMaxRetryAfter),
		SettleWait:    Duration(2 * time.Second),
		Sentinel:      extract.DefaultSentinel,
		Input: InputConfig{
			Column:   input.DefaultColumn,
			StartRow: input.DefaultStartRow,
		},
		Output: OutputConfig{
			Dir:     ".",
			Prefix:  "summons_results",
			Formats: []string{FORMAT_JSON, FORMAT_XLSX},
		},
		DB: "summons.db",
		Log: telemetry.LogConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overridden by every non-zero value of the
// config file at path, a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	err := configutil.MergeInto(&cfg, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TRANSPORT_HTTP, TRANSPORT_BROWSER:
	default:
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TRANSPORT_HTTP, TRANSPORT_BROWSER, c.Transport))
	}
	if c.BaseUrl == "" {
		errs = append(errs, fmt.Errorf("base_url is required"))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must not be negative, got %s", c.Delay.Std()))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout.Std()))
	}
	if c.SettleWait < 0 {
		errs = append(errs, fmt.Errorf("settle_wait must not be negative, got %s", c.SettleWait.Std()))
	}
	if c.MaxRetryAfter <= 0 {
		errs = append(errs, fmt.Errorf("max_retry_after must be positive, got %s", c.MaxRetryAfter.Std()))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.SuccessThreshold < 0 {
		errs = append(errs, fmt.Errorf("success_threshold must not be negative, got %d", c.SuccessThreshold))
	}
	if _, err := excelize.ColumnNameToNumber(c.Input.Column); err != nil {
		errs = append(errs, fmt.Errorf("input.column: %w", err))
	}
	if c.Input.StartRow < 1 {
		errs = append(errs, fmt.Errorf("input.start_row must be at least 1, got %d", c.Input.StartRow))
	}
	if c.Output.Prefix == "" {
		errs = append(errs, fmt.Errorf("output.prefix is required"))
	}
	for _, format := range c.Output.Formats {
		switch format {
		case FORMAT_JSON, FORMAT_XLSX:
		default:
			errs = append(errs, fmt.Errorf("output.formats: unknown format %q", format))
		}
	}

	return errors.Join(errs...)
}

func (c Config) FormOptions() form.Options {
	return form.Options{
		BaseUrl:          c.BaseUrl,
		Timeout:          c.Timeout.Std(),
		CloudflareBypass: c.CloudflareBypass,
		MaxRetryAfter:    c.MaxRetryAfter.Std(),
	}
}

func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		BaseUrl:        c.BaseUrl,
		Headless:       !c.ShowBrowser,
		ExecutablePath: c.BrowserExecutable,
		Timeout:        c.Timeout.Std(),
		SettleWait:     c.SettleWait.Std(),
	}
}

func (c Config) ExtractOptions() extract.Options {
	return extract.Options{
		Sentinel:        c.Sentinel,
		ItemizedCharges: c.ItemizedCharges,
	}
}

func (c Config) ClassifyOptions() classify.Options {
	return classify.Options{
		SuccessThreshold: c.SuccessThreshold,
		RequiredField:    c.RequiredField,
	}
}

func (c Config) SheetOptions() input.SheetOptions {
	return input.SheetOptions{
		Sheet:    c.Input.Sheet,
		Column:   c.Input.Column,
		StartRow: c.Input.StartRow,
	}
}

func (c Config) HasFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}
