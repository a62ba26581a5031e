// Package browser drives a real chromium session through the search page,
// for when the plain form POST is blocked.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"summons-lookup/internal/components/assert"
	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/record"
	"summons-lookup/internal/transport"
	"summons-lookup/internal/transport/form"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("summons-lookup/internal/transport/browser")

const (
	report_transport_submit = "transport.submit"
	report_transport_close  = "transport.close"
)

// Locator is a named way of finding an element on the search page.
type Locator struct {
	Name     string
	Selector string
}

// InputLocators are tried in order to find the identifier input.
var InputLocators = []Locator{
	{Name: "input by name", Selector: `input[name="searchViolationObject.violationNo"]`},
	{Name: "input by id", Selector: `#violationNo`},
	{Name: "first text input", Selector: `input[type="text"]`},
}

// SubmitLocators are tried in order to find the search button.
var SubmitLocators = []Locator{
	{Name: "search button by value", Selector: `input[value*="Search"]`},
	{Name: "submit by name", Selector: `[name="submit"]`},
	{Name: "first submit input", Selector: `input[type="submit"]`},
}

type Options struct {
	// defaults to form.DefaultBaseUrl
	BaseUrl        string
	Headless       bool
	ExecutablePath string
	// per browser action, defaults to 30 seconds
	Timeout time.Duration
	// wait after submitting the search, defaults to 2 seconds
	SettleWait time.Duration
	// wait after loading the search page, defaults to 1 second
	NavigateWait time.Duration
	Clock        chrono.API
}

func (o *Options) setDefaults() error {
	if o.BaseUrl == "" {
		o.BaseUrl = form.DefaultBaseUrl
	}
	o.BaseUrl = strings.TrimRight(o.BaseUrl, "/")
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.SettleWait <= 0 {
		o.SettleWait = 2 * time.Second
	}
	if o.NavigateWait <= 0 {
		o.NavigateWait = time.Second
	}
	if o.Clock == nil {
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return err
		}
		o.Clock = clock
	}
	return nil
}

// Transport holds one browser session for its whole life, the session is
// acquired in New and released by the first call to Close.
type Transport struct {
	driver driver
	opts   Options
	tel    telemetry.API

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mutex     sync.Mutex
}

// New launches chromium, failing here is fatal to a run.
func New(opts Options, tel telemetry.API) (*Transport, error) {
	err := opts.setDefaults()
	if err != nil {
		return nil, err
	}
	d, err := launch(opts)
	if err != nil {
		return nil, err
	}
	return newWithDriver(d, opts, tel), nil
}

func newWithDriver(d driver, opts Options, tel telemetry.API) *Transport {
	assert.NotNil(tel)
	assert.NotNil(d)
	opts.setDefaults()
	return &Transport{
		driver: d,
		opts:   opts,
		tel:    telemetry.NewScopedAPI("browser_transport", tel),
	}
}

func (t *Transport) locate(locators []Locator, element string) (Locator, error) {
	var lastErr error
	for _, l := range locators {
		n, err := t.driver.Count(l.Selector)
		if err != nil {
			lastErr = err
			continue
		}
		if n > 0 {
			t.tel.ReportDebug("located element", element, l.Name)
			return l, nil
		}
	}
	return Locator{}, &transport.Error{
		Kind:    transport.ELEMENT_NOT_FOUND,
		Locator: element,
		Err:     lastErr,
	}
}

func (t *Transport) Submit(ctx context.Context, req record.Request) (record.RawResponse, error) {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("identifier", req.Identifier),
		attribute.Int("attempt", req.Attempt),
	)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	broken := func(err error) (record.RawResponse, error) {
		if ctx.Err() != nil {
			return record.RawResponse{}, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		t.tel.ReportBroken(report_transport_submit, err, req.Identifier)
		return record.RawResponse{}, err
	}

	if t.closed {
		return broken(&transport.Error{
			Kind: transport.NETWORK_FAILURE,
			Err:  errors.New("browser session is closed"),
		})
	}
	if err := ctx.Err(); err != nil {
		return record.RawResponse{}, err
	}

	err := t.driver.Navigate(t.opts.BaseUrl + form.HomeEndpoint)
	if err != nil {
		return broken(&transport.Error{
			Kind: transport.NETWORK_FAILURE,
			Err:  fmt.Errorf("navigate: %w", err),
		})
	}
	err = t.opts.Clock.Sleep(ctx, t.opts.NavigateWait)
	if err != nil {
		return record.RawResponse{}, err
	}

	input, err := t.locate(InputLocators, "search input")
	if err != nil {
		return broken(err)
	}
	err = t.driver.Fill(input.Selector, req.Identifier)
	if err != nil {
		return broken(&transport.Error{
			Kind:    transport.ELEMENT_NOT_FOUND,
			Locator: input.Name,
			Err:     fmt.Errorf("fill: %w", err),
		})
	}

	submit, err := t.locate(SubmitLocators, "search button")
	if err != nil {
		return broken(err)
	}
	if err := ctx.Err(); err != nil {
		return record.RawResponse{}, err
	}
	err = t.driver.Click(submit.Selector)
	if err != nil {
		return broken(&transport.Error{
			Kind:    transport.ELEMENT_NOT_FOUND,
			Locator: submit.Name,
			Err:     fmt.Errorf("click: %w", err),
		})
	}

	err = t.driver.WaitForLoad()
	if err != nil {
		t.tel.ReportWarning(report_transport_submit, fmt.Errorf("wait for load: %w", err), req.Identifier)
	}
	err = t.opts.Clock.Sleep(ctx, t.opts.SettleWait)
	if err != nil {
		return record.RawResponse{}, err
	}

	content, err := t.driver.Content()
	if err != nil {
		return broken(&transport.Error{
			Kind: transport.NETWORK_FAILURE,
			Err:  fmt.Errorf("read content: %w", err),
		})
	}

	return record.RawResponse{
		Body:       content,
		URL:        t.driver.URL(),
		StatusCode: 200,
	}, nil
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mutex.Lock()
		defer t.mutex.Unlock()

		t.closed = true
		t.closeErr = t.driver.Close()
		if t.closeErr != nil {
			t.tel.ReportBroken(report_transport_close, t.closeErr)
		}
	})
	return t.closeErr
}
