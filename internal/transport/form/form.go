// Package form submits lookups as a plain form POST, the same request the
// search page's form makes.
package form

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"summons-lookup/internal/components/assert"
	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/record"
	"summons-lookup/internal/transport"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("summons-lookup/internal/transport/form")

const (
	report_transport_submit = "transport.submit"
)

const (
	DefaultBaseUrl = "https://a820-ecbticketfinder.nyc.gov"

	SearchEndpoint = "/getViolationbyID.action"
	HomeEndpoint   = "/searchHome.action"

	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
)

type Options struct {
	// defaults to DefaultBaseUrl
	BaseUrl string
	// defaults to 30 seconds
	Timeout time.Duration
	// wraps the http transport with a browser-like TLS fingerprint
	CloudflareBypass bool
	// longest Retry-After honoured, defaults to transport.DefaultMaxRetryAfter
	MaxRetryAfter time.Duration
	// used to resolve Retry-After dates, defaults to the wall clock
	Clock chrono.API
}

type Transport struct {
	http          *resty.Client
	baseUrl       *url.URL
	maxRetryAfter time.Duration
	clock         chrono.API
	tel           telemetry.API
}

func New(opts Options, tel telemetry.API) (*Transport, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("form_transport", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.MaxRetryAfter <= 0 {
		opts.MaxRetryAfter = transport.DefaultMaxRetryAfter
	}
	if opts.Clock == nil {
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return nil, err
		}
		opts.Clock = clock
	}

	baseUrl := strings.TrimRight(opts.BaseUrl, "/")
	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeaders(map[string]string{
		"User-Agent":      userAgent,
		"Accept":          acceptHeader,
		"Accept-Language": acceptLanguage,
		"Referer":         baseUrl + HomeEndpoint,
	})
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(httpClient, tel)

	return &Transport{
		http:          httpClient,
		baseUrl:       parsedBaseUrl,
		maxRetryAfter: opts.MaxRetryAfter,
		clock:         opts.Clock,
		tel:           tel,
	}, nil
}

func (t *Transport) Submit(ctx context.Context, req record.Request) (record.RawResponse, error) {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("identifier", req.Identifier),
		attribute.Int("attempt", req.Attempt),
	)

	t.tel.ReportDebug(report_transport_submit, req.Identifier, req.Attempt)

	res, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"searchType":      "violationNumber",
			"violationNumber": req.Identifier,
			"searchBtn":       "Search",
		}).
		Post(SearchEndpoint)
	if err != nil {
		if ctx.Err() != nil {
			return record.RawResponse{}, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		t.tel.ReportBroken(
			report_transport_submit,
			fmt.Errorf("fetch: %w", err),
			req.Identifier,
		)
		return record.RawResponse{}, &transport.Error{
			Kind: transport.NETWORK_FAILURE,
			Err:  err,
		}
	}

	code := res.StatusCode()
	span.SetAttributes(attribute.Int("status_code", code))

	switch {
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		wait := transport.ParseRetryAfter(
			res.Header().Get("Retry-After"),
			t.clock.Now(),
			transport.DefaultRetryAfter,
			t.maxRetryAfter,
		)
		t.tel.ReportWarning(report_transport_submit, "throttled", req.Identifier, code, wait)
		return record.RawResponse{}, &transport.Error{
			Kind:       transport.THROTTLED,
			Code:       code,
			RetryAfter: wait,
		}
	case code < 200 || code >= 300:
		span.SetStatus(codes.Error, "unexpected status")
		t.tel.ReportBroken(
			report_transport_submit,
			fmt.Errorf("unexpected status %d", code),
			req.Identifier,
		)
		return record.RawResponse{}, &transport.Error{
			Kind: transport.HTTP_STATUS,
			Code: code,
		}
	}

	finalUrl := t.baseUrl.String() + SearchEndpoint
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}

	return record.RawResponse{
		Body:       res.String(),
		URL:        finalUrl,
		StatusCode: code,
	}, nil
}

func (t *Transport) Close() error {
	t.http.GetClient().CloseIdleConnections()
	return nil
}
