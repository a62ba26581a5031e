// Package batch runs lookups for a list of identifiers one at a time, in
// input order, pacing calls to the lookup service and retrying throttled
// calls.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"summons-lookup/internal/classify"
	"summons-lookup/internal/components/assert"
	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/extract"
	"summons-lookup/internal/record"
	"summons-lookup/internal/transport"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("summons-lookup/internal/batch")
	meter  = otel.Meter("summons-lookup/internal/batch")
)

const (
	report_controller_run    = "controller.run"
	report_controller_lookup = "controller.lookup"
	report_controller_record = "controller.record"
	report_controller_close  = "controller.close"
)

const DefaultMaxAttempts = 3

var ErrAlreadyRun = errors.New("batch: controller has already run")

// Recorder receives every result as soon as it is classified.
type Recorder interface {
	Record(ctx context.Context, r record.Result) error
}

type Options struct {
	// total transport calls allowed per identifier, defaults to DefaultMaxAttempts
	MaxAttempts int
	// defaults to the standard clock
	Clock chrono.API
	// defaults to no pacing
	Pacer    Pacer
	Recorder Recorder
	// called after a result is recorded, for progress output
	OnResult func(r record.Result, total int)
}

// Controller owns its transport and closes it when the run ends, a
// controller can only run once.
type Controller struct {
	transport  transport.Transport
	extractor  extract.Extractor
	classifier classify.Classifier
	opts       Options
	tel        telemetry.API
	lookups    metric.Int64Counter

	used      atomic.Bool
	closeOnce sync.Once
}

func New(
	tr transport.Transport,
	extractor extract.Extractor,
	classifier classify.Classifier,
	opts Options,
	tel telemetry.API,
) (*Controller, error) {
	assert.NotNil(tr)
	assert.NotNil(tel)

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Clock == nil {
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return nil, err
		}
		opts.Clock = clock
	}
	if opts.Pacer == nil {
		opts.Pacer = NewRatePacer(0, opts.Clock)
	}

	lookups, err := meter.Int64Counter(
		"summons.lookups",
		metric.WithDescription("Lookups completed, by status."),
	)
	if err != nil {
		return nil, err
	}

	return &Controller{
		transport:  tr,
		extractor:  extractor,
		classifier: classifier,
		opts:       opts,
		tel:        telemetry.NewScopedAPI("batch", tel),
		lookups:    lookups,
	}, nil
}

// Run looks up every entry in order. On cancellation it returns the results
// collected so far along with the context's error.
func (c *Controller) Run(ctx context.Context, entries []record.Entry) (State, error) {
	return c.Resume(ctx, entries, State{})
}

// Resume is Run, skipping the positions that already have a result in prior.
// Prior ERROR results are looked up again.
func (c *Controller) Resume(ctx context.Context, entries []record.Entry, prior State) (State, error) {
	if !c.used.CompareAndSwap(false, true) {
		return prior, ErrAlreadyRun
	}
	defer c.closeTransport()

	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.Int("entries", len(entries)))

	state := State{}
	for _, r := range prior.Results {
		if r.Position < 0 || r.Position >= len(entries) || entries[r.Position].Identifier != r.Identifier {
			c.tel.ReportWarning(
				report_controller_run,
				fmt.Errorf("discarding prior result that does not match the input"),
				r.Position,
				r.Identifier,
			)
			continue
		}
		if r.Status == record.STATUS_ERROR {
			c.tel.ReportDebug("retrying failed lookup", r.Position, r.Identifier)
			continue
		}
		state.Results = append(state.Results, r)
	}
	state.normalize()
	done := state.positions()

	for position, entry := range entries {
		if done[position] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.finish(span, state, err)
		}

		result, err := c.lookup(ctx, position, entry)
		if err != nil {
			return c.finish(span, state, err)
		}

		state.add(result)
		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(result.Status))))

		if c.opts.Recorder != nil {
			err := c.opts.Recorder.Record(ctx, result)
			if err != nil {
				c.tel.ReportBroken(report_controller_record, err, result.Identifier)
			}
		}
		if c.opts.OnResult != nil {
			c.opts.OnResult(result, len(entries))
		}
	}

	return c.finish(span, state, nil)
}

func (c *Controller) finish(span trace.Span, state State, err error) (State, error) {
	counts := map[record.Status]int64{}
	for _, r := range state.Results {
		counts[r.Status]++
	}
	for _, s := range record.Statuses {
		c.tel.ReportCount(fmt.Sprintf("status.%s", s), counts[s])
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.tel.ReportWarning(report_controller_run, "run stopped early", err, state.Cursor)
	}
	return state, err
}

func (c *Controller) closeTransport() {
	c.closeOnce.Do(func() {
		err := c.transport.Close()
		if err != nil {
			c.tel.ReportBroken(report_controller_close, err)
		}
	})
}

// lookup returns an error only when the run must stop, every other failure
// becomes an ERROR result.
func (c *Controller) lookup(ctx context.Context, position int, entry record.Entry) (result record.Result, abort error) {
	ctx, span := tracer.Start(ctx, "lookup")
	defer span.End()
	span.SetAttributes(
		attribute.String("identifier", entry.Identifier),
		attribute.Int("position", position),
	)

	result = record.Result{
		Identifier: entry.Identifier,
		Position:   position,
		Row:        entry.Row,
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("panic: %v", recovered)
			c.tel.ReportBroken(report_controller_lookup, err, entry.Identifier, string(debug.Stack()))
			span.SetStatus(codes.Error, err.Error())
			result.Status = record.STATUS_ERROR
			result.Error = err.Error()
			result.Timestamp = c.opts.Clock.Now()
			abort = nil
		}
	}()

	var raw record.RawResponse
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		err := c.opts.Pacer.Wait(ctx)
		if err != nil {
			return record.Result{}, err
		}

		result.Attempts = attempt
		raw, lastErr = c.transport.Submit(ctx, record.Request{
			Identifier: entry.Identifier,
			Attempt:    attempt,
			Position:   position,
		})
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return record.Result{}, ctx.Err()
		}

		wait, throttled := transport.AsThrottled(lastErr)
		if !throttled {
			break
		}
		// the advised wait is honoured after every throttled call, the last
		// one included, so the service is never hit again early
		c.tel.ReportWarning(report_controller_lookup, "throttled, waiting", entry.Identifier, attempt, wait)
		err = c.opts.Clock.Sleep(ctx, wait)
		if err != nil {
			return record.Result{}, err
		}
	}

	// past this point the identifier is finished even if ctx is cancelled
	result.Timestamp = c.opts.Clock.Now()

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "lookup failed")
		result.Status = c.classifier.Classify(extract.Extraction{}, lastErr)
		result.Error = lastErr.Error()
		return result, nil
	}

	ex, err := c.extractor.Extract(ctx, raw.Body)
	result.Status = c.classifier.Classify(ex, err)
	result.Fields = ex.Fields
	result.Note = ex.Note
	if err != nil {
		result.Error = fmt.Errorf("extract: %w", err).Error()
	}

	span.SetAttributes(attribute.String("status", string(result.Status)))
	c.tel.ReportDebug("lookup finished", entry.Identifier, string(result.Status), result.Attempts)
	return result, nil
}
