package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"summons-lookup/internal/classify"
	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/extract"
	"summons-lookup/internal/record"
	"summons-lookup/internal/transport"

	"github.com/stretchr/testify/require"
)

const foundPage = `<html><body><table id="vioContent">
<tr><td>Balance Due:</td><td>$0.00</td></tr>
<tr><td>Hearing Result:</td><td>DISMISSED</td></tr>
</table></body></html>`

const notFoundPage = `<html><body><p>No Record Available</p></body></html>`

const emptyPage = `<html><body><p>Search again</p></body></html>`

type step func(ctx context.Context, req record.Request) (record.RawResponse, error)

func page(body string) step {
	return func(context.Context, record.Request) (record.RawResponse, error) {
		return record.RawResponse{Body: body, StatusCode: 200}, nil
	}
}

func fail(err error) step {
	return func(context.Context, record.Request) (record.RawResponse, error) {
		return record.RawResponse{}, err
	}
}

func throttled(wait time.Duration) step {
	return fail(&transport.Error{Kind: transport.THROTTLED, Code: 429, RetryAfter: wait})
}

// fakeTransport plays back steps per identifier, one per call.
type fakeTransport struct {
	mutex      sync.Mutex
	steps      map[string][]step
	calls      []record.Request
	closeCalls int
}

func (f *fakeTransport) Submit(ctx context.Context, req record.Request) (record.RawResponse, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, req)
	queue := f.steps[req.Identifier]
	var next step
	if len(queue) > 0 {
		next = queue[0]
		if len(queue) > 1 {
			f.steps[req.Identifier] = queue[1:]
		}
	}
	f.mutex.Unlock()

	if next == nil {
		return record.RawResponse{Body: emptyPage, StatusCode: 200}, nil
	}
	return next(ctx, req)
}

func (f *fakeTransport) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closeCalls++
	return nil
}

type memoryRecorder struct {
	results []record.Result
}

func (m *memoryRecorder) Record(_ context.Context, r record.Result) error {
	m.results = append(m.results, r)
	return nil
}

type harness struct {
	transport *fakeTransport
	clock     *chrono.FakeImpl
	tel       *telemetry.MemoryAPI
	recorder  *memoryRecorder
}

func newController(t *testing.T, steps map[string][]step, delay time.Duration, maxAttempts int) (*Controller, harness) {
	t.Helper()

	h := harness{
		transport: &fakeTransport{steps: steps},
		clock:     chrono.NewFakeImpl(time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)),
		tel:       &telemetry.MemoryAPI{},
		recorder:  &memoryRecorder{},
	}
	c, err := New(
		h.transport,
		extract.New(extract.Options{}, h.tel),
		classify.New(classify.Options{}),
		Options{
			MaxAttempts: maxAttempts,
			Clock:       h.clock,
			Pacer:       NewRatePacer(delay, h.clock),
			Recorder:    h.recorder,
		},
		h.tel,
	)
	require.NoError(t, err)
	return c, h
}

func entries(ids ...string) []record.Entry {
	out := make([]record.Entry, len(ids))
	for i, id := range ids {
		out[i] = record.Entry{Identifier: id, Row: i + 5}
	}
	return out
}

func statuses(state State) []record.Status {
	out := make([]record.Status, len(state.Results))
	for i, r := range state.Results {
		out[i] = r.Status
	}
	return out
}

func TestRunSingleFound(t *testing.T) {
	c, h := newController(t, map[string][]step{
		"0703792522": {page(foundPage)},
	}, 0, 0)

	state, err := c.Run(context.Background(), entries("0703792522"))
	require.NoError(t, err)
	require.Len(t, state.Results, 1)

	r := state.Results[0]
	require.Equal(t, record.STATUS_SUCCESS, r.Status)
	require.Equal(t, "$0.00", r.Fields.Value("balance_due"))
	require.Equal(t, "DISMISSED", r.Fields.Value("hearing_result"))
	require.Equal(t, 5, r.Row)
	require.Equal(t, 1, r.Attempts)
	require.Equal(t, h.clock.Now(), r.Timestamp)
	require.Equal(t, 1, state.Cursor)
	require.Equal(t, 1, h.transport.closeCalls)
}

func TestRunNotFound(t *testing.T) {
	c, _ := newController(t, map[string][]step{
		"9999999999": {page(notFoundPage)},
	}, 0, 0)

	state, err := c.Run(context.Background(), entries("9999999999"))
	require.NoError(t, err)
	require.Equal(t, []record.Status{record.STATUS_NOT_FOUND}, statuses(state))
	require.Equal(t, 0, state.Results[0].Fields.Len())
}

func TestRunIsolatesFailures(t *testing.T) {
	c, h := newController(t, map[string][]step{
		"A": {page(foundPage)},
		"B": {fail(&transport.Error{Kind: transport.NETWORK_FAILURE, Err: errors.New("connection refused")})},
		"C": {func(context.Context, record.Request) (record.RawResponse, error) {
			panic("driver crashed")
		}},
		"D": {page(notFoundPage)},
		"E": {fail(&transport.Error{Kind: transport.HTTP_STATUS, Code: 500})},
		"F": {page(emptyPage)},
		"A2": {page(foundPage)},
	}, 0, 0)

	ids := []string{"A", "B", "C", "D", "E", "F", "A2", "A"}
	state, err := c.Run(context.Background(), entries(ids...))
	require.NoError(t, err)

	require.Len(t, state.Results, len(ids))
	for i, r := range state.Results {
		require.Equal(t, i, r.Position)
		require.Equal(t, ids[i], r.Identifier)
	}
	require.Equal(t, []record.Status{
		record.STATUS_SUCCESS,
		record.STATUS_ERROR,
		record.STATUS_ERROR,
		record.STATUS_NOT_FOUND,
		record.STATUS_ERROR,
		record.STATUS_NO_DATA,
		record.STATUS_SUCCESS,
		// the fake replays the last step for repeated identifiers
		record.STATUS_SUCCESS,
	}, statuses(state))

	require.Equal(t, "network failure: connection refused", state.Results[1].Error)
	require.Equal(t, "panic: driver crashed", state.Results[2].Error)
	require.Equal(t, "http status 500", state.Results[4].Error)
	require.Equal(t, len(ids), len(h.recorder.results))
	require.Equal(t, 1, h.transport.closeCalls)
}

func TestRunSecondConnectionFails(t *testing.T) {
	c, _ := newController(t, map[string][]step{
		"1111111111": {page(emptyPage)},
		"2222222222": {fail(&transport.Error{Kind: transport.NETWORK_FAILURE, Err: errors.New("dial tcp: connection refused")})},
	}, 0, 0)

	state, err := c.Run(context.Background(), entries("1111111111", "2222222222"))
	require.NoError(t, err)
	require.Equal(t, []record.Status{record.STATUS_NO_DATA, record.STATUS_ERROR}, statuses(state))
	require.NotEmpty(t, state.Results[1].Error)
}

func TestThrottleRetryBound(t *testing.T) {
	c, h := newController(t, map[string][]step{
		"A": {throttled(3 * time.Second), throttled(4 * time.Second), throttled(9 * time.Second)},
	}, 0, 3)

	state, err := c.Run(context.Background(), entries("A"))
	require.NoError(t, err)

	r := state.Results[0]
	require.Equal(t, record.STATUS_ERROR, r.Status)
	require.Equal(t, 3, r.Attempts)
	require.Len(t, h.transport.calls, 3)
	for i, call := range h.transport.calls {
		require.Equal(t, i+1, call.Attempt)
	}
	// every advised wait is taken, the last one included
	require.Equal(t, []time.Duration{3 * time.Second, 4 * time.Second, 9 * time.Second}, h.clock.Sleeps())
	require.Equal(t, 16*time.Second, h.clock.Slept())
}

func TestThrottleExhaustedThenNext(t *testing.T) {
	c, h := newController(t, map[string][]step{
		"A": {throttled(6 * time.Second), throttled(6 * time.Second)},
	}, 2*time.Second, 2)

	state, err := c.Run(context.Background(), entries("A", "B"))
	require.NoError(t, err)
	require.Equal(t, []record.Status{record.STATUS_ERROR, record.STATUS_NO_DATA}, statuses(state))
	require.Contains(t, state.Results[0].Error, "throttled")
	// both throttle waits cover the pacing delay, B goes out right after
	require.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second}, h.clock.Sleeps())
	require.Len(t, h.transport.calls, 3)
}

func TestThrottleThenSuccess(t *testing.T) {
	c, h := newController(t, map[string][]step{
		"A": {throttled(5 * time.Second), page(foundPage)},
	}, 2*time.Second, 3)

	state, err := c.Run(context.Background(), entries("A"))
	require.NoError(t, err)
	require.Equal(t, record.STATUS_SUCCESS, state.Results[0].Status)
	require.Equal(t, 2, state.Results[0].Attempts)
	// the throttle wait is longer than the pacing delay so no extra pacing happens
	require.Equal(t, []time.Duration{5 * time.Second}, h.clock.Sleeps())
}

func TestPacing(t *testing.T) {
	c, h := newController(t, map[string][]step{}, 2*time.Second, 0)

	state, err := c.Run(context.Background(), entries("A", "B", "C"))
	require.NoError(t, err)
	require.Len(t, state.Results, 3)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.clock.Sleeps())
}

func TestCancelBeforeResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, h := newController(t, map[string][]step{
		"A": {page(foundPage)},
		"B": {func(ctx context.Context, _ record.Request) (record.RawResponse, error) {
			cancel()
			return record.RawResponse{}, ctx.Err()
		}},
	}, 0, 0)

	state, err := c.Run(ctx, entries("A", "B", "C"))
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, state.Results, 1)
	require.Equal(t, "A", state.Results[0].Identifier)
	require.Equal(t, 1, state.Cursor)
	require.Len(t, h.transport.calls, 2)
	require.Equal(t, 1, h.transport.closeCalls)
}

func TestCancelAfterResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, h := newController(t, map[string][]step{
		"A": {func(context.Context, record.Request) (record.RawResponse, error) {
			cancel()
			return record.RawResponse{Body: foundPage, StatusCode: 200}, nil
		}},
	}, 0, 0)

	state, err := c.Run(ctx, entries("A", "B"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []record.Status{record.STATUS_SUCCESS}, statuses(state))
	require.Len(t, h.transport.calls, 1)
	require.Len(t, h.recorder.results, 1)
	require.Equal(t, 1, h.transport.closeCalls)
}

func TestCancelDuringThrottleWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, h := newController(t, map[string][]step{
		"A": {throttled(30 * time.Second)},
	}, 0, 3)
	h.clock.OnSleep = func(time.Duration) { cancel() }

	state, err := c.Run(ctx, entries("A"))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, state.Results)
	require.Equal(t, 1, h.transport.closeCalls)
}

func TestResume(t *testing.T) {
	c, h := newController(t, map[string][]step{
		"A": {page(foundPage)},
		"B": {page(notFoundPage)},
		"C": {page(foundPage)},
	}, 0, 0)

	prior := State{Results: []record.Result{
		{Identifier: "A", Position: 0, Status: record.STATUS_SUCCESS},
		// failed before, looked up again
		{Identifier: "B", Position: 1, Status: record.STATUS_ERROR, Error: "network failure: reset"},
		// does not match the input anymore
		{Identifier: "Z", Position: 2, Status: record.STATUS_SUCCESS},
	}}

	state, err := c.Resume(context.Background(), entries("A", "B", "C"), prior)
	require.NoError(t, err)
	require.Equal(t, []record.Status{
		record.STATUS_SUCCESS,
		record.STATUS_NOT_FOUND,
		record.STATUS_SUCCESS,
	}, statuses(state))
	require.Equal(t, 3, state.Cursor)
	require.True(t, state.Done(3))

	called := []string{}
	for _, call := range h.transport.calls {
		called = append(called, call.Identifier)
	}
	require.Equal(t, []string{"B", "C"}, called)
	require.Empty(t, state.Results[1].Error)
	require.Len(t, h.tel.Filter("warning"), 1)
}

func TestRunOnlyOnce(t *testing.T) {
	c, h := newController(t, map[string][]step{}, 0, 0)

	_, err := c.Run(context.Background(), entries("A"))
	require.NoError(t, err)
	_, err = c.Run(context.Background(), entries("A"))
	require.ErrorIs(t, err, ErrAlreadyRun)
	require.Equal(t, 1, h.transport.closeCalls)
	require.Len(t, h.transport.calls, 1)
}

func TestRunEmpty(t *testing.T) {
	c, h := newController(t, map[string][]step{}, 0, 0)

	state, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, state.Results)
	require.Equal(t, 1, h.transport.closeCalls)
}
