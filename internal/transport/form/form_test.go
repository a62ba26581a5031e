package form

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"summons-lookup/internal/components/chrono"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/record"
	"summons-lookup/internal/transport"

	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) (*Transport, *telemetry.MemoryAPI) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tel := &telemetry.MemoryAPI{}
	tr, err := New(Options{
		BaseUrl: server.URL,
		Timeout: time.Second * 5,
		Clock:   chrono.NewFakeImpl(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)),
	}, tel)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr, tel
}

func TestSubmitPostsForm(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, SearchEndpoint, r.URL.Path)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		require.Equal(t, acceptLanguage, r.Header.Get("Accept-Language"))
		require.Contains(t, r.Header.Get("Referer"), HomeEndpoint)

		require.NoError(t, r.ParseForm())
		require.Equal(t, "violationNumber", r.PostForm.Get("searchType"))
		require.Equal(t, "0703792522", r.PostForm.Get("violationNumber"))
		require.Equal(t, "Search", r.PostForm.Get("searchBtn"))

		w.Write([]byte("<html><body>ok</body></html>"))
	})

	res, err := tr.Submit(context.Background(), record.Request{Identifier: "0703792522", Attempt: 1})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "<html><body>ok</body></html>", res.Body)
	require.Contains(t, res.URL, SearchEndpoint)
}

func TestSubmitStatusErrors(t *testing.T) {
	testCases := []struct {
		name       string
		code       int
		retryAfter string
		kind       transport.Kind
		wait       time.Duration
	}{
		{name: "too many requests", code: 429, retryAfter: "12", kind: transport.THROTTLED, wait: 12 * time.Second},
		{name: "unavailable without header", code: 503, kind: transport.THROTTLED, wait: transport.DefaultRetryAfter},
		{name: "advised wait past the limit", code: 429, retryAfter: "86400", kind: transport.THROTTLED, wait: transport.DefaultMaxRetryAfter},
		{name: "server error", code: 500, kind: transport.HTTP_STATUS},
		{name: "not found", code: 404, kind: transport.HTTP_STATUS},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				if test.retryAfter != "" {
					w.Header().Set("Retry-After", test.retryAfter)
				}
				w.WriteHeader(test.code)
			})

			_, err := tr.Submit(context.Background(), record.Request{Identifier: "1", Attempt: 1})
			require.Error(t, err)

			var terr *transport.Error
			require.True(t, errors.As(err, &terr))
			require.Equal(t, test.kind, terr.Kind)
			require.Equal(t, test.code, terr.Code)
			require.Equal(t, test.wait, terr.RetryAfter)
		})
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tel := &telemetry.MemoryAPI{}
	tr, err := New(Options{BaseUrl: url, Timeout: time.Second}, tel)
	require.NoError(t, err)

	_, err = tr.Submit(context.Background(), record.Request{Identifier: "1", Attempt: 1})
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, transport.NETWORK_FAILURE, terr.Kind)
	require.NotEmpty(t, tel.Filter("broken"))
}

func TestSubmitCancelled(t *testing.T) {
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Submit(ctx, record.Request{Identifier: "1", Attempt: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsRelativeUrl(t *testing.T) {
	_, err := New(Options{BaseUrl: "a820-ecbticketfinder.nyc.gov"}, &telemetry.MemoryAPI{})
	require.Error(t, err)
}
