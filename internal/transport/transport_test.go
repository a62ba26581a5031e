package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		value    string
		limit    time.Duration
		expected time.Duration
	}{
		{value: "", expected: DefaultRetryAfter},
		{value: "12", expected: 12 * time.Second},
		{value: " 0 ", expected: 0},
		{value: "-3", expected: DefaultRetryAfter},
		{value: "soon", expected: DefaultRetryAfter},
		{value: "Sat, 01 Jun 2024 12:00:30 GMT", expected: 30 * time.Second},
		{value: "Sat, 01 Jun 2024 11:00:00 GMT", expected: DefaultRetryAfter},
		{value: "3600", expected: DefaultMaxRetryAfter},
		{value: "9999999999999", expected: DefaultMaxRetryAfter},
		{value: "99999999999999999999999", expected: DefaultMaxRetryAfter},
		{value: "-99999999999999999999999", expected: DefaultRetryAfter},
		{value: "Sun, 02 Jun 2024 12:00:00 GMT", expected: DefaultMaxRetryAfter},
		{value: "90", limit: time.Minute, expected: time.Minute},
		{value: "", limit: 2 * time.Second, expected: 2 * time.Second},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, ParseRetryAfter(test.value, now, DefaultRetryAfter, test.limit), test.value)
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("submit: %w", &Error{Kind: NETWORK_FAILURE, Err: cause})

	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, NETWORK_FAILURE, terr.Kind)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "submit: network failure: connection refused", err.Error())

	_, ok := AsThrottled(err)
	require.False(t, ok)

	wait, ok := AsThrottled(&Error{Kind: THROTTLED, Code: 429, RetryAfter: 7 * time.Second})
	require.True(t, ok)
	require.Equal(t, 7*time.Second, wait)

	require.Equal(t, `element not found "search input"`, (&Error{Kind: ELEMENT_NOT_FOUND, Locator: "search input"}).Error())
	require.Equal(t, "http status 500", (&Error{Kind: HTTP_STATUS, Code: 500}).Error())
}
