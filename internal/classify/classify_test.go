package classify

import (
	"errors"
	"testing"

	"summons-lookup/internal/extract"
	"summons-lookup/internal/record"

	"github.com/stretchr/testify/require"
)

func extraction(notFound bool, keys ...string) extract.Extraction {
	ex := extract.Extraction{NotFound: notFound}
	for _, k := range keys {
		ex.Fields.Set(k, "value")
	}
	return ex
}

func TestClassify(t *testing.T) {
	failure := errors.New("network failure")

	testCases := []struct {
		name     string
		opts     Options
		ex       extract.Extraction
		err      error
		expected record.Status
	}{
		{
			name:     "fields present",
			ex:       extraction(false, "balance_due", "hearing_result"),
			expected: record.STATUS_SUCCESS,
		},
		{
			name:     "single field meets default threshold",
			ex:       extraction(false, "balance_due"),
			expected: record.STATUS_SUCCESS,
		},
		{
			name:     "no fields",
			ex:       extraction(false),
			expected: record.STATUS_NO_DATA,
		},
		{
			name:     "sentinel",
			ex:       extraction(true),
			expected: record.STATUS_NOT_FOUND,
		},
		{
			name:     "sentinel wins over fields",
			ex:       extraction(true, "balance_due"),
			expected: record.STATUS_NOT_FOUND,
		},
		{
			name:     "error wins over everything",
			ex:       extraction(true, "balance_due"),
			err:      failure,
			expected: record.STATUS_ERROR,
		},
		{
			name:     "below raised threshold",
			opts:     Options{SuccessThreshold: 2},
			ex:       extraction(false, "a", "b"),
			expected: record.STATUS_NO_DATA,
		},
		{
			name:     "above raised threshold",
			opts:     Options{SuccessThreshold: 2},
			ex:       extraction(false, "a", "b", "c"),
			expected: record.STATUS_SUCCESS,
		},
		{
			name:     "required field present",
			opts:     Options{RequiredField: "Summons/Notice Number:"},
			ex:       extraction(false, "summons_notice_number"),
			expected: record.STATUS_SUCCESS,
		},
		{
			name:     "required field absent",
			opts:     Options{RequiredField: "summons_notice_number"},
			ex:       extraction(false, "balance_due"),
			expected: record.STATUS_UNKNOWN,
		},
		{
			name:     "required field and sentinel",
			opts:     Options{RequiredField: "summons_notice_number"},
			ex:       extraction(true),
			expected: record.STATUS_NOT_FOUND,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			c := New(test.opts)
			require.Equal(t, test.expected, c.Classify(test.ex, test.err))
		})
	}
}
