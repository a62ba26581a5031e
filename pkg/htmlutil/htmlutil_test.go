package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{in: "  Balance\u00a0Due: ", expected: "Balance Due:"},
		{in: "\n\tHearing\n   Result\t", expected: "Hearing Result"},
		{in: "a\u0000b", expected: "ab"},
		{in: "", expected: ""},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, CleanText(test.in))
	}
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><tr><td> Issuing <b>Agency</b><br>Name </td><td>DSNY</td></tr></table>`,
	))
	require.NoError(t, err)

	require.Equal(t, "Issuing Agency Name", SelectionText(doc.Find("td").First()))
	require.Equal(t, "Issuing Agency Name DSNY", SelectionText(doc.Find("td")))
	require.Equal(t, "Issuing Agency Name DSNY", CleanText(GetText(doc.Find("tr").Nodes[0])))
}
