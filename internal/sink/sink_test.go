package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"summons-lookup/internal/db"
	"summons-lookup/internal/record"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testTime = time.Date(2024, time.May, 2, 9, 30, 0, 0, time.UTC)

func testResults() []record.Result {
	found := record.Result{
		Identifier: "0703792522",
		Position:   0,
		Row:        5,
		Timestamp:  testTime,
		Status:     record.STATUS_SUCCESS,
		Attempts:   1,
	}
	found.Fields.Set("balance_due", "$0.00")
	found.Fields.Set("hearing_result", "DISMISSED")

	notFound := record.Result{
		Identifier: "9999999999",
		Position:   1,
		Row:        6,
		Timestamp:  testTime.Add(2 * time.Second),
		Status:     record.STATUS_NOT_FOUND,
		Note:       "No Record Available",
		Attempts:   1,
	}

	failed := record.Result{
		Identifier: "1234567890",
		Position:   2,
		Timestamp:  testTime.Add(4 * time.Second),
		Status:     record.STATUS_ERROR,
		Error:      "network failure: connection refused",
		Attempts:   1,
	}
	failed.Fields.Set("penalty_imposed", "$50.00")

	return []record.Result{found, notFound, failed}
}

func TestOutputPath(t *testing.T) {
	require.Equal(
		t,
		filepath.Join("out", "summons_results_20240502_093000.json"),
		OutputPath("out", "summons_results", "json", testTime),
	)
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	results := testResults()

	err := JSON{Path: path}.Write(context.Background(), results)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"identifier": "0703792522"`)

	back, err := ReadJSON(path, time.UTC)
	require.NoError(t, err)
	require.Len(t, back, 3)
	for i := range results {
		require.Equal(t, results[i].Identifier, back[i].Identifier)
		require.Equal(t, results[i].Status, back[i].Status)
		require.Equal(t, results[i].Row, back[i].Row)
		require.Equal(t, results[i].Error, back[i].Error)
		require.Equal(t, results[i].Fields.Keys(), back[i].Fields.Keys())
		require.True(t, results[i].Timestamp.Equal(back[i].Timestamp))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
}

func TestJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, JSON{Path: path}.Write(context.Background(), nil))

	back, err := ReadJSON(path, time.UTC)
	require.NoError(t, err)
	require.Empty(t, back)
}

func TestXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, XLSX{Path: path}.Write(context.Background(), testResults()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(defaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{
		"identifier",
		"row_number",
		"timestamp",
		"status",
		"balance_due",
		"hearing_result",
		"note",
		"error",
		"penalty_imposed",
	}, rows[0])
	require.Equal(t, "0703792522", rows[1][0])
	require.Equal(t, "2024-05-02 09:30:00", rows[1][2])
	require.Equal(t, "$0.00", rows[1][4])
	require.Equal(t, "NOT_FOUND", rows[2][3])
	require.Equal(t, "No Record Available", rows[2][6])
	require.Equal(t, "$50.00", rows[3][8])
}

func TestStore(t *testing.T) {
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	store, err := CreateRun(ctx, database, RunInfo{
		ID:        "run-1",
		CreatedAt: testTime,
		Transport: "http",
		Total:     3,
		Input:     "tracking.xlsx",
	})
	require.NoError(t, err)

	_, err = CreateRun(ctx, database, RunInfo{ID: "run-1", CreatedAt: testTime})
	require.Error(t, err)

	results := testResults()
	for _, r := range results[:2] {
		require.NoError(t, store.Record(ctx, r))
	}
	// recording the same position again replaces it
	retried := results[1]
	retried.Attempts = 2
	require.NoError(t, store.Record(ctx, retried))

	stored, err := store.Results(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, 2, stored[1].Attempts)
	require.Equal(t, "$0.00", stored[0].Fields.Value("balance_due"))
	require.Equal(t, []string{"balance_due", "hearing_result"}, stored[0].Fields.Keys())
	require.True(t, testTime.Equal(stored[0].Timestamp))

	require.NoError(t, store.Write(ctx, results))
	stored, err = store.Results(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, record.STATUS_ERROR, stored[2].Status)

	reopened, info, err := OpenRun(ctx, database, "run-1", time.UTC)
	require.NoError(t, err)
	require.Equal(t, 3, info.Total)
	require.Equal(t, "http", info.Transport)
	again, err := reopened.Results(ctx)
	require.NoError(t, err)
	require.Len(t, again, 3)

	_, _, err = OpenRun(ctx, database, "missing", time.UTC)
	require.ErrorIs(t, err, ErrRunNotFound)

	runs, err := ListRuns(ctx, database, time.UTC)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestStoreWriteFillsMissingResults(t *testing.T) {
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	store, err := CreateRun(ctx, database, RunInfo{ID: "run-1", CreatedAt: testTime, Total: 3})
	require.NoError(t, err)

	// only the first result made it through incremental recording
	results := testResults()
	require.NoError(t, store.Record(ctx, results[0]))

	require.NoError(t, store.Write(ctx, results))
	stored, err := store.Results(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i := range results {
		require.Equal(t, results[i].Identifier, stored[i].Identifier)
		require.Equal(t, results[i].Status, stored[i].Status)
	}
}

func TestCreateRunRequiresID(t *testing.T) {
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	defer database.Close()

	require.Panics(t, func() {
		CreateRun(context.Background(), database, RunInfo{CreatedAt: testTime})
	})
}

func TestUniqueRunID(t *testing.T) {
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	id, err := UniqueRunID(ctx, database, "20240502_093000")
	require.NoError(t, err)
	require.Equal(t, "20240502_093000", id)

	_, err = CreateRun(ctx, database, RunInfo{ID: id, CreatedAt: testTime})
	require.NoError(t, err)
	id, err = UniqueRunID(ctx, database, "20240502_093000")
	require.NoError(t, err)
	require.Equal(t, "20240502_093000_2", id)

	_, err = CreateRun(ctx, database, RunInfo{ID: id, CreatedAt: testTime})
	require.NoError(t, err)
	id, err = UniqueRunID(ctx, database, "20240502_093000")
	require.NoError(t, err)
	require.Equal(t, "20240502_093000_3", id)
}
