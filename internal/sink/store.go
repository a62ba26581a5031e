package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"summons-lookup/internal/components/assert"
	"summons-lookup/internal/db"
	"summons-lookup/internal/record"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists each result of a run as soon as it is classified, writes
// are upserts keyed by (run, position) so replaying a result is harmless.
type Store struct {
	RunID string

	qry    *db.Queries
	makeTx db.MakeTx
	loc    *time.Location
}

type RunInfo struct {
	ID        string
	CreatedAt time.Time
	Transport string
	Total     int
	Input     string
}

// CreateRun registers a new run and returns a store that records into it.
func CreateRun(ctx context.Context, database *sql.DB, info RunInfo) (Store, error) {
	assert.NotEmptyStr(info.ID)

	qry := db.New(database)
	err := qry.CreateRun(ctx, db.CreateRunParams{
		ID:        info.ID,
		CreatedAt: info.CreatedAt.Unix(),
		Transport: info.Transport,
		Total:     int64(info.Total),
		Input:     info.Input,
	})
	if err != nil {
		return Store{}, fmt.Errorf("create run: %w", err)
	}
	return newStore(database, info.ID, info.CreatedAt.Location()), nil
}

// OpenRun returns a store for an existing run along with its info.
func OpenRun(ctx context.Context, database *sql.DB, runID string, loc *time.Location) (Store, RunInfo, error) {
	if loc == nil {
		loc = time.Local
	}
	run, err := db.New(database).GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Store{}, RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Store{}, RunInfo{}, err
	}
	return newStore(database, runID, loc), runInfo(run, loc), nil
}

// UniqueRunID returns base when no run has that id yet, otherwise the first
// free "<base>_<n>" counting from 2.
func UniqueRunID(ctx context.Context, database *sql.DB, base string) (string, error) {
	assert.NotEmptyStr(base)

	qry := db.New(database)
	candidate := base
	for n := 2; ; n++ {
		_, err := qry.GetRun(ctx, candidate)
		if errors.Is(err, sql.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
}

// ListRuns returns every run, newest first.
func ListRuns(ctx context.Context, database *sql.DB, loc *time.Location) ([]RunInfo, error) {
	if loc == nil {
		loc = time.Local
	}
	runs, err := db.New(database).ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunInfo, len(runs))
	for i, r := range runs {
		out[i] = runInfo(r, loc)
	}
	return out, nil
}

func runInfo(r db.Run, loc *time.Location) RunInfo {
	return RunInfo{
		ID:        r.ID,
		CreatedAt: time.Unix(r.CreatedAt, 0).In(loc),
		Transport: r.Transport,
		Total:     int(r.Total),
		Input:     r.Input,
	}
}

func newStore(database *sql.DB, runID string, loc *time.Location) Store {
	return Store{
		RunID:  runID,
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		loc:    loc,
	}
}

func upsertParams(runID string, r record.Result) (db.UpsertResultParams, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return db.UpsertResultParams{}, err
	}
	return db.UpsertResultParams{
		RunID:      runID,
		Position:   int64(r.Position),
		Identifier: r.Identifier,
		SheetRow:   int64(r.Row),
		LookedUpAt: r.Timestamp.Unix(),
		Status:     string(r.Status),
		Error:      r.Error,
		Note:       r.Note,
		Attempts:   int64(r.Attempts),
		Fields:     string(fields),
	}, nil
}

// Record stores a single result.
func (s Store) Record(ctx context.Context, r record.Result) error {
	params, err := upsertParams(s.RunID, r)
	if err != nil {
		return err
	}
	return s.qry.UpsertResult(ctx, params)
}

// Write stores every result in one transaction.
func (s Store) Write(ctx context.Context, results []record.Result) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	for _, r := range results {
		params, err := upsertParams(s.RunID, r)
		if err != nil {
			return err
		}
		err = tx.UpsertResult(ctx, params)
		if err != nil {
			return fmt.Errorf("store result %d: %w", r.Position, err)
		}
	}
	return commit()
}

// Results returns the stored results of the run ordered by position.
func (s Store) Results(ctx context.Context) ([]record.Result, error) {
	rows, err := s.qry.ListResults(ctx, s.RunID)
	if err != nil {
		return nil, err
	}

	out := make([]record.Result, len(rows))
	for i, row := range rows {
		var fields record.Fields
		err := json.Unmarshal([]byte(row.Fields), &fields)
		if err != nil {
			return nil, fmt.Errorf("decode fields of position %d: %w", row.Position, err)
		}
		out[i] = record.Result{
			Identifier: row.Identifier,
			Position:   int(row.Position),
			Row:        int(row.SheetRow),
			Timestamp:  time.Unix(row.LookedUpAt, 0).In(s.loc),
			Status:     record.Status(row.Status),
			Fields:     fields,
			Error:      row.Error,
			Note:       row.Note,
			Attempts:   int(row.Attempts),
		}
	}
	return out, nil
}
