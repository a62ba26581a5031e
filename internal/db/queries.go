package db

import (
	"context"
)

const createRun = `
insert into run (id, created_at, transport, total, input)
values (?, ?, ?, ?, ?)
`

type CreateRunParams struct {
	ID        string
	CreatedAt int64
	Transport string
	Total     int64
	Input     string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.ID,
		arg.CreatedAt,
		arg.Transport,
		arg.Total,
		arg.Input,
	)
	return err
}

const getRun = `
select id, created_at, transport, total, input from run where id = ?
`

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	row := q.db.QueryRowContext(ctx, getRun, id)
	var i Run
	err := row.Scan(
		&i.ID,
		&i.CreatedAt,
		&i.Transport,
		&i.Total,
		&i.Input,
	)
	return i, err
}

const listRuns = `
select id, created_at, transport, total, input from run order by created_at desc
`

func (q *Queries) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.CreatedAt,
			&i.Transport,
			&i.Total,
			&i.Input,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertResult = `
insert into result (
    run_id, position, identifier, sheet_row, looked_up_at,
    status, error, note, attempts, fields
)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (run_id, position) do update set
    identifier = excluded.identifier,
    sheet_row = excluded.sheet_row,
    looked_up_at = excluded.looked_up_at,
    status = excluded.status,
    error = excluded.error,
    note = excluded.note,
    attempts = excluded.attempts,
    fields = excluded.fields
`

type UpsertResultParams struct {
	RunID      string
	Position   int64
	Identifier string
	SheetRow   int64
	LookedUpAt int64
	Status     string
	Error      string
	Note       string
	Attempts   int64
	Fields     string
}

func (q *Queries) UpsertResult(ctx context.Context, arg UpsertResultParams) error {
	_, err := q.db.ExecContext(ctx, upsertResult,
		arg.RunID,
		arg.Position,
		arg.Identifier,
		arg.SheetRow,
		arg.LookedUpAt,
		arg.Status,
		arg.Error,
		arg.Note,
		arg.Attempts,
		arg.Fields,
	)
	return err
}

const listResults = `
select run_id, position, identifier, sheet_row, looked_up_at, status, error, note, attempts, fields from result where run_id = ? order by position asc
`

func (q *Queries) ListResults(ctx context.Context, runID string) ([]Result, error) {
	rows, err := q.db.QueryContext(ctx, listResults, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Result
	for rows.Next() {
		var i Result
		if err := rows.Scan(
			&i.RunID,
			&i.Position,
			&i.Identifier,
			&i.SheetRow,
			&i.LookedUpAt,
			&i.Status,
			&i.Error,
			&i.Note,
			&i.Attempts,
			&i.Fields,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteRun = `
delete from run where id = ?
`

func (q *Queries) DeleteRun(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteRun, id)
	return err
}
