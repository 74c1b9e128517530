package sqlite

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Entry struct {
	Key   string
	Value []byte
}

const getEntry = `-- name: GetEntry :one
SELECT key, value FROM kv_store WHERE key = ?
`

func (q *Queries) GetEntry(ctx context.Context, key string) (Entry, error) {
	row := q.db.QueryRowContext(ctx, getEntry, key)
	var i Entry
	err := row.Scan(&i.Key, &i.Value)
	return i, err
}

const upsertEntry = `-- name: UpsertEntry :exec
INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`

type UpsertEntryParams struct {
	Key   string
	Value []byte
}

func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) error {
	_, err := q.db.ExecContext(ctx, upsertEntry, arg.Key, arg.Value)
	return err
}

const deleteEntry = `-- name: DeleteEntry :execrows
DELETE FROM kv_store WHERE key = ?
`

func (q *Queries) DeleteEntry(ctx context.Context, key string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntry, key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listKeys = `-- name: ListKeys :many
SELECT key FROM kv_store ORDER BY key
`

func (q *Queries) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
