// Package sqlstore implements the task record store on sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mohans/taskpool"
)

// Schema creates the task table. id is the content fingerprint; the primary
// key is what enforces one live record per distinct canonical payload.
const Schema = `
CREATE TABLE IF NOT EXISTS taskpool_tasks (
    id         VARCHAR(16) PRIMARY KEY,
    status     VARCHAR(16) NOT NULL,
    payload    TEXT        NOT NULL,
    updated_at DATETIME    NOT NULL
);
CREATE INDEX IF NOT EXISTS taskpool_tasks_status_idx
    ON taskpool_tasks (status, updated_at);
`

// Migrate applies Schema.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Store implements taskpool.RecordStore. Safe for concurrent use; all
// multi-row writes run in a transaction so batches apply entirely or not at
// all.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertBatch(ctx context.Context, recs []taskpool.TaskRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("insert batch", err)
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	for _, rec := range recs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO taskpool_tasks (id, status, payload, updated_at) VALUES (?, ?, ?, ?)`,
			rec.ID, string(rec.Status), rec.Payload, now)
		if err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("insert %s: %w", rec.ID, taskpool.ErrDuplicateID)
			}
			return storeErr("insert batch", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("insert batch", err)
	}
	return nil
}

func (s *Store) InsertOne(ctx context.Context, rec taskpool.TaskRecord) (taskpool.UpsertOutcome, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO taskpool_tasks (id, status, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, string(rec.Status), rec.Payload, time.Now().UTC())
	if err != nil {
		return taskpool.AlreadyExists, storeErr("insert one", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return taskpool.AlreadyExists, storeErr("insert one", err)
	}
	if n == 0 {
		return taskpool.AlreadyExists, nil
	}
	return taskpool.Inserted, nil
}

func (s *Store) PatchStatus(ctx context.Context, id string, status taskpool.Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE taskpool_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return storeErr("patch status", err)
	}
	return nil
}

func (s *Store) PatchStatusBatch(ctx context.Context, updates []taskpool.StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("patch status batch", err)
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE taskpool_tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(u.Status), now, u.ID); err != nil {
			return storeErr("patch status batch", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("patch status batch", err)
	}
	return nil
}

func (s *Store) AdvanceStatusBatch(ctx context.Context, updates []taskpool.StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("advance status batch", err)
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE taskpool_tasks SET status = ?, updated_at = ?
			 WHERE id = ? AND status NOT IN (?, ?)`,
			string(u.Status), now, u.ID,
			string(taskpool.StatusSuccess), string(taskpool.StatusFailed)); err != nil {
			return storeErr("advance status batch", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("advance status batch", err)
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status taskpool.Status, limit int) ([]taskpool.TaskRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, payload, updated_at FROM taskpool_tasks
		 WHERE status = ? ORDER BY updated_at, id LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, storeErr("list by status", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) CountByStatus(ctx context.Context, status taskpool.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM taskpool_tasks WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, storeErr("count by status", err)
	}
	return n, nil
}

func (s *Store) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]taskpool.TaskRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, payload, updated_at FROM taskpool_tasks
		 WHERE status IN (?, ?) AND updated_at < ?
		 ORDER BY updated_at, id LIMIT ?`,
		string(taskpool.StatusSuccess), string(taskpool.StatusFailed), cutoff.UTC(), limit)
	if err != nil {
		return nil, storeErr("list terminal", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM taskpool_tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return storeErr("delete", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]taskpool.TaskRecord, error) {
	var recs []taskpool.TaskRecord
	for rows.Next() {
		var rec taskpool.TaskRecord
		var status string
		if err := rows.Scan(&rec.ID, &status, &rec.Payload, &rec.UpdatedAt); err != nil {
			return nil, storeErr("scan", err)
		}
		rec.Status = taskpool.Status(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan", err)
	}
	return recs, nil
}

// isDuplicate checks the sqlite result code instead of matching error text.
func isDuplicate(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func storeErr(op string, err error) error {
	return &taskpool.GatewayError{Gateway: "store", Op: op, Err: err}
}
