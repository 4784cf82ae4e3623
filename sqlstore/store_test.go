package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mohans/taskpool"
)

var dbSeq int

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:sqlstore_test_%d?mode=memory&cache=shared", dbSeq)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rec(id string, status taskpool.Status) taskpool.TaskRecord {
	return taskpool.TaskRecord{ID: id, Status: status, Payload: fmt.Sprintf(`{"id":%q}`, id)}
}

func TestInsertBatch_AllOrNothingOnDuplicate(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	if err := store.InsertBatch(ctx, []taskpool.TaskRecord{rec("a", taskpool.StatusPending)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := store.InsertBatch(ctx, []taskpool.TaskRecord{
		rec("b", taskpool.StatusPending),
		rec("a", taskpool.StatusPending),
	})
	if !errors.Is(err, taskpool.ErrDuplicateID) {
		t.Fatalf("want ErrDuplicateID, got %v", err)
	}
	// The batch rolled back: "b" must not exist.
	n, err := store.CountByStatus(ctx, taskpool.StatusPending)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 record after rollback, got %d", n)
	}
}

func TestInsertOne_Outcomes(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	outcome, err := store.InsertOne(ctx, rec("a", taskpool.StatusPending))
	if err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	if outcome != taskpool.Inserted {
		t.Fatalf("want Inserted, got %v", outcome)
	}
	outcome, err = store.InsertOne(ctx, rec("a", taskpool.StatusProcessing))
	if err != nil {
		t.Fatalf("InsertOne again: %v", err)
	}
	if outcome != taskpool.AlreadyExists {
		t.Fatalf("want AlreadyExists, got %v", outcome)
	}
	// The conflicting insert was a no-op: the original status stands.
	recs, err := store.ListByStatus(ctx, taskpool.StatusPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestPatchStatusBatch(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	if err := store.InsertBatch(ctx, []taskpool.TaskRecord{
		rec("a", taskpool.StatusPending),
		rec("b", taskpool.StatusPending),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := store.ListByStatus(ctx, taskpool.StatusPending, 10)

	err := store.PatchStatusBatch(ctx, []taskpool.StatusUpdate{
		{ID: "a", Status: taskpool.StatusProcessing},
		{ID: "b", Status: taskpool.StatusFailed},
	})
	if err != nil {
		t.Fatalf("PatchStatusBatch: %v", err)
	}
	if n, _ := store.CountByStatus(ctx, taskpool.StatusProcessing); n != 1 {
		t.Fatalf("want 1 PROCESSING, got %d", n)
	}
	if n, _ := store.CountByStatus(ctx, taskpool.StatusFailed); n != 1 {
		t.Fatalf("want 1 FAILED, got %d", n)
	}
	after, _ := store.ListByStatus(ctx, taskpool.StatusProcessing, 10)
	if len(after) != 1 || len(before) != 2 {
		t.Fatalf("unexpected listings")
	}
	if !after[0].UpdatedAt.After(before[0].UpdatedAt) && !after[0].UpdatedAt.Equal(before[0].UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v -> %v", before[0].UpdatedAt, after[0].UpdatedAt)
	}
}

func TestAdvanceStatusBatch_LeavesTerminalRecordsAlone(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	if err := store.InsertBatch(ctx, []taskpool.TaskRecord{
		rec("live", taskpool.StatusProcessing),
		rec("done", taskpool.StatusSuccess),
		rec("dead", taskpool.StatusFailed),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := store.AdvanceStatusBatch(ctx, []taskpool.StatusUpdate{
		{ID: "live", Status: taskpool.StatusSuccess},
		{ID: "done", Status: taskpool.StatusPending},
		{ID: "dead", Status: taskpool.StatusPending},
	})
	if err != nil {
		t.Fatalf("AdvanceStatusBatch: %v", err)
	}
	if n, _ := store.CountByStatus(ctx, taskpool.StatusPending); n != 0 {
		t.Fatalf("terminal records moved back to PENDING: %d", n)
	}
	if n, _ := store.CountByStatus(ctx, taskpool.StatusSuccess); n != 2 {
		t.Fatalf("want live record advanced and done kept, got %d SUCCESS", n)
	}
	if n, _ := store.CountByStatus(ctx, taskpool.StatusFailed); n != 1 {
		t.Fatalf("FAILED record changed, got %d FAILED", n)
	}
}

func TestListByStatus_LimitAndStableOrder(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.InsertOne(ctx, rec(fmt.Sprintf("r%d", i), taskpool.StatusPending)); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	first, err := store.ListByStatus(ctx, taskpool.StatusPending, 3)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("want 3 records, got %d", len(first))
	}
	again, err := store.ListByStatus(ctx, taskpool.StatusPending, 3)
	if err != nil {
		t.Fatalf("ListByStatus again: %v", err)
	}
	for i := range first {
		if first[i].ID != again[i].ID {
			t.Fatalf("order not stable: %v vs %v", first, again)
		}
	}
}

func TestListTerminalBefore(t *testing.T) {
	db := openTestDB(t)
	store := New(db)
	ctx := context.Background()

	if err := store.InsertBatch(ctx, []taskpool.TaskRecord{
		rec("old-success", taskpool.StatusSuccess),
		rec("old-failed", taskpool.StatusFailed),
		rec("old-pending", taskpool.StatusPending),
		rec("new-success", taskpool.StatusSuccess),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	backdated := time.Now().UTC().Add(-48 * time.Hour)
	for _, id := range []string{"old-success", "old-failed", "old-pending"} {
		if _, err := db.Exec(`UPDATE taskpool_tasks SET updated_at = ? WHERE id = ?`, backdated, id); err != nil {
			t.Fatalf("backdate %s: %v", id, err)
		}
	}

	recs, err := store.ListTerminalBefore(ctx, time.Now().UTC().Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListTerminalBefore: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 aged terminal records, got %+v", recs)
	}
	for _, r := range recs {
		if !r.Status.Terminal() {
			t.Fatalf("non-terminal record listed: %+v", r)
		}
		if r.ID == "new-success" || r.ID == "old-pending" {
			t.Fatalf("ineligible record listed: %+v", r)
		}
	}
}

func TestDelete(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	if err := store.InsertBatch(ctx, []taskpool.TaskRecord{
		rec("a", taskpool.StatusSuccess),
		rec("b", taskpool.StatusSuccess),
		rec("c", taskpool.StatusSuccess),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Delete(ctx, []string{"a", "c"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	recs, err := store.ListByStatus(ctx, taskpool.StatusSuccess, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "b" {
		t.Fatalf("unexpected survivors: %+v", recs)
	}
	// Deleting nothing is fine.
	if err := store.Delete(ctx, nil); err != nil {
		t.Fatalf("empty delete: %v", err)
	}
}

func TestStoreErrorsAreGatewayErrors(t *testing.T) {
	db := openTestDB(t)
	store := New(db)
	db.Close()

	_, err := store.CountByStatus(context.Background(), taskpool.StatusPending)
	var gerr *taskpool.GatewayError
	if !errors.As(err, &gerr) || gerr.Gateway != "store" {
		t.Fatalf("want store GatewayError, got %v", err)
	}
}
