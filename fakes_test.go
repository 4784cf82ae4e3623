package taskpool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// In-memory gateways for fault injection. The integration test wires the
// real sqlite/redis implementations instead.

type fakeStore struct {
	mu    sync.Mutex
	recs  map[string]TaskRecord
	order []string

	insertBatchCalls int
	insertOneCalls   int
	listLimits       []int

	failInsertBatch error
	failPatch       error
	failList        error
	failDelete      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]TaskRecord)}
}

func (f *fakeStore) InsertBatch(ctx context.Context, recs []TaskRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertBatchCalls++
	if f.failInsertBatch != nil {
		return f.failInsertBatch
	}
	for _, rec := range recs {
		if _, ok := f.recs[rec.ID]; ok {
			return fmt.Errorf("insert %s: %w", rec.ID, ErrDuplicateID)
		}
	}
	for _, rec := range recs {
		f.put(rec)
	}
	return nil
}

func (f *fakeStore) InsertOne(ctx context.Context, rec TaskRecord) (UpsertOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertOneCalls++
	if _, ok := f.recs[rec.ID]; ok {
		return AlreadyExists, nil
	}
	f.put(rec)
	return Inserted, nil
}

func (f *fakeStore) put(rec TaskRecord) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	f.recs[rec.ID] = rec
	f.order = append(f.order, rec.ID)
}

func (f *fakeStore) PatchStatus(ctx context.Context, id string, status Status) error {
	return f.PatchStatusBatch(ctx, []StatusUpdate{{ID: id, Status: status}})
}

func (f *fakeStore) PatchStatusBatch(ctx context.Context, updates []StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPatch != nil {
		return f.failPatch
	}
	for _, u := range updates {
		rec, ok := f.recs[u.ID]
		if !ok {
			continue
		}
		rec.Status = u.Status
		rec.UpdatedAt = time.Now().UTC()
		f.recs[u.ID] = rec
	}
	return nil
}

func (f *fakeStore) AdvanceStatusBatch(ctx context.Context, updates []StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPatch != nil {
		return f.failPatch
	}
	for _, u := range updates {
		rec, ok := f.recs[u.ID]
		if !ok || rec.Status.Terminal() {
			continue
		}
		rec.Status = u.Status
		rec.UpdatedAt = time.Now().UTC()
		f.recs[u.ID] = rec
	}
	return nil
}

func (f *fakeStore) ListByStatus(ctx context.Context, status Status, limit int) ([]TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLimits = append(f.listLimits, limit)
	if f.failList != nil {
		return nil, f.failList
	}
	var out []TaskRecord
	for _, id := range f.order {
		rec, ok := f.recs[id]
		if !ok || rec.Status != status {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.recs {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	var out []TaskRecord
	for _, id := range f.order {
		rec, ok := f.recs[id]
		if !ok || !rec.Status.Terminal() || !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	for _, id := range ids {
		delete(f.recs, id)
	}
	return nil
}

func (f *fakeStore) status(id string) (Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	return rec.Status, ok
}

func (f *fakeStore) backdate(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recs[id]
	rec.UpdatedAt = at
	f.recs[id] = rec
}

type fakeBroker struct {
	mu        sync.Mutex
	depth     int
	published [][]string // one element per Publish call
	priority  []int
	failAfter int // publish calls before failing; -1 never fails
}

func newFakeBroker(depth int) *fakeBroker {
	return &fakeBroker{depth: depth, failAfter: -1}
}

func (f *fakeBroker) Publish(ctx context.Context, payloads []string, priority int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.published) >= f.failAfter {
		return &GatewayError{Gateway: "broker", Op: "publish", Err: context.DeadlineExceeded}
	}
	batch := make([]string, len(payloads))
	copy(batch, payloads)
	f.published = append(f.published, batch)
	f.priority = append(f.priority, priority)
	return nil
}

func (f *fakeBroker) Depth(ctx context.Context) int { return f.depth }

func (f *fakeBroker) Peek(ctx context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return "", false, nil
	}
	return f.published[0][0], true, nil
}

func (f *fakeBroker) publishedPayloads() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool)
	for _, batch := range f.published {
		for _, p := range batch {
			out[p] = true
		}
	}
	return out
}

type fakeArchive struct {
	mu            sync.Mutex
	set           map[string]bool
	containsCalls int
	failContains  error
	failAdd       error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{set: make(map[string]bool)}
}

func (f *fakeArchive) ContainsMany(ctx context.Context, ids []string) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containsCalls++
	if f.failContains != nil {
		return nil, f.failContains
	}
	out := make([]bool, len(ids))
	for i, id := range ids {
		out[i] = f.set[id]
	}
	return out, nil
}

func (f *fakeArchive) AddMany(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return f.failAdd
	}
	for _, id := range ids {
		f.set[id] = true
	}
	return nil
}

func (f *fakeArchive) contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set[id]
}

type fakeSource struct {
	mu        sync.Mutex
	sigs      []Signal
	acked     []string
	failFetch error
	failAck   error
}

func (f *fakeSource) Fetch(ctx context.Context, limit int) ([]Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch != nil {
		return nil, f.failFetch
	}
	if limit > 0 && len(f.sigs) > limit {
		return append([]Signal(nil), f.sigs[:limit]...), nil
	}
	return append([]Signal(nil), f.sigs...), nil
}

func (f *fakeSource) Ack(ctx context.Context, entryIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAck != nil {
		return f.failAck
	}
	f.acked = append(f.acked, entryIDs...)
	remaining := f.sigs[:0]
	for _, sig := range f.sigs {
		keep := true
		for _, id := range entryIDs {
			if sig.EntryID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, sig)
		}
	}
	f.sigs = remaining
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(ctx context.Context, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}
