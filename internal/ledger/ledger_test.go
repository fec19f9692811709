package ledger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func strptr(s string) *string { return &s }

func newTestLedger(t *testing.T, capacity int, opts ...Option) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "operations.json")
	opts = append(opts, WithLogger(slog.New(slog.DiscardHandler)))
	return New(path, capacity, opts...), path
}

// TestRecord_FIFOEviction verifies strict oldest-first eviction at capacity.
func TestRecord_FIFOEviction(t *testing.T) {
	t.Parallel()
	lg, _ := newTestLedger(t, 3)

	for _, path := range []string{"a.md", "b.md", "c.md", "d.md"} {
		if id := lg.Record(OpCreate, path, nil, strptr("x"), nil); id == "" {
			t.Fatalf("Record(%s) returned empty id", path)
		}
	}

	got := lg.Get(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// Most recent first; a.md was evicted.
	for i, want := range []string{"d.md", "c.md", "b.md"} {
		if got[i].Path != want {
			t.Errorf("Get()[%d].Path = %q, want %q", i, got[i].Path, want)
		}
	}

	if got := lg.Get(2); len(got) != 2 || got[0].Path != "d.md" || got[1].Path != "c.md" {
		t.Errorf("Get(2) = %+v", got)
	}
}

// TestDisabled verifies capacity 0 turns the ledger into a no-op that never
// touches the filesystem.
func TestDisabled(t *testing.T) {
	t.Parallel()
	lg, path := newTestLedger(t, 0)

	if lg.Enabled() {
		t.Error("Enabled() = true for capacity 0")
	}
	if id := lg.Record(OpDelete, "a.md", strptr("old"), nil, nil); id != "" {
		t.Errorf("Record returned id %q on a disabled ledger", id)
	}
	if got := lg.Get(0); len(got) != 0 {
		t.Errorf("Get() = %+v on a disabled ledger", got)
	}
	lg.Flush()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("backing store exists for a disabled ledger: %v", err)
	}
}

// TestNegativeCapacityDisabled verifies a negative capacity behaves like a
// disabled ledger instead of corrupting the eviction arithmetic.
func TestNegativeCapacityDisabled(t *testing.T) {
	t.Parallel()
	lg, path := newTestLedger(t, -1)

	if lg.Enabled() {
		t.Error("Enabled() = true for negative capacity")
	}
	for _, p := range []string{"a.md", "b.md"} {
		if id := lg.Record(OpCreate, p, nil, strptr("x"), nil); id != "" {
			t.Errorf("Record(%s) returned id %q", p, id)
		}
	}
	if got := lg.Get(0); len(got) != 0 {
		t.Errorf("Get() = %+v", got)
	}
	lg.Flush()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("backing store exists for a negative-capacity ledger: %v", err)
	}
}

// TestRecordCopiesMetadata verifies later caller mutations of the metadata
// map do not leak into the stored record.
func TestRecordCopiesMetadata(t *testing.T) {
	t.Parallel()
	lg, _ := newTestLedger(t, 10)

	meta := map[string]any{"overwrite": false}
	id := lg.Record(OpCreate, "a.md", nil, strptr("x"), meta)
	meta["overwrite"] = true
	meta["extra"] = "later"

	r, ok := lg.GetByID(id)
	if !ok {
		t.Fatal("record not found")
	}
	if r.Metadata["overwrite"] != false {
		t.Errorf("metadata mutated after recording: %v", r.Metadata)
	}
	if _, leaked := r.Metadata["extra"]; leaked {
		t.Errorf("metadata gained keys after recording: %v", r.Metadata)
	}

	if r2, _ := lg.GetByID(lg.Record(OpDelete, "b.md", nil, nil, nil)); r2.Metadata == nil {
		t.Error("nil caller metadata should be stored as an empty map")
	}
}

// TestPersistRoundTrip verifies records survive a restart.
func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()
	lg, path := newTestLedger(t, 10)

	id := lg.Record(OpAppend, "notes.md", strptr("before"), strptr("before\nafter"), map[string]any{"k": "v"})

	restored := New(path, 10, WithLogger(slog.New(slog.DiscardHandler)))
	got := restored.Get(0)
	if len(got) != 1 {
		t.Fatalf("expected 1 restored record, got %d", len(got))
	}
	r := got[0]
	if r.ID != id || r.Operation != OpAppend || r.Path != "notes.md" {
		t.Errorf("restored record = %+v", r)
	}
	if r.PreviousContent == nil || *r.PreviousContent != "before" {
		t.Errorf("previous content = %v", r.PreviousContent)
	}
	if r.NewContent == nil || *r.NewContent != "before\nafter" {
		t.Errorf("new content = %v", r.NewContent)
	}
	if r.Metadata["k"] != "v" {
		t.Errorf("metadata = %+v", r.Metadata)
	}
}

// TestRestartWithSmallerCapacity verifies restoration keeps only the newest
// records when the capacity shrinks across restarts.
func TestRestartWithSmallerCapacity(t *testing.T) {
	t.Parallel()
	lg, path := newTestLedger(t, 5)
	for _, p := range []string{"1.md", "2.md", "3.md", "4.md", "5.md"} {
		lg.Record(OpCreate, p, nil, strptr("x"), nil)
	}

	restored := New(path, 2, WithLogger(slog.New(slog.DiscardHandler)))
	got := restored.Get(0)
	if len(got) != 2 {
		t.Fatalf("expected 2 records after shrink, got %d", len(got))
	}
	if got[0].Path != "5.md" || got[1].Path != "4.md" {
		t.Errorf("kept the wrong records: %+v", got)
	}
}

// TestClear verifies clearing empties the ledger and removes the store.
func TestClear(t *testing.T) {
	t.Parallel()
	lg, path := newTestLedger(t, 10)
	lg.Record(OpCreate, "a.md", nil, strptr("x"), nil)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backing store missing before clear: %v", err)
	}

	lg.Clear()
	if got := lg.Get(0); len(got) != 0 {
		t.Errorf("Get() = %+v after clear", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("backing store still present after clear: %v", err)
	}
}

// TestGetByID verifies lookup by record ID.
func TestGetByID(t *testing.T) {
	t.Parallel()
	lg, _ := newTestLedger(t, 10)
	lg.Record(OpCreate, "a.md", nil, strptr("x"), nil)
	id := lg.Record(OpPatch, "b.md", strptr("x"), strptr("y"), nil)

	r, ok := lg.GetByID(id)
	if !ok || r.Path != "b.md" || r.Operation != OpPatch {
		t.Errorf("GetByID(%q) = %+v, %v", id, r, ok)
	}
	if _, ok := lg.GetByID("no-such-id"); ok {
		t.Error("GetByID returned a record for an unknown id")
	}
}

// TestFlushBatched verifies the batched policy defers persistence until an
// explicit flush.
func TestFlushBatched(t *testing.T) {
	t.Parallel()
	lg, path := newTestLedger(t, 10, WithFlushPolicy(FlushBatched))
	lg.Record(OpCreate, "a.md", nil, strptr("x"), nil)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("batched ledger persisted before Flush: %v", err)
	}

	lg.Flush()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("backing store missing after Flush: %v", err)
	}

	restored := New(path, 10, WithLogger(slog.New(slog.DiscardHandler)))
	if got := restored.Get(0); len(got) != 1 || got[0].Path != "a.md" {
		t.Errorf("restored = %+v", got)
	}
}

// TestPersistenceFailureSwallowed verifies an unwritable store never fails
// the recorded operation.
func TestPersistenceFailureSwallowed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("file, not a dir"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The store's parent "directory" is a regular file, so every write fails.
	lg := New(filepath.Join(blocker, "operations.json"), 5,
		WithLogger(slog.New(slog.DiscardHandler)))

	id := lg.Record(OpDelete, "a.md", strptr("gone"), nil, nil)
	if id == "" {
		t.Error("Record failed because persistence failed")
	}
	if got := lg.Get(0); len(got) != 1 {
		t.Errorf("in-memory state lost: %+v", got)
	}
}

// TestCorruptStore verifies a corrupt backing file starts the ledger empty
// instead of failing.
func TestCorruptStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "operations.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o600); err != nil {
		t.Fatal(err)
	}

	lg := New(path, 5, WithLogger(slog.New(slog.DiscardHandler)))
	if got := lg.Get(0); len(got) != 0 {
		t.Errorf("expected empty ledger, got %+v", got)
	}
	if id := lg.Record(OpCreate, "a.md", nil, strptr("x"), nil); id == "" {
		t.Error("Record failed after corrupt load")
	}
}
