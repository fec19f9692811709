// Package ledger provides a bounded, persisted audit trail of mutating vault
// operations, kept for potential rollback.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// File and directory permissions.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0600 // File permissions: rw-------
)

// OpKind is the kind of mutating operation a record captures.
type OpKind string

const (
	// OpCreate is a file creation or replacement.
	OpCreate OpKind = "create"
	// OpAppend is an append to a file.
	OpAppend OpKind = "append"
	// OpPatch is a partial edit of a file.
	OpPatch OpKind = "patch"
	// OpDelete is a file deletion.
	OpDelete OpKind = "delete"
)

// Record is a single audited operation. Records are immutable once created;
// the ledger only ever evicts them.
type Record struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Operation       OpKind         `json:"operation"`
	Path            string         `json:"path"`
	PreviousContent *string        `json:"previousContent,omitempty"`
	NewContent      *string        `json:"newContent,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// store is the persisted shape of the ledger.
type store struct {
	Operations  []Record  `json:"operations"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// FlushPolicy controls when the ledger writes its backing store.
type FlushPolicy int

const (
	// FlushWriteThrough persists after every mutating call.
	FlushWriteThrough FlushPolicy = iota
	// FlushBatched persists only on an explicit Flush call.
	FlushBatched
)

// Ledger is a bounded FIFO audit trail persisted to a single JSON file.
// A capacity of zero or less disables it entirely: nothing is recorded and
// no backing store is ever created. The in-memory state is authoritative; a persistence
// failure is logged and swallowed so that a failure to audit never fails the
// operation being audited. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	path     string
	policy   FlushPolicy
	logger   *slog.Logger
	records  []Record
}

// Option configures the ledger.
type Option func(*Ledger)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) {
		lg.logger = l
	}
}

// WithFlushPolicy sets the persistence policy.
func WithFlushPolicy(p FlushPolicy) Option {
	return func(lg *Ledger) {
		lg.policy = p
	}
}

// New creates a ledger backed by the file at path, holding at most capacity
// records. Prior state is restored from the backing store, truncated to the
// newest capacity records so the configured capacity can safely shrink
// across restarts.
func New(path string, capacity int, opts ...Option) *Ledger {
	lg := &Ledger{
		capacity: capacity,
		path:     path,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(lg)
	}

	if capacity > 0 {
		lg.load()
	}

	return lg
}

// load restores prior state from the backing store. A missing or corrupt
// store leaves the ledger empty.
func (lg *Ledger) load() {
	data, err := os.ReadFile(lg.path)
	if err != nil {
		if !os.IsNotExist(err) {
			lg.logger.Warn("failed to read ledger store", "path", lg.path, "error", err)
		}
		return
	}

	var st store
	if err := json.Unmarshal(data, &st); err != nil {
		lg.logger.Warn("ledger store is corrupt, starting empty", "path", lg.path, "error", err)
		return
	}

	records := st.Operations
	if len(records) > lg.capacity {
		records = records[len(records)-lg.capacity:]
	}
	lg.records = records
}

// MaxEntries returns the configured capacity.
func (lg *Ledger) MaxEntries() int {
	return lg.capacity
}

// Enabled reports whether the ledger records anything at all.
func (lg *Ledger) Enabled() bool {
	return lg.capacity > 0
}

// Record appends an operation and returns its generated ID, persisting the
// full sequence when the write-through policy is active. When the ledger is
// disabled it returns the empty sentinel ID immediately. The metadata map is
// copied so later caller mutations cannot alter the stored record.
func (lg *Ledger) Record(op OpKind, path string, previous, current *string, metadata map[string]any) string {
	if !lg.Enabled() {
		return ""
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	record := Record{
		ID:              uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Operation:       op,
		Path:            path,
		PreviousContent: previous,
		NewContent:      current,
		Metadata:        make(map[string]any, len(metadata)),
	}
	maps.Copy(record.Metadata, metadata)

	lg.records = append(lg.records, record)
	if len(lg.records) > lg.capacity {
		// Strict FIFO: evict the oldest.
		lg.records = lg.records[len(lg.records)-lg.capacity:]
	}

	if lg.policy == FlushWriteThrough {
		lg.persist()
	}

	return record.ID
}

// Get returns recorded operations, most recent first, truncated to limit
// when limit is positive.
func (lg *Ledger) Get(limit int) []Record {
	if !lg.Enabled() {
		return []Record{}
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	out := make([]Record, 0, len(lg.records))
	for i := len(lg.records) - 1; i >= 0; i-- {
		out = append(out, lg.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// GetByID returns the record with the given ID.
func (lg *Ledger) GetByID(id string) (Record, bool) {
	if !lg.Enabled() {
		return Record{}, false
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	for i := range lg.records {
		if lg.records[i].ID == id {
			return lg.records[i], true
		}
	}
	return Record{}, false
}

// Clear empties the ledger and removes its backing store entirely.
func (lg *Ledger) Clear() {
	if !lg.Enabled() {
		return
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.records = nil

	if err := os.Remove(lg.path); err != nil && !os.IsNotExist(err) {
		lg.logger.Warn("failed to remove ledger store", "path", lg.path, "error", err)
	}
}

// Flush persists the current sequence. It is only needed under the batched
// policy; under write-through every Record already persists.
func (lg *Ledger) Flush() {
	if !lg.Enabled() {
		return
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.persist()
}

// persist serializes the full sequence to the backing store using a temp
// file and rename, so a crash mid-write cannot corrupt the previous copy.
// Failures are logged, not raised: the in-memory ledger stays authoritative
// and the durable copy may lag. Callers must hold lg.mu.
func (lg *Ledger) persist() {
	if err := lg.write(); err != nil {
		lg.logger.Warn("failed to persist ledger", "path", lg.path, "error", err)
	}
}

func (lg *Ledger) write() error {
	if err := os.MkdirAll(filepath.Dir(lg.path), dirPerm); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	st := store{
		Operations:  lg.records,
		LastUpdated: time.Now().UTC(),
	}
	if st.Operations == nil {
		st.Operations = []Record{}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := lg.path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, lg.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
