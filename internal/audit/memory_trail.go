package audit

import (
	"sync"

	"github.com/snowbind/snowbind/internal/core"
)

// MemoryTrail keeps the trail in memory, indexed by run ID. Tests use it to
// assert what a run recorded.
type MemoryTrail struct {
	mu    sync.Mutex
	order []core.AuditEntry
	byRun map[string][]core.AuditEntry
}

var _ core.Auditor = (*MemoryTrail)(nil)

func NewMemoryTrail() *MemoryTrail {
	return &MemoryTrail{byRun: make(map[string][]core.AuditEntry)}
}

func (t *MemoryTrail) Log(entry core.AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.order = append(t.order, entry)
	t.byRun[entry.ID] = append(t.byRun[entry.ID], entry)
	return nil
}

// All returns every entry in log order.
func (t *MemoryTrail) All() []core.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.AuditEntry, len(t.order))
	copy(out, t.order)
	return out
}

// ByRun returns the entries recorded for one run, in log order.
func (t *MemoryTrail) ByRun(runID string) []core.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.byRun[runID]
	out := make([]core.AuditEntry, len(entries))
	copy(out, entries)
	return out
}

func (t *MemoryTrail) Close() error {
	return nil
}
