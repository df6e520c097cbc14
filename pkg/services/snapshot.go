package services

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/ekaya-inc/ekaya-grounding/pkg/abbreviations"
	"github.com/ekaya-inc/ekaya-grounding/pkg/valueindex"
)

// Snapshot is a value index together with the abbreviation rules mined from
// it. Neither is modified after the snapshot is published.
type Snapshot struct {
	Index   *valueindex.Index
	Learner *abbreviations.Learner
	BuiltAt time.Time

	tables []string
}

// NewSnapshot pairs ix and learner.
func NewSnapshot(ix *valueindex.Index, learner *abbreviations.Learner, builtAt time.Time) *Snapshot {
	seen := make(map[string]bool)
	var tables []string
	for _, e := range ix.Entries() {
		if !seen[e.Table] {
			seen[e.Table] = true
			tables = append(tables, e.Table)
		}
	}
	sort.Strings(tables)

	return &Snapshot{Index: ix, Learner: learner, BuiltAt: builtAt, tables: tables}
}

// Tables returns the distinct table names present in the index, sorted.
func (s *Snapshot) Tables() []string {
	return s.tables
}

// SnapshotHolder publishes the current snapshot. Readers always see either
// the previous or the next snapshot, never a partial one.
type SnapshotHolder struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotHolder returns an empty holder.
func NewSnapshotHolder() *SnapshotHolder {
	return &SnapshotHolder{}
}

// Load returns the current snapshot, or nil before the first build.
func (h *SnapshotHolder) Load() *Snapshot {
	return h.current.Load()
}

// Store publishes s and returns the snapshot it replaced.
func (h *SnapshotHolder) Store(s *Snapshot) *Snapshot {
	return h.current.Swap(s)
}
