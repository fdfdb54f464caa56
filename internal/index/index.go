// Package index groups raw occurrence records by file and entity.
package index

import (
	"github.com/phault/relscan/internal/model"
)

// fileEntry holds the occurrences recorded for one file.
type fileEntry struct {
	lines       map[string][]int // entity -> lines, in insertion order
	entityOrder []string         // entities in discovery order
	occs        []model.Occurrence
}

// Index is an occurrence index: occurrences grouped by file, then entity.
// Occurrences are immutable once added; the index is filled during the
// collection stage of a pass and read-only afterwards.
type Index struct {
	files     map[string]*fileEntry
	fileOrder []string // files in first-seen order
	total     int
}

// New returns an empty index.
func New() *Index {
	return &Index{files: make(map[string]*fileEntry)}
}

// Add records one occurrence. Records with an empty entity or file are
// ignored.
func (x *Index) Add(o model.Occurrence) {
	if o.Entity == "" || o.File == "" {
		return
	}
	fe := x.files[o.File]
	if fe == nil {
		fe = &fileEntry{lines: make(map[string][]int)}
		x.files[o.File] = fe
		x.fileOrder = append(x.fileOrder, o.File)
	}
	if _, seen := fe.lines[o.Entity]; !seen {
		fe.entityOrder = append(fe.entityOrder, o.Entity)
	}
	fe.lines[o.Entity] = append(fe.lines[o.Entity], o.Line)
	fe.occs = append(fe.occs, o)
	x.total++
}

// AddAll records every occurrence in occs.
func (x *Index) AddAll(occs []model.Occurrence) {
	for _, o := range occs {
		x.Add(o)
	}
}

// Len returns the total number of recorded occurrences.
func (x *Index) Len() int { return x.total }

// Files returns the indexed file paths in first-seen order.
func (x *Index) Files() []string {
	out := make([]string, len(x.fileOrder))
	copy(out, x.fileOrder)
	return out
}

// Entities returns the distinct entities recorded for file, in discovery
// order. Returns nil for an unknown file.
func (x *Index) Entities(file string) []string {
	fe := x.files[file]
	if fe == nil {
		return nil
	}
	out := make([]string, len(fe.entityOrder))
	copy(out, fe.entityOrder)
	return out
}

// Lines returns the line numbers at which entity occurs in file, in
// insertion order. Returns nil when there are none.
func (x *Index) Lines(file, entity string) []int {
	fe := x.files[file]
	if fe == nil {
		return nil
	}
	lines := fe.lines[entity]
	if lines == nil {
		return nil
	}
	out := make([]int, len(lines))
	copy(out, lines)
	return out
}

// Occurrences returns the occurrences recorded for file in insertion order.
func (x *Index) Occurrences(file string) []model.Occurrence {
	fe := x.files[file]
	if fe == nil {
		return nil
	}
	out := make([]model.Occurrence, len(fe.occs))
	copy(out, fe.occs)
	return out
}
