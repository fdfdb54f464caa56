// Package model defines core data structures for relscan.
package model

import "sort"

// Entity is a named database object (table or view) with its declared
// columns in ordinal order.
type Entity struct {
	Name    string
	Columns []string
}

// Occurrence is one textual match of an entity name at a file location.
// Line and Column are 1-based.
type Occurrence struct {
	Entity  string
	File    string
	Line    int
	Column  int
	Snippet string
}

// OccurrenceKey identifies an occurrence by entity, file and line.
type OccurrenceKey struct {
	Entity string
	File   string
	Line   int
}

// Key returns the identifying key of an occurrence.
func (o Occurrence) Key() OccurrenceKey {
	return OccurrenceKey{Entity: o.Entity, File: o.File, Line: o.Line}
}

// PairKey is the canonical key for an unordered entity pair: A is always
// lexicographically <= B, so (x, y) and (y, x) map to the same key.
type PairKey struct {
	A, B string
}

// NewPairKey canonicalizes an unordered entity pair.
func NewPairKey(x, y string) PairKey {
	if x <= y {
		return PairKey{A: x, B: y}
	}
	return PairKey{A: y, B: x}
}

// ProximityInstance is one concrete pair of nearby occurrences supporting a
// relationship. LineA belongs to the pair's canonical first entity.
type ProximityInstance struct {
	File     string
	LineA    int
	LineB    int
	Distance int
}

// Relationship is the accumulated co-occurrence evidence for one entity pair.
type Relationship struct {
	Entities PairKey
	Count    int
	Files    map[string]struct{}
	// Instances holds up to a configured cap of proximity instances in
	// first-seen order. Once the cap is reached further occurrences still
	// increment Count but are not stored.
	Instances []ProximityInstance
}

// SortedFiles returns the contributing file paths in sorted order.
func (r *Relationship) SortedFiles() []string {
	files := make([]string, 0, len(r.Files))
	for f := range r.Files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Graph is the relationship graph produced by one analysis pass.
type Graph struct {
	pairs map[PairKey]*Relationship
}

// NewGraph returns an empty relationship graph.
func NewGraph() *Graph {
	return &Graph{pairs: make(map[PairKey]*Relationship)}
}

// Get returns the relationship for the pair, or nil.
func (g *Graph) Get(k PairKey) *Relationship {
	return g.pairs[k]
}

// GetOrCreate returns the relationship for the pair, creating it if absent.
func (g *Graph) GetOrCreate(k PairKey) *Relationship {
	r := g.pairs[k]
	if r == nil {
		r = &Relationship{Entities: k, Files: make(map[string]struct{})}
		g.pairs[k] = r
	}
	return r
}

// Len returns the number of relationships in the graph.
func (g *Graph) Len() int { return len(g.pairs) }

// Relationships returns all relationships, sorted by canonical pair key.
func (g *Graph) Relationships() []*Relationship {
	rels := make([]*Relationship, 0, len(g.pairs))
	for _, r := range g.pairs {
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Entities.A != rels[j].Entities.A {
			return rels[i].Entities.A < rels[j].Entities.A
		}
		return rels[i].Entities.B < rels[j].Entities.B
	})
	return rels
}

// Direction indicates which side of a column link is the source.
type Direction string

const (
	// Forward means the link's canonical A endpoint is the source.
	Forward Direction = "forward"
	// Backward means the link's canonical B endpoint is the source.
	Backward Direction = "backward"
	// Bidirectional means evidence was observed in both directions.
	// Once set it is never reverted.
	Bidirectional Direction = "bidirectional"
)

// ColumnRef identifies one endpoint of a column link.
type ColumnRef struct {
	Entity string
	Column string
}

// Less orders ColumnRefs by (Entity, Column).
func (c ColumnRef) Less(o ColumnRef) bool {
	if c.Entity != o.Entity {
		return c.Entity < o.Entity
	}
	return c.Column < o.Column
}

// LinkContext is one line of evidence supporting a column link.
type LinkContext struct {
	File string
	Line int
	Text string
}

// ColumnLink is a directed association between two column endpoints,
// inferred from same-line co-occurrence within a file. A and B are stored
// in canonical order (A <= B by entity then column); Direction records
// which endpoint the ordinal rules resolved as the source.
type ColumnLink struct {
	A, B      ColumnRef
	Direction Direction
	Count     int
	Files     map[string]struct{}
	// Contexts holds up to a configured cap of evidence lines in
	// first-seen order.
	Contexts []LinkContext
}

// Source returns the source endpoint. For bidirectional links the
// canonical A endpoint is reported.
func (l *ColumnLink) Source() ColumnRef {
	if l.Direction == Backward {
		return l.B
	}
	return l.A
}

// Target returns the target endpoint. For bidirectional links the
// canonical B endpoint is reported.
func (l *ColumnLink) Target() ColumnRef {
	if l.Direction == Backward {
		return l.A
	}
	return l.B
}

// SortedFiles returns the contributing file paths in sorted order.
func (l *ColumnLink) SortedFiles() []string {
	files := make([]string, 0, len(l.Files))
	for f := range l.Files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
