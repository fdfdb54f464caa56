package collink

import (
	"sort"

	"github.com/phault/relscan/internal/model"
)

// linkKey is the canonical identity of a column link: the endpoint pair
// ordered by (entity, column), so the two orientations of a pair share
// one record.
type linkKey struct {
	a, b model.ColumnRef
}

func newLinkKey(x, y model.ColumnRef) linkKey {
	if y.Less(x) {
		x, y = y, x
	}
	return linkKey{a: x, b: y}
}

// Set accumulates column links keyed by canonical endpoint pair.
type Set struct {
	links       map[linkKey]*model.ColumnLink
	maxContexts int
}

// NewSet returns an empty link set. maxContexts bounds the evidence lines
// stored per link; non-positive disables the cap.
func NewSet(maxContexts int) *Set {
	return &Set{links: make(map[linkKey]*model.ColumnLink), maxContexts: maxContexts}
}

// Record adds one observation of a source→target link. The first
// observation of a pair fixes its direction; a later observation with the
// opposite source upgrades the link to bidirectional, and bidirectional
// links are never downgraded.
func (s *Set) Record(source, target model.ColumnRef, file string, line int, text string) {
	key := newLinkKey(source, target)

	dir := model.Forward
	if key.a != source {
		dir = model.Backward
	}
	// Identical endpoints (an entity linked to itself on one column)
	// have no meaningful orientation; they stay forward.
	if key.a == key.b {
		dir = model.Forward
	}

	link := s.links[key]
	if link == nil {
		link = &model.ColumnLink{
			A:         key.a,
			B:         key.b,
			Direction: dir,
			Files:     make(map[string]struct{}),
		}
		s.links[key] = link
	} else if link.Direction != model.Bidirectional && link.Direction != dir {
		link.Direction = model.Bidirectional
	}

	link.Count++
	link.Files[file] = struct{}{}
	if s.maxContexts <= 0 || len(link.Contexts) < s.maxContexts {
		link.Contexts = append(link.Contexts, model.LinkContext{File: file, Line: line, Text: text})
	}
}

// Len returns the number of distinct links.
func (s *Set) Len() int { return len(s.links) }

// Get returns the link between the two endpoints, or nil.
func (s *Set) Get(x, y model.ColumnRef) *model.ColumnLink {
	return s.links[newLinkKey(x, y)]
}

// Links returns all links sorted by canonical endpoint pair.
func (s *Set) Links() []*model.ColumnLink {
	out := make([]*model.ColumnLink, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A.Less(out[j].A)
		}
		return out[i].B.Less(out[j].B)
	})
	return out
}

// Outgoing returns the links on which entity is the source side.
// Bidirectional links count as outgoing for both endpoints.
func (s *Set) Outgoing(entity string) []*model.ColumnLink {
	return s.filter(func(l *model.ColumnLink) bool {
		if l.Direction == model.Bidirectional {
			return l.A.Entity == entity || l.B.Entity == entity
		}
		return l.Source().Entity == entity
	})
}

// Incoming returns the links on which entity is the target side.
// Bidirectional links count as incoming for both endpoints.
func (s *Set) Incoming(entity string) []*model.ColumnLink {
	return s.filter(func(l *model.ColumnLink) bool {
		if l.Direction == model.Bidirectional {
			return l.A.Entity == entity || l.B.Entity == entity
		}
		return l.Target().Entity == entity
	})
}

func (s *Set) filter(keep func(*model.ColumnLink) bool) []*model.ColumnLink {
	var out []*model.ColumnLink
	for _, l := range s.Links() {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
