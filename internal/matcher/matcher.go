// Package matcher implements a multi-pattern longest-match string scanner
// built on a prefix tree.
package matcher

import "unicode"

// Match is one reported pattern occurrence. Start and End are indices into
// the scanned rune sequence; End is exclusive.
type Match struct {
	Name  string
	Start int
	End   int
}

// Len returns the match length in runes.
func (m Match) Len() int { return m.End - m.Start }

// node is one prefix-tree node. Children are keyed by lowercased rune; orig
// keeps the character as first registered so a case-sensitive scan can
// verify exact case inside the case-insensitively built tree.
type node struct {
	children map[rune]*node
	orig     rune
	terminal bool
	name     string
}

// Matcher is a prefix tree of registered patterns. The zero value is not
// usable; construct with New.
type Matcher struct {
	root  *node
	count int
}

// New returns an empty matcher.
func New() *Matcher {
	return &Matcher{root: &node{children: make(map[rune]*node)}}
}

// Register adds a pattern. Empty strings are ignored and duplicate
// registration is idempotent.
func (m *Matcher) Register(name string) {
	if name == "" {
		return
	}
	n := m.root
	for _, c := range name {
		key := unicode.ToLower(c)
		child := n.children[key]
		if child == nil {
			child = &node{children: make(map[rune]*node), orig: c}
			n.children[key] = child
		}
		n = child
	}
	if !n.terminal {
		n.terminal = true
		n.name = name
		m.count++
	}
}

// RegisterAll adds every pattern in names.
func (m *Matcher) RegisterAll(names []string) {
	for _, name := range names {
		m.Register(name)
	}
}

// Len returns the number of registered patterns.
func (m *Matcher) Len() int { return m.count }

// Scan reports the longest registered pattern starting at each position of
// s. Matches are non-overlapping and ordered by start index: after a match
// the scan resumes at its end, otherwise it advances one rune. Absence of a
// match is a normal, silent outcome.
func (m *Matcher) Scan(s string, caseSensitive bool) []Match {
	rs := []rune(s)
	var matches []Match

	i := 0
	for i < len(rs) {
		// Walk as deep as the tree allows; the last terminal node seen
		// is the longest pattern starting here.
		bestEnd := -1
		bestName := ""
		n := m.root
		for j := i; j < len(rs); j++ {
			c := rs[j]
			child := n.children[unicode.ToLower(c)]
			if child == nil {
				break
			}
			if caseSensitive && child.orig != c {
				break
			}
			n = child
			if n.terminal {
				bestEnd = j + 1
				bestName = n.name
			}
		}
		if bestEnd < 0 {
			i++
			continue
		}
		matches = append(matches, Match{Name: bestName, Start: i, End: bestEnd})
		i = bestEnd
	}

	return matches
}
