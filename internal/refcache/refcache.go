// Package refcache memoizes the set of occurrences that participate in at
// least one relationship, so the derivation runs once per analysis pass.
package refcache

import (
	"log/slog"
	"sort"

	"github.com/phault/relscan/internal/index"
	"github.com/phault/relscan/internal/model"
)

// Cache is the per-pass relationship reference cache. It is either absent
// (not yet built) or built (immutable for the rest of the pass). Mutating
// the relationship graph after the cache is built does not invalidate it;
// a new pass constructs a fresh cache (or calls Reset).
//
// Callers that need the filtered view more than once must invoke
// GetOrBuild before the first consumer: correctness never depends on call
// order, but building after the first consumer forces silent
// recomputation by that consumer.
//
// Cache is not safe for concurrent use; a pass runs single-threaded.
type Cache struct {
	built  bool
	keys   map[model.OccurrenceKey]struct{}
	builds int
	logger *slog.Logger
}

// New returns an empty cache. A nil logger selects slog.Default.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{logger: logger}
}

// GetOrBuild returns the set of occurrence keys known to participate in at
// least one relationship. The first call of a pass computes the set;
// subsequent calls serve the stored set without recomputation. An empty
// graph yields an empty set, not an error.
func (c *Cache) GetOrBuild(g *model.Graph, idx *index.Index, threshold int) map[model.OccurrenceKey]struct{} {
	if c.built {
		return c.keys
	}
	c.keys = derive(g, idx, threshold)
	c.built = true
	c.builds++
	c.logger.Debug("reference cache built", "keys", len(c.keys), "builds", c.builds)
	return c.keys
}

// derive recomputes, for every occurrence, whether any other entity's
// occurrence in the same file lies within threshold lines. Only entity
// pairs present in the graph are considered, keeping the membership set
// consistent with the detector's truncation policies.
func derive(g *model.Graph, idx *index.Index, threshold int) map[model.OccurrenceKey]struct{} {
	keys := make(map[model.OccurrenceKey]struct{})
	if g == nil || g.Len() == 0 || idx == nil || threshold <= 0 {
		return keys
	}

	for _, file := range idx.Files() {
		ents := idx.Entities(file)
		for i := 0; i < len(ents); i++ {
			for j := i + 1; j < len(ents); j++ {
				if g.Get(model.NewPairKey(ents[i], ents[j])) == nil {
					continue
				}
				markPair(keys, file, ents[i], ents[j],
					idx.Lines(file, ents[i]), idx.Lines(file, ents[j]), threshold)
			}
		}
	}
	return keys
}

// markPair adds a key for every line of either entity that has a line of
// the other entity within threshold.
func markPair(keys map[model.OccurrenceKey]struct{}, file, entA, entB string, linesA, linesB []int, threshold int) {
	sort.Ints(linesA)
	sort.Ints(linesB)

	mark := func(entity string, lines, others []int) {
		lo := 0
		for _, l := range lines {
			for lo < len(others) && others[lo] < l-threshold {
				lo++
			}
			for k := lo; k < len(others) && others[k] <= l+threshold; k++ {
				if others[k] != l {
					keys[model.OccurrenceKey{Entity: entity, File: file, Line: l}] = struct{}{}
					break
				}
			}
		}
	}
	mark(entA, linesA, linesB)
	mark(entB, linesB, linesA)
}

// Contains reports whether the key is in the built set. It is a pure
// query with no side effects; calling it before the cache is built
// returns false.
func (c *Cache) Contains(k model.OccurrenceKey) bool {
	if !c.built {
		return false
	}
	_, ok := c.keys[k]
	return ok
}

// Built reports whether the set has been computed for this pass.
func (c *Cache) Built() bool { return c.built }

// Builds returns how many times the set has been computed. Used by tests
// to assert the build-once property.
func (c *Cache) Builds() int { return c.builds }

// Reset returns the cache to the absent state. Called when a new analysis
// pass begins; there is no time-based expiry.
func (c *Cache) Reset() {
	c.built = false
	c.keys = nil
}
