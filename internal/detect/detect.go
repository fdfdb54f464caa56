// Package detect turns per-file occurrence lists into a proximity-based
// relationship graph.
package detect

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/phault/relscan/internal/index"
	"github.com/phault/relscan/internal/model"
)

// Default heuristic constants. Both were chosen empirically; the right
// values are workload-dependent, which is why Options exposes them.
const (
	DefaultFileFanoutGuard = 50
	DefaultMaxFileEntities = 20
	DefaultMaxInstances    = 100
)

// Options tunes the detector's truncation heuristics. Zero values select
// the defaults; a negative value disables the corresponding limit.
type Options struct {
	// FileFanoutGuard skips any file with more distinct entities than
	// this. Such files are treated as generated or boilerplate: they
	// would dominate runtime without adding signal. Results may be
	// incomplete for very dense files.
	FileFanoutGuard int

	// MaxFileEntities caps the distinct entities considered for pairwise
	// comparison within one file, in discovery order. Entities beyond
	// the cap are not compared to each other.
	MaxFileEntities int

	// MaxInstances caps the proximity instances stored per pair.
	MaxInstances int

	// Progress receives advisory messages about truncation and skip
	// events. May be nil.
	Progress func(string)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (o Options) fanoutGuard() int {
	if o.FileFanoutGuard == 0 {
		return DefaultFileFanoutGuard
	}
	return o.FileFanoutGuard
}

func (o Options) maxEntities() int {
	if o.MaxFileEntities == 0 {
		return DefaultMaxFileEntities
	}
	return o.MaxFileEntities
}

func (o Options) maxInstances() int {
	if o.MaxInstances == 0 {
		return DefaultMaxInstances
	}
	return o.MaxInstances
}

func (o Options) advise(msg string) {
	if o.Progress != nil {
		o.Progress(msg)
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Detect builds the relationship graph for one analysis pass: every
// unordered entity pair whose occurrences lie within threshold lines of
// each other in the same file. Malformed or empty inputs contribute
// nothing; an unexpected failure is returned as an error for the pass
// boundary to downgrade, never panicked out of.
func Detect(idx *index.Index, threshold int, opts Options) (g *model.Graph, err error) {
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = fmt.Errorf("relationship detection: %v", r)
		}
	}()

	g = model.NewGraph()
	if idx == nil || threshold <= 0 {
		return g, nil
	}

	guard := opts.fanoutGuard()
	capEnts := opts.maxEntities()
	maxInst := opts.maxInstances()

	for _, file := range idx.Files() {
		ents := idx.Entities(file)
		if guard > 0 && len(ents) > guard {
			opts.logger().Debug("skipping high-fanout file", "file", file, "entities", len(ents))
			opts.advise(fmt.Sprintf("skipped %s: %d distinct entities exceeds guard (%d); results may be incomplete", file, len(ents), guard))
			continue
		}
		if capEnts > 0 && len(ents) > capEnts {
			opts.advise(fmt.Sprintf("%s: comparing first %d of %d entities; results may be incomplete", file, capEnts, len(ents)))
			ents = ents[:capEnts]
		}

		for i := 0; i < len(ents); i++ {
			for j := i + 1; j < len(ents); j++ {
				comparePair(g, file, ents[i], ents[j],
					idx.Lines(file, ents[i]), idx.Lines(file, ents[j]),
					threshold, maxInst)
			}
		}
	}

	return g, nil
}

// comparePair sweeps the two sorted line lists and records every pair of
// lines with 0 < |la-lb| <= threshold as one occurrence of the
// relationship.
func comparePair(g *model.Graph, file, entA, entB string, linesA, linesB []int, threshold, maxInst int) {
	if len(linesA) == 0 || len(linesB) == 0 {
		return
	}
	sort.Ints(linesA)
	sort.Ints(linesB)

	key := model.NewPairKey(entA, entB)

	lo := 0
	for _, la := range linesA {
		for lo < len(linesB) && linesB[lo] < la-threshold {
			lo++
		}
		// Lines are sorted: once a candidate exceeds the upper bound,
		// all subsequent candidates do too.
		for k := lo; k < len(linesB) && linesB[k] <= la+threshold; k++ {
			lb := linesB[k]
			d := la - lb
			if d < 0 {
				d = -d
			}
			if d == 0 {
				continue
			}
			rel := g.GetOrCreate(key)
			rel.Count++
			rel.Files[file] = struct{}{}
			if maxInst <= 0 || len(rel.Instances) < maxInst {
				l1, l2 := la, lb
				if key.A != entA {
					l1, l2 = lb, la
				}
				rel.Instances = append(rel.Instances, model.ProximityInstance{
					File: file, LineA: l1, LineB: l2, Distance: d,
				})
			}
		}
	}
}
