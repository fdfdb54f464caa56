// Package pass owns the per-run state of one analysis pass and fixes the
// stage ordering: collection, detection, cache build, link resolution.
package pass

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phault/relscan/internal/collink"
	"github.com/phault/relscan/internal/detect"
	"github.com/phault/relscan/internal/index"
	"github.com/phault/relscan/internal/model"
	"github.com/phault/relscan/internal/refcache"
	"github.com/phault/relscan/internal/scan"
)

// Progress receives human-readable status messages at coarse milestones.
// Purely advisory; no business logic depends on it.
type Progress func(msg string)

// Options configures one analysis pass.
type Options struct {
	// Threshold is the maximum line distance for a proximity
	// relationship.
	Threshold int

	Scan   scan.Options
	Detect detect.Options
	Link   collink.Options

	Progress Progress
	Logger   *slog.Logger
}

// Pass is one complete analysis run. All per-pass state lives here;
// starting a new pass means constructing a new Pass, never mutating
// hidden module state. A pass is single-threaded: stages run in order and
// are not safe to call concurrently.
type Pass struct {
	ID       uuid.UUID
	Started  time.Time
	Entities []model.Entity

	Index *index.Index
	Graph *model.Graph
	Cache *refcache.Cache
	Links *collink.Set

	opts   Options
	logger *slog.Logger
}

// New constructs a fresh pass over the given vocabulary.
func New(entities []model.Entity, opts Options) *Pass {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Scan.Logger == nil {
		opts.Scan.Logger = logger
	}
	if opts.Detect.Logger == nil {
		opts.Detect.Logger = logger
	}
	if opts.Link.Logger == nil {
		opts.Link.Logger = logger
	}
	if opts.Progress != nil {
		if opts.Scan.Progress == nil {
			opts.Scan.Progress = opts.Progress
		}
		if opts.Detect.Progress == nil {
			opts.Detect.Progress = opts.Progress
		}
		if opts.Link.Progress == nil {
			opts.Link.Progress = opts.Progress
		}
	}

	return &Pass{
		ID:       uuid.New(),
		Started:  time.Now(),
		Entities: entities,
		Index:    index.New(),
		Graph:    model.NewGraph(),
		Cache:    refcache.New(logger),
		Links:    collink.NewSet(resolveMaxContexts(opts.Link)),
		opts:     opts,
		logger:   logger,
	}
}

func resolveMaxContexts(o collink.Options) int {
	if o.MaxContexts == 0 {
		return collink.DefaultMaxContexts
	}
	return o.MaxContexts
}

// Threshold returns the pass's proximity threshold.
func (p *Pass) Threshold() int { return p.opts.Threshold }

// Collect runs the occurrence-collection stage over root.
func (p *Pass) Collect(root string) error {
	names := make([]string, 0, len(p.Entities))
	for _, e := range p.Entities {
		names = append(names, e.Name)
	}

	s, err := scan.New(names, p.opts.Scan)
	if err != nil {
		return err
	}

	occs, err := s.Collect(root)
	if err != nil {
		return fmt.Errorf("collecting occurrences: %w", err)
	}
	p.Index.AddAll(occs)
	p.logger.Info("occurrences collected", "pass", p.ID, "occurrences", p.Index.Len())
	return nil
}

// Detect runs the relationship-detection stage. A detection failure
// downgrades the pass to an empty graph instead of aborting it: the
// occurrence data collected so far is preserved.
func (p *Pass) Detect() {
	g, err := detect.Detect(p.Index, p.opts.Threshold, p.opts.Detect)
	if err != nil {
		p.logger.Warn("relationship detection failed; continuing with no relationships", "pass", p.ID, "error", err)
		if p.opts.Progress != nil {
			p.opts.Progress("relationship detection failed; no relationships reported")
		}
		g = model.NewGraph()
	}
	p.Graph = g
	p.logger.Info("relationships detected", "pass", p.ID, "relationships", g.Len())
}

// References returns the set of occurrence keys that participate in at
// least one relationship, building the cache on first call. Call this
// before the first consumer of the filtered view; later calls within the
// pass are O(1).
func (p *Pass) References() map[model.OccurrenceKey]struct{} {
	return p.Cache.GetOrBuild(p.Graph, p.Index, p.opts.Threshold)
}

// ResolveLinks runs the column-link resolution stage over root.
func (p *Pass) ResolveLinks(root string) {
	r := collink.New(p.Entities, p.opts.Link)
	p.Links = r.Resolve(root, p.Index)
	p.logger.Info("column links resolved", "pass", p.ID, "links", p.Links.Len())
}
