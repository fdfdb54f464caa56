// Package collink resolves column-level links between entities by
// re-scanning files in which multiple known entities appear.
package collink

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/phault/relscan/internal/index"
	"github.com/phault/relscan/internal/matcher"
	"github.com/phault/relscan/internal/model"
)

const (
	// DefaultMaxContexts bounds the evidence lines stored per link.
	DefaultMaxContexts = 20

	// DefaultStreamSize is the file size at which resolution switches
	// from a full read to bounded-memory line streaming. The two paths
	// produce identical results.
	DefaultStreamSize = 4 * 1024 * 1024

	maxContextLen = 200
)

// commentPrefixes marks trivial lines skipped as a cheap precision filter.
// Purely textual; no language parsing is attempted.
var commentPrefixes = []string{"--", "//", "#", "/*", "*", ";"}

// Options configures a Resolver.
type Options struct {
	// MaxContexts caps evidence lines stored per link. Zero selects the
	// default; negative disables the cap.
	MaxContexts int

	// StreamSize is the size threshold for the streaming read path.
	// Zero selects the default.
	StreamSize int64

	// Progress receives advisory messages. May be nil.
	Progress func(string)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Resolver pairs column matches across entities within single files and
// assigns each link a direction from the columns' declared ordinals.
type Resolver struct {
	columns  map[string][]string       // entity -> declared columns, ordinal order
	ordinals map[string]map[string]int // entity -> lowercased column -> ordinal
	opts     Options
	logger   *slog.Logger
}

// New builds a resolver from the vocabulary. Entities without column
// metadata are excluded here; they still participate in proximity
// detection upstream.
func New(entities []model.Entity, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		columns:  make(map[string][]string),
		ordinals: make(map[string]map[string]int),
		opts:     opts,
		logger:   logger,
	}
	for _, e := range entities {
		if e.Name == "" || len(e.Columns) == 0 {
			continue
		}
		r.columns[e.Name] = e.Columns
		ords := make(map[string]int, len(e.Columns))
		for i, c := range e.Columns {
			key := strings.ToLower(c)
			if _, dup := ords[key]; !dup {
				ords[key] = i
			}
		}
		r.ordinals[e.Name] = ords
	}
	return r
}

// Resolve scans every indexed file containing two or more known entities
// with column metadata and returns the accumulated link set. Files that
// cannot be read are skipped with a logged warning.
func (r *Resolver) Resolve(root string, idx *index.Index) *Set {
	maxContexts := r.opts.MaxContexts
	if maxContexts == 0 {
		maxContexts = DefaultMaxContexts
	}
	set := NewSet(maxContexts)

	if idx == nil {
		return set
	}

	streamSize := r.opts.StreamSize
	if streamSize <= 0 {
		streamSize = DefaultStreamSize
	}

	for _, file := range idx.Files() {
		present := r.presentEntities(idx.Entities(file))
		if len(present) < 2 {
			continue
		}

		fm, owners := r.fileMatcher(present)

		abs := filepath.Join(root, filepath.FromSlash(file))
		if err := r.resolveFile(set, fm, owners, abs, file, streamSize); err != nil {
			r.logger.Warn("skipping file in column-link resolution", "file", file, "error", err)
			if r.opts.Progress != nil {
				r.opts.Progress(fmt.Sprintf("skipped %s: %v", file, err))
			}
		}
	}

	return set
}

// presentEntities filters the file's entities down to those with column
// metadata, preserving discovery order.
func (r *Resolver) presentEntities(ents []string) []string {
	var present []string
	for _, e := range ents {
		if _, ok := r.columns[e]; ok {
			present = append(present, e)
		}
	}
	return present
}

// fileMatcher builds a combined matcher over all columns of the entities
// present in one file, plus the lowercased-column ownership map scoped to
// those entities. File scoping prevents false links to entities absent
// from the file.
func (r *Resolver) fileMatcher(present []string) (*matcher.Matcher, map[string][]string) {
	fm := matcher.New()
	owners := make(map[string][]string)
	for _, e := range present {
		for _, c := range r.columns[e] {
			fm.Register(c)
			key := strings.ToLower(c)
			owners[key] = append(owners[key], e)
		}
	}
	return fm, owners
}

// resolveFile feeds the file's lines through processLine. Small files are
// read whole; files at or above streamSize are streamed line by line.
func (r *Resolver) resolveFile(set *Set, fm *matcher.Matcher, owners map[string][]string, abs, rel string, streamSize int64) error {
	fi, err := os.Stat(abs)
	if err != nil {
		return err
	}

	if fi.Size() < streamSize {
		data, err := os.ReadFile(abs)
		if err != nil {
			return err
		}
		for i, line := range strings.Split(string(data), "\n") {
			r.processLine(set, fm, owners, rel, i+1, line)
		}
		return nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		r.processLine(set, fm, owners, rel, lineNo, sc.Text())
	}
	return sc.Err()
}

// processLine records a link for every pair of distinct column matches on
// a non-trivial line, for every owning entity combination present in the
// file.
func (r *Resolver) processLine(set *Set, fm *matcher.Matcher, owners map[string][]string, file string, lineNo int, line string) {
	trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
	if trimmed == "" || isComment(trimmed) {
		return
	}

	matches := fm.Scan(trimmed, false)
	if len(matches) < 2 {
		return
	}

	context := truncate(trimmed, maxContextLen)

	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			r.recordPair(set, owners, matches[i].Name, matches[j].Name, file, lineNo, context)
		}
	}
}

// recordPair resolves every owner combination for one match pair. A
// shared column name owned by two entities links those entities; the same
// entity owning both matches yields a valid self link. The two
// orientations of a shared-column pair collapse onto one canonical key,
// so each is recorded once per match pair.
func (r *Resolver) recordPair(set *Set, owners map[string][]string, colA, colB, file string, lineNo int, context string) {
	ownersA := owners[strings.ToLower(colA)]
	ownersB := owners[strings.ToLower(colB)]

	seen := make(map[linkKey]struct{})
	for _, ea := range ownersA {
		for _, eb := range ownersB {
			source := model.ColumnRef{Entity: ea, Column: colA}
			target := model.ColumnRef{Entity: eb, Column: colB}
			if !r.forward(ea, colA, eb, colB) {
				source, target = target, source
			}
			key := newLinkKey(source, target)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			set.Record(source, target, file, lineNo, context)
		}
	}
}

// forward reports whether (ea, ca) is the source side against (eb, cb):
// lower ordinal wins, then shorter entity name, then the lexicographically
// earlier entity name. The chain is a total order, so resolution is
// deterministic.
func (r *Resolver) forward(ea, ca, eb, cb string) bool {
	oa := r.ordinals[ea][strings.ToLower(ca)]
	ob := r.ordinals[eb][strings.ToLower(cb)]
	if oa != ob {
		return oa < ob
	}
	if len(ea) != len(eb) {
		return len(ea) < len(eb)
	}
	return ea <= eb
}

// truncate cuts s to at most max bytes on a rune boundary, so truncation
// never produces invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isComment(trimmed string) bool {
	for _, p := range commentPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}
