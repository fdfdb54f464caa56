// Package scan discovers code files under a root and produces the raw
// occurrence feed by matching the entity vocabulary against file contents.
package scan

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/phault/relscan/internal/matcher"
	"github.com/phault/relscan/internal/model"
)

const (
	// DefaultMaxFileSize skips files larger than 1 MB.
	DefaultMaxFileSize = 1_000_000

	// progressEvery is how many files pass between progress ticks.
	progressEvery = 100

	// maxSnippetLen bounds the context snippet stored per occurrence.
	maxSnippetLen = 200
)

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	"target":        {},
	"vendor":        {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
}

// codeExtensions is the default allowlist of file types scanned when no
// include patterns are configured.
var codeExtensions = map[string]struct{}{
	".sql": {}, ".py": {}, ".java": {}, ".js": {}, ".ts": {},
	".php": {}, ".pl": {}, ".sh": {}, ".bat": {}, ".cmd": {},
	".ps1": {}, ".c": {}, ".cpp": {}, ".h": {}, ".cs": {},
	".vb": {}, ".rb": {}, ".go": {}, ".rs": {}, ".kt": {},
	".scala": {}, ".al": {}, ".xml": {}, ".json": {}, ".yaml": {}, ".yml": {},
}

// Options configures a Scanner.
type Options struct {
	// Include restricts scanning to files matching at least one glob
	// (matched against the root-relative path). Empty means the default
	// code-extension allowlist applies instead.
	Include []string

	// Exclude drops files matching any glob. Applied after Include.
	Exclude []string

	// MaxFileSize skips larger files with a warning. Zero selects
	// DefaultMaxFileSize; negative disables the limit.
	MaxFileSize int64

	// CaseSensitive matches entity names exactly instead of
	// case-insensitively.
	CaseSensitive bool

	// Workers bounds concurrent file scanning. Zero selects GOMAXPROCS.
	Workers int

	// Progress receives coarse status messages. May be nil.
	Progress func(string)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Scanner matches a fixed vocabulary of entity names against files.
type Scanner struct {
	m       *matcher.Matcher
	include []glob.Glob
	exclude []glob.Glob
	opts    Options
	logger  *slog.Logger
}

// New builds a scanner for the given entity names. Glob patterns are
// compiled eagerly so malformed patterns fail before any file is touched.
func New(names []string, opts Options) (*Scanner, error) {
	m := matcher.New()
	m.RegisterAll(names)

	include, err := compileGlobs(opts.Include)
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	exclude, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude pattern: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{m: m, include: include, exclude: exclude, opts: opts, logger: logger}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Discover returns the root-relative paths of scannable files under root,
// sorted. Hidden files, symlinks, the skip-dir set and gitignored paths
// are excluded.
func (s *Scanner) Discover(root string) ([]string, error) {
	gi := loadGitignore(root)

	var results []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A missing or unreadable root fails the whole walk;
			// errors below it skip just that entry.
			if path == root {
				return err
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if !s.wantFile(rel) {
			return nil
		}

		results = append(results, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(results)
	return results, nil
}

func (s *Scanner) wantFile(rel string) bool {
	if len(s.include) > 0 {
		ok := false
		for _, g := range s.include {
			if g.Match(rel) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	} else {
		ext := strings.ToLower(filepath.Ext(rel))
		if _, ok := codeExtensions[ext]; !ok {
			return false
		}
	}
	for _, g := range s.exclude {
		if g.Match(rel) {
			return false
		}
	}
	return true
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// Collect discovers files under root and scans each for vocabulary
// occurrences. Files are scanned in parallel; per-file results are merged
// in discovery order afterwards, so the returned feed is deterministic.
// Unreadable and oversized files are skipped with a warning.
func (s *Scanner) Collect(root string) ([]model.Occurrence, error) {
	files, err := s.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	s.progress(fmt.Sprintf("scanning %d files under %s", len(files), root))

	maxSize := s.opts.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	workers := s.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	perFile := make([][]model.Occurrence, len(files))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)
	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			abs := filepath.Join(root, filepath.FromSlash(rel))

			if maxSize > 0 {
				if fi, err := os.Stat(abs); err == nil && fi.Size() > maxSize {
					s.logger.Warn("skipping oversized file", "file", rel, "size", fi.Size())
					return nil
				}
			}

			occs, err := s.scanFile(abs, rel)
			if err != nil {
				s.logger.Warn("skipping unreadable file", "file", rel, "error", err)
				return nil
			}
			perFile[i] = occs

			if n := done.Add(1); n%progressEvery == 0 {
				s.progress(fmt.Sprintf("scanned %d/%d files", n, len(files)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []model.Occurrence
	for _, occs := range perFile {
		all = append(all, occs...)
	}

	s.progress(fmt.Sprintf("scan complete: %d occurrences in %d files", len(all), len(files)))
	return all, nil
}

// scanFile reads one file line by line and reports every vocabulary match.
func (s *Scanner) scanFile(abs, rel string) ([]model.Occurrence, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var occs []model.Occurrence
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		matches := s.m.Scan(line, s.opts.CaseSensitive)
		if len(matches) == 0 {
			continue
		}
		snippet := truncate(strings.TrimSpace(line), maxSnippetLen)
		for _, mt := range matches {
			occs = append(occs, model.Occurrence{
				Entity:  mt.Name,
				File:    rel,
				Line:    lineNo,
				Column:  mt.Start + 1,
				Snippet: snippet,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return occs, nil
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

func (s *Scanner) progress(msg string) {
	if s.opts.Progress != nil {
		s.opts.Progress(msg)
	}
}
