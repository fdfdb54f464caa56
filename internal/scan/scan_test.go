package scan

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func write(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newScanner(t *testing.T, names []string, opts Options) *Scanner {
	t.Helper()
	s, err := New(names, opts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCollectFindsOccurrences(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "q.sql", "SELECT *\nFROM customer\nJOIN orders ON 1=1\n")

	s := newScanner(t, []string{"CUSTOMER", "ORDERS"}, Options{})
	occs, err := s.Collect(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(occs) != 2 {
		t.Fatalf("occurrences = %d, want 2: %+v", len(occs), occs)
	}

	first := occs[0]
	if first.Entity != "CUSTOMER" || first.File != "q.sql" || first.Line != 2 {
		t.Errorf("first occurrence: %+v", first)
	}
	if first.Column != strings.Index("FROM customer", "customer")+1 {
		t.Errorf("column = %d", first.Column)
	}
	if first.Snippet != "FROM customer" {
		t.Errorf("snippet = %q", first.Snippet)
	}

	if occs[1].Entity != "ORDERS" || occs[1].Line != 3 {
		t.Errorf("second occurrence: %+v", occs[1])
	}
}

func TestCollectCaseSensitive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "q.sql", "customer CUSTOMER Customer\n")

	s := newScanner(t, []string{"Customer"}, Options{CaseSensitive: true})
	occs, err := s.Collect(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(occs) != 1 {
		t.Fatalf("occurrences = %d, want 1", len(occs))
	}
	if occs[0].Column != 19 {
		t.Errorf("column = %d, want 19", occs[0].Column)
	}
}

func TestDiscoverExtensionAllowlist(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "a.sql", "customer\n")
	write(t, root, "b.txt", "customer\n")

	s := newScanner(t, []string{"customer"}, Options{})
	files, err := s.Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "a.sql" {
		t.Errorf("files = %v", files)
	}
}

func TestDiscoverIncludeGlobOverridesAllowlist(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "a.sql", "customer\n")
	write(t, root, "b.txt", "customer\n")

	s := newScanner(t, []string{"customer"}, Options{Include: []string{"*.txt"}})
	files, err := s.Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "b.txt" {
		t.Errorf("files = %v", files)
	}
}

func TestDiscoverExcludeGlob(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "keep.sql", "customer\n")
	write(t, root, "skip_test.sql", "customer\n")

	s := newScanner(t, []string{"customer"}, Options{Exclude: []string{"*_test.sql"}})
	files, err := s.Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "keep.sql" {
		t.Errorf("files = %v", files)
	}
}

func TestDiscoverSkipsDirsAndHidden(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "keep.sql", "x\n")
	write(t, root, "node_modules/skip.sql", "x\n")
	write(t, root, ".hidden.sql", "x\n")

	s := newScanner(t, []string{"x"}, Options{})
	files, err := s.Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "keep.sql" {
		t.Errorf("files = %v", files)
	}
}

func TestDiscoverHonorsGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, ".gitignore", "generated/\n")
	write(t, root, "keep.sql", "x\n")
	write(t, root, "generated/skip.sql", "x\n")

	s := newScanner(t, []string{"x"}, Options{})
	files, err := s.Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "keep.sql" {
		t.Errorf("files = %v", files)
	}
}

func TestCollectSkipsOversizedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "big.sql", strings.Repeat("customer\n", 100))
	write(t, root, "small.sql", "customer\n")

	s := newScanner(t, []string{"customer"}, Options{MaxFileSize: 20})
	occs, err := s.Collect(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(occs) != 1 || occs[0].File != "small.sql" {
		t.Errorf("occurrences = %+v", occs)
	}
}

func TestCollectSnippetTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// The byte cut lands inside a two-byte rune unless truncation backs up
	// to a rune boundary.
	write(t, root, "u.sql", "customer "+strings.Repeat("é", 120)+"\n")

	s := newScanner(t, []string{"customer"}, Options{})
	occs, err := s.Collect(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(occs) != 1 {
		t.Fatalf("occurrences = %d, want 1", len(occs))
	}
	snippet := occs[0].Snippet
	if len(snippet) > maxSnippetLen {
		t.Errorf("snippet length = %d, want <= %d", len(snippet), maxSnippetLen)
	}
	if !utf8.ValidString(snippet) {
		t.Errorf("snippet is not valid UTF-8: %q", snippet)
	}
}

func TestCollectDeterministicOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "b.sql", "customer\n")
	write(t, root, "a.sql", "customer\n")

	s := newScanner(t, []string{"customer"}, Options{Workers: 4})
	occs, err := s.Collect(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(occs) != 2 || occs[0].File != "a.sql" || occs[1].File != "b.sql" {
		t.Errorf("occurrences out of order: %+v", occs)
	}
}

func TestCollectProgress(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "a.sql", "customer\n")

	var mu sync.Mutex
	var msgs []string
	progress := func(msg string) {
		mu.Lock()
		msgs = append(msgs, msg)
		mu.Unlock()
	}

	s := newScanner(t, []string{"customer"}, Options{Progress: progress})
	if _, err := s.Collect(root); err != nil {
		t.Fatal(err)
	}
	if len(msgs) < 2 {
		t.Errorf("expected start and completion messages, got %v", msgs)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	s := newScanner(t, []string{"x"}, Options{})
	if _, err := s.Discover(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := s.Collect(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error from Collect for missing root")
	}
}

func TestNewRejectsBadGlob(t *testing.T) {
	t.Parallel()

	if _, err := New([]string{"x"}, Options{Include: []string{"[unterminated"}}); err == nil {
		t.Error("expected error for malformed glob")
	}
}
