// relscan scans a source tree for a vocabulary of table/column names and
// reports proximity-based relationships and directed column links.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/phault/relscan/internal/collink"
	"github.com/phault/relscan/internal/detect"
	"github.com/phault/relscan/internal/pass"
	"github.com/phault/relscan/internal/report"
	"github.com/phault/relscan/internal/scan"
	"github.com/phault/relscan/internal/vocab"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("relscan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		vocabPath     string
		threshold     int
		topN          int
		include       string
		exclude       string
		maxFileSize   int64
		caseSensitive bool
		fanoutGuard   int
		maxEntities   int
		maxInstances  int
		maxContexts   int
		workers       int
		jsonPath      string
		outputPath    string
		quiet         bool
		verbose       bool
		showVersion   bool
	)

	fs.StringVar(&vocabPath, "vocab", "", "vocabulary file (JSON or YAML) with entity and column names")
	fs.IntVar(&threshold, "threshold", 50, "maximum line distance for a proximity relationship")
	fs.IntVar(&topN, "top", 0, "maximum relationships in the report (0 = all)")
	fs.StringVar(&include, "include", "", "comma-separated glob patterns of files to scan")
	fs.StringVar(&exclude, "exclude", "", "comma-separated glob patterns of files to skip")
	fs.Int64Var(&maxFileSize, "max-file-size", scan.DefaultMaxFileSize, "skip files larger than this many bytes")
	fs.BoolVar(&caseSensitive, "case-sensitive", false, "match entity and column names case-sensitively")
	fs.IntVar(&fanoutGuard, "fanout-guard", detect.DefaultFileFanoutGuard, "skip files with more distinct entities than this (-1 disables)")
	fs.IntVar(&maxEntities, "max-entities", detect.DefaultMaxFileEntities, "compare at most this many entities per file (-1 disables)")
	fs.IntVar(&maxInstances, "max-instances", detect.DefaultMaxInstances, "store at most this many proximity instances per pair")
	fs.IntVar(&maxContexts, "max-contexts", collink.DefaultMaxContexts, "store at most this many evidence lines per column link")
	fs.IntVar(&workers, "workers", 0, "concurrent file scanners (0 = GOMAXPROCS)")
	fs.StringVar(&jsonPath, "json", "", "write a JSON export to this path")
	fs.StringVar(&outputPath, "o", "", "write the report to this path instead of stdout")
	fs.BoolVar(&quiet, "q", false, "suppress progress messages")
	fs.BoolVar(&verbose, "v", false, "verbose logging")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "relscan %s\n", version)
		return nil
	}

	if vocabPath == "" {
		return fmt.Errorf("-vocab is required")
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	entities, err := vocab.Load(vocabPath)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return fmt.Errorf("no entities found in %s", vocabPath)
	}

	var progress pass.Progress
	if !quiet {
		progress = func(msg string) {
			_, _ = fmt.Fprintln(stderr, msg)
		}
	}

	p := pass.New(entities, pass.Options{
		Threshold: threshold,
		Scan: scan.Options{
			Include:       splitList(include),
			Exclude:       splitList(exclude),
			MaxFileSize:   maxFileSize,
			CaseSensitive: caseSensitive,
			Workers:       workers,
		},
		Detect: detect.Options{
			FileFanoutGuard: fanoutGuard,
			MaxFileEntities: maxEntities,
			MaxInstances:    maxInstances,
		},
		Link: collink.Options{
			MaxContexts: maxContexts,
		},
		Progress: progress,
		Logger:   logger,
	})

	if err := p.Collect(root); err != nil {
		return err
	}
	p.Detect()

	// Build the reference cache before its first consumer; the report and
	// the JSON export both read the filtered view afterwards in O(1).
	_ = p.References()

	p.ResolveLinks(root)

	out := stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := report.Markdown(out, p, topN); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if jsonPath != "" {
		data, err := report.JSON(p)
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing results: %w", err)
		}
	}

	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-vocab": true, "--vocab": true,
	"-threshold": true, "--threshold": true,
	"-top": true, "--top": true,
	"-include": true, "--include": true,
	"-exclude": true, "--exclude": true,
	"-max-file-size": true, "--max-file-size": true,
	"-fanout-guard": true, "--fanout-guard": true,
	"-max-entities": true, "--max-entities": true,
	"-max-instances": true, "--max-instances": true,
	"-max-contexts": true, "--max-contexts": true,
	"-workers": true, "--workers": true,
	"-json": true, "--json": true,
	"-o": true, "--o": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
