// Package scan selects the project files most relevant to a user request and
// bounds how much of their content enters the model prompt.
//
// Relevance is a cheap lexical heuristic: keywords from the request are
// matched against file names and contents, with a base score for recognized
// source-code extensions. The point is not precision but keeping the prompt
// inside budget while surfacing the files a human would open first.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/logging"
)

var logger = logging.New("scan")

// scoreWorkers bounds concurrent file reads during scoring.
const scoreWorkers = 8

// binaryProbeBytes is how much of a file is checked for NUL bytes.
const binaryProbeBytes = 8000

// truncationMarker is appended when a file's content is cut at the per-file
// byte cap, so the model knows it is not seeing the whole file.
const truncationMarker = "\n... [content truncated]"

// Scoring weights.
const (
	codeExtScore   = 1.0
	docsExtScore   = 0.3
	nameMatchScore = 2.0
	bodyMatchScore = 1.0
)

// codeExtensions get the full base score; docsExtensions a reduced one.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rs": true, ".java": true, ".c": true, ".h": true,
	".cpp": true, ".rb": true, ".php": true, ".sh": true, ".sql": true,
	".html": true, ".css": true, ".toml": true, ".yaml": true, ".yml": true,
	".json": true,
}

var docsExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true,
}

// defaultIgnores are doublestar patterns always excluded from the scan.
var defaultIgnores = []string{
	".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**",
	"__pycache__/**", ".venv/**", "venv/**", "target/**", ".idea/**",
	".vscode/**", "**/*.min.js", "**/*.lock", "**/*.sum",
}

// stopwords are request words too common to discriminate.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "add": true, "make": true,
	"use": true, "all": true, "new": true, "file": true, "files": true,
	"code": true, "please": true, "should": true, "when": true, "then": true,
}

// File is one scanned project file with its relevance score. Content is
// already capped at the per-file byte limit.
type File struct {
	Path      string
	Content   string
	Score     float64
	Truncated bool
}

// Scanner walks a project root and ranks files against a request.
type Scanner struct {
	root    string
	cfg     config.ContextConfig
	ignores []string
}

// NewScanner creates a scanner for the given root. Configured ignore
// patterns are added on top of the built-in defaults.
func NewScanner(root string, cfg config.ContextConfig) *Scanner {
	ignores := append([]string{}, defaultIgnores...)
	ignores = append(ignores, cfg.IgnorePatterns...)
	return &Scanner{root: root, cfg: cfg, ignores: ignores}
}

// Relevant returns the highest-scoring files for the request, capped by the
// configured file count and total byte budget. Files are scored concurrently;
// byte-identical contents are deduplicated by hash so copied files do not
// spend the budget twice.
func (s *Scanner) Relevant(ctx context.Context, request string) ([]File, error) {
	paths, err := s.walk()
	if err != nil {
		return nil, err
	}
	keywords := extractKeywords(request)
	logger.Debug("scanning project", "candidates", len(paths), "keywords", len(keywords))

	var (
		mu     sync.Mutex
		seen   = make(map[uint64]bool)
		scored []File
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreWorkers)
	for _, p := range paths {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f, ok := s.scoreFile(p, keywords)
			if !ok {
				return nil
			}
			sum := xxhash.Sum64String(f.Content)
			mu.Lock()
			defer mu.Unlock()
			if seen[sum] {
				return nil
			}
			seen[sum] = true
			scored = append(scored, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Path < scored[j].Path
	})

	var (
		out   []File
		total int
	)
	for _, f := range scored {
		if len(out) >= s.cfg.MaxFiles {
			break
		}
		if total+len(f.Content) > s.cfg.MaxTotalBytes {
			continue
		}
		total += len(f.Content)
		out = append(out, f)
	}
	logger.Debug("context selected", "files", len(out), "bytes", total)
	return out, nil
}

// Tree returns all non-ignored file paths relative to the root, sorted. Used
// to give the model a project layout without file contents.
func (s *Scanner) Tree() ([]string, error) {
	paths, err := s.walk()
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Search finds lines containing query (case-insensitive) across non-ignored
// text files, returning up to maxResults "path:line: text" entries. Used to
// answer the model's project-content lookups between edit rounds.
func (s *Scanner) Search(query string, maxResults int) ([]string, error) {
	paths, err := s.walk()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	var results []string
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(s.root, p))
		if err != nil || isBinary(data) {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			results = append(results, fmt.Sprintf("%s:%d: %s", p, i+1, strings.TrimSpace(line)))
			if len(results) >= maxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

// walk collects candidate file paths, applying ignore patterns to
// slash-separated paths relative to the root.
func (s *Scanner) walk() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if s.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			paths = append(paths, rel)
		}
		return nil
	})
	return paths, err
}

// ignored reports whether rel matches any ignore pattern. Directory patterns
// of the form "dir/**" also match the directory itself so the walk can skip
// the whole subtree.
func (s *Scanner) ignored(rel string) bool {
	for _, pat := range s.ignores {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		if base, found := strings.CutSuffix(pat, "/**"); found && rel == base {
			return true
		}
	}
	return false
}

// scoreFile reads and scores one file. Binary and zero-scoring files are
// dropped; oversized content is truncated at the per-file cap.
func (s *Scanner) scoreFile(rel string, keywords []string) (File, bool) {
	ext := strings.ToLower(filepath.Ext(rel))
	score := 0.0
	switch {
	case codeExtensions[ext]:
		score += codeExtScore
	case docsExtensions[ext]:
		score += docsExtScore
	default:
		return File{}, false
	}

	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil || len(data) == 0 {
		return File{}, false
	}
	if isBinary(data) {
		return File{}, false
	}

	truncated := false
	if len(data) > s.cfg.MaxFileBytes {
		data = data[:s.cfg.MaxFileBytes]
		truncated = true
	}

	lowerName := strings.ToLower(rel)
	lowerBody := strings.ToLower(string(data))
	for _, kw := range keywords {
		if strings.Contains(lowerName, kw) {
			score += nameMatchScore
		}
		if strings.Contains(lowerBody, kw) {
			score += bodyMatchScore
		}
	}

	content := string(data)
	if truncated {
		content += truncationMarker
	}
	return File{Path: rel, Content: content, Score: score, Truncated: truncated}, true
}

// isBinary probes the first bytes for a NUL, the same heuristic git uses.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeBytes {
		probe = probe[:binaryProbeBytes]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return false
}

// extractKeywords splits a request into lowercase alphanumeric words, keeping
// those at least three characters long and not stopwords.
func extractKeywords(request string) []string {
	words := strings.FieldsFunc(strings.ToLower(request), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
