// Package patch decides how a proposed edit maps onto disk state, enforces
// preconditions, applies the change, and renders a unified-diff preview.
//
// An edit candidate's old-fragment field carries a three-way tag: empty means
// "create a new file", the rewrite sentinel means "replace the whole file",
// and anything else is a targeted substring patch. The classification is
// computed once per candidate (Kind) so validation and application cannot
// drift apart.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelhq/kestrel/internal/logging"
)

var logger = logging.New("patch")

// RewriteSentinel is the reserved old-fragment value signaling "replace the
// entire file content". Models emit it verbatim for full-file rewrites.
const RewriteSentinel = "REWRITE_ENTIRE_FILE"

// previewLen caps the diagnostic previews embedded in mismatch errors.
const previewLen = 100

// Kind classifies how a candidate maps onto disk state.
type Kind int

const (
	// KindDir creates a directory (path ends with a separator).
	KindDir Kind = iota

	// KindCreate creates a new file (empty or whitespace-only old fragment).
	KindCreate

	// KindRewrite replaces an existing file's entire content (sentinel).
	KindRewrite

	// KindPatch substitutes the first occurrence of the old fragment.
	KindPatch
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindCreate:
		return "create"
	case KindRewrite:
		return "rewrite"
	default:
		return "patch"
	}
}

// Candidate is a proposed file modification awaiting validation/application.
// Candidates are produced fresh per subtask, consumed immediately, and never
// retried automatically.
type Candidate struct {
	// Path is the target path relative to the engine's project root. A
	// trailing path separator marks a directory-creation request.
	Path string `json:"file_path"`

	// OldFragment is the exact content to replace: "" for new files, the
	// rewrite sentinel for full rewrites, or a verbatim substring of the
	// current file content.
	OldFragment string `json:"old_content"`

	// NewFragment is the replacement content (or the full content for new
	// files and rewrites).
	NewFragment string `json:"new_content"`

	// Description is a short human-readable summary of the edit.
	Description string `json:"description"`
}

// Kind computes the candidate's classification from its raw fields. A
// whitespace-equal match against the current file content is still classified
// KindPatch here and detected as a disguised rewrite during application, since
// that check needs disk state.
func (c *Candidate) Kind() Kind {
	switch {
	case strings.HasSuffix(c.Path, "/") || strings.HasSuffix(c.Path, string(os.PathSeparator)):
		return KindDir
	case strings.TrimSpace(c.OldFragment) == "":
		return KindCreate
	case c.OldFragment == RewriteSentinel:
		return KindRewrite
	default:
		return KindPatch
	}
}

// IsNewFile returns true when the candidate creates a file that does not yet
// exist. Used by the UI to label diff previews.
func (c *Candidate) IsNewFile() bool {
	return c.Kind() == KindCreate
}

// Result reports the outcome of validating or applying one candidate. There
// is no partial-success state: an edit fully succeeds or fails with a
// diagnostic.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ok is the successful result.
func ok() Result { return Result{Success: true} }

// failf builds a failed result with a formatted diagnostic.
func failf(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Engine validates and applies edit candidates against files under a single
// project root. It holds no mutable state; all state lives on disk.
type Engine struct {
	root string
}

// NewEngine creates an engine rooted at projectRoot. The root is resolved to
// an absolute path so candidates with relative paths resolve consistently.
func NewEngine(projectRoot string) (*Engine, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %q: %w", projectRoot, err)
	}
	return &Engine{root: abs}, nil
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// abs resolves a candidate path against the project root.
func (e *Engine) abs(path string) string {
	return filepath.Join(e.root, path)
}

// Validate checks a candidate's preconditions without mutating anything.
//
//   - directory: always valid (creation is idempotent)
//   - create: valid iff the target does not exist
//   - rewrite: valid iff the target exists
//   - patch: valid iff the target exists and the old fragment either equals
//     the file's whitespace-stripped content (a disguised full rewrite) or
//     occurs verbatim as a substring
func (e *Engine) Validate(c Candidate) Result {
	target := e.abs(c.Path)

	switch c.Kind() {
	case KindDir:
		return ok()

	case KindCreate:
		if _, err := os.Stat(target); err == nil {
			return failf("file already exists: %s", c.Path)
		}
		return ok()

	case KindRewrite:
		if _, err := os.Stat(target); err != nil {
			return failf("file does not exist: %s", c.Path)
		}
		return ok()

	default:
		current, err := os.ReadFile(target)
		if err != nil {
			if os.IsNotExist(err) {
				return failf("file does not exist: %s", c.Path)
			}
			return failf("reading %s: %v", c.Path, err)
		}
		if _, perr := substitute(string(current), c); perr != nil {
			return failf("%v", fragmentMismatch(c, string(current)))
		}
		return ok()
	}
}

// Apply performs the candidate's filesystem mutation. The dispatch mirrors
// Validate exactly; file writes go through an atomic temp-file-and-rename so
// a failure never leaves a half-written file.
func (e *Engine) Apply(c Candidate) Result {
	target := e.abs(c.Path)
	kind := c.Kind()
	logger.Debug("applying edit", "path", c.Path, "kind", kind.String())

	switch kind {
	case KindDir:
		if err := os.MkdirAll(target, 0755); err != nil {
			return failf("creating directory %s: %v", c.Path, err)
		}
		return ok()

	case KindCreate:
		if _, err := os.Stat(target); err == nil {
			// The file appeared since validation. The race is accepted as a
			// known limitation; it is reported, not retried.
			return failf("file already exists: %s", c.Path)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return failf("creating parent directory for %s: %v", c.Path, err)
		}
		if err := writeAtomic(target, c.NewFragment); err != nil {
			return failf("creating %s: %v", c.Path, err)
		}
		return ok()

	case KindRewrite:
		if _, err := os.Stat(target); err != nil {
			return failf("file does not exist: %s", c.Path)
		}
		if err := writeAtomic(target, c.NewFragment); err != nil {
			return failf("rewriting %s: %v", c.Path, err)
		}
		return ok()

	default:
		current, err := os.ReadFile(target)
		if err != nil {
			if os.IsNotExist(err) {
				return failf("file does not exist: %s", c.Path)
			}
			return failf("reading %s: %v", c.Path, err)
		}
		updated, perr := substitute(string(current), c)
		if perr != nil {
			return failf("%v", fragmentMismatch(c, string(current)))
		}
		if err := writeAtomic(target, updated); err != nil {
			return failf("writing %s: %v", c.Path, err)
		}
		return ok()
	}
}

// ApplyAll applies candidates strictly in order and stops at the first
// failure; remaining candidates are not attempted. This bounds blast radius:
// a later edit that depends on an earlier one never runs against a file the
// earlier edit failed to produce. The returned slice holds one result per
// attempted candidate.
func (e *Engine) ApplyAll(candidates []Candidate) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		r := e.Apply(c)
		results = append(results, r)
		if !r.Success {
			logger.Debug("stopping batch at first failure", "path", c.Path, "error", r.Error)
			break
		}
	}
	return results
}

// Preview renders a unified diff for the candidate against the real
// before/after whole-file text, so line numbers are correct in all three
// cases (create, rewrite, targeted patch). Directory candidates produce a
// one-line note.
func (e *Engine) Preview(c Candidate) (string, error) {
	target := e.abs(c.Path)

	switch c.Kind() {
	case KindDir:
		return fmt.Sprintf("create directory %s", c.Path), nil

	case KindCreate:
		return Unified("", c.NewFragment, c.Path, DefaultContextLines), nil

	case KindRewrite:
		current, err := os.ReadFile(target)
		if err != nil {
			return "", fmt.Errorf("previewing rewrite of %s: %w", c.Path, err)
		}
		return Unified(string(current), c.NewFragment, c.Path, DefaultContextLines), nil

	default:
		current, err := os.ReadFile(target)
		if err != nil {
			return "", fmt.Errorf("previewing patch of %s: %w", c.Path, err)
		}
		updated, perr := substitute(string(current), c)
		if perr != nil {
			return "", fragmentMismatch(c, string(current))
		}
		return Unified(string(current), updated, c.Path, DefaultContextLines), nil
	}
}

// substitute computes the post-edit whole-file content for a targeted patch.
// A whitespace-equal old fragment is a disguised full rewrite. Otherwise only
// the first occurrence of the fragment is replaced: a model-proposed patch is
// assumed to target one logical location, and replacing every occurrence
// would silently corrupt unrelated code that shares the same text.
func substitute(current string, c Candidate) (string, error) {
	if strings.TrimSpace(c.OldFragment) == strings.TrimSpace(current) {
		return c.NewFragment, nil
	}
	idx := strings.Index(current, c.OldFragment)
	if idx < 0 {
		return "", fmt.Errorf("old content not found")
	}
	return current[:idx] + c.NewFragment + current[idx+len(c.OldFragment):], nil
}

// fragmentMismatch builds the diagnostic for a fragment that could not be
// located, including truncated previews of both the sought fragment and the
// file's actual start to aid debugging a mismatched model-authored patch.
func fragmentMismatch(c Candidate, current string) error {
	return fmt.Errorf("old content not found in %s\nlooking for: %q\nfile starts with: %q",
		c.Path, truncate(c.OldFragment, previewLen), truncate(current, previewLen))
}

// truncate shortens s to at most n characters, appending "..." when cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// writeAtomic writes content to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial write.
func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}
