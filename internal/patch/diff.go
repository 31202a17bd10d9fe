package patch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContextLines is the number of unchanged lines shown around each
// hunk in a unified diff.
const DefaultContextLines = 3

// opcode describes one run of lines in the line-level diff: tag is '=' for
// equal, '-' for deleted, '+' for inserted. Index ranges are half-open over
// the old and new line slices.
type opcode struct {
	tag            byte
	i1, i2, j1, j2 int
}

// Unified renders a unified diff between two whole-file texts with the given
// number of context lines. Hunk headers use 1-based line numbers in the
// standard "@@ -start,count +start,count @@" form. Identical inputs produce
// an empty string.
func Unified(oldText, newText, path string, contextLines int) string {
	if oldText == newText {
		return ""
	}

	oldLines := splitLines(oldText)
	newLines := splitLines(newText)
	codes := lineOpcodes(oldText, newText)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	for _, group := range groupOpcodes(codes, contextLines) {
		first, last := group[0], group[len(group)-1]
		oldStart, oldCount := hunkRange(first.i1, last.i2)
		newStart, newCount := hunkRange(first.j1, last.j2)
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)

		for _, op := range group {
			switch op.tag {
			case '=':
				for _, line := range oldLines[op.i1:op.i2] {
					b.WriteString(" " + line + "\n")
				}
			case '-':
				for _, line := range oldLines[op.i1:op.i2] {
					b.WriteString("-" + line + "\n")
				}
			case '+':
				for _, line := range newLines[op.j1:op.j2] {
					b.WriteString("+" + line + "\n")
				}
			}
		}
	}

	return b.String()
}

// hunkRange converts a half-open 0-based index range to the 1-based
// start/count pair used in hunk headers. An empty range keeps the 0-based
// position, matching the convention that "-0,0" means "before line 1".
func hunkRange(start, end int) (int, int) {
	count := end - start
	if count == 0 {
		return start, 0
	}
	return start + 1, count
}

// splitLines splits text into lines without trailing newlines. Empty text
// yields no lines so that a created file diffs as pure insertions.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// lineOpcodes computes the line-level edit script between two texts. Each
// distinct line is mapped to a single rune and the character-mode differ runs
// over the encoded strings, so every rune in the result is exactly one line
// and the opcode index math stays aligned with the line slices.
func lineOpcodes(oldText, newText string) []opcode {
	encOld, encNew := encodeLines(splitLines(oldText), splitLines(newText))

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(encOld, encNew, false)

	var codes []opcode
	i, j := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			codes = append(codes, opcode{'=', i, i + n, j, j + n})
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			codes = append(codes, opcode{'-', i, i + n, j, j})
			i += n
		case diffmatchpatch.DiffInsert:
			codes = append(codes, opcode{'+', i, i, j, j + n})
			j += n
		}
	}
	return codes
}

// lineRuneBase is the first rune used by encodeLines. Starting in the
// private use area keeps the encoding clear of surrogates, leaving room for
// over a million distinct lines before runes run out.
const lineRuneBase = rune(0xE000)

// encodeLines assigns each distinct line one rune and renders both line
// slices as rune strings. Lines beyond the rune space collapse onto the last
// rune, degrading the diff for such files instead of producing invalid text.
func encodeLines(oldLines, newLines []string) (string, string) {
	index := make(map[string]rune, len(oldLines)+len(newLines))
	next := lineRuneBase

	encode := func(lines []string) string {
		var b strings.Builder
		for _, line := range lines {
			r, ok := index[line]
			if !ok {
				r = next
				if next < utf8.MaxRune {
					next++
				}
				index[line] = r
			}
			b.WriteRune(r)
		}
		return b.String()
	}
	return encode(oldLines), encode(newLines)
}

// groupOpcodes splits an edit script into hunks, trimming leading and
// trailing equal runs to the context width and breaking the script wherever
// an equal run exceeds twice the context width.
func groupOpcodes(codes []opcode, n int) [][]opcode {
	if len(codes) == 0 {
		return nil
	}

	// Work on a copy so the leading/trailing clamps do not mutate input.
	cs := make([]opcode, len(codes))
	copy(cs, codes)

	if first := &cs[0]; first.tag == '=' {
		first.i1 = max(first.i1, first.i2-n)
		first.j1 = max(first.j1, first.j2-n)
	}
	if last := &cs[len(cs)-1]; last.tag == '=' {
		last.i2 = min(last.i2, last.i1+n)
		last.j2 = min(last.j2, last.j1+n)
	}

	var groups [][]opcode
	var group []opcode
	for _, c := range cs {
		if c.tag == '=' && c.i2-c.i1 > 2*n && len(group) > 0 {
			group = append(group, opcode{'=', c.i1, c.i1 + n, c.j1, c.j1 + n})
			groups = append(groups, group)
			group = []opcode{{'=', c.i2 - n, c.i2, c.j2 - n, c.j2}}
			continue
		}
		group = append(group, c)
	}
	if hasChange(group) {
		groups = append(groups, group)
	}
	return groups
}

// hasChange reports whether a group contains any non-equal opcode.
func hasChange(group []opcode) bool {
	for _, c := range group {
		if c.tag != '=' {
			return true
		}
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
