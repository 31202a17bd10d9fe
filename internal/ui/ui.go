// Package ui renders the interactive session: banner, task progress, diff
// previews, confirmation prompts, and the closing summary. All rendering
// goes to stdout; logs stay on stderr.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/kestrelhq/kestrel/internal/patch"
	"github.com/kestrelhq/kestrel/internal/subtask"
	"github.com/kestrelhq/kestrel/internal/todo"
)

var (
	styleBanner  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleTask    = lipgloss.NewStyle().Bold(true)
	styleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDiffAdd = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleDiffDel = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleHunk    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
)

// DisableColor forces monochrome output, for --no-color and dumb terminals.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Console renders session output and gathers edit confirmations.
type Console struct {
	out        io.Writer
	autoAccept bool
}

// NewConsole creates a console writing to out. With autoAccept set, edit
// confirmations are skipped and every valid edit is applied.
func NewConsole(out io.Writer, autoAccept bool) *Console {
	return &Console{out: out, autoAccept: autoAccept}
}

// SetAutoAccept switches confirmation prompting for the rest of the session.
func (c *Console) SetAutoAccept(v bool) {
	c.autoAccept = v
}

// Banner prints the session header.
func (c *Console) Banner(version, model, baseURL, root string, autoAccept bool) {
	fmt.Fprintln(c.out, styleBanner.Render("kestrel "+version))
	accept := "off"
	if autoAccept {
		accept = "on"
	}
	details := fmt.Sprintf("model: %s  root: %s  auto-accept: %s", model, root, accept)
	if baseURL != "" {
		details += "  api: " + baseURL
	}
	fmt.Fprintln(c.out, styleDim.Render(details))
	fmt.Fprintln(c.out)
}

// Info prints a plain informational line.
func (c *Console) Info(msg string) {
	fmt.Fprintln(c.out, msg)
}

// Warn prints a highlighted warning line.
func (c *Console) Warn(msg string) {
	fmt.Fprintln(c.out, styleWarn.Render(msg))
}

// Error prints a highlighted error line.
func (c *Console) Error(msg string) {
	fmt.Fprintln(c.out, styleFail.Render(msg))
}

// PlanHeader prints the plan summary and its task list.
func (c *Console) PlanHeader(summary string, tasks []*todo.Task) {
	fmt.Fprintln(c.out, styleHeader.Render("Plan: "+summary))
	for _, t := range tasks {
		line := fmt.Sprintf("  %d. %s", t.ID, t.Description)
		if len(t.Dependencies) > 0 {
			line += styleDim.Render(fmt.Sprintf(" (after %s)", intList(t.Dependencies)))
		}
		fmt.Fprintln(c.out, line)
	}
	fmt.Fprintln(c.out)
}

// TaskStarted prints the active-form progress line for a task.
func (c *Console) TaskStarted(t *todo.Task, completed, total int) {
	fmt.Fprintf(c.out, "%s %s\n",
		styleDim.Render(fmt.Sprintf("[%d/%d]", completed+1, total)),
		styleTask.Render(t.ActiveForm))
}

// TaskCompleted marks a task done.
func (c *Console) TaskCompleted(t *todo.Task) {
	fmt.Fprintf(c.out, "%s %s\n", styleDone.Render("done:"), t.Description)
}

// SubtaskEvent renders a pipeline progress event.
func (c *Console) SubtaskEvent(e subtask.Event) {
	prefix := styleDim.Render(fmt.Sprintf("  [%d/%d]", e.Index, e.Total))
	switch e.Kind {
	case subtask.EventStarted:
		fmt.Fprintf(c.out, "%s %s\n", prefix, e.Subtask.Description)
	case subtask.EventCompleted:
		fmt.Fprintf(c.out, "%s %s\n", prefix, styleDone.Render("ok "+e.Subtask.FilePath))
	case subtask.EventFailed:
		msg := "failed " + e.Subtask.FilePath
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		fmt.Fprintf(c.out, "%s %s\n", prefix, styleFail.Render(msg))
	}
}

// ShowDiff prints a unified diff with per-line coloring.
func (c *Console) ShowDiff(diffText string) {
	for _, line := range strings.Split(strings.TrimSuffix(diffText, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(c.out, styleHeader.Render(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintln(c.out, styleHunk.Render(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprintln(c.out, styleDiffAdd.Render(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintln(c.out, styleDiffDel.Render(line))
		default:
			fmt.Fprintln(c.out, line)
		}
	}
}

// ConfirmEdit shows the diff preview and asks whether to apply the edit.
// Auto-accept mode applies without prompting.
func (c *Console) ConfirmEdit(cand patch.Candidate, diffText string) (bool, error) {
	title := cand.Description
	if title == "" {
		title = cand.Path
	}
	if cand.IsNewFile() {
		title += " (new file)"
	}
	fmt.Fprintln(c.out, styleTask.Render(title))
	c.ShowDiff(diffText)

	if c.autoAccept {
		return true, nil
	}

	accept := true
	confirm := huh.NewConfirm().
		Title(fmt.Sprintf("Apply edit to %s?", cand.Path)).
		Affirmative("Apply").
		Negative("Skip").
		Value(&accept)
	if err := confirm.Run(); err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return accept, nil
}

// Summary prints the closing block: applied edits, remaining work, and
// suggested next steps.
func (c *Console) Summary(lines []string, pending []*todo.Task, nextSteps []string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, styleHeader.Render("Summary"))
	if len(lines) == 0 {
		fmt.Fprintln(c.out, "  No changes were applied.")
	}
	for _, l := range lines {
		fmt.Fprintln(c.out, "  - "+l)
	}
	if len(pending) > 0 {
		fmt.Fprintln(c.out, styleWarn.Render("Remaining tasks:"))
		for _, t := range pending {
			fmt.Fprintf(c.out, "  - %s\n", t.Description)
		}
	}
	if len(nextSteps) > 0 {
		fmt.Fprintln(c.out, styleDim.Render("Next steps: "+strings.Join(nextSteps, "; ")))
	}
}

// intList renders task IDs as "1, 2, 3".
func intList(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
