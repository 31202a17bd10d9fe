// Package loop drives a session: gather project context, plan the request,
// execute tasks until none remain, and print a summary. One Runner serves a
// whole interactive session; each request gets a fresh plan and task graph.
package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/gitctx"
	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/logging"
	"github.com/kestrelhq/kestrel/internal/patch"
	"github.com/kestrelhq/kestrel/internal/planner"
	"github.com/kestrelhq/kestrel/internal/scan"
	"github.com/kestrelhq/kestrel/internal/schema"
	"github.com/kestrelhq/kestrel/internal/shell"
	"github.com/kestrelhq/kestrel/internal/subtask"
	"github.com/kestrelhq/kestrel/internal/todo"
	"github.com/kestrelhq/kestrel/internal/ui"
)

var logger = logging.New("loop")

// maxSearchResults caps how many match lines a model-requested search feeds
// back into the prompt.
const maxSearchResults = 20

// ErrEditSkipped marks a batch whose edit the user declined. The subtask is
// reported failed but the decline is not an error condition.
var ErrEditSkipped = errors.New("edit skipped by user")

// Runner executes user requests against one project root.
type Runner struct {
	cfg      *config.Config
	client   llm.Client
	engine   *patch.Engine
	scanner  *scan.Scanner
	shellRun *shell.Runner
	console  *ui.Console
	planner  *planner.Planner
	pipeline *subtask.Pipeline

	// pinned files are always included in the prompt context, ahead of the
	// relevance scan.
	pinned []string

	// Per-request state, reset in HandleRequest.
	graph     *todo.Graph
	applied   []string
	nextSteps []string
	notes     []string
}

// NewRunner wires a runner for the given root.
func NewRunner(cfg *config.Config, client llm.Client, root string, console *ui.Console) (*Runner, error) {
	engine, err := patch.NewEngine(root)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:      cfg,
		client:   client,
		engine:   engine,
		scanner:  scan.NewScanner(root, cfg.Context),
		shellRun: shell.NewRunner(root, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		console:  console,
		planner:  planner.New(client),
	}
	r.pipeline = subtask.New(client, console.SubtaskEvent)
	return r, nil
}

// Pin forces the given project-relative files into every prompt context,
// bypassing relevance scoring. Unreadable paths are skipped.
func (r *Runner) Pin(paths []string) {
	r.pinned = append(r.pinned, paths...)
}

// HandleRequest runs one user request end to end. An error aborts only this
// request; the interactive session continues with the next one.
func (r *Runner) HandleRequest(ctx context.Context, request string) error {
	request = strings.TrimSpace(request)
	if request == "" {
		r.console.Info("Nothing to do.")
		return nil
	}

	r.graph = todo.NewGraph(nil)
	r.applied = nil
	r.nextSteps = nil
	r.notes = nil

	projectContext, err := r.gatherContext(ctx, request)
	if err != nil {
		return fmt.Errorf("gathering project context: %w", err)
	}

	plan, decomposed := r.planner.Plan(ctx, request, projectContext)
	r.graph.SetPlan(plan)
	r.console.PlanHeader(plan.Summary, r.graph.Tasks())

	if err := r.executeTasks(ctx, projectContext, decomposed); err != nil {
		return err
	}

	if narrative := r.narrativeSummary(ctx, request); narrative != "" {
		r.console.Info("\n" + narrative)
	}
	r.console.Summary(r.applied, r.graph.PendingTasks(), r.nextSteps)
	return nil
}

// narrativeSummary asks the model for a short prose recap of the applied
// edits. Best-effort: any failure falls back to the deterministic summary
// block alone. Nothing applied means nothing to narrate.
func (r *Runner) narrativeSummary(ctx context.Context, request string) string {
	if len(r.applied) == 0 {
		return ""
	}
	prompt := fmt.Sprintf("Request: %s\n\nApplied changes:\n- %s\n\nSummarize what was done in two or three sentences of plain prose.",
		request, strings.Join(r.applied, "\n- "))
	messages := []llm.Message{llm.User(prompt)}

	text, err := r.client.Complete(ctx, messages, false)
	if err != nil {
		logger.Debug("summary call failed", "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// executeTasks drains the task graph. When no task is eligible but pending
// tasks remain (a dependency cycle or a removed dependency), the first
// pending task in plan order runs anyway so the loop always terminates.
func (r *Runner) executeTasks(ctx context.Context, projectContext string, decomposed bool) error {
	for r.graph.HasRemainingWork() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		task := r.graph.NextTask()
		if task == nil {
			task = r.graph.FirstPending()
			if task == nil {
				break
			}
			logger.Warn("no task is eligible; forcing first pending task",
				"task", task.ID, "description", task.Description)
		}

		completed, total := r.graph.Progress()
		r.graph.MarkInProgress(task.ID)
		r.console.TaskStarted(task, completed, total)

		if err := r.executeTask(ctx, task, projectContext, decomposed); err != nil {
			return err
		}

		r.graph.MarkCompleted(task.ID)
		r.console.TaskCompleted(task)
	}
	return nil
}

// executeTask runs one task, through the subtask pipeline when a plan-level
// decomposition exists and falling back to a single whole-task model call
// when it does not (or when the task itself will not decompose).
func (r *Runner) executeTask(ctx context.Context, task *todo.Task, projectContext string, decomposed bool) error {
	taskContext := r.taskContext(projectContext)

	if decomposed {
		done, planned := r.pipeline.Run(ctx, task, taskContext, func(sub schema.Subtask, batch *schema.EditBatch) error {
			return r.applyBatch(ctx, batch)
		})
		if planned > 0 {
			if done < planned {
				r.console.Warn(fmt.Sprintf("task %d finished partially: %d of %d subtasks applied",
					task.ID, done, planned))
			}
			return ctx.Err()
		}
		// The task would not decompose; run it as one unit.
	}

	whole := schema.Subtask{Description: task.Description, Operation: "modify", Order: 1}
	batch, err := r.pipeline.ExecuteSubtask(ctx, task, whole, nil, taskContext)
	if err != nil {
		if errors.Is(err, subtask.ErrBadResponse) {
			// Malformed output is a task-level failure: zero edits, move on.
			r.console.Warn(fmt.Sprintf("task %d produced no usable edits: %v", task.ID, err))
			return nil
		}
		return fmt.Errorf("executing task %d: %w", task.ID, err)
	}

	err = r.applyBatch(ctx, batch)
	if err == nil || errors.Is(err, ErrEditSkipped) {
		r.warnIncomplete(task, batch)
		return nil
	}

	// One corrective round: re-request the batch with the failure appended
	// as context. A second failure of any kind is reported and the loop
	// moves on; this is a single bounded retry, never a loop.
	r.console.Warn(fmt.Sprintf("task %d: %v; requesting a corrected edit", task.ID, err))
	retryContext := taskContext + "\nThe previous edit attempt failed:\n" + err.Error() +
		"\nProvide a corrected edit batch whose old_content matches the file exactly.\n"
	batch, rerr := r.pipeline.ExecuteSubtask(ctx, task, whole, nil, retryContext)
	if rerr == nil {
		rerr = r.applyBatch(ctx, batch)
	}
	if rerr != nil && !errors.Is(rerr, ErrEditSkipped) {
		r.console.Warn(fmt.Sprintf("task %d: corrected edit failed: %v", task.ID, rerr))
	} else if rerr == nil {
		r.warnIncomplete(task, batch)
	}
	return nil
}

// warnIncomplete flags a batch that applied no edits without the model
// claiming the task done, so the user knows the task needs another request.
// Suggested next steps ride along when the model offered any.
func (r *Runner) warnIncomplete(task *todo.Task, batch *schema.EditBatch) {
	if len(batch.Edits) > 0 || batch.Completed {
		return
	}
	msg := fmt.Sprintf("task %d produced no edits and did not report completion", task.ID)
	if len(batch.NextSteps) > 0 {
		msg += "; suggested: " + strings.Join(batch.NextSteps, "; ")
	}
	r.console.Warn(msg)
}

// applyBatch handles one edit batch: commands first, then searches, then
// each edit through validate, confirm, apply. Edit application stops at the
// first failure; a user decline skips the remaining edits of the batch.
func (r *Runner) applyBatch(ctx context.Context, batch *schema.EditBatch) error {
	if batch.Thinking != "" {
		// Surfaces only under --verbose, where the log level is debug.
		logger.Debug("model reasoning", "thinking", batch.Thinking)
	}

	for _, res := range r.shellRun.RunAll(ctx, batch.Commands) {
		note := fmt.Sprintf("$ %s (exit %d)", res.Command, res.ExitCode)
		if out := strings.TrimSpace(res.Stdout + res.Stderr); out != "" {
			note += "\n" + out
		}
		r.notes = append(r.notes, note)
		if !res.Success() {
			r.console.Warn(fmt.Sprintf("command failed: %s (exit %d)", res.Command, res.ExitCode))
		}
	}

	for _, query := range batch.Searches {
		matches, err := r.scanner.Search(query, maxSearchResults)
		if err != nil {
			logger.Warn("search failed", "query", query, "error", err)
			continue
		}
		r.notes = append(r.notes, fmt.Sprintf("search %q:\n%s", query, strings.Join(matches, "\n")))
	}

	r.nextSteps = append(r.nextSteps, batch.NextSteps...)

	for _, cand := range batch.Edits {
		if v := r.engine.Validate(cand); !v.Success {
			return fmt.Errorf("invalid edit for %s: %s", cand.Path, v.Error)
		}

		preview, err := r.engine.Preview(cand)
		if err != nil {
			return fmt.Errorf("previewing edit for %s: %w", cand.Path, err)
		}
		accepted, err := r.console.ConfirmEdit(cand, preview)
		if err != nil {
			return err
		}
		if !accepted {
			r.console.Info("skipped " + cand.Path)
			return ErrEditSkipped
		}

		if a := r.engine.Apply(cand); !a.Success {
			return fmt.Errorf("applying edit to %s: %s", cand.Path, a.Error)
		}
		r.applied = append(r.applied, describeEdit(cand))
	}
	return nil
}

// gatherContext builds the prompt context: git state, project layout, and
// the request's most relevant file contents.
func (r *Runner) gatherContext(ctx context.Context, request string) (string, error) {
	var b strings.Builder

	if git := gitctx.Collect(ctx, r.engine.Root()).Describe(); git != "" {
		b.WriteString(git)
		b.WriteString("\n")
	}

	tree, err := r.scanner.Tree()
	if err != nil {
		return "", err
	}
	b.WriteString("Project files:\n")
	for _, p := range tree {
		b.WriteString("  " + p + "\n")
	}
	b.WriteString("\n")

	included := make(map[string]bool)
	for _, p := range r.pinned {
		data, err := os.ReadFile(filepath.Join(r.engine.Root(), p))
		if err != nil {
			logger.Warn("pinned file not readable", "path", p, "error", err)
			continue
		}
		if len(data) > r.cfg.Context.MaxFileBytes {
			data = data[:r.cfg.Context.MaxFileBytes]
		}
		included[p] = true
		fmt.Fprintf(&b, "==== %s ====\n%s\n\n", p, data)
	}

	files, err := r.scanner.Relevant(ctx, request)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if included[f.Path] {
			continue
		}
		fmt.Fprintf(&b, "==== %s ====\n%s\n\n", f.Path, f.Content)
	}

	return b.String(), nil
}

// taskContext appends accumulated command output and search results to the
// base project context so later model calls see what earlier rounds learned.
func (r *Runner) taskContext(projectContext string) string {
	if len(r.notes) == 0 {
		return projectContext
	}
	return projectContext + "\nSession notes:\n" + strings.Join(r.notes, "\n\n") + "\n"
}

// describeEdit renders one applied edit for the summary, keyed on what
// actually happened to the file.
func describeEdit(c patch.Candidate) string {
	switch c.Kind() {
	case patch.KindDir:
		return "Created directory " + c.Path
	case patch.KindCreate:
		return "Created " + c.Path
	case patch.KindRewrite:
		return "Rewrote " + c.Path
	default:
		return "Updated " + c.Path
	}
}
