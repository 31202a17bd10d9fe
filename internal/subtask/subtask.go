// Package subtask decomposes a single task into file-level steps and drives
// their execution. Each subtask gets its own model call carrying the record
// of subtasks already completed, so later steps can build on earlier edits.
//
// Failures here are inert: a subtask that cannot be planned or executed is
// skipped and reported, never aborting its siblings. The task as a whole
// counts as complete only when every planned subtask produced an applied
// batch.
package subtask

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/logging"
	"github.com/kestrelhq/kestrel/internal/schema"
	"github.com/kestrelhq/kestrel/internal/todo"
)

var logger = logging.New("subtask")

// EventKind identifies a pipeline progress event.
type EventKind string

const (
	EventStarted   EventKind = "subtask_started"
	EventCompleted EventKind = "subtask_completed"
	EventFailed    EventKind = "subtask_failed"
)

// Event reports progress on one subtask. Index is 1-based.
type Event struct {
	Kind    EventKind
	Subtask schema.Subtask
	Index   int
	Total   int
	Err     error
}

// Observer receives pipeline events; it may be nil.
type Observer func(Event)

// Apply validates, confirms, and applies one subtask's edit batch. A non-nil
// error marks the subtask failed without stopping the pipeline.
type Apply func(sub schema.Subtask, batch *schema.EditBatch) error

// ErrBadResponse marks a model response that produced no usable edit batch.
// Callers treat it as a task-level failure, distinct from transport errors
// that abort the whole request.
var ErrBadResponse = errors.New("model response did not decode")

const planPrompt = `You are breaking one development task into file-level subtasks.
Respond with a JSON object:
{
  "subtasks": [
    {
      "description": "what to change",
      "file_path": "the one file this step touches",
      "operation": "create|modify|delete",
      "order": 1
    }
  ]
}
Keep subtasks small: one file, one coherent change each. Respond with JSON only.`

const execPrompt = `You are implementing one subtask of a development task.
Respond with a JSON object:
{
  "thinking": "brief reasoning",
  "commands": ["shell commands to run first, if any"],
  "searches": ["project content to look up, if any"],
  "edits": [
    {
      "file_path": "path relative to the project root",
      "old_content": "exact content to replace; empty string to create a new file; REWRITE_ENTIRE_FILE to replace the whole file",
      "new_content": "the replacement content",
      "description": "one-line summary of the edit"
    }
  ],
  "completed": true,
  "next_steps": ["suggested follow-up work, if any"]
}
old_content must match the current file exactly, character for character.
Respond with JSON only.`

// Pipeline plans and executes subtasks for tasks.
type Pipeline struct {
	client   llm.Client
	observer Observer
}

// New creates a pipeline. The observer may be nil.
func New(client llm.Client, observer Observer) *Pipeline {
	return &Pipeline{client: client, observer: observer}
}

// PlanSubtasks asks the model to decompose the task. A failed call or an
// empty decomposition returns nil, signaling the caller to execute the task
// as a single unit.
func (p *Pipeline) PlanSubtasks(ctx context.Context, task *todo.Task, projectContext string) []schema.Subtask {
	prompt := fmt.Sprintf("Project context:\n%s\n\nTask:\n%s\n\nReasoning:\n%s",
		projectContext, task.Description, task.Rationale)
	messages := []llm.Message{llm.System(planPrompt), llm.User(prompt)}

	response, err := p.client.Complete(ctx, messages, true)
	if err != nil {
		logger.Warn("subtask planning failed", "task", task.ID, "error", err)
		return nil
	}
	subtasks, err := schema.DecodeSubtaskBatch(response)
	if err != nil {
		logger.Warn("subtask response did not decode", "task", task.ID, "error", err)
		return nil
	}

	sort.SliceStable(subtasks, func(i, j int) bool {
		return subtasks[i].Order < subtasks[j].Order
	})
	return subtasks
}

// ExecuteSubtask requests the edit batch for one subtask. The prompt carries
// the descriptions of already-completed subtasks so the model does not redo
// or contradict earlier steps.
func (p *Pipeline) ExecuteSubtask(ctx context.Context, task *todo.Task, sub schema.Subtask, done []schema.Subtask, projectContext string) (*schema.EditBatch, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Project context:\n%s\n\n", projectContext)
	fmt.Fprintf(&b, "Overall task: %s\n\n", task.Description)
	if len(done) > 0 {
		b.WriteString("Already completed subtasks:\n")
		for _, d := range done {
			fmt.Fprintf(&b, "  - %s (%s %s)\n", d.Description, d.Operation, d.FilePath)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Current subtask: %s\nFile: %s\nOperation: %s\n",
		sub.Description, sub.FilePath, sub.Operation)

	messages := []llm.Message{llm.System(execPrompt), llm.User(b.String())}
	response, err := p.client.Complete(ctx, messages, true)
	if err != nil {
		return nil, fmt.Errorf("subtask execution call: %w", err)
	}
	batch, err := schema.DecodeEditBatch(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return batch, nil
}

// Run plans the task's subtasks and executes them in order, delegating batch
// application to the apply callback. It returns (completed, planned); the
// task is done only when the two are equal and planned is nonzero. A nil
// return from PlanSubtasks yields (0, 0): no decomposition was possible.
func (p *Pipeline) Run(ctx context.Context, task *todo.Task, projectContext string, apply Apply) (int, int) {
	subtasks := p.PlanSubtasks(ctx, task, projectContext)
	if len(subtasks) == 0 {
		return 0, 0
	}
	logger.Info("executing subtasks", "task", task.ID, "count", len(subtasks))

	var done []schema.Subtask
	for i, sub := range subtasks {
		if ctx.Err() != nil {
			break
		}
		p.notify(Event{Kind: EventStarted, Subtask: sub, Index: i + 1, Total: len(subtasks)})

		batch, err := p.ExecuteSubtask(ctx, task, sub, done, projectContext)
		if err == nil {
			err = apply(sub, batch)
		}
		if err != nil {
			logger.Warn("subtask failed", "task", task.ID, "subtask", i+1, "error", err)
			p.notify(Event{Kind: EventFailed, Subtask: sub, Index: i + 1, Total: len(subtasks), Err: err})
			continue
		}

		done = append(done, sub)
		p.notify(Event{Kind: EventCompleted, Subtask: sub, Index: i + 1, Total: len(subtasks)})
	}
	return len(done), len(subtasks)
}

func (p *Pipeline) notify(e Event) {
	if p.observer != nil {
		p.observer(e)
	}
}
