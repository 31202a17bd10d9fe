// Package planner turns a user request into an ordered task plan via one
// model call. A response that fails to decode, or that decomposes poorly
// (vague tasks, a bare echo of the request, fewer than two steps), falls
// back to a single whole-request task so the session always has a plan.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/logging"
	"github.com/kestrelhq/kestrel/internal/schema"
	"github.com/kestrelhq/kestrel/internal/todo"
)

var logger = logging.New("planner")

// minDecomposedTasks is the smallest plan worth running through per-task
// decomposition; anything smaller executes as one unit.
const minDecomposedTasks = 2

// minTaskChars rejects descriptions too short to be actionable.
const minTaskChars = 8

// vagueTasks are generic non-plans the model sometimes emits verbatim.
var vagueTasks = map[string]bool{
	"fix the code":          true,
	"update the code":       true,
	"make changes":          true,
	"implement the feature": true,
	"complete the task":     true,
	"do the task":           true,
}

const systemPrompt = `You are a senior software engineer planning a code change.
Break the user's request into concrete, independently completable tasks.
Respond with a JSON object:
{
  "summary": "one-line summary of the overall change",
  "todos": [
    {
      "id": 1,
      "task": "imperative description of the step",
      "reasoning": "why this step is needed",
      "priority": "high|medium|low",
      "dependencies": [ids of tasks that must complete first]
    }
  ]
}
Each task must name specific files or components. Never restate the request
as a single task. Respond with JSON only.`

// Planner produces task plans from user requests.
type Planner struct {
	client llm.Client
}

// New creates a planner backed by the given completion client.
func New(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Plan asks the model to decompose the request against the given project
// context. The boolean result reports whether a real decomposition was
// produced; false means the fallback single-task plan is in effect and the
// loop should execute the request as one unit.
func (p *Planner) Plan(ctx context.Context, request, projectContext string) (*todo.Plan, bool) {
	prompt := fmt.Sprintf("Project context:\n%s\n\nRequest:\n%s", projectContext, request)
	messages := []llm.Message{llm.System(systemPrompt), llm.User(prompt)}

	response, err := p.client.Complete(ctx, messages, true)
	if err != nil {
		logger.Warn("planning call failed, using single-task plan", "error", err)
		return Fallback(request), false
	}

	plan, err := schema.DecodeTaskPlan(response)
	if err != nil {
		logger.Warn("plan response did not decode, using single-task plan", "error", err)
		return Fallback(request), false
	}

	if reason := validate(plan, request); reason != "" {
		logger.Warn("rejecting model plan, using single-task plan", "reason", reason)
		return Fallback(request), false
	}

	logger.Info("plan ready", "tasks", len(plan.Tasks), "summary", plan.Summary)
	return plan, true
}

// Fallback builds the single-task plan used when decomposition fails: the
// whole request executes as one high-priority task.
func Fallback(request string) *todo.Plan {
	return &todo.Plan{
		Summary: request,
		Tasks: []*todo.Task{{
			ID:          1,
			Description: request,
			Rationale:   "direct execution of the user request",
			Priority:    todo.PriorityHigh,
			Status:      todo.StatusPending,
		}},
	}
}

// validate returns a rejection reason, or "" when the plan is usable.
func validate(plan *todo.Plan, request string) string {
	if len(plan.Tasks) < minDecomposedTasks {
		return fmt.Sprintf("only %d task(s)", len(plan.Tasks))
	}
	trimmedReq := strings.ToLower(strings.TrimSpace(request))
	for _, t := range plan.Tasks {
		desc := strings.TrimSpace(t.Description)
		if len(desc) < minTaskChars {
			return fmt.Sprintf("task %d too short: %q", t.ID, desc)
		}
		lower := strings.ToLower(desc)
		if vagueTasks[lower] {
			return fmt.Sprintf("task %d is vague: %q", t.ID, desc)
		}
		if lower == trimmedReq {
			return fmt.Sprintf("task %d echoes the request", t.ID)
		}
	}
	return ""
}
