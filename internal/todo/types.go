// Package todo holds the task plan for a single user request and computes
// execution order under dependency and priority constraints. The Graph type
// exclusively owns task status; callers mutate it only through the marking
// methods so that the Pending -> InProgress -> Completed progression stays
// monotonic.
package todo

// Status represents the current state of a task.
type Status string

const (
	// StatusPending indicates the task has not begun execution.
	StatusPending Status = "pending"

	// StatusInProgress indicates the task is currently being executed.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the task has finished.
	StatusCompleted Status = "completed"
)

// Priority orders eligible tasks. It is only a tie-break: a low-priority task
// whose dependencies are met still runs before a high-priority blocked one.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// priorityRank maps priorities to sort ranks (lower runs first). Unknown
// priorities rank as medium.
func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Task represents a single unit of planned work.
type Task struct {
	// ID is unique within a plan, assigned sequentially starting at 1.
	ID int `json:"id"`

	// Description is the imperative form ("Add unit tests for the parser").
	Description string `json:"task"`

	// ActiveForm is the present-continuous form shown while the task runs
	// ("Adding unit tests for the parser..."). Defaults to Description plus
	// an ellipsis when the planner does not supply one.
	ActiveForm string `json:"active_form,omitempty"`

	// Rationale explains why the task exists. Not interpreted by the engine.
	Rationale string `json:"reasoning"`

	// Priority is high, medium, or low.
	Priority Priority `json:"priority"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Dependencies lists task IDs that must be completed first.
	Dependencies []int `json:"dependencies"`
}

// IsPending returns true if the task has not started.
func (t *Task) IsPending() bool { return t.Status == StatusPending }

// IsCompleted returns true if the task has finished.
func (t *Task) IsCompleted() bool { return t.Status == StatusCompleted }

// IsReady returns true if every dependency ID is in the completed set.
// A task with no dependencies is always ready.
func (t *Task) IsReady(completed map[int]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// Plan is the planner's output for one user request: an ordered task list
// plus a one-line summary.
type Plan struct {
	Summary string  `json:"summary"`
	Tasks   []*Task `json:"todos"`
}
