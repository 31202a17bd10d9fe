package todo

import (
	"sort"

	"github.com/kestrelhq/kestrel/internal/logging"
)

var logger = logging.New("todo")

// EventType identifies a graph mutation for observers.
type EventType string

const (
	EventPlanSet        EventType = "plan_set"
	EventTaskInProgress EventType = "task_in_progress"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskAdded      EventType = "task_added"
	EventTaskRemoved    EventType = "task_removed"
)

// Observer receives graph mutation events. The task pointer is the affected
// task, or nil for EventPlanSet. Observers run synchronously inside the
// mutating call and must not mutate the graph re-entrantly.
type Observer func(event EventType, task *Task)

// Graph owns the task set for one plan. It is not safe for concurrent use;
// the execution loop is strictly sequential, so no locking is needed.
type Graph struct {
	tasks     []*Task
	summary   string
	currentID int // in-progress task ID, 0 when none
	observer  Observer
}

// NewGraph creates an empty graph. The observer may be nil.
func NewGraph(observer Observer) *Graph {
	return &Graph{observer: observer}
}

// SetPlan loads a plan into the graph, resetting every task to pending.
// Tasks without an active form get Description + "..." so the UI always has
// a progress-display string.
func (g *Graph) SetPlan(plan *Plan) {
	g.summary = plan.Summary
	g.tasks = make([]*Task, 0, len(plan.Tasks))
	g.currentID = 0
	for _, t := range plan.Tasks {
		c := *t
		c.Status = StatusPending
		if c.ActiveForm == "" {
			c.ActiveForm = c.Description + "..."
		}
		g.tasks = append(g.tasks, &c)
	}
	g.notify(EventPlanSet, nil)
}

// Summary returns the plan summary string.
func (g *Graph) Summary() string { return g.summary }

// Tasks returns the underlying task slice in plan order. Callers must treat
// the returned tasks as read-only; status changes go through the marking
// methods.
func (g *Graph) Tasks() []*Task { return g.tasks }

// Get returns the task with the given ID, or nil if absent.
func (g *Graph) Get(id int) *Task {
	for _, t := range g.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// MarkInProgress transitions a pending task to in_progress. Marking an
// unknown ID is a silent no-op: IDs are caller-supplied and a stale ID must
// not halt the loop. A completed task is never moved backward.
func (g *Graph) MarkInProgress(id int) {
	t := g.Get(id)
	if t == nil {
		logger.Debug("mark_in_progress: unknown task id", "id", id)
		return
	}
	if t.Status != StatusPending {
		logger.Debug("mark_in_progress: task not pending", "id", id, "status", t.Status)
		return
	}
	t.Status = StatusInProgress
	g.currentID = id
	g.notify(EventTaskInProgress, t)
}

// MarkCompleted transitions a task to completed. A pending task may complete
// directly (skipping in_progress) so that no-op tasks still count toward the
// completed set. Unknown IDs are a silent no-op.
func (g *Graph) MarkCompleted(id int) {
	t := g.Get(id)
	if t == nil {
		logger.Debug("mark_completed: unknown task id", "id", id)
		return
	}
	t.Status = StatusCompleted
	if g.currentID == id {
		g.currentID = 0
	}
	g.notify(EventTaskCompleted, t)
}

// Current returns the in-progress task, or nil when none is active.
func (g *Graph) Current() *Task {
	if g.currentID == 0 {
		return nil
	}
	return g.Get(g.currentID)
}

// AddTask appends a new pending task with ID = max existing ID + 1. It
// supports the agent discovering more work mid-execution.
func (g *Graph) AddTask(description, rationale string, priority Priority, activeForm string, dependencies []int) *Task {
	maxID := 0
	for _, t := range g.tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	if activeForm == "" {
		activeForm = description + "..."
	}
	if priority == "" {
		priority = PriorityMedium
	}
	t := &Task{
		ID:           maxID + 1,
		Description:  description,
		ActiveForm:   activeForm,
		Rationale:    rationale,
		Priority:     priority,
		Status:       StatusPending,
		Dependencies: append([]int(nil), dependencies...),
	}
	g.tasks = append(g.tasks, t)
	g.notify(EventTaskAdded, t)
	return t
}

// RemoveTask deletes the task with the given ID, returning whether a removal
// occurred. Dependents are not cascade-removed: a task referencing a removed
// dependency can never become eligible, and the loop's escape valve handles
// that case.
func (g *Graph) RemoveTask(id int) bool {
	for i, t := range g.tasks {
		if t.ID == id {
			g.tasks = append(g.tasks[:i], g.tasks[i+1:]...)
			if g.currentID == id {
				g.currentID = 0
			}
			g.notify(EventTaskRemoved, t)
			return true
		}
	}
	return false
}

// ReadyTasks returns pending tasks whose dependencies are all completed, in
// plan order.
func (g *Graph) ReadyTasks() []*Task {
	completed := g.completedIDs()
	var ready []*Task
	for _, t := range g.tasks {
		if t.IsPending() && t.IsReady(completed) {
			ready = append(ready, t)
		}
	}
	return ready
}

// NextTask returns the highest-priority ready task, breaking ties by ID
// ascending. Returns nil when nothing is eligible; the caller decides the
// fallback policy (the loop's escape valve).
func (g *Graph) NextTask() *Task {
	ready := g.ReadyTasks()
	if len(ready) == 0 {
		return nil
	}
	sort.SliceStable(ready, func(i, j int) bool {
		ri, rj := priorityRank(ready[i].Priority), priorityRank(ready[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return ready[i].ID < ready[j].ID
	})
	return ready[0]
}

// FirstPending returns the first pending task in plan order regardless of
// dependencies, or nil when none remain. This is the escape valve used when
// a dependency cycle (or a removed dependency) leaves no task eligible.
func (g *Graph) FirstPending() *Task {
	for _, t := range g.tasks {
		if t.IsPending() {
			return t
		}
	}
	return nil
}

// PendingTasks returns all pending tasks in plan order.
func (g *Graph) PendingTasks() []*Task {
	var out []*Task
	for _, t := range g.tasks {
		if t.IsPending() {
			out = append(out, t)
		}
	}
	return out
}

// CompletedTasks returns all completed tasks in plan order.
func (g *Graph) CompletedTasks() []*Task {
	var out []*Task
	for _, t := range g.tasks {
		if t.IsCompleted() {
			out = append(out, t)
		}
	}
	return out
}

// AllCompleted returns true if every task is completed. An empty graph is
// trivially complete.
func (g *Graph) AllCompleted() bool {
	for _, t := range g.tasks {
		if !t.IsCompleted() {
			return false
		}
	}
	return true
}

// HasRemainingWork returns true if any task is not completed.
func (g *Graph) HasRemainingWork() bool {
	return !g.AllCompleted()
}

// Progress returns (completed count, total count).
func (g *Graph) Progress() (completed, total int) {
	for _, t := range g.tasks {
		if t.IsCompleted() {
			completed++
		}
	}
	return completed, len(g.tasks)
}

// completedIDs returns the set of completed task IDs.
func (g *Graph) completedIDs() map[int]bool {
	m := make(map[int]bool)
	for _, t := range g.tasks {
		if t.IsCompleted() {
			m[t.ID] = true
		}
	}
	return m
}

// notify invokes the observer if one is registered.
func (g *Graph) notify(event EventType, t *Task) {
	if g.observer != nil {
		g.observer(event, t)
	}
}
