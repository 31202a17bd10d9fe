package subtask

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/schema"
	"github.com/kestrelhq/kestrel/internal/todo"
)

// ---- Test helpers -----------------------------------------------------------

// fakeClient returns canned responses in call order.
type fakeClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeClient) Complete(_ context.Context, messages []llm.Message, _ bool) (string, error) {
	if len(messages) > 0 {
		f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	}
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.responses) {
		return "", errors.New("fake client: no more responses")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeClient) Model() string { return "fake" }

func testTask() *todo.Task {
	return &todo.Task{ID: 1, Description: "add config loader", Rationale: "needed by cli"}
}

const twoSubtasks = `{"subtasks": [
	{"description": "write loader", "file_path": "config.go", "operation": "create", "order": 2},
	{"description": "define struct", "file_path": "types.go", "operation": "create", "order": 1}
]}`

const emptyBatch = `{"edits": [], "completed": true}`

// ---- PlanSubtasks -----------------------------------------------------------

func TestPlanSubtasks_SortsByOrder(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{responses: []string{twoSubtasks}}, nil)
	subs := p.PlanSubtasks(context.Background(), testTask(), "ctx")

	require.Len(t, subs, 2)
	assert.Equal(t, "types.go", subs[0].FilePath)
	assert.Equal(t, "config.go", subs[1].FilePath)
}

func TestPlanSubtasks_NilOnClientError(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{err: errors.New("down")}, nil)
	assert.Nil(t, p.PlanSubtasks(context.Background(), testTask(), "ctx"))
}

func TestPlanSubtasks_NilOnGarbage(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{responses: []string{"not json at all"}}, nil)
	assert.Nil(t, p.PlanSubtasks(context.Background(), testTask(), "ctx"))
}

// ---- ExecuteSubtask ---------------------------------------------------------

func TestExecuteSubtask_CarriesCompletedContext(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []string{emptyBatch}}
	p := New(client, nil)

	done := []schema.Subtask{{Description: "define struct", FilePath: "types.go", Operation: "create"}}
	sub := schema.Subtask{Description: "write loader", FilePath: "config.go", Operation: "create"}
	_, err := p.ExecuteSubtask(context.Background(), testTask(), sub, done, "ctx")
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Already completed subtasks")
	assert.Contains(t, client.prompts[0], "define struct")
	assert.Contains(t, client.prompts[0], "Current subtask: write loader")
}

func TestExecuteSubtask_ErrorOnUndecodableResponse(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{responses: []string{"prose only"}}, nil)
	_, err := p.ExecuteSubtask(context.Background(), testTask(), schema.Subtask{Description: "x"}, nil, "ctx")
	assert.Error(t, err)
}

// ---- Run --------------------------------------------------------------------

func TestRun_AllSubtasksComplete(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []string{twoSubtasks, emptyBatch, emptyBatch}}
	var events []Event
	p := New(client, func(e Event) { events = append(events, e) })

	var applied []string
	done, planned := p.Run(context.Background(), testTask(), "ctx", func(sub schema.Subtask, _ *schema.EditBatch) error {
		applied = append(applied, sub.FilePath)
		return nil
	})

	assert.Equal(t, 2, done)
	assert.Equal(t, 2, planned)
	assert.Equal(t, []string{"types.go", "config.go"}, applied)

	kinds := make([]EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []EventKind{EventStarted, EventCompleted, EventStarted, EventCompleted}, kinds)
}

func TestRun_FailedSubtaskIsInert(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []string{twoSubtasks, emptyBatch, emptyBatch}}
	var events []Event
	p := New(client, func(e Event) { events = append(events, e) })

	// Fail the first subtask's application; the second still runs.
	calls := 0
	done, planned := p.Run(context.Background(), testTask(), "ctx", func(schema.Subtask, *schema.EditBatch) error {
		calls++
		if calls == 1 {
			return errors.New("validation failed")
		}
		return nil
	})

	assert.Equal(t, 1, done)
	assert.Equal(t, 2, planned)

	var failed, completed int
	for _, e := range events {
		switch e.Kind {
		case EventFailed:
			failed++
		case EventCompleted:
			completed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, completed)
}

func TestRun_NoDecompositionReturnsZeroZero(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{responses: []string{`{"subtasks": []}`}}, nil)
	done, planned := p.Run(context.Background(), testTask(), "ctx", func(schema.Subtask, *schema.EditBatch) error {
		t.Fatal("apply must not be called without subtasks")
		return nil
	})
	assert.Zero(t, done)
	assert.Zero(t, planned)
}
