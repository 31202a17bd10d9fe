package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/todo"
)

// ---- Test helpers -----------------------------------------------------------

// fakeClient returns canned responses in order, or err on every call.
type fakeClient struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeClient) Complete(_ context.Context, _ []llm.Message, _ bool) (string, error) {
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

const goodPlan = `{
	"summary": "add retry support",
	"todos": [
		{"id": 1, "task": "add backoff helper to client.go", "priority": "high", "dependencies": []},
		{"id": 2, "task": "call the helper from Fetch", "priority": "medium", "dependencies": [1]}
	]
}`

// ---- Plan -------------------------------------------------------------------

func TestPlan_AcceptsGoodDecomposition(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{responses: []string{goodPlan}})
	plan, decomposed := p.Plan(context.Background(), "add retry support to the HTTP client", "ctx")

	assert.True(t, decomposed)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, "add retry support", plan.Summary)
}

func TestPlan_FallsBackOnClientError(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{err: errors.New("boom")})
	plan, decomposed := p.Plan(context.Background(), "fix the flaky test", "ctx")

	assert.False(t, decomposed)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, "fix the flaky test", plan.Tasks[0].Description)
	assert.Equal(t, todo.PriorityHigh, plan.Tasks[0].Priority)
}

func TestPlan_FallsBackOnGarbageResponse(t *testing.T) {
	t.Parallel()

	p := New(&fakeClient{responses: []string{"I would be happy to help!"}})
	plan, decomposed := p.Plan(context.Background(), "fix the flaky test", "ctx")

	assert.False(t, decomposed)
	assert.Len(t, plan.Tasks, 1)
}

func TestPlan_RejectsSingleTaskPlan(t *testing.T) {
	t.Parallel()

	single := `{"summary": "s", "todos": [{"id": 1, "task": "do everything at once"}]}`
	p := New(&fakeClient{responses: []string{single}})
	_, decomposed := p.Plan(context.Background(), "refactor the parser", "ctx")
	assert.False(t, decomposed)
}

func TestPlan_RejectsVagueTasks(t *testing.T) {
	t.Parallel()

	vague := `{"summary": "s", "todos": [
		{"id": 1, "task": "fix the code"},
		{"id": 2, "task": "update the parser tests"}
	]}`
	p := New(&fakeClient{responses: []string{vague}})
	_, decomposed := p.Plan(context.Background(), "refactor the parser", "ctx")
	assert.False(t, decomposed)
}

func TestPlan_RejectsEchoedRequest(t *testing.T) {
	t.Parallel()

	echo := `{"summary": "s", "todos": [
		{"id": 1, "task": "Refactor the parser"},
		{"id": 2, "task": "verify parser output"}
	]}`
	p := New(&fakeClient{responses: []string{echo}})
	_, decomposed := p.Plan(context.Background(), "refactor the parser", "ctx")
	assert.False(t, decomposed)
}

func TestPlan_RejectsTooShortTask(t *testing.T) {
	t.Parallel()

	short := `{"summary": "s", "todos": [
		{"id": 1, "task": "fix it"},
		{"id": 2, "task": "update the parser tests"}
	]}`
	p := New(&fakeClient{responses: []string{short}})
	_, decomposed := p.Plan(context.Background(), "refactor the parser", "ctx")
	assert.False(t, decomposed)
}

// ---- Fallback ---------------------------------------------------------------

func TestFallback_SingleHighPriorityTask(t *testing.T) {
	t.Parallel()

	plan := Fallback("add logging")
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, 1, plan.Tasks[0].ID)
	assert.Equal(t, "add logging", plan.Summary)
	assert.Equal(t, todo.StatusPending, plan.Tasks[0].Status)
}
