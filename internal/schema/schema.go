// Package schema decodes the structured payloads Kestrel expects from the
// model: task plans, subtask batches, and edit batches.
//
// Decoding is deliberately forgiving. The pipeline is: extract a JSON span
// from the raw response (jsonutil), fall back to mechanical repair of
// near-JSON (jsonrepair), then coerce each field individually so a single
// malformed entry degrades to a default instead of failing the whole
// response. Semantic validation (vague plans, echoed requests) belongs to
// the callers, not here.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kestrelhq/kestrel/internal/jsonutil"
	"github.com/kestrelhq/kestrel/internal/logging"
	"github.com/kestrelhq/kestrel/internal/patch"
	"github.com/kestrelhq/kestrel/internal/todo"
)

var logger = logging.New("schema")

// Subtask is one decomposed step of a task: a focused operation against a
// single file.
type Subtask struct {
	Description string `json:"description"`
	FilePath    string `json:"file_path"`
	Operation   string `json:"operation"`
	Order       int    `json:"order"`
}

// EditBatch is the model's full response for one execution step.
type EditBatch struct {
	// Thinking is the model's free-text reasoning, shown only in verbose mode.
	Thinking string `json:"thinking"`

	// Commands are shell commands to run before applying edits.
	Commands []string `json:"commands"`

	// Searches are project-content queries whose results feed back into the
	// next prompt.
	Searches []string `json:"searches"`

	// Edits are the proposed file modifications, applied in order.
	Edits []patch.Candidate `json:"edits"`

	// Completed signals that the model considers the current task done.
	Completed bool `json:"completed"`

	// NextSteps describes suggested follow-up work for the summary.
	NextSteps []string `json:"next_steps"`
}

// decodeObject extracts the first JSON object from a model response and
// unmarshals it into a generic map. When direct extraction fails, the raw
// text is run through mechanical JSON repair (unquoted keys, trailing commas,
// single quotes) and extraction is retried.
func decodeObject(text string) (map[string]interface{}, error) {
	raw, err := jsonutil.Extract(text)
	if err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, fmt.Errorf("schema: no JSON object in response: %w", err)
		}
		logger.Debug("extraction failed, using repaired JSON")
		raw, err = jsonutil.Extract(repaired)
		if err != nil {
			return nil, fmt.Errorf("schema: no JSON object in response after repair: %w", err)
		}
	}

	var m map[string]interface{}
	if uerr := json.Unmarshal(raw, &m); uerr != nil {
		return nil, fmt.Errorf("schema: response is not a JSON object: %w", uerr)
	}
	return m, nil
}

// DecodeTaskPlan decodes a planner response into a task plan. List entries
// that are not objects are dropped; missing fields default rather than fail.
func DecodeTaskPlan(text string) (*todo.Plan, error) {
	m, err := decodeObject(text)
	if err != nil {
		return nil, err
	}

	plan := &todo.Plan{Summary: asString(m["summary"])}
	for i, entry := range asList(m["todos"]) {
		em, ok := entry.(map[string]interface{})
		if !ok {
			logger.Debug("dropping non-object todo entry", "index", i)
			continue
		}
		t := &todo.Task{
			ID:           asInt(em["id"], i+1),
			Description:  asString(em["task"]),
			ActiveForm:   asString(em["active_form"]),
			Rationale:    asString(em["reasoning"]),
			Priority:     coercePriority(asString(em["priority"])),
			Status:       todo.StatusPending,
			Dependencies: asIntList(em["dependencies"]),
		}
		plan.Tasks = append(plan.Tasks, t)
	}
	return plan, nil
}

// DecodeSubtaskBatch decodes a decomposition response into subtasks. Entries
// without an order get their position in the list; callers sort by order.
func DecodeSubtaskBatch(text string) ([]Subtask, error) {
	m, err := decodeObject(text)
	if err != nil {
		return nil, err
	}

	var subtasks []Subtask
	for i, entry := range asList(m["subtasks"]) {
		em, ok := entry.(map[string]interface{})
		if !ok {
			logger.Debug("dropping non-object subtask entry", "index", i)
			continue
		}
		subtasks = append(subtasks, Subtask{
			Description: asString(em["description"]),
			FilePath:    asString(em["file_path"]),
			Operation:   strings.ToLower(asString(em["operation"])),
			Order:       asInt(em["order"], i+1),
		})
	}
	return subtasks, nil
}

// DecodeEditBatch decodes an execution-step response into an edit batch.
func DecodeEditBatch(text string) (*EditBatch, error) {
	m, err := decodeObject(text)
	if err != nil {
		return nil, err
	}

	batch := &EditBatch{
		Thinking:  asString(m["thinking"]),
		Commands:  asKeyedList(m["commands"], "command"),
		Searches:  asKeyedList(m["searches"], "query", "command"),
		Completed: asBool(m["completed"]),
		NextSteps: asStringList(m["next_steps"]),
	}
	for i, entry := range asList(m["edits"]) {
		em, ok := entry.(map[string]interface{})
		if !ok {
			logger.Debug("dropping non-object edit entry", "index", i)
			continue
		}
		batch.Edits = append(batch.Edits, patch.Candidate{
			Path:        asString(em["file_path"]),
			OldFragment: asString(em["old_content"]),
			NewFragment: asString(em["new_content"]),
			Description: asString(em["description"]),
		})
	}
	return batch, nil
}

// ---- Coercion helpers ----------------------------------------------------

// asString returns v as a string, or "" when absent or of the wrong type.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asBool returns v as a bool. The strings "true"/"false" are accepted since
// models occasionally quote booleans.
func asBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	default:
		return false
	}
}

// asInt returns v as an int, falling back to def when v is absent or not
// numeric. JSON numbers arrive as float64; numeric strings are parsed.
func asInt(v interface{}, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err == nil {
			return parsed
		}
	}
	return def
}

// asList returns v as a slice, or nil when v is absent or not a list.
func asList(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

// asStringList coerces v into a string slice: a list keeps its string
// elements (non-strings dropped), a bare string becomes a one-element list.
func asStringList(v interface{}) []string {
	switch val := v.(type) {
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}

// asKeyedList coerces v into a string slice where list entries may be either
// bare strings or objects carrying the value under one of the given keys
// (models emit both forms). Entries with none of the keys are dropped.
func asKeyedList(v interface{}, keys ...string) []string {
	var out []string
	for _, item := range asList(v) {
		switch e := item.(type) {
		case string:
			if e != "" {
				out = append(out, e)
			}
		case map[string]interface{}:
			for _, k := range keys {
				if s := asString(e[k]); s != "" {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out
}

// asIntList coerces v into an int slice, dropping non-numeric elements.
func asIntList(v interface{}) []int {
	var out []int
	for _, item := range asList(v) {
		if n, ok := item.(float64); ok {
			out = append(out, int(n))
		}
	}
	return out
}

// coercePriority normalizes a priority string, defaulting unknown values to
// medium.
func coercePriority(s string) todo.Priority {
	switch todo.Priority(strings.ToLower(strings.TrimSpace(s))) {
	case todo.PriorityHigh:
		return todo.PriorityHigh
	case todo.PriorityLow:
		return todo.PriorityLow
	default:
		return todo.PriorityMedium
	}
}
