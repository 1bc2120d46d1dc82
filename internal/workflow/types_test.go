package workflow

import (
	"reflect"
	"testing"
)

func TestMapInputs(t *testing.T) {
	ctx := map[string]any{"topic": "launch", "draft": "hello", "audience": "devs"}

	tests := []struct {
		name   string
		inputs []string
		want   map[string]any
	}{
		{"empty passes everything", nil, ctx},
		{"plain keys", []string{"topic"}, map[string]any{"topic": "launch"}},
		{"rename", []string{"draft:content", "audience"}, map[string]any{"content": "hello", "audience": "devs"}},
		{"missing key skipped", []string{"missing:x", "topic"}, map[string]any{"topic": "launch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapInputs(tt.inputs, ctx)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mapInputs() = %v, want %v", got, tt.want)
			}
		})
	}

	got := mapInputs(nil, ctx)
	got["topic"] = "changed"
	if ctx["topic"] != "launch" {
		t.Error("mapInputs must not alias the context")
	}
}

func TestMergeOutputs(t *testing.T) {
	result := map[string]any{"draft": "hi", "tokens": 42}

	ctx := map[string]any{"topic": "launch"}
	mergeOutputs([]string{"draft", "absent"}, result, ctx)
	if want := (map[string]any{"topic": "launch", "draft": "hi"}); !reflect.DeepEqual(ctx, want) {
		t.Errorf("declared outputs: ctx = %v, want %v", ctx, want)
	}

	ctx = map[string]any{"topic": "launch"}
	mergeOutputs(nil, result, ctx)
	if len(ctx) != 3 {
		t.Errorf("undeclared outputs should merge every field, ctx = %v", ctx)
	}
}

func TestFilter(t *testing.T) {
	e := &Execution{DefinitionID: "wf", TenantID: "org1", Status: StatusRunning}
	tests := []struct {
		f    Filter
		want bool
	}{
		{Filter{}, true},
		{Filter{DefinitionID: "wf", TenantID: "org1", Status: StatusRunning}, true},
		{Filter{TenantID: "org2"}, false},
		{Filter{Status: StatusCompleted}, false},
	}
	for _, tt := range tests {
		if got := tt.f.match(e); got != tt.want {
			t.Errorf("%+v.match() = %v, want %v", tt.f, got, tt.want)
		}
	}
}
