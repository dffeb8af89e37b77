package processor

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/wethinkt/thinkt-live/internal/blocks"
)

func lines(raw ...string) []Line {
	out := make([]Line, len(raw))
	for i, r := range raw {
		out[i] = Line{Number: i + 1, Raw: []byte(r)}
	}
	return out
}

func positional() *Processor {
	return New("sess-1", WithIDs(PositionalIDs{}))
}

const (
	toolUseLine = `{"type":"assistant","requestId":"req-1","message":{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"Bash","input":{"command":"ls -la","description":"List files"}}]}}`
	progress1   = `{"type":"progress","parentToolUseID":"toolu_1","data":{"type":"bash_progress","output":"a\nb\n","elapsedTimeSeconds":2}}`
	progress2   = `{"type":"progress","parentToolUseID":"toolu_1","data":{"type":"bash_progress","output":"a\nb\nc","elapsedTimeSeconds":3.4}}`
	resultLine  = `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"a\nb\nc"}]}}`
	compactLine = `{"type":"system","subtype":"compact_boundary"}`
)

func TestTransform_UserThenAssistant(t *testing.T) {
	p := New("sess-1")
	events, ctx := p.Transform(lines(
		`{"type":"user","message":{"role":"user","content":"Hello, Claude"}}`,
		`{"type":"assistant","requestId":"req-123","message":{"role":"assistant","content":[{"type":"text","text":"Hello! How can I help?"}]}}`,
	), NewContext())

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %#v", len(events), events)
	}
	user, ok := events[0].(blocks.AddBlock)
	if !ok || user.Block.Content != (blocks.UserContent{Text: "Hello, Claude"}) || user.Block.RequestID != "" {
		t.Errorf("events[0] = %#v", events[0])
	}
	asst, ok := events[1].(blocks.AddBlock)
	if !ok || asst.Block.Content != (blocks.AssistantContent{Text: "Hello! How can I help?"}) {
		t.Errorf("events[1] = %#v", events[1])
	}
	if asst.Block.RequestID != "req-123" {
		t.Errorf("RequestID = %q, want req-123", asst.Block.RequestID)
	}
	if ctx.CurrentRequestID != "req-123" {
		t.Errorf("CurrentRequestID = %q, want req-123", ctx.CurrentRequestID)
	}
	if len(user.Block.ID) != 32 {
		t.Errorf("block id %q is not 32 hex characters", user.Block.ID)
	}
}

func TestTransform_ToolLifecycle(t *testing.T) {
	p := New("sess-1")
	events, ctx := p.Transform(lines(toolUseLine, progress1, progress2, resultLine), nil)

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %#v", len(events), events)
	}
	add, ok := events[0].(blocks.AddBlock)
	if !ok {
		t.Fatalf("events[0] = %T, want AddBlock", events[0])
	}
	want := blocks.ToolCallContent{ToolName: "Bash", ToolUseID: "toolu_1", Label: "List files"}
	if !reflect.DeepEqual(add.Block.Content, want) {
		t.Errorf("tool call content = %#v, want %#v", add.Block.Content, want)
	}
	if add.Block.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", add.Block.RequestID)
	}

	progressTexts := []string{"b (2s)", "c (3s)"}
	for i, text := range progressTexts {
		up, ok := events[i+1].(blocks.UpdateBlock)
		if !ok {
			t.Fatalf("events[%d] = %T, want UpdateBlock", i+1, events[i+1])
		}
		if up.BlockID != add.Block.ID {
			t.Errorf("events[%d] block id = %q, want %q", i+1, up.BlockID, add.Block.ID)
		}
		c := up.Content.(blocks.ToolCallContent)
		if c.ProgressText == nil || *c.ProgressText != text {
			t.Errorf("events[%d] progress = %v, want %q", i+1, c.ProgressText, text)
		}
		if c.ToolName != "Bash" || c.Label != "List files" {
			t.Errorf("events[%d] lost immutable fields: %#v", i+1, c)
		}
	}

	final, ok := events[3].(blocks.UpdateBlock)
	if !ok || final.BlockID != add.Block.ID {
		t.Fatalf("events[3] = %#v", events[3])
	}
	c := final.Content.(blocks.ToolCallContent)
	if c.Result == nil || *c.Result != "a\nb\nc" || c.IsError {
		t.Errorf("result content = %#v", c)
	}
	if c.ProgressText != nil {
		t.Errorf("ProgressText = %q, want cleared", *c.ProgressText)
	}
	if ctx.ToolUseIDToBlockID["toolu_1"] != add.Block.ID {
		t.Errorf("context map = %v", ctx.ToolUseIDToBlockID)
	}
}

func TestTransform_OrphanToolResult(t *testing.T) {
	events, _ := New("s").Transform(lines(
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"missing","content":[{"type":"text","text":"late output"}],"is_error":true}]}}`,
	), nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	add, ok := events[0].(blocks.AddBlock)
	if !ok || add.Block.Content != (blocks.SystemContent{Text: "late output"}) {
		t.Errorf("events[0] = %#v, want system block", events[0])
	}
}

func TestTransform_OrphanProgress(t *testing.T) {
	events, _ := New("s").Transform(lines(
		`{"type":"progress","parentToolUseID":"nope","data":{"type":"hook_progress","hookName":"lint"}}`,
		`{"type":"progress","parentToolUseID":"nope","data":{"type":"waiting_for_task","taskDescription":"npm test"}}`,
		`{"type":"progress","parentToolUseID":"nope","data":{"type":"mystery"}}`,
	), nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %#v", len(events), events)
	}
	add, ok := events[0].(blocks.AddBlock)
	if !ok || add.Block.Content != (blocks.SystemContent{Text: "Waiting: npm test"}) {
		t.Errorf("events[0] = %#v", events[0])
	}
}

func TestTransform_CompactionResets(t *testing.T) {
	p := New("s")
	_, ctx := p.Transform(lines(toolUseLine, progress1), nil)
	if len(ctx.ToolUseIDToBlockID) == 0 || ctx.CurrentRequestID == "" {
		t.Fatalf("expected accumulated state, got %+v", ctx)
	}

	events, ctx := p.Transform([]Line{{Number: 3, Raw: []byte(compactLine)}}, ctx)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if _, ok := events[0].(blocks.ClearAll); !ok {
		t.Errorf("events[0] = %T, want ClearAll", events[0])
	}
	if len(ctx.ToolUseIDToBlockID) != 0 || ctx.CurrentRequestID != "" || len(ctx.ToolCalls) != 0 {
		t.Errorf("context not reset: %+v", ctx)
	}

	// A result after the boundary no longer matches the old tool call.
	events, _ = p.Transform([]Line{{Number: 4, Raw: []byte(resultLine)}}, ctx)
	if _, ok := events[0].(blocks.AddBlock); !ok {
		t.Errorf("post-compaction result = %T, want orphan AddBlock", events[0])
	}
}

func TestProcess_MetaCompactionClears(t *testing.T) {
	p := New("s")
	ctx := NewContext()
	p.Process(ctx, Line{Number: 1, Raw: []byte(toolUseLine)})

	events := p.Process(ctx, Line{Number: 2, Raw: []byte(`{"type":"system","subtype":"compact_boundary","isMeta":true}`)})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if _, ok := events[0].(blocks.ClearAll); !ok {
		t.Errorf("events[0] = %T, want ClearAll", events[0])
	}
	if len(ctx.ToolUseIDToBlockID) != 0 {
		t.Errorf("context not reset: %+v", ctx)
	}
}

func TestProcess_NilContext(t *testing.T) {
	p := New("s")
	events := p.Process(nil, Line{Number: 1, Raw: []byte(toolUseLine)})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if _, ok := events[0].(blocks.AddBlock); !ok {
		t.Errorf("events[0] = %T, want AddBlock", events[0])
	}
	if events := p.Process(nil, Line{Number: 2, Raw: []byte(compactLine)}); len(events) != 1 {
		t.Errorf("compaction with nil context = %d events, want 1", len(events))
	}
}

func TestTransform_Pure(t *testing.T) {
	p := positional()
	in := NewContext()
	in.CurrentRequestID = "req-0"
	in.ToolUseIDToBlockID["toolu_0"] = "block0"
	in.ToolCalls["toolu_0"] = blocks.ToolCallContent{ToolName: "Read", ToolUseID: "toolu_0", Label: "main.go"}
	snapshot := in.Clone()

	batch := lines(toolUseLine, progress1, resultLine,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_0","content":"package main"}]}}`)

	ev1, ctx1 := p.Transform(batch, in)
	ev2, ctx2 := p.Transform(batch, in)

	if !reflect.DeepEqual(ev1, ev2) {
		t.Errorf("events differ between identical calls:\n%#v\n%#v", ev1, ev2)
	}
	if !reflect.DeepEqual(ctx1, ctx2) {
		t.Errorf("contexts differ between identical calls:\n%#v\n%#v", ctx1, ctx2)
	}
	if !reflect.DeepEqual(in, snapshot) {
		t.Errorf("input context mutated:\n got %#v\nwant %#v", in, snapshot)
	}

	ctx1.ToolUseIDToBlockID["extra"] = "x"
	ctx1.ToolCalls["extra"] = blocks.ThinkingContent{}
	if _, ok := in.ToolUseIDToBlockID["extra"]; ok {
		t.Error("new context aliases the input's block map")
	}
	if _, ok := ctx2.ToolCalls["extra"]; ok {
		t.Error("contexts from separate calls alias each other")
	}
}

func TestTransform_RandomIDsDistinct(t *testing.T) {
	var raw []string
	for i := 0; i < 200; i++ {
		raw = append(raw, `{"type":"user","message":{"role":"user","content":"again"}}`)
	}
	events, _ := New("s").Transform(lines(raw...), nil)
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		id := ev.(blocks.AddBlock).Block.ID
		if seen[id] {
			t.Fatalf("duplicate block id %q", id)
		}
		seen[id] = true
	}
}

func TestTransform_PositionalIDsStableAcrossReplay(t *testing.T) {
	p := positional()
	first, _ := p.Transform(lines(toolUseLine, resultLine), nil)
	again, _ := p.Transform(lines(toolUseLine, resultLine), nil)
	if first[0].(blocks.AddBlock).Block.ID != again[0].(blocks.AddBlock).Block.ID {
		t.Error("positional ids should be reproducible")
	}
	other, _ := New("sess-2", WithIDs(PositionalIDs{})).Transform(lines(toolUseLine), nil)
	if other[0].(blocks.AddBlock).Block.ID == first[0].(blocks.AddBlock).Block.ID {
		t.Error("positional ids should differ between sessions")
	}
}

func TestTransform_SkipsBadLines(t *testing.T) {
	events, _ := New("s").Transform(lines(
		`{"type":"user","message":{"role":"user","content":"one"}}`,
		`{not json`,
		``,
		`{"type":"summary","summary":"s","leafUuid":"x"}`,
		`{"type":"user","isMeta":true,"message":{"role":"user","content":"hidden"}}`,
		`{"type":"assistant","isSidechain":true,"message":{"role":"assistant","content":[{"type":"text","text":"hidden"}]}}`,
		`{"type":"user","message":{"role":"user","content":"two"}}`,
	), nil)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %#v", len(events), events)
	}
	if events[1].(blocks.AddBlock).Block.Content != (blocks.UserContent{Text: "two"}) {
		t.Errorf("events[1] = %#v", events[1])
	}
}

func TestTransform_AssistantParts(t *testing.T) {
	events, ctx := New("s").Transform(lines(
		`{"type":"assistant","requestId":"req-9","message":{"role":"assistant","content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"Reading."},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/src/app/main.go"}}]}}`,
		`{"type":"system","subtype":"turn_duration","durationMs":4200}`,
	), nil)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	wantTypes := []blocks.BlockType{blocks.TypeThinking, blocks.TypeAssistant, blocks.TypeToolCall, blocks.TypeDuration}
	for i, want := range wantTypes {
		if got := events[i].(blocks.AddBlock).Block.Type(); got != want {
			t.Errorf("events[%d] type = %q, want %q", i, got, want)
		}
	}
	if label := events[2].(blocks.AddBlock).Block.Content.(blocks.ToolCallContent).Label; label != "main.go" {
		t.Errorf("Read label = %q, want main.go", label)
	}
	if d := events[3].(blocks.AddBlock).Block; d.Content != (blocks.DurationContent{DurationMs: 4200}) || d.RequestID != "" {
		t.Errorf("duration block = %#v", d)
	}
	if ctx.CurrentRequestID != "" {
		t.Errorf("turn duration should clear the request id, got %q", ctx.CurrentRequestID)
	}
}

func TestTransform_UserTextPartsJoined(t *testing.T) {
	_, ctx := New("s").Transform(lines(toolUseLine), nil)
	events, ctx := New("s").Transform(lines(
		`{"type":"user","message":{"role":"user","content":[{"type":"text","text":"first"},{"type":"text","text":"second"}]}}`,
	), ctx)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].(blocks.AddBlock).Block.Content != (blocks.UserContent{Text: "first\nsecond"}) {
		t.Errorf("events[0] = %#v", events[0])
	}
	if ctx.CurrentRequestID != "" {
		t.Errorf("user input should clear the request id, got %q", ctx.CurrentRequestID)
	}
}

func TestTransform_LocalCommand(t *testing.T) {
	events, _ := New("s").Transform(lines(
		`{"type":"user","message":{"role":"user","content":"<local-command-stdout>Total cost: $0.10</local-command-stdout>"}}`,
		`{"type":"system","subtype":"local_command","content":"<local-command-stdout></local-command-stdout>"}`,
	), nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %#v", len(events), events)
	}
	if events[0].(blocks.AddBlock).Block.Content != (blocks.SystemContent{Text: "Total cost: $0.10"}) {
		t.Errorf("events[0] = %#v", events[0])
	}
}

func TestTransform_Question(t *testing.T) {
	events, _ := New("s").Transform(lines(
		`{"type":"assistant","requestId":"r","message":{"role":"assistant","content":[{"type":"tool_use","id":"q1","name":"AskUserQuestion","input":{"questions":[{"question":"Which DB?","header":"Storage","options":[{"label":"SQLite","description":"embedded"},{"label":"Postgres","description":"server"}],"multiSelect":false}]}}]}}`,
		`{"type":"user","toolUseResult":{"answers":{"Which DB?":"SQLite"}},"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"q1","content":"User answered"}]}}`,
	), nil)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	add := events[0].(blocks.AddBlock)
	q, ok := add.Block.Content.(blocks.QuestionContent)
	if !ok {
		t.Fatalf("content = %T, want QuestionContent", add.Block.Content)
	}
	if len(q.Questions) != 1 || q.Questions[0].Header != "Storage" || len(q.Questions[0].Options) != 2 {
		t.Errorf("questions = %#v", q.Questions)
	}
	up := events[1].(blocks.UpdateBlock)
	if up.BlockID != add.Block.ID {
		t.Errorf("update block id = %q, want %q", up.BlockID, add.Block.ID)
	}
	answered := up.Content.(blocks.QuestionContent)
	if answered.Answers["Which DB?"] != "SQLite" || len(answered.Questions) != 1 {
		t.Errorf("answered = %#v", answered)
	}
}

func TestTransform_ResumeFromPersistedContext(t *testing.T) {
	p := positional()
	_, ctx := p.Transform(lines(toolUseLine), nil)

	data, err := json.Marshal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	restored := new(Context)
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}

	events, _ := p.Transform([]Line{{Number: 2, Raw: []byte(resultLine)}}, restored)
	c := events[0].(blocks.UpdateBlock).Content.(blocks.ToolCallContent)
	if c.ToolName != "Bash" || c.Label != "List files" {
		t.Errorf("resumed update lost tool fields: %#v", c)
	}
}

func TestProcess_AgentProgress(t *testing.T) {
	p := New("s")
	ctx := NewContext()
	p.Process(ctx, Line{Number: 1, Raw: []byte(`{"type":"assistant","requestId":"r","message":{"role":"assistant","content":[{"type":"tool_use","id":"task1","name":"Task","input":{"description":"Find callers","prompt":"..."}}]}}`)})
	events := p.Process(ctx, Line{Number: 2, Raw: []byte(`{"type":"progress","parentToolUseID":"task1","data":{"type":"agent_progress","agentId":"a","message":{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"x","name":"Grep","input":{"pattern":"Connect("}}]}}}}`)})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	c := events[0].(blocks.UpdateBlock).Content.(blocks.ToolCallContent)
	if c.ProgressText == nil || *c.ProgressText != "Agent: Grep Connect(" {
		t.Errorf("progress = %v", c.ProgressText)
	}
	if c.Label != "Find callers" {
		t.Errorf("Label = %q, want Find callers", c.Label)
	}
}

func TestProgressSummary(t *testing.T) {
	p := New("s")
	tests := []struct {
		data string
		want string
	}{
		{`{"type":"hook_progress","hookEvent":"PostToolUse","hookName":"gofmt"}`, "Hook: gofmt"},
		{`{"type":"query_update","query":"go generics"}`, "Searching: go generics"},
		{`{"type":"search_results_received","query":"go generics","resultCount":7}`, "7 results for go generics"},
		{`{"type":"waiting_for_task","taskDescription":"build"}`, "Waiting: build"},
		{`{"type":"bash_progress","output":"","elapsedTimeSeconds":1}`, "Running (1s)"},
	}
	for _, tt := range tests {
		ctx := NewContext()
		p.Process(ctx, Line{Number: 1, Raw: []byte(toolUseLine)})
		raw := `{"type":"progress","parentToolUseID":"toolu_1","data":` + tt.data + `}`
		events := p.Process(ctx, Line{Number: 2, Raw: []byte(raw)})
		if len(events) != 1 {
			t.Errorf("%s: got %d events", tt.data, len(events))
			continue
		}
		c := events[0].(blocks.UpdateBlock).Content.(blocks.ToolCallContent)
		if c.ProgressText == nil || *c.ProgressText != tt.want {
			t.Errorf("%s: progress = %v, want %q", tt.data, c.ProgressText, tt.want)
		}
	}
}

func TestContextJSON(t *testing.T) {
	ctx := NewContext()
	data, err := json.Marshal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"tool_use_id_to_block_id":{},"current_request_id":null}`; string(data) != want {
		t.Errorf("Marshal(empty) = %s, want %s", data, want)
	}

	var c Context
	if err := json.Unmarshal([]byte(`{"current_request_id":"r"}`), &c); err == nil {
		t.Error("expected error for missing tool_use_id_to_block_id")
	}
	if err := json.Unmarshal([]byte(`{"tool_use_id_to_block_id":{"a":"b"},"current_request_id":"r"}`), &c); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if c.CurrentRequestID != "r" || c.ToolUseIDToBlockID["a"] != "b" || c.ToolCalls == nil {
		t.Errorf("decoded = %#v", c)
	}
	if strings.Contains(string(data), "tool_calls") {
		t.Error("empty tool_calls should be omitted")
	}
}

func TestNewIDGenerator(t *testing.T) {
	if _, err := NewIDGenerator("sequential"); err == nil {
		t.Error("expected error for unknown strategy")
	}
	g, err := NewIDGenerator("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(RandomIDs); !ok {
		t.Errorf("default generator = %T, want RandomIDs", g)
	}
}
