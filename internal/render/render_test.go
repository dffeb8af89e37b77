package render

import (
	"strings"
	"testing"

	"github.com/wethinkt/thinkt-live/internal/blocks"
)

func strPtr(s string) *string { return &s }

func TestPlain(t *testing.T) {
	tests := []struct {
		name    string
		content blocks.Content
		want    string
	}{
		{"user", blocks.UserContent{Text: "Hello\nthere"}, "[user] Hello\n  there"},
		{"assistant", blocks.AssistantContent{Text: "Hi"}, "[assistant] Hi"},
		{"system", blocks.SystemContent{Text: "done"}, "[system] done"},
		{"thinking", blocks.ThinkingContent{}, "[thinking]"},
		{"duration", blocks.DurationContent{DurationMs: 3240}, "[duration] 3.2s"},
		{"short duration", blocks.DurationContent{DurationMs: 250}, "[duration] 250ms"},
		{"tool pending", blocks.ToolCallContent{ToolName: "Read", Label: "main.go"}, "[tool] Read main.go …"},
		{"tool progress", blocks.ToolCallContent{ToolName: "Bash", Label: "ls", ProgressText: strPtr("b (2s)")}, "[tool] Bash ls …\n  b (2s)"},
		{"tool done", blocks.ToolCallContent{ToolName: "Bash", Label: "ls", Result: strPtr("a\nb\n")}, "[tool] Bash ls ✓\n  a\n  b"},
		{"tool error", blocks.ToolCallContent{ToolName: "Bash", Label: "ls", Result: strPtr("boom"), IsError: true}, "[tool] Bash ls ✗\n  boom"},
		{"question", blocks.QuestionContent{Questions: []blocks.Question{{
			Question: "Which DB?", Header: "Storage",
			Options: []blocks.Option{{Label: "sqlite"}, {Label: "postgres"}},
		}}}, "[question] Storage: Which DB? [sqlite | postgres]"},
		{"answered", blocks.QuestionContent{
			Questions: []blocks.Question{{Question: "Which DB?"}},
			Answers:   map[string]string{"Which DB?": "sqlite", "Extra?": "yes"},
		}, "[question] Which DB? -> sqlite\n  Extra? -> yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plain(blocks.Block{ID: "x", Content: tt.content})
			if got != tt.want {
				t.Errorf("Plain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlain_ClipsLongResults(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "line")
	}
	got := Plain(blocks.Block{Content: blocks.ToolCallContent{ToolName: "Bash", Result: strPtr(strings.Join(lines, "\n"))}})
	if !strings.HasSuffix(got, "... (12 more lines)") {
		t.Errorf("Plain() = %q", got)
	}
}

func TestRenderer_UnstyledMatchesPlain(t *testing.T) {
	b := blocks.Block{ID: "x", Content: blocks.AssistantContent{Text: "**bold**"}}
	if got := New(80, false).Block(b); got != Plain(b) {
		t.Errorf("Block() = %q", got)
	}
}

func TestRenderer_Styled(t *testing.T) {
	r := New(80, true)
	tests := []struct {
		content blocks.Content
		want    []string
	}{
		{blocks.UserContent{Text: "Hello"}, []string{"User", "Hello"}},
		{blocks.AssistantContent{Text: "Some *markdown*"}, []string{"Assistant", "markdown"}},
		{blocks.ToolCallContent{ToolName: "Read", Label: "main.go", Result: strPtr("package main")}, []string{"Read", "main.go", "package main"}},
		{blocks.QuestionContent{Questions: []blocks.Question{{Question: "Ok?"}}}, []string{"Question", "Ok?"}},
	}
	for _, tt := range tests {
		got := r.Block(blocks.Block{ID: "x", Content: tt.content})
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Errorf("Block(%T) = %q, missing %q", tt.content, got, w)
			}
		}
	}
}

func TestDocument(t *testing.T) {
	d := NewDocument()
	add := func(id, text string) blocks.Event {
		return blocks.AddBlock{Block: blocks.Block{ID: id, Content: blocks.UserContent{Text: text}}}
	}

	d.Apply(add("a", "one"))
	d.Apply(add("b", "two"))
	got, ok := d.Apply(blocks.UpdateBlock{BlockID: "a", Content: blocks.UserContent{Text: "uno"}})
	if !ok || got.ID != "a" || got.Content != (blocks.UserContent{Text: "uno"}) {
		t.Errorf("update = %+v, %v", got, ok)
	}
	if _, ok := d.Apply(blocks.UpdateBlock{BlockID: "missing", Content: blocks.UserContent{}}); ok {
		t.Error("update of unknown block should be ignored")
	}

	all := d.Blocks()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("blocks = %+v", all)
	}
	if all[0].Content != (blocks.UserContent{Text: "uno"}) {
		t.Errorf("first = %+v", all[0])
	}

	if _, ok := d.Apply(blocks.ClearAll{}); ok || d.Len() != 0 {
		t.Errorf("after clear: ok=%v len=%d", ok, d.Len())
	}
	d.Apply(add("c", "three"))
	if d.Len() != 1 || d.Blocks()[0].ID != "c" {
		t.Errorf("blocks after clear = %+v", d.Blocks())
	}
}
