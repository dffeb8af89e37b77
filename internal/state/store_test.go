package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/wethinkt/thinkt-live/internal/blocks"
	"github.com/wethinkt/thinkt-live/internal/processor"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("NewStore error = %v", err)
	}
	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newStore(t)

	ctx := processor.NewContext()
	for i := 0; i < 150; i++ {
		ctx.ToolUseIDToBlockID[fmt.Sprintf("toolu_%03d", i)] = fmt.Sprintf("%032x", i)
	}
	ctx.CurrentRequestID = "req-42"
	result := "ok"
	ctx.ToolCalls["toolu_001"] = blocks.ToolCallContent{ToolName: "Bash", ToolUseID: "toolu_001", Label: "ls", Result: &result}

	zone := time.FixedZone("UTC+05:30", 5*3600+30*60)
	want := SessionState{
		FilePosition:      123456,
		LineNumber:        789,
		ProcessingContext: ctx,
		LastModified:      time.Date(2026, 3, 14, 15, 9, 26, 535897000, zone),
	}
	if err := s.Save("sess-1", want); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	got, ok := s.Load("sess-1")
	if !ok {
		t.Fatal("Load returned no state")
	}
	if got.FilePosition != want.FilePosition || got.LineNumber != want.LineNumber {
		t.Errorf("offsets = (%d, %d), want (%d, %d)", got.FilePosition, got.LineNumber, want.FilePosition, want.LineNumber)
	}
	if !reflect.DeepEqual(got.ProcessingContext, want.ProcessingContext) {
		t.Errorf("context mismatch:\n got %#v\nwant %#v", got.ProcessingContext, want.ProcessingContext)
	}
	if !got.LastModified.Equal(want.LastModified) {
		t.Errorf("LastModified = %v, want %v", got.LastModified, want.LastModified)
	}
	_, gotOffset := got.LastModified.Zone()
	if gotOffset != 5*3600+30*60 {
		t.Errorf("zone offset = %d, want 19800", gotOffset)
	}
}

func TestSave_AbsentRequestIDIsNull(t *testing.T) {
	s := newStore(t)
	if err := s.Save("a", SessionState{LastModified: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(s.Path("a"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	pc := doc["processing_context"].(map[string]any)
	if v, ok := pc["current_request_id"]; !ok || v != nil {
		t.Errorf("current_request_id = %v (present %v), want null", v, ok)
	}

	got, ok := s.Load("a")
	if !ok || got.ProcessingContext.CurrentRequestID != "" {
		t.Errorf("Load = %+v, %v", got, ok)
	}
}

func TestLoad_Absent(t *testing.T) {
	s := newStore(t)
	cases := map[string]string{
		"corrupt":    `{"file_position": 1,`,
		"incomplete": `{"file_position": 1, "line_number": 2, "last_modified": "2026-01-01T00:00:00Z"}`,
		"bad-time":   `{"file_position": 1, "line_number": 2, "processing_context": {"tool_use_id_to_block_id": {}, "current_request_id": null}, "last_modified": "yesterday"}`,
		"bad-ctx":    `{"file_position": 1, "line_number": 2, "processing_context": {"current_request_id": null}, "last_modified": "2026-01-01T00:00:00Z"}`,
	}
	for id, body := range cases {
		if err := os.WriteFile(s.Path(id), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	for _, id := range []string{"missing", "corrupt", "incomplete", "bad-time", "bad-ctx"} {
		if st, ok := s.Load(id); ok {
			t.Errorf("Load(%s) = %+v, want absent", id, st)
		}
	}
}

func TestLoad_WithoutToolCalls(t *testing.T) {
	s := newStore(t)
	body := `{"file_position": 10, "line_number": 2, "processing_context": {"tool_use_id_to_block_id": {"t": "b"}, "current_request_id": "r"}, "last_modified": "2026-01-01T00:00:00+02:00"}`
	if err := os.WriteFile(s.Path("legacy"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	st, ok := s.Load("legacy")
	if !ok {
		t.Fatal("Load returned no state")
	}
	if st.ProcessingContext.ToolUseIDToBlockID["t"] != "b" || len(st.ProcessingContext.ToolCalls) != 0 {
		t.Errorf("context = %#v", st.ProcessingContext)
	}
}

func TestSave_Overwrites(t *testing.T) {
	s := newStore(t)
	for i := 1; i <= 3; i++ {
		if err := s.Save("x", SessionState{FilePosition: int64(i), LastModified: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	st, ok := s.Load("x")
	if !ok || st.FilePosition != 3 {
		t.Errorf("Load = %+v, %v; want position 3", st, ok)
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("state dir has %d entries, want 1 (temp files left behind?)", len(entries))
	}
}

func TestDeleteExists(t *testing.T) {
	s := newStore(t)
	if s.Exists("a") {
		t.Error("Exists before Save")
	}
	if err := s.Delete("a"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
	if err := s.Save("a", SessionState{LastModified: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if !s.Exists("a") {
		t.Error("Exists after Save = false")
	}
	ids, err := s.Sessions()
	if err != nil || len(ids) != 1 || ids[0] != "a" {
		t.Errorf("Sessions() = %v, %v", ids, err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if s.Exists("a") {
		t.Error("Exists after Delete = true")
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0d5c8c9e-1f2a-4b3c-9d8e-7f6a5b4c3d2e", "0d5c8c9e-1f2a-4b3c-9d8e-7f6a5b4c3d2e"},
		{"a/b\\c", "a_b_c"},
		{"a<>:\"|?*b", "a_b"},
		{"//lead and trail//", "lead and trail"},
		{"tab\there", "tab_here"},
		{"a__b", "a_b"},
		{"../../etc/passwd", "etc_passwd"},
		{"???", "session"},
		{"", "session"},
	}
	for _, tt := range tests {
		if got := SanitizeID(tt.in); got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
