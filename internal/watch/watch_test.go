package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		t.Fatal(err)
	}
}

func TestTailer_CompleteLinesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	appendFile(t, path, "{\"a\":1}\n{\"b\":2}\r\n{\"partial\":")

	b, err := Tailer{}.Read(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(b.Lines))
	}
	if string(b.Lines[1].Raw) != `{"b":2}` || b.Lines[1].Number != 2 {
		t.Errorf("line 2 = %q (#%d)", b.Lines[1].Raw, b.Lines[1].Number)
	}
	if b.Offset != int64(len("{\"a\":1}\n{\"b\":2}\r\n")) || b.LineNumber != 2 || b.Reset {
		t.Errorf("batch = %+v", b)
	}

	appendFile(t, path, "3}\n")
	b2, err := Tailer{}.Read(path, b.Offset, b.LineNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(b2.Lines) != 1 || string(b2.Lines[0].Raw) != `{"partial":3}` || b2.Lines[0].Number != 3 {
		t.Errorf("second read = %+v", b2)
	}
}

func TestTailer_FinalReadsUnterminatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	appendFile(t, path, "{\"a\":1}\n{\"last\":2}")

	b, err := Tailer{Final: true}.Read(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Lines) != 2 || string(b.Lines[1].Raw) != `{"last":2}` || b.Lines[1].Number != 2 {
		t.Fatalf("lines = %+v", b.Lines)
	}
	if b.Offset != int64(len("{\"a\":1}\n{\"last\":2}")) || b.More {
		t.Errorf("batch = %+v", b)
	}

	// Trailing whitespace is not a line.
	appendFile(t, path, "\n  ")
	b2, err := Tailer{Final: true}.Read(path, b.Offset, b.LineNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(b2.Lines) != 1 || len(b2.Lines[0].Raw) != 0 {
		t.Errorf("second read = %+v", b2.Lines)
	}
}

func TestTailer_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	appendFile(t, path, "one\ntwo\nthree\n")
	first, err := Tailer{}.Read(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Tailer{}.Read(path, first.Offset, first.LineNumber)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Reset || len(b.Lines) != 1 || b.Lines[0].Number != 1 || string(b.Lines[0].Raw) != "new" {
		t.Errorf("batch after truncation = %+v", b)
	}
}

func TestTailer_MaxLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	appendFile(t, path, "1\n2\n3\n4\n5\n")

	tl := Tailer{MaxLines: 2}
	var got []string
	offset, line := int64(0), 0
	for i := 0; i < 10; i++ {
		b, err := tl.Read(path, offset, line)
		if err != nil {
			t.Fatal(err)
		}
		for _, l := range b.Lines {
			got = append(got, string(l.Raw))
		}
		offset, line = b.Offset, b.LineNumber
		if !b.More {
			break
		}
	}
	if len(got) != 5 || got[4] != "5" || line != 5 {
		t.Errorf("lines = %v, last line %d", got, line)
	}
}

func TestTailer_MissingFile(t *testing.T) {
	if _, err := (Tailer{}).Read(filepath.Join(t.TempDir(), "nope.jsonl"), 0, 0); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSessionID(t *testing.T) {
	if got := SessionID("/x/projects/-home-u-app/0d5c8c9e.jsonl"); got != "0d5c8c9e" {
		t.Errorf("SessionID = %q", got)
	}
}

func TestWatcher_ChangeAndRemove(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "project")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher([]string{root}, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := w.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(project, "abc.jsonl")
	appendFile(t, path, "{}\n")
	appendFile(t, path, "{}\n")
	appendFile(t, filepath.Join(project, "notes.txt"), "ignored")

	ev := next(t, events)
	if ev.Kind != Changed || ev.SessionID != "abc" {
		t.Errorf("event = %+v, want change of abc", ev)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	for {
		ev = next(t, events)
		if ev.Kind == Removed {
			break
		}
	}
	if ev.SessionID != "abc" {
		t.Errorf("removed session = %q", ev.SessionID)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher([]string{root}, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	events, err := w.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(root, "later")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	appendFile(t, filepath.Join(sub, "late.jsonl"), "{}\n")

	if ev := next(t, events); ev.SessionID != "late" {
		t.Errorf("event = %+v", ev)
	}
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return Event{}
	}
}
