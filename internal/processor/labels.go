package processor

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxLabelLength   = 60
	maxPatternLength = 40
)

// LabelFunc summarizes a tool's input parameters. It returns "" when it has
// nothing to say, in which case the fallback rule applies.
type LabelFunc func(input map[string]any) string

// Labeler maps tool names to label functions. Register everything before
// the labeler is shared; Label is safe for concurrent use after that.
type Labeler struct {
	funcs map[string]LabelFunc
}

// NewLabeler returns a labeler with the built-in rules for Claude Code tools.
func NewLabeler() *Labeler {
	l := &Labeler{funcs: make(map[string]LabelFunc)}
	for _, name := range []string{"Read", "Write", "Edit", "MultiEdit"} {
		l.Register(name, fileLabel("file_path"))
	}
	l.Register("NotebookEdit", fileLabel("notebook_path"))
	l.Register("Bash", bashLabel)
	l.Register("Grep", func(in map[string]any) string {
		return truncate(stringInput(in, "pattern"), maxPatternLength)
	})
	l.Register("Glob", func(in map[string]any) string { return stringInput(in, "pattern") })
	l.Register("WebFetch", webFetchLabel)
	l.Register("WebSearch", func(in map[string]any) string { return stringInput(in, "query") })
	l.Register("Task", func(in map[string]any) string { return stringInput(in, "description") })
	l.Register("Agent", func(in map[string]any) string { return stringInput(in, "description") })
	l.Register("TodoWrite", todoLabel)
	return l
}

// Register sets the label function for a tool, replacing any previous one.
func (l *Labeler) Register(tool string, fn LabelFunc) {
	l.funcs[tool] = fn
}

// Label returns a single-line summary of a tool call, at most 60 runes.
// Tools without a rule, or whose rule yields nothing, are labeled with their
// first short string input, else the tool name.
func (l *Labeler) Label(tool string, input map[string]any) string {
	var label string
	if fn, ok := l.funcs[tool]; ok {
		label = fn(input)
	}
	if label == "" {
		label = firstStringInput(input)
	}
	if label == "" {
		label = tool
	}
	return truncate(singleLine(label), maxLabelLength)
}

func fileLabel(key string) LabelFunc {
	return func(in map[string]any) string {
		p := stringInput(in, key)
		if p == "" {
			return ""
		}
		return path.Base(strings.ReplaceAll(p, "\\", "/"))
	}
}

func bashLabel(in map[string]any) string {
	if desc := stringInput(in, "description"); desc != "" {
		return desc
	}
	if fields := strings.Fields(stringInput(in, "command")); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func webFetchLabel(in map[string]any) string {
	raw := stringInput(in, "url")
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

func todoLabel(in map[string]any) string {
	todos, ok := in["todos"].([]any)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d todos", len(todos))
}

func stringInput(in map[string]any, key string) string {
	s, _ := in[key].(string)
	return strings.TrimSpace(s)
}

// firstStringInput picks the first non-empty single-line string value in key
// order, so the result does not depend on map iteration order.
func firstStringInput(in map[string]any) string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := stringInput(in, k)
		if s != "" && !strings.Contains(s, "\n") && utf8.RuneCountInString(s) <= maxLabelLength {
			return s
		}
	}
	return ""
}

func singleLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
