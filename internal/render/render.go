// Package render turns blocks into terminal text for the tail and replay
// commands. Styled output uses lipgloss and renders assistant markdown with
// glamour; plain output is stable line-oriented text.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/wethinkt/thinkt-live/internal/blocks"
)

const (
	minWidth       = 20
	maxResultLines = 8
)

// Styles holds the lipgloss styles for each block type.
type Styles struct {
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	ToolLabel      lipgloss.Style
	QuestionLabel  lipgloss.Style
	ThinkingLabel  lipgloss.Style

	UserBlock      lipgloss.Style
	AssistantBlock lipgloss.Style
	SystemBlock    lipgloss.Style
	ToolBlock      lipgloss.Style
	ErrorBlock     lipgloss.Style
	Muted          lipgloss.Style
}

// DefaultStyles returns the dark palette.
func DefaultStyles() Styles {
	block := lipgloss.NewStyle().Padding(0, 1)
	return Styles{
		UserLabel:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true),
		AssistantLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")).Bold(true),
		SystemLabel:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
		ToolLabel:      lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true),
		QuestionLabel:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true),
		ThinkingLabel:  lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Italic(true),

		UserBlock:      block.Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("#7aa2f7")),
		AssistantBlock: block,
		SystemBlock:    block.Foreground(lipgloss.Color("#a9b1d6")),
		ToolBlock:      block.Foreground(lipgloss.Color("#a9b1d6")),
		ErrorBlock:     block.Foreground(lipgloss.Color("#f7768e")),
		Muted:          lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
	}
}

// Renderer formats blocks for a terminal of a given width.
type Renderer struct {
	width  int
	styled bool
	styles Styles
	md     *glamour.TermRenderer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStyles overrides the default palette.
func WithStyles(s Styles) Option {
	return func(r *Renderer) { r.styles = s }
}

// New returns a renderer. When styled is false the output carries no escape
// sequences.
func New(width int, styled bool, opts ...Option) *Renderer {
	r := &Renderer{
		width:  max(minWidth, width),
		styled: styled,
		styles: DefaultStyles(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if styled {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(r.width-4),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// Block renders one block. The result has no trailing newline.
func (r *Renderer) Block(b blocks.Block) string {
	if !r.styled {
		return Plain(b)
	}
	width := r.width - 2
	s := r.styles
	switch c := b.Content.(type) {
	case blocks.UserContent:
		return s.UserLabel.Render("User") + "\n" + s.UserBlock.Width(width).Render(c.Text)

	case blocks.AssistantContent:
		text := c.Text
		if r.md != nil {
			if out, err := r.md.Render(text); err == nil {
				text = strings.Trim(out, "\n")
			}
		}
		return s.AssistantLabel.Render("Assistant") + "\n" + s.AssistantBlock.Width(width).Render(text)

	case blocks.SystemContent:
		return s.SystemLabel.Render("System") + "\n" + s.SystemBlock.Width(width).Render(c.Text)

	case blocks.ToolCallContent:
		head := s.ToolLabel.Render(c.ToolName) + " " + c.Label + " " + toolStatus(c)
		body := toolBody(c)
		if body == "" {
			return head
		}
		style := s.ToolBlock
		if c.IsError {
			style = s.ErrorBlock
		}
		return head + "\n" + style.Width(width).Render(body)

	case blocks.QuestionContent:
		return s.QuestionLabel.Render("Question") + "\n" + s.SystemBlock.Width(width).Render(questionBody(c))

	case blocks.ThinkingContent:
		return s.ThinkingLabel.Render("Thinking...")

	case blocks.DurationContent:
		return s.Muted.Render("Turn took " + formatDuration(c.DurationMs))
	}
	return ""
}

// Plain renders a block as unstyled text, one "[type] ..." header line
// followed by any indented detail.
func Plain(b blocks.Block) string {
	switch c := b.Content.(type) {
	case blocks.UserContent:
		return "[user] " + indent(c.Text)
	case blocks.AssistantContent:
		return "[assistant] " + indent(c.Text)
	case blocks.SystemContent:
		return "[system] " + indent(c.Text)
	case blocks.ToolCallContent:
		head := fmt.Sprintf("[tool] %s %s %s", c.ToolName, c.Label, toolStatus(c))
		if body := toolBody(c); body != "" {
			return head + "\n  " + indent(body)
		}
		return head
	case blocks.QuestionContent:
		return "[question] " + indent(questionBody(c))
	case blocks.ThinkingContent:
		return "[thinking]"
	case blocks.DurationContent:
		return "[duration] " + formatDuration(c.DurationMs)
	}
	return ""
}

func toolStatus(c blocks.ToolCallContent) string {
	switch {
	case c.Result != nil && c.IsError:
		return "✗"
	case c.Result != nil:
		return "✓"
	default:
		return "…"
	}
}

func toolBody(c blocks.ToolCallContent) string {
	switch {
	case c.Result != nil:
		return clipLines(*c.Result, maxResultLines)
	case c.ProgressText != nil:
		return *c.ProgressText
	}
	return ""
}

func questionBody(c blocks.QuestionContent) string {
	var b strings.Builder
	for i, q := range c.Questions {
		if i > 0 {
			b.WriteByte('\n')
		}
		if q.Header != "" {
			b.WriteString(q.Header + ": ")
		}
		b.WriteString(q.Question)
		if a, ok := c.Answers[q.Question]; ok {
			b.WriteString(" -> " + a)
			continue
		}
		if len(q.Options) > 0 {
			labels := make([]string, len(q.Options))
			for j, o := range q.Options {
				labels[j] = o.Label
			}
			b.WriteString(" [" + strings.Join(labels, " | ") + "]")
		}
	}
	// Answers to questions that are not listed, in a stable order.
	var extra []string
	for q := range c.Answers {
		if !hasQuestion(c.Questions, q) {
			extra = append(extra, q)
		}
	}
	sort.Strings(extra)
	for _, q := range extra {
		b.WriteString("\n" + q + " -> " + c.Answers[q])
	}
	return b.String()
}

func hasQuestion(qs []blocks.Question, text string) bool {
	for _, q := range qs {
		if q.Question == text {
			return true
		}
	}
	return false
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func clipLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
