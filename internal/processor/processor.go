// Package processor turns transcript lines into block events. A Processor
// handles one line at a time against a Context; Transform applies it to a
// batch without touching the caller's context.
package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/blocks"
	"github.com/wethinkt/thinkt-live/internal/transcript"
)

// ToolAskUserQuestion is rendered as a question block instead of a tool call.
const ToolAskUserQuestion = "AskUserQuestion"

// Line is one raw transcript line and its 1-based position in the file.
type Line struct {
	Number int
	Raw    []byte
}

// Processor converts lines of one session. It holds no per-call state, so
// one Processor may serve concurrent Transform calls.
type Processor struct {
	sessionID string
	ids       IDGenerator
	labels    *Labeler
}

// Option configures a Processor.
type Option func(*Processor)

// WithIDs sets the block id generator. Defaults to RandomIDs.
func WithIDs(ids IDGenerator) Option {
	return func(p *Processor) {
		p.ids = ids
	}
}

// WithLabeler sets the tool labeler. Defaults to NewLabeler().
func WithLabeler(l *Labeler) Option {
	return func(p *Processor) {
		p.labels = l
	}
}

// New creates a processor for a session.
func New(sessionID string, opts ...Option) *Processor {
	p := &Processor{sessionID: sessionID}
	for _, opt := range opts {
		opt(p)
	}
	if p.ids == nil {
		p.ids = RandomIDs{}
	}
	if p.labels == nil {
		p.labels = NewLabeler()
	}
	return p
}

// SessionID returns the session this processor belongs to.
func (p *Processor) SessionID() string { return p.sessionID }

// Process converts one line into zero or more events, applying the line's
// effect to ctx. Malformed and unrecognized lines yield no events. A nil ctx
// is processed as a fresh session whose resulting context is discarded.
func (p *Processor) Process(ctx *Context, line Line) []blocks.Event {
	if ctx == nil {
		ctx = NewContext()
	}
	if len(bytes.TrimSpace(line.Raw)) == 0 {
		return nil
	}
	rec, err := transcript.Decode(line.Raw)
	if err != nil {
		recordsTotal.WithLabelValues("malformed").Inc()
		applog.Log.Debug("skip malformed line", "session", p.sessionID, "line", line.Number, "error", err)
		return nil
	}

	ctx.init()
	kind := transcript.Classify(rec)
	recordsTotal.WithLabelValues(kind.String()).Inc()

	var events []blocks.Event
	switch kind {
	case transcript.KindUser:
		events = p.user(ctx, rec, line)
	case transcript.KindLocalCommand:
		events = p.localCommand(rec, line)
	case transcript.KindAssistant:
		events = p.assistant(ctx, rec, line)
	case transcript.KindTurnDuration:
		ctx.CurrentRequestID = ""
		events = []blocks.Event{p.add(line, 0, blocks.DurationContent{DurationMs: rec.DurationMs}, "")}
	case transcript.KindCompactBoundary:
		ctx.Reset()
		events = []blocks.Event{blocks.ClearAll{}}
	case transcript.KindProgress:
		events = p.progress(ctx, rec, line)
	case transcript.KindInvisible, transcript.KindUnrecognized:
		return nil
	}

	for _, ev := range events {
		eventsTotal.WithLabelValues(string(ev.EventType())).Inc()
	}
	return events
}

func (p *Processor) add(line Line, part int, content blocks.Content, requestID string) blocks.AddBlock {
	id := p.ids.NewID(Position{SessionID: p.sessionID, Line: line.Number, Part: part})
	return blocks.AddBlock{Block: blocks.Block{ID: id, Content: content, RequestID: requestID}}
}

func (p *Processor) user(ctx *Context, rec *transcript.Record, line Line) []blocks.Event {
	msg := rec.ParseMessage()
	if msg.Content.IsText() {
		text := strings.TrimSpace(msg.Content.Text)
		if text == "" {
			return nil
		}
		ctx.CurrentRequestID = ""
		return []blocks.Event{p.add(line, 0, blocks.UserContent{Text: text}, "")}
	}

	var (
		texts    []string
		textPart = -1
		results  []blocks.Event
	)
	for i, part := range msg.Content.Parts {
		switch part.Type {
		case transcript.PartText:
			if t := strings.TrimSpace(part.Text); t != "" {
				texts = append(texts, t)
				if textPart < 0 {
					textPart = i
				}
			}
		case transcript.PartToolResult:
			results = append(results, p.toolResult(ctx, rec, part, line, i))
		}
	}

	var events []blocks.Event
	if len(texts) > 0 {
		ctx.CurrentRequestID = ""
		events = append(events, p.add(line, textPart, blocks.UserContent{Text: strings.Join(texts, "\n")}, ""))
	}
	return append(events, results...)
}

func (p *Processor) toolResult(ctx *Context, rec *transcript.Record, part transcript.Part, line Line, idx int) blocks.Event {
	text := part.ResultText()
	blockID, ok := ctx.ToolUseIDToBlockID[part.ToolUseID]
	if !ok {
		orphansTotal.WithLabelValues("tool_result").Inc()
		applog.Log.Debug("orphan tool result", "session", p.sessionID, "line", line.Number, "tool_use_id", part.ToolUseID)
		return p.add(line, idx, blocks.SystemContent{Text: text}, "")
	}

	var content blocks.Content
	switch last := ctx.ToolCalls[part.ToolUseID].(type) {
	case blocks.QuestionContent:
		content = last.WithAnswers(rec.Answers())
	case blocks.ToolCallContent:
		content = last.WithResult(text, part.IsError)
	default:
		// Context restored without the tool call table.
		content = blocks.ToolCallContent{ToolUseID: part.ToolUseID}.WithResult(text, part.IsError)
	}
	ctx.ToolCalls[part.ToolUseID] = content
	return blocks.UpdateBlock{BlockID: blockID, Content: content}
}

func (p *Processor) localCommand(rec *transcript.Record, line Line) []blocks.Event {
	raw := rec.Content
	if rec.Type == transcript.RecordUser {
		raw = rec.ParseMessage().Content.Text
	}
	text := strings.TrimSpace(raw)
	if inner, ok := transcript.LocalCommandOutput(raw); ok {
		text = inner
	}
	if text == "" {
		return nil
	}
	return []blocks.Event{p.add(line, 0, blocks.SystemContent{Text: text}, "")}
}

func (p *Processor) assistant(ctx *Context, rec *transcript.Record, line Line) []blocks.Event {
	msg := rec.ParseMessage()
	parts := msg.Content.Parts
	if msg.Content.IsText() {
		parts = []transcript.Part{{Type: transcript.PartText, Text: msg.Content.Text}}
	}

	reqID := rec.RequestID
	var events []blocks.Event
	for i, part := range parts {
		switch part.Type {
		case transcript.PartText:
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			events = append(events, p.add(line, i, blocks.AssistantContent{Text: text}, reqID))
		case transcript.PartThinking, transcript.PartRedactedThinking:
			events = append(events, p.add(line, i, blocks.ThinkingContent{}, reqID))
		case transcript.PartToolUse:
			content := p.toolCallContent(part)
			ev := p.add(line, i, content, reqID)
			if part.ID != "" {
				ctx.ToolUseIDToBlockID[part.ID] = ev.Block.ID
				ctx.ToolCalls[part.ID] = content
			}
			events = append(events, ev)
		default:
			continue
		}
		ctx.CurrentRequestID = reqID
	}
	return events
}

func (p *Processor) toolCallContent(part transcript.Part) blocks.Content {
	if part.Name == ToolAskUserQuestion {
		if qs, ok := parseQuestions(part.Input); ok {
			return blocks.QuestionContent{ToolUseID: part.ID, Questions: qs}
		}
	}
	return blocks.ToolCallContent{
		ToolName:  part.Name,
		ToolUseID: part.ID,
		Label:     p.labels.Label(part.Name, part.Input),
	}
}

// parseQuestions reads the questions input of AskUserQuestion.
func parseQuestions(input map[string]any) ([]blocks.Question, bool) {
	raw, ok := input["questions"]
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var in []struct {
		Question    string          `json:"question"`
		Header      string          `json:"header"`
		Options     []blocks.Option `json:"options"`
		MultiSelect bool            `json:"multiSelect"`
	}
	if err := json.Unmarshal(data, &in); err != nil || len(in) == 0 {
		return nil, false
	}
	out := make([]blocks.Question, len(in))
	for i, q := range in {
		out[i] = blocks.Question{Question: q.Question, Header: q.Header, Options: q.Options, MultiSelect: q.MultiSelect}
	}
	return out, true
}

func (p *Processor) progress(ctx *Context, rec *transcript.Record, line Line) []blocks.Event {
	data, ok := rec.ParseProgress()
	if !ok {
		return nil
	}
	summary, ok := p.progressSummary(data)
	if !ok {
		return nil
	}

	parent := rec.ProgressParentID()
	blockID, found := ctx.ToolUseIDToBlockID[parent]
	if !found {
		orphansTotal.WithLabelValues("progress").Inc()
		if data.Type == transcript.ProgressWaitingForTask {
			return []blocks.Event{p.add(line, 0, blocks.SystemContent{Text: summary}, "")}
		}
		return nil
	}

	var content blocks.ToolCallContent
	switch last := ctx.ToolCalls[parent].(type) {
	case blocks.ToolCallContent:
		content = last.WithProgress(summary)
	case blocks.QuestionContent:
		return nil
	default:
		content = blocks.ToolCallContent{ToolUseID: parent}.WithProgress(summary)
	}
	ctx.ToolCalls[parent] = content
	return []blocks.Event{blocks.UpdateBlock{BlockID: blockID, Content: content}}
}

// progressSummary renders the one-line progress text for a progress payload.
// Unknown payload types report false.
func (p *Processor) progressSummary(d *transcript.ProgressData) (string, bool) {
	switch d.Type {
	case transcript.ProgressBash:
		out := lastLine(d.Output)
		if out == "" {
			out = "Running"
		}
		return fmt.Sprintf("%s (%ds)", truncate(out, maxLabelLength), int(math.Round(d.ElapsedTimeSeconds))), true
	case transcript.ProgressHook:
		name := d.HookName
		if name == "" {
			name = d.HookEvent
		}
		return "Hook: " + name, true
	case transcript.ProgressAgent:
		return "Agent: " + p.agentActivity(d), true
	case transcript.ProgressQuery:
		return "Searching: " + d.Query, true
	case transcript.ProgressSearchResults:
		return fmt.Sprintf("%d results for %s", d.ResultCount, d.Query), true
	case transcript.ProgressWaitingForTask:
		return "Waiting: " + d.TaskDescription, true
	default:
		return "", false
	}
}

// agentActivity describes the latest thing a subagent did: its last text, or
// the last tool it called.
func (p *Processor) agentActivity(d *transcript.ProgressData) string {
	msg := d.AgentMessage()
	if msg == nil {
		return "working"
	}
	if msg.Content.IsText() {
		if t := singleLine(msg.Content.Text); t != "" {
			return truncate(t, maxLabelLength)
		}
		return "working"
	}
	for i := len(msg.Content.Parts) - 1; i >= 0; i-- {
		part := msg.Content.Parts[i]
		switch part.Type {
		case transcript.PartText:
			if t := singleLine(part.Text); t != "" {
				return truncate(t, maxLabelLength)
			}
		case transcript.PartToolUse:
			label := p.labels.Label(part.Name, part.Input)
			if label == part.Name {
				return part.Name
			}
			return part.Name + " " + label
		}
	}
	return "working"
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}
