// Package transcript decodes the raw JSONL records of a Claude Code session
// transcript and classifies them into the kinds the line processor handles.
package transcript

import (
	"encoding/json"
	"strings"
)

// RecordType is the top-level "type" discriminator of a transcript line.
type RecordType string

const (
	RecordUser                RecordType = "user"
	RecordAssistant           RecordType = "assistant"
	RecordSystem              RecordType = "system"
	RecordProgress            RecordType = "progress"
	RecordSummary             RecordType = "summary"
	RecordFileHistorySnapshot RecordType = "file-history-snapshot"
	RecordQueueOperation      RecordType = "queue-operation"
)

// System record subtypes.
const (
	SubtypeTurnDuration    = "turn_duration"
	SubtypeCompactBoundary = "compact_boundary"
	SubtypeLocalCommand    = "local_command"
)

// Record is a single line of a transcript. Fields are a superset across all
// record types; unused fields are zero-valued.
type Record struct {
	Type        RecordType      `json:"type"`
	UUID        string          `json:"uuid,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	IsSidechain bool            `json:"isSidechain,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`

	// user
	IsMeta                    bool            `json:"isMeta,omitempty"`
	IsVisibleInTranscriptOnly bool            `json:"isVisibleInTranscriptOnly,omitempty"`
	IsCompactSummary          bool            `json:"isCompactSummary,omitempty"`
	ToolUseResult             json.RawMessage `json:"toolUseResult,omitempty"` // string | object | array

	// assistant
	RequestID string `json:"requestId,omitempty"`

	// system
	Subtype    string `json:"subtype,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Content    string `json:"content,omitempty"`

	// progress
	Data            json.RawMessage `json:"data,omitempty"`
	ToolUseID       string          `json:"toolUseID,omitempty"`
	ParentToolUseID string          `json:"parentToolUseID,omitempty"`
}

// Decode parses one raw line. Empty and non-object lines are errors.
func Decode(line []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Message is the nested message of user and assistant records.
type Message struct {
	Role    string         `json:"role"`
	Model   string         `json:"model,omitempty"`
	Content MessageContent `json:"content"`
}

// MessageContent is either plain text or a list of typed parts.
type MessageContent struct {
	Text  string // set when content is a string
	Parts []Part // set when content is an array
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err == nil {
		c.Parts = parts
		return nil
	}
	// Unrecognized content shapes decode as empty.
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts == nil {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// IsText reports whether the content was a plain string.
func (c MessageContent) IsText() bool {
	return c.Parts == nil
}

// Part is one element of a content list. Different part types populate
// different fields.
type Part struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or []Part
	IsError   bool            `json:"is_error,omitempty"`
}

// Part types.
const (
	PartText             = "text"
	PartThinking         = "thinking"
	PartRedactedThinking = "redacted_thinking"
	PartToolUse          = "tool_use"
	PartToolResult       = "tool_result"
)

// ResultText flattens a tool_result content value: a string is returned as is,
// a list of parts contributes its text parts joined by newlines.
func (p Part) ResultText() string {
	if len(p.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Content, &s); err == nil {
		return s
	}
	var parts []Part
	if err := json.Unmarshal(p.Content, &parts); err != nil {
		return ""
	}
	var texts []string
	for _, sub := range parts {
		if sub.Type == PartText && sub.Text != "" {
			texts = append(texts, sub.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ParseMessage decodes the nested message. It returns nil when the record has
// no message or the message is malformed.
func (r *Record) ParseMessage() *Message {
	if len(r.Message) == 0 {
		return nil
	}
	var msg Message
	if err := json.Unmarshal(r.Message, &msg); err != nil {
		return nil
	}
	return &msg
}

// Answers returns the question → answer map of an AskUserQuestion result,
// read from toolUseResult.answers. Nil when absent.
func (r *Record) Answers() map[string]string {
	if len(r.ToolUseResult) == 0 {
		return nil
	}
	var res struct {
		Answers map[string]string `json:"answers"`
	}
	if err := json.Unmarshal(r.ToolUseResult, &res); err != nil {
		return nil
	}
	return res.Answers
}

// ProgressParentID is the tool-use id a progress record belongs to.
func (r *Record) ProgressParentID() string {
	if r.ParentToolUseID != "" {
		return r.ParentToolUseID
	}
	return r.ToolUseID
}
