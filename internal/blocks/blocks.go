// Package blocks defines the UI-level units produced from a transcript:
// addressable blocks, their typed content, and the events that add, update
// or clear them. Content and Event are closed unions: only the types in this
// package implement them.
package blocks

// BlockType identifies the kind of a block and of its content.
type BlockType string

const (
	TypeUser      BlockType = "user"
	TypeAssistant BlockType = "assistant"
	TypeToolCall  BlockType = "tool_call"
	TypeQuestion  BlockType = "question"
	TypeThinking  BlockType = "thinking"
	TypeDuration  BlockType = "duration"
	TypeSystem    BlockType = "system"
)

// Block is an addressable unit of rendered content. Its identity is ID;
// Content is replaced wholesale on update.
type Block struct {
	ID        string
	Content   Content
	RequestID string // empty when absent
}

// Type returns the block type, which is always the type of its content.
func (b Block) Type() BlockType {
	if b.Content == nil {
		return ""
	}
	return b.Content.Type()
}

// Content is the typed payload of a block.
type Content interface {
	Type() BlockType
	sealed()
}

// UserContent is text the user typed.
type UserContent struct {
	Text string
}

// AssistantContent is assistant prose.
type AssistantContent struct {
	Text string
}

// SystemContent is text surfaced by the system: local command output,
// orphaned tool results, waiting notices.
type SystemContent struct {
	Text string
}

// ToolCallContent describes a tool invocation and, once known, its outcome.
// ToolName, ToolUseID and Label never change across updates.
type ToolCallContent struct {
	ToolName     string
	ToolUseID    string
	Label        string
	Result       *string
	IsError      bool
	ProgressText *string
}

// QuestionContent is an interactive question put to the user.
type QuestionContent struct {
	ToolUseID string
	Questions []Question
	Answers   map[string]string // nil until answered
}

// Question is one entry of a QuestionContent.
type Question struct {
	Question    string   `json:"question"`
	Header      string   `json:"header"`
	Options     []Option `json:"options"`
	MultiSelect bool     `json:"multi_select"`
}

// Option is one selectable answer.
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ThinkingContent marks that the assistant was thinking. It has no fields.
type ThinkingContent struct{}

// DurationContent reports how long a turn took.
type DurationContent struct {
	DurationMs int64
}

func (UserContent) Type() BlockType      { return TypeUser }
func (AssistantContent) Type() BlockType { return TypeAssistant }
func (SystemContent) Type() BlockType    { return TypeSystem }
func (ToolCallContent) Type() BlockType  { return TypeToolCall }
func (QuestionContent) Type() BlockType  { return TypeQuestion }
func (ThinkingContent) Type() BlockType  { return TypeThinking }
func (DurationContent) Type() BlockType  { return TypeDuration }

func (UserContent) sealed()      {}
func (AssistantContent) sealed() {}
func (SystemContent) sealed()    {}
func (ToolCallContent) sealed()  {}
func (QuestionContent) sealed()  {}
func (ThinkingContent) sealed()  {}
func (DurationContent) sealed()  {}

// WithResult returns a copy carrying the tool's outcome. Progress text is
// dropped since the call has finished.
func (c ToolCallContent) WithResult(result string, isError bool) ToolCallContent {
	c.Result = &result
	c.IsError = isError
	c.ProgressText = nil
	return c
}

// WithProgress returns a copy carrying the latest progress summary.
func (c ToolCallContent) WithProgress(text string) ToolCallContent {
	c.ProgressText = &text
	return c
}

// WithAnswers returns a copy carrying the user's answers.
func (c QuestionContent) WithAnswers(answers map[string]string) QuestionContent {
	c.Answers = cloneAnswers(answers)
	if c.Answers == nil {
		c.Answers = map[string]string{}
	}
	return c
}

// CloneContent returns a copy of c that shares no mutable memory with it.
func CloneContent(c Content) Content {
	switch v := c.(type) {
	case QuestionContent:
		out := v
		out.Questions = cloneQuestions(v.Questions)
		out.Answers = cloneAnswers(v.Answers)
		return out
	case ToolCallContent:
		out := v
		if v.Result != nil {
			r := *v.Result
			out.Result = &r
		}
		if v.ProgressText != nil {
			p := *v.ProgressText
			out.ProgressText = &p
		}
		return out
	default:
		// Remaining variants hold only immutable values.
		return c
	}
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q
		if q.Options != nil {
			out[i].Options = append([]Option(nil), q.Options...)
		}
	}
	return out
}

func cloneAnswers(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Event is a change to the set of blocks: AddBlock, UpdateBlock or ClearAll.
type Event interface {
	EventType() EventType
	sealedEvent()
}

// EventType is the wire name of an event.
type EventType string

const (
	EventAddBlock    EventType = "add_block"
	EventUpdateBlock EventType = "update_block"
	EventClearAll    EventType = "clear_all"
)

// AddBlock introduces a new block.
type AddBlock struct {
	Block Block
}

// UpdateBlock replaces the content of an existing block.
type UpdateBlock struct {
	BlockID string
	Content Content
}

// ClearAll discards every block.
type ClearAll struct{}

func (AddBlock) EventType() EventType    { return EventAddBlock }
func (UpdateBlock) EventType() EventType { return EventUpdateBlock }
func (ClearAll) EventType() EventType    { return EventClearAll }

func (AddBlock) sealedEvent()    {}
func (UpdateBlock) sealedEvent() {}
func (ClearAll) sealedEvent()    {}
