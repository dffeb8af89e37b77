package processor

import (
	"encoding/json"
	"fmt"

	"github.com/wethinkt/thinkt-live/internal/blocks"
)

// Context is the resumable correlation state of one session's transcript.
// ToolUseIDToBlockID maps a tool_use id to the block created for it in the
// current epoch. ToolCalls holds the last complete content sent for each of
// those blocks so that updates can carry the immutable fields again.
type Context struct {
	ToolUseIDToBlockID map[string]string
	CurrentRequestID   string // empty when absent
	ToolCalls          map[string]blocks.Content
}

// NewContext returns the empty context a session starts with.
func NewContext() *Context {
	return &Context{
		ToolUseIDToBlockID: make(map[string]string),
		ToolCalls:          make(map[string]blocks.Content),
	}
}

// Clone returns a deep copy sharing no maps or content with c.
func (c *Context) Clone() *Context {
	if c == nil {
		return NewContext()
	}
	out := &Context{
		ToolUseIDToBlockID: make(map[string]string, len(c.ToolUseIDToBlockID)),
		CurrentRequestID:   c.CurrentRequestID,
		ToolCalls:          make(map[string]blocks.Content, len(c.ToolCalls)),
	}
	for k, v := range c.ToolUseIDToBlockID {
		out.ToolUseIDToBlockID[k] = v
	}
	for k, v := range c.ToolCalls {
		out.ToolCalls[k] = blocks.CloneContent(v)
	}
	return out
}

func (c *Context) init() {
	if c.ToolUseIDToBlockID == nil {
		c.ToolUseIDToBlockID = make(map[string]string)
	}
	if c.ToolCalls == nil {
		c.ToolCalls = make(map[string]blocks.Content)
	}
}

// Reset collapses the context back to its empty state.
func (c *Context) Reset() {
	c.ToolUseIDToBlockID = make(map[string]string)
	c.CurrentRequestID = ""
	c.ToolCalls = make(map[string]blocks.Content)
}

type contextJSON struct {
	ToolUseIDToBlockID map[string]string          `json:"tool_use_id_to_block_id"`
	CurrentRequestID   *string                    `json:"current_request_id"`
	ToolCalls          map[string]json.RawMessage `json:"tool_calls,omitempty"`
}

// MarshalJSON writes the persisted form. current_request_id is null when
// absent; tool_calls is omitted when empty.
func (c Context) MarshalJSON() ([]byte, error) {
	doc := contextJSON{ToolUseIDToBlockID: c.ToolUseIDToBlockID}
	if doc.ToolUseIDToBlockID == nil {
		doc.ToolUseIDToBlockID = map[string]string{}
	}
	if c.CurrentRequestID != "" {
		id := c.CurrentRequestID
		doc.CurrentRequestID = &id
	}
	if len(c.ToolCalls) > 0 {
		doc.ToolCalls = make(map[string]json.RawMessage, len(c.ToolCalls))
		for id, content := range c.ToolCalls {
			raw, err := blocks.MarshalContent(content)
			if err != nil {
				return nil, fmt.Errorf("marshal tool call %s: %w", id, err)
			}
			doc.ToolCalls[id] = raw
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the persisted form. A document without
// tool_use_id_to_block_id is rejected as incomplete.
func (c *Context) UnmarshalJSON(data []byte) error {
	var doc contextJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.ToolUseIDToBlockID == nil {
		return fmt.Errorf("processing context: missing tool_use_id_to_block_id")
	}
	out := Context{
		ToolUseIDToBlockID: doc.ToolUseIDToBlockID,
		ToolCalls:          make(map[string]blocks.Content, len(doc.ToolCalls)),
	}
	if doc.CurrentRequestID != nil {
		out.CurrentRequestID = *doc.CurrentRequestID
	}
	for id, raw := range doc.ToolCalls {
		content, err := blocks.UnmarshalContent(raw)
		if err != nil {
			return fmt.Errorf("tool call %s: %w", id, err)
		}
		out.ToolCalls[id] = content
	}
	*c = out
	return nil
}
