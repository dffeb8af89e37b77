package blocks

import (
	"encoding/json"
	"fmt"
)

// wireContent is the JSON shape of every content variant; the "type"
// discriminator selects which fields are meaningful.
type wireContent struct {
	Type BlockType `json:"type"`

	Text *string `json:"text,omitempty"`

	ToolName     *string `json:"tool_name,omitempty"`
	ToolUseID    *string `json:"tool_use_id,omitempty"`
	Label        *string `json:"label,omitempty"`
	Result       *string `json:"result,omitempty"`
	IsError      *bool   `json:"is_error,omitempty"`
	ProgressText *string `json:"progress_text,omitempty"`

	Questions []Question      `json:"questions,omitempty"`
	Answers   json.RawMessage `json:"answers,omitempty"`

	DurationMs *int64 `json:"duration_ms,omitempty"`
}

// MarshalContent encodes a content value with its discriminator.
func MarshalContent(c Content) ([]byte, error) {
	w, err := toWireContent(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWireContent(c Content) (wireContent, error) {
	switch v := c.(type) {
	case UserContent:
		return wireContent{Type: TypeUser, Text: &v.Text}, nil
	case AssistantContent:
		return wireContent{Type: TypeAssistant, Text: &v.Text}, nil
	case SystemContent:
		return wireContent{Type: TypeSystem, Text: &v.Text}, nil
	case ToolCallContent:
		return wireContent{
			Type:         TypeToolCall,
			ToolName:     &v.ToolName,
			ToolUseID:    &v.ToolUseID,
			Label:        &v.Label,
			Result:       v.Result,
			IsError:      &v.IsError,
			ProgressText: v.ProgressText,
		}, nil
	case QuestionContent:
		w := wireContent{Type: TypeQuestion, ToolUseID: &v.ToolUseID, Questions: v.Questions}
		if w.Questions == nil {
			w.Questions = []Question{}
		}
		if v.Answers != nil {
			raw, err := json.Marshal(v.Answers)
			if err != nil {
				return wireContent{}, err
			}
			w.Answers = raw
		}
		return w, nil
	case ThinkingContent:
		return wireContent{Type: TypeThinking}, nil
	case DurationContent:
		return wireContent{Type: TypeDuration, DurationMs: &v.DurationMs}, nil
	case nil:
		return wireContent{}, fmt.Errorf("marshal content: nil content")
	default:
		return wireContent{}, fmt.Errorf("marshal content: unknown variant %T", c)
	}
}

// UnmarshalContent decodes a content value produced by MarshalContent.
func UnmarshalContent(data []byte) (Content, error) {
	var w wireContent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	return fromWireContent(w)
}

func fromWireContent(w wireContent) (Content, error) {
	switch w.Type {
	case TypeUser:
		return UserContent{Text: deref(w.Text)}, nil
	case TypeAssistant:
		return AssistantContent{Text: deref(w.Text)}, nil
	case TypeSystem:
		return SystemContent{Text: deref(w.Text)}, nil
	case TypeToolCall:
		c := ToolCallContent{
			ToolName:     deref(w.ToolName),
			ToolUseID:    deref(w.ToolUseID),
			Label:        deref(w.Label),
			Result:       w.Result,
			ProgressText: w.ProgressText,
		}
		if w.IsError != nil {
			c.IsError = *w.IsError
		}
		return c, nil
	case TypeQuestion:
		c := QuestionContent{ToolUseID: deref(w.ToolUseID), Questions: w.Questions}
		if c.Questions == nil {
			c.Questions = []Question{}
		}
		if len(w.Answers) > 0 && string(w.Answers) != "null" {
			if err := json.Unmarshal(w.Answers, &c.Answers); err != nil {
				return nil, fmt.Errorf("unmarshal answers: %w", err)
			}
		}
		return c, nil
	case TypeThinking:
		return ThinkingContent{}, nil
	case TypeDuration:
		var ms int64
		if w.DurationMs != nil {
			ms = *w.DurationMs
		}
		return DurationContent{DurationMs: ms}, nil
	default:
		return nil, fmt.Errorf("unmarshal content: unknown type %q", w.Type)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type wireBlock struct {
	ID        string          `json:"id"`
	Type      BlockType       `json:"type"`
	Content   json.RawMessage `json:"content"`
	RequestID *string         `json:"request_id"`
}

// MarshalJSON encodes the block with its type, content and request id
// (null when absent).
func (b Block) MarshalJSON() ([]byte, error) {
	content, err := MarshalContent(b.Content)
	if err != nil {
		return nil, err
	}
	w := wireBlock{ID: b.ID, Type: b.Type(), Content: content}
	if b.RequestID != "" {
		w.RequestID = &b.RequestID
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a block produced by MarshalJSON.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := UnmarshalContent(w.Content)
	if err != nil {
		return err
	}
	if w.Type != "" && w.Type != content.Type() {
		return fmt.Errorf("block %s: type %q does not match content type %q", w.ID, w.Type, content.Type())
	}
	*b = Block{ID: w.ID, Content: content, RequestID: deref(w.RequestID)}
	return nil
}

// EncodeData encodes the variant-specific payload of an event, the part sent
// as the data line of a stream message. The event type travels separately.
func EncodeData(ev Event) ([]byte, error) {
	switch v := ev.(type) {
	case AddBlock:
		return json.Marshal(struct {
			Block Block `json:"block"`
		}{v.Block})
	case UpdateBlock:
		content, err := MarshalContent(v.Content)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			BlockID string          `json:"block_id"`
			Content json.RawMessage `json:"content"`
		}{v.BlockID, content})
	case ClearAll:
		return []byte("{}"), nil
	default:
		return nil, fmt.Errorf("encode event: unknown variant %T", ev)
	}
}

// DecodeData reverses EncodeData given the event type.
func DecodeData(typ EventType, data []byte) (Event, error) {
	switch typ {
	case EventAddBlock:
		var v struct {
			Block *Block `json:"block"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode add_block: %w", err)
		}
		if v.Block == nil {
			return nil, fmt.Errorf("decode add_block: missing block")
		}
		return AddBlock{Block: *v.Block}, nil
	case EventUpdateBlock:
		var v struct {
			BlockID string          `json:"block_id"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode update_block: %w", err)
		}
		content, err := UnmarshalContent(v.Content)
		if err != nil {
			return nil, fmt.Errorf("decode update_block: %w", err)
		}
		return UpdateBlock{BlockID: v.BlockID, Content: content}, nil
	case EventClearAll:
		return ClearAll{}, nil
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", typ)
	}
}

// MarshalEvent encodes an event as a self-describing document:
// the payload of EncodeData plus a "type" field.
func MarshalEvent(ev Event) ([]byte, error) {
	data, err := EncodeData(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(ev.EventType())
	fields["type"] = typ
	return json.Marshal(fields)
}

// UnmarshalEvent decodes a document produced by MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return DecodeData(head.Type, data)
}
