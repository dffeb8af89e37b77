package broadcast

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wethinkt/thinkt-live/internal/blocks"
	"github.com/wethinkt/thinkt-live/internal/eventbuf"
)

// EventSessionEnded is the synthetic terminal notice sent before a session's
// subscribers are disconnected. It is never buffered or replayed.
const EventSessionEnded = "session_ended"

// Message is one frame of a stream: an optional event id, the event type and
// single-line JSON data.
type Message struct {
	ID    string
	Event string
	Data  []byte

	entry    *eventbuf.Mark // buffer position, nil when not buffered
	terminal bool           // last message of the subscription
}

// NewMessage encodes an event with the given id as a stream message.
func NewMessage(id string, ev blocks.Event) (Message, error) {
	data, err := blocks.EncodeData(ev)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, Event: string(ev.EventType()), Data: data}, nil
}

// entryMessage encodes a buffered event, remembering its buffer position.
func entryMessage(e eventbuf.Entry) (Message, error) {
	m, err := NewMessage(e.ID, e.Event)
	if err != nil {
		return Message{}, err
	}
	m.entry = &eventbuf.Mark{Gen: e.Gen, Seq: e.Seq}
	return m, nil
}

// SessionEndedMessage is the terminal notice carrying the end reason.
func SessionEndedMessage(reason string) Message {
	data, _ := json.Marshal(struct {
		Reason string `json:"reason"`
	}{reason})
	return Message{Event: EventSessionEnded, Data: data, terminal: true}
}

// Decode returns the block event carried by m.
func (m Message) Decode() (blocks.Event, error) {
	return blocks.DecodeData(blocks.EventType(m.Event), m.Data)
}

// WriteSSE writes m in text/event-stream framing:
//
//	id: evt_001
//	event: add_block
//	data: {...}
//
// The id line is omitted for messages without an id.
func WriteSSE(w io.Writer, m Message) error {
	if bytes.ContainsAny(m.Data, "\r\n") {
		return fmt.Errorf("sse data must be a single line")
	}
	var buf bytes.Buffer
	if m.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(m.ID)
		buf.WriteByte('\n')
	}
	if m.Event != "" {
		buf.WriteString("event: ")
		buf.WriteString(m.Event)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(m.Data)
	buf.WriteString("\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// keepaliveComment is the inert comment frame sent on every keepalive tick.
const keepaliveComment = ": keepalive\n\n"

// WriteSSEComment writes the keepalive comment frame.
func WriteSSEComment(w io.Writer) error {
	_, err := io.WriteString(w, keepaliveComment)
	return err
}

// SSEDecoder reads messages from a text/event-stream. Comment frames are
// skipped.
type SSEDecoder struct {
	r *bufio.Reader
}

// NewSSEDecoder wraps r.
func NewSSEDecoder(r io.Reader) *SSEDecoder {
	return &SSEDecoder{r: bufio.NewReader(r)}
}

// Next returns the next message. It returns io.EOF at a clean end of stream
// and io.ErrUnexpectedEOF when the stream ends inside a message.
func (d *SSEDecoder) Next() (Message, error) {
	var (
		m       Message
		data    []string
		started bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if started || line != "" {
					return Message{}, io.ErrUnexpectedEOF
				}
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !started {
				continue
			}
			m.Data = []byte(strings.Join(data, "\n"))
			return m, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			m.ID = value
		case "event":
			m.Event = value
		case "data":
			data = append(data, value)
		default:
			continue
		}
		started = true
	}
}
