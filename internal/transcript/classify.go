package transcript

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Kind is the processing category of a record.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindInvisible
	KindUser            // user input and/or tool results
	KindLocalCommand    // captured output of a local slash command
	KindAssistant       // assistant text, thinking and tool_use parts
	KindTurnDuration    // system turn_duration
	KindCompactBoundary // system compact_boundary
	KindProgress        // progress for an in-flight tool call
)

var kindNames = [...]string{
	KindUnrecognized:    "unrecognized",
	KindInvisible:       "invisible",
	KindUser:            "user",
	KindLocalCommand:    "local_command",
	KindAssistant:       "assistant",
	KindTurnDuration:    "turn_duration",
	KindCompactBoundary: "compact_boundary",
	KindProgress:        "progress",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Classify returns the kind of a decoded record.
func Classify(r *Record) Kind {
	if r == nil {
		return KindUnrecognized
	}
	switch r.Type {
	case RecordUser:
		if r.IsMeta || r.IsSidechain || r.IsVisibleInTranscriptOnly || r.IsCompactSummary {
			return KindInvisible
		}
		msg := r.ParseMessage()
		if msg == nil {
			return KindUnrecognized
		}
		if msg.Content.IsText() {
			if _, ok := LocalCommandOutput(msg.Content.Text); ok {
				return KindLocalCommand
			}
		}
		return KindUser
	case RecordAssistant:
		if r.IsSidechain {
			return KindInvisible
		}
		if r.ParseMessage() == nil {
			return KindUnrecognized
		}
		return KindAssistant
	case RecordSystem:
		// A compaction boundary resets the view however it is flagged.
		if r.Subtype == SubtypeCompactBoundary {
			return KindCompactBoundary
		}
		if r.IsMeta || r.IsSidechain {
			return KindInvisible
		}
		switch r.Subtype {
		case SubtypeTurnDuration:
			return KindTurnDuration
		case SubtypeLocalCommand:
			if r.Content == "" {
				return KindUnrecognized
			}
			return KindLocalCommand
		}
		return KindUnrecognized
	case RecordProgress:
		if r.IsSidechain {
			return KindInvisible
		}
		if len(r.Data) == 0 {
			return KindUnrecognized
		}
		return KindProgress
	default:
		return KindUnrecognized
	}
}

var localCommandTag = regexp.MustCompile(`(?s)<local-command-(?:stdout|stderr)>(.*?)</local-command-(?:stdout|stderr)>`)

// LocalCommandOutput extracts the text wrapped in local-command-stdout or
// local-command-stderr tags. Multiple tagged sections are joined by newlines.
func LocalCommandOutput(s string) (string, bool) {
	matches := localCommandTag.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return "", false
	}
	var out []string
	for _, m := range matches {
		if t := strings.TrimSpace(m[1]); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n"), true
}

// Progress data types.
const (
	ProgressBash           = "bash_progress"
	ProgressHook           = "hook_progress"
	ProgressAgent          = "agent_progress"
	ProgressQuery          = "query_update"
	ProgressSearchResults  = "search_results_received"
	ProgressWaitingForTask = "waiting_for_task"
)

// ProgressData is the "data" payload of a progress record. Fields are a
// superset across progress types.
type ProgressData struct {
	Type string `json:"type"`

	// bash_progress
	Output             string  `json:"output,omitempty"`
	FullOutput         string  `json:"fullOutput,omitempty"`
	ElapsedTimeSeconds float64 `json:"elapsedTimeSeconds,omitempty"`
	TotalLines         int     `json:"totalLines,omitempty"`

	// hook_progress
	HookEvent string `json:"hookEvent,omitempty"`
	HookName  string `json:"hookName,omitempty"`
	Command   string `json:"command,omitempty"`

	// agent_progress
	Prompt  string          `json:"prompt,omitempty"`
	AgentID string          `json:"agentId,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`

	// query_update, search_results_received
	Query       string `json:"query,omitempty"`
	ResultCount int    `json:"resultCount,omitempty"`

	// waiting_for_task
	TaskDescription string `json:"taskDescription,omitempty"`
	TaskType        string `json:"taskType,omitempty"`
}

// ParseProgress decodes the data payload of a progress record.
func (r *Record) ParseProgress() (*ProgressData, bool) {
	if len(r.Data) == 0 {
		return nil, false
	}
	var d ProgressData
	if err := json.Unmarshal(r.Data, &d); err != nil || d.Type == "" {
		return nil, false
	}
	return &d, true
}

// AgentMessage decodes the nested record carried by agent_progress data.
// The payload is itself a transcript record with a message.
func (d *ProgressData) AgentMessage() *Message {
	if len(d.Message) == 0 {
		return nil
	}
	var inner Record
	if err := json.Unmarshal(d.Message, &inner); err != nil {
		return nil
	}
	return inner.ParseMessage()
}
