package domain

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCallStatus tracks the lifecycle of a tool call. A call starts as
// executing and transitions to done exactly once, when its result arrives.
type ToolCallStatus string

const (
	ToolCallExecuting ToolCallStatus = "executing"
	ToolCallDone      ToolCallStatus = "done"
)

// ToolCall represents one server-side tool invocation surfaced in the chat.
// The ID is opaque and unique within a session; Arguments are tool-specific.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Status    ToolCallStatus `json:"status"`
	Result    string         `json:"result,omitempty"`
	ImageURL  string         `json:"imageUrl,omitempty"`
}

// Message is a single entry in a project's conversation.
//
// For assistant messages, once a ToolCall is attached no further free text is
// appended to Content; later deltas open a new message instead.
// PostToolContent is kept for storage compatibility with documents written by
// older clients that folded post-tool narration into the tool message.
type Message struct {
	Role            string     `json:"role"`
	Content         string     `json:"content"`
	PostToolContent string     `json:"postToolContent,omitempty"`
	ToolCalls       []ToolCall `json:"toolCalls,omitempty"`
	// Images holds user-attached image URLs; only meaningful for RoleUser.
	Images []string `json:"images,omitempty"`
}

// HasToolCalls reports whether the message carries any tool-call records.
func (m *Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a deep copy of the tool call. Arguments is copied so the
// clone never aliases the original's map.
func (t ToolCall) Clone() ToolCall {
	out := t
	if t.Arguments != nil {
		out.Arguments = make(map[string]any, len(t.Arguments))
		for k, v := range t.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the message, detaching ToolCalls and Images
// from the original's backing arrays.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc.Clone()
		}
	}
	if m.Images != nil {
		out.Images = append([]string(nil), m.Images...)
	}
	return out
}

// CloneMessages deep-copies a message list. Published snapshots must not
// share tool-call state with a list that is still being mutated.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ChatRequest is the body sent to the agent backend's chat endpoint.
// Messages carries the prior history as plain role/content pairs; Message is
// the new user turn.
type ChatRequest struct {
	Message   string        `json:"message"`
	Messages  []HistoryPair `json:"messages"`
	SessionID string        `json:"session_id,omitempty"`
}

// HistoryPair is the reduced message shape the backend expects for history.
type HistoryPair struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
