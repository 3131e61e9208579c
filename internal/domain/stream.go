package domain

// StreamEventType discriminates the typed events the backend emits on the
// chat SSE stream.
type StreamEventType string

const (
	StreamDelta         StreamEventType = "delta"
	StreamToolCall      StreamEventType = "tool_call"
	StreamToolCallChunk StreamEventType = "tool_call_chunk"
	StreamToolResult    StreamEventType = "tool_result"
	StreamError         StreamEventType = "error"
	// StreamMessages is a full-state snapshot the backend emits in values
	// mode. The reducer ignores it; incremental events carry everything.
	StreamMessages StreamEventType = "messages"
)

// StreamEvent is one decoded record from the chat SSE stream. Field usage
// depends on Type:
//
//	delta            Content
//	tool_call        ID, Name, Arguments
//	tool_call_chunk  ToolCallID (as ID), Index, Args
//	tool_result      ToolCallID, Content (raw result payload, usually JSON)
//	error            Error
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	Content    string          `json:"content,omitempty"`
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Arguments  map[string]any  `json:"arguments,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Index      int             `json:"index,omitempty"`
	Args       string          `json:"args,omitempty"`
	Error      string          `json:"error,omitempty"`

	// Done marks the [DONE] sentinel or end of stream. Not part of the wire
	// format.
	Done bool `json:"-"`
}
