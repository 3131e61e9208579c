package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"canvaschat/internal/domain"
)

// Reducer folds the chat stream's typed events into an ordered message list.
// It is seeded with the conversation so far (including the just-sent user
// message) and mutates its working copy as events arrive; Messages returns a
// snapshot suitable for atomic replace-the-whole-value publication.
//
// Two rules shape the output:
//   - free text appends to the last assistant message only while that message
//     has no tool calls; once a tool call is attached, later text opens a new
//     message, so narration and actions interleave in generation order;
//   - each tool_call event opens its own message (one ToolCall per message),
//     never a second ToolCall on an existing message.
type Reducer struct {
	msgs []domain.Message
	// onImage runs the canvas insertion side effect for tool results carrying
	// an image_url; nil disables the side effect.
	onImage func(ctx context.Context, url string)
	logger  *slog.Logger
}

// NewReducer creates a reducer seeded with the current message list. The seed
// is deep-copied so later tool_result events never write into the caller's
// tool-call records.
func NewReducer(seed []domain.Message, onImage func(ctx context.Context, url string), logger *slog.Logger) *Reducer {
	return &Reducer{msgs: domain.CloneMessages(seed), onImage: onImage, logger: logger}
}

// Messages returns a deep copy of the current message list. The snapshot is
// fully detached: applying further events mutates tool-call status in place
// through findToolCall, and published lists must not see those writes.
func (r *Reducer) Messages() []domain.Message {
	return domain.CloneMessages(r.msgs)
}

// Apply folds one stream event into the message list. It never fails: decode
// and protocol errors degrade to skipped events so partial progress survives.
func (r *Reducer) Apply(ctx context.Context, ev domain.StreamEvent) {
	if ev.Done {
		return
	}
	switch ev.Type {
	case domain.StreamDelta:
		r.applyDelta(ev.Content)
	case domain.StreamToolCall:
		r.applyToolCall(ev)
	case domain.StreamToolCallChunk:
		// Incremental argument streaming. Arguments are only read at
		// tool_call and tool_result time, so chunks carry nothing we need.
	case domain.StreamToolResult:
		r.applyToolResult(ctx, ev)
	case domain.StreamError:
		r.applyError(ev.Error)
	case domain.StreamMessages:
		// Full-state snapshot; the incremental events already carry
		// everything.
	default:
		r.logger.Debug("ignoring unknown stream event", "type", string(ev.Type))
	}
}

func (r *Reducer) applyDelta(content string) {
	if content == "" {
		return
	}
	if n := len(r.msgs); n > 0 {
		last := &r.msgs[n-1]
		if last.Role == domain.RoleAssistant && !last.HasToolCalls() {
			last.Content += content
			return
		}
	}
	r.msgs = append(r.msgs, domain.Message{
		Role:    domain.RoleAssistant,
		Content: content,
	})
}

func (r *Reducer) applyToolCall(ev domain.StreamEvent) {
	if ev.ID == "" || ev.Name == "" {
		r.logger.Debug("skipping tool_call without id or name", "id", ev.ID, "name", ev.Name)
		return
	}
	args := make(map[string]any, len(ev.Arguments))
	for k, v := range ev.Arguments {
		args[k] = v
	}
	r.msgs = append(r.msgs, domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:        ev.ID,
			Name:      ev.Name,
			Arguments: args,
			Status:    domain.ToolCallExecuting,
		}},
	})
}

func (r *Reducer) applyToolResult(ctx context.Context, ev domain.StreamEvent) {
	tc := r.findToolCall(ev.ToolCallID)
	if tc == nil {
		// Result for a call the stream never announced. Protocol error on the
		// server side; dropping it is the tolerant choice.
		r.logger.Debug("dropping tool_result with unknown id", "tool_call_id", ev.ToolCallID)
		return
	}
	if tc.Status == domain.ToolCallDone {
		// Done transitions exactly once.
		return
	}

	tc.Status = domain.ToolCallDone
	tc.Result = ev.Content

	var payload map[string]any
	if err := json.Unmarshal([]byte(ev.Content), &payload); err != nil {
		r.logger.Debug("tool result payload is not JSON", "tool_call_id", ev.ToolCallID, "error", err)
		return
	}

	if prompt, ok := payload["prompt"].(string); ok && len(tc.Arguments) == 0 {
		tc.Arguments = map[string]any{"prompt": prompt}
	}

	if url, ok := payload["image_url"].(string); ok && url != "" {
		tc.ImageURL = url
		if r.onImage != nil {
			r.onImage(ctx, url)
		}
	}
}

func (r *Reducer) applyError(msg string) {
	text := fmt.Sprintf("Error: %s", msg)
	if n := len(r.msgs); n > 0 && r.msgs[n-1].Role == domain.RoleAssistant {
		r.msgs[n-1].Content = text
		return
	}
	r.msgs = append(r.msgs, domain.Message{Role: domain.RoleAssistant, Content: text})
}

// findToolCall locates the tool call with the given id anywhere in the list.
func (r *Reducer) findToolCall(id string) *domain.ToolCall {
	if id == "" {
		return nil
	}
	for i := range r.msgs {
		for j := range r.msgs[i].ToolCalls {
			if r.msgs[i].ToolCalls[j].ID == id {
				return &r.msgs[i].ToolCalls[j]
			}
		}
	}
	return nil
}
