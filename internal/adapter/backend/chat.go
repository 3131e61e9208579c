package backend

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/tracer"
)

// Chat sends a chat turn and returns a channel of decoded stream events.
// The channel is closed when the response stream ends or ctx is cancelled.
// Transport-level failure is returned synchronously; mid-stream decode
// failures degrade to skipped events.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.chat",
		trace.WithAttributes(tracer.IntAttr("chat.history_len", len(req.Messages))),
	)
	defer span.End()

	body, err := marshalBody(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := c.doStream(ctx, c.baseURL+"/chat", body)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	c.logger.Debug("chat stream opened",
		"session_id", req.SessionID,
		"history", len(req.Messages),
	)
	return parseSSEStream(ctx, resp.Body, c.logger), nil
}
