package backend

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/logger"
)

func drain(ch <-chan domain.StreamEvent) []domain.StreamEvent {
	var out []domain.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestParseSSEStreamBasic(t *testing.T) {
	raw := "data: {\"type\":\"delta\",\"content\":\"hello \"}\n\n" +
		"data: {\"type\":\"delta\",\"content\":\"world\"}\n\n" +
		"data: [DONE]\n\n"
	body := io.NopCloser(strings.NewReader(raw))

	events := drain(parseSSEStream(context.Background(), body, logger.Discard()))

	require.Len(t, events, 3)
	assert.Equal(t, domain.StreamDelta, events[0].Type)
	assert.Equal(t, "hello ", events[0].Content)
	assert.Equal(t, "world", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestParseSSEStreamSkipsMalformedLine(t *testing.T) {
	raw := "data: {\"type\":\"delta\",\"content\":\"a\"}\n" +
		"data: {not json\n" +
		"data: {\"type\":\"delta\",\"content\":\"b\"}\n"
	body := io.NopCloser(strings.NewReader(raw))

	events := drain(parseSSEStream(context.Background(), body, logger.Discard()))

	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b", events[1].Content)
}

func TestParseSSEStreamSkipsCommentsAndBlankLines(t *testing.T) {
	raw := ": keepalive\n\n\ndata: {\"type\":\"delta\",\"content\":\"ok\"}\n"
	body := io.NopCloser(strings.NewReader(raw))

	events := drain(parseSSEStream(context.Background(), body, logger.Discard()))

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Content)
}

func TestParseSSEStreamToolEvents(t *testing.T) {
	raw := `data: {"type":"tool_call","id":"t1","name":"generate_image","arguments":{"prompt":"a cat"}}` + "\n" +
		`data: {"type":"tool_call_chunk","index":0,"id":"t1","args":"{\"pro"}` + "\n" +
		`data: {"type":"tool_result","tool_call_id":"t1","content":"{\"image_url\":\"/storage/images/x.png\"}"}` + "\n"
	body := io.NopCloser(strings.NewReader(raw))

	events := drain(parseSSEStream(context.Background(), body, logger.Discard()))

	require.Len(t, events, 3)
	assert.Equal(t, domain.StreamToolCall, events[0].Type)
	assert.Equal(t, "t1", events[0].ID)
	assert.Equal(t, "generate_image", events[0].Name)
	assert.Equal(t, "a cat", events[0].Arguments["prompt"])
	assert.Equal(t, domain.StreamToolCallChunk, events[1].Type)
	assert.Equal(t, domain.StreamToolResult, events[2].Type)
	assert.Equal(t, "t1", events[2].ToolCallID)
	assert.Contains(t, events[2].Content, "image_url")
}

func TestParseSSEStreamEndsWithoutDone(t *testing.T) {
	// Stream termination without [DONE] is a normal end: channel just closes.
	raw := "data: {\"type\":\"delta\",\"content\":\"tail\"}\n"
	body := io.NopCloser(strings.NewReader(raw))

	events := drain(parseSSEStream(context.Background(), body, logger.Discard()))

	require.Len(t, events, 1)
	assert.False(t, events[0].Done)
}

func TestParseSSEStreamContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < 100; i++ {
			pw.Write([]byte("data: {\"type\":\"delta\",\"content\":\"x\"}\n"))
			time.Sleep(20 * time.Millisecond)
		}
		pw.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	events := drain(parseSSEStream(ctx, pr, logger.Discard()))
	assert.Less(t, len(events), 100)
}

func TestParseSSEStreamCRLF(t *testing.T) {
	raw := "data: {\"type\":\"delta\",\"content\":\"win\"}\r\n\r\ndata: [DONE]\r\n"
	body := io.NopCloser(strings.NewReader(raw))

	events := drain(parseSSEStream(context.Background(), body, logger.Discard()))

	require.Len(t, events, 2)
	assert.Equal(t, "win", events[0].Content)
	assert.True(t, events[1].Done)
}
