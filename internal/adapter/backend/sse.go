package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"canvaschat/internal/domain"
)

// maxSSELine bounds a single data: line. Full-state "messages" events can get
// large on long conversations.
const maxSSELine = 4 * 1024 * 1024

// parseSSEStream reads SSE-framed lines from body and decodes each data
// payload into a domain.StreamEvent. Malformed JSON lines are logged and
// skipped, never fatal. The returned channel is closed when the stream ends,
// the body is closed, or ctx is cancelled. A trailing partial line is
// buffered across reads by the scanner, so chunk boundaries inside a record
// are invisible to the decoder.
func parseSSEStream(ctx context.Context, body io.ReadCloser, logger *slog.Logger) <-chan domain.StreamEvent {
	ch := make(chan domain.StreamEvent, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), maxSSELine)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))

			// Skip empty lines and comments.
			if len(line) == 0 || line[0] == ':' {
				continue
			}

			// We only care about "data: ..." lines.
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))

			// Termination marker. The reducer also handles a stream that ends
			// without one, so this is just an explicit done signal.
			if bytes.Equal(data, []byte("[DONE]")) {
				select {
				case ch <- domain.StreamEvent{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var ev domain.StreamEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				logger.Debug("skipping malformed stream line", "error", err, "line_len", len(data))
				continue
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			// I/O error mid-stream: surface a done marker so consumers know
			// the stream terminated. Partial progress stays applied.
			logger.Warn("stream read failed", "error", err)
			select {
			case ch <- domain.StreamEvent{Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
