package usecase

import (
	"context"
	"log/slog"
	"sync"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
	"canvaschat/internal/infra/tracer"
)

// ChatBackend issues a streaming chat request and returns its event channel.
type ChatBackend interface {
	Chat(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamEvent, error)
}

// ImageInserter places a generated image onto the canvas.
type ImageInserter interface {
	InsertImage(ctx context.Context, url string) error
}

// Session orchestrates one chat conversation: it composes requests with
// token-budgeted history, drives the reducer over the response stream,
// publishes every intermediate message list to its observer, and runs the
// canvas insertion side effect for image-bearing tool results.
//
// One request at a time: Send while a stream is in flight returns ErrBusy.
// Transport and stream failures never propagate to the caller; they surface
// as an error line in the last assistant message.
type Session struct {
	backend  ChatBackend
	inserter ImageInserter
	counter  TokenCounter
	history  config.HistoryConfig
	bus      domain.EventBus
	logger   *slog.Logger

	mu        sync.Mutex
	projectID string
	msgs      []domain.Message
	busy      bool
	onUpdate  func([]domain.Message)
}

// NewSession builds a session controller. inserter, bus and counter may be
// nil; a nil counter disables history trimming.
func NewSession(backend ChatBackend, inserter ImageInserter, counter TokenCounter, history config.HistoryConfig, bus domain.EventBus, logger *slog.Logger) *Session {
	return &Session{
		backend:  backend,
		inserter: inserter,
		counter:  counter,
		history:  history,
		bus:      bus,
		logger:   logger,
	}
}

// Load switches the session to a project's conversation.
func (s *Session) Load(projectID string, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectID = projectID
	s.msgs = make([]domain.Message, len(msgs))
	copy(s.msgs, msgs)
}

// OnUpdate registers the observer notified with the full message list after
// every change. The list is always replaced wholesale, never patched.
func (s *Session) OnUpdate(fn func([]domain.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Messages returns a copy of the current message list.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Busy reports whether a chat request is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Send submits a user message, with optional attached image URLs, and
// consumes the whole response stream before returning. Only ErrBusy is
// returned as an error; every downstream failure is rendered into the
// conversation instead.
func (s *Session) Send(ctx context.Context, text string, images []string) error {
	ctx, span := tracer.StartSpan(ctx, "session.send")
	defer span.End()

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return domain.WrapOp("session.send", domain.ErrBusy)
	}
	s.busy = true

	history := s.historyPairsLocked()
	s.msgs = append(s.msgs, domain.Message{
		Role:    domain.RoleUser,
		Content: text,
		Images:  append([]string(nil), images...),
	})
	seed := make([]domain.Message, len(s.msgs))
	copy(seed, s.msgs)
	projectID := s.projectID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	s.notify()

	req := domain.ChatRequest{
		Message:   text,
		Messages:  history,
		SessionID: projectID,
	}

	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventStreamStarted, projectID))
	}

	events, err := s.backend.Chat(ctx, req)
	if err != nil {
		s.logger.Error("chat request failed", "error", err)
		tracer.RecordError(span, err)
		s.surfaceError(ctx, seed, err)
		return nil
	}

	reducer := NewReducer(seed, s.insertImage, s.logger)
	for ev := range events {
		reducer.Apply(ctx, ev)
		s.replaceMessages(reducer.Messages())
		s.publishStreamEvent(ctx, ev)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventStreamCompleted, projectID))
	}
	tracer.SetOK(span)
	return nil
}

// publishStreamEvent mirrors stream progress onto the event bus.
func (s *Session) publishStreamEvent(ctx context.Context, ev domain.StreamEvent) {
	if s.bus == nil || ev.Done {
		return
	}
	switch ev.Type {
	case domain.StreamDelta:
		s.bus.Publish(ctx, domain.NewEvent(domain.EventStreamDelta, ev.Content))
	case domain.StreamToolCall:
		s.bus.Publish(ctx, domain.NewEvent(domain.EventToolCallStarted, ev.Name))
	case domain.StreamToolResult:
		s.bus.Publish(ctx, domain.NewEvent(domain.EventToolCallCompleted, ev.ToolCallID))
	}
}

// insertImage is the reducer's tool-result hook.
func (s *Session) insertImage(ctx context.Context, url string) {
	if s.inserter == nil {
		return
	}
	if err := s.inserter.InsertImage(ctx, url); err != nil {
		s.logger.Warn("canvas image insertion failed", "url", url, "error", err)
	}
}

// surfaceError renders a failed request as an assistant error line.
func (s *Session) surfaceError(ctx context.Context, seed []domain.Message, err error) {
	reducer := NewReducer(seed, nil, s.logger)
	reducer.Apply(ctx, domain.StreamEvent{Type: domain.StreamError, Error: err.Error()})
	s.replaceMessages(reducer.Messages())

	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventStreamError, err))
	}
}

func (s *Session) replaceMessages(msgs []domain.Message) {
	s.mu.Lock()
	s.msgs = msgs
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	msgs := make([]domain.Message, len(s.msgs))
	copy(msgs, s.msgs)
	s.mu.Unlock()
	if fn != nil {
		fn(msgs)
	}
}

// historyPairsLocked flattens the conversation into role/content pairs and
// trims the oldest to the token budget. Must be called with s.mu held.
func (s *Session) historyPairsLocked() []domain.HistoryPair {
	pairs := make([]domain.HistoryPair, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.Content == "" {
			continue
		}
		pairs = append(pairs, domain.HistoryPair{Role: m.Role, Content: m.Content})
	}
	if s.counter == nil {
		return pairs
	}
	return TrimHistory(pairs, s.history.TokenBudget, s.counter)
}
