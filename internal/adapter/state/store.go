// Package state persists small client-side values that must survive restarts
// independently of server storage: the last-active project id, the theme
// preference, and the per-project pending-prompt staging area.
package state

import (
	"context"
	"sync"

	"canvaschat/internal/domain"
)

// Store is the injected key-value state abstraction. Pending prompts are
// read-once: Take returns the staged prompt and clears it atomically.
type Store interface {
	LastProjectID(ctx context.Context) (string, error)
	SetLastProjectID(ctx context.Context, id string) error

	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error

	StagePrompt(ctx context.Context, projectID string, p domain.PendingPrompt) error
	TakePrompt(ctx context.Context, projectID string) (*domain.PendingPrompt, error)

	Close() error
}

// Memory is an in-process Store for tests and headless runs.
type Memory struct {
	mu      sync.Mutex
	kv      map[string]string
	prompts map[string]domain.PendingPrompt
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:      make(map[string]string),
		prompts: make(map[string]domain.PendingPrompt),
	}
}

func (m *Memory) LastProjectID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv["last_project_id"], nil
}

func (m *Memory) SetLastProjectID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv["last_project_id"] = id
	return nil
}

func (m *Memory) Theme(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv["theme"], nil
}

func (m *Memory) SetTheme(_ context.Context, theme string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv["theme"] = theme
	return nil
}

func (m *Memory) StagePrompt(_ context.Context, projectID string, p domain.PendingPrompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[projectID] = p
	return nil
}

func (m *Memory) TakePrompt(_ context.Context, projectID string) (*domain.PendingPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[projectID]
	if !ok {
		return nil, nil
	}
	delete(m.prompts, projectID)
	return &p, nil
}

func (m *Memory) Close() error { return nil }
