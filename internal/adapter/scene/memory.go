package scene

import (
	"sync"

	"canvaschat/internal/domain"
)

// Memory is an in-memory Store. All mutations notify OnChange listeners
// synchronously, mirroring the editor's change callback.
type Memory struct {
	mu        sync.RWMutex
	doc       domain.SceneDocument
	listeners map[uint64]func()
	nextID    uint64
}

// NewMemory creates an empty in-memory scene store.
func NewMemory() *Memory {
	return &Memory{
		doc: domain.SceneDocument{
			AppState: domain.AppState{},
			Files:    map[string]domain.BinaryFile{},
		},
		listeners: make(map[uint64]func()),
	}
}

// Replace swaps in a whole document without notifying listeners. Used when
// loading a project; a load is not a user mutation and must not schedule a
// save.
func (m *Memory) Replace(doc domain.SceneDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc.Clone()
	if m.doc.AppState == nil {
		m.doc.AppState = domain.AppState{}
	}
	if m.doc.Files == nil {
		m.doc.Files = map[string]domain.BinaryFile{}
	}
}

func (m *Memory) Elements() []domain.Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Element, len(m.doc.Elements))
	copy(out, m.doc.Elements)
	return out
}

func (m *Memory) Files() map[string]domain.BinaryFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.BinaryFile, len(m.doc.Files))
	for k, v := range m.doc.Files {
		out[k] = v
	}
	return out
}

func (m *Memory) AppState() domain.AppState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(domain.AppState, len(m.doc.AppState))
	for k, v := range m.doc.AppState {
		out[k] = v
	}
	return out
}

func (m *Memory) AddFiles(files []domain.BinaryFile) {
	m.mu.Lock()
	for _, f := range files {
		m.doc.Files[f.ID] = f
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Memory) UpdateScene(elements []domain.Element, appState domain.AppState) {
	m.mu.Lock()
	els := make([]domain.Element, len(elements))
	copy(els, elements)
	m.doc.Elements = els
	if appState != nil {
		st := make(domain.AppState, len(appState))
		for k, v := range appState {
			st[k] = v
		}
		m.doc.AppState = st
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Memory) OnChange(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Memory) notify() {
	m.mu.RLock()
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
