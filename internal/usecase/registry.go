package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"canvaschat/internal/adapter/state"
	"canvaschat/internal/domain"
	"canvaschat/internal/infra/tracer"
)

// ProjectStore is the backend persistence surface the registry needs.
// The backend HTTP client satisfies it.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]domain.Project, error)
	SaveProject(ctx context.Context, p *domain.Project) error
	DeleteProject(ctx context.Context, id string) error
}

// Registry is the project list: load, create, select, delete, and the
// persistence hooks for the currently selected project's scene and messages.
// New projects go to the front of the list so the landing view shows newest
// first.
type Registry struct {
	store  ProjectStore
	state  state.Store
	bus    domain.EventBus
	logger *slog.Logger

	mu       sync.Mutex
	projects []domain.Project
	current  string
}

// NewRegistry builds a registry. bus may be nil.
func NewRegistry(store ProjectStore, st state.Store, bus domain.EventBus, logger *slog.Logger) *Registry {
	return &Registry{store: store, state: st, bus: bus, logger: logger}
}

// Refresh loads all projects from the backend. Every loaded project is
// schema-checked (advisory, failures logged) and migrated to the current
// document shape.
func (r *Registry) Refresh(ctx context.Context) error {
	ctx, span := tracer.StartSpan(ctx, "registry.refresh")
	defer span.End()

	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("registry.refresh", err)
	}

	migrated := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if err := ValidateProject(p); err != nil {
			r.logger.Warn("project failed schema validation, loading anyway", "project_id", p.ID, "error", err)
		}
		migrated = append(migrated, MigrateProject(p))
	}

	r.mu.Lock()
	r.projects = migrated
	r.mu.Unlock()

	tracer.SetOK(span)
	return nil
}

// Projects returns a copy of the project list.
func (r *Registry) Projects() []domain.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// Create makes a new empty project, persists it immediately and puts it at
// the front of the list. An empty name becomes "Untitled".
func (r *Registry) Create(ctx context.Context, name string) (*domain.Project, error) {
	ctx, span := tracer.StartSpan(ctx, "registry.create")
	defer span.End()

	if name == "" {
		name = "Untitled"
	}
	doc := SanitizeDocument(nil)
	p := domain.Project{
		ID:        newID(),
		Name:      name,
		CreatedAt: float64(time.Now().UnixMilli()) / 1000,
		Data:      &doc,
		Messages:  []domain.Message{},
	}

	if err := r.store.SaveProject(ctx, &p); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("registry.create", err)
	}

	r.mu.Lock()
	r.projects = append([]domain.Project{p}, r.projects...)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(domain.EventProjectCreated, p.ID))
	}
	tracer.SetOK(span)
	return &p, nil
}

// Select picks the active project. Fallback order: the requested id, the
// last-used id from local state, the first project in the list, and finally a
// freshly created project when the list is empty. The winner is recorded as
// last-used.
func (r *Registry) Select(ctx context.Context, requested string) (*domain.Project, error) {
	if p := r.byID(requested); p != nil {
		return r.activate(ctx, p)
	}
	if requested != "" {
		r.logger.Warn("requested project not found, falling back", "project_id", requested)
	}

	if lastUsed, err := r.state.LastProjectID(ctx); err != nil {
		r.logger.Warn("reading last project id failed", "error", err)
	} else if p := r.byID(lastUsed); p != nil {
		return r.activate(ctx, p)
	}

	r.mu.Lock()
	var first *domain.Project
	if len(r.projects) > 0 {
		p := r.projects[0]
		first = &p
	}
	r.mu.Unlock()
	if first != nil {
		return r.activate(ctx, first)
	}

	created, err := r.Create(ctx, "")
	if err != nil {
		return nil, err
	}
	return r.activate(ctx, created)
}

// Current returns the active project, or nil when none is selected.
func (r *Registry) Current() *domain.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

// Delete removes a project from the backend and the local list. Deleting the
// active project clears the selection; a stale last-used pointer is cleared
// too.
func (r *Registry) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.StartSpan(ctx, "registry.delete")
	defer span.End()

	if err := r.store.DeleteProject(ctx, id); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("registry.delete", err)
	}

	r.mu.Lock()
	kept := r.projects[:0]
	for _, p := range r.projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	r.projects = kept
	if r.current == id {
		r.current = ""
	}
	r.mu.Unlock()

	if lastUsed, err := r.state.LastProjectID(ctx); err == nil && lastUsed == id {
		if err := r.state.SetLastProjectID(ctx, ""); err != nil {
			r.logger.Warn("clearing last project id failed", "error", err)
		}
	}

	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(domain.EventProjectDeleted, id))
	}
	tracer.SetOK(span)
	return nil
}

// PersistScene stores the given document as the active project's canvas.
// Used as the save coalescer's sink.
func (r *Registry) PersistScene(ctx context.Context, doc domain.SceneDocument) error {
	p, err := r.snapshotCurrent()
	if err != nil {
		return err
	}
	p.Data = &doc
	p.Images = nil // superseded by the document shape
	return r.persist(ctx, p)
}

// PersistMessages stores the given message list on the active project.
func (r *Registry) PersistMessages(ctx context.Context, msgs []domain.Message) error {
	p, err := r.snapshotCurrent()
	if err != nil {
		return err
	}
	p.Messages = msgs
	return r.persist(ctx, p)
}

func (r *Registry) snapshotCurrent() (domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.currentLocked()
	if cur == nil {
		return domain.Project{}, domain.WrapOp("registry.persist", domain.ErrProjectNotFound)
	}
	return *cur, nil
}

func (r *Registry) persist(ctx context.Context, p domain.Project) error {
	if err := r.store.SaveProject(ctx, &p); err != nil {
		return domain.WrapOp("registry.persist", err)
	}
	r.mu.Lock()
	for i := range r.projects {
		if r.projects[i].ID == p.ID {
			r.projects[i] = p
			break
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) activate(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	r.mu.Lock()
	r.current = p.ID
	r.mu.Unlock()

	if err := r.state.SetLastProjectID(ctx, p.ID); err != nil {
		r.logger.Warn("recording last project id failed", "project_id", p.ID, "error", err)
	}
	out := *p
	return &out, nil
}

func (r *Registry) byID(id string) *domain.Project {
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.projects {
		if r.projects[i].ID == id {
			return &r.projects[i]
		}
	}
	return nil
}

// currentLocked must be called with r.mu held.
func (r *Registry) currentLocked() *domain.Project {
	if r.current == "" {
		return nil
	}
	for i := range r.projects {
		if r.projects[i].ID == r.current {
			return &r.projects[i]
		}
	}
	return nil
}
