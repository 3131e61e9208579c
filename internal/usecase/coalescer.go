package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"canvaschat/internal/adapter/scene"
	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
)

// SceneSaver persists one sanitized scene document.
type SceneSaver func(ctx context.Context, doc domain.SceneDocument) error

// Coalescer bounds write amplification to backend storage while keeping data
// loss bounded in time. Three triggers can flush:
//
//  1. change debounce: every scene mutation re-arms a short timer; only the
//     last mutation in a burst causes a write, carrying the cumulative state;
//  2. periodic safety flush: a recurring job writes if at least the safety
//     interval has passed since the last successful save;
//  3. suspend flush: an explicit flush on shutdown or focus loss, under the
//     same elapsed-time guard.
//
// The snapshot is read from the store at flush time, not at trigger time, so
// a flush always carries the latest state. ForceFlush bypasses both the
// debounce and the elapsed-time guard.
type Coalescer struct {
	store  scene.Store
	save   SceneSaver
	cfg    config.SaveConfig
	bus    domain.EventBus
	logger *slog.Logger

	cron *cron.Cron

	mu       sync.Mutex
	timer    *time.Timer
	lastSave time.Time
	unsub    func()
	closed   bool

	now func() time.Time
}

// NewCoalescer builds a coalescer over the given store. bus may be nil.
func NewCoalescer(store scene.Store, save SceneSaver, cfg config.SaveConfig, bus domain.EventBus, logger *slog.Logger) *Coalescer {
	return &Coalescer{
		store:  store,
		save:   save,
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// Start subscribes to scene mutations and starts the periodic safety flush.
func (c *Coalescer) Start() error {
	c.mu.Lock()
	c.lastSave = c.now()
	c.mu.Unlock()

	c.unsub = c.store.OnChange(c.onChange)

	spec := fmt.Sprintf("@every %s", c.cfg.SafetyInterval)
	if _, err := c.cron.AddFunc(spec, c.periodicFlush); err != nil {
		return fmt.Errorf("schedule safety flush: %w", err)
	}
	c.cron.Start()
	return nil
}

// onChange re-arms the debounce timer. Called on every scene mutation.
func (c *Coalescer) onChange() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.ChangeDebounce, func() {
		if err := c.flush(context.Background()); err != nil {
			c.logger.Warn("debounced scene save failed", "error", err)
		}
	})
}

// periodicFlush writes if the safety interval has elapsed since the last
// save, independent of any pending debounce.
func (c *Coalescer) periodicFlush() {
	c.mu.Lock()
	elapsed := c.now().Sub(c.lastSave)
	closed := c.closed
	c.mu.Unlock()
	if closed || elapsed < c.cfg.SafetyInterval {
		return
	}
	if err := c.flush(context.Background()); err != nil {
		c.logger.Warn("periodic scene save failed", "error", err)
	}
}

// Suspend cancels any pending debounce and writes a final snapshot if the
// safety interval has elapsed since the last save. Called on focus loss and
// before shutdown.
func (c *Coalescer) Suspend(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	elapsed := c.now().Sub(c.lastSave)
	c.mu.Unlock()

	if elapsed < c.cfg.SafetyInterval {
		return nil
	}
	return c.flush(ctx)
}

// ForceFlush writes immediately, cancelling any pending debounce and ignoring
// the elapsed-time guard. Used for significant low-frequency events such as
// image insertion.
func (c *Coalescer) ForceFlush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	return c.flush(ctx)
}

// Close suspends, stops the periodic job and detaches from the store.
func (c *Coalescer) Close(ctx context.Context) error {
	err := c.Suspend(ctx)

	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.cron.Stop()
	if c.unsub != nil {
		c.unsub()
	}
	return err
}

// flush captures and sanitizes the current snapshot and persists it.
func (c *Coalescer) flush(ctx context.Context) error {
	doc := domain.SceneDocument{
		Elements: c.store.Elements(),
		AppState: c.store.AppState(),
		Files:    c.store.Files(),
	}
	doc = SanitizeDocument(&doc)

	if err := c.save(ctx, doc); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastSave = c.now()
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(ctx, domain.NewEvent(domain.EventProjectSaved, len(doc.Elements)))
	}
	return nil
}

// MessageSaver persists the chat message list.
type MessageSaver func(ctx context.Context, msgs []domain.Message) error

// MessageCoalescer debounces persistence of the chat message list, with a
// structural-equality gate so unchanged content never writes.
type MessageCoalescer struct {
	save     MessageSaver
	debounce time.Duration
	bus      domain.EventBus
	logger   *slog.Logger

	mu        sync.Mutex
	timer     *time.Timer
	pending   []domain.Message
	lastSaved []domain.Message
	closed    bool
}

// NewMessageCoalescer builds a message-list coalescer. bus may be nil.
func NewMessageCoalescer(save MessageSaver, debounce time.Duration, bus domain.EventBus, logger *slog.Logger) *MessageCoalescer {
	return &MessageCoalescer{save: save, debounce: debounce, bus: bus, logger: logger}
}

// Update records the latest message list and re-arms the debounce.
func (m *MessageCoalescer) Update(msgs []domain.Message) {
	snapshot := make([]domain.Message, len(msgs))
	copy(snapshot, msgs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = snapshot
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, func() {
		if err := m.Flush(context.Background()); err != nil {
			m.logger.Warn("message save failed", "error", err)
		}
	})
}

// Flush writes the pending list now if it differs from the last saved one.
func (m *MessageCoalescer) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	pending := m.pending
	unchanged := pending == nil || reflect.DeepEqual(pending, m.lastSaved)
	m.mu.Unlock()

	if unchanged {
		return nil
	}
	if err := m.save(ctx, pending); err != nil {
		return err
	}

	m.mu.Lock()
	m.lastSaved = pending
	m.pending = nil
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(ctx, domain.NewEvent(domain.EventMessagesSaved, len(pending)))
	}
	return nil
}

// Close flushes anything pending and stops accepting updates.
func (m *MessageCoalescer) Close(ctx context.Context) error {
	err := m.Flush(ctx)
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return err
}
