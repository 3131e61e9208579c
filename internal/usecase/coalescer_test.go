package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvaschat/internal/adapter/scene"
	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
	"canvaschat/internal/infra/logger"
	"canvaschat/internal/usecase/eventbus"
)

type recordingSaver struct {
	mu    sync.Mutex
	saves []domain.SceneDocument
}

func (r *recordingSaver) save(_ context.Context, doc domain.SceneDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, doc)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingSaver) last() domain.SceneDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

func testSaveConfig() config.SaveConfig {
	return config.SaveConfig{
		ChangeDebounce:  30 * time.Millisecond,
		SafetyInterval:  10 * time.Second,
		MessageDebounce: 30 * time.Millisecond,
	}
}

func startCoalescer(t *testing.T, store scene.Store, saver *recordingSaver) *Coalescer {
	t.Helper()
	c := NewCoalescer(store, saver.save, testSaveConfig(), nil, logger.Discard())
	require.NoError(t, c.Start())
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func waitForSaves(t *testing.T, saver *recordingSaver, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if saver.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d saves, got %d", want, saver.count())
}

func TestCoalescerDebouncesBurst(t *testing.T) {
	store := scene.NewMemory()
	saver := &recordingSaver{}
	startCoalescer(t, store, saver)

	for i := 0; i < 10; i++ {
		store.UpdateScene([]domain.Element{{ID: "e", Type: domain.ElementRectangle, Width: float64(i)}}, nil)
		time.Sleep(2 * time.Millisecond)
	}

	waitForSaves(t, saver, 1)
	time.Sleep(100 * time.Millisecond)

	// One write for the whole burst, carrying the final state.
	assert.Equal(t, 1, saver.count())
	last := saver.last()
	require.Len(t, last.Elements, 1)
	assert.Equal(t, 9.0, last.Elements[0].Width)
}

func TestCoalescerSanitizesSnapshot(t *testing.T) {
	store := scene.NewMemory()
	saver := &recordingSaver{}
	startCoalescer(t, store, saver)

	store.UpdateScene(nil, domain.AppState{
		"theme":         "dark",
		"collaborators": map[string]any{"peer": true},
	})

	waitForSaves(t, saver, 1)
	doc := saver.last()
	assert.NotContains(t, doc.AppState, "collaborators")
	assert.Equal(t, "dark", doc.AppState["theme"])
	assert.NotNil(t, doc.Elements)
	assert.NotNil(t, doc.Files)
}

func TestCoalescerPeriodicFlushGuard(t *testing.T) {
	store := scene.NewMemory()
	saver := &recordingSaver{}
	c := startCoalescer(t, store, saver)

	// Within the safety interval of the last save: no write.
	c.periodicFlush()
	assert.Equal(t, 0, saver.count())

	// Pretend the last save is stale.
	c.mu.Lock()
	c.lastSave = time.Now().Add(-time.Minute)
	c.mu.Unlock()

	c.periodicFlush()
	assert.Equal(t, 1, saver.count())
}

func TestCoalescerSuspendFlush(t *testing.T) {
	store := scene.NewMemory()
	saver := &recordingSaver{}
	c := startCoalescer(t, store, saver)

	// Recent save: suspend is a no-op and cancels the pending debounce.
	store.UpdateScene([]domain.Element{{ID: "e1", Type: domain.ElementRectangle}}, nil)
	require.NoError(t, c.Suspend(context.Background()))
	assert.Equal(t, 0, saver.count())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, saver.count(), "cancelled debounce must not fire")

	// Stale save: suspend writes.
	c.mu.Lock()
	c.lastSave = time.Now().Add(-time.Minute)
	c.mu.Unlock()
	require.NoError(t, c.Suspend(context.Background()))
	assert.Equal(t, 1, saver.count())
}

func TestCoalescerForceFlushBypassesGuard(t *testing.T) {
	store := scene.NewMemory()
	saver := &recordingSaver{}
	c := startCoalescer(t, store, saver)

	store.UpdateScene([]domain.Element{{ID: "e1", Type: domain.ElementImage}}, nil)
	require.NoError(t, c.ForceFlush(context.Background()))
	assert.Equal(t, 1, saver.count())

	// The force flush superseded the pending debounce.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, saver.count())
}

func TestCoalescerSnapshotReadAtFlushTime(t *testing.T) {
	store := scene.NewMemory()
	saver := &recordingSaver{}
	c := startCoalescer(t, store, saver)

	store.UpdateScene([]domain.Element{{ID: "e1", Type: domain.ElementRectangle}}, nil)
	store.AddFiles([]domain.BinaryFile{{ID: "f1", MimeType: "image/png", DataURL: "data:image/png;base64,xx"}})

	require.NoError(t, c.ForceFlush(context.Background()))
	doc := saver.last()
	assert.Len(t, doc.Elements, 1)
	assert.Contains(t, doc.Files, "f1")
}

type recordingMessageSaver struct {
	mu    sync.Mutex
	saves [][]domain.Message
}

func (r *recordingMessageSaver) save(_ context.Context, msgs []domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, msgs)
	return nil
}

func (r *recordingMessageSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func TestMessageCoalescerDebounces(t *testing.T) {
	saver := &recordingMessageSaver{}
	mc := NewMessageCoalescer(saver.save, 30*time.Millisecond, nil, logger.Discard())
	defer mc.Close(context.Background())

	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "a"}})
	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "ab"}})
	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "abc"}})

	deadline := time.Now().Add(2 * time.Second)
	for saver.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, saver.count())
	assert.Equal(t, "abc", saver.saves[0][0].Content)
}

func TestMessageCoalescerEqualityGate(t *testing.T) {
	saver := &recordingMessageSaver{}
	mc := NewMessageCoalescer(saver.save, 10*time.Millisecond, nil, logger.Discard())
	defer mc.Close(context.Background())

	msgs := []domain.Message{{Role: domain.RoleUser, Content: "hello"}}
	mc.Update(msgs)
	require.NoError(t, mc.Flush(context.Background()))
	require.Equal(t, 1, saver.count())

	// Same content again: gate suppresses the write.
	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "hello"}})
	require.NoError(t, mc.Flush(context.Background()))
	assert.Equal(t, 1, saver.count())

	// Changed content writes.
	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "hello again"}})
	require.NoError(t, mc.Flush(context.Background()))
	assert.Equal(t, 2, saver.count())
}

func TestMessageCoalescerCloseFlushesPending(t *testing.T) {
	saver := &recordingMessageSaver{}
	mc := NewMessageCoalescer(saver.save, time.Hour, nil, logger.Discard())

	mc.Update([]domain.Message{{Role: domain.RoleAssistant, Content: "bye"}})
	require.NoError(t, mc.Close(context.Background()))
	require.Equal(t, 1, saver.count())

	// Closed coalescer drops further updates.
	mc.Update([]domain.Message{{Role: domain.RoleAssistant, Content: "late"}})
	require.NoError(t, mc.Flush(context.Background()))
	assert.Equal(t, 1, saver.count())
}

func TestMessageCoalescerPublishesSavedEvent(t *testing.T) {
	saver := &recordingMessageSaver{}
	bus := eventbus.New(logger.Discard())
	mc := NewMessageCoalescer(saver.save, time.Hour, bus, logger.Discard())

	var mu sync.Mutex
	var published int
	bus.Subscribe(domain.EventMessagesSaved, func(context.Context, domain.Event) {
		mu.Lock()
		published++
		mu.Unlock()
	})

	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, mc.Flush(context.Background()))

	// Equality-gated no-op flush must not publish.
	mc.Update([]domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, mc.Flush(context.Background()))
	require.NoError(t, mc.Close(context.Background()))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, published)
}
