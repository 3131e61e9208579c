package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"canvaschat/internal/adapter/scene"
	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
	"canvaschat/internal/infra/tracer"
)

const (
	// defaultImageDim is assumed when the image cannot be fetched or decoded.
	defaultImageDim = 1024

	// maxImageFetchBytes caps how much of a remote image is read when probing
	// dimensions and building the embedded data URL.
	maxImageFetchBytes = 16 << 20
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Inserter places generated images onto the canvas. Each insertion fetches
// the image once to learn its natural dimensions and embed it as a data URL,
// packs it into the grid, writes a white backing rectangle plus the image
// element into the scene, and forces an immediate save.
type Inserter struct {
	scene  scene.Store
	http   Doer
	// resolve maps backend-relative storage paths to absolute URLs.
	resolve func(string) string
	// forceSave persists the scene immediately, bypassing the debounce.
	// Image insertion is a significant, low-frequency event.
	forceSave func(ctx context.Context)
	layout    config.LayoutConfig
	bus       domain.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

// NewInserter wires an inserter. forceSave and bus may be nil.
func NewInserter(store scene.Store, client Doer, resolve func(string) string, forceSave func(ctx context.Context), layout config.LayoutConfig, bus domain.EventBus, logger *slog.Logger) *Inserter {
	if resolve == nil {
		resolve = func(u string) string { return u }
	}
	return &Inserter{
		scene:     store,
		http:      client,
		resolve:   resolve,
		forceSave: forceSave,
		layout:    layout,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// InsertImage adds the image at url to the canvas. Fetch or decode failure
// degrades to default dimensions with the remote URL embedded directly; the
// element still lands on the canvas.
func (ins *Inserter) InsertImage(ctx context.Context, url string) error {
	ctx, span := tracer.StartSpan(ctx, "inserter.insert_image")
	defer span.End()

	resolved := ins.resolve(url)

	naturalW, naturalH := float64(defaultImageDim), float64(defaultImageDim)
	dataURL := resolved
	mimeType := "image/png"

	if body, mime, err := ins.fetch(ctx, resolved); err != nil {
		ins.logger.Warn("image fetch failed, using defaults", "url", resolved, "error", err)
	} else {
		mimeType = mime
		dataURL = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(body))
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(body)); err != nil {
			ins.logger.Warn("image decode failed, using default dimensions", "url", resolved, "error", err)
		} else {
			naturalW, naturalH = float64(cfg.Width), float64(cfg.Height)
		}
	}

	w, h := DisplaySize(naturalW, naturalH, ins.layout)
	x, y := NextPosition(ins.scene.Elements(), ins.layout)

	fileID := newID()
	ins.scene.AddFiles([]domain.BinaryFile{{
		ID:       fileID,
		MimeType: mimeType,
		DataURL:  dataURL,
		Created:  ins.now().UnixMilli(),
	}})

	// The backing rectangle goes in first so the image renders above it;
	// without it the image's perceived color shifts on dark canvases.
	background := domain.Element{
		ID:              uuid.NewString(),
		Type:            domain.ElementRectangle,
		X:               x,
		Y:               y,
		Width:           w,
		Height:          h,
		StrokeColor:     "transparent",
		BackgroundColor: "#ffffff",
		FillStyle:       "solid",
		Opacity:         100,
	}
	img := domain.Element{
		ID:      uuid.NewString(),
		Type:    domain.ElementImage,
		X:       x,
		Y:       y,
		Width:   w,
		Height:  h,
		Opacity: 100,
		FileID:  fileID,
	}
	ins.scene.UpdateScene(append(ins.scene.Elements(), background, img), nil)

	if ins.bus != nil {
		ins.bus.Publish(ctx, domain.NewEvent(domain.EventImageInserted, url))
	}
	if ins.forceSave != nil {
		ins.forceSave(ctx)
	}

	tracer.SetOK(span)
	return nil
}

// fetch retrieves the image body and MIME type with a single request.
func (ins *Inserter) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := ins.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(body)
	}
	return body, mime, nil
}
