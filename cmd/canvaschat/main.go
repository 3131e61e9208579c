package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"canvaschat/internal/adapter/backend"
	"canvaschat/internal/adapter/scene"
	"canvaschat/internal/adapter/state"
	"canvaschat/internal/adapter/tui/chat"
	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
	"canvaschat/internal/infra/logger"
	"canvaschat/internal/infra/tracer"
	"canvaschat/internal/usecase"
	"canvaschat/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "projects":
		err = runProjects()
	case "new":
		err = runNew()
	case "delete":
		err = runDelete()
	case "upload":
		err = runUpload()
	case "theme":
		err = runTheme()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'canvaschat --help' for usage.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`canvaschat - chat-driven image generation over a shared canvas

USAGE:
    canvaschat [COMMAND] [FLAGS]

COMMANDS:
    projects            List projects
    new [NAME]          Create a project (use --prompt to stage a first prompt)
    delete ID           Delete a project
    upload PATH         Upload an image, print its storage URL
    theme [NAME]        Show or set the chat theme (dark, light or auto)

    (no command)        Open the chat view on a project

FLAGS:
    -h, --help          Show this help message
    --config PATH       Config file path (default: ./config.yaml)
    --project ID        Open a specific project
    --prompt TEXT       With 'new': stage a first prompt for the project
    --image URL         With 'new': attach an image URL to the staged prompt
                        (repeatable, requires --prompt)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: CANVASCHAT_* variables override config`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("CANVASCHAT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// flagValues collects every occurrence of a repeatable flag.
func flagValues(name string) []string {
	var out []string
	for i, arg := range os.Args {
		if arg == "--"+name && i+1 < len(os.Args) {
			out = append(out, os.Args[i+1])
		}
		if strings.HasPrefix(arg, "--"+name+"=") {
			out = append(out, strings.TrimPrefix(arg, "--"+name+"="))
		}
	}
	return out
}

func flagValue(name string) string {
	for i, arg := range os.Args {
		if arg == "--"+name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--"+name+"=") {
			return strings.TrimPrefix(arg, "--"+name+"=")
		}
	}
	return ""
}

// app bundles the components shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	client   *backend.Client
	state    state.Store
	registry *usecase.Registry
	bus      *eventbus.Bus
	shutdown func(context.Context) error
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	bus := eventbus.New(log)
	client := backend.New(cfg.Backend, log)

	st, err := state.NewSQLiteStore(cfg.State.Path)
	if err != nil {
		log.Warn("state store unavailable, using in-memory state", "path", cfg.State.Path, "error", err)
	}
	var store state.Store
	if st != nil {
		store = st
	} else {
		store = state.NewMemory()
	}

	registry := usecase.NewRegistry(client, store, bus, log)

	return &app{
		cfg:      cfg,
		log:      log,
		client:   client,
		state:    store,
		registry: registry,
		bus:      bus,
		shutdown: func(ctx context.Context) error {
			bus.Close()
			err := store.Close()
			if terr := tracerShutdown(ctx); terr != nil && err == nil {
				err = terr
			}
			logCloser()
			return err
		},
	}, nil
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. Shared components.
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.shutdown(shutdownCtx)
	}()
	log := a.log

	// 2. Load and select the project.
	if err := a.registry.Refresh(ctx); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	project, err := a.registry.Select(ctx, flagValue("project"))
	if err != nil {
		return fmt.Errorf("select project: %w", err)
	}

	// 3. Canvas store, seeded with the project's document.
	sceneStore := scene.NewMemory()
	if project.Data != nil {
		sceneStore.Replace(usecase.SanitizeDocument(project.Data))
	}

	// 4. Save coalescers.
	coalescer := usecase.NewCoalescer(sceneStore, a.registry.PersistScene, a.cfg.Saves, a.bus, log)
	if err := coalescer.Start(); err != nil {
		return fmt.Errorf("coalescer: %w", err)
	}
	defer coalescer.Close(context.Background())

	msgCoalescer := usecase.NewMessageCoalescer(a.registry.PersistMessages, a.cfg.Saves.MessageDebounce, a.bus, log)
	defer msgCoalescer.Close(context.Background())

	// 5. Image insertion side effect.
	forceSave := func(ctx context.Context) {
		if err := coalescer.ForceFlush(ctx); err != nil {
			log.Warn("forced save failed", "error", err)
		}
	}
	inserter := usecase.NewInserter(
		sceneStore,
		&http.Client{Timeout: a.cfg.Backend.Timeout},
		a.client.ResolveURL,
		forceSave,
		a.cfg.Layout,
		a.bus,
		log,
	)

	// 6. Chat session.
	counter := usecase.NewTokenCounter(a.cfg.History.Encoding, log)
	session := usecase.NewSession(a.client, inserter, counter, a.cfg.History, a.bus, log)
	session.Load(project.ID, project.Messages)
	session.OnUpdate(msgCoalescer.Update)

	// 7. Consume a staged first prompt, if the creation flow left one.
	pending, err := a.state.TakePrompt(ctx, project.ID)
	if err != nil {
		log.Warn("reading staged prompt failed", "error", err)
	}

	// 8. TUI, styled with the persisted theme.
	theme, err := a.state.Theme(ctx)
	if err != nil {
		log.Warn("reading theme failed", "error", err)
	}
	model := chat.New(chat.Deps{Session: session, Logger: log, Theme: theme}, project.Name, session.Messages())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if pending != nil && pending.Text != "" {
		text, images := pending.Text, pending.Images
		go func() {
			if err := session.Send(ctx, text, images); err != nil {
				log.Warn("staged prompt send failed", "error", err)
			}
		}()
	}

	log.Info("canvaschat starting",
		"project_id", project.ID,
		"project_name", project.Name,
		"backend", a.cfg.Backend.BaseURL,
	)

	_, runErr := p.Run()
	return runErr
}

func runProjects() error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	if err := a.registry.Refresh(ctx); err != nil {
		return err
	}
	projects := a.registry.Projects()
	if len(projects) == 0 {
		fmt.Println("no projects")
		return nil
	}
	for _, p := range projects {
		created := time.Unix(int64(p.CreatedAt), 0).Format("2006-01-02 15:04")
		fmt.Printf("%s  %-30s  %s\n", p.ID, p.Name, created)
	}
	return nil
}

func runNew() error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	name := ""
	if len(os.Args) >= 3 && !strings.HasPrefix(os.Args[2], "-") {
		name = os.Args[2]
	}

	if err := a.registry.Refresh(ctx); err != nil {
		return err
	}
	p, err := a.registry.Create(ctx, name)
	if err != nil {
		return err
	}

	prompt := flagValue("prompt")
	images := flagValues("image")
	if prompt == "" && len(images) > 0 {
		return fmt.Errorf("--image requires --prompt")
	}
	if prompt != "" {
		staged := domain.PendingPrompt{Text: prompt, Images: images}
		if err := a.state.StagePrompt(ctx, p.ID, staged); err != nil {
			return fmt.Errorf("stage prompt: %w", err)
		}
	}

	fmt.Printf("created %s (%s)\n", p.Name, p.ID)
	return nil
}

func runDelete() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: canvaschat delete ID")
	}
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	if err := a.registry.Refresh(ctx); err != nil {
		return err
	}
	if err := a.registry.Delete(ctx, os.Args[2]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", os.Args[2])
	return nil
}

func runTheme() error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	if len(os.Args) < 3 {
		theme, err := a.state.Theme(ctx)
		if err != nil {
			return err
		}
		if chat.NormalizeTheme(theme) == "" {
			theme = "auto"
		}
		fmt.Println(theme)
		return nil
	}

	value := strings.ToLower(os.Args[2])
	switch value {
	case "dark", "light":
	case "auto":
		value = ""
	default:
		return fmt.Errorf("unknown theme %q (dark, light or auto)", os.Args[2])
	}
	if err := a.state.SetTheme(ctx, value); err != nil {
		return err
	}
	if value == "" {
		value = "auto"
	}
	fmt.Printf("theme set to %s\n", value)
	return nil
}

func runUpload() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: canvaschat upload PATH")
	}
	path := os.Args[2]

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	result, err := a.client.UploadImage(ctx, filepath.Base(path), contentType, f)
	if err != nil {
		return err
	}
	fmt.Println(a.client.ResolveURL(result.URL))
	return nil
}
