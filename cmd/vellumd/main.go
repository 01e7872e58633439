// Command vellumd wires a Library instance to its collaborators and,
// optionally, exposes it over a stdio JSON-RPC transport.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vellum/internal/circulation"
	"vellum/internal/config"
	"vellum/internal/embedprovider"
	"vellum/internal/jsonrpc"
	"vellum/internal/librarian"
	"vellum/internal/library"
	"vellum/internal/stacks/search"
	"vellum/internal/storage"
	"vellum/internal/telemetry"
	"vellum/internal/textgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vellumd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml")
	stdio := flag.Bool("stdio", false, "serve the Library over NDJSON JSON-RPC on stdin/stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := telemetry.NewLogger(cfg.LogPath, cfg.LogLevel)
	metrics := telemetry.NewMetrics("vellum")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage backend: %w", err)
	}

	embedder := embedprovider.NewHTTPProvider(cfg.Embedding)

	registry := librarian.NewRegistry()
	if cfg.TextGen.Provider != "" && cfg.TextGen.Provider != "none" {
		gen, err := textgen.New(cfg.TextGen)
		if err != nil {
			return fmt.Errorf("init text generation provider: %w", err)
		}
		registry.Register(librarian.CreateDefaultLibrarian("default", gen))
	}

	lib := library.New(backend, embedder, *cfg,
		library.WithLogger(log),
		library.WithMetrics(metrics),
		library.WithLibrarianRegistry(registry),
	)

	var desk *circulation.Desk
	if registry.Size() > 0 {
		desk = circulation.New(lib, registry, cfg.Circulation, circulation.WithLogger(log), circulation.WithMetrics(metrics))
		lib.AttachCirculationDesk(desk)
	}

	if err := lib.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize library: %w", err)
	}
	if desk != nil {
		desk.Start(ctx)
	}
	log.Info("library started", map[string]any{"size": lib.Size(), "stdio": *stdio})

	defer func() {
		disposeCtx, disposeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer disposeCancel()
		if err := lib.Dispose(disposeCtx); err != nil {
			log.Error("dispose failed", map[string]any{"error": err.Error()})
		}
	}()

	if *stdio {
		return serveStdio(ctx, lib)
	}

	<-ctx.Done()
	return nil
}

func serveStdio(ctx context.Context, lib *library.Library) error {
	server := jsonrpc.NewServer(os.Stdout)
	registerHandlers(server, lib)
	return server.Serve(ctx, os.Stdin)
}

func registerHandlers(server *jsonrpc.Server, lib *library.Library) {
	server.Register("add", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			Text     string            `json:"text"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		id, err := lib.Add(ctx, params.Text, params.Metadata)
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": id}, nil
	})

	server.Register("search", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			Query      string `json:"query"`
			MaxResults int    `json:"maxResults"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		hits, err := lib.Search(ctx, params.Query, search.Options{MaxResults: params.MaxResults})
		if err != nil {
			return nil, err
		}
		return hits, nil
	})

	server.Register("getById", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		v, ok := lib.GetByID(params.ID)
		if !ok {
			return nil, fmt.Errorf("volume %q not found", params.ID)
		}
		return v, nil
	})

	server.Register("delete", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		if err := lib.Delete(ctx, params.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	})

	server.Register("size", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return map[string]int{"size": lib.Size()}, nil
	})
}
