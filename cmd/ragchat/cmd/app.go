package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/cohere"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/generator"
	"ragchat/internal/ingest"
	"ragchat/internal/journal"
	"ragchat/internal/logging"
	"ragchat/internal/retrieval"
	"ragchat/internal/service"
	"ragchat/internal/telemetry"
	"ragchat/internal/vectorstore"
)

// needs lists the network collaborators a command uses. Commands that only
// inspect or drop the collection skip credentials they never exercise.
type needs struct {
	embedder  bool
	generator bool
	dryRun    bool
}

// app is the process-wide component graph, built once per command.
type app struct {
	cfg     *config.AppConfig
	log     logr.Logger
	metrics *telemetry.Metrics
	store   domain.VectorStore
	journal *journal.Journal
	orch    *ingest.Orchestrator
	svc     *service.RAGService
	closers []func() error
	sync    func()
}

func loadConfig() (*config.AppConfig, error) {
	cfg, _, err := config.Resolve(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, n needs) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, sync, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, metrics: telemetry.NewMetrics(), sync: sync}

	var emb domain.Embedder
	if n.embedder {
		if emb, err = buildEmbedder(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}
	// never called by commands that do not chat
	gen := domain.Generator(generator.Local{})
	if n.generator {
		if gen, err = buildGenerator(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.store, err = vectorstore.Connect(ctx, vectorstore.Config{
		Type:       cfg.VectorStore.Type,
		Collection: cfg.VectorStore.Collection,
		URL:        cfg.VectorStore.Qdrant.URL,
		APIKey:     cfg.VectorStore.Qdrant.APIKey,
		LocalPath:  cfg.VectorStore.LocalPath,
		Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
	}, log.WithName("vectorstore"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	a.journal, err = journal.Open(cfg.JournalPath())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.journal.Close)

	a.orch = ingest.NewOrchestrator(emb, a.store, ingest.Config{
		ChunkSize:   cfg.Chunker.ChunkSize,
		Overlap:     cfg.Chunker.Overlap,
		BatchSize:   cfg.Ingest.BatchSize,
		MaxAttempts: cfg.Ingest.MaxAttempts,
		BaseDelay:   cfg.BaseDelay(),
		Cooldown:    cfg.Cooldown(),
		DryRun:      n.dryRun,
	},
		ingest.WithLogger(log.WithName("ingest")),
		ingest.WithMetrics(a.metrics),
		ingest.WithLedger(a.journal),
	)
	asm := retrieval.NewAssembler(emb, a.store, cfg.Retrieval.TopK, a.metrics, log.WithName("retrieval"))
	a.svc = service.NewRAGService(asm, gen, a.orch, a.store, cfg.DocsPath, log.WithName("service"))
	return a, nil
}

// Close releases stores in reverse order and flushes the logger.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.sync != nil {
		a.sync()
	}
	return errors.Join(errs...)
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	e := cfg.Embedder
	switch e.Type {
	case "cohere":
		return cohere.NewClient(cohere.Config{
			BaseURL:     e.Cohere.BaseURL,
			APIKeyEnv:   e.Cohere.APIKeyEnv,
			Model:       e.Cohere.Model,
			Dimension:   e.Dimension,
			Timeout:     time.Duration(e.Cohere.TimeoutSecs) * time.Second,
			MinInterval: time.Duration(e.Cohere.MinIntervalMs) * time.Millisecond,
		})
	case "openai":
		return openai.NewClient(openai.Config{
			BaseURL:   e.OpenAI.BaseURL,
			APIKeyEnv: e.OpenAI.APIKeyEnv,
			Model:     e.OpenAI.Model,
			Dimension: e.Dimension,
			Timeout:   time.Duration(e.OpenAI.TimeoutSecs) * time.Second,
		})
	case "hashing":
		return hashing.NewEmbedder(e.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, e.Type)
	}
}

func buildGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	g := cfg.Generator
	switch g.Type {
	case "openrouter":
		return generator.NewClient(generator.Config{
			BaseURL:     g.BaseURL,
			APIKeyEnv:   g.APIKeyEnv,
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			Timeout:     time.Duration(g.TimeoutSecs) * time.Second,
		})
	case "local":
		return generator.Local{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown generator %q", domain.ErrConfiguration, g.Type)
	}
}
