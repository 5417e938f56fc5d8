// Package vectorstore selects and constructs the vector store backend.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/local"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

// Backend types accepted by Connect.
const (
	TypeAuto   = "auto"
	TypeQdrant = "qdrant"
	TypeLocal  = "local"
	TypeMemory = "memory"
)

type Config struct {
	Type       string
	Collection string
	URL        string
	APIKey     string
	LocalPath  string
	Timeout    time.Duration
}

// Connect builds the store once per process. With TypeAuto the remote store
// is used when both URL and API key are set and its first probe succeeds;
// otherwise the local on-disk store is opened. There is no failover after
// this call returns.
func Connect(ctx context.Context, cfg Config, log logr.Logger) (domain.VectorStore, error) {
	switch cfg.Type {
	case TypeAuto, "":
		if cfg.URL == "" || cfg.APIKey == "" {
			log.Info("remote vector store not configured, using local store", "path", cfg.LocalPath)
			return openLocal(cfg)
		}
		s, err := openQdrant(ctx, cfg)
		if err != nil {
			log.Error(err, "remote vector store unavailable, falling back to local store", "url", cfg.URL, "path", cfg.LocalPath)
			return openLocal(cfg)
		}
		log.Info("connected to remote vector store", "url", cfg.URL, "collection", cfg.Collection)
		return s, nil
	case TypeQdrant:
		return openQdrant(ctx, cfg)
	case TypeLocal:
		return openLocal(cfg)
	case TypeMemory:
		return memory.NewStorage(cfg.Collection), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", domain.ErrConfiguration, cfg.Type)
	}
}

func openQdrant(ctx context.Context, cfg Config) (domain.VectorStore, error) {
	return qdrant.NewStorage(ctx, qdrant.Config{
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		Collection: cfg.Collection,
		Timeout:    cfg.Timeout,
	})
}

func openLocal(cfg Config) (domain.VectorStore, error) {
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("%w: local store path is required", domain.ErrConfiguration)
	}
	return local.Open(cfg.LocalPath, cfg.Collection)
}
