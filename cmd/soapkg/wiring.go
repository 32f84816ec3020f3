package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/soapkg/internal/config"
	"github.com/OFFIS-RIT/soapkg/pkg/ai"
	oai "github.com/OFFIS-RIT/soapkg/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/soapkg/pkg/ai/openai"
	"github.com/OFFIS-RIT/soapkg/pkg/graph"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"
	"github.com/OFFIS-RIT/soapkg/pkg/store"
)

// newAIClient returns nil when the rule based extractors should run alone.
func newAIClient(cfg config.Config) (*ai.ResilientClient, error) {
	var client ai.GraphAIClient

	switch cfg.AIAdapter {
	case config.AdapterNone:
		logger.Info("[AI] No model configured, using rule based extraction")
		return nil, nil
	case config.AdapterOllama:
		c, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ExtractionModel:       cfg.AIModel,
			BaseURL:               cfg.AIURL,
			ApiKey:                cfg.AIKey,
			MaxConcurrentRequests: int64(cfg.AIParallelRequests),
		})
		if err != nil {
			return nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		client = c
	default:
		client = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ExtractionModel: cfg.AIModel,
			ChatURL:         cfg.AIURL,
			ChatKey:         cfg.AIKey,
		})
	}

	logger.Info("[AI] Using model", "adapter", cfg.AIAdapter, "model", cfg.AIModel)
	return ai.NewResilientClient(ai.NewResilientClientParams{
		Client:            client,
		RequestsPerMinute: cfg.AIRequestsPerMinute,
		Burst:             cfg.AIBurst,
		MaxWait:           cfg.AIMaxWait,
		Timeout:           cfg.AITimeout,
		Retries:           cfg.AIRetries,
		MaxTokens:         cfg.AIMaxTokens,
	}), nil
}

// openStore returns the configured snapshot store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config) (store.SnapshotStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SnapshotBackend {
	case config.BackendS3:
		s, err := store.NewS3SnapshotStore(ctx, store.NewS3SnapshotStoreParams{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Key:       cfg.S3Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.BackendSQLite:
		s, err := store.NewSQLiteSnapshotStore(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := store.NewFileSnapshotStore(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
}

// loadBuilder restores the stored graph. When allowMissing is set a missing
// snapshot yields an empty graph.
func loadBuilder(ctx context.Context, st store.SnapshotStore, allowMissing bool) (*graph.Builder, error) {
	snap, err := st.Load(ctx)
	if errors.Is(err, store.ErrSnapshotNotFound) && allowMissing {
		logger.Info("[Store] No snapshot found, starting with an empty graph")
		return graph.NewBuilder(graph.NewBuilderParams{}), nil
	}
	if err != nil {
		return nil, err
	}

	b, err := graph.LoadSnapshot(snap, graph.NewBuilderParams{})
	if err != nil {
		return nil, err
	}
	logger.Info("[Store] Snapshot loaded", "entities", b.EntityCount(), "relationships", b.RelationshipCount())
	return b, nil
}
