package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/ChamsBouzaiene/jewelbot/internal/controller"
	"github.com/ChamsBouzaiene/jewelbot/internal/gallery"
	"github.com/ChamsBouzaiene/jewelbot/internal/knowledge"
	"github.com/ChamsBouzaiene/jewelbot/internal/oracle"
	"github.com/ChamsBouzaiene/jewelbot/internal/providers"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"go.uber.org/zap"
)

// runtimeEnv holds everything a conversation needs, opened from Config.
type runtimeEnv struct {
	Config     *config.Config
	Knowledge  *config.Knowledge
	Catalog    *catalog.Store
	Sessions   session.Store
	Index      *knowledge.Index
	Controller *controller.Controller

	watcher *knowledge.Watcher
}

type runtimeOptions struct {
	// watch starts the documents watcher when the config enables it.
	watch bool
}

func (r *runtimeEnv) Close() {
	if r.watcher != nil {
		if err := r.watcher.Stop(); err != nil {
			logger.Warn("failed to stop document watcher", zap.Error(err))
		}
	}
	if r.Index != nil {
		if err := r.Index.Close(); err != nil {
			logger.Warn("failed to close page index", zap.Error(err))
		}
	}
	if r.Catalog != nil {
		if err := r.Catalog.Close(); err != nil {
			logger.Warn("failed to close catalog", zap.Error(err))
		}
	}
}

func loadConfig() (*config.Config, *config.Knowledge, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if offline {
		cfg.Offline = true
	}
	k, err := config.LoadKnowledge(cfg.KnowledgeFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, k, nil
}

func prepareRuntimeEnv(ctx context.Context, opts runtimeOptions) (*runtimeEnv, error) {
	cfg, k, err := loadConfig()
	if err != nil {
		return nil, err
	}
	env := &runtimeEnv{Config: cfg, Knowledge: k}

	env.Catalog, err = catalog.Open(ctx, cfg.CatalogDB)
	if err != nil {
		return nil, err
	}
	logger.Info("💎 catalog opened", zap.String("path", cfg.CatalogDB))

	if cfg.SessionDir != "" {
		env.Sessions = session.NewFileStore(cfg.SessionDir)
		logger.Info("🗂️  sessions persisted", zap.String("dir", cfg.SessionDir))
	} else {
		env.Sessions = session.NewMemoryStore()
	}

	var retriever knowledge.Retriever
	if err := env.openKnowledge(ctx, opts.watch); err != nil {
		logger.Warn("⚠️  document retrieval degraded", zap.Error(err))
	}
	if env.Index != nil {
		retriever = env.Index
	}

	suite, err := buildSuite(ctx, cfg, k)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Controller, err = controller.New(controller.Deps{
		Oracles:   suite,
		Catalog:   env.Catalog,
		Store:     env.Sessions,
		Knowledge: k,
		Retriever: retriever,
		Sampler:   gallery.NewSampler(env.Catalog, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
		Hook:      controller.LoggerHook{L: logger},
		Logger:    logger,
	}, controller.Config{OracleTimeout: cfg.OracleTimeout})
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// openKnowledge opens the page index, refreshes it from the documents
// directory and optionally watches for changes. A missing documents
// directory leaves retrieval off.
func (r *runtimeEnv) openKnowledge(ctx context.Context, watch bool) error {
	if _, err := os.Stat(r.Config.DocsDir); errors.Is(err, os.ErrNotExist) {
		logger.Info("📚 no documents directory, retrieval off", zap.String("dir", r.Config.DocsDir))
		return nil
	}

	index, err := knowledge.OpenIndex(r.Config.IndexPath, logger)
	if err != nil {
		return err
	}
	walker, err := knowledge.NewWalker(r.Config.DocsDir)
	if err != nil {
		index.Close()
		return err
	}
	builder := knowledge.NewBuilder(walker, index, logger)
	if _, err := builder.Rebuild(ctx); err != nil {
		index.Close()
		return err
	}
	r.Index = index

	if !watch || !r.Config.WatchDocs {
		return nil
	}
	watcher, err := knowledge.NewWatcher(walker, knowledge.DefaultDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create document watcher: %w", err)
	}
	watcher.OnChange(func(paths []string) {
		if err := builder.Reindex(context.Background(), paths); err != nil {
			logger.Warn("⚠️  reindex failed", zap.Strings("paths", paths), zap.Error(err))
		}
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start document watcher: %w", err)
	}
	r.watcher = watcher
	return nil
}

// llmOracle is an LLM or rule-based oracle that can also enrich catalog rows.
type llmOracle interface {
	Suite() oracle.Suite
	catalog.Enricher
}

func buildOracle(ctx context.Context, cfg *config.Config, k *config.Knowledge) (llmOracle, error) {
	if cfg.Offline {
		logger.Info("🧮 using rule-based oracles")
		return oracle.NewRules(k), nil
	}
	client, model, err := providers.NewLLMClientFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client (use --offline to run without one): %w", err)
	}
	logger.Info("🤖 using LLM oracles", zap.String("model", model))
	return oracle.NewLLM(client, model, k, logger), nil
}

func buildSuite(ctx context.Context, cfg *config.Config, k *config.Knowledge) (oracle.Suite, error) {
	o, err := buildOracle(ctx, cfg, k)
	if err != nil {
		return oracle.Suite{}, err
	}
	return o.Suite(), nil
}
