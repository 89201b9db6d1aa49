package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Builder keeps an Index in sync with a documents directory.
type Builder struct {
	walker *Walker
	index  *Index
	logger *zap.Logger
}

// BuildStats summarizes a rebuild.
type BuildStats struct {
	Documents int
	Pages     int
	Removed   int
	Duration  time.Duration
}

// NewBuilder creates a builder over walker's root.
func NewBuilder(walker *Walker, index *Index, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{walker: walker, index: index, logger: logger}
}

// Rebuild indexes every document and drops sources that no longer exist.
func (b *Builder) Rebuild(ctx context.Context) (BuildStats, error) {
	start := time.Now()
	var stats BuildStats

	docs, err := b.walker.Walk(ctx)
	if err != nil {
		return stats, err
	}
	b.logger.Info("🔍 indexing documents", zap.String("root", b.walker.Root()), zap.Int("documents", len(docs)))

	present := make(map[string]bool, len(docs))
	for _, rel := range docs {
		present[rel] = true
		n, err := b.indexFile(ctx, rel)
		if err != nil {
			return stats, err
		}
		stats.Documents++
		stats.Pages += n
	}

	existing, err := b.index.Sources(ctx)
	if err != nil {
		return stats, err
	}
	for _, source := range existing {
		if present[source] {
			continue
		}
		if err := b.index.DeleteSource(ctx, source); err != nil {
			return stats, fmt.Errorf("failed to remove %s: %w", source, err)
		}
		stats.Removed++
	}

	stats.Duration = time.Since(start)
	b.logger.Info("✅ document index ready",
		zap.Int("documents", stats.Documents),
		zap.Int("pages", stats.Pages),
		zap.Int("removed", stats.Removed),
		zap.Duration("took", stats.Duration))
	return stats, nil
}

// Reindex refreshes the given root-relative paths. A path that no longer
// exists has its pages removed.
func (b *Builder) Reindex(ctx context.Context, relPaths []string) error {
	for _, rel := range relPaths {
		rel = filepath.ToSlash(rel)
		if !IsDocument(rel) || b.walker.Ignored(rel) {
			continue
		}
		_, err := os.Stat(filepath.Join(b.walker.Root(), filepath.FromSlash(rel)))
		switch {
		case os.IsNotExist(err):
			if err := b.index.DeleteSource(ctx, rel); err != nil {
				return fmt.Errorf("failed to remove %s: %w", rel, err)
			}
			b.logger.Info("🗑️  document removed from index", zap.String("source", rel))
		case err != nil:
			return fmt.Errorf("failed to stat %s: %w", rel, err)
		default:
			n, err := b.indexFile(ctx, rel)
			if err != nil {
				return err
			}
			b.logger.Info("📝 document reindexed", zap.String("source", rel), zap.Int("pages", n))
		}
	}
	return nil
}

func (b *Builder) indexFile(ctx context.Context, rel string) (int, error) {
	data, err := os.ReadFile(filepath.Join(b.walker.Root(), filepath.FromSlash(rel)))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	pages := SplitPages(rel, string(data))
	if err := b.index.ReplaceSource(ctx, rel, pages); err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", rel, err)
	}
	b.logger.Debug("indexed document", zap.String("source", rel), zap.Int("pages", len(pages)))
	return len(pages), nil
}
