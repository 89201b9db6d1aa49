package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"
)

// Index is a BM25 page index over the documents directory.
type Index struct {
	index  bleve.Index
	path   string
	logger *zap.Logger
}

// OpenIndex opens or creates the page index at path. An empty path keeps the
// index in memory. A corrupted index is deleted and recreated.
func OpenIndex(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		index, err := bleve.NewMemOnly(buildPageMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create page index: %w", err)
		}
		return &Index{index: index, logger: logger}, nil
	}

	index, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		index, err = bleve.New(path, buildPageMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create page index: %w", err)
		}
		logger.Info("📚 page index created", zap.String("path", path))
	case err != nil:
		logger.Warn("⚠️  page index appears corrupted, recreating", zap.String("path", path), zap.Error(err))
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted page index: %w", err)
		}
		index, err = bleve.New(path, buildPageMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate page index: %w", err)
		}
	}

	return &Index{index: index, path: path, logger: logger}, nil
}

func buildPageMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	pageMapping := bleve.NewDocumentMapping()

	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = keyword.Name
	sourceField.Store = true
	sourceField.Index = true
	pageMapping.AddFieldMappingsAt("source", sourceField)

	numberField := bleve.NewNumericFieldMapping()
	numberField.Store = true
	numberField.Index = false
	pageMapping.AddFieldMappingsAt("page", numberField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.Index = true
	pageMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = pageMapping
	return indexMapping
}

// ReplaceSource drops every page of source and indexes pages in its place, in one batch.
func (ix *Index) ReplaceSource(ctx context.Context, source string, pages []Page) error {
	ids, err := ix.sourceDocIDs(ctx, source)
	if err != nil {
		return err
	}
	batch := ix.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	for _, p := range pages {
		doc := map[string]interface{}{
			"source": p.Source,
			"page":   float64(p.Number),
			"text":   p.Text,
		}
		if err := batch.Index(p.Ref(), doc); err != nil {
			return fmt.Errorf("failed to add page %s to batch: %w", p.Ref(), err)
		}
	}
	return ix.index.Batch(batch)
}

// DeleteSource removes every page of source.
func (ix *Index) DeleteSource(ctx context.Context, source string) error {
	return ix.ReplaceSource(ctx, source, nil)
}

func (ix *Index) sourceDocIDs(ctx context.Context, source string) ([]string, error) {
	total, err := ix.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	q := bleve.NewTermQuery(source)
	q.SetField("source")
	req := bleve.NewSearchRequest(q)
	req.Size = int(total)

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of %s: %w", source, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Sources lists every indexed source document.
func (ix *Index) Sources(ctx context.Context) ([]string, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 0
	req.AddFacet("sources", bleve.NewFacetRequest("source", 10000))

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	var out []string
	if f, ok := res.Facets["sources"]; ok && f.Terms != nil {
		for _, term := range f.Terms.Terms() {
			out = append(out, term.Term)
		}
	}
	return out, nil
}

// Count returns the number of indexed pages.
func (ix *Index) Count() (int, error) {
	n, err := ix.index.DocCount()
	return int(n), err
}

// Retrieve implements Retriever with a BM25 match over page text.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]PageRef, error) {
	if k <= 0 || query == "" {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.Fields = []string{"source", "page", "text"}

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("page search failed: %w", err)
	}

	refs := make([]PageRef, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ref := PageRef{Ref: hit.ID, Score: hit.Score}
		if source, ok := hit.Fields["source"].(string); ok {
			ref.Source = source
		}
		if page, ok := hit.Fields["page"].(float64); ok {
			ref.Page = int(page)
		}
		if text, ok := hit.Fields["text"].(string); ok {
			ref.Text = text
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Path returns the on-disk location of the index, or "" when in memory.
func (ix *Index) Path() string { return ix.path }

// Close closes the index.
func (ix *Index) Close() error {
	return ix.index.Close()
}
