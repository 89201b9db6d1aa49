package catalog

import (
	"fmt"
	"slices"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// productIndex ranks products by text relevance. It lives in memory and is rebuilt
// from the backing store whenever products change.
type productIndex struct {
	index bleve.Index
}

func newProductIndex() (*productIndex, error) {
	index, err := bleve.NewMemOnly(buildProductMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create product index: %w", err)
	}
	return &productIndex{index: index}, nil
}

// buildProductMapping creates the index mapping for products.
func buildProductMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	productMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.Index = true
	productMapping.AddFieldMappingsAt("product_id", idField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	textField.Index = true
	productMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = productMapping
	return indexMapping
}

// Replace indexes products in one batch.
func (pi *productIndex) Replace(products []Product) error {
	batch := pi.index.NewBatch()
	for _, p := range products {
		doc := map[string]interface{}{
			"product_id": p.ID,
			"text":       p.SearchText(),
		}
		if err := batch.Index(p.ID, doc); err != nil {
			return fmt.Errorf("failed to add product %s to batch: %w", p.ID, err)
		}
	}
	return pi.index.Batch(batch)
}

// Rank orders candidate ids by relevance to query and returns at most limit ids.
// Candidates without a text match follow the ranked ones in their original order,
// so a non-empty candidate set always yields results.
func (pi *productIndex) Rank(query string, candidates []string, limit int) ([]string, error) {
	if limit <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	out := make([]string, 0, limit)
	seen := make(map[string]bool, limit)

	if query != "" {
		match := bleve.NewMatchQuery(query)
		match.SetField("text")
		restrict := bleve.NewDocIDQuery(candidates)

		req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, restrict))
		req.Size = limit

		res, err := pi.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("product search failed: %w", err)
		}
		for _, hit := range res.Hits {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			out = append(out, hit.ID)
		}
	}

	for _, id := range candidates {
		if len(out) >= limit {
			break
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return slices.Clip(out), nil
}

// Close closes the index.
func (pi *productIndex) Close() error {
	return pi.index.Close()
}
