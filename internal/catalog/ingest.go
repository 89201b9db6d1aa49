package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Metadata is the categorical description of a product inferred at ingest time.
type Metadata struct {
	Style    string `json:"style"`
	Material string `json:"material"`
	Gemstone string `json:"gemstone"`
}

// Enricher fills in product metadata the source rows leave out.
type Enricher interface {
	Enrich(ctx context.Context, p Product) (Metadata, error)
}

// IngestReport summarizes one ingest run.
type IngestReport struct {
	Rows     int
	Enriched int
	Failed   int
	Stored   int
}

// Ingester loads CSV rows into a Store.
type Ingester struct {
	store    *Store
	enricher Enricher
	policy   engine.RetryPolicy
	workers  int
	logger   *zap.Logger
}

// NewIngester creates an Ingester. A nil enricher stores rows as-is with Unknown for missing metadata.
func NewIngester(store *Store, enricher Enricher, workers int, logger *zap.Logger) *Ingester {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		store:    store,
		enricher: enricher,
		policy:   engine.DefaultEnrichRetryPolicy(),
		workers:  workers,
		logger:   logger,
	}
}

// WithRetryPolicy overrides the retry policy used for enrichment calls.
func (in *Ingester) WithRetryPolicy(p engine.RetryPolicy) *Ingester {
	in.policy = p
	return in
}

// ReadProducts parses catalog rows. The header must name at least name and price;
// id, description, image_url, style, material and gemstone are optional.
func ReadProducts(r io.Reader) ([]Product, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv is missing required column %q", required)
		}
	}

	get := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Product
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		priceText := strings.TrimPrefix(strings.ReplaceAll(get(rec, "price"), ",", ""), "$")
		price, err := strconv.ParseFloat(priceText, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("line %d: invalid price %q", line, get(rec, "price"))
		}

		p := Product{
			ID:          get(rec, "id"),
			Name:        get(rec, "name"),
			Price:       price,
			Description: get(rec, "description"),
			ImageURL:    get(rec, "image_url"),
			Style:       get(rec, "style"),
			Material:    get(rec, "material"),
			Gemstone:    get(rec, "gemstone"),
		}
		if p.Name == "" {
			return nil, fmt.Errorf("line %d: empty product name", line)
		}
		if p.ID == "" {
			// Stable across re-ingests of the same row.
			p.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(p.Name+"|"+p.ImageURL)).String()
		}
		out = append(out, p)
	}
	return out, nil
}

func needsEnrichment(p Product) bool {
	return p.Style == "" || p.Material == "" || p.Gemstone == ""
}

// Ingest enriches rows missing metadata on a worker pool and upserts them all.
// A row whose enrichment fails after retries is stored with Unknown metadata.
func (in *Ingester) Ingest(ctx context.Context, r io.Reader) (IngestReport, error) {
	products, err := ReadProducts(r)
	if err != nil {
		return IngestReport{}, err
	}
	report := IngestReport{Rows: len(products)}
	in.logger.Info("📦 Ingesting catalog rows", zap.Int("rows", len(products)), zap.Int("workers", in.workers))

	if in.enricher != nil {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(in.workers)

		for i := range products {
			if !needsEnrichment(products[i]) {
				continue
			}
			g.Go(func() error {
				meta, err := in.enrichOne(gctx, products[i])
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					report.Failed++
					in.logger.Warn("⚠️  Enrichment failed, storing as Unknown",
						zap.String("product", products[i].Name), zap.Error(err))
					return nil
				}
				products[i] = applyMetadata(products[i], meta)
				report.Enriched++
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, fmt.Errorf("ingest cancelled: %w", err)
		}
	}

	if err := in.store.Upsert(ctx, products); err != nil {
		return report, err
	}
	report.Stored = len(products)
	in.logger.Info("✅ Catalog ingest complete",
		zap.Int("stored", report.Stored),
		zap.Int("enriched", report.Enriched),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (in *Ingester) enrichOne(ctx context.Context, p Product) (Metadata, error) {
	r := engine.Retrier{
		Policy:   in.policy,
		Classify: classifyEnrichError,
		OnRetry: func(a engine.RetryAttempt) {
			in.logger.Debug("🔁 Retrying enrichment",
				zap.String("product", p.Name),
				zap.Int("attempt", a.Attempt),
				zap.String("class", string(a.Class)),
				zap.Duration("delay", a.Delay),
				zap.Error(a.Err))
		},
	}
	return engine.Retry(ctx, r, "enrich "+p.Name, func(ctx context.Context) (Metadata, error) {
		return in.enricher.Enrich(ctx, p)
	})
}

// classifyEnrichError decides whether an enrichment failure is worth another
// call. Labels that fail their schema are resampled on the guarded budget;
// cancellation of the whole ingest is final.
func classifyEnrichError(err error) engine.RetryClass {
	var schemaErr *engine.SchemaValidationError
	switch {
	case errors.Is(err, context.Canceled):
		return engine.RetryClassNonRetryable
	case errors.As(err, &schemaErr):
		return engine.RetryClassMaybe
	}
	return engine.ClassifyLLMError(err)
}

// applyMetadata fills only the fields the source row left empty.
func applyMetadata(p Product, m Metadata) Product {
	if p.Style == "" {
		p.Style = m.Style
	}
	if p.Material == "" {
		p.Material = m.Material
	}
	if p.Gemstone == "" {
		p.Gemstone = m.Gemstone
	}
	return p
}
