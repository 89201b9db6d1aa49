package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed Catalog. The conversation engine only reads from it;
// Upsert is used by the ingest command.
type Store struct {
	db *sql.DB

	indexMu sync.RWMutex
	index   *productIndex

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Open opens (or creates) the catalog database at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	// WAL lets readers proceed while ingest writes.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog: %w", err)
	}

	s := &Store{
		db:  db,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	if err := s.reindex(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database and the search index.
func (s *Store) Close() error {
	s.indexMu.Lock()
	if s.index != nil {
		s.index.Close()
	}
	s.indexMu.Unlock()
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		product_id  TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		price       REAL NOT NULL,
		style       TEXT NOT NULL DEFAULT 'Unknown',
		material    TEXT NOT NULL DEFAULT 'Unknown',
		gemstone    TEXT NOT NULL DEFAULT 'Unknown',
		description TEXT NOT NULL DEFAULT '',
		image_url   TEXT NOT NULL DEFAULT '',
		updated_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_style ON products(style);
	CREATE INDEX IF NOT EXISTS idx_products_material ON products(material);
	CREATE INDEX IF NOT EXISTS idx_products_price ON products(price);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// columnFor maps a filter key to its column. Keys are never interpolated unchecked.
func columnFor(key string) (string, error) {
	switch key {
	case AttrStyle, AttrMaterial, AttrGemstone, AttrPrice:
		return key, nil
	}
	return "", fmt.Errorf("unknown catalog attribute %q", key)
}

// buildWhere renders a filter as a SQL WHERE clause with positional args.
func buildWhere(f Filter) (string, []any, error) {
	if f.IsEmpty() {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, p := range f.Predicates() {
		col, err := columnFor(p.Key)
		if err != nil {
			return "", nil, err
		}
		switch p.Op {
		case OpEq:
			clauses = append(clauses, col+" = ?")
			args = append(args, p.Values[0])
		case OpIn:
			marks := strings.TrimSuffix(strings.Repeat("?,", len(p.Values)), ",")
			clauses = append(clauses, col+" IN ("+marks+")")
			for _, v := range p.Values {
				args = append(args, v)
			}
		case OpRange:
			clauses = append(clauses, col+" >= ?")
			args = append(args, p.Range.Min)
			if p.Range.Max != nil {
				clauses = append(clauses, col+" <= ?")
				args = append(args, *p.Range.Max)
			}
		default:
			return "", nil, fmt.Errorf("unsupported predicate op %q", p.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

const productColumns = "product_id, name, price, style, material, gemstone, description, image_url"

func scanProduct(rows *sql.Rows) (Product, error) {
	var p Product
	err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Style, &p.Material, &p.Gemstone, &p.Description, &p.ImageURL)
	return p, err
}

func (s *Store) query(ctx context.Context, f Filter, suffix string) ([]Product, error) {
	where, args, err := buildWhere(f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products"+where+suffix, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Exists implements Oracle.
func (s *Store) Exists(ctx context.Context, f Filter) (Availability, error) {
	n, err := s.Count(ctx, f)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Exists: n > 0, Count: n}, nil
}

// Count implements Oracle.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	where, args, err := buildWhere(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog count failed: %w", err)
	}
	return n, nil
}

// SampleOne implements Oracle.
func (s *Store) SampleOne(ctx context.Context, f Filter) (*Product, error) {
	matches, err := s.query(ctx, f, fmt.Sprintf(" ORDER BY product_id LIMIT %d", sampleWindow))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	s.rngMu.Lock()
	pick := matches[s.rng.IntN(len(matches))]
	s.rngMu.Unlock()
	return &pick, nil
}

// Options implements Catalog.
func (s *Store) Options(ctx context.Context, attribute string) ([]string, error) {
	col, err := columnFor(attribute)
	if err != nil || col == AttrPrice {
		return nil, fmt.Errorf("attribute %q has no discrete options", attribute)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT "+col+" FROM products WHERE "+col+" != '' AND "+col+" != ?", UnknownValue)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s options: %w", attribute, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// Search implements Catalog.
func (s *Store) Search(ctx context.Context, f Filter, query string, limit int) ([]Product, error) {
	matches, err := s.query(ctx, f, " ORDER BY price")
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Product, len(matches))
	ids := make([]string, len(matches))
	for i, p := range matches {
		byID[p.ID] = p
		ids[i] = p.ID
	}

	s.indexMu.RLock()
	ranked, err := s.index.Rank(query, ids, limit)
	s.indexMu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(ranked))
	for _, id := range ranked {
		out = append(out, byID[id])
	}
	return out, nil
}

// Upsert inserts or updates products and refreshes the search index.
func (s *Store) Upsert(ctx context.Context, products []Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (`+productColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			style = excluded.style,
			material = excluded.material,
			gemstone = excluded.gemstone,
			description = excluded.description,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Price,
			orUnknown(p.Style), orUnknown(p.Material), orUnknown(p.Gemstone),
			p.Description, p.ImageURL, now); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit products: %w", err)
	}
	return s.reindex(ctx)
}

// reindex rebuilds the in-memory search index from the products table.
func (s *Store) reindex(ctx context.Context) error {
	all, err := s.query(ctx, Filter{}, "")
	if err != nil {
		return err
	}
	index, err := newProductIndex()
	if err != nil {
		return err
	}
	if err := index.Replace(all); err != nil {
		index.Close()
		return fmt.Errorf("failed to index products: %w", err)
	}

	s.indexMu.Lock()
	old := s.index
	s.index = index
	s.indexMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return UnknownValue
	}
	return v
}
