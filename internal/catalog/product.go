package catalog

import (
	"context"
)

// UnknownValue marks a metadata field that could not be determined at ingest time.
// It never appears in an attribute's option list.
const UnknownValue = "Unknown"

// Product is a single catalog item.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Style       string  `json:"style"`
	Material    string  `json:"material"`
	Gemstone    string  `json:"gemstone"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// Attr returns the product's value for a categorical attribute key.
func (p Product) Attr(key string) string {
	switch key {
	case AttrStyle:
		return p.Style
	case AttrMaterial:
		return p.Material
	case AttrGemstone:
		return p.Gemstone
	}
	return ""
}

// SearchText is the text indexed for relevance ranking.
func (p Product) SearchText() string {
	return p.Name + " " + p.Style + " " + p.Material + " " + p.Gemstone + " " + p.Description
}

// Availability answers the exists question for a filter.
type Availability struct {
	Exists bool
	Count  int
}

// Oracle is the read-only availability contract the conversation engine depends on.
type Oracle interface {
	Exists(ctx context.Context, f Filter) (Availability, error)
	Count(ctx context.Context, f Filter) (int, error)
	// SampleOne returns one random product matching f, or nil when none does.
	SampleOne(ctx context.Context, f Filter) (*Product, error)
}

// Catalog is the full read surface used when assembling replies.
type Catalog interface {
	Oracle
	// Options lists the distinct known values of a categorical attribute.
	Options(ctx context.Context, attribute string) ([]string, error)
	// Search returns up to limit products matching f, ranked by relevance to query.
	Search(ctx context.Context, f Filter, query string, limit int) ([]Product, error)
}
