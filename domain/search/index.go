// Package search provides the vector index domain types: entries, facet
// metadata, filters and ranked matches.
package search

import (
	"context"
	"fmt"

	"github.com/cosolvent/cosolvent/domain/fault"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// configured embedding dimension. It wraps fault.ErrValidation.
var ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", fault.ErrValidation)

// Index names.
const (
	ProfileIndex = "profile_embeddings"
	AssetIndex   = "asset_embeddings"
)

// Metadata holds the filterable facets stored alongside a vector.
type Metadata struct {
	Region         string   `json:"region,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	PrimaryCrops   []string `json:"primary_crops,omitempty"`
	ProducerID     string   `json:"producer_id,omitempty"`
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	m.Certifications = cloneStrings(m.Certifications)
	m.PrimaryCrops = cloneStrings(m.PrimaryCrops)
	return m
}

// Entry is one indexed vector keyed by id.
type Entry struct {
	id       string
	vector   []float64
	metadata Metadata
}

// NewEntry creates an Entry. The vector and metadata are copied.
func NewEntry(id string, vector []float64, metadata Metadata) Entry {
	v := make([]float64, len(vector))
	copy(v, vector)
	return Entry{
		id:       id,
		vector:   v,
		metadata: metadata.Clone(),
	}
}

// ID returns the entry id.
func (e Entry) ID() string { return e.id }

// Vector returns a copy of the vector.
func (e Entry) Vector() []float64 {
	v := make([]float64, len(e.vector))
	copy(v, e.vector)
	return v
}

// Metadata returns a copy of the metadata.
func (e Entry) Metadata() Metadata { return e.metadata.Clone() }

// Match is a ranked query result. Higher scores are more similar.
type Match struct {
	id       string
	score    float64
	metadata Metadata
}

// NewMatch creates a Match.
func NewMatch(id string, score float64, metadata Metadata) Match {
	return Match{id: id, score: score, metadata: metadata.Clone()}
}

// ID returns the entry id.
func (m Match) ID() string { return m.id }

// Score returns the similarity score.
func (m Match) Score() float64 { return m.score }

// Metadata returns the entry's metadata.
func (m Match) Metadata() Metadata { return m.metadata.Clone() }

// Index is a vector similarity index with id-keyed replace semantics.
type Index interface {
	// Name returns the index (table) name.
	Name() string

	// Dimension returns the required vector length.
	Dimension() int

	// Upsert inserts the entry or fully replaces the existing entry with
	// the same id, vector and metadata alike.
	Upsert(ctx context.Context, entry Entry) error

	// Query returns up to topK matches ordered by descending score.
	Query(ctx context.Context, vector []float64, topK int, filters Filters) ([]Match, error)

	// DeleteAll removes every entry and returns how many were removed.
	DeleteAll(ctx context.Context) (int, error)

	// DeleteProducer removes the producer's entries other than keepID and
	// returns how many were removed.
	DeleteProducer(ctx context.Context, producerID, keepID string) (int, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int64, error)
}

// CheckDimension returns ErrDimensionMismatch when len(vector) != dimension.
func CheckDimension(vector []float64, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
