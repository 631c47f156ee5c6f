// Package vectorstore provides interfaces and implementations for
// namespace-scoped vector similarity search over contact profiles.
package vectorstore

import (
	"context"
	"time"
)

// Candidate is a search hit: an opaque profile identifier with its
// similarity score, ordered by the index from most to least similar.
type Candidate struct {
	ID    string
	Score float32
}

// Metadata holds the filterable payload stored alongside each vector.
type Metadata struct {
	Industry       string
	CompanySize    string
	City           string
	State          string
	Country        string
	GeoLocation    string
	Followers      int64
	ConnectedAt    int64 // unix seconds, 0 when unknown
	HiringStatus   string
	IsHiring       bool
	IsOpenToWork   bool
	IsCompanyOwner bool
	HasPEVCRole    bool
}

// Point is a vector with its canonical profile id and filterable metadata.
type Point struct {
	ID     string
	Vector []float32
	Meta   Metadata
}

// SearchFilter is the typed predicate set applied to a search.
// Nil pointer fields mean "not specified".
type SearchFilter struct {
	Industries   []string
	CompanySizes []string

	// Locations are matched against city, state, and country with OR.
	Locations   []string
	GeoLocation string

	MinFollowers *int
	MaxFollowers *int

	ConnectedAfter  *time.Time
	ConnectedBefore *time.Time

	// HiringStatus is the legacy mutually-exclusive enum
	// ("hiring" | "open_to_work"). When the corresponding independent
	// flag below is also set, the flag wins.
	HiringStatus string

	IsHiring       *bool
	IsOpenToWork   *bool
	IsCompanyOwner *bool
	HasPEVCRole    *bool
}

// IsZero reports whether no predicate is set.
func (f *SearchFilter) IsZero() bool {
	if f == nil {
		return true
	}
	return len(f.Industries) == 0 && len(f.CompanySizes) == 0 &&
		len(f.Locations) == 0 && f.GeoLocation == "" &&
		f.MinFollowers == nil && f.MaxFollowers == nil &&
		f.ConnectedAfter == nil && f.ConnectedBefore == nil &&
		f.HiringStatus == "" &&
		f.IsHiring == nil && f.IsOpenToWork == nil &&
		f.IsCompanyOwner == nil && f.HasPEVCRole == nil
}

// VectorStore defines the interface for vector storage operations.
// Every operation is scoped to a single user's namespace; a query can never
// see another user's points.
type VectorStore interface {
	// EnsureCollection creates the user's collection if it does not exist
	EnsureCollection(ctx context.Context, userID string, dimension int) error

	// Upsert inserts or updates profile vectors in the user's namespace
	Upsert(ctx context.Context, userID string, points []Point) error

	// Query performs filtered nearest-neighbor search within the user's
	// namespace and returns candidates ordered by similarity
	Query(ctx context.Context, userID string, vector []float32, topK int, filter *SearchFilter) ([]Candidate, error)

	// DeletePoints removes profile vectors by canonical id
	DeletePoints(ctx context.Context, userID string, ids []string) error
}
