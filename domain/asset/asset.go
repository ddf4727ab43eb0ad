// Package asset provides the uploaded asset domain type.
package asset

import (
	"context"
	"strings"
	"time"
)

// Asset is a file uploaded by a producer. Only the description is mutated
// by the pipeline; everything else is set by the upload endpoint.
type Asset struct {
	id          string
	userID      string
	mimeType    string
	url         string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// New creates an Asset without a description.
func New(id, userID, mimeType, url string) Asset {
	return Asset{
		id:       id,
		userID:   userID,
		mimeType: mimeType,
		url:      url,
	}
}

// Reconstruct creates an Asset with all fields (used by stores).
func Reconstruct(
	id, userID, mimeType, url, description string,
	createdAt, updatedAt time.Time,
) Asset {
	return Asset{
		id:          id,
		userID:      userID,
		mimeType:    mimeType,
		url:         url,
		description: description,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the asset id.
func (a Asset) ID() string { return a.id }

// UserID returns the owning producer.
func (a Asset) UserID() string { return a.userID }

// MimeType returns the declared MIME type.
func (a Asset) MimeType() string { return a.mimeType }

// URL returns the fully-qualified storage URL.
func (a Asset) URL() string { return a.url }

// Description returns the one-line description, empty until enriched.
func (a Asset) Description() string { return a.description }

// HasDescription reports whether the asset has been enriched.
func (a Asset) HasDescription() bool { return a.description != "" }

// CreatedAt returns the creation time.
func (a Asset) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns the last update time.
func (a Asset) UpdatedAt() time.Time { return a.updatedAt }

// WithDescription returns a copy with the description replaced.
func (a Asset) WithDescription(description string) Asset {
	a.description = description
	return a
}

// WithTimestamps returns a copy with the given timestamps.
func (a Asset) WithTimestamps(createdAt, updatedAt time.Time) Asset {
	a.createdAt = createdAt
	a.updatedAt = updatedAt
	return a
}

// OneLine collapses text into a single trimmed line: newlines become spaces
// and runs of whitespace become a single space.
func OneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Store persists assets.
type Store interface {
	// Get returns the asset with the given id or an error wrapping
	// fault.ErrDataConsistency when it does not exist.
	Get(ctx context.Context, id string) (Asset, error)

	// Save inserts or replaces the asset.
	Save(ctx context.Context, a Asset) (Asset, error)
}
