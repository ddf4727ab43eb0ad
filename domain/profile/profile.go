// Package profile provides the producer profile domain types: the
// structured detail document, its active and draft variants, and the
// text and facets derived from it for search.
package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNoDraft indicates an approval was requested for a profile without a draft.
var ErrNoDraft = errors.New("profile has no draft")

// BasicInfo holds registration details that are not generated.
type BasicInfo struct {
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Profile is a producer's profile with its published and in-progress variants.
type Profile struct {
	id        int64
	userID    string
	basic     BasicInfo
	active    *Detail
	draft     *Detail
	createdAt time.Time
	updatedAt time.Time
}

// New creates a profile for a user with no detail yet.
func New(userID string, basic BasicInfo) Profile {
	return Profile{
		userID: userID,
		basic:  basic,
	}
}

// Reconstruct creates a Profile with all fields (used by stores).
func Reconstruct(
	id int64,
	userID string,
	basic BasicInfo,
	active, draft *Detail,
	createdAt, updatedAt time.Time,
) Profile {
	return Profile{
		id:        id,
		userID:    userID,
		basic:     basic,
		active:    cloneDetail(active),
		draft:     cloneDetail(draft),
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the store id.
func (p Profile) ID() int64 { return p.id }

// UserID returns the owning producer.
func (p Profile) UserID() string { return p.userID }

// Basic returns the registration details.
func (p Profile) Basic() BasicInfo { return p.basic }

// Active returns a copy of the published detail, or nil.
func (p Profile) Active() *Detail { return cloneDetail(p.active) }

// Draft returns a copy of the unapproved detail, or nil.
func (p Profile) Draft() *Detail { return cloneDetail(p.draft) }

// HasActive reports whether a published detail exists.
func (p Profile) HasActive() bool { return p.active != nil }

// HasDraft reports whether an unapproved detail exists.
func (p Profile) HasDraft() bool { return p.draft != nil }

// CreatedAt returns the creation time.
func (p Profile) CreatedAt() time.Time { return p.createdAt }

// UpdatedAt returns the last update time.
func (p Profile) UpdatedAt() time.Time { return p.updatedAt }

// MergeBase returns the detail that profile synthesis should build on: the
// active detail when it exists and there is no draft, otherwise the draft.
// The result is nil for a producer with neither.
func (p Profile) MergeBase() *Detail {
	if p.active != nil && p.draft == nil {
		return cloneDetail(p.active)
	}
	return cloneDetail(p.draft)
}

// WithDraft returns a copy with the draft fully replaced.
func (p Profile) WithDraft(d Detail) Profile {
	p.draft = cloneDetail(&d)
	return p
}

// WithActive returns a copy with the active detail fully replaced.
func (p Profile) WithActive(d Detail) Profile {
	p.active = cloneDetail(&d)
	return p
}

// Approve returns a copy with the draft promoted to active and the draft
// cleared.
func (p Profile) Approve() (Profile, error) {
	if p.draft == nil {
		return p, ErrNoDraft
	}
	p.active = p.draft
	p.draft = nil
	return p, nil
}

func cloneDetail(d *Detail) *Detail {
	if d == nil {
		return nil
	}
	c := d.Clone()
	return &c
}

// Store persists profiles.
type Store interface {
	// GetByUser returns the user's profile or an error wrapping
	// fault.ErrDataConsistency when it does not exist.
	GetByUser(ctx context.Context, userID string) (Profile, error)

	// Find returns every profile, for bulk reindexing.
	Find(ctx context.Context) ([]Profile, error)

	// SaveDraft fully replaces the user's draft detail.
	SaveDraft(ctx context.Context, userID string, draft Detail) (Profile, error)

	// Approve promotes the user's draft to active.
	Approve(ctx context.Context, userID string) (Profile, error)

	// Save inserts or replaces the whole profile.
	Save(ctx context.Context, p Profile) (Profile, error)
}
