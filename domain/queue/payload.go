package queue

import (
	"strings"

	"github.com/cosolvent/cosolvent/domain/fault"
)

// AssetUploaded is the asset_upload payload.
type AssetUploaded struct {
	AssetID string `json:"asset_id"`
	UserID  string `json:"user_id,omitempty"`
}

// Validate checks required fields.
func (p AssetUploaded) Validate() error {
	if strings.TrimSpace(p.AssetID) == "" {
		return fault.Validation("asset_upload: asset_id is required")
	}
	return nil
}

// MetadataCompleted is the metadata_completed payload.
type MetadataCompleted struct {
	AssetID string `json:"asset_id"`
	UserID  string `json:"user_id"`
}

// Validate checks required fields.
func (p MetadataCompleted) Validate() error {
	if strings.TrimSpace(p.AssetID) == "" {
		return fault.Validation("metadata_completed: asset_id is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return fault.Validation("metadata_completed: user_id is required")
	}
	return nil
}

// ProfileGenerated is the profile_generated payload.
type ProfileGenerated struct {
	UserID string `json:"user_id"`
}

// ProfileApproved is the profile_approved payload. It carries either the
// profile text and facets directly, or only a user id whose approved
// profile must be loaded.
type ProfileApproved struct {
	ProfileID      string   `json:"profile_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	AIProfile      string   `json:"ai_profile,omitempty"`
	Region         string   `json:"region,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	PrimaryCrops   []string `json:"primary_crops,omitempty"`
}

// HasProfileText reports whether the payload carries the profile text.
func (p ProfileApproved) HasProfileText() bool {
	return strings.TrimSpace(p.AIProfile) != ""
}

// EntryID returns the index id for the approval: the profile id when
// present, otherwise the user id.
func (p ProfileApproved) EntryID() string {
	if p.ProfileID != "" {
		return p.ProfileID
	}
	return p.UserID
}

// Validate checks that the payload identifies a profile.
func (p ProfileApproved) Validate() error {
	if p.EntryID() == "" {
		return fault.Validation("profile_approved: profile_id or user_id is required")
	}
	if !p.HasProfileText() && p.UserID == "" {
		return fault.Validation("profile_approved: ai_profile or user_id is required")
	}
	return nil
}

// AssetReadyForIndexing is the asset_ready_for_indexing payload.
type AssetReadyForIndexing struct {
	AssetID     string `json:"asset_id"`
	UserID      string `json:"user_id"`
	Description string `json:"description"`
}

// Validate checks required fields.
func (p AssetReadyForIndexing) Validate() error {
	if strings.TrimSpace(p.AssetID) == "" {
		return fault.Validation("asset_ready_for_indexing: asset_id is required")
	}
	return nil
}
