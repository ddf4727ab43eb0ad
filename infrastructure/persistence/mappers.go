package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/profile"
	"gorm.io/datatypes"
)

// AssetMapper maps between domain Asset and persistence AssetModel.
type AssetMapper struct{}

// ToDomain converts an AssetModel to a domain Asset.
func (AssetMapper) ToDomain(e AssetModel) (asset.Asset, error) {
	return asset.Reconstruct(
		e.ID,
		e.UserID,
		e.MimeType,
		e.URL,
		e.Description,
		e.CreatedAt,
		e.UpdatedAt,
	), nil
}

// ToModel converts a domain Asset to an AssetModel.
func (AssetMapper) ToModel(a asset.Asset) (AssetModel, error) {
	return AssetModel{
		ID:          a.ID(),
		UserID:      a.UserID(),
		MimeType:    a.MimeType(),
		URL:         a.URL(),
		Description: a.Description(),
		CreatedAt:   a.CreatedAt(),
		UpdatedAt:   a.UpdatedAt(),
	}, nil
}

// ProfileMapper maps between domain Profile and persistence ProfileModel.
type ProfileMapper struct{}

// ToDomain converts a ProfileModel to a domain Profile.
func (ProfileMapper) ToDomain(e ProfileModel) (profile.Profile, error) {
	active, err := detailFromJSON(e.ActiveProfile)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("active profile of %s: %w", e.UserID, err)
	}
	draft, err := detailFromJSON(e.DraftProfile)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("draft profile of %s: %w", e.UserID, err)
	}
	basic := profile.BasicInfo{
		FirstName:  e.FirstName,
		MiddleName: e.MiddleName,
		LastName:   e.LastName,
		Country:    e.Country,
	}
	return profile.Reconstruct(e.ID, e.UserID, basic, active, draft, e.CreatedAt, e.UpdatedAt), nil
}

// ToModel converts a domain Profile to a ProfileModel.
func (ProfileMapper) ToModel(p profile.Profile) (ProfileModel, error) {
	active, err := detailToJSON(p.Active())
	if err != nil {
		return ProfileModel{}, err
	}
	draft, err := detailToJSON(p.Draft())
	if err != nil {
		return ProfileModel{}, err
	}
	basic := p.Basic()
	return ProfileModel{
		ID:            p.ID(),
		UserID:        p.UserID(),
		FirstName:     basic.FirstName,
		MiddleName:    basic.MiddleName,
		LastName:      basic.LastName,
		Country:       basic.Country,
		ActiveProfile: active,
		DraftProfile:  draft,
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	}, nil
}

// detailFromJSON decodes a stored detail. Stored documents were validated
// on the way in, so decoding is lenient here.
func detailFromJSON(raw datatypes.JSON) (*profile.Detail, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d profile.Detail
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func detailToJSON(d *profile.Detail) (datatypes.JSON, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal profile detail: %w", err)
	}
	return datatypes.JSON(data), nil
}
