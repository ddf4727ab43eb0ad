package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/domain/query"
	"github.com/cosolvent/cosolvent/internal/database"
	"gorm.io/gorm"
)

// ProfileStore implements profile.Store using GORM.
type ProfileStore struct {
	database.Repository[profile.Profile, ProfileModel]
	mapper ProfileMapper
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(db database.Database) ProfileStore {
	return ProfileStore{
		Repository: database.NewRepository[profile.Profile, ProfileModel](db, ProfileMapper{}, "profile"),
	}
}

// GetByUser returns the profile owned by userID.
func (s ProfileStore) GetByUser(ctx context.Context, userID string) (profile.Profile, error) {
	p, err := s.FindOne(ctx, query.WithUserID(userID))
	if errors.Is(err, database.ErrNotFound) {
		return profile.Profile{}, fault.Missing("profile", userID)
	}
	return p, err
}

// Find returns every profile in id order.
func (s ProfileStore) Find(ctx context.Context) ([]profile.Profile, error) {
	return s.Repository.Find(ctx, query.WithOrderAsc("id"))
}

// SaveDraft replaces only the draft column so a concurrent approval of the
// same profile cannot be overwritten with stale data.
func (s ProfileStore) SaveDraft(ctx context.Context, userID string, draft profile.Detail) (profile.Profile, error) {
	raw, err := detailToJSON(&draft)
	if err != nil {
		return profile.Profile{}, err
	}

	result := s.DB(ctx).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"draft_profile": raw,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return profile.Profile{}, fmt.Errorf("save draft for %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return profile.Profile{}, fault.Missing("profile", userID)
	}
	return s.GetByUser(ctx, userID)
}

// Approve promotes the draft to active and clears the draft in one
// transaction.
func (s ProfileStore) Approve(ctx context.Context, userID string) (profile.Profile, error) {
	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (profile.Profile, error) {
		var model ProfileModel
		if err := tx.Where("user_id = ?", userID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return profile.Profile{}, fault.Missing("profile", userID)
			}
			return profile.Profile{}, fmt.Errorf("load profile %s: %w", userID, err)
		}

		current, err := s.mapper.ToDomain(model)
		if err != nil {
			return profile.Profile{}, err
		}
		approved, err := current.Approve()
		if err != nil {
			return profile.Profile{}, fmt.Errorf("%w: %s: %w", fault.ErrValidation, userID, err)
		}

		active, err := detailToJSON(approved.Active())
		if err != nil {
			return profile.Profile{}, err
		}
		model.ActiveProfile = active
		model.DraftProfile = nil
		model.UpdatedAt = time.Now().UTC()

		err = tx.Model(&ProfileModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"active_profile": model.ActiveProfile,
				"draft_profile":  gorm.Expr("NULL"),
				"updated_at":     model.UpdatedAt,
			}).Error
		if err != nil {
			return profile.Profile{}, fmt.Errorf("approve profile %s: %w", userID, err)
		}
		return s.mapper.ToDomain(model)
	})
}

// Save inserts or replaces the whole profile. A profile without an id
// replaces any existing profile of the same user.
func (s ProfileStore) Save(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	model, err := s.mapper.ToModel(p)
	if err != nil {
		return profile.Profile{}, err
	}

	now := time.Now().UTC()
	if model.ID == 0 {
		var existing ProfileModel
		err := s.DB(ctx).Where("user_id = ?", model.UserID).First(&existing).Error
		switch {
		case err == nil:
			model.ID = existing.ID
			model.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return profile.Profile{}, fmt.Errorf("load profile %s: %w", model.UserID, err)
		}
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now

	if err := s.Database().Session(ctx).Save(&model).Error; err != nil {
		return profile.Profile{}, fmt.Errorf("save profile %s: %w", model.UserID, err)
	}
	return s.mapper.ToDomain(model)
}
