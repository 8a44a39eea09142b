package session

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProfileStore keeps profiles in the profiles table.
type GormProfileStore struct {
	db *gorm.DB
}

func NewGormProfileStore(db *gorm.DB) *GormProfileStore {
	return &GormProfileStore{db: db}
}

func (s *GormProfileStore) FindProfile(ctx context.Context, appID string, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID)).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormProfileStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(p).Error
}

func (s *GormProfileStore) UpdateRole(ctx context.Context, appID string, userID uuid.UUID, role string) error {
	result := s.db.WithContext(ctx).Model(&models.Profile{}).
		Scopes(tenant.ForTenant(appID)).
		Where("user_id = ?", userID).
		Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
