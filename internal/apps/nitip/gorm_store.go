package nitip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore keeps deposits in PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create re-checks slot and code inside a transaction. Two writers can still
// pass the check together; the partial unique indexes reject the loser, which
// is then classified by reading the winner back.
func (s *GormStore) Create(ctx context.Context, d *Deposit) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkFree(tx, d); err != nil {
			return err
		}
		return tx.Create(d).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if cerr := s.checkFree(s.db.WithContext(ctx), d); cerr != nil {
			return cerr
		}
		return ErrCodeTaken
	}
	if err != nil && !errors.Is(err, ErrSlotOccupied) && !errors.Is(err, ErrCodeTaken) {
		return fmt.Errorf("create deposit: %w", err)
	}
	return err
}

func (s *GormStore) checkFree(tx *gorm.DB, d *Deposit) error {
	var n int64
	if err := tx.Model(&Deposit{}).
		Scopes(tenant.ForTenant(d.AppID)).
		Where("status = ? AND slot = ?", StatusActive, d.Slot).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrSlotOccupied
	}

	if err := tx.Model(&Deposit{}).
		Scopes(tenant.ForTenant(d.AppID)).
		Where("status = ? AND pickup_code = ?", StatusActive, d.PickupCode).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrCodeTaken
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, appID string, id uuid.UUID) (*Deposit, error) {
	var d Deposit
	err := s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID)).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	return &d, nil
}

func (s *GormStore) FindByCode(ctx context.Context, appID, code string) (*Deposit, error) {
	var d Deposit
	err := s.db.WithContext(ctx).
		Scopes(tenant.ForTenant(appID)).
		Where("pickup_code = ?", code).
		Order("CASE WHEN status = 'active' THEN 0 ELSE 1 END").
		Order("picked_up_at DESC NULLS LAST").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find deposit by code: %w", err)
	}
	return &d, nil
}

// MarkPickedUp is a conditional update on status so that concurrent pickups
// of the same record cannot both succeed.
func (s *GormStore) MarkPickedUp(ctx context.Context, appID string, id uuid.UUID, at time.Time) (*Deposit, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&Deposit{}).
		Scopes(tenant.ForTenant(appID)).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]interface{}{
			"status":       StatusPickedUp,
			"picked_up_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("mark picked up: %w", res.Error)
	}

	d, err := s.Get(ctx, appID, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyPickedUp
	}
	return d, nil
}

func (s *GormStore) List(ctx context.Context, q Query) ([]Deposit, error) {
	db := s.db.WithContext(ctx).Model(&Deposit{})
	if q.AppID != "" {
		db = db.Scopes(tenant.ForTenant(q.AppID))
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.OwnerID != uuid.Nil {
		db = db.Where("deposited_by_user_id = ?", q.OwnerID)
	}
	if q.Status == StatusPickedUp {
		db = db.Order("picked_up_at DESC")
	} else {
		db = db.Order("deposited_at DESC")
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var out []Deposit
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return out, nil
}

func (s *GormStore) Counts(ctx context.Context, appID string) (StatusCounts, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&Deposit{}).
		Scopes(tenant.ForTenant(appID)).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count deposits: %w", err)
	}

	var c StatusCounts
	for _, r := range rows {
		switch r.Status {
		case StatusActive:
			c.Active = r.N
		case StatusPickedUp:
			c.PickedUp = r.N
		}
	}
	return c, nil
}
