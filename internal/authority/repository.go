package authority

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

// AuthorityRepository interface defines pool authority database operations
type AuthorityRepository interface {
	WithTx(tx *gorm.DB) AuthorityRepository
	Create(ctx context.Context, authority *models.PoolAuthority) error
	GetByID(ctx context.Context, id uint) (*models.PoolAuthority, error)
	Update(ctx context.Context, authority *models.PoolAuthority) error
	ListByCurrent(ctx context.Context, current string) ([]*models.PoolAuthority, error)
}

// authorityRepository implements AuthorityRepository interface
type authorityRepository struct {
	db *gorm.DB
}

// NewAuthorityRepository creates a new authority repository
func NewAuthorityRepository(db *gorm.DB) AuthorityRepository {
	return &authorityRepository{db: db}
}

func (r *authorityRepository) WithTx(tx *gorm.DB) AuthorityRepository {
	return &authorityRepository{db: tx}
}

// Create creates a new pool authority
func (r *authorityRepository) Create(ctx context.Context, authority *models.PoolAuthority) error {
	if authority == nil {
		return errors.New("authority cannot be nil")
	}
	return r.db.WithContext(ctx).Create(authority).Error
}

// GetByID retrieves an authority by its ID
func (r *authorityRepository) GetByID(ctx context.Context, id uint) (*models.PoolAuthority, error) {
	if id == 0 {
		return nil, errors.New("id cannot be zero")
	}

	var authority models.PoolAuthority
	err := r.db.WithContext(ctx).First(&authority, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &authority, nil
}

// Update writes current and pending authority conditional on the version the
// caller read, then bumps the version.
func (r *authorityRepository) Update(ctx context.Context, authority *models.PoolAuthority) error {
	if authority == nil {
		return errors.New("authority cannot be nil")
	}

	res := r.db.WithContext(ctx).Model(&models.PoolAuthority{}).
		Where("id = ? AND version = ?", authority.ID, authority.Version).
		Updates(map[string]interface{}{
			"current_authority": authority.CurrentAuthority,
			"pending_authority": authority.PendingAuthority,
			"version":           gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict(fmt.Sprintf("authority %d changed concurrently", authority.ID))
	}
	authority.Version++
	return nil
}

// ListByCurrent retrieves the authorities controlled by an address
func (r *authorityRepository) ListByCurrent(ctx context.Context, current string) ([]*models.PoolAuthority, error) {
	if current == "" {
		return nil, errors.New("current authority cannot be empty")
	}

	var authorities []*models.PoolAuthority
	err := r.db.WithContext(ctx).Where("current_authority = ?", current).
		Order("id ASC").Find(&authorities).Error
	return authorities, err
}
