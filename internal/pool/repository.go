package pool

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

// PoolRepository interface defines pool database operations
type PoolRepository interface {
	WithTx(tx *gorm.DB) PoolRepository
	Create(ctx context.Context, pool *models.Pool) error
	GetByID(ctx context.Context, id uint) (*models.Pool, error)
	GetByAddress(ctx context.Context, address string) (*models.Pool, error)
	Update(ctx context.Context, pool *models.Pool) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]*models.Pool, error)
	GetActivePools(ctx context.Context) ([]*models.Pool, error)
	GetPoolsByOwner(ctx context.Context, owner string) ([]*models.Pool, error)
	GetPoolsByCollection(ctx context.Context, collection string) ([]*models.Pool, error)

	CreateAssetRecord(ctx context.Context, record *models.AssetRecord) error
	GetAssetRecord(ctx context.Context, poolID uint, mint string) (*models.AssetRecord, error)
	ListAssetRecords(ctx context.Context, poolID uint) ([]*models.AssetRecord, error)
	DeleteAssetRecord(ctx context.Context, id uint) error
}

// poolRepository implements PoolRepository interface
type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

func (r *poolRepository) WithTx(tx *gorm.DB) PoolRepository {
	return &poolRepository{db: tx}
}

// Create creates a new pool
func (r *poolRepository) Create(ctx context.Context, pool *models.Pool) error {
	if pool == nil {
		return errors.New("pool cannot be nil")
	}
	return r.db.WithContext(ctx).Create(pool).Error
}

// GetByID retrieves a pool by its ID
func (r *poolRepository) GetByID(ctx context.Context, id uint) (*models.Pool, error) {
	if id == 0 {
		return nil, errors.New("id cannot be zero")
	}

	var pool models.Pool
	err := r.db.WithContext(ctx).First(&pool, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// GetByAddress retrieves a pool by its derived address
func (r *poolRepository) GetByAddress(ctx context.Context, address string) (*models.Pool, error) {
	if address == "" {
		return nil, errors.New("address cannot be empty")
	}

	var pool models.Pool
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// Update writes the mutable pool fields if the stored version still matches
// pool.Version, then advances the version.
func (r *poolRepository) Update(ctx context.Context, pool *models.Pool) error {
	if pool == nil {
		return errors.New("pool cannot be nil")
	}

	res := r.db.WithContext(ctx).Model(&models.Pool{}).
		Where("id = ? AND version = ?", pool.ID, pool.Version).
		Updates(map[string]interface{}{
			"delta":       pool.Delta,
			"fee_bps":     pool.FeeBps,
			"spot_price":  pool.SpotPrice,
			"trade_count": pool.TradeCount,
			"nft_count":   pool.NFTCount,
			"active":      pool.Active,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict(fmt.Sprintf("pool %s changed concurrently", pool.Address))
	}
	pool.Version++
	return nil
}

// Delete removes a pool by ID
func (r *poolRepository) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return errors.New("id cannot be zero")
	}
	return r.db.WithContext(ctx).Delete(&models.Pool{}, id).Error
}

// List retrieves pools with pagination
func (r *poolRepository) List(ctx context.Context, limit, offset int) ([]*models.Pool, error) {
	var pools []*models.Pool
	err := r.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&pools).Error
	return pools, err
}

// GetActivePools retrieves all active pools
func (r *poolRepository) GetActivePools(ctx context.Context) ([]*models.Pool, error) {
	var pools []*models.Pool
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&pools).Error
	return pools, err
}

// GetPoolsByOwner retrieves pools administered by an address
func (r *poolRepository) GetPoolsByOwner(ctx context.Context, owner string) ([]*models.Pool, error) {
	if owner == "" {
		return nil, errors.New("owner cannot be empty")
	}

	var pools []*models.Pool
	err := r.db.WithContext(ctx).Where("owner = ?", owner).Order("id ASC").Find(&pools).Error
	return pools, err
}

// GetPoolsByCollection retrieves pools trading a collection
func (r *poolRepository) GetPoolsByCollection(ctx context.Context, collection string) ([]*models.Pool, error) {
	if collection == "" {
		return nil, errors.New("collection cannot be empty")
	}

	var pools []*models.Pool
	err := r.db.WithContext(ctx).Where("collection = ?", collection).Order("id ASC").Find(&pools).Error
	return pools, err
}

// CreateAssetRecord stores the record of an escrowed NFT
func (r *poolRepository) CreateAssetRecord(ctx context.Context, record *models.AssetRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// GetAssetRecord retrieves the record for a mint held by a pool
func (r *poolRepository) GetAssetRecord(ctx context.Context, poolID uint, mint string) (*models.AssetRecord, error) {
	if poolID == 0 || mint == "" {
		return nil, errors.New("pool id and mint are required")
	}

	var record models.AssetRecord
	err := r.db.WithContext(ctx).Where("pool_id = ? AND mint = ?", poolID, mint).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListAssetRecords retrieves a pool's inventory
func (r *poolRepository) ListAssetRecords(ctx context.Context, poolID uint) ([]*models.AssetRecord, error) {
	var records []*models.AssetRecord
	err := r.db.WithContext(ctx).Where("pool_id = ?", poolID).Order("id ASC").Find(&records).Error
	return records, err
}

// DeleteAssetRecord removes a record once its NFT leaves escrow
func (r *poolRepository) DeleteAssetRecord(ctx context.Context, id uint) error {
	if id == 0 {
		return errors.New("id cannot be zero")
	}
	return r.db.WithContext(ctx).Delete(&models.AssetRecord{}, id).Error
}
