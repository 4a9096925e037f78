// Package registry verifies that NFTs belong to a verified, sized collection
// and exposes their royalty schedule.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/fees"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

var (
	ErrMetadataAbsent    = errors.New("metadata absent")
	ErrNotVerified       = errors.New("collection membership not verified")
	ErrWrongCollection   = errors.New("asset belongs to a different collection")
	ErrAssetIsCollection = errors.New("asset is itself a collection")
	ErrNestedCollection  = errors.New("collection is nested in another collection")
	ErrUnsizedCollection = errors.New("collection has no size details")
)

// RoyaltySchedule is what a buyer owes creators on top of the price.
type RoyaltySchedule struct {
	SellerFeeBps uint16         `json:"seller_fee_bps"`
	Creators     []fees.Creator `json:"creators"`
}

// Registry answers provenance questions about assets.
type Registry interface {
	VerifyMembership(ctx context.Context, asset, collection common.Address) (*RoyaltySchedule, error)
	VerifyCollection(ctx context.Context, collection common.Address) error
}

// Store is a Registry that can also be written to.
type Store interface {
	Registry
	Register(ctx context.Context, meta *models.AssetMetadata) error
	Get(ctx context.Context, mint common.Address) (*models.AssetMetadata, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a registry backed by the asset_metadata table
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Register(ctx context.Context, meta *models.AssetMetadata) error {
	if meta == nil {
		return errors.New("metadata cannot be nil")
	}
	return s.db.WithContext(ctx).Save(meta).Error
}

func (s *gormStore) Get(ctx context.Context, mint common.Address) (*models.AssetMetadata, error) {
	var meta models.AssetMetadata
	err := s.db.WithContext(ctx).Where("mint = ?", mint.Hex()).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

func (s *gormStore) VerifyMembership(ctx context.Context, asset, collection common.Address) (*RoyaltySchedule, error) {
	meta, err := s.Get(ctx, asset)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, reject(ErrMetadataAbsent, asset)
	}
	if meta.IsCollection() {
		return nil, reject(ErrAssetIsCollection, asset)
	}
	if meta.Collection == nil || *meta.Collection != collection.Hex() {
		return nil, reject(ErrWrongCollection, asset)
	}
	if !meta.CollectionVerified {
		return nil, reject(ErrNotVerified, asset)
	}
	if err := s.VerifyCollection(ctx, collection); err != nil {
		return nil, err
	}
	return schedule(meta), nil
}

func (s *gormStore) VerifyCollection(ctx context.Context, collection common.Address) error {
	meta, err := s.Get(ctx, collection)
	if err != nil {
		return err
	}
	if meta == nil {
		return reject(ErrMetadataAbsent, collection)
	}
	if meta.Collection != nil {
		return reject(ErrNestedCollection, collection)
	}
	if !meta.IsCollection() {
		return reject(ErrUnsizedCollection, collection)
	}
	return nil
}

func schedule(meta *models.AssetMetadata) *RoyaltySchedule {
	creators := make([]fees.Creator, 0, len(meta.Creators))
	for i, addr := range meta.Creators {
		creators = append(creators, fees.Creator{Address: addr, Share: uint8(meta.Shares[i])})
	}
	return &RoyaltySchedule{SellerFeeBps: meta.SellerFeeBps, Creators: creators}
}

func reject(cause error, mint common.Address) error {
	return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("%s: %s", mint.Hex(), cause), cause)
}
