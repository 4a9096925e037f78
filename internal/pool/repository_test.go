package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/database"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

// PoolRepositoryTestSuite defines the test suite for pool repository
type PoolRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo PoolRepository
	ctx  context.Context
}

// SetupSuite runs before all tests in the suite
func (suite *PoolRepositoryTestSuite) SetupSuite() {
	db, err := database.Open(database.DriverSQLite, "file:pool_repository_test?mode=memory&cache=shared")
	suite.Require().NoError(err)
	suite.Require().NoError(database.Migrate(db))
	suite.db = db
	suite.repo = NewPoolRepository(db)
	suite.ctx = context.Background()
}

// SetupTest runs before each test
func (suite *PoolRepositoryTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM asset_records")
	suite.db.Exec("DELETE FROM pools")
}

// TearDownSuite runs after all tests in the suite
func (suite *PoolRepositoryTestSuite) TearDownSuite() {
	database.Close(suite.db)
}

func (suite *PoolRepositoryTestSuite) createTestPool(address string, active bool) *models.Pool {
	p := &models.Pool{
		Address:    address,
		Owner:      owner.Hex(),
		Collection: collection.Hex(),
		QuoteAsset: quote.Hex(),
		Kind:       models.PoolKindBoth,
		Curve:      curve.Linear,
		Delta:      10,
		SpotPrice:  100,
		Active:     active,
		QuoteVault: quote.Hex(),
		FeeVault:   quote.Hex(),
	}
	suite.Require().NoError(suite.repo.Create(suite.ctx, p))
	return p
}

func (suite *PoolRepositoryTestSuite) TestCreate() {
	p := suite.createTestPool(nft1.Hex(), false)
	suite.NotZero(p.ID)
	suite.Equal(uint64(1), p.Version)

	suite.Error(suite.repo.Create(suite.ctx, nil))

	invalid := &models.Pool{Address: "0x1", Owner: owner.Hex()}
	suite.ErrorIs(suite.repo.Create(suite.ctx, invalid), gorm.ErrInvalidData)
}

func (suite *PoolRepositoryTestSuite) TestGetters() {
	p := suite.createTestPool(nft1.Hex(), true)

	byID, err := suite.repo.GetByID(suite.ctx, p.ID)
	suite.Require().NoError(err)
	suite.Equal(p.Address, byID.Address)

	byAddress, err := suite.repo.GetByAddress(suite.ctx, p.Address)
	suite.Require().NoError(err)
	suite.Equal(p.ID, byAddress.ID)

	missing, err := suite.repo.GetByAddress(suite.ctx, nft2.Hex())
	suite.NoError(err)
	suite.Nil(missing)

	_, err = suite.repo.GetByID(suite.ctx, 0)
	suite.Error(err)
	_, err = suite.repo.GetByAddress(suite.ctx, "")
	suite.Error(err)
}

func (suite *PoolRepositoryTestSuite) TestUpdateIsConditionalOnVersion() {
	p := suite.createTestPool(nft1.Hex(), false)
	stale := *p

	p.SpotPrice = 200
	p.Active = true
	suite.Require().NoError(suite.repo.Update(suite.ctx, p))
	suite.Equal(uint64(2), p.Version)

	stale.SpotPrice = 300
	err := suite.repo.Update(suite.ctx, &stale)
	suite.True(apperrors.Is(err, apperrors.ErrConflict))

	stored, err := suite.repo.GetByID(suite.ctx, p.ID)
	suite.Require().NoError(err)
	suite.Equal(uint64(200), stored.SpotPrice)
	suite.True(stored.Active)
	suite.Equal(uint64(2), stored.Version)

	// Zero values are written too.
	p.Active = false
	suite.Require().NoError(suite.repo.Update(suite.ctx, p))
	stored, err = suite.repo.GetByID(suite.ctx, p.ID)
	suite.Require().NoError(err)
	suite.False(stored.Active)
}

func (suite *PoolRepositoryTestSuite) TestListing() {
	suite.createTestPool(nft1.Hex(), true)
	suite.createTestPool(nft2.Hex(), false)
	suite.createTestPool(nft3.Hex(), true)

	pools, err := suite.repo.List(suite.ctx, 2, 0)
	suite.Require().NoError(err)
	suite.Len(pools, 2)
	suite.Equal(nft1.Hex(), pools[0].Address)

	pools, err = suite.repo.List(suite.ctx, 2, 2)
	suite.Require().NoError(err)
	suite.Len(pools, 1)

	active, err := suite.repo.GetActivePools(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(active, 2)

	owned, err := suite.repo.GetPoolsByOwner(suite.ctx, owner.Hex())
	suite.Require().NoError(err)
	suite.Len(owned, 3)

	byCollection, err := suite.repo.GetPoolsByCollection(suite.ctx, collection.Hex())
	suite.Require().NoError(err)
	suite.Len(byCollection, 3)
}

func (suite *PoolRepositoryTestSuite) TestAssetRecords() {
	p := suite.createTestPool(nft1.Hex(), true)
	rec := &models.AssetRecord{
		PoolID: p.ID, Mint: nft2.Hex(), Collection: collection.Hex(),
		Escrow: nft3.Hex(), Beneficiary: trader.Hex(),
	}
	suite.Require().NoError(suite.repo.CreateAssetRecord(suite.ctx, rec))

	dup := *rec
	dup.ID = 0
	suite.Error(suite.repo.CreateAssetRecord(suite.ctx, &dup))

	found, err := suite.repo.GetAssetRecord(suite.ctx, p.ID, nft2.Hex())
	suite.Require().NoError(err)
	suite.Equal(trader.Hex(), found.Beneficiary)

	records, err := suite.repo.ListAssetRecords(suite.ctx, p.ID)
	suite.Require().NoError(err)
	suite.Len(records, 1)

	suite.Require().NoError(suite.repo.DeleteAssetRecord(suite.ctx, rec.ID))
	found, err = suite.repo.GetAssetRecord(suite.ctx, p.ID, nft2.Hex())
	suite.NoError(err)
	suite.Nil(found)
}

func (suite *PoolRepositoryTestSuite) TestDelete() {
	p := suite.createTestPool(nft1.Hex(), true)
	suite.Require().NoError(suite.repo.Delete(suite.ctx, p.ID))

	found, err := suite.repo.GetByID(suite.ctx, p.ID)
	suite.NoError(err)
	suite.Nil(found)
	suite.Error(suite.repo.Delete(suite.ctx, 0))
}

// TestPoolRepositoryTestSuite runs the test suite
func TestPoolRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(PoolRepositoryTestSuite))
}
