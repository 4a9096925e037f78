package registry

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/database"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/fees"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

var (
	collection = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	other      = common.HexToAddress("0x00000000000000000000000000000000000c0de2")
	nested     = common.HexToAddress("0x00000000000000000000000000000000000c0de3")
	nft        = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	creator    = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

func sized(n uint64) *uint64 { return &n }

func strPtr(s string) *string { return &s }

type RegistryTestSuite struct {
	suite.Suite
	db    *gorm.DB
	store Store
	ctx   context.Context
}

func (suite *RegistryTestSuite) SetupSuite() {
	db, err := database.Open(database.DriverSQLite, "file:registry_test?mode=memory&cache=shared")
	suite.Require().NoError(err)
	suite.Require().NoError(database.Migrate(db))
	suite.db = db
	suite.store = NewStore(db)
	suite.ctx = context.Background()
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM asset_metadata")
	suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
		Mint: collection.Hex(), Name: "Collection", CollectionSize: sized(100),
	}))
	suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
		Mint: other.Hex(), Name: "Other", CollectionSize: sized(10),
	}))
}

func (suite *RegistryTestSuite) TearDownSuite() {
	database.Close(suite.db)
}

func (suite *RegistryTestSuite) registerNFT(coll *string, verified bool) {
	suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
		Mint:               nft.Hex(),
		Name:               "Item #1",
		Collection:         coll,
		CollectionVerified: verified,
		SellerFeeBps:       500,
		Creators:           pq.StringArray{creator.Hex()},
		Shares:             pq.Int64Array{100},
	}))
}

func (suite *RegistryTestSuite) TestVerifyMembership() {
	suite.registerNFT(strPtr(collection.Hex()), true)

	sched, err := suite.store.VerifyMembership(suite.ctx, nft, collection)
	suite.Require().NoError(err)
	suite.Equal(uint16(500), sched.SellerFeeBps)
	suite.Equal([]fees.Creator{{Address: creator.Hex(), Share: 100}}, sched.Creators)
}

func (suite *RegistryTestSuite) TestVerifyMembershipFailures() {
	_, err := suite.store.VerifyMembership(suite.ctx, nft, collection)
	suite.ErrorIs(err, ErrMetadataAbsent)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	suite.registerNFT(strPtr(collection.Hex()), false)
	_, err = suite.store.VerifyMembership(suite.ctx, nft, collection)
	suite.ErrorIs(err, ErrNotVerified)

	suite.registerNFT(strPtr(other.Hex()), true)
	_, err = suite.store.VerifyMembership(suite.ctx, nft, collection)
	suite.ErrorIs(err, ErrWrongCollection)

	suite.registerNFT(nil, true)
	_, err = suite.store.VerifyMembership(suite.ctx, nft, collection)
	suite.ErrorIs(err, ErrWrongCollection)

	_, err = suite.store.VerifyMembership(suite.ctx, other, collection)
	suite.ErrorIs(err, ErrAssetIsCollection)
}

func (suite *RegistryTestSuite) TestVerifyCollection() {
	suite.NoError(suite.store.VerifyCollection(suite.ctx, collection))

	suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
		Mint: nested.Hex(), Collection: strPtr(collection.Hex()), CollectionSize: sized(5),
	}))
	suite.ErrorIs(suite.store.VerifyCollection(suite.ctx, nested), ErrNestedCollection)

	suite.registerNFT(strPtr(collection.Hex()), true)
	suite.ErrorIs(suite.store.VerifyCollection(suite.ctx, nft), ErrUnsizedCollection)

	suite.ErrorIs(suite.store.VerifyCollection(suite.ctx, creator), ErrMetadataAbsent)
}

func (suite *RegistryTestSuite) TestCachedRegistryFallsThrough() {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	cached := NewCachedRegistry(suite.store, rdb, time.Minute)

	suite.registerNFT(strPtr(collection.Hex()), true)
	sched, err := cached.VerifyMembership(suite.ctx, nft, collection)
	suite.Require().NoError(err)
	suite.Equal(uint16(500), sched.SellerFeeBps)
	suite.NoError(cached.VerifyCollection(suite.ctx, collection))

	_, err = cached.VerifyMembership(suite.ctx, nft, other)
	suite.ErrorIs(err, ErrWrongCollection)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
