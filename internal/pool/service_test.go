package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/authority"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/custody"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/database"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/events"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/ledger"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/registry"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/transaction"
)

var (
	program    = common.HexToAddress("0x0000000000000000000000000000000000000999")
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	trader     = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	protocol   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	quote      = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000f0f")
	creatorA   = common.HexToAddress("0x000000000000000000000000000000000000c0a1")
	creatorB   = common.HexToAddress("0x000000000000000000000000000000000000c0b2")
	nft1       = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	nft2       = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	nft3       = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	foreignNFT = common.HexToAddress("0x0000000000000000000000000000000000000b01")
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type PoolServiceTestSuite struct {
	suite.Suite
	db          *gorm.DB
	ledger      ledger.Ledger
	custodian   *custody.Custodian
	store       registry.Store
	pools       PoolRepository
	authorities authority.AuthorityRepository
	history     transaction.TransactionRepository
	sink        *recordingSink
	service     Service
	ctx         context.Context
}

func (suite *PoolServiceTestSuite) SetupSuite() {
	db, err := database.Open(database.DriverSQLite, "file:pool_service_test?mode=memory&cache=shared")
	suite.Require().NoError(err)
	suite.Require().NoError(database.Migrate(db))
	suite.db = db
	suite.ctx = context.Background()

	suite.ledger = ledger.NewLedger(db)
	suite.custodian = custody.NewCustodian(custody.NewDeriver(program), suite.ledger)
	suite.store = registry.NewStore(db)
	suite.pools = NewPoolRepository(db)
	suite.authorities = authority.NewAuthorityRepository(db)
	suite.history = transaction.NewTransactionRepository(db)
}

func (suite *PoolServiceTestSuite) SetupTest() {
	for _, table := range []string{"transactions", "asset_records", "pools", "pool_authorities", "ledger_accounts", "asset_metadata"} {
		suite.db.Exec("DELETE FROM " + table)
	}
	suite.sink = &recordingSink{}
	suite.service = NewService(suite.db, suite.pools, suite.authorities, suite.history,
		suite.ledger, suite.custodian, suite.store, suite.sink)

	size := uint64(100)
	suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
		Mint: collection.Hex(), Name: "Collection", CollectionSize: &size,
	}))
	coll := collection.Hex()
	for _, mint := range []common.Address{nft1, nft2, nft3} {
		suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
			Mint:               mint.Hex(),
			Name:               "Item",
			Collection:         &coll,
			CollectionVerified: true,
			SellerFeeBps:       500,
			Creators:           pq.StringArray{creatorA.Hex(), creatorB.Hex()},
			Shares:             pq.Int64Array{60, 40},
		}))
	}
	other := quote.Hex()
	suite.Require().NoError(suite.store.Register(suite.ctx, &models.AssetMetadata{
		Mint: foreignNFT.Hex(), Collection: &other, CollectionVerified: true,
	}))
}

func (suite *PoolServiceTestSuite) TearDownSuite() {
	database.Close(suite.db)
}

func (suite *PoolServiceTestSuite) give(to, asset common.Address, amount uint64) {
	_, err := suite.ledger.Mint(suite.ctx, to, asset, amount)
	suite.Require().NoError(err)
}

func (suite *PoolServiceTestSuite) balance(holder, asset common.Address) uint64 {
	b, err := suite.ledger.BalanceOf(suite.ctx, ledger.AssociatedAddress(holder, asset))
	suite.Require().NoError(err)
	return b
}

func (suite *PoolServiceTestSuite) vaultBalance(p *models.Pool) uint64 {
	b, err := suite.custodian.QuoteVault(common.HexToAddress(p.Address), quote).Balance(suite.ctx)
	suite.Require().NoError(err)
	return b
}

func (suite *PoolServiceTestSuite) newAuthority(feeBps uint16) *uint {
	a := &models.PoolAuthority{CurrentAuthority: protocol.Hex(), FeeBps: feeBps}
	suite.Require().NoError(suite.authorities.Create(suite.ctx, a))
	return &a.ID
}

func (suite *PoolServiceTestSuite) newPool(params InitParams) *models.Pool {
	params.Owner = owner
	params.Collection = collection
	params.QuoteAsset = quote
	p, err := suite.service.Initialize(suite.ctx, params)
	suite.Require().NoError(err)
	return p
}

func (suite *PoolServiceTestSuite) fundNFT(p *models.Pool, mint common.Address) *models.Pool {
	suite.give(owner, mint, 1)
	p, err := suite.service.FundWithAsset(suite.ctx, owner, common.HexToAddress(p.Address), mint)
	suite.Require().NoError(err)
	return p
}

func (suite *PoolServiceTestSuite) reload(p *models.Pool) *models.Pool {
	fresh, err := suite.service.Get(suite.ctx, common.HexToAddress(p.Address))
	suite.Require().NoError(err)
	return fresh
}

func addr(p *models.Pool) common.Address {
	return common.HexToAddress(p.Address)
}

func u64(v uint64) *uint64 { return &v }

func (suite *PoolServiceTestSuite) TestInitialize() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 100, FeeBps: 200, SpotPrice: 1000})

	suite.Equal(suite.custodian.Deriver().PoolAddress(owner, collection, quote).Hex(), p.Address)
	suite.False(p.Active)
	suite.Zero(p.TradeCount)
	suite.Zero(p.NFTCount)
	suite.Equal(uint64(1), p.Version)

	for _, vault := range []string{p.QuoteVault, p.FeeVault} {
		account, err := suite.ledger.Account(suite.ctx, common.HexToAddress(vault))
		suite.Require().NoError(err)
		suite.Require().NotNil(account)
		suite.Equal(suite.custodian.Deriver().Signer().Hex(), account.Owner)
	}

	history, err := suite.history.GetByPool(suite.ctx, p.Address, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(history, 1)
	suite.Equal(models.OperationInitPool, history[0].Type)
	suite.Equal([]events.Type{events.TypePoolUpdated}, suite.sink.types())
}

func (suite *PoolServiceTestSuite) TestInitializeValidation() {
	base := InitParams{Owner: owner, Collection: collection, QuoteAsset: quote, Kind: models.PoolKindBoth, Curve: curve.Exponential}

	bad := base
	bad.FeeBps = 10001
	_, err := suite.service.Initialize(suite.ctx, bad)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	bad = base
	bad.Delta = 10001
	_, err = suite.service.Initialize(suite.ctx, bad)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	bad = base
	bad.Kind = models.PoolKind(7)
	_, err = suite.service.Initialize(suite.ctx, bad)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	bad = base
	bad.Collection = nft1
	_, err = suite.service.Initialize(suite.ctx, bad)
	suite.ErrorIs(err, registry.ErrNestedCollection)

	missing := uint(4242)
	bad = base
	bad.AuthorityID = &missing
	_, err = suite.service.Initialize(suite.ctx, bad)
	suite.True(apperrors.Is(err, apperrors.ErrNotFound))

	_, err = suite.service.Initialize(suite.ctx, base)
	suite.Require().NoError(err)
	_, err = suite.service.Initialize(suite.ctx, base)
	suite.True(apperrors.Is(err, apperrors.ErrConflict))
}

func (suite *PoolServiceTestSuite) TestFundWithQuote() {
	p := suite.newPool(InitParams{Kind: models.PoolKindQuoteOnly, Curve: curve.Linear, Delta: 10, SpotPrice: 1000})
	suite.give(owner, quote, 5000)

	_, err := suite.service.FundWithQuote(suite.ctx, stranger, addr(p), 2000)
	suite.True(apperrors.Is(err, apperrors.ErrAuthorization))

	_, err = suite.service.FundWithQuote(suite.ctx, owner, addr(p), 999)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	_, err = suite.service.FundWithQuote(suite.ctx, owner, addr(p), 6000)
	suite.True(apperrors.Is(err, apperrors.ErrInsufficientBalance))
	suite.False(suite.reload(p).Active)

	funded, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 2000)
	suite.Require().NoError(err)
	suite.True(funded.Active)
	suite.Equal(uint64(2000), suite.vaultBalance(p))
	suite.Equal(uint64(3000), suite.balance(owner, quote))
}

func (suite *PoolServiceTestSuite) TestFundWithQuoteRejectsAssetOnly() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, SpotPrice: 10})
	suite.give(owner, quote, 100)

	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 100)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))
}

func (suite *PoolServiceTestSuite) TestFundWithAsset() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, SpotPrice: 10})

	p = suite.fundNFT(p, nft1)
	suite.True(p.Active)
	suite.Equal(uint32(1), p.NFTCount)
	suite.Zero(suite.balance(owner, nft1))

	rec, err := suite.pools.GetAssetRecord(suite.ctx, p.ID, nft1.Hex())
	suite.Require().NoError(err)
	suite.Require().NotNil(rec)
	suite.Equal(owner.Hex(), rec.Beneficiary)
	suite.Equal(suite.custodian.AssetVault(addr(p), nft1).Address.Hex(), rec.Escrow)

	suite.give(owner, foreignNFT, 1)
	_, err = suite.service.FundWithAsset(suite.ctx, owner, addr(p), foreignNFT)
	suite.ErrorIs(err, registry.ErrWrongCollection)

	_, err = suite.service.FundWithAsset(suite.ctx, owner, addr(p), nft2)
	suite.True(apperrors.Is(err, apperrors.ErrInsufficientBalance))
	suite.Equal(uint32(1), suite.reload(p).NFTCount)
}

func (suite *PoolServiceTestSuite) TestFundWithAssetRejectsQuoteOnly() {
	p := suite.newPool(InitParams{Kind: models.PoolKindQuoteOnly, Curve: curve.Linear, SpotPrice: 10})
	suite.give(owner, nft1, 1)

	_, err := suite.service.FundWithAsset(suite.ctx, owner, addr(p), nft1)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))
	suite.Equal(uint64(1), suite.balance(owner, nft1))
}

func (suite *PoolServiceTestSuite) TestBuyLinearScenario() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, Delta: 100, SpotPrice: 1000})
	p = suite.fundNFT(p, nft1)
	p = suite.fundNFT(p, nft2)
	suite.give(trader, quote, 1000)
	suite.sink.events = nil

	result, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1, ExpectedSpotPrice: u64(1000)})
	suite.Require().NoError(err)
	suite.Equal(uint64(1100), result.Pool.SpotPrice)
	suite.Equal(uint64(1), result.Pool.TradeCount)
	suite.Equal(uint32(1), result.Pool.NFTCount)
	suite.True(result.Pool.Active)
	suite.Equal(uint64(1000), result.Total)
	suite.Equal(owner.Hex(), result.Beneficiary)

	suite.Equal(uint64(1), suite.balance(trader, nft1))
	suite.Zero(suite.balance(trader, quote))
	suite.Equal(uint64(1000), suite.vaultBalance(p))

	rec, err := suite.pools.GetAssetRecord(suite.ctx, p.ID, nft1.Hex())
	suite.Require().NoError(err)
	suite.Nil(rec)
	vault, err := suite.ledger.Account(suite.ctx, suite.custodian.AssetVault(addr(p), nft1).Address)
	suite.Require().NoError(err)
	suite.Nil(vault)

	suite.Equal([]events.Type{events.TypePoolUpdated, events.TypeTradeExecuted}, suite.sink.types())

	history, err := suite.history.GetByTxHash(suite.ctx, result.TxHash)
	suite.Require().NoError(err)
	suite.Require().NotNil(history)
	suite.Equal(uint64(1000), history.SpotBefore)
	suite.Equal(uint64(1100), history.SpotAfter)
}

func (suite *PoolServiceTestSuite) TestBuyLastNFTDeactivatesAssetOnlyPool() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Exponential, Delta: 500, SpotPrice: 1000})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, quote, 1000)

	result, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1})
	suite.Require().NoError(err)
	suite.Equal(uint64(1050), result.Pool.SpotPrice)
	suite.Zero(result.Pool.NFTCount)
	suite.False(result.Pool.Active)
}

func (suite *PoolServiceTestSuite) TestBuyWithEmptyInventoryFails() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	suite.give(owner, quote, 100)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 100)
	suite.Require().NoError(err)
	suite.give(trader, quote, 1000)

	_, err = suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1})
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	after := suite.reload(p)
	suite.Equal(uint64(100), after.SpotPrice)
	suite.Zero(after.TradeCount)
	suite.Equal(uint64(1000), suite.balance(trader, quote))
}

func (suite *PoolServiceTestSuite) TestBuyChargesFeesAndRoyalties() {
	authorityID := suite.newAuthority(250)
	p := suite.newPool(InitParams{
		Kind: models.PoolKindAssetOnly, Curve: curve.Linear, Delta: 100, FeeBps: 500, SpotPrice: 1000,
		AuthorityID: authorityID, HonorRoyalties: true,
	})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, quote, 2000)

	result, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1})
	suite.Require().NoError(err)
	suite.Equal(uint64(50), result.Fees.PoolFee)
	suite.Equal(uint64(25), result.Fees.AuthorityFee)
	suite.Equal(uint64(50), result.Fees.Royalty)
	suite.Equal(uint64(1125), result.Total)
	suite.Len(result.Royalties, 2)

	suite.Equal(uint64(875), suite.balance(trader, quote))
	suite.Equal(uint64(1000), suite.vaultBalance(p))
	suite.Equal(uint64(25), suite.balance(protocol, quote))
	suite.Equal(uint64(30), suite.balance(creatorA, quote))
	suite.Equal(uint64(20), suite.balance(creatorB, quote))
	fee, err := suite.custodian.FeeVault(addr(p), quote).Balance(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(uint64(50), fee)

	suite.sink.events = nil
	withdrawn, err := suite.service.WithdrawFee(suite.ctx, owner, addr(p), 50)
	suite.Require().NoError(err)
	suite.Equal(result.Pool.Version+1, withdrawn.Version)
	suite.Equal([]events.Type{events.TypePoolUpdated}, suite.sink.types())
	suite.Equal(uint64(50), suite.balance(owner, quote))

	_, err = suite.service.WithdrawFee(suite.ctx, owner, addr(p), 1)
	suite.True(apperrors.Is(err, apperrors.ErrInsufficientBalance))
}

func (suite *PoolServiceTestSuite) TestBuyInsufficientBalanceLeavesStateUntouched() {
	authorityID := suite.newAuthority(100)
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, Delta: 100, SpotPrice: 1000, AuthorityID: authorityID})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, quote, 1005)

	_, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1})
	suite.True(apperrors.Is(err, apperrors.ErrInsufficientBalance))

	after := suite.reload(p)
	suite.Equal(uint64(1000), after.SpotPrice)
	suite.Equal(uint32(1), after.NFTCount)
	suite.Equal(uint64(1005), suite.balance(trader, quote))
	suite.Zero(suite.balance(trader, nft1))
}

func (suite *PoolServiceTestSuite) TestBuyStaleSpotPriceConflicts() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, Delta: 100, SpotPrice: 1000})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, quote, 2000)

	_, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1, ExpectedSpotPrice: u64(900)})
	suite.True(apperrors.Is(err, apperrors.ErrConflict))
	suite.Equal(uint32(1), suite.reload(p).NFTCount)
}

func (suite *PoolServiceTestSuite) TestBuyUnknownMintFails() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, Delta: 100, SpotPrice: 1000})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, quote, 2000)

	_, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft2})
	suite.True(apperrors.Is(err, apperrors.ErrNotFound))
	suite.Equal(uint64(2000), suite.balance(trader, quote))
}

func (suite *PoolServiceTestSuite) TestSellDeactivatesWhenUnderCollateralized() {
	authorityID := suite.newAuthority(1000)
	p := suite.newPool(InitParams{Kind: models.PoolKindQuoteOnly, Curve: curve.Linear, Delta: 100, SpotPrice: 1000, AuthorityID: authorityID})
	suite.give(owner, quote, 2300)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 2300)
	suite.Require().NoError(err)
	suite.give(trader, nft1, 1)
	suite.give(trader, nft2, 1)
	suite.give(trader, nft3, 1)

	first, err := suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft1})
	suite.Require().NoError(err)
	suite.Equal(uint64(900), first.Pool.SpotPrice)
	suite.True(first.Pool.Active)
	suite.Equal(uint64(1200), suite.vaultBalance(p))

	second, err := suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft2})
	suite.Require().NoError(err)
	suite.Equal(uint64(800), second.Pool.SpotPrice)
	suite.Equal(uint64(2), second.Pool.TradeCount)
	suite.Equal(uint32(2), second.Pool.NFTCount)
	suite.False(second.Pool.Active)

	suite.Equal(uint64(1900), suite.balance(trader, quote))
	suite.Equal(uint64(190), suite.balance(protocol, quote))
	suite.Equal(uint64(210), suite.vaultBalance(p))

	rec, err := suite.pools.GetAssetRecord(suite.ctx, p.ID, nft2.Hex())
	suite.Require().NoError(err)
	suite.Require().NotNil(rec)
	suite.Equal(trader.Hex(), rec.Beneficiary)

	_, err = suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft3})
	suite.True(apperrors.Is(err, apperrors.ErrValidation))
	suite.Equal(uint64(1), suite.balance(trader, nft3))
}

func (suite *PoolServiceTestSuite) TestSellRequiresCollateral() {
	authorityID := suite.newAuthority(1000)
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 100, SpotPrice: 1000, AuthorityID: authorityID})
	suite.give(owner, quote, 1000)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 1000)
	suite.Require().NoError(err)
	suite.give(trader, nft1, 1)

	_, err = suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft1})
	suite.True(apperrors.Is(err, apperrors.ErrInsufficientBalance))
	suite.Equal(uint64(1), suite.balance(trader, nft1))
	suite.Equal(uint64(1000), suite.vaultBalance(p))
	suite.Zero(suite.reload(p).NFTCount)
}

func (suite *PoolServiceTestSuite) TestSellUnderflowFailsWholeTrade() {
	p := suite.newPool(InitParams{Kind: models.PoolKindQuoteOnly, Curve: curve.Linear, Delta: 100, SpotPrice: 50})
	suite.give(owner, quote, 500)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 500)
	suite.Require().NoError(err)
	suite.give(trader, nft1, 1)

	_, err = suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft1})
	suite.True(apperrors.Is(err, apperrors.ErrArithmetic))
	suite.Equal(uint64(500), suite.vaultBalance(p))
	suite.Equal(uint64(1), suite.balance(trader, nft1))
}

func (suite *PoolServiceTestSuite) TestSellPaymentRoute() {
	p := suite.newPool(InitParams{Kind: models.PoolKindQuoteOnly, Curve: curve.Exponential, Delta: 10000, SpotPrice: 400})
	suite.give(owner, quote, 1000)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 1000)
	suite.Require().NoError(err)
	suite.give(trader, nft1, 1)
	route, err := suite.ledger.Mint(suite.ctx, stranger, quote, 0)
	suite.Require().NoError(err)

	result, err := suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft1, PaymentRoute: &route})
	suite.Require().NoError(err)
	// Exponential sells divide by step/10000 + 1.
	suite.Equal(uint64(200), result.Pool.SpotPrice)
	suite.Equal(uint64(400), suite.balance(stranger, quote))
	suite.Zero(suite.balance(trader, quote))
}

func (suite *PoolServiceTestSuite) TestSellRejectsAssetOnlyPool() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, SpotPrice: 10})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, nft2, 1)

	_, err := suite.service.Sell(suite.ctx, SellRequest{Seller: trader, Pool: addr(p), Mint: nft2})
	suite.True(apperrors.Is(err, apperrors.ErrValidation))
}

func (suite *PoolServiceTestSuite) TestWithdrawNFT() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, SpotPrice: 10})
	p = suite.fundNFT(p, nft1)

	_, err := suite.service.WithdrawNFT(suite.ctx, stranger, addr(p), nft1)
	suite.True(apperrors.Is(err, apperrors.ErrAuthorization))

	_, err = suite.service.WithdrawNFT(suite.ctx, owner, addr(p), nft2)
	suite.True(apperrors.Is(err, apperrors.ErrNotFound))

	rec, err := suite.service.WithdrawNFT(suite.ctx, owner, addr(p), nft1)
	suite.Require().NoError(err)
	suite.Equal(owner.Hex(), rec.Beneficiary)
	suite.Equal(uint64(1), suite.balance(owner, nft1))

	after := suite.reload(p)
	suite.Zero(after.NFTCount)
	suite.False(after.Active)
}

func (suite *PoolServiceTestSuite) TestWithdrawQuoteDeactivatesQuoteOnlyPool() {
	p := suite.newPool(InitParams{Kind: models.PoolKindQuoteOnly, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	suite.give(owner, quote, 300)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 300)
	suite.Require().NoError(err)

	_, err = suite.service.WithdrawQuote(suite.ctx, owner, addr(p), 301)
	suite.True(apperrors.Is(err, apperrors.ErrInsufficientBalance))

	_, err = suite.service.WithdrawQuote(suite.ctx, owner, addr(p), 0)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	p, err = suite.service.WithdrawQuote(suite.ctx, owner, addr(p), 200)
	suite.Require().NoError(err)
	suite.True(p.Active)

	p, err = suite.service.WithdrawQuote(suite.ctx, owner, addr(p), 50)
	suite.Require().NoError(err)
	suite.False(p.Active)
	suite.Equal(uint64(250), suite.balance(owner, quote))
}

func (suite *PoolServiceTestSuite) TestParameterOverrides() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Exponential, Delta: 100, FeeBps: 100, SpotPrice: 1000})

	_, err := suite.service.ChangeFee(suite.ctx, owner, addr(p), 10001)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))
	suite.Equal(uint16(100), suite.reload(p).FeeBps)

	_, err = suite.service.ChangeDelta(suite.ctx, owner, addr(p), 10001)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))

	_, err = suite.service.ChangeSpotPrice(suite.ctx, stranger, addr(p), 5)
	suite.True(apperrors.Is(err, apperrors.ErrAuthorization))

	p, err = suite.service.ChangeFee(suite.ctx, owner, addr(p), 10000)
	suite.Require().NoError(err)
	suite.Equal(uint16(10000), p.FeeBps)
	p, err = suite.service.ChangeDelta(suite.ctx, owner, addr(p), 10000)
	suite.Require().NoError(err)
	suite.Equal(uint64(10000), p.Delta)
	p, err = suite.service.ChangeSpotPrice(suite.ctx, owner, addr(p), 7)
	suite.Require().NoError(err)
	suite.Equal(uint64(7), p.SpotPrice)

	history, err := suite.history.GetByType(suite.ctx, models.OperationChangeSpotPrice, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(history, 1)
	suite.Equal(uint64(1000), history[0].SpotBefore)
	suite.Equal(uint64(7), history[0].SpotAfter)
}

func (suite *PoolServiceTestSuite) TestClosePool() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	p = suite.fundNFT(p, nft1)

	err := suite.service.ClosePool(suite.ctx, owner, addr(p))
	suite.True(apperrors.Is(err, apperrors.ErrInvariant))

	_, err = suite.service.WithdrawNFT(suite.ctx, owner, addr(p), nft1)
	suite.Require().NoError(err)
	suite.give(owner, quote, 100)
	_, err = suite.service.FundWithQuote(suite.ctx, owner, addr(p), 100)
	suite.Require().NoError(err)

	err = suite.service.ClosePool(suite.ctx, owner, addr(p))
	suite.True(apperrors.Is(err, apperrors.ErrInvariant))

	err = suite.service.ClosePool(suite.ctx, stranger, addr(p))
	suite.True(apperrors.Is(err, apperrors.ErrAuthorization))

	_, err = suite.service.WithdrawQuote(suite.ctx, owner, addr(p), 100)
	suite.Require().NoError(err)
	suite.sink.events = nil
	suite.Require().NoError(suite.service.ClosePool(suite.ctx, owner, addr(p)))

	_, err = suite.service.Get(suite.ctx, addr(p))
	suite.True(apperrors.Is(err, apperrors.ErrNotFound))
	account, err := suite.ledger.Account(suite.ctx, common.HexToAddress(p.QuoteVault))
	suite.Require().NoError(err)
	suite.Nil(account)
	suite.Equal([]events.Type{events.TypePoolClosed}, suite.sink.types())

	// History survives closure and the address can be reused.
	history, err := suite.history.GetByPool(suite.ctx, p.Address, 20, 0)
	suite.Require().NoError(err)
	suite.NotEmpty(history)
	suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, SpotPrice: 100})
}

func (suite *PoolServiceTestSuite) TestDrainedTwoSidedPoolDeactivates() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	suite.give(owner, quote, 100)
	_, err := suite.service.FundWithQuote(suite.ctx, owner, addr(p), 100)
	suite.Require().NoError(err)
	p = suite.fundNFT(p, nft1)

	p, err = suite.service.WithdrawQuote(suite.ctx, owner, addr(p), 100)
	suite.Require().NoError(err)
	suite.True(p.Active)

	_, err = suite.service.WithdrawNFT(suite.ctx, owner, addr(p), nft1)
	suite.Require().NoError(err)
	suite.False(suite.reload(p).Active)

	active, err := suite.service.ListActive(suite.ctx)
	suite.Require().NoError(err)
	suite.Empty(active)
	suite.Require().NoError(suite.service.ClosePool(suite.ctx, owner, addr(p)))
}

func (suite *PoolServiceTestSuite) TestBuyingLastNFTDeactivatesUnfundedTwoSidedPool() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	p = suite.fundNFT(p, nft1)
	suite.give(trader, quote, 1000)

	result, err := suite.service.Buy(suite.ctx, BuyRequest{Buyer: trader, Pool: addr(p), Mint: nft1})
	suite.Require().NoError(err)
	// The vault holds 100 but the next sell needs 110.
	suite.False(result.Pool.Active)
	suite.Equal(uint64(100), suite.vaultBalance(p))
}

func (suite *PoolServiceTestSuite) TestCloseRejectsActivePool() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	p = suite.fundNFT(p, nft1)
	_, err := suite.service.ChangeSpotPrice(suite.ctx, owner, addr(p), 0)
	suite.Require().NoError(err)

	// A zero spot price keeps the empty pool able to quote sells.
	_, err = suite.service.WithdrawNFT(suite.ctx, owner, addr(p), nft1)
	suite.Require().NoError(err)
	suite.True(suite.reload(p).Active)

	err = suite.service.ClosePool(suite.ctx, owner, addr(p))
	suite.True(apperrors.Is(err, apperrors.ErrInvariant))
	_, err = suite.service.Get(suite.ctx, addr(p))
	suite.Require().NoError(err)

	p, err = suite.service.ChangeSpotPrice(suite.ctx, owner, addr(p), 100)
	suite.Require().NoError(err)
	suite.False(p.Active)
	suite.Require().NoError(suite.service.ClosePool(suite.ctx, owner, addr(p)))
}

func (suite *PoolServiceTestSuite) TestStaleVersionConflicts() {
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 10, SpotPrice: 100})
	stale, err := suite.pools.GetByAddress(suite.ctx, p.Address)
	suite.Require().NoError(err)

	_, err = suite.service.ChangeSpotPrice(suite.ctx, owner, addr(p), 200)
	suite.Require().NoError(err)

	stale.SpotPrice = 50
	err = suite.pools.Update(suite.ctx, stale)
	suite.True(apperrors.Is(err, apperrors.ErrConflict))
	suite.Equal(uint64(200), suite.reload(p).SpotPrice)
}

func (suite *PoolServiceTestSuite) TestQuote() {
	authorityID := suite.newAuthority(100)
	p := suite.newPool(InitParams{Kind: models.PoolKindBoth, Curve: curve.Linear, Delta: 100, FeeBps: 200, SpotPrice: 1500, AuthorityID: authorityID})
	p = suite.fundNFT(p, nft1)

	buy, err := suite.service.Quote(suite.ctx, addr(p), curve.Buy, 2)
	suite.Require().NoError(err)
	suite.True(buy.Available)
	suite.Equal(uint64(30), buy.Fees.PoolFee)
	suite.Equal(uint64(15), buy.Fees.AuthorityFee)
	suite.Equal(uint64(1545), buy.Total)
	suite.Equal(uint64(1600), buy.NextSpotPrice)
	suite.Equal("15.45", buy.TotalDisplay.String())

	sell, err := suite.service.Quote(suite.ctx, addr(p), curve.Sell, 0)
	suite.Require().NoError(err)
	suite.False(sell.Available)
	suite.Contains(sell.Reason, "quote vault")
	suite.Equal(uint64(1500), sell.Total)
	suite.Zero(sell.Fees.PoolFee)

	_, err = suite.service.Quote(suite.ctx, addr(p), curve.Buy, 40)
	suite.True(apperrors.Is(err, apperrors.ErrValidation))
}

func (suite *PoolServiceTestSuite) TestListing() {
	p := suite.newPool(InitParams{Kind: models.PoolKindAssetOnly, Curve: curve.Linear, SpotPrice: 10})
	p = suite.fundNFT(p, nft1)
	p = suite.fundNFT(p, nft2)

	active, err := suite.service.ListActive(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(active, 1)

	owned, err := suite.service.ListByOwner(suite.ctx, owner)
	suite.Require().NoError(err)
	suite.Len(owned, 1)

	traded, err := suite.service.ListByCollection(suite.ctx, collection)
	suite.Require().NoError(err)
	suite.Len(traded, 1)

	assets, err := suite.service.ListAssets(suite.ctx, addr(p))
	suite.Require().NoError(err)
	suite.Len(assets, 2)

	all, err := suite.service.List(suite.ctx, 0, -1)
	suite.Require().NoError(err)
	suite.Len(all, 1)
}

func TestPoolServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PoolServiceTestSuite))
}
