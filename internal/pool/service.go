// Package pool runs the bonding-curve pool state machine: funding, trading,
// withdrawals, parameter overrides and closure.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/authority"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/custody"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/events"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/fees"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/ledger"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/metrics"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/registry"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/transaction"
)

// InitParams are the owner-supplied parameters of a new pool.
type InitParams struct {
	Owner          common.Address
	Collection     common.Address
	QuoteAsset     common.Address
	AuthorityID    *uint
	Kind           models.PoolKind
	Curve          curve.Kind
	Delta          uint64
	FeeBps         uint16
	SpotPrice      uint64
	HonorRoyalties bool
}

// Service defines pool operations
type Service interface {
	Initialize(ctx context.Context, params InitParams) (*models.Pool, error)
	FundWithQuote(ctx context.Context, caller, pool common.Address, amount uint64) (*models.Pool, error)
	FundWithAsset(ctx context.Context, caller, pool, mint common.Address) (*models.Pool, error)
	Buy(ctx context.Context, req BuyRequest) (*TradeResult, error)
	Sell(ctx context.Context, req SellRequest) (*TradeResult, error)
	WithdrawNFT(ctx context.Context, caller, pool, mint common.Address) (*models.AssetRecord, error)
	WithdrawQuote(ctx context.Context, caller, pool common.Address, amount uint64) (*models.Pool, error)
	WithdrawFee(ctx context.Context, caller, pool common.Address, amount uint64) (*models.Pool, error)
	ChangeDelta(ctx context.Context, caller, pool common.Address, delta uint64) (*models.Pool, error)
	ChangeFee(ctx context.Context, caller, pool common.Address, feeBps uint16) (*models.Pool, error)
	ChangeSpotPrice(ctx context.Context, caller, pool common.Address, spotPrice uint64) (*models.Pool, error)
	ClosePool(ctx context.Context, caller, pool common.Address) error

	Quote(ctx context.Context, pool common.Address, side curve.Direction, decimals int32) (*Quote, error)
	Get(ctx context.Context, pool common.Address) (*models.Pool, error)
	List(ctx context.Context, limit, offset int) ([]*models.Pool, error)
	ListActive(ctx context.Context) ([]*models.Pool, error)
	ListByOwner(ctx context.Context, owner common.Address) ([]*models.Pool, error)
	ListByCollection(ctx context.Context, collection common.Address) ([]*models.Pool, error)
	ListAssets(ctx context.Context, pool common.Address) ([]*models.AssetRecord, error)
}

type service struct {
	db          *gorm.DB
	pools       PoolRepository
	authorities authority.AuthorityRepository
	history     transaction.TransactionRepository
	ledger      ledger.Ledger
	custodian   *custody.Custodian
	registry    registry.Registry
	sink        events.Sink
	log         *logrus.Entry
}

// NewService creates a new pool service. A nil sink discards events.
func NewService(
	db *gorm.DB,
	pools PoolRepository,
	authorities authority.AuthorityRepository,
	history transaction.TransactionRepository,
	l ledger.Ledger,
	custodian *custody.Custodian,
	reg registry.Registry,
	sink events.Sink,
) Service {
	if sink == nil {
		sink = events.Nop{}
	}
	return &service{
		db:          db,
		pools:       pools,
		authorities: authorities,
		history:     history,
		ledger:      l,
		custodian:   custodian,
		registry:    reg,
		sink:        sink,
		log:         logrus.WithField("component", "pool"),
	}
}

// scope holds the repositories bound to one database transaction.
type scope struct {
	pools       PoolRepository
	authorities authority.AuthorityRepository
	history     transaction.TransactionRepository
	ledger      ledger.Ledger
	custodian   *custody.Custodian
}

func (s *service) inTx(ctx context.Context, fn func(sc *scope) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l := s.ledger.WithTx(tx)
		return fn(&scope{
			pools:       s.pools.WithTx(tx),
			authorities: s.authorities.WithTx(tx),
			history:     s.history.WithTx(tx),
			ledger:      l,
			custodian:   s.custodian.WithLedger(l),
		})
	})
	if err != nil {
		return apperrors.Wrap(err)
	}
	return nil
}

func (s *service) Initialize(ctx context.Context, params InitParams) (_ *models.Pool, err error) {
	defer observe(models.OperationInitPool, time.Now(), &err)

	zero := common.Address{}
	if params.Owner == zero || params.Collection == zero || params.QuoteAsset == zero {
		return nil, apperrors.Validation("owner, collection and quote asset are required")
	}
	if !params.Kind.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid pool kind %d", params.Kind))
	}
	if !params.Curve.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid curve kind %d", params.Curve))
	}
	if err := curve.ValidateStep(params.Curve, params.Delta); err != nil {
		return nil, err
	}
	if err := fees.ValidateBps(params.FeeBps); err != nil {
		return nil, err
	}
	if err := s.registry.VerifyCollection(ctx, params.Collection); err != nil {
		return nil, err
	}

	address := s.custodian.Deriver().PoolAddress(params.Owner, params.Collection, params.QuoteAsset)
	var created *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		existing, err := sc.pools.GetByAddress(ctx, address.Hex())
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.Conflict(fmt.Sprintf("pool %s already exists", address.Hex()))
		}
		if params.AuthorityID != nil {
			a, err := sc.authorities.GetByID(ctx, *params.AuthorityID)
			if err != nil {
				return err
			}
			if a == nil {
				return apperrors.NotFound(fmt.Sprintf("authority %d not found", *params.AuthorityID))
			}
		}

		quoteVault := sc.custodian.QuoteVault(address, params.QuoteAsset)
		feeVault := sc.custodian.FeeVault(address, params.QuoteAsset)
		if err := quoteVault.Open(ctx); err != nil {
			return err
		}
		if err := feeVault.Open(ctx); err != nil {
			return err
		}

		p := &models.Pool{
			Address:        address.Hex(),
			Owner:          params.Owner.Hex(),
			AuthorityID:    params.AuthorityID,
			Collection:     params.Collection.Hex(),
			QuoteAsset:     params.QuoteAsset.Hex(),
			Kind:           params.Kind,
			Curve:          params.Curve,
			Delta:          params.Delta,
			FeeBps:         params.FeeBps,
			SpotPrice:      params.SpotPrice,
			HonorRoyalties: params.HonorRoyalties,
			QuoteVault:     quoteVault.Address.Hex(),
			FeeVault:       feeVault.Address.Hex(),
		}
		if err := sc.pools.Create(ctx, p); err != nil {
			return err
		}
		created = p
		_, err = record(ctx, sc, params.Owner, p, models.OperationInitPool, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"pool":       created.Address,
		"kind":       created.Kind.String(),
		"curve":      created.Curve.String(),
		"spot_price": created.SpotPrice,
	}).Info("Pool initialized")
	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, created))
	return created, nil
}

func (s *service) FundWithQuote(ctx context.Context, caller, poolAddr common.Address, amount uint64) (_ *models.Pool, err error) {
	defer observe(models.OperationFundQuote, time.Now(), &err)

	var p *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		if !p.Kind.Is(models.PoolKindQuoteOnly, models.PoolKindBoth) {
			return apperrors.Validation(fmt.Sprintf("%s pool does not take quote funding", p.Kind))
		}
		if amount < p.SpotPrice {
			return apperrors.Validation(fmt.Sprintf("funding %d is below spot price %d", amount, p.SpotPrice))
		}

		vault := sc.custodian.QuoteVault(poolAddr, common.HexToAddress(p.QuoteAsset))
		from := ledger.AssociatedAddress(caller, vault.Asset)
		if err := vault.Deposit(ctx, caller, from, amount); err != nil {
			return err
		}

		p.Active = true
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, models.OperationFundQuote, func(tx *models.Transaction) {
			tx.Amount = units(amount)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, p))
	return p, nil
}

func (s *service) FundWithAsset(ctx context.Context, caller, poolAddr, mint common.Address) (_ *models.Pool, err error) {
	defer observe(models.OperationFundNFT, time.Now(), &err)

	pre, err := s.preload(ctx, poolAddr)
	if err != nil {
		return nil, err
	}
	if pre.Owner != caller.Hex() {
		return nil, notOwner(caller, pre)
	}
	if _, err := s.registry.VerifyMembership(ctx, mint, common.HexToAddress(pre.Collection)); err != nil {
		return nil, err
	}

	var p *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		if !p.Kind.Is(models.PoolKindAssetOnly, models.PoolKindBoth) {
			return apperrors.Validation(fmt.Sprintf("%s pool does not take NFT funding", p.Kind))
		}

		if err := escrowAsset(ctx, sc, p, caller, mint, caller); err != nil {
			return err
		}
		p.Active = true
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, models.OperationFundNFT, func(tx *models.Transaction) {
			tx.Mint = mint.Hex()
			tx.Amount = units(1)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, p))
	return p, nil
}

func (s *service) WithdrawNFT(ctx context.Context, caller, poolAddr, mint common.Address) (_ *models.AssetRecord, err error) {
	defer observe(models.OperationWithdrawNFT, time.Now(), &err)

	var (
		p   *models.Pool
		rec *models.AssetRecord
	)
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		if rec, err = releaseAsset(ctx, sc, p, mint, caller); err != nil {
			return err
		}
		if err := deactivateIfDrained(ctx, sc, p); err != nil {
			return err
		}
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, models.OperationWithdrawNFT, func(tx *models.Transaction) {
			tx.Mint = mint.Hex()
			tx.Counterparty = rec.Beneficiary
			tx.Amount = units(1)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, p))
	return rec, nil
}

func (s *service) WithdrawQuote(ctx context.Context, caller, poolAddr common.Address, amount uint64) (_ *models.Pool, err error) {
	defer observe(models.OperationWithdrawQuote, time.Now(), &err)

	var p *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		vault := sc.custodian.QuoteVault(poolAddr, common.HexToAddress(p.QuoteAsset))
		if err := payOut(ctx, sc, vault, caller, amount); err != nil {
			return err
		}

		if p.Kind.Is(models.PoolKindQuoteOnly, models.PoolKindBoth) && p.Active {
			funded, err := canServeSell(ctx, sc, vault, p, p.SpotPrice)
			if err != nil {
				return err
			}
			// A two-sided pool keeps selling its inventory without quote collateral.
			if !funded && (p.Kind == models.PoolKindQuoteOnly || p.NFTCount == 0) {
				p.Active = false
			}
		}
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, models.OperationWithdrawQuote, func(tx *models.Transaction) {
			tx.Amount = units(amount)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, p))
	return p, nil
}

func (s *service) WithdrawFee(ctx context.Context, caller, poolAddr common.Address, amount uint64) (_ *models.Pool, err error) {
	defer observe(models.OperationWithdrawFee, time.Now(), &err)

	var p *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		vault := sc.custodian.FeeVault(poolAddr, common.HexToAddress(p.QuoteAsset))
		if err := payOut(ctx, sc, vault, caller, amount); err != nil {
			return err
		}
		// Bump the version so concurrent operations on this pool serialize.
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, models.OperationWithdrawFee, func(tx *models.Transaction) {
			tx.Amount = units(amount)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, p))
	return p, nil
}

func (s *service) ChangeDelta(ctx context.Context, caller, poolAddr common.Address, delta uint64) (*models.Pool, error) {
	return s.override(ctx, models.OperationChangeDelta, caller, poolAddr, func(p *models.Pool) error {
		if err := curve.ValidateStep(p.Curve, delta); err != nil {
			return err
		}
		p.Delta = delta
		return nil
	})
}

func (s *service) ChangeFee(ctx context.Context, caller, poolAddr common.Address, feeBps uint16) (*models.Pool, error) {
	return s.override(ctx, models.OperationChangeFee, caller, poolAddr, func(p *models.Pool) error {
		if err := fees.ValidateBps(feeBps); err != nil {
			return err
		}
		p.FeeBps = feeBps
		return nil
	})
}

func (s *service) ChangeSpotPrice(ctx context.Context, caller, poolAddr common.Address, spotPrice uint64) (*models.Pool, error) {
	return s.override(ctx, models.OperationChangeSpotPrice, caller, poolAddr, func(p *models.Pool) error {
		p.SpotPrice = spotPrice
		return nil
	})
}

// override applies an owner-only parameter change.
func (s *service) override(ctx context.Context, op models.OperationType, caller, poolAddr common.Address, apply func(p *models.Pool) error) (_ *models.Pool, err error) {
	defer observe(op, time.Now(), &err)

	var p *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		before := p.SpotPrice
		if err := apply(p); err != nil {
			return err
		}
		if err := deactivateIfDrained(ctx, sc, p); err != nil {
			return err
		}
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, op, func(tx *models.Transaction) {
			tx.SpotBefore = before
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"pool": p.Address, "op": op}).Info("Pool parameters changed")
	s.publish(ctx, events.NewPoolEvent(events.TypePoolUpdated, p))
	return p, nil
}

func (s *service) ClosePool(ctx context.Context, caller, poolAddr common.Address) (err error) {
	defer observe(models.OperationClosePool, time.Now(), &err)

	var p *models.Pool
	err = s.inTx(ctx, func(sc *scope) error {
		var err error
		if p, err = loadOwned(ctx, sc, poolAddr, caller); err != nil {
			return err
		}
		if p.Active {
			return apperrors.Invariant(fmt.Sprintf("pool %s is still active", p.Address))
		}
		if p.NFTCount != 0 {
			return apperrors.Invariant(fmt.Sprintf("pool %s still holds %d NFTs", p.Address, p.NFTCount))
		}

		quote := common.HexToAddress(p.QuoteAsset)
		for _, vault := range []custody.Vault{sc.custodian.QuoteVault(poolAddr, quote), sc.custodian.FeeVault(poolAddr, quote)} {
			balance, err := vault.Balance(ctx)
			if err != nil {
				return err
			}
			if balance != 0 {
				return apperrors.Invariant(fmt.Sprintf("%s of pool %s still holds %d", vault.Kind, p.Address, balance))
			}
			if err := vault.Close(ctx); err != nil {
				return err
			}
		}

		// Claim the current version before deleting so a racing operation loses.
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}
		if err := sc.pools.Delete(ctx, p.ID); err != nil {
			return err
		}
		_, err = record(ctx, sc, caller, p, models.OperationClosePool, nil)
		return err
	})
	if err != nil {
		return err
	}

	s.log.WithField("pool", p.Address).Info("Pool closed")
	s.publish(ctx, events.NewPoolEvent(events.TypePoolClosed, p))
	return nil
}

func (s *service) Get(ctx context.Context, poolAddr common.Address) (*models.Pool, error) {
	return s.preload(ctx, poolAddr)
}

func (s *service) List(ctx context.Context, limit, offset int) ([]*models.Pool, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.pools.List(ctx, limit, offset)
}

func (s *service) ListActive(ctx context.Context) ([]*models.Pool, error) {
	return s.pools.GetActivePools(ctx)
}

func (s *service) ListByOwner(ctx context.Context, owner common.Address) ([]*models.Pool, error) {
	return s.pools.GetPoolsByOwner(ctx, owner.Hex())
}

func (s *service) ListByCollection(ctx context.Context, collection common.Address) ([]*models.Pool, error) {
	return s.pools.GetPoolsByCollection(ctx, collection.Hex())
}

func (s *service) ListAssets(ctx context.Context, poolAddr common.Address) ([]*models.AssetRecord, error) {
	p, err := s.preload(ctx, poolAddr)
	if err != nil {
		return nil, err
	}
	return s.pools.ListAssetRecords(ctx, p.ID)
}

// preload reads a pool outside any transaction, for immutable fields needed
// by registry checks.
func (s *service) preload(ctx context.Context, poolAddr common.Address) (*models.Pool, error) {
	p, err := s.pools.GetByAddress(ctx, poolAddr.Hex())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("pool %s not found", poolAddr.Hex()))
	}
	return p, nil
}

func (s *service) publish(ctx context.Context, evs ...events.Event) {
	for _, ev := range evs {
		if err := s.sink.Publish(ctx, ev); err != nil {
			metrics.EventPublishFailures.Inc()
			s.log.WithError(err).WithFields(logrus.Fields{"pool": ev.Address(), "event": ev.Type}).
				Warn("Failed to publish event")
		}
	}
}

func load(ctx context.Context, sc *scope, poolAddr common.Address) (*models.Pool, error) {
	p, err := sc.pools.GetByAddress(ctx, poolAddr.Hex())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("pool %s not found", poolAddr.Hex()))
	}
	return p, nil
}

func loadOwned(ctx context.Context, sc *scope, poolAddr, caller common.Address) (*models.Pool, error) {
	p, err := load(ctx, sc, poolAddr)
	if err != nil {
		return nil, err
	}
	if p.Owner != caller.Hex() {
		return nil, notOwner(caller, p)
	}
	return p, nil
}

func notOwner(caller common.Address, p *models.Pool) error {
	return apperrors.Authorization(fmt.Sprintf("%s does not own pool %s", caller.Hex(), p.Address))
}

// authorityOf resolves the authority a pool trades under. Pools without one
// pay no authority fee.
func authorityOf(ctx context.Context, sc *scope, p *models.Pool) (*models.PoolAuthority, error) {
	if p.AuthorityID == nil {
		return nil, nil
	}
	a, err := sc.authorities.GetByID(ctx, *p.AuthorityID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperrors.Invariant(fmt.Sprintf("pool %s references missing authority %d", p.Address, *p.AuthorityID))
	}
	return a, nil
}

func authorityBps(a *models.PoolAuthority) uint16 {
	if a == nil {
		return 0
	}
	return a.FeeBps
}

// canServeSell reports whether vault covers a sell at spot plus its authority fee.
func canServeSell(ctx context.Context, sc *scope, vault custody.Vault, p *models.Pool, spot uint64) (bool, error) {
	a, err := authorityOf(ctx, sc, p)
	if err != nil {
		return false, err
	}
	need, err := fees.Split(spot, 0, authorityBps(a))
	if err != nil {
		return false, err
	}
	total, err := need.Total()
	if err != nil {
		return false, err
	}
	balance, err := vault.Balance(ctx)
	if err != nil {
		return false, err
	}
	return balance >= total, nil
}

// deactivateIfDrained clears Active once p has no inventory left and, for a
// two-sided pool, its quote vault can no longer fund a sell.
func deactivateIfDrained(ctx context.Context, sc *scope, p *models.Pool) error {
	if !p.Active || p.NFTCount != 0 {
		return nil
	}
	switch p.Kind {
	case models.PoolKindAssetOnly:
		p.Active = false
	case models.PoolKindBoth:
		vault := sc.custodian.QuoteVault(common.HexToAddress(p.Address), common.HexToAddress(p.QuoteAsset))
		funded, err := canServeSell(ctx, sc, vault, p, p.SpotPrice)
		if err != nil {
			return err
		}
		if !funded {
			p.Active = false
		}
	}
	return nil
}

// userAccount opens (if needed) and returns owner's associated account for asset.
func userAccount(ctx context.Context, sc *scope, owner, asset common.Address) (common.Address, error) {
	address := ledger.AssociatedAddress(owner, asset)
	if _, err := sc.ledger.OpenAccount(ctx, address, owner, asset); err != nil {
		return common.Address{}, err
	}
	return address, nil
}

func payOut(ctx context.Context, sc *scope, vault custody.Vault, owner common.Address, amount uint64) error {
	if amount == 0 {
		return apperrors.Validation("amount must be positive")
	}
	to, err := userAccount(ctx, sc, owner, vault.Asset)
	if err != nil {
		return err
	}
	return vault.Withdraw(ctx, to, amount, sc.custodian.Deriver().Proof())
}

// escrowAsset moves one unit of mint from payer into a fresh per-mint vault
// and records it.
func escrowAsset(ctx context.Context, sc *scope, p *models.Pool, payer, mint, beneficiary common.Address) error {
	poolAddr := common.HexToAddress(p.Address)
	existing, err := sc.pools.GetAssetRecord(ctx, p.ID, mint.Hex())
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.Invariant(fmt.Sprintf("pool %s already holds %s", p.Address, mint.Hex()))
	}

	vault := sc.custodian.AssetVault(poolAddr, mint)
	if err := vault.Open(ctx); err != nil {
		return err
	}
	if err := vault.Deposit(ctx, payer, ledger.AssociatedAddress(payer, mint), 1); err != nil {
		return err
	}
	if err := sc.pools.CreateAssetRecord(ctx, &models.AssetRecord{
		PoolID:      p.ID,
		Mint:        mint.Hex(),
		Collection:  p.Collection,
		Escrow:      vault.Address.Hex(),
		Beneficiary: beneficiary.Hex(),
	}); err != nil {
		return err
	}

	count := p.NFTCount + 1
	if count < p.NFTCount {
		return apperrors.Arithmetic("inventory count overflows")
	}
	p.NFTCount = count
	return nil
}

// releaseAsset moves an escrowed NFT to recipient, closes its vault and
// destroys its record.
func releaseAsset(ctx context.Context, sc *scope, p *models.Pool, mint, recipient common.Address) (*models.AssetRecord, error) {
	rec, err := sc.pools.GetAssetRecord(ctx, p.ID, mint.Hex())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("pool %s does not hold %s", p.Address, mint.Hex()))
	}
	if p.NFTCount == 0 {
		return nil, apperrors.Invariant(fmt.Sprintf("pool %s holds a record for %s with zero inventory", p.Address, mint.Hex()))
	}

	vault := sc.custodian.AssetVault(common.HexToAddress(p.Address), mint)
	to, err := userAccount(ctx, sc, recipient, mint)
	if err != nil {
		return nil, err
	}
	if err := vault.Withdraw(ctx, to, 1, sc.custodian.Deriver().Proof()); err != nil {
		return nil, err
	}
	if err := vault.Close(ctx); err != nil {
		return nil, err
	}
	if err := sc.pools.DeleteAssetRecord(ctx, rec.ID); err != nil {
		return nil, err
	}
	p.NFTCount--
	return rec, nil
}

// record appends the operation to history and returns its hash.
func record(ctx context.Context, sc *scope, caller common.Address, p *models.Pool, op models.OperationType, fill func(tx *models.Transaction)) (string, error) {
	tx := &models.Transaction{
		Caller:      caller.Hex(),
		PoolAddress: p.Address,
		AuthorityID: p.AuthorityID,
		Type:        op,
		SpotBefore:  p.SpotPrice,
		SpotAfter:   p.SpotPrice,
	}
	if fill != nil {
		fill(tx)
	}
	if err := sc.history.Create(ctx, tx); err != nil {
		return "", err
	}
	return tx.TxHash, nil
}

func observe(op models.OperationType, start time.Time, err *error) {
	metrics.Observe(string(op), start, *err)
}
