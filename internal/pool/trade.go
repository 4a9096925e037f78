package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/sirupsen/logrus"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/events"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/fees"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/ledger"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/metrics"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/registry"
)

// BuyRequest buys one NFT out of a pool's inventory.
type BuyRequest struct {
	Buyer common.Address
	Pool  common.Address
	Mint  common.Address
	// ExpectedSpotPrice, when set, must equal the pool's spot price.
	ExpectedSpotPrice *uint64
}

// SellRequest sells one NFT into a pool.
type SellRequest struct {
	Seller common.Address
	Pool   common.Address
	Mint   common.Address
	// PaymentRoute receives the proceeds. Defaults to the seller's
	// associated quote account.
	PaymentRoute      *common.Address
	ExpectedSpotPrice *uint64
}

// TradeResult is the outcome of a committed trade.
type TradeResult struct {
	TxHash      string         `json:"tx_hash"`
	Pool        *models.Pool   `json:"pool"`
	Side        string         `json:"side"`
	Mint        string         `json:"mint"`
	Fees        fees.Breakdown `json:"fees"`
	Total       uint64         `json:"total"`
	Royalties   []fees.Payout  `json:"royalties,omitempty"`
	Beneficiary string         `json:"beneficiary,omitempty"`
}

func (s *service) Buy(ctx context.Context, req BuyRequest) (_ *TradeResult, err error) {
	defer observe(models.OperationBuy, time.Now(), &err)

	pre, err := s.preload(ctx, req.Pool)
	if err != nil {
		return nil, err
	}
	var schedule *registry.RoyaltySchedule
	if pre.HonorRoyalties {
		if schedule, err = s.registry.VerifyMembership(ctx, req.Mint, common.HexToAddress(pre.Collection)); err != nil {
			return nil, err
		}
	}

	var result *TradeResult
	err = s.inTx(ctx, func(sc *scope) error {
		p, err := load(ctx, sc, req.Pool)
		if err != nil {
			return err
		}
		if !p.Active {
			return apperrors.Validation(fmt.Sprintf("pool %s is not active", p.Address))
		}
		if !p.Kind.Is(models.PoolKindAssetOnly, models.PoolKindBoth) {
			return apperrors.Validation(fmt.Sprintf("%s pool does not sell NFTs", p.Kind))
		}
		if p.NFTCount == 0 {
			return apperrors.Validation(fmt.Sprintf("pool %s has no NFT inventory", p.Address))
		}
		if err := checkExpected(p, req.ExpectedSpotPrice); err != nil {
			return err
		}

		a, err := authorityOf(ctx, sc, p)
		if err != nil {
			return err
		}
		spot := p.SpotPrice
		breakdown, err := fees.Split(spot, p.FeeBps, authorityBps(a))
		if err != nil {
			return err
		}
		var payouts []fees.Payout
		if schedule != nil {
			cut, err := fees.Royalty(spot, schedule.SellerFeeBps)
			if err != nil {
				return err
			}
			if payouts, breakdown.Royalty, err = fees.Distribute(cut, schedule.Creators); err != nil {
				return err
			}
		}
		total, err := breakdown.Total()
		if err != nil {
			return err
		}
		next, err := curve.NextPrice(spot, p.Delta, p.Curve, curve.Buy)
		if err != nil {
			return err
		}

		quote := common.HexToAddress(p.QuoteAsset)
		from := ledger.AssociatedAddress(req.Buyer, quote)
		balance, err := sc.ledger.BalanceOf(ctx, from)
		if err != nil {
			return err
		}
		if balance < total {
			return apperrors.InsufficientBalance(fmt.Sprintf("buyer holds %d, trade costs %d", balance, total))
		}

		if err := sc.custodian.QuoteVault(req.Pool, quote).Deposit(ctx, req.Buyer, from, spot); err != nil {
			return err
		}
		if a != nil && breakdown.AuthorityFee > 0 {
			to, err := userAccount(ctx, sc, common.HexToAddress(a.CurrentAuthority), quote)
			if err != nil {
				return err
			}
			if err := sc.ledger.Transfer(ctx, req.Buyer, from, to, quote, breakdown.AuthorityFee); err != nil {
				return err
			}
		}
		if breakdown.PoolFee > 0 {
			if err := sc.custodian.FeeVault(req.Pool, quote).Deposit(ctx, req.Buyer, from, breakdown.PoolFee); err != nil {
				return err
			}
		}
		for _, payout := range payouts {
			to, err := userAccount(ctx, sc, common.HexToAddress(payout.Address), quote)
			if err != nil {
				return err
			}
			if err := sc.ledger.Transfer(ctx, req.Buyer, from, to, quote, payout.Amount); err != nil {
				return err
			}
		}
		rec, err := releaseAsset(ctx, sc, p, req.Mint, req.Buyer)
		if err != nil {
			return err
		}

		p.SpotPrice = next
		if err := bumpTrades(p); err != nil {
			return err
		}
		if err := deactivateIfDrained(ctx, sc, p); err != nil {
			return err
		}
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}

		hash, err := record(ctx, sc, req.Buyer, p, models.OperationBuy, func(tx *models.Transaction) {
			tx.Mint = req.Mint.Hex()
			tx.Counterparty = rec.Beneficiary
			tx.Amount = units(spot)
			tx.PoolFee = units(breakdown.PoolFee)
			tx.AuthorityFee = units(breakdown.AuthorityFee)
			tx.Royalty = units(breakdown.Royalty)
			tx.SpotBefore = spot
		})
		if err != nil {
			return err
		}
		result = &TradeResult{
			TxHash:      hash,
			Pool:        p,
			Side:        curve.Buy.String(),
			Mint:        req.Mint.Hex(),
			Fees:        breakdown,
			Total:       total,
			Royalties:   payouts,
			Beneficiary: rec.Beneficiary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.completeTrade(ctx, req.Buyer, result)
	return result, nil
}

func (s *service) Sell(ctx context.Context, req SellRequest) (_ *TradeResult, err error) {
	defer observe(models.OperationSell, time.Now(), &err)

	pre, err := s.preload(ctx, req.Pool)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.VerifyMembership(ctx, req.Mint, common.HexToAddress(pre.Collection)); err != nil {
		return nil, err
	}

	var result *TradeResult
	err = s.inTx(ctx, func(sc *scope) error {
		p, err := load(ctx, sc, req.Pool)
		if err != nil {
			return err
		}
		if !p.Active {
			return apperrors.Validation(fmt.Sprintf("pool %s is not active", p.Address))
		}
		if !p.Kind.Is(models.PoolKindQuoteOnly, models.PoolKindBoth) {
			return apperrors.Validation(fmt.Sprintf("%s pool does not buy NFTs", p.Kind))
		}
		if err := checkExpected(p, req.ExpectedSpotPrice); err != nil {
			return err
		}

		a, err := authorityOf(ctx, sc, p)
		if err != nil {
			return err
		}
		spot := p.SpotPrice
		breakdown, err := fees.Split(spot, 0, authorityBps(a))
		if err != nil {
			return err
		}
		need, err := breakdown.Total()
		if err != nil {
			return err
		}
		quote := common.HexToAddress(p.QuoteAsset)
		vault := sc.custodian.QuoteVault(req.Pool, quote)
		balance, err := vault.Balance(ctx)
		if err != nil {
			return err
		}
		if balance < need {
			return apperrors.InsufficientBalance(fmt.Sprintf("quote vault holds %d, sell needs %d", balance, need))
		}
		next, err := curve.NextPrice(spot, p.Delta, p.Curve, curve.Sell)
		if err != nil {
			return err
		}

		if err := escrowAsset(ctx, sc, p, req.Seller, req.Mint, req.Seller); err != nil {
			return err
		}

		proof := sc.custodian.Deriver().Proof()
		var route common.Address
		if req.PaymentRoute != nil {
			route = *req.PaymentRoute
		} else if route, err = userAccount(ctx, sc, req.Seller, quote); err != nil {
			return err
		}
		if err := vault.Withdraw(ctx, route, spot, proof); err != nil {
			return err
		}
		if a != nil && breakdown.AuthorityFee > 0 {
			to, err := userAccount(ctx, sc, common.HexToAddress(a.CurrentAuthority), quote)
			if err != nil {
				return err
			}
			if err := vault.Withdraw(ctx, to, breakdown.AuthorityFee, proof); err != nil {
				return err
			}
		}

		p.SpotPrice = next
		if err := bumpTrades(p); err != nil {
			return err
		}
		funded, err := canServeSell(ctx, sc, vault, p, next)
		if err != nil {
			return err
		}
		if !funded {
			p.Active = false
		}
		if err := sc.pools.Update(ctx, p); err != nil {
			return err
		}

		hash, err := record(ctx, sc, req.Seller, p, models.OperationSell, func(tx *models.Transaction) {
			tx.Mint = req.Mint.Hex()
			tx.Counterparty = route.Hex()
			tx.Amount = units(spot)
			tx.AuthorityFee = units(breakdown.AuthorityFee)
			tx.SpotBefore = spot
		})
		if err != nil {
			return err
		}
		result = &TradeResult{
			TxHash: hash,
			Pool:   p,
			Side:   curve.Sell.String(),
			Mint:   req.Mint.Hex(),
			Fees:   breakdown,
			Total:  spot,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.completeTrade(ctx, req.Seller, result)
	return result, nil
}

func (s *service) completeTrade(ctx context.Context, trader common.Address, result *TradeResult) {
	p := result.Pool
	metrics.TradeVolume.WithLabelValues(result.Side).Add(float64(result.Fees.Notional))
	s.log.WithFields(logrus.Fields{
		"pool":       p.Address,
		"side":       result.Side,
		"mint":       result.Mint,
		"price":      result.Fees.Notional,
		"spot_price": p.SpotPrice,
		"active":     p.Active,
	}).Info("Trade executed")

	s.publish(ctx,
		events.NewPoolEvent(events.TypePoolUpdated, p),
		events.NewTradeEvent(events.TradeUpdate{
			TxHash:       result.TxHash,
			Pool:         p.Address,
			Trader:       trader.Hex(),
			Side:         result.Side,
			Mint:         result.Mint,
			Price:        result.Fees.Notional,
			PoolFee:      result.Fees.PoolFee,
			AuthorityFee: result.Fees.AuthorityFee,
			Royalty:      result.Fees.Royalty,
			SpotAfter:    p.SpotPrice,
		}),
	)
}

func checkExpected(p *models.Pool, expected *uint64) error {
	if expected != nil && *expected != p.SpotPrice {
		return apperrors.Conflict(fmt.Sprintf("pool %s spot price is %d, expected %d", p.Address, p.SpotPrice, *expected))
	}
	return nil
}

func bumpTrades(p *models.Pool) error {
	count, overflow := math.SafeAdd(p.TradeCount, 1)
	if overflow {
		return apperrors.Arithmetic("trade count overflows")
	}
	p.TradeCount = count
	return nil
}
