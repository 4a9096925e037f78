package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/fees"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

const maxDecimals = 18

// Quote prices the next trade on one side of a pool without executing it.
// Royalties depend on the asset and are not included.
type Quote struct {
	Pool          string          `json:"pool"`
	Side          string          `json:"side"`
	Fees          fees.Breakdown  `json:"fees"`
	Total         uint64          `json:"total"`
	NextSpotPrice uint64          `json:"next_spot_price"`
	Price         decimal.Decimal `json:"price"`
	TotalDisplay  decimal.Decimal `json:"total_display"`
	Available     bool            `json:"available"`
	Reason        string          `json:"reason,omitempty"`
}

func (s *service) Quote(ctx context.Context, poolAddr common.Address, side curve.Direction, decimals int32) (*Quote, error) {
	if decimals < 0 || decimals > maxDecimals {
		return nil, apperrors.Validation(fmt.Sprintf("decimals must be between 0 and %d", maxDecimals))
	}

	var q *Quote
	err := s.inTx(ctx, func(sc *scope) error {
		p, err := load(ctx, sc, poolAddr)
		if err != nil {
			return err
		}
		a, err := authorityOf(ctx, sc, p)
		if err != nil {
			return err
		}

		poolFee := p.FeeBps
		if side == curve.Sell {
			poolFee = 0
		}
		breakdown, err := fees.Split(p.SpotPrice, poolFee, authorityBps(a))
		if err != nil {
			return err
		}
		total, err := breakdown.Total()
		if err != nil {
			return err
		}

		q = &Quote{
			Pool:  p.Address,
			Side:  side.String(),
			Fees:  breakdown,
			Total: total,
			Price: scaled(p.SpotPrice, decimals),
		}
		if side == curve.Sell {
			// The seller receives spot; the authority fee comes out of the vault.
			q.Total = p.SpotPrice
		}
		q.TotalDisplay = scaled(q.Total, decimals)

		next, err := curve.NextPrice(p.SpotPrice, p.Delta, p.Curve, side)
		if err != nil {
			q.Reason = err.Error()
			return nil
		}
		q.NextSpotPrice = next
		q.Reason, err = unavailable(ctx, sc, p, side, total)
		q.Available = q.Reason == ""
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// unavailable explains why the next trade on side would be rejected, or
// returns "" if it would not.
func unavailable(ctx context.Context, sc *scope, p *models.Pool, side curve.Direction, need uint64) (string, error) {
	if !p.Active {
		return "pool is not active", nil
	}
	if side == curve.Buy {
		if !p.Kind.Is(models.PoolKindAssetOnly, models.PoolKindBoth) {
			return fmt.Sprintf("%s pool does not sell NFTs", p.Kind), nil
		}
		if p.NFTCount == 0 {
			return "pool has no NFT inventory", nil
		}
		return "", nil
	}

	if !p.Kind.Is(models.PoolKindQuoteOnly, models.PoolKindBoth) {
		return fmt.Sprintf("%s pool does not buy NFTs", p.Kind), nil
	}
	balance, err := sc.custodian.QuoteVault(common.HexToAddress(p.Address), common.HexToAddress(p.QuoteAsset)).Balance(ctx)
	if err != nil {
		return "", err
	}
	if balance < need {
		return fmt.Sprintf("quote vault holds %d, sell needs %d", balance, need), nil
	}
	return "", nil
}

func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func scaled(v uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -decimals)
}
