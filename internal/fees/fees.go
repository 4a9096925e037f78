// Package fees splits a trade notional into pool, authority and royalty cuts.
package fees

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
)

const BasisPoints = 10000

// Breakdown is the full cost of a trade at one notional.
type Breakdown struct {
	Notional     uint64 `json:"notional"`
	PoolFee      uint64 `json:"pool_fee"`
	AuthorityFee uint64 `json:"authority_fee"`
	Royalty      uint64 `json:"royalty"`
}

// Total is what the paying side is charged.
func (b Breakdown) Total() (uint64, error) {
	total := b.Notional
	for _, part := range []uint64{b.PoolFee, b.AuthorityFee, b.Royalty} {
		var overflow bool
		total, overflow = math.SafeAdd(total, part)
		if overflow {
			return 0, apperrors.Arithmetic("trade total overflows")
		}
	}
	return total, nil
}

// ValidateBps rejects rates above 100%.
func ValidateBps(bps uint16) error {
	if bps > BasisPoints {
		return apperrors.Validation(fmt.Sprintf("fee %d bps exceeds %d", bps, BasisPoints))
	}
	return nil
}

// Share returns floor(notional * bps / 10000).
func Share(notional uint64, bps uint16) (uint64, error) {
	if err := ValidateBps(bps); err != nil {
		return 0, err
	}
	product := new(uint256.Int).Mul(uint256.NewInt(notional), uint256.NewInt(uint64(bps)))
	product.Div(product, uint256.NewInt(BasisPoints))
	if !product.IsUint64() {
		return 0, apperrors.Arithmetic("fee share overflows")
	}
	return product.Uint64(), nil
}

// Split computes the pool and authority cuts of notional.
func Split(notional uint64, poolFeeBps, authorityFeeBps uint16) (Breakdown, error) {
	poolFee, err := Share(notional, poolFeeBps)
	if err != nil {
		return Breakdown{}, err
	}
	authorityFee, err := Share(notional, authorityFeeBps)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{Notional: notional, PoolFee: poolFee, AuthorityFee: authorityFee}, nil
}

// Royalty is the creator cut owed on notional before it is distributed.
func Royalty(notional uint64, sellerFeeBps uint16) (uint64, error) {
	return Share(notional, sellerFeeBps)
}

// Creator is one royalty recipient with a percentage share.
type Creator struct {
	Address string `json:"address"`
	Share   uint8  `json:"share"`
}

// Payout is the amount owed to one creator.
type Payout struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// Distribute splits royalty across creators by percentage share. Each payout
// is floored; the returned total is the sum actually owed.
func Distribute(royalty uint64, creators []Creator) ([]Payout, uint64, error) {
	var shares uint
	for _, c := range creators {
		shares += uint(c.Share)
	}
	if shares > 100 {
		return nil, 0, apperrors.Validation(fmt.Sprintf("creator shares sum to %d", shares))
	}

	payouts := make([]Payout, 0, len(creators))
	var total uint64
	for _, c := range creators {
		amount := new(uint256.Int).Mul(uint256.NewInt(royalty), uint256.NewInt(uint64(c.Share)))
		amount.Div(amount, uint256.NewInt(100))
		if amount.IsZero() {
			continue
		}
		payouts = append(payouts, Payout{Address: c.Address, Amount: amount.Uint64()})
		total += amount.Uint64()
	}
	return payouts, total, nil
}
